package webhook

import (
	"context"

	"go.uber.org/zap"
)

// LogHandler records changes in the log and performs no side effects.
type LogHandler struct {
	Log *zap.Logger
}

var _ Handler = LogHandler{}

func (h LogHandler) HandleComment(ctx context.Context, change Change, comment CommentValue) error {
	h.Log.Info("comment event",
		zap.String("entry_id", change.EntryID),
		zap.String("media_id", comment.Media.ID),
		zap.String("comment_id", comment.ID),
	)
	return nil
}

func (h LogHandler) HandleMedia(ctx context.Context, change Change) error {
	h.Log.Info("media event", zap.String("entry_id", change.EntryID), zap.ByteString("value", change.Value))
	return nil
}

func (h LogHandler) HandlePageFeed(ctx context.Context, change Change) error {
	h.Log.Info("page feed event", zap.String("entry_id", change.EntryID), zap.ByteString("value", change.Value))
	return nil
}
