// Package webhook implements the Graph webhook subscription handshake and
// dispatch of change notifications.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"codenetic/internal/shared/apperr"
)

const (
	ModeSubscribe   = "subscribe"
	SignatureHeader = "X-Hub-Signature-256"
)

var (
	ErrVerificationFailed = errors.New("webhook verification failed")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
)

var (
	webhookMeter      = otel.Meter("codenetic/webhook")
	webhookChanges, _ = webhookMeter.Int64Counter("webhook.changes",
		metric.WithDescription("Webhook changes received by kind"),
	)
)

// Handler is the extension point for side effects of delivered changes.
// Errors are logged and never fail the delivery.
type Handler interface {
	HandleComment(ctx context.Context, change Change, comment CommentValue) error
	HandleMedia(ctx context.Context, change Change) error
	HandlePageFeed(ctx context.Context, change Change) error
}

type ReceiverConfig struct {
	VerifyToken      string
	AppSecret        string
	RequireSignature bool
}

// Receiver verifies subscriptions and dispatches deliveries.
type Receiver struct {
	cfg     ReceiverConfig
	handler Handler
	log     *zap.Logger
}

// NewReceiver builds a receiver. A nil handler logs changes and does nothing else.
func NewReceiver(cfg ReceiverConfig, handler Handler, log *zap.Logger) *Receiver {
	if handler == nil {
		handler = LogHandler{Log: log}
	}
	return &Receiver{cfg: cfg, handler: handler, log: log}
}

// Verify answers the subscription handshake. It returns the challenge unchanged
// when mode is subscribe and the token matches. With no configured token every
// handshake fails.
func (r *Receiver) Verify(mode, token, challenge string) (string, error) {
	if r.cfg.VerifyToken == "" {
		r.log.Warn("webhook verification rejected: no verify token configured")
		return "", ErrVerificationFailed
	}
	if mode != ModeSubscribe || subtle.ConstantTimeCompare([]byte(token), []byte(r.cfg.VerifyToken)) != 1 {
		r.log.Warn("webhook verification failed", zap.String("mode", mode))
		return "", ErrVerificationFailed
	}
	r.log.Info("webhook verified")
	return challenge, nil
}

// SignatureRequired reports whether deliveries must carry a valid signature.
func (r *Receiver) SignatureRequired() bool {
	return r.cfg.RequireSignature
}

// VerifySignature checks an X-Hub-Signature-256 value ("sha256=<hex>") against
// the HMAC-SHA256 of body keyed with the app secret.
func (r *Receiver) VerifySignature(body []byte, header string) error {
	hexSum, ok := strings.CutPrefix(header, "sha256=")
	if !ok || hexSum == "" || r.cfg.AppSecret == "" {
		return ErrInvalidSignature
	}
	received, err := hex.DecodeString(hexSum)
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(r.cfg.AppSecret))
	mac.Write(body)
	if !hmac.Equal(received, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// Parse decodes a delivery and classifies every change once. Invalid JSON, a
// null body, and an entry or changes value of a known object that is not a
// list are errors. Anything else parses: unknown objects, entries that are not
// objects, changes that are not objects or have a non-string field, and odd
// time values.
func Parse(body []byte) (*Event, error) {
	trimmed := bytes.TrimSpace(body)
	if !json.Valid(trimmed) {
		return nil, malformed(errors.New("body is not valid JSON"))
	}
	if bytes.Equal(trimmed, []byte("null")) {
		return nil, malformed(errors.New("body is null"))
	}

	event := &Event{}
	if trimmed[0] != '{' {
		return event, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, malformed(err)
	}
	// A non-string object is just another unknown object.
	_ = json.Unmarshal(env.Object, &event.Object)
	if event.Object != ObjectInstagram && event.Object != ObjectPage {
		return event, nil
	}
	if len(env.Entry) == 0 || string(env.Entry) == "null" {
		return event, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(env.Entry, &entries); err != nil {
		return nil, malformed(err)
	}
	event.Entries = len(entries)

	for _, raw := range entries {
		var e entry
		if err := json.Unmarshal(raw, &e); err != nil {
			continue
		}
		changes, err := rawList(e.Changes)
		if err != nil {
			return nil, malformed(err)
		}

		entryID := entryIDString(e.ID)
		entryTime := unixTime(e.Time)
		for _, rc := range changes {
			ch := Change{
				Object:  event.Object,
				EntryID: entryID,
				Time:    entryTime,
			}
			var c change
			if err := json.Unmarshal(rc, &c); err != nil {
				ch.Value = rc
			} else {
				// A non-string field stays empty and classifies as unknown.
				_ = json.Unmarshal(c.Field, &ch.Field)
				ch.Value = c.Value
			}
			ch.Kind = Classify(event.Object, ch.Field)
			event.Changes = append(event.Changes, ch)
		}
	}
	return event, nil
}

// rawList splits a JSON array into its elements. Absent and null are empty.
func rawList(raw json.RawMessage) ([]json.RawMessage, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// unixTime reads an entry time sent as an integer, in exponent form, or as a
// numeric string. Anything else is 0.
func unixTime(raw json.RawMessage) int64 {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f)
	}
	return 0
}

// Dispatch hands each change to the handler hook for its kind, in delivery
// order. Unknown changes are counted and dropped.
func (r *Receiver) Dispatch(ctx context.Context, event *Event) {
	for _, change := range event.Changes {
		webhookChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", change.Kind.String())))

		var err error
		switch change.Kind {
		case CommentChange:
			var comment CommentValue
			if len(change.Value) > 0 {
				if decodeErr := json.Unmarshal(change.Value, &comment); decodeErr != nil {
					r.log.Warn("comment change value not decodable", zap.Error(decodeErr))
				}
			}
			err = r.handler.HandleComment(ctx, change, comment)
		case MediaChange:
			err = r.handler.HandleMedia(ctx, change)
		case PageFeedChange:
			err = r.handler.HandlePageFeed(ctx, change)
		default:
			r.log.Debug("ignoring webhook change",
				zap.String("object", change.Object),
				zap.String("field", change.Field),
			)
			continue
		}

		if err != nil {
			r.log.Error("webhook handler failed",
				zap.String("kind", change.Kind.String()),
				zap.String("entry_id", change.EntryID),
				zap.Error(err),
			)
		}
	}
}

func malformed(err error) error {
	return apperr.Wrap(apperr.MalformedPayload, "Invalid webhook payload: "+err.Error(), err)
}

// entryIDString accepts entry ids sent as strings or numbers.
func entryIDString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
