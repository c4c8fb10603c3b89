package instagram

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"codenetic/internal/domain/linkedaccount"
	"codenetic/internal/infrastructure/graph"
	"codenetic/internal/shared/apperr"
	"codenetic/internal/shared/config"
)

var publishes, _ = meter.Int64Counter("instagram.publish.total",
	metric.WithDescription("Publish attempts by outcome"),
)

type PublishRequest struct {
	IGUserID  string
	MediaURL  string
	Caption   string
	MediaType string // IMAGE (default) or VIDEO
}

// PublishResult carries the ids of both phases. A failed publish may still
// return a result with CreationID set, but never with MediaID.
type PublishResult struct {
	MediaID    string
	CreationID string
}

// Publisher runs the two-phase container publish.
type Publisher struct {
	graph    graph.ClientInterface
	accounts *linkedaccount.Service
	cfg      config.PublishConfig
	log      *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewPublisher(graph graph.ClientInterface, accounts *linkedaccount.Service, cfg config.PublishConfig, log *zap.Logger) *Publisher {
	return &Publisher{
		graph:    graph,
		accounts: accounts,
		cfg:      cfg,
		log:      log,
		sleep:    sleepContext,
	}
}

// ParseMediaKind maps the request media type onto a container kind.
func ParseMediaKind(mediaType string) (graph.MediaKind, error) {
	switch strings.ToUpper(strings.TrimSpace(mediaType)) {
	case "", "IMAGE":
		return graph.MediaImage, nil
	case "VIDEO", "REELS":
		return graph.MediaVideo, nil
	default:
		return "", apperr.New(apperr.InvalidRequest, "Unsupported media_type "+mediaType)
	}
}

// Publish creates a media container, waits until Instagram has ingested it and
// publishes it. Neither phase is retried.
func (p *Publisher) Publish(ctx context.Context, userID string, req PublishRequest) (*PublishResult, error) {
	if userID == "" {
		return nil, apperr.New(apperr.Unauthenticated, "User not authenticated")
	}
	if req.IGUserID == "" || req.MediaURL == "" {
		return nil, apperr.New(apperr.InvalidRequest, "Instagram user ID and media URL are required")
	}
	kind, err := ParseMediaKind(req.MediaType)
	if err != nil {
		return nil, err
	}

	acc, err := p.accounts.GetConnected(ctx, linkedaccount.Key{UserID: userID, ExternalID: req.IGUserID})
	if err != nil {
		p.record(ctx, "account_unavailable")
		return nil, storeError(err, "Failed to load Instagram account")
	}

	log := p.log.With(zap.String("user_id", userID), zap.String("ig_user_id", req.IGUserID))

	creationID, err := p.graph.CreateMediaContainer(ctx, req.IGUserID, acc.AccessToken, graph.MediaParams{
		MediaURL: req.MediaURL,
		Caption:  req.Caption,
		Kind:     kind,
	})
	if err != nil {
		p.record(ctx, "create_failed")
		log.Warn("media container creation failed", zap.Error(err))
		return nil, upstream(err, "Failed to create media container")
	}
	log.Info("media container created", zap.String("creation_id", creationID))

	// Once a container exists the publish is always attempted, even if the caller went away.
	ctx = context.WithoutCancel(ctx)
	result := &PublishResult{CreationID: creationID}

	if err := p.awaitContainer(ctx, creationID, acc.AccessToken); err != nil {
		p.record(ctx, "not_ready")
		log.Warn("media container not publishable", zap.String("creation_id", creationID), zap.Error(err))
		return result, err
	}

	mediaID, err := p.graph.PublishContainer(ctx, req.IGUserID, acc.AccessToken, creationID)
	if err != nil {
		p.record(ctx, "publish_failed")
		log.Warn("media publish failed", zap.String("creation_id", creationID), zap.Error(err))
		return result, upstream(err, "Failed to publish media")
	}

	p.record(ctx, "published")
	log.Info("media published", zap.String("media_id", mediaID))

	result.MediaID = mediaID
	return result, nil
}

// awaitContainer waits the settle delay, then polls the container status with
// exponential backoff until it is publishable or the attempts run out.
func (p *Publisher) awaitContainer(ctx context.Context, containerID, token string) error {
	if err := p.sleep(ctx, p.cfg.SettleDelay); err != nil {
		return apperr.Wrap(apperr.Internal, "Publish interrupted", err)
	}
	if p.cfg.PollAttempts == 0 {
		return nil
	}

	interval := p.cfg.PollInterval
	for attempt := 1; ; attempt++ {
		status, detail, err := p.graph.GetContainerStatus(ctx, containerID, token)
		if err != nil {
			return upstream(err, "Failed to check media container status")
		}

		switch status {
		case graph.ContainerFinished, graph.ContainerPublished:
			return nil
		case graph.ContainerError, graph.ContainerExpired:
			msg := detail
			if msg == "" {
				msg = "Media container " + strings.ToLower(string(status))
			}
			return apperr.New(apperr.Upstream, msg)
		}

		if attempt >= p.cfg.PollAttempts {
			return apperr.New(apperr.Upstream, "media container not ready")
		}
		if err := p.sleep(ctx, interval); err != nil {
			return apperr.Wrap(apperr.Internal, "Publish interrupted", err)
		}
		interval *= 2
		if p.cfg.PollMaxInterval > 0 && interval > p.cfg.PollMaxInterval {
			interval = p.cfg.PollMaxInterval
		}
	}
}

func (p *Publisher) record(ctx context.Context, outcome string) {
	publishes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
