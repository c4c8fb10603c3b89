package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"codenetic/internal/domain/instagram"
	"codenetic/internal/domain/linkedaccount"
	"codenetic/internal/domain/webhook"
	"codenetic/internal/infrastructure/crypto"
	"codenetic/internal/infrastructure/graph"
	"codenetic/internal/infrastructure/postgres"
	"codenetic/internal/infrastructure/sqlite"
	httphandlers "codenetic/internal/interfaces/http"
	"codenetic/internal/shared/auth"
	"codenetic/internal/shared/config"
)

// store is the database behind the linked account repository.
type store interface {
	PingContext(ctx context.Context) error
	Close() error
}

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB store

	// Handlers
	InstagramHandler *httphandlers.InstagramHandler
	WebhookHandler   *httphandlers.WebhookHandler
	HealthHandler    *httphandlers.HealthHandler

	// Auth
	Sessions *auth.SessionVerifier
}

// NewDependencies initializes all application dependencies.
func NewDependencies(cfg *config.Config, log *zap.Logger) (*Dependencies, error) {
	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		return nil, err
	}

	db, repo, err := openLinkedAccounts(cfg.Database, encryptor, log)
	if err != nil {
		return nil, err
	}

	accounts := linkedaccount.NewService(repo)

	graphClient := graph.NewClient(graph.Config{
		BaseURL:           cfg.Meta.GraphBaseURL,
		Version:           cfg.Meta.GraphVersion,
		AppID:             cfg.Meta.AppID,
		AppSecret:         cfg.Meta.AppSecret,
		RequestsPerSecond: cfg.Meta.RequestsPerSecond,
		Burst:             cfg.Meta.Burst,
		Timeout:           cfg.Meta.Timeout,
	})
	oauth := auth.NewFacebookOAuthProvider(auth.FacebookOAuthConfig{
		AppID:         cfg.Meta.AppID,
		AppSecret:     cfg.Meta.AppSecret,
		RedirectURI:   cfg.Meta.RedirectURI,
		GraphBaseURL:  cfg.Meta.GraphBaseURL,
		DialogBaseURL: cfg.Meta.DialogBaseURL,
		Version:       cfg.Meta.GraphVersion,
	})

	connector := instagram.NewConnector(oauth, graphClient, accounts, cfg.Meta, log.Named("connect"))
	publisher := instagram.NewPublisher(graphClient, accounts, cfg.Publish, log.Named("publish"))

	receiver := webhook.NewReceiver(webhook.ReceiverConfig{
		VerifyToken:      cfg.Meta.WebhookVerifyToken,
		AppSecret:        cfg.Meta.AppSecret,
		RequireSignature: cfg.Webhook.RequireSignature,
	}, nil, log.Named("webhook"))

	if cfg.Meta.WebhookVerifyToken == "" {
		log.Warn("META_WEBHOOK_VERIFY_TOKEN is empty, webhook subscriptions will be refused")
	}

	return &Dependencies{
		DB:               db,
		InstagramHandler: httphandlers.NewInstagramHandler(connector, publisher, accounts, log.Named("http")),
		WebhookHandler:   httphandlers.NewWebhookHandler(receiver, log.Named("http")),
		HealthHandler:    httphandlers.NewHealthHandler(db, log.Named("health")),
		Sessions:         auth.NewSessionVerifier(cfg.Session.JWTSecret),
	}, nil
}

// openLinkedAccounts connects to the configured driver and returns the
// repository on top of it.
func openLinkedAccounts(cfg config.DatabaseConfig, encryptor *crypto.Encryptor, log *zap.Logger) (store, linkedaccount.Repository, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Connected to database", zap.String("driver", "sqlite"), zap.String("path", cfg.SQLitePath))
		return db, sqlite.NewLinkedAccountRepository(db, encryptor), nil

	case "postgres":
		db, err := postgres.New(cfg.ConnectionString())
		if err != nil {
			return nil, nil, err
		}
		log.Info("Connected to database", zap.String("driver", "postgres"), zap.String("host", cfg.Host))

		if cfg.AutoMigrate {
			if err := postgres.Migrate(db, log); err != nil {
				db.Close()
				return nil, nil, err
			}
		}
		return db, postgres.NewLinkedAccountRepository(db, encryptor), nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
