package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMetaNotConfigured is returned by MetaConfig.Validate when any of the
// app credentials needed for the connect flow is missing.
var ErrMetaNotConfigured = errors.New("Meta app credentials not configured")

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Meta       MetaConfig
	Publish    PublishConfig
	Webhook    WebhookConfig
	Session    SessionConfig
	Encryption EncryptionConfig
	TLS        TLSConfig
	Telemetry  TelemetryConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	AllowedHosts []string
}

type DatabaseConfig struct {
	Driver      string // postgres or sqlite
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	SQLitePath  string
	AutoMigrate bool
}

type MetaConfig struct {
	AppID              string
	AppSecret          string
	RedirectURI        string
	WebhookVerifyToken string
	GraphVersion       string
	GraphBaseURL       string
	DialogBaseURL      string
	RequestsPerSecond  float64
	Burst              int
	Timeout            time.Duration
}

// PublishConfig controls the gap between media container creation and publish.
// PollAttempts of zero disables status polling and leaves only the settle delay.
type PublishConfig struct {
	SettleDelay     time.Duration
	PollAttempts    int
	PollInterval    time.Duration
	PollMaxInterval time.Duration
}

type WebhookConfig struct {
	RequireSignature bool
}

type SessionConfig struct {
	JWTSecret string
}

type EncryptionConfig struct {
	Key string
}

type TLSConfig struct {
	Enabled      bool
	CertPath     string
	KeyPath      string
	RedirectHTTP bool
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	MetricsPort  string
}

type LogConfig struct {
	Level       string
	Environment string
}

// Validate reports whether the app credentials required by the connect flow are present.
func (m MetaConfig) Validate() error {
	if m.AppID == "" || m.AppSecret == "" || m.RedirectURI == "" {
		return ErrMetaNotConfigured
	}
	return nil
}

// Load reads configuration from the environment. When CONFIG_FILE points at a
// YAML file of KEY: value pairs, those values act as defaults that real
// environment variables override.
func Load() (*Config, error) {
	src := envSource{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		overlay, err := readOverlay(path)
		if err != nil {
			return nil, err
		}
		src.overlay = overlay
	}

	dbPort, err := strconv.Atoi(src.getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	graphRPS, err := strconv.ParseFloat(src.getEnv("GRAPH_RPS", "5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid GRAPH_RPS: %w", err)
	}
	graphBurst, err := strconv.Atoi(src.getEnv("GRAPH_BURST", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid GRAPH_BURST: %w", err)
	}
	graphTimeout, err := time.ParseDuration(src.getEnv("GRAPH_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid GRAPH_TIMEOUT: %w", err)
	}

	settleDelay, err := time.ParseDuration(src.getEnv("PUBLISH_SETTLE_DELAY", "2s"))
	if err != nil {
		return nil, fmt.Errorf("invalid PUBLISH_SETTLE_DELAY: %w", err)
	}
	pollAttempts, err := strconv.Atoi(src.getEnv("PUBLISH_POLL_ATTEMPTS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid PUBLISH_POLL_ATTEMPTS: %w", err)
	}
	if pollAttempts < 0 {
		return nil, fmt.Errorf("PUBLISH_POLL_ATTEMPTS must not be negative")
	}
	pollInterval, err := time.ParseDuration(src.getEnv("PUBLISH_POLL_INTERVAL", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid PUBLISH_POLL_INTERVAL: %w", err)
	}
	pollMaxInterval, err := time.ParseDuration(src.getEnv("PUBLISH_POLL_MAX_INTERVAL", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid PUBLISH_POLL_MAX_INTERVAL: %w", err)
	}

	// Parse allowed hosts (comma-separated list)
	var allowedHosts []string
	for _, host := range strings.Split(src.getEnv("ALLOWED_HOSTS", ""), ",") {
		host = strings.TrimSpace(host)
		if host != "" {
			allowedHosts = append(allowedHosts, host)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         src.getEnv("PORT", "8080"),
			Host:         src.getEnv("HOST", "0.0.0.0"),
			AllowedHosts: allowedHosts,
		},
		Database: DatabaseConfig{
			Driver:      strings.ToLower(src.getEnv("DB_DRIVER", "postgres")),
			Host:        src.getEnv("DB_HOST", "localhost"),
			Port:        dbPort,
			User:        src.getEnv("DB_USER", "codenetic"),
			Password:    src.getEnv("DB_PASSWORD", ""),
			DBName:      src.getEnv("DB_NAME", "codenetic"),
			SSLMode:     src.getEnv("DB_SSLMODE", "disable"),
			SQLitePath:  src.getEnv("SQLITE_PATH", "codenetic.db"),
			AutoMigrate: src.getBoolEnv("DB_AUTO_MIGRATE", false),
		},
		Meta: MetaConfig{
			AppID:              src.getEnv("META_APP_ID", ""),
			AppSecret:          src.getEnv("META_APP_SECRET", ""),
			RedirectURI:        src.getEnv("META_REDIRECT_URI", ""),
			WebhookVerifyToken: src.getEnv("META_WEBHOOK_VERIFY_TOKEN", ""),
			GraphVersion:       src.getEnv("META_GRAPH_VERSION", "v19.0"),
			GraphBaseURL:       src.getEnv("META_GRAPH_BASE_URL", "https://graph.facebook.com"),
			DialogBaseURL:      src.getEnv("META_DIALOG_BASE_URL", "https://www.facebook.com"),
			RequestsPerSecond:  graphRPS,
			Burst:              graphBurst,
			Timeout:            graphTimeout,
		},
		Publish: PublishConfig{
			SettleDelay:     settleDelay,
			PollAttempts:    pollAttempts,
			PollInterval:    pollInterval,
			PollMaxInterval: pollMaxInterval,
		},
		Webhook: WebhookConfig{
			RequireSignature: src.getBoolEnv("WEBHOOK_REQUIRE_SIGNATURE", false),
		},
		Session: SessionConfig{
			JWTSecret: src.getEnv("SESSION_JWT_SECRET", ""),
		},
		Encryption: EncryptionConfig{
			Key: src.getEnv("ENCRYPTION_KEY", ""),
		},
		TLS: TLSConfig{
			Enabled:      src.getBoolEnv("TLS_ENABLED", false),
			CertPath:     src.getEnv("TLS_CERT_PATH", ""),
			KeyPath:      src.getEnv("TLS_KEY_PATH", ""),
			RedirectHTTP: src.getBoolEnv("TLS_REDIRECT_HTTP", false),
		},
		Telemetry: TelemetryConfig{
			Enabled:      src.getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  src.getEnv("OTEL_SERVICE_NAME", "codenetic-api"),
			OTLPEndpoint: src.getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  src.getEnv("METRICS_PORT", "9090"),
		},
		Log: LogConfig{
			Level:       src.getEnv("LOG_LEVEL", "info"),
			Environment: src.getEnv("APP_ENV", "development"),
		},
	}

	// Validate required fields
	if cfg.Session.JWTSecret == "" {
		return nil, fmt.Errorf("SESSION_JWT_SECRET is required")
	}
	if cfg.Encryption.Key == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len(cfg.Encryption.Key) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}
	switch cfg.Database.Driver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Database.Driver)
	}
	if cfg.Webhook.RequireSignature && cfg.Meta.AppSecret == "" {
		return nil, fmt.Errorf("META_APP_SECRET is required when WEBHOOK_REQUIRE_SIGNATURE=true")
	}

	// Validate TLS configuration
	if cfg.TLS.Enabled {
		if cfg.TLS.CertPath == "" {
			return nil, fmt.Errorf("TLS_CERT_PATH is required when TLS_ENABLED=true")
		}
		if cfg.TLS.KeyPath == "" {
			return nil, fmt.Errorf("TLS_KEY_PATH is required when TLS_ENABLED=true")
		}
	}

	return cfg, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func readOverlay(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	overlay := make(map[string]string)
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return overlay, nil
}

type envSource struct {
	overlay map[string]string
}

func (s envSource) getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value, ok := s.overlay[key]; ok && value != "" {
		return value
	}
	return defaultValue
}

func (s envSource) getBoolEnv(key string, defaultValue bool) bool {
	value := s.getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}
