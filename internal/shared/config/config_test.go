package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("SESSION_JWT_SECRET", "test-session-secret")
	t.Setenv("ENCRYPTION_KEY", "01234567890123456789012345678901") // 32 bytes
}

func TestLoad_Success(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Session.JWTSecret != "test-session-secret" {
		t.Errorf("Session.JWTSecret = %q, want %q", cfg.Session.JWTSecret, "test-session-secret")
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want %q", cfg.Server.Port, "8080")
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want %d", cfg.Database.Port, 5432)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Database.Driver = %q, want postgres", cfg.Database.Driver)
	}
	if cfg.Meta.GraphVersion != "v19.0" {
		t.Errorf("Meta.GraphVersion = %q, want v19.0", cfg.Meta.GraphVersion)
	}
	if cfg.Publish.SettleDelay != 2*time.Second {
		t.Errorf("Publish.SettleDelay = %v, want 2s", cfg.Publish.SettleDelay)
	}
	if cfg.Publish.PollAttempts != 5 {
		t.Errorf("Publish.PollAttempts = %d, want 5", cfg.Publish.PollAttempts)
	}
	if cfg.Webhook.RequireSignature {
		t.Error("Webhook.RequireSignature should default to false")
	}
}

func TestLoad_MissingSessionSecret(t *testing.T) {
	t.Setenv("SESSION_JWT_SECRET", "")
	t.Setenv("ENCRYPTION_KEY", "01234567890123456789012345678901")
	os.Unsetenv("SESSION_JWT_SECRET")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for missing SESSION_JWT_SECRET, got nil")
	}
}

func TestLoad_InvalidEncryptionKeyLength(t *testing.T) {
	t.Setenv("SESSION_JWT_SECRET", "test-secret")
	t.Setenv("ENCRYPTION_KEY", "too-short")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for invalid ENCRYPTION_KEY length, got nil")
	}
}

func TestLoad_InvalidDBPort(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("DB_PORT", "not-a-number")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for invalid DB_PORT, got nil")
	}
}

func TestLoad_UnsupportedDriver(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("DB_DRIVER", "mysql")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for unsupported DB_DRIVER, got nil")
	}
}

func TestLoad_NegativePollAttempts(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("PUBLISH_POLL_ATTEMPTS", "-1")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for negative PUBLISH_POLL_ATTEMPTS, got nil")
	}
}

func TestLoad_SignatureRequiresAppSecret(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("WEBHOOK_REQUIRE_SIGNATURE", "true")
	t.Setenv("META_APP_SECRET", "")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for signature check without app secret, got nil")
	}
}

func TestLoad_TLSValidation(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("TLS_ENABLED", "true")
	t.Setenv("TLS_CERT_PATH", "")
	t.Setenv("TLS_KEY_PATH", "")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for TLS enabled without cert path, got nil")
	}
}

func TestLoad_AllowedHosts(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("ALLOWED_HOSTS", "example.com, api.example.com, localhost:3000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if len(cfg.Server.AllowedHosts) != 3 {
		t.Errorf("AllowedHosts length = %d, want 3", len(cfg.Server.AllowedHosts))
	}
}

func TestLoad_ConfigFileOverlay(t *testing.T) {
	setRequiredEnvVars(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("META_APP_ID: \"file-app\"\nMETA_GRAPH_VERSION: \"v20.0\"\nPUBLISH_POLL_ATTEMPTS: \"0\"\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("META_GRAPH_VERSION", "v21.0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Meta.AppID != "file-app" {
		t.Errorf("Meta.AppID = %q, want value from file", cfg.Meta.AppID)
	}
	if cfg.Meta.GraphVersion != "v21.0" {
		t.Errorf("Meta.GraphVersion = %q, environment should override file", cfg.Meta.GraphVersion)
	}
	if cfg.Publish.PollAttempts != 0 {
		t.Errorf("Publish.PollAttempts = %d, want 0", cfg.Publish.PollAttempts)
	}
}

func TestLoad_ConfigFileMissing(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for missing CONFIG_FILE, got nil")
	}
}

func TestMetaConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		meta    MetaConfig
		wantErr bool
	}{
		{"complete", MetaConfig{AppID: "id", AppSecret: "secret", RedirectURI: "https://app/cb"}, false},
		{"missing app id", MetaConfig{AppSecret: "secret", RedirectURI: "https://app/cb"}, true},
		{"missing secret", MetaConfig{AppID: "id", RedirectURI: "https://app/cb"}, true},
		{"missing redirect", MetaConfig{AppID: "id", AppSecret: "secret"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.meta.Validate()
			if tt.wantErr && !errors.Is(err, ErrMetaNotConfigured) {
				t.Errorf("Validate() = %v, want ErrMetaNotConfigured", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestGetBoolEnv(t *testing.T) {
	src := envSource{overlay: map[string]string{"FROM_FILE": "yes"}}
	t.Setenv("BOOL_TRUE", "1")
	t.Setenv("BOOL_GARBAGE", "maybe")

	if !src.getBoolEnv("BOOL_TRUE", false) {
		t.Error("getBoolEnv(BOOL_TRUE) = false, want true")
	}
	if !src.getBoolEnv("BOOL_GARBAGE", true) {
		t.Error("getBoolEnv(BOOL_GARBAGE) should fall back to default")
	}
	if !src.getBoolEnv("FROM_FILE", false) {
		t.Error("getBoolEnv(FROM_FILE) should read overlay value")
	}
}
