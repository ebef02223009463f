package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func clearBackendEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "PORT", "ENVIRONMENT", "LOG_LEVEL", "REDIS_ADDR",
		"WOOCOMMERCE_URL", "WOOCOMMERCE_CONSUMER_KEY", "WOOCOMMERCE_CONSUMER_SECRET",
		"GCP_PROJECT", "BACKEND_SECRET_NAME",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearBackendEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("WOOCOMMERCE_URL", "https://shop.example.com/wp")
	t.Setenv("WOOCOMMERCE_CONSUMER_KEY", "ck_abc")
	t.Setenv("WOOCOMMERCE_CONSUMER_SECRET", "cs_def")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %q, want development default", cfg.Environment)
	}
	if cfg.Backend.BaseURL != "https://shop.example.com/wp" {
		t.Errorf("BaseURL = %q", cfg.Backend.BaseURL)
	}
	if !cfg.Backend.Configured() {
		t.Error("Configured() = false with both credentials set")
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
}

func TestLoadAppliesBackendURLFallback(t *testing.T) {
	clearBackendEnv(t)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Backend.BaseURL == "" {
		t.Fatal("no fallback base URL applied")
	}
	// Credentials have no fallback: absent creds mean unconfigured, not
	// a load failure.
	if cfg.Backend.Configured() {
		t.Error("Configured() = true with no credentials")
	}
}

func TestLoadFromFile(t *testing.T) {
	clearBackendEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"port": "7070",
		"log_level": "debug",
		"backend": {
			"base_url": "https://shop.example.com/",
			"consumer_key": "ck_file",
			"consumer_secret": "cs_file"
		}
	}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "7070" || cfg.LogLevel != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Backend.BaseURL != "https://shop.example.com" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", cfg.Backend.BaseURL)
	}
	if cfg.Backend.ConsumerKey != "ck_file" {
		t.Errorf("ConsumerKey = %q", cfg.Backend.ConsumerKey)
	}
}

func TestLoadRejectsBadBaseURL(t *testing.T) {
	clearBackendEnv(t)
	t.Setenv("WOOCOMMERCE_URL", "ftp://shop.example.com")

	if _, err := Load(context.Background()); err == nil {
		t.Error("Load() accepted non-http backend URL")
	}
}

func TestProductionRequiresProject(t *testing.T) {
	clearBackendEnv(t)
	t.Setenv("ENVIRONMENT", "production")

	if _, err := Load(context.Background()); err == nil {
		t.Error("Load() accepted production without GCP_PROJECT")
	}
}
