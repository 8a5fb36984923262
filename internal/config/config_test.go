package config

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := AppConfig{
		HTTPAddress:         "0.0.0.0:8000",
		APIPrefix:           "/api",
		Environment:         "development",
		LogLevel:            "info",
		DatabaseDSN:         "smartnotes.db",
		DatabasePoolSize:    5,
		DatabaseMaxOverflow: 10,
		DatabasePoolTimeout: 30 * time.Second,
		CORSOrigins:         []string{},
		AuthSigningSecret:   "secret",
		AuthIssuer:          "smartnotes-auth",
		AuthCookieName:      "app_session",
		SentrySampleRate:    1.0,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("unexpected config (-want +got):\n%s", diff)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("SMARTNOTES_AUTH_SIGNING_SECRET", "from-env")
	t.Setenv("SMARTNOTES_DATABASE_DSN", "postgres://notes@db:5432/smartnotes")
	t.Setenv("SMARTNOTES_CORS_ORIGINS", "https://app.smartnotes.ai, http://localhost:5173 ,")
	t.Setenv("SMARTNOTES_API_PREFIX", "v1/")
	t.Setenv("SMARTNOTES_DEBUG", "true")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AuthSigningSecret != "from-env" {
		t.Fatalf("expected signing secret from env, got %q", cfg.AuthSigningSecret)
	}
	if cfg.DatabaseDSN != "postgres://notes@db:5432/smartnotes" {
		t.Fatalf("unexpected dsn %q", cfg.DatabaseDSN)
	}
	if diff := cmp.Diff([]string{"https://app.smartnotes.ai", "http://localhost:5173"}, cfg.CORSOrigins); diff != "" {
		t.Fatalf("unexpected origins (-want +got):\n%s", diff)
	}
	if cfg.APIPrefix != "/v1" {
		t.Fatalf("expected normalized prefix /v1, got %q", cfg.APIPrefix)
	}
	if !cfg.Debug {
		t.Fatalf("expected debug from env")
	}
}

func TestLoadRejectsInvalidConfiguration(t *testing.T) {
	testCases := []struct {
		name    string
		values  map[string]any
		message string
	}{
		{name: "missing-secret", values: map[string]any{}, message: "auth.signing_secret"},
		{name: "blank-dsn", values: map[string]any{"auth.signing_secret": "s", "database.dsn": "  "}, message: "database.dsn"},
		{name: "negative-pool", values: map[string]any{"auth.signing_secret": "s", "database.pool_size": -1}, message: "database.pool_size"},
		{name: "negative-overflow", values: map[string]any{"auth.signing_secret": "s", "database.max_overflow": -2}, message: "database.max_overflow"},
		{name: "sample-rate", values: map[string]any{"auth.signing_secret": "s", "sentry.sample_rate": 1.5}, message: "sentry.sample_rate"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			for key, value := range testCase.values {
				configViper.Set(key, value)
			}
			_, err := Load(configViper)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), testCase.message) {
				t.Fatalf("expected error mentioning %s, got %v", testCase.message, err)
			}
		})
	}
}

func TestLoadStorageSkipsAuthSettings(t *testing.T) {
	configViper := NewViper()
	configViper.Set("database.dsn", "migrations.db")

	cfg, err := LoadStorage(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatabaseDSN != "migrations.db" || cfg.AuthSigningSecret != "" {
		t.Fatalf("unexpected storage config %+v", cfg)
	}

	configViper.Set("database.pool_size", -3)
	if _, err := LoadStorage(configViper); err == nil || !strings.Contains(err.Error(), "database.pool_size") {
		t.Fatalf("expected pool size error, got %v", err)
	}
}
