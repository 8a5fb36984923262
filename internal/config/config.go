package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                 = "SMARTNOTES"
	defaultHTTPAddress        = "0.0.0.0:8000"
	defaultAPIPrefix          = "/api"
	defaultEnvironment        = "development"
	defaultDatabaseDSN        = "smartnotes.db"
	defaultPoolSize           = 5
	defaultMaxOverflow        = 10
	defaultPoolTimeoutSeconds = 30
	defaultLogLevel           = "info"
	defaultCookieName         = "app_session"
	defaultIssuer             = "smartnotes-auth"
	defaultSentrySampleRate   = 1.0
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress string
	APIPrefix   string
	Environment string
	Debug       bool
	LogLevel    string

	DatabaseDSN         string
	DatabasePoolSize    int
	DatabaseMaxOverflow int
	DatabasePoolTimeout time.Duration
	DatabaseEcho        bool

	CORSOrigins []string

	AuthSigningSecret string
	AuthIssuer        string
	AuthCookieName    string

	SentryDSN        string
	SentrySampleRate float64
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("api.prefix", defaultAPIPrefix)
	configViper.SetDefault("environment", defaultEnvironment)
	configViper.SetDefault("debug", false)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("database.pool_size", defaultPoolSize)
	configViper.SetDefault("database.max_overflow", defaultMaxOverflow)
	configViper.SetDefault("database.pool_timeout_seconds", defaultPoolTimeoutSeconds)
	configViper.SetDefault("database.echo", false)
	configViper.SetDefault("cors.origins", "")
	configViper.SetDefault("auth.issuer", defaultIssuer)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("sentry.dsn", "")
	configViper.SetDefault("sentry.sample_rate", defaultSentrySampleRate)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := parse(configViper)
	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// LoadStorage parses configuration for commands that only touch the database,
// so the auth settings may be absent.
func LoadStorage(configViper *viper.Viper) (AppConfig, error) {
	cfg := parse(configViper)
	if err := cfg.validateStorage(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func parse(configViper *viper.Viper) AppConfig {
	return AppConfig{
		HTTPAddress: configViper.GetString("http.address"),
		APIPrefix:   normalizePrefix(configViper.GetString("api.prefix")),
		Environment: configViper.GetString("environment"),
		Debug:       configViper.GetBool("debug"),
		LogLevel:    configViper.GetString("log.level"),

		DatabaseDSN:         strings.TrimSpace(configViper.GetString("database.dsn")),
		DatabasePoolSize:    configViper.GetInt("database.pool_size"),
		DatabaseMaxOverflow: configViper.GetInt("database.max_overflow"),
		DatabasePoolTimeout: time.Duration(configViper.GetInt("database.pool_timeout_seconds")) * time.Second,
		DatabaseEcho:        configViper.GetBool("database.echo"),

		CORSOrigins: splitList(configViper.GetString("cors.origins")),

		AuthSigningSecret: configViper.GetString("auth.signing_secret"),
		AuthIssuer:        configViper.GetString("auth.issuer"),
		AuthCookieName:    configViper.GetString("auth.cookie_name"),

		SentryDSN:        strings.TrimSpace(configViper.GetString("sentry.dsn")),
		SentrySampleRate: configViper.GetFloat64("sentry.sample_rate"),
	}
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AuthSigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if strings.TrimSpace(c.AuthCookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if c.SentrySampleRate < 0 || c.SentrySampleRate > 1 {
		return fmt.Errorf("sentry.sample_rate must be within [0, 1]: %v", c.SentrySampleRate)
	}
	return nil
}

func (c AppConfig) validateStorage() error {
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.DatabasePoolSize < 0 {
		return fmt.Errorf("database.pool_size must not be negative: %d", c.DatabasePoolSize)
	}
	if c.DatabaseMaxOverflow < 0 {
		return fmt.Errorf("database.max_overflow must not be negative: %d", c.DatabaseMaxOverflow)
	}
	return nil
}

func normalizePrefix(prefix string) string {
	trimmed := strings.Trim(strings.TrimSpace(prefix), "/")
	if trimmed == "" {
		return ""
	}
	return "/" + trimmed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
