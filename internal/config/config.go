// Package config loads and validates all runtime configuration for the
// gateway.
//
// Ambient settings (port, log level, Redis URL, CORS, auth, tracing) are
// read from environment variables — preferred for containers — with a
// .env file loaded first when present. The connector policy file (the
// declarative routing rules, see policy.go) is a separate YAML document
// whose path is named by CONNECTORS_FILE.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config is the top-level ambient configuration container.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Default: 8080.
	Port int

	// LogLevel controls the minimum log level. One of: debug, info, warn, error.
	LogLevel string

	// SanitizeLogs is read from SANITIZE_LOGS. Default: true. The process
	// logger built by cmd/apibridge redacts secret-shaped values whether or
	// not it is set.
	SanitizeLogs bool

	// Mode selects live traffic, recording, or replay. One of: live, record, replay.
	Mode string

	// ConnectorsFile is the path to the connector policy YAML document.
	ConnectorsFile string

	// Redis holds the connection URL for the distributed rate limiter and
	// budget ledger. Empty means both fall back to in-memory state.
	Redis RedisConfig

	// CORSOrigins is the list of allowed CORS origins. ["*"] allows any origin.
	CORSOrigins []string

	// DisableDocs is read from DISABLE_DOCS. The gateway registers no API
	// documentation routes, so it has no effect.
	DisableDocs bool

	// Auth controls the optional ingress API-key middleware.
	Auth AuthConfig

	// MaxRequestSizeMB caps the inbound request body size. Default: 10.
	MaxRequestSizeMB int

	// PIIEncryptionKey seeds the PII firewall's reversible encrypt/decrypt action.
	// When empty, no PII firewall is built and no connector's pii_protection
	// is applied.
	PIIEncryptionKey string

	// Tracing controls the OpenTelemetry tracing hook.
	Tracing TracingConfig
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	URL string
}

// AuthConfig controls the ingress API-key authentication middleware.
// This middleware is an external collaborator per the routing pipeline —
// it runs ahead of the pipeline and is not one of its state machines.
type AuthConfig struct {
	Enabled    bool
	ValidKeys  []string
}

// TracingConfig controls the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled         bool
	OTLPEndpoint    string
}

// Load reads ambient configuration from environment variables, after
// loading a .env file in the working directory when one exists.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SANITIZE_LOGS", true)
	v.SetDefault("APIBRIDGE_MODE", "live")
	v.SetDefault("CONNECTORS_FILE", "connectors.yaml")
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("DISABLE_DOCS", false)
	v.SetDefault("AUTH_ENABLED", false)
	v.SetDefault("MAX_REQUEST_SIZE_MB", 10)
	v.SetDefault("OTEL_ENABLED", false)

	origins := splitCSV(v.GetString("ALLOWED_ORIGINS"))
	keys := splitCSV(v.GetString("VALID_API_KEYS"))

	cfg := &Config{
		Port:             v.GetInt("PORT"),
		LogLevel:         strings.ToLower(v.GetString("LOG_LEVEL")),
		SanitizeLogs:     v.GetBool("SANITIZE_LOGS"),
		Mode:             strings.ToLower(v.GetString("APIBRIDGE_MODE")),
		ConnectorsFile:   v.GetString("CONNECTORS_FILE"),
		Redis:            RedisConfig{URL: v.GetString("REDIS_URL")},
		CORSOrigins:      origins,
		DisableDocs:      v.GetBool("DISABLE_DOCS"),
		MaxRequestSizeMB: v.GetInt("MAX_REQUEST_SIZE_MB"),
		PIIEncryptionKey: v.GetString("PII_ENCRYPTION_KEY"),
		Auth: AuthConfig{
			Enabled:   v.GetBool("AUTH_ENABLED"),
			ValidKeys: keys,
		},
		Tracing: TracingConfig{
			Enabled:      v.GetBool("OTEL_ENABLED"),
			OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid LOG_LEVEL %q; must be one of: debug, info, warn, error", c.LogLevel)
	}

	switch c.Mode {
	case "live", "record", "replay":
	default:
		return fmt.Errorf("config: invalid APIBRIDGE_MODE %q; must be one of: live, record, replay", c.Mode)
	}

	if c.Auth.Enabled && len(c.Auth.ValidKeys) == 0 {
		return fmt.Errorf("config: AUTH_ENABLED=true requires at least one key in VALID_API_KEYS")
	}

	if c.MaxRequestSizeMB < 1 {
		return fmt.Errorf("config: MAX_REQUEST_SIZE_MB must be ≥ 1, got %d", c.MaxRequestSizeMB)
	}

	return nil
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loadDotEnv populates process env vars from a .env file when present.
func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s is a directory, expected a file", path)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}
