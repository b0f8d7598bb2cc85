// Package config reads the client configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the client's runtime settings. Every field can be set
// through the environment; the CLI layers flag overrides on top.
type Config struct {
	// APIBaseURL is the root of the grocery manager REST API.
	APIBaseURL string `env:"API_BASE_URL" envDefault:"http://localhost:5000"`

	// RequestTimeout bounds every API call, including token refresh.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`

	// CredentialDBPath locates the SQLite database holding the token
	// pair. Empty means <user config dir>/grocery/credentials.db.
	CredentialDBPath string `env:"TOKEN_DB_PATH"`

	// JWTVerifyKey is the HS256 key used to verify access tokens
	// locally. Leaving it empty degrades authentication checks to
	// token presence only.
	JWTVerifyKey string `env:"JWT_VERIFY_KEY"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// MetricsAddress, when set, serves Prometheus metrics on that
	// address for debugging (e.g. "localhost:9090").
	MetricsAddress string `env:"METRICS_ADDRESS"`
}

// Parse reads the configuration from environment variables and fills
// in defaults.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.CredentialDBPath == "" {
		cfg.CredentialDBPath = defaultCredentialPath()
	}
	return cfg, nil
}

func defaultCredentialPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "grocery", "credentials.db")
}
