package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"genelab/internal/storage"
)

// Env is the process configuration read from GENELAB_* variables. CLI flags
// take their defaults from it.
type Env struct {
	StoreKind     string `env:"GENELAB_STORE"`
	SQLitePath    string `env:"GENELAB_SQLITE_PATH" envDefault:"genelab.db"`
	BenchmarksDir string `env:"GENELAB_BENCHMARKS_DIR" envDefault:"benchmarks"`
	ExportsDir    string `env:"GENELAB_EXPORTS_DIR" envDefault:"exports"`
	LogLevel      string `env:"GENELAB_LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"GENELAB_LOG_FORMAT" envDefault:"text"`
	OTelEndpoint  string `env:"GENELAB_OTEL_ENDPOINT"`
	OTelEnabled   bool   `env:"GENELAB_OTEL_ENABLED" envDefault:"true"`
	HTTPAddr      string `env:"GENELAB_HTTP_ADDR" envDefault:":8080"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses Env and fills the store backend from the build default.
func Load() (Env, error) {
	var cfg Env
	if err := ParseEnv(&cfg); err != nil {
		return Env{}, err
	}
	if cfg.StoreKind == "" {
		cfg.StoreKind = storage.DefaultStoreKind()
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return Env{}, err
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return Env{}, fmt.Errorf("unsupported log format: %s", cfg.LogFormat)
	}
	return cfg, nil
}
