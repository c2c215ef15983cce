// Package config loads pipeline configuration from the environment using
// env-tagged struct fields.
package config

import (
	"fmt"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/shirou/gopsutil/v3/cpu"
)

// Config is the top-level pipeline configuration.
type Config struct {
	DBDSN           string  `env:"ADT_DB_DSN"`
	Workers         int     `env:"ADT_WORKERS"`
	SpillDir        string  `env:"ADT_SPILL_DIR"`
	GraphWorkDir    string  `env:"ADT_GRAPH_WORK_DIR"`
	RateLimitRPS    float64 `env:"ADT_RATE_LIMIT_RPS"`
	ProgressSink    string  `env:"ADT_PROGRESS_SINK"`
	RedisAddr       string  `env:"ADT_REDIS_ADDR"`
	HTTPAddr        string  `env:"ADT_HTTP_ADDR"`
	JWTSecret       string  `env:"ADT_JWT_SECRET"`
	PathQueryWindow int     `env:"ADT_PATH_QUERY_WINDOW"`
	LogLevel        string  `env:"ADT_LOG_LEVEL"`
	LogFormat       string  `env:"ADT_LOG_FORMAT"`
}

// New returns a Config populated with defaults, mirroring New() in the
// teacher's config package.
func New() *Config {
	return &Config{
		Workers:      defaultWorkerCount(),
		SpillDir:     "./spill",
		GraphWorkDir: "./graphwork",
		RateLimitRPS: 0,
		ProgressSink:    "local",
		HTTPAddr:        "0.0.0.0:8080",
		PathQueryWindow: 1000,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load loads configuration from a .env file (if present) and the
// environment, applying envdecode overrides on top of the defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkerCount()
	}

	return cfg, nil
}

// defaultWorkerCount returns min(logical CPU count, 3), a bounded
// worker-pool size appropriate for one domain controller target.
func defaultWorkerCount() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		return 1
	}
	if n > 3 {
		return 3
	}
	return n
}
