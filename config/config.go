// config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process configuration, read from the environment (and .env when present).
type Config struct {
	DatabaseURL      string   `env:"DATABASE_URL,required,notEmpty"`
	Port             string   `env:"PORT" envDefault:"5200"`
	GameServiceToken string   `env:"GAME_SERVICE_TOKEN,required,notEmpty"`
	AllowedOrigins   []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	AuthServiceURL   string   `env:"AUTH_SERVICE_URL"`
	LogLevel         string   `env:"LOG_LEVEL" envDefault:"info"`

	WaitingRoomTimeout time.Duration `env:"WAITING_ROOM_TIMEOUT" envDefault:"10m"`
	TurnTimeout        time.Duration `env:"TURN_TIMEOUT" envDefault:"0s"`
	EvictionInterval   time.Duration `env:"EVICTION_INTERVAL" envDefault:"1m"`
	ReconcileInterval  time.Duration `env:"RECONCILE_INTERVAL" envDefault:"15s"`

	Archive ArchiveConfig
}

// ArchiveConfig points at the R2 bucket that receives finished game logs.
type ArchiveConfig struct {
	Enabled         bool   `env:"ARCHIVE_ENABLED" envDefault:"false"`
	AccountID       string `env:"CLOUDFLARE_ACCOUNT_ID"`
	AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"R2_ACCESS_KEY_SECRET"`
	Bucket          string `env:"R2_BUCKET_NAME"`
	Endpoint        string `env:"R2_ENDPOINT"`
}

// Load reads .env if present, then parses the environment.
// The returned bool reports whether a .env file was found.
func Load() (Config, bool, error) {
	dotenv := godotenv.Load() == nil
	cfg, err := Parse()
	return cfg, dotenv, err
}

// Parse reads Config from the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	for i, origin := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(origin)
	}
	if cfg.Archive.Enabled && cfg.Archive.Bucket == "" {
		return Config{}, fmt.Errorf("parse env: R2_BUCKET_NAME is required when ARCHIVE_ENABLED is set")
	}
	if cfg.WaitingRoomTimeout <= 0 {
		return Config{}, fmt.Errorf("parse env: WAITING_ROOM_TIMEOUT must be positive")
	}
	return cfg, nil
}

// R2Endpoint returns the S3-compatible endpoint for the archive bucket.
func (a ArchiveConfig) R2Endpoint() string {
	if a.Endpoint != "" {
		return a.Endpoint
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", a.AccountID)
}
