// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	BotToken      string
	AllowedUserID int64
	HealthPort    string
	DBPath        string
	StagingDir    string
	SessionTTL    time.Duration
	EditInterval  time.Duration
	TransformBin  string // ffmpeg binary used for media transforms
	ProbeBin      string // ffprobe binary used for stream enumeration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		BotToken:      getEnv("BOT_TOKEN", ""),
		AllowedUserID: getEnvInt64("ALLOWED_USER_ID", 0),
		HealthPort:    getEnv("HEALTH_PORT", "8080"),
		DBPath:        getEnv("DB_PATH", "./data/filebutler.db"),
		StagingDir:    getEnv("STAGING_DIR", os.TempDir()),
		SessionTTL:    getEnvDuration("SESSION_TTL", 30*time.Minute),
		EditInterval:  getEnvDuration("EDIT_INTERVAL", time.Second),
		TransformBin:  getEnv("TRANSFORM_BIN", "ffmpeg"),
		ProbeBin:      getEnv("PROBE_BIN", "ffprobe"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN cannot be empty")
	}
	if c.AllowedUserID == 0 {
		return fmt.Errorf("ALLOWED_USER_ID cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.StagingDir == "" {
		return fmt.Errorf("STAGING_DIR cannot be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.EditInterval <= 0 {
		return fmt.Errorf("EDIT_INTERVAL must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
