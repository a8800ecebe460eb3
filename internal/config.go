package internal

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for the configuration surface
const (
	DefaultLookbackDays   = 30
	DefaultPollIntervalMS = 30000
	DefaultDBFileName     = "session-sync.db"
)

// Config holds the process configuration. It is read once at startup;
// changing it requires a restart.
type Config struct {
	DBPath       string
	ClaudeRoot   string
	OpenCodeRoot string
	LookbackDays int
	PollInterval time.Duration
}

// LoadConfig reads configuration from the environment, after loading a .env
// file when one exists in the working directory. Missing keys fall back to
// defaults rooted in the user's home directory.
func LoadConfig() (*Config, error) {
	// A missing .env file is not an error
	_ = godotenv.Load()

	cfg := &Config{
		DBPath:       os.Getenv("SESSION_SYNC_DB"),
		ClaudeRoot:   os.Getenv("CLAUDE_ROOT"),
		OpenCodeRoot: os.Getenv("OPENCODE_ROOT"),
		LookbackDays: DefaultLookbackDays,
		PollInterval: DefaultPollIntervalMS * time.Millisecond,
	}

	if v := os.Getenv("LOOKBACK_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			LogWarn("Ignoring invalid LOOKBACK_DAYS=%q", v)
		} else {
			cfg.LookbackDays = days
		}
	}
	if v := os.Getenv("POLL_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			LogWarn("Ignoring invalid POLL_INTERVAL_MS=%q", v)
		} else {
			cfg.PollInterval = time.Duration(ms) * time.Millisecond
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(home, ".session-sync", DefaultDBFileName)
	}
	if cfg.ClaudeRoot == "" {
		cfg.ClaudeRoot = filepath.Join(home, ".claude")
	}
	if cfg.OpenCodeRoot == "" {
		cfg.OpenCodeRoot = filepath.Join(home, ".local", "share", "opencode", "storage")
	}

	return cfg, nil
}

// Lookback returns the hard lower bound on how far back a scan may reach
func (c *Config) Lookback(now time.Time) time.Time {
	return now.AddDate(0, 0, -c.LookbackDays)
}
