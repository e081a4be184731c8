package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DataDir    string `json:"data_dir"`
	LogLevel   string `json:"log_level"`
	ListenAddr string `json:"listen_addr"`
	Batch      struct {
		Capacity         int    `json:"capacity"`
		DebounceMs       int    `json:"debounce_ms"`
		FlushInterval    string `json:"flush_interval"`
		WriteConcurrency int    `json:"write_concurrency"`
		TimeoutSec       int    `json:"timeout_sec"`
	} `json:"batch"`
	Counters struct {
		TTLSec int `json:"ttl_sec"`
	} `json:"counters"`
	Behavior struct {
		Cap     int `json:"cap"`
		TTLDays int `json:"ttl_days"`
	} `json:"behavior"`
	Postgres struct {
		DSN string `json:"dsn"`
	} `json:"postgres"`
	Redis struct {
		Addr     string `json:"addr"`
		Password string `json:"password"`
		DB       int    `json:"db"`
	} `json:"redis"`
	Notify struct {
		Channel string `json:"channel"`
	} `json:"notify"`
	Telegram struct {
		Token  string `json:"token"`
		ChatID int64  `json:"chat_id"`
	} `json:"telegram"`
}

// Load reads the config file, writing defaults on first run, then applies
// environment overrides (highest precedence). A .env file next to the
// working directory is honored for local development.
func Load(path string) (*Config, error) {
	// Best effort; a missing .env is not an error.
	_ = godotenv.Load()

	cfg := &Config{
		DataDir:    filepath.Join(os.Getenv("HOME"), ".eventflow"),
		LogLevel:   "info",
		ListenAddr: ":8844",
	}
	cfg.Batch.Capacity = 100
	cfg.Batch.DebounceMs = 25
	cfg.Batch.FlushInterval = "30s"
	cfg.Batch.WriteConcurrency = 8
	cfg.Batch.TimeoutSec = 120
	cfg.Counters.TTLSec = 3600
	cfg.Behavior.Cap = 100
	cfg.Behavior.TTLDays = 30
	cfg.Notify.Channel = "analytics:batches"

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if dsn := os.Getenv("EVENTFLOW_POSTGRES_DSN"); dsn != "" {
		cfg.Postgres.DSN = dsn
	}
	if addr := os.Getenv("EVENTFLOW_REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("EVENTFLOW_REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}
	if addr := os.Getenv("EVENTFLOW_LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}

	return cfg, nil
}

// FlushInterval parses the configured flush interval, falling back to 30s.
func (c *Config) FlushInterval() time.Duration {
	d, err := time.ParseDuration(c.Batch.FlushInterval)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

func writeDefaults(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename default config: %w", err)
	}
	return nil
}
