package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"canlidoviz/internal/domain"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	EnvRedisPassword = "CANLIDOVIZ_REDIS_PASSWORD"
	EnvPostgresDSN   = "CANLIDOVIZ_POSTGRES_DSN"
)

type Config struct {
	App struct {
		// rebuild the session after the transport gives up reconnecting
		RestartOnExhausted bool `toml:"restart_on_exhausted"`
		RestartDelaySec    int  `toml:"restart_delay_sec"`
		StatsEverySec      int  `toml:"stats_every_sec"`
		Quiet              bool `toml:"quiet"`
		NoColor            bool `toml:"no_color"`
	} `toml:"app"`

	Stream struct {
		URL                    string   `toml:"url"`
		Reconnection           *bool    `toml:"reconnection"`
		ReconnectionDelayMs    int      `toml:"reconnection_delay_ms"`
		ReconnectionDelayMaxMs int      `toml:"reconnection_delay_max_ms"`
		ReconnectionAttempts   int      `toml:"reconnection_attempts"`
		Categories             []string `toml:"categories"`
		SubscribeTimeoutSec    int      `toml:"subscribe_timeout_sec"`
		DialTimeoutSec         int      `toml:"dial_timeout_sec"`
	} `toml:"stream"`

	Catalog struct {
		TimeoutSec int               `toml:"timeout_sec"`
		UserAgent  string            `toml:"user_agent"`
		URLs       map[string]string `toml:"urls"`
	} `toml:"catalog"`

	Symbols struct {
		// id -> symbol; TOML keys are strings
		Static map[string]string `toml:"static"`
	} `toml:"symbols"`

	Log struct {
		Level      string `toml:"level"`
		File       string `toml:"file"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
		MaxAgeDays int    `toml:"max_age_days"`
		Compress   bool   `toml:"compress"`
	} `toml:"log"`

	Storage struct {
		Enabled bool `toml:"enabled"`
		Buffer  int  `toml:"buffer"`

		SQLite struct {
			Enabled bool   `toml:"enabled"`
			Path    string `toml:"path"`
		} `toml:"sqlite"`

		Redis struct {
			Enabled    bool   `toml:"enabled"`
			Addr       string `toml:"addr"`
			Password   string `toml:"password"`
			DB         int    `toml:"db"`
			Prefix     string `toml:"prefix"`
			TTLSeconds int    `toml:"ttl_seconds"`
			Channel    string `toml:"channel"`
		} `toml:"redis"`

		Postgres struct {
			Enabled bool   `toml:"enabled"`
			DSN     string `toml:"dsn"`
		} `toml:"postgres"`
	} `toml:"storage"`

	categories domain.Category
	symbols    map[int]string
}

// Load reads the TOML file, then lets .env and the environment override secrets.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	_ = godotenv.Load()
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse is Load without the file; used for embedded or test configs.
func Parse(data string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(data, &cfg); err != nil {
		return nil, err
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv(EnvRedisPassword); ok {
		cfg.Storage.Redis.Password = v
	}
	if v, ok := os.LookupEnv(EnvPostgresDSN); ok {
		cfg.Storage.Postgres.DSN = v
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Stream.URL) == "" {
		cfg.Stream.URL = "https://s.canlidoviz.com/"
	}
	if cfg.Stream.Reconnection == nil {
		on := true
		cfg.Stream.Reconnection = &on
	}
	if cfg.Stream.ReconnectionDelayMs <= 0 {
		cfg.Stream.ReconnectionDelayMs = 1000
	}
	if cfg.Stream.ReconnectionDelayMaxMs <= 0 {
		cfg.Stream.ReconnectionDelayMaxMs = 5000
	}
	if cfg.Stream.ReconnectionAttempts == 0 {
		cfg.Stream.ReconnectionAttempts = 5
	}
	if len(cfg.Stream.Categories) == 0 {
		cfg.Stream.Categories = []string{"currency"}
	}
	if cfg.Stream.SubscribeTimeoutSec <= 0 {
		cfg.Stream.SubscribeTimeoutSec = 10
	}
	if cfg.Stream.DialTimeoutSec <= 0 {
		cfg.Stream.DialTimeoutSec = 10
	}
	if cfg.Catalog.TimeoutSec <= 0 {
		cfg.Catalog.TimeoutSec = 15
	}
	if cfg.App.RestartDelaySec <= 0 {
		cfg.App.RestartDelaySec = 30
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 10
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = 3
	}
	if cfg.Log.MaxAgeDays <= 0 {
		cfg.Log.MaxAgeDays = 28
	}
	if cfg.Storage.Buffer <= 0 {
		cfg.Storage.Buffer = 1024
	}
	if strings.TrimSpace(cfg.Storage.SQLite.Path) == "" {
		cfg.Storage.SQLite.Path = "data/canlidoviz.db"
	}
	if strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
		cfg.Storage.Redis.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.Storage.Redis.Prefix) == "" {
		cfg.Storage.Redis.Prefix = "canlidoviz"
	}
}

func validate(cfg *Config) error {
	cats, err := domain.ParseCategories(cfg.Stream.Categories)
	if err != nil {
		return fmt.Errorf("stream.categories: %w", err)
	}
	if cats == domain.CategoryNone {
		return errors.New("stream.categories is empty")
	}
	cfg.categories = cats

	syms, err := parseStatic(cfg.Symbols.Static)
	if err != nil {
		return err
	}
	cfg.symbols = syms

	for name := range cfg.Catalog.URLs {
		cat, err := domain.ParseCategory(name)
		if err != nil {
			return fmt.Errorf("catalog.urls: %w", err)
		}
		if cat == domain.CategoryAll {
			return errors.New("catalog.urls: pages are per category, \"all\" is not one")
		}
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q unknown", cfg.Log.Level)
	}

	if cfg.Storage.Enabled && cfg.Storage.Postgres.Enabled && strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
		return errors.New("storage.postgres.dsn empty but enabled")
	}
	return nil
}

func parseStatic(in map[string]string) (map[int]string, error) {
	out := make(map[int]string, len(in))
	for k, v := range in {
		id, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("symbols.static: id %q is not an integer", k)
		}
		sym := strings.TrimSpace(v)
		if sym == "" {
			return nil, fmt.Errorf("symbols.static: id %d has no symbol", id)
		}
		out[id] = sym
	}
	return out, nil
}

// Categories is the parsed stream.categories bitset.
func (c *Config) Categories() domain.Category { return c.categories }

// StaticSymbols is empty unless [symbols.static] was given.
func (c *Config) StaticSymbols() map[int]string { return c.symbols }

// CatalogURLs returns per-category page overrides.
func (c *Config) CatalogURLs() map[domain.Category]string {
	out := make(map[domain.Category]string, len(c.Catalog.URLs))
	for name, u := range c.Catalog.URLs {
		cat, err := domain.ParseCategory(name)
		if err != nil || strings.TrimSpace(u) == "" {
			continue
		}
		out[cat] = strings.TrimSpace(u)
	}
	return out
}

func (c *Config) ReconnectionDelay() time.Duration {
	return time.Duration(c.Stream.ReconnectionDelayMs) * time.Millisecond
}

func (c *Config) ReconnectionDelayMax() time.Duration {
	return time.Duration(c.Stream.ReconnectionDelayMaxMs) * time.Millisecond
}

func (c *Config) SubscribeTimeout() time.Duration {
	return time.Duration(c.Stream.SubscribeTimeoutSec) * time.Second
}

func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.Stream.DialTimeoutSec) * time.Second
}

func (c *Config) CatalogTimeout() time.Duration {
	return time.Duration(c.Catalog.TimeoutSec) * time.Second
}

func (c *Config) RestartDelay() time.Duration {
	return time.Duration(c.App.RestartDelaySec) * time.Second
}
