package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// AppConfig holds application-level settings.
type AppConfig struct {
	LogLevel string `mapstructure:"log_level"`
}

// CacheConfig selects and configures the local cache backend.
type CacheConfig struct {
	Backend string `mapstructure:"backend"` // redis, badger, sqlite or memory
	TTL     string `mapstructure:"ttl"`     // duration string, e.g., "24h"
	Path    string `mapstructure:"path"`    // badger directory or sqlite file
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SourceConfig controls how column listings are fetched.
type SourceConfig struct {
	BaseURL       string  `mapstructure:"base_url"`
	Mode          string  `mapstructure:"mode"`    // api or html
	Timeout       string  `mapstructure:"timeout"` // per request, e.g., "10s"
	RetryMax      int     `mapstructure:"retry_max"`
	RatePerSecond float64 `mapstructure:"rate_per_second"` // 0 disables limiting
	Concurrency   int     `mapstructure:"concurrency"`     // remaining-page fan-out
	UserAgent     string  `mapstructure:"user_agent"`
}

// ServerConfig controls the HTTP service.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// WarmColumn is a column the warmer keeps in cache.
type WarmColumn struct {
	Owner  string `mapstructure:"owner"`
	Column string `mapstructure:"column"`
	Count  int    `mapstructure:"count"`
}

// WarmConfig controls the background cache warmer.
type WarmConfig struct {
	Interval string       `mapstructure:"interval"`
	Columns  []WarmColumn `mapstructure:"columns"`
}

// Config is the top-level configuration structure.
type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Source SourceConfig `mapstructure:"source"`
	Server ServerConfig `mapstructure:"server"`
	Warm   WarmConfig   `mapstructure:"warm"`
}

// FillDefaults applies default values if not provided.
func (c *Config) FillDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	if c.Cache.Backend == "" {
		c.Cache.Backend = "sqlite"
	}
	if c.Cache.TTL == "" {
		c.Cache.TTL = "24h"
	}
	if c.Cache.Path == "" {
		switch c.Cache.Backend {
		case "sqlite":
			c.Cache.Path = filepath.Join(xdg.CacheHome, "column-indexer", "cache.db")
		case "badger":
			c.Cache.Path = filepath.Join(xdg.CacheHome, "column-indexer", "badger")
		}
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Source.BaseURL == "" {
		c.Source.BaseURL = "https://blog.csdn.net"
	}
	c.Source.BaseURL = strings.TrimRight(c.Source.BaseURL, "/")
	c.Source.Mode = strings.ToLower(strings.TrimSpace(c.Source.Mode))
	if c.Source.Mode == "" {
		c.Source.Mode = "api"
	}
	if c.Source.Timeout == "" {
		c.Source.Timeout = "10s"
	}
	if c.Source.Concurrency <= 0 {
		c.Source.Concurrency = 8
	}
	if c.Source.UserAgent == "" {
		c.Source.UserAgent = "column-indexer/1.0"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Warm.Interval == "" {
		c.Warm.Interval = "1h"
	}
}

// CacheTTL parses Cache.TTL, falling back to 24h.
func (c *Config) CacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Cache.TTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// SourceTimeout parses Source.Timeout, falling back to 10s.
func (c *Config) SourceTimeout() time.Duration {
	d, err := time.ParseDuration(c.Source.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// WarmInterval parses Warm.Interval, falling back to 1h.
func (c *Config) WarmInterval() time.Duration {
	d, err := time.ParseDuration(c.Warm.Interval)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}
