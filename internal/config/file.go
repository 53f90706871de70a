package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig mirrors the TOML layout. Zero values leave the current
// setting untouched.
type fileConfig struct {
	TelegramBotToken string  `toml:"telegram_bot_token"`
	DatabasePath     string  `toml:"database_path"`
	LogLevel         string  `toml:"log_level"`
	LogFile          string  `toml:"log_file"`
	LogMaxSizeMB     int     `toml:"log_max_size_mb"`
	LogMaxBackups    int     `toml:"log_max_backups"`
	LogMaxAgeDays    int     `toml:"log_max_age_days"`
	AllowedUsers     []int64 `toml:"allowed_users"`
	MetricsAddr      string  `toml:"metrics_addr"`
	InstanceIndex    *int    `toml:"instance_index"`

	Feed struct {
		URL             string `toml:"url"`
		Name            string `toml:"name"`
		DefaultCategory string `toml:"default_category"`
		DefaultFilter   string `toml:"default_filter"`
		PollInterval    string `toml:"poll_interval"`
		StartupDelay    string `toml:"startup_delay"`
		FetchTimeout    string `toml:"fetch_timeout"`
		TickTimeout     string `toml:"tick_timeout"`
		CacheCapacity   int    `toml:"cache_capacity"`
		FanoutCap       int    `toml:"fanout_cap"`
		MessageDelay    string `toml:"message_delay"`
		DeliveryRetries *int   `toml:"delivery_retries"`
	} `toml:"feed"`
}

func (c *Config) applyFile(path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	overrideString(&c.TelegramBotToken, fc.TelegramBotToken)
	overrideString(&c.DatabasePath, fc.DatabasePath)
	overrideString(&c.LogLevel, fc.LogLevel)
	overrideString(&c.LogFile, fc.LogFile)
	overrideString(&c.MetricsAddr, fc.MetricsAddr)
	overrideInt(&c.LogMaxSizeMB, fc.LogMaxSizeMB)
	overrideInt(&c.LogMaxBackups, fc.LogMaxBackups)
	overrideInt(&c.LogMaxAgeDays, fc.LogMaxAgeDays)
	if len(fc.AllowedUsers) > 0 {
		c.AllowedUsers = fc.AllowedUsers
	}
	if fc.InstanceIndex != nil {
		c.InstanceIndex = *fc.InstanceIndex
	}

	f := &c.Feed
	overrideString(&f.URL, fc.Feed.URL)
	overrideString(&f.Name, fc.Feed.Name)
	overrideString(&f.DefaultCategory, fc.Feed.DefaultCategory)
	overrideString(&f.DefaultFilter, fc.Feed.DefaultFilter)

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"feed.poll_interval", fc.Feed.PollInterval, &f.PollInterval},
		{"feed.startup_delay", fc.Feed.StartupDelay, &f.StartupDelay},
		{"feed.fetch_timeout", fc.Feed.FetchTimeout, &f.FetchTimeout},
		{"feed.tick_timeout", fc.Feed.TickTimeout, &f.TickTimeout},
		{"feed.message_delay", fc.Feed.MessageDelay, &f.MessageDelay},
	}
	for _, d := range durations {
		if err := setDuration(d.key, d.raw, d.dst); err != nil {
			return err
		}
	}

	overrideInt(&f.CacheCapacity, fc.Feed.CacheCapacity)
	overrideInt(&f.FanoutCap, fc.Feed.FanoutCap)
	if fc.Feed.DeliveryRetries != nil {
		f.DeliveryRetries = *fc.Feed.DeliveryRetries
	}
	return nil
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
