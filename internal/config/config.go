// Package config handles application configuration from environment variables
// and an optional TOML file.
package config

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	DatabasePath     string
	LogLevel         string
	LogFile          string
	LogMaxSizeMB     int
	LogMaxBackups    int
	LogMaxAgeDays    int
	AllowedUsers     []int64
	MetricsAddr      string
	// InstanceIndex identifies this replica; only replica 0 polls the feed.
	// It comes from INSTANCE_INDEX, or from the HOSTNAME ordinal when
	// INSTANCE_FROM_HOSTNAME is true. Without either, the instance is primary.
	InstanceIndex int

	Feed Feed
}

// Feed configures the feed monitor. An empty URL disables it.
type Feed struct {
	URL             string
	Name            string
	DefaultCategory string
	DefaultFilter   string
	PollInterval    time.Duration
	StartupDelay    time.Duration
	FetchTimeout    time.Duration
	TickTimeout     time.Duration
	CacheCapacity   int
	FanoutCap       int
	MessageDelay    time.Duration
	DeliveryRetries int
}

// Defaults returns the configuration used before any file or environment
// overrides are applied.
func Defaults() *Config {
	return &Config{
		DatabasePath:  "./data/bot.db",
		LogLevel:      "info",
		LogMaxSizeMB:  64,
		LogMaxBackups: 3,
		LogMaxAgeDays: 7,
		Feed: Feed{
			Name:            "U2 BDMV",
			DefaultCategory: "BDMV",
			DefaultFilter:   ".*",
			PollInterval:    5 * time.Minute,
			StartupDelay:    5 * time.Second,
			FetchTimeout:    10 * time.Second,
			TickTimeout:     0, // no deadline; fan-out may outlast a poll interval
			CacheCapacity:   500,
			FanoutCap:       10,
			MessageDelay:    time.Second,
			DeliveryRetries: 2,
		},
	}
}

// Load reads configuration from defaults, the TOML file named by CONFIG_FILE
// (if any), and environment variables, in increasing precedence.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.TelegramBotToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString("TELEGRAM_BOT_TOKEN", &c.TelegramBotToken)
	setString("DATABASE_PATH", &c.DatabasePath)
	setString("LOG_LEVEL", &c.LogLevel)
	setString("LOG_FILE", &c.LogFile)
	setString("METRICS_ADDR", &c.MetricsAddr)

	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		users, err := parseUsers(raw)
		if err != nil {
			return fmt.Errorf("%w in ALLOWED_USERS", err)
		}
		c.AllowedUsers = users
	}

	if raw := os.Getenv("INSTANCE_INDEX"); raw != "" {
		idx, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid INSTANCE_INDEX %q: %w", raw, err)
		}
		c.InstanceIndex = idx
	} else if fromHostname, _ := strconv.ParseBool(os.Getenv("INSTANCE_FROM_HOSTNAME")); fromHostname {
		idx, ok := hostnameOrdinal(os.Getenv("HOSTNAME"))
		if !ok {
			return fmt.Errorf("INSTANCE_FROM_HOSTNAME is set but HOSTNAME %q has no ordinal suffix", os.Getenv("HOSTNAME"))
		}
		c.InstanceIndex = idx
	}

	f := &c.Feed
	setString("FEED_URL", &f.URL)
	setString("FEED_NAME", &f.Name)
	setString("FEED_DEFAULT_CATEGORY", &f.DefaultCategory)
	setString("DEFAULT_FILTER", &f.DefaultFilter)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"POLL_INTERVAL", &f.PollInterval},
		{"STARTUP_DELAY", &f.StartupDelay},
		{"FETCH_TIMEOUT", &f.FetchTimeout},
		{"TICK_TIMEOUT", &f.TickTimeout},
		{"MESSAGE_DELAY", &f.MessageDelay},
	}
	for _, d := range durations {
		if err := setDuration(d.key, os.Getenv(d.key), d.dst); err != nil {
			return err
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"LOG_MAX_SIZE_MB", &c.LogMaxSizeMB},
		{"LOG_MAX_BACKUPS", &c.LogMaxBackups},
		{"LOG_MAX_AGE_DAYS", &c.LogMaxAgeDays},
		{"CACHE_CAPACITY", &f.CacheCapacity},
		{"FANOUT_CAP", &f.FanoutCap},
		{"DELIVERY_RETRIES", &f.DeliveryRetries},
	}
	for _, n := range ints {
		if err := setInt(n.key, os.Getenv(n.key), n.dst); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validate() error {
	f := c.Feed
	switch {
	case f.PollInterval <= 0:
		return fmt.Errorf("poll interval must be positive, got %s", f.PollInterval)
	case f.StartupDelay < 0:
		return fmt.Errorf("startup delay must not be negative, got %s", f.StartupDelay)
	case f.FetchTimeout <= 0:
		return fmt.Errorf("fetch timeout must be positive, got %s", f.FetchTimeout)
	case f.TickTimeout < 0:
		return fmt.Errorf("tick timeout must not be negative, got %s", f.TickTimeout)
	case f.MessageDelay < 0:
		return fmt.Errorf("message delay must not be negative, got %s", f.MessageDelay)
	case f.CacheCapacity < 1:
		return fmt.Errorf("cache capacity must be at least 1, got %d", f.CacheCapacity)
	case f.FanoutCap < 1:
		return fmt.Errorf("fan-out cap must be at least 1, got %d", f.FanoutCap)
	case f.DeliveryRetries < 0:
		return fmt.Errorf("delivery retries must not be negative, got %d", f.DeliveryRetries)
	case c.LogMaxSizeMB < 0 || c.LogMaxBackups < 0 || c.LogMaxAgeDays < 0:
		return fmt.Errorf("log rotation settings must not be negative")
	case c.InstanceIndex < 0:
		return fmt.Errorf("instance index must not be negative, got %d", c.InstanceIndex)
	}
	if f.DefaultFilter != "" {
		if _, err := regexp.Compile("(?i)" + f.DefaultFilter); err != nil {
			return fmt.Errorf("invalid default filter: %w", err)
		}
	}
	return nil
}

// FeedEnabled reports whether a feed URL is configured.
func (c *Config) FeedEnabled() bool {
	return c.Feed.URL != ""
}

// IsPrimary reports whether this replica is the single active poller.
func (c *Config) IsPrimary() bool {
	return c.InstanceIndex == 0
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	return slices.Contains(c.AllowedUsers, userID)
}

func parseUsers(raw string) ([]int64, error) {
	var users []int64
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q: %w", s, err)
		}
		users = append(users, uid)
	}
	return users, nil
}

var ordinalRe = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?-(\d+)$`)

// hostnameOrdinal extracts the StatefulSet-style ordinal from names such as
// "notifier-2".
func hostnameOrdinal(hostname string) (int, bool) {
	m := ordinalRe.FindStringSubmatch(strings.TrimSpace(hostname))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	return n, true
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(key, raw string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	*dst = d
	return nil
}

func setInt(key, raw string, dst *int) error {
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	*dst = n
	return nil
}
