// Package config loads alert-radar settings from flags, environment variables
// (ALERT_RADAR_*) and an optional YAML file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// ALERT_RADAR_BURST_THRESHOLD.
const EnvPrefix = "ALERT_RADAR"

// Keys.
const (
	KeyConfigFile              = "config"
	KeyInput                   = "input"
	KeyYear                    = "year"
	KeyTimezone                = "timezone"
	KeyTop                     = "top"
	KeyBurstThreshold          = "burst.threshold"
	KeyBurstWindow             = "burst.window"
	KeyBurstAutoscale          = "burst.autoscale"
	KeyGrammarRequirePriority  = "grammar.require_priority"
	KeyGrammarRequireSignature = "grammar.require_signature"
	KeyOutputJSONL             = "output.jsonl"
	KeyOutputFindingsJSONL     = "output.findings_jsonl"
	KeyDatabaseDriver          = "database.driver"
	KeyDatabaseURL             = "database.url"
	KeyRedisURL                = "redis.url"
	KeyRedisChannel            = "redis.channel"
	KeyRedisTTL                = "redis.ttl"
	KeyFeedURL                 = "feed.url"
	KeyFeedSubscribe           = "feed.subscribe"
	KeyFeedIdleTimeout         = "feed.idle_timeout"
	KeyLabelsFile              = "labels.file"
	KeyLabelsTable             = "labels.table"
	KeyMetricsTextfile         = "metrics.textfile"
	KeyLogLevel                = "log.level"
	KeyLogFormat               = "log.format"
)

// Config holds all alert-radar configuration.
type Config struct {
	Input    string
	Year     int
	Timezone string
	Location *time.Location // nil when Timezone is empty
	Top      int

	Burst    BurstConfig
	Grammar  GrammarConfig
	Output   OutputConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Feed     FeedConfig
	Labels   LabelsConfig
	Metrics  MetricsConfig
	Log      LogConfig
}

// BurstConfig holds burst detection settings.
type BurstConfig struct {
	Threshold     int
	WindowSeconds int
	Autoscale     bool // scale the threshold down for small inputs (report only)
}

// GrammarConfig selects the line grammar variant.
type GrammarConfig struct {
	RequirePriority  bool
	RequireSignature bool
}

// OutputConfig holds JSONL output paths. Empty disables the output.
type OutputConfig struct {
	EventsJSONL   string
	FindingsJSONL string
}

// DatabaseConfig holds the optional SQL sink settings.
type DatabaseConfig struct {
	Driver string // postgres or sqlite3
	URL    string
}

// RedisConfig holds the optional burst publisher settings.
type RedisConfig struct {
	URL     string
	Channel string
	TTL     time.Duration
}

// FeedConfig holds the optional WebSocket line source settings.
type FeedConfig struct {
	URL         string
	Subscribe   string // JSON message sent after connecting
	IdleTimeout time.Duration
}

// LabelsConfig selects the address label source.
type LabelsConfig struct {
	File  string
	Table string
}

// MetricsConfig holds the Prometheus textfile path.
type MetricsConfig struct {
	Textfile string
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Format string
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyInput, "")
	v.SetDefault(KeyYear, time.Now().Year())
	v.SetDefault(KeyTimezone, "")
	v.SetDefault(KeyTop, 10)
	v.SetDefault(KeyBurstThreshold, 3)
	v.SetDefault(KeyBurstWindow, 300)
	v.SetDefault(KeyBurstAutoscale, true)
	v.SetDefault(KeyGrammarRequirePriority, false)
	v.SetDefault(KeyGrammarRequireSignature, false)
	v.SetDefault(KeyOutputJSONL, "")
	v.SetDefault(KeyOutputFindingsJSONL, "")
	v.SetDefault(KeyDatabaseDriver, "postgres")
	v.SetDefault(KeyDatabaseURL, "")
	v.SetDefault(KeyRedisURL, "")
	v.SetDefault(KeyRedisChannel, "alert-radar:bursts")
	v.SetDefault(KeyRedisTTL, 48*time.Hour)
	v.SetDefault(KeyFeedURL, "")
	v.SetDefault(KeyFeedSubscribe, "")
	v.SetDefault(KeyFeedIdleTimeout, 30*time.Second)
	v.SetDefault(KeyLabelsFile, "")
	v.SetDefault(KeyLabelsTable, "")
	v.SetDefault(KeyMetricsTextfile, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
}

// Load reads the optional config file and builds a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	if path := v.GetString(KeyConfigFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Input:    v.GetString(KeyInput),
		Year:     v.GetInt(KeyYear),
		Timezone: v.GetString(KeyTimezone),
		Top:      v.GetInt(KeyTop),
		Burst: BurstConfig{
			Threshold:     v.GetInt(KeyBurstThreshold),
			WindowSeconds: v.GetInt(KeyBurstWindow),
			Autoscale:     v.GetBool(KeyBurstAutoscale),
		},
		Grammar: GrammarConfig{
			RequirePriority:  v.GetBool(KeyGrammarRequirePriority),
			RequireSignature: v.GetBool(KeyGrammarRequireSignature),
		},
		Output: OutputConfig{
			EventsJSONL:   v.GetString(KeyOutputJSONL),
			FindingsJSONL: v.GetString(KeyOutputFindingsJSONL),
		},
		Database: DatabaseConfig{
			Driver: v.GetString(KeyDatabaseDriver),
			URL:    v.GetString(KeyDatabaseURL),
		},
		Redis: RedisConfig{
			URL:     v.GetString(KeyRedisURL),
			Channel: v.GetString(KeyRedisChannel),
			TTL:     v.GetDuration(KeyRedisTTL),
		},
		Feed: FeedConfig{
			URL:         v.GetString(KeyFeedURL),
			Subscribe:   v.GetString(KeyFeedSubscribe),
			IdleTimeout: v.GetDuration(KeyFeedIdleTimeout),
		},
		Labels: LabelsConfig{
			File:  v.GetString(KeyLabelsFile),
			Table: v.GetString(KeyLabelsTable),
		},
		Metrics: MetricsConfig{
			Textfile: v.GetString(KeyMetricsTextfile),
		},
		Log: LogConfig{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and resolves the time zone.
func (c *Config) Validate() error {
	if c.Year < 1 || c.Year > 9999 {
		return fmt.Errorf("year %d out of range", c.Year)
	}
	if c.Top < 1 {
		return fmt.Errorf("top must be >= 1, got %d", c.Top)
	}
	if c.Burst.Threshold < 1 {
		return fmt.Errorf("burst threshold must be >= 1, got %d", c.Burst.Threshold)
	}
	if c.Burst.WindowSeconds < 0 {
		return fmt.Errorf("burst window must be >= 0, got %d", c.Burst.WindowSeconds)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Feed.URL != "" && c.Input != "" {
		return fmt.Errorf("input and feed.url are mutually exclusive")
	}

	c.Location = nil
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("timezone %q: %w", c.Timezone, err)
		}
		c.Location = loc
	}
	return nil
}
