package batchgate

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Default values applied by New for zero-valued config fields.
const (
	DefaultBatchSize       = 10
	DefaultBatchTimeout    = 2 * time.Second
	DefaultCacheTTL        = 5 * time.Minute
	DefaultCleanupInterval = time.Minute
	DefaultTokenEstimate   = 500
	DefaultHistoryLimit    = 1000
	DefaultMaxPayloadBytes = 4096
	DefaultUrgentPriority  = 8
)

// Config is the top-level engine configuration.
type Config struct {
	// DailyTokenLimit is the token budget per calendar day. Required.
	DailyTokenLimit int64 `yaml:"daily_token_limit"`

	// BatchSize is the number of pending requests that triggers a flush.
	BatchSize int `yaml:"batch_size"`

	// BatchTimeout flushes a non-empty batch that has waited this long.
	BatchTimeout Duration `yaml:"batch_timeout"`

	// CacheTTL is how long a completed result is served for duplicates.
	CacheTTL Duration `yaml:"cache_ttl"`

	// CleanupInterval is how often expired cache entries are swept.
	CleanupInterval Duration `yaml:"cleanup_interval"`

	// CleanupSchedule optionally overrides CleanupInterval with a cron
	// expression ("*/5 * * * *", "@hourly", "@every 90s").
	CleanupSchedule string `yaml:"cleanup_schedule"`

	// DefaultTokenEstimate is used when a task type has too little history
	// to predict from.
	DefaultTokenEstimate int64 `yaml:"default_token_estimate"`

	// HistoryLimit caps the usage history kept for forecasting.
	HistoryLimit int `yaml:"history_limit"`

	// MaxRequestsPerSecond rate-gates admissions. Zero disables the gate.
	MaxRequestsPerSecond float64 `yaml:"max_requests_per_second"`

	// RateBurst is the burst allowance for the rate gate. Defaults to
	// ceil(MaxRequestsPerSecond) when zero.
	RateBurst int `yaml:"rate_burst"`

	Batching BatchingConfig `yaml:"batching"`
}

// BatchingConfig tunes which requests may wait in a batch window.
type BatchingConfig struct {
	// MaxPayloadBytes excludes large requests from batching.
	MaxPayloadBytes int `yaml:"max_payload_bytes"`

	// CriticalTaskTypes always execute immediately.
	CriticalTaskTypes []string `yaml:"critical_task_types"`

	// UrgentPriority is the priority at or above which a request skips
	// batching.
	UrgentPriority int `yaml:"urgent_priority"`
}

// Duration wraps time.Duration so YAML configs can say "250ms" or "2s", or
// give a bare number of seconds (0.05 means 50ms).
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("batchgate: invalid duration: expected scalar")
	}
	raw := value.Value
	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	return fmt.Errorf("batchgate: invalid duration %q", raw)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// LoadConfig reads and parses a YAML config file.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("batchgate: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("batchgate: parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the config for required fields and consistency. Zero
// values for optional fields are allowed; New fills in defaults.
func (c Config) Validate() error {
	if c.DailyTokenLimit <= 0 {
		return fmt.Errorf("batchgate: config: daily_token_limit must be positive")
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("batchgate: config: batch_size must not be negative")
	}
	if c.BatchTimeout < 0 {
		return fmt.Errorf("batchgate: config: batch_timeout must not be negative")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("batchgate: config: cache_ttl must not be negative")
	}
	if c.CleanupInterval < 0 {
		return fmt.Errorf("batchgate: config: cleanup_interval must not be negative")
	}
	if c.DefaultTokenEstimate < 0 {
		return fmt.Errorf("batchgate: config: default_token_estimate must not be negative")
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("batchgate: config: history_limit must not be negative")
	}
	if c.MaxRequestsPerSecond < 0 {
		return fmt.Errorf("batchgate: config: max_requests_per_second must not be negative")
	}
	if c.RateBurst < 0 {
		return fmt.Errorf("batchgate: config: rate_burst must not be negative")
	}
	if c.Batching.MaxPayloadBytes < 0 {
		return fmt.Errorf("batchgate: config: batching.max_payload_bytes must not be negative")
	}
	if c.CleanupSchedule != "" {
		if _, err := cron.ParseStandard(c.CleanupSchedule); err != nil {
			return fmt.Errorf("batchgate: config: invalid cleanup_schedule %q: %w", c.CleanupSchedule, err)
		}
	}
	return nil
}

// withDefaults returns a copy of the config with zero values replaced.
func (c Config) withDefaults() Config {
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchTimeout == 0 {
		c.BatchTimeout = Duration(DefaultBatchTimeout)
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = Duration(DefaultCacheTTL)
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = Duration(DefaultCleanupInterval)
	}
	if c.DefaultTokenEstimate == 0 {
		c.DefaultTokenEstimate = DefaultTokenEstimate
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.RateBurst == 0 && c.MaxRequestsPerSecond > 0 {
		c.RateBurst = int(c.MaxRequestsPerSecond + 0.999)
	}
	if c.Batching.MaxPayloadBytes == 0 {
		c.Batching.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	if c.Batching.UrgentPriority == 0 {
		c.Batching.UrgentPriority = DefaultUrgentPriority
	}
	return c
}
