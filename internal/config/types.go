package config

import "time"

// RetryConfig controls automatic restarts of tasks whose start hook failed.
type RetryConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	InitialInterval time.Duration `mapstructure:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval" yaml:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier" yaml:"multiplier"`
	MaxAttempts     int           `mapstructure:"max_attempts" yaml:"max_attempts"` // 0 retries forever
}

// KernelConfig configures the scheduler.
type KernelConfig struct {
	TickInterval   time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`     // 0 runs cycles back to back
	SendEvents     bool          `mapstructure:"send_events" yaml:"send_events"`         // Emit lifecycle events on the system channel
	FaultThreshold uint32        `mapstructure:"fault_threshold" yaml:"fault_threshold"` // Consecutive update failures before isolation, 0 disables
	FaultCooldown  time.Duration `mapstructure:"fault_cooldown" yaml:"fault_cooldown"`
	StartRetry     RetryConfig   `mapstructure:"start_retry" yaml:"start_retry"`
}

// EventsConfig configures the event bus.
type EventsConfig struct {
	SystemChannel string   `mapstructure:"system_channel" yaml:"system_channel"`
	Channels      []string `mapstructure:"channels" yaml:"channels,omitempty"` // Created at startup
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // json, text
	Path   string `mapstructure:"path" yaml:"path,omitempty"`
}

// JournalConfig configures the lifecycle journal.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// Config is the top-level configuration.
type Config struct {
	Kernel  KernelConfig  `mapstructure:"kernel" yaml:"kernel"`
	Events  EventsConfig  `mapstructure:"events" yaml:"events"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Journal JournalConfig `mapstructure:"journal" yaml:"journal"`
}
