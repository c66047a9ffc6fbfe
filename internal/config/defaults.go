package config

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Kernel: KernelConfig{
			TickInterval:  10 * time.Millisecond,
			SendEvents:    true,
			FaultCooldown: 30 * time.Second,
			StartRetry: RetryConfig{
				InitialInterval: 100 * time.Millisecond,
				MaxInterval:     5 * time.Second,
				Multiplier:      2,
				MaxAttempts:     5,
			},
		},
		Events: EventsConfig{
			SystemChannel: "system",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Journal: JournalConfig{
			Path: ".cadence/journal.db",
		},
	}
}

// setDefaults registers every key so that environment overrides apply to it.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("kernel.tick_interval", cfg.Kernel.TickInterval)
	v.SetDefault("kernel.send_events", cfg.Kernel.SendEvents)
	v.SetDefault("kernel.fault_threshold", cfg.Kernel.FaultThreshold)
	v.SetDefault("kernel.fault_cooldown", cfg.Kernel.FaultCooldown)
	v.SetDefault("kernel.start_retry.enabled", cfg.Kernel.StartRetry.Enabled)
	v.SetDefault("kernel.start_retry.initial_interval", cfg.Kernel.StartRetry.InitialInterval)
	v.SetDefault("kernel.start_retry.max_interval", cfg.Kernel.StartRetry.MaxInterval)
	v.SetDefault("kernel.start_retry.multiplier", cfg.Kernel.StartRetry.Multiplier)
	v.SetDefault("kernel.start_retry.max_attempts", cfg.Kernel.StartRetry.MaxAttempts)

	v.SetDefault("events.system_channel", cfg.Events.SystemChannel)
	v.SetDefault("events.channels", cfg.Events.Channels)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.path", cfg.Logging.Path)

	v.SetDefault("journal.enabled", cfg.Journal.Enabled)
	v.SetDefault("journal.path", cfg.Journal.Path)
}
