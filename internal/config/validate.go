package config

import (
	"errors"
	"fmt"

	"github.com/aristath/cadence/internal/logging"
)

var (
	ErrInvalidLogLevel  = errors.New("invalid log level")
	ErrInvalidLogFormat = errors.New("invalid log format")
	ErrNegativeInterval = errors.New("interval must not be negative")
	ErrInvalidRetry     = errors.New("invalid start retry policy")
	ErrEmptyChannel     = errors.New("channel name must not be empty")
)

// Validate checks cfg for values the runtime cannot honour.
func Validate(cfg *Config) error {
	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "text" {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, cfg.Logging.Format)
	}

	k := cfg.Kernel
	if k.TickInterval < 0 {
		return fmt.Errorf("%w: kernel.tick_interval", ErrNegativeInterval)
	}
	if k.FaultCooldown < 0 {
		return fmt.Errorf("%w: kernel.fault_cooldown", ErrNegativeInterval)
	}
	if r := k.StartRetry; r.Enabled {
		switch {
		case r.InitialInterval < 0 || r.MaxInterval < 0:
			return fmt.Errorf("%w: negative interval", ErrInvalidRetry)
		case r.Multiplier < 1:
			return fmt.Errorf("%w: multiplier %v is below 1", ErrInvalidRetry, r.Multiplier)
		case r.MaxAttempts < 0:
			return fmt.Errorf("%w: max_attempts %d", ErrInvalidRetry, r.MaxAttempts)
		}
	}

	if cfg.Events.SystemChannel == "" {
		return fmt.Errorf("%w: events.system_channel", ErrEmptyChannel)
	}
	for _, name := range cfg.Events.Channels {
		if name == "" {
			return fmt.Errorf("%w: events.channels", ErrEmptyChannel)
		}
	}
	return nil
}
