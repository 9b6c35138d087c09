package config

import (
	"errors"
	"fmt"

	"audiofanout/internal/pcm"
)

// sun_path holds 108 bytes including the terminating NUL.
const maxSocketPathLen = 107

const maxRate = 384000

// maxChannels matches PA_CHANNELS_MAX.
const maxChannels = 32

// Validate checks the config and returns every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	if c.SocketPath == "" {
		errs = append(errs, errors.New("uds_path must not be empty"))
	} else if len(c.SocketPath) > maxSocketPathLen {
		errs = append(errs, fmt.Errorf("uds_path %q is longer than %d bytes", c.SocketPath, maxSocketPathLen))
	}

	if c.Channels < 1 || c.Channels > maxChannels {
		errs = append(errs, fmt.Errorf("channels must be between 1 and %d, got %d", maxChannels, c.Channels))
	}

	if c.Rate < 1 || c.Rate > maxRate {
		errs = append(errs, fmt.Errorf("rate must be between 1 and %d, got %d", maxRate, c.Rate))
	}

	if c.LatencyMsec < 0 {
		errs = append(errs, fmt.Errorf("latency_msec must not be negative, got %d", c.LatencyMsec))
	}

	if _, err := pcm.ParseFormat(c.Format); err != nil {
		errs = append(errs, fmt.Errorf("format: %w", err))
	}

	if c.IdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("idle_timeout must be positive, got %s", c.IdleTimeout))
	}
	if c.TimerPeriod <= 0 {
		errs = append(errs, fmt.Errorf("timer_period must be positive, got %s", c.TimerPeriod))
	}

	return errors.Join(errs...)
}
