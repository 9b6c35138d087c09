package config

import (
	"fmt"
	"time"

	"audiofanout/internal/pcm"

	"github.com/spf13/viper"
)

const (
	DefaultSocketPath  = "/tmp/vnc-audio.sock"
	DefaultChannels    = 2
	DefaultRate        = 44100
	DefaultFormat      = "s16le"
	DefaultIdleTimeout = 60 * time.Second
	DefaultTimerPeriod = 5 * time.Second
)

// Config is the server configuration after flags, environment and the
// optional config file have been merged.
type Config struct {
	SocketPath  string        `mapstructure:"uds_path"`
	Info        bool          `mapstructure:"info"`
	Debug       bool          `mapstructure:"debug"`
	Trace       bool          `mapstructure:"trace"`
	LatencyMsec int           `mapstructure:"latency_msec"`
	Channels    int           `mapstructure:"channels"`
	Rate        int           `mapstructure:"rate"`
	Format      string        `mapstructure:"format"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	TimerPeriod time.Duration `mapstructure:"timer_period"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("uds_path", DefaultSocketPath)
	v.SetDefault("info", false)
	v.SetDefault("debug", false)
	v.SetDefault("trace", false)
	v.SetDefault("latency_msec", 0)
	v.SetDefault("channels", DefaultChannels)
	v.SetDefault("rate", DefaultRate)
	v.SetDefault("format", DefaultFormat)
	v.SetDefault("idle_timeout", DefaultIdleTimeout)
	v.SetDefault("timer_period", DefaultTimerPeriod)
}

// Load reads cfgFile (if set) and the AUDIOFANOUT_* environment on top of
// whatever is already bound into v, then validates the result.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix("AUDIOFANOUT")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogLevel returns the most verbose level requested. With no flag set the
// server only logs errors.
func (c *Config) LogLevel() string {
	switch {
	case c.Trace:
		return "trace"
	case c.Debug:
		return "debug"
	case c.Info:
		return "info"
	}
	return "quiet"
}

// Spec returns the sample layout. Validate has already checked the format.
func (c *Config) Spec() pcm.Spec {
	f, _ := pcm.ParseFormat(c.Format)
	return pcm.Spec{Format: f, Rate: c.Rate, Channels: c.Channels}
}

// Latency is the requested capture latency, zero meaning the backend default.
func (c *Config) Latency() time.Duration {
	return time.Duration(c.LatencyMsec) * time.Millisecond
}
