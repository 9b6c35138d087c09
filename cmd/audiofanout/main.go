package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"audiofanout/internal/audio"
	"audiofanout/internal/config"
	"audiofanout/internal/logging"
	"audiofanout/internal/server"
	"audiofanout/internal/transport"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const appName = "audiofanout"

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Share the default audio output as raw PCM over a UNIX socket",
	Long: `audiofanout records the monitor of the default PulseAudio sink and
copies the raw samples to every client connected to its UNIX socket.
Recording starts with the first client and stops after the socket has
been idle for a while.`,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	f.StringP("uds-path", "u", config.DefaultSocketPath, "UNIX socket path")
	f.BoolP("info", "i", false, "log connections and capture start/stop")
	f.BoolP("debug", "d", false, "log audio server and stream details")
	f.BoolP("trace", "t", false, "log every dropped or partial write")
	f.IntP("latency-msec", "l", 0, "capture latency in milliseconds (0 = audio server default)")
	f.IntP("channels", "c", config.DefaultChannels, "number of channels (1 to 32)")
	f.IntP("rate", "r", config.DefaultRate, "sample rate in Hz")
	f.StringP("format", "f", config.DefaultFormat, "sample format, e.g. s16le, s24le, float32le")
	f.Duration("idle-timeout", config.DefaultIdleTimeout, "stop recording after this long without clients")

	for key, flag := range map[string]string{
		"uds_path":     "uds-path",
		"info":         "info",
		"debug":        "debug",
		"trace":        "trace",
		"latency_msec": "latency-msec",
		"channels":     "channels",
		"rate":         "rate",
		"format":       "format",
		"idle_timeout": "idle-timeout",
	} {
		if err := v.BindPFlag(key, f.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(dumpCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}
	if err := logging.Init(cfg.LogLevel(), nil); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServer(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ln, err := transport.Listen(cfg.SocketPath)
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		SocketPath:  cfg.SocketPath,
		Spec:        cfg.Spec(),
		Latency:     cfg.Latency(),
		IdleTimeout: cfg.IdleTimeout,
		TimerPeriod: cfg.TimerPeriod,
	}, audio.NewPulseBackend(appName), ln)

	return srv.Run(ctx)
}
