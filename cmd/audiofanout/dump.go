package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"audiofanout/internal/dump"
	"audiofanout/internal/logging"
	"audiofanout/internal/transport"

	"github.com/spf13/cobra"
)

var (
	dumpDuration time.Duration
	dumpTimeout  time.Duration
)

var dumpCmd = &cobra.Command{
	Use:   "dump <file.wav>",
	Short: "Connect to a running server and save what it sends as WAV",
	Long: `dump connects to the server socket and records the stream into a WAV
file. The --format, --rate and --channels flags must match the server's.
Only integer sample formats can be saved.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDump(cmd.Context(), args[0])
	},
}

func init() {
	dumpCmd.Flags().DurationVar(&dumpDuration, "duration", 10*time.Second, "how long to record")
	dumpCmd.Flags().DurationVar(&dumpTimeout, "dial-timeout", 2*time.Second, "timeout for connecting to the socket")
}

func runDump(ctx context.Context, path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.L("dump")

	conn, err := transport.Dial(cfg.SocketPath, dumpTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := dump.NewWriter(f, cfg.Spec())
	if err != nil {
		return err
	}

	if err := conn.SetReadDeadline(time.Now().Add(dumpDuration)); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	log.Info("recording", "path", path, "spec", cfg.Spec().String(), "duration", dumpDuration)

	_, err = io.Copy(w, conn)
	if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
		w.Close()
		return fmt.Errorf("read stream: %w", err)
	}
	if err := w.Close(); err != nil {
		return err
	}

	log.Info("recording saved", "path", path, "frames", w.Frames())
	return f.Sync()
}
