// Package logging configures the process-wide slog handler.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Key constants for structured log fields.
const (
	KeyComponent = "component"
	KeyClient    = "client"
	KeyReason    = "reason"
	KeyError     = "error"
)

// LevelTrace sits below debug and carries per-frame chatter.
const LevelTrace = slog.Level(-8)

// output is the destination shared by every logger. Init swaps the writer
// underneath, so loggers taken with L before Init still follow it.
type output struct {
	mu sync.Mutex
	w  io.Writer
}

func (o *output) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.w.Write(p)
}

func (o *output) set(w io.Writer) {
	o.mu.Lock()
	o.w = w
	o.mu.Unlock()
}

var (
	level         = new(slog.LevelVar)
	sink          = &output{w: os.Stderr}
	defaultLogger = slog.New(newTextHandler(sink, level))
)

func init() {
	level.Set(slog.LevelError)
	slog.SetDefault(defaultLogger)
}

// newTextHandler renders LevelTrace as "TRACE" instead of "DEBUG-4".
func newTextHandler(w io.Writer, lvl slog.Leveler) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && len(groups) == 0 {
				if l, ok := a.Value.Any().(slog.Level); ok && l <= LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	})
}

// ParseLevel maps a verbosity name to a slog level.
// Valid names are "quiet", "error", "info", "debug" and "trace".
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quiet", "error", "":
		return slog.LevelError, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "trace":
		return LevelTrace, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// Init sets the verbosity and destination of every logger. A nil w means
// stderr.
func Init(name string, w io.Writer) error {
	lvl, err := ParseLevel(name)
	if err != nil {
		return err
	}
	if w == nil {
		w = os.Stderr
	}
	sink.set(w)
	level.Set(lvl)
	return nil
}

// L returns a logger tagged with the given component name.
func L(component string) *slog.Logger {
	return defaultLogger.With(slog.String(KeyComponent, component))
}

// Trace logs at LevelTrace.
func Trace(l *slog.Logger, msg string, args ...any) {
	l.Log(context.Background(), LevelTrace, msg, args...)
}
