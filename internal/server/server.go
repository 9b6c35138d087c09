package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"audiofanout/internal/logging"
	"audiofanout/internal/pcm"
	"audiofanout/internal/types"
)

var (
	// ErrCaptureUnavailable means the audio source is not known yet.
	ErrCaptureUnavailable = errors.New("capture unavailable: audio source not resolved")
	// ErrRejected is returned for clients arriving before the source is known.
	ErrRejected = errors.New("connection to audio server not ready yet")

	ErrBackendFailed     = errors.New("audio server connection failed")
	ErrBackendTerminated = errors.New("audio server connection terminated")
	ErrStreamFailed      = errors.New("audio stream failed")
)

// Config holds all server configuration.
type Config struct {
	SocketPath  string
	Spec        pcm.Spec
	Latency     time.Duration // zero means the backend default
	IdleTimeout time.Duration
	TimerPeriod time.Duration

	// Now is the clock used for idle accounting. Defaults to time.Now,
	// whose readings carry the monotonic clock.
	Now func() time.Time
}

// Listener is the accepting side of the client transport.
type Listener interface {
	Accept() (types.ClientConn, error)
	Close() error
}

type readiness struct {
	id  ClientID
	err error
}

type frameStats struct {
	frames  int64
	bytes   int64
	dropped int64
	partial int64
}

// Server owns every piece of mutable state. All of it is touched only from
// the goroutine running Run; helper goroutines talk to it over channels.
type Server struct {
	cfg      Config
	backend  types.AudioBackend
	listener Listener
	log      *slog.Logger
	now      func() time.Time

	state      types.ContextState
	sourceName string
	capture    types.CaptureStream
	captureGen uint64
	idleSince  time.Time
	clients    map[ClientID]*client
	stats      frameStats

	accepted  chan types.ClientConn
	acceptErr chan error
	readiness chan readiness
	done      chan struct{}
	doneOnce  sync.Once

	fatal error
}

func New(cfg Config, backend types.AudioBackend, listener Listener) *Server {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Server{
		cfg:       cfg,
		backend:   backend,
		listener:  listener,
		log:       logging.L("server"),
		now:       now,
		state:     types.ContextUnconnected,
		clients:   make(map[ClientID]*client),
		accepted:  make(chan types.ClientConn),
		acceptErr: make(chan error, 1),
		readiness: make(chan readiness, 16),
		done:      make(chan struct{}),
	}
}

// Run drives the server until ctx is cancelled (returns nil) or a fatal
// condition occurs (returns the cause). Resources are released before it
// returns in either case.
func (s *Server) Run(ctx context.Context) error {
	s.backend.Connect()
	go s.acceptLoop()

	timer := time.NewTimer(s.cfg.TimerPeriod)

	s.log.Info("server ready, waiting connections",
		"path", s.cfg.SocketPath, "spec", s.cfg.Spec.String())

	err := s.loop(ctx, timer)
	s.shutdown(timer)
	return err
}

func (s *Server) loop(ctx context.Context, timer *time.Timer) error {
	for {
		select {
		case <-ctx.Done():
			s.log.Info("termination requested, shutting down")
			return nil
		case ev := <-s.backend.Events():
			s.onBackendEvent(ev)
		case f := <-s.backend.Frames():
			s.onFrame(f)
		case conn := <-s.accepted:
			s.onConnection(conn)
		case err := <-s.acceptErr:
			s.fail(fmt.Errorf("accept: %w", err))
		case r := <-s.readiness:
			s.onClientReadiness(r)
		case <-timer.C:
			s.onTimer()
			timer.Reset(s.cfg.TimerPeriod)
		}

		if s.fatal != nil {
			s.log.Error("fatal error, shutting down", logging.KeyError, s.fatal)
			return s.fatal
		}
	}
}

// fail records the first fatal error; the loop exits after the current
// callback returns.
func (s *Server) fail(err error) {
	if s.fatal == nil {
		s.fatal = err
	}
}

func (s *Server) onTimer() {
	s.evaluateIdle(s.now())

	if s.capture == nil {
		return
	}
	args := []any{
		"clients", len(s.clients),
		"frames", s.stats.frames,
		"bytes", s.stats.bytes,
		"dropped", s.stats.dropped,
		"partial", s.stats.partial,
	}
	if d, ok := s.backend.(interface{ Dropped() int64 }); ok {
		args = append(args, "backend_dropped", d.Dropped())
	}
	s.log.Debug("audio stats", args...)
	s.stats = frameStats{}
}

func (s *Server) onBackendEvent(ev types.BackendEvent) {
	switch ev.Kind {
	case types.EventContextState:
		s.onContextState(ev.Context, ev.Err)
	case types.EventSourceResolved:
		s.sourceName = ev.Source
		s.log.Debug("using audio server source", "source", ev.Source)
	case types.EventSourceFailed:
		s.log.Error("failed to query default source", logging.KeyError, ev.Err)
		s.fail(fmt.Errorf("%w: query default source: %w", ErrBackendFailed, ev.Err))
	case types.EventStreamState:
		s.onStreamState(ev)
	}
}

func (s *Server) onContextState(state types.ContextState, err error) {
	prev := s.state
	s.state = state

	switch state {
	case types.ContextUnconnected, types.ContextConnecting, types.ContextAuthorizing, types.ContextSettingName:
		s.log.Debug("audio server context", "from", prev.String(), "to", state.String())
	case types.ContextReady:
		s.log.Info("audio server connection established")
		s.backend.QueryDefaultSource()
	case types.ContextTerminated:
		s.log.Error("audio server connection terminated")
		s.fail(ErrBackendTerminated)
	default:
		s.log.Error("audio server connection error", logging.KeyError, err)
		if err != nil {
			s.fail(fmt.Errorf("%w: %w", ErrBackendFailed, err))
		} else {
			s.fail(ErrBackendFailed)
		}
	}
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case s.acceptErr <- err:
			case <-s.done:
			}
			return
		}

		select {
		case s.accepted <- conn:
		case <-s.done:
			conn.Close()
			return
		}
	}
}

func (s *Server) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// shutdown releases resources in dependency order.
func (s *Server) shutdown(timer *time.Timer) {
	timer.Stop()
	s.closeDone()

	for id, c := range s.clients {
		c.conn.Close()
		delete(s.clients, id)
	}

	if s.capture != nil {
		s.capture.Stop()
		s.capture = nil
		s.idleSince = time.Time{}
	}

	s.backend.Close()

	if err := s.listener.Close(); err != nil {
		s.log.Debug("close listener", logging.KeyError, err)
	}

	s.log.Info("server stopped")
}
