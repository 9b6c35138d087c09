package server

import (
	"fmt"
	"time"

	"audiofanout/internal/logging"
	"audiofanout/internal/types"
)

// ensureStarted opens the capture stream if none is running.
func (s *Server) ensureStarted() error {
	if s.capture != nil {
		return nil
	}
	if s.sourceName == "" {
		return ErrCaptureUnavailable
	}

	s.captureGen++
	c, err := s.backend.StartCapture(s.captureGen, types.CaptureSpec{
		Source:  s.sourceName,
		Spec:    s.cfg.Spec,
		Latency: s.cfg.Latency,
	})
	if err != nil {
		return fmt.Errorf("start capture on %s: %w", s.sourceName, err)
	}

	s.capture = c
	s.idleSince = time.Time{}
	s.log.Info("audio stream recording started", "source", s.sourceName, "spec", s.cfg.Spec.String())
	return nil
}

// onFrame forwards a captured chunk. Empty chunks and chunks from a stream
// that has since been stopped are dropped.
func (s *Server) onFrame(f types.PCMFrame) {
	if len(f.Data) == 0 {
		return
	}
	if s.capture == nil || f.Gen != s.captureGen {
		logging.Trace(s.log, "discarding frame from stopped stream", "gen", f.Gen)
		return
	}
	s.broadcast(f.Data)
}

// evaluateIdle stops the capture once it has run without clients for
// longer than the idle timeout.
func (s *Server) evaluateIdle(now time.Time) {
	if len(s.clients) != 0 || s.capture == nil {
		return
	}
	if s.idleSince.IsZero() {
		s.idleSince = now
		return
	}

	idle := now.Sub(s.idleSince)
	if idle > s.cfg.IdleTimeout {
		s.log.Info(fmt.Sprintf("stopping audio recording: %d seconds without connected clients", int64(idle/time.Second)))
		s.stopCapture()
	}
}

func (s *Server) stopCapture() {
	if s.capture == nil {
		return
	}
	s.capture.Stop()
	s.capture = nil
	s.idleSince = time.Time{}
}

func (s *Server) onStreamState(ev types.BackendEvent) {
	current := s.capture != nil && ev.Gen == s.captureGen

	switch ev.Stream {
	case types.StreamCreating:
	case types.StreamReady:
		s.log.Debug("audio stream is ready", "gen", ev.Gen)
	case types.StreamFailed:
		if !current {
			s.log.Warn("stopped audio stream reported an error", "gen", ev.Gen, logging.KeyError, ev.Err)
			return
		}
		s.onStreamFailed(ev.Err)
	case types.StreamTerminated:
		s.onStreamTerminated(ev.Gen)
	}
}

// onStreamFailed is fatal: a broken stream means the audio server
// connection is unusable and there is no reconnection.
func (s *Server) onStreamFailed(err error) {
	s.log.Error("audio stream error", logging.KeyError, err)
	if err != nil {
		s.fail(fmt.Errorf("%w: %w", ErrStreamFailed, err))
		return
	}
	s.fail(ErrStreamFailed)
}

func (s *Server) onStreamTerminated(gen uint64) {
	s.log.Info("audio stream terminated", "gen", gen)
}
