package server

import (
	"errors"
	"io"

	"audiofanout/internal/logging"
	"audiofanout/internal/types"
)

func (s *Server) onConnection(conn types.ClientConn) {
	s.log.Info("new client connected", logging.KeyClient, conn.String())

	if _, err := s.accept(conn); err != nil {
		s.log.Info("disconnecting client", logging.KeyClient, conn.String(), logging.KeyReason, err.Error())
		conn.Close()
		return
	}

	if s.capture == nil {
		if err := s.ensureStarted(); err != nil {
			s.log.Error("failed to start audio capture", logging.KeyError, err)
			s.fail(err)
		}
	}
}

// onClientReadiness handles the end of a client's read loop. Hang-up is
// checked before the read result.
func (s *Server) onClientReadiness(r readiness) {
	c, ok := s.clients[r.id]
	if !ok {
		return
	}

	switch {
	case c.conn.HungUp():
		s.remove(r.id, "hungup")
	case errors.Is(r.err, io.EOF):
		s.remove(r.id, "peer closed connection")
	default:
		s.remove(r.id, r.err.Error())
	}
}
