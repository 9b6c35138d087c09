package server

import (
	"time"

	"audiofanout/internal/logging"
	"audiofanout/internal/types"

	"github.com/google/uuid"
)

// ClientID identifies a connected client for its whole lifetime.
type ClientID string

type client struct {
	id          ClientID
	conn        types.ClientConn
	connectedAt time.Time
	dropped     int64
}

// rxBufferSize bounds each read of inbound client bytes, which are discarded.
const rxBufferSize = 1024

// accept registers conn and starts watching it for hang-up.
func (s *Server) accept(conn types.ClientConn) (ClientID, error) {
	if s.sourceName == "" {
		return "", ErrRejected
	}

	id := ClientID(uuid.New().String())
	s.clients[id] = &client{id: id, conn: conn, connectedAt: s.now()}
	s.idleSince = time.Time{}

	go s.watch(id, conn)
	return id, nil
}

// remove deregisters the client and closes its connection. Removing an id
// that is not registered does nothing.
func (s *Server) remove(id ClientID, reason string) {
	c, ok := s.clients[id]
	if !ok {
		s.log.Debug("remove of unknown client", logging.KeyClient, string(id), logging.KeyReason, reason)
		return
	}

	delete(s.clients, id)
	c.conn.Close()

	s.log.Info("disconnecting client",
		logging.KeyClient, c.conn.String(),
		logging.KeyReason, reason,
		"connected_for", s.now().Sub(c.connectedAt).Round(time.Second),
		"dropped_frames", c.dropped)

	if len(s.clients) == 0 && s.capture != nil {
		s.idleSince = s.now()
	}
}

// forEach calls fn for every client. fn may remove the client it is given.
func (s *Server) forEach(fn func(id ClientID, c *client)) {
	for id, c := range s.clients {
		fn(id, c)
	}
}

// watch drains inbound bytes until the connection reports EOF or an error,
// then hands the result to the reactor.
func (s *Server) watch(id ClientID, conn types.ClientConn) {
	buf := make([]byte, rxBufferSize)
	for {
		if _, err := conn.Read(buf); err != nil {
			select {
			case s.readiness <- readiness{id: id, err: err}:
			case <-s.done:
			}
			return
		}
	}
}
