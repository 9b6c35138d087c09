package server

import (
	"audiofanout/internal/logging"
)

// broadcast offers frame to every client exactly once. A client whose
// socket is full misses this frame; nothing is queued or retried.
func (s *Server) broadcast(frame []byte) {
	s.stats.frames++
	s.stats.bytes += int64(len(frame))

	s.forEach(func(id ClientID, c *client) {
		if c.conn.HungUp() {
			s.remove(id, "hungup")
			return
		}

		n, err := c.conn.Write(frame)
		switch {
		case err != nil:
			s.remove(id, "write failed: "+err.Error())
		case n == 0:
			c.dropped++
			s.stats.dropped++
			logging.Trace(s.log, "data dropped for client", logging.KeyClient, c.conn.String())
		case n < len(frame):
			s.stats.partial++
			logging.Trace(s.log, "partial write for client",
				logging.KeyClient, c.conn.String(), "written", n, "size", len(frame))
		}
	})
}
