//go:build unix

// Package transport is the Unix-socket side of the server: a listener that
// cleans up stale socket files and connections with single-attempt,
// non-blocking writes.
package transport

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"syscall"
	"time"

	"audiofanout/internal/types"

	"golang.org/x/sys/unix"
)

var _ types.ClientConn = (*Conn)(nil)

type Listener struct {
	ln   *net.UnixListener
	path string
}

// Listen binds a stream socket at path. A socket file left behind by a dead
// process is removed first; a live one makes the bind fail.
func Listen(path string) (*Listener, error) {
	if err := removeStale(path); err != nil {
		return nil, err
	}

	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}
	ln.SetUnlinkOnClose(true)

	return &Listener{ln: ln, path: path}, nil
}

func removeStale(path string) error {
	fi, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.Mode()&fs.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", path)
	}

	conn, err := net.DialTimeout("unix", path, time.Second)
	if err == nil {
		// Someone is serving on it; leave it for bind to report.
		conn.Close()
		return nil
	}
	if !errors.Is(err, unix.ECONNREFUSED) {
		return fmt.Errorf("probe %s: %w", path, err)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	return nil
}

func (l *Listener) Path() string { return l.path }

func (l *Listener) Accept() (types.ClientConn, error) {
	c, err := l.ln.AcceptUnix()
	if err != nil {
		return nil, err
	}
	conn, err := newConn(c)
	if err != nil {
		c.Close()
		return nil, err
	}
	return conn, nil
}

// Close stops accepting and unlinks the socket file.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Conn is an accepted client connection.
type Conn struct {
	c    *net.UnixConn
	raw  syscall.RawConn
	fd   int
	peer string
}

func newConn(c *net.UnixConn) (*Conn, error) {
	raw, err := c.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("syscall conn: %w", err)
	}

	conn := &Conn{c: c, raw: raw, fd: -1}
	if err := raw.Control(func(fd uintptr) {
		conn.fd = int(fd)
		conn.peer = peerString(int(fd))
	}); err != nil {
		return nil, fmt.Errorf("inspect socket: %w", err)
	}
	return conn, nil
}

// Write makes exactly one write(2) attempt on the non-blocking socket.
// A full send buffer returns (0, nil). A short count is returned as is.
func (c *Conn) Write(p []byte) (int, error) {
	var (
		n    int
		werr error
	)
	err := c.raw.Write(func(fd uintptr) bool {
		n, werr = unix.Write(int(fd), p)
		return true
	})
	if err != nil {
		return 0, err
	}
	if werr != nil {
		if errors.Is(werr, unix.EAGAIN) || errors.Is(werr, unix.EINTR) {
			return 0, nil
		}
		return 0, werr
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

func (c *Conn) Read(p []byte) (int, error) {
	return c.c.Read(p)
}

// HungUp polls the socket without waiting and reports POLLHUP or POLLERR.
func (c *Conn) HungUp() bool {
	hup := false
	err := c.raw.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, 0)
		if err != nil || n == 0 {
			return
		}
		hup = fds[0].Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0
	})
	return err == nil && hup
}

func (c *Conn) Close() error {
	return c.c.Close()
}

func (c *Conn) String() string {
	return fmt.Sprintf("%s %d", c.peer, c.fd)
}

// Dial connects to a server socket; used by the dump client.
func Dial(path string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return conn, nil
}
