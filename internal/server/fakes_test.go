package server

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"audiofanout/internal/pcm"
	"audiofanout/internal/types"
)

// recorder collects teardown steps across fakes so ordering can be checked.
type recorder struct {
	mu    sync.Mutex
	steps []string
}

func (r *recorder) add(step string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.steps = append(r.steps, step)
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.steps...)
}

type fakeConn struct {
	name    string
	hungUp  bool
	writeFn func(p []byte) (int, error)

	mu       sync.Mutex
	written  []byte
	writes   int
	closed   bool
	readErr  chan error
	stopRead chan struct{}
	once     sync.Once
	rec      *recorder
}

func newFakeConn(name string) *fakeConn {
	return &fakeConn{
		name:     name,
		readErr:  make(chan error, 1),
		stopRead: make(chan struct{}),
	}
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	n := len(p)
	if c.writeFn != nil {
		var err error
		n, err = c.writeFn(p)
		if err != nil {
			return 0, err
		}
	}
	c.written = append(c.written, p[:n]...)
	return n, nil
}

func (c *fakeConn) Read(p []byte) (int, error) {
	select {
	case err := <-c.readErr:
		return 0, err
	case <-c.stopRead:
		return 0, net.ErrClosed
	}
}

func (c *fakeConn) HungUp() bool { return c.hungUp }

func (c *fakeConn) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.stopRead)
		c.rec.add("close " + c.name)
	})
	return nil
}

func (c *fakeConn) String() string { return c.name }

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) bytesWritten() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.written)
}

type fakeCapture struct {
	gen     uint64
	stopped bool
	rec     *recorder
}

func (c *fakeCapture) Stop() {
	c.stopped = true
	c.rec.add("stop capture")
}

type fakeBackend struct {
	events chan types.BackendEvent
	frames chan types.PCMFrame

	mu        sync.Mutex
	connected bool
	queries   int
	starts    []*fakeCapture
	specs     []types.CaptureSpec
	startErr  error
	closed    bool
	rec       *recorder
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		events: make(chan types.BackendEvent, 16),
		frames: make(chan types.PCMFrame, 16),
	}
}

func (b *fakeBackend) Connect() {
	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()
}

func (b *fakeBackend) Events() <-chan types.BackendEvent { return b.events }

func (b *fakeBackend) Frames() <-chan types.PCMFrame { return b.frames }

func (b *fakeBackend) QueryDefaultSource() {
	b.mu.Lock()
	b.queries++
	b.mu.Unlock()
}

func (b *fakeBackend) StartCapture(gen uint64, spec types.CaptureSpec) (types.CaptureStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.startErr != nil {
		return nil, b.startErr
	}
	c := &fakeCapture{gen: gen, rec: b.rec}
	b.starts = append(b.starts, c)
	b.specs = append(b.specs, spec)
	return c, nil
}

func (b *fakeBackend) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.rec.add("close backend")
}

func (b *fakeBackend) startCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.starts)
}

func (b *fakeBackend) queryCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queries
}

type fakeListener struct {
	conns  chan types.ClientConn
	done   chan struct{}
	once   sync.Once
	rec    *recorder
	closed bool
}

func newFakeListener() *fakeListener {
	return &fakeListener{conns: make(chan types.ClientConn), done: make(chan struct{})}
}

func (l *fakeListener) Accept() (types.ClientConn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *fakeListener) Close() error {
	l.once.Do(func() {
		l.closed = true
		close(l.done)
		l.rec.add("close listener")
	})
	return nil
}

// fakeClock is advanced by hand from the test goroutine.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) set(sec int) {
	c.t = time.Unix(1_700_000_000, 0).Add(time.Duration(sec) * time.Second)
}

type harness struct {
	srv      *Server
	backend  *fakeBackend
	listener *fakeListener
	clock    *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := &fakeClock{}
	clock.set(0)

	backend := newFakeBackend()
	listener := newFakeListener()
	srv := New(Config{
		SocketPath:  "/tmp/test.sock",
		Spec:        pcm.Spec{Format: pcm.S16LE, Rate: 44100, Channels: 2},
		IdleTimeout: 60 * time.Second,
		TimerPeriod: 5 * time.Second,
		Now:         clock.now,
	}, backend, listener)

	t.Cleanup(srv.closeDone)

	return &harness{srv: srv, backend: backend, listener: listener, clock: clock}
}

// ready walks the backend to the ready state and resolves the source.
func (h *harness) ready() {
	h.srv.onBackendEvent(types.BackendEvent{Kind: types.EventContextState, Context: types.ContextConnecting})
	h.srv.onBackendEvent(types.BackendEvent{Kind: types.EventContextState, Context: types.ContextReady})
	h.srv.onBackendEvent(types.BackendEvent{Kind: types.EventSourceResolved, Source: "sink.monitor"})
}

// connect delivers a new connection and returns its id.
func (h *harness) connect(t *testing.T, conn *fakeConn) ClientID {
	t.Helper()
	before := make(map[ClientID]bool, len(h.srv.clients))
	for id := range h.srv.clients {
		before[id] = true
	}
	h.srv.onConnection(conn)
	for id, c := range h.srv.clients {
		if !before[id] && c.conn == conn {
			return id
		}
	}
	t.Fatalf("client %s was not registered", conn.name)
	return ""
}

var errBroken = errors.New("broken pipe")
