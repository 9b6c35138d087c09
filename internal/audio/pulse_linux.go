//go:build linux

package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"audiofanout/internal/logging"
	"audiofanout/internal/types"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

const (
	probeInterval = 5 * time.Second
	stopTimeout   = 2 * time.Second
	eventBacklog  = 32
)

// frameBacklog is shared by all clients. When it is full the newest chunk
// is dropped; the record callback never waits for the reactor.
const frameBacklog = 16

var errNotConnected = errors.New("pulse: not connected")

var (
	_ types.AudioBackend = (*PulseBackend)(nil)
	_ pulse.Writer       = (*frameWriter)(nil)
)

// PulseBackend talks to PulseAudio over its native protocol. Connection,
// queries and stream setup run on their own goroutines; results are posted
// to Events and Frames.
type PulseBackend struct {
	appName string
	log     *slog.Logger

	events chan types.BackendEvent
	frames chan types.PCMFrame
	done   chan struct{}
	wg     sync.WaitGroup

	mu     sync.Mutex
	client *pulse.Client
	sink   *pulse.Sink
	closed bool

	dropped atomic.Int64
}

func NewPulseBackend(appName string) *PulseBackend {
	return &PulseBackend{
		appName: appName,
		log:     logging.L("audio"),
		events:  make(chan types.BackendEvent, eventBacklog),
		frames:  make(chan types.PCMFrame, frameBacklog),
		done:    make(chan struct{}),
	}
}

func (b *PulseBackend) Events() <-chan types.BackendEvent { return b.events }

func (b *PulseBackend) Frames() <-chan types.PCMFrame { return b.frames }

// Dropped is the number of chunks discarded because the reactor was behind.
func (b *PulseBackend) Dropped() int64 { return b.dropped.Load() }

func (b *PulseBackend) post(ev types.BackendEvent) {
	select {
	case b.events <- ev:
	case <-b.done:
	}
}

func (b *PulseBackend) postContext(state types.ContextState, err error) {
	b.post(types.BackendEvent{Kind: types.EventContextState, Context: state, Err: err})
}

// Connect dials the server named by PULSE_SERVER (or the default one).
// The pulse client handles authorization and the client name during its
// handshake, so the states between connecting and ready are not reported.
func (b *PulseBackend) Connect() {
	b.postContext(types.ContextConnecting, nil)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		client, err := pulse.NewClient(pulse.ClientApplicationName(b.appName))
		if err != nil {
			b.postContext(types.ContextFailed, fmt.Errorf("pulse connect: %w", err))
			return
		}

		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			client.Close()
			return
		}
		b.client = client
		b.mu.Unlock()

		b.postContext(types.ContextReady, nil)

		b.wg.Add(1)
		go b.probe(client)
	}()
}

// probe periodically round-trips to the server so a dead connection is
// reported even while no capture is running.
func (b *PulseBackend) probe(client *pulse.Client) {
	defer b.wg.Done()

	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			if _, err := client.DefaultSink(); err != nil {
				b.postContext(types.ContextFailed, fmt.Errorf("pulse probe: %w", err))
				return
			}
		}
	}
}

// QueryDefaultSource resolves the monitor source of the default sink.
func (b *PulseBackend) QueryDefaultSource() {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()

	if client == nil {
		b.post(types.BackendEvent{Kind: types.EventSourceFailed, Err: errNotConnected})
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		sink, err := client.DefaultSink()
		if err != nil {
			b.post(types.BackendEvent{Kind: types.EventSourceFailed, Err: fmt.Errorf("default sink: %w", err)})
			return
		}

		b.mu.Lock()
		b.sink = sink
		b.mu.Unlock()

		b.log.Debug("default sink", "sink", sink.ID(), "description", sink.Name())
		b.post(types.BackendEvent{Kind: types.EventSourceResolved, Source: sink.ID() + ".monitor"})
	}()
}

// StartCapture opens a record stream on the default sink's monitor.
func (b *PulseBackend) StartCapture(gen uint64, spec types.CaptureSpec) (types.CaptureStream, error) {
	b.mu.Lock()
	client, sink, closed := b.client, b.sink, b.closed
	b.mu.Unlock()

	if closed || client == nil {
		return nil, errNotConnected
	}
	if sink == nil {
		return nil, fmt.Errorf("pulse: source %q not resolved", spec.Source)
	}

	opts, fragsize := recordOptions(sink, spec)
	b.log.Debug("audio stream buffer metrics", "maxlength", -1, "fragsize", fragsize)
	b.log.Debug("audio stream sample spec", "spec", spec.Spec.String(), "channel_map", fmt.Sprint(channelMap(spec.Spec.Channels)))

	c := &pulseCapture{stop: make(chan struct{})}
	w := &frameWriter{
		gen:     gen,
		format:  byte(spec.Spec.Format),
		frames:  b.frames,
		done:    c.stop,
		dropped: &b.dropped,
	}

	b.wg.Add(1)
	go b.runCapture(client, gen, c, w, opts)

	return c, nil
}

// recordOptions builds the record stream options for spec. fragsize is -1
// when the server picks the fragment size.
func recordOptions(sink *pulse.Sink, spec types.CaptureSpec) (opts []pulse.RecordOption, fragsize int) {
	opts = []pulse.RecordOption{
		pulse.RecordMonitor(sink),
		pulse.RecordSampleRate(spec.Spec.Rate),
		pulse.RecordChannels(channelMap(spec.Spec.Channels)),
	}

	fragsize = -1
	if spec.Latency > 0 {
		fragsize = spec.Spec.DurationToBytes(spec.Latency)
		opts = append(opts, pulse.RecordBufferFragmentSize(uint32(fragsize)))
	}
	return opts, fragsize
}

// surround is the ALSA channel order PulseAudio uses for 4, 5, 6 and 8
// channel devices.
var surround = proto.ChannelMap{
	proto.ChannelFrontLeft, proto.ChannelFrontRight,
	proto.ChannelRearLeft, proto.ChannelRearRight,
	proto.ChannelFrontCenter, proto.ChannelLFE,
	proto.ChannelLeftSide, proto.ChannelRightSide,
}

// channelMap returns the channel positions for n channels. Counts without a
// standard layout get front left/right followed by aux channels.
func channelMap(n int) proto.ChannelMap {
	switch n {
	case 1:
		return proto.ChannelMap{proto.ChannelMono}
	case 4, 5, 6, 8:
		return append(proto.ChannelMap(nil), surround[:n]...)
	}

	m := make(proto.ChannelMap, 0, n)
	for i := 0; i < n; i++ {
		switch i {
		case 0:
			m = append(m, proto.ChannelFrontLeft)
		case 1:
			m = append(m, proto.ChannelFrontRight)
		default:
			m = append(m, byte(proto.ChannelAux0+i-2))
		}
	}
	return m
}

func (b *PulseBackend) runCapture(client *pulse.Client, gen uint64, c *pulseCapture, w *frameWriter, opts []pulse.RecordOption) {
	defer b.wg.Done()

	stream, err := client.NewRecord(w, opts...)
	if err != nil {
		b.postStream(gen, types.StreamFailed, fmt.Errorf("record stream: %w", err))
		return
	}
	stream.Start()
	b.postStream(gen, types.StreamReady, nil)

	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			stream.Stop()
			stream.Close()
			b.postStream(gen, types.StreamTerminated, nil)
			return
		case <-b.done:
			stream.Stop()
			stream.Close()
			return
		case <-ticker.C:
			if err := stream.Error(); err != nil {
				stream.Close()
				b.postStream(gen, types.StreamFailed, err)
				return
			}
			if !stream.Running() {
				stream.Close()
				b.postStream(gen, types.StreamFailed, errors.New("record stream stopped by server"))
				return
			}
		}
	}
}

func (b *PulseBackend) postStream(gen uint64, state types.StreamState, err error) {
	b.post(types.BackendEvent{Kind: types.EventStreamState, Stream: state, Gen: gen, Err: err})
}

// Close stops any capture still running, then disconnects.
func (b *PulseBackend) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	client := b.client
	b.mu.Unlock()

	close(b.done)

	waited := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(stopTimeout):
		b.log.Warn("audio goroutines did not stop in time")
	}

	if client != nil {
		client.Close()
	}
}

type pulseCapture struct {
	stop chan struct{}
	once sync.Once
}

func (c *pulseCapture) Stop() {
	c.once.Do(func() { close(c.stop) })
}

// frameWriter implements pulse.Writer. Each chunk is copied into a frame
// and handed to the reactor; nothing is queued beyond the frames channel.
type frameWriter struct {
	gen     uint64
	format  byte
	frames  chan<- types.PCMFrame
	done    <-chan struct{}
	dropped *atomic.Int64
}

func (w *frameWriter) Write(data []byte) (int, error) {
	// An empty chunk is a gap in the record buffer.
	if len(data) == 0 {
		return 0, nil
	}

	f := types.PCMFrame{Gen: w.gen, Data: make([]byte, len(data))}
	copy(f.Data, data)

	select {
	case w.frames <- f:
	case <-w.done:
	default:
		w.dropped.Add(1)
	}
	return len(data), nil
}

func (w *frameWriter) Format() byte {
	return w.format
}
