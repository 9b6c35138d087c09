//go:build !linux

package audio

import (
	"errors"

	"audiofanout/internal/types"
)

var errUnsupported = errors.New("pulseaudio capture not supported on this platform")

// PulseBackend reports a failed connection on platforms without PulseAudio
// support, which makes the server exit at startup.
type PulseBackend struct {
	events chan types.BackendEvent
	frames chan types.PCMFrame
}

func NewPulseBackend(appName string) *PulseBackend {
	return &PulseBackend{
		events: make(chan types.BackendEvent, 1),
		frames: make(chan types.PCMFrame),
	}
}

func (b *PulseBackend) Connect() {
	b.events <- types.BackendEvent{Kind: types.EventContextState, Context: types.ContextFailed, Err: errUnsupported}
}

func (b *PulseBackend) Events() <-chan types.BackendEvent { return b.events }

func (b *PulseBackend) Frames() <-chan types.PCMFrame { return b.frames }

func (b *PulseBackend) Dropped() int64 { return 0 }

func (b *PulseBackend) QueryDefaultSource() {}

func (b *PulseBackend) StartCapture(uint64, types.CaptureSpec) (types.CaptureStream, error) {
	return nil, errUnsupported
}

func (b *PulseBackend) Close() {}
