package types

import (
	"time"

	"audiofanout/internal/pcm"
)

// PCMFrame is one chunk of captured audio, tagged with the generation of
// the capture that produced it.
type PCMFrame struct {
	Gen  uint64
	Data []byte
}

// ContextState is the state of the connection to the audio server.
type ContextState int

const (
	ContextUnconnected ContextState = iota
	ContextConnecting
	ContextAuthorizing
	ContextSettingName
	ContextReady
	ContextFailed
	ContextTerminated
)

func (s ContextState) String() string {
	switch s {
	case ContextUnconnected:
		return "unconnected"
	case ContextConnecting:
		return "connecting"
	case ContextAuthorizing:
		return "authorizing"
	case ContextSettingName:
		return "setting-name"
	case ContextReady:
		return "ready"
	case ContextFailed:
		return "failed"
	case ContextTerminated:
		return "terminated"
	}
	return "unknown"
}

// StreamState is the state of a capture stream.
type StreamState int

const (
	StreamCreating StreamState = iota
	StreamReady
	StreamFailed
	StreamTerminated
)

func (s StreamState) String() string {
	switch s {
	case StreamCreating:
		return "creating"
	case StreamReady:
		return "ready"
	case StreamFailed:
		return "failed"
	case StreamTerminated:
		return "terminated"
	}
	return "unknown"
}

type EventKind int

const (
	EventContextState EventKind = iota
	EventSourceResolved
	EventSourceFailed
	EventStreamState
)

// BackendEvent is a notification from the audio backend. Only the fields
// relevant to Kind are set.
type BackendEvent struct {
	Kind    EventKind
	Context ContextState
	Stream  StreamState
	Gen     uint64
	Source  string
	Err     error
}

// CaptureSpec describes a capture stream to open.
type CaptureSpec struct {
	Source  string
	Spec    pcm.Spec
	Latency time.Duration // zero means the backend default
}

// AudioBackend is the connection to the audio server. Every method returns
// without waiting on the server; outcomes arrive on Events and Frames.
type AudioBackend interface {
	Connect()
	Events() <-chan BackendEvent
	Frames() <-chan PCMFrame
	QueryDefaultSource()
	StartCapture(gen uint64, spec CaptureSpec) (CaptureStream, error)
	Close()
}

// CaptureStream is a live capture. Stop reports StreamTerminated once the
// stream is released.
type CaptureStream interface {
	Stop()
}

// ClientConn is a connected client's byte stream.
type ClientConn interface {
	// Write makes a single non-blocking attempt. A full send buffer
	// yields (0, nil).
	Write(p []byte) (int, error)
	// Read blocks until inbound bytes, EOF or an error.
	Read(p []byte) (int, error)
	HungUp() bool
	Close() error
	String() string
}
