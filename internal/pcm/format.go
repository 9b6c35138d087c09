// Package pcm describes the raw sample layouts the server forwards to clients.
package pcm

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// Format is a PulseAudio sample format. The numeric values are the
// protocol's wire codes, so a Format can be handed to the backend as is.
type Format byte

const (
	U8        Format = 0
	ALaw      Format = 1
	ULaw      Format = 2
	S16LE     Format = 3
	S16BE     Format = 4
	Float32LE Format = 5
	Float32BE Format = 6
	S32LE     Format = 7
	S32BE     Format = 8
	S24LE     Format = 9
	S24BE     Format = 10
	S24_32LE  Format = 11
	S24_32BE  Format = 12
)

var formatNames = map[Format]string{
	U8:        "u8",
	ALaw:      "aLaw",
	ULaw:      "uLaw",
	S16LE:     "s16le",
	S16BE:     "s16be",
	Float32LE: "float32le",
	Float32BE: "float32be",
	S32LE:     "s32le",
	S32BE:     "s32be",
	S24LE:     "s24le",
	S24BE:     "s24be",
	S24_32LE:  "s24-32le",
	S24_32BE:  "s24-32be",
}

var nativeLittleEndian = binary.NativeEndian.Uint16([]byte{1, 0}) == 1

// ParseFormat resolves a short format name the way pa_parse_sample_format
// does: case-insensitive, with "ne"/"re" and bare aliases resolved against
// the host byte order.
func ParseFormat(name string) (Format, error) {
	n := strings.ToLower(strings.TrimSpace(name))

	pick := func(le, be Format, native bool) Format {
		if native == nativeLittleEndian {
			return le
		}
		return be
	}

	switch n {
	case "u8", "8":
		return U8, nil
	case "alaw", "a-law":
		return ALaw, nil
	case "ulaw", "u-law", "mulaw", "mu-law":
		return ULaw, nil
	case "s16le":
		return S16LE, nil
	case "s16be":
		return S16BE, nil
	case "s16ne", "s16", "16":
		return pick(S16LE, S16BE, true), nil
	case "s16re":
		return pick(S16LE, S16BE, false), nil
	case "float32le", "f32le":
		return Float32LE, nil
	case "float32be", "f32be":
		return Float32BE, nil
	case "float32ne", "float32", "f32ne", "f32", "float":
		return pick(Float32LE, Float32BE, true), nil
	case "float32re", "f32re":
		return pick(Float32LE, Float32BE, false), nil
	case "s32le":
		return S32LE, nil
	case "s32be":
		return S32BE, nil
	case "s32ne", "s32", "32":
		return pick(S32LE, S32BE, true), nil
	case "s32re":
		return pick(S32LE, S32BE, false), nil
	case "s24le":
		return S24LE, nil
	case "s24be":
		return S24BE, nil
	case "s24ne", "s24", "24":
		return pick(S24LE, S24BE, true), nil
	case "s24re":
		return pick(S24LE, S24BE, false), nil
	case "s24-32le":
		return S24_32LE, nil
	case "s24-32be":
		return S24_32BE, nil
	case "s24-32ne", "s24-32":
		return pick(S24_32LE, S24_32BE, true), nil
	case "s24-32re":
		return pick(S24_32LE, S24_32BE, false), nil
	}
	return 0, fmt.Errorf("unknown sample format %q", name)
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("format(%d)", byte(f))
}

// Valid reports whether f is one of the known formats.
func (f Format) Valid() bool {
	_, ok := formatNames[f]
	return ok
}

// SampleSize is the size in bytes of a single sample of one channel.
func (f Format) SampleSize() int {
	switch f {
	case U8, ALaw, ULaw:
		return 1
	case S16LE, S16BE:
		return 2
	case S24LE, S24BE:
		return 3
	case Float32LE, Float32BE, S32LE, S32BE, S24_32LE, S24_32BE:
		return 4
	}
	return 0
}

// BigEndian reports whether multi-byte samples are stored big-endian.
func (f Format) BigEndian() bool {
	switch f {
	case S16BE, Float32BE, S32BE, S24BE, S24_32BE:
		return true
	}
	return false
}

// Spec is the fixed frame layout delivered to every client.
type Spec struct {
	Format   Format
	Rate     int
	Channels int
}

// FrameSize is the number of bytes holding one sample for every channel.
func (s Spec) FrameSize() int {
	return s.Format.SampleSize() * s.Channels
}

func (s Spec) BytesPerSecond() int {
	return s.FrameSize() * s.Rate
}

// DurationToBytes converts d into a byte count, rounded down to a whole
// number of frames.
func (s Spec) DurationToBytes(d time.Duration) int {
	fs := s.FrameSize()
	if fs == 0 || d <= 0 {
		return 0
	}
	frames := int64(d) * int64(s.Rate) / int64(time.Second)
	return int(frames) * fs
}

func (s Spec) String() string {
	return fmt.Sprintf("%s %dch %dHz", s.Format, s.Channels, s.Rate)
}
