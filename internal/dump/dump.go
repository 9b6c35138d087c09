// Package dump turns the server's raw PCM stream back into a WAV file. It
// backs the "dump" command, a client used to check what the server sends.
package dump

import (
	"encoding/binary"
	"fmt"
	"io"

	"audiofanout/internal/pcm"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavFormatPCM is the WAVE_FORMAT_PCM format tag.
const wavFormatPCM = 1

// Writer is an io.Writer that accepts raw PCM in the given layout and
// encodes it as WAV. Bytes that do not complete a frame are held until the
// next Write.
type Writer struct {
	enc      *wav.Encoder
	spec     pcm.Spec
	bitDepth int
	format   *audio.Format
	pending  []byte
	frames   int64
}

func NewWriter(w io.WriteSeeker, spec pcm.Spec) (*Writer, error) {
	bitDepth, err := wavBitDepth(spec.Format)
	if err != nil {
		return nil, err
	}
	if spec.Channels < 1 || spec.Rate < 1 {
		return nil, fmt.Errorf("invalid sample spec %s", spec)
	}

	return &Writer{
		enc:      wav.NewEncoder(w, spec.Rate, bitDepth, spec.Channels, wavFormatPCM),
		spec:     spec,
		bitDepth: bitDepth,
		format:   &audio.Format{NumChannels: spec.Channels, SampleRate: spec.Rate},
	}, nil
}

func wavBitDepth(f pcm.Format) (int, error) {
	switch f {
	case pcm.U8:
		return 8, nil
	case pcm.S16LE, pcm.S16BE:
		return 16, nil
	case pcm.S24LE, pcm.S24BE, pcm.S24_32LE, pcm.S24_32BE:
		return 24, nil
	case pcm.S32LE, pcm.S32BE:
		return 32, nil
	}
	return 0, fmt.Errorf("sample format %s cannot be written as integer WAV", f)
}

func (w *Writer) Write(p []byte) (int, error) {
	data := p
	if len(w.pending) > 0 {
		data = append(w.pending, p...)
	}

	frameSize := w.spec.FrameSize()
	whole := len(data) - len(data)%frameSize
	if whole > 0 {
		buf := &audio.IntBuffer{
			Format:         w.format,
			Data:           decode(w.spec.Format, data[:whole]),
			SourceBitDepth: w.bitDepth,
		}
		if err := w.enc.Write(buf); err != nil {
			return 0, fmt.Errorf("wav write: %w", err)
		}
		w.frames += int64(whole / frameSize)
	}

	w.pending = append(w.pending[:0:0], data[whole:]...)
	return len(p), nil
}

// Frames is the number of complete frames encoded so far.
func (w *Writer) Frames() int64 { return w.frames }

// Close finalizes the WAV header. Any incomplete trailing frame is dropped.
func (w *Writer) Close() error {
	return w.enc.Close()
}

// decode converts whole frames of raw samples into ints as go-audio
// expects them: unsigned for 8-bit, signed otherwise.
func decode(f pcm.Format, b []byte) []int {
	size := f.SampleSize()
	out := make([]int, len(b)/size)

	var order binary.ByteOrder = binary.LittleEndian
	if f.BigEndian() {
		order = binary.BigEndian
	}

	for i := range out {
		s := b[i*size : (i+1)*size]
		switch f {
		case pcm.U8:
			out[i] = int(s[0])
		case pcm.S16LE, pcm.S16BE:
			out[i] = int(int16(order.Uint16(s)))
		case pcm.S24LE:
			out[i] = signExtend24(uint32(s[0]) | uint32(s[1])<<8 | uint32(s[2])<<16)
		case pcm.S24BE:
			out[i] = signExtend24(uint32(s[2]) | uint32(s[1])<<8 | uint32(s[0])<<16)
		case pcm.S24_32LE, pcm.S24_32BE:
			out[i] = signExtend24(order.Uint32(s) & 0xffffff)
		case pcm.S32LE, pcm.S32BE:
			out[i] = int(int32(order.Uint32(s)))
		}
	}
	return out
}

func signExtend24(v uint32) int {
	return int(int32(v<<8) >> 8)
}
