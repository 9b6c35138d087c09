package pcm

import (
	"testing"
	"time"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name string
		want Format
	}{
		{"s16le", S16LE},
		{"S16LE", S16LE},
		{"s16be", S16BE},
		{"u8", U8},
		{"ulaw", ULaw},
		{"aLaw", ALaw},
		{"float32le", Float32LE},
		{"s24-32be", S24_32BE},
		{" s32le ", S32LE},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.name)
		if err != nil {
			t.Fatalf("ParseFormat(%q): %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestParseFormatNativeAliases(t *testing.T) {
	got, err := ParseFormat("s16ne")
	if err != nil {
		t.Fatal(err)
	}
	want := S16BE
	if nativeLittleEndian {
		want = S16LE
	}
	if got != want {
		t.Fatalf("s16ne = %v, want %v", got, want)
	}

	re, err := ParseFormat("s16re")
	if err != nil {
		t.Fatal(err)
	}
	if re == got {
		t.Fatalf("s16re resolved to the native format %v", re)
	}
}

func TestParseFormatRejectsUnknown(t *testing.T) {
	for _, name := range []string{"", "mp3", "s16lee", "pcm"} {
		if _, err := ParseFormat(name); err == nil {
			t.Errorf("ParseFormat(%q) succeeded, want error", name)
		}
	}
}

func TestSpecSizes(t *testing.T) {
	s := Spec{Format: S16LE, Rate: 44100, Channels: 2}
	if got := s.FrameSize(); got != 4 {
		t.Fatalf("FrameSize = %d, want 4", got)
	}
	if got := s.BytesPerSecond(); got != 176400 {
		t.Fatalf("BytesPerSecond = %d, want 176400", got)
	}
	// 20ms at 44.1kHz is 882 frames.
	if got := s.DurationToBytes(20 * time.Millisecond); got != 882*4 {
		t.Fatalf("DurationToBytes(20ms) = %d, want %d", got, 882*4)
	}
	if got := s.DurationToBytes(0); got != 0 {
		t.Fatalf("DurationToBytes(0) = %d", got)
	}
	if got := s.String(); got != "s16le 2ch 44100Hz" {
		t.Fatalf("String = %q", got)
	}
}

func TestFormatSampleSize(t *testing.T) {
	tests := map[Format]int{
		U8: 1, ALaw: 1, S16BE: 2, S24LE: 3, S24_32LE: 4, Float32BE: 4,
	}
	for f, want := range tests {
		if got := f.SampleSize(); got != want {
			t.Errorf("%v.SampleSize() = %d, want %d", f, got, want)
		}
	}
	if Format(42).Valid() {
		t.Error("Format(42) reported valid")
	}
}
