// ABOUTME: Tests for the decoders and the Open dispatcher
// ABOUTME: Round-trips WAV and Opus files written by the encode package
package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/Resonate-Protocol/hound/pkg/audio"
	"github.com/Resonate-Protocol/hound/pkg/audio/encode"
)

func rampPCM16(samples int) []byte {
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(i*37-5000)))
	}
	return out
}

func TestOpenUnsupportedExtension(t *testing.T) {
	_, err := Open("track.xyz")
	if !errors.Is(err, ErrUnsupportedFile) {
		t.Fatalf("Open() error = %v, want ErrUnsupportedFile", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.mp3"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Open() error = %v, want not-exist", err)
	}
}

func TestRawDropsPartialFrame(t *testing.T) {
	format := audio.Format{Channels: 2, SampleRate: 8000, Encoding: audio.EncodingS16LE}
	data := append(rampPCM16(10), 0xAA, 0xBB)

	s := NewRaw(bytes.NewReader(data), format)
	if s.Format() != format {
		t.Errorf("Format() = %v, want %v", s.Format(), format)
	}
	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !bytes.Equal(got, data[:20]) {
		t.Errorf("ReadAll() = %d bytes, want the 20 bytes of whole frames", len(got))
	}
}

func TestOpenRawRejectsAnyFormat(t *testing.T) {
	_, err := OpenRaw("unused.raw", audio.Format{})
	if !errors.Is(err, audio.ErrInvalidFormat) {
		t.Fatalf("OpenRaw() error = %v, want ErrInvalidFormat", err)
	}
}

func TestWAVRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		format audio.Format
		data   []byte
	}{
		{
			name:   "stereo 16-bit",
			format: audio.Format{Channels: 2, SampleRate: 44100, Encoding: audio.EncodingS16LE},
			data:   rampPCM16(2 * 5000),
		},
		{
			name:   "mono 24-bit",
			format: audio.Format{Channels: 1, SampleRate: 48000, Encoding: audio.EncodingS24LE},
			data: func() []byte {
				var out []byte
				for _, v := range []int32{0, 1, -1, audio.Max24Bit, audio.Min24Bit, 123456} {
					b := audio.SampleTo24Bit(v)
					out = append(out, b[:]...)
				}
				return out
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out.wav")
			f, err := os.Create(path)
			if err != nil {
				t.Fatal(err)
			}
			w, err := encode.NewWAV(f, tt.format)
			if err != nil {
				t.Fatalf("NewWAV() error = %v", err)
			}
			// split mid-frame to exercise partial frame handling
			half := len(tt.data)/2 + 1
			if _, err := w.Write(tt.data[:half]); err != nil {
				t.Fatal(err)
			}
			if _, err := w.Write(tt.data[half:]); err != nil {
				t.Fatal(err)
			}
			if err := w.Close(); err != nil {
				t.Fatal(err)
			}
			f.Close()

			s, err := Open(path)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer s.Close()

			if s.Format() != tt.format {
				t.Errorf("Format() = %v, want %v", s.Format(), tt.format)
			}
			got, err := io.ReadAll(s)
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Errorf("decoded %d bytes that differ from the %d written", len(got), len(tt.data))
			}
		})
	}
}

func TestOpusRoundTrip(t *testing.T) {
	format := audio.Format{Channels: 1, SampleRate: 48000, Encoding: audio.EncodingS16LE}
	frames := 960*3 + 100

	pcm := make([]byte, format.Bytes(frames))
	for i := 0; i < frames; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/48000))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}

	var file bytes.Buffer
	w, err := encode.NewOpus(&file, format)
	if err != nil {
		t.Fatalf("NewOpus() error = %v", err)
	}
	if _, err := w.Write(pcm); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	s, err := NewOpus(&file)
	if err != nil {
		t.Fatalf("NewOpus() error = %v", err)
	}
	if s.Format() != format {
		t.Errorf("Format() = %v, want %v", s.Format(), format)
	}
	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	// four packets, the last padded to a full 20ms frame
	if want := format.Bytes(960 * 4); len(got) != want {
		t.Errorf("decoded %d bytes, want %d", len(got), want)
	}
}

func TestInvalidInput(t *testing.T) {
	garbage := []byte("definitely not an audio file, just some text")

	tests := []struct {
		name string
		open func() (Stream, error)
	}{
		{"mp3", func() (Stream, error) { return NewMP3(bytes.NewReader(garbage)) }},
		{"flac", func() (Stream, error) { return NewFLAC(bytes.NewReader(garbage)) }},
		{"wav", func() (Stream, error) { return NewWAV(bytes.NewReader(garbage)) }},
		{"vorbis", func() (Stream, error) { return NewVorbis(bytes.NewReader(garbage)) }},
		{"opus", func() (Stream, error) { return NewOpus(bytes.NewReader(garbage)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := tt.open()
			if err == nil {
				s.Close()
				t.Fatal("expected an error for garbage input")
			}
		})
	}
}
