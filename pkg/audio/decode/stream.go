// ABOUTME: Stream interface shared by all decoders and the Open dispatcher
// ABOUTME: Buffers decoded chunks so callers can read arbitrary byte counts
package decode

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Resonate-Protocol/hound/pkg/audio"
)

// ErrUnsupportedFile is returned by Open for unknown file extensions
var ErrUnsupportedFile = errors.New("unsupported audio file")

// Stream is decoded PCM audio
type Stream interface {
	io.ReadCloser
	// Format describes the bytes returned by Read
	Format() audio.Format
}

// Open picks a decoder by file extension. Raw PCM files need OpenRaw.
func Open(path string) (Stream, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mp3":
		return OpenMP3(path)
	case ".flac":
		return OpenFLAC(path)
	case ".wav", ".wave":
		return OpenWAV(path)
	case ".ogg", ".oga":
		return OpenVorbis(path)
	case ".opus":
		return OpenOpus(path)
	default:
		return nil, fmt.Errorf("%w: %q (supported: .mp3, .flac, .wav, .ogg, .opus)", ErrUnsupportedFile, ext)
	}
}

// chunkStream adapts a decoder that yields whole chunks to io.Reader
type chunkStream struct {
	format  audio.Format
	next    func() ([]byte, error)
	closer  io.Closer
	pending []byte
	err     error
}

func (s *chunkStream) Format() audio.Format { return s.format }

func (s *chunkStream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(s.pending) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		s.pending, s.err = s.next()
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *chunkStream) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func openFile(path, kind string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s file: %w", kind, err)
	}
	return f, nil
}

// intEncoding maps a bit depth to the little-endian encoding used for it
func intEncoding(bits int, unsigned8 bool) (audio.SampleEncoding, error) {
	switch bits {
	case 8:
		if unsigned8 {
			return audio.EncodingU8, nil
		}
		return audio.EncodingS8, nil
	case 16:
		return audio.EncodingS16LE, nil
	case 24:
		return audio.EncodingS24LE, nil
	case 32:
		return audio.EncodingS32LE, nil
	default:
		return audio.EncodingAny, fmt.Errorf("%w: %d-bit samples", audio.ErrUnsupportedFormat, bits)
	}
}

// putInt stores v at the start of dst in encoding e
func putInt(dst []byte, e audio.SampleEncoding, v int32) {
	switch e {
	case audio.EncodingU8, audio.EncodingS8:
		dst[0] = byte(v)
	case audio.EncodingS16LE:
		dst[0], dst[1] = byte(v), byte(v>>8)
	case audio.EncodingS24LE:
		b := audio.SampleTo24Bit(v)
		copy(dst, b[:])
	case audio.EncodingS32LE:
		dst[0], dst[1], dst[2], dst[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	}
}
