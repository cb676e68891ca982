// ABOUTME: WAV file decoder built on go-audio/wav
// ABOUTME: Supports integer PCM at 8, 16, 24 and 32 bits
package decode

import (
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/Resonate-Protocol/hound/pkg/audio"
)

// wavChunkFrames is how many frames one decoded chunk holds
const wavChunkFrames = 4096

// wavFormatPCM is the RIFF format tag of integer PCM
const wavFormatPCM = 1

var errNotWAV = errors.New("not a valid WAV file")

// OpenWAV opens a WAV file
func OpenWAV(path string) (Stream, error) {
	f, err := openFile(path, "WAV")
	if err != nil {
		return nil, err
	}
	s, err := NewWAV(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.(*chunkStream).closer = f
	return s, nil
}

// NewWAV decodes WAV data from r
func NewWAV(r io.ReadSeeker) (Stream, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("failed to decode WAV: %w", errNotWAV)
	}
	if decoder.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("failed to decode WAV: %w: format tag %d", audio.ErrUnsupportedFormat, decoder.WavAudioFormat)
	}

	enc, err := intEncoding(int(decoder.BitDepth), true)
	if err != nil {
		return nil, fmt.Errorf("failed to decode WAV: %w", err)
	}
	format := audio.Format{
		Channels:   int(decoder.NumChans),
		SampleRate: int(decoder.SampleRate),
		Encoding:   enc,
	}
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("failed to decode WAV: %w", err)
	}

	bps := enc.BytesPerSample()
	buf := &goaudio.IntBuffer{
		Format:         decoder.Format(),
		Data:           make([]int, wavChunkFrames*format.Channels),
		SourceBitDepth: int(decoder.BitDepth),
	}
	return &chunkStream{
		format: format,
		next: func() ([]byte, error) {
			n, err := decoder.PCMBuffer(buf)
			if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("failed to read WAV samples: %w", err)
			}
			n -= n % format.Channels
			if n == 0 {
				return nil, io.EOF
			}
			out := make([]byte, n*bps)
			for i, v := range buf.Data[:n] {
				putInt(out[i*bps:], enc, int32(v))
			}
			return out, nil
		},
	}, nil
}
