// ABOUTME: Ogg Vorbis file decoder
// ABOUTME: oggvorbis yields interleaved float32 which is passed through as f32le
package decode

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/jfreymuth/oggvorbis"

	"github.com/Resonate-Protocol/hound/pkg/audio"
)

// vorbisChunkFrames is how many frames one decoded chunk holds
const vorbisChunkFrames = 4096

// OpenVorbis opens an Ogg Vorbis file
func OpenVorbis(path string) (Stream, error) {
	f, err := openFile(path, "Ogg Vorbis")
	if err != nil {
		return nil, err
	}
	s, err := NewVorbis(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.(*chunkStream).closer = f
	return s, nil
}

// NewVorbis decodes Ogg Vorbis data from r
func NewVorbis(r io.Reader) (Stream, error) {
	reader, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Ogg Vorbis: %w", err)
	}

	format := audio.Format{
		Channels:   reader.Channels(),
		SampleRate: reader.SampleRate(),
		Encoding:   audio.EncodingF32LE,
	}
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("failed to decode Ogg Vorbis: %w", err)
	}

	samples := make([]float32, vorbisChunkFrames*format.Channels)
	return &chunkStream{
		format: format,
		next: func() ([]byte, error) {
			n, err := reader.Read(samples)
			n -= n % format.Channels
			out := make([]byte, n*4)
			for i, v := range samples[:n] {
				binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
			}
			return out, err
		},
	}, nil
}
