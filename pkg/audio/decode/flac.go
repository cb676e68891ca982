// ABOUTME: FLAC file decoder
// ABOUTME: Interleaves mewkiz/flac subframes into little-endian PCM
package decode

import (
	"fmt"
	"io"

	"github.com/mewkiz/flac"

	"github.com/Resonate-Protocol/hound/pkg/audio"
)

// OpenFLAC opens a FLAC file
func OpenFLAC(path string) (Stream, error) {
	f, err := openFile(path, "FLAC")
	if err != nil {
		return nil, err
	}
	s, err := NewFLAC(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.(*chunkStream).closer = f
	return s, nil
}

// NewFLAC decodes FLAC data from r
func NewFLAC(r io.Reader) (Stream, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	enc, err := intEncoding(int(info.BitsPerSample), false)
	if err != nil {
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}
	format := audio.Format{
		Channels:   int(info.NChannels),
		SampleRate: int(info.SampleRate),
		Encoding:   enc,
	}
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	bps := enc.BytesPerSample()
	return &chunkStream{
		format: format,
		next: func() ([]byte, error) {
			frame, err := stream.ParseNext()
			if err != nil {
				return nil, err
			}
			blockSize := len(frame.Subframes[0].Samples)
			out := make([]byte, format.Bytes(blockSize))
			for i := 0; i < blockSize; i++ {
				for ch, sub := range frame.Subframes {
					putInt(out[(i*format.Channels+ch)*bps:], enc, sub.Samples[i])
				}
			}
			return out, nil
		},
	}, nil
}
