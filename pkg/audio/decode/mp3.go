// ABOUTME: MP3 file decoder
// ABOUTME: go-mp3 always produces 16-bit little-endian stereo
package decode

import (
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"github.com/Resonate-Protocol/hound/pkg/audio"
)

// mp3ReadSize is how many decoded bytes one chunk holds
const mp3ReadSize = 8192

// OpenMP3 opens an MP3 file
func OpenMP3(path string) (Stream, error) {
	f, err := openFile(path, "MP3")
	if err != nil {
		return nil, err
	}
	s, err := NewMP3(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.(*chunkStream).closer = f
	return s, nil
}

// NewMP3 decodes MP3 data from r
func NewMP3(r io.Reader) (Stream, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	format := audio.Format{
		Channels:   2,
		SampleRate: decoder.SampleRate(),
		Encoding:   audio.EncodingS16LE,
	}
	frameSize := format.FrameSize()

	return &chunkStream{
		format: format,
		next: func() ([]byte, error) {
			buf := make([]byte, mp3ReadSize)
			n, err := io.ReadFull(decoder, buf)
			if err == io.ErrUnexpectedEOF {
				err = io.EOF
			}
			return buf[:n-n%frameSize], err
		},
	}, nil
}
