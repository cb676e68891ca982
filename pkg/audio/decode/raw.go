// ABOUTME: Raw PCM decoder
// ABOUTME: Headerless files whose format is supplied by the caller
package decode

import (
	"fmt"
	"io"

	"github.com/Resonate-Protocol/hound/pkg/audio"
)

// rawChunkFrames is how many frames one chunk holds
const rawChunkFrames = 4096

// OpenRaw opens a headerless PCM file in the given format
func OpenRaw(path string, format audio.Format) (Stream, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("failed to open raw PCM: %w", err)
	}
	f, err := openFile(path, "raw PCM")
	if err != nil {
		return nil, err
	}
	s := NewRaw(f, format).(*chunkStream)
	s.closer = f
	return s, nil
}

// NewRaw reads PCM in format from r. A trailing partial frame is dropped.
func NewRaw(r io.Reader, format audio.Format) Stream {
	return &chunkStream{
		format: format,
		next: func() ([]byte, error) {
			buf := make([]byte, format.Bytes(rawChunkFrames))
			n, err := io.ReadFull(r, buf)
			if err == io.ErrUnexpectedEOF {
				err = io.EOF
			}
			return buf[:n-n%format.FrameSize()], err
		},
	}
}
