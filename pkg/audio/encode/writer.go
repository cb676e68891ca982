// ABOUTME: PCMWriter interface definition
// ABOUTME: Common interface for all PCM file writers
package encode

import (
	"io"

	"github.com/Resonate-Protocol/hound/pkg/audio"
)

// PCMWriter consumes raw PCM in a fixed format
type PCMWriter interface {
	io.WriteCloser
	// Format is the layout Write expects
	Format() audio.Format
}

// frameBuffer keeps the trailing partial frame between writes
type frameBuffer struct {
	frameSize int
	partial   []byte
}

// whole prepends the held bytes to p and returns only complete frames
func (b *frameBuffer) whole(p []byte) []byte {
	data := append(b.partial, p...)
	cut := len(data) - len(data)%b.frameSize
	b.partial = append([]byte(nil), data[cut:]...)
	return data[:cut]
}
