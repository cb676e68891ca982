// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for audio playback backends
package output

import (
	"errors"

	"github.com/Resonate-Protocol/hound/pkg/audio"
)

// ErrNotOpen is returned by Write before Open succeeded
var ErrNotOpen = errors.New("output not initialized")

// Output represents an audio output device
type Output interface {
	// Open initializes the device for the given format
	Open(format audio.Format) error

	// Format returns the format Write expects, "any" before Open
	Format() audio.Format

	// Write plays PCM in Format, blocking until the device accepted it
	Write(p []byte) (int, error)

	// Close releases output resources
	Close() error
}

// Volume is implemented by outputs with software gain
type Volume interface {
	SetVolume(volume int)
	SetMuted(muted bool)
}
