// ABOUTME: Oto-based audio output implementation
// ABOUTME: Streams PCM through a pipe into one persistent oto player with software volume
package output

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"

	"github.com/Resonate-Protocol/hound/pkg/audio"
)

// Oto output implementation using oto library
type Oto struct {
	log *zap.Logger

	mu         sync.Mutex
	otoCtx     *oto.Context
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	format     audio.Format
	volume     int
	muted      bool
}

// NewOto creates a new Oto output
func NewOto(log *zap.Logger) *Oto {
	if log == nil {
		log = zap.NewNop()
	}
	return &Oto{
		log:    log,
		volume: 100,
	}
}

// Open initializes the output device. Only S16LE is accepted.
func (o *Oto) Open(format audio.Format) error {
	if err := format.Validate(); err != nil {
		return fmt.Errorf("failed to open oto output: %w", err)
	}
	if format.Encoding != audio.EncodingS16LE {
		return fmt.Errorf("failed to open oto output: %w: oto plays s16le, got %s", audio.ErrUnsupportedFormat, format.Encoding)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	// oto allows one context per process and cannot be reinitialized
	if o.otoCtx != nil {
		if o.format != format {
			return fmt.Errorf("failed to open oto output: %w: already playing %s", audio.ErrUnsupportedFormat, o.format)
		}
		return nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	o.otoCtx = ctx
	o.format = format
	o.pipeReader, o.pipeWriter = io.Pipe()
	o.player = o.otoCtx.NewPlayer(o.pipeReader)
	o.player.Play()

	o.log.Info("audio output initialized", zap.Stringer("format", format))
	return nil
}

// Format returns the opened format
func (o *Oto) Format() audio.Format {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.format
}

// Write outputs PCM (blocks until the player consumed it)
func (o *Oto) Write(p []byte) (int, error) {
	o.mu.Lock()
	w := o.pipeWriter
	volume, muted := o.volume, o.muted
	o.mu.Unlock()

	if w == nil {
		return 0, ErrNotOpen
	}
	if _, err := w.Write(applyVolume(p, volume, muted)); err != nil {
		return 0, fmt.Errorf("pipe write failed: %w", err)
	}
	return len(p), nil
}

// Close releases output resources
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pipeWriter != nil {
		o.pipeWriter.Close()
		o.pipeWriter = nil
	}
	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	if o.pipeReader != nil {
		o.pipeReader.Close()
		o.pipeReader = nil
	}
	if o.otoCtx != nil {
		if err := o.otoCtx.Suspend(); err != nil {
			return fmt.Errorf("failed to suspend oto context: %w", err)
		}
	}
	return nil
}

// SetVolume sets the volume (0-100)
func (o *Oto) SetVolume(volume int) {
	volume = max(0, min(100, volume))
	o.mu.Lock()
	o.volume = volume
	o.mu.Unlock()
	o.log.Debug("volume set", zap.Int("volume", volume))
}

// SetMuted sets mute state
func (o *Oto) SetMuted(muted bool) {
	o.mu.Lock()
	o.muted = muted
	o.mu.Unlock()
	o.log.Debug("mute changed", zap.Bool("muted", muted))
}

// applyVolume scales S16LE samples. Full volume returns p unchanged.
func applyVolume(p []byte, volume int, muted bool) []byte {
	multiplier := getVolumeMultiplier(volume, muted)
	if multiplier == 1 {
		return p
	}

	out := make([]byte, len(p)-len(p)%2)
	for i := 0; i < len(out); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(p[i:]))
		binary.LittleEndian.PutUint16(out[i:], uint16(int16(float64(sample)*multiplier)))
	}
	return out
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(volume) / 100.0
}
