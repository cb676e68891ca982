// ABOUTME: Test tone source device
// ABOUTME: Pushes a sine wave every period while the source has connections
package device

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Resonate-Protocol/hound/pkg/audio"
	"github.com/Resonate-Protocol/hound/pkg/hound"
)

// DefaultFrequency is used when a tone has no frequency configured
const DefaultFrequency = 440.0 // A4 note

// toneAmplitude keeps the tone at half scale
const toneAmplitude = 0.5

// Tone generates a sine wave in push mode
type Tone struct {
	id        string
	name      string
	source    *hound.Source
	frequency float64
	period    time.Duration
	log       *zap.Logger
	loop      runner

	sampleMu    sync.Mutex
	sampleIndex uint64
}

// NewTone creates a tone device. A zero frequency selects DefaultFrequency.
func NewTone(id, name string, format audio.Format, frequency float64, period time.Duration, log *zap.Logger) (*Tone, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("tone %s: %w", id, err)
	}
	if period <= 0 {
		return nil, fmt.Errorf("tone %s: period must be positive", id)
	}
	if frequency == 0 {
		frequency = DefaultFrequency
	}
	t := &Tone{
		id:        id,
		name:      name,
		frequency: frequency,
		period:    period,
		log:       log,
	}
	t.source = hound.NewSource(name, format, t)
	return t, nil
}

func (t *Tone) ID() string            { return t.id }
func (t *Tone) Name() string          { return t.name }
func (t *Tone) Source() *hound.Source { return t.source }
func (t *Tone) Sink() *hound.Sink     { return nil }

// SourceConnectionChanged starts generating on the first connection and stops on the last
func (t *Tone) SourceConnectionChanged(_ *hound.Source, connected bool) error {
	if connected {
		if t.loop.start(t.period, t.tick) {
			t.log.Debug("tone started", zap.Float64("frequency", t.frequency))
		}
		return nil
	}
	if t.loop.stop() {
		t.log.Debug("tone stopped")
	}
	return nil
}

func (t *Tone) tick() {
	format := t.source.Format()
	frames := int(int64(format.SampleRate) * int64(t.period) / int64(time.Second))
	if frames > 0 {
		t.source.PushData(t.Generate(frames))
	}
}

// Generate renders the next frames of the tone in the source format
func (t *Tone) Generate(frames int) []byte {
	t.sampleMu.Lock()
	start := t.sampleIndex
	t.sampleIndex += uint64(frames)
	t.sampleMu.Unlock()

	format := t.source.Format()
	mono := audio.Format{Channels: 1, SampleRate: format.SampleRate, Encoding: audio.EncodingS16LE}
	pcm := make([]byte, mono.Bytes(frames))
	for i := 0; i < frames; i++ {
		ts := float64(start+uint64(i)) / float64(format.SampleRate)
		sample := math.Sin(2 * math.Pi * t.frequency * ts)
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(sample*32767.0*toneAmplitude)))
	}
	if format == mono {
		return pcm
	}

	out := make([]byte, format.Bytes(frames))
	audio.Silence(out, format)
	if _, _, err := audio.ConvertAndMix(out, format, pcm, mono); err != nil {
		t.log.Debug("tone conversion failed", zap.Error(err))
	}
	return out
}

// Close stops the generator
func (t *Tone) Close() error {
	t.loop.stop()
	return nil
}
