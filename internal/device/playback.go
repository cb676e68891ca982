// ABOUTME: Playback sink device driving an audio output
// ABOUTME: Mixes one period per tick while connected and writes it to the backend
package device

import (
	"time"

	"go.uber.org/zap"

	"github.com/Resonate-Protocol/hound/pkg/audio"
	"github.com/Resonate-Protocol/hound/pkg/audio/output"
	"github.com/Resonate-Protocol/hound/pkg/hound"
)

// Playback plays its sink's mix on an output.Output
type Playback struct {
	id     string
	name   string
	sink   *hound.Sink
	out    output.Output
	period time.Duration
	log    *zap.Logger
	loop   runner

	// touched only by the loop goroutine
	opened     bool
	failed     bool
	discarding bool
	mixBuf     []byte
	outBuf []byte
}

// NewPlayback creates a playback device. A format of "any" is negotiated
// from the first connected source.
func NewPlayback(id, name string, format audio.Format, out output.Output, period time.Duration, log *zap.Logger) *Playback {
	p := &Playback{
		id:     id,
		name:   name,
		out:    out,
		period: period,
		log:    log,
	}
	p.sink = hound.NewSink(name, format, p)
	return p
}

func (p *Playback) ID() string            { return p.id }
func (p *Playback) Name() string          { return p.name }
func (p *Playback) Source() *hound.Source { return nil }
func (p *Playback) Sink() *hound.Sink     { return p.sink }

// CheckFormat accepts formats the output can be opened with once converted to s16le
func (p *Playback) CheckFormat(_ *hound.Sink, format audio.Format) error {
	if format.Channels > 2 {
		return audio.ErrUnsupportedFormat
	}
	return nil
}

// SinkConnectionChanged runs the playback loop only while something is connected
func (p *Playback) SinkConnectionChanged(_ *hound.Sink, connected bool) error {
	if connected {
		p.loop.start(p.period, p.tick)
		return nil
	}
	p.loop.stop()
	return nil
}

// outputFormat is the sink format re-encoded for the backend
func outputFormat(f audio.Format) audio.Format {
	return audio.Format{Channels: f.Channels, SampleRate: f.SampleRate, Encoding: audio.EncodingS16LE}
}

func (p *Playback) tick() {
	format := p.sink.Format()
	if format.IsAny() || p.failed {
		// nothing can be played, so push-mode inputs must not pile up
		if dropped := p.sink.Discard(); dropped > 0 && !p.discarding {
			p.discarding = true
			p.log.Warn("discarding input the output cannot play",
				zap.String("device", p.name),
				zap.Stringer("format", format),
				zap.Bool("output_failed", p.failed),
				zap.Int("frames", dropped))
		}
		return
	}
	p.discarding = false
	outFmt := outputFormat(format)
	if !p.opened {
		if err := p.out.Open(outFmt); err != nil {
			p.failed = true
			p.log.Error("failed to open audio output", zap.Stringer("format", outFmt), zap.Error(err))
			return
		}
		p.opened = true
	}

	frames := int(int64(format.SampleRate) * int64(p.period) / int64(time.Second))
	if size := format.Bytes(frames); len(p.mixBuf) != size {
		p.mixBuf = make([]byte, size)
		p.outBuf = make([]byte, outFmt.Bytes(frames))
	}

	// short mixes leave silence, which is still written to keep the device fed
	p.sink.MixInputs(p.mixBuf)

	data := p.mixBuf
	if format != outFmt {
		audio.Silence(p.outBuf, outFmt)
		if _, _, err := audio.ConvertAndMix(p.outBuf, outFmt, p.mixBuf, format); err != nil {
			p.log.Debug("output conversion failed", zap.Error(err))
			return
		}
		data = p.outBuf
	}
	if _, err := p.out.Write(data); err != nil {
		p.log.Warn("audio output write failed", zap.Error(err))
	}
}

// Close stops playback and releases the output
func (p *Playback) Close() error {
	p.loop.stop()
	return p.out.Close()
}
