// ABOUTME: Recorder sink device writing its mix to a PCM file
// ABOUTME: Only audio actually mixed is written, so idle periods leave no gaps of silence
package device

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Resonate-Protocol/hound/pkg/audio/encode"
	"github.com/Resonate-Protocol/hound/pkg/hound"
)

// Recorder records its sink into a PCM writer
type Recorder struct {
	id     string
	name   string
	sink   *hound.Sink
	period time.Duration
	log    *zap.Logger
	loop   runner

	mu      sync.Mutex
	w       encode.PCMWriter
	written int64
	mixBuf  []byte
}

// NewRecorder creates a recorder whose sink has the writer's format
func NewRecorder(id, name string, w encode.PCMWriter, period time.Duration, log *zap.Logger) *Recorder {
	r := &Recorder{
		id:     id,
		name:   name,
		w:      w,
		period: period,
		log:    log,
	}
	r.sink = hound.NewSink(name, w.Format(), r)
	return r
}

func (r *Recorder) ID() string            { return r.id }
func (r *Recorder) Name() string          { return r.name }
func (r *Recorder) Source() *hound.Source { return nil }
func (r *Recorder) Sink() *hound.Sink     { return r.sink }

// Written returns the bytes recorded so far
func (r *Recorder) Written() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// SinkConnectionChanged records only while something is connected
func (r *Recorder) SinkConnectionChanged(_ *hound.Sink, connected bool) error {
	if connected {
		r.loop.start(r.period, r.Flush)
		return nil
	}
	r.loop.stop()
	return nil
}

// Flush mixes one period and writes whatever was mixed
func (r *Recorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return
	}

	format := r.sink.Format()
	frames := int(int64(format.SampleRate) * int64(r.period) / int64(time.Second))
	if size := format.Bytes(frames); len(r.mixBuf) != size {
		r.mixBuf = make([]byte, size)
	}

	n := r.sink.MixInputs(r.mixBuf)
	if n == 0 {
		return
	}
	if _, err := r.w.Write(r.mixBuf[:n]); err != nil {
		r.log.Warn("recording write failed", zap.Error(err))
		return
	}
	r.written += int64(n)
}

// Close stops recording and finalizes the file
func (r *Recorder) Close() error {
	r.loop.stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	err := r.w.Close()
	r.w = nil
	r.log.Info("recording closed", zap.Int64("bytes", r.written))
	return err
}
