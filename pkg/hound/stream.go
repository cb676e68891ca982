// ABOUTME: Size-bounded client streams moving audio across the context boundary
// ABOUTME: Writes fail fast under backpressure; only Drain waits
package hound

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Resonate-Protocol/hound/pkg/audio"
	"github.com/Resonate-Protocol/hound/pkg/audio/resample"
)

// StreamFlags modify stream behaviour
type StreamFlags uint

const (
	// StreamDrainOnExit makes Close wait until buffered audio was consumed
	StreamDrainOnExit StreamFlags = 1 << iota
)

// drainPollInterval is how often Drain re-checks the buffer
const drainPollInterval = 5 * time.Millisecond

// Stream is a bounded FIFO owned by a Context
type Stream struct {
	ctx     *Context
	flags   StreamFlags
	format  audio.Format
	allowed int
	queue   *audio.Queue

	writeMu sync.Mutex
	closed  atomic.Bool

	// resampling position of captured audio, used only by the capture pass
	capturePos resample.Position
}

func newStream(c *Context, flags StreamFlags, format audio.Format, allowed int) *Stream {
	return &Stream{
		ctx:     c,
		flags:   flags,
		format:  format,
		allowed: allowed,
		queue:   audio.NewQueue(),
	}
}

// Format returns the format of the stream's data
func (s *Stream) Format() audio.Format { return s.format }

// Flags returns the flags the stream was created with
func (s *Stream) Flags() StreamFlags { return s.flags }

// AllowedSize returns the byte cap, 0 meaning unbounded
func (s *Stream) AllowedSize() int { return s.allowed }

// Buffered returns the bytes currently held by the stream
func (s *Stream) Buffered() int { return s.queue.Bytes() }

// Write queues a copy of p for playback. A write larger than the allowed size
// fails with InvalidArgument; one that does not fit right now fails with Busy.
func (s *Stream) Write(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, newError(ErrInvalidArgument, "Stream", "Write", "write", "stream is closed")
	}
	if s.ctx.kind != PlaybackContext {
		return 0, newError(ErrUnsupported, "Stream", "Write", "write", "capture streams are read-only")
	}
	if len(p) == 0 {
		return 0, nil
	}
	if s.allowed != 0 && len(p) > s.allowed {
		s.ctx.metrics().StreamRejected(KindInvalidArgument)
		return 0, newError(ErrInvalidArgument, "Stream", "Write", "write",
			fmt.Sprintf("%d bytes exceed the stream size of %d", len(p), s.allowed))
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.allowed != 0 && s.queue.Bytes()+len(p) > s.allowed {
		s.ctx.metrics().StreamRejected(KindBusy)
		return 0, newError(ErrBusy, "Stream", "Write", "write",
			fmt.Sprintf("%d of %d bytes in use", s.queue.Bytes(), s.allowed))
	}

	buf := audio.NewBuffer(bytes.Clone(p), s.format)
	_, err := s.queue.Push(buf)
	buf.Release()
	if err != nil {
		return 0, wrap(err, "Stream", "Write", "queue data")
	}
	return len(p), nil
}

// Read copies captured audio into p without blocking. It fails with Busy
// when nothing is buffered.
func (s *Stream) Read(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, newError(ErrInvalidArgument, "Stream", "Read", "read", "stream is closed")
	}
	if len(p) == 0 {
		return 0, nil
	}
	n := s.queue.Read(p)
	if n == 0 {
		return 0, newError(ErrBusy, "Stream", "Read", "read", "no data buffered")
	}
	return n, nil
}

// Pull additively mixes buffered audio into dst, which is in format, and
// returns the bytes written. It has the same contract as Queue.MixInto.
func (s *Stream) Pull(dst []byte, format audio.Format) (int, error) {
	n, err := s.queue.MixInto(dst, format)
	if err != nil {
		return n, wrap(err, "Stream", "Pull", "mix")
	}
	return n, nil
}

// deliver hands captured audio in format to the stream, converting to the
// stream's own format. Audio that does not fit is dropped. Calls are
// serialized by the context's capture pass.
func (s *Stream) deliver(data []byte, format audio.Format) {
	if s.closed.Load() {
		return
	}
	if format != s.format {
		frames := format.Frames(len(data))
		if format.SampleRate != s.format.SampleRate {
			frames = resample.OutputFrames(format.SampleRate, s.format.SampleRate, frames)
		}
		out := make([]byte, s.format.Bytes(frames))
		audio.Silence(out, s.format)
		_, produced, err := audio.ConvertAndMixAt(out, s.format, data, format, &s.capturePos)
		if err != nil {
			s.ctx.logger().Debug("capture conversion failed", zap.String("context", s.ctx.name), zap.Error(err))
			return
		}
		data = out[:s.format.Bytes(produced)]
	} else {
		data = bytes.Clone(data)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.allowed != 0 && s.queue.Bytes()+len(data) > s.allowed {
		s.ctx.metrics().CaptureDropped(s.ctx.name, len(data))
		return
	}
	buf := audio.NewBuffer(data, s.format)
	_, _ = s.queue.Push(buf)
	buf.Release()
}

// Drain waits until every buffered byte has been consumed or ctx ends
func (s *Stream) Drain(ctx context.Context) error {
	if s.queue.Bytes() == 0 {
		return nil
	}

	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return wrap(ctx.Err(), "Stream", "Drain", "drain")
		case <-ticker.C:
			if s.queue.Bytes() == 0 {
				return nil
			}
		}
	}
}

// Close destroys the stream, draining first when StreamDrainOnExit is set.
// Buffered audio is discarded once the drain ends, even if ctx expired.
func (s *Stream) Close(ctx context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}

	var err error
	if s.flags&StreamDrainOnExit != 0 {
		err = s.Drain(ctx)
	}
	s.queue.Close()
	s.ctx.removeStream(s)
	return err
}
