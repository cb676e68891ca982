// ABOUTME: A live link from one source to one sink carrying one audio queue
// ABOUTME: Producers push into the queue, the sink's mixer drains it
package hound

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Resonate-Protocol/hound/pkg/audio"
	"github.com/Resonate-Protocol/hound/pkg/audio/resample"
)

// Connection binds a source to a sink. It is owned by the registry and is
// active from creation until Close or removal of either endpoint.
type Connection struct {
	id       uuid.UUID
	source   *Source
	sink     *Sink
	queue    *audio.Queue
	registry *Registry
}

func newConnection(r *Registry, src *Source, sink *Sink) *Connection {
	return &Connection{
		id:       uuid.New(),
		source:   src,
		sink:     sink,
		queue:    audio.NewQueue(),
		registry: r,
	}
}

// ID returns the connection's unique identifier
func (c *Connection) ID() uuid.UUID { return c.id }

// Source returns the producing endpoint
func (c *Connection) Source() *Source { return c.source }

// Sink returns the consuming endpoint
func (c *Connection) Sink() *Sink { return c.sink }

// BufferedFrames returns the frames waiting in the queue
func (c *Connection) BufferedFrames() int { return c.queue.Frames() }

// BufferedBytes returns the bytes waiting in the queue
func (c *Connection) BufferedBytes() int { return c.queue.Bytes() }

// PushData queues a reference to buf and wakes the sink if the queue was empty
func (c *Connection) PushData(buf *audio.Buffer) {
	wasEmpty, err := c.queue.Push(buf)
	if err != nil {
		// the connection is being torn down
		return
	}
	if wasEmpty && c.sink.notifier != nil {
		c.sink.notifier.DataAvailable(c.sink)
	}
}

// AddSourceData mixes up to len(dst) bytes into dst, which is in format.
// If the queue cannot cover the request the source is asked for more first.
// It never blocks on the producer and returns the bytes actually mixed.
func (c *Connection) AddSourceData(dst []byte, format audio.Format) int {
	return c.addSourceData(dst, format, true)
}

func (c *Connection) addSourceData(dst []byte, format audio.Format, pull bool) int {
	frames := format.Frames(len(dst))
	if frames == 0 {
		return 0
	}

	if pull && c.source.puller != nil {
		srcFmt := c.source.dataFormat()
		needed := frames
		if srcFmt.SampleRate != format.SampleRate {
			needed = resample.InputFramesNeeded(srcFmt.SampleRate, format.SampleRate, frames)
		}
		if short := needed - c.queue.Frames(); short > 0 {
			if err := c.source.puller.Pull(c.source, srcFmt.Bytes(short)); err != nil {
				c.registry.log.Debug("source pull failed",
					zap.String("source", c.source.name),
					zap.Error(err))
			}
		}
	}

	written, err := c.queue.MixInto(dst, format)
	if err != nil {
		c.registry.log.Debug("dropped unmixable audio",
			zap.String("source", c.source.name),
			zap.String("sink", c.sink.name),
			zap.Error(err))
	}
	if short := frames - format.Frames(written); pull && short > 0 {
		c.registry.metrics.Underrun(c.source.name, c.sink.name, short)
	}
	return written
}

// Close destroys the connection
func (c *Connection) Close() error {
	return c.registry.destroyConnection(c)
}
