// ABOUTME: Reference counted immutable PCM buffers and per-queue read cursors
// ABOUTME: A buffer is freed exactly once, when its last reference is released
package audio

import (
	"errors"
	"sync/atomic"
)

// ErrCursorLinked is returned when destroying a cursor that still sits in a queue
var ErrCursorLinked = errors.New("cursor is linked into a queue")

// Buffer is an immutable chunk of PCM data shared between queues.
// The contents of Data must not be modified after NewBuffer.
type Buffer struct {
	data   []byte
	format Format
	refs   atomic.Int32
	free   func([]byte)
}

// BufferOption configures a Buffer at creation
type BufferOption func(*Buffer)

// WithFree registers a hook called with the data when the last reference goes away
func WithFree(fn func([]byte)) BufferOption {
	return func(b *Buffer) {
		b.free = fn
	}
}

// NewBuffer takes ownership of data and returns a buffer holding one reference
func NewBuffer(data []byte, format Format, opts ...BufferOption) *Buffer {
	b := &Buffer{
		data:   data,
		format: format,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.refs.Store(1)
	return b
}

// Acquire adds a reference and returns the buffer for chaining
func (b *Buffer) Acquire() *Buffer {
	if b.refs.Add(1) <= 1 {
		panic("audio: Acquire on released buffer")
	}
	return b
}

// Release drops a reference. The data is handed to the free hook when the
// count reaches zero. Releasing more often than acquiring panics.
func (b *Buffer) Release() {
	switch n := b.refs.Add(-1); {
	case n == 0:
		data := b.data
		b.data = nil
		if b.free != nil {
			b.free(data)
		}
	case n < 0:
		panic("audio: Release on released buffer")
	}
}

// Refs returns the current reference count
func (b *Buffer) Refs() int {
	return int(b.refs.Load())
}

// Data returns the PCM bytes. Callers must hold a reference.
func (b *Buffer) Data() []byte {
	return b.data
}

// Size returns the buffer length in bytes
func (b *Buffer) Size() int {
	return len(b.data)
}

// Format returns the PCM format of the data
func (b *Buffer) Format() Format {
	return b.format
}

// Frames returns the number of whole frames in the buffer
func (b *Buffer) Frames() int {
	return b.format.Frames(len(b.data))
}

// Cursor is a read position into one buffer. It owns one reference.
// Cursors are not safe for concurrent use; the owning queue serializes access.
type Cursor struct {
	buf    *Buffer
	offset int
	linked bool
}

// NewCursor acquires a reference on b and starts reading at offset zero
func NewCursor(b *Buffer) *Cursor {
	return &Cursor{buf: b.Acquire()}
}

// Buffer returns the underlying buffer
func (c *Cursor) Buffer() *Buffer {
	return c.buf
}

// Offset returns the number of bytes already read
func (c *Cursor) Offset() int {
	return c.offset
}

// AvailableBytes returns the unread byte count
func (c *Cursor) AvailableBytes() int {
	return c.buf.Size() - c.offset
}

// AvailableFrames returns the unread whole frames
func (c *Cursor) AvailableFrames() int {
	return c.buf.format.Frames(c.AvailableBytes())
}

// Remaining returns the unread part of the data
func (c *Cursor) Remaining() []byte {
	return c.buf.data[c.offset:]
}

// Advance moves the read position forward by n bytes, stopping at the end
func (c *Cursor) Advance(n int) {
	c.offset = min(c.offset+n, c.buf.Size())
}

// Destroy releases the buffer reference. A cursor still in a queue cannot be destroyed.
func (c *Cursor) Destroy() error {
	if c.linked {
		return ErrCursorLinked
	}
	if c.buf != nil {
		c.buf.Release()
		c.buf = nil
	}
	return nil
}
