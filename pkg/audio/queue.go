// ABOUTME: FIFO of buffer cursors with cached byte and frame totals
// ABOUTME: Supports push, whole-buffer pop, raw reads and additive mixing
package audio

import (
	"container/list"
	"errors"
	"sync"

	"github.com/Resonate-Protocol/hound/pkg/audio/resample"
)

var (
	// ErrQueueEmpty is returned by Pop when nothing is buffered
	ErrQueueEmpty = errors.New("queue is empty")
	// ErrPartialBuffer is returned by Pop when the head buffer was partly consumed
	ErrPartialBuffer = errors.New("head buffer partially consumed")
	// ErrQueueClosed is returned by Push after Close
	ErrQueueClosed = errors.New("queue is closed")
)

// Queue is an ordered list of cursors. Producers append at the tail and the
// consumer drains from the head. All methods are safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	cursors *list.List
	bytes   int
	frames  int
	closed  bool
	// resampling offset into the head cursor, carried across MixInto calls
	pos resample.Position
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{cursors: list.New()}
}

// Push appends a new cursor over b. The queue takes its own reference; the
// caller keeps the one it had. Returns true if the queue was empty before.
func (q *Queue) Push(b *Buffer) (wasEmpty bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false, ErrQueueClosed
	}

	c := NewCursor(b)
	c.linked = true
	wasEmpty = q.cursors.Len() == 0
	q.cursors.PushBack(c)
	q.bytes += c.AvailableBytes()
	q.frames += c.AvailableFrames()
	return wasEmpty, nil
}

// Pop removes the head buffer if it has not been read yet. The caller owns
// one reference to the returned buffer and must Release it.
func (q *Queue) Pop() (*Buffer, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	front := q.cursors.Front()
	if front == nil {
		return nil, ErrQueueEmpty
	}
	c := front.Value.(*Cursor)
	if c.offset != 0 {
		return nil, ErrPartialBuffer
	}

	b := c.buf.Acquire()
	q.remove(front)
	q.pos.Reset()
	return b, nil
}

// Read copies raw bytes from the head of the queue into p without any format
// conversion. It returns 0 when the queue is empty.
func (q *Queue) Read(p []byte) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for n < len(p) {
		front := q.cursors.Front()
		if front == nil {
			break
		}
		c := front.Value.(*Cursor)
		copied := copy(p[n:], c.Remaining())
		q.advance(c, copied)
		q.pos.Reset()
		n += copied
		if c.AvailableBytes() == 0 {
			q.remove(front)
		}
	}
	return n
}

// MixInto adds up to len(dst) bytes worth of queued audio into dst, which is
// in the given format. It returns the bytes of dst actually written. When the
// queue runs dry the rest of dst is left untouched. A chunk that cannot be
// converted to format is dropped and its error returned after mixing the rest.
// A sample rate conversion keeps its position between calls, so mixing N
// frames in several calls consumes the same source frames as one call.
func (q *Queue) MixInto(dst []byte, format Format) (int, error) {
	frameSize := format.FrameSize()
	if frameSize == 0 {
		return 0, ErrInvalidFormat
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	needed := format.Frames(len(dst))
	written := 0
	var mixErr error

	for needed > 0 {
		front := q.cursors.Front()
		if front == nil {
			break
		}
		c := front.Value.(*Cursor)

		if err := c.buf.format.Validate(); err != nil {
			if mixErr == nil {
				mixErr = err
			}
			q.remove(front)
			q.pos.Reset()
			continue
		}
		if c.AvailableFrames() == 0 {
			q.remove(front)
			continue
		}

		consumed, produced, err := ConvertAndMixAt(dst[written:written+needed*frameSize], format, c.Remaining(), c.buf.format, &q.pos)
		if err != nil {
			if mixErr == nil {
				mixErr = err
			}
			q.remove(front)
			q.pos.Reset()
			continue
		}
		if consumed == 0 && produced == 0 {
			break
		}

		q.advance(c, c.buf.format.Bytes(consumed))
		if c.AvailableFrames() == 0 {
			q.remove(front)
		}

		needed -= produced
		written += produced * frameSize
	}

	return written, mixErr
}

// Frames returns the number of buffered whole frames
func (q *Queue) Frames() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.frames
}

// Bytes returns the number of unread bytes
func (q *Queue) Bytes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bytes
}

// Len returns the number of queued buffers
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cursors.Len()
}

// Clear drops every buffered cursor and returns the frames discarded
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	dropped := q.frames
	q.clear()
	return dropped
}

// Close drops every buffered cursor and rejects later pushes
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.clear()
	q.closed = true
}

func (q *Queue) clear() {
	for e := q.cursors.Front(); e != nil; e = q.cursors.Front() {
		q.remove(e)
	}
	q.pos.Reset()
}

// advance moves c forward and keeps the cached totals in sync. Caller holds q.mu.
func (q *Queue) advance(c *Cursor, n int) {
	beforeBytes, beforeFrames := c.AvailableBytes(), c.AvailableFrames()
	c.Advance(n)
	q.bytes -= beforeBytes - c.AvailableBytes()
	q.frames -= beforeFrames - c.AvailableFrames()
}

// remove unlinks and destroys the cursor at e. Caller holds q.mu.
func (q *Queue) remove(e *list.Element) {
	c := q.cursors.Remove(e).(*Cursor)
	q.bytes -= c.AvailableBytes()
	q.frames -= c.AvailableFrames()
	c.linked = false
	_ = c.Destroy()
}
