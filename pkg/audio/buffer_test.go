// ABOUTME: Tests for reference counted buffers and cursors
// ABOUTME: Verifies free-exactly-once semantics and cursor bookkeeping
package audio

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferRefcount(t *testing.T) {
	var frees atomic.Int32
	b := NewBuffer(make([]byte, 16), stereo16, WithFree(func([]byte) { frees.Add(1) }))
	assert.Equal(t, 1, b.Refs())
	assert.Equal(t, 4, b.Frames())
	assert.Equal(t, 16, b.Size())

	b.Acquire()
	assert.Equal(t, 2, b.Refs())

	b.Release()
	assert.Equal(t, int32(0), frees.Load())

	b.Release()
	assert.Equal(t, int32(1), frees.Load())
	assert.Nil(t, b.Data())
}

func TestBufferOverReleasePanics(t *testing.T) {
	b := NewBuffer(make([]byte, 4), stereo16)
	b.Release()
	assert.Panics(t, func() { b.Release() })
}

func TestBufferConcurrentRefs(t *testing.T) {
	var frees atomic.Int32
	b := NewBuffer(make([]byte, 64), stereo16, WithFree(func([]byte) { frees.Add(1) }))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		b.Acquire()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Acquire()
				b.Release()
			}
			b.Release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(0), frees.Load())
	b.Release()
	assert.Equal(t, int32(1), frees.Load())
}

func TestCursor(t *testing.T) {
	var frees atomic.Int32
	b := NewBuffer(make([]byte, 18), stereo16, WithFree(func([]byte) { frees.Add(1) }))

	c := NewCursor(b)
	assert.Equal(t, 2, b.Refs())
	assert.Equal(t, 4, c.AvailableFrames())
	assert.Equal(t, 18, c.AvailableBytes())

	c.Advance(8)
	assert.Equal(t, 8, c.Offset())
	assert.Equal(t, 2, c.AvailableFrames())
	assert.Len(t, c.Remaining(), 10)

	c.Advance(100)
	assert.Equal(t, 0, c.AvailableBytes())

	b.Release()
	assert.Equal(t, int32(0), frees.Load(), "cursor still holds a reference")

	require.NoError(t, c.Destroy())
	assert.Equal(t, int32(1), frees.Load())
}

func TestCursorDestroyWhileLinked(t *testing.T) {
	b := NewBuffer(make([]byte, 4), stereo16)
	c := NewCursor(b)
	c.linked = true

	assert.ErrorIs(t, c.Destroy(), ErrCursorLinked)
	assert.Equal(t, 2, b.Refs())

	c.linked = false
	require.NoError(t, c.Destroy())
	assert.Equal(t, 1, b.Refs())
}
