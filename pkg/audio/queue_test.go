// ABOUTME: Tests for the cursor queue
// ABOUTME: Checks cached totals, mix accounting, pop, raw reads and concurrent use
package audio

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreadBytes walks the cursors and sums what is left to read
func unreadBytes(q *Queue) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	total := 0
	for e := q.cursors.Front(); e != nil; e = e.Next() {
		c := e.Value.(*Cursor)
		total += c.Buffer().Size() - c.Offset()
	}
	return total
}

func rampBuffer(frames int, start int16) *Buffer {
	samples := make([]int16, frames*2)
	for i := range samples {
		samples[i] = start + int16(i)
	}
	return NewBuffer(pcm16(samples...), stereo16)
}

func TestQueuePushTotals(t *testing.T) {
	q := NewQueue()

	wasEmpty, err := q.Push(rampBuffer(10, 0))
	require.NoError(t, err)
	assert.True(t, wasEmpty)

	wasEmpty, err = q.Push(rampBuffer(5, 0))
	require.NoError(t, err)
	assert.False(t, wasEmpty)

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 15, q.Frames())
	assert.Equal(t, 60, q.Bytes())
	assert.Equal(t, unreadBytes(q), q.Bytes())
}

func TestQueueTotalsMatchCursors(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 5; i++ {
		_, err := q.Push(rampBuffer(7, 0))
		require.NoError(t, err)
	}

	dst := make([]byte, stereo16.Bytes(3))
	for q.Bytes() > 0 {
		_, err := q.MixInto(dst, stereo16)
		require.NoError(t, err)
		assert.Equal(t, unreadBytes(q), q.Bytes())
		assert.Equal(t, stereo16.Frames(q.Bytes()), q.Frames())
	}

	_, err := q.Push(rampBuffer(4, 0))
	require.NoError(t, err)
	_ = q.Read(make([]byte, 6))
	assert.Equal(t, unreadBytes(q), q.Bytes())

	b, err := q.Pop()
	assert.ErrorIs(t, err, ErrPartialBuffer)
	assert.Nil(t, b)
	assert.Equal(t, unreadBytes(q), q.Bytes())
}

func TestQueueMixSplitMatchesWhole(t *testing.T) {
	whole, split := NewQueue(), NewQueue()
	for _, q := range []*Queue{whole, split} {
		_, _ = q.Push(rampBuffer(6, 0))
		_, _ = q.Push(rampBuffer(9, 100))
	}

	const n = 12
	a := make([]byte, stereo16.Bytes(n))
	written, err := whole.MixInto(a, stereo16)
	require.NoError(t, err)
	assert.Equal(t, len(a), written)

	b := make([]byte, stereo16.Bytes(n))
	half := stereo16.Bytes(n / 2)
	w1, err := split.MixInto(b[:half], stereo16)
	require.NoError(t, err)
	w2, err := split.MixInto(b[half:], stereo16)
	require.NoError(t, err)

	assert.Equal(t, written, w1+w2)
	assert.Equal(t, a, b)
	assert.Equal(t, whole.Bytes(), split.Bytes())
	assert.Equal(t, 3, whole.Frames())
}

func TestQueueResampledSplitMatchesWhole(t *testing.T) {
	out := Format{Channels: 2, SampleRate: 48000, Encoding: EncodingS16LE}
	whole, split := NewQueue(), NewQueue()
	for _, q := range []*Queue{whole, split} {
		_, _ = q.Push(rampBuffer(2000, 0))
	}

	const n, period = 960, 120
	a := make([]byte, out.Bytes(n))
	written, err := whole.MixInto(a, out)
	require.NoError(t, err)
	assert.Equal(t, len(a), written)

	b := make([]byte, out.Bytes(n))
	total := 0
	for off := 0; off < len(b); off += out.Bytes(period) {
		w, err := split.MixInto(b[off:off+out.Bytes(period)], out)
		require.NoError(t, err)
		total += w
	}

	assert.Equal(t, written, total)
	assert.Equal(t, a, b)
	// 960 frames at 48 kHz cover exactly 882 frames at 44.1 kHz
	assert.Equal(t, 2000-882, whole.Frames())
	assert.Equal(t, whole.Frames(), split.Frames())
	assert.Equal(t, unreadBytes(split), split.Bytes())
}

func TestQueueUpsamplesInTinyPeriods(t *testing.T) {
	in := Format{Channels: 1, SampleRate: 8000, Encoding: EncodingS16LE}
	out := Format{Channels: 1, SampleRate: 48000, Encoding: EncodingS16LE}
	q := NewQueue()
	_, _ = q.Push(NewBuffer(make([]byte, in.Bytes(10)), in))

	frames := 0
	dst := make([]byte, out.Bytes(2))
	for i := 0; i < 100; i++ {
		w, err := q.MixInto(dst, out)
		require.NoError(t, err)
		frames += out.Frames(w)
	}

	assert.Equal(t, 0, q.Frames())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 60, frames, "each source frame yields six output frames")
}

func TestQueueRoundTrip(t *testing.T) {
	var frees atomic.Int32
	data := pcm16(1, 2, 3, 4, 5, 6)
	buf := NewBuffer(data, stereo16, WithFree(func([]byte) { frees.Add(1) }))

	q := NewQueue()
	_, err := q.Push(buf)
	require.NoError(t, err)
	buf.Release()
	assert.Equal(t, int32(0), frees.Load())

	dst := make([]byte, stereo16.Bytes(5))
	written, err := q.MixInto(dst, stereo16)
	require.NoError(t, err)
	assert.Equal(t, stereo16.Bytes(3), written)
	assert.Equal(t, []int16{1, 2, 3, 4, 5, 6, 0, 0, 0, 0}, samples16(dst))
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, q.Bytes())
	assert.Equal(t, int32(1), frees.Load())
}

func TestQueueShortMixLeavesTail(t *testing.T) {
	q := NewQueue()
	_, _ = q.Push(NewBuffer(pcm16(10, 10), stereo16))

	dst := pcm16(1, 1, 7, 7)
	written, err := q.MixInto(dst, stereo16)
	require.NoError(t, err)
	assert.Equal(t, 4, written)
	assert.Equal(t, []int16{11, 11, 7, 7}, samples16(dst))
}

func TestQueueMixConverts(t *testing.T) {
	q := NewQueue()
	_, _ = q.Push(NewBuffer(pcm16(100, 200), mono16))

	dst := make([]byte, stereo16.Bytes(2))
	written, err := q.MixInto(dst, stereo16)
	require.NoError(t, err)
	assert.Equal(t, len(dst), written)
	assert.Equal(t, []int16{100, 100, 200, 200}, samples16(dst))
}

func TestQueueDropsUnconvertible(t *testing.T) {
	q := NewQueue()
	_, _ = q.Push(NewBuffer(make([]byte, 8), Format{}))
	_, _ = q.Push(NewBuffer(pcm16(5, 5), stereo16))

	dst := make([]byte, 4)
	written, err := q.MixInto(dst, stereo16)
	assert.ErrorIs(t, err, ErrInvalidFormat)
	assert.Equal(t, 4, written)
	assert.Equal(t, 0, q.Len())
}

func TestQueuePop(t *testing.T) {
	q := NewQueue()
	_, err := q.Pop()
	assert.ErrorIs(t, err, ErrQueueEmpty)

	buf := NewBuffer(pcm16(1, 2), stereo16)
	_, _ = q.Push(buf)

	got, err := q.Pop()
	require.NoError(t, err)
	assert.Same(t, buf, got)
	assert.Equal(t, 2, buf.Refs(), "caller and producer each hold one")
	assert.Equal(t, 0, q.Bytes())
	got.Release()
	buf.Release()
}

func TestQueueRead(t *testing.T) {
	q := NewQueue()
	_, _ = q.Push(NewBuffer([]byte{1, 2, 3, 4}, stereo16))
	_, _ = q.Push(NewBuffer([]byte{5, 6, 7, 8}, stereo16))

	p := make([]byte, 6)
	assert.Equal(t, 6, q.Read(p))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, p)
	assert.Equal(t, 2, q.Bytes())
	assert.Equal(t, 1, q.Len())

	assert.Equal(t, 2, q.Read(p))
	assert.Equal(t, 0, q.Read(p))
}

func TestQueueClose(t *testing.T) {
	var frees atomic.Int32
	q := NewQueue()
	buf := NewBuffer(make([]byte, 8), stereo16, WithFree(func([]byte) { frees.Add(1) }))
	_, _ = q.Push(buf)
	buf.Release()

	q.Close()
	assert.Equal(t, int32(1), frees.Load())
	assert.Equal(t, 0, q.Bytes())

	late := NewBuffer(make([]byte, 8), stereo16)
	_, err := q.Push(late)
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.Equal(t, 1, late.Refs())
}

func TestQueueClear(t *testing.T) {
	q := NewQueue()
	_, _ = q.Push(rampBuffer(10, 0))
	_, _ = q.Push(rampBuffer(5, 0))

	assert.Equal(t, 15, q.Clear())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, q.Bytes())
	assert.Equal(t, 0, q.Clear())

	_, err := q.Push(rampBuffer(1, 0))
	assert.NoError(t, err, "a cleared queue still accepts data")
}

func TestQueueConcurrentPushMix(t *testing.T) {
	const buffers = 200
	var frees atomic.Int32
	q := NewQueue()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < buffers; i++ {
			b := NewBuffer(make([]byte, stereo16.Bytes(16)), stereo16, WithFree(func([]byte) { frees.Add(1) }))
			_, _ = q.Push(b)
			b.Release()
		}
	}()

	mixed := 0
	dst := make([]byte, stereo16.Bytes(10))
	for mixed < buffers*16 {
		n, err := q.MixInto(dst, stereo16)
		require.NoError(t, err)
		mixed += stereo16.Frames(n)
	}
	wg.Wait()

	assert.Equal(t, buffers*16, mixed)
	assert.Equal(t, 0, q.Bytes())
	assert.Equal(t, int32(buffers), frees.Load())
}
