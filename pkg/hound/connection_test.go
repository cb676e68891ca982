// ABOUTME: Tests for the data path through connections and sinks
// ABOUTME: Covers push fan-out, pull on shortfall, data-available and additive sink mixing
package hound

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/hound/pkg/audio"
)

func TestPushFansOutToEveryConnection(t *testing.T) {
	r, _ := newTestRegistry(t)
	src := NewSource("A", stereo16, nil)
	require.NoError(t, r.AddSource(src))
	x := NewSink("X", audio.Format{}, nil)
	y := NewSink("Y", audio.Format{}, nil)
	require.NoError(t, r.AddSink(x))
	require.NoError(t, r.AddSink(y))
	_, _ = r.Connect("A", "X")
	_, _ = r.Connect("A", "Y")

	var frees atomic.Int32
	buf := audio.NewBuffer(pcm16(10, 20, 30, 40), stereo16, audio.WithFree(func([]byte) { frees.Add(1) }))
	src.PushBuffer(buf)
	assert.Equal(t, 3, buf.Refs())
	buf.Release()

	dx := make([]byte, 8)
	assert.Equal(t, 8, x.MixInputs(dx))
	assert.Equal(t, []int16{10, 20, 30, 40}, samples16(dx))
	assert.Equal(t, int32(0), frees.Load(), "Y still holds a reference")

	dy := make([]byte, 8)
	assert.Equal(t, 8, y.MixInputs(dy))
	assert.Equal(t, []int16{10, 20, 30, 40}, samples16(dy))
	assert.Equal(t, int32(1), frees.Load())
}

func TestSinkMixesConnectionsAdditively(t *testing.T) {
	r, m := newTestRegistry(t)
	a := NewSource("A", stereo16, nil)
	b := NewSource("B", mono16, nil)
	require.NoError(t, r.AddSource(a))
	require.NoError(t, r.AddSource(b))
	sink := NewSink("X", stereo16, nil)
	require.NoError(t, r.AddSink(sink))
	_, _ = r.Connect("A", "X")
	_, _ = r.Connect("B", "X")

	a.PushData(pcm16(100, 200, 300, 400))
	b.PushData(pcm16(5))

	dst := pcm16(9, 9, 9, 9, 9, 9)
	n := sink.MixInputs(dst)
	assert.Equal(t, 8, n)
	assert.Equal(t, []int16{105, 205, 300, 400, 0, 0}, samples16(dst), "silenced first, then mixed")

	v := m.snapshot()
	assert.Equal(t, 2, v.mixed)
	assert.Equal(t, 1+2, v.underruns, "A was one frame short, B two")
}

func TestSinkMixWithoutFormat(t *testing.T) {
	sink := NewSink("X", audio.Format{}, nil)
	dst := []byte{1, 2, 3, 4}
	assert.Equal(t, 0, sink.MixInputs(dst))
}

func TestPullOnShortfall(t *testing.T) {
	r, _ := newTestRegistry(t)
	var asked []int
	src := NewSource("gen", mono16, SourceFuncs{
		OnPull: func(s *Source, size int) error {
			asked = append(asked, size)
			data := make([]byte, size)
			for i := range data {
				data[i] = 1
			}
			s.PushData(data)
			return nil
		},
	})
	require.NoError(t, r.AddSource(src))
	sink := NewSink("out", mono16, nil)
	require.NoError(t, r.AddSink(sink))
	_, err := r.Connect("gen", "out")
	require.NoError(t, err)

	src.PushData(pcm16(7))
	dst := make([]byte, mono16.Bytes(4))
	assert.Equal(t, len(dst), sink.MixInputs(dst))
	assert.Equal(t, []int{mono16.Bytes(3)}, asked, "only the shortfall is requested")
	assert.Equal(t, int16(7), samples16(dst)[0])
	assert.Equal(t, int16(0x0101), samples16(dst)[1])
}

func TestDataAvailableOnEmptyToNonEmpty(t *testing.T) {
	r, _ := newTestRegistry(t)
	var notified atomic.Int32
	src := NewSource("A", stereo16, nil)
	sink := NewSink("X", stereo16, SinkFuncs{
		OnDataAvailable: func(*Sink) { notified.Add(1) },
	})
	require.NoError(t, r.AddSource(src))
	require.NoError(t, r.AddSink(sink))
	_, _ = r.Connect("A", "X")

	src.PushData(pcm16(1, 1))
	src.PushData(pcm16(2, 2))
	assert.Equal(t, int32(1), notified.Load())

	sink.MixInputs(make([]byte, 64))
	src.PushData(pcm16(3, 3))
	assert.Equal(t, int32(2), notified.Load())
}

func TestSinkSetFormat(t *testing.T) {
	t.Run("any picks default", func(t *testing.T) {
		s := NewSink("X", audio.Format{}, nil)
		require.NoError(t, s.SetFormat(audio.Format{}))
		assert.Equal(t, audio.DefaultFormat, s.Format())
		assert.ErrorIs(t, s.SetFormat(mono16), ErrAlreadyExists)
		assert.Equal(t, audio.DefaultFormat, s.Format())
	})

	t.Run("rejection rolls back", func(t *testing.T) {
		var checked audio.Format
		s := NewSink("X", audio.Format{}, SinkFuncs{
			OnFormatCheck: func(_ *Sink, f audio.Format) error {
				checked = f
				if f.SampleRate != 48000 {
					return assert.AnError
				}
				return nil
			},
		})
		err := s.SetFormat(mono16)
		assert.Equal(t, KindUnsupported, KindOf(err))
		assert.Equal(t, mono16, checked)
		assert.True(t, s.Format().IsAny())

		ok := audio.Format{Channels: 2, SampleRate: 48000, Encoding: audio.EncodingS32LE}
		require.NoError(t, s.SetFormat(ok))
		assert.Equal(t, ok, s.Format())
	})

	t.Run("invalid proposal", func(t *testing.T) {
		s := NewSink("X", audio.Format{}, nil)
		err := s.SetFormat(audio.Format{Channels: 2})
		assert.Equal(t, KindInvalidArgument, KindOf(err))
	})
}

func TestUnmixableAudioIsDropped(t *testing.T) {
	r, _ := newTestRegistry(t)
	src := NewSource("A", stereo16, nil)
	require.NoError(t, r.AddSource(src))
	sink := NewSink("X", stereo16, nil)
	require.NoError(t, r.AddSink(sink))
	c, err := r.Connect("A", "X")
	require.NoError(t, err)

	c.PushData(audio.NewBuffer(make([]byte, 16), audio.Format{Channels: 3}))
	assert.Equal(t, 0, sink.MixInputs(make([]byte, 16)))
	assert.Equal(t, 0, c.BufferedBytes())
}
