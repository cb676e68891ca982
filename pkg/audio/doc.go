// ABOUTME: Audio fundamentals package providing PCM types and buffering
// ABOUTME: Defines Format, refcounted Buffer, Cursor, Queue and the mixing primitive
// Package audio provides the PCM building blocks of the routing graph.
//
// This package defines:
//   - Format: channel count, sample rate and sample encoding of raw PCM
//   - Buffer: an immutable, reference counted chunk of PCM data
//   - Cursor: a read position into one Buffer, owning one reference
//   - Queue: a FIFO of cursors that can be mixed into a destination
//   - ConvertAndMix: re-encodes, remaps channels, resamples and adds with clipping
//
// Example:
//
//	buf := audio.NewBuffer(pcm, audio.DefaultFormat)
//	q := audio.NewQueue()
//	q.Push(buf)
//	buf.Release()
//
//	out := make([]byte, 4096)
//	audio.Silence(out, audio.DefaultFormat)
//	n, err := q.MixInto(out, audio.DefaultFormat)
package audio
