// ABOUTME: Format conversion and additive mixing primitive
// ABOUTME: Re-encodes, remaps channels and resamples source frames into a destination
package audio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Resonate-Protocol/hound/pkg/audio/resample"
)

// ConvertAndMix converts the frames in src from srcFmt to dstFmt and adds
// them to the frames already in dst, clipping at full scale. It returns the
// number of source frames consumed and destination frames produced. Partial
// trailing frames in either buffer are ignored. Rate conversion starts at the
// first source frame; use ConvertAndMixAt to continue a resampled stream.
func ConvertAndMix(dst []byte, dstFmt Format, src []byte, srcFmt Format) (consumed, produced int, err error) {
	var pos resample.Position
	return ConvertAndMixAt(dst, dstFmt, src, srcFmt, &pos)
}

// ConvertAndMixAt is ConvertAndMix for a stream whose resampling position is
// carried in pos. consumed may be 0 while produced is not when upsampling by
// a large factor. pos is reset when the rates match.
func ConvertAndMixAt(dst []byte, dstFmt Format, src []byte, srcFmt Format, pos *resample.Position) (consumed, produced int, err error) {
	if err := srcFmt.Validate(); err != nil {
		return 0, 0, fmt.Errorf("source: %w", err)
	}
	if err := dstFmt.Validate(); err != nil {
		return 0, 0, fmt.Errorf("destination: %w", err)
	}

	srcFrames := srcFmt.Frames(len(src))
	dstFrames := dstFmt.Frames(len(dst))
	if srcFrames == 0 || dstFrames == 0 {
		return 0, 0, nil
	}

	if srcFmt.SampleRate == dstFmt.SampleRate {
		pos.Reset()
		n := min(srcFrames, dstFrames)
		if srcFmt == dstFmt && srcFmt.Encoding == EncodingS16LE {
			mixS16LE(dst[:n*dstFmt.FrameSize()], src[:n*srcFmt.FrameSize()])
			return n, n, nil
		}
		for i := 0; i < n; i++ {
			mixFrame(dst, dstFmt, i, src, srcFmt, i)
		}
		return n, n, nil
	}

	// Rate conversion goes through a float buffer already remapped to the
	// destination channel layout.
	need := min(srcFrames, pos.InputFramesNeeded(srcFmt.SampleRate, dstFmt.SampleRate, dstFrames))
	in := make([]float64, need*dstFmt.Channels)
	frame := make([]float64, dstFmt.Channels)
	for i := 0; i < need; i++ {
		remapFrame(frame, src, srcFmt, i)
		copy(in[i*dstFmt.Channels:], frame)
	}

	out := make([]float64, dstFrames*dstFmt.Channels)
	consumed, produced = pos.Linear(in, srcFmt.SampleRate, out, dstFmt.SampleRate, dstFmt.Channels)

	bps := dstFmt.Encoding.BytesPerSample()
	for i := 0; i < produced*dstFmt.Channels; i++ {
		b := dst[i*bps:]
		encodeSample(dstFmt.Encoding, b, decodeSample(dstFmt.Encoding, b)+out[i])
	}
	return consumed, produced, nil
}

// remapFrame decodes source frame idx into out using the destination channel count.
// Extra source channels are averaged into out[c % len(out)]; missing ones repeat.
func remapFrame(out []float64, src []byte, srcFmt Format, idx int) {
	bps := srcFmt.Encoding.BytesPerSample()
	base := idx * srcFmt.FrameSize()
	dstCh := len(out)

	if srcFmt.Channels <= dstCh {
		for c := range out {
			out[c] = decodeSample(srcFmt.Encoding, src[base+(c%srcFmt.Channels)*bps:])
		}
		return
	}

	clear(out)
	counts := make([]int, dstCh)
	for c := 0; c < srcFmt.Channels; c++ {
		out[c%dstCh] += decodeSample(srcFmt.Encoding, src[base+c*bps:])
		counts[c%dstCh]++
	}
	for c := range out {
		out[c] /= float64(counts[c])
	}
}

func mixFrame(dst []byte, dstFmt Format, dstIdx int, src []byte, srcFmt Format, srcIdx int) {
	var stack [8]float64
	var frame []float64
	if dstFmt.Channels <= len(stack) {
		frame = stack[:dstFmt.Channels]
	} else {
		frame = make([]float64, dstFmt.Channels)
	}
	remapFrame(frame, src, srcFmt, srcIdx)

	bps := dstFmt.Encoding.BytesPerSample()
	base := dstIdx * dstFmt.FrameSize()
	for c, v := range frame {
		b := dst[base+c*bps:]
		encodeSample(dstFmt.Encoding, b, decodeSample(dstFmt.Encoding, b)+v)
	}
}

// mixS16LE adds equally formatted 16-bit samples with int32 headroom
func mixS16LE(dst, src []byte) {
	for i := 0; i+1 < len(dst) && i+1 < len(src); i += 2 {
		sum := int32(int16(binary.LittleEndian.Uint16(dst[i:]))) + int32(int16(binary.LittleEndian.Uint16(src[i:])))
		binary.LittleEndian.PutUint16(dst[i:], uint16(clampInt16(sum)))
	}
}

func clampInt16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
