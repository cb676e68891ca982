// ABOUTME: Linear interpolation resampler for interleaved float64 frames
// ABOUTME: Reports consumed and produced frames so callers can advance exactly
package resample

import "math"

// Ratio returns how many input frames advance per output frame
func Ratio(inputRate, outputRate int) float64 {
	return float64(inputRate) / float64(outputRate)
}

// InputFramesNeeded calculates how many input frames are read to produce outputFrames.
// One extra frame is included for the interpolation neighbour.
func InputFramesNeeded(inputRate, outputRate, outputFrames int) int {
	if outputFrames <= 0 {
		return 0
	}
	return int(math.Ceil(float64(outputFrames)*Ratio(inputRate, outputRate))) + 1
}

// OutputFrames calculates how many output frames inputFrames can produce
func OutputFrames(inputRate, outputRate, inputFrames int) int {
	if inputFrames <= 0 {
		return 0
	}
	ratio := Ratio(inputRate, outputRate)
	return int(math.Ceil(float64(inputFrames) / ratio))
}

// Position is the read position of a resampled stream. It is carried between
// calls so that converting in small chunks advances through the input exactly
// like one large call. The zero value starts at the first input frame.
type Position struct {
	inputRate  int
	outputRate int
	// offset from the next unread input frame, in 1/outputRate frames
	acc int64
}

// Reset moves the position back to the start of the next input frame
func (p *Position) Reset() {
	*p = Position{}
}

// offset returns the carried offset if it was taken at the same rates
func (p *Position) offset(inputRate, outputRate int) int64 {
	if p.inputRate != inputRate || p.outputRate != outputRate {
		return 0
	}
	return p.acc
}

// InputFramesNeeded returns how many input frames the next Linear call reads
// to produce outputFrames, including the interpolation neighbour of the last one.
func (p *Position) InputFramesNeeded(inputRate, outputRate, outputFrames int) int {
	if outputFrames <= 0 || inputRate <= 0 || outputRate <= 0 {
		return 0
	}
	last := (p.offset(inputRate, outputRate) + int64(outputFrames-1)*int64(inputRate)) / int64(outputRate)
	return int(last) + 2
}

// Linear converts input at inputRate into output at outputRate, starting at
// the carried position. input and output are interleaved with the given
// channel count. consumed is how far the caller should advance its input;
// any remainder stays in p for the next call.
func (p *Position) Linear(input []float64, inputRate int, output []float64, outputRate, channels int) (consumed, produced int) {
	if channels <= 0 || inputRate <= 0 || outputRate <= 0 {
		return 0, 0
	}

	inputFrames := len(input) / channels
	outputFrames := len(output) / channels
	if inputFrames == 0 || outputFrames == 0 {
		return 0, 0
	}

	pos := p.offset(inputRate, outputRate)
	step, scale := int64(inputRate), int64(outputRate)

	for produced < outputFrames {
		idx := int(pos / scale)

		// If we've consumed all input, stop
		if idx >= inputFrames {
			break
		}

		next := min(idx+1, inputFrames-1)
		frac := float64(pos%scale) / float64(scale)

		for ch := 0; ch < channels; ch++ {
			s1 := input[idx*channels+ch]
			s2 := input[next*channels+ch]
			output[produced*channels+ch] = s1*(1.0-frac) + s2*frac
		}
		produced++
		pos += step
	}

	consumed = min(int(pos/scale), inputFrames)
	p.inputRate, p.outputRate = inputRate, outputRate
	p.acc = pos - int64(consumed)*scale
	return consumed, produced
}

// Linear converts input at inputRate into output at outputRate starting at
// the first input frame. It keeps no state between calls.
func Linear(input []float64, inputRate int, output []float64, outputRate, channels int) (consumed, produced int) {
	var p Position
	return p.Linear(input, inputRate, output, outputRate, channels)
}
