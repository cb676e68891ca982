// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts audio between different sample rates
// Package resample provides audio sample rate conversion.
//
// Uses linear interpolation for converting between sample rates.
// Handles both upsampling and downsampling. A Position carries the
// fractional read offset of a stream between calls, so a stream converted
// in small chunks consumes exactly the input one large call would.
// The package-level Linear starts from a fresh Position every time.
//
// Example:
//
//	var pos resample.Position
//	consumed, produced := pos.Linear(in, 48000, out, 44100, 2)
package resample
