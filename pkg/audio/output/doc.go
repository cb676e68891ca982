// ABOUTME: Audio output package for playing mixed PCM
// ABOUTME: Provides the Output interface and an oto implementation
// Package output provides audio playback backends.
//
// Oto is the cross-platform backend. It plays 16-bit little-endian PCM;
// callers convert with audio.ConvertAndMix first.
//
// Example:
//
//	out := output.NewOto(logger)
//	err := out.Open(format)
//	_, err = out.Write(pcm)
package output
