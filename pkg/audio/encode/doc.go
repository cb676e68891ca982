// ABOUTME: Audio encoder package for recording mixed PCM
// ABOUTME: Provides the PCMWriter interface with WAV and Opus implementations
// Package encode writes raw PCM to files.
//
// Supports: WAV (8, 16, 24 and 32-bit integer PCM), Opus packet files
//
// Writers accept arbitrary byte counts; partial frames are held until
// completed by the next Write.
//
// Example:
//
//	w, err := encode.NewWAV(file, format)
//	n, err := w.Write(pcm)
//	err = w.Close()
package encode
