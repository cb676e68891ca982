// ABOUTME: Audio decoder package for file playback
// ABOUTME: Turns MP3, FLAC, WAV, Ogg Vorbis, Opus packet and raw files into PCM byte streams
// Package decode opens encoded audio and exposes it as raw PCM.
//
// Supports: MP3, FLAC, WAV, Ogg Vorbis, Opus packet files, raw PCM
//
// Every decoder returns a Stream whose Read yields whole frames in the
// format reported by Format. Streams end with io.EOF.
//
// Example:
//
//	s, err := decode.Open("song.flac")
//	n, err := s.Read(buf)
package decode
