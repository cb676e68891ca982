// ABOUTME: Audio type definitions
// ABOUTME: Defines PCM formats, sample encodings and frame arithmetic
package audio

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

var (
	// ErrInvalidFormat is returned for formats that cannot describe PCM data
	ErrInvalidFormat = errors.New("invalid audio format")
	// ErrUnsupportedFormat is returned when no conversion exists between two formats
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// SampleEncoding describes how a single sample is laid out in memory
type SampleEncoding int

const (
	// EncodingAny means the encoding has not been negotiated yet
	EncodingAny SampleEncoding = iota
	EncodingU8
	EncodingS8
	EncodingS16LE
	EncodingS16BE
	EncodingU16LE
	EncodingU16BE
	EncodingS24LE // packed, 3 bytes per sample
	EncodingS32LE
	EncodingS32BE
	EncodingF32LE
)

var encodingNames = map[SampleEncoding]string{
	EncodingAny:   "any",
	EncodingU8:    "u8",
	EncodingS8:    "s8",
	EncodingS16LE: "s16le",
	EncodingS16BE: "s16be",
	EncodingU16LE: "u16le",
	EncodingU16BE: "u16be",
	EncodingS24LE: "s24le",
	EncodingS32LE: "s32le",
	EncodingS32BE: "s32be",
	EncodingF32LE: "f32le",
}

// String returns the short lowercase name of the encoding
func (e SampleEncoding) String() string {
	if name, ok := encodingNames[e]; ok {
		return name
	}
	return fmt.Sprintf("encoding(%d)", int(e))
}

// ParseEncoding maps a name such as "s16le" back to its encoding
func ParseEncoding(name string) (SampleEncoding, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for enc, n := range encodingNames {
		if n == name {
			return enc, nil
		}
	}
	return EncodingAny, fmt.Errorf("%w: unknown sample encoding %q", ErrInvalidFormat, name)
}

// MarshalText implements encoding.TextMarshaler
func (e SampleEncoding) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (e *SampleEncoding) UnmarshalText(text []byte) error {
	enc, err := ParseEncoding(string(text))
	if err != nil {
		return err
	}
	*e = enc
	return nil
}

// BytesPerSample returns the storage size of one sample, or 0 for EncodingAny
func (e SampleEncoding) BytesPerSample() int {
	switch e {
	case EncodingU8, EncodingS8:
		return 1
	case EncodingS16LE, EncodingS16BE, EncodingU16LE, EncodingU16BE:
		return 2
	case EncodingS24LE:
		return 3
	case EncodingS32LE, EncodingS32BE, EncodingF32LE:
		return 4
	default:
		return 0
	}
}

// Format describes raw PCM audio. The zero value means "any".
type Format struct {
	Channels   int            `json:"channels"`
	SampleRate int            `json:"sample_rate"`
	Encoding   SampleEncoding `json:"encoding"`
}

// DefaultFormat is used when neither side of a negotiation names a format
var DefaultFormat = Format{
	Channels:   2,
	SampleRate: 44100,
	Encoding:   EncodingS16LE,
}

// IsAny reports whether the format is still unnegotiated
func (f Format) IsAny() bool {
	return f.Channels == 0 && f.SampleRate == 0 && f.Encoding == EncodingAny
}

// Validate checks that every field of a concrete format is usable
func (f Format) Validate() error {
	if f.Channels <= 0 || f.Channels > 32 {
		return fmt.Errorf("%w: channels=%d", ErrInvalidFormat, f.Channels)
	}
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate=%d", ErrInvalidFormat, f.SampleRate)
	}
	if f.Encoding.BytesPerSample() == 0 {
		return fmt.Errorf("%w: encoding=%s", ErrInvalidFormat, f.Encoding)
	}
	return nil
}

// FrameSize returns channels * bytes per sample
func (f Format) FrameSize() int {
	return f.Channels * f.Encoding.BytesPerSample()
}

// Frames returns how many whole frames fit in n bytes
func (f Format) Frames(n int) int {
	fs := f.FrameSize()
	if fs <= 0 {
		return 0
	}
	return n / fs
}

// Bytes returns the size of the given number of frames
func (f Format) Bytes(frames int) int {
	return frames * f.FrameSize()
}

func (f Format) String() string {
	if f.IsAny() {
		return "any"
	}
	return fmt.Sprintf("%dch/%dHz/%s", f.Channels, f.SampleRate, f.Encoding)
}

// Silence fills dst with the silent value of the format's encoding
func Silence(dst []byte, f Format) {
	switch f.Encoding {
	case EncodingU8:
		for i := range dst {
			dst[i] = 0x80
		}
	case EncodingU16LE:
		for i := 0; i+1 < len(dst); i += 2 {
			dst[i], dst[i+1] = 0x00, 0x80
		}
	case EncodingU16BE:
		for i := 0; i+1 < len(dst); i += 2 {
			dst[i], dst[i+1] = 0x80, 0x00
		}
	default:
		clear(dst)
	}
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	// Take lower 24 bits, pack little-endian
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}
