// ABOUTME: Per-sample codecs between encoded bytes and normalized float64
// ABOUTME: Encoding saturates to the target range so mixing can never wrap
package audio

import (
	"encoding/binary"
	"math"
)

// Full-scale values for each integer width
const (
	scale8  = 128.0
	scale16 = 32768.0
	scale24 = 8388608.0
	scale32 = 2147483648.0
)

// decodeSample reads one sample at b and returns it in [-1, 1)
func decodeSample(e SampleEncoding, b []byte) float64 {
	switch e {
	case EncodingU8:
		return (float64(b[0]) - scale8) / scale8
	case EncodingS8:
		return float64(int8(b[0])) / scale8
	case EncodingS16LE:
		return float64(int16(binary.LittleEndian.Uint16(b))) / scale16
	case EncodingS16BE:
		return float64(int16(binary.BigEndian.Uint16(b))) / scale16
	case EncodingU16LE:
		return (float64(binary.LittleEndian.Uint16(b)) - scale16) / scale16
	case EncodingU16BE:
		return (float64(binary.BigEndian.Uint16(b)) - scale16) / scale16
	case EncodingS24LE:
		return float64(SampleFrom24Bit([3]byte{b[0], b[1], b[2]})) / scale24
	case EncodingS32LE:
		return float64(int32(binary.LittleEndian.Uint32(b))) / scale32
	case EncodingS32BE:
		return float64(int32(binary.BigEndian.Uint32(b))) / scale32
	case EncodingF32LE:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	}
	return 0
}

// quantize scales v to an integer range and clamps it
func quantize(v, scale float64, lo, hi int64) int64 {
	q := int64(math.Round(v * scale))
	if q > hi {
		return hi
	}
	if q < lo {
		return lo
	}
	return q
}

// encodeSample writes v into b, clipping at full scale
func encodeSample(e SampleEncoding, b []byte, v float64) {
	switch e {
	case EncodingU8:
		b[0] = byte(quantize(v, scale8, -128, 127) + 128)
	case EncodingS8:
		b[0] = byte(int8(quantize(v, scale8, -128, 127)))
	case EncodingS16LE:
		binary.LittleEndian.PutUint16(b, uint16(int16(quantize(v, scale16, math.MinInt16, math.MaxInt16))))
	case EncodingS16BE:
		binary.BigEndian.PutUint16(b, uint16(int16(quantize(v, scale16, math.MinInt16, math.MaxInt16))))
	case EncodingU16LE:
		binary.LittleEndian.PutUint16(b, uint16(quantize(v, scale16, math.MinInt16, math.MaxInt16)+32768))
	case EncodingU16BE:
		binary.BigEndian.PutUint16(b, uint16(quantize(v, scale16, math.MinInt16, math.MaxInt16)+32768))
	case EncodingS24LE:
		packed := SampleTo24Bit(int32(quantize(v, scale24, Min24Bit, Max24Bit)))
		copy(b, packed[:])
	case EncodingS32LE:
		binary.LittleEndian.PutUint32(b, uint32(int32(quantize(v, scale32, math.MinInt32, math.MaxInt32))))
	case EncodingS32BE:
		binary.BigEndian.PutUint32(b, uint32(int32(quantize(v, scale32, math.MinInt32, math.MaxInt32))))
	case EncodingF32LE:
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	}
}
