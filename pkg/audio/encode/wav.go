// ABOUTME: WAV file writer built on go-audio/wav
// ABOUTME: Writes integer PCM and patches the RIFF header on Close
package encode

import (
	"encoding/binary"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/Resonate-Protocol/hound/pkg/audio"
)

// wavFormatPCM is the RIFF format tag of integer PCM
const wavFormatPCM = 1

// WAVWriter writes a WAV file
type WAVWriter struct {
	format  audio.Format
	encoder *wav.Encoder
	frames  frameBuffer
	buf     *goaudio.IntBuffer
}

// NewWAV creates a WAV writer. The format must use U8, S16LE, S24LE or S32LE.
func NewWAV(w io.WriteSeeker, format audio.Format) (*WAVWriter, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create WAV writer: %w", err)
	}
	switch format.Encoding {
	case audio.EncodingU8, audio.EncodingS16LE, audio.EncodingS24LE, audio.EncodingS32LE:
	default:
		return nil, fmt.Errorf("failed to create WAV writer: %w: %s", audio.ErrUnsupportedFormat, format.Encoding)
	}

	bits := format.Encoding.BytesPerSample() * 8
	return &WAVWriter{
		format:  format,
		encoder: wav.NewEncoder(w, format.SampleRate, bits, format.Channels, wavFormatPCM),
		frames:  frameBuffer{frameSize: format.FrameSize()},
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{
				NumChannels: format.Channels,
				SampleRate:  format.SampleRate,
			},
			SourceBitDepth: bits,
		},
	}, nil
}

// Format returns the layout Write expects
func (w *WAVWriter) Format() audio.Format { return w.format }

// Write appends PCM to the file
func (w *WAVWriter) Write(p []byte) (int, error) {
	data := w.frames.whole(p)
	if len(data) == 0 {
		return len(p), nil
	}

	bps := w.format.Encoding.BytesPerSample()
	samples := make([]int, len(data)/bps)
	for i := range samples {
		b := data[i*bps:]
		switch w.format.Encoding {
		case audio.EncodingU8:
			samples[i] = int(b[0])
		case audio.EncodingS16LE:
			samples[i] = int(int16(binary.LittleEndian.Uint16(b)))
		case audio.EncodingS24LE:
			samples[i] = int(audio.SampleFrom24Bit([3]byte{b[0], b[1], b[2]}))
		case audio.EncodingS32LE:
			samples[i] = int(int32(binary.LittleEndian.Uint32(b)))
		}
	}
	w.buf.Data = samples

	if err := w.encoder.Write(w.buf); err != nil {
		return 0, fmt.Errorf("wav write failed: %w", err)
	}
	return len(p), nil
}

// Close finalizes the header. The underlying writer is not closed.
func (w *WAVWriter) Close() error {
	if err := w.encoder.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV: %w", err)
	}
	return nil
}
