// ABOUTME: Opus packet file writer
// ABOUTME: Encodes 20ms frames and stores them length-prefixed after a small header
package encode

import (
	"encoding/binary"
	"fmt"
	"io"

	"gopkg.in/hraban/opus.v2"

	"github.com/Resonate-Protocol/hound/pkg/audio"
)

const (
	// OpusMagic starts every Opus packet file
	OpusMagic = "HOPK"
	// OpusHeaderSize is magic, channel count and big-endian sample rate
	OpusHeaderSize = 9
	// maxOpusPacket is the largest packet the encoder may produce
	maxOpusPacket = 4000
)

// OpusWriter writes an Opus packet file. Each packet is prefixed with its
// big-endian uint16 length.
type OpusWriter struct {
	w         io.Writer
	format    audio.Format
	encoder   *opus.Encoder
	frameSize int
	pcm       []int16
	packet    []byte
	frames    frameBuffer
}

// NewOpus creates an Opus writer for S16LE audio at an Opus sample rate
// (8000, 12000, 16000, 24000 or 48000 Hz) and writes the file header.
func NewOpus(w io.Writer, format audio.Format) (*OpusWriter, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create opus writer: %w", err)
	}
	if format.Encoding != audio.EncodingS16LE || format.Channels > 2 {
		return nil, fmt.Errorf("failed to create opus writer: %w: %s", audio.ErrUnsupportedFormat, format)
	}

	encoder, err := opus.NewEncoder(format.SampleRate, format.Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	header := make([]byte, OpusHeaderSize)
	copy(header, OpusMagic)
	header[4] = byte(format.Channels)
	binary.BigEndian.PutUint32(header[5:], uint32(format.SampleRate))
	if _, err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write opus header: %w", err)
	}

	// 20ms frames
	frameSize := format.SampleRate / 50
	return &OpusWriter{
		w:         w,
		format:    format,
		encoder:   encoder,
		frameSize: frameSize,
		pcm:       make([]int16, 0, frameSize*format.Channels),
		packet:    make([]byte, 2+maxOpusPacket),
		frames:    frameBuffer{frameSize: format.FrameSize()},
	}, nil
}

// Format returns the layout Write expects
func (w *OpusWriter) Format() audio.Format { return w.format }

// Write buffers PCM and emits a packet for every complete 20ms frame
func (w *OpusWriter) Write(p []byte) (int, error) {
	data := w.frames.whole(p)
	full := w.frameSize * w.format.Channels
	for i := 0; i+1 < len(data); i += 2 {
		w.pcm = append(w.pcm, int16(binary.LittleEndian.Uint16(data[i:])))
		if len(w.pcm) == full {
			if err := w.flush(); err != nil {
				return 0, err
			}
		}
	}
	return len(p), nil
}

func (w *OpusWriter) flush() error {
	n, err := w.encoder.Encode(w.pcm, w.packet[2:])
	if err != nil {
		return fmt.Errorf("opus encode error: %w", err)
	}
	w.pcm = w.pcm[:0]

	binary.BigEndian.PutUint16(w.packet, uint16(n))
	if _, err := w.w.Write(w.packet[:2+n]); err != nil {
		return fmt.Errorf("opus write failed: %w", err)
	}
	return nil
}

// Close pads the last partial frame with silence and encodes it. The
// underlying writer is not closed.
func (w *OpusWriter) Close() error {
	if len(w.pcm) == 0 {
		return nil
	}
	full := w.frameSize * w.format.Channels
	for len(w.pcm) < full {
		w.pcm = append(w.pcm, 0)
	}
	return w.flush()
}
