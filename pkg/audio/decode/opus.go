// ABOUTME: Opus packet file decoder
// ABOUTME: Reads files produced by encode.OpusWriter back into 16-bit PCM
package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"gopkg.in/hraban/opus.v2"

	"github.com/Resonate-Protocol/hound/pkg/audio"
	"github.com/Resonate-Protocol/hound/pkg/audio/encode"
)

// opusMaxFrame is the largest frame Opus can decode, 120ms at 48kHz
const opusMaxFrame = 5760

var errNotOpus = errors.New("not an opus packet file")

// OpenOpus opens an Opus packet file
func OpenOpus(path string) (Stream, error) {
	f, err := openFile(path, "Opus")
	if err != nil {
		return nil, err
	}
	s, err := NewOpus(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.(*chunkStream).closer = f
	return s, nil
}

// NewOpus decodes an Opus packet file from r
func NewOpus(r io.Reader) (Stream, error) {
	header := make([]byte, encode.OpusHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("failed to read opus header: %w", err)
	}
	if string(header[:4]) != encode.OpusMagic {
		return nil, fmt.Errorf("failed to decode opus: %w", errNotOpus)
	}

	format := audio.Format{
		Channels:   int(header[4]),
		SampleRate: int(binary.BigEndian.Uint32(header[5:])),
		Encoding:   audio.EncodingS16LE,
	}
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("failed to decode opus: %w", err)
	}

	decoder, err := opus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	pcm := make([]int16, opusMaxFrame*format.Channels)
	var size [2]byte
	return &chunkStream{
		format: format,
		next: func() ([]byte, error) {
			if _, err := io.ReadFull(r, size[:]); err != nil {
				if err == io.ErrUnexpectedEOF {
					err = io.EOF
				}
				return nil, err
			}
			packet := make([]byte, binary.BigEndian.Uint16(size[:]))
			if _, err := io.ReadFull(r, packet); err != nil {
				return nil, fmt.Errorf("truncated opus packet: %w", err)
			}

			n, err := decoder.Decode(packet, pcm)
			if err != nil {
				return nil, fmt.Errorf("opus decode failed: %w", err)
			}
			samples := pcm[:n*format.Channels]
			out := make([]byte, len(samples)*2)
			for i, v := range samples {
				binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
			}
			return out, nil
		},
	}, nil
}
