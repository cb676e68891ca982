// ABOUTME: File player source device
// ABOUTME: Decodes on demand when its connections run short, optionally looping
package device

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/Resonate-Protocol/hound/pkg/audio"
	"github.com/Resonate-Protocol/hound/pkg/audio/decode"
	"github.com/Resonate-Protocol/hound/pkg/hound"
)

// File plays an audio file in pull mode
type File struct {
	id     string
	name   string
	path   string
	raw    audio.Format
	loop   bool
	source *hound.Source
	log    *zap.Logger

	mu     sync.Mutex
	stream decode.Stream
	ended  bool
}

// NewFile opens path to learn its format. rawFormat is only used for
// headerless files (.raw, .pcm) and is required for them.
func NewFile(id, name, path string, rawFormat audio.Format, loop bool, log *zap.Logger) (*File, error) {
	f := &File{
		id:   id,
		name: name,
		path: path,
		raw:  rawFormat,
		loop: loop,
		log:  log,
	}
	stream, err := f.open()
	if err != nil {
		return nil, err
	}
	f.stream = stream
	f.source = hound.NewSource(name, stream.Format(), f)

	log.Info("loaded audio file",
		zap.String("path", path),
		zap.Stringer("format", stream.Format()),
		zap.Bool("loop", loop))
	return f, nil
}

func (f *File) open() (decode.Stream, error) {
	if !f.raw.IsAny() {
		return decode.OpenRaw(f.path, f.raw)
	}
	return decode.Open(f.path)
}

func (f *File) ID() string            { return f.id }
func (f *File) Name() string          { return f.name }
func (f *File) Source() *hound.Source { return f.source }
func (f *File) Sink() *hound.Sink     { return nil }

// SourceConnectionChanged only logs; data is produced on demand
func (f *File) SourceConnectionChanged(_ *hound.Source, connected bool) error {
	f.log.Debug("file source connection changed", zap.Bool("connected", connected))
	return nil
}

// Pull decodes up to size bytes and pushes them. At the end of the file it
// rewinds when looping and otherwise produces nothing more.
func (f *File) Pull(src *hound.Source, size int) error {
	format := src.Format()
	size -= size % format.FrameSize()
	if size <= 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ended || f.stream == nil {
		return nil
	}

	buf := make([]byte, size)
	n := 0
	var err error
	// at most one rewind per pull so an empty looping file cannot spin
	for rewound := false; n < size && !f.ended; rewound = true {
		var m int
		m, err = io.ReadFull(f.stream, buf[n:])
		n += m
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		err = f.rewindLocked()
		if err != nil || rewound {
			break
		}
	}
	n -= n % format.FrameSize()
	if n > 0 {
		src.PushData(buf[:n])
	}
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", f.path, err)
	}
	return nil
}

func (f *File) rewindLocked() error {
	f.stream.Close()
	f.stream = nil
	if !f.loop {
		f.ended = true
		f.log.Info("audio file finished", zap.String("path", f.path))
		return nil
	}

	stream, err := f.open()
	if err != nil {
		f.ended = true
		return err
	}
	if stream.Format() != f.source.Format() {
		stream.Close()
		f.ended = true
		return fmt.Errorf("format changed on reopen: %s", stream.Format())
	}
	f.stream = stream
	return nil
}

// Close releases the decoder
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = true
	if f.stream == nil {
		return nil
	}
	err := f.stream.Close()
	f.stream = nil
	return err
}
