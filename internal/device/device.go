// ABOUTME: Device drivers exposing sources and sinks to the routing registry
// ABOUTME: Shared options, the background period runner and the config factory
package device

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Resonate-Protocol/hound/internal/config"
	"github.com/Resonate-Protocol/hound/pkg/audio"
	"github.com/Resonate-Protocol/hound/pkg/audio/encode"
	"github.com/Resonate-Protocol/hound/pkg/audio/output"
	"github.com/Resonate-Protocol/hound/pkg/hound"
)

// Device is a driver the daemon owns. Close stops its background work.
type Device interface {
	hound.Device
	io.Closer
}

// Options carries daemon-wide settings into the factory
type Options struct {
	// Period is the interval of push and playback loops
	Period time.Duration
	// DefaultFormat is used by devices whose config leaves the format open
	DefaultFormat audio.Format
	// NewOutput creates the playback backend; nil selects oto
	NewOutput func(log *zap.Logger) output.Output
	Logger    *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// New builds the device described by cfg. Sources and playback sinks with no
// format use the default; a file's format comes from the file.
func New(cfg config.DeviceConfig, opts Options) (Device, error) {
	format, err := cfg.Format.Audio()
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", cfg.ID, err)
	}
	log := opts.logger().With(zap.String("device", cfg.ID))
	name := cfg.DisplayName()

	switch cfg.Type {
	case config.DeviceTone:
		if format.IsAny() {
			format = opts.DefaultFormat
		}
		return NewTone(cfg.ID, name, format, cfg.Frequency, opts.Period, log)

	case config.DeviceFile:
		return NewFile(cfg.ID, name, cfg.Path, format, cfg.Loop, log)

	case config.DevicePlayback:
		newOutput := opts.NewOutput
		if newOutput == nil {
			newOutput = func(log *zap.Logger) output.Output { return output.NewOto(log) }
		}
		return NewPlayback(cfg.ID, name, format, newOutput(log), opts.Period, log), nil

	case config.DeviceRecorder:
		if format.IsAny() {
			format = opts.DefaultFormat
		}
		w, err := createWriter(cfg.Path, format)
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", cfg.ID, err)
		}
		return NewRecorder(cfg.ID, name, w, opts.Period, log), nil

	default:
		return nil, fmt.Errorf("device %s: unknown type %q", cfg.ID, cfg.Type)
	}
}

// fileWriter closes the encoder before the file it writes to
type fileWriter struct {
	encode.PCMWriter
	file *os.File
}

func (w *fileWriter) Close() error {
	err := w.PCMWriter.Close()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// createWriter picks WAV or Opus by extension
func createWriter(path string, format audio.Format) (encode.PCMWriter, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".wav" && ext != ".opus" {
		return nil, fmt.Errorf("unsupported recording extension %q (supported: .wav, .opus)", ext)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}

	var w encode.PCMWriter
	if ext == ".wav" {
		w, err = encode.NewWAV(f, format)
	} else {
		w, err = encode.NewOpus(f, format)
	}
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return &fileWriter{PCMWriter: w, file: f}, nil
}

// runner owns at most one periodic background loop
type runner struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// start runs tick every period until stop. It reports false if already running.
func (r *runner) start(period time.Duration, tick func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.cancel, r.done = cancel, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tick()
			}
		}
	}()
	return true
}

// stop cancels the loop and waits for the current tick to finish
func (r *runner) stop() bool {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	<-done
	return true
}

func (r *runner) running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}
