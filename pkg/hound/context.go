// ABOUTME: Application contexts bundling a virtual source or sink with client streams
// ABOUTME: Playback contexts feed the graph from streams, capture contexts fill streams from it
package hound

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Resonate-Protocol/hound/pkg/audio"
)

// ContextKind tells whether a context produces or consumes audio
type ContextKind int

const (
	PlaybackContext ContextKind = iota
	CaptureContext
)

func (k ContextKind) String() string {
	switch k {
	case PlaybackContext:
		return "playback"
	case CaptureContext:
		return "capture"
	default:
		return "unknown"
	}
}

// capturePeriodFrames is the chunk size a capture context mixes per pass
const capturePeriodFrames = 1024

// ContextInfo describes a registered context
type ContextInfo struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Kind    string    `json:"kind"`
	Streams int       `json:"streams"`
}

// Context is a client's handle into the registry. A playback context owns a
// source named after it, a capture context owns a sink.
type Context struct {
	id         uuid.UUID
	name       string
	kind       ContextKind
	format     audio.Format
	bufferSize int
	source     *Source
	sink       *Sink
	registry   atomic.Pointer[Registry]

	mu      sync.Mutex
	streams []*Stream
	main    *Stream
	retired bool

	captureMu      sync.Mutex
	capturePending atomic.Bool
}

func newContext(name string, kind ContextKind, format audio.Format, bufferSize int) *Context {
	if format.IsAny() {
		format = audio.DefaultFormat
	}
	return &Context{
		id:         uuid.New(),
		name:       name,
		kind:       kind,
		format:     format,
		bufferSize: bufferSize,
	}
}

// NewPlaybackContext creates an unregistered playback context. bufferSize
// caps the main stream, 0 meaning unbounded.
func NewPlaybackContext(name string, format audio.Format, bufferSize int) *Context {
	c := newContext(name, PlaybackContext, format, bufferSize)
	c.source = NewSource(name, c.format, c)
	return c
}

// NewCaptureContext creates an unregistered capture context
func NewCaptureContext(name string, format audio.Format, bufferSize int) *Context {
	c := newContext(name, CaptureContext, format, bufferSize)
	c.sink = NewSink(name, c.format, c)
	return c
}

func (c *Context) ID() uuid.UUID        { return c.id }
func (c *Context) Name() string         { return c.name }
func (c *Context) Kind() ContextKind    { return c.kind }
func (c *Context) Format() audio.Format { return c.format }

// Source returns the playback source, nil for capture contexts
func (c *Context) Source() *Source { return c.source }

// Sink returns the capture sink, nil for playback contexts
func (c *Context) Sink() *Sink { return c.sink }

// Info describes the context
func (c *Context) Info() ContextInfo {
	return ContextInfo{
		ID:      c.id,
		Name:    c.name,
		Kind:    c.kind.String(),
		Streams: len(c.openStreams()),
	}
}

func (c *Context) logger() *zap.Logger {
	if r := c.registry.Load(); r != nil {
		return r.log
	}
	return zap.NewNop()
}

func (c *Context) metrics() Metrics {
	if r := c.registry.Load(); r != nil {
		return r.metrics
	}
	return nopMetrics{}
}

// CreateStream opens a stream. A format of "any" uses the context format and
// allowedSize 0 leaves the stream unbounded.
func (c *Context) CreateStream(flags StreamFlags, format audio.Format, allowedSize int) (*Stream, error) {
	if allowedSize < 0 {
		return nil, newError(ErrInvalidArgument, "Context", "CreateStream", "validate size", "negative allowed size")
	}
	if format.IsAny() {
		format = c.format
	}
	if err := format.Validate(); err != nil {
		return nil, wrap(err, "Context", "CreateStream", "validate format")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retired {
		return nil, newError(ErrInvalidArgument, "Context", "CreateStream", "create stream", "context was removed")
	}
	s := newStream(c, flags, format, allowedSize)
	c.streams = append(c.streams, s)
	return s, nil
}

func (c *Context) openStreams() []*Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.streams)
}

func (c *Context) removeStream(s *Stream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx := slices.Index(c.streams, s); idx >= 0 {
		c.streams = slices.Delete(c.streams, idx, idx+1)
	}
	if c.main == s {
		c.main = nil
	}
}

// retire marks the context removed unless streams are open, returning their count
func (c *Context) retire() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.streams) > 0 {
		return len(c.streams)
	}
	c.retired = true
	return 0
}

func (c *Context) isRetired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retired
}

// mainStream returns the context's default stream, creating it on first use
func (c *Context) mainStream() (*Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.main != nil {
		return c.main, nil
	}
	if c.retired {
		return nil, newError(ErrInvalidArgument, "Context", "mainStream", "create stream", "context was removed")
	}
	c.main = newStream(c, StreamDrainOnExit, c.format, c.bufferSize)
	c.streams = append(c.streams, c.main)
	return c.main, nil
}

// WriteMain writes to the main stream
func (c *Context) WriteMain(p []byte) (int, error) {
	s, err := c.mainStream()
	if err != nil {
		return 0, err
	}
	return s.Write(p)
}

// ReadMain reads from the main stream
func (c *Context) ReadMain(p []byte) (int, error) {
	s, err := c.mainStream()
	if err != nil {
		return 0, err
	}
	return s.Read(p)
}

// WriteImmediate plays data on a temporary unbounded stream and waits until it was consumed
func (c *Context) WriteImmediate(ctx context.Context, format audio.Format, data []byte) error {
	s, err := c.CreateStream(0, format, 0)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	if _, err := s.Write(data); err != nil {
		return err
	}
	return s.Drain(ctx)
}

func (c *Context) requireRegistry(method string) (*Registry, error) {
	r := c.registry.Load()
	if r == nil {
		return nil, newError(ErrInvalidArgument, "Context", method, "find registry", "context is not registered")
	}
	return r, nil
}

// ConnectTarget connects the context to a sink (playback) or source (capture).
// "default" picks the first available target.
func (c *Context) ConnectTarget(target string) error {
	r, err := c.requireRegistry("ConnectTarget")
	if err != nil {
		return err
	}
	if c.kind == PlaybackContext {
		_, err = r.Connect(c.name, target)
	} else {
		_, err = r.Connect(target, c.name)
	}
	return err
}

// DisconnectTarget removes the connections between the context and target only
func (c *Context) DisconnectTarget(target string) error {
	r, err := c.requireRegistry("DisconnectTarget")
	if err != nil {
		return err
	}
	if c.kind == PlaybackContext {
		_, err = r.DisconnectPair(c.name, target)
	} else {
		_, err = r.DisconnectPair(target, c.name)
	}
	return err
}

// AvailableTargets lists the endpoints the context could connect to
func (c *Context) AvailableTargets() ([]string, error) {
	r, err := c.requireRegistry("AvailableTargets")
	if err != nil {
		return nil, err
	}
	if c.kind == PlaybackContext {
		return r.ListSinks(), nil
	}
	return r.ListSources(), nil
}

// ConnectedTargets lists the endpoints the context is connected to
func (c *Context) ConnectedTargets() ([]string, error) {
	r, err := c.requireRegistry("ConnectedTargets")
	if err != nil {
		return nil, err
	}
	if c.kind == PlaybackContext {
		return r.ConnectedSinks(c.name)
	}
	return r.ConnectedSources(c.name)
}

// Close destroys every stream, draining those that ask for it, then removes
// the context from its registry.
func (c *Context) Close(ctx context.Context) error {
	var errs []error
	for _, s := range c.openStreams() {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if r := c.registry.Load(); r != nil {
		if err := r.RemoveContext(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SourceConnectionChanged implements SourceHandler for playback contexts
func (c *Context) SourceConnectionChanged(src *Source, connected bool) error {
	c.logger().Debug("context source connection changed",
		zap.String("context", c.name),
		zap.Bool("connected", connected))
	return nil
}

// Pull implements Puller: it mixes every stream into one chunk and pushes it
func (c *Context) Pull(src *Source, size int) error {
	format := src.dataFormat()
	frames := format.Frames(size)
	if frames == 0 {
		return nil
	}

	buf := make([]byte, format.Bytes(frames))
	audio.Silence(buf, format)

	written := 0
	var errs []error
	for _, s := range c.openStreams() {
		n, err := s.Pull(buf, format)
		if err != nil {
			errs = append(errs, err)
		}
		written = max(written, n)
	}
	if written > 0 {
		src.PushData(buf[:written])
	}
	return errors.Join(errs...)
}

// SinkConnectionChanged implements SinkHandler for capture contexts
func (c *Context) SinkConnectionChanged(sink *Sink, connected bool) error {
	c.logger().Debug("context sink connection changed",
		zap.String("context", c.name),
		zap.Bool("connected", connected))
	return nil
}

// DataAvailable implements DataNotifier. It drains the sink's inputs into
// every stream. Concurrent notifications collapse into the running pass.
func (c *Context) DataAvailable(sink *Sink) {
	c.capturePending.Store(true)
	for c.capturePending.Load() {
		if !c.captureMu.TryLock() {
			return
		}
		for c.capturePending.Swap(false) {
			c.drainCapture(sink)
		}
		c.captureMu.Unlock()
	}
}

func (c *Context) drainCapture(sink *Sink) {
	format := sink.Format()
	if format.IsAny() {
		return
	}
	buf := make([]byte, format.Bytes(capturePeriodFrames))
	for {
		n := sink.mixInputs(buf, false)
		if n == 0 {
			return
		}
		for _, s := range c.openStreams() {
			s.deliver(buf[:n], format)
		}
	}
}
