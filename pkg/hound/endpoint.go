// ABOUTME: Source and Sink endpoints and the capabilities their owners implement
// ABOUTME: Connection sets are copy-on-write so the data path never takes the registry lock
package hound

import (
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/hound/pkg/audio"
)

// DefaultName is the reserved pseudo-name resolving to the first registered endpoint
const DefaultName = "default"

// SourceHandler is notified when a source gains its first connection or loses its last
type SourceHandler interface {
	SourceConnectionChanged(src *Source, connected bool) error
}

// Puller is implemented by source owners that produce data on demand.
// size is the shortfall in bytes of the source's format.
type Puller interface {
	Pull(src *Source, size int) error
}

// SinkHandler is notified when a sink gains its first connection or loses its last
type SinkHandler interface {
	SinkConnectionChanged(sink *Sink, connected bool) error
}

// FormatChecker lets a sink owner reject a negotiated format
type FormatChecker interface {
	CheckFormat(sink *Sink, format audio.Format) error
}

// DataNotifier is told when a connection into the sink goes from empty to non-empty
type DataNotifier interface {
	DataAvailable(sink *Sink)
}

// SourceFuncs adapts plain functions to SourceHandler and Puller. Nil fields are no-ops.
type SourceFuncs struct {
	OnConnection func(src *Source, connected bool) error
	OnPull       func(src *Source, size int) error
}

func (f SourceFuncs) SourceConnectionChanged(src *Source, connected bool) error {
	if f.OnConnection == nil {
		return nil
	}
	return f.OnConnection(src, connected)
}

func (f SourceFuncs) Pull(src *Source, size int) error {
	if f.OnPull == nil {
		return nil
	}
	return f.OnPull(src, size)
}

// SinkFuncs adapts plain functions to the sink capabilities. Nil fields are no-ops.
type SinkFuncs struct {
	OnConnection    func(sink *Sink, connected bool) error
	OnFormatCheck   func(sink *Sink, format audio.Format) error
	OnDataAvailable func(sink *Sink)
}

func (f SinkFuncs) SinkConnectionChanged(sink *Sink, connected bool) error {
	if f.OnConnection == nil {
		return nil
	}
	return f.OnConnection(sink, connected)
}

func (f SinkFuncs) CheckFormat(sink *Sink, format audio.Format) error {
	if f.OnFormatCheck == nil {
		return nil
	}
	return f.OnFormatCheck(sink, format)
}

func (f SinkFuncs) DataAvailable(sink *Sink) {
	if f.OnDataAvailable != nil {
		f.OnDataAvailable(sink)
	}
}

// connSet is an immutable snapshot of an endpoint's connections
type connSet struct {
	p atomic.Pointer[[]*Connection]
}

func (s *connSet) load() []*Connection {
	if p := s.p.Load(); p != nil {
		return *p
	}
	return nil
}

// add and remove are only called with the registry lock held
func (s *connSet) add(c *Connection) int {
	old := s.load()
	next := make([]*Connection, len(old), len(old)+1)
	copy(next, old)
	next = append(next, c)
	s.p.Store(&next)
	return len(next)
}

func (s *connSet) remove(c *Connection) int {
	old := s.load()
	next := make([]*Connection, 0, len(old))
	for _, o := range old {
		if o != c {
			next = append(next, o)
		}
	}
	s.p.Store(&next)
	return len(next)
}

// transitions delivers an endpoint's connected state to its owner. Each
// dispatch reports the current state and only when it differs from the last
// one delivered, so stale notifications from racing topology changes are
// dropped. Concurrent and reentrant dispatches collapse into the one running.
type transitions struct {
	mu        sync.Mutex
	pending   atomic.Bool
	delivered bool
}

func (t *transitions) dispatch(connected func() bool, deliver func(connected bool)) {
	t.pending.Store(true)
	for t.pending.Load() {
		if !t.mu.TryLock() {
			return
		}
		for t.pending.Swap(false) {
			if now := connected(); now != t.delivered {
				t.delivered = now
				deliver(now)
			}
		}
		t.mu.Unlock()
	}
}

// Source is a named producer of audio
type Source struct {
	name    string
	format  audio.Format
	handler SourceHandler
	puller  Puller

	conns    connSet
	state    transitions
	registry atomic.Pointer[Registry]
}

// NewSource creates an unregistered source. handler may be nil; if it also
// implements Puller the source is pulled when its connections run short.
// A source with format "any" produces DefaultFormat data.
func NewSource(name string, format audio.Format, handler SourceHandler) *Source {
	s := &Source{
		name:    name,
		format:  format,
		handler: handler,
	}
	if p, ok := handler.(Puller); ok {
		s.puller = p
	}
	return s
}

// Name returns the source name
func (s *Source) Name() string { return s.name }

// Format returns the format of the data the source produces
func (s *Source) Format() audio.Format { return s.format }

func (s *Source) dataFormat() audio.Format {
	if s.format.IsAny() {
		return audio.DefaultFormat
	}
	return s.format
}

// Connections returns a snapshot of the source's connections
func (s *Source) Connections() []*Connection {
	return s.conns.load()
}

// Registry returns the registry the source is registered in, or nil
func (s *Source) Registry() *Registry {
	return s.registry.Load()
}

// PushData wraps data in a new buffer and queues it on every connection.
// The source takes ownership of data.
func (s *Source) PushData(data []byte) {
	buf := audio.NewBuffer(data, s.dataFormat())
	s.PushBuffer(buf)
	buf.Release()
}

// PushBuffer queues a reference to buf on every connection. The caller keeps its own reference.
func (s *Source) PushBuffer(buf *audio.Buffer) {
	for _, c := range s.conns.load() {
		c.PushData(buf)
	}
}

// Sink is a named consumer of audio. Its format is fixed on first use.
type Sink struct {
	name     string
	handler  SinkHandler
	checker  FormatChecker
	notifier DataNotifier

	mu     sync.Mutex
	format audio.Format

	conns    connSet
	state    transitions
	registry atomic.Pointer[Registry]
}

// NewSink creates an unregistered sink. handler may be nil and may also
// implement FormatChecker and DataNotifier.
func NewSink(name string, format audio.Format, handler SinkHandler) *Sink {
	s := &Sink{
		name:    name,
		format:  format,
		handler: handler,
	}
	if fc, ok := handler.(FormatChecker); ok {
		s.checker = fc
	}
	if dn, ok := handler.(DataNotifier); ok {
		s.notifier = dn
	}
	return s
}

// Name returns the sink name
func (s *Sink) Name() string { return s.name }

// Format returns the operating format, which is "any" until negotiated
func (s *Sink) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// Connections returns a snapshot of the sink's connections
func (s *Sink) Connections() []*Connection {
	return s.conns.load()
}

// Registry returns the registry the sink is registered in, or nil
func (s *Sink) Registry() *Registry {
	return s.registry.Load()
}

// BufferedFrames returns the frames queued on all of the sink's connections.
// Each connection counts frames in its source's format.
func (s *Sink) BufferedFrames() int {
	total := 0
	for _, c := range s.conns.load() {
		total += c.queue.Frames()
	}
	return total
}

// Discard drops everything queued on the sink's connections and returns the
// frames dropped. Owners call it while they cannot consume, for example
// before the format was negotiated, so push-mode sources do not pile up.
func (s *Sink) Discard() int {
	dropped := 0
	for _, c := range s.conns.load() {
		dropped += c.queue.Clear()
	}
	return dropped
}

// SetFormat fixes the sink's format if it is still "any". A proposed "any"
// selects DefaultFormat. The owner's format check may reject the result, in
// which case the sink stays unnegotiated.
func (s *Sink) SetFormat(proposed audio.Format) error {
	if !s.Format().IsAny() {
		return newError(ErrAlreadyExists, "Sink", "SetFormat", "negotiate format", "format of "+s.name+" is already fixed")
	}

	format := proposed
	if format.IsAny() {
		format = audio.DefaultFormat
	}
	if err := format.Validate(); err != nil {
		return wrap(err, "Sink", "SetFormat", "validate format")
	}

	if s.checker != nil {
		if err := s.checker.CheckFormat(s, format); err != nil {
			return wrap(asUnsupported(err), "Sink", "SetFormat", "check format "+format.String())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.format.IsAny() {
		return newError(ErrAlreadyExists, "Sink", "SetFormat", "negotiate format", "format of "+s.name+" is already fixed")
	}
	s.format = format
	return nil
}

// MixInputs silences dst and additively mixes every connection into it.
// It returns the largest number of bytes any connection supplied.
func (s *Sink) MixInputs(dst []byte) int {
	return s.mixInputs(dst, true)
}

// mixInputs optionally asks pull-mode sources to top up before mixing
func (s *Sink) mixInputs(dst []byte, pull bool) int {
	format := s.Format()
	audio.Silence(dst, format)
	if format.IsAny() {
		return 0
	}

	dst = dst[:format.Bytes(format.Frames(len(dst)))]
	written := 0
	for _, c := range s.conns.load() {
		written = max(written, c.addSourceData(dst, format, pull))
	}
	if r := s.registry.Load(); r != nil && written > 0 {
		r.metrics.FramesMixed(s.name, format.Frames(written))
	}
	return written
}
