// ABOUTME: The routing hub: named sources, sinks, devices, contexts and connections
// ABOUTME: One lock guards membership; endpoint callbacks fire after it is released
package hound

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Resonate-Protocol/hound/pkg/audio"
)

// Registry owns the routing graph. All membership changes go through its lock.
type Registry struct {
	mu          sync.Mutex
	devices     []Device
	contexts    []*Context
	sources     []*Source
	sinks       []*Sink
	connections []*Connection

	log     *zap.Logger
	metrics Metrics
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the logger used for topology and mixing diagnostics
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetrics sets the diagnostics sink
func WithMetrics(m Metrics) Option {
	return func(r *Registry) {
		if m != nil {
			r.metrics = m
		}
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		log:     zap.NewNop(),
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EndpointInfo describes a registered source or sink
type EndpointInfo struct {
	Name        string       `json:"name"`
	Format      audio.Format `json:"format"`
	Connections int          `json:"connections"`
}

// ConnectionInfo describes a live connection
type ConnectionInfo struct {
	ID             uuid.UUID `json:"id"`
	Source         string    `json:"source"`
	Sink           string    `json:"sink"`
	BufferedFrames int       `json:"buffered_frames"`
	BufferedBytes  int       `json:"buffered_bytes"`
}

// Graph is a point-in-time copy of the registry
type Graph struct {
	Sources     []EndpointInfo   `json:"sources"`
	Sinks       []EndpointInfo   `json:"sinks"`
	Connections []ConnectionInfo `json:"connections"`
	Devices     []DeviceInfo     `json:"devices"`
	Contexts    []ContextInfo    `json:"contexts"`
}

// notifier collects work that must run after the registry lock is released
type notifier struct {
	log *zap.Logger
	fns []func()
}

func (n *notifier) closeQueue(c *Connection) {
	n.fns = append(n.fns, c.queue.Close)
}

// sourceChanged queues a notification of the source's connected state as it
// is when the notification runs, not as it was when queued.
func (n *notifier) sourceChanged(src *Source) {
	if src.handler == nil {
		return
	}
	n.fns = append(n.fns, func() {
		src.state.dispatch(
			func() bool { return len(src.conns.load()) > 0 },
			func(connected bool) {
				if err := src.handler.SourceConnectionChanged(src, connected); err != nil {
					n.log.Warn("source connection callback failed",
						zap.String("source", src.name),
						zap.Bool("connected", connected),
						zap.Error(err))
				}
			})
	})
}

func (n *notifier) sinkChanged(sink *Sink) {
	if sink.handler == nil {
		return
	}
	n.fns = append(n.fns, func() {
		sink.state.dispatch(
			func() bool { return len(sink.conns.load()) > 0 },
			func(connected bool) {
				if err := sink.handler.SinkConnectionChanged(sink, connected); err != nil {
					n.log.Warn("sink connection callback failed",
						zap.String("sink", sink.name),
						zap.Bool("connected", connected),
						zap.Error(err))
				}
			})
	})
}

func (n *notifier) fire() {
	for _, fn := range n.fns {
		fn()
	}
}

// unlock releases the registry lock, reports topology and runs queued notifications
func (r *Registry) unlock(n *notifier) {
	sources, sinks, conns, ctxs, devs := len(r.sources), len(r.sinks), len(r.connections), len(r.contexts), len(r.devices)
	r.mu.Unlock()
	r.metrics.Topology(sources, sinks, conns, ctxs, devs)
	if n != nil {
		n.fire()
	}
}

func checkName(name, component, method string) error {
	if name == "" {
		return newError(ErrInvalidArgument, component, method, "validate name", "empty name")
	}
	if name == DefaultName {
		return newError(ErrInvalidArgument, component, method, "validate name", fmt.Sprintf("%q is reserved", DefaultName))
	}
	return nil
}

// checkSourceLocked verifies src could be added. Caller holds r.mu.
func (r *Registry) checkSourceLocked(src *Source, method string) error {
	if src == nil {
		return newError(ErrInvalidArgument, "Registry", method, "validate source", "nil source")
	}
	if err := checkName(src.name, "Registry", method); err != nil {
		return err
	}
	if src.registry.Load() != nil {
		return newError(ErrAlreadyExists, "Registry", method, "add source", fmt.Sprintf("source %q is already registered", src.name))
	}
	if r.findSourceLocked(src.name) != nil {
		return newError(ErrAlreadyExists, "Registry", method, "add source", fmt.Sprintf("source %q", src.name))
	}
	return nil
}

// checkSinkLocked verifies sink could be added. Caller holds r.mu.
func (r *Registry) checkSinkLocked(sink *Sink, method string) error {
	if sink == nil {
		return newError(ErrInvalidArgument, "Registry", method, "validate sink", "nil sink")
	}
	if err := checkName(sink.name, "Registry", method); err != nil {
		return err
	}
	if sink.registry.Load() != nil {
		return newError(ErrAlreadyExists, "Registry", method, "add sink", fmt.Sprintf("sink %q is already registered", sink.name))
	}
	if r.findSinkLocked(sink.name) != nil {
		return newError(ErrAlreadyExists, "Registry", method, "add sink", fmt.Sprintf("sink %q", sink.name))
	}
	return nil
}

func (r *Registry) insertSourceLocked(src *Source) {
	r.sources = append(r.sources, src)
	src.registry.Store(r)
}

func (r *Registry) insertSinkLocked(sink *Sink) {
	r.sinks = append(r.sinks, sink)
	sink.registry.Store(r)
}

func (r *Registry) findSourceLocked(name string) *Source {
	for _, s := range r.sources {
		if s.name == name {
			return s
		}
	}
	return nil
}

func (r *Registry) findSinkLocked(name string) *Sink {
	for _, s := range r.sinks {
		if s.name == name {
			return s
		}
	}
	return nil
}

// resolveSourceLocked maps "default" to the first source in insertion order
func (r *Registry) resolveSourceLocked(name string) *Source {
	if name == DefaultName {
		if len(r.sources) == 0 {
			return nil
		}
		return r.sources[0]
	}
	return r.findSourceLocked(name)
}

// resolveSinkLocked maps "default" to the first sink in insertion order
func (r *Registry) resolveSinkLocked(name string) *Sink {
	if name == DefaultName {
		if len(r.sinks) == 0 {
			return nil
		}
		return r.sinks[0]
	}
	return r.findSinkLocked(name)
}

// AddSource registers src under its name
func (r *Registry) AddSource(src *Source) error {
	r.mu.Lock()
	if err := r.checkSourceLocked(src, "AddSource"); err != nil {
		r.mu.Unlock()
		return err
	}
	r.insertSourceLocked(src)
	r.unlock(nil)

	r.log.Info("source added", zap.String("source", src.name), zap.Stringer("format", src.format))
	return nil
}

// AddSink registers sink under its name
func (r *Registry) AddSink(sink *Sink) error {
	r.mu.Lock()
	if err := r.checkSinkLocked(sink, "AddSink"); err != nil {
		r.mu.Unlock()
		return err
	}
	r.insertSinkLocked(sink)
	r.unlock(nil)

	r.log.Info("sink added", zap.String("sink", sink.name))
	return nil
}

// unlinkLocked removes c from the graph and queues its teardown. Caller holds r.mu.
func (r *Registry) unlinkLocked(c *Connection, n *notifier) bool {
	idx := slices.Index(r.connections, c)
	if idx < 0 {
		return false
	}
	r.connections = slices.Delete(r.connections, idx, idx+1)

	n.closeQueue(c)
	if c.source.conns.remove(c) == 0 {
		n.sourceChanged(c.source)
	}
	if c.sink.conns.remove(c) == 0 {
		n.sinkChanged(c.sink)
	}
	return true
}

// removeSourceLocked drops src and every connection touching it. Caller holds r.mu.
func (r *Registry) removeSourceLocked(src *Source, n *notifier) {
	live := src.conns.load()
	if len(live) > 0 {
		r.log.Warn("removing source with live connections",
			zap.String("source", src.name),
			zap.Int("connections", len(live)))
	}
	for _, c := range live {
		r.unlinkLocked(c, n)
	}
	if idx := slices.Index(r.sources, src); idx >= 0 {
		r.sources = slices.Delete(r.sources, idx, idx+1)
	}
	src.registry.Store(nil)
}

// removeSinkLocked drops sink and every connection touching it. Caller holds r.mu.
func (r *Registry) removeSinkLocked(sink *Sink, n *notifier) {
	live := sink.conns.load()
	if len(live) > 0 {
		r.log.Warn("removing sink with live connections",
			zap.String("sink", sink.name),
			zap.Int("connections", len(live)))
	}
	for _, c := range live {
		r.unlinkLocked(c, n)
	}
	if idx := slices.Index(r.sinks, sink); idx >= 0 {
		r.sinks = slices.Delete(r.sinks, idx, idx+1)
	}
	sink.registry.Store(nil)
}

// RemoveSource destroys every connection of the named source, then unregisters it
func (r *Registry) RemoveSource(name string) error {
	n := &notifier{log: r.log}
	r.mu.Lock()
	src := r.findSourceLocked(name)
	if src == nil {
		r.mu.Unlock()
		return newError(ErrNotFound, "Registry", "RemoveSource", "find source", fmt.Sprintf("source %q", name))
	}
	r.removeSourceLocked(src, n)
	r.unlock(n)

	r.log.Info("source removed", zap.String("source", name))
	return nil
}

// RemoveSink destroys every connection of the named sink, then unregisters it
func (r *Registry) RemoveSink(name string) error {
	n := &notifier{log: r.log}
	r.mu.Lock()
	sink := r.findSinkLocked(name)
	if sink == nil {
		r.mu.Unlock()
		return newError(ErrNotFound, "Registry", "RemoveSink", "find sink", fmt.Sprintf("sink %q", name))
	}
	r.removeSinkLocked(sink, n)
	r.unlock(n)

	r.log.Info("sink removed", zap.String("sink", name))
	return nil
}

// AddDevice registers a device and whichever endpoints it exposes. Either
// everything is registered or nothing is.
func (r *Registry) AddDevice(d Device) error {
	if d == nil {
		return newError(ErrInvalidArgument, "Registry", "AddDevice", "validate device", "nil device")
	}
	if d.ID() == "" || d.Name() == "" {
		return newError(ErrInvalidArgument, "Registry", "AddDevice", "validate device", "device id and name are required")
	}
	src, sink := d.Source(), d.Sink()

	r.mu.Lock()
	for _, existing := range r.devices {
		if existing.ID() == d.ID() || existing.Name() == d.Name() {
			r.mu.Unlock()
			return newError(ErrAlreadyExists, "Registry", "AddDevice", "add device",
				fmt.Sprintf("device %q (%s)", d.Name(), d.ID()))
		}
	}
	if src != nil {
		if err := r.checkSourceLocked(src, "AddDevice"); err != nil {
			r.mu.Unlock()
			return err
		}
	}
	if sink != nil {
		if err := r.checkSinkLocked(sink, "AddDevice"); err != nil {
			r.mu.Unlock()
			return err
		}
	}

	r.devices = append(r.devices, d)
	if src != nil {
		r.insertSourceLocked(src)
	}
	if sink != nil {
		r.insertSinkLocked(sink)
	}
	r.unlock(nil)

	if src == nil && sink == nil {
		r.log.Warn("device exposes neither source nor sink",
			zap.String("device", d.Name()),
			zap.String("id", d.ID()))
	}
	r.log.Info("device added",
		zap.String("device", d.Name()),
		zap.String("id", d.ID()),
		zap.Bool("source", src != nil),
		zap.Bool("sink", sink != nil))
	return nil
}

// RemoveDevice unregisters the device with the given id and its endpoints
func (r *Registry) RemoveDevice(id string) error {
	n := &notifier{log: r.log}
	r.mu.Lock()
	idx := slices.IndexFunc(r.devices, func(d Device) bool { return d.ID() == id })
	if idx < 0 {
		r.mu.Unlock()
		return newError(ErrNotFound, "Registry", "RemoveDevice", "find device", fmt.Sprintf("device %q", id))
	}
	d := r.devices[idx]
	r.devices = slices.Delete(r.devices, idx, idx+1)
	if src := d.Source(); src != nil && src.registry.Load() == r {
		r.removeSourceLocked(src, n)
	}
	if sink := d.Sink(); sink != nil && sink.registry.Load() == r {
		r.removeSinkLocked(sink, n)
	}
	r.unlock(n)

	r.log.Info("device removed", zap.String("device", d.Name()), zap.String("id", id))
	return nil
}

// Connect links the named source to the named sink. "default" on either side
// resolves to the first registered endpoint of that kind.
func (r *Registry) Connect(sourceName, sinkName string) (*Connection, error) {
	n := &notifier{log: r.log}
	r.mu.Lock()
	src := r.resolveSourceLocked(sourceName)
	if src == nil {
		r.mu.Unlock()
		return nil, newError(ErrNotFound, "Registry", "Connect", "resolve source", fmt.Sprintf("source %q", sourceName))
	}
	sink := r.resolveSinkLocked(sinkName)
	if sink == nil {
		r.mu.Unlock()
		return nil, newError(ErrNotFound, "Registry", "Connect", "resolve sink", fmt.Sprintf("sink %q", sinkName))
	}

	c := newConnection(r, src, sink)
	r.connections = append(r.connections, c)
	firstSource := src.conns.add(c) == 1
	firstSink := sink.conns.add(c) == 1

	// Format negotiation runs the sink owner's check, so it waits for the unlock too.
	n.fns = append(n.fns, func() { r.negotiate(c) })
	if firstSource {
		n.sourceChanged(src)
	}
	if firstSink {
		n.sinkChanged(sink)
	}
	r.unlock(n)

	r.log.Info("connected",
		zap.String("source", src.name),
		zap.String("sink", sink.name),
		zap.Stringer("id", c.id))
	return c, nil
}

// negotiate proposes the source format to the sink. Rejection does not undo
// the connection. A connection removed before its negotiation ran is skipped.
func (r *Registry) negotiate(c *Connection) {
	src, sink := c.source, c.sink
	if !slices.Contains(sink.conns.load(), c) {
		r.log.Debug("skipping negotiation for removed connection",
			zap.String("source", src.name),
			zap.String("sink", sink.name))
		return
	}
	err := sink.SetFormat(src.format)
	switch KindOf(err) {
	case KindUnknown:
		if err != nil {
			r.log.Warn("sink format negotiation failed", zap.String("sink", sink.name), zap.Error(err))
		}
	case KindAlreadyExists:
		r.log.Debug("sink format already fixed",
			zap.String("sink", sink.name),
			zap.Stringer("format", sink.Format()),
			zap.Stringer("proposed", src.format))
	default:
		r.log.Warn("sink rejected negotiated format",
			zap.String("source", src.name),
			zap.String("sink", sink.name),
			zap.Error(err))
	}
}

// Disconnect removes every connection whose source matches sourceName or whose
// sink matches sinkName, not only the exact pair. It fails with NotFound only
// when neither name resolves and returns how many connections were removed.
func (r *Registry) Disconnect(sourceName, sinkName string) (int, error) {
	n := &notifier{log: r.log}
	r.mu.Lock()
	src := r.resolveSourceLocked(sourceName)
	sink := r.resolveSinkLocked(sinkName)
	if src == nil && sink == nil {
		r.mu.Unlock()
		return 0, newError(ErrNotFound, "Registry", "Disconnect", "resolve endpoints",
			fmt.Sprintf("source %q and sink %q", sourceName, sinkName))
	}

	var matched []*Connection
	for _, c := range r.connections {
		if (src != nil && c.source == src) || (sink != nil && c.sink == sink) {
			matched = append(matched, c)
		}
	}
	for _, c := range matched {
		r.unlinkLocked(c, n)
	}
	r.unlock(n)

	r.log.Info("disconnected",
		zap.String("source", sourceName),
		zap.String("sink", sinkName),
		zap.Int("removed", len(matched)))
	return len(matched), nil
}

// DisconnectPair removes only the connections between exactly these two endpoints
func (r *Registry) DisconnectPair(sourceName, sinkName string) (int, error) {
	n := &notifier{log: r.log}
	r.mu.Lock()
	src := r.resolveSourceLocked(sourceName)
	sink := r.resolveSinkLocked(sinkName)
	if src == nil || sink == nil {
		r.mu.Unlock()
		return 0, newError(ErrNotFound, "Registry", "DisconnectPair", "resolve endpoints",
			fmt.Sprintf("source %q and sink %q", sourceName, sinkName))
	}

	var matched []*Connection
	for _, c := range r.connections {
		if c.source == src && c.sink == sink {
			matched = append(matched, c)
		}
	}
	for _, c := range matched {
		r.unlinkLocked(c, n)
	}
	r.unlock(n)

	if len(matched) == 0 {
		return 0, newError(ErrNotFound, "Registry", "DisconnectPair", "find connection",
			fmt.Sprintf("%q -> %q", src.name, sink.name))
	}
	r.log.Info("disconnected pair",
		zap.String("source", src.name),
		zap.String("sink", sink.name),
		zap.Int("removed", len(matched)))
	return len(matched), nil
}

// destroyConnection removes a single connection
func (r *Registry) destroyConnection(c *Connection) error {
	n := &notifier{log: r.log}
	r.mu.Lock()
	if !r.unlinkLocked(c, n) {
		r.mu.Unlock()
		return newError(ErrNotFound, "Connection", "Close", "find connection", c.id.String())
	}
	r.unlock(n)

	r.log.Debug("connection closed",
		zap.String("source", c.source.name),
		zap.String("sink", c.sink.name),
		zap.Stringer("id", c.id))
	return nil
}

// AddContext registers a context together with its source or sink. Either
// everything is registered or nothing is.
func (r *Registry) AddContext(c *Context) error {
	if c == nil {
		return newError(ErrInvalidArgument, "Registry", "AddContext", "validate context", "nil context")
	}

	r.mu.Lock()
	if slices.Contains(r.contexts, c) || c.registry.Load() != nil {
		r.mu.Unlock()
		return newError(ErrAlreadyExists, "Registry", "AddContext", "add context", fmt.Sprintf("context %q", c.name))
	}
	if c.isRetired() {
		r.mu.Unlock()
		return newError(ErrInvalidArgument, "Registry", "AddContext", "add context", fmt.Sprintf("context %q was already removed", c.name))
	}
	if c.source != nil {
		if err := r.checkSourceLocked(c.source, "AddContext"); err != nil {
			r.mu.Unlock()
			return err
		}
	}
	if c.sink != nil {
		if err := r.checkSinkLocked(c.sink, "AddContext"); err != nil {
			r.mu.Unlock()
			return err
		}
	}

	r.contexts = append(r.contexts, c)
	if c.source != nil {
		r.insertSourceLocked(c.source)
	}
	if c.sink != nil {
		r.insertSinkLocked(c.sink)
	}
	c.registry.Store(r)
	r.unlock(nil)

	r.log.Info("context added",
		zap.String("context", c.name),
		zap.Stringer("kind", c.kind),
		zap.Stringer("id", c.id))
	return nil
}

// RemoveContext unregisters a context and its endpoints. It fails with Busy
// while the context still has open streams.
func (r *Registry) RemoveContext(c *Context) error {
	if c == nil {
		return newError(ErrInvalidArgument, "Registry", "RemoveContext", "validate context", "nil context")
	}

	n := &notifier{log: r.log}
	r.mu.Lock()
	idx := slices.Index(r.contexts, c)
	if idx < 0 {
		r.mu.Unlock()
		return newError(ErrNotFound, "Registry", "RemoveContext", "find context", fmt.Sprintf("context %q", c.name))
	}
	if open := c.retire(); open > 0 {
		r.mu.Unlock()
		return newError(ErrBusy, "Registry", "RemoveContext", "remove context",
			fmt.Sprintf("context %q has %d open streams", c.name, open))
	}

	r.contexts = slices.Delete(r.contexts, idx, idx+1)
	if c.source != nil && c.source.registry.Load() == r {
		r.removeSourceLocked(c.source, n)
	}
	if c.sink != nil && c.sink.registry.Load() == r {
		r.removeSinkLocked(c.sink, n)
	}
	c.registry.Store(nil)
	r.unlock(n)

	r.log.Info("context removed", zap.String("context", c.name), zap.Stringer("id", c.id))
	return nil
}

// ListSources returns the source names in registration order
func (r *Registry) ListSources() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.sources))
	for i, s := range r.sources {
		names[i] = s.name
	}
	return names
}

// ListSinks returns the sink names in registration order
func (r *Registry) ListSinks() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.sinks))
	for i, s := range r.sinks {
		names[i] = s.name
	}
	return names
}

// FindSource returns the registered source with the exact name
func (r *Registry) FindSource(name string) (*Source, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.findSourceLocked(name)
	return s, s != nil
}

// FindSink returns the registered sink with the exact name
func (r *Registry) FindSink(name string) (*Sink, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.findSinkLocked(name)
	return s, s != nil
}

// ConnectedSinks returns the sinks the named source feeds
func (r *Registry) ConnectedSinks(sourceName string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	src := r.resolveSourceLocked(sourceName)
	if src == nil {
		return nil, newError(ErrNotFound, "Registry", "ConnectedSinks", "resolve source", fmt.Sprintf("source %q", sourceName))
	}
	conns := src.conns.load()
	names := make([]string, 0, len(conns))
	for _, c := range conns {
		names = append(names, c.sink.name)
	}
	return names, nil
}

// ConnectedSources returns the sources feeding the named sink
func (r *Registry) ConnectedSources(sinkName string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sink := r.resolveSinkLocked(sinkName)
	if sink == nil {
		return nil, newError(ErrNotFound, "Registry", "ConnectedSources", "resolve sink", fmt.Sprintf("sink %q", sinkName))
	}
	conns := sink.conns.load()
	names := make([]string, 0, len(conns))
	for _, c := range conns {
		names = append(names, c.source.name)
	}
	return names, nil
}

// ListConnections describes every live connection
func (r *Registry) ListConnections() []ConnectionInfo {
	r.mu.Lock()
	conns := slices.Clone(r.connections)
	r.mu.Unlock()

	infos := make([]ConnectionInfo, len(conns))
	for i, c := range conns {
		infos[i] = ConnectionInfo{
			ID:             c.id,
			Source:         c.source.name,
			Sink:           c.sink.name,
			BufferedFrames: c.BufferedFrames(),
			BufferedBytes:  c.BufferedBytes(),
		}
	}
	return infos
}

// Devices describes every registered device
func (r *Registry) Devices() []DeviceInfo {
	r.mu.Lock()
	devices := slices.Clone(r.devices)
	r.mu.Unlock()

	infos := make([]DeviceInfo, len(devices))
	for i, d := range devices {
		infos[i] = describeDevice(d)
	}
	return infos
}

// Snapshot copies the whole graph for display
func (r *Registry) Snapshot() Graph {
	r.mu.Lock()
	sources := slices.Clone(r.sources)
	sinks := slices.Clone(r.sinks)
	contexts := slices.Clone(r.contexts)
	r.mu.Unlock()

	g := Graph{
		Sources:     make([]EndpointInfo, len(sources)),
		Sinks:       make([]EndpointInfo, len(sinks)),
		Connections: r.ListConnections(),
		Devices:     r.Devices(),
		Contexts:    make([]ContextInfo, len(contexts)),
	}
	for i, s := range sources {
		g.Sources[i] = EndpointInfo{Name: s.name, Format: s.format, Connections: len(s.conns.load())}
	}
	for i, s := range sinks {
		g.Sinks[i] = EndpointInfo{Name: s.name, Format: s.Format(), Connections: len(s.conns.load())}
	}
	for i, c := range contexts {
		g.Contexts[i] = c.Info()
	}
	return g
}
