// ABOUTME: Shared fixtures for routing core tests
// ABOUTME: Event recorders, fake metrics and PCM helpers
package hound

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/Resonate-Protocol/hound/pkg/audio"
)

var (
	stereo16 = audio.DefaultFormat
	mono16   = audio.Format{Channels: 1, SampleRate: 44100, Encoding: audio.EncodingS16LE}
)

func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func samples16(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// events records endpoint callbacks in order
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(format string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, fmt.Sprintf(format, args...))
}

func (e *events) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

func (e *events) count(entry string) int {
	n := 0
	for _, l := range e.list() {
		if l == entry {
			n++
		}
	}
	return n
}

func (e *events) source() SourceFuncs {
	return SourceFuncs{
		OnConnection: func(src *Source, connected bool) error {
			e.add("%s:%v", src.Name(), connected)
			return nil
		},
	}
}

func (e *events) sink() SinkFuncs {
	return SinkFuncs{
		OnConnection: func(sink *Sink, connected bool) error {
			e.add("%s:%v", sink.Name(), connected)
			return nil
		},
	}
}

type fakeMetrics struct {
	mu        sync.Mutex
	mixed     int
	underruns int
	rejected  map[Kind]int
	dropped   int
	topology  [5]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{rejected: make(map[Kind]int)}
}

func (m *fakeMetrics) FramesMixed(_ string, frames int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mixed += frames
}

func (m *fakeMetrics) Underrun(_, _ string, frames int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.underruns += frames
}

func (m *fakeMetrics) StreamRejected(kind Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[kind]++
}

func (m *fakeMetrics) CaptureDropped(_ string, bytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped += bytes
}

func (m *fakeMetrics) Topology(sources, sinks, connections, contexts, devices int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topology = [5]int{sources, sinks, connections, contexts, devices}
}

type metricsView struct {
	mixed     int
	underruns int
	busy      int
	invalid   int
	dropped   int
	topology  [5]int
}

func (m *fakeMetrics) snapshot() metricsView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return metricsView{
		mixed:     m.mixed,
		underruns: m.underruns,
		busy:      m.rejected[KindBusy],
		invalid:   m.rejected[KindInvalidArgument],
		dropped:   m.dropped,
		topology:  m.topology,
	}
}

// testDevice is a minimal Device
type testDevice struct {
	id, name string
	src      *Source
	sink     *Sink
}

func (d *testDevice) ID() string      { return d.id }
func (d *testDevice) Name() string    { return d.name }
func (d *testDevice) Source() *Source { return d.src }
func (d *testDevice) Sink() *Sink     { return d.sink }
