// ABOUTME: Diagnostics hook for the mixing path and graph topology
// ABOUTME: Mixing problems degrade to silence and are only visible through here
package hound

// Metrics receives diagnostics from the registry and the data path.
// Implementations must be safe for concurrent use and must not block.
type Metrics interface {
	// FramesMixed counts frames produced into a sink's destination buffer
	FramesMixed(sink string, frames int)
	// Underrun counts frames a connection could not supply during a mix
	Underrun(source, sink string, frames int)
	// StreamRejected counts stream writes refused by backpressure or size checks
	StreamRejected(kind Kind)
	// CaptureDropped counts bytes a capture stream could not accept
	CaptureDropped(context string, bytes int)
	// Topology reports the registry membership after every change
	Topology(sources, sinks, connections, contexts, devices int)
}

type nopMetrics struct{}

func (nopMetrics) FramesMixed(string, int) {}
func (nopMetrics) Underrun(string, string, int) {}
func (nopMetrics) StreamRejected(Kind) {}
func (nopMetrics) CaptureDropped(string, int) {}
func (nopMetrics) Topology(int, int, int, int, int) {}
