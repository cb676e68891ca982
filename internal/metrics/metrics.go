// ABOUTME: Prometheus implementation of the routing core's diagnostics hook
// ABOUTME: Owns a private prometheus.Registry with Go and process collectors
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Resonate-Protocol/hound/pkg/hound"
)

const namespace = "hound"

// Registry collects routing metrics. It implements hound.Metrics.
type Registry struct {
	prometheusRegistry *prometheus.Registry

	framesMixed    *prometheus.CounterVec
	underrunFrames *prometheus.CounterVec
	rejectedWrites *prometheus.CounterVec
	captureDropped *prometheus.CounterVec
	endpoints      *prometheus.GaugeVec
}

var _ hound.Metrics = (*Registry)(nil)

// New creates a registry with every hound metric registered
func New() *Registry {
	r := &Registry{
		prometheusRegistry: prometheus.NewRegistry(),

		framesMixed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mixer",
				Name:      "frames_total",
				Help:      "Frames mixed into a sink's destination buffer",
			},
			[]string{"sink"},
		),
		underrunFrames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mixer",
				Name:      "underrun_frames_total",
				Help:      "Frames a connection could not supply during a mix",
			},
			[]string{"source", "sink"},
		),
		rejectedWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "rejected_writes_total",
				Help:      "Stream writes refused, by error kind",
			},
			[]string{"kind"},
		),
		captureDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "capture_dropped_bytes_total",
				Help:      "Captured bytes dropped because a stream was full",
			},
			[]string{"context"},
		),
		endpoints: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "members",
				Help:      "Registered members by kind (source, sink, connection, context, device)",
			},
			[]string{"kind"},
		),
	}

	r.prometheusRegistry.MustRegister(
		r.framesMixed,
		r.underrunFrames,
		r.rejectedWrites,
		r.captureDropped,
		r.endpoints,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prometheusRegistry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func (r *Registry) FramesMixed(sink string, frames int) {
	r.framesMixed.WithLabelValues(sink).Add(float64(frames))
}

func (r *Registry) Underrun(source, sink string, frames int) {
	r.underrunFrames.WithLabelValues(source, sink).Add(float64(frames))
}

func (r *Registry) StreamRejected(kind hound.Kind) {
	r.rejectedWrites.WithLabelValues(kind.String()).Inc()
}

func (r *Registry) CaptureDropped(context string, bytes int) {
	r.captureDropped.WithLabelValues(context).Add(float64(bytes))
}

func (r *Registry) Topology(sources, sinks, connections, contexts, devices int) {
	r.endpoints.WithLabelValues("source").Set(float64(sources))
	r.endpoints.WithLabelValues("sink").Set(float64(sinks))
	r.endpoints.WithLabelValues("connection").Set(float64(connections))
	r.endpoints.WithLabelValues("context").Set(float64(contexts))
	r.endpoints.WithLabelValues("device").Set(float64(devices))
}
