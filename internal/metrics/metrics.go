// Package metrics exposes chatwire's Prometheus counters and gauges: the
// observability layer is limited to already-computed control-flow
// outcomes (sessions opened/closed, frames decoded/rejected, requests
// routed) and never gates or throttles a write.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns a private prometheus.Registry and the metrics collectors
// chatwire publishes to it.
type Registry struct {
	reg *prometheus.Registry

	sessionsActive  prometheus.Gauge
	sessionsTotal   prometheus.Counter
	framesDecoded   *prometheus.CounterVec
	framesRejected  *prometheus.CounterVec
	requestsRouted  *prometheus.CounterVec
}

// NewRegistry constructs and registers all chatwire metrics on a fresh
// private registry.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatwire_sessions_active",
			Help: "Number of currently connected sessions.",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatwire_sessions_total",
			Help: "Total number of sessions ever accepted.",
		}),
		framesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatwire_frames_decoded_total",
			Help: "Frames successfully decoded, by message type.",
		}, []string{"type"}),
		framesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatwire_frames_rejected_total",
			Help: "Frames rejected before or during decode, by reason.",
		}, []string{"reason"}),
		requestsRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatwire_requests_routed_total",
			Help: "Requests dispatched by the router, by method and outcome.",
		}, []string{"method", "outcome"}),
	}
	r.reg.MustRegister(r.sessionsActive, r.sessionsTotal, r.framesDecoded, r.framesRejected, r.requestsRouted)
	return r
}

// SessionOpened records a newly accepted session.
func (r *Registry) SessionOpened() {
	r.sessionsActive.Inc()
	r.sessionsTotal.Inc()
}

// SessionClosed records a session leaving the registry.
func (r *Registry) SessionClosed() {
	r.sessionsActive.Dec()
}

// FrameDecoded records a successfully decoded frame of the given type.
func (r *Registry) FrameDecoded(msgType string) {
	r.framesDecoded.WithLabelValues(msgType).Inc()
}

// FrameRejected records a frame rejected for reason (e.g.
// "schema_violation", "payload_too_large", "io_error").
func (r *Registry) FrameRejected(reason string) {
	r.framesRejected.WithLabelValues(reason).Inc()
}

// RequestRouted records one routed request's method and outcome.
func (r *Registry) RequestRouted(method, outcome string) {
	r.requestsRouted.WithLabelValues(method, outcome).Inc()
}

// Handler returns the http.Handler that serves this registry's metrics
// in the Prometheus text exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
