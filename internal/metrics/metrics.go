// Package metrics exposes Prometheus instrumentation for the
// watch-build-serve loop.
package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the Prometheus collectors for docserve.
type Recorder struct {
	registry *prom.Registry

	buildOutcome      *prom.CounterVec
	buildDuration     prom.Histogram
	rebuildsCoalesced prom.Counter
	generation        prom.Gauge
	viewerSessions    prom.Gauge
}

// NewRecorder constructs and registers the docserve metrics on a fresh
// registry.
func NewRecorder() *Recorder {
	reg := prom.NewRegistry()

	r := &Recorder{
		registry: reg,
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docserve",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final state",
		}, []string{"outcome"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "docserve",
			Name:      "build_duration_seconds",
			Help:      "Duration of documentation builds",
			Buckets:   prom.DefBuckets,
		}),
		rebuildsCoalesced: prom.NewCounter(prom.CounterOpts{
			Namespace: "docserve",
			Name:      "rebuilds_coalesced_total",
			Help:      "Rebuild requests absorbed into an in-flight build",
		}),
		generation: prom.NewGauge(prom.GaugeOpts{
			Namespace: "docserve",
			Name:      "build_generation",
			Help:      "Generation of the most recent build attempt",
		}),
		viewerSessions: prom.NewGauge(prom.GaugeOpts{
			Namespace: "docserve",
			Name:      "viewer_sessions",
			Help:      "Currently connected live-reload sessions",
		}),
	}

	reg.MustRegister(r.buildOutcome, r.buildDuration, r.rebuildsCoalesced, r.generation, r.viewerSessions)
	return r
}

// BuildFinished records one completed build attempt.
func (r *Recorder) BuildFinished(outcome string, d time.Duration, generation uint64) {
	if r == nil {
		return
	}
	r.buildOutcome.WithLabelValues(outcome).Inc()
	r.buildDuration.Observe(d.Seconds())
	r.generation.Set(float64(generation))
}

// RebuildCoalesced records a rebuild request that arrived mid-build.
func (r *Recorder) RebuildCoalesced() {
	if r == nil {
		return
	}
	r.rebuildsCoalesced.Inc()
}

// SessionOpened records a new viewer session.
func (r *Recorder) SessionOpened() {
	if r == nil {
		return
	}
	r.viewerSessions.Inc()
}

// SessionClosed records a viewer session going away.
func (r *Recorder) SessionClosed() {
	if r == nil {
		return
	}
	r.viewerSessions.Dec()
}

// HTTPHandler returns an http.Handler serving this recorder's registry.
func (r *Recorder) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
