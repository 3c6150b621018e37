package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	upstreamTotal   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
	auditTotal      *prometheus.CounterVec
}

var (
	defaultOnce     sync.Once
	defaultRecorder *Recorder
)

// New returns the process-wide recorder registered on the default registry.
func New() *Recorder {
	defaultOnce.Do(func() {
		r, err := NewWithRegisterer(prometheus.DefaultRegisterer)
		if err != nil {
			panic(err)
		}
		defaultRecorder = r
	})
	return defaultRecorder
}

// NewWithRegisterer creates a recorder on a caller-owned registry.
func NewWithRegisterer(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		upstreamTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finrelay_upstream_requests_total",
				Help: "Upstream calls by provider, endpoint and outcome",
			},
			[]string{"provider", "endpoint", "outcome"},
		),
		upstreamLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finrelay_upstream_duration_seconds",
				Help:    "Duration of upstream calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "endpoint"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finrelay_translator_errors_total",
				Help: "Requests rejected or failed by the translator",
			},
			[]string{"provider", "kind"},
		),
		auditTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finrelay_audit_events_total",
				Help: "Fetch events handed to the audit backend",
			},
			[]string{"backend", "result"},
		),
	}
	for _, c := range []prometheus.Collector{r.upstreamTotal, r.upstreamLatency, r.errorsTotal, r.auditTotal} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// RecordUpstream records one upstream call.
func (r *Recorder) RecordUpstream(provider, endpoint, outcome string, seconds float64) {
	r.upstreamTotal.WithLabelValues(provider, endpoint, outcome).Inc()
	r.upstreamLatency.WithLabelValues(provider, endpoint).Observe(seconds)
}

// RecordError records a translator error by kind.
func (r *Recorder) RecordError(provider, kind string) {
	r.errorsTotal.WithLabelValues(provider, kind).Inc()
}

// RecordAudit records an audit hand-off result.
func (r *Recorder) RecordAudit(backend, result string) {
	r.auditTotal.WithLabelValues(backend, result).Inc()
}
