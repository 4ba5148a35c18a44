// Package metrics exposes prometheus collectors for event monitors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fseventmon"

// Drop reasons reported by the filter pipeline.
const (
	ReasonControl   = "control"
	ReasonExcluded  = "excluded"
	ReasonAction    = "action"
	ReasonScope     = "scope"
	ReasonSelf      = "self"
	ReasonPredicate = "predicate"
	ReasonStale     = "stale"
)

type Metrics struct {
	received      *prometheus.CounterVec
	delivered     *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	restarts      *prometheus.CounterVec
	startFailures *prometheus.CounterVec
	wraps         *prometheus.CounterVec
	active        *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		received: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_received_total",
			Help:      "Raw records delivered by the notification service.",
		}, []string{"monitor"}),
		delivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_delivered_total",
			Help:      "Records that passed the filter pipeline.",
		}, []string{"monitor"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Records removed by the filter pipeline, by reason.",
		}, []string{"monitor", "reason"}),
		restarts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_restarts_total",
			Help:      "Streams recreated because of a configuration change.",
		}, []string{"monitor"}),
		startFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_start_failures_total",
			Help:      "Attempts to bring up a stream that ended stopped.",
		}, []string{"monitor"}),
		wraps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_id_wraps_total",
			Help:      "Batches carrying the event id wrap marker.",
		}, []string{"monitor"}),
		active: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_running",
			Help:      "1 while the monitor holds a running stream.",
		}, []string{"monitor"}),
	}
}

// For returns the recorder of a single monitor.
func (m *Metrics) For(monitor string) *Recorder {
	return &Recorder{m: m, name: monitor}
}

// Recorder is safe to use as a nil pointer, which records nothing.
type Recorder struct {
	m    *Metrics
	name string
}

func (r *Recorder) Received(n int) {
	if r == nil {
		return
	}
	r.m.received.WithLabelValues(r.name).Add(float64(n))
}

func (r *Recorder) Delivered(n int) {
	if r == nil {
		return
	}
	r.m.delivered.WithLabelValues(r.name).Add(float64(n))
}

func (r *Recorder) Dropped(reason string) {
	if r == nil {
		return
	}
	r.m.dropped.WithLabelValues(r.name, reason).Inc()
}

func (r *Recorder) Restarted() {
	if r == nil {
		return
	}
	r.m.restarts.WithLabelValues(r.name).Inc()
}

func (r *Recorder) StartFailed() {
	if r == nil {
		return
	}
	r.m.startFailures.WithLabelValues(r.name).Inc()
}

func (r *Recorder) Wrapped() {
	if r == nil {
		return
	}
	r.m.wraps.WithLabelValues(r.name).Inc()
}

func (r *Recorder) Running(running bool) {
	if r == nil {
		return
	}
	v := 0.0
	if running {
		v = 1
	}
	r.m.active.WithLabelValues(r.name).Set(v)
}
