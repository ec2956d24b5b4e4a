package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the dispatcher's Prometheus instruments.
type Metrics struct {
	Started  prometheus.Counter
	Finished *prometheus.CounterVec // labels: state, failure
	InFlight prometheus.Gauge
	Duration prometheus.Histogram
}

// NewMetrics creates the dispatcher instruments and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "simbatch",
			Name:      "jobs_started_total",
			Help:      "Simulation processes started.",
		}),
		Finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simbatch",
			Name:      "jobs_finished_total",
			Help:      "Jobs that reached a terminal state.",
		}, []string{"state", "failure"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "simbatch",
			Name:      "jobs_in_flight",
			Help:      "Simulation processes currently running.",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "simbatch",
			Name:      "job_duration_seconds",
			Help:      "Wall time of simulation processes.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 14),
		}),
	}
	reg.MustRegister(m.Started, m.Finished, m.InFlight, m.Duration)
	return m
}

func (m *Metrics) jobStarted() {
	if m == nil {
		return
	}
	m.Started.Inc()
	m.InFlight.Inc()
}

func (m *Metrics) jobFinished(o *Outcome, ran bool) {
	if m == nil {
		return
	}
	if ran {
		m.InFlight.Dec()
		m.Duration.Observe(o.Duration().Seconds())
	}
	m.Finished.WithLabelValues(o.State.String(), o.Failure.String()).Inc()
}
