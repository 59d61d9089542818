// Package metrics exposes run counters for the HTTP and stream surfaces.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"ropesim/internal/protocol"
	"ropesim/internal/runner"
)

type Metrics struct {
	Runs          *prometheus.CounterVec
	Steps         *prometheus.CounterVec
	Distinct      *prometheus.GaugeVec
	Duration      prometheus.Histogram
	StreamClients prometheus.Gauge
}

// New registers the collectors on reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ropesim_runs_total",
				Help: "Simulation runs by surface and result code",
			},
			[]string{"surface", "code"},
		),
		Steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ropesim_unit_steps_total",
				Help: "Unit head steps simulated, per part",
			},
			[]string{"part"},
		),
		Distinct: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ropesim_last_distinct_tail_positions",
				Help: "Distinct tail positions of the most recent successful run, per part",
			},
			[]string{"part"},
		),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ropesim_run_duration_seconds",
			Help:    "Wall time of a whole run including persistence",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ropesim_stream_clients",
			Help: "Connected websocket stream clients",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Runs, m.Steps, m.Distinct, m.Duration, m.StreamClients)
	}
	return m
}

// ObserveRun records the outcome of one run. Safe on a nil receiver.
func (m *Metrics) ObserveRun(surface string, res runner.Result, err error) {
	if m == nil {
		return
	}
	code := protocol.CodeOf(err)
	if code == "" {
		code = "OK"
	}
	m.Runs.WithLabelValues(surface, code).Inc()
	if err != nil {
		return
	}
	m.Duration.Observe(res.Elapsed.Seconds())
	for _, p := range res.Report.Parts {
		m.Steps.WithLabelValues(p.Part.Name).Add(float64(p.Steps))
		m.Distinct.WithLabelValues(p.Part.Name).Set(float64(p.Distinct))
	}
}

func (m *Metrics) StreamOpened() {
	if m != nil {
		m.StreamClients.Inc()
	}
}

func (m *Metrics) StreamClosed() {
	if m != nil {
		m.StreamClients.Dec()
	}
}
