package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	actionsTotal   *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	jobWait        *prometheus.HistogramVec
	bytesTotal     *prometheus.CounterVec
	channelsActive prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glacier_actions_total",
				Help: "Total number of vault actions by verb and outcome",
			},
			[]string{"verb", "status"},
		),

		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "glacier_action_duration_seconds",
				Help:    "Vault action duration in seconds",
				Buckets: []float64{0.1, 1, 10, 60, 600, 3600, 4 * 3600, 12 * 3600},
			},
			[]string{"verb"},
		),

		jobWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "glacier_job_wait_seconds",
				Help:    "Time from retrieval job submission to completion, by how completion was observed",
				Buckets: []float64{60, 600, 3600, 3 * 3600, 5 * 3600, 12 * 3600},
			},
			[]string{"kind", "strategy"},
		),

		bytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glacier_bytes_total",
				Help: "Bytes transferred to or from the vault",
			},
			[]string{"direction"},
		),

		channelsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "glacier_channels_active",
				Help: "Notification channels currently provisioned",
			},
		),
	}

	reg.MustRegister(r.actionsTotal)
	reg.MustRegister(r.actionDuration)
	reg.MustRegister(r.jobWait)
	reg.MustRegister(r.bytesTotal)
	reg.MustRegister(r.channelsActive)

	return r
}

// RecordAction records the outcome of one vault action.
func (r *Registry) RecordAction(verb, status string, duration float64) {
	if r == nil {
		return
	}
	r.actionsTotal.WithLabelValues(verb, status).Inc()
	r.actionDuration.WithLabelValues(verb).Observe(duration)
}

// RecordJobWait records how long a retrieval job took to resolve.
func (r *Registry) RecordJobWait(kind, strategy string, seconds float64) {
	if r == nil {
		return
	}
	r.jobWait.WithLabelValues(kind, strategy).Observe(seconds)
}

// AddBytes counts transferred bytes; direction is "upload" or "download".
func (r *Registry) AddBytes(direction string, n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.bytesTotal.WithLabelValues(direction).Add(float64(n))
}

// ChannelOpened increments the active channel gauge.
func (r *Registry) ChannelOpened() {
	if r == nil {
		return
	}
	r.channelsActive.Inc()
}

// ChannelClosed decrements the active channel gauge.
func (r *Registry) ChannelClosed() {
	if r == nil {
		return
	}
	r.channelsActive.Dec()
}

// WriteTextfile writes all metrics in text exposition format, for the
// node_exporter textfile collector.
func (r *Registry) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.Registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
