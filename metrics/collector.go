package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports execution observations as Prometheus metrics. It mirrors
// the tracker's inputs rather than its cumulative summaries, so standard
// rate()/histogram_quantile() queries work on the scraped series.
type Collector struct {
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	inflight   prometheus.Gauge
}

// NewCollector builds a collector and registers its metrics with the given
// registerer (prometheus.DefaultRegisterer is a common choice).
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentrun",
			Name:      "executions_total",
			Help:      "Execution attempts per agent and outcome.",
		}, []string{"agent_id", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentrun",
			Name:      "execution_duration_seconds",
			Help:      "Execution wall-clock duration per agent.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"agent_id"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentrun",
			Name:      "active_executions",
			Help:      "Currently active environment executions.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.executions, c.duration, c.inflight)
	}
	return c
}

// Observe records one execution attempt.
func (c *Collector) Observe(agentID string, duration time.Duration, success bool) {
	outcome := "completed"
	if !success {
		outcome = "failed"
	}
	c.executions.WithLabelValues(agentID, outcome).Inc()
	c.duration.WithLabelValues(agentID).Observe(duration.Seconds())
}

// SetActiveExecutions updates the in-flight execution gauge.
func (c *Collector) SetActiveExecutions(n int) {
	c.inflight.Set(float64(n))
}
