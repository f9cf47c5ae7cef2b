package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Observe("a1", 100*time.Millisecond, true)
	c.Observe("a1", 200*time.Millisecond, false)
	c.Observe("a2", 50*time.Millisecond, true)

	assert.Equal(t, 1.0, promtestutil.ToFloat64(c.executions.WithLabelValues("a1", "completed")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(c.executions.WithLabelValues("a1", "failed")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(c.executions.WithLabelValues("a2", "completed")))
}

func TestCollectorActiveGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SetActiveExecutions(3)
	assert.Equal(t, 3.0, promtestutil.ToFloat64(c.inflight))
}

func TestTrackerMirrorsIntoCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	tr := New(func(o *Options) { o.Collector = c })

	tr.Track("a1")
	tr.Record("a1", time.Second, true)

	assert.Equal(t, 1.0, promtestutil.ToFloat64(c.executions.WithLabelValues("a1", "completed")))
}
