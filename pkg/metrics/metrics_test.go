package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordsPerPool(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	a := c.ForPool("a", "kv")
	b := c.ForPool("b", "stack")

	a.SetOccupancy(1, 2, 3)
	a.Acquired(SourceCreated)
	a.Acquired(SourceCreated)
	a.Acquired(SourceIdle)
	a.WaitCanceled()
	a.Waited(5 * time.Millisecond)
	b.TxnFinished(OutcomeCommit)
	b.TxnFinished(OutcomeRollback)
	b.TxnFinished(OutcomeRollback)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.idleConnections.WithLabelValues("a", "kv")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.activeConnections.WithLabelValues("a", "kv")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.waitingRequests.WithLabelValues("a", "kv")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.acquisitions.WithLabelValues("a", "kv", SourceCreated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.acquisitions.WithLabelValues("a", "kv", SourceIdle)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.canceledWaits.WithLabelValues("a", "kv")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transactions.WithLabelValues("b", "stack", OutcomeCommit)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.transactions.WithLabelValues("b", "stack", OutcomeRollback)))
	assert.Equal(t, 2, testutil.CollectAndCount(c.waitDuration), "ForPool creates one wait series per pool")
	assert.Equal(t, uint64(1), waitSampleCount(t, reg, "a"))
	assert.Equal(t, uint64(0), waitSampleCount(t, reg, "b"))
}

// waitSampleCount returns how many waits were observed for pool.
func waitSampleCount(t *testing.T, reg *prometheus.Registry, pool string) uint64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "tidepool_pool_wait_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "pool" && l.GetValue() == pool {
					return m.GetHistogram().GetSampleCount()
				}
			}
		}
	}
	t.Fatalf("no wait series for pool %q", pool)
	return 0
}

func TestNewCollectorTwiceOnSameRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewCollector(reg)
	require.NoError(t, err)

	_, err = NewCollector(reg)
	assert.Error(t, err)
}

func TestNilPoolMetricsIsNoop(t *testing.T) {
	var m *PoolMetrics
	assert.NotPanics(t, func() {
		m.SetOccupancy(1, 1, 1)
		m.Acquired(SourceHandoff)
		m.Waited(time.Second)
		m.WaitCanceled()
		m.TxnFinished(OutcomeCanceled)
	})
}
