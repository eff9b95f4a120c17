package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveUpstream("list", 200, 10*time.Millisecond)
	m.ObserveUpstream("list", 200, 10*time.Millisecond)
	m.ObserveUpstream("add", 0, time.Millisecond)
	m.IncTransition("select", "applied")
	m.IncAuditWriteFailure()
	m.AddAuditDeleted(3)
	m.AddAuditDeleted(0)
	m.AddAuditArchived(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.UpstreamRequests.WithLabelValues("list", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamRequests.WithLabelValues("add", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("select", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditWriteFailures))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.AuditEntriesDeleted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuditEntriesArchived))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveUpstream("add", 500, time.Second)
		m.IncTransition("reset", "noop")
		m.IncAuditWriteFailure()
		m.AddAuditDeleted(1)
		m.AddAuditArchived(1)
	})
}
