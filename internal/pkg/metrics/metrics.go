package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	UpstreamRequests     *prometheus.CounterVec
	UpstreamDuration     *prometheus.HistogramVec
	Transitions          *prometheus.CounterVec
	AuditWriteFailures   prometheus.Counter
	AuditEntriesDeleted  prometheus.Counter
	AuditEntriesArchived prometheus.Counter
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		UpstreamRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "egress_gateway_requests_total",
			Help: "Requests sent to the gateway lists API by operation and status code",
		}, []string{"op", "status"}),
		UpstreamDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "egress_gateway_request_duration_seconds",
			Help:    "Latency of gateway lists API requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "egress_transitions_total",
			Help: "Reconciliation transitions by action and outcome",
		}, []string{"action", "outcome"}),
		AuditWriteFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "egress_audit_write_failures_total",
			Help: "Audit entries that could not be stored",
		}),
		AuditEntriesDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "egress_audit_entries_deleted_total",
			Help: "Audit entries removed by retention cleanup",
		}),
		AuditEntriesArchived: f.NewCounter(prometheus.CounterOpts{
			Name: "egress_audit_entries_archived_total",
			Help: "Audit entries exported before retention cleanup",
		}),
	}
}

// ObserveUpstream records one gateway request. status 0 means transport error.
func (m *Metrics) ObserveUpstream(op string, status int, d time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.UpstreamRequests.WithLabelValues(op, label).Inc()
	m.UpstreamDuration.WithLabelValues(op).Observe(d.Seconds())
}

// IncTransition counts a transition outcome ("applied", "noop", "failed", "partial").
func (m *Metrics) IncTransition(action, outcome string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(action, outcome).Inc()
}

// IncAuditWriteFailure counts a swallowed audit write error.
func (m *Metrics) IncAuditWriteFailure() {
	if m == nil {
		return
	}
	m.AuditWriteFailures.Inc()
}

// AddAuditDeleted adds n to the retention-deleted counter.
func (m *Metrics) AddAuditDeleted(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.AuditEntriesDeleted.Add(float64(n))
}

// AddAuditArchived adds n to the archived counter.
func (m *Metrics) AddAuditArchived(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.AuditEntriesArchived.Add(float64(n))
}
