package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NewRegistry creates a registry with every metric registered on its own
// prometheus.Registry, so several coordinators can coexist in one process.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}
	r.initSubmissionMetrics()
	r.initReplicaMetrics()
	return r
}

// Gatherer exposes the underlying registry for scraping.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

func (r *Registry) initSubmissionMetrics() {
	r.SubmissionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "replicator_submissions_total",
			Help: "Total number of submissions by policy and outcome",
		},
		[]string{"policy", "outcome"},
	)

	r.SettleDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "replicator_settle_duration_seconds",
			Help:    "Time from dispatch until the policy settled",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"policy"},
	)

	r.LogEntries = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "replicator_log_entries",
			Help: "Number of entries in the leader's write log",
		},
	)
}

func (r *Registry) initReplicaMetrics() {
	r.ReplicaAcksTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "replicator_replica_acks_total",
			Help: "Total number of acknowledgments per replica",
		},
		[]string{"replica"},
	)

	r.ReplicaAckLatency = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "replicator_replica_ack_latency_seconds",
			Help:    "Time a replica took to apply and acknowledge an entry",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"replica"},
	)

	r.InFlightCalls = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "replicator_inflight_replica_calls",
			Help: "Replica calls dispatched but not yet acknowledged",
		},
	)
}

// RecordSubmission records the outcome of a submission.
func (r *Registry) RecordSubmission(policy, outcome string) {
	r.SubmissionsTotal.WithLabelValues(policy, outcome).Inc()
}

// RecordSettle records how long a policy took to settle.
func (r *Registry) RecordSettle(policy string, duration time.Duration) {
	r.SettleDuration.WithLabelValues(policy).Observe(duration.Seconds())
}

// RecordAck records a replica acknowledgment.
func (r *Registry) RecordAck(replica string, elapsed time.Duration) {
	r.ReplicaAcksTotal.WithLabelValues(replica).Inc()
	r.ReplicaAckLatency.WithLabelValues(replica).Observe(elapsed.Seconds())
}

// CallsDispatched adds n in-flight replica calls.
func (r *Registry) CallsDispatched(n int) {
	r.InFlightCalls.Add(float64(n))
}

// CallFinished removes one in-flight replica call.
func (r *Registry) CallFinished() {
	r.InFlightCalls.Dec()
}

// SetLogLength reports the write log length. The log only grows, so a
// length lower than one already reported is ignored.
func (r *Registry) SetLogLength(n int) {
	r.logMu.Lock()
	defer r.logMu.Unlock()

	if n <= r.logLen {
		return
	}
	r.logLen = n
	r.LogEntries.Set(float64(n))
}
