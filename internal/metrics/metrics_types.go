package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all replication metrics for one coordinator.
type Registry struct {
	// Submission Metrics
	SubmissionsTotal *prometheus.CounterVec
	SettleDuration   *prometheus.HistogramVec
	LogEntries       prometheus.Gauge

	// Replica Metrics
	ReplicaAcksTotal  *prometheus.CounterVec
	ReplicaAckLatency *prometheus.HistogramVec
	InFlightCalls     prometheus.Gauge

	logMu  sync.Mutex
	logLen int // highest length reported to LogEntries

	registry *prometheus.Registry
}
