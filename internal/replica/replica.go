package replica

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"replicator/internal/storage"
	"replicator/internal/writelog"
)

// Ack is a replica's acknowledgment that it applied an entry.
type Ack struct {
	ReplicaID string
	Sequence  uint64
	Elapsed   time.Duration
	AckedAt   time.Time
}

// Replica is anything the coordinator can replicate an entry to.
// Replicate may take arbitrarily long and must not fail.
type Replica interface {
	ID() string
	Replicate(ctx context.Context, entry writelog.Entry) Ack
}

// MemoryReplica is an in-process replica backed by a storage.Store.
type MemoryReplica struct {
	id      string
	store   storage.Store
	latency Latency
	clock   clock.Clock
	logger  *zap.Logger
}

// Option configures a MemoryReplica.
type Option func(*MemoryReplica)

// WithLatency sets the latency provider. The default applies immediately.
func WithLatency(l Latency) Option {
	return func(r *MemoryReplica) {
		r.latency = l
	}
}

// WithClock sets the clock used for delays and timestamps.
func WithClock(clk clock.Clock) Option {
	return func(r *MemoryReplica) {
		r.clock = clk
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *MemoryReplica) {
		r.logger = l
	}
}

// WithStore replaces the default in-memory store.
func WithStore(s storage.Store) Option {
	return func(r *MemoryReplica) {
		r.store = s
	}
}

// New creates a replica with the given identity.
func New(id string, opts ...Option) *MemoryReplica {
	r := &MemoryReplica{
		id:      id,
		latency: FixedLatency(0),
		clock:   clock.New(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.store == nil {
		r.store = storage.NewInMemoryStore(id)
	}
	r.logger = r.logger.With(zap.String("replica", id))
	return r
}

// ID returns the replica identity.
func (r *MemoryReplica) ID() string {
	return r.id
}

// Replicate waits for the configured latency, appends the entry to local
// state and acknowledges. The wait is not interrupted by ctx: once started,
// replication always runs to completion.
func (r *MemoryReplica) Replicate(ctx context.Context, entry writelog.Entry) Ack {
	start := r.clock.Now()

	if d := r.latency.Delay(r.id, entry); d > 0 {
		r.clock.Sleep(d)
	}

	if err := r.store.Append(entry); err != nil {
		// Only reachable if the same entry is handed over twice.
		r.logger.Warn("Entry already applied", zap.Uint64("sequence", entry.Sequence), zap.Error(err))
	}

	ack := Ack{
		ReplicaID: r.id,
		Sequence:  entry.Sequence,
		Elapsed:   r.clock.Since(start),
		AckedAt:   r.clock.Now(),
	}
	r.logger.Debug("Replicated entry",
		zap.Uint64("sequence", entry.Sequence),
		zap.ByteString("payload", entry.Payload),
		zap.Duration("elapsed", ack.Elapsed))
	return ack
}

// Entries returns the entries applied so far, in application order.
func (r *MemoryReplica) Entries() []writelog.Entry {
	return r.store.Entries()
}

// Payloads returns the applied payloads as strings, in application order.
func (r *MemoryReplica) Payloads() []string {
	entries := r.store.Entries()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = string(e.Payload)
	}
	return out
}

// Has reports whether the entry with the given sequence was applied.
func (r *MemoryReplica) Has(seq uint64) bool {
	return r.store.Has(seq)
}

// Len returns the number of applied entries.
func (r *MemoryReplica) Len() int {
	return r.store.Len()
}

// Set converts memory replicas to the Replica interface, preserving order.
func Set(replicas ...*MemoryReplica) []Replica {
	out := make([]Replica, len(replicas))
	for i, r := range replicas {
		out[i] = r
	}
	return out
}
