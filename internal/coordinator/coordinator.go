package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"replicator/internal/metrics"
	"replicator/internal/replica"
	"replicator/internal/writelog"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("coordinator closed")

// Coordinator is the replication leader.
type Coordinator struct {
	mu       sync.RWMutex // guards closed and orders inflight.Add before Close's Wait
	closed   bool
	inflight sync.WaitGroup // one count per dispatched replica call

	log      *writelog.Log
	replicas []replica.Replica
	clock    clock.Clock
	logger   *zap.Logger
	metrics  *metrics.Registry
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the clock used for log timestamps and settle latency.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clk
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Coordinator) {
		c.logger = log.With(zap.String("service", "replication"))
	}
}

// WithMetrics sets the metrics registry. By default each coordinator gets
// its own registry.
func WithMetrics(r *metrics.Registry) Option {
	return func(c *Coordinator) {
		c.metrics = r
	}
}

// New creates a coordinator replicating to replicas, in registry order.
func New(replicas []replica.Replica, opts ...Option) *Coordinator {
	c := &Coordinator{
		replicas: append([]replica.Replica(nil), replicas...),
		clock:    clock.New(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.NewRegistry()
	}
	c.log = writelog.New(c.clock)
	return c
}

// Log returns a snapshot of the write log.
func (c *Coordinator) Log() []writelog.Entry {
	return c.log.Entries()
}

// LogLen returns the number of entries in the write log.
func (c *Coordinator) LogLen() int {
	return c.log.Len()
}

// Replicas returns the replica registry in dispatch order.
func (c *Coordinator) Replicas() []replica.Replica {
	return append([]replica.Replica(nil), c.replicas...)
}

// Replica looks up a registered replica by ID.
func (c *Coordinator) Replica(id string) (replica.Replica, bool) {
	for _, r := range c.replicas {
		if r.ID() == id {
			return r, true
		}
	}
	return nil, false
}

// Metrics returns the coordinator's metrics registry.
func (c *Coordinator) Metrics() *metrics.Registry {
	return c.metrics
}

// Close stops accepting submissions and waits until every replica call
// dispatched so far has finished, including fire-and-forget ones.
// Close may be called more than once.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Coordinator closed", zap.Int("log_entries", c.log.Len()))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight replica calls: %w", ctx.Err())
	}
}
