package coordinator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"replicator/internal/policy"
	"replicator/internal/quorum"
	"replicator/internal/replica"
)

// Submit appends payload to the write log and replicates it under the
// policy named by mode (async, sync or semi-sync, case-insensitive).
//
// The entry is logged even when mode is unknown; Submit then returns a
// PolicyError result together with a *policy.Error and dispatches nothing.
// Sync blocks until every replica acknowledged, semi-sync until the first
// one did. When ctx ends a wait early the result is Interrupted, carries a
// Pending handle and ctx's error is returned. Replica calls are never
// cancelled.
func (c *Coordinator) Submit(ctx context.Context, payload []byte, mode string) (*Result, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, ErrClosed
	}

	entry := c.log.Append(payload)
	c.metrics.SetLogLength(int(entry.Sequence))

	id := uuid.New()
	logger := c.logger.With(
		zap.Stringer("submission", id),
		zap.Uint64("sequence", entry.Sequence))
	logger.Info("Submission received",
		zap.String("mode", mode),
		zap.Int("payload_bytes", len(payload)))

	result := &Result{
		ID:       id,
		Entry:    entry,
		Replicas: len(c.replicas),
	}

	p, err := policy.Parse(mode)
	if err != nil {
		c.mu.RUnlock()
		result.Outcome = PolicyError
		logger.Warn("Unknown replication mode, entry logged without replication", zap.String("mode", mode))
		c.metrics.RecordSubmission(p.String(), result.Outcome.String())
		return result, fmt.Errorf("submission %d: %w", entry.Sequence, err)
	}
	result.Policy = p

	tracker := policy.NewTracker(p, len(c.replicas))

	logger.Info("Dispatch started",
		zap.Stringer("policy", p),
		zap.Int("replicas", len(c.replicas)))
	c.inflight.Add(len(c.replicas))
	c.metrics.CallsDispatched(len(c.replicas))
	dispatchedAt := c.clock.Now()
	round := quorum.Dispatch(ctx, c.replicas, entry, c.ackObserver(logger))
	c.mu.RUnlock()

	state, err := tracker.Dispatch()
	if err != nil {
		return result, fmt.Errorf("submission %d: %w", entry.Sequence, err)
	}

	if state != policy.Settled {
		acks, err := round.Await(ctx, tracker.Required())
		settled := observe(tracker, acks, logger)
		result.Acks = acks
		result.Acked = round.Acked()

		if err != nil {
			result.Outcome = Interrupted
			result.Pending = newPending(id, round, tracker, logger)
			logger.Warn("Wait interrupted before policy settled",
				zap.Stringer("policy", p),
				zap.Int("acked", result.Acked),
				zap.Int("required", tracker.Required()),
				zap.Error(err))
			c.metrics.RecordSubmission(p.String(), result.Outcome.String())
			return result, fmt.Errorf("submission %d: waiting for %s acknowledgments: %w", entry.Sequence, p, err)
		}
		if !settled {
			return result, fmt.Errorf("submission %d: %s not settled after %d acknowledgments, tracker %s",
				entry.Sequence, p, len(acks), tracker.State())
		}
	} else {
		result.Acked = round.Acked()
	}

	result.Outcome = settledOutcome(p, len(c.replicas))
	if p.TracksRemainder() {
		result.Pending = newPending(id, round, tracker, logger)
	}

	elapsed := c.clock.Since(dispatchedAt)
	logger.Info("Policy settled",
		zap.Stringer("policy", p),
		zap.Stringer("outcome", result.Outcome),
		zap.Stringer("state", tracker.State()),
		zap.Int("acked", result.Acked),
		zap.Duration("elapsed", elapsed))
	c.metrics.RecordSettle(p.String(), elapsed)
	c.metrics.RecordSubmission(p.String(), result.Outcome.String())

	return result, nil
}

// settledOutcome maps a settled policy to its outcome. With no replicas
// registered a blocking policy settles vacuously as fully acknowledged.
func settledOutcome(p policy.Policy, replicas int) Outcome {
	switch {
	case p == policy.Async:
		return DispatchInitiated
	case p == policy.SemiSync && replicas > 0:
		return FirstAcknowledged
	default:
		return FullyAcknowledged
	}
}

func newPending(id uuid.UUID, round *quorum.Round, tracker *policy.Tracker, logger *zap.Logger) *Pending {
	return &Pending{
		id:      id,
		round:   round,
		tracker: tracker,
		logger:  logger,
	}
}

// ackObserver runs on each replica's goroutine as it acknowledges.
func (c *Coordinator) ackObserver(logger *zap.Logger) quorum.AckFunc {
	return func(ack replica.Ack, acked int) {
		defer c.inflight.Done()

		c.metrics.CallFinished()
		c.metrics.RecordAck(ack.ReplicaID, ack.Elapsed)
		logger.Info("Replica acknowledged",
			zap.String("replica", ack.ReplicaID),
			zap.Duration("elapsed", ack.Elapsed),
			zap.Int("acked", acked))
	}
}
