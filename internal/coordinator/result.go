package coordinator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"replicator/internal/policy"
	"replicator/internal/quorum"
	"replicator/internal/replica"
	"replicator/internal/writelog"
)

// Outcome tells the caller what a submission achieved.
type Outcome int

const (
	_ Outcome = iota
	// PolicyError means the mode was not recognized; the entry was logged
	// but not dispatched.
	PolicyError
	// DispatchInitiated means the entry was logged and sent without waiting.
	DispatchInitiated
	// FullyAcknowledged means every replica applied the entry.
	FullyAcknowledged
	// FirstAcknowledged means at least one replica applied the entry.
	FirstAcknowledged
	// Interrupted means the caller's context ended the wait before the
	// policy settled. Replica calls keep running.
	Interrupted
)

// String returns the outcome name used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case PolicyError:
		return "policy_error"
	case DispatchInitiated:
		return "dispatch_initiated"
	case FullyAcknowledged:
		return "fully_acknowledged"
	case FirstAcknowledged:
		return "first_acknowledged"
	case Interrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Result describes one submission.
type Result struct {
	ID       uuid.UUID
	Entry    writelog.Entry
	Policy   policy.Policy
	Outcome  Outcome
	Acks     []replica.Ack // consumed before returning, in completion order
	Acked    int           // acknowledgments counted when the wait ended
	Replicas int

	// Pending is set when replica calls were still outstanding at return
	// and the caller may join them: always for semi-sync, and for an
	// interrupted sync wait.
	Pending *Pending
}

// Pending is a handle on the replica calls a submission returned without.
type Pending struct {
	id      uuid.UUID
	round   *quorum.Round
	tracker *policy.Tracker
	logger  *zap.Logger
}

// Drain blocks until every remaining replica call has acknowledged and
// returns those acknowledgments. It is safe to call again after ctx ends
// early; acknowledgments already returned are not returned twice.
func (p *Pending) Drain(ctx context.Context) ([]replica.Ack, error) {
	acks, err := p.round.Drain(ctx)
	observe(p.tracker, acks, p.logger)
	if err != nil {
		return acks, fmt.Errorf("drain submission %s: %w", p.id, err)
	}

	p.logger.Info("Round drained",
		zap.Int("drained", len(acks)),
		zap.Int("acked", p.round.Acked()))
	return acks, nil
}

// Outstanding returns how many acknowledgments have not been drained yet.
func (p *Pending) Outstanding() int {
	return p.round.Total() - p.round.Received()
}

// Done is closed once every replica call of the submission has finished.
func (p *Pending) Done() <-chan struct{} {
	return p.round.Done()
}

// observe feeds acks to the tracker and reports whether the tracker is
// Settled afterwards.
func observe(tracker *policy.Tracker, acks []replica.Ack, logger *zap.Logger) bool {
	for _, ack := range acks {
		if _, err := tracker.Observe(); err != nil {
			logger.Error("Acknowledgment rejected by policy tracker",
				zap.String("replica", ack.ReplicaID), zap.Error(err))
		}
	}
	return tracker.State() == policy.Settled
}
