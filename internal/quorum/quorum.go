package quorum

import (
	"context"
	"sync"
	"sync/atomic"

	"replicator/internal/replica"
	"replicator/internal/writelog"
)

// AckFunc observes every acknowledgment as it happens, from the replica's
// goroutine. acked is the round's acknowledgment count including this one.
type AckFunc func(ack replica.Ack, acked int)

// Round is one fan-out of a single entry to a fixed set of replicas.
type Round struct {
	total int

	acks    chan replica.Ack
	counter atomic.Int32

	waitSem  chan struct{} // one consumer of acks at a time
	received atomic.Int32  // acks consumed by Await/Drain

	wg   sync.WaitGroup
	done chan struct{}
}

// Dispatch starts one replication call per replica and returns immediately.
//
// The calls run on a context detached from ctx's cancellation, so releasing
// a waiter never stops replica work. Every call is started before any of
// them may complete.
func Dispatch(ctx context.Context, replicas []replica.Replica, entry writelog.Entry, onAck AckFunc) *Round {
	r := &Round{
		total:   len(replicas),
		acks:    make(chan replica.Ack, len(replicas)),
		waitSem: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	workCtx := context.WithoutCancel(ctx)
	start := make(chan struct{})

	r.wg.Add(len(replicas))
	for _, rep := range replicas {
		go func(rep replica.Replica) {
			defer r.wg.Done()
			<-start

			ack := rep.Replicate(workCtx, entry)
			acked := int(r.counter.Add(1))
			if onAck != nil {
				onAck(ack, acked)
			}
			r.acks <- ack
		}(rep)
	}
	close(start)

	go func() {
		r.wg.Wait()
		close(r.done)
	}()

	return r
}

// Await blocks until k more acknowledgments have been consumed or ctx is
// done. k is clamped to the acknowledgments not yet consumed. The returned
// slice holds the acknowledgments consumed by this call in completion order,
// even when ctx ends the wait early. Concurrent callers take turns; a caller
// still waiting for its turn returns when its own ctx is done.
func (r *Round) Await(ctx context.Context, k int) ([]replica.Ack, error) {
	select {
	case r.waitSem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-r.waitSem }()

	if remaining := r.total - int(r.received.Load()); k > remaining {
		k = remaining
	}

	out := make([]replica.Ack, 0, max(k, 0))
	for len(out) < k {
		select {
		case ack := <-r.acks:
			out = append(out, ack)
			r.received.Add(1)
		case <-ctx.Done():
			return out, ctx.Err()
		}
	}
	return out, nil
}

// Drain consumes every acknowledgment not consumed yet.
func (r *Round) Drain(ctx context.Context) ([]replica.Ack, error) {
	return r.Await(ctx, r.total)
}

// Wait blocks until every replica call has finished, without consuming
// acknowledgments.
func (r *Round) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once every replica call has finished.
func (r *Round) Done() <-chan struct{} {
	return r.done
}

// Acked returns how many replicas have acknowledged so far.
func (r *Round) Acked() int {
	return int(r.counter.Load())
}

// Received returns how many acknowledgments waiters have consumed.
func (r *Round) Received() int {
	return int(r.received.Load())
}

// Outstanding returns how many replica calls have not acknowledged yet.
func (r *Round) Outstanding() int {
	return r.total - r.Acked()
}

// Total returns the number of replicas the round was dispatched to.
func (r *Round) Total() int {
	return r.total
}

