package quorum

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"replicator/internal/replica"
	"replicator/internal/writelog"
)

// gatedReplica blocks in Replicate until its gate is released.
type gatedReplica struct {
	*replica.MemoryReplica
	gate chan struct{}
}

func newGated(id string) *gatedReplica {
	return &gatedReplica{MemoryReplica: replica.New(id), gate: make(chan struct{})}
}

func (g *gatedReplica) Replicate(ctx context.Context, entry writelog.Entry) replica.Ack {
	<-g.gate
	return g.MemoryReplica.Replicate(ctx, entry)
}

func (g *gatedReplica) release() {
	close(g.gate)
}

func fastReplicas(ids ...string) []replica.Replica {
	out := make([]replica.Replica, len(ids))
	for i, id := range ids {
		out[i] = replica.New(id)
	}
	return out
}

func testEntry() writelog.Entry {
	return writelog.Entry{Sequence: 1, Payload: []byte("Write-1")}
}

func TestDispatch_DrainCollectsEveryAck(t *testing.T) {
	replicas := fastReplicas("r1", "r2", "r3")

	round := Dispatch(context.Background(), replicas, testEntry(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	acks, err := round.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if len(acks) != 3 {
		t.Fatalf("Expected 3 acks, got %d", len(acks))
	}

	ids := make([]string, 0, len(acks))
	for _, a := range acks {
		ids = append(ids, a.ReplicaID)
	}
	sort.Strings(ids)
	if ids[0] != "r1" || ids[1] != "r2" || ids[2] != "r3" {
		t.Errorf("Unexpected ack set: %v", ids)
	}
	if round.Acked() != 3 || round.Received() != 3 || round.Outstanding() != 0 {
		t.Errorf("acked=%d received=%d outstanding=%d", round.Acked(), round.Received(), round.Outstanding())
	}
}

func TestAwait_FirstByCompletionOrder(t *testing.T) {
	r1, r2, r3 := newGated("r1"), newGated("r2"), newGated("r3")
	round := Dispatch(context.Background(), []replica.Replica{r1, r2, r3}, testEntry(), nil)

	// r3 was dispatched last but completes first.
	r3.release()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	acks, err := round.Await(ctx, 1)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if len(acks) != 1 || acks[0].ReplicaID != "r3" {
		t.Fatalf("Expected first ack from r3, got %+v", acks)
	}
	if round.Outstanding() != 2 {
		t.Errorf("Expected 2 outstanding, got %d", round.Outstanding())
	}

	r1.release()
	r2.release()

	rest, err := round.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if len(rest) != 2 {
		t.Errorf("Expected 2 remaining acks, got %d", len(rest))
	}
	if !r1.Has(1) || !r2.Has(1) || !r3.Has(1) {
		t.Error("Every replica should hold the entry after drain")
	}
}

func TestAwait_ContextReleasesWaitNotWork(t *testing.T) {
	r1, r2 := newGated("r1"), newGated("r2")
	round := Dispatch(context.Background(), []replica.Replica{r1, r2}, testEntry(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	acks, err := round.Await(ctx, 2)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
	if len(acks) != 0 {
		t.Errorf("Expected no acks, got %d", len(acks))
	}

	r1.release()
	r2.release()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer drainCancel()

	acks, err = round.Drain(drainCtx)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if len(acks) != 2 {
		t.Errorf("Acks must not be lost after a released wait, got %d", len(acks))
	}
}

func TestDrain_ConcurrentCallerHonoursItsDeadline(t *testing.T) {
	r1, r2 := newGated("r1"), newGated("r2")
	round := Dispatch(context.Background(), []replica.Replica{r1, r2}, testEntry(), nil)
	r1.release()

	type drainResult struct {
		acks []replica.Ack
		err  error
	}
	first := make(chan drainResult, 1)
	go func() {
		acks, err := round.Drain(context.Background())
		first <- drainResult{acks, err}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	second := make(chan drainResult, 1)
	go func() {
		acks, err := round.Drain(ctx)
		second <- drainResult{acks, err}
	}()

	var timed drainResult
	select {
	case timed = <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("Drain with a 20ms deadline did not return while another Drain was waiting")
	}
	if !errors.Is(timed.err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", timed.err)
	}

	r2.release()

	var untimed drainResult
	select {
	case untimed = <-first:
	case <-time.After(5 * time.Second):
		t.Fatal("Unbounded Drain did not finish after every replica acknowledged")
	}
	if untimed.err != nil {
		t.Fatalf("Drain failed: %v", untimed.err)
	}
	if got := len(timed.acks) + len(untimed.acks); got != 2 {
		t.Errorf("Expected 2 acks across both drains, got %d", got)
	}
}

func TestDispatch_CancelledParentDoesNotCancelReplicas(t *testing.T) {
	var (
		mu   sync.Mutex
		errs []error
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	check := &ctxProbe{record: func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}}
	round := Dispatch(ctx, []replica.Replica{check, check}, testEntry(), nil)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	if err := round.Wait(waitCtx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, err := range errs {
		if err != nil {
			t.Errorf("Replica saw a cancelled context: %v", err)
		}
	}
}

type ctxProbe struct {
	record func(error)
}

func (p *ctxProbe) ID() string { return "probe" }

func (p *ctxProbe) Replicate(ctx context.Context, entry writelog.Entry) replica.Ack {
	p.record(ctx.Err())
	return replica.Ack{ReplicaID: "probe", Sequence: entry.Sequence}
}

func TestAwait_ClampsToRemaining(t *testing.T) {
	round := Dispatch(context.Background(), fastReplicas("r1", "r2"), testEntry(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	acks, err := round.Await(ctx, 10)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if len(acks) != 2 {
		t.Errorf("Expected 2 acks, got %d", len(acks))
	}

	// Nothing left to consume: returns at once.
	more, err := round.Drain(ctx)
	if err != nil || len(more) != 0 {
		t.Errorf("Expected empty drain, got %d acks, err=%v", len(more), err)
	}
}

func TestDispatch_OnAckSeesEachCountOnce(t *testing.T) {
	const n = 16
	ids := make([]string, n)
	for i := range ids {
		ids[i] = "r" + string(rune('a'+i))
	}

	var (
		mu   sync.Mutex
		seen = make(map[int]int)
	)
	onAck := func(_ replica.Ack, acked int) {
		mu.Lock()
		seen[acked]++
		mu.Unlock()
	}

	round := Dispatch(context.Background(), fastReplicas(ids...), testEntry(), onAck)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := round.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i <= n; i++ {
		if seen[i] != 1 {
			t.Errorf("Ack count %d observed %d times", i, seen[i])
		}
	}
	if len(seen) != n {
		t.Errorf("Counter exceeded replica count: %v", seen)
	}
}

func TestDispatch_NoReplicas(t *testing.T) {
	round := Dispatch(context.Background(), nil, testEntry(), nil)

	select {
	case <-round.Done():
	case <-time.After(time.Second):
		t.Fatal("Round with no replicas should finish at once")
	}

	acks, err := round.Drain(context.Background())
	if err != nil || len(acks) != 0 {
		t.Errorf("Expected empty drain, got %d acks, err=%v", len(acks), err)
	}
}
