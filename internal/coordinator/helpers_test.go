package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"replicator/internal/replica"
	"replicator/internal/writelog"
)

// gatedReplica holds each entry until the test releases its sequence,
// so completion order is decided by the test.
type gatedReplica struct {
	*replica.MemoryReplica

	mu    sync.Mutex
	gates map[uint64]chan struct{}
}

func newGatedReplica(id string) *gatedReplica {
	return &gatedReplica{
		MemoryReplica: replica.New(id),
		gates:         make(map[uint64]chan struct{}),
	}
}

func (g *gatedReplica) gate(seq uint64) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	ch, ok := g.gates[seq]
	if !ok {
		ch = make(chan struct{})
		g.gates[seq] = ch
	}
	return ch
}

func (g *gatedReplica) Replicate(ctx context.Context, entry writelog.Entry) replica.Ack {
	<-g.gate(entry.Sequence)
	return g.MemoryReplica.Replicate(ctx, entry)
}

func (g *gatedReplica) release(seq uint64) {
	close(g.gate(seq))
}

func gatedSet(ids ...string) ([]*gatedReplica, []replica.Replica) {
	gated := make([]*gatedReplica, len(ids))
	set := make([]replica.Replica, len(ids))
	for i, id := range ids {
		gated[i] = newGatedReplica(id)
		set[i] = gated[i]
	}
	return gated, set
}

func memorySet(ids ...string) []*replica.MemoryReplica {
	out := make([]*replica.MemoryReplica, len(ids))
	for i, id := range ids {
		out[i] = replica.New(id)
	}
	return out
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func closeCoordinator(t *testing.T, c *Coordinator) {
	t.Helper()
	if err := c.Close(testContext(t)); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}
