package replica

import (
	"math/rand"
	"sync"
	"time"

	"replicator/internal/writelog"
)

// DefaultMaxLatency bounds RandomLatency when no maximum is configured.
const DefaultMaxLatency = time.Second

// Latency decides how long a replica takes before applying an entry.
type Latency interface {
	Delay(replicaID string, entry writelog.Entry) time.Duration
}

// LatencyFunc adapts a function to Latency.
type LatencyFunc func(replicaID string, entry writelog.Entry) time.Duration

// Delay calls f.
func (f LatencyFunc) Delay(replicaID string, entry writelog.Entry) time.Duration {
	return f(replicaID, entry)
}

// FixedLatency delays every entry on every replica by d.
func FixedLatency(d time.Duration) Latency {
	return LatencyFunc(func(string, writelog.Entry) time.Duration { return d })
}

// PerReplicaLatency delays entries by a per-replica duration.
// Replicas missing from the map apply immediately.
func PerReplicaLatency(delays map[string]time.Duration) Latency {
	return LatencyFunc(func(replicaID string, _ writelog.Entry) time.Duration {
		return delays[replicaID]
	})
}

// RandomLatency draws delays uniformly from [lo, hi) using its own source,
// so a simulation seeded with the same value replays the same delays.
type RandomLatency struct {
	mu  sync.Mutex
	rnd *rand.Rand
	lo  time.Duration
	hi  time.Duration
}

// NewRandomLatency creates a RandomLatency. A non-positive hi falls back to
// DefaultMaxLatency; lo is clamped to [0, hi].
func NewRandomLatency(seed int64, lo, hi time.Duration) *RandomLatency {
	if hi <= 0 {
		hi = DefaultMaxLatency
	}
	if lo < 0 {
		lo = 0
	}
	if lo > hi {
		lo = hi
	}
	return &RandomLatency{
		rnd: rand.New(rand.NewSource(seed)),
		lo:  lo,
		hi:  hi,
	}
}

// Delay returns the next random delay.
func (r *RandomLatency) Delay(string, writelog.Entry) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	span := r.hi - r.lo
	if span <= 0 {
		return r.lo
	}
	return r.lo + time.Duration(r.rnd.Int63n(int64(span)))
}
