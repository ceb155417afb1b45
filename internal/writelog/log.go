package writelog

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Entry is a single write as recorded by the leader.
// Entries are immutable once appended; accessors hand out copies.
type Entry struct {
	Sequence    uint64
	Payload     []byte
	SubmittedAt time.Time
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	return Entry{
		Sequence:    e.Sequence,
		Payload:     append([]byte(nil), e.Payload...),
		SubmittedAt: e.SubmittedAt,
	}
}

// Log is the leader's write log. Insertion order is commit order as seen by
// the leader, which is not necessarily the order replicas apply entries in.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	clock   clock.Clock
}

// New creates an empty log stamping entries with clk.
// A nil clock falls back to the wall clock.
func New(clk clock.Clock) *Log {
	if clk == nil {
		clk = clock.New()
	}
	return &Log{
		entries: make([]Entry, 0),
		clock:   clk,
	}
}

// Append assigns the next sequence number to payload and stores it.
// The first entry gets sequence 1.
func (l *Log) Append(payload []byte) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		Sequence:    uint64(len(l.entries)) + 1,
		Payload:     append([]byte(nil), payload...),
		SubmittedAt: l.clock.Now(),
	}
	l.entries = append(l.entries, entry)

	return entry.Clone()
}

// Get returns the entry with the given sequence number.
func (l *Log) Get(seq uint64) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if seq == 0 || seq > uint64(len(l.entries)) {
		return Entry{}, false
	}
	return l.entries[seq-1].Clone(), true
}

// Last returns the most recently appended entry.
func (l *Log) Last() (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1].Clone(), true
}

// Entries returns a snapshot of the whole log in commit order.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Clone()
	}
	return out
}

// Len returns the number of entries in the log.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
