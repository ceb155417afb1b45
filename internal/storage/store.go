package storage

import (
	"fmt"
	"sync"

	"replicator/internal/writelog"
)

// Store defines the interface for replica-local entry storage.
type Store interface {
	// Append records an applied entry. Applying the same sequence twice is an error.
	Append(entry writelog.Entry) error
	// Get returns the applied entry with the given sequence number, or nil.
	Get(seq uint64) *writelog.Entry
	// Has reports whether the entry with the given sequence was applied.
	Has(seq uint64) bool
	// Entries returns every applied entry in application order.
	Entries() []writelog.Entry
	// Len returns the number of applied entries.
	Len() int
}

// InMemoryStore is an in-memory implementation of Store.
// It's thread-safe.
type InMemoryStore struct {
	mu        sync.RWMutex
	entries   []writelog.Entry
	index     map[uint64]int // sequence -> position in entries
	replicaID string
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore(replicaID string) *InMemoryStore {
	return &InMemoryStore{
		entries:   make([]writelog.Entry, 0),
		index:     make(map[uint64]int),
		replicaID: replicaID,
	}
}

// Append stores a copy of the entry.
func (s *InMemoryStore) Append(entry writelog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[entry.Sequence]; exists {
		return fmt.Errorf("replica %s: entry %d already applied", s.replicaID, entry.Sequence)
	}

	s.index[entry.Sequence] = len(s.entries)
	s.entries = append(s.entries, entry.Clone())
	return nil
}

// Get retrieves an applied entry by sequence number.
func (s *InMemoryStore) Get(seq uint64) *writelog.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, exists := s.index[seq]
	if !exists {
		return nil
	}

	// Return a copy to avoid external modifications
	e := s.entries[pos].Clone()
	return &e
}

// Has reports whether seq was applied.
func (s *InMemoryStore) Has(seq uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.index[seq]
	return exists
}

// Entries returns applied entries in application order.
func (s *InMemoryStore) Entries() []writelog.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]writelog.Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Clone()
	}
	return out
}

// Len returns the number of applied entries.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
