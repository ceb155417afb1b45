package policy

import (
	"fmt"
	"strings"
)

// Policy is a consistency policy for one submission.
type Policy int

const (
	// Unknown is the zero value; it never settles anything.
	Unknown Policy = iota
	// Async returns right after dispatch and never observes acknowledgments.
	Async
	// Sync waits for every replica to acknowledge.
	Sync
	// SemiSync waits for the first acknowledgment, in completion order.
	SemiSync
)

// String returns the mode name accepted by Parse.
func (p Policy) String() string {
	switch p {
	case Async:
		return "async"
	case Sync:
		return "sync"
	case SemiSync:
		return "semi-sync"
	default:
		return "unknown"
	}
}

// Error is returned for a mode name that matches no policy.
type Error struct {
	Mode string
}

func (e *Error) Error() string {
	return fmt.Sprintf("unknown replication mode %q: use async, sync or semi-sync", e.Mode)
}

// Parse resolves a mode name case-insensitively.
func Parse(mode string) (Policy, error) {
	switch strings.ToLower(mode) {
	case "async":
		return Async, nil
	case "sync":
		return Sync, nil
	case "semi-sync":
		return SemiSync, nil
	default:
		return Unknown, &Error{Mode: mode}
	}
}

// Required returns how many acknowledgments out of replicas settle p.
func (p Policy) Required(replicas int) int {
	switch p {
	case Sync:
		return replicas
	case SemiSync:
		return min(1, replicas)
	default:
		return 0
	}
}

// Blocks reports whether the submitting caller waits at all under p.
func (p Policy) Blocks() bool {
	return p == Sync || p == SemiSync
}

// TracksRemainder reports whether calls still outstanding at settle time
// are handed back to the caller for a later drain.
func (p Policy) TracksRemainder() bool {
	return p == SemiSync
}
