package policy

import (
	"fmt"
	"sync"
)

// State is a submission's position in the policy state machine.
type State int

const (
	// Pending means no replica call has been started yet.
	Pending State = iota
	// Dispatched means every replica call has been started.
	Dispatched
	// Waiting means the caller is blocked on acknowledgments.
	Waiting
	// Settled means the policy's wait condition holds.
	Settled
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Dispatched:
		return "DISPATCHED"
	case Waiting:
		return "WAITING"
	case Settled:
		return "SETTLED"
	default:
		return "UNKNOWN"
	}
}

// Tracker drives one submission through the state machine and decides when
// it settles. Settling happens exactly once no matter how many
// acknowledgments arrive; a submitter is released only after its tracker
// reached Settled.
type Tracker struct {
	mu       sync.Mutex
	policy   Policy
	replicas int
	required int
	observed int
	state    State
}

// NewTracker creates a tracker for a submission to the given number of replicas.
func NewTracker(p Policy, replicas int) *Tracker {
	return &Tracker{
		policy:   p,
		replicas: replicas,
		required: p.Required(replicas),
		state:    Pending,
	}
}

// Dispatch records that all replica calls have been started. A policy that
// needs no acknowledgments settles immediately; otherwise the tracker moves
// to Waiting. It returns the new state.
func (t *Tracker) Dispatch() (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != Pending {
		return t.state, fmt.Errorf("dispatch from state %s", t.state)
	}
	if t.policy == Unknown {
		return t.state, &Error{Mode: t.policy.String()}
	}

	t.state = Dispatched
	if t.observed >= t.required {
		t.state = Settled
	} else {
		t.state = Waiting
	}
	return t.state, nil
}

// Observe counts one acknowledgment and reports whether this call moved the
// tracker to Settled. Acknowledgments after settling are still counted.
func (t *Tracker) Observe() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == Pending {
		return false, fmt.Errorf("acknowledgment before dispatch")
	}
	if t.observed >= t.replicas {
		return false, fmt.Errorf("acknowledgment %d exceeds replica count %d", t.observed+1, t.replicas)
	}

	t.observed++
	if t.state == Waiting && t.observed >= t.required {
		t.state = Settled
		return true, nil
	}
	return false, nil
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Required returns the acknowledgments needed to settle.
func (t *Tracker) Required() int {
	return t.required
}

// Observed returns the acknowledgments counted so far.
func (t *Tracker) Observed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.observed
}
