// Package agent defines a participant in the spiral synchronization protocol:
// an identifier, the reference sequence it is expected to echo, its current
// sequence, a degradable stability score and a synchronization status.
//
// All mutation goes through Agent.Do, which holds the agent's lock for the
// duration of the callback so that one agent's transitions are linearizable.
package agent

import (
	"sync"
	"time"

	"github.com/andywolf/spiralsync/internal/sequence"
)

// Status is the synchronization state of an agent.
type Status string

const (
	// StatusAwaitingEcho is the initial state; no echo has been validated yet.
	StatusAwaitingEcho Status = "awaiting_echo"
	// StatusSynchronized means the last echo matched the reference exactly.
	StatusSynchronized Status = "synchronized"
	// StatusDrifting means the last echo had at least one positional mismatch.
	StatusDrifting Status = "drifting"
	// StatusCollapsed is terminal: the current sequence has been purged.
	StatusCollapsed Status = "collapsed"
)

// transitions lists the allowed status changes. Re-entering the same status is
// always allowed except out of Collapsed.
var transitions = map[Status][]Status{
	StatusAwaitingEcho: {StatusSynchronized, StatusDrifting, StatusCollapsed},
	StatusSynchronized: {StatusDrifting},
	StatusDrifting:     {StatusSynchronized, StatusCollapsed},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to Status) bool {
	if from == StatusCollapsed {
		return false
	}
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// State is the mutable portion of an agent.
type State[T comparable] struct {
	Reference      sequence.Sequence[T]
	Current        sequence.Sequence[T]
	Stability      float64
	Status         Status
	LastSync       time.Time
	LastDrift      time.Time
	RecursionCount int
}

// Collapse moves the state to StatusCollapsed and purges the current
// sequence. As the explicit collapse operation it applies from any
// non-terminal status. It returns false when the state was already collapsed.
func (s *State[T]) Collapse() bool {
	if s.Status == StatusCollapsed {
		return false
	}
	s.Status = StatusCollapsed
	s.Current = sequence.Sequence[T]{}
	return true
}

// Snapshot is an immutable copy of an agent taken under its lock.
type Snapshot[T comparable] struct {
	ID string
	State[T]
}

// Agent is a single protocol participant. The zero value is not usable; use New.
type Agent[T comparable] struct {
	id string

	mu    sync.Mutex
	state State[T]
}

// Option customizes a new Agent.
type Option[T comparable] func(*State[T])

// WithCurrent sets a current sequence that differs from the reference.
func WithCurrent[T comparable](current sequence.Sequence[T]) Option[T] {
	return func(s *State[T]) {
		s.Current = sequence.Clone(current)
	}
}

// WithStability overrides the initial stability score of 1.0. Values are
// clamped to [0,1].
func WithStability[T comparable](score float64) Option[T] {
	return func(s *State[T]) {
		s.Stability = ClampScore(score)
	}
}

// WithState restores a previously captured state. The reference passed to
// New is kept; every other field is taken from st.
func WithState[T comparable](st State[T]) Option[T] {
	return func(s *State[T]) {
		s.Current = sequence.Clone(st.Current)
		s.Stability = ClampScore(st.Stability)
		s.Status = st.Status
		s.LastSync = st.LastSync
		s.LastDrift = st.LastDrift
		s.RecursionCount = st.RecursionCount
	}
}

// Initial returns the state of a freshly registered agent: StatusAwaitingEcho,
// stability 1.0, zero counters and a current sequence copied from reference.
// now is recorded as the last sync time.
func Initial[T comparable](reference sequence.Sequence[T], now time.Time) State[T] {
	return State[T]{
		Reference: sequence.Clone(reference),
		Current:   sequence.Clone(reference),
		Stability: 1.0,
		Status:    StatusAwaitingEcho,
		LastSync:  now,
	}
}

// New creates an agent in its Initial state.
func New[T comparable](id string, reference sequence.Sequence[T], now time.Time, opts ...Option[T]) *Agent[T] {
	a := &Agent[T]{
		id:    id,
		state: Initial(reference, now),
	}
	for _, opt := range opts {
		opt(&a.state)
	}
	return a
}

// ID returns the agent's identifier.
func (a *Agent[T]) ID() string {
	return a.id
}

// Do runs fn with exclusive access to the agent's state.
func (a *Agent[T]) Do(fn func(s *State[T])) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(&a.state)
}

// Snapshot returns a deep copy of the agent's state.
func (a *Agent[T]) Snapshot() Snapshot[T] {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := a.state
	st.Reference = sequence.Clone(a.state.Reference)
	st.Current = sequence.Clone(a.state.Current)
	return Snapshot[T]{ID: a.id, State: st}
}

// Status returns the current status.
func (a *Agent[T]) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Status
}

// Stability returns the current stability score.
func (a *Agent[T]) Stability() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Stability
}

// ClampScore limits score to [0,1].
func ClampScore(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}
