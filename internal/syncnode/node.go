// Package syncnode implements the per-agent echo state machine.
//
// A Node validates incoming echo sequences against its agent's reference,
// moving the agent between AwaitingEcho, Synchronized and Drifting, and into
// the terminal Collapsed state once an echo drifts at or beyond the collapse
// threshold. Collapses are written to the drift journal.
package syncnode

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/andywolf/spiralsync/internal/agent"
	"github.com/andywolf/spiralsync/internal/journal"
	"github.com/andywolf/spiralsync/internal/sequence"
)

const (
	// DefaultCollapseThreshold is the mismatch count at which an echo collapses the agent.
	DefaultCollapseThreshold = 3
	// DefaultOverloadThreshold is the number of foreign tokens that counts as symbolic overload.
	DefaultOverloadThreshold = 3
)

// ErrNoHistory is returned when replaying from an empty or too-short echo history.
var ErrNoHistory = errors.New("no echo history to replay")

// EchoRecord is one entry of a node's echo history.
type EchoRecord[T comparable] struct {
	Timestamp    time.Time
	Incoming     sequence.Sequence[T]
	Mismatches   int
	StatusBefore agent.Status
	StatusAfter  agent.Status
}

type options struct {
	collapseThreshold int
	overloadThreshold int
	lengthDrift       bool
	now               func() time.Time
	logger            zerolog.Logger
}

// Option configures a Node.
type Option func(*options)

// WithCollapseThreshold sets the mismatch count that triggers collapse.
// Values below 1 are ignored.
func WithCollapseThreshold(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.collapseThreshold = n
		}
	}
}

// WithOverloadThreshold sets the foreign-token count reported as overload.
// Values below 1 are ignored.
func WithOverloadThreshold(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.overloadThreshold = n
		}
	}
}

// WithLengthDrift makes length differences between reference and echo count
// as mismatches.
func WithLengthDrift(enabled bool) Option {
	return func(o *options) {
		o.lengthDrift = enabled
	}
}

// WithClock sets the time source for sync and drift timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLogger sets the node's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Node is the state machine for a single agent. It is safe for concurrent use;
// operations on the same agent serialize on the agent's lock.
type Node[T comparable] struct {
	agent   *agent.Agent[T]
	journal *journal.Journal
	opts    options

	histMu  sync.Mutex
	history []EchoRecord[T]
}

// New binds a node to an agent and the journal it writes collapses to.
// A nil journal gets a private one.
func New[T comparable](a *agent.Agent[T], j *journal.Journal, opts ...Option) *Node[T] {
	o := options{
		collapseThreshold: DefaultCollapseThreshold,
		overloadThreshold: DefaultOverloadThreshold,
		now:               time.Now,
		logger:            zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if j == nil {
		j = journal.New(journal.WithClock(o.now), journal.WithLogger(o.logger))
	}
	return &Node[T]{
		agent:   a,
		journal: j,
		opts:    o,
	}
}

// Agent returns the agent driven by this node.
func (n *Node[T]) Agent() *agent.Agent[T] {
	return n.agent
}

// Journal returns the journal this node writes to.
func (n *Node[T]) Journal() *journal.Journal {
	return n.journal
}

// ValidateEcho compares incoming against the agent's reference sequence.
//
// Every call increments the agent's recursion count. A zero-mismatch echo
// synchronizes the agent; any mismatch sets it drifting and records the drift
// time, and a mismatch count at or above the collapse threshold collapses it.
// A collapsed agent never changes status here: the echo is counted and
// compared but always reported invalid.
func (n *Node[T]) ValidateEcho(incoming sequence.Sequence[T]) (bool, int) {
	var (
		valid      bool
		mismatches int
	)

	n.agent.Do(func(s *agent.State[T]) {
		now := n.opts.now()
		mismatches = n.compare(s.Reference, incoming)
		s.RecursionCount++

		record := EchoRecord[T]{
			Timestamp:    now,
			Incoming:     sequence.Clone(incoming),
			Mismatches:   mismatches,
			StatusBefore: s.Status,
		}
		defer func() {
			record.StatusAfter = s.Status
			n.appendHistory(record)
		}()

		target := agent.StatusSynchronized
		if mismatches > 0 {
			target = agent.StatusDrifting
		}
		if !agent.CanTransition(s.Status, target) {
			n.opts.logger.Debug().
				Str("agent_id", n.agent.ID()).
				Str("status", string(s.Status)).
				Int("mismatches", mismatches).
				Msg("echo ignored, status is terminal")
			return
		}

		s.Current = sequence.Clone(incoming)
		s.Status = target

		if mismatches == 0 {
			s.LastSync = now
			valid = true
			n.opts.logger.Debug().Str("agent_id", n.agent.ID()).Msg("echo synchronized")
			return
		}

		s.LastDrift = now
		n.opts.logger.Warn().
			Str("agent_id", n.agent.ID()).
			Int("mismatches", mismatches).
			Msg("symbolic drift detected")

		if mismatches >= n.opts.collapseThreshold {
			n.collapseLocked(s, float64(mismatches))
		}
	})

	return valid, mismatches
}

// Collapse moves the agent to the terminal Collapsed state and purges its
// current sequence. It reports whether this call performed the transition;
// collapsing an already collapsed agent changes nothing.
func (n *Node[T]) Collapse() bool {
	var collapsed bool
	n.agent.Do(func(s *agent.State[T]) {
		collapsed = n.collapseLocked(s, s.Stability)
	})
	return collapsed
}

// collapseLocked must be called from within agent.Do.
func (n *Node[T]) collapseLocked(s *agent.State[T], value float64) bool {
	if !s.Collapse() {
		return false
	}
	n.opts.logger.Error().
		Str("agent_id", n.agent.ID()).
		Float64("value", value).
		Msg("identity collapse, sequence purged")
	// Sink failures are logged by the journal; the event itself is retained.
	_, _ = n.journal.Append(n.agent.ID(), journal.EventCollapse, value)
	return true
}

func (n *Node[T]) compare(reference, incoming sequence.Sequence[T]) int {
	if n.opts.lengthDrift {
		return sequence.CompareStrict(reference, incoming)
	}
	return sequence.Compare(reference, incoming)
}

func (n *Node[T]) appendHistory(r EchoRecord[T]) {
	n.histMu.Lock()
	defer n.histMu.Unlock()
	n.history = append(n.history, r)
}

// ClearHistory discards the recorded echoes and returns how many there were.
func (n *Node[T]) ClearHistory() int {
	n.histMu.Lock()
	defer n.histMu.Unlock()
	cleared := len(n.history)
	n.history = nil
	return cleared
}

// History returns a copy of every echo validated by this node, oldest first.
func (n *Node[T]) History() []EchoRecord[T] {
	n.histMu.Lock()
	defer n.histMu.Unlock()
	out := make([]EchoRecord[T], len(n.history))
	copy(out, n.history)
	return out
}

// Replay re-validates the echo recorded at index i of the history. The replay
// is itself a validation and is appended to the history.
func (n *Node[T]) Replay(i int) (bool, int, error) {
	n.histMu.Lock()
	if i < 0 || i >= len(n.history) {
		size := len(n.history)
		n.histMu.Unlock()
		return false, 0, fmt.Errorf("%w: index %d (history size %d)", ErrNoHistory, i, size)
	}
	incoming := n.history[i].Incoming
	n.histMu.Unlock()

	valid, mismatches := n.ValidateEcho(incoming)
	return valid, mismatches, nil
}

// ReplayLast re-validates the most recent echo.
func (n *Node[T]) ReplayLast() (bool, int, error) {
	n.histMu.Lock()
	last := len(n.history) - 1
	n.histMu.Unlock()
	if last < 0 {
		return false, 0, ErrNoHistory
	}
	return n.Replay(last)
}

// DetectOverload reports whether incoming carries at least the overload
// threshold of tokens absent from the reference, and how many it carries.
// It does not change agent state.
func (n *Node[T]) DetectOverload(incoming sequence.Sequence[T]) (bool, int) {
	reference := n.agent.Snapshot().Reference
	known := make(map[T]struct{}, len(reference))
	for _, t := range reference {
		known[t] = struct{}{}
	}

	foreign := 0
	for _, t := range incoming {
		if _, ok := known[t]; !ok {
			foreign++
		}
	}
	overloaded := foreign >= n.opts.overloadThreshold
	if overloaded {
		n.opts.logger.Warn().
			Str("agent_id", n.agent.ID()).
			Int("foreign_tokens", foreign).
			Msg("symbolic overload detected")
	}
	return overloaded, foreign
}

// RestoreIntegrity repairs corrupted against the agent's reference and
// returns the restored sequence with the number of repaired positions.
func (n *Node[T]) RestoreIntegrity(corrupted sequence.Sequence[T]) (sequence.Sequence[T], int) {
	return sequence.Restore(n.agent.Snapshot().Reference, corrupted)
}
