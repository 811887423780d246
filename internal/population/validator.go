// Package population validates a registered set of agents against each other:
// whole-sequence integrity, per-position majority-vote stability, clock drift
// and stability-based collapse detection. Every drift, degradation and
// collapse is appended to the validator's journal.
package population

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/andywolf/spiralsync/internal/agent"
	"github.com/andywolf/spiralsync/internal/journal"
	"github.com/andywolf/spiralsync/internal/sequence"
	"github.com/andywolf/spiralsync/internal/syncnode"
)

const (
	// DefaultDegradeAmount is the stability removed by a degradation when the
	// caller has no specific amount.
	DefaultDegradeAmount = 0.2
	// DefaultStabilityThreshold is the stability below which an agent is
	// reported as collapsed.
	DefaultStabilityThreshold = 0.4
)

var (
	// ErrUnknownAgent is returned for an agent id that is not registered.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrDuplicateAgent is returned when registering an id twice.
	ErrDuplicateAgent = errors.New("agent already registered")
	// ErrNegativeAmount is returned when a degradation amount is negative or NaN.
	ErrNegativeAmount = errors.New("degradation amount must be non-negative")
)

// Member describes an agent to register. A nil Current means the agent starts
// with its reference as its current sequence. A non-nil State resumes a
// previously captured agent and takes precedence over Current.
type Member[T comparable] struct {
	ID        string
	Reference sequence.Sequence[T]
	Current   sequence.Sequence[T]
	State     *agent.State[T]
}

type options struct {
	now                   func() time.Time
	logger                zerolog.Logger
	reportOncePerCollapse bool
	journalOpts           []journal.Option
	nodeOpts              []syncnode.Option
}

// Option configures a Validator.
type Option func(*options)

// WithClock sets the time source for timestamps, drift and journal events.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLogger sets the logger for the validator, its journal and its nodes.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithReportOncePerCollapse makes CheckCollapse report and journal each
// collapsed agent only the first time it is seen below the threshold. By
// default every call re-reports every agent still below the threshold.
func WithReportOncePerCollapse(enabled bool) Option {
	return func(o *options) {
		o.reportOncePerCollapse = enabled
	}
}

// WithJournalSink forwards every journal event to s.
func WithJournalSink(s journal.Sink) Option {
	return func(o *options) {
		o.journalOpts = append(o.journalOpts, journal.WithSink(s))
	}
}

// WithNodeOptions configures the sync nodes handed out by Node.
func WithNodeOptions(opts ...syncnode.Option) Option {
	return func(o *options) {
		o.nodeOpts = append(o.nodeOpts, opts...)
	}
}

type entry[T comparable] struct {
	agent *agent.Agent[T]
	node  *syncnode.Node[T]
}

// Validator owns a population of agents and the journal they share.
// It is safe for concurrent use.
type Validator[T comparable] struct {
	mu      sync.RWMutex
	agents  map[string]*entry[T]
	order   []string
	journal *journal.Journal
	opts    options

	reportMu sync.Mutex
	reported map[string]bool
}

// New creates a validator and registers members in order. Registration order
// is the tie-break order for majority voting and the reference order for
// integrity checks.
func New[T comparable](members []Member[T], opts ...Option) (*Validator[T], error) {
	o := options{
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	jopts := append([]journal.Option{
		journal.WithClock(o.now),
		journal.WithLogger(o.logger),
	}, o.journalOpts...)

	v := &Validator[T]{
		agents:   make(map[string]*entry[T], len(members)),
		journal:  journal.New(jopts...),
		opts:     o,
		reported: make(map[string]bool),
	}
	for _, m := range members {
		if err := v.Register(m); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Register adds an agent to the population.
func (v *Validator[T]) Register(m Member[T]) error {
	if m.ID == "" {
		return fmt.Errorf("agent id is required")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.agents[m.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, m.ID)
	}
	v.agents[m.ID] = v.newEntry(m)
	v.order = append(v.order, m.ID)
	v.opts.logger.Debug().Str("agent_id", m.ID).Int("length", len(m.Reference)).Msg("agent registered")
	return nil
}

func (v *Validator[T]) newEntry(m Member[T]) *entry[T] {
	var aopts []agent.Option[T]
	switch {
	case m.State != nil:
		aopts = append(aopts, agent.WithState(*m.State))
	case m.Current != nil:
		aopts = append(aopts, agent.WithCurrent(m.Current))
	}
	a := agent.New(m.ID, m.Reference, v.opts.now(), aopts...)

	nopts := append([]syncnode.Option{
		syncnode.WithClock(v.opts.now),
		syncnode.WithLogger(v.opts.logger),
	}, v.opts.nodeOpts...)
	return &entry[T]{agent: a, node: syncnode.New(a, v.journal, nopts...)}
}

// Reset returns a registered agent to its initial state from its reference
// sequence, discarding status, stability, counters and echo history. It is the
// only way out of the Collapsed state. The agent and node are reset in place,
// so handles obtained from Agent and Node stay bound to the registered agent.
func (v *Validator[T]) Reset(agentID string) error {
	e, err := v.lookup(agentID)
	if err != nil {
		return err
	}

	now := v.opts.now()
	e.agent.Do(func(s *agent.State[T]) {
		*s = agent.Initial(s.Reference, now)
		// Echo records are appended under the agent lock.
		e.node.ClearHistory()
	})

	v.reportMu.Lock()
	delete(v.reported, agentID)
	v.reportMu.Unlock()

	v.opts.logger.Info().Str("agent_id", agentID).Msg("agent reset")
	return nil
}

func (v *Validator[T]) lookup(agentID string) (*entry[T], error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	e, ok := v.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	return e, nil
}

// Agent returns the registered agent.
func (v *Validator[T]) Agent(agentID string) (*agent.Agent[T], error) {
	e, err := v.lookup(agentID)
	if err != nil {
		return nil, err
	}
	return e.agent, nil
}

// Node returns the sync node driving the agent. Its collapses are written to
// the validator's journal.
func (v *Validator[T]) Node(agentID string) (*syncnode.Node[T], error) {
	e, err := v.lookup(agentID)
	if err != nil {
		return nil, err
	}
	return e.node, nil
}

// Agents returns the registered ids in registration order.
func (v *Validator[T]) Agents() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, len(v.order))
	copy(out, v.order)
	return out
}

// Journal returns the validator's drift journal.
func (v *Validator[T]) Journal() *journal.Journal {
	return v.journal
}

// UpdateTimestamp records now as the agent's last sync time.
func (v *Validator[T]) UpdateTimestamp(agentID string) error {
	e, err := v.lookup(agentID)
	if err != nil {
		return err
	}
	e.agent.Do(func(s *agent.State[T]) {
		s.LastSync = v.opts.now()
	})
	return nil
}

// SimulateDrift moves the agent's last sync time back by skew and journals a
// timestamp drift event. A negative skew moves it forward.
func (v *Validator[T]) SimulateDrift(agentID string, skew time.Duration) error {
	e, err := v.lookup(agentID)
	if err != nil {
		return err
	}

	var appendErr error
	e.agent.Do(func(s *agent.State[T]) {
		s.LastSync = s.LastSync.Add(-skew)
		_, appendErr = v.journal.Append(agentID, journal.EventTimestampDrift, skew.Seconds())
	})
	v.opts.logger.Warn().Str("agent_id", agentID).Dur("skew", skew).Msg("timestamp drift simulated")
	return appendErr
}

// DegradeStability lowers the agent's stability by amount, never below zero,
// and journals the degradation. It returns the new score.
func (v *Validator[T]) DegradeStability(agentID string, amount float64) (float64, error) {
	if amount < 0 || math.IsNaN(amount) {
		return 0, fmt.Errorf("%w: %v", ErrNegativeAmount, amount)
	}
	e, err := v.lookup(agentID)
	if err != nil {
		return 0, err
	}

	var (
		score     float64
		appendErr error
	)
	e.agent.Do(func(s *agent.State[T]) {
		s.Stability = max(0.0, s.Stability-amount)
		score = s.Stability
		_, appendErr = v.journal.Append(agentID, journal.EventStabilityDegradation, amount)
	})
	v.opts.logger.Warn().
		Str("agent_id", agentID).
		Float64("amount", amount).
		Float64("stability", score).
		Msg("stability degraded")
	return score, appendErr
}

// GetDrift returns the time elapsed since the agent's last sync. It is
// negative when SimulateDrift pushed the sync time into the future.
func (v *Validator[T]) GetDrift(agentID string) (time.Duration, error) {
	e, err := v.lookup(agentID)
	if err != nil {
		return 0, err
	}
	return v.opts.now().Sub(e.agent.Snapshot().LastSync), nil
}

// Snapshots copies every agent under its own lock while holding the
// population read lock, so aggregates see one consistent membership.
func (v *Validator[T]) Snapshots() []agent.Snapshot[T] {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]agent.Snapshot[T], 0, len(v.order))
	for _, id := range v.order {
		out = append(out, v.agents[id].agent.Snapshot())
	}
	return out
}

// CheckCollapse returns, in registration order, every agent whose stability
// is below threshold, journaling a collapse event for each. Unless the
// validator reports once per collapse, an agent is re-reported and
// re-journaled on every call while it stays below the threshold.
func (v *Validator[T]) CheckCollapse(threshold float64) ([]string, error) {
	var (
		collapsed []string
		errs      []error
	)

	v.reportMu.Lock()
	defer v.reportMu.Unlock()

	for _, snap := range v.Snapshots() {
		if snap.Stability >= threshold {
			continue
		}
		if v.opts.reportOncePerCollapse && v.reported[snap.ID] {
			continue
		}
		v.reported[snap.ID] = true
		collapsed = append(collapsed, snap.ID)

		v.opts.logger.Error().
			Str("agent_id", snap.ID).
			Float64("stability", snap.Stability).
			Float64("threshold", threshold).
			Msg("stability collapse")
		if _, err := v.journal.Append(snap.ID, journal.EventCollapse, snap.Stability); err != nil {
			errs = append(errs, err)
		}
	}
	return collapsed, errors.Join(errs...)
}

// ValidateIntegrity reports, for every agent, whether its current sequence is
// identical to the first-registered agent's current sequence. An empty
// population yields an empty map.
func (v *Validator[T]) ValidateIntegrity() map[string]bool {
	return integrityOf(v.Snapshots())
}

func integrityOf[T comparable](snaps []agent.Snapshot[T]) map[string]bool {
	results := make(map[string]bool, len(snaps))
	if len(snaps) == 0 {
		return results
	}

	reference := snaps[0].Current
	for _, snap := range snaps {
		results[snap.ID] = sequence.Equal(snap.Current, reference)
	}
	return results
}

// CompareSymbolicEchoes scores each agent by the fraction of positions, up to
// the shortest current sequence, where its token matches the population
// majority. Ties go to the token held by the earliest-registered agent. An
// empty population or a zero shortest length yields an empty map.
func (v *Validator[T]) CompareSymbolicEchoes() map[string]float64 {
	return echoScoresOf(v.Snapshots())
}

func echoScoresOf[T comparable](snaps []agent.Snapshot[T]) map[string]float64 {
	scores := make(map[string]float64, len(snaps))
	if len(snaps) == 0 {
		return scores
	}

	length := len(snaps[0].Current)
	for _, snap := range snaps[1:] {
		length = min(length, len(snap.Current))
	}
	if length == 0 {
		return scores
	}

	matches := make([]int, len(snaps))
	for i := 0; i < length; i++ {
		majority := majorityAt(snaps, i)
		for k, snap := range snaps {
			if snap.Current[i] == majority {
				matches[k]++
			}
		}
	}

	for k, snap := range snaps {
		scores[snap.ID] = float64(matches[k]) / float64(length)
	}
	return scores
}

// majorityAt returns the most frequent token at position i. Among tied
// tokens the one first seen in registration order wins.
func majorityAt[T comparable](snaps []agent.Snapshot[T], i int) T {
	counts := make(map[T]int)
	var seen []T
	for _, snap := range snaps {
		tok := snap.Current[i]
		if counts[tok] == 0 {
			seen = append(seen, tok)
		}
		counts[tok]++
	}

	best := seen[0]
	for _, tok := range seen[1:] {
		if counts[tok] > counts[best] {
			best = tok
		}
	}
	return best
}
