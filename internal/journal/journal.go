// Package journal provides the append-only drift journal: a time-ordered log
// of timestamp drift, stability degradation and collapse events that can be
// replayed by index and forwarded, in order, to external sinks.
package journal

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventType identifies the category of a drift event.
type EventType string

const (
	// EventTimestampDrift records a simulated clock skew; Value is the skew in seconds.
	EventTimestampDrift EventType = "timestamp_drift"
	// EventStabilityDegradation records a stability decrease; Value is the amount removed.
	EventStabilityDegradation EventType = "stability_degradation"
	// EventCollapse records a collapse; Value is the stability score or mismatch
	// count that triggered it.
	EventCollapse EventType = "collapse"
)

// ErrIndexOutOfRange is returned by Get for an index outside the journal.
var ErrIndexOutOfRange = errors.New("journal index out of range")

// DriftEvent is a single journal record. Events are immutable once appended.
type DriftEvent struct {
	// ID uniquely identifies the event across journals.
	ID string `json:"id"`

	// Seq is the zero-based position of the event in its journal.
	Seq int `json:"seq"`

	// Timestamp is when the event was appended.
	Timestamp time.Time `json:"timestamp"`

	AgentID string    `json:"agent_id"`
	Type    EventType `json:"event_type"`
	Value   float64   `json:"value"`
}

// Sink receives every appended event, in append order. Implementations must
// not block indefinitely.
type Sink interface {
	Write(event DriftEvent) error
}

// Summary describes the journal at a point in time.
type Summary struct {
	EventCount int         `json:"drift_entries"`
	Last       *DriftEvent `json:"last_signal,omitempty"`
}

// Journal is an append-only, ordered event log. It is safe for concurrent use;
// if one Append returns before another begins, the first precedes the second.
type Journal struct {
	mu     sync.Mutex
	events []DriftEvent
	sinks  []Sink
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Journal.
type Option func(*Journal)

// WithSink adds a sink that receives every appended event.
func WithSink(s Sink) Option {
	return func(j *Journal) {
		if s != nil {
			j.sinks = append(j.sinks, s)
		}
	}
}

// WithClock sets the time source used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) {
		j.now = now
	}
}

// WithLogger sets the logger used to report sink failures.
func WithLogger(l zerolog.Logger) Option {
	return func(j *Journal) {
		j.logger = l
	}
}

// New creates an empty journal.
func New(opts ...Option) *Journal {
	j := &Journal{
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Append records an event and forwards it to every sink. The event is kept in
// the journal even when a sink fails; sink errors are joined and returned.
func (j *Journal) Append(agentID string, eventType EventType, value float64) (DriftEvent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	event := DriftEvent{
		ID:        uuid.New().String(),
		Seq:       len(j.events),
		Timestamp: j.now(),
		AgentID:   agentID,
		Type:      eventType,
		Value:     value,
	}
	j.events = append(j.events, event)

	var errs []error
	for _, s := range j.sinks {
		if err := s.Write(event); err != nil {
			j.logger.Error().Err(err).
				Str("agent_id", agentID).
				Str("event_type", string(eventType)).
				Int("seq", event.Seq).
				Msg("journal sink write failed")
			errs = append(errs, fmt.Errorf("sink write for event %d: %w", event.Seq, err))
		}
	}
	return event, errors.Join(errs...)
}

// Len returns the number of events in the journal.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.events)
}

// Get returns the event at index i for replay.
func (j *Journal) Get(i int) (DriftEvent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if i < 0 || i >= len(j.events) {
		return DriftEvent{}, fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, len(j.events))
	}
	return j.events[i], nil
}

// Events returns a copy of all events in append order.
func (j *Journal) Events() []DriftEvent {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]DriftEvent, len(j.events))
	copy(out, j.events)
	return out
}

// Summary returns the event count and the most recent event, if any.
func (j *Journal) Summary() Summary {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := Summary{EventCount: len(j.events)}
	if n := len(j.events); n > 0 {
		last := j.events[n-1]
		s.Last = &last
	}
	return s
}
