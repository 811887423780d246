// Package state persists population state between spiralctl runs so that
// echoes, degradations and collapses accumulate across invocations.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/andywolf/spiralsync/internal/agent"
	"github.com/andywolf/spiralsync/internal/population"
	"github.com/andywolf/spiralsync/internal/sequence"
)

// Filename is the state file written under the state directory.
const Filename = "state.json"

// DefaultMaxRuns bounds the run history kept in the state file.
const DefaultMaxRuns = 50

// AgentState is the persisted form of one agent.
type AgentState struct {
	Reference      []string     `json:"reference"`
	Current        []string     `json:"current"`
	Stability      float64      `json:"stability"`
	Status         agent.Status `json:"status"`
	LastSync       time.Time    `json:"last_sync"`
	LastDrift      time.Time    `json:"last_drift"`
	RecursionCount int          `json:"recursion_count"`
}

// RunRecord summarizes one command run against the population.
type RunRecord struct {
	RunID        string    `json:"run_id"`
	Command      string    `json:"command"`
	At           time.Time `json:"at"`
	DriftEntries int       `json:"drift_entries"`
	Collapsed    []string  `json:"collapsed,omitempty"`
}

// Data is the on-disk representation of the state store.
type Data struct {
	Version string                `json:"version"`
	Agents  map[string]AgentState `json:"agents"`
	Runs    []RunRecord           `json:"runs"`
}

// Store manages persisted agent state. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	filePath string
	maxRuns  int

	agents map[string]AgentState
	runs   []RunRecord
}

// NewStore creates a state store in dir.
func NewStore(dir string) *Store {
	return &Store{
		filePath: filepath.Join(dir, Filename),
		maxRuns:  DefaultMaxRuns,
		agents:   make(map[string]AgentState),
	}
}

// Path returns the state file path.
func (s *Store) Path() string {
	return s.filePath
}

// Load reads the state file from disk. If the file does not exist, the store
// starts empty without error.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read state: %w", err)
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to parse state %s: %w", s.filePath, err)
	}

	if data.Agents != nil {
		s.agents = data.Agents
	}
	s.runs = data.Runs
	return nil
}

// Save writes the current state to disk, creating the directory if needed.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	raw, err := json.MarshalIndent(Data{
		Version: "1",
		Agents:  s.agents,
		Runs:    s.runs,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	return os.WriteFile(s.filePath, raw, 0644)
}

// Resume attaches saved state to members. A saved agent whose reference no
// longer matches the roster is skipped and reported as stale.
func (s *Store) Resume(members []population.Member[string]) (resumed []population.Member[string], stale []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resumed = make([]population.Member[string], len(members))
	for i, m := range members {
		resumed[i] = m
		saved, ok := s.agents[m.ID]
		if !ok {
			continue
		}
		if !sequence.Equal(sequence.Sequence[string](saved.Reference), m.Reference) {
			stale = append(stale, m.ID)
			continue
		}
		resumed[i].State = &agent.State[string]{
			Current:        sequence.Clone(sequence.Sequence[string](saved.Current)),
			Stability:      saved.Stability,
			Status:         saved.Status,
			LastSync:       saved.LastSync,
			LastDrift:      saved.LastDrift,
			RecursionCount: saved.RecursionCount,
		}
	}
	return resumed, stale
}

// Capture replaces the saved state of every snapshotted agent.
func (s *Store) Capture(snaps []agent.Snapshot[string]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, snap := range snaps {
		s.agents[snap.ID] = AgentState{
			Reference:      sequence.Clone(snap.Reference),
			Current:        sequence.Clone(snap.Current),
			Stability:      snap.Stability,
			Status:         snap.Status,
			LastSync:       snap.LastSync,
			LastDrift:      snap.LastDrift,
			RecursionCount: snap.RecursionCount,
		}
	}
}

// Get returns the saved state of an agent.
func (s *Store) Get(agentID string) (AgentState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.agents[agentID]
	return st, ok
}

// Forget drops the saved state of the given agents. It returns how many
// were present.
func (s *Store) Forget(agentIDs ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, id := range agentIDs {
		if _, ok := s.agents[id]; ok {
			delete(s.agents, id)
			n++
		}
	}
	return n
}

// Agents returns the ids with saved state, sorted.
func (s *Store) Agents() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RecordRun appends a run to the history and prunes the oldest runs beyond
// the limit. It returns the number of runs pruned.
func (s *Store) RecordRun(r RunRecord) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = append(s.runs, r)
	if len(s.runs) <= s.maxRuns {
		return 0
	}
	excess := len(s.runs) - s.maxRuns
	s.runs = s.runs[excess:]
	return excess
}

// Runs returns a copy of the run history, oldest first.
func (s *Store) Runs() []RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RunRecord, len(s.runs))
	copy(out, s.runs)
	return out
}
