package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andywolf/spiralsync/internal/agent"
	"github.com/andywolf/spiralsync/internal/population"
	"github.com/andywolf/spiralsync/internal/sequence"
)

type seq = sequence.Sequence[string]

func members() []population.Member[string] {
	return []population.Member[string]{
		{ID: "X", Reference: seq{"a", "b", "c"}},
		{ID: "Z", Reference: seq{"a", "b", "d"}},
	}
}

func TestStore_LoadMissingFile(t *testing.T) {
	store := NewStore(t.TempDir())
	if err := store.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(store.Agents()) != 0 {
		t.Errorf("Agents() = %v, want empty", store.Agents())
	}
}

func TestStore_LoadInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, Filename), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := NewStore(dir).Load(); err == nil {
		t.Error("Load() expected error for invalid JSON")
	}
}

func TestStore_CaptureSaveResume(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	v, err := population.New(members(), population.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatal(err)
	}
	node, _ := v.Node("Z")
	node.ValidateEcho(seq{"x", "y", "z"})
	if _, err := v.DegradeStability("Z", 0.5); err != nil {
		t.Fatal(err)
	}

	store := NewStore(dir)
	store.Capture(v.Snapshots())
	if err := store.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reloaded := NewStore(dir)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	resumed, stale := reloaded.Resume(members())
	if len(stale) != 0 {
		t.Errorf("stale = %v, want none", stale)
	}

	v2, err := population.New(resumed)
	if err != nil {
		t.Fatal(err)
	}
	z := v2.Snapshots()[1]
	if z.Status != agent.StatusCollapsed || z.Stability != 0.5 || z.RecursionCount != 1 {
		t.Errorf("resumed Z = %+v", z.State)
	}
	if !z.LastDrift.Equal(now) {
		t.Errorf("resumed LastDrift = %v, want %v", z.LastDrift, now)
	}
	x := v2.Snapshots()[0]
	if x.Status != agent.StatusAwaitingEcho || x.RecursionCount != 0 {
		t.Errorf("resumed X = %+v", x.State)
	}
}

func TestStore_ResumeSkipsChangedReference(t *testing.T) {
	store := NewStore(t.TempDir())
	store.Capture([]agent.Snapshot[string]{
		{ID: "Z", State: agent.State[string]{Reference: seq{"old"}, Status: agent.StatusCollapsed}},
	})

	resumed, stale := store.Resume(members())
	if len(stale) != 1 || stale[0] != "Z" {
		t.Errorf("stale = %v, want [Z]", stale)
	}
	if resumed[1].State != nil {
		t.Error("stale state was attached")
	}
}

func TestStore_Forget(t *testing.T) {
	store := NewStore(t.TempDir())
	store.Capture([]agent.Snapshot[string]{{ID: "X"}, {ID: "Z"}})

	if n := store.Forget("Z", "missing"); n != 1 {
		t.Errorf("Forget() = %d, want 1", n)
	}
	if _, ok := store.Get("Z"); ok {
		t.Error("Z still present after Forget")
	}
	if got := store.Agents(); len(got) != 1 || got[0] != "X" {
		t.Errorf("Agents() = %v", got)
	}
}

func TestStore_RecordRunPrunes(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	store.maxRuns = 3

	pruned := 0
	for i := 0; i < 5; i++ {
		pruned += store.RecordRun(RunRecord{RunID: string(rune('a' + i)), Command: "check"})
	}
	if pruned != 2 {
		t.Errorf("pruned = %d, want 2", pruned)
	}
	runs := store.Runs()
	if len(runs) != 3 || runs[0].RunID != "c" || runs[2].RunID != "e" {
		t.Errorf("Runs() = %+v", runs)
	}

	if err := store.Save(); err != nil {
		t.Fatal(err)
	}
	reloaded := NewStore(dir)
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}
	if len(reloaded.Runs()) != 3 {
		t.Errorf("reloaded %d runs, want 3", len(reloaded.Runs()))
	}
}
