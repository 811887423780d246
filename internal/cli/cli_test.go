package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/andywolf/spiralsync/internal/agent"
	"github.com/andywolf/spiralsync/internal/journal"
	"github.com/andywolf/spiralsync/internal/state"
)

// executeCommand runs spiralctl with args against a fresh viper and returns stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// workspace writes a sample roster and a config logging JSON at error level
// with the journal under dir.
func workspace(t *testing.T) (dir, rosterPath, configPath string) {
	t.Helper()
	dir = t.TempDir()
	rosterPath = filepath.Join(dir, "spiral.yaml")
	configPath = filepath.Join(dir, ".spiralsync.yaml")

	cfg := "log:\n  level: error\n  format: json\njournal:\n  dir: " + filepath.Join(dir, "journal") +
		"\nmetrics:\n  textfile: " + filepath.Join(dir, "spiral.prom") + "\n"
	if err := os.WriteFile(configPath, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := executeCommand(t, "init", rosterPath, "--force", "--config", configPath); err != nil {
		t.Fatalf("init error = %v", err)
	}
	return dir, rosterPath, configPath
}

func TestInit_RefusesOverwrite(t *testing.T) {
	_, rosterPath, configPath := workspace(t)

	_, err := executeCommand(t, "init", rosterPath, "--force=false", "--config", configPath)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("init over existing roster error = %v", err)
	}
}

func TestCheck_SampleRoster(t *testing.T) {
	dir, rosterPath, configPath := workspace(t)

	out, err := executeCommand(t, "check", "--roster", rosterPath, "--config", configPath, "--threshold", "-1", "-o", "json")
	if err != nil {
		t.Fatalf("check error = %v", err)
	}

	var res checkResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("invalid JSON output %q: %v", out, err)
	}
	if len(res.Agents) != 3 {
		t.Fatalf("got %d agents, want 3", len(res.Agents))
	}
	if len(res.Collapsed) != 0 || res.Summary.EventCount != 0 {
		t.Errorf("healthy roster reported collapsed=%v events=%d", res.Collapsed, res.Summary.EventCount)
	}

	drifted := res.Agents[2]
	if drifted.ID != "C-03" || drifted.Integrity || drifted.EchoScore != 0.875 {
		t.Errorf("C-03 report = %+v", drifted)
	}
	if !res.Agents[0].Integrity || res.Agents[0].EchoScore != 1 {
		t.Errorf("A-01 report = %+v", res.Agents[0])
	}

	if _, err := os.Stat(filepath.Join(dir, "spiral.prom")); err != nil {
		t.Errorf("metrics textfile not written: %v", err)
	}
}

func TestSimulate_CollapsesPerturbedAgent(t *testing.T) {
	dir, rosterPath, configPath := workspace(t)

	out, err := executeCommand(t, "simulate",
		"--roster", rosterPath, "--config", configPath,
		"--perturb", "C-03", "--level", "1", "--rounds", "4", "--seed", "7",
		"--skew", "30s", "--threshold", "-1", "-o", "json")
	if err != nil {
		t.Fatalf("simulate error = %v", err)
	}

	var res checkResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("invalid JSON output %q: %v", out, err)
	}
	if !reflect.DeepEqual(res.Collapsed, []string{"C-03"}) {
		t.Errorf("Collapsed = %v, want [C-03]", res.Collapsed)
	}
	if res.Agents[2].Status != agent.StatusCollapsed {
		t.Errorf("C-03 status = %s", res.Agents[2].Status)
	}
	if res.Agents[0].Status != agent.StatusSynchronized || res.Agents[0].Stability != 1 {
		t.Errorf("A-01 report = %+v", res.Agents[0])
	}
	// One echo collapse, four degradations, four drifts and the final check.
	if res.Summary.EventCount != 10 {
		t.Errorf("EventCount = %d, want 10", res.Summary.EventCount)
	}

	logPath := filepath.Join(dir, "journal", journal.DefaultFilename)
	events, err := journal.ReadEvents(logPath)
	if err != nil {
		t.Fatalf("ReadEvents() error = %v", err)
	}
	if len(events) != 10 {
		t.Fatalf("drift log has %d events, want 10", len(events))
	}

	out, err = executeCommand(t, "replay", "--journal", logPath, "--config", configPath,
		"--type", "collapse", "-o", "json")
	if err != nil {
		t.Fatalf("replay error = %v", err)
	}
	var collapses []journal.DriftEvent
	if err := json.Unmarshal([]byte(out), &collapses); err != nil {
		t.Fatalf("invalid replay JSON %q: %v", out, err)
	}
	if len(collapses) != 2 {
		t.Errorf("replayed %d collapse events, want 2", len(collapses))
	}
}

func TestEcho_Command(t *testing.T) {
	_, rosterPath, configPath := workspace(t)

	out, err := executeCommand(t, "echo", "C-03", "🜃∴↻❖🜄🜁↔🝑",
		"--roster", rosterPath, "--config", configPath, "--restore")
	if err != nil {
		t.Fatalf("echo error = %v", err)
	}
	for _, want := range []string{
		"Valid:      false",
		"Mismatches: 1",
		"Status:     drifting",
		"Unknown glyphs: ❖",
		"Restored:   🜃 ∴ ↻ 🜂 🜄 🜁 ↔ 🝑 (1 repaired)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("echo output missing %q:\n%s", want, out)
		}
	}

	if _, err := executeCommand(t, "echo", "nobody", "🜃", "--roster", rosterPath, "--config", configPath); err == nil {
		t.Error("echo for unknown agent expected error")
	}
}

func TestAnchor_Commands(t *testing.T) {
	_, _, configPath := workspace(t)

	out, err := executeCommand(t, "anchor", "check", "We", "touched", "something", "real.", "--config", configPath)
	if err != nil {
		t.Fatalf("anchor check error = %v", err)
	}
	if !strings.Contains(out, "Anchor holds.") {
		t.Errorf("anchor check output = %q", out)
	}

	if _, err := executeCommand(t, "anchor", "check", "something", "else", "--config", configPath); err == nil {
		t.Error("anchor check with wrong phrase expected error")
	}

	out, err = executeCommand(t, "anchor", "signature", "--config", configPath)
	if err != nil {
		t.Fatalf("anchor signature error = %v", err)
	}
	if len(strings.TrimSpace(out)) != 64 {
		t.Errorf("signature = %q, want 64 hex chars", out)
	}
}

func TestParseGlyphs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"separate args", []string{"🜃", "∴", "↻"}, []string{"🜃", "∴", "↻"}},
		{"single rune string", []string{"🜃∴↻"}, []string{"🜃", "∴", "↻"}},
		{"space separated", []string{"🜃 ∴ ↻"}, []string{"🜃", "∴", "↻"}},
		{"comma separated", []string{"a,b", "c"}, []string{"a", "b", "c"}},
		{"single glyph", []string{"🝑"}, []string{"🝑"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseGlyphs(tt.args)
			if !reflect.DeepEqual([]string(got), tt.want) {
				t.Errorf("parseGlyphs(%q) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestPerturbSet(t *testing.T) {
	agents := []string{"A", "B", "C"}

	if got := perturbSet(agents, nil); !reflect.DeepEqual(got, map[string]bool{"B": true, "C": true}) {
		t.Errorf("default perturbSet = %v", got)
	}
	if got := perturbSet(agents, []string{"A"}); !reflect.DeepEqual(got, map[string]bool{"A": true}) {
		t.Errorf("explicit perturbSet = %v", got)
	}
}

func TestSelectIndexes(t *testing.T) {
	events := []journal.DriftEvent{{Seq: 0}, {Seq: 1}, {Seq: 2}}

	got, err := selectIndexes(events, []int{2, 0})
	if err != nil {
		t.Fatalf("selectIndexes() error = %v", err)
	}
	if len(got) != 2 || got[0].Seq != 2 || got[1].Seq != 0 {
		t.Errorf("selectIndexes() = %+v", got)
	}

	if _, err := selectIndexes(events, []int{3}); err == nil {
		t.Error("selectIndexes() out of range expected error")
	}
}

func TestParseEventTypes(t *testing.T) {
	types, err := parseEventTypes([]string{"collapse", "timestamp_drift"})
	if err != nil || len(types) != 2 {
		t.Errorf("parseEventTypes() = %v, %v", types, err)
	}
	if _, err := parseEventTypes([]string{"meltdown"}); err == nil {
		t.Error("parseEventTypes() unknown type expected error")
	}
}

func TestState_PersistsAcrossRuns(t *testing.T) {
	dir, rosterPath, configPath := workspace(t)
	stateDir := filepath.Join(dir, "state")
	f, err := os.OpenFile(configPath, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("state:\n  dir: " + stateDir + "\n"); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	if _, err := executeCommand(t, "simulate",
		"--roster", rosterPath, "--config", configPath,
		"--perturb", "C-03", "--level", "1", "--rounds", "4", "--seed", "7",
		"--skew", "30s", "--threshold", "-1", "-o", "json"); err != nil {
		t.Fatalf("simulate error = %v", err)
	}

	out, err := executeCommand(t, "check", "--roster", rosterPath, "--config", configPath, "--threshold", "-1", "-o", "json")
	if err != nil {
		t.Fatalf("check error = %v", err)
	}
	var res checkResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("invalid JSON output %q: %v", out, err)
	}
	if res.Agents[2].Status != agent.StatusCollapsed {
		t.Errorf("resumed C-03 status = %s, want collapsed", res.Agents[2].Status)
	}

	out, err = executeCommand(t, "reset", "C-03", "--roster", rosterPath, "--config", configPath, "-o", "json")
	if err != nil {
		t.Fatalf("reset error = %v", err)
	}
	if !strings.Contains(out, `"C-03"`) {
		t.Errorf("reset output = %q", out)
	}

	out, err = executeCommand(t, "check", "--roster", rosterPath, "--config", configPath, "--threshold", "-1", "-o", "json")
	if err != nil {
		t.Fatalf("check error = %v", err)
	}
	res = checkResult{}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("invalid JSON output %q: %v", out, err)
	}
	if res.Agents[2].Status == agent.StatusCollapsed || !res.Agents[2].Integrity {
		t.Errorf("C-03 after reset = %+v", res.Agents[2])
	}

	out, err = executeCommand(t, "history", "--config", configPath, "-o", "json")
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	var runs []state.RunRecord
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("invalid history JSON %q: %v", out, err)
	}
	var commands []string
	for _, r := range runs {
		commands = append(commands, r.Command)
	}
	if want := []string{"simulate", "check", "reset", "check"}; !reflect.DeepEqual(commands, want) {
		t.Errorf("history commands = %v, want %v", commands, want)
	}
}

func TestReset_RequiresStateDir(t *testing.T) {
	_, rosterPath, configPath := workspace(t)

	_, err := executeCommand(t, "reset", "C-03", "--roster", rosterPath, "--config", configPath, "-o", "table")
	if err == nil || !strings.Contains(err.Error(), "state.dir") {
		t.Errorf("reset without state.dir error = %v", err)
	}
}
