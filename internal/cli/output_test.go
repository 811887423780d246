package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/andywolf/spiralsync/internal/agent"
	"github.com/andywolf/spiralsync/internal/journal"
	"github.com/andywolf/spiralsync/internal/population"
)

func TestFormatDrift(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "0s"},
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m30s"},
		{2*time.Hour + 5*time.Minute, "2h5m"},
		{-30 * time.Second, "-30s"},
	}
	for _, tt := range tests {
		if got := formatDrift(tt.d); got != tt.want {
			t.Errorf("formatDrift(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestPrintCheckResult_Table(t *testing.T) {
	last := journal.DriftEvent{AgentID: "Z", Type: journal.EventCollapse, Value: 0.3}
	res := checkResult{
		Agents: []population.AgentReport{
			{ID: "X", Status: agent.StatusSynchronized, Stability: 1, Integrity: true, EchoScore: 1},
			{ID: "Z", Status: agent.StatusCollapsed, Stability: 0.3, EchoScore: 0.667, Drift: 90 * time.Second},
		},
		Collapsed: []string{"Z"},
		Summary:   journal.Summary{EventCount: 1, Last: &last},
	}

	var buf bytes.Buffer
	if err := printCheckResult(&buf, "table", res); err != nil {
		t.Fatalf("printCheckResult() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"AGENT", "BROKEN", "1m30s", "Collapsed: Z", "Drift entries: 1", "Last event: collapse on Z (0.3)"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintCheckResult_YAML(t *testing.T) {
	var buf bytes.Buffer
	res := checkResult{RunID: "run-1", Agents: []population.AgentReport{{ID: "X"}}}
	if err := printCheckResult(&buf, "yaml", res); err != nil {
		t.Fatalf("printCheckResult() error = %v", err)
	}
	if !strings.Contains(buf.String(), "run_id: run-1") || !strings.Contains(buf.String(), "agent_id: X") {
		t.Errorf("yaml output = %s", buf.String())
	}
}

func TestValidateOutputFormat(t *testing.T) {
	for _, f := range []string{"table", "json", "yaml"} {
		if err := validateOutputFormat(f); err != nil {
			t.Errorf("validateOutputFormat(%q) error = %v", f, err)
		}
	}
	if err := validateOutputFormat("xml"); err == nil {
		t.Error("validateOutputFormat(xml) expected error")
	}
}

func TestPrintEvents_Empty(t *testing.T) {
	var buf bytes.Buffer
	printEvents(&buf, nil)
	if buf.String() != "No drift events.\n" {
		t.Errorf("printEvents(nil) = %q", buf.String())
	}
}
