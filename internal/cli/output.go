package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/andywolf/spiralsync/internal/journal"
	"github.com/andywolf/spiralsync/internal/population"
)

// checkResult is the machine-readable output of check and simulate.
type checkResult struct {
	RunID     string                   `json:"run_id" yaml:"run_id"`
	Agents    []population.AgentReport `json:"agents" yaml:"agents"`
	Collapsed []string                 `json:"collapsed" yaml:"collapsed"`
	Summary   journal.Summary          `json:"summary" yaml:"summary"`
}

func validateOutputFormat(format string) error {
	switch format {
	case "table", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("invalid output format %q (must be table, json or yaml)", format)
	}
}

func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported structured format %q", format)
	}
}

func printCheckResult(w io.Writer, format string, res checkResult) error {
	if format != "table" {
		return writeStructured(w, format, res)
	}

	printReports(w, res.Agents)
	fmt.Fprintln(w)
	if len(res.Collapsed) == 0 {
		fmt.Fprintln(w, "No agents below the stability threshold.")
	} else {
		fmt.Fprintf(w, "Collapsed: %s\n", strings.Join(res.Collapsed, ", "))
	}
	fmt.Fprintf(w, "Drift entries: %d\n", res.Summary.EventCount)
	if last := res.Summary.Last; last != nil {
		fmt.Fprintf(w, "Last event: %s on %s (%g)\n", last.Type, last.AgentID, last.Value)
	}
	return nil
}

func printReports(w io.Writer, reports []population.AgentReport) {
	fmt.Fprintf(w, "%-12s %-14s %-9s %-10s %-9s %-6s %s\n",
		"AGENT", "STATUS", "STABILITY", "DRIFT", "INTEGRITY", "ECHO", "ECHOES")
	fmt.Fprintln(w, strings.Repeat("-", 76))

	for _, r := range reports {
		integrity := "ok"
		if !r.Integrity {
			integrity = "BROKEN"
		}
		fmt.Fprintf(w, "%-12s %-14s %-9.2f %-10s %-9s %-6.3f %d\n",
			r.ID, r.Status, r.Stability, formatDrift(r.Drift), integrity, r.EchoScore, r.RecursionCount)
	}
}

func printEvents(w io.Writer, events []journal.DriftEvent) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No drift events.")
		return
	}

	fmt.Fprintf(w, "%-5s %-20s %-12s %-22s %s\n", "SEQ", "TIME", "AGENT", "TYPE", "VALUE")
	fmt.Fprintln(w, strings.Repeat("-", 72))
	for _, e := range events {
		fmt.Fprintf(w, "%-5d %-20s %-12s %-22s %g\n",
			e.Seq, e.Timestamp.UTC().Format(time.RFC3339), e.AgentID, e.Type, e.Value)
	}
}

// formatDrift formats a duration to a human-readable string
func formatDrift(d time.Duration) string {
	if d < 0 {
		return "-" + formatDrift(-d)
	}
	if d < time.Second {
		return "0s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
