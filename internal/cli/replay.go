package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/andywolf/spiralsync/internal/journal"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay events from a drift log",
	Long: `Read a JSONL drift log and print its events. Indexes refer to the
position of an event in the file, counting from 0, and accept ranges.

Examples:
  spiralctl replay                                   # journal.dir/drift_log.jsonl
  spiralctl replay --journal drift_log.jsonl --type collapse
  spiralctl replay --agent C-03 --index 0-4,9 -o json`,
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().String("journal", "", "Drift log path (default <journal.dir>/drift_log.jsonl)")
	replayCmd.Flags().StringSlice("type", nil, "Event types to keep (timestamp_drift, stability_degradation, collapse)")
	replayCmd.Flags().String("agent", "", "Keep events for this agent only")
	replayCmd.Flags().StringSlice("index", nil, "Event indexes or ranges to replay, e.g. 0-3,7")
	replayCmd.Flags().StringP("output", "o", "table", "Output format (table, json, yaml)")
}

func runReplay(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("output")
	if err := validateOutputFormat(format); err != nil {
		return err
	}

	path, _ := cmd.Flags().GetString("journal")
	if path == "" {
		s, err := newSession("replay")
		if err != nil {
			return err
		}
		if s.cfg.Journal.Dir == "" {
			return fmt.Errorf("no drift log given: pass --journal or set journal.dir")
		}
		path = filepath.Join(s.cfg.Journal.Dir, journal.DefaultFilename)
	}

	events, err := journal.ReadEvents(path)
	if err != nil {
		return err
	}

	rawIndexes, _ := cmd.Flags().GetStringSlice("index")
	indexes, err := ExpandIndexes(rawIndexes)
	if err != nil {
		return err
	}
	if events, err = selectIndexes(events, indexes); err != nil {
		return err
	}

	rawTypes, _ := cmd.Flags().GetStringSlice("type")
	types, err := parseEventTypes(rawTypes)
	if err != nil {
		return err
	}
	events = journal.FilterByType(events, types...)

	agentID, _ := cmd.Flags().GetString("agent")
	events = journal.FilterByAgent(events, agentID)

	out := cmd.OutOrStdout()
	if format != "table" {
		return writeStructured(out, format, events)
	}
	printEvents(out, events)
	return nil
}

// selectIndexes returns the events at the given file positions, in the
// order requested. No indexes selects every event.
func selectIndexes(events []journal.DriftEvent, indexes []int) ([]journal.DriftEvent, error) {
	if len(indexes) == 0 {
		return events, nil
	}

	selected := make([]journal.DriftEvent, 0, len(indexes))
	for _, i := range indexes {
		if i >= len(events) {
			return nil, fmt.Errorf("%w: %d (drift log has %d events)", journal.ErrIndexOutOfRange, i, len(events))
		}
		selected = append(selected, events[i])
	}
	return selected, nil
}

func parseEventTypes(raw []string) ([]journal.EventType, error) {
	types := make([]journal.EventType, 0, len(raw))
	for _, r := range raw {
		t := journal.EventType(r)
		switch t {
		case journal.EventTimestampDrift, journal.EventStabilityDegradation, journal.EventCollapse:
			types = append(types, t)
		default:
			return nil, fmt.Errorf("unknown event type %q", r)
		}
	}
	return types, nil
}
