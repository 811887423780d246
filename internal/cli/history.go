package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/andywolf/spiralsync/internal/state"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs from the state directory",
	Long: `List the runs recorded in state.dir, oldest first, with the drift
entries each produced and the agents it found collapsed.

Examples:
  spiralctl history
  spiralctl history -o json`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringP("output", "o", "table", "Output format (table, json, yaml)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("output")
	if err := validateOutputFormat(format); err != nil {
		return err
	}

	s, err := newSession("history")
	if err != nil {
		return err
	}
	if s.cfg.State.Dir == "" {
		return errors.New("history requires state.dir to be configured")
	}

	store := state.NewStore(s.cfg.State.Dir)
	if err := store.Load(); err != nil {
		return err
	}
	runs := store.Runs()

	out := cmd.OutOrStdout()
	if format != "table" {
		return writeStructured(out, format, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	fmt.Fprintf(out, "%-36s %-9s %-20s %-7s %s\n", "RUN", "COMMAND", "TIME", "DRIFT", "COLLAPSED")
	fmt.Fprintln(out, strings.Repeat("-", 90))
	for _, r := range runs {
		collapsed := "-"
		if len(r.Collapsed) > 0 {
			collapsed = strings.Join(r.Collapsed, ",")
		}
		fmt.Fprintf(out, "%-36s %-9s %-20s %-7d %s\n",
			r.RunID, r.Command, r.At.UTC().Format(time.RFC3339), r.DriftEntries, collapsed)
	}
	return nil
}
