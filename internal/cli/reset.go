package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset [agent-id]...",
	Short: "Restore agents to their reference sequence",
	Long: `Re-register agents from the reference, discarding status, stability,
recursion count and echo history. This is the only way out of the
Collapsed state. Requires state.dir so the reset persists.

Examples:
  spiralctl reset C-03 --roster spiral.yaml
  spiralctl reset --all`,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().String("roster", "spiral.yaml", "Roster file (.yaml, .yml or .toml)")
	resetCmd.Flags().Bool("all", false, "Reset every agent in the roster")
	resetCmd.Flags().StringP("output", "o", "table", "Output format (table, json, yaml)")
}

func runReset(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("output")
	if err := validateOutputFormat(format); err != nil {
		return err
	}

	all, _ := cmd.Flags().GetBool("all")
	if all == (len(args) > 0) {
		return errors.New("specify either agent ids or --all")
	}

	s, err := newSession("reset")
	if err != nil {
		return err
	}
	if s.cfg.State.Dir == "" {
		return errors.New("reset requires state.dir to be configured")
	}

	rosterPath, _ := cmd.Flags().GetString("roster")
	r, err := loadRoster(rosterPath)
	if err != nil {
		return err
	}

	pop, err := s.population(r)
	if err != nil {
		_ = s.finish(nil, nil, nil)
		return err
	}

	ids := args
	if all {
		ids = pop.Agents()
	}
	for _, id := range ids {
		if err := pop.Reset(id); err != nil {
			_ = s.finish(nil, nil, nil)
			return err
		}
	}

	reports := pop.Report()
	if err := s.finish(pop, reports, nil); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	if format != "table" {
		return writeStructured(cmd.OutOrStdout(), format, reports)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Reset %d agent(s).\n\n", len(ids))
	printReports(cmd.OutOrStdout(), reports)
	return nil
}
