package cli

import (
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report integrity, echo scores and collapses for a roster",
	Long: `Load a roster, report every agent's status, stability, drift, integrity
and echo score, then flag agents whose stability is below the threshold.
Each flagged agent is recorded as a collapse in the drift journal.

Examples:
  spiralctl check --roster spiral.yaml
  spiralctl check --roster spiral.toml --threshold 0.5 -o json`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().String("roster", "spiral.yaml", "Roster file (.yaml, .yml or .toml)")
	checkCmd.Flags().Float64("threshold", -1, "Stability threshold (default protocol.stability_threshold)")
	checkCmd.Flags().StringP("output", "o", "table", "Output format (table, json, yaml)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	format, _ := cmd.Flags().GetString("output")
	if err := validateOutputFormat(format); err != nil {
		return err
	}

	s, err := newSession("check")
	if err != nil {
		return err
	}

	rosterPath, _ := cmd.Flags().GetString("roster")
	r, err := loadRoster(rosterPath)
	if err != nil {
		return err
	}

	if err := s.openSinks(ctx); err != nil {
		_ = s.finish(nil, nil, nil)
		return err
	}

	pop, err := s.population(r)
	if err != nil {
		_ = s.finish(nil, nil, nil)
		return err
	}

	threshold, _ := cmd.Flags().GetFloat64("threshold")
	if threshold < 0 {
		threshold = s.cfg.Protocol.StabilityThreshold
	}

	collapsed, journalErr := pop.CheckCollapse(threshold)
	if journalErr != nil {
		s.logger.Warn().Err(journalErr).Msg("journal sink failure during collapse check")
	}

	reports := pop.Report()
	if err := s.finish(pop, reports, collapsed); err != nil {
		s.logger.Warn().Err(err).Msg("failed to finalize run")
	}

	s.logger.Info().
		Int("agents", len(reports)).
		Int("collapsed", len(collapsed)).
		Float64("threshold", threshold).
		Msg("check complete")

	return printCheckResult(cmd.OutOrStdout(), format, checkResult{
		RunID:     s.runID,
		Agents:    reports,
		Collapsed: collapsed,
		Summary:   pop.Journal().Summary(),
	})
}

