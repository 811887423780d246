package cli

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"

	"github.com/andywolf/spiralsync/internal/glyph"
	"github.com/andywolf/spiralsync/internal/population"
	"github.com/andywolf/spiralsync/internal/sequence"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run destabilization rounds against a roster",
	Long: `Run rounds of echoes against a roster. In every round each perturbed
agent echoes a destabilized copy of its reference; the others echo the
reference itself. A drifted echo degrades the agent's stability and skews
its clock; a clean echo refreshes its timestamp. After the last round the
population is checked for collapse.

Examples:
  spiralctl simulate --roster spiral.yaml --rounds 4 --level 0.25
  spiralctl simulate --perturb C-03 --seed 7 -o json`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().String("roster", "spiral.yaml", "Roster file (.yaml, .yml or .toml)")
	simulateCmd.Flags().Int("rounds", 3, "Number of echo rounds")
	simulateCmd.Flags().Float64("level", 0.25, "Destabilization level in [0,1]")
	simulateCmd.Flags().Uint64("seed", 0, "Random seed (0 picks one from the clock)")
	simulateCmd.Flags().StringSlice("perturb", nil, "Agents whose echoes are destabilized (default all but the first)")
	simulateCmd.Flags().Duration("skew", 30*time.Second, "Clock skew applied per drifted echo")
	simulateCmd.Flags().Float64("threshold", -1, "Stability threshold (default protocol.stability_threshold)")
	simulateCmd.Flags().StringP("output", "o", "table", "Output format (table, json, yaml)")
}

// simulation drives echo rounds against a population.
type simulation struct {
	pop     *population.Validator[string]
	rng     *rand.Rand
	level   float64
	degrade float64
	skew    time.Duration
	perturb map[string]bool
}

// round runs one echo per agent in registration order.
func (sim *simulation) round() error {
	for _, id := range sim.pop.Agents() {
		node, err := sim.pop.Node(id)
		if err != nil {
			return err
		}

		echo := node.Agent().Snapshot().Reference
		if sim.perturb[id] {
			if echo, err = sequence.Destabilize(echo, sim.level, sim.rng, glyph.Foreign); err != nil {
				return fmt.Errorf("agent %s: %w", id, err)
			}
		}

		if valid, _ := node.ValidateEcho(echo); valid {
			if err := sim.pop.UpdateTimestamp(id); err != nil {
				return err
			}
			continue
		}

		if _, err := sim.pop.DegradeStability(id, sim.degrade); err != nil {
			return err
		}
		if err := sim.pop.SimulateDrift(id, sim.skew); err != nil {
			return err
		}
	}
	return nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	format, _ := cmd.Flags().GetString("output")
	if err := validateOutputFormat(format); err != nil {
		return err
	}

	level, _ := cmd.Flags().GetFloat64("level")
	if level < 0 || level > 1 {
		return fmt.Errorf("--level must be within [0,1], got %v", level)
	}
	rounds, _ := cmd.Flags().GetInt("rounds")
	if rounds < 1 {
		return fmt.Errorf("--rounds must be at least 1, got %d", rounds)
	}

	s, err := newSession("simulate")
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

	seed, _ := cmd.Flags().GetUint64("seed")
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	skew, _ := cmd.Flags().GetDuration("skew")
	perturbIDs, _ := cmd.Flags().GetStringSlice("perturb")
	for _, id := range perturbIDs {
		if _, err := pop.Node(id); err != nil {
			_ = s.finish(nil, nil, nil)
			return fmt.Errorf("--perturb: %w", err)
		}
	}

	sim := &simulation{
		pop:     pop,
		rng:     rand.New(rand.NewPCG(seed, seed)),
		level:   level,
		degrade: s.cfg.Protocol.DegradeAmount,
		skew:    skew,
		perturb: perturbSet(pop.Agents(), perturbIDs),
	}

	s.logger.Info().Uint64("seed", seed).Int("rounds", rounds).Float64("level", level).Msg("simulation started")
	for i := 0; i < rounds; i++ {
		if err := ctx.Err(); err != nil {
			_ = s.finish(pop, pop.Report(), nil)
			return fmt.Errorf("simulation interrupted after %d rounds: %w", i, err)
		}
		if err := sim.round(); err != nil {
			_ = s.finish(pop, pop.Report(), nil)
			return fmt.Errorf("round %d: %w", i+1, err)
		}
		s.logger.Debug().Int("round", i+1).Int("drift_entries", pop.Journal().Len()).Msg("round complete")
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

	return printCheckResult(cmd.OutOrStdout(), format, checkResult{
		RunID:     s.runID,
		Agents:    reports,
		Collapsed: collapsed,
		Summary:   pop.Journal().Summary(),
	})
}

// perturbSet returns the agents to destabilize. With no explicit list every
// agent but the first is perturbed, leaving one anchor holding the reference.
func perturbSet(agents, requested []string) map[string]bool {
	set := make(map[string]bool)
	if len(requested) > 0 {
		for _, id := range requested {
			set[id] = true
		}
		return set
	}
	for i, id := range agents {
		if i > 0 {
			set[id] = true
		}
	}
	return set
}
