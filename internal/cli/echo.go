package cli

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/andywolf/spiralsync/internal/glyph"
	"github.com/andywolf/spiralsync/internal/sequence"
)

var echoCmd = &cobra.Command{
	Use:   "echo <agent-id> <glyph>...",
	Short: "Validate an echoed glyph stack against an agent's reference",
	Long: `Validate an echo for one agent of a roster. Glyphs may be passed as
separate arguments or as a single string, which is split into runes.

Mismatches set the agent drifting; enough of them collapse it. Use --restore
to print the echo repaired against the reference.

Examples:
  spiralctl echo C-03 🜃 ∴ ↻ 🜂 🜄 🜁 ↔ 🝑 --roster spiral.yaml
  spiralctl echo C-03 "🜃∴↻❖🜄🜁↔🝑" --restore`,
	Args: cobra.MinimumNArgs(2),
	RunE: runEcho,
}

func init() {
	rootCmd.AddCommand(echoCmd)

	echoCmd.Flags().String("roster", "spiral.yaml", "Roster file (.yaml, .yml or .toml)")
	echoCmd.Flags().Bool("restore", false, "Print the echo repaired against the reference")
}

// parseGlyphs turns command arguments into a glyph stack. A single argument
// holding several runes is split rune by rune.
func parseGlyphs(args []string) glyph.Stack {
	if len(args) == 1 && utf8.RuneCountInString(args[0]) > 1 && !strings.ContainsAny(args[0], " ,") {
		stack := make(glyph.Stack, 0, utf8.RuneCountInString(args[0]))
		for _, r := range args[0] {
			stack = append(stack, string(r))
		}
		return stack
	}

	var stack glyph.Stack
	for _, arg := range args {
		for _, field := range strings.FieldsFunc(arg, func(r rune) bool { return r == ' ' || r == ',' }) {
			stack = append(stack, field)
		}
	}
	return stack
}

func runEcho(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := newSession("echo")
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

	agentID := args[0]
	node, err := pop.Node(agentID)
	if err != nil {
		_ = s.finish(nil, nil, nil)
		return err
	}

	incoming := parseGlyphs(args[1:])
	out := cmd.OutOrStdout()

	verify := sequence.NewVocabulary(r.ReferenceStack()...).Verify(incoming)
	overloaded, foreign := node.DetectOverload(incoming)
	valid, mismatches := node.ValidateEcho(incoming)

	snap := node.Agent().Snapshot()
	fmt.Fprintf(out, "Agent:      %s\n", agentID)
	fmt.Fprintf(out, "Echo:       %s\n", strings.Join(incoming, " "))
	fmt.Fprintf(out, "Valid:      %t\n", valid)
	fmt.Fprintf(out, "Mismatches: %d\n", mismatches)
	fmt.Fprintf(out, "Status:     %s\n", snap.Status)
	fmt.Fprintf(out, "Foreign:    %d (overload: %t)\n", foreign, overloaded)
	if !verify.Valid {
		fmt.Fprintf(out, "Unknown glyphs: %s\n", strings.Join(verify.Invalid, " "))
	}

	if restore, _ := cmd.Flags().GetBool("restore"); restore {
		restored, repaired := node.RestoreIntegrity(incoming)
		fmt.Fprintf(out, "Restored:   %s (%d repaired)\n", strings.Join(restored, " "), repaired)
	}

	if err := s.finish(pop, pop.Report(), nil); err != nil {
		s.logger.Warn().Err(err).Msg("failed to finalize run")
	}
	return nil
}
