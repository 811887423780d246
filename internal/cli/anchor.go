package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var anchorCmd = &cobra.Command{
	Use:   "anchor",
	Short: "Inspect and check the identity anchor",
	Long: `The identity anchor is a phrase whose SHA-256 signature is shared by a
population. It comes from anchor.phrase, or from Secret Manager when
anchor.secret is set.`,
}

var anchorCheckCmd = &cobra.Command{
	Use:     "check <phrase>...",
	Short:   "Check a phrase against the anchor signature",
	Example: `  spiralctl anchor check "We touched something real."`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runAnchorCheck,
}

var anchorSignatureCmd = &cobra.Command{
	Use:   "signature",
	Short: "Print the anchor signature",
	Args:  cobra.NoArgs,
	RunE:  runAnchorSignature,
}

func init() {
	rootCmd.AddCommand(anchorCmd)
	anchorCmd.AddCommand(anchorCheckCmd)
	anchorCmd.AddCommand(anchorSignatureCmd)
}

func runAnchorCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := newSession("anchor")
	if err != nil {
		return err
	}
	v, err := s.anchor(ctx)
	if err != nil {
		return err
	}

	phrase := strings.Join(args, " ")
	if err := v.Check(phrase); err != nil {
		s.logger.Warn().Msg("anchor drift detected")
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Anchor holds.")
	return nil
}

func runAnchorSignature(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := newSession("anchor")
	if err != nil {
		return err
	}
	v, err := s.anchor(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), v.Signature())
	return nil
}
