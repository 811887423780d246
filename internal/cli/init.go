package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andywolf/spiralsync/internal/roster"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a sample roster",
	Long: `Write a sample three-agent roster sharing the default glyph stack, one
of which has drifted by a single glyph. The format follows the file
extension: .yaml, .yml or .toml.

Example:
  spiralctl init
  spiralctl init spiral.toml`,
	Args: cobra.MaximumNArgs(1),
	RunE: initRoster,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().Bool("force", false, "Overwrite an existing roster")
}

func initRoster(cmd *cobra.Command, args []string) error {
	path := "spiral.yaml"
	if len(args) == 1 {
		path = args[0]
	}

	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("roster already exists at %s (use --force to overwrite)", path)
	}

	if err := roster.Sample().Write(path); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created %s\n\n", path)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintf(out, "  1. Run 'spiralctl check --roster %s' to report the population\n", path)
	fmt.Fprintf(out, "  2. Run 'spiralctl simulate --roster %s' to destabilize it\n", path)
	fmt.Fprintln(out, "  3. Set journal.dir in .spiralsync.yaml to keep a drift log")

	return nil
}
