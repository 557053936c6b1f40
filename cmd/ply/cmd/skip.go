package cmd

import (
	"fmt"

	"github.com/rconradharris/ply/internal/plyerr"
	"github.com/rconradharris/ply/internal/workingrepo"
	"github.com/spf13/cobra"
)

// Skip creates a new cobra.Command for the skip subcommand.
func Skip(globalCfg *GlobalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:   "skip",
		Short: "Skip current patch, remove it from the patch-repo, and continue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cio := ioFor(cmd)
			wr := workingrepo.New(globalCfg.Repository)
			stats, err := wr.Skip(cmd.Context())
			switch {
			case plyerr.Is(err, plyerr.NothingToResolve):
				return errNothingToResolve
			case plyerr.Is(err, plyerr.PatchBlobSHA1Invalid), plyerr.Is(err, plyerr.PatchDidNotApplyCleanly):
				return conflictMessage(err)
			case err != nil:
				return err
			}
			if globalCfg.Verbose {
				fmt.Fprintf(cio.Err, "updated=%d removed=%d\n", stats.Updated, stats.Removed)
			}
			return nil
		},
	}
	return c
}
