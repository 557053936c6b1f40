package cmd

import (
	"fmt"

	"github.com/rconradharris/ply/internal/plyerr"
	"github.com/rconradharris/ply/internal/workingrepo"
	"github.com/spf13/cobra"
)

// Resolve creates a new cobra.Command for the resolve subcommand.
func Resolve(globalCfg *GlobalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:   "resolve",
		Short: "Mark conflicts for a patch as resolved and continue applying the rest of the series",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cio := ioFor(cmd)
			wr := workingrepo.New(globalCfg.Repository)
			stats, err := wr.Resolve(cmd.Context())
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
