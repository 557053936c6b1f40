package cmd

import (
	"fmt"

	"github.com/rconradharris/ply/internal/plyerr"
	"github.com/rconradharris/ply/internal/workingrepo"
	"github.com/spf13/cobra"
)

// Restore creates a new cobra.Command for the restore subcommand.
func Restore(globalCfg *GlobalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:   "restore",
		Short: "Apply the patch series to the current branch of the working-repo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cio := ioFor(cmd)
			wr := workingrepo.New(globalCfg.Repository)
			stats, err := wr.Restore(cmd.Context(), workingrepo.RestoreOpts{FetchRemotes: !globalCfg.NoFetch})
			switch {
			case plyerr.Is(err, plyerr.RestoreInProgress):
				return errRestoreInProgress
			case plyerr.Is(err, plyerr.UncommittedChanges):
				return errUncommittedChanges
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
