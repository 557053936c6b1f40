package cmd

import (
	"errors"

	"github.com/rconradharris/ply/internal/plyerr"
	"github.com/rconradharris/ply/internal/workingrepo"
	"github.com/spf13/cobra"
)

// Rollback creates a new cobra.Command for the rollback subcommand.
func Rollback(globalCfg *GlobalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:   "rollback",
		Short: "Rollback to the last upstream commit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wr := workingrepo.New(globalCfg.Repository)
			err := wr.Rollback(cmd.Context(), workingrepo.RollbackOpts{})
			switch {
			case plyerr.Is(err, plyerr.NoPatchesApplied):
				return errors.New("cannot rollback, no patches applied")
			case plyerr.Is(err, plyerr.UncommittedChanges):
				return errUncommittedChanges
			}
			return err
		},
	}
	return c
}
