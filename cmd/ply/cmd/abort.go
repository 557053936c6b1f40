package cmd

import (
	"github.com/rconradharris/ply/internal/plyerr"
	"github.com/rconradharris/ply/internal/workingrepo"
	"github.com/spf13/cobra"
)

// Abort creates a new cobra.Command for the abort subcommand.
func Abort(globalCfg *GlobalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:   "abort",
		Short: "Abort in-progress restore operation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wr := workingrepo.New(globalCfg.Repository)
			err := wr.Abort(cmd.Context())
			if plyerr.Is(err, plyerr.NothingToResolve) {
				return errNothingToAbort
			}
			return err
		},
	}
	return c
}
