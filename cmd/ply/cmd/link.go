package cmd

import (
	"errors"
	"fmt"

	"github.com/rconradharris/ply/internal/plyerr"
	"github.com/rconradharris/ply/internal/workingrepo"
	"github.com/spf13/cobra"
)

// Link creates a new cobra.Command for the link subcommand.
func Link(globalCfg *GlobalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:   "link PATH",
		Short: "Link a working-repo to a patch-repo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cio := ioFor(cmd)
			wr := workingrepo.New(globalCfg.Repository)
			err := wr.Link(cmd.Context(), args[0])
			switch {
			case plyerr.Is(err, plyerr.AlreadyLinkedToSamePatchRepo):
				fmt.Fprintln(cio.Out, "Already linked to this patch-repo")
				return nil
			case plyerr.Is(err, plyerr.AlreadyLinkedToDifferentPatchRepo):
				var perr *plyerr.Error
				errors.As(err, &perr)
				return fmt.Errorf("already linked to a different patch-repo: %s", perr.PatchRepoPath)
			}
			return err
		},
	}
	return c
}
