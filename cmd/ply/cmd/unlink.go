package cmd

import (
	"fmt"

	"github.com/rconradharris/ply/internal/plyerr"
	"github.com/rconradharris/ply/internal/workingrepo"
	"github.com/spf13/cobra"
)

// Unlink creates a new cobra.Command for the unlink subcommand.
func Unlink(globalCfg *GlobalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:   "unlink",
		Short: "Unlink working-repo from patch-repo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wr := workingrepo.New(globalCfg.Repository)
			err := wr.Unlink(cmd.Context())
			if plyerr.Is(err, plyerr.NoLinkedPatchRepo) {
				return fmt.Errorf("not linked to a patch-repo")
			}
			return err
		},
	}
	return c
}
