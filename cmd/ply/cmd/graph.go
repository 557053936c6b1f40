package cmd

import (
	"fmt"

	"github.com/rconradharris/ply/internal/plyerr"
	"github.com/rconradharris/ply/internal/workingrepo"
	"github.com/spf13/cobra"
)

// Graph creates a new cobra.Command for the graph subcommand.
func Graph(globalCfg *GlobalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:   "graph",
		Short: "Graph patch dependencies in DOT format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cio := ioFor(cmd)
			wr := workingrepo.New(globalCfg.Repository)
			pr, err := wr.PatchRepo(cmd.Context())
			if plyerr.Is(err, plyerr.NoLinkedPatchRepo) {
				return fmt.Errorf("not linked to a patch-repo")
			}
			if err != nil {
				return err
			}
			dot, err := pr.PatchDependencyDotGraph()
			if err != nil {
				return err
			}
			fmt.Fprintln(cio.Out, dot)
			return nil
		},
	}
	return c
}
