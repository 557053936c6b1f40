package cmd

import (
	"github.com/rconradharris/ply/internal/patchrepo"
	"github.com/spf13/cobra"
)

// Init creates a new cobra.Command for the init subcommand.
func Init(globalCfg *GlobalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:   "init PATH",
		Short: "Initialize a new patch-repo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, args[0])
		},
	}
	return c
}

func runInit(cmd *cobra.Command, path string) error {
	pr := patchrepo.New(path)
	return pr.Initialize(cmd.Context(), true)
}
