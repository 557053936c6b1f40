package cmd

import (
	"fmt"

	"github.com/rconradharris/ply/internal/workingrepo"
	"github.com/spf13/cobra"
)

// Status creates a new cobra.Command for the status subcommand.
func Status(globalCfg *GlobalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:   "status",
		Short: "Show status of the working-repo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cio := ioFor(cmd)
			wr := workingrepo.New(globalCfg.Repository)
			status, err := wr.Status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cio.Out, status)
			return nil
		},
	}
	return c
}
