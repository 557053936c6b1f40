package cmd

import (
	"fmt"

	"github.com/rconradharris/ply/internal/plyerr"
	"github.com/rconradharris/ply/internal/workingrepo"
	"github.com/spf13/cobra"
)

// Check creates a new cobra.Command for the check subcommand.
func Check(globalCfg *GlobalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:   "check",
		Short: "Perform a health check on the patch-repo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cio := ioFor(cmd)
			wr := workingrepo.New(globalCfg.Repository)
			result, err := wr.CheckPatchRepo(cmd.Context())
			if plyerr.Is(err, plyerr.NoLinkedPatchRepo) {
				return fmt.Errorf("not linked to a patch-repo")
			}
			if err != nil {
				return err
			}

			if result.OK {
				fmt.Fprintln(cio.Out, "OK")
				return nil
			}
			fmt.Fprintln(cio.Out, "FAILED")
			if len(result.NoFile) > 0 {
				fmt.Fprintln(cio.Out, "Entry in series-file but patch not present:")
				for _, name := range result.NoFile {
					fmt.Fprintf(cio.Out, "\t- %s\n", name)
				}
			}
			if len(result.NoSeriesEntry) > 0 {
				fmt.Fprintln(cio.Out, "Patch is present but no entry in series file:")
				for _, name := range result.NoSeriesEntry {
					fmt.Fprintf(cio.Out, "\t- %s\n", name)
				}
			}
			return nil
		},
	}
	return c
}
