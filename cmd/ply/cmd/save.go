package cmd

import (
	"fmt"

	"github.com/rconradharris/ply/internal/plyerr"
	"github.com/rconradharris/ply/internal/workingrepo"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// SaveConfig holds save's own flags alongside the shared GlobalConfig.
type SaveConfig struct {
	*GlobalConfig
	Since  string
	Prefix string
}

func saveFlags(name string, cfg *SaveConfig) *pflag.FlagSet {
	set := pflag.NewFlagSet(name, pflag.ContinueOnError)
	set.StringVarP(&cfg.Since, "since", "s", "", "starting ref for new commits (defaults to the last upstream commit)")
	set.StringVarP(&cfg.Prefix, "prefix", "p", "", "subdirectory to prefix new patch names with")
	return set
}

// Save creates a new cobra.Command for the save subcommand.
func Save(globalCfg *GlobalConfig) *cobra.Command {
	cfg := &SaveConfig{GlobalConfig: globalCfg}
	c := &cobra.Command{
		Use:   "save",
		Short: "Save set of commits to patch-repo",
		Args:  cobra.NoArgs,
	}
	c.Flags().AddFlagSet(saveFlags(c.Name(), cfg))
	c.RunE = func(cmd *cobra.Command, args []string) error {
		cio := ioFor(cmd)
		wr := workingrepo.New(cfg.Repository)
		result, err := wr.Save(cmd.Context(), workingrepo.SaveOpts{Since: cfg.Since, Prefix: cfg.Prefix})
		switch {
		case plyerr.Is(err, plyerr.NoPatchesApplied):
			return fmt.Errorf("patches are already applied, so --since is required to save new commits")
		case plyerr.Is(err, plyerr.UncommittedChanges):
			return errUncommittedChanges
		case err != nil:
			return err
		}
		if globalCfg.Verbose {
			fmt.Fprintf(cio.Err, "added=%d updated=%d skipped=%d removed=%d\n",
				len(result.Added), len(result.Updated), len(result.Skipped), len(result.Removed))
		}
		return nil
	}
	return c
}
