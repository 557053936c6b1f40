// Package cmd implements the ply command-line front end: one cobra
// subcommand per working-repo operation, thin enough that all the
// actual logic lives in internal/workingrepo and internal/patchrepo.
package cmd

import (
	"io"

	"github.com/spf13/cobra"
)

// Version is the ply release string, printed by --version.
const Version = "0.1.0"

// GlobalConfig holds the flags shared by every subcommand.
type GlobalConfig struct {
	// Repository is the working-repo path; defaults to the current
	// directory.
	Repository string
	// NoFetch disables the `git fetch --all` prelude that restore
	// otherwise runs to pick up blobs needed for three-way merges.
	NoFetch bool
	// Verbose gates non-fatal warnings written to IO.Err.
	Verbose bool
}

// IO bundles the writers a subcommand prints to, so tests can swap in
// buffers instead of the process's real stdout/stderr.
type IO struct {
	Out io.Writer
	Err io.Writer
}

// Root constructs the ply command tree. It's a function rather than a
// package-level var so that tests can build an independent instance
// per scenario.
func Root() *cobra.Command {
	cfg := &GlobalConfig{Repository: "."}

	root := &cobra.Command{
		Use:           "ply",
		Short:         "ply: git-based patch management",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfg.Repository, "repository", ".", "path to the working repo")
	root.PersistentFlags().BoolVar(&cfg.NoFetch, "no-fetch", false, "avoid fetching remotes before restore")
	root.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "show verbose output")

	root.AddCommand(
		Init(cfg),
		Link(cfg),
		Unlink(cfg),
		Save(cfg),
		Restore(cfg),
		Resolve(cfg),
		Skip(cfg),
		Abort(cfg),
		Rollback(cfg),
		Status(cfg),
		Check(cfg),
		Graph(cfg),
	)
	return root
}

func ioFor(cmd *cobra.Command) IO {
	return IO{Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr()}
}
