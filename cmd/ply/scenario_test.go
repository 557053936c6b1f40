package main

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rconradharris/ply/cmd/ply/cmd"
	"github.com/rconradharris/ply/internal/scenariotest"
)

// TestScenarios runs every end-to-end scenario file under
// testdata/scenarios, one per spec end-to-end scenario (single
// save/restore, two-patch save/restore, conflict-then-resolve,
// upstreamed-patch, abort-with-prior-applied-patch, check-detects-drift).
func TestScenarios(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.md")
	if err != nil {
		t.Fatalf("failed to find scenario files: %v", err)
	}
	if len(files) == 0 {
		t.Skip("no scenario files found under testdata/scenarios")
	}

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			runScenario(t, file)
		})
	}
}

func runScenario(t *testing.T, file string) {
	s, err := scenariotest.ParseFile(file)
	if err != nil {
		t.Fatalf("failed to parse %s: %v", file, err)
	}
	t.Logf("scenario: %s", s.Name)
	if s.Description != "" {
		t.Logf("description: %s", s.Description)
	}

	exec, err := scenariotest.NewExecutor(t, runPlyCommand)
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}
	defer exec.Cleanup()

	if err := exec.Run(s); err != nil {
		t.Fatal(err)
	}
}

// runPlyCommand builds an independent ply command tree per invocation
// (cobra command state isn't safely reusable across runs) and resolves
// any relative --repository argument against the scenario's exec dir,
// since ply threads the repo path explicitly rather than relying on
// the process's current directory.
func runPlyCommand(args []string, dir string, stdout, stderr *bytes.Buffer) {
	resolved := make([]string, 0, len(args)+2)
	sawRepository := false
	// init/link take PATH as their one positional argument; resolve it
	// against execDir too, since ply itself never consults the
	// process's working directory. The subcommand may be preceded by
	// global flags (e.g. `ply --repository work link patches`), so it's
	// found positionally rather than assumed to be args[0].
	subcommand := ""
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--repository" && i+1 < len(args):
			resolved = append(resolved, args[i])
			i++
			resolved = append(resolved, resolvePath(dir, args[i]))
			sawRepository = true
		case strings.HasPrefix(args[i], "-"):
			resolved = append(resolved, args[i])
		case subcommand == "":
			subcommand = args[i]
			resolved = append(resolved, args[i])
		case subcommand == "init" || subcommand == "link":
			resolved = append(resolved, resolvePath(dir, args[i]))
			subcommand = "(resolved)"
		default:
			resolved = append(resolved, args[i])
		}
	}
	if !sawRepository {
		resolved = append(resolved, "--repository", dir)
	}

	root := cmd.Root()
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(resolved)
	if err := root.Execute(); err != nil {
		// Mirrors main.go's own top-level error print, since scenarios
		// drive Root() directly rather than through main().
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
}

func resolvePath(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
