// Package patchrepo implements the patch repo: a git repository holding
// versioned patch files plus the series file that orders them. It
// reconciles freshly produced patches against what's already stored
// (syncPatches), detects drift between the series file and the
// filesystem (check), and derives the dependency graph between patches
// that touch overlapping files.
package patchrepo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"

	"github.com/rconradharris/ply/internal/gitcli"
	"github.com/rconradharris/ply/internal/seriesfile"
)

// Repo is a patch repo rooted at a path: a git working tree containing
// *.patch files and a series file at its root.
type Repo struct {
	git    *gitcli.Repo
	series *seriesfile.Store
}

// New returns a Repo for the patch repo at path.
func New(path string) *Repo {
	return &Repo{
		git:    gitcli.New(path),
		series: seriesfile.New(filepath.Join(path, "series")),
	}
}

// Path returns the patch repo's root directory.
func (r *Repo) Path() string { return r.git.Path }

// Git exposes the underlying git driver for commit/push-style operations
// the working repo needs to perform against the patch repo (e.g. the
// post-restore commit).
func (r *Repo) Git() *gitcli.Repo { return r.git }

// Initialize git-inits the patch repo and, if it has no series file yet,
// creates an empty one and commits it.
func (r *Repo) Initialize(ctx context.Context, quiet bool) error {
	if err := r.git.Init(ctx, quiet); err != nil {
		return err
	}
	if _, err := os.Stat(r.series.Path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := os.WriteFile(r.series.Path, nil, 0o644); err != nil {
		return err
	}
	if err := r.git.Add(ctx, "series"); err != nil {
		return err
	}
	return r.git.Commit(ctx, "Ply init", gitcli.CommitOpts{})
}

// PatchNames returns every *.patch file under the patch repo, recursively,
// as paths relative to the repo root.
func (r *Repo) PatchNames() ([]string, error) {
	var names []string
	root := r.Path()
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".patch" {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		names = append(names, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Series is the recursive expansion of the series file into an ordered
// list of patch names.
func (r *Repo) Series() ([]string, error) {
	return r.series.ReadRecursive()
}

// CheckResult reports the drift, if any, between the series file and the
// patch files actually present on disk.
type CheckResult struct {
	OK            bool
	NoFile        []string // in series but the file doesn't exist
	NoSeriesEntry []string // file exists but has no series entry
}

// Check compares the series against the patch-file set.
func (r *Repo) Check() (CheckResult, error) {
	series, err := r.Series()
	if err != nil {
		return CheckResult{}, err
	}
	names, err := r.PatchNames()
	if err != nil {
		return CheckResult{}, err
	}

	seriesSet := toSet(series)
	nameSet := toSet(names)

	noFile := setDifference(seriesSet, nameSet)
	noSeriesEntry := setDifference(nameSet, seriesSet)

	if len(noFile) == 0 && len(noSeriesEntry) == 0 {
		return CheckResult{OK: true}, nil
	}
	return CheckResult{NoFile: noFile, NoSeriesEntry: noSeriesEntry}, nil
}

// RemovePatch unstages and removes a patch file (forcing the removal even
// if it has uncommitted content) and drops it from the series.
func (r *Repo) RemovePatch(ctx context.Context, name string) error {
	if err := r.git.Rm(ctx, name, true); err != nil {
		return err
	}
	err := r.series.Mutate(func(entries []string) ([]string, error) {
		out := entries[:0:0]
		for _, e := range entries {
			if e != name {
				out = append(out, e)
			}
		}
		return out, nil
	})
	if err != nil {
		return err
	}
	return r.git.Add(ctx, "series")
}

// Source is a freshly produced patch file (typically in a scratch
// directory) awaiting reconciliation against the stored series via
// SyncPatches.
type Source struct {
	// Name is the target patch name (its eventual path relative to the
	// patch repo root).
	Name string
	// Path is the absolute path to the freshly generated file on disk.
	Path string
}

// SyncResult reports how SyncPatches classified each source.
type SyncResult struct {
	Added   []string
	Updated []string
	Skipped []string
	Removed []string
}

// SyncPatches reconciles a freshly produced patch set (sources, in series
// order) against what's currently stored. Every series entry at or
// before parentPatchName (empty string means "none": the whole series is
// up for resaving) is left untouched. Of the remainder, an entry whose
// name is missing from sources is removed; a source whose name doesn't
// appear anywhere in the series is added; a source whose name matches an
// existing entry is updated or skipped depending on whether its content
// is meaningfully different. The final series is the untouched prefix
// (minus any names that are also sources) followed by the source names
// in order — this both splices the new
// batch in immediately after parentPatchName and relocates any
// previously-present name to that position.
func (r *Repo) SyncPatches(ctx context.Context, sources []Source, parentPatchName string) (SyncResult, error) {
	oldSeries, err := r.series.Read()
	if err != nil {
		return SyncResult{}, err
	}

	parentIdx := -1
	if parentPatchName != "" {
		for i, name := range oldSeries {
			if name == parentPatchName {
				parentIdx = i
				break
			}
		}
	}

	prefix := append([]string(nil), oldSeries[:parentIdx+1]...)
	tail := oldSeries[parentIdx+1:]
	oldSet := toSet(oldSeries)

	sourceByName := make(map[string]Source, len(sources))
	sourceNames := make([]string, len(sources))
	for i, s := range sources {
		sourceByName[s.Name] = s
		sourceNames[i] = s.Name
	}
	sourceSet := toSet(sourceNames)

	result := SyncResult{}
	for _, name := range tail {
		if _, ok := sourceSet[name]; !ok {
			result.Removed = append(result.Removed, name)
		}
	}

	for _, name := range sourceNames {
		s := sourceByName[name]
		if !oldSet[name] {
			result.Added = append(result.Added, name)
			continue
		}
		diff, err := r.MeaningfulDiff(ctx, filepath.Join(r.Path(), name), s.Path)
		if err != nil {
			return SyncResult{}, err
		}
		if diff {
			result.Updated = append(result.Updated, name)
		} else {
			result.Skipped = append(result.Skipped, name)
		}
	}

	for _, name := range result.Added {
		if err := r.copyPatchFile(ctx, sourceByName[name]); err != nil {
			return SyncResult{}, err
		}
	}
	for _, name := range result.Updated {
		if err := r.copyPatchFile(ctx, sourceByName[name]); err != nil {
			return SyncResult{}, err
		}
	}
	for _, name := range result.Skipped {
		os.Remove(sourceByName[name].Path)
	}
	for _, name := range result.Removed {
		if err := r.git.Rm(ctx, name, true); err != nil {
			return SyncResult{}, err
		}
	}

	newSeries := make([]string, 0, len(prefix)+len(sourceNames))
	for _, name := range prefix {
		if !sourceSet[name] {
			newSeries = append(newSeries, name)
		}
	}
	newSeries = append(newSeries, sourceNames...)
	if err := r.series.Mutate(func([]string) ([]string, error) {
		return newSeries, nil
	}); err != nil {
		return SyncResult{}, err
	}
	if err := r.git.Add(ctx, "series"); err != nil {
		return SyncResult{}, err
	}

	return result, nil
}

func (r *Repo) copyPatchFile(ctx context.Context, s Source) error {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return err
	}
	dest := filepath.Join(r.Path(), s.Name)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return err
	}
	os.Remove(s.Path)
	return r.git.Add(ctx, s.Name)
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func setDifference(a, b map[string]bool) []string {
	var out []string
	for k := range a {
		if !b[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// PatchDependencies parses every patch in the series for the files it
// touches (its `--- a/...`/`+++ b/...` lines) and returns, keyed by
// (dependent, parent) patch-name pairs, the set of files that make the
// later patch depend on the earlier one: any patch touching a file
// depends on every earlier-in-series patch that also touched it.
func (r *Repo) PatchDependencies() (map[[2]string]map[string]bool, error) {
	series, err := r.Series()
	if err != nil {
		return nil, err
	}

	fileOrder := make(map[string][]string) // file -> patch names that touch it, in series order
	for _, name := range series {
		files, err := patchTouchedFiles(filepath.Join(r.Path(), name))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		for _, f := range files {
			fileOrder[f] = append(fileOrder[f], name)
		}
	}

	deps := make(map[[2]string]map[string]bool)
	for file, names := range fileOrder {
		for i := 1; i < len(names); i++ {
			dependent, parent := names[i], names[i-1]
			key := [2]string{dependent, parent}
			if deps[key] == nil {
				deps[key] = make(map[string]bool)
			}
			deps[key][file] = true
		}
	}
	return deps, nil
}

var (
	diffGitFileRE   = regexp.MustCompile(`^(?:--- a/(.+)|\+\+\+ b/(.+))$`)
	gitDiffHeaderRE = regexp.MustCompile(`(?m)^diff --git `)
)

// patchTouchedFiles extracts the files a single patch touches from its
// `--- a/` and `+++ b/` lines, preferring go-gitdiff's structured parse
// for patches with `diff --git` headers and falling back to a line scan
// otherwise (e.g. a hand-edited patch missing a proper header).
func patchTouchedFiles(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var names []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name == "" || name == "/dev/null" || seen[name] {
			return
		}
		seen[name] = true
		names = append(names, name)
	}

	files, _, err := gitdiff.Parse(strings.NewReader(string(data)))
	if err == nil && len(files) > 0 && gitDiffHeaderRE.Match(data) {
		for _, f := range files {
			add(f.OldName)
			add(f.NewName)
		}
		return names, nil
	}

	for _, line := range strings.Split(string(data), "\n") {
		m := diffGitFileRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if m[1] != "" {
			add(m[1])
		} else {
			add(m[2])
		}
	}
	return names, nil
}

// PatchDependencyDotGraph serializes PatchDependencies as a DOT digraph,
// one edge per (dependent, parent) pair, sorted for deterministic output.
func (r *Repo) PatchDependencyDotGraph() (string, error) {
	deps, err := r.PatchDependencies()
	if err != nil {
		return "", err
	}
	return renderDotGraph(deps)
}
