// Package workingrepo implements the working repo: the downstream git
// checkout where commits are produced and the patch series is
// re-applied on refresh. It detects which commits are already-applied
// patches from their commit-message annotations and drives
// save/restore/resolve/skip/abort/rollback/status against a linked
// patch repo.
package workingrepo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rconradharris/ply/internal/gitcli"
	"github.com/rconradharris/ply/internal/patchnorm"
	"github.com/rconradharris/ply/internal/patchrepo"
	"github.com/rconradharris/ply/internal/plyerr"
)

const (
	// defaultNewUpperBound caps how many unannotated commits are walked
	// before giving up on finding region A. See AppliedPatches.
	defaultNewUpperBound = 50

	patchRepoConfigKey   = "ply.patchrepo"
	conflictFileName     = ".patch-conflict"
	restoreStatsFileName = ".restore-stats"
)

// Repo is a working repo rooted at a path.
type Repo struct {
	git *gitcli.Repo

	// NewUpperBound caps the number of unannotated commits examined
	// while searching backwards for the start of region A, before any
	// annotated commit has been found. A repo with more than this many
	// unsaved commits ahead of its applied patches will report A as
	// empty rather than scan indefinitely.
	NewUpperBound int
}

// New returns a Repo rooted at path.
func New(path string) *Repo {
	return &Repo{git: gitcli.New(path), NewUpperBound: defaultNewUpperBound}
}

// Path returns the working repo's root directory.
func (r *Repo) Path() string { return r.git.Path }

// Git exposes the underlying git driver.
func (r *Repo) Git() *gitcli.Repo { return r.git }

// AppliedPatch is one entry of region A: a working-repo commit carrying
// a Ply-Patch annotation.
type AppliedPatch struct {
	Hash string
	Name string
}

var plyPatchAnnotationRE = regexp.MustCompile(`Ply-Patch: (.*)`)

func getPatchAnnotation(msg string) string {
	m := plyPatchAnnotationRE.FindStringSubmatch(msg)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// logOne returns the hash and full message of the commit skip steps back
// from HEAD. It reports an error once skip runs off the start of
// history (git log then yields no output).
func (r *Repo) logOne(ctx context.Context, skip int) (hash, msg string, err error) {
	out, err := r.git.Log(ctx, gitcli.LogOpts{Count: 1, Skip: skip, Pretty: "%H%x00%B"})
	if err != nil {
		return "", "", err
	}
	parts := strings.SplitN(out, "\x00", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("reached the start of history at skip=%d", skip)
	}
	return strings.TrimSpace(parts[0]), parts[1], nil
}

// AppliedPatches walks commits backward from HEAD and returns region A:
// the contiguous run of Ply-Patch-annotated commits, newest first. Up to
// NewUpperBound unannotated commits (region N) are tolerated before the
// first annotated one; once region A begins, the first unannotated
// commit marks its end.
func (r *Repo) AppliedPatches(ctx context.Context) ([]AppliedPatch, error) {
	var applied []AppliedPatch
	unannotatedSeen := 0
	for skip := 0; ; skip++ {
		hash, msg, err := r.logOne(ctx, skip)
		if err != nil {
			break
		}
		name := getPatchAnnotation(msg)
		if name == "" {
			if len(applied) > 0 {
				break
			}
			unannotatedSeen++
			if unannotatedSeen > r.NewUpperBound {
				break
			}
			continue
		}
		applied = append(applied, AppliedPatch{Hash: hash, Name: name})
	}
	return applied, nil
}

// LastUpstreamCommitHash is the commit one step parent-ward of the
// oldest entry of region A (HEAD itself when A is empty).
func (r *Repo) LastUpstreamCommitHash(ctx context.Context) (string, error) {
	applied, err := r.AppliedPatches(ctx)
	if err != nil {
		return "", err
	}
	hash, _, err := r.logOne(ctx, len(applied))
	if err != nil {
		return "", err
	}
	return hash, nil
}

// Link associates this working repo with the patch repo at path by
// canonicalizing it and writing the ply.patchrepo git config key.
func (r *Repo) Link(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return &plyerr.Error{Kind: plyerr.PathNotFound, Msg: fmt.Sprintf("%s does not exist", path)}
		}
		return err
	}

	existing, err := r.git.Config(ctx, gitcli.ConfigGet, patchRepoConfigKey, "")
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		if existing[0] == real {
			return &plyerr.Error{Kind: plyerr.AlreadyLinkedToSamePatchRepo, Msg: "already linked to " + real}
		}
		return &plyerr.Error{
			Kind:          plyerr.AlreadyLinkedToDifferentPatchRepo,
			Msg:           "already linked to a different patch repo",
			PatchRepoPath: existing[0],
		}
	}

	_, err = r.git.Config(ctx, gitcli.ConfigAdd, patchRepoConfigKey, real)
	return err
}

// Unlink removes the ply.patchrepo git config key.
func (r *Repo) Unlink(ctx context.Context) error {
	existing, err := r.git.Config(ctx, gitcli.ConfigGet, patchRepoConfigKey, "")
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return &plyerr.Error{Kind: plyerr.NoLinkedPatchRepo}
	}
	_, err = r.git.Config(ctx, gitcli.ConfigUnset, patchRepoConfigKey, "")
	return err
}

// PatchRepoPath returns the linked patch repo's canonical path.
func (r *Repo) PatchRepoPath(ctx context.Context) (string, error) {
	vals, err := r.git.Config(ctx, gitcli.ConfigGet, patchRepoConfigKey, "")
	if err != nil {
		return "", err
	}
	if len(vals) == 0 {
		return "", &plyerr.Error{Kind: plyerr.NoLinkedPatchRepo}
	}
	return vals[0], nil
}

// PatchRepo returns a patchrepo.Repo for the linked patch repo.
func (r *Repo) PatchRepo(ctx context.Context) (*patchrepo.Repo, error) {
	path, err := r.PatchRepoPath(ctx)
	if err != nil {
		return nil, err
	}
	return patchrepo.New(path), nil
}

func (r *Repo) conflictPath() string { return filepath.Join(r.Path(), conflictFileName) }
func (r *Repo) statsPath() string    { return filepath.Join(r.Path(), restoreStatsFileName) }

// ConflictExists reports whether the conflict sentinel is present: the
// sole source of truth for "restore-in-progress".
func (r *Repo) ConflictExists() bool {
	_, err := os.Stat(r.conflictPath())
	return err == nil
}

func (r *Repo) writeConflict(name string) error {
	return os.WriteFile(r.conflictPath(), []byte(name+"\n"), 0o644)
}

func (r *Repo) readAndClearConflict() (string, error) {
	data, err := os.ReadFile(r.conflictPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", &plyerr.Error{Kind: plyerr.NothingToResolve}
		}
		return "", err
	}
	os.Remove(r.conflictPath())
	return strings.TrimSpace(string(data)), nil
}

// RestoreStats is the two-integer accumulator persisted across a
// (possibly multi-interruption) restore.
type RestoreStats struct {
	Updated int
	Removed int
}

func (r *Repo) readStats() RestoreStats {
	data, err := os.ReadFile(r.statsPath())
	if err != nil {
		return RestoreStats{}
	}
	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		return RestoreStats{}
	}
	updated, _ := strconv.Atoi(fields[0])
	removed, _ := strconv.Atoi(fields[1])
	return RestoreStats{Updated: updated, Removed: removed}
}

func (r *Repo) writeStats(s RestoreStats) error {
	return os.WriteFile(r.statsPath(), []byte(fmt.Sprintf("%d %d\n", s.Updated, s.Removed)), 0o644)
}

func (r *Repo) clearStats() { os.Remove(r.statsPath()) }

func (r *Repo) requireGitIdentity(ctx context.Context) error {
	for _, key := range []string{"user.name", "user.email"} {
		vals, err := r.git.Config(ctx, gitcli.ConfigGet, key, "")
		if err != nil {
			return err
		}
		if len(vals) == 0 {
			return &plyerr.Error{Kind: plyerr.GitConfigRequired, Msg: key + " is not configured"}
		}
	}
	return nil
}

func (r *Repo) addPatchAnnotation(ctx context.Context, name string) error {
	msg, err := r.git.Log(ctx, gitcli.LogOpts{Count: 1, Pretty: "%B"})
	if err != nil {
		return err
	}
	if strings.Contains(msg, "Ply-Patch") {
		return nil
	}
	newMsg := strings.TrimRight(msg, "\n") + "\n\nPly-Patch: " + name
	return r.git.Commit(ctx, newMsg, gitcli.CommitOpts{Amend: true})
}

func stripNumericPrefix(filename string) string {
	parts := strings.SplitN(filename, "-", 2)
	if len(parts) == 2 && parts[0] != "" && strings.Trim(parts[0], "0123456789") == "" {
		return parts[1]
	}
	return filename
}

// SaveOpts configures Save.
type SaveOpts struct {
	// Since is the caller-supplied starting ref. Empty derives it from
	// the last upstream commit hash (HEAD while region A is empty); an
	// empty Since with region A non-empty fails with NoPatchesApplied.
	Since string
	// Prefix, if set, is joined onto a patch name derived from its
	// filename (not onto one taken from an existing Ply-Patch
	// annotation, which is already a full patch name).
	Prefix string
}

// Save turns fresh working-repo commits since Since into patch files,
// reconciles them into the patch repo via syncPatches, then
// hard-resets and restores so the working repo ends up with
// Ply-Patch annotations on the recreated commits.
func (r *Repo) Save(ctx context.Context, opts SaveOpts) (patchrepo.SyncResult, error) {
	uncommitted, err := r.git.UncommittedChanges(ctx)
	if err != nil {
		return patchrepo.SyncResult{}, err
	}
	if uncommitted {
		return patchrepo.SyncResult{}, &plyerr.Error{Kind: plyerr.UncommittedChanges}
	}
	if err := r.requireGitIdentity(ctx); err != nil {
		return patchrepo.SyncResult{}, err
	}

	pr, err := r.PatchRepo(ctx)
	if err != nil {
		return patchrepo.SyncResult{}, err
	}
	prUncommitted, err := pr.Git().UncommittedChanges(ctx)
	if err != nil {
		return patchrepo.SyncResult{}, err
	}
	if prUncommitted {
		return patchrepo.SyncResult{}, &plyerr.Error{Kind: plyerr.UncommittedChanges, Msg: "patch repo has uncommitted changes"}
	}

	since := opts.Since
	if since == "" {
		applied, err := r.AppliedPatches(ctx)
		if err != nil {
			return patchrepo.SyncResult{}, err
		}
		if len(applied) != 0 {
			return patchrepo.SyncResult{}, &plyerr.Error{Kind: plyerr.NoPatchesApplied, Msg: "--since is required when patches are already applied"}
		}
		hash, err := r.LastUpstreamCommitHash(ctx)
		if err != nil {
			return patchrepo.SyncResult{}, err
		}
		since = hash
	}
	if strings.Contains(since, "..") {
		return patchrepo.SyncResult{}, fmt.Errorf("since ref %q: range syntax is not supported", since)
	}

	sinceMsg, err := r.git.Log(ctx, gitcli.LogOpts{Range: since, Count: 1, Pretty: "%B"})
	if err != nil {
		return patchrepo.SyncResult{}, err
	}
	parentPatchName := getPatchAnnotation(sinceMsg)

	filenames, err := r.git.FormatPatch(ctx, since, true, true, true)
	if err != nil {
		return patchrepo.SyncResult{}, err
	}

	sources := make([]patchrepo.Source, 0, len(filenames))
	for _, filename := range filenames {
		full := filepath.Join(r.Path(), filename)
		raw, err := os.ReadFile(full)
		if err != nil {
			return patchrepo.SyncResult{}, err
		}
		normalized, err := patchnorm.Normalize(raw)
		if err != nil {
			return patchrepo.SyncResult{}, err
		}

		name := getPatchAnnotation(string(raw))
		if name == "" {
			name = stripNumericPrefix(filename)
			if opts.Prefix != "" {
				name = filepath.Join(opts.Prefix, name)
			}
		}

		scratchPath := full + ".normalized"
		if err := os.WriteFile(scratchPath, normalized, 0o644); err != nil {
			return patchrepo.SyncResult{}, err
		}
		os.Remove(full)
		sources = append(sources, patchrepo.Source{Name: name, Path: scratchPath})
	}

	result, err := pr.SyncPatches(ctx, sources, parentPatchName)
	if err != nil {
		return patchrepo.SyncResult{}, err
	}

	series, err := pr.Series()
	if err != nil {
		return patchrepo.SyncResult{}, err
	}
	if err := r.git.Reset(ctx, fmt.Sprintf("HEAD~%d", len(series)), true); err != nil {
		return patchrepo.SyncResult{}, err
	}

	msg := fmt.Sprintf("Saving patches: %d added, %d updated, %d removed",
		len(result.Added), len(result.Updated), len(result.Removed))
	if _, err := r.Restore(ctx, RestoreOpts{Message: msg}); err != nil {
		return patchrepo.SyncResult{}, err
	}

	return result, nil
}

// RestoreOpts configures Restore.
type RestoreOpts struct {
	FetchRemotes bool
	// Message overrides the default patch-repo commit message written
	// on successful completion.
	Message string
}

// Restore re-applies the (recursive) series onto the working repo,
// skipping patches already present in region A, in series order. It is
// reentrant: a conflict leaves the sentinel and restore-stats in place
// so a subsequent call (after resolve/skip) picks up where it left off.
func (r *Repo) Restore(ctx context.Context, opts RestoreOpts) (RestoreStats, error) {
	if r.ConflictExists() {
		return RestoreStats{}, &plyerr.Error{Kind: plyerr.RestoreInProgress}
	}
	if err := r.requireGitIdentity(ctx); err != nil {
		return RestoreStats{}, err
	}
	if r.git.RebaseInProgress() {
		return RestoreStats{}, fmt.Errorf("a rebase is already in progress in %s", r.Path())
	}
	uncommitted, err := r.git.UncommittedChanges(ctx)
	if err != nil {
		return RestoreStats{}, err
	}
	if uncommitted {
		return RestoreStats{}, &plyerr.Error{Kind: plyerr.UncommittedChanges}
	}

	if opts.FetchRemotes {
		if err := r.git.Fetch(ctx, true); err != nil {
			return RestoreStats{}, err
		}
	}

	pr, err := r.PatchRepo(ctx)
	if err != nil {
		return RestoreStats{}, err
	}

	series, err := pr.Series()
	if err != nil {
		return RestoreStats{}, err
	}

	applied, err := r.AppliedPatches(ctx)
	if err != nil {
		return RestoreStats{}, err
	}
	appliedSet := make(map[string]bool, len(applied))
	for _, a := range applied {
		appliedSet[a.Name] = true
	}

	stats := r.readStats()

	for _, name := range series {
		if appliedSet[name] {
			continue
		}

		patchPath := filepath.Join(pr.Path(), name)
		amErr := r.git.Am(ctx, gitcli.AmOpts{Mode: gitcli.AmApply, ThreeWay: true, PatchPaths: []string{patchPath}})

		switch {
		case amErr == nil:
			if err := r.addPatchAnnotation(ctx, name); err != nil {
				return RestoreStats{}, err
			}
		case plyerr.Is(amErr, plyerr.PatchAlreadyApplied):
			if err := pr.RemovePatch(ctx, name); err != nil {
				return RestoreStats{}, err
			}
			stats.Removed++
		default:
			stats.Updated++
			if err := r.writeConflict(name); err != nil {
				return stats, err
			}
			if err := r.writeStats(stats); err != nil {
				return stats, err
			}
			return stats, amErr
		}
	}

	r.clearStats()

	prUncommitted, err := pr.Git().UncommittedChanges(ctx)
	if err != nil {
		return stats, err
	}
	if prUncommitted {
		based, err := r.LastUpstreamCommitHash(ctx)
		if err != nil {
			return stats, err
		}
		msg := opts.Message
		if msg == "" {
			msg = fmt.Sprintf("Refreshing patches: %d updated, %d removed", stats.Updated, stats.Removed)
		}
		msg += "\n\nPly-Based-On: " + based
		if err := pr.Git().Commit(ctx, msg, gitcli.CommitOpts{}); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

func seriesPredecessor(series []string, name string) string {
	for i, n := range series {
		if n == name {
			if i == 0 {
				return ""
			}
			return series[i-1]
		}
	}
	return ""
}

// Resolve completes a conflicted am (the user has staged a resolution),
// refreshes the affected patch file in place, adds the Ply-Patch
// annotation, and re-invokes Restore for the remainder of the series.
func (r *Repo) Resolve(ctx context.Context) (RestoreStats, error) {
	if !r.ConflictExists() {
		return RestoreStats{}, &plyerr.Error{Kind: plyerr.NothingToResolve}
	}
	name, err := r.readAndClearConflict()
	if err != nil {
		return RestoreStats{}, err
	}

	if err := r.git.Am(ctx, gitcli.AmOpts{Mode: gitcli.AmResolved}); err != nil {
		return RestoreStats{}, err
	}

	pr, err := r.PatchRepo(ctx)
	if err != nil {
		return RestoreStats{}, err
	}

	filenames, err := r.git.FormatPatch(ctx, "HEAD^", true, true, true)
	if err != nil {
		return RestoreStats{}, err
	}
	if len(filenames) != 1 {
		return RestoreStats{}, fmt.Errorf("resolve: expected exactly one regenerated patch, got %d", len(filenames))
	}

	full := filepath.Join(r.Path(), filenames[0])
	raw, err := os.ReadFile(full)
	if err != nil {
		return RestoreStats{}, err
	}
	normalized, err := patchnorm.Normalize(raw)
	if err != nil {
		return RestoreStats{}, err
	}
	scratchPath := full + ".normalized"
	if err := os.WriteFile(scratchPath, normalized, 0o644); err != nil {
		return RestoreStats{}, err
	}
	os.Remove(full)

	series, err := pr.Series()
	if err != nil {
		return RestoreStats{}, err
	}
	parent := seriesPredecessor(series, name)

	if _, err := pr.SyncPatches(ctx, []patchrepo.Source{{Name: name, Path: scratchPath}}, parent); err != nil {
		return RestoreStats{}, err
	}

	if err := r.addPatchAnnotation(ctx, name); err != nil {
		return RestoreStats{}, err
	}

	return r.Restore(ctx, RestoreOpts{})
}

// Skip drops the conflicted patch entirely (it's no longer relevant,
// e.g. because upstream made an equivalent change) and re-invokes
// Restore for the remainder of the series.
func (r *Repo) Skip(ctx context.Context) (RestoreStats, error) {
	if !r.ConflictExists() {
		return RestoreStats{}, &plyerr.Error{Kind: plyerr.NothingToResolve}
	}
	name, err := r.readAndClearConflict()
	if err != nil {
		return RestoreStats{}, err
	}

	if err := r.git.Am(ctx, gitcli.AmOpts{Mode: gitcli.AmSkip}); err != nil {
		return RestoreStats{}, err
	}

	pr, err := r.PatchRepo(ctx)
	if err != nil {
		return RestoreStats{}, err
	}
	if err := pr.RemovePatch(ctx, name); err != nil {
		return RestoreStats{}, err
	}

	return r.Restore(ctx, RestoreOpts{})
}

// Abort discards the in-progress am, clears the restore-stats file, and
// hard-resets to the last upstream hash (or HEAD if no patches had been
// applied). It never leaves the working tree with uncommitted changes.
func (r *Repo) Abort(ctx context.Context) error {
	if !r.ConflictExists() {
		return &plyerr.Error{Kind: plyerr.NothingToResolve}
	}
	if _, err := r.readAndClearConflict(); err != nil {
		return err
	}
	if err := r.git.Am(ctx, gitcli.AmOpts{Mode: gitcli.AmAbort}); err != nil {
		return err
	}
	r.clearStats()

	applied, err := r.AppliedPatches(ctx)
	if err != nil {
		return err
	}
	target := "HEAD"
	if len(applied) > 0 {
		hash, _, err := r.logOne(ctx, len(applied))
		if err != nil {
			return err
		}
		target = hash
	}
	return r.git.Reset(ctx, target, true)
}

// RollbackOpts configures Rollback.
type RollbackOpts struct {
	// LoseUncommitted bypasses the uncommitted-changes guard. Abort does
	// not go through Rollback; it computes its own reset target.
	LoseUncommitted bool
}

// Rollback resets the working tree hard to the last upstream commit.
func (r *Repo) Rollback(ctx context.Context, opts RollbackOpts) error {
	if !opts.LoseUncommitted {
		uncommitted, err := r.git.UncommittedChanges(ctx)
		if err != nil {
			return err
		}
		if uncommitted {
			return &plyerr.Error{Kind: plyerr.UncommittedChanges}
		}
	}

	applied, err := r.AppliedPatches(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return &plyerr.Error{Kind: plyerr.NoPatchesApplied}
	}
	hash, _, err := r.logOne(ctx, len(applied))
	if err != nil {
		return err
	}
	return r.git.Reset(ctx, hash, true)
}

// Status reports restore-in-progress, no-patches-applied, or
// all-patches-applied.
func (r *Repo) Status(ctx context.Context) (string, error) {
	if r.ConflictExists() {
		return "restore-in-progress", nil
	}
	applied, err := r.AppliedPatches(ctx)
	if err != nil {
		return "", err
	}
	if len(applied) == 0 {
		return "no-patches-applied", nil
	}
	return "all-patches-applied", nil
}

// CheckPatchRepo delegates to the linked patch repo's Check.
func (r *Repo) CheckPatchRepo(ctx context.Context) (patchrepo.CheckResult, error) {
	pr, err := r.PatchRepo(ctx)
	if err != nil {
		return patchrepo.CheckResult{}, err
	}
	return pr.Check()
}
