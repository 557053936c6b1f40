package gitcli

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rconradharris/ply/internal/plyerr"
)

func skipUnlessGitAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git command not available")
	}
}

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	skipUnlessGitAvailable(t)

	dir := t.TempDir()
	r := New(dir)
	ctx := context.Background()
	if err := r.Init(ctx, true); err != nil {
		t.Fatalf("Init: %v", err)
	}
	for _, kv := range [][2]string{{"user.email", "ply@example.com"}, {"user.name", "ply"}} {
		if _, err := r.Config(ctx, ConfigAdd, kv[0], kv[1]); err != nil {
			t.Fatalf("Config %s: %v", kv[0], err)
		}
	}
	return r
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func commitFile(t *testing.T, r *Repo, relpath, content, msg string) {
	t.Helper()
	ctx := context.Background()
	writeFile(t, filepath.Join(r.Path, relpath), content)
	if err := r.Add(ctx, relpath); err != nil {
		t.Fatalf("Add %s: %v", relpath, err)
	}
	if err := r.Commit(ctx, msg, CommitOpts{}); err != nil {
		t.Fatalf("Commit %q: %v", msg, err)
	}
}

func TestAddCommitLogRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	commitFile(t, r, "a.txt", "hello\n", "first commit")

	out, err := r.Log(ctx, LogOpts{Count: 1, Pretty: "%s"})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if strings.TrimSpace(out) != "first commit" {
		t.Errorf("Log subject = %q, want %q", strings.TrimSpace(out), "first commit")
	}
}

func TestCommitAmendRewritesMessage(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	commitFile(t, r, "a.txt", "hello\n", "original message")
	if err := r.Commit(ctx, "amended message", CommitOpts{Amend: true}); err != nil {
		t.Fatalf("Commit --amend: %v", err)
	}

	out, err := r.Log(ctx, LogOpts{Pretty: "%s"})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	subjects := strings.Split(strings.TrimSpace(out), "\n")
	if len(subjects) != 1 || subjects[0] != "amended message" {
		t.Errorf("Log subjects = %v, want just the amended message", subjects)
	}
}

func TestUncommittedChanges(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	commitFile(t, r, "a.txt", "hello\n", "first commit")

	dirty, err := r.UncommittedChanges(ctx)
	if err != nil {
		t.Fatalf("UncommittedChanges: %v", err)
	}
	if dirty {
		t.Error("UncommittedChanges() = true on a clean tree")
	}

	writeFile(t, filepath.Join(r.Path, "a.txt"), "changed\n")
	if err := r.Add(ctx, "a.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	dirty, err = r.UncommittedChanges(ctx)
	if err != nil {
		t.Fatalf("UncommittedChanges: %v", err)
	}
	if !dirty {
		t.Error("UncommittedChanges() = false with staged edits")
	}
}

func TestConfigGetUnsetKeyReturnsNoValue(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	vals, err := r.Config(ctx, ConfigGet, "ply.nonexistent", "")
	if err != nil {
		t.Fatalf("Config --get on unset key: %v", err)
	}
	if vals != nil {
		t.Errorf("Config --get = %v, want no value", vals)
	}
}

func TestConfigAddGetUnsetRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	if _, err := r.Config(ctx, ConfigAdd, "ply.patchrepo", "/tmp/patches"); err != nil {
		t.Fatalf("Config --add: %v", err)
	}
	vals, err := r.Config(ctx, ConfigGet, "ply.patchrepo", "")
	if err != nil {
		t.Fatalf("Config --get: %v", err)
	}
	if len(vals) != 1 || vals[0] != "/tmp/patches" {
		t.Errorf("Config --get = %v, want [/tmp/patches]", vals)
	}
	if _, err := r.Config(ctx, ConfigUnset, "ply.patchrepo", ""); err != nil {
		t.Fatalf("Config --unset: %v", err)
	}
	vals, err = r.Config(ctx, ConfigGet, "ply.patchrepo", "")
	if err != nil {
		t.Fatalf("Config --get after unset: %v", err)
	}
	if vals != nil {
		t.Errorf("Config --get after unset = %v, want no value", vals)
	}
}

func TestFormatPatchProducesOrderedFiles(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	commitFile(t, r, "a.txt", "one\n", "base")
	base, err := r.Log(ctx, LogOpts{Count: 1, Pretty: "%H"})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	base = strings.TrimSpace(base)

	commitFile(t, r, "a.txt", "one\ntwo\n", "add line two")
	commitFile(t, r, "a.txt", "one\ntwo\nthree\n", "add line three")

	filenames, err := r.FormatPatch(ctx, base, true, true, true)
	if err != nil {
		t.Fatalf("FormatPatch: %v", err)
	}
	if len(filenames) != 2 {
		t.Fatalf("FormatPatch = %v, want two files", filenames)
	}
	if !strings.Contains(filenames[0], "add-line-two") || !strings.Contains(filenames[1], "add-line-three") {
		t.Errorf("FormatPatch order = %v, want [add-line-two add-line-three]", filenames)
	}
	for _, f := range filenames {
		if _, err := os.Stat(filepath.Join(r.Path, f)); err != nil {
			t.Errorf("generated file %s missing: %v", f, err)
		}
	}
}

func TestResetHardDropsCommit(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	commitFile(t, r, "a.txt", "one\n", "base")
	commitFile(t, r, "a.txt", "one\ntwo\n", "extra")

	if err := r.Reset(ctx, "HEAD~1", true); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(r.Path, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "one\n" {
		t.Errorf("a.txt = %q after hard reset, want base content", got)
	}
}

func TestAmAppliesCleanPatch(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	commitFile(t, r, "a.txt", "one\n", "base")
	commitFile(t, r, "a.txt", "one\ntwo\n", "add line two")

	filenames, err := r.FormatPatch(ctx, "HEAD^", true, true, true)
	if err != nil || len(filenames) != 1 {
		t.Fatalf("FormatPatch = %v, %v", filenames, err)
	}
	patchPath := filepath.Join(r.Path, filenames[0])

	if err := r.Reset(ctx, "HEAD~1", true); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	// The reset leaves the generated patch file untracked in the work
	// tree; am and UncommittedChanges (diff-index) both ignore it.
	if err := r.Am(ctx, AmOpts{Mode: AmApply, ThreeWay: true, PatchPaths: []string{patchPath}}); err != nil {
		t.Fatalf("Am: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(r.Path, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "one\ntwo\n" {
		t.Errorf("a.txt = %q after am, want patched content", got)
	}
}

func TestAmClassifiesAlreadyApplied(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	commitFile(t, r, "a.txt", "one\n", "base")
	commitFile(t, r, "a.txt", "one\ntwo\n", "add line two")

	filenames, err := r.FormatPatch(ctx, "HEAD^", true, true, true)
	if err != nil || len(filenames) != 1 {
		t.Fatalf("FormatPatch = %v, %v", filenames, err)
	}
	patchPath := filepath.Join(r.Path, filenames[0])

	err = r.Am(ctx, AmOpts{Mode: AmApply, ThreeWay: true, PatchPaths: []string{patchPath}})
	if !plyerr.Is(err, plyerr.PatchAlreadyApplied) {
		t.Errorf("Am on applied change err = %v, want PatchAlreadyApplied", err)
	}
}

func TestAmClassifiesConflictAndAbortRecovers(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	commitFile(t, r, "a.txt", "one\n", "base")
	commitFile(t, r, "a.txt", "one patched\n", "downstream edit")

	filenames, err := r.FormatPatch(ctx, "HEAD^", true, true, true)
	if err != nil || len(filenames) != 1 {
		t.Fatalf("FormatPatch = %v, %v", filenames, err)
	}
	patchPath := filepath.Join(r.Path, filenames[0])

	if err := r.Reset(ctx, "HEAD~1", true); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	commitFile(t, r, "a.txt", "one diverged\n", "conflicting upstream edit")

	err = r.Am(ctx, AmOpts{Mode: AmApply, ThreeWay: true, PatchPaths: []string{patchPath}})
	if !plyerr.Is(err, plyerr.PatchDidNotApplyCleanly) {
		t.Fatalf("Am err = %v, want PatchDidNotApplyCleanly", err)
	}
	if !r.RebaseInProgress() {
		t.Error("RebaseInProgress() = false mid-am")
	}

	if err := r.Am(ctx, AmOpts{Mode: AmAbort}); err != nil {
		t.Fatalf("Am --abort: %v", err)
	}
	if r.RebaseInProgress() {
		t.Error("RebaseInProgress() = true after abort")
	}
}

func TestRebaseInProgressFalseOnIdleRepo(t *testing.T) {
	r := newTestRepo(t)
	if r.RebaseInProgress() {
		t.Error("RebaseInProgress() = true on an idle repo")
	}
}
