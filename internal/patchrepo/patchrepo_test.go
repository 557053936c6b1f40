package patchrepo

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/rconradharris/ply/internal/gitcli"
)

func skipUnlessGitAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git command not available")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// scratchSource writes content to a file outside the patch repo (as
// save() would into a temp format-patch directory) and returns a Source
// naming it for SyncPatches.
func scratchSource(t *testing.T, dir, name, content string) Source {
	t.Helper()
	path := filepath.Join(dir, strings.ReplaceAll(name, "/", "_"))
	writeFile(t, path, content)
	return Source{Name: name, Path: path}
}

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	skipUnlessGitAvailable(t)
	dir := t.TempDir()
	r := New(dir)
	if err := r.Initialize(context.Background(), true); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	for _, kv := range [][2]string{{"user.email", "ply@example.com"}, {"user.name", "ply"}} {
		cmd := exec.Command("git", "config", kv[0], kv[1])
		cmd.Dir = dir
		if err := cmd.Run(); err != nil {
			t.Fatal(err)
		}
	}
	return r
}

func TestCheckOK(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "series"), "a.patch\nb.patch\n")
	writeFile(t, filepath.Join(dir, "a.patch"), "patch a")
	writeFile(t, filepath.Join(dir, "b.patch"), "patch b")

	r := New(dir)
	got, err := r.Check()
	if err != nil {
		t.Fatal(err)
	}
	if !got.OK {
		t.Errorf("Check() = %+v, want ok", got)
	}
}

func TestCheckDetectsMissingAndOrphanFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "series"), "a.patch\nmissing.patch\n")
	writeFile(t, filepath.Join(dir, "a.patch"), "patch a")
	writeFile(t, filepath.Join(dir, "orphan.patch"), "patch orphan")

	r := New(dir)
	got, err := r.Check()
	if err != nil {
		t.Fatal(err)
	}
	if got.OK {
		t.Fatalf("Check() = %+v, want drift", got)
	}
	if !reflect.DeepEqual(got.NoFile, []string{"missing.patch"}) {
		t.Errorf("NoFile = %v", got.NoFile)
	}
	if !reflect.DeepEqual(got.NoSeriesEntry, []string{"orphan.patch"}) {
		t.Errorf("NoSeriesEntry = %v", got.NoSeriesEntry)
	}
}

func TestSyncPatchesClassifiesAndReordersSeries(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	scratch := t.TempDir()

	// Seed an existing series: first.patch (never touched again),
	// second.patch (will be updated), stale.patch (will be removed).
	first := scratchSource(t, scratch, "first.patch", "first content\n")
	second := scratchSource(t, scratch, "second.patch", "second content v1\n")
	stale := scratchSource(t, scratch, "stale.patch", "stale content\n")
	if _, err := r.SyncPatches(ctx, []Source{first, second, stale}, ""); err != nil {
		t.Fatalf("seed SyncPatches: %v", err)
	}
	if err := r.Git().Commit(ctx, "seed", gitcli.CommitOpts{}); err != nil {
		t.Fatalf("commit seed: %v", err)
	}

	// Resave: first.patch is at-or-before the parent so it's left alone
	// even though it isn't in this batch; second.patch's content
	// changes; stale.patch disappears (removed); third.patch is new.
	secondV2 := scratchSource(t, scratch, "second.patch", "second content v2\n")
	third := scratchSource(t, scratch, "third.patch", "third content\n")

	result, err := r.SyncPatches(ctx, []Source{secondV2, third}, "first.patch")
	if err != nil {
		t.Fatalf("SyncPatches: %v", err)
	}

	if !reflect.DeepEqual(result.Added, []string{"third.patch"}) {
		t.Errorf("Added = %v", result.Added)
	}
	if !reflect.DeepEqual(result.Updated, []string{"second.patch"}) {
		t.Errorf("Updated = %v", result.Updated)
	}
	if len(result.Skipped) != 0 {
		t.Errorf("Skipped = %v, want none", result.Skipped)
	}
	if !reflect.DeepEqual(result.Removed, []string{"stale.patch"}) {
		t.Errorf("Removed = %v", result.Removed)
	}

	series, err := r.Series()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"first.patch", "second.patch", "third.patch"}
	if !reflect.DeepEqual(series, want) {
		t.Errorf("Series() = %v, want %v", series, want)
	}

	got, err := os.ReadFile(filepath.Join(r.Path(), "second.patch"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second content v2\n" {
		t.Errorf("second.patch content = %q", got)
	}
	if _, err := os.Stat(filepath.Join(r.Path(), "stale.patch")); !os.IsNotExist(err) {
		t.Errorf("stale.patch should have been removed, stat err = %v", err)
	}
}

func TestSyncPatchesSkipsByteIdenticalPatches(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	scratch := t.TempDir()

	a := scratchSource(t, scratch, "a.patch", "unchanged\n")
	if _, err := r.SyncPatches(ctx, []Source{a}, ""); err != nil {
		t.Fatalf("seed SyncPatches: %v", err)
	}

	aAgain := scratchSource(t, scratch, "a.patch", "unchanged\n")
	result, err := r.SyncPatches(ctx, []Source{aAgain}, "")
	if err != nil {
		t.Fatalf("SyncPatches: %v", err)
	}
	if !reflect.DeepEqual(result.Skipped, []string{"a.patch"}) {
		t.Errorf("Skipped = %v, want [a.patch]", result.Skipped)
	}
	if len(result.Updated) != 0 || len(result.Added) != 0 {
		t.Errorf("result = %+v, want only a skip", result)
	}
}

func TestPatchDependenciesBuildsFileKeyedGraph(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "series"), "001-base.patch\n002-follow-up.patch\n")
	writeFile(t, filepath.Join(dir, "001-base.patch"), "--- a/lib/foo.go\n+++ b/lib/foo.go\n@@ -1 +1 @@\n-old\n+new\n")
	writeFile(t, filepath.Join(dir, "002-follow-up.patch"), "--- a/lib/foo.go\n+++ b/lib/foo.go\n@@ -1 +1 @@\n-new\n+newer\n")

	r := New(dir)
	deps, err := r.PatchDependencies()
	if err != nil {
		t.Fatal(err)
	}
	key := [2]string{"002-follow-up.patch", "001-base.patch"}
	files, ok := deps[key]
	if !ok {
		t.Fatalf("deps = %v, missing key %v", deps, key)
	}
	if !files["lib/foo.go"] {
		t.Errorf("deps[%v] = %v, want lib/foo.go", key, files)
	}

	dot, err := r.PatchDependencyDotGraph()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"digraph patches", "002-follow-up.patch", "001-base.patch"} {
		if !strings.Contains(dot, want) {
			t.Errorf("dot graph missing %q:\n%s", want, dot)
		}
	}
}
