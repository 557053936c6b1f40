package seriesfile

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestReadSkipsBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "series")
	writeFile(t, path, "a.patch\n\nb.patch\n\n\nc.patch\n")

	s := New(path)
	got, err := s.Read()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a.patch", "b.patch", "c.patch"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Read() = %v, want %v", got, want)
	}
}

func TestReadMissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "series"))
	got, err := s.Read()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("Read() = %v, want empty", got)
	}
}

func TestMutateRewritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "series")
	writeFile(t, path, "a.patch\nb.patch\n")

	s := New(path)
	err := s.Mutate(func(entries []string) ([]string, error) {
		return append(entries, "c.patch"), nil
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Read()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a.patch", "b.patch", "c.patch"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("after Mutate, Read() = %v, want %v", got, want)
	}
}

// Mutate must still rewrite the file (with whatever partial list fn
// produced) even when fn itself errors, so a caller can detect and
// recover from partial mutation rather than have it silently
// discarded, and the caller still observes fn's error.
func TestMutatePersistsOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "series")
	writeFile(t, path, "a.patch\n")

	s := New(path)
	sentinel := os.ErrClosed
	err := s.Mutate(func(entries []string) ([]string, error) {
		return append(entries, "b.patch"), sentinel
	})
	if err != sentinel {
		t.Fatalf("Mutate error = %v, want sentinel", err)
	}

	got, err := s.Read()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a.patch", "b.patch"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("after failed Mutate, Read() = %v, want %v", got, want)
	}
}

func TestReadRecursiveExpandsIncludesDepthFirstLeftToRight(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "series"), "root.patch\n-i sub/series\ntail.patch\n")
	writeFile(t, filepath.Join(dir, "sub", "series"), "one.patch\n-i nested/series\ntwo.patch\n")
	writeFile(t, filepath.Join(dir, "sub", "nested", "series"), "deep.patch\n")

	s := New(filepath.Join(dir, "series"))
	got, err := s.ReadRecursive()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"root.patch",
		filepath.Join("sub", "one.patch"),
		filepath.Join("sub", "nested", "deep.patch"),
		filepath.Join("sub", "two.patch"),
		"tail.patch",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadRecursive() = %v, want %v", got, want)
	}
}
