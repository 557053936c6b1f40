// Package gitcli is a thin, synchronous wrapper around the git
// subcommands the ply core needs. Every method runs git scoped to the
// Repo's path (via exec.Cmd.Dir, never a process-wide chdir) and
// returns either a structured result or a typed failure from
// internal/plyerr.
package gitcli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rconradharris/ply/internal/plyerr"
)

// Repo represents a git working tree at Path.
type Repo struct {
	Path string
}

// New returns a Repo rooted at path.
func New(path string) *Repo {
	return &Repo{Path: path}
}

func (r *Repo) run(ctx context.Context, args ...string) (stdout, stderr string, err error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Path
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	err = cmd.Run()
	return out.String(), errBuf.String(), err
}

func (r *Repo) runChecked(ctx context.Context, args ...string) (string, error) {
	stdout, stderr, err := r.run(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("git %s: %w (stderr: %s)", strings.Join(args, " "), err, strings.TrimSpace(stderr))
	}
	return stdout, nil
}

// Add stages path.
func (r *Repo) Add(ctx context.Context, path string) error {
	_, err := r.runChecked(ctx, "add", path)
	return err
}

// Rm removes path from the working tree and index. When force is true
// it passes --force (needed to remove files with staged content that
// differs from HEAD, which happens routinely for patch files).
func (r *Repo) Rm(ctx context.Context, path string, force bool) error {
	args := []string{"rm"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	_, err := r.runChecked(ctx, args...)
	return err
}

// CommitOpts configures Commit.
type CommitOpts struct {
	Amend           bool
	AllowEmpty      bool
	UseCommitObject string // -C <commit>: reuse an existing commit's message/authorship
}

// Commit commits staged changes with the given message (msg may be
// empty when UseCommitObject supplies the message).
func (r *Repo) Commit(ctx context.Context, msg string, opts CommitOpts) error {
	args := []string{"commit"}
	if msg != "" {
		args = append(args, "-m", msg)
	}
	if opts.Amend {
		args = append(args, "--amend")
	}
	if opts.AllowEmpty {
		args = append(args, "--allow-empty")
	}
	if opts.UseCommitObject != "" {
		args = append(args, "-C", opts.UseCommitObject)
	}
	_, err := r.runChecked(ctx, args...)
	return err
}

// AmMode selects which am(1) mode to invoke, replacing the mutually
// exclusive boolean kwargs of the original shim with an enum.
type AmMode int

const (
	AmApply AmMode = iota
	AmResolved
	AmSkip
	AmAbort
)

// AmOpts configures Am.
type AmOpts struct {
	Mode       AmMode
	ThreeWay   bool
	PatchPaths []string
}

// Am runs git am in the given mode and classifies the outcome into a
// plyerr.Kind on failure: PatchAlreadyApplied (success with that
// stdout marker), PatchBlobSHA1Invalid, or PatchDidNotApplyCleanly.
func (r *Repo) Am(ctx context.Context, opts AmOpts) error {
	args := []string{"am"}
	switch opts.Mode {
	case AmResolved:
		args = append(args, "--resolved")
	case AmSkip:
		args = append(args, "--skip")
	case AmAbort:
		args = append(args, "--abort")
	}
	if opts.Mode == AmApply && opts.ThreeWay {
		args = append(args, "--3way")
	}
	args = append(args, opts.PatchPaths...)

	stdout, stderr, err := r.run(ctx, args...)
	if err == nil {
		if strings.Contains(stdout, "atch already applied") || strings.Contains(stderr, "atch already applied") {
			return &plyerr.Error{Kind: plyerr.PatchAlreadyApplied, Msg: "patch already applied"}
		}
		return nil
	}
	if strings.Contains(stderr, "sha1 information is lacking or useless") {
		return &plyerr.Error{Kind: plyerr.PatchBlobSHA1Invalid, Msg: "patch references a blob not present locally", Err: err}
	}
	return &plyerr.Error{Kind: plyerr.PatchDidNotApplyCleanly, Msg: strings.TrimSpace(stderr), Err: err}
}

// FormatPatch runs git format-patch since ... and returns the
// generated filenames (relative to Path) in order.
func (r *Repo) FormatPatch(ctx context.Context, since string, keepSubject, noNumbered, noStat bool) ([]string, error) {
	args := []string{"format-patch"}
	if keepSubject {
		args = append(args, "--keep-subject")
	}
	if noNumbered {
		args = append(args, "--no-numbered")
	}
	if noStat {
		args = append(args, "--no-stat")
	}
	args = append(args, since)
	stdout, err := r.runChecked(ctx, args...)
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(stdout), nil
}

// LogOpts configures Log.
type LogOpts struct {
	Range  string
	Count  int // 0 means unspecified
	Skip   int
	Pretty string
}

// Log returns raw git log stdout.
func (r *Repo) Log(ctx context.Context, opts LogOpts) (string, error) {
	args := []string{"log"}
	if opts.Pretty != "" {
		args = append(args, "--pretty="+opts.Pretty)
	}
	if opts.Count > 0 {
		args = append(args, fmt.Sprintf("-%d", opts.Count))
	}
	if opts.Skip > 0 {
		args = append(args, fmt.Sprintf("--skip=%d", opts.Skip))
	}
	if opts.Range != "" {
		args = append(args, opts.Range)
	}
	return r.runChecked(ctx, args...)
}

// Reset runs git reset [--hard] ref.
func (r *Repo) Reset(ctx context.Context, ref string, hard bool) error {
	args := []string{"reset", ref}
	if hard {
		args = append(args, "--hard")
	}
	_, err := r.runChecked(ctx, args...)
	return err
}

// CheckoutOpts configures Checkout.
type CheckoutOpts struct {
	Create      bool // -b
	CreateForce bool // -B
}

// Checkout runs git checkout [-b|-B] branch.
func (r *Repo) Checkout(ctx context.Context, branch string, opts CheckoutOpts) error {
	args := []string{"checkout"}
	switch {
	case opts.CreateForce:
		args = append(args, "-B")
	case opts.Create:
		args = append(args, "-b")
	}
	args = append(args, branch)
	_, err := r.runChecked(ctx, args...)
	return err
}

// Fetch runs git fetch [--all].
func (r *Repo) Fetch(ctx context.Context, all bool) error {
	args := []string{"fetch"}
	if all {
		args = append(args, "--all")
	}
	_, err := r.runChecked(ctx, args...)
	return err
}

// Init runs git init [-q] <path>, creating Path's parent directories
// first if necessary.
func (r *Repo) Init(ctx context.Context, quiet bool) error {
	if err := os.MkdirAll(r.Path, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", r.Path, err)
	}
	args := []string{"init"}
	if quiet {
		args = append(args, "-q")
	}
	args = append(args, r.Path)
	// init runs before Path necessarily has a .git dir, so don't scope
	// via Dir=r.Path for the subprocess — pass the path as an argument
	// instead (git init handles a nonexistent-but-creatable directory).
	cmd := exec.CommandContext(ctx, "git", args...)
	var errBuf bytes.Buffer
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git init %s: %w (stderr: %s)", r.Path, err, strings.TrimSpace(errBuf.String()))
	}
	return nil
}

// Clone runs git clone src Path.
func (r *Repo) Clone(ctx context.Context, src string) error {
	cmd := exec.CommandContext(ctx, "git", "clone", src, r.Path)
	var errBuf bytes.Buffer
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git clone %s %s: %w (stderr: %s)", src, r.Path, err, strings.TrimSpace(errBuf.String()))
	}
	return nil
}

// ConfigCmd selects the git config subcommand.
type ConfigCmd int

const (
	ConfigGet ConfigCmd = iota
	ConfigAdd
	ConfigUnset
)

// Config runs git config get/add/unset and returns the (possibly
// empty) list of non-blank output lines.
func (r *Repo) Config(ctx context.Context, cmd ConfigCmd, key, value string) ([]string, error) {
	args := []string{"config"}
	switch cmd {
	case ConfigGet:
		args = append(args, "--get", key)
	case ConfigAdd:
		args = append(args, "--add", key, value)
	case ConfigUnset:
		args = append(args, "--unset", key)
	default:
		return nil, fmt.Errorf("unknown config command %v", cmd)
	}
	stdout, stderr, err := r.run(ctx, args...)
	if err != nil {
		if cmd == ConfigGet {
			// git config --get exits 1 when the key is unset; treat
			// that as "no value" rather than an error.
			if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("git %s: %w (stderr: %s)", strings.Join(args, " "), err, strings.TrimSpace(stderr))
	}
	return splitNonEmptyLines(stdout), nil
}

// DiffIndex runs git diff-index treeish [--name-only].
func (r *Repo) DiffIndex(ctx context.Context, treeish string, nameOnly bool) ([]string, error) {
	args := []string{"diff-index", treeish}
	if nameOnly {
		args = append(args, "--name-only")
	}
	stdout, err := r.runChecked(ctx, args...)
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(stdout), nil
}

// RebaseInProgress reports whether .git/rebase-apply exists.
func (r *Repo) RebaseInProgress() bool {
	_, err := os.Stat(filepath.Join(r.Path, ".git", "rebase-apply"))
	return err == nil
}

// UncommittedChanges reports whether diff-index HEAD yields any paths.
func (r *Repo) UncommittedChanges(ctx context.Context) (bool, error) {
	paths, err := r.DiffIndex(ctx, "HEAD", true)
	if err != nil {
		return false, err
	}
	return len(paths) != 0, nil
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
