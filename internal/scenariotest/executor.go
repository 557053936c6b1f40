package scenariotest

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"text/template"

	"github.com/google/go-cmp/cmp"
)

// catSubstRE matches $(cat relative/path) so a scenario can splice a
// value captured by an earlier step (e.g. a commit hash redirected to
// a file) into a later command line, without a real shell expanding it.
var catSubstRE = regexp.MustCompile(`\$\(cat ([^)]+)\)`)

func (e *Executor) substitute(command string) string {
	return catSubstRE.ReplaceAllStringFunc(command, func(match string) string {
		m := catSubstRE.FindStringSubmatch(match)
		data, err := os.ReadFile(filepath.Join(e.execDir, m[1]))
		if err != nil {
			return match
		}
		return strings.TrimSpace(string(data))
	})
}

// RunPly invokes the ply command tree for one scenario step. Tests
// supply this so the package stays independent of the cobra command
// tree it's driving.
type RunPly func(args []string, dir string, stdout, stderr *bytes.Buffer)

// Executor runs a parsed Scenario against a scratch directory.
type Executor struct {
	tempDir    string
	execDir    string
	t          *testing.T
	run        RunPly
	lastOutput string
}

// NewExecutor creates an Executor rooted at a fresh temp directory. Git
// invocations made by the scenario (both shelled-out and ply's own) are
// pointed at a scratch global config so the run is hermetic: commits in
// repos the scenario never explicitly configures (e.g. the patch repo
// created by `ply init`) still have an identity, and the developer's
// real ~/.gitconfig can't leak in.
func NewExecutor(t *testing.T, run RunPly) (*Executor, error) {
	tempDir, err := os.MkdirTemp("", "ply-scenario-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	gitConfig := filepath.Join(tempDir, ".scenario-gitconfig")
	identity := "[user]\n\tname = Scenario Tester\n\temail = scenario@example.com\n"
	if err := os.WriteFile(gitConfig, []byte(identity), 0o644); err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to write scratch gitconfig: %w", err)
	}
	t.Setenv("GIT_CONFIG_GLOBAL", gitConfig)
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")

	return &Executor{tempDir: tempDir, execDir: tempDir, t: t, run: run}, nil
}

// Cleanup removes the scratch directory.
func (e *Executor) Cleanup() {
	if e.tempDir != "" {
		os.RemoveAll(e.tempDir)
	}
}

// Run executes every step of the scenario in order, verifying output
// immediately after each command.
func (e *Executor) Run(s *Scenario) error {
	if !isCommandAvailable("git") {
		e.t.Skip("git command not available")
		return nil
	}
	if err := e.setupFiles(s.Setup); err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}

	for i, step := range s.Script {
		if !step.IsCommand {
			e.t.Logf("# %s", step.Content)
			continue
		}
		content := e.substitute(step.Content)
		e.t.Logf("$ %s", content)
		e.lastOutput = ""

		fields := strings.Fields(content)
		switch {
		case len(fields) == 0:
		case fields[0] == "ply":
			e.executePly(content)
		case fields[0] == "cd":
			e.execDir = filepath.Join(e.execDir, fields[1])
		default:
			e.executeShell(content)
		}

		if err := e.verifyOutput(e.substitute(step.ExpectedOutput)); err != nil {
			return fmt.Errorf("output verification failed for step %d (`%s`):\n%w", i+1, content, err)
		}
	}
	return nil
}

func isCommandAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func (e *Executor) setupFiles(setup map[string]string) error {
	for relPath, content := range setup {
		full := filepath.Join(e.tempDir, relPath)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", relPath, err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", relPath, err)
		}
	}
	return nil
}

func (e *Executor) executePly(command string) {
	var out bytes.Buffer
	defer func() { e.lastOutput = out.String() }()

	args := strings.Fields(command)[1:]
	e.run(args, e.execDir, &out, &out)
}

func (e *Executor) executeShell(command string) {
	var out bytes.Buffer
	defer func() { e.lastOutput = out.String() }()

	cmd := exec.Command("/bin/bash", "-c", command)
	cmd.Dir = e.execDir
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.Run()
}

// verifyOutput treats expectedOutput as a text/template (so scenarios
// can reference {{.TempDir}}) and compares its rendering to the
// previous command's captured output.
func (e *Executor) verifyOutput(expectedTemplate string) error {
	tmpl, err := template.New("output").Parse(expectedTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse output template: %w", err)
	}
	var expectedBuf bytes.Buffer
	if err := tmpl.Execute(&expectedBuf, struct{ TempDir string }{TempDir: e.tempDir}); err != nil {
		return fmt.Errorf("failed to execute output template: %w", err)
	}
	expected := strings.TrimSpace(expectedBuf.String())
	actual := strings.TrimSpace(e.lastOutput)
	if actual != expected {
		return fmt.Errorf("output mismatch (-expected, +actual):\n%s", cmp.Diff(expected, actual))
	}
	return nil
}
