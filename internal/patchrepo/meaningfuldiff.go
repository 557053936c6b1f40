package patchrepo

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// MeaningfulDiff reports whether oldPath and newPath differ in any way
// beyond cosmetic drift between two regenerations of the same underlying
// patch: a blob-SHA swap on an `index` line or a hunk-header line-number
// shift. Byte-identical files are not meaningfully different. It shells
// out to diff -u and classifies the unified diff it produces; a missing
// file makes diff fail and is returned as an error.
func (r *Repo) MeaningfulDiff(ctx context.Context, oldPath, newPath string) (bool, error) {
	out, err := runDiffU(ctx, oldPath, newPath)
	if err != nil {
		return false, err
	}
	return meaningfulDiffOutput(out), nil
}

func runDiffU(ctx context.Context, oldPath, newPath string) (string, error) {
	cmd := exec.CommandContext(ctx, "diff", "-u", oldPath, newPath)
	var out bytes.Buffer
	cmd.Stdout = &out
	err := cmd.Run()
	if err == nil {
		return out.String(), nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
		// Exit 1 means the files differ; that's the normal case, not a
		// failure of the diff invocation itself.
		return out.String(), nil
	}
	return "", fmt.Errorf("diff -u %s %s: %w", oldPath, newPath, err)
}

var (
	diffIndexLineRE  = regexp.MustCompile(`^index ([0-9a-f]+)\.\.([0-9a-f]+) (.+)$`)
	diffHunkHeaderRE = regexp.MustCompile(`^@@ [^@]* @@(.*)$`)
)

// meaningfulDiffOutput implements the comparator directly against
// unified-diff text (split out from MeaningfulDiff so it can be
// exercised with literal fixtures, without shelling out).
//
// A changed line-pair is ignorable when both lines are `index a..b mode`
// lines with the same mode (only the blob SHAs differ), or when both are
// patch hunk headers (`@@ ... @@ ...`, only the embedded line numbers
// differ). Any other change, or an unpaired addition/removal, is
// meaningful.
func meaningfulDiffOutput(diffOutput string) bool {
	lines := strings.Split(diffOutput, "\n")
	lines = dropDiffFileHeader(lines)

	i := 0
	for i < len(lines) {
		line := lines[i]
		switch {
		case line == "":
			i++
		case strings.HasPrefix(line, "@@ "):
			// diff's own hunk-position marker, not patch content.
			i++
		case strings.HasPrefix(line, "-"):
			if i+1 >= len(lines) || !strings.HasPrefix(lines[i+1], "+") {
				return true
			}
			if !ignorableChange(line[1:], lines[i+1][1:]) {
				return true
			}
			i += 2
		case strings.HasPrefix(line, "+"):
			return true
		default:
			i++
		}
	}
	return false
}

func dropDiffFileHeader(lines []string) []string {
	i := 0
	if i < len(lines) && strings.HasPrefix(lines[i], "--- ") {
		i++
	}
	if i < len(lines) && strings.HasPrefix(lines[i], "+++ ") {
		i++
	}
	return lines[i:]
}

func ignorableChange(oldLine, newLine string) bool {
	if m1 := diffIndexLineRE.FindStringSubmatch(oldLine); m1 != nil {
		m2 := diffIndexLineRE.FindStringSubmatch(newLine)
		return m2 != nil && m1[3] == m2[3]
	}
	h1 := diffHunkHeaderRE.FindStringSubmatch(oldLine)
	h2 := diffHunkHeaderRE.FindStringSubmatch(newLine)
	return h1 != nil && h2 != nil && h1[1] == h2[1]
}
