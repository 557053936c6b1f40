// Package patchnorm deterministically rewrites a raw format-patch mbox
// so that regenerating an unchanged patch yields a byte-identical
// file. It is pure: Normalize operates on a line slice and touches no
// filesystem or subprocess state, so it is unit-testable without I/O.
package patchnorm

import (
	"regexp"
	"strings"
)

// patchGitVersion is the hard-coded replacement for the trailing
// git-version signature line emitted by `git format-patch`. The exact
// value is cosmetic; what matters is that it never changes across
// regenerations of the same logical patch.
const patchGitVersion = "2.39.0"

// fromSHA1Placeholder replaces the commit hash on the first `From `
// header line, which otherwise differs on every regeneration.
const fromSHA1Placeholder = "ply"

var (
	plyPatchLineRE   = regexp.MustCompile(`Ply-Patch:`)
	gitVersionLineRE = regexp.MustCompile(`^[0-9]+(\.[0-9A-Za-z.-]+)*`)
)

// Normalize applies, in order: From-header SHA replacement, Ply-Patch
// annotation-line removal, blank-line collapse before the first
// `diff --git` line, and git-version trailer rewrite. It is
// idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw []byte) ([]byte, error) {
	lines := strings.Split(string(raw), "\n")

	if err := replaceFromSHA1(lines); err != nil {
		return nil, err
	}
	lines = removePlyPatchAnnotation(lines)
	lines = collapseBlankLinesBeforeDiff(lines)
	if err := replaceGitVersion(lines); err != nil {
		return nil, err
	}

	return []byte(strings.Join(lines, "\n")), nil
}

// replaceFromSHA1 rewrites the SHA1 on the first `From ` header line.
func replaceFromSHA1(lines []string) error {
	idx := -1
	for i, line := range lines {
		if strings.HasPrefix(line, "From ") {
			idx = i
			break
		}
	}
	if idx == -1 {
		return errMalformed("From header not found")
	}
	parts := strings.Split(lines[idx], " ")
	if len(parts) < 2 {
		return errMalformed("From header missing SHA1 field")
	}
	parts[1] = fromSHA1Placeholder
	lines[idx] = strings.Join(parts, " ")
	return nil
}

// replaceGitVersion rewrites the trailing git-version signature line —
// the last non-blank line matching ^<digit>.<...> — to the hard-coded
// version string.
func replaceGitVersion(lines []string) error {
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if line == "" {
			continue
		}
		if gitVersionLineRE.MatchString(line) && strings.Contains(line, ".") {
			lines[i] = patchGitVersion
			return nil
		}
		break
	}
	return errMalformed("git version trailer not found")
}

// removePlyPatchAnnotation drops every line containing a Ply-Patch:
// annotation; it's in-repo metadata, not patch metadata.
func removePlyPatchAnnotation(lines []string) []string {
	out := lines[:0:0]
	for _, line := range lines {
		if plyPatchLineRE.MatchString(line) {
			continue
		}
		out = append(out, line)
	}
	return out
}

// collapseBlankLinesBeforeDiff collapses two consecutive blank lines
// immediately preceding the first `diff --git` line to one, masking
// formatting drift between format-patch versions.
func collapseBlankLinesBeforeDiff(lines []string) []string {
	idx := -1
	for i, line := range lines {
		if strings.HasPrefix(line, "diff --git") {
			idx = i
			break
		}
	}
	if idx < 2 {
		return lines
	}
	if strings.TrimSpace(lines[idx-1]) == "" && strings.TrimSpace(lines[idx-2]) == "" {
		out := make([]string, 0, len(lines)-1)
		out = append(out, lines[:idx-1]...)
		out = append(out, lines[idx:]...)
		return out
	}
	return lines
}

type malformedError string

func (e malformedError) Error() string { return "malformed patch: " + string(e) }

func errMalformed(msg string) error { return malformedError(msg) }
