// Package plyerr defines the distinguished error kinds surfaced by the
// ply core (save/restore/resolve/skip/abort/rollback and their
// supporting components). Callers that need to branch on the specific
// failure use errors.Is/errors.As against the types below rather than
// string-matching messages.
package plyerr

import (
	"errors"
	"fmt"
)

// Kind identifies a distinguished error condition.
type Kind int

const (
	_ Kind = iota
	NoLinkedPatchRepo
	AlreadyLinkedToSamePatchRepo
	AlreadyLinkedToDifferentPatchRepo
	PathNotFound
	UncommittedChanges
	NoPatchesApplied
	RestoreInProgress
	NothingToResolve
	GitConfigRequired
	PatchDidNotApplyCleanly
	PatchBlobSHA1Invalid
	PatchAlreadyApplied
)

func (k Kind) String() string {
	switch k {
	case NoLinkedPatchRepo:
		return "NoLinkedPatchRepo"
	case AlreadyLinkedToSamePatchRepo:
		return "AlreadyLinkedToSamePatchRepo"
	case AlreadyLinkedToDifferentPatchRepo:
		return "AlreadyLinkedToDifferentPatchRepo"
	case PathNotFound:
		return "PathNotFound"
	case UncommittedChanges:
		return "UncommittedChanges"
	case NoPatchesApplied:
		return "NoPatchesApplied"
	case RestoreInProgress:
		return "RestoreInProgress"
	case NothingToResolve:
		return "NothingToResolve"
	case GitConfigRequired:
		return "GitConfigRequired"
	case PatchDidNotApplyCleanly:
		return "PatchDidNotApplyCleanly"
	case PatchBlobSHA1Invalid:
		return "PatchBlobSHA1Invalid"
	case PatchAlreadyApplied:
		return "PatchAlreadyApplied"
	default:
		return "Unknown"
	}
}

// Error wraps a Kind with context. It satisfies errors.Unwrap so
// underlying git/os errors remain inspectable, and errors.Is treats any
// *Error with the same Kind as equal (regardless of message), which is
// how callers distinguish error kinds.
type Error struct {
	Kind Kind
	// Msg is a human-readable detail shown by the CLI; it never
	// changes the Kind that errors.Is compares against.
	Msg string
	// Err is the underlying cause, if any (e.g. the *exec.ExitError
	// from a failed git invocation).
	Err error

	// PatchRepoPath carries the already-linked path for
	// AlreadyLinkedToDifferentPatchRepo, mirroring the Python
	// original's exception attribute of the same name.
	PatchRepoPath string
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a *Error with the same Kind, so that
// errors.Is(err, plyerr.New(RestoreInProgress, "")) works regardless of
// message text.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs an *Error of the given kind with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an *Error of the given kind wrapping an underlying
// error, with an optional message; when msg is non-empty, Error()
// returns it alone, without the wrapped error's text.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err's chain contains a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
