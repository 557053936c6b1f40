package cmd

import (
	"errors"

	"github.com/rconradharris/ply/internal/plyerr"
)

var (
	errUncommittedChanges = errors.New("uncommitted changes, commit or discard before continuing")
	errRestoreInProgress  = errors.New("restore already in progress, resolve or abort before continuing")
	errNothingToResolve   = errors.New("nothing to resolve")
	errNothingToAbort     = errors.New("nothing to abort")
)

// conflictMessage describes how to continue after a patch failed to
// apply, distinguishing a three-way-merge conflict from a patch whose
// base blob is missing entirely.
func conflictMessage(err error) error {
	if plyerr.Is(err, plyerr.PatchBlobSHA1Invalid) {
		return errors.New("unable to threeway-merge. Manually apply '.git/rebase-apply/patch' " +
			"(git apply --reject usually works), `git add` the affected files, then run `ply resolve`")
	}
	return errors.New("patch did not apply cleanly. Threeway-merge was completed but resulted in conflicts: " +
		"fix conflicts in affected files, `git add` them, then run `ply resolve`")
}
