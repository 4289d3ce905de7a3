// Package apperr defines the sentinel errors shared across paramlens
// components. Store and workflow boundaries convert backend failures
// into these so callers can branch with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrExpiredCredential = errors.New("credential expired")
	ErrNoChanges         = errors.New("no changes")
	ErrNotPrivileged     = errors.New("not privileged")
	ErrTerminalState     = errors.New("contribution already finalized")
	ErrNoIdentity        = errors.New("no signed-in identity")
)
