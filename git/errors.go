// Package git provides sentinel errors for common git operations.
// All errors can be checked using errors.Is() for programmatic handling.
package git

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"

	mserrors "github.com/input-output-hk/catalyst-forge-libs/modelsync/errors"
)

// Common sentinel errors that can be checked with errors.Is().
// These wrap underlying go-git errors while providing a stable API for consumers.

// ErrAlreadyUpToDate is returned when fetch or push operations result in no
// changes because the local and remote states are already synchronized.
var ErrAlreadyUpToDate = errors.New("already up to date")

// ErrAuthRequired is returned when an operation requires authentication
// but no credentials were provided or available.
var ErrAuthRequired = errors.New("authentication required")

// ErrAuthFailed is returned when authentication was attempted but failed
// (invalid credentials, expired tokens, etc.).
var ErrAuthFailed = errors.New("authentication failed")

// ErrBranchExists is returned when attempting to create a branch that already exists.
var ErrBranchExists = errors.New("branch already exists")

// ErrBranchMissing is returned when attempting to operate on a branch that does not exist.
var ErrBranchMissing = errors.New("branch does not exist")

// ErrTagExists is returned when attempting to create a tag that already exists.
var ErrTagExists = errors.New("tag already exists")

// ErrNotFastForward is returned when a remote rejects an update that is not
// a fast-forward.
var ErrNotFastForward = errors.New("not a fast-forward")

// ErrInvalidRef is returned when a reference name or revision specification
// is malformed or invalid according to git's reference naming rules.
var ErrInvalidRef = errors.New("invalid reference")

// ErrResolveFailed is returned when a revision specification cannot be resolved
// to a valid commit hash (e.g., branch/tag doesn't exist, invalid SHA).
var ErrResolveFailed = errors.New("cannot resolve revision")

// ErrEmptyCommit is returned when a commit would record no changes.
var ErrEmptyCommit = errors.New("nothing to commit")

// ErrBareRepository is returned by operations that need a working copy.
var ErrBareRepository = errors.New("repository has no working copy")

// ErrNoRemote is returned when the repository has no remote configured.
var ErrNoRemote = errors.New("no remote configured")

// ErrMergeInProgress is returned when an operation would clobber an
// unfinished merge.
var ErrMergeInProgress = errors.New("merge in progress")

// ErrNoIdentity is returned when no user name and email are configured.
var ErrNoIdentity = errors.New("user identity not configured")

// WrapError wraps an error with additional context while preserving
// the ability to check against sentinel errors using errors.Is().
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// WrapErrorf wraps an error with formatted additional context while preserving
// the ability to check against sentinel errors using errors.Is().
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// networkError classifies an error returned by a go-git network operation
// and wraps it in a coded error for op.
func networkError(err error, op string) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return mserrors.Wrap(err, mserrors.CodeCancelled, op, "network operation cancelled")
	case errors.Is(err, transport.ErrAuthenticationRequired):
		return mserrors.Wrap(WrapError(ErrAuthRequired, err.Error()), mserrors.CodeTransport, op, "remote requires authentication")
	case errors.Is(err, transport.ErrAuthorizationFailed), errors.Is(err, transport.ErrInvalidAuthMethod):
		return mserrors.Wrap(WrapError(ErrAuthFailed, err.Error()), mserrors.CodeTransport, op, "remote rejected credentials")
	case isNoMatchingRefSpec(err):
		return mserrors.Wrap(err, mserrors.CodeRefNotAdvertised, op, "remote does not advertise the branch")
	case errors.Is(err, git.ErrRemoteNotFound):
		return mserrors.Wrap(WrapError(ErrNoRemote, err.Error()), mserrors.CodeInvalidInput, op, "remote not configured")
	default:
		return mserrors.Wrap(err, mserrors.CodeTransport, op, "network operation failed")
	}
}

// isTransportFailure reports whether err means the remote could not be
// reached at all, as opposed to a single reference being refused.
func isTransportFailure(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, transport.ErrAuthenticationRequired) ||
		errors.Is(err, transport.ErrAuthorizationFailed) ||
		errors.Is(err, transport.ErrInvalidAuthMethod) ||
		errors.Is(err, transport.ErrRepositoryNotFound) ||
		errors.Is(err, git.ErrRemoteNotFound)
}

func isNoMatchingRefSpec(err error) bool {
	var e git.NoMatchingRefSpecError
	return errors.As(err, &e)
}
