// Package git provides a high-level Go wrapper for go-git operations.
// This file contains working copy status and commit operations.
package git

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// HasChangesToCommit reports whether the working copy differs from HEAD,
// counting untracked, modified and deleted files.
//
// Context timeout/cancellation is honored during the operation.
func (r *Repo) HasChangesToCommit(ctx context.Context) (bool, error) {
	if err := r.requireWorktree(); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	status, err := r.worktree.Status()
	if err != nil {
		return false, WrapError(err, "failed to get worktree status")
	}
	return !status.IsClean(), nil
}

// ChangedFiles returns the paths that differ from HEAD in sorted order.
func (r *Repo) ChangedFiles(ctx context.Context) ([]string, error) {
	if err := r.requireWorktree(); err != nil {
		return nil, err
	}
	status, err := r.worktree.Status()
	if err != nil {
		return nil, WrapError(err, "failed to get worktree status")
	}
	var paths []string
	for p, s := range status {
		if s.Staging != git.Unmodified || s.Worktree != git.Unmodified {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// CommitChanges stages every change in the working copy, including
// deletions, and commits it with the configured identity. When amend is true
// the tip of the current branch is replaced instead. It returns the SHA of
// the new commit, or ErrEmptyCommit when there is nothing to record.
//
// Context timeout/cancellation is honored during the operation.
func (r *Repo) CommitChanges(ctx context.Context, msg string, amend bool) (string, error) {
	if err := r.requireWorktree(); err != nil {
		return "", err
	}
	if msg == "" {
		return "", WrapError(ErrInvalidRef, "commit message cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, ok := r.MergeHead(); ok {
		return "", WrapError(ErrMergeInProgress, "finish or reset the merge first")
	}

	if err := r.stageAll(); err != nil {
		return "", err
	}

	if amend {
		if _, err := r.repo.Head(); err != nil {
			// nothing to amend on an unborn branch
			amend = false
		}
	}

	sig, err := r.signature()
	if err != nil {
		return "", err
	}

	hash, err := r.worktree.Commit(msg, &git.CommitOptions{
		Amend:             amend,
		Author:            sig,
		Committer:         sig,
		AllowEmptyCommits: amend,
	})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return "", ErrEmptyCommit
		}
		return "", WrapError(err, "failed to create commit")
	}

	r.logger.InfoContext(ctx, "changes committed", "commit", hash.String(), "amend", amend)
	return hash.String(), nil
}

// Head returns the commit HEAD points to. It returns plumbing.ZeroHash for
// an unborn branch.
func (r *Repo) Head() (plumbing.Hash, error) {
	head, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return plumbing.ZeroHash, nil
		}
		return plumbing.ZeroHash, WrapError(err, "failed to get HEAD reference")
	}
	return head.Hash(), nil
}

func (r *Repo) stageAll() error {
	if err := r.worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return WrapError(err, "failed to stage changes")
	}
	return nil
}

func (r *Repo) signature() (*object.Signature, error) {
	id, err := r.UserIdentity()
	if err != nil {
		return nil, err
	}
	if !id.Valid() {
		return nil, ErrNoIdentity
	}
	return &object.Signature{Name: id.Name, Email: id.Email, When: time.Now()}, nil
}
