package git

import (
	"context"
	"errors"
	"os"
	"path"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// mergeHeadRef records the commit being merged while a conflict is open.
const mergeHeadRef = plumbing.ReferenceName("MERGE_HEAD")

// MergeHead returns the commit recorded as MERGE_HEAD, if a merge is open.
func (r *Repo) MergeHead() (plumbing.Hash, bool) {
	ref, err := r.repo.Storer.Reference(mergeHeadRef)
	if err != nil || ref.Type() != plumbing.HashReference {
		return plumbing.ZeroHash, false
	}
	return ref.Hash(), true
}

// SetMergeHead records theirs as the commit being merged.
func (r *Repo) SetMergeHead(theirs plumbing.Hash) error {
	if theirs.IsZero() {
		return WrapError(ErrInvalidRef, "merge head cannot be the zero hash")
	}
	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(mergeHeadRef, theirs)); err != nil {
		return WrapError(err, "failed to record merge head")
	}
	return nil
}

// ClearMergeHead removes MERGE_HEAD. A missing MERGE_HEAD is not an error.
func (r *Repo) ClearMergeHead() error {
	err := r.repo.Storer.RemoveReference(mergeHeadRef)
	if err != nil && !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return WrapError(err, "failed to clear merge head")
	}
	return nil
}

// WriteWorktreeFile writes data to p in the working copy, creating parent
// directories as needed.
func (r *Repo) WriteWorktreeFile(p string, data []byte) error {
	if err := r.requireWorktree(); err != nil {
		return err
	}
	fs := r.layout.Worktree
	if dir := path.Dir(p); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return WrapErrorf(err, "failed to create directory %s", dir)
		}
	}
	if err := util.WriteFile(fs, p, data, 0o644); err != nil {
		return WrapErrorf(err, "failed to write %s", p)
	}
	return nil
}

// ReadWorktreeFile returns the content of p in the working copy.
func (r *Repo) ReadWorktreeFile(p string) ([]byte, error) {
	if err := r.requireWorktree(); err != nil {
		return nil, err
	}
	data, err := util.ReadFile(r.layout.Worktree, p)
	if err != nil {
		return nil, WrapErrorf(err, "failed to read %s", p)
	}
	return data, nil
}

// RemoveWorktreeFile deletes p from the working copy. A missing file is not
// an error.
func (r *Repo) RemoveWorktreeFile(p string) error {
	if err := r.requireWorktree(); err != nil {
		return err
	}
	if err := r.layout.Worktree.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return WrapErrorf(err, "failed to remove %s", p)
	}
	return nil
}

// CommitMerge stages the working copy and records a merge commit with HEAD
// and theirs as parents, then clears MERGE_HEAD. The commit is created even
// when the merge result equals HEAD's tree.
//
// Context timeout/cancellation is honored during the operation.
func (r *Repo) CommitMerge(ctx context.Context, msg string, theirs plumbing.Hash) (string, error) {
	if err := r.requireWorktree(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ours, err := r.Head()
	if err != nil {
		return "", err
	}
	if ours.IsZero() {
		return "", WrapError(ErrBranchMissing, "cannot merge into an unborn branch")
	}

	if err := r.stageAll(); err != nil {
		return "", err
	}
	sig, err := r.signature()
	if err != nil {
		return "", err
	}

	hash, err := r.worktree.Commit(msg, &git.CommitOptions{
		Author:            sig,
		Committer:         sig,
		Parents:           []plumbing.Hash{ours, theirs},
		AllowEmptyCommits: true,
	})
	if err != nil {
		return "", WrapError(err, "failed to create merge commit")
	}
	if err := r.ClearMergeHead(); err != nil {
		return "", err
	}

	r.logger.InfoContext(ctx, "merge committed", "commit", hash.String(), "theirs", theirs.String())
	return hash.String(), nil
}

// ResetHard moves the current branch to hash and makes the index and
// tracked files of the working copy match it.
//
// Context timeout/cancellation is honored during the operation.
func (r *Repo) ResetHard(ctx context.Context, hash plumbing.Hash) error {
	if err := r.requireWorktree(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.worktree.Reset(&git.ResetOptions{Commit: hash, Mode: git.HardReset}); err != nil {
		return WrapErrorf(err, "failed to reset to %s", hash)
	}
	r.logger.DebugContext(ctx, "working copy reset", "commit", hash.String())
	return nil
}
