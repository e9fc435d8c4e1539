// Package git provides the repository handle used by model synchronization.
// This file contains branch operations and branch status.
package git

import (
	"context"
	"errors"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// BranchInfo describes a single local or remote branch.
type BranchInfo struct {
	Name string
	Head plumbing.Hash
}

// BranchStatus is a snapshot of the current branch relative to its remote
// tracking branch. It is computed on demand and never cached.
type BranchStatus struct {
	// Current is the checked out branch.
	Current string

	// Head is the tip of Current, or the zero hash for an unborn branch.
	Head plumbing.Hash

	// Tracking is the short name of the remote tracking branch, e.g.
	// "origin/master". It is empty when HasTracking is false.
	Tracking    string
	HasTracking bool

	// Ahead and Behind count the commits only reachable from Current and
	// only reachable from Tracking.
	Ahead  int
	Behind int

	// Merging is set while a conflict is open.
	Merging bool

	// Local lists all local branches, RemoteOnly lists tracking branches
	// without a local counterpart. Both are sorted by name.
	Local      []BranchInfo
	RemoteOnly []BranchInfo
}

// InSync reports whether the branch and its tracking branch point to the
// same history.
func (s *BranchStatus) InSync() bool {
	return s.HasTracking && s.Ahead == 0 && s.Behind == 0
}

// CurrentBranch returns the name of the currently checked out branch.
// It returns an error if HEAD is in a detached state.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return r.branchName()
}

// branchName reads the branch HEAD points to. It works on unborn branches.
func (r *Repo) branchName() (string, error) {
	head, err := r.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", WrapError(err, "failed to get HEAD reference")
	}
	if head.Type() != plumbing.SymbolicReference || !head.Target().IsBranch() {
		return "", WrapError(ErrResolveFailed, "HEAD is detached")
	}
	return head.Target().Short(), nil
}

// BranchStatus computes the status of the current branch.
//
// Context timeout/cancellation is honored during the operation.
func (r *Repo) BranchStatus(ctx context.Context) (*BranchStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current, err := r.branchName()
	if err != nil {
		return nil, err
	}
	head, err := r.Head()
	if err != nil {
		return nil, err
	}
	_, merging := r.MergeHead()
	status := &BranchStatus{Current: current, Head: head, Merging: merging}

	local, err := r.listBranches(r.repo.Branches)
	if err != nil {
		return nil, err
	}
	status.Local = local

	localNames := map[string]bool{}
	for _, b := range local {
		localNames[b.Name] = true
	}
	prefix := r.options.RemoteName + "/"
	remotes, err := r.remoteBranches()
	if err != nil {
		return nil, err
	}
	for _, b := range remotes {
		if len(b.Name) <= len(prefix) || b.Name[:len(prefix)] != prefix {
			continue
		}
		if !localNames[b.Name[len(prefix):]] {
			status.RemoteOnly = append(status.RemoteOnly, b)
		}
	}

	tracking := plumbing.NewRemoteReferenceName(r.options.RemoteName, current)
	ref, err := r.repo.Reference(tracking, true)
	switch {
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		return status, nil
	case err != nil:
		return nil, WrapError(err, "failed to read tracking branch")
	}
	status.Tracking = tracking.Short()
	status.HasTracking = true

	status.Ahead, status.Behind, err = r.aheadBehind(ctx, head, ref.Hash())
	if err != nil {
		return nil, err
	}
	return status, nil
}

// aheadBehind counts commits reachable from only one of ours and theirs.
func (r *Repo) aheadBehind(ctx context.Context, ours, theirs plumbing.Hash) (int, int, error) {
	if ours == theirs {
		return 0, 0, nil
	}
	oursSet, err := r.reachable(ctx, ours)
	if err != nil {
		return 0, 0, err
	}
	theirsSet, err := r.reachable(ctx, theirs)
	if err != nil {
		return 0, 0, err
	}

	ahead, behind := 0, 0
	for h := range oursSet {
		if !theirsSet[h] {
			ahead++
		}
	}
	for h := range theirsSet {
		if !oursSet[h] {
			behind++
		}
	}
	return ahead, behind, nil
}

func (r *Repo) reachable(ctx context.Context, from plumbing.Hash) (map[plumbing.Hash]bool, error) {
	seen := map[plumbing.Hash]bool{}
	if from.IsZero() {
		return seen, nil
	}
	start, err := r.repo.CommitObject(from)
	if err != nil {
		return nil, WrapErrorf(err, "failed to read commit %s", from)
	}
	iter := object.NewCommitPreorderIter(start, nil, nil)
	defer iter.Close()
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		seen[c.Hash] = true
		return nil
	})
	if err != nil {
		return nil, WrapError(err, "failed to walk history")
	}
	return seen, nil
}

func (r *Repo) listBranches(list func() (storer.ReferenceIter, error)) ([]BranchInfo, error) {
	iter, err := list()
	if err != nil {
		return nil, WrapError(err, "failed to list branches")
	}
	defer iter.Close()

	var out []BranchInfo
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		out = append(out, BranchInfo{Name: ref.Name().Short(), Head: ref.Hash()})
		return nil
	})
	if err != nil {
		return nil, WrapError(err, "failed to list branches")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Repo) remoteBranches() ([]BranchInfo, error) {
	return r.listBranches(func() (storer.ReferenceIter, error) {
		refs, err := r.repo.References()
		if err != nil {
			return nil, err
		}
		return storer.NewReferenceFilteredIter(func(ref *plumbing.Reference) bool {
			return ref.Name().IsRemote() && ref.Type() == plumbing.HashReference
		}, refs), nil
	})
}

// CheckoutBranch switches to the branch name. When the branch does not
// exist locally it is created from the remote tracking branch if there is
// one, otherwise from HEAD, and tracking configuration is recorded.
//
// Context timeout/cancellation is honored during the operation.
func (r *Repo) CheckoutBranch(ctx context.Context, name string, force bool) error {
	if err := r.requireWorktree(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" {
		return WrapError(ErrInvalidRef, "branch name cannot be empty")
	}
	if _, ok := r.MergeHead(); ok {
		return WrapError(ErrMergeInProgress, "finish or reset the merge first")
	}

	branchRef := plumbing.NewBranchReferenceName(name)
	if _, err := r.repo.Reference(branchRef, true); err != nil {
		if err := r.createBranch(name); err != nil {
			return err
		}
	}

	if err := r.worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Force: force}); err != nil {
		return WrapError(err, "failed to checkout branch")
	}
	r.logger.InfoContext(ctx, "branch checked out", "branch", name)
	return nil
}

func (r *Repo) createBranch(name string) error {
	branchRef := plumbing.NewBranchReferenceName(name)

	var start plumbing.Hash
	remoteRef, err := r.repo.Reference(plumbing.NewRemoteReferenceName(r.options.RemoteName, name), true)
	if err == nil {
		start = remoteRef.Hash()
	} else {
		head, err := r.repo.Head()
		if err != nil {
			return WrapError(ErrBranchMissing, "cannot create a branch without commits")
		}
		start = head.Hash()
	}

	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(branchRef, start)); err != nil {
		return WrapError(err, "failed to create branch reference")
	}

	err = r.repo.CreateBranch(&config.Branch{
		Name:   name,
		Remote: r.options.RemoteName,
		Merge:  branchRef,
	})
	if err != nil && !errors.Is(err, git.ErrBranchExists) {
		return WrapError(err, "failed to record branch tracking")
	}
	return nil
}

// DeleteBranch deletes the specified local branch.
// It prevents deletion of the currently checked out branch.
//
// Context timeout/cancellation is honored during the operation.
func (r *Repo) DeleteBranch(ctx context.Context, name string) error {
	if name == "" {
		return WrapError(ErrInvalidRef, "branch name cannot be empty")
	}

	branchRef := plumbing.NewBranchReferenceName(name)
	if _, err := r.repo.Reference(branchRef, true); err != nil {
		return WrapError(ErrBranchMissing, "branch does not exist")
	}

	if current, err := r.CurrentBranch(ctx); err == nil && current == name {
		return WrapError(ErrBranchExists, "cannot delete the currently checked out branch")
	}

	if err := r.repo.Storer.RemoveReference(branchRef); err != nil {
		return WrapError(err, "failed to delete branch")
	}
	if err := r.repo.DeleteBranch(name); err != nil && !errors.Is(err, git.ErrBranchNotFound) {
		return WrapError(err, "failed to delete branch tracking")
	}
	return nil
}
