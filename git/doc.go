// Package git is the repository handle used by model synchronization.
//
// It offers a small facade over go-git exposing the task-oriented operations
// a synchronization run needs. Repositories live on a filesystem from the
// catalyst-forge-libs fs/billy package, so the same code drives an on-disk working copy and an in-memory repository
// in tests.
//
// # Opening a repository
//
//	repo, err := git.Open(ctx, git.OSOptions("/path/to/model"))
//
//	// or in memory
//	repo, err := git.Init(ctx, &git.Options{FS: billyfs.NewInMemoryFS()})
//
// # Committing
//
// CommitChanges stages every change, deletions included, and commits with
// the identity from the repository or global git config:
//
//	dirty, err := repo.HasChangesToCommit(ctx)
//	sha, err := repo.CommitChanges(ctx, "Update model", false)
//
// # Pulling
//
// PullFromRemote fetches and integrates the tracking branch of the current
// branch. Merges are performed file by file: a file changed on one side
// takes that side, a file changed on both sides is a conflict. Conflicts are
// returned as a ConflictSet without touching the working copy, leaving the
// decision to the caller:
//
//	out, err := repo.PullFromRemote(ctx, net, nil)
//	switch out.Kind {
//	case git.PullConflict:
//	    // out.Conflicts lists the files changed on both sides
//	case git.PullMerged, git.PullFastForward:
//	    // the working copy changed
//	}
//
// The merge state primitives (SetMergeHead, WriteWorktreeFile, CommitMerge,
// ResetHard) let a conflict handler stage and finish or abandon the merge.
//
// # Pushing
//
// PushToRemote pushes the current branch and every tag as separate updates
// and reports each result. PushOutcome.Err aggregates refused updates:
//
//	out, err := repo.PushToRemote(ctx, net, nil)
//	if err == nil {
//	    err = out.Err()
//	}
//
// # Errors
//
// Sentinel errors such as ErrMergeInProgress or ErrNoIdentity can be checked
// with errors.Is. Network operations return coded errors from the errors
// package (TRANSPORT_ERROR, REF_NOT_ADVERTISED, CANCELLED).
package git
