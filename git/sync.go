// Package git provides a high-level Go wrapper for go-git operations.
// This file contains synchronization operations (fetch, pull, merge, push).
package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	mserrors "github.com/input-output-hk/catalyst-forge-libs/modelsync/errors"
)

// PullKind is the result class of a pull.
type PullKind int8

const (
	// PullUpToDate means the local branch already contains the remote branch.
	PullUpToDate PullKind = iota

	// PullFastForward means the local branch was moved to the remote tip.
	PullFastForward

	// PullMerged means the remote branch was merged cleanly and committed.
	PullMerged

	// PullConflict means the merge needs a decision; see PullOutcome.Conflicts.
	PullConflict
)

// String returns a human-readable string representation of the PullKind.
func (k PullKind) String() string {
	switch k {
	case PullUpToDate:
		return "up-to-date"
	case PullFastForward:
		return "fast-forward"
	case PullMerged:
		return "merged"
	case PullConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// PullOutcome describes what a pull did.
type PullOutcome struct {
	Kind PullKind

	// Branch is the local branch that was updated.
	Branch string

	// RemoteBranch is the tracking branch that was merged, e.g. "origin/master".
	RemoteBranch string

	// Head is the local tip after the pull.
	Head plumbing.Hash

	// RefMissing is set when the remote does not have the branch yet. The
	// pull is then reported as merged with nothing to merge.
	RefMissing bool

	// Conflicts is set for PullConflict.
	Conflicts *ConflictSet
}

// Changed reports whether the pull changed the working copy.
func (o *PullOutcome) Changed() bool {
	return !o.RefMissing && (o.Kind == PullFastForward || o.Kind == PullMerged)
}

// Fetch downloads objects and branches from the configured remote.
// Returns nil when the remote has nothing new. Tags are not fetched, so a
// local tag never moves; a diverged tag is reported by PushToRemote.
//
// Context timeout/cancellation is honored during the fetch operation.
func (r *Repo) Fetch(ctx context.Context, net Network, progress io.Writer) error {
	const op = "git.Fetch"

	remoteURL, err := r.RemoteURL()
	if err != nil {
		return mserrors.Wrap(err, mserrors.CodeInternal, op, "reading remote")
	}
	if remoteURL == "" {
		return mserrors.Wrap(ErrNoRemote, mserrors.CodeInvalidInput, op, "remote "+r.options.RemoteName)
	}

	fetchOpts := &git.FetchOptions{
		RemoteName: r.options.RemoteName,
		Tags:       git.NoTags,
		Progress:   progress,
	}
	if err := applyNetwork(net, remoteURL, &fetchOpts.Auth, &fetchOpts.ProxyOptions); err != nil {
		return mserrors.Wrap(err, mserrors.CodeTransport, op, "resolving credentials")
	}

	r.logger.DebugContext(ctx, "fetching", "remote", r.options.RemoteName, "url", remoteURL)
	err = r.repo.FetchContext(ctx, fetchOpts)
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
		return nil
	case errors.Is(err, transport.ErrEmptyRemoteRepository):
		return mserrors.Wrap(err, mserrors.CodeRefNotAdvertised, op, "remote repository is empty")
	default:
		return networkError(err, op)
	}
}

// PullFromRemote fetches from the remote and integrates the tracking branch
// of the current branch. See IntegrateRemote for the possible outcomes.
//
// Context timeout/cancellation is honored during the pull operation.
func (r *Repo) PullFromRemote(ctx context.Context, net Network, progress io.Writer) (*PullOutcome, error) {
	if err := r.requireWorktree(); err != nil {
		return nil, err
	}
	if _, ok := r.MergeHead(); ok {
		return nil, mserrors.Wrap(ErrMergeInProgress, mserrors.CodeInvalidInput, "git.PullFromRemote", "finish or reset the merge first")
	}

	if err := r.Fetch(ctx, net, progress); err != nil {
		if mserrors.HasCode(err, mserrors.CodeRefNotAdvertised) {
			r.logger.InfoContext(ctx, "remote has no matching branch", "error", err)
			branch, _ := r.branchName()
			head, _ := r.Head()
			return &PullOutcome{Kind: PullMerged, Branch: branch, Head: head, RefMissing: true}, nil
		}
		return nil, err
	}
	return r.IntegrateRemote(ctx)
}

// IntegrateRemote merges the local tracking branch of the current branch
// into it without touching the network. A missing tracking branch yields
// PullMerged with RefMissing set. A clean merge is committed with two
// parents; a conflicting merge is returned as a ConflictSet and leaves the
// working copy untouched.
func (r *Repo) IntegrateRemote(ctx context.Context) (*PullOutcome, error) {
	const op = "git.IntegrateRemote"

	if err := r.requireWorktree(); err != nil {
		return nil, err
	}

	branch, err := r.branchName()
	if err != nil {
		return nil, mserrors.Wrap(err, mserrors.CodeInvalidInput, op, "resolving current branch")
	}
	tracking := plumbing.NewRemoteReferenceName(r.options.RemoteName, branch)
	out := &PullOutcome{Branch: branch, RemoteBranch: tracking.Short()}

	theirsRef, err := r.repo.Reference(tracking, true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			out.Kind = PullMerged
			out.RefMissing = true
			out.Head, _ = r.Head()
			return out, nil
		}
		return nil, mserrors.Wrap(err, mserrors.CodeInternal, op, "reading tracking branch")
	}
	theirs := theirsRef.Hash()

	ours, err := r.Head()
	if err != nil {
		return nil, mserrors.Wrap(err, mserrors.CodeInternal, op, "reading HEAD")
	}

	if ours.IsZero() {
		if err := r.fastForward(ctx, theirs, true); err != nil {
			return nil, mserrors.Wrap(err, mserrors.CodeInternal, op, "checking out remote branch")
		}
		out.Kind = PullFastForward
		out.Head = theirs
		return out, nil
	}
	if ours == theirs {
		out.Kind = PullUpToDate
		out.Head = ours
		return out, nil
	}

	oursCommit, err := r.repo.CommitObject(ours)
	if err != nil {
		return nil, mserrors.Wrap(err, mserrors.CodeInternal, op, "reading local commit")
	}
	theirsCommit, err := r.repo.CommitObject(theirs)
	if err != nil {
		return nil, mserrors.Wrap(err, mserrors.CodeInternal, op, "reading remote commit")
	}

	if ahead, err := theirsCommit.IsAncestor(oursCommit); err != nil {
		return nil, mserrors.Wrap(err, mserrors.CodeInternal, op, "comparing history")
	} else if ahead {
		out.Kind = PullUpToDate
		out.Head = ours
		return out, nil
	}

	if behind, err := oursCommit.IsAncestor(theirsCommit); err != nil {
		return nil, mserrors.Wrap(err, mserrors.CodeInternal, op, "comparing history")
	} else if behind {
		if err := r.fastForward(ctx, theirs, false); err != nil {
			return nil, mserrors.Wrap(err, mserrors.CodeInternal, op, "fast-forwarding")
		}
		out.Kind = PullFastForward
		out.Head = theirs
		return out, nil
	}

	base, err := mergeBase(oursCommit, theirsCommit)
	if err != nil {
		return nil, mserrors.Wrap(err, mserrors.CodeInternal, op, "finding merge base")
	}
	set, err := r.mergeTrees(ctx, base, oursCommit, theirsCommit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, mserrors.Wrap(err, mserrors.CodeCancelled, op, "merge cancelled")
		}
		return nil, mserrors.Wrap(err, mserrors.CodeInternal, op, "merging trees")
	}
	set.RemoteBranch = out.RemoteBranch

	if len(set.Files) > 0 {
		r.logger.InfoContext(ctx, "merge has conflicts", "branch", out.RemoteBranch, "files", len(set.Files))
		out.Kind = PullConflict
		out.Head = ours
		out.Conflicts = set
		return out, nil
	}

	if err := r.applyMerge(set); err != nil {
		_ = r.ResetHard(context.WithoutCancel(ctx), ours)
		return nil, mserrors.Wrap(err, mserrors.CodeInternal, op, "writing merge result")
	}
	sha, err := r.CommitMerge(ctx, mergeMessage(out.RemoteBranch), theirs)
	if err != nil {
		_ = r.ResetHard(context.WithoutCancel(ctx), ours)
		return nil, mserrors.Wrap(err, mserrors.CodeInternal, op, "committing merge")
	}
	out.Kind = PullMerged
	out.Head = plumbing.NewHash(sha)
	return out, nil
}

func (r *Repo) fastForward(ctx context.Context, to plumbing.Hash, unborn bool) error {
	if unborn {
		head, err := r.repo.Storer.Reference(plumbing.HEAD)
		if err != nil {
			return WrapError(err, "failed to read HEAD")
		}
		if head.Type() == plumbing.SymbolicReference {
			if err := r.repo.Storer.SetReference(plumbing.NewHashReference(head.Target(), to)); err != nil {
				return WrapError(err, "failed to create branch")
			}
		}
	}
	if err := r.ResetHard(ctx, to); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "fast-forwarded", "head", to.String())
	return nil
}

// RefStatus is the result of pushing one reference.
type RefStatus string

const (
	// RefOK means the remote accepted the update.
	RefOK RefStatus = "ok"

	// RefUpToDate means the remote already had the reference at this value.
	RefUpToDate RefStatus = "up-to-date"

	// RefRejected means the remote refused the update.
	RefRejected RefStatus = "rejected"

	// RefError means the update failed for another reason.
	RefError RefStatus = "error"
)

// RefUpdate is the push result of a single reference.
type RefUpdate struct {
	Ref     string
	Status  RefStatus
	Message string
}

// PushOutcome lists the result of every reference pushed.
type PushOutcome struct {
	Remote  string
	Updates []RefUpdate
}

// Failures returns the updates that were neither accepted nor up to date.
func (p *PushOutcome) Failures() []RefUpdate {
	if p == nil {
		return nil
	}
	var failed []RefUpdate
	for _, u := range p.Updates {
		if u.Status != RefOK && u.Status != RefUpToDate {
			failed = append(failed, u)
		}
	}
	return failed
}

// Err aggregates failed updates into a single PUSH_REJECTED error, or
// returns nil when every update succeeded.
func (p *PushOutcome) Err() error {
	failed := p.Failures()
	if len(failed) == 0 {
		return nil
	}
	parts := make([]string, 0, len(failed))
	for _, u := range failed {
		if u.Message != "" {
			parts = append(parts, fmt.Sprintf("%s %s (%s)", u.Ref, u.Status, u.Message))
		} else {
			parts = append(parts, fmt.Sprintf("%s %s", u.Ref, u.Status))
		}
	}
	return mserrors.Newf(mserrors.CodePushRejected, "git.PushToRemote",
		"%d of %d reference updates failed: %s", len(failed), len(p.Updates), strings.Join(parts, "; "))
}

// PushToRemote pushes the current branch and every local tag. Each reference
// is pushed as its own update so one rejection does not hide the others.
// A tag the remote holds at another commit is rejected without pushing.
// A returned error means the remote could not be reached at all; refused
// references are reported in the outcome.
//
// Context timeout/cancellation is honored during the push operation.
func (r *Repo) PushToRemote(ctx context.Context, net Network, progress io.Writer) (*PushOutcome, error) {
	const op = "git.PushToRemote"

	remoteURL, err := r.RemoteURL()
	if err != nil {
		return nil, mserrors.Wrap(err, mserrors.CodeInternal, op, "reading remote")
	}
	if remoteURL == "" {
		return nil, mserrors.Wrap(ErrNoRemote, mserrors.CodeInvalidInput, op, "remote "+r.options.RemoteName)
	}

	specs, err := r.pushSpecs()
	if err != nil {
		return nil, mserrors.Wrap(err, mserrors.CodeInternal, op, "listing references")
	}

	advertised, err := r.listRemote(ctx, net, remoteURL)
	if err != nil {
		return nil, err
	}

	out := &PushOutcome{Remote: r.options.RemoteName}
	for _, spec := range specs {
		ref := spec.Src()
		if update, diverged := r.divergedTag(ref, advertised); diverged {
			r.logger.DebugContext(ctx, "tag differs on remote", "ref", ref)
			out.Updates = append(out.Updates, update)
			continue
		}

		pushOpts := &git.PushOptions{
			RemoteName: r.options.RemoteName,
			RefSpecs:   []config.RefSpec{spec},
			Progress:   progress,
		}
		if err := applyNetwork(net, remoteURL, &pushOpts.Auth, &pushOpts.ProxyOptions); err != nil {
			return out, mserrors.Wrap(err, mserrors.CodeTransport, op, "resolving credentials")
		}

		err := r.repo.PushContext(ctx, pushOpts)
		if err != nil && isTransportFailure(err) {
			return out, networkError(err, op)
		}
		update := classifyPush(ref, err)
		r.logger.DebugContext(ctx, "pushed reference", "ref", ref, "status", update.Status)
		out.Updates = append(out.Updates, update)
	}
	return out, nil
}

func classifyPush(ref string, err error) RefUpdate {
	switch {
	case err == nil:
		return RefUpdate{Ref: ref, Status: RefOK}
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		return RefUpdate{Ref: ref, Status: RefUpToDate}
	case errors.Is(err, git.ErrNonFastForwardUpdate),
		strings.HasPrefix(err.Error(), "non-fast-forward update"):
		return RefUpdate{Ref: ref, Status: RefRejected, Message: ErrNotFastForward.Error()}
	case errors.Is(err, git.ErrForceNeeded),
		strings.Contains(err.Error(), "rejected"),
		strings.Contains(err.Error(), "command error"):
		return RefUpdate{Ref: ref, Status: RefRejected, Message: err.Error()}
	default:
		return RefUpdate{Ref: ref, Status: RefError, Message: err.Error()}
	}
}

// divergedTag reports a rejection when ref is a tag the remote advertises at
// another object.
func (r *Repo) divergedTag(ref string, advertised map[plumbing.ReferenceName]plumbing.Hash) (RefUpdate, bool) {
	name := plumbing.ReferenceName(ref)
	if !name.IsTag() {
		return RefUpdate{}, false
	}
	remote, ok := advertised[name]
	if !ok {
		return RefUpdate{}, false
	}
	local, err := r.repo.Reference(name, false)
	if err != nil || local.Hash() == remote {
		return RefUpdate{}, false
	}
	return RefUpdate{Ref: ref, Status: RefRejected, Message: ErrTagExists.Error()}, true
}

// pushSpecs returns one refspec for the current branch and one per tag.
func (r *Repo) pushSpecs() ([]config.RefSpec, error) {
	var specs []config.RefSpec

	if head, err := r.repo.Head(); err == nil && head.Name().IsBranch() {
		name := head.Name().String()
		specs = append(specs, config.RefSpec(name+":"+name))
	}

	tags, err := r.repo.Tags()
	if err != nil {
		return nil, WrapError(err, "failed to list tags")
	}
	defer tags.Close()
	err = tags.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().String()
		specs = append(specs, config.RefSpec(name+":"+name))
		return nil
	})
	if err != nil {
		return nil, WrapError(err, "failed to list tags")
	}
	return specs, nil
}

// RemoteHasNewCommits asks the remote for the tip of the current branch and
// reports whether it differs from the local tracking branch. Nothing is
// downloaded.
//
// Context timeout/cancellation is honored during the operation.
func (r *Repo) RemoteHasNewCommits(ctx context.Context, net Network) (bool, error) {
	const op = "git.RemoteHasNewCommits"

	remoteURL, err := r.RemoteURL()
	if err != nil {
		return false, mserrors.Wrap(err, mserrors.CodeInternal, op, "reading remote")
	}
	if remoteURL == "" {
		return false, nil
	}
	branch, err := r.branchName()
	if err != nil {
		return false, nil
	}

	advertised, err := r.listRemote(ctx, net, remoteURL)
	if err != nil {
		return false, err
	}
	tip, ok := advertised[plumbing.NewBranchReferenceName(branch)]
	if !ok {
		return false, nil
	}
	local, err := r.repo.Reference(plumbing.NewRemoteReferenceName(r.options.RemoteName, branch), true)
	if err != nil {
		return true, nil
	}
	return local.Hash() != tip, nil
}

// listRemote returns the references the remote advertises. An empty remote
// advertises none.
func (r *Repo) listRemote(ctx context.Context, net Network, remoteURL string) (map[plumbing.ReferenceName]plumbing.Hash, error) {
	const op = "git.listRemote"

	remote, err := r.repo.Remote(r.options.RemoteName)
	if err != nil {
		return nil, mserrors.Wrap(err, mserrors.CodeInternal, op, "reading remote")
	}
	listOpts := &git.ListOptions{}
	if err := applyNetwork(net, remoteURL, &listOpts.Auth, &listOpts.ProxyOptions); err != nil {
		return nil, mserrors.Wrap(err, mserrors.CodeTransport, op, "resolving credentials")
	}
	refs, err := remote.ListContext(ctx, listOpts)
	if err != nil {
		if errors.Is(err, transport.ErrEmptyRemoteRepository) {
			return map[plumbing.ReferenceName]plumbing.Hash{}, nil
		}
		return nil, networkError(err, op)
	}

	advertised := make(map[plumbing.ReferenceName]plumbing.Hash, len(refs))
	for _, ref := range refs {
		if ref.Type() == plumbing.HashReference {
			advertised[ref.Name()] = ref.Hash()
		}
	}
	return advertised, nil
}

func applyNetwork(net Network, remoteURL string, authOut *transport.AuthMethod, proxyOut *transport.ProxyOptions) error {
	if net == nil {
		return nil
	}
	method, err := net.AuthFor(remoteURL)
	if err != nil {
		return WrapError(ErrAuthRequired, err.Error())
	}
	*authOut = method
	*proxyOut = net.Proxy()
	return nil
}
