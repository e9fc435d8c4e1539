// Package syncer runs one synchronization of a model with its repository.
//
// A run exports the model, commits it when the working copy changed and,
// depending on the mode, pulls remote changes, reloads the model from the
// merged files and pushes the result. Progress is reported to a Listener;
// the final result is returned as an Outcome, never as a panic or a bare
// error.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/input-output-hk/catalyst-forge-libs/modelsync/checksum"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/conflict"
	mserrors "github.com/input-output-hk/catalyst-forge-libs/modelsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/git"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/grafico"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/model"
)

const (
	// DefaultMessage is used when a request carries no commit message.
	DefaultMessage = "Update model"

	// ReloadMessage is the message of the commit recorded after a pull
	// changed the model.
	ReloadMessage = "Update model after pull"
)

var (
	// ErrRunActive is returned when another run holds the repository.
	ErrRunActive = errors.New("a synchronization is already running for this repository")

	// ErrConflictActive is returned when the repository has an unfinished merge.
	ErrConflictActive = errors.New("an unresolved merge conflict is pending for this repository")
)

// Mode selects how far a run goes.
type Mode int8

const (
	// ModeCommit exports and commits only.
	ModeCommit Mode = iota

	// ModeRefresh commits, pulls and reloads the model.
	ModeRefresh

	// ModePublish commits, pulls and pushes.
	ModePublish
)

// String returns a human-readable string representation of the Mode.
func (m Mode) String() string {
	switch m {
	case ModeCommit:
		return "commit"
	case ModeRefresh:
		return "refresh"
	case ModePublish:
		return "publish"
	default:
		return "unknown"
	}
}

// ParseMode converts a mode name back to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "commit":
		return ModeCommit, nil
	case "refresh":
		return ModeRefresh, nil
	case "publish":
		return ModePublish, nil
	default:
		return 0, mserrors.Newf(mserrors.CodeInvalidInput, "syncer.ParseMode", "unknown mode %q", s)
	}
}

// Status is the result class of a run.
type Status string

const (
	StatusCommitted      Status = "committed"
	StatusUpToDate       Status = "up-to-date"
	StatusPulledOK       Status = "pulled-ok"
	StatusMergeCancelled Status = "pulled-merge-cancelled"
	StatusPushedOK       Status = "pushed-ok"
	StatusError          Status = "error"
)

// Outcome is the result of a run.
type Outcome struct {
	Status Status
	Mode   Mode

	// Commit is the last commit the run created, if any.
	Commit string

	// Model is the model after the run. A pull that changed the files
	// replaced its content in place.
	Model *model.Model

	Pull *git.PullOutcome
	Push *git.PushOutcome

	// Repairs lists what the reload after a pull had to fix.
	Repairs *grafico.Report

	// PushFailures are the reference updates the remote did not accept.
	PushFailures []git.RefUpdate

	// Checksum is the last digest saved by the run.
	Checksum checksum.Digest

	Err error
}

// OK reports whether the run ended without an error.
func (o Outcome) OK() bool {
	return o.Status != StatusError
}

// Session is the network context of a run. It is closed when the run ends.
type Session interface {
	git.Network
	Close()
}

// Request holds the parameters of one run.
type Request struct {
	Mode  Mode
	Model *model.Model

	// Message is the commit message. DefaultMessage is used when empty.
	Message string

	// Amend replaces the tip commit instead of adding one. It only applies
	// to the commit recorded before the pull.
	Amend bool

	// Network supplies credentials and proxy. Nil means anonymous access.
	Network Session

	// Progress receives transport progress output.
	Progress io.Writer

	// Resolver overrides the process resolver for this run.
	Resolver Resolver
}

func (r Request) validate() error {
	if r.Model == nil {
		return mserrors.New(mserrors.CodeInvalidInput, "syncer.Run", "model is required")
	}
	if r.Mode < ModeCommit || r.Mode > ModePublish {
		return mserrors.Newf(mserrors.CodeInvalidInput, "syncer.Run", "unknown mode %d", r.Mode)
	}
	return nil
}

// Repository is the repository handle a run drives. *git.Repo implements it.
type Repository interface {
	conflict.Workspace

	Worktree() billy.Filesystem
	Metadata() billy.Filesystem
	LocalFolder() string
	MergeHead() (plumbing.Hash, bool)
	HasChangesToCommit(ctx context.Context) (bool, error)
	CommitChanges(ctx context.Context, msg string, amend bool) (string, error)
	PullFromRemote(ctx context.Context, net git.Network, progress io.Writer) (*git.PullOutcome, error)
	PushToRemote(ctx context.Context, net git.Network, progress io.Writer) (*git.PushOutcome, error)
}

var _ Repository = (*git.Repo)(nil)

// Process synchronizes a model with one repository.
type Process struct {
	repo       Repository
	serializer *grafico.Serializer
	tracker    *checksum.Tracker
	logger     *slog.Logger
	listener   Listener
	resolver   Resolver
	guard      *Guard
	source     string
	now        func() time.Time
}

// Option configures a Process.
type Option func(*Process)

// WithLogger configures the process with a logger.
// If logger is nil, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Process) {
		p.logger = logger
	}
}

// WithListener sets the listener receiving run events.
func WithListener(l Listener) Option {
	return func(p *Process) {
		p.listener = l
	}
}

// WithResolver sets the resolver asked to decide merge conflicts. Without
// one every conflict is declined.
func WithResolver(r Resolver) Option {
	return func(p *Process) {
		p.resolver = r
	}
}

// WithSerializer replaces the serializer working on the repository worktree.
func WithSerializer(s *grafico.Serializer) Option {
	return func(p *Process) {
		p.serializer = s
	}
}

// WithChecksum replaces the checksum tracker kept in the repository metadata.
func WithChecksum(t *checksum.Tracker) Option {
	return func(p *Process) {
		p.tracker = t
	}
}

// WithGuard shares a guard between processes and pollers.
func WithGuard(g *Guard) Option {
	return func(p *Process) {
		p.guard = g
	}
}

// New creates a process for repo.
func New(repo Repository, opts ...Option) *Process {
	p := &Process{
		repo:   repo,
		source: repo.LocalFolder(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	if p.listener == nil {
		p.listener = Listeners(nil)
	}
	if p.serializer == nil {
		p.serializer = grafico.New(repo.Worktree(), grafico.WithLogger(p.logger))
	}
	if p.tracker == nil {
		p.tracker = checksum.NewTracker(repo.Metadata())
	}
	if p.guard == nil {
		p.guard = NewGuard()
	}
	return p
}

// Source returns the identifier events of this process carry.
func (p *Process) Source() string {
	return p.source
}

// Guard returns the guard the process acquires for each run.
func (p *Process) Guard() *Guard {
	return p.guard
}

// Run performs one synchronization. Errors are reported through the
// listener once and returned in the outcome. The request's network session
// is closed before Run returns, whatever the result.
func (p *Process) Run(ctx context.Context, req Request) (out Outcome) {
	out = Outcome{Mode: req.Mode, Model: req.Model}
	acquired := false

	defer func() {
		if req.Network != nil {
			req.Network.Close()
		}
		if acquired {
			if req.Mode != ModeCommit {
				p.saveCurrentChecksum(ctx, &out)
			}
			p.guard.Release(p.source)
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			p.fail(ctx, &out, mserrors.Newf(mserrors.CodeInternal, "syncer.Run", "unexpected failure: %v", r))
		}
	}()

	if err := req.validate(); err != nil {
		p.fail(ctx, &out, err)
		return out
	}
	if !p.guard.TryAcquire(p.source) {
		p.fail(ctx, &out, mserrors.Wrap(ErrRunActive, mserrors.CodeInvalidInput, "syncer.Run", p.source))
		return out
	}
	acquired = true

	if _, ok := p.repo.MergeHead(); ok {
		p.fail(ctx, &out, mserrors.Wrap(ErrConflictActive, mserrors.CodeInvalidInput, "syncer.Run", p.source))
		return out
	}

	p.logger.InfoContext(ctx, "synchronization started", "mode", req.Mode.String(), "source", p.source)
	p.run(ctx, req, &out)
	p.logger.InfoContext(ctx, "synchronization finished", "mode", req.Mode.String(), "status", string(out.Status))
	return out
}

func (p *Process) run(ctx context.Context, req Request, out *Outcome) {
	committed, err := p.commitPhase(ctx, req, out)
	if err != nil {
		p.fail(ctx, out, err)
		return
	}
	if req.Mode == ModeCommit {
		if committed {
			out.Status = StatusCommitted
		} else {
			out.Status = StatusUpToDate
		}
		return
	}

	status, err := p.pullPhase(ctx, req, out)
	if err != nil {
		p.fail(ctx, out, err)
		return
	}
	switch status {
	case PullMergeCancelled:
		out.Status = StatusMergeCancelled
		return
	case PullUpToDate:
		out.Status = StatusUpToDate
	default:
		out.Status = StatusPulledOK
	}

	if req.Mode == ModePublish {
		if err := p.pushPhase(ctx, req, out); err != nil {
			p.fail(ctx, out, err)
			return
		}
		out.Status = StatusPushedOK
	}
}

func (p *Process) commitPhase(ctx context.Context, req Request, out *Outcome) (bool, error) {
	p.emit(Event{Type: EventStartCommit, Summary: "Committing model changes"})

	committed, err := func() (bool, error) {
		set, err := p.serializer.Export(ctx, req.Model)
		if err != nil {
			return false, err
		}
		msg := req.Message
		if strings.TrimSpace(msg) == "" {
			msg = DefaultMessage
		}
		return p.commitIfDirty(ctx, set, msg, req.Amend, out)
	}()

	end := Event{Type: EventEndCommit, Summary: "Nothing to commit"}
	switch {
	case err != nil:
		end.Summary = "Commit failed"
	case committed:
		end.Summary = "Committed model changes"
		end.Detail = out.Commit
	}
	p.emit(end)
	return committed, err
}

func (p *Process) pullPhase(ctx context.Context, req Request, out *Outcome) (PullStatus, error) {
	p.emit(Event{Type: EventStartPull, Summary: "Pulling remote changes"})

	status, err := p.pull(ctx, req, out)
	if err != nil {
		status = PullError
	}

	ev := Event{Type: EventPullStatus, PullStatus: status, Summary: pullSummary(status)}
	if out.Pull != nil && out.Pull.RemoteBranch != "" {
		ev.Detail = out.Pull.RemoteBranch
	}
	p.emit(ev)
	p.emit(Event{Type: EventEndPull, Summary: "Pull finished"})
	return status, err
}

func pullSummary(s PullStatus) string {
	switch s {
	case PullOK:
		return "Remote changes merged"
	case PullUpToDate:
		return "Already up to date"
	case PullMergeCancelled:
		return "Merge cancelled, local state kept"
	default:
		return "Pull failed"
	}
}

func (p *Process) pull(ctx context.Context, req Request, out *Outcome) (PullStatus, error) {
	res, err := p.repo.PullFromRemote(ctx, p.network(req), req.Progress)
	if err != nil {
		return PullError, err
	}
	out.Pull = res
	p.logger.DebugContext(ctx, "pull finished", "kind", res.Kind.String(), "ref_missing", res.RefMissing)

	changed := res.Changed()
	switch res.Kind {
	case git.PullUpToDate:
		return PullUpToDate, nil
	case git.PullConflict:
		accepted, err := p.resolve(ctx, req, res.Conflicts, out)
		if err != nil {
			return PullError, err
		}
		if !accepted {
			return PullMergeCancelled, nil
		}
		changed = true
	}

	if !changed {
		p.logger.DebugContext(ctx, "pull left the working copy unchanged")
		return PullOK, nil
	}
	if err := p.reload(ctx, req, out); err != nil {
		return PullError, err
	}
	return PullOK, nil
}

// resolve stages the conflict, asks the resolver and either merges or
// restores the local state. The handler never outlives this call in the
// initialized state.
func (p *Process) resolve(ctx context.Context, req Request, set *git.ConflictSet, out *Outcome) (bool, error) {
	if set == nil {
		return false, mserrors.New(mserrors.CodeInternal, "syncer.resolve", "conflict reported without conflict set")
	}

	h := conflict.New(p.repo, set, p.logger)
	if err := h.Init(ctx); err != nil {
		return false, err
	}
	defer func() {
		if h.State() == conflict.StateInitialized {
			if err := h.ResetToLocalState(context.WithoutCancel(ctx)); err != nil {
				p.logger.ErrorContext(ctx, "resetting abandoned merge", "error", err)
			}
		}
	}()

	p.emit(Event{
		Type:    EventConflictResolution,
		Summary: fmt.Sprintf("Merge conflict with %s", set.RemoteBranch),
		Detail:  strings.Join(set.Paths(), "\n"),
	})

	resolver := req.Resolver
	if resolver == nil {
		resolver = p.resolver
	}
	accepted := resolver != nil && resolver.ResolveConflicts(ctx, h)

	if err := ctx.Err(); err != nil {
		if rerr := h.ResetToLocalState(context.WithoutCancel(ctx)); rerr != nil {
			return false, errors.Join(mserrors.Wrap(err, mserrors.CodeCancelled, "syncer.resolve", "run cancelled"), rerr)
		}
		return false, mserrors.Wrap(err, mserrors.CodeCancelled, "syncer.resolve", "run cancelled during conflict resolution")
	}

	if !accepted {
		p.logger.InfoContext(ctx, "merge declined", "remote", set.RemoteBranch, "files", len(set.Files))
		if err := h.ResetToLocalState(ctx); err != nil {
			return false, err
		}
		return false, nil
	}

	commit, err := h.Merge(ctx, "")
	if err != nil {
		return false, err
	}
	out.Commit = commit
	p.saveCurrentChecksum(ctx, out)
	return true, nil
}

// reload imports the model from the working copy after a pull changed it,
// replaces the caller's model and commits whatever the re-export changed.
func (p *Process) reload(ctx context.Context, req Request, out *Outcome) error {
	m, report, err := p.serializer.Import(ctx)
	if err != nil {
		return err
	}
	out.Repairs = report
	if !report.Empty() {
		p.emit(Event{Type: EventLogMessage, Summary: "Model repaired during import", Detail: strings.Join(report.Names(), ", ")})
	}
	req.Model.Replace(m)

	set, err := p.serializer.Export(ctx, req.Model)
	if err != nil {
		return err
	}

	msg := ReloadMessage
	if summary := report.Summary(); summary != "" {
		msg += "\n\n" + summary
	}
	// TODO: confirm with product owners whether this commit should amend the merge.
	_, err = p.commitIfDirty(ctx, set, msg, false, out)
	return err
}

func (p *Process) pushPhase(ctx context.Context, req Request, out *Outcome) error {
	p.emit(Event{Type: EventStartPush, Summary: "Pushing to remote"})

	res, err := p.repo.PushToRemote(ctx, p.network(req), req.Progress)
	out.Push = res
	if err == nil {
		out.PushFailures = res.Failures()
		err = res.Err()
	}

	end := Event{Type: EventEndPush, Summary: "Push finished"}
	if err != nil {
		end.Summary = "Push failed"
	} else if res != nil {
		end.Detail = fmt.Sprintf("%d references updated", len(res.Updates))
	}
	p.emit(end)
	return err
}

// commitIfDirty commits the working copy when it differs from HEAD and
// records the digest of set.
func (p *Process) commitIfDirty(ctx context.Context, set grafico.FileSet, msg string, amend bool, out *Outcome) (bool, error) {
	dirty, err := p.repo.HasChangesToCommit(ctx)
	if err != nil {
		return false, err
	}
	if !dirty {
		return false, nil
	}

	sha, err := p.repo.CommitChanges(ctx, msg, amend)
	if errors.Is(err, git.ErrEmptyCommit) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	out.Commit = sha

	digest := checksum.Compute(set)
	if err := p.tracker.Save(digest); err != nil {
		p.logger.WarnContext(ctx, "saving checksum", "error", err)
	} else {
		out.Checksum = digest
	}
	return true, nil
}

func (p *Process) saveCurrentChecksum(ctx context.Context, out *Outcome) {
	set, err := p.serializer.Current()
	if err != nil {
		p.logger.WarnContext(ctx, "reading export for checksum", "error", err)
		return
	}
	digest := checksum.Compute(set)
	if err := p.tracker.Save(digest); err != nil {
		p.logger.WarnContext(ctx, "saving checksum", "error", err)
		return
	}
	out.Checksum = digest
}

//nolint:ireturn // nil interface must stay nil
func (p *Process) network(req Request) git.Network {
	if req.Network == nil {
		return nil
	}
	return req.Network
}

// fail records err in out, logs it once and reports its root cause.
func (p *Process) fail(ctx context.Context, out *Outcome, err error) {
	if ctxErr := ctx.Err(); ctxErr != nil && !mserrors.HasCode(err, mserrors.CodeCancelled) {
		err = mserrors.Wrap(err, mserrors.CodeCancelled, "syncer.Run", "run cancelled")
	}
	out.Status = StatusError
	out.Err = err

	p.logger.ErrorContext(ctx, "synchronization failed",
		"mode", out.Mode.String(),
		"code", mserrors.CodeOf(err).String(),
		"error", err,
	)
	p.emit(Event{Type: EventLogError, Summary: "Synchronization failed", Detail: mserrors.RootMessage(err)})
}

func (p *Process) emit(e Event) {
	e.Source = p.source
	e.Time = p.now()
	p.listener.OnEvent(e)
}
