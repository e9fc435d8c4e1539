// Package conflict stages a merge conflict in the working copy, lets the
// caller decide how each conflicting file is resolved, and finishes the
// merge or discards it.
//
// A Handler moves through Idle, Initialized and then either Merged or Reset.
// Every failure while the merge is staged ends with the working copy reset to
// the local state it had before the pull.
package conflict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/go-git/go-git/v5/plumbing"

	mserrors "github.com/input-output-hk/catalyst-forge-libs/modelsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/git"
)

// State is the lifecycle state of a Handler.
type State string

const (
	StateIdle        State = "idle"
	StateInitialized State = "initialized"
	StateMerged      State = "merged"
	StateReset       State = "reset"
)

// Choice picks one side of a conflicting file.
type Choice int8

const (
	// ChooseOurs keeps the local version.
	ChooseOurs Choice = iota

	// ChooseTheirs takes the remote version.
	ChooseTheirs
)

// String returns a human-readable string representation of the Choice.
func (c Choice) String() string {
	if c == ChooseTheirs {
		return "theirs"
	}
	return "ours"
}

// ErrState is returned when an operation is not allowed in the current state.
var ErrState = errors.New("operation not allowed in current state")

// ErrUnknownFile is returned when a path is not part of the conflict.
var ErrUnknownFile = errors.New("file is not in conflict")

// Workspace is the part of the repository handle the handler drives.
// *git.Repo implements it.
type Workspace interface {
	Head() (plumbing.Hash, error)
	WriteWorktreeFile(path string, data []byte) error
	ReadWorktreeFile(path string) ([]byte, error)
	RemoveWorktreeFile(path string) error
	SetMergeHead(theirs plumbing.Hash) error
	ClearMergeHead() error
	CommitMerge(ctx context.Context, msg string, theirs plumbing.Hash) (string, error)
	ResetHard(ctx context.Context, hash plumbing.Hash) error
}

var _ Workspace = (*git.Repo)(nil)

// resolution is the content chosen for one file. A nil data with remove
// set deletes the file.
type resolution struct {
	data   []byte
	remove bool
	choice string
}

// Handler owns one merge conflict.
type Handler struct {
	mu       sync.Mutex
	ws       Workspace
	set      *git.ConflictSet
	logger   *slog.Logger
	state    State
	resolved map[string]resolution
}

// New creates a handler for set. A nil logger discards log output.
func New(ws Workspace, set *git.ConflictSet, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		ws:       ws,
		set:      set,
		logger:   logger,
		state:    StateIdle,
		resolved: map[string]resolution{},
	}
}

// State returns the current lifecycle state.
func (h *Handler) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// RemoteBranch returns the remote branch being merged.
func (h *Handler) RemoteBranch() string {
	return h.set.RemoteBranch
}

// Files returns the conflicting files sorted by path.
func (h *Handler) Files() []git.ConflictFile {
	return h.set.Files
}

// Init stages the merge: the remote side of every file changed only
// remotely is written, files removed remotely are deleted, conflicting files
// keep the local version and MERGE_HEAD is recorded. On failure the working
// copy is reset to the local state and a CONFLICT_INIT_FAILED error, or
// CANCELLED when ctx ended, is returned.
func (h *Handler) Init(ctx context.Context) error {
	const op = "conflict.Init"

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateIdle {
		return mserrors.Wrap(ErrState, mserrors.CodeInvalidInput, op, string(h.state))
	}
	if h.set == nil || h.set.Theirs.IsZero() {
		return mserrors.New(mserrors.CodeInvalidInput, op, "conflict set has no remote commit")
	}

	head, err := h.ws.Head()
	if err != nil {
		return mserrors.Wrap(err, mserrors.CodeConflictInit, op, "reading HEAD")
	}
	if head != h.set.Ours {
		return mserrors.Newf(mserrors.CodeConflictInit, op, "HEAD moved from %s to %s", h.set.Ours, head)
	}

	h.logger.InfoContext(ctx, "staging merge conflict",
		"branch", h.set.RemoteBranch, "conflicts", len(h.set.Files), "merged", len(h.set.Merged))

	if err := h.stage(ctx); err != nil {
		code := mserrors.CodeConflictInit
		if ctx.Err() != nil {
			code = mserrors.CodeCancelled
		}
		if rerr := h.reset(context.WithoutCancel(ctx)); rerr != nil {
			h.logger.ErrorContext(ctx, "reset after failed staging", "error", rerr)
			err = errors.Join(err, rerr)
		}
		return mserrors.Wrap(err, code, op, "staging merge conflict")
	}

	h.state = StateInitialized
	return nil
}

func (h *Handler) stage(ctx context.Context) error {
	if err := h.ws.SetMergeHead(h.set.Theirs); err != nil {
		return err
	}

	paths := make([]string, 0, len(h.set.Merged))
	for p := range h.set.Merged {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.ws.WriteWorktreeFile(p, h.set.Merged[p]); err != nil {
			return err
		}
	}

	for _, p := range h.set.Removed {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.ws.RemoveWorktreeFile(p); err != nil {
			return err
		}
	}

	for _, f := range h.set.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.write(f.Path, side(f, ChooseOurs)); err != nil {
			return err
		}
	}
	return nil
}

func side(f git.ConflictFile, c Choice) resolution {
	if c == ChooseTheirs {
		return resolution{data: f.Theirs, remove: !f.InTheirs, choice: c.String()}
	}
	return resolution{data: f.Ours, remove: !f.InOurs, choice: c.String()}
}

func (h *Handler) write(p string, r resolution) error {
	if r.remove {
		return h.ws.RemoveWorktreeFile(p)
	}
	return h.ws.WriteWorktreeFile(p, r.data)
}

// Resolve takes one side for path and writes it to the working copy.
func (h *Handler) Resolve(path string, c Choice) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := h.lookup(path)
	if err != nil {
		return err
	}
	return h.apply(path, side(*f, c))
}

// ResolveContent writes data as the resolution of path.
func (h *Handler) ResolveContent(path string, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.lookup(path); err != nil {
		return err
	}
	return h.apply(path, resolution{data: data, choice: "edited"})
}

// ResolveAll takes the same side for every conflicting file.
func (h *Handler) ResolveAll(c Choice) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateInitialized {
		return fmt.Errorf("%w: %s", ErrState, h.state)
	}
	for _, f := range h.set.Files {
		if err := h.apply(f.Path, side(f, c)); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) lookup(path string) (*git.ConflictFile, error) {
	if h.state != StateInitialized {
		return nil, fmt.Errorf("%w: %s", ErrState, h.state)
	}
	f, ok := h.set.File(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFile, path)
	}
	return f, nil
}

func (h *Handler) apply(path string, r resolution) error {
	if err := h.write(path, r); err != nil {
		return err
	}
	h.resolved[path] = r
	h.logger.Debug("conflict resolved", "path", path, "choice", r.choice)
	return nil
}

// Current returns the working copy content of a conflicting file.
func (h *Handler) Current(path string) ([]byte, error) {
	if _, ok := h.set.File(path); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFile, path)
	}
	return h.ws.ReadWorktreeFile(path)
}

// Unresolved returns the conflicting paths without a resolution.
func (h *Handler) Unresolved() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []string
	for _, f := range h.set.Files {
		if _, ok := h.resolved[f.Path]; !ok {
			out = append(out, f.Path)
		}
	}
	return out
}

// Merge commits the staged merge with the local and remote commits as
// parents. Files left unresolved keep the local version. An empty message
// uses the default merge message. On failure the working copy is reset to
// the local state.
func (h *Handler) Merge(ctx context.Context, message string) (string, error) {
	const op = "conflict.Merge"

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateInitialized {
		return "", mserrors.Wrap(ErrState, mserrors.CodeInvalidInput, op, string(h.state))
	}
	if message == "" {
		message = fmt.Sprintf("Merge branch '%s'", h.set.RemoteBranch)
	}

	sha, err := h.ws.CommitMerge(ctx, message, h.set.Theirs)
	if err != nil {
		code := mserrors.CodeInternal
		if ctx.Err() != nil {
			code = mserrors.CodeCancelled
		}
		if rerr := h.reset(context.WithoutCancel(ctx)); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return "", mserrors.Wrap(err, code, op, "committing merge")
	}

	h.state = StateMerged
	h.logger.InfoContext(ctx, "merge finished", "commit", sha, "resolved", len(h.resolved))
	return sha, nil
}

// ResetToLocalState abandons the merge: the branch and working copy return
// to the local commit, files introduced by the remote side are deleted and
// MERGE_HEAD is cleared. It may be called repeatedly and after a partial
// Init. It fails only once the merge has been committed.
func (h *Handler) ResetToLocalState(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case StateMerged:
		return fmt.Errorf("%w: %s", ErrState, h.state)
	case StateReset:
		return nil
	}
	if h.set == nil {
		h.state = StateReset
		return nil
	}
	if err := h.reset(ctx); err != nil {
		return mserrors.Wrap(err, mserrors.CodeInternal, "conflict.ResetToLocalState", "resetting working copy")
	}
	return nil
}

func (h *Handler) reset(ctx context.Context) error {
	var errs []error
	if err := h.ws.ResetHard(ctx, h.set.Ours); err != nil {
		errs = append(errs, err)
	}
	for _, p := range h.set.Added {
		if err := h.ws.RemoveWorktreeFile(p); err != nil {
			errs = append(errs, err)
		}
	}
	if err := h.ws.ClearMergeHead(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	h.state = StateReset
	h.resolved = map[string]resolution{}
	h.logger.InfoContext(ctx, "merge abandoned", "head", h.set.Ours.String())
	return nil
}
