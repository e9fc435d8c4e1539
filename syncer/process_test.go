package syncer

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	billyfs "github.com/input-output-hk/catalyst-forge-libs/fs/billy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/modelsync/checksum"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/conflict"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/credentials"
	mserrors "github.com/input-output-hk/catalyst-forge-libs/modelsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/git"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/grafico"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/internal/fsbridge"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/model"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/model/modeltest"
)

// fakeRepo is a real in-memory repository whose network operations are
// replaced. Without a pull func, pulls integrate the local tracking branch.
type fakeRepo struct {
	*git.Repo

	pull func(ctx context.Context) (*git.PullOutcome, error)
	push func(ctx context.Context) (*git.PushOutcome, error)

	pulls, pushes int
}

func (f *fakeRepo) PullFromRemote(ctx context.Context, _ git.Network, _ io.Writer) (*git.PullOutcome, error) {
	f.pulls++
	if f.pull != nil {
		return f.pull(ctx)
	}
	return f.IntegrateRemote(ctx)
}

func (f *fakeRepo) PushToRemote(ctx context.Context, _ git.Network, _ io.Writer) (*git.PushOutcome, error) {
	f.pushes++
	if f.push != nil {
		return f.push(ctx)
	}
	return &git.PushOutcome{
		Remote:  "origin",
		Updates: []git.RefUpdate{{Ref: "refs/heads/master", Status: git.RefOK}},
	}, nil
}

func newFakeRepo(t *testing.T) *fakeRepo {
	t.Helper()
	r, err := git.Init(t.Context(), &git.Options{FS: billyfs.NewInMemoryFS()})
	require.NoError(t, err)
	require.NoError(t, r.SetUserIdentity(git.Identity{Name: "Test User", Email: "test@example.com"}))
	return &fakeRepo{Repo: r}
}

func (f *fakeRepo) head(t *testing.T) plumbing.Hash {
	t.Helper()
	h, err := f.Head()
	require.NoError(t, err)
	return h
}

// setTracking points origin/master at hash.
func (f *fakeRepo) setTracking(t *testing.T, hash plumbing.Hash) {
	t.Helper()
	st := fsbridge.NewStorage(f.Metadata(), 0)
	ref := plumbing.NewHashReference(plumbing.NewRemoteReferenceName(git.DefaultRemoteName, "master"), hash)
	require.NoError(t, st.SetReference(ref))
}

// forkRemote records remote as a commit on top of HEAD, makes it the
// tracking branch and restores the working copy to the previous HEAD.
func (f *fakeRepo) forkRemote(t *testing.T, base, remote *model.Model) plumbing.Hash {
	t.Helper()
	ctx := t.Context()
	s := grafico.New(f.Worktree())

	baseHead := f.head(t)
	_, err := s.Export(ctx, remote)
	require.NoError(t, err)
	sha, err := f.CommitChanges(ctx, "remote edit", false)
	require.NoError(t, err)

	require.NoError(t, f.ResetHard(ctx, baseHead))
	_, err = s.Export(ctx, base)
	require.NoError(t, err)

	theirs := plumbing.NewHash(sha)
	f.setTracking(t, theirs)
	return theirs
}

type recorder struct {
	events []Event
}

func (r *recorder) OnEvent(e Event) {
	r.events = append(r.events, e)
}

func (r *recorder) types() []EventType {
	types := make([]EventType, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

func (r *recorder) find(t EventType) (Event, bool) {
	for _, e := range r.events {
		if e.Type == t {
			return e, true
		}
	}
	return Event{}, false
}

func renamed(m *model.Model, id, name string) *model.Model {
	c := m.Clone()
	e, ok := c.Lookup(id)
	if ok {
		e.Name = name
	}
	return c
}

// committedBase commits the sample model through a commit run.
func committedBase(t *testing.T, f *fakeRepo) *model.Model {
	t.Helper()
	base := modeltest.Sample()
	out := New(f).Run(t.Context(), Request{Mode: ModeCommit, Model: base.Clone()})
	require.Equal(t, StatusCommitted, out.Status, "base commit: %v", out.Err)
	return base
}

func TestRun_Commit(t *testing.T) {
	f := newFakeRepo(t)
	rec := &recorder{}
	p := New(f, WithListener(rec))
	session := credentials.NewSession(credentials.Credentials{})

	out := p.Run(t.Context(), Request{Mode: ModeCommit, Model: modeltest.Sample(), Network: session})

	require.NoError(t, out.Err)
	assert.Equal(t, StatusCommitted, out.Status)
	assert.Equal(t, f.head(t).String(), out.Commit)
	assert.Zero(t, f.pulls)
	assert.Zero(t, f.pushes)
	assert.True(t, session.Closed())
	assert.Equal(t, []EventType{EventStartCommit, EventEndCommit}, rec.types())

	current, err := grafico.New(f.Worktree()).Current()
	require.NoError(t, err)
	stored, ok, err := checksum.NewTracker(f.Metadata()).Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, checksum.Compute(current), stored)
	assert.Equal(t, stored, out.Checksum)

	t.Run("nothing to commit", func(t *testing.T) {
		again := p.Run(t.Context(), Request{Mode: ModeCommit, Model: modeltest.Sample()})
		require.NoError(t, again.Err)
		assert.Equal(t, StatusUpToDate, again.Status)
		assert.Empty(t, again.Commit)
	})
}

func TestRun_CommitMessageAndAmend(t *testing.T) {
	f := newFakeRepo(t)
	p := New(f)

	out := p.Run(t.Context(), Request{Mode: ModeCommit, Model: modeltest.Sample()})
	require.NoError(t, out.Err)

	log, err := f.Log(t.Context(), git.LogFilter{})
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, DefaultMessage, log[0].Subject)

	edited := renamed(modeltest.Sample(), "id-actor", "Client")
	out = p.Run(t.Context(), Request{Mode: ModeCommit, Model: edited, Message: "Rename actor", Amend: true})
	require.NoError(t, out.Err)
	assert.Equal(t, StatusCommitted, out.Status)

	log, err = f.Log(t.Context(), git.LogFilter{})
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "Rename actor", log[0].Subject)
}

func TestRun_ExportFailure(t *testing.T) {
	f := newFakeRepo(t)
	rec := &recorder{}
	session := credentials.NewSession(credentials.Credentials{})

	broken := modeltest.Sample()
	for i := range broken.Folders {
		for j := range broken.Folders[i].Relationships {
			broken.Folders[i].Relationships[j].Target = "id-missing"
		}
	}

	out := New(f, WithListener(rec)).Run(t.Context(), Request{Mode: ModePublish, Model: broken, Network: session})

	assert.Equal(t, StatusError, out.Status)
	assert.True(t, mserrors.HasCode(out.Err, mserrors.CodeSerialization))
	assert.True(t, f.head(t).IsZero())
	assert.Zero(t, f.pulls)
	assert.True(t, session.Closed())

	ev, ok := rec.find(EventLogError)
	require.True(t, ok)
	assert.NotEmpty(t, ev.Detail)
	assert.Equal(t, []EventType{EventStartCommit, EventEndCommit, EventLogError}, rec.types())
}

func TestRun_RefreshUpToDate(t *testing.T) {
	f := newFakeRepo(t)
	base := committedBase(t, f)
	head := f.head(t)
	f.setTracking(t, head)

	rec := &recorder{}
	session := credentials.NewSession(credentials.Credentials{Password: "token"})
	out := New(f, WithListener(rec)).Run(t.Context(), Request{Mode: ModeRefresh, Model: base, Network: session})

	require.NoError(t, out.Err)
	assert.Equal(t, StatusUpToDate, out.Status)
	assert.Equal(t, git.PullUpToDate, out.Pull.Kind)
	assert.Equal(t, head, f.head(t))
	assert.Empty(t, out.Commit)
	assert.True(t, session.Closed())
	assert.NotEmpty(t, out.Checksum)

	assert.Equal(t, []EventType{
		EventStartCommit, EventEndCommit,
		EventStartPull, EventPullStatus, EventEndPull,
	}, rec.types())
	ev, _ := rec.find(EventPullStatus)
	assert.Equal(t, PullUpToDate, ev.PullStatus)
}

func TestRun_RefreshMissingRemoteBranch(t *testing.T) {
	f := newFakeRepo(t)
	base := committedBase(t, f)

	out := New(f).Run(t.Context(), Request{Mode: ModeRefresh, Model: base})

	require.NoError(t, out.Err)
	assert.Equal(t, StatusPulledOK, out.Status)
	assert.True(t, out.Pull.RefMissing)
}

func TestRun_RefreshFastForward(t *testing.T) {
	f := newFakeRepo(t)
	base := committedBase(t, f)
	remote := renamed(base, "id-actor", "Remote Customer")
	theirs := f.forkRemote(t, base, remote)

	local := base.Clone()
	out := New(f).Run(t.Context(), Request{Mode: ModeRefresh, Model: local})

	require.NoError(t, out.Err)
	assert.Equal(t, StatusPulledOK, out.Status)
	assert.Equal(t, git.PullFastForward, out.Pull.Kind)
	assert.Equal(t, theirs, f.head(t))
	assert.Equal(t, "Remote Customer", local.NameOf("id-actor"))
	assert.True(t, local.Equal(remote))
	assert.Same(t, local, out.Model)

	dirty, err := f.HasChangesToCommit(t.Context())
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestRun_RefreshAnnotatesRepairs(t *testing.T) {
	f := newFakeRepo(t)
	base := committedBase(t, f)
	ctx := t.Context()

	broken := "model/business/BusinessActor_id-broken.yaml"
	baseHead := f.head(t)
	require.NoError(t, f.WriteWorktreeFile(broken, []byte("kind: element\nid: id-broken\nname: Broken\n")))
	sha, err := f.CommitChanges(ctx, "remote edit", false)
	require.NoError(t, err)
	require.NoError(t, f.ResetHard(ctx, baseHead))
	_, err = grafico.New(f.Worktree()).Export(ctx, base)
	require.NoError(t, err)
	f.setTracking(t, plumbing.NewHash(sha))

	local := base.Clone()
	out := New(f).Run(ctx, Request{Mode: ModeRefresh, Model: local})

	require.NoError(t, out.Err)
	assert.Equal(t, StatusPulledOK, out.Status)
	assert.Equal(t, git.PullFastForward, out.Pull.Kind)
	assert.True(t, local.Equal(base))

	require.NotNil(t, out.Repairs)
	require.Len(t, out.Repairs.Removed, 1)
	assert.Equal(t, "id-broken", out.Repairs.Removed[0].ID)
	assert.Equal(t, "incomplete fragment", out.Repairs.Removed[0].Reason)

	log, err := f.Log(ctx, git.LogFilter{MaxCount: 1})
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, out.Commit, log[0].Hash)
	assert.Equal(t, ReloadMessage, log[0].Subject)
	assert.Contains(t, log[0].Message, "Removed objects:\n- Broken (id-broken): incomplete fragment")

	_, err = f.Worktree().Stat(broken)
	assert.Error(t, err, "the repaired export drops the broken fragment")
	dirty, err := f.HasChangesToCommit(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestRun_ConflictDeclined(t *testing.T) {
	f := newFakeRepo(t)
	base := committedBase(t, f)
	f.forkRemote(t, base, renamed(base, "id-actor", "Remote Customer"))

	var seen []string
	rec := &recorder{}
	resolver := ResolverFunc(func(_ context.Context, h *conflict.Handler) bool {
		assert.Equal(t, conflict.StateInitialized, h.State())
		for _, file := range h.Files() {
			seen = append(seen, file.Path)
		}
		return false
	})

	local := renamed(base, "id-actor", "Local Customer")
	out := New(f, WithListener(rec), WithResolver(resolver)).Run(t.Context(), Request{Mode: ModePublish, Model: local})

	require.NoError(t, out.Err)
	assert.Equal(t, StatusMergeCancelled, out.Status)
	assert.Equal(t, git.PullConflict, out.Pull.Kind)
	require.Len(t, seen, 1)
	assert.Contains(t, seen[0], "id-actor")
	assert.Zero(t, f.pushes)

	assert.Equal(t, out.Commit, f.head(t).String())
	_, merging := f.MergeHead()
	assert.False(t, merging)
	assert.Equal(t, "Local Customer", local.NameOf("id-actor"))

	want, err := grafico.Render(local, grafico.DefaultRoot)
	require.NoError(t, err)
	got, err := grafico.New(f.Worktree()).Current()
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	assert.Equal(t, []EventType{
		EventStartCommit, EventEndCommit,
		EventStartPull, EventConflictResolution, EventPullStatus, EventEndPull,
	}, rec.types())
	ev, _ := rec.find(EventPullStatus)
	assert.Equal(t, PullMergeCancelled, ev.PullStatus)
}

func TestRun_ConflictWithoutResolver(t *testing.T) {
	f := newFakeRepo(t)
	base := committedBase(t, f)
	f.forkRemote(t, base, renamed(base, "id-actor", "Remote Customer"))

	out := New(f).Run(t.Context(), Request{Mode: ModeRefresh, Model: renamed(base, "id-actor", "Local Customer")})

	require.NoError(t, out.Err)
	assert.Equal(t, StatusMergeCancelled, out.Status)
}

func TestRun_ConflictAccepted(t *testing.T) {
	f := newFakeRepo(t)
	base := committedBase(t, f)
	f.forkRemote(t, base, renamed(base, "id-actor", "Remote Customer"))

	local := renamed(base, "id-actor", "Local Customer")
	out := New(f, WithResolver(PreferRemote)).Run(t.Context(), Request{Mode: ModePublish, Model: local})

	require.NoError(t, out.Err)
	assert.Equal(t, StatusPushedOK, out.Status)
	assert.Equal(t, 1, f.pushes)
	assert.Equal(t, "Remote Customer", local.NameOf("id-actor"))

	log, err := f.Log(t.Context(), git.LogFilter{MaxCount: 1})
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.True(t, log[0].IsMerge())
	assert.Equal(t, log[0].Hash, out.Commit)

	_, merging := f.MergeHead()
	assert.False(t, merging)

	set, err := grafico.New(f.Worktree()).Current()
	require.NoError(t, err)
	merged := checksum.Compute(set)
	assert.Equal(t, merged, out.Checksum, "the merge commit records its own digest")
	saved, ok, err := checksum.NewTracker(f.Metadata()).Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, merged, saved)
}

func TestRun_RequestResolverOverrides(t *testing.T) {
	f := newFakeRepo(t)
	base := committedBase(t, f)
	f.forkRemote(t, base, renamed(base, "id-actor", "Remote Customer"))

	local := renamed(base, "id-actor", "Local Customer")
	p := New(f, WithResolver(KeepLocal))
	out := p.Run(t.Context(), Request{Mode: ModeRefresh, Model: local, Resolver: PreferRemote})

	require.NoError(t, out.Err)
	assert.Equal(t, StatusPulledOK, out.Status)
	assert.Equal(t, "Remote Customer", local.NameOf("id-actor"))
}

func TestRun_PushRejected(t *testing.T) {
	f := newFakeRepo(t)
	base := committedBase(t, f)
	f.setTracking(t, f.head(t))
	f.push = func(context.Context) (*git.PushOutcome, error) {
		return &git.PushOutcome{Remote: "origin", Updates: []git.RefUpdate{
			{Ref: "refs/heads/master", Status: git.RefOK},
			{Ref: "refs/tags/v1", Status: git.RefRejected, Message: "not a fast-forward"},
			{Ref: "refs/tags/v2", Status: git.RefUpToDate},
		}}, nil
	}

	rec := &recorder{}
	session := credentials.NewSession(credentials.Credentials{})
	out := New(f, WithListener(rec)).Run(t.Context(), Request{Mode: ModePublish, Model: base, Network: session})

	assert.Equal(t, StatusError, out.Status)
	assert.True(t, mserrors.HasCode(out.Err, mserrors.CodePushRejected))
	require.Len(t, out.PushFailures, 1)
	assert.Equal(t, "refs/tags/v1", out.PushFailures[0].Ref)
	assert.Contains(t, out.Err.Error(), "refs/tags/v1")
	assert.NotContains(t, out.Err.Error(), "refs/tags/v2")
	assert.True(t, session.Closed())

	assert.Equal(t, []EventType{
		EventStartCommit, EventEndCommit,
		EventStartPull, EventPullStatus, EventEndPull,
		EventStartPush, EventEndPush, EventLogError,
	}, rec.types())
}

func TestRun_PullError(t *testing.T) {
	f := newFakeRepo(t)
	base := committedBase(t, f)
	f.pull = func(context.Context) (*git.PullOutcome, error) {
		cause := errors.New("connection refused")
		return nil, mserrors.Wrap(cause, mserrors.CodeTransport, "git.Fetch", "network operation failed")
	}

	rec := &recorder{}
	session := credentials.NewSession(credentials.Credentials{})
	out := New(f, WithListener(rec)).Run(t.Context(), Request{Mode: ModePublish, Model: base, Network: session})

	assert.Equal(t, StatusError, out.Status)
	assert.True(t, mserrors.HasCode(out.Err, mserrors.CodeTransport))
	assert.Zero(t, f.pushes)
	assert.True(t, session.Closed())

	ev, _ := rec.find(EventPullStatus)
	assert.Equal(t, PullError, ev.PullStatus)
	ev, ok := rec.find(EventLogError)
	require.True(t, ok)
	assert.Equal(t, "connection refused", ev.Detail)
}

func TestRun_Guards(t *testing.T) {
	t.Run("run active", func(t *testing.T) {
		f := newFakeRepo(t)
		g := NewGuard()
		require.True(t, g.TryAcquire(f.LocalFolder()))
		session := credentials.NewSession(credentials.Credentials{})

		out := New(f, WithGuard(g)).Run(t.Context(), Request{Mode: ModeCommit, Model: modeltest.Sample(), Network: session})

		assert.Equal(t, StatusError, out.Status)
		assert.ErrorIs(t, out.Err, ErrRunActive)
		assert.True(t, session.Closed())
		assert.True(t, g.Active(f.LocalFolder()))
	})

	t.Run("conflict active", func(t *testing.T) {
		f := newFakeRepo(t)
		committedBase(t, f)
		require.NoError(t, f.SetMergeHead(f.head(t)))

		p := New(f)
		out := p.Run(t.Context(), Request{Mode: ModeRefresh, Model: modeltest.Sample()})

		assert.Equal(t, StatusError, out.Status)
		assert.ErrorIs(t, out.Err, ErrConflictActive)
		assert.Zero(t, f.pulls)
		assert.False(t, p.Guard().Active(f.LocalFolder()))
	})

	t.Run("missing model", func(t *testing.T) {
		f := newFakeRepo(t)
		out := New(f).Run(t.Context(), Request{Mode: ModeCommit})

		assert.Equal(t, StatusError, out.Status)
		assert.True(t, mserrors.HasCode(out.Err, mserrors.CodeInvalidInput))
	})
}

func TestRun_Cancelled(t *testing.T) {
	f := newFakeRepo(t)
	committedBase(t, f)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	out := New(f).Run(ctx, Request{Mode: ModeCommit, Model: renamed(modeltest.Sample(), "id-actor", "Other")})

	assert.Equal(t, StatusError, out.Status)
	assert.True(t, mserrors.HasCode(out.Err, mserrors.CodeCancelled))
}

func TestMode(t *testing.T) {
	tests := []struct {
		name string
		mode Mode
	}{
		{name: "commit", mode: ModeCommit},
		{name: "refresh", mode: ModeRefresh},
		{name: "publish", mode: ModePublish},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.mode.String())
			got, err := ParseMode(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.mode, got)
		})
	}

	_, err := ParseMode("sync")
	assert.True(t, mserrors.HasCode(err, mserrors.CodeInvalidInput))
	assert.Equal(t, "unknown", Mode(9).String())
}
