package poll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	billyfs "github.com/input-output-hk/catalyst-forge-libs/fs/billy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/modelsync/credentials"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/git"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/model/modeltest"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/syncer"
)

type fakeChecker struct {
	mu     sync.Mutex
	calls  int
	found  bool
	err    error
	gotNet git.Network
}

func (f *fakeChecker) RemoteHasNewCommits(_ context.Context, net git.Network) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.gotNet = net
	return f.found, f.err
}

func (f *fakeChecker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// slowChecker blocks until its context is done, as a check against an
// unresponsive remote would.
type slowChecker struct {
	started chan struct{}
	stopped chan error
}

func (s *slowChecker) RemoteHasNewCommits(ctx context.Context, _ git.Network) (bool, error) {
	close(s.started)
	<-ctx.Done()
	s.stopped <- context.Cause(ctx)
	return true, ctx.Err()
}

func TestCheck(t *testing.T) {
	t.Run("new commits notify", func(t *testing.T) {
		checker := &fakeChecker{found: true}
		guard := syncer.NewGuard()
		notified := false
		p := New(checker, "/repo", WithGuard(guard), WithNotify(func(context.Context) {
			notified = true
			assert.False(t, guard.Active("/repo"))
		}))

		found, err := p.Check(t.Context())
		require.NoError(t, err)
		assert.True(t, found)
		assert.True(t, notified)
		assert.Nil(t, checker.gotNet)
	})

	t.Run("nothing new", func(t *testing.T) {
		checker := &fakeChecker{}
		notified := false
		p := New(checker, "/repo", WithNotify(func(context.Context) { notified = true }))

		found, err := p.Check(t.Context())
		require.NoError(t, err)
		assert.False(t, found)
		assert.False(t, notified)
	})

	t.Run("busy repository is skipped", func(t *testing.T) {
		checker := &fakeChecker{found: true}
		guard := syncer.NewGuard()
		require.True(t, guard.TryAcquire("/repo"))

		_, err := New(checker, "/repo", WithGuard(guard)).Check(t.Context())
		assert.ErrorIs(t, err, ErrBusy)
		assert.Zero(t, checker.count())
		assert.True(t, guard.Active("/repo"))
	})

	t.Run("session is closed", func(t *testing.T) {
		checker := &fakeChecker{}
		session := credentials.NewSession(credentials.Credentials{Password: "token"})
		p := New(checker, "/repo", WithSession(func() (syncer.Session, error) { return session, nil }))

		_, err := p.Check(t.Context())
		require.NoError(t, err)
		assert.Same(t, session, checker.gotNet)
		assert.True(t, session.Closed())
	})

	t.Run("session failure", func(t *testing.T) {
		checker := &fakeChecker{}
		guard := syncer.NewGuard()
		p := New(checker, "/repo", WithGuard(guard), WithSession(func() (syncer.Session, error) {
			return nil, errors.New("no key")
		}))

		_, err := p.Check(t.Context())
		assert.EqualError(t, err, "no key")
		assert.Zero(t, checker.count())
		assert.False(t, guard.Active("/repo"))
	})
}

func TestCheck_YieldsToSynchronization(t *testing.T) {
	repo, err := git.Init(t.Context(), &git.Options{FS: billyfs.NewInMemoryFS()})
	require.NoError(t, err)
	require.NoError(t, repo.SetUserIdentity(git.Identity{Name: "Test User", Email: "test@example.com"}))

	guard := syncer.NewGuard()
	checker := &slowChecker{started: make(chan struct{}), stopped: make(chan error, 1)}
	notified := false
	p := New(checker, repo.LocalFolder(), WithGuard(guard), WithNotify(func(context.Context) { notified = true }))

	done := make(chan error, 1)
	go func() {
		_, err := p.Check(t.Context())
		done <- err
	}()
	<-checker.started
	require.True(t, guard.Active(repo.LocalFolder()))

	out := syncer.New(repo, syncer.WithGuard(guard)).Run(t.Context(), syncer.Request{
		Mode:  syncer.ModeCommit,
		Model: modeltest.Sample(),
	})
	require.NoError(t, out.Err)
	assert.Equal(t, syncer.StatusCommitted, out.Status)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrBusy)
	case <-time.After(time.Second):
		t.Fatal("check did not yield")
	}
	assert.ErrorIs(t, <-checker.stopped, syncer.ErrPreempted)
	assert.False(t, notified)
	assert.False(t, guard.Active(repo.LocalFolder()), "run released the repository")
}

func TestRun(t *testing.T) {
	checker := &fakeChecker{err: errors.New("offline")}
	p := New(checker, "/repo", WithInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return checker.count() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestNew_Defaults(t *testing.T) {
	p := New(&fakeChecker{}, "/repo", WithInterval(-time.Second))
	assert.Equal(t, DefaultInterval, p.Interval())
}
