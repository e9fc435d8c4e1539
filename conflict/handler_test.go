package conflict

import (
	"context"
	"errors"
	"maps"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mserrors "github.com/input-output-hk/catalyst-forge-libs/modelsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/git"
)

var (
	oursHash   = plumbing.NewHash("1111111111111111111111111111111111111111")
	theirsHash = plumbing.NewHash("2222222222222222222222222222222222222222")
	mergeHash  = plumbing.NewHash("3333333333333333333333333333333333333333")
)

// fakeWorkspace keeps the working copy in a map and restores the files of
// the local commit on reset.
type fakeWorkspace struct {
	head      plumbing.Hash
	files     map[string]string
	committed map[string]string
	mergeHead plumbing.Hash

	failWrite  string
	failCommit error
	writes     int
	commits    []string
	resets     int
}

func newFakeWorkspace(files map[string]string) *fakeWorkspace {
	return &fakeWorkspace{
		head:      oursHash,
		files:     maps.Clone(files),
		committed: maps.Clone(files),
	}
}

func (w *fakeWorkspace) Head() (plumbing.Hash, error) { return w.head, nil }

func (w *fakeWorkspace) WriteWorktreeFile(p string, data []byte) error {
	if p == w.failWrite {
		return errors.New("disk full")
	}
	w.writes++
	w.files[p] = string(data)
	return nil
}

func (w *fakeWorkspace) ReadWorktreeFile(p string) ([]byte, error) {
	s, ok := w.files[p]
	if !ok {
		return nil, errors.New("not found")
	}
	return []byte(s), nil
}

func (w *fakeWorkspace) RemoveWorktreeFile(p string) error {
	delete(w.files, p)
	return nil
}

func (w *fakeWorkspace) SetMergeHead(h plumbing.Hash) error {
	w.mergeHead = h
	return nil
}

func (w *fakeWorkspace) ClearMergeHead() error {
	w.mergeHead = plumbing.ZeroHash
	return nil
}

func (w *fakeWorkspace) CommitMerge(ctx context.Context, msg string, theirs plumbing.Hash) (string, error) {
	if w.failCommit != nil {
		return "", w.failCommit
	}
	w.commits = append(w.commits, msg)
	w.head = mergeHash
	w.committed = maps.Clone(w.files)
	w.mergeHead = plumbing.ZeroHash
	return mergeHash.String(), nil
}

// ResetHard restores tracked files only, like git: files the commit does
// not know about stay in place.
func (w *fakeWorkspace) ResetHard(ctx context.Context, h plumbing.Hash) error {
	w.resets++
	w.head = h
	for p, content := range w.committed {
		w.files[p] = content
	}
	return nil
}

func sampleSet() *git.ConflictSet {
	return &git.ConflictSet{
		RemoteBranch: "origin/master",
		Ours:         oursHash,
		Theirs:       theirsHash,
		Files: []git.ConflictFile{
			{Path: "model/a.yaml", Kind: git.ConflictModifyModify, Base: []byte("a\n"), Ours: []byte("a ours\n"), Theirs: []byte("a theirs\n"), InOurs: true, InTheirs: true},
			{Path: "model/b.yaml", Kind: git.ConflictDeleteModify, Base: []byte("b\n"), Theirs: []byte("b theirs\n"), InTheirs: true},
		},
		Merged:  map[string][]byte{"model/c.yaml": []byte("c theirs\n"), "model/new.yaml": []byte("new\n")},
		Removed: []string{"model/d.yaml"},
		Added:   []string{"model/b.yaml", "model/new.yaml"},
	}
}

func localFiles() map[string]string {
	return map[string]string{
		"model/a.yaml": "a ours\n",
		"model/c.yaml": "c\n",
		"model/d.yaml": "d\n",
	}
}

func TestHandler_Init(t *testing.T) {
	ws := newFakeWorkspace(localFiles())
	h := New(ws, sampleSet(), nil)
	assert.Equal(t, StateIdle, h.State())

	require.NoError(t, h.Init(context.Background()))
	assert.Equal(t, StateInitialized, h.State())
	assert.Equal(t, theirsHash, ws.mergeHead)
	assert.Equal(t, map[string]string{
		"model/a.yaml":   "a ours\n",
		"model/c.yaml":   "c theirs\n",
		"model/new.yaml": "new\n",
	}, ws.files)
	assert.Equal(t, []string{"model/a.yaml", "model/b.yaml"}, h.Unresolved())

	err := h.Init(context.Background())
	assert.ErrorIs(t, err, ErrState)
}

func TestHandler_InitFailureResets(t *testing.T) {
	ws := newFakeWorkspace(localFiles())
	ws.failWrite = "model/new.yaml"
	h := New(ws, sampleSet(), nil)

	err := h.Init(context.Background())
	require.Error(t, err)
	assert.Equal(t, mserrors.CodeConflictInit, mserrors.CodeOf(err))
	assert.Equal(t, StateReset, h.State())
	assert.Equal(t, localFiles(), ws.files)
	assert.True(t, ws.mergeHead.IsZero())
}

func TestHandler_InitCancelledResets(t *testing.T) {
	ws := newFakeWorkspace(localFiles())
	h := New(ws, sampleSet(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.Init(ctx)
	require.Error(t, err)
	assert.Equal(t, mserrors.CodeCancelled, mserrors.CodeOf(err))
	assert.Equal(t, StateReset, h.State())
	assert.Equal(t, localFiles(), ws.files)
	assert.Equal(t, 1, ws.resets)
}

func TestHandler_InitRejectsMovedHead(t *testing.T) {
	ws := newFakeWorkspace(localFiles())
	ws.head = mergeHash
	h := New(ws, sampleSet(), nil)

	err := h.Init(context.Background())
	assert.Equal(t, mserrors.CodeConflictInit, mserrors.CodeOf(err))
	assert.Equal(t, StateIdle, h.State())
	assert.Equal(t, 0, ws.writes)
}

func TestHandler_Resolve(t *testing.T) {
	ws := newFakeWorkspace(localFiles())
	h := New(ws, sampleSet(), nil)

	assert.ErrorIs(t, h.Resolve("model/a.yaml", ChooseTheirs), ErrState, "not initialized")
	require.NoError(t, h.Init(context.Background()))

	require.NoError(t, h.Resolve("model/a.yaml", ChooseTheirs))
	assert.Equal(t, "a theirs\n", ws.files["model/a.yaml"])

	require.NoError(t, h.Resolve("model/b.yaml", ChooseTheirs))
	assert.Equal(t, "b theirs\n", ws.files["model/b.yaml"])
	require.NoError(t, h.Resolve("model/b.yaml", ChooseOurs))
	_, exists := ws.files["model/b.yaml"]
	assert.False(t, exists, "ours deleted the file")

	require.NoError(t, h.ResolveContent("model/a.yaml", []byte("a edited\n")))
	got, err := h.Current("model/a.yaml")
	require.NoError(t, err)
	assert.Equal(t, "a edited\n", string(got))

	assert.Empty(t, h.Unresolved())
	assert.ErrorIs(t, h.Resolve("model/c.yaml", ChooseOurs), ErrUnknownFile)
	assert.ErrorIs(t, h.ResolveContent("model/zzz.yaml", nil), ErrUnknownFile)
}

func TestHandler_ResolveAll(t *testing.T) {
	ws := newFakeWorkspace(localFiles())
	h := New(ws, sampleSet(), nil)
	require.NoError(t, h.Init(context.Background()))

	require.NoError(t, h.ResolveAll(ChooseTheirs))
	assert.Equal(t, "a theirs\n", ws.files["model/a.yaml"])
	assert.Equal(t, "b theirs\n", ws.files["model/b.yaml"])
	assert.Empty(t, h.Unresolved())
}

func TestHandler_Merge(t *testing.T) {
	ws := newFakeWorkspace(localFiles())
	h := New(ws, sampleSet(), nil)

	_, err := h.Merge(context.Background(), "")
	assert.ErrorIs(t, err, ErrState)

	require.NoError(t, h.Init(context.Background()))
	require.NoError(t, h.Resolve("model/a.yaml", ChooseTheirs))

	sha, err := h.Merge(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, mergeHash.String(), sha)
	assert.Equal(t, StateMerged, h.State())
	assert.Equal(t, []string{"Merge branch 'origin/master'"}, ws.commits)
	assert.Equal(t, "a theirs\n", ws.committed["model/a.yaml"])

	assert.ErrorIs(t, h.ResetToLocalState(context.Background()), ErrState)
	_, err = h.Merge(context.Background(), "again")
	assert.ErrorIs(t, err, ErrState)
}

func TestHandler_MergeFailureResets(t *testing.T) {
	ws := newFakeWorkspace(localFiles())
	ws.failCommit = errors.New("no identity")
	h := New(ws, sampleSet(), nil)
	require.NoError(t, h.Init(context.Background()))

	_, err := h.Merge(context.Background(), "Merge")
	require.Error(t, err)
	assert.Equal(t, mserrors.CodeInternal, mserrors.CodeOf(err))
	assert.Equal(t, StateReset, h.State())
	assert.Equal(t, localFiles(), ws.files)
}

func TestHandler_ResetToLocalState(t *testing.T) {
	ws := newFakeWorkspace(localFiles())
	h := New(ws, sampleSet(), nil)
	require.NoError(t, h.Init(context.Background()))
	require.NoError(t, h.Resolve("model/b.yaml", ChooseTheirs))

	require.NoError(t, h.ResetToLocalState(context.Background()))
	assert.Equal(t, StateReset, h.State())
	assert.Equal(t, localFiles(), ws.files)
	assert.Equal(t, oursHash, ws.head)
	assert.True(t, ws.mergeHead.IsZero())

	require.NoError(t, h.ResetToLocalState(context.Background()), "reset is idempotent")
	assert.Equal(t, 1, ws.resets)
}

func TestHandler_ResetBeforeInit(t *testing.T) {
	ws := newFakeWorkspace(localFiles())
	h := New(ws, sampleSet(), nil)

	require.NoError(t, h.ResetToLocalState(context.Background()))
	assert.Equal(t, StateReset, h.State())
	assert.Equal(t, localFiles(), ws.files)

	assert.ErrorIs(t, h.Init(context.Background()), ErrState)
}

func TestHandler_NilSet(t *testing.T) {
	h := New(newFakeWorkspace(nil), nil, nil)
	err := h.Init(context.Background())
	assert.Equal(t, mserrors.CodeInvalidInput, mserrors.CodeOf(err))
	require.NoError(t, h.ResetToLocalState(context.Background()))
}

func TestHandler_Diff(t *testing.T) {
	h := New(newFakeWorkspace(localFiles()), sampleSet(), nil)

	diff, err := h.Diff("model/a.yaml")
	require.NoError(t, err)
	assert.Contains(t, diff, "--- ours/model/a.yaml\n+++ theirs/model/a.yaml\n@@ ")
	assert.Contains(t, diff, "-a ours\n+a theirs\n")

	diff, err = h.Diff("model/b.yaml")
	require.NoError(t, err)
	assert.Contains(t, diff, "--- /dev/null\n+++ theirs/model/b.yaml\n")
	assert.Contains(t, diff, "+b theirs\n")

	_, err = h.Diff("model/c.yaml")
	assert.ErrorIs(t, err, ErrUnknownFile)
}

func TestChoice_String(t *testing.T) {
	assert.Equal(t, "ours", ChooseOurs.String())
	assert.Equal(t, "theirs", ChooseTheirs.String())
}
