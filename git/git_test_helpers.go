package git

import (
	"context"
	"testing"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/client"
	"github.com/go-git/go-git/v5/plumbing/transport/server"
	billyfs "github.com/input-output-hk/catalyst-forge-libs/fs/billy"
	"github.com/stretchr/testify/require"
)

// testRepo is a helper struct that contains a test repository and its filesystem
type testRepo struct {
	repo *Repo
	fs   *billyfs.FS
	ctx  context.Context
}

var testIdentity = Identity{Name: "Test User", Email: "test@example.com"}

// setupTestRepo creates a new repository on an in-memory filesystem with a
// configured identity.
func setupTestRepo(t *testing.T) *testRepo {
	t.Helper()

	ctx := context.Background()
	memFS := billyfs.NewInMemoryFS()

	repo, err := Init(ctx, &Options{FS: memFS})
	require.NoError(t, err, "failed to initialize test repository")
	require.NoError(t, repo.SetUserIdentity(testIdentity))

	return &testRepo{repo: repo, fs: memFS, ctx: ctx}
}

// setupTestRepoWithCommit creates a test repository with an initial commit
// of test.txt.
func setupTestRepoWithCommit(t *testing.T) *testRepo {
	t.Helper()

	tr := setupTestRepo(t)
	tr.writeFile(t, "test.txt", "initial content")
	tr.commit(t, "Initial commit")
	return tr
}

// writeFile writes content to path in the working copy.
func (tr *testRepo) writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, tr.repo.WriteWorktreeFile(path, []byte(content)), "failed to write %s", path)
}

// readFile returns the content of path in the working copy.
func (tr *testRepo) readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := util.ReadFile(tr.repo.Worktree(), path)
	require.NoError(t, err, "failed to read %s", path)
	return string(data)
}

// exists reports whether path exists in the working copy.
func (tr *testRepo) exists(path string) bool {
	_, err := tr.repo.Worktree().Stat(path)
	return err == nil
}

// commit stages everything and commits it.
func (tr *testRepo) commit(t *testing.T, msg string) plumbing.Hash {
	t.Helper()
	sha, err := tr.repo.CommitChanges(tr.ctx, msg, false)
	require.NoError(t, err, "failed to commit")
	return plumbing.NewHash(sha)
}

// apply writes each entry of files; an empty content deletes the file.
func (tr *testRepo) apply(t *testing.T, files map[string]string) {
	t.Helper()
	for p, content := range files {
		if content == "" {
			require.NoError(t, tr.repo.RemoveWorktreeFile(p))
			continue
		}
		tr.writeFile(t, p, content)
	}
}

// setRemoteBranch points the tracking branch of branch at hash.
func (tr *testRepo) setRemoteBranch(t *testing.T, branch string, hash plumbing.Hash) {
	t.Helper()
	ref := plumbing.NewHashReference(plumbing.NewRemoteReferenceName(DefaultRemoteName, branch), hash)
	require.NoError(t, tr.repo.repo.Storer.SetReference(ref), "failed to create remote branch reference")
}

// history describes a local and remote history forked from a common base.
type history struct {
	base, ours, theirs plumbing.Hash
}

// diverge commits base, then commits theirs on top of it as the remote
// tracking branch and ours on top of it as the local branch. An empty
// content in ours or theirs deletes the file.
func (tr *testRepo) diverge(t *testing.T, base, ours, theirs map[string]string) history {
	t.Helper()

	var h history
	tr.apply(t, base)
	h.base = tr.commit(t, "base")

	tr.apply(t, theirs)
	h.theirs = tr.commit(t, "theirs")

	require.NoError(t, tr.repo.ResetHard(tr.ctx, h.base))
	for p := range theirs {
		if content, ok := base[p]; ok {
			tr.writeFile(t, p, content)
		} else {
			require.NoError(t, tr.repo.RemoveWorktreeFile(p))
		}
	}

	tr.apply(t, ours)
	h.ours = tr.commit(t, "ours")

	tr.setRemoteBranch(t, "master", h.theirs)
	return h
}

// parents returns the parent hashes of the commit hash.
func (tr *testRepo) parents(t *testing.T, hash plumbing.Hash) []plumbing.Hash {
	t.Helper()
	c, err := tr.repo.repo.CommitObject(hash)
	require.NoError(t, err)
	return c.ParentHashes
}

// serveFileRemotes answers file:// URLs with an in-process server for the
// duration of the test.
func serveFileRemotes(t *testing.T) {
	t.Helper()
	prev := client.Protocols["file"]
	client.InstallProtocol("file", server.NewClient(server.DefaultLoader))
	t.Cleanup(func() { client.InstallProtocol("file", prev) })
}

// addRemote creates an empty bare repository on disk and configures it as
// the remote of tr. It returns the remote URL.
func (tr *testRepo) addRemote(t *testing.T) string {
	t.Helper()
	serveFileRemotes(t)

	dir := t.TempDir()
	_, err := Init(tr.ctx, &Options{FS: billyfs.NewOSFS(dir), Bare: true})
	require.NoError(t, err, "failed to initialize remote")
	require.NoError(t, tr.repo.SetRemoteURL(tr.ctx, dir))
	return dir
}

// cloneRepo clones url into a new in-memory repository with an identity.
func cloneRepo(t *testing.T, url string) *testRepo {
	t.Helper()

	ctx := context.Background()
	memFS := billyfs.NewInMemoryFS()
	repo, err := Clone(ctx, url, nil, nil, &Options{FS: memFS})
	require.NoError(t, err, "failed to clone %s", url)
	require.NoError(t, repo.SetUserIdentity(testIdentity))
	return &testRepo{repo: repo, fs: memFS, ctx: ctx}
}

// tagHash returns the object the local tag name points at.
func (tr *testRepo) tagHash(t *testing.T, name string) plumbing.Hash {
	t.Helper()
	ref, err := tr.repo.repo.Reference(plumbing.NewTagReferenceName(name), false)
	require.NoError(t, err, "failed to read tag %s", name)
	return ref.Hash()
}

// push pushes tr and fails the test on any refused update.
func (tr *testRepo) push(t *testing.T) *PushOutcome {
	t.Helper()
	out, err := tr.repo.PushToRemote(tr.ctx, nil, nil)
	require.NoError(t, err)
	require.NoError(t, out.Err())
	return out
}
