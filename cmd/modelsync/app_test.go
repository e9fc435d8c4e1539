package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/modelsync/git"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/grafico"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/model"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/model/modeltest"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/syncer"
)

// harness runs the command line against a repository in dir with a private
// configuration and key file.
type harness struct {
	t    *testing.T
	home string
	dir  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	home := t.TempDir()
	return &harness{t: t, home: home, dir: filepath.Join(home, "repo")}
}

func (c *harness) run(args ...string) (string, error) {
	c.t.Helper()
	var out, errOut bytes.Buffer
	a := newApp(strings.NewReader(""), &out, &errOut)
	argv := append([]string{
		"modelsync",
		"--config", filepath.Join(c.home, "config.yaml"),
		"--key-file", filepath.Join(c.home, "credentials.key"),
		"-C", c.dir,
	}, args...)
	err := a.command().Run(context.Background(), argv)
	return out.String(), err
}

func (c *harness) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, out)
	return out
}

func TestModelFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "model.yaml")

	require.NoError(t, writeModel(p, modeltest.Sample()))
	got, err := readModel(p)
	require.NoError(t, err)
	assert.True(t, got.Equal(modeltest.Sample()))

	entries, err := os.ReadDir(filepath.Dir(p))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file removed")

	require.NoError(t, os.WriteFile(p, []byte("folders: [\n"), 0o644))
	_, err = readModel(p)
	assert.Error(t, err)

	_, err = readModel(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCreateModel(t *testing.T) {
	p := filepath.Join(t.TempDir(), "Shop.yaml")
	require.NoError(t, createModel(p))

	m, err := readModel(p)
	require.NoError(t, err)
	assert.Equal(t, "Shop", m.Name)
	assert.NotEmpty(t, m.ID)
	assert.Len(t, m.Folders, len(model.TopLevelFolderTypes()))
	require.NoError(t, m.Validate())

	require.NoError(t, writeModel(p, modeltest.Sample()))
	require.NoError(t, createModel(p))
	m, err = readModel(p)
	require.NoError(t, err)
	assert.Equal(t, "Sample Model", m.Name, "existing file kept")
}

func TestRepoName(t *testing.T) {
	tests := map[string]string{
		"https://example.com/team/shop.git": "shop",
		"https://example.com/team/shop/":    "shop",
		"git@example.com:team/architecture": "architecture",
		"git@example.com:shop.git":          "shop",
		"":                                  "model",
	}
	for url, want := range tests {
		assert.Equal(t, want, repoName(url), url)
	}
}

func TestReport(t *testing.T) {
	var out bytes.Buffer
	report(&out, syncer.Outcome{
		Status: syncer.StatusCommitted,
		Commit: "0123456789abcdef",
	})
	assert.Equal(t, "Committed 01234567\n", out.String())

	out.Reset()
	report(&out, syncer.Outcome{
		Status:       syncer.StatusError,
		PushFailures: []git.RefUpdate{{Ref: "refs/heads/master", Status: git.RefRejected, Message: "non-fast-forward"}},
	})
	assert.Contains(t, out.String(), "refs/heads/master")
	assert.Contains(t, out.String(), "non-fast-forward")
}

func TestPrintStatus(t *testing.T) {
	var out bytes.Buffer
	printStatus(&out, &git.BranchStatus{
		Current:     "master",
		Head:        plumbing.NewHash("1111111111111111111111111111111111111111"),
		Tracking:    "origin/master",
		HasTracking: true,
		Ahead:       1,
		Behind:      2,
		Merging:     true,
	}, []string{"model/folder.yaml"}, true)

	got := out.String()
	assert.Contains(t, got, "On branch master")
	assert.Contains(t, got, "1 ahead, 2 behind origin/master")
	assert.Contains(t, got, "A merge is in progress")
	assert.Contains(t, got, "changed since the last synchronization")
	assert.Contains(t, got, "  model/folder.yaml")
}

func TestCommands(t *testing.T) {
	c := newHarness(t)
	modelPath := filepath.Join(c.home, "shop.yaml")

	out := c.mustRun("init", "--name", "Test User", "--email", "test@example.com", "--model", modelPath)
	assert.Contains(t, out, "Initialized empty model repository")
	require.FileExists(t, modelPath)

	out = c.mustRun("commit", "-f", modelPath, "-m", "First model")
	assert.Contains(t, out, "Committed")
	assert.FileExists(t, filepath.Join(c.dir, grafico.DefaultRoot, grafico.FolderFile))

	out = c.mustRun("commit", "-f", modelPath)
	assert.Contains(t, out, "Already up to date")

	out = c.mustRun("status")
	assert.Contains(t, out, "On branch master")
	assert.Contains(t, out, "No remote tracking branch")
	assert.Contains(t, out, "Nothing to commit")
	assert.NotContains(t, out, "changed since the last synchronization")

	out = c.mustRun("log")
	assert.Contains(t, out, "First model")

	c.mustRun("tag", "create", "-m", "first release", "v1")
	out = c.mustRun("tag")
	assert.Contains(t, out, "v1")
	assert.Contains(t, out, "first release")

	c.mustRun("remote", "set-url", "https://example.com/team/shop.git")
	out = c.mustRun("remote")
	assert.Contains(t, out, "origin\thttps://example.com/team/shop.git")

	c.mustRun("branch", "checkout", "draft")
	out = c.mustRun("branch")
	assert.Contains(t, out, "* draft")
	assert.Contains(t, out, "  master")

	loaded := filepath.Join(c.home, "loaded.yaml")
	out = c.mustRun("load", "-f", loaded)
	assert.Contains(t, out, "Loaded \"shop\"")
	m, err := readModel(loaded)
	require.NoError(t, err)
	orig, err := readModel(modelPath)
	require.NoError(t, err)
	assert.True(t, m.Equal(orig))
}

func TestCommands_Errors(t *testing.T) {
	c := newHarness(t)

	_, err := c.run("status")
	assert.Error(t, err, "not a repository")

	c.mustRun("init")
	_, err = c.run("refresh", "-f", filepath.Join(c.home, "model.yaml"), "--strategy", "rebase")
	assert.Error(t, err)

	_, err = c.run("--log-level", "loud", "status")
	assert.Error(t, err)
}
