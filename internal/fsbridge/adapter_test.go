package fsbridge

import (
	"os"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	fsb "github.com/input-output-hk/catalyst-forge-libs/fs/billy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// foreignFS satisfies fs.Filesystem without wrapping billy.
type foreignFS struct {
	*fsb.FS
}

func TestToBillyFilesystem(t *testing.T) {
	raw := memfs.New()
	got, err := ToBillyFilesystem(fsb.NewFS(raw))
	require.NoError(t, err)
	assert.Same(t, raw, got)

	_, err = ToBillyFilesystem(foreignFS{fsb.NewInMemoryFS()})
	assert.ErrorContains(t, err, "must be a billy.FS")

	_, err = ToBillyFilesystem(nil)
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	fsys := fsb.NewInMemoryFS()

	layout, err := Open(fsys, "models", false, 0)
	require.NoError(t, err)
	require.NoError(t, util.WriteFile(layout.Worktree, "model/folder.yaml", []byte("id: m\n"), 0o644))

	ok, err := fsys.Exists("models/model/folder.yaml")
	require.NoError(t, err)
	assert.True(t, ok, "worktree writes land in the wrapped filesystem")

	data, err := fsys.ReadFile("models/model/folder.yaml")
	require.NoError(t, err)
	assert.Equal(t, "id: m\n", string(data))

	require.NoError(t, fsys.WriteFile("models/extra.txt", []byte("x"), os.FileMode(0o644)))
	_, err = layout.Worktree.Stat("extra.txt")
	assert.NoError(t, err)
}
