package grafico

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/modelsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/model"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/model/modeltest"
)

// countingFS counts file writes and can be told to fail after a number of them.
type countingFS struct {
	billy.Filesystem
	writes    int
	failAfter int
}

func (c *countingFS) OpenFile(name string, flag int, perm os.FileMode) (billy.File, error) {
	if flag&os.O_WRONLY != 0 || flag&os.O_RDWR != 0 {
		if c.failAfter > 0 && c.writes >= c.failAfter {
			return nil, fmt.Errorf("disk full writing %s", name)
		}
		c.writes++
	}
	return c.Filesystem.OpenFile(name, flag, perm)
}

func TestExport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fsys := memfs.New()
	s := New(fsys)

	sample := modeltest.Sample()
	_, err := s.Export(ctx, sample)
	require.NoError(t, err)

	got, report, err := s.Import(ctx)
	require.NoError(t, err)
	assert.True(t, report.Empty(), "unexpected repairs: %v", report.Names())
	assert.True(t, sample.Equal(got), "imported model differs from exported model")
}

func TestExport_Layout(t *testing.T) {
	set, err := Render(modeltest.Sample(), DefaultRoot)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"model/application/ApplicationComponent_id-app.yaml",
		"model/application/folder.yaml",
		"model/business/BusinessActor_id-actor.yaml",
		"model/business/BusinessRole_id-role.yaml",
		"model/business/folder.yaml",
		"model/business/id-folder-processes/BusinessProcess_id-process.yaml",
		"model/business/id-folder-processes/folder.yaml",
		"model/folder.yaml",
		"model/relations/AssignmentRelationship_id-rel-assign.yaml",
		"model/relations/ServingRelationship_id-rel-serves.yaml",
		"model/relations/folder.yaml",
	}, set.Paths())

	role := string(set["model/business/BusinessRole_id-role.yaml"])
	assert.Contains(t, role, "kind: element\nid: id-role\ntype: BusinessRole\nname: Buyer\n")
	assert.Contains(t, role, "key: tier")
}

func TestRender_Deterministic(t *testing.T) {
	a := modeltest.Sample()

	b := modeltest.Sample()
	// same content, different in-memory order
	b.Folders[0], b.Folders[2] = b.Folders[2], b.Folders[0]
	rels := b.Folders[0].Relationships
	rels[0], rels[1] = rels[1], rels[0]

	setA, err := Render(a, DefaultRoot)
	require.NoError(t, err)
	setB, err := Render(b, DefaultRoot)
	require.NoError(t, err)

	assert.True(t, setA.Equal(setB))
}

func TestExport_UnchangedModelWritesNothing(t *testing.T) {
	ctx := context.Background()
	fsys := &countingFS{Filesystem: memfs.New()}
	s := New(fsys)

	first, err := s.Export(ctx, modeltest.Sample())
	require.NoError(t, err)
	assert.Equal(t, len(first), fsys.writes)

	fsys.writes = 0
	second, err := s.Export(ctx, modeltest.Sample())
	require.NoError(t, err)
	assert.Zero(t, fsys.writes)
	assert.True(t, first.Equal(second))
}

func TestExport_OnlyChangedFilesAreWritten(t *testing.T) {
	ctx := context.Background()
	fsys := &countingFS{Filesystem: memfs.New()}
	s := New(fsys)

	m := modeltest.Sample()
	_, err := s.Export(ctx, m)
	require.NoError(t, err)

	e, ok := m.Lookup("id-app")
	require.True(t, ok)
	e.Name = "Web Shop"

	fsys.writes = 0
	_, err = s.Export(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, 1, fsys.writes)
}

func TestExport_RemovesStaleFiles(t *testing.T) {
	ctx := context.Background()
	fsys := memfs.New()
	s := New(fsys)

	m := modeltest.Sample()
	_, err := s.Export(ctx, m)
	require.NoError(t, err)

	business := m.Folder(model.FolderTypeBusiness)
	business.Folders = nil

	set, err := s.Export(ctx, m)
	require.NoError(t, err)
	assert.NotContains(t, set, "model/business/id-folder-processes/folder.yaml")

	_, err = fsys.Stat("model/business/id-folder-processes")
	assert.True(t, os.IsNotExist(err), "empty folder directory should be pruned")

	got, _, err := s.Import(ctx)
	require.NoError(t, err)
	assert.True(t, m.Equal(got))
}

func TestExport_RollbackOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	fsys := &countingFS{Filesystem: memfs.New()}
	s := New(fsys)

	m := modeltest.Sample()
	before, err := s.Export(ctx, m)
	require.NoError(t, err)

	app := m.Folder(model.FolderTypeApplication)
	app.Elements = append(app.Elements, model.Element{ID: "id-new", Type: "ApplicationService", Name: "Checkout"})
	actor, _ := m.Lookup("id-actor")
	actor.Name = "Client"

	fsys.writes = 0
	fsys.failAfter = 1
	_, err = s.Export(ctx, m)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeSerialization))

	fsys.failAfter = 0
	after, err := s.Current()
	require.NoError(t, err)
	assert.True(t, before.Equal(after), "working copy should be restored after a failed export")
}

func TestExport_InvalidModelTouchesNothing(t *testing.T) {
	ctx := context.Background()
	fsys := &countingFS{Filesystem: memfs.New()}
	s := New(fsys)

	m := modeltest.Sample()
	_, err := s.Export(ctx, m)
	require.NoError(t, err)

	rels := m.Folder(model.FolderTypeRelations)
	rels.Relationships[0].Target = "id-missing"

	fsys.writes = 0
	_, err = s.Export(ctx, m)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeSerialization))
	assert.Zero(t, fsys.writes)
}

func TestExport_Cancelled(t *testing.T) {
	fsys := memfs.New()
	s := New(fsys)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Export(ctx, modeltest.Sample())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeCancelled))

	set, err := s.Current()
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestExport_CustomRoot(t *testing.T) {
	ctx := context.Background()
	fsys := memfs.New()
	s := New(fsys, WithRoot("architecture/"))
	assert.Equal(t, "architecture", s.Root())

	set, err := s.Export(ctx, modeltest.Sample())
	require.NoError(t, err)
	assert.Contains(t, set, "architecture/folder.yaml")

	_, err = fsys.Stat("architecture/business/folder.yaml")
	require.NoError(t, err)
}

func TestRender_RejectsUnsafeNames(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *model.Model)
	}{
		{
			name: "type with underscore",
			mutate: func(m *model.Model) {
				m.Folder(model.FolderTypeApplication).Elements[0].Type = "Application_Component"
			},
		},
		{
			name: "id with slash",
			mutate: func(m *model.Model) {
				m.Folder(model.FolderTypeApplication).Elements[0].ID = "id/app"
				m.Folder(model.FolderTypeRelations).Relationships[0].Source = "id/app"
			},
		},
		{
			name: "nested folder id with space",
			mutate: func(m *model.Model) {
				m.Folder(model.FolderTypeBusiness).Folders[0].ID = "my folder"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := modeltest.Sample()
			tt.mutate(m)
			_, err := Render(m, DefaultRoot)
			assert.Error(t, err)
		})
	}
}
