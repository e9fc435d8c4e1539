package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTag(t *testing.T) {
	tr := setupTestRepoWithCommit(t)
	head, err := tr.repo.Head()
	require.NoError(t, err)

	require.NoError(t, tr.repo.CreateTag(tr.ctx, "v1.0", "", ""))
	require.NoError(t, tr.repo.CreateTag(tr.ctx, "v1.1", "master", "Model release 1.1\n"))
	require.NoError(t, tr.repo.CreateTag(tr.ctx, "draft", head.String(), ""))

	assert.ErrorIs(t, tr.repo.CreateTag(tr.ctx, "v1.0", "", ""), ErrTagExists)
	assert.ErrorIs(t, tr.repo.CreateTag(tr.ctx, "", "", ""), ErrInvalidRef)
	assert.ErrorIs(t, tr.repo.CreateTag(tr.ctx, "v2", "no-such-branch", ""), ErrResolveFailed)

	tags, err := tr.repo.Tags(tr.ctx, "v")
	require.NoError(t, err)
	require.Len(t, tags, 2)

	assert.Equal(t, TagInfo{Name: "v1.0", Commit: head}, tags[0])
	assert.Equal(t, TagInfo{Name: "v1.1", Commit: head, Message: "Model release 1.1", Annotated: true}, tags[1])

	all, err := tr.repo.Tags(tr.ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "draft", all[0].Name)
}

func TestDeleteTag(t *testing.T) {
	tr := setupTestRepoWithCommit(t)
	require.NoError(t, tr.repo.CreateTag(tr.ctx, "v1.0", "", ""))

	require.NoError(t, tr.repo.DeleteTag(tr.ctx, "v1.0"))
	assert.ErrorIs(t, tr.repo.DeleteTag(tr.ctx, "v1.0"), ErrResolveFailed)
	assert.ErrorIs(t, tr.repo.DeleteTag(tr.ctx, ""), ErrInvalidRef)

	tags, err := tr.repo.Tags(tr.ctx, "")
	require.NoError(t, err)
	assert.Empty(t, tags)
}
