package job

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/vidcompress/internal/media"
)

func newSQLRepo(t *testing.T) *SQLRepository {
	t.Helper()
	repo, err := NewSQLRepository(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSQLRepository_SaveAndFind(t *testing.T) {
	repo := newSQLRepo(t)
	ctx := context.Background()

	j := New()
	j.SourcePath = "/in.mp4"
	j.OutputPath = "/out.mp4"
	j.Quality = "medium"
	require.NoError(t, repo.Save(ctx, j))

	require.NoError(t, j.Start())
	require.NoError(t, j.Complete(media.Info{Path: "/out.mp4", Width: 960, Height: 540, Bitrate: 800000}))
	require.NoError(t, repo.Save(ctx, j))

	found, err := repo.FindByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, found.Status)
	assert.Equal(t, 100, found.Progress)
	assert.Equal(t, "/in.mp4", found.SourcePath)
	assert.Equal(t, "medium", found.Quality)
	require.NotNil(t, found.Output)
	assert.Equal(t, 960, found.Output.Width)
	assert.Equal(t, int64(800000), found.Output.Bitrate)
}

func TestSQLRepository_NotFound(t *testing.T) {
	repo := newSQLRepo(t)
	ctx := context.Background()

	_, err := repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "missing"), ErrJobNotFound)
}

func TestSQLRepository_ListAndDelete(t *testing.T) {
	repo := newSQLRepo(t)
	ctx := context.Background()

	older := NewWithID("older")
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := NewWithID("newer")
	require.NoError(t, repo.Save(ctx, older))
	require.NoError(t, repo.Save(ctx, newer))

	jobs, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "newer", jobs[0].ID)

	jobs, err = repo.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	require.NoError(t, repo.Delete(ctx, "older"))
	jobs, err = repo.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}
