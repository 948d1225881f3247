package sink

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dgallion1/pagechunk/internal/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkIDs(chunks []page.Chunk) []string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ChunkID
	}
	return ids
}

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(context.Background(), ":memory:", true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Release() })
	return s
}

func TestSQLite_ReplacesStaleChunks(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	p := page.Page{ID: "p1", Title: "One", Version: 1}
	first := []page.Chunk{{ChunkID: "p1:0-1", ChunkIndex: 0}, {ChunkID: "p1:2-2", ChunkIndex: 1}}
	require.NoError(t, s.WritePage(ctx, p, []page.Block{{Index: 0}, {Index: 1}, {Index: 2}}, first))

	p.Version = 2
	second := []page.Chunk{
		{ChunkID: "p1:0-1", ChunkIndex: 0, TokenCount: 7},
		{ChunkID: "p1:2-3", ChunkIndex: 1},
	}
	require.NoError(t, s.WritePage(ctx, p, []page.Block{{Index: 0}}, second))

	got, err := s.Chunks(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1:0-1", "p1:2-3"}, chunkIDs(got))
	assert.Equal(t, 7, got[0].TokenCount)

	pages, err := s.Pages(ctx)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 2, pages[0].Version)
	assert.Equal(t, 2, pages[0].ChunkCount)
	assert.Equal(t, 1, pages[0].BlockCount)

	var blocks int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM blocks WHERE page_id = 'p1'`).Scan(&blocks))
	assert.Equal(t, 1, blocks)
}

func TestSQLite_PagesAreIndependent(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.WritePage(ctx, page.Page{ID: "a"}, nil, []page.Chunk{{ChunkID: "a:0-0"}}))
	require.NoError(t, s.WritePage(ctx, page.Page{ID: "b"}, nil, []page.Chunk{{ChunkID: "b:0-0"}}))
	require.NoError(t, s.WritePage(ctx, page.Page{ID: "a"}, nil, nil))

	a, err := s.Chunks(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, a)

	b, err := s.Chunks(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"b:0-0"}, chunkIDs(b))
}

func TestSQLite_DeletePage(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.WritePage(ctx, page.Page{ID: "a"}, nil, []page.Chunk{{ChunkID: "a:0-0"}}))
	require.NoError(t, s.DeletePage(ctx, "a"))

	_, err := s.Chunks(ctx, "a")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(s.DeletePage(ctx, "a"), ErrNotFound))

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&n))
	assert.Zero(t, n)
}

func TestSQLite_CloseRecordsRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "chunks.db")
	ctx := context.Background()

	s, err := NewSQLite(ctx, path, false)
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx, Summary{Pages: 3, Chunks: 9, Settings: Settings{ChunkSize: 256}}))

	db, err := openDatabase(path)
	require.NoError(t, err)
	defer db.Close()

	var pages, chunks int
	var settings string
	require.NoError(t, db.QueryRow(`SELECT pages, chunks, settings FROM runs`).Scan(&pages, &chunks, &settings))
	assert.Equal(t, 3, pages)
	assert.Equal(t, 9, chunks)
	assert.Contains(t, settings, `"chunk_size":256`)
}

func TestSQLite_ReleaseKeepsDataWithoutRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.db")
	ctx := context.Background()

	s, err := NewSQLite(ctx, path, false)
	require.NoError(t, err)
	require.NoError(t, s.WritePage(ctx, page.Page{ID: "p1", Title: "One"}, nil, []page.Chunk{{ChunkID: "p1:0-0", PageID: "p1"}}))
	require.NoError(t, s.Release())

	reopened, err := NewSQLite(ctx, path, false)
	require.NoError(t, err)
	defer reopened.Release()

	chunks, err := reopened.Chunks(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1:0-0"}, chunkIDs(chunks))

	var runs int
	require.NoError(t, reopened.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&runs))
	assert.Zero(t, runs)
}
