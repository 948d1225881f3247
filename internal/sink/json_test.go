package sink

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgallion1/pagechunk/internal/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jsonDoc struct {
	Chunks   []page.Chunk     `json:"chunks"`
	Pages    []map[string]any `json:"pages"`
	Blocks   []map[string]any `json:"blocks"`
	Metadata jsonMetadata     `json:"metadata"`
}

func samplePage(id string, n int) (page.Page, []page.Block, []page.Chunk) {
	p := page.Page{ID: id, Title: "Title " + id, Version: 2}
	var blocks []page.Block
	var chunks []page.Chunk
	for i := 0; i < n; i++ {
		blocks = append(blocks, page.Block{Index: i, Type: page.BlockParagraph, Text: "text"})
		chunks = append(chunks, page.Chunk{
			ChunkID:    id + ":" + string(rune('0'+i)),
			ChunkIndex: i,
			PageID:     id,
			TokenCount: 3,
		})
	}
	return p, blocks, chunks
}

func readDoc(t *testing.T, path string) jsonDoc {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc jsonDoc
	require.NoError(t, json.Unmarshal(data, &doc), string(data))
	return doc
}

func TestJSON_StreamsDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "chunks.json")
	s, err := NewJSON(path, JSONOptions{IncludeBlocks: true})
	require.NoError(t, err)

	ctx := context.Background()
	p1, b1, c1 := samplePage("a", 2)
	p2, b2, c2 := samplePage("b", 1)
	require.NoError(t, s.WritePage(ctx, p1, b1, c1))
	require.NoError(t, s.WritePage(ctx, p2, b2, c2))

	summary := Summary{
		Pages: 2, Chunks: 3, Blocks: 3, Tokens: 9, Failed: 1,
		Duration: 1500 * time.Millisecond,
		Settings: Settings{ChunkSize: 512, Strategy: "approximate", MaxHeadingLevels: 2},
	}
	require.NoError(t, s.Close(ctx, summary))
	require.NoError(t, s.Close(ctx, summary), "second close is a no-op")

	doc := readDoc(t, path)
	require.Len(t, doc.Chunks, 3)
	assert.Equal(t, "a:0", doc.Chunks[0].ChunkID)
	assert.Equal(t, "b:0", doc.Chunks[2].ChunkID)

	require.Len(t, doc.Pages, 2)
	assert.Equal(t, "a", doc.Pages[0]["page_id"])
	assert.EqualValues(t, 2, doc.Pages[0]["chunk_count"])

	require.Len(t, doc.Blocks, 3)
	assert.Equal(t, "b", doc.Blocks[2]["page_id"])

	assert.Equal(t, 2, doc.Metadata.TotalPages)
	assert.Equal(t, 1, doc.Metadata.FailedPages)
	assert.Equal(t, 3, doc.Metadata.TotalChunks)
	assert.Equal(t, int64(1500), doc.Metadata.DurationMs)
	assert.Equal(t, 512, doc.Metadata.Settings.ChunkSize)
	assert.True(t, doc.Metadata.IncludeBlocks)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "sidecar files are removed")
}

func TestJSON_BlocksOmittedByDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.json")
	s, err := NewJSON(path, JSONOptions{})
	require.NoError(t, err)

	p, b, c := samplePage("a", 2)
	require.NoError(t, s.WritePage(context.Background(), p, b, c))
	require.NoError(t, s.Close(context.Background(), Summary{Pages: 1}))

	doc := readDoc(t, path)
	assert.Len(t, doc.Chunks, 2)
	assert.Empty(t, doc.Blocks)
	assert.False(t, doc.Metadata.IncludeBlocks)
}

func TestJSON_EmptyRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.json")
	s, err := NewJSON(path, JSONOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Close(context.Background(), Summary{}))

	doc := readDoc(t, path)
	assert.Empty(t, doc.Chunks)
	assert.Empty(t, doc.Pages)
}

func TestJSON_WriteAfterClose(t *testing.T) {
	s, err := NewJSON(filepath.Join(t.TempDir(), "chunks.json"), JSONOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Close(context.Background(), Summary{}))

	p, b, c := samplePage("a", 1)
	assert.Error(t, s.WritePage(context.Background(), p, b, c))
}
