package source

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/dgallion1/pagechunk/internal/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func drain(t *testing.T, src Source) []page.Page {
	t.Helper()
	out := make(chan page.Page, 16)
	require.NoError(t, src.Stream(context.Background(), out))
	close(out)
	var pages []page.Page
	for p := range out {
		pages = append(pages, p)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].ID < pages[j].ID })
	return pages
}

func TestDirectory_RendersSupportedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "index.html", "<html><head><title>Home</title></head><body><p>hi</p></body></html>")
	writeFile(t, root, "guides/setup.md", "# Setup\n\nInstall it.\n")
	writeFile(t, root, "notes.txt", "plain words")
	writeFile(t, root, "image.png", "not text")
	writeFile(t, root, ".hidden/secret.md", "# Secret")

	d := NewDirectory(DirectoryConfig{Root: root, BaseURL: "https://docs.example.com/"}, nil)
	pages := drain(t, d)
	require.Len(t, pages, 3)

	assert.Equal(t, "guides/setup.md", pages[0].ID)
	assert.Equal(t, "Setup", pages[0].Title)
	assert.Equal(t, "https://docs.example.com/guides/setup.md", pages[0].URL)
	assert.Contains(t, pages[0].HTML, "<h1")

	assert.Equal(t, "index.html", pages[1].ID)
	assert.Equal(t, "Home", pages[1].Title)

	assert.Equal(t, "notes.txt", pages[2].ID)
	assert.Equal(t, "notes", pages[2].Title, "falls back to the file name")
	assert.Equal(t, 1, pages[2].Version)
	_, err := time.Parse(time.RFC3339, pages[2].LastModified)
	assert.NoError(t, err)

	assert.Zero(t, d.Failed())
}

func TestDirectory_NoBaseURL(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.html", "<p>a</p>")

	pages := drain(t, NewDirectory(DirectoryConfig{Root: root}, nil))
	require.Len(t, pages, 1)
	assert.Empty(t, pages[0].URL)
}

func TestDirectory_MissingRoot(t *testing.T) {
	d := NewDirectory(DirectoryConfig{Root: filepath.Join(t.TempDir(), "nope")}, nil)
	err := d.Stream(context.Background(), make(chan page.Page, 1))
	assert.Error(t, err)
}

func TestStatic_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Static{{ID: "a"}}.Stream(ctx, make(chan page.Page))
	assert.ErrorIs(t, err, context.Canceled)
}
