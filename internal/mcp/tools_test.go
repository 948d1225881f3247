package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dgallion1/pagechunk/internal/chunker"
	"github.com/dgallion1/pagechunk/internal/navigate"
	"github.com/dgallion1/pagechunk/internal/page"
	"github.com/dgallion1/pagechunk/internal/parser"
	"github.com/dgallion1/pagechunk/internal/pipeline"
	"github.com/dgallion1/pagechunk/internal/sink"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/suite"
)

const guideHTML = `<html><head><title>Guide</title></head><body>` +
	`<h1 id="intro">Intro</h1><p>Hello world.</p>` +
	`<h2>Setup</h2><ul><li>Step one</li><li>Step two</li></ul>` +
	`</body></html>`

type ToolsTestSuite struct {
	suite.Suite
	store  *sink.SQLite
	server *Server
}

func (s *ToolsTestSuite) SetupTest() {
	b, err := chunker.New(chunker.DefaultConfig(), chunker.Approximate{})
	s.Require().NoError(err)
	proc := pipeline.NewProcessor(
		parser.NewExtractor(parser.DefaultExtractorConfig()),
		b,
		navigate.NewResolver(navigate.DefaultResolverConfig()),
	)

	s.store, err = sink.NewSQLite(context.Background(), ":memory:", false)
	s.Require().NoError(err)
	s.server = NewServer(proc, s.store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (s *ToolsTestSuite) TearDownTest() {
	_ = s.store.Close(context.Background(), sink.Summary{})
}

func call(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	}
}

func (s *ToolsTestSuite) decode(res *mcp.CallToolResult) map[string]interface{} {
	s.Require().NotNil(res)
	s.Require().Len(res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	s.Require().True(ok, "expected text content")

	var out map[string]interface{}
	s.Require().NoError(json.Unmarshal([]byte(text.Text), &out))
	return out
}

func (s *ToolsTestSuite) requireCode(err error, code int) {
	var mcpErr *MCPError
	s.Require().True(errors.As(err, &mcpErr), "expected MCPError, got %v", err)
	s.Equal(code, mcpErr.Code)
}

func (s *ToolsTestSuite) TestChunkHTML() {
	res, err := s.server.handleChunkHTML(context.Background(), call("chunk_html", map[string]interface{}{
		"html":    guideHTML,
		"page_id": "p1",
		"url":     "https://wiki.example.com/p1",
	}))
	s.Require().NoError(err)

	out := s.decode(res)
	s.Equal("p1", out["page_id"])
	s.Equal(float64(5), out["block_count"])
	chunks := out["chunks"].([]interface{})
	s.Require().Len(chunks, 1)
	first := chunks[0].(map[string]interface{})
	s.Equal("p1:0-4", first["chunk_id"])
	s.Equal("Guide", first["page_title"])
}

func (s *ToolsTestSuite) TestChunkHTMLDefaultsPageID() {
	res, err := s.server.handleChunkHTML(context.Background(), call("chunk_html", map[string]interface{}{
		"html": guideHTML,
	}))
	s.Require().NoError(err)
	s.Len(s.decode(res)["page_id"], 16)
}

func (s *ToolsTestSuite) TestChunkHTMLRejections() {
	_, err := s.server.handleChunkHTML(context.Background(), call("chunk_html", map[string]interface{}{}))
	s.requireCode(err, ErrorCodeInvalidParams)

	_, err = s.server.handleChunkHTML(context.Background(), call("chunk_html", map[string]interface{}{
		"html":          guideHTML,
		"chunk_size":    float64(10),
		"chunk_overlap": float64(10),
	}))
	s.requireCode(err, ErrorCodeInvalidParams)

	_, err = s.server.handleChunkHTML(context.Background(), call("chunk_html", map[string]interface{}{
		"html": "<style>p{}</style>",
	}))
	s.requireCode(err, ErrorCodeNoContent)
}

func (s *ToolsTestSuite) TestStoreTools() {
	ctx := context.Background()
	p := page.Page{ID: "p1", Title: "Guide", Version: 1, HTML: guideHTML}
	chunks := []page.Chunk{{ChunkID: "p1:0-4", PageID: "p1", NormalizedText: "Intro"}}
	s.Require().NoError(s.store.WritePage(ctx, p, nil, chunks))

	res, err := s.server.handleListPages(ctx, call("list_pages", nil))
	s.Require().NoError(err)
	s.Equal(float64(1), s.decode(res)["count"])

	res, err = s.server.handleGetPageChunks(ctx, call("get_page_chunks", map[string]interface{}{"page_id": "p1"}))
	s.Require().NoError(err)
	s.Len(s.decode(res)["chunks"], 1)

	_, err = s.server.handleGetPageChunks(ctx, call("get_page_chunks", map[string]interface{}{"page_id": "nope"}))
	s.requireCode(err, ErrorCodePageNotFound)

	_, err = s.server.handleGetPageChunks(ctx, call("get_page_chunks", map[string]interface{}{}))
	s.requireCode(err, ErrorCodeInvalidParams)
}

func TestToolsTestSuite(t *testing.T) {
	suite.Run(t, new(ToolsTestSuite))
}
