// Package mcp exposes page chunking as Model Context Protocol tools over
// stdio:
//   - chunk_html: chunk one HTML page and return its chunks
//   - list_pages: list pages kept in the SQLite store
//   - get_page_chunks: return the stored chunks of one page
//
// The store tools are registered only when a store is configured.
package mcp

import (
	"context"
	"log/slog"

	"github.com/dgallion1/pagechunk/internal/page"
	"github.com/dgallion1/pagechunk/internal/pipeline"
	"github.com/dgallion1/pagechunk/internal/sink"
	"github.com/mark3labs/mcp-go/server"
)

const (
	// ServerName is the MCP server name
	ServerName = "pagechunk"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Store is the read side of a persistent sink.
type Store interface {
	Pages(ctx context.Context) ([]sink.StoredPage, error)
	Chunks(ctx context.Context, pageID string) ([]page.Chunk, error)
}

// Server wraps the MCP server with the page processor.
type Server struct {
	mcp   *server.MCPServer
	proc  *pipeline.Processor
	store Store
	log   *slog.Logger
}

// NewServer creates the MCP server. store may be nil.
func NewServer(proc *pipeline.Processor, store Store, log *slog.Logger) *Server {
	s := &Server{
		mcp:   server.NewMCPServer(ServerName, ServerVersion),
		proc:  proc,
		store: store,
		log:   log,
	}
	s.registerTools()
	return s
}

// Serve runs the server on stdio and blocks until stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(chunkHTMLTool(), s.handleChunkHTML)
	if s.store != nil {
		s.mcp.AddTool(listPagesTool(), s.handleListPages)
		s.mcp.AddTool(getPageChunksTool(), s.handleGetPageChunks)
	}
}
