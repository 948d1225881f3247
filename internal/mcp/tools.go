package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgallion1/pagechunk/internal/chunker"
	"github.com/dgallion1/pagechunk/internal/page"
	"github.com/dgallion1/pagechunk/internal/parser"
	"github.com/dgallion1/pagechunk/internal/pipeline"
	"github.com/dgallion1/pagechunk/internal/sink"
	"github.com/mark3labs/mcp-go/mcp"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602
	ErrorCodeInternalError = -32603
	ErrorCodeNoContent     = -32001 // page has no extractable text
	ErrorCodePageNotFound  = -32002 // page is not in the store
)

func (s *Server) handleChunkHTML(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	htmlDoc := getStringDefault(args, "html", "")
	if htmlDoc == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "html parameter is required", map[string]interface{}{
			"param":  "html",
			"reason": "missing or empty",
		})
	}

	proc := s.proc
	cfg := proc.ChunkConfig()
	size := getIntDefault(args, "chunk_size", cfg.ChunkSize)
	overlap := getIntDefault(args, "chunk_overlap", cfg.ChunkOverlap)
	if size != cfg.ChunkSize || overlap != cfg.ChunkOverlap {
		cfg.ChunkSize, cfg.ChunkOverlap = size, overlap
		var err error
		if proc, err = proc.WithChunkConfig(cfg); err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid chunk configuration", map[string]interface{}{
				"reason": err.Error(),
			})
		}
	}

	p := page.Page{
		ID:      getStringDefault(args, "page_id", ""),
		Title:   getStringDefault(args, "title", ""),
		URL:     getStringDefault(args, "url", ""),
		Version: 1,
		HTML:    htmlDoc,
	}
	if p.ID == "" {
		p.ID = pipeline.ContentHashHex([]byte(htmlDoc))[:16]
	}
	if p.Title == "" {
		p.Title = parser.DocumentTitle(htmlDoc)
	}

	res, err := proc.Process(p)
	if errors.Is(err, chunker.ErrNoBlocks) {
		return nil, newMCPError(ErrorCodeNoContent, "page has no extractable text", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "chunking failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	s.log.Debug("chunked page", "page_id", p.ID, "chunks", len(res.Chunks), "tokens", res.Tokens)

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"page_id":           p.ID,
		"chunking_strategy": proc.MetricName(),
		"block_count":       len(res.Blocks),
		"token_count":       res.Tokens,
		"chunks":            res.Chunks,
	})), nil
}

func (s *Server) handleListPages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pages, err := s.store.Pages(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list pages", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"pages": pages,
		"count": len(pages),
	})), nil
}

func (s *Server) handleGetPageChunks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	pageID := getStringDefault(args, "page_id", "")
	if pageID == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "page_id parameter is required", map[string]interface{}{
			"param":  "page_id",
			"reason": "missing or empty",
		})
	}

	chunks, err := s.store.Chunks(ctx, pageID)
	if errors.Is(err, sink.ErrNotFound) {
		return nil, newMCPError(ErrorCodePageNotFound, "page not found", map[string]interface{}{
			"page_id": pageID,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to load chunks", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"page_id": pageID,
		"chunks":  chunks,
	})), nil
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(b)
}

func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
