package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dgallion1/pagechunk/internal/chunker"
	"github.com/dgallion1/pagechunk/internal/page"
	"github.com/dgallion1/pagechunk/internal/parser"
	"github.com/dgallion1/pagechunk/internal/pipeline"
)

type chunkRequest struct {
	PageID        string `json:"page_id"`
	Title         string `json:"title"`
	SpaceKey      string `json:"space_key"`
	Version       int    `json:"version"`
	LastModified  string `json:"last_modified"`
	URL           string `json:"url"`
	HTML          string `json:"html"`
	ChunkSize     int    `json:"chunk_size"`
	ChunkOverlap  *int   `json:"chunk_overlap"`
	IncludeBlocks bool   `json:"include_blocks"`
}

type chunkResponse struct {
	PageID     string       `json:"page_id"`
	Strategy   string       `json:"chunking_strategy"`
	TokenCount int          `json:"token_count"`
	Chunks     []page.Chunk `json:"chunks"`
	Blocks     []page.Block `json:"blocks,omitempty"`
}

// handleChunk chunks one page synchronously and returns the result
// without writing it to any sink.
func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	var req chunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid json body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.HTML == "" {
		jsonError(w, "html is required", http.StatusBadRequest)
		return
	}

	proc, err := s.processorFor(req.ChunkSize, req.ChunkOverlap)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	p := page.Page{
		ID:           req.PageID,
		Title:        req.Title,
		SpaceKey:     req.SpaceKey,
		Version:      req.Version,
		LastModified: req.LastModified,
		URL:          req.URL,
		HTML:         req.HTML,
	}
	if p.ID == "" {
		p.ID = pipeline.ContentHashHex([]byte(p.HTML))[:16]
	}
	if p.Title == "" {
		p.Title = parser.DocumentTitle(p.HTML)
	}

	res, err := proc.Process(p)
	var exErr *parser.ExtractionError
	switch {
	case errors.Is(err, chunker.ErrNoBlocks):
		jsonError(w, "page has no extractable text", http.StatusUnprocessableEntity)
		return
	case errors.As(err, &exErr):
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	case err != nil:
		s.log.Error("chunk request failed", "page_id", p.ID, "error", err)
		jsonError(w, "chunking failed", http.StatusInternalServerError)
		return
	}

	resp := chunkResponse{
		PageID:     p.ID,
		Strategy:   proc.MetricName(),
		TokenCount: res.Tokens,
		Chunks:     res.Chunks,
	}
	if req.IncludeBlocks {
		resp.Blocks = res.Blocks
	}
	writeJSON(w, http.StatusOK, resp)
}

// processorFor returns the default processor, or one with the requested
// chunk size and overlap. Zero size and nil overlap keep the defaults.
func (s *Server) processorFor(size int, overlap *int) (*pipeline.Processor, error) {
	proc := s.orchestrator.Processor()
	if size == 0 && overlap == nil {
		return proc, nil
	}
	cfg := proc.ChunkConfig()
	if size != 0 {
		cfg.ChunkSize = size
	}
	if overlap != nil {
		cfg.ChunkOverlap = *overlap
	}
	return proc.WithChunkConfig(cfg)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
