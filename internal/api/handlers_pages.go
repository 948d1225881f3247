package api

import (
	"errors"
	"net/http"

	"github.com/dgallion1/pagechunk/internal/sink"
	"github.com/go-chi/chi/v5"
)

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		jsonError(w, "page store unavailable", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	pages, err := s.store.Pages(r.Context())
	if err != nil {
		s.log.Error("list pages failed", "error", err)
		jsonError(w, "failed to list pages", http.StatusInternalServerError)
		return
	}
	if pages == nil {
		pages = []sink.StoredPage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": pages})
}

func (s *Server) handlePageChunks(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	pageID := chi.URLParam(r, "pageID")
	chunks, err := s.store.Chunks(r.Context(), pageID)
	switch {
	case errors.Is(err, sink.ErrNotFound):
		jsonError(w, "page not found", http.StatusNotFound)
		return
	case err != nil:
		s.log.Error("load chunks failed", "page_id", pageID, "error", err)
		jsonError(w, "failed to load chunks", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"page_id": pageID, "chunks": chunks})
}

func (s *Server) handleDeletePage(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	pageID := chi.URLParam(r, "pageID")
	err := s.store.DeletePage(r.Context(), pageID)
	switch {
	case errors.Is(err, sink.ErrNotFound):
		jsonError(w, "page not found", http.StatusNotFound)
		return
	case err != nil:
		s.log.Error("delete page failed", "page_id", pageID, "error", err)
		jsonError(w, "failed to delete page", http.StatusInternalServerError)
		return
	}
	s.log.Info("page deleted", "page_id", pageID)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": pageID})
}
