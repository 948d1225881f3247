package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dgallion1/pagechunk/internal/config"
	"github.com/dgallion1/pagechunk/internal/page"
	"github.com/dgallion1/pagechunk/internal/pipeline"
	"github.com/dgallion1/pagechunk/internal/sink"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// PageStore is the queryable side of a persistent sink.
type PageStore interface {
	Pages(ctx context.Context) ([]sink.StoredPage, error)
	Chunks(ctx context.Context, pageID string) ([]page.Chunk, error)
	DeletePage(ctx context.Context, pageID string) error
}

// Server is the HTTP API server for pagechunk.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	store        PageStore
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. store may be nil,
// in which case the page endpoints answer 503.
func NewServer(orch *pipeline.Orchestrator, store PageStore, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		store:        store,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey))

		r.Post("/api/chunk", s.handleChunk)

		r.Post("/api/ingest", s.handleIngest)
		r.Post("/api/ingest/batch", s.handleBatchIngest)
		r.Get("/api/ingest/{jobID}/status", s.handleIngestStatus)

		r.Get("/api/stats", s.handleStats)

		r.Get("/api/pages", s.handleListPages)
		r.Get("/api/pages/{pageID}/chunks", s.handlePageChunks)
		r.Delete("/api/pages/{pageID}", s.handleDeletePage)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
