// Package api exposes the service over HTTP: document upload, job
// status, verification review, and report export.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lalitmahajn/BMR-OCR/internal/config"
	"github.com/lalitmahajn/BMR-OCR/internal/export"
	"github.com/lalitmahajn/BMR-OCR/internal/ocr"
	"github.com/lalitmahajn/BMR-OCR/internal/pipeline"
	"github.com/lalitmahajn/BMR-OCR/internal/store"
)

// Server is the HTTP API server.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	st           *store.Store
	exporter     *export.Service
	ocrClient    *ocr.Client
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *pipeline.Orchestrator, st *store.Store, exporter *export.Service, ocrClient *ocr.Client, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		st:           st,
		exporter:     exporter,
		ocrClient:    ocrClient,
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
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/ingest", s.handleIngest)
		r.Post("/api/ingest/batch", s.handleBatchIngest)
		r.Get("/api/ingest/{jobID}/status", s.handleIngestStatus)

		r.Get("/api/documents", s.handleListDocuments)
		r.Get("/api/documents/{docID}", s.handleGetDocument)
		r.Get("/api/documents/{docID}/pages", s.handleListPages)
		r.Get("/api/documents/{docID}/export.xlsx", s.handleExport)
		r.Get("/api/pages/{pageID}/results", s.handleListResults)
		r.Post("/api/results/{resultID}/verify", s.handleVerify)

		r.Get("/api/stats/ocr", s.handleOCRStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
