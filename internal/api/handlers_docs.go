package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lalitmahajn/BMR-OCR/internal/store"
)

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.st.ListDocuments(r.Context())
	if err != nil {
		s.log.Error("list documents", "error", err)
		jsonError(w, "failed to list documents", http.StatusInternalServerError)
		return
	}
	if docs == nil {
		docs = []store.Document{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.st.GetDocument(r.Context(), chi.URLParam(r, "docID"))
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("get document", "error", err)
		jsonError(w, "failed to load document", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	if _, err := s.st.GetDocument(r.Context(), docID); errors.Is(err, store.ErrNotFound) {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	pages, err := s.st.ListPages(r.Context(), docID)
	if err != nil {
		s.log.Error("list pages", "error", err)
		jsonError(w, "failed to list pages", http.StatusInternalServerError)
		return
	}
	if pages == nil {
		pages = []store.Page{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"pages": pages})
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	results, err := s.st.ListResults(r.Context(), chi.URLParam(r, "pageID"))
	if err != nil {
		s.log.Error("list results", "error", err)
		jsonError(w, "failed to list results", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []store.FieldResult{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"results": results})
}

type verifyRequest struct {
	Value      string `json:"value"`
	VerifiedBy string `json:"verified_by"`
	Reason     string `json:"reason,omitempty"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	v, err := s.st.Verify(r.Context(), chi.URLParam(r, "resultID"), req.Value, req.VerifiedBy, req.Reason)
	switch {
	case errors.Is(err, store.ErrVerifierRequired):
		jsonError(w, "verified_by is required", http.StatusBadRequest)
		return
	case errors.Is(err, store.ErrNotFound):
		jsonError(w, "result not found", http.StatusNotFound)
		return
	case err != nil:
		s.log.Error("verify", "error", err)
		jsonError(w, "failed to record verification", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	data, err := s.exporter.DocumentXLSX(r.Context(), docID)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("export", "document_id", docID, "error", err)
		jsonError(w, "failed to build report", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="extraction-%s.xlsx"`, docID))
	w.Write(data)
}
