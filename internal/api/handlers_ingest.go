package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lalitmahajn/BMR-OCR/internal/ingest"
	"github.com/lalitmahajn/BMR-OCR/internal/pipeline"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	job, errMsg, code := s.submitUpload(r, file, header.Filename)
	if errMsg != "" {
		jsonError(w, errMsg, code)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":      job.ID,
		"document_id": job.DocumentID,
		"status":      job.Status,
		"poll_url":    fmt.Sprintf("/api/ingest/%s/status", job.ID),
	})
}

func (s *Server) handleBatchIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*10+10*1024*1024)

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}

	var results []map[string]any
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			results = append(results, map[string]any{
				"filename": sanitizeFilename(fh.Filename),
				"error":    "failed to open file",
			})
			continue
		}
		job, errMsg, _ := s.submitUpload(r, f, fh.Filename)
		f.Close()
		if errMsg != "" {
			results = append(results, map[string]any{
				"filename": sanitizeFilename(fh.Filename),
				"error":    errMsg,
			})
			continue
		}
		results = append(results, map[string]any{
			"filename":    job.Filename,
			"job_id":      job.ID,
			"document_id": job.DocumentID,
			"status":      job.Status,
			"poll_url":    fmt.Sprintf("/api/ingest/%s/status", job.ID),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{"jobs": results})
}

// submitUpload validates one uploaded file, creates the document row,
// and queues the processing job.
func (s *Server) submitUpload(r *http.Request, file multipart.File, rawName string) (*pipeline.Job, string, int) {
	filename := sanitizeFilename(rawName)
	if !ingest.IsSupportedExtension(filename) {
		return nil, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, "failed to read file", http.StatusInternalServerError
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return nil, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge
	}

	hash := pipeline.ContentHashHex(data)
	doc, err := s.st.CreateDocument(r.Context(), filename, hash)
	if err != nil {
		s.log.Error("create document", "filename", filename, "error", err)
		return nil, "failed to register document", http.StatusInternalServerError
	}

	now := time.Now()
	job := &pipeline.Job{
		ID:          uuid.NewString(),
		DocumentID:  doc.ID,
		Status:      pipeline.StatusQueued,
		Phase:       "queued",
		Filename:    filename,
		ContentHash: hash,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	job.SetFileData(data)

	if err := s.orchestrator.Submit(job); err != nil {
		return nil, err.Error(), http.StatusServiceUnavailable
	}
	return job, "", 0
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	snap := job.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":      snap.ID,
		"document_id": snap.DocumentID,
		"status":      snap.Status,
		"phase":       snap.Phase,
		"progress":    snap.Progress,
	})
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
