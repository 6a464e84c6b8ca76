package api

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleOCRStats(w http.ResponseWriter, r *http.Request) {
	if s.ocrClient == nil {
		jsonError(w, "ocr stats unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"stats":       s.ocrClient.Stats().Snapshot(),
		"queue_depth": s.orchestrator.QueueDepth(),
	})
}
