// Package ocr calls the external OCR provider for documents that have
// no readable text layer and caches the recognized markdown on disk.
package ocr

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetryableError indicates a transient provider failure worth retrying.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// Client talks to a Mistral-style OCR endpoint: base64 document in,
// per-page markdown out.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	cacheDir   string
	stats      *CallStats
	log        *slog.Logger
}

func NewClient(baseURL, apiKey, model, cacheDir string, timeout time.Duration, log *slog.Logger) *Client {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		cacheDir:   cacheDir,
		stats:      NewCallStats(time.Hour),
		log:        log,
	}
}

// Stats exposes the rolling call-latency tracker.
func (c *Client) Stats() *CallStats { return c.stats }

type ocrDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type ocrRequest struct {
	Model    string      `json:"model"`
	Document ocrDocument `json:"document"`
}

type ocrResponse struct {
	Pages []struct {
		Index    int    `json:"index"`
		Markdown string `json:"markdown"`
	} `json:"pages"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Recognize sends the document to the provider and returns cleaned
// per-page markdown. Results are cached on disk by content hash, so
// reprocessing a document never pays for OCR twice.
func (c *Client) Recognize(ctx context.Context, data []byte, filename string) ([]string, error) {
	hash := fmt.Sprintf("%x", sha256.Sum256(data))
	if pages, ok := c.readCache(hash); ok {
		c.log.Info("ocr cache hit", "filename", filename, "pages", len(pages))
		return pages, nil
	}

	reqBody := ocrRequest{Model: c.model, Document: documentPayload(data, filename)}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/ocr", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ocr api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &RetryableError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ocr api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var apiResp ocrResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("ocr error: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}
	if len(apiResp.Pages) == 0 {
		return nil, fmt.Errorf("empty response from ocr provider")
	}

	pages := make([]string, len(apiResp.Pages))
	for i, p := range apiResp.Pages {
		pages[i] = CleanArtifacts(p.Markdown)
	}

	c.stats.Record(time.Since(start).Milliseconds(), len(pages))
	c.log.Info("ocr recognized", "filename", filename, "pages", len(pages),
		"duration_ms", time.Since(start).Milliseconds())

	c.writeCache(hash, pages)
	return pages, nil
}

func documentPayload(data []byte, filename string) ocrDocument {
	b64 := base64.StdEncoding.EncodeToString(data)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return ocrDocument{Type: "image_url", ImageURL: "data:image/png;base64," + b64}
	case ".jpg", ".jpeg":
		return ocrDocument{Type: "image_url", ImageURL: "data:image/jpeg;base64," + b64}
	case ".tiff":
		return ocrDocument{Type: "image_url", ImageURL: "data:image/tiff;base64," + b64}
	default:
		return ocrDocument{Type: "document_url", DocumentURL: "data:application/pdf;base64," + b64}
	}
}

// Cache format: pages joined with form feed, one file per content hash.

func (c *Client) readCache(hash string) ([]string, bool) {
	if c.cacheDir == "" {
		return nil, false
	}
	data, err := os.ReadFile(filepath.Join(c.cacheDir, hash+".md"))
	if err != nil {
		return nil, false
	}
	return strings.Split(string(data), "\f"), true
}

func (c *Client) writeCache(hash string, pages []string) {
	if c.cacheDir == "" {
		return
	}
	if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
		c.log.Warn("ocr cache dir", "error", err)
		return
	}
	path := filepath.Join(c.cacheDir, hash+".md")
	if err := os.WriteFile(path, []byte(strings.Join(pages, "\f")), 0o644); err != nil {
		c.log.Warn("ocr cache write", "error", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Close releases resources.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
