package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lalitmahajn/BMR-OCR/internal/api"
	"github.com/lalitmahajn/BMR-OCR/internal/classify"
	"github.com/lalitmahajn/BMR-OCR/internal/config"
	"github.com/lalitmahajn/BMR-OCR/internal/export"
	"github.com/lalitmahajn/BMR-OCR/internal/extract"
	"github.com/lalitmahajn/BMR-OCR/internal/ocr"
	"github.com/lalitmahajn/BMR-OCR/internal/pipeline"
	"github.com/lalitmahajn/BMR-OCR/internal/store"
	"github.com/lalitmahajn/BMR-OCR/internal/template"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Error("invalid arguments", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		log.Error("create data directory", "error", err)
		os.Exit(1)
	}
	st, err := store.Open(cfg.DatabasePath, log)
	if err != nil {
		log.Error("open store", "error", err)
		os.Exit(1)
	}

	registry, err := template.NewRegistry(cfg.TemplatesDir, log)
	if err != nil {
		log.Error("template registry", "error", err)
		os.Exit(1)
	}

	ocrClient := ocr.NewClient(cfg.OCRBaseURL, cfg.OCRAPIKey, cfg.OCRModel,
		cfg.OCRCacheDir, cfg.OCRTimeout, log)
	classifier := classify.New(classify.DefaultCatalog(), cfg.MinClassifyScore, log)
	engine := extract.New(extract.Options{
		CaseSensitiveLabels: cfg.CaseSensitiveLabels,
		Logger:              log,
	})

	orch := pipeline.NewOrchestrator(cfg, ocrClient, classifier, registry, engine, st, log)
	orch.Start(ctx)

	exporter := export.NewService(st, log)
	srv := api.NewServer(orch, st, exporter, ocrClient, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		ocrClient.Close()
		st.Close()
	}()

	log.Info("starting bmr-ocr", "port", cfg.Port, "templates_dir", cfg.TemplatesDir)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
