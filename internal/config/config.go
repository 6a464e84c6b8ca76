// Package config loads service configuration from flags and
// environment variables. Flags win over env vars, env vars over
// defaults; env vars carry the BMR_ prefix (BMR_PORT, BMR_API_KEY...).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Port string

	// Auth for this service's API
	APIKey string

	// Extraction inputs
	TemplatesDir        string
	CaseSensitiveLabels bool
	MinClassifyScore    float64

	// OCR provider
	OCRBaseURL  string
	OCRAPIKey   string
	OCRModel    string
	OCRTimeout  time.Duration
	OCRCacheDir string

	// Persistence
	DatabasePath string

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL time.Duration

	// PDF
	PDFFallbackPdftotext bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8090")
	v.SetDefault("api_key", "")
	v.SetDefault("templates_dir", "templates")
	v.SetDefault("case_sensitive_labels", false)
	v.SetDefault("min_classify_score", 0.82)
	v.SetDefault("ocr.base_url", "https://api.mistral.ai")
	v.SetDefault("ocr.api_key", "")
	v.SetDefault("ocr.model", "mistral-ocr-latest")
	v.SetDefault("ocr.timeout", 2*time.Minute)
	v.SetDefault("ocr.cache_dir", "data/ocr-cache")
	v.SetDefault("database_path", "data/bmr.db")
	v.SetDefault("worker_count", 4)
	v.SetDefault("max_queue_size", 100)
	v.SetDefault("max_upload_bytes", int64(52428800)) // 50MB
	v.SetDefault("job_ttl", time.Hour)
	v.SetDefault("pdf_fallback_pdftotext", true)
}

// Load builds the configuration from defaults, BMR_-prefixed env vars,
// and the given command-line arguments.
func Load(args []string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("BMR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fs := pflag.NewFlagSet("bmr-ocr", pflag.ContinueOnError)
	fs.String("port", v.GetString("port"), "HTTP listen port")
	fs.String("templates-dir", v.GetString("templates_dir"), "directory of page-type templates")
	fs.String("database-path", v.GetString("database_path"), "SQLite database file")
	fs.Int("worker-count", v.GetInt("worker_count"), "pipeline worker goroutines")
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("parse flags: %w", err)
	}
	bindings := map[string]string{
		"port":          "port",
		"templates_dir": "templates-dir",
		"database_path": "database-path",
		"worker_count":  "worker-count",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return Config{}, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	cfg := Config{
		Port:                 v.GetString("port"),
		APIKey:               v.GetString("api_key"),
		TemplatesDir:         v.GetString("templates_dir"),
		CaseSensitiveLabels:  v.GetBool("case_sensitive_labels"),
		MinClassifyScore:     v.GetFloat64("min_classify_score"),
		OCRBaseURL:           v.GetString("ocr.base_url"),
		OCRAPIKey:            v.GetString("ocr.api_key"),
		OCRModel:             v.GetString("ocr.model"),
		OCRTimeout:           v.GetDuration("ocr.timeout"),
		OCRCacheDir:          v.GetString("ocr.cache_dir"),
		DatabasePath:         v.GetString("database_path"),
		WorkerCount:          v.GetInt("worker_count"),
		MaxQueueSize:         v.GetInt("max_queue_size"),
		MaxUploadBytes:       v.GetInt64("max_upload_bytes"),
		JobTTL:               v.GetDuration("job_ttl"),
		PDFFallbackPdftotext: v.GetBool("pdf_fallback_pdftotext"),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}
	if cfg.OCRTimeout <= 0 {
		cfg.OCRTimeout = 2 * time.Minute
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("BMR_API_KEY is required")
	}
	if c.TemplatesDir == "" {
		return fmt.Errorf("BMR_TEMPLATES_DIR is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("BMR_DATABASE_PATH is required")
	}
	if c.MinClassifyScore <= 0 || c.MinClassifyScore > 1 {
		return fmt.Errorf("BMR_MIN_CLASSIFY_SCORE must be in (0, 1]")
	}
	return nil
}
