// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all pipeline configuration.
type Config struct {
	// Data configuration
	Data DataConfig `yaml:"data"`

	// BM25 baseline configuration
	BM25 BM25Config `yaml:"bm25"`

	// Dense baseline configuration
	Dense DenseConfig `yaml:"dense"`

	// LLM reranker configuration
	Rerank RerankConfig `yaml:"rerank"`

	// Evaluation configuration
	Eval EvalConfig `yaml:"eval"`

	// Plot configuration
	Plot PlotConfig `yaml:"plot"`

	// Logging configuration
	Log LogConfig `yaml:"log"`
}

// DataConfig holds raw dataset and artifact locations.
type DataConfig struct {
	RawPath      string `envconfig:"LEX_RAW_PATH" yaml:"raw_path"`
	QueryColumn  string `envconfig:"LEX_QUERY_COLUMN" yaml:"query_column"`
	DocColumn    string `envconfig:"LEX_DOC_COLUMN" yaml:"doc_column"`
	ProcessedDir string `envconfig:"LEX_PROCESSED_DIR" yaml:"processed_dir"`
	OutputsDir   string `envconfig:"LEX_OUTPUTS_DIR" yaml:"outputs_dir"`
}

// BM25Config holds sparse baseline settings.
type BM25Config struct {
	K1   float64 `envconfig:"LEX_BM25_K1" yaml:"k1"`
	B    float64 `envconfig:"LEX_BM25_B" yaml:"b"`
	TopK int     `envconfig:"LEX_BM25_TOP_K" yaml:"top_k"`
	Tag  string  `envconfig:"LEX_BM25_TAG" yaml:"tag"`
}

// DenseConfig holds the embedding service and dense baseline settings.
type DenseConfig struct {
	BaseURL   string `envconfig:"LEX_EMBED_BASE_URL" yaml:"base_url"`
	APIKey    string `envconfig:"LEX_EMBED_API_KEY" yaml:"api_key"`
	Model     string `envconfig:"LEX_EMBED_MODEL" yaml:"model"`
	BatchSize int    `envconfig:"LEX_EMBED_BATCH_SIZE" yaml:"batch_size"`
	TopK      int    `envconfig:"LEX_DENSE_TOP_K" yaml:"top_k"`
	CachePath string `envconfig:"LEX_EMBED_CACHE" yaml:"cache_path"`
	Timeout   int    `envconfig:"LEX_EMBED_TIMEOUT" yaml:"timeout"` // seconds
	Tag       string `envconfig:"LEX_DENSE_TAG" yaml:"tag"`
}

// RerankConfig holds LLM reranking settings.
type RerankConfig struct {
	APIKey            string  `envconfig:"GOOGLE_API_KEY" yaml:"-"`
	Model             string  `envconfig:"LEX_RERANK_MODEL" yaml:"model"`
	TopN              int     `envconfig:"LEX_RERANK_TOP_N" yaml:"top_n"`
	DocCharBudget     int     `envconfig:"LEX_RERANK_DOC_CHARS" yaml:"doc_char_budget"`
	QueryLimit        int     `envconfig:"LEX_RERANK_QUERY_LIMIT" yaml:"query_limit"` // 0 = all
	MaxRetries        int     `envconfig:"LEX_RERANK_MAX_RETRIES" yaml:"max_retries"`
	BackoffSeconds    int     `envconfig:"LEX_RERANK_BACKOFF" yaml:"backoff_seconds"`
	RateWaitSeconds   int     `envconfig:"LEX_RERANK_RATE_WAIT" yaml:"rate_wait_seconds"`
	TimeoutSeconds    int     `envconfig:"LEX_RERANK_TIMEOUT" yaml:"timeout_seconds"`
	RequestsPerMinute float64 `envconfig:"LEX_RERANK_RPM" yaml:"requests_per_minute"`
	Workers           int     `envconfig:"LEX_RERANK_WORKERS" yaml:"workers"`
	ZeroShotTag       string  `envconfig:"LEX_RERANK_ZEROSHOT_TAG" yaml:"zeroshot_tag"`
	FewShotTag        string  `envconfig:"LEX_RERANK_FEWSHOT_TAG" yaml:"fewshot_tag"`
}

// EvalConfig holds evaluation settings.
type EvalConfig struct {
	Cutoff     int         `envconfig:"LEX_EVAL_CUTOFF" yaml:"cutoff"`
	ReportPath string      `envconfig:"LEX_EVAL_REPORT" yaml:"report_path"`
	Systems    []SystemRun `yaml:"systems"`
}

// SystemRun names a run file to evaluate.
type SystemRun struct {
	Name string `yaml:"name"`
	Run  string `yaml:"run"`
}

// PlotConfig holds chart settings.
type PlotConfig struct {
	OutputPath string `envconfig:"LEX_PLOT_OUTPUT" yaml:"output_path"`
	Title      string `envconfig:"LEX_PLOT_TITLE" yaml:"title"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"LEX_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"LEX_LOG_FORMAT" yaml:"format"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Data = DataConfig{
		RawPath:      "data/raw/raw_data.csv",
		QueryColumn:  "soru",
		DocColumn:    "cevap",
		ProcessedDir: "data/processed",
		OutputsDir:   "outputs",
	}

	cfg.BM25 = BM25Config{
		K1:   1.5,
		B:    0.75,
		TopK: 100,
		Tag:  "BM25",
	}

	cfg.Dense = DenseConfig{
		BaseURL:   "http://localhost:8081/v1",
		Model:     "paraphrase-multilingual-MiniLM-L12-v2",
		BatchSize: 32,
		TopK:      100,
		CachePath: "data/processed/corpus_embeddings.gob",
		Timeout:   60,
		Tag:       "SBERT",
	}

	cfg.Rerank = RerankConfig{
		Model:             "gemini-2.0-flash",
		TopN:              10,
		DocCharBudget:     500,
		QueryLimit:        0,
		MaxRetries:        3,
		BackoffSeconds:    5,
		RateWaitSeconds:   60,
		TimeoutSeconds:    60,
		RequestsPerMinute: 10,
		Workers:           2,
		ZeroShotTag:       "GEMINI",
		FewShotTag:        "GEMINI_FEWSHOT",
	}

	cfg.Eval = EvalConfig{
		Cutoff:     10,
		ReportPath: "outputs/metrics.tsv",
		Systems: []SystemRun{
			{Name: "BM25 (Baseline)", Run: "outputs/run_bm25.txt"},
			{Name: "S-BERT (Dense)", Run: "outputs/run_sbert.txt"},
			{Name: "Gemini (Zero-Shot)", Run: "outputs/run_gemini_zeroshot.txt"},
			{Name: "Gemini (Few-Shot)", Run: "outputs/run_gemini_fewshot.txt"},
		},
	}

	cfg.Plot = PlotConfig{
		OutputPath: "outputs/results_chart.png",
		Title:      "Comparison of Retrieval Models on Turkish Law Dataset",
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	// Data validation
	if c.Data.QueryColumn == "" || c.Data.DocColumn == "" {
		errs = append(errs, "query_column and doc_column must be set")
	}

	// BM25 validation
	if c.BM25.K1 <= 0 {
		errs = append(errs, "bm25 k1 must be positive")
	}
	if c.BM25.B < 0 || c.BM25.B > 1 {
		errs = append(errs, "bm25 b must be between 0 and 1")
	}
	if c.BM25.TopK < 1 {
		errs = append(errs, "bm25 top_k must be positive")
	}

	// Dense validation
	if c.Dense.BatchSize < 1 {
		errs = append(errs, "dense batch_size must be positive")
	}
	if c.Dense.TopK < 1 {
		errs = append(errs, "dense top_k must be positive")
	}

	// Rerank validation
	if c.Rerank.TopN < 1 {
		errs = append(errs, "rerank top_n must be positive")
	}
	if c.Rerank.TopN > c.BM25.TopK {
		errs = append(errs, "rerank top_n cannot exceed bm25 top_k")
	}
	if c.Rerank.DocCharBudget < 1 {
		errs = append(errs, "rerank doc_char_budget must be positive")
	}
	if c.Rerank.MaxRetries < 0 {
		errs = append(errs, "rerank max_retries cannot be negative")
	}
	if c.Rerank.RateWaitSeconds < 0 {
		errs = append(errs, "rerank rate_wait_seconds cannot be negative")
	}
	if c.Rerank.RequestsPerMinute <= 0 {
		errs = append(errs, "rerank requests_per_minute must be positive")
	}
	if c.Rerank.Workers < 1 {
		errs = append(errs, "rerank workers must be positive")
	}

	// Eval validation
	if c.Eval.Cutoff < 1 {
		errs = append(errs, "eval cutoff must be positive")
	}
	if len(c.Eval.Systems) == 0 {
		errs = append(errs, "eval systems cannot be empty")
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// RequestTimeout returns the per-request timeout for LLM calls, floored
// at a minute when unset.
func (c RerankConfig) RequestTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// InitialBackoff returns the first retry backoff for LLM calls; later
// attempts double it.
func (c RerankConfig) InitialBackoff() time.Duration {
	return time.Duration(c.BackoffSeconds) * time.Second
}

// RateWait returns how long to pause after a rate-limited reply before
// trying again.
func (c RerankConfig) RateWait() time.Duration {
	return time.Duration(c.RateWaitSeconds) * time.Second
}

// RequestTimeout returns the embedding request timeout, floored at a
// minute when unset.
func (c DenseConfig) RequestTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}
