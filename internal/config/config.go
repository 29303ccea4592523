// Package config provides configuration management for Lorebook.
// It loads settings from environment variables with the LOREBOOK_ prefix
// and provides sensible defaults for all configuration options.
//
// Every component receives its paths through this structure at construction
// time. Nothing in the codebase reads a process-wide path constant, which is
// what allows tests to run against temp directories and in-memory stores.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all configuration settings for the Lorebook application.
type Config struct {
	Project    ProjectConfig
	Extraction ExtractionConfig
	Index      IndexConfig
	Embedding  EmbeddingConfig
}

// ProjectConfig locates the narrative project on disk.
type ProjectConfig struct {
	RootDir    string // Project root containing the chapter directory (default: .)
	StorageDir string // Knowledge-base directory (default: {root}/.webnovel)
	ChapterDir string // Chapter directory name under the root (default: 正文)
}

// ExtractionConfig controls the extraction engine.
type ExtractionConfig struct {
	RulesPath          string // Path to the YAML recognizer rule file (default: {storage}/rules.yaml)
	PromotionThreshold int    // Occurrences before a discovered token is proposed (default: 3)
	StopwordLanguage   string // Stopword list for discovery filtering (default: en)
}

// IndexConfig contains relational index configuration.
type IndexConfig struct {
	DBPath string // SQLite database path (default: {storage}/index.db)
}

// EmbeddingConfig contains the optional scene-embedding configuration.
// The embedding step is disabled by default and is never a hard dependency;
// when disabled the pipeline uses a no-op provider.
type EmbeddingConfig struct {
	Enabled           bool          // Enable scene embedding (default: false)
	EmbedderURL       string        // Remote embedder base URL (default: http://localhost:11434)
	Model             string        // Embedding model name (default: nomic-embed-text)
	Timeout           time.Duration // Per-request timeout (default: 5s)
	PostgresDSN       string        // Vector index DSN; empty disables persistence
	RequestsPerSecond float64       // Client-side rate limit (default: 4)
	Burst             int           // Rate limiter burst (default: 2)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the LOREBOOK_ prefix.
func LoadConfig() (*Config, error) {
	root := getEnv("LOREBOOK_ROOT", ".")
	storage := getEnv("LOREBOOK_STORAGE_DIR", filepath.Join(root, ".webnovel"))

	cfg := &Config{
		Project: ProjectConfig{
			RootDir:    root,
			StorageDir: storage,
			ChapterDir: getEnv("LOREBOOK_CHAPTER_DIR", "正文"),
		},
		Extraction: ExtractionConfig{
			RulesPath:          getEnv("LOREBOOK_RULES_PATH", filepath.Join(storage, "rules.yaml")),
			PromotionThreshold: getEnvInt("LOREBOOK_PROMOTION_THRESHOLD", 3),
			StopwordLanguage:   getEnv("LOREBOOK_STOPWORD_LANG", "en"),
		},
		Index: IndexConfig{
			DBPath: getEnv("LOREBOOK_INDEX_DB", filepath.Join(storage, "index.db")),
		},
		Embedding: EmbeddingConfig{
			Enabled:           getEnvBool("LOREBOOK_EMBEDDING_ENABLED", false),
			EmbedderURL:       getEnv("LOREBOOK_EMBEDDER_URL", "http://localhost:11434"),
			Model:             getEnv("LOREBOOK_EMBEDDING_MODEL", "nomic-embed-text"),
			Timeout:           getEnvDuration("LOREBOOK_EMBEDDING_TIMEOUT", 5*time.Second),
			PostgresDSN:       getEnv("LOREBOOK_VECTOR_DSN", ""),
			RequestsPerSecond: getEnvFloat("LOREBOOK_EMBEDDING_RPS", 4),
			Burst:             getEnvInt("LOREBOOK_EMBEDDING_BURST", 2),
		},
	}

	return cfg, nil
}

// StatePath returns the path of the JSON state document.
func (c *Config) StatePath() string {
	return filepath.Join(c.Project.StorageDir, "state.json")
}

// ReportPath returns the per-chapter report file path.
func (c *Config) ReportPath(chapter int) string {
	return filepath.Join(c.Project.StorageDir, fmt.Sprintf("report_chapter_%d.json", chapter))
}

// ChapterPath returns the chapter source file path following the
// {root}/正文/第{NNNN}章.md convention (chapter number zero-padded to four).
func (c *Config) ChapterPath(chapter int) string {
	return filepath.Join(c.Project.RootDir, c.Project.ChapterDir,
		fmt.Sprintf("第%04d章.md", chapter))
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false
// (case-insensitive). Unparseable values fall back to the default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (e.g. "10s") or
// returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
