package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Storage     StorageConfig     `yaml:"storage"`
	Qdrant      QdrantConfig      `yaml:"qdrant"`
	VectorStore VectorStoreConfig `yaml:"vectorstore"`
	Processing  ProcessingConfig  `yaml:"processing"`
	Context     ContextConfig     `yaml:"context"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	LLM         LLMConfig         `yaml:"llm"`
	Security    SecurityConfig    `yaml:"security"`
}

type ServerConfig struct {
	Port               string `yaml:"port"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

type QdrantConfig struct {
	URL        string        `yaml:"url"`
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	APIKey     string        `yaml:"api_key"`
	Collection string        `yaml:"collection_name"`
	VectorSize int           `yaml:"vector_size"`
	Timeout    time.Duration `yaml:"timeout"`
	BatchSize  int           `yaml:"batch_size"`
}

// BaseURL returns URL when set, otherwise http://host:port.
func (q QdrantConfig) BaseURL() string {
	if q.URL != "" {
		return strings.TrimRight(q.URL, "/")
	}
	return fmt.Sprintf("http://%s:%d", q.Host, q.Port)
}

type VectorStoreConfig struct {
	Backend     string `yaml:"backend"` // qdrant, chromem, pgvector or memory
	ChromemPath string `yaml:"chromem_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	PGTable     string `yaml:"pg_table"`
}

type ProcessingConfig struct {
	ChunkSize            int           `yaml:"chunk_size"`
	ChunkOverlap         int           `yaml:"chunk_overlap"`
	MinChunkSize         int           `yaml:"min_chunk_size"`
	SmartChunking        bool          `yaml:"smart_chunking"`
	HeadingPrefix        bool          `yaml:"heading_prefix"`
	MaxFileSizeMB        int           `yaml:"max_file_size_mb"`
	SupportedFormats     []string      `yaml:"supported_formats"`
	MinTextLength        int           `yaml:"min_text_length"`
	BatchSize            int           `yaml:"batch_size"`
	MaxWorkers           int           `yaml:"max_workers"`
	MaxQueueSize         int           `yaml:"max_queue_size"`
	MaxConcurrentEmbed   int           `yaml:"max_concurrent_embed"`
	JobTTL               time.Duration `yaml:"job_ttl"`
	PDFFallbackPdftotext bool          `yaml:"pdf_fallback_pdftotext"`
}

// MaxUploadBytes is MaxFileSizeMB in bytes.
func (p ProcessingConfig) MaxUploadBytes() int64 {
	return int64(p.MaxFileSizeMB) << 20
}

type ContextConfig struct {
	MaxChunks            int     `yaml:"max_chunks"`
	MinRelevance         float64 `yaml:"min_relevance"`
	DiversityFactor      float64 `yaml:"diversity_factor"`
	MaxDuplicateDistance float64 `yaml:"max_duplicate_distance"`
	CleanStopwords       bool    `yaml:"clean_stopwords"`
	SearchMinRelevance   float64 `yaml:"search_min_relevance"`
}

type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // tfidf, ollama or openai
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Dimension int    `yaml:"dimension"`
}

type LLMConfig struct {
	Provider         string        `yaml:"provider"` // openai (any compatible server) or ollama
	APIURL           string        `yaml:"api_url"`
	APIKey           string        `yaml:"api_key"`
	Model            string        `yaml:"model"`
	Temperature      float64       `yaml:"temperature"`
	MaxTokens        int           `yaml:"max_tokens"`
	TopP             float64       `yaml:"top_p"`
	FrequencyPenalty float64       `yaml:"frequency_penalty"`
	PresencePenalty  float64       `yaml:"presence_penalty"`
	Timeout          time.Duration `yaml:"timeout"`
	RetryAttempts    int           `yaml:"retry_attempts"`
	SystemPrompt     string        `yaml:"system_prompt"`
}

type SecurityConfig struct {
	SecretKey         string        `yaml:"secret_key"`
	AccessTokenTTL    time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL   time.Duration `yaml:"refresh_token_ttl"`
	PasswordMinLength int           `yaml:"password_min_length"`
	MaxLoginAttempts  int           `yaml:"max_login_attempts"`
	LockoutDuration   time.Duration `yaml:"lockout_duration"`
	AdminPassword     string        `yaml:"admin_password"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:  ServerConfig{Port: "8000", RateLimitPerMinute: 60},
		Logging: LoggingConfig{Level: "info"},
		Storage: StorageConfig{DatabasePath: "data/ragassist.db"},
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6333,
			Collection: "document_chunks_v2",
			VectorSize: 768,
			Timeout:    30 * time.Second,
			BatchSize:  20,
		},
		VectorStore: VectorStoreConfig{
			Backend:     "qdrant",
			ChromemPath: "data/chromem",
			PGTable:     "document_chunks",
		},
		Processing: ProcessingConfig{
			ChunkSize:            768,
			ChunkOverlap:         200,
			MinChunkSize:         300,
			SmartChunking:        true,
			HeadingPrefix:        true,
			MaxFileSizeMB:        50,
			SupportedFormats:     []string{".pdf", ".docx", ".txt", ".md", ".html", ".csv", ".xlsx"},
			MinTextLength:        50,
			BatchSize:            32,
			MaxWorkers:           4,
			MaxQueueSize:         100,
			MaxConcurrentEmbed:   4,
			JobTTL:               time.Hour,
			PDFFallbackPdftotext: true,
		},
		Context: ContextConfig{
			MaxChunks:            5,
			MinRelevance:         0.65,
			DiversityFactor:      0.3,
			MaxDuplicateDistance: 0.2,
			CleanStopwords:       true,
			SearchMinRelevance:   0.5,
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			Model:     "nomic-embed-text",
			BaseURL:   "http://localhost:11434",
			Dimension: 768,
		},
		LLM: LLMConfig{
			Provider:         "openai",
			APIURL:           "http://localhost:1234/v1",
			Model:            "google/gemma-3-4b",
			Temperature:      0.3,
			MaxTokens:        1000,
			TopP:             0.9,
			FrequencyPenalty: 0.2,
			PresencePenalty:  0.2,
			Timeout:          60 * time.Second,
			RetryAttempts:    3,
			SystemPrompt: "You are a document assistant. Answer the question using only the provided context. " +
				"If the context does not contain the answer, say that you could not find it in the documents. " +
				"Mention the source document and page when you use them.",
		},
		Security: SecurityConfig{
			AccessTokenTTL:    30 * time.Minute,
			RefreshTokenTTL:   7 * 24 * time.Hour,
			PasswordMinLength: 8,
			MaxLoginAttempts:  5,
			LockoutDuration:   15 * time.Minute,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if it
// exists), a .env file in the working directory (if it exists), and finally
// environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return cfg, fmt.Errorf("read %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = envOr("PORT", c.Server.Port)
	c.Server.RateLimitPerMinute = envInt("RATE_LIMIT_PER_MINUTE", c.Server.RateLimitPerMinute)
	c.Logging.Level = envOr("LOG_LEVEL", c.Logging.Level)
	c.Storage.DatabasePath = envOr("DATABASE_PATH", c.Storage.DatabasePath)

	c.Qdrant.URL = envOr("QDRANT_URL", c.Qdrant.URL)
	c.Qdrant.Host = envOr("QDRANT_HOST", c.Qdrant.Host)
	c.Qdrant.Port = envInt("QDRANT_PORT", c.Qdrant.Port)
	c.Qdrant.APIKey = envOr("QDRANT_API_KEY", c.Qdrant.APIKey)
	c.Qdrant.Collection = envOr("QDRANT_COLLECTION", c.Qdrant.Collection)
	c.Qdrant.VectorSize = envInt("QDRANT_VECTOR_SIZE", c.Qdrant.VectorSize)
	c.Qdrant.Timeout = envDuration("QDRANT_TIMEOUT", c.Qdrant.Timeout)

	c.VectorStore.Backend = envOr("VECTOR_BACKEND", c.VectorStore.Backend)
	c.VectorStore.ChromemPath = envOr("CHROMEM_PATH", c.VectorStore.ChromemPath)
	c.VectorStore.PostgresDSN = envOr("POSTGRES_DSN", c.VectorStore.PostgresDSN)

	c.Processing.ChunkSize = envInt("CHUNK_SIZE", c.Processing.ChunkSize)
	c.Processing.ChunkOverlap = envInt("CHUNK_OVERLAP", c.Processing.ChunkOverlap)
	c.Processing.MinChunkSize = envInt("MIN_CHUNK_SIZE", c.Processing.MinChunkSize)
	c.Processing.SmartChunking = envBool("SMART_CHUNKING", c.Processing.SmartChunking)
	c.Processing.MaxFileSizeMB = envInt("MAX_FILE_SIZE_MB", c.Processing.MaxFileSizeMB)
	c.Processing.MaxWorkers = envInt("MAX_WORKERS", c.Processing.MaxWorkers)
	c.Processing.BatchSize = envInt("BATCH_SIZE", c.Processing.BatchSize)
	c.Processing.JobTTL = envDuration("JOB_TTL", c.Processing.JobTTL)
	c.Processing.PDFFallbackPdftotext = envBool("PDF_FALLBACK_PDFTOTEXT", c.Processing.PDFFallbackPdftotext)

	c.Context.MaxChunks = envInt("CONTEXT_MAX_CHUNKS", c.Context.MaxChunks)
	c.Context.MinRelevance = envFloat("CONTEXT_MIN_RELEVANCE", c.Context.MinRelevance)
	c.Context.DiversityFactor = envFloat("CONTEXT_DIVERSITY_FACTOR", c.Context.DiversityFactor)

	c.Embedding.Provider = envOr("EMBEDDING_PROVIDER", c.Embedding.Provider)
	c.Embedding.Model = envOr("EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.BaseURL = envOr("EMBEDDING_BASE_URL", c.Embedding.BaseURL)
	c.Embedding.APIKey = envOr("EMBEDDING_API_KEY", c.Embedding.APIKey)
	c.Embedding.Dimension = envInt("EMBEDDING_DIMENSION", c.Embedding.Dimension)

	c.LLM.Provider = envOr("LLM_PROVIDER", c.LLM.Provider)
	c.LLM.APIURL = envOr("LLM_API_URL", c.LLM.APIURL)
	c.LLM.APIKey = envOr("LLM_API_KEY", c.LLM.APIKey)
	c.LLM.Model = envOr("LLM_MODEL", c.LLM.Model)
	c.LLM.Temperature = envFloat("LLM_TEMPERATURE", c.LLM.Temperature)
	c.LLM.MaxTokens = envInt("LLM_MAX_TOKENS", c.LLM.MaxTokens)
	c.LLM.Timeout = envDuration("LLM_TIMEOUT", c.LLM.Timeout)

	c.Security.SecretKey = envOr("SECRET_KEY", c.Security.SecretKey)
	c.Security.AdminPassword = envOr("ADMIN_PASSWORD", c.Security.AdminPassword)
	c.Security.AccessTokenTTL = envDuration("ACCESS_TOKEN_TTL", c.Security.AccessTokenTTL)
}

// applyDefaults repairs values that would make the service unusable rather
// than merely misconfigured.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Server.Port == "" {
		c.Server.Port = d.Server.Port
	}
	if c.Qdrant.Timeout <= 0 {
		c.Qdrant.Timeout = d.Qdrant.Timeout
	}
	if c.Qdrant.BatchSize <= 0 {
		c.Qdrant.BatchSize = d.Qdrant.BatchSize
	}
	if c.Processing.MaxWorkers <= 0 {
		c.Processing.MaxWorkers = d.Processing.MaxWorkers
	}
	if c.Processing.MaxQueueSize <= 0 {
		c.Processing.MaxQueueSize = d.Processing.MaxQueueSize
	}
	if c.Processing.MaxConcurrentEmbed <= 0 {
		c.Processing.MaxConcurrentEmbed = d.Processing.MaxConcurrentEmbed
	}
	if c.Processing.BatchSize <= 0 {
		c.Processing.BatchSize = d.Processing.BatchSize
	}
	if c.Processing.JobTTL <= 0 {
		c.Processing.JobTTL = d.Processing.JobTTL
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = d.LLM.Timeout
	}
	if c.Embedding.Dimension <= 0 {
		c.Embedding.Dimension = c.Qdrant.VectorSize
	}
}

// Validate reports every problem found, joined into one error.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Security.SecretKey != "", "SECRET_KEY is required")
	check(len(c.Security.SecretKey) == 0 || len(c.Security.SecretKey) >= 32,
		"security.secret_key must be at least 32 characters")
	check(c.Security.PasswordMinLength >= 6, "security.password_min_length must be at least 6")
	check(c.Security.MaxLoginAttempts > 0, "security.max_login_attempts must be positive")

	p := c.Processing
	check(p.ChunkSize >= 100 && p.ChunkSize <= 2048, "processing.chunk_size must be between 100 and 2048, got %d", p.ChunkSize)
	check(p.ChunkOverlap >= 0 && p.ChunkOverlap <= 500, "processing.chunk_overlap must be between 0 and 500, got %d", p.ChunkOverlap)
	check(p.ChunkOverlap < p.ChunkSize, "processing.chunk_overlap must be smaller than chunk_size")
	check(p.MinChunkSize >= 50 && p.MinChunkSize <= 1000, "processing.min_chunk_size must be between 50 and 1000, got %d", p.MinChunkSize)
	check(p.MaxFileSizeMB > 0, "processing.max_file_size_mb must be positive")

	x := c.Context
	check(x.MaxChunks >= 1, "context.max_chunks must be at least 1")
	check(x.MinRelevance >= 0 && x.MinRelevance <= 1, "context.min_relevance must be between 0 and 1")
	check(x.DiversityFactor >= 0 && x.DiversityFactor <= 1, "context.diversity_factor must be between 0 and 1")
	check(x.MaxDuplicateDistance >= 0 && x.MaxDuplicateDistance <= 2, "context.max_duplicate_distance must be between 0 and 2")
	check(x.SearchMinRelevance >= 0 && x.SearchMinRelevance <= 1, "context.search_min_relevance must be between 0 and 1")

	check(c.LLM.Temperature >= 0 && c.LLM.Temperature <= 2, "llm.temperature must be between 0 and 2")
	check(c.LLM.MaxTokens > 0, "llm.max_tokens must be positive")
	check(c.LLM.TopP > 0 && c.LLM.TopP <= 1, "llm.top_p must be in (0, 1]")
	check(oneOf(c.LLM.Provider, "openai", "ollama"), "llm.provider must be openai or ollama, got %q", c.LLM.Provider)

	check(oneOf(c.Embedding.Provider, "tfidf", "openai", "ollama"), "embedding.provider must be tfidf, openai or ollama, got %q", c.Embedding.Provider)
	check(c.Embedding.Dimension > 0, "embedding.dimension must be positive")

	switch c.VectorStore.Backend {
	case "qdrant":
		check(c.Qdrant.Collection != "", "qdrant.collection_name is required")
		check(c.Qdrant.VectorSize == c.Embedding.Dimension,
			"qdrant.vector_size (%d) must equal embedding.dimension (%d)", c.Qdrant.VectorSize, c.Embedding.Dimension)
	case "pgvector":
		check(c.VectorStore.PostgresDSN != "", "vectorstore.postgres_dsn is required for pgvector")
	case "chromem", "memory":
	default:
		errs = append(errs, fmt.Errorf("vectorstore.backend must be qdrant, chromem, pgvector or memory, got %q", c.VectorStore.Backend))
	}

	return errors.Join(errs...)
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
