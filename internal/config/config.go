package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nikhilbhutani/retrieva/pkg/chunker"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	RAG       RAGConfig       `yaml:"rag"`
	Sessions  SessionConfig   `yaml:"sessions"`
	Queue     QueueConfig     `yaml:"queue"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	CORSOrigins    []string `yaml:"cors_origins"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
	MaxUploadMB    int      `yaml:"max_upload_mb"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxConns       int    `yaml:"max_conns"`
	MinConns       int    `yaml:"min_conns"`
	MigrationsPath string `yaml:"migrations_path"`
}

// RedisConfig is optional; an empty Addr disables the vector cache and the
// async queue.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type LLMConfig struct {
	DefaultProvider  string        `yaml:"default_provider"`
	DefaultModel     string        `yaml:"default_model"`
	FallbackProvider string        `yaml:"fallback_provider"`
	MaxRetries       int           `yaml:"max_retries"`
	Timeout          time.Duration `yaml:"timeout"`

	GeminiKey      string `yaml:"gemini_key"`
	GeminiURL      string `yaml:"gemini_url"`
	GeminiModel    string `yaml:"gemini_model"`
	OpenAIKey      string `yaml:"openai_key"`
	OpenAIURL      string `yaml:"openai_url"`
	OpenAIModel    string `yaml:"openai_model"`
	AnthropicKey   string `yaml:"anthropic_key"`
	AnthropicURL   string `yaml:"anthropic_url"`
	AnthropicModel string `yaml:"anthropic_model"`
	OllamaURL      string `yaml:"ollama_url"`
	OllamaModel    string `yaml:"ollama_model"`
}

type EmbeddingConfig struct {
	Backend     string        `yaml:"backend"` // local, openai or ollama
	Model       string        `yaml:"model"`
	Dimension   int           `yaml:"dimension"`
	OpenAIKey   string        `yaml:"openai_key"`
	OpenAIURL   string        `yaml:"openai_url"`
	OllamaURL   string        `yaml:"ollama_url"`
	InitRetries int           `yaml:"init_retries"`
	InitBackoff time.Duration `yaml:"init_backoff"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	Prewarm     bool          `yaml:"prewarm"`
}

type RAGConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	BatchSize    int `yaml:"batch_size"`
	TopK         int `yaml:"top_k"`
	ContextChars int `yaml:"context_chars"`
}

type SessionConfig struct {
	Capacity        int           `yaml:"capacity"`
	IdleTTL         time.Duration `yaml:"idle_ttl"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
}

type QueueConfig struct {
	Enabled     bool `yaml:"enabled"`
	Concurrency int  `yaml:"concurrency"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

var (
	embeddingBackends = []string{"local", "openai", "ollama"}
	llmProviders      = []string{"gemini", "openai", "anthropic", "ollama"}
)

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			CORSOrigins:    []string{"*"},
			RateLimitRPS:   10,
			RateLimitBurst: 20,
			MaxUploadMB:    32,
		},
		Database: DatabaseConfig{
			MaxConns:       10,
			MinConns:       1,
			MigrationsPath: "migrations",
		},
		LLM: LLMConfig{
			DefaultProvider: "gemini",
			MaxRetries:      3,
			Timeout:         60 * time.Second,
			GeminiURL:       "https://generativelanguage.googleapis.com",
			GeminiModel:     "gemini-flash-latest",
			OpenAIModel:     "gpt-4o-mini",
			AnthropicModel:  "claude-sonnet-4-20250514",
			OllamaURL:       "http://localhost:11434",
			OllamaModel:     "llama3",
		},
		Embedding: EmbeddingConfig{
			Backend:     "local",
			Dimension:   384,
			OllamaURL:   "http://localhost:11434",
			InitRetries: 2,
			InitBackoff: 500 * time.Millisecond,
			Prewarm:     true,
		},
		RAG: RAGConfig{
			ChunkSize:    500,
			ChunkOverlap: 50,
			BatchSize:    10,
			TopK:         3,
			ContextChars: 1000,
		},
		Sessions: SessionConfig{
			JanitorInterval: time.Minute,
		},
		Queue: QueueConfig{
			Concurrency: 4,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load layers defaults, the optional YAML file named by CONFIG_FILE, and
// environment variables, in that order.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(dst *string, key string) { *dst = getEnv(key, *dst) }
	num := func(dst *int, key string) {
		v, err := getEnvInt(key, *dst)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*dst = v
	}
	dur := func(dst *time.Duration, key string) {
		v, err := getEnvDuration(key, *dst)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*dst = v
	}
	flag := func(dst *bool, key string) {
		v, err := getEnvBool(key, *dst)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*dst = v
	}

	str(&c.Server.Host, "SERVER_HOST")
	num(&c.Server.Port, "SERVER_PORT")
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err))
		} else {
			c.Server.RateLimitRPS = rps
		}
	}
	num(&c.Server.RateLimitBurst, "RATE_LIMIT_BURST")
	num(&c.Server.MaxUploadMB, "MAX_UPLOAD_MB")

	str(&c.Database.URL, "DATABASE_URL")
	num(&c.Database.MaxConns, "DB_MAX_CONNS")
	num(&c.Database.MinConns, "DB_MIN_CONNS")
	str(&c.Database.MigrationsPath, "MIGRATIONS_PATH")

	str(&c.Redis.Addr, "REDIS_ADDR")
	str(&c.Redis.Password, "REDIS_PASSWORD")
	num(&c.Redis.DB, "REDIS_DB")

	str(&c.Auth.JWTSecret, "AUTH_JWT_SECRET")

	str(&c.LLM.DefaultProvider, "LLM_DEFAULT_PROVIDER")
	str(&c.LLM.DefaultModel, "LLM_DEFAULT_MODEL")
	str(&c.LLM.FallbackProvider, "LLM_FALLBACK_PROVIDER")
	num(&c.LLM.MaxRetries, "LLM_MAX_RETRIES")
	dur(&c.LLM.Timeout, "LLM_TIMEOUT")
	str(&c.LLM.GeminiKey, "GEMINI_API_KEY")
	str(&c.LLM.GeminiURL, "GEMINI_BASE_URL")
	str(&c.LLM.GeminiModel, "GEMINI_MODEL")
	str(&c.LLM.OpenAIKey, "OPENAI_API_KEY")
	str(&c.LLM.OpenAIURL, "OPENAI_BASE_URL")
	str(&c.LLM.OpenAIModel, "OPENAI_MODEL")
	str(&c.LLM.AnthropicKey, "ANTHROPIC_API_KEY")
	str(&c.LLM.AnthropicURL, "ANTHROPIC_BASE_URL")
	str(&c.LLM.AnthropicModel, "ANTHROPIC_MODEL")
	str(&c.LLM.OllamaURL, "OLLAMA_URL")
	str(&c.LLM.OllamaModel, "OLLAMA_MODEL")

	str(&c.Embedding.Backend, "EMBEDDING_BACKEND")
	str(&c.Embedding.Model, "EMBEDDING_MODEL")
	num(&c.Embedding.Dimension, "EMBEDDING_DIM")
	str(&c.Embedding.OpenAIKey, "EMBEDDING_OPENAI_API_KEY")
	str(&c.Embedding.OpenAIURL, "EMBEDDING_OPENAI_BASE_URL")
	str(&c.Embedding.OllamaURL, "EMBEDDING_OLLAMA_URL")
	num(&c.Embedding.InitRetries, "EMBEDDING_INIT_RETRIES")
	dur(&c.Embedding.InitBackoff, "EMBEDDING_INIT_BACKOFF")
	dur(&c.Embedding.CacheTTL, "EMBEDDING_CACHE_TTL")
	flag(&c.Embedding.Prewarm, "EMBEDDING_PREWARM")
	if c.Embedding.OpenAIKey == "" {
		c.Embedding.OpenAIKey = c.LLM.OpenAIKey
	}

	num(&c.RAG.ChunkSize, "RAG_CHUNK_SIZE")
	num(&c.RAG.ChunkOverlap, "RAG_CHUNK_OVERLAP")
	num(&c.RAG.BatchSize, "RAG_BATCH_SIZE")
	num(&c.RAG.TopK, "RAG_TOP_K")
	num(&c.RAG.ContextChars, "RAG_CONTEXT_CHARS")

	num(&c.Sessions.Capacity, "SESSION_CAPACITY")
	dur(&c.Sessions.IdleTTL, "SESSION_IDLE_TTL")
	dur(&c.Sessions.JanitorInterval, "SESSION_JANITOR_INTERVAL")

	flag(&c.Queue.Enabled, "QUEUE_ENABLED")
	num(&c.Queue.Concurrency, "QUEUE_CONCURRENCY")

	str(&c.Log.Level, "LOG_LEVEL")
	str(&c.Log.Format, "LOG_FORMAT")

	return errors.Join(errs...)
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ChunkOptions converts the RAG section into chunker options.
func (c *Config) ChunkOptions() chunker.Options {
	return chunker.Options{ChunkSize: c.RAG.ChunkSize, ChunkOverlap: c.RAG.ChunkOverlap}
}

func (c *Config) Validate() error {
	var errs []error

	if err := c.ChunkOptions().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.RAG.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("RAG_BATCH_SIZE must be positive, got %d", c.RAG.BatchSize))
	}
	if c.RAG.TopK <= 0 {
		errs = append(errs, fmt.Errorf("RAG_TOP_K must be positive, got %d", c.RAG.TopK))
	}
	if c.RAG.ContextChars <= 0 {
		errs = append(errs, fmt.Errorf("RAG_CONTEXT_CHARS must be positive, got %d", c.RAG.ContextChars))
	}

	if !slices.Contains(embeddingBackends, c.Embedding.Backend) {
		errs = append(errs, fmt.Errorf("unknown EMBEDDING_BACKEND %q (want one of %s)", c.Embedding.Backend, strings.Join(embeddingBackends, ", ")))
	}
	if c.Embedding.Backend == "local" && c.Embedding.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_DIM must be positive, got %d", c.Embedding.Dimension))
	}
	if c.Embedding.InitRetries < 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_INIT_RETRIES must not be negative, got %d", c.Embedding.InitRetries))
	}

	if !slices.Contains(llmProviders, c.LLM.DefaultProvider) {
		errs = append(errs, fmt.Errorf("unknown LLM_DEFAULT_PROVIDER %q (want one of %s)", c.LLM.DefaultProvider, strings.Join(llmProviders, ", ")))
	}
	if c.LLM.FallbackProvider != "" && !slices.Contains(llmProviders, c.LLM.FallbackProvider) {
		errs = append(errs, fmt.Errorf("unknown LLM_FALLBACK_PROVIDER %q", c.LLM.FallbackProvider))
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("LLM_MAX_RETRIES must not be negative, got %d", c.LLM.MaxRetries))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("LLM_TIMEOUT must be positive, got %s", c.LLM.Timeout))
	}

	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BURST must be at least 1 when RATE_LIMIT_RPS is set, got %d", c.Server.RateLimitBurst))
	}
	if c.Sessions.Capacity < 0 {
		errs = append(errs, fmt.Errorf("SESSION_CAPACITY must not be negative, got %d", c.Sessions.Capacity))
	}
	if c.Queue.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("QUEUE_ENABLED requires REDIS_ADDR"))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q: %w", l.Level, err)
	}
	return level, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
