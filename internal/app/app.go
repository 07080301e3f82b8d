// Package app wires configuration into a running pipeline. It is shared by
// the API server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/retrieva/internal/audit"
	"github.com/nikhilbhutani/retrieva/internal/cache"
	"github.com/nikhilbhutani/retrieva/internal/config"
	"github.com/nikhilbhutani/retrieva/internal/database"
	"github.com/nikhilbhutani/retrieva/internal/embedding"
	"github.com/nikhilbhutani/retrieva/internal/llm"
	"github.com/nikhilbhutani/retrieva/internal/progress"
	"github.com/nikhilbhutani/retrieva/internal/queue"
	"github.com/nikhilbhutani/retrieva/internal/rag"
	"github.com/nikhilbhutani/retrieva/internal/session"
)

// App holds the pipeline and the optional infrastructure behind it. DB,
// Redis, Audit and Queue are nil when not configured or unreachable.
type App struct {
	Config   *config.Config
	Embedder *embedding.Handle
	Gateway  *llm.Gateway
	Sessions *session.Manager
	Progress *progress.Bus
	Pipeline *rag.Pipeline

	DB    *pgxpool.Pool
	Redis *redis.Client
	Audit *audit.Service
	Queue *queue.Client
}

// Build validates cfg and assembles the application. Database and Redis are
// optional: connection failures are logged and the feature is disabled.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{
		Config:   cfg,
		Gateway:  llm.NewGateway(cfg.LLM),
		Progress: progress.NewBus(0),
		Sessions: session.NewManager(session.Options{
			Capacity:        cfg.Sessions.Capacity,
			IdleTTL:         cfg.Sessions.IdleTTL,
			JanitorInterval: cfg.Sessions.JanitorInterval,
		}),
	}

	if cfg.Database.URL != "" {
		db, err := database.NewPool(ctx, cfg.Database)
		if err != nil {
			slog.Warn("database unavailable, running without audit log", "error", err)
		} else {
			a.DB = db
			a.Audit = audit.NewService(db)
		}
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unavailable, running without cache", "error", err)
			rdb.Close()
		} else {
			a.Redis = rdb
		}
	}

	var vectors embedding.VectorCache
	if a.Redis != nil && cfg.Embedding.CacheTTL > 0 {
		vectors = cache.NewVectorCache(cache.NewCache(a.Redis), cfg.Embedding.CacheTTL)
	}

	handle, err := NewEmbedder(cfg.Embedding, vectors)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Embedder = handle

	if cfg.Queue.Enabled {
		if a.Redis == nil {
			a.Close()
			return nil, errors.New("queue enabled but redis is unavailable")
		}
		a.Queue = queue.NewClient(cfg.Redis)
	}

	deps := rag.Deps{
		Embedder: a.Embedder,
		Answerer: a.Gateway,
		Sessions: a.Sessions,
		Progress: a.Progress,
	}
	if a.Audit != nil {
		deps.Auditor = a.Audit
	}

	a.Pipeline, err = rag.NewPipeline(deps, rag.Options{
		Chunking:     cfg.ChunkOptions(),
		BatchSize:    cfg.RAG.BatchSize,
		TopK:         cfg.RAG.TopK,
		ContextChars: cfg.RAG.ContextChars,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// NewEmbedder picks the embedding backend named by cfg.Backend.
func NewEmbedder(cfg config.EmbeddingConfig, vectors embedding.VectorCache) (*embedding.Handle, error) {
	var (
		load embedding.Loader
		name string
	)
	switch cfg.Backend {
	case "local", "":
		load, name = embedding.LocalLoader(cfg.Dimension), fmt.Sprintf("local-hashing-%d", cfg.Dimension)
	case "openai":
		load, name = embedding.OpenAILoader(cfg.OpenAIKey, cfg.OpenAIURL, cfg.Model), "openai/"+orDefault(cfg.Model, "text-embedding-3-small")
	case "ollama":
		load, name = embedding.OllamaLoader(cfg.OllamaURL, cfg.Model), "ollama/"+orDefault(cfg.Model, "nomic-embed-text")
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", cfg.Backend)
	}

	opts := []embedding.Option{embedding.WithRetry(cfg.InitRetries, cfg.InitBackoff)}
	if vectors != nil {
		opts = append(opts, embedding.WithCache(vectors))
	}
	return embedding.NewHandle(name, load, opts...), nil
}

// Close releases connections. It is safe to call on a partially built App.
func (a *App) Close() {
	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			slog.Warn("close queue client", "error", err)
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level, err := cfg.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
