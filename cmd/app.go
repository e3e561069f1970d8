package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/xhad/campusconnect/internal/types"
	"github.com/xhad/campusconnect/pkg/cache"
	"github.com/xhad/campusconnect/pkg/chat"
	"github.com/xhad/campusconnect/pkg/escalation"
	"github.com/xhad/campusconnect/pkg/faq"
	"github.com/xhad/campusconnect/pkg/ingest"
	"github.com/xhad/campusconnect/pkg/language"
	"github.com/xhad/campusconnect/pkg/llm"
	"github.com/xhad/campusconnect/pkg/pipeline"
	"github.com/xhad/campusconnect/pkg/processor"
	"github.com/xhad/campusconnect/pkg/ratelimit"
	"github.com/xhad/campusconnect/pkg/store"
)

// app holds every component built from the loaded configuration.
type app struct {
	store       store.Store
	redis       *redis.Client
	embedder    types.Embedder
	chat        *chat.Service
	pipeline    *pipeline.Pipeline
	escalations *escalation.Manager
	faqs        *faq.Service
	documents   *ingest.Manager
	limiter     ratelimit.Limiter
}

func newApp(ctx context.Context) (*app, error) {
	a := &app{}

	if config.Database.URL == "" {
		logger.Warn().Msg("database.url is not set, using the in-memory store; data is lost on exit")
		a.store = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(ctx, store.PostgresConfig{
			ConnString: config.Database.URL,
			VectorDim:  config.Embedding.Dimension,
			MaxConns:   config.Database.MaxConns,
		})
		if err != nil {
			return nil, err
		}
		a.store = pg
	}

	var embedCache cache.Client
	if config.Cache.RedisAddr != "" {
		rc, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     config.Cache.RedisAddr,
			Password: config.Cache.Password,
			DB:       config.Cache.DB,
			Prefix:   config.Cache.Prefix,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = rc.Raw()
		embedCache = rc
	} else {
		embedCache = cache.NewMemoryClient(10000)
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider:  config.Embedding.Provider,
		Model:     config.Embedding.Model,
		BaseURL:   config.Embedding.BaseURL,
		APIKey:    config.Embedding.APIKey,
		Dimension: config.Embedding.Dimension,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.embedder = llm.NewCachedEmbedder(embedder, embedCache, embedder.Model(), config.Cache.TTL,
		llm.WithCacheLogger(logger))

	generator, err := llm.NewWithConfig(llm.ChatConfig{
		Provider:    config.LLM.Provider,
		Model:       config.LLM.Model,
		BaseURL:     config.LLM.BaseURL,
		APIKey:      config.LLM.APIKey,
		Temperature: config.LLM.Temperature,
		MaxTokens:   config.LLM.MaxTokens,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	a.chat = chat.NewService(a.store)
	a.pipeline, err = pipeline.New(pipeline.Config{
		FAQThreshold:    config.Retrieval.FAQThreshold,
		DocThreshold:    config.Retrieval.DocThreshold,
		FAQCandidates:   config.Retrieval.FAQCandidates,
		DocCandidates:   config.Retrieval.DocCandidates,
		ContextChunks:   config.Retrieval.ContextChunks,
		HistoryLimit:    config.Retrieval.HistoryLimit,
		DefaultLanguage: config.Language.Fallback,
	}, pipeline.Deps{
		Chat:        a.chat,
		FAQs:        a.store,
		Chunks:      a.store,
		Escalations: a.store,
		Embedder:    a.embedder,
		Generator:   generator,
		Language:    language.New(config.Language.Fallback),
	}, pipeline.WithLogger(logger))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.escalations = escalation.NewManager(a.store, a.chat, a.embedder, escalation.WithLogger(logger))
	a.faqs = faq.NewService(a.store, a.embedder, faq.WithLogger(logger))
	a.documents = ingest.NewManager(a.store, a.embedder,
		ingest.WithLogger(logger),
		ingest.WithChunker(processor.NewWithConfig(processor.ProcessorConfig{
			ChunkSize:     config.Processor.ChunkSize,
			ChunkOverlap:  *config.Processor.ChunkOverlap,
			MinChunkChars: config.Processor.MinChunkChars,
		})))

	switch config.RateLimit.Backend {
	case "redis":
		if a.redis == nil {
			a.Close()
			return nil, fmt.Errorf("rate_limit.backend is redis but cache.redis_addr is not set")
		}
		a.limiter = ratelimit.NewRedis(a.redis, config.RateLimit.Requests, config.RateLimit.Window)
	default:
		a.limiter = ratelimit.NewMemory(config.RateLimit.Requests, config.RateLimit.Window)
	}

	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing redis")
		}
	}
	if a.store != nil {
		a.store.Close()
	}
}
