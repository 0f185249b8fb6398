package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/career-case-rag/internal/config"
	"github.com/kirillkom/career-case-rag/internal/core/domain"
	"github.com/kirillkom/career-case-rag/internal/core/ports"
	"github.com/kirillkom/career-case-rag/internal/core/retrieval"
	"github.com/kirillkom/career-case-rag/internal/core/usecase"
	"github.com/kirillkom/career-case-rag/internal/infrastructure/corpusfile"
	"github.com/kirillkom/career-case-rag/internal/infrastructure/embedcache"
	"github.com/kirillkom/career-case-rag/internal/infrastructure/lexical"
	"github.com/kirillkom/career-case-rag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/career-case-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/career-case-rag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/career-case-rag/internal/infrastructure/repository/sqlite"
	"github.com/kirillkom/career-case-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/career-case-rag/internal/infrastructure/vector/pgvector"
	"github.com/kirillkom/career-case-rag/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/career-case-rag/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	HTTPMetrics       *metrics.HTTPServerMetrics
	RetrievalMetrics  *metrics.RetrievalMetrics
	ResilienceMetrics *metrics.ResilienceMetrics

	Events    *nats.CorpusEvents
	Embedder  *embedcache.CachedEmbedder
	Lexical   *lexical.Retriever
	QueryUC   *usecase.QueryUseCase
	IngestUC  *usecase.CorpusIngestUseCase
	HistoryUC *usecase.HistoryUseCase

	closeFn []func()
}

func New(ctx context.Context, cfg config.Config, service string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}

	app.HTTPMetrics = metrics.NewHTTPServerMetrics(service)
	app.RetrievalMetrics = metrics.NewRetrievalMetrics(app.HTTPMetrics.Registry(), service)
	app.ResilienceMetrics = metrics.NewResilienceMetrics(app.HTTPMetrics.Registry(), service)

	// Breakers are keyed by operation name, so one executor serves every upstream.
	executor := resilience.NewExecutor(cfg.Resilience,
		resilience.WithLogger(logger),
		resilience.WithObserver(app.ResilienceMetrics),
	)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.onClose(func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		app.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	events, err := nats.New(cfg.NATSURL, cfg.NATSCorpusSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init corpus events: %w", err)
	}
	app.onClose(events.Close)
	app.Events = events

	ollamaClient := ollama.New(ollama.Config{
		BaseURL:            cfg.OllamaURL,
		GenModel:           cfg.OllamaGenModel,
		EmbedModel:         cfg.OllamaEmbedModel,
		Timeout:            cfg.OllamaTimeout,
		ResilienceExecutor: executor,
	})

	cacheStore, err := app.embeddingCacheStore(db)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Embedder = embedcache.NewCachedEmbedder(ollama.NewEmbedder(ollamaClient), cacheStore, embedcache.Options{
		Namespace: cfg.EmbedCacheNamespace,
		TTL:       cfg.EmbedCacheTTL,
		Logger:    logger,
		Observer:  app.RetrievalMetrics,
	})

	index, err := app.vectorIndex(ctx, db, executor)
	if err != nil {
		app.Close()
		return nil, err
	}

	records := postgres.NewRecordRepository(db)
	var corpus ports.CorpusSource = records
	if strings.TrimSpace(cfg.LexicalCorpusPath) != "" {
		corpus = corpusfile.NewLoader(cfg.LexicalCorpusPath)
	}
	app.Lexical = lexical.NewRetriever(corpus, lexical.Options{
		Partition:   cfg.CorpusPartition,
		LoadTimeout: cfg.LexicalLoadTimeout,
		Logger:      logger,
		Observer:    app.RetrievalMetrics,
	})

	dense := usecase.NewDenseRetriever(app.Embedder, index, cfg.CorpusPartition, cfg.EmbeddingDimensions, logger)
	app.QueryUC = usecase.NewQueryUseCase(dense, app.Lexical, ollama.NewGenerator(ollamaClient), app.RetrievalMetrics, usecase.QueryConfig{
		TopK:       cfg.RAGTopK,
		ContextMax: cfg.RAGContextMax,
		Weights:    domain.FusionWeights{Dense: cfg.RAGDenseWeight, Sparse: cfg.RAGSparseWeight},
		Fusion: retrieval.FuseOptions{
			Strategy: retrieval.ParseFusionStrategy(cfg.RAGFusionStrategy),
			RRFK:     cfg.RAGFusionRRFK,
		},
		MinConfidence: cfg.RAGMinConfidence,
		Timeout:       cfg.RAGQueryTimeout,
	})
	app.IngestUC = usecase.NewCorpusIngestUseCase(app.Embedder, index, records, events, usecase.IngestConfig{
		Concurrency: cfg.IngestConcurrency,
		BatchSize:   cfg.IngestBatchSize,
	})
	app.HistoryUC = usecase.NewHistoryUseCase(postgres.NewConversationRepository(db))

	logger.Info("bootstrap_ready",
		"vector_backend", cfg.VectorBackend,
		"cache_backend", cfg.EmbedCacheBackend,
		"cache_namespace", app.Embedder.Namespace(),
		"partition", cfg.CorpusPartition,
		"fusion", cfg.RAGFusionStrategy,
	)
	return app, nil
}

func (a *App) embeddingCacheStore(db *sql.DB) (ports.EmbeddingCacheStore, error) {
	switch a.Config.EmbedCacheBackend {
	case config.CacheBackendMemory:
		return embedcache.NewMemoryStore(), nil
	case config.CacheBackendPostgres:
		return postgres.NewEmbeddingCacheRepository(db), nil
	case config.CacheBackendSQLite, "":
		store, err := sqlite.Open(a.Config.EmbedCacheSQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open embedding cache: %w", err)
		}
		a.onClose(func() { _ = store.Close() })
		return store, nil
	default:
		return nil, fmt.Errorf("unknown embedding cache backend %q", a.Config.EmbedCacheBackend)
	}
}

func (a *App) vectorIndex(ctx context.Context, db *sql.DB, executor *resilience.Executor) (ports.VectorIndex, error) {
	switch a.Config.VectorBackend {
	case config.VectorBackendPGVector:
		index := pgvector.New(db)
		if err := index.EnsureSchema(ctx, a.Config.EmbeddingDimensions); err != nil {
			return nil, fmt.Errorf("ensure pgvector schema: %w", err)
		}
		return index, nil
	case config.VectorBackendQdrant, "":
		return qdrant.New(qdrant.Config{
			BaseURL:            a.Config.QdrantURL,
			CollectionPrefix:   a.Config.QdrantCollectionPrefix,
			ResilienceExecutor: executor,
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", a.Config.VectorBackend)
	}
}

// ReloadOnCorpusEvents rebuilds the lexical index whenever a re-index event for the
// configured partition arrives. It blocks until ctx is done.
func (a *App) ReloadOnCorpusEvents(ctx context.Context) error {
	return a.Events.SubscribeCorpusReindexed(ctx, func(handlerCtx context.Context, partition string) error {
		if partition != "" && partition != a.Config.CorpusPartition {
			return nil
		}
		return a.Lexical.Rebuild(handlerCtx)
	})
}

func (a *App) onClose(fn func()) {
	a.closeFn = append(a.closeFn, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closeFn) - 1; i >= 0; i-- {
		a.closeFn[i]()
	}
	a.closeFn = nil
}
