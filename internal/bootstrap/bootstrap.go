package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kirillkom/peptide-answer-service/internal/config"
	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
	"github.com/kirillkom/peptide-answer-service/internal/core/usecase"
	rediscache "github.com/kirillkom/peptide-answer-service/internal/infrastructure/cache/redis"
	"github.com/kirillkom/peptide-answer-service/internal/infrastructure/chunking"
	"github.com/kirillkom/peptide-answer-service/internal/infrastructure/llm/openai"
	"github.com/kirillkom/peptide-answer-service/internal/infrastructure/queue/nats"
	"github.com/kirillkom/peptide-answer-service/internal/infrastructure/queue/workerpool"
	"github.com/kirillkom/peptide-answer-service/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/peptide-answer-service/internal/infrastructure/resilience"
	"github.com/kirillkom/peptide-answer-service/internal/infrastructure/scraper"
	"github.com/kirillkom/peptide-answer-service/internal/infrastructure/search"
	"github.com/kirillkom/peptide-answer-service/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/peptide-answer-service/internal/observability/apiusage"
	"github.com/kirillkom/peptide-answer-service/internal/observability/metrics"
)

const apiService = "api"

// App holds everything the API process serves.
type App struct {
	Config  config.Config
	Metrics *metrics.HTTPServerMetrics

	Router    ports.IntentRouter
	Answers   ports.AnswerService
	Knowledge ports.KnowledgeService
	Cache     ports.CacheAdmin
	Sessions  ports.SessionService
	Dashboard ports.DashboardService
	Admin     ports.AdminService

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	httpMetrics := metrics.NewHTTPServerMetrics(apiService)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.AutoMigrate {
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}
	adminRepo := postgres.NewAdminRepository(db)
	transcriptRepo := postgres.NewTranscriptRepository(db)
	usageRepo := postgres.NewUsageRepository(db)

	if err := applySeed(ctx, cfg.SeedFile, adminRepo); err != nil {
		_ = db.Close()
		return nil, err
	}

	pool := workerpool.New(workerpool.Config{
		Workers:     cfg.BackgroundWorkers,
		QueueSize:   cfg.BackgroundQueueSize,
		TaskTimeout: cfg.BackgroundTaskTimeout,
	}, httpMetrics)

	cost := apiusage.DefaultCostCalculator()
	if err := cost.ApplyOverrides(cfg.APIPricing); err != nil {
		slog.Warn("api_pricing_ignored", "error", err)
	}
	tracker := apiusage.NewTracker(httpMetrics, apiusage.NewAsyncSink(pool, usageRepo), cost)
	// Cache calls feed metrics and logs only; they are not persisted.
	cacheTracker := apiusage.NewTracker(httpMetrics, nil, cost)

	cacheStore, err := rediscache.Open(cfg.RedisURL, cacheTracker)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open redis: %w", err)
	}

	executor := resilience.NewExecutor(resilience.ProviderConfig().WithObserver(httpMetrics))
	qdrantExecutor := resilience.NewExecutor(
		resilience.VectorWriteConfig(cfg.QdrantRetryAttempts, cfg.QdrantRetryBackoff).WithObserver(httpMetrics),
	)

	llmClient := openai.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, openai.Options{
		Executor: executor,
		Tracker:  tracker,
	})
	rawEmbedder := openai.NewEmbedder(llmClient, cfg.OpenAIEmbedModel, cfg.EmbeddingDimensions)
	embedder := usecase.NewCachedEmbedder(rawEmbedder, cacheStore, cfg.OpenAIEmbedModel, cfg.EmbeddingCacheTTL)
	completer := openai.NewCompleter(llmClient)

	knowledgeStore := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, cfg.EmbeddingDimensions, qdrant.Options{
		Executor: qdrantExecutor,
		Tracker:  tracker,
	})
	if err := knowledgeStore.EnsureReady(ctx); err != nil {
		// The cascade treats vector failures as an empty tier; startup continues.
		slog.Warn("qdrant_not_ready", "collection", cfg.QdrantCollection, "error", err)
	}

	searchOpts := search.Options{Executor: executor, Tracker: tracker}
	managedProvider := search.NewTavily(cfg.TavilyURL, cfg.TavilyAPIKey, searchOpts)
	broadProvider := search.NewSerpAPI(cfg.SerpAPIURL, cfg.SerpAPIAPIKey, searchOpts)
	pageScraper := scraper.New(cfg.ScrapeTimeout, cfg.ScrapeMaxChars)
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)

	allowList := usecase.NewAllowListLoader(adminRepo)
	cacheGateway := usecase.NewCacheGateway(cacheStore, cfg.CacheTTL)
	vectorTier := usecase.NewVectorKnowledgeTier(embedder, knowledgeStore, cfg.VectorMinScore)
	judge := usecase.NewRelevanceJudge(completer, cfg.OpenAIJudgeModel, cfg.JudgeTimeout)
	managedTier := usecase.NewManagedSearchTier(managedProvider, allowList, adminRepo)
	fallbackTier := usecase.NewFallbackSearchTier(broadProvider, pageScraper, allowList, chunker, embedder, usecase.FallbackConfig{
		NumResults:       cfg.FallbackNumResults,
		MaxPages:         cfg.FallbackMaxPages,
		MaxChunksPerPage: cfg.FallbackChunksPerPage,
		TopChunks:        cfg.FallbackTopChunks,
		MinConfidence:    cfg.ConfidenceScore,
	})
	synth := usecase.NewResponseSynthesizer(completer, adminRepo, cfg.OpenAIChatModel, cfg.SynthesisTimeout)

	var (
		publisher ports.TranscriptPublisher = usecase.NewTranscriptWriter(transcriptRepo)
		queue     *nats.Queue
	)
	if cfg.NATSURL != "" {
		queue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			Name:               "peptide-api",
			ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig().WithObserver(httpMetrics)),
		})
		if err != nil {
			_ = cacheStore.Close()
			_ = db.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		publisher = queue
	} else {
		slog.Info("transcripts_in_process", "reason", "NATS_URL not set")
	}

	cascade := usecase.NewCascadeController(
		cacheGateway, vectorTier, judge, managedTier, fallbackTier, synth,
		usecase.CascadeHooks{
			Background:  pool,
			Transcripts: publisher,
			Observer:    httpMetrics,
		},
		usecase.CascadeConfig{
			HighConfidence: cfg.VectorHighConfidence,
			CacheTTL:       cfg.CacheTTL,
		},
	)

	router := usecase.NewIntentRouter(cascade, completer, cfg.OpenAIChatModel, cfg.JudgeTimeout)
	if cfg.IntentClassifier {
		router = router.WithClassifier(cfg.OpenAIJudgeModel)
	}

	return &App{
		Config:  cfg,
		Metrics: httpMetrics,

		Router:    router,
		Answers:   cascade,
		Knowledge: usecase.NewKnowledgeUseCase(embedder, knowledgeStore),
		Cache:     cacheGateway,
		Sessions:  usecase.NewSessionUseCase(transcriptRepo),
		Dashboard: usecase.NewDashboardUseCase(adminRepo, adminRepo, usageRepo),
		Admin:     usecase.NewAdminUseCase(adminRepo, adminRepo, adminRepo),

		closeFn: func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := pool.Stop(stopCtx); err != nil {
				slog.Warn("background_pool_stop", "error", err)
			}
			if queue != nil {
				queue.Close()
			}
			_ = cacheStore.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// Worker holds the transcript consumer.
type Worker struct {
	Config  config.Config
	Metrics *metrics.WorkerMetrics
	Queue   *nats.Queue
	Writer  *usecase.TranscriptWriter

	closeFn func()
}

func NewWorker(ctx context.Context, cfg config.Config) (*Worker, error) {
	if cfg.NATSURL == "" {
		return nil, fmt.Errorf("worker requires NATS_URL")
	}
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.AutoMigrate {
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}
	workerMetrics := metrics.NewWorkerMetrics("worker")
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		Name:               "peptide-worker",
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig().WithObserver(workerMetrics)),
		OnReject:           func(error) { workerMetrics.RejectTranscript() },
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	return &Worker{
		Config:  cfg,
		Metrics: workerMetrics,
		Queue:   queue,
		Writer:  usecase.NewTranscriptWriter(postgres.NewTranscriptRepository(db)),
		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

// HandleTranscript writes one event and records worker metrics for it.
func (w *Worker) HandleTranscript(ctx context.Context, event domain.TranscriptEvent) error {
	if !event.CreatedAt.IsZero() {
		w.Metrics.ObserveQueueLag(time.Since(event.CreatedAt))
	}
	roles := make([]string, 0, len(event.Messages))
	for _, msg := range event.Messages {
		roles = append(roles, string(msg.Role))
	}
	w.Metrics.StartTranscript()
	started := time.Now()
	err := w.Writer.PublishTranscript(ctx, event)
	w.Metrics.FinishTranscript(roles, time.Since(started), err)
	return err
}

func (w *Worker) MetricsHandler() http.Handler {
	return w.Metrics.Handler()
}

func (w *Worker) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

type seedTarget interface {
	ports.AllowListRepository
	ports.RestrictionRepository
}

// applySeed fills the allow-list and restriction tables from the seed file,
// each only when it is still empty.
func applySeed(ctx context.Context, path string, repo seedTarget) error {
	seed, err := config.LoadSeed(path)
	if err != nil {
		return err
	}
	if len(seed.AllowedURLs) > 0 {
		existing, err := repo.ListAllowedURLs(ctx)
		if err != nil {
			return fmt.Errorf("seed allowed urls: %w", err)
		}
		if len(existing) == 0 {
			for _, u := range seed.AllowedURLs {
				item := &domain.AllowedURL{URL: u.URL, Description: u.Description}
				if err := repo.CreateAllowedURL(ctx, item); err != nil {
					return fmt.Errorf("seed allowed url %q: %w", u.URL, err)
				}
			}
			slog.Info("seed_applied", "table", "allowed_urls", "rows", len(seed.AllowedURLs))
		}
	}
	if len(seed.ChatRestrictions) > 0 {
		existing, err := repo.ListRestrictions(ctx)
		if err != nil {
			return fmt.Errorf("seed chat restrictions: %w", err)
		}
		if len(existing) == 0 {
			for _, text := range seed.ChatRestrictions {
				if err := repo.CreateRestriction(ctx, &domain.ChatRestriction{RestrictionText: text}); err != nil {
					return fmt.Errorf("seed chat restriction: %w", err)
				}
			}
			slog.Info("seed_applied", "table", "chat_restrictions", "rows", len(seed.ChatRestrictions))
		}
	}
	return nil
}
