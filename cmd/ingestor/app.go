package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
	"golang.org/x/time/rate"

	"github.com/vidqa/ingestor/internal/chunker"
	"github.com/vidqa/ingestor/internal/config"
	"github.com/vidqa/ingestor/internal/embeddings"
	"github.com/vidqa/ingestor/internal/ingest"
	"github.com/vidqa/ingestor/internal/jobs"
	"github.com/vidqa/ingestor/internal/observability"
	"github.com/vidqa/ingestor/internal/transcript"
	"github.com/vidqa/ingestor/internal/vectorstore"
	"github.com/vidqa/ingestor/internal/workers"
	"github.com/vidqa/ingestor/pkg/transcribe"
	"github.com/vidqa/ingestor/pkg/youtube"
)

// App holds all worker dependencies and coordinates startup and shutdown.
type App struct {
	cfg     *config.Config
	db      *pgxpool.Pool
	server  *http.Server
	river   *river.Client[pgx.Tx]
	metrics *observability.MetricsServer
	ingest  *observability.IngestMetrics
}

const queueDepthInterval = 15 * time.Second

// NewApp builds and wires all components. It does not start the HTTP server
// or River; call Run to start and block until shutdown or failure.
func NewApp(cfg *config.Config, db *pgxpool.Pool) (*App, error) {
	var (
		metricsServer *observability.MetricsServer
		ingestMetrics *observability.IngestMetrics
		err           error
	)

	if cfg.MetricsEnabled {
		metricsServer, err = observability.NewMetricsServer()
		if err != nil {
			return nil, fmt.Errorf("create metrics server: %w", err)
		}

		ingestMetrics, err = observability.NewIngestMetrics(metricsServer.Provider.Meter("ingestor"))
		if err != nil {
			if err2 := metricsServer.Shutdown(context.Background()); err2 != nil {
				slog.Error("shutdown metrics server after metrics error", "error", err2)
			}

			return nil, fmt.Errorf("create ingest metrics: %w", err)
		}
	} else {
		slog.Warn("metrics not enabled (METRICS_ENABLED=false)")
	}

	coordinator, err := buildCoordinator(cfg, db, ingestMetrics)
	if err != nil {
		if err2 := metricsServer.Shutdown(context.Background()); err2 != nil {
			slog.Error("shutdown metrics server after coordinator error", "error", err2)
		}

		return nil, err
	}

	riverWorkers := river.NewWorkers()
	river.AddWorker(riverWorkers, workers.NewIngestVideoWorker(coordinator, cfg.IngestJobTimeout))

	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.IngestMaxConcurrent},
		},
		Workers:      riverWorkers,
		ErrorHandler: &jobs.ErrorHandler{},
		JobTimeout:   cfg.IngestJobTimeout,
		MaxAttempts:  cfg.IngestMaxAttempts,
	})
	if err != nil {
		if err2 := metricsServer.Shutdown(context.Background()); err2 != nil {
			slog.Error("shutdown metrics server after River client error", "error", err2)
		}

		return nil, fmt.Errorf("create River client: %w", err)
	}

	return &App{
		cfg:     cfg,
		db:      db,
		server:  newHTTPServer(cfg, db, metricsServer),
		river:   riverClient,
		metrics: metricsServer,
		ingest:  ingestMetrics,
	}, nil
}

// buildCoordinator assembles the whole pipeline: transcript sources, chunker,
// embedder, vector writer.
func buildCoordinator(cfg *config.Config, db *pgxpool.Pool, metrics *observability.IngestMetrics) (*ingest.Coordinator, error) {
	captionClient := youtube.NewClientWithOptions(youtube.ClientOptions{
		BaseURL:  cfg.YouTubeBaseURL,
		Language: cfg.TranscriptLanguage,
	})
	source := transcript.NewCachingSource(captionClient, cfg.TranscriptCacheSize, cfg.TranscriptCacheTTL)

	resolver, err := transcript.NewHTTPAudioResolver(transcript.HTTPAudioResolverOptions{
		BaseURL: cfg.AudioResolverURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create audio resolver: %w", err)
	}

	transcribeClient, err := transcribe.NewClient(transcribe.ClientOptions{
		BaseURL:  cfg.TranscribeAPIURL,
		APIKey:   cfg.TranscribeAPIKey,
		Language: cfg.TranscriptLanguage,
	})
	if err != nil {
		return nil, fmt.Errorf("create transcribe client: %w", err)
	}

	fallback, err := transcript.NewAudioTranscriber(resolver, transcribeClient, transcript.PollConfig{
		Initial:  cfg.TranscribePollInitial,
		Max:      cfg.TranscribePollMax,
		Deadline: cfg.TranscribePollDeadline,
	})
	if err != nil {
		return nil, fmt.Errorf("create audio transcriber: %w", err)
	}

	tokenizer, err := chunker.NewTiktokenTokenizer(chunker.DefaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("create tokenizer: %w", err)
	}

	chk, err := chunker.New(tokenizer, cfg.ChunkTargetTokens, cfg.ChunkOverlapTokens)
	if err != nil {
		return nil, fmt.Errorf("create chunker: %w", err)
	}

	embedder := embeddings.NewOpenAIClient(cfg.OpenAIAPIKey,
		embeddings.WithModel(cfg.EmbeddingModel),
		embeddings.WithDimensions(cfg.EmbeddingDimensions),
	)

	var limiter *rate.Limiter
	if cfg.EmbeddingRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.EmbeddingRateLimit), cfg.EmbeddingRateLimit)
	}

	opts := ingest.Options{
		Source:   source,
		Fallback: fallback,
		Chunker:  chk,
		Embedder: embedder,
		Writer:   vectorstore.NewRepository(db),
		Limiter:  limiter,
		Retry:    ingest.DefaultRetryPolicy(),
		Timeouts: ingest.StageTimeouts{
			Acquire:    cfg.AcquireTimeout,
			Transcribe: cfg.TranscribeTimeout,
			Embed:      cfg.EmbedTimeout,
			Write:      cfg.WriteTimeout,
		},
	}
	if metrics != nil {
		opts.Metrics = metrics
	}

	coordinator, err := ingest.NewCoordinator(opts)
	if err != nil {
		return nil, fmt.Errorf("create coordinator: %w", err)
	}

	return coordinator, nil
}

// newHTTPServer exposes health and, when metrics are enabled, the
// Prometheus scrape endpoint.
func newHTTPServer(cfg *config.Config, db *pgxpool.Pool, metrics *observability.MetricsServer) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)

			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if metrics != nil {
		mux.Handle("GET /metrics", metrics.Handler)
	}

	const (
		readTimeout  = 15 * time.Second
		writeTimeout = 15 * time.Second
		idleTimeout  = 60 * time.Second
	)

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// Run starts River and the HTTP server, then blocks until ctx is cancelled
// or a component fails. Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	riverCtx, cancelRiver := context.WithCancel(ctx)
	defer cancelRiver()

	if a.ingest != nil {
		go a.runQueueDepthPoller(riverCtx)
	}

	go func() {
		if err := a.river.Start(riverCtx); err != nil && !errors.Is(err, context.Canceled) {
			select {
			case runErr <- fmt.Errorf("river: %w", err):
			default:
			}
		}
	}()

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case runErr <- fmt.Errorf("server: %w", err):
			default:
			}
		}
	}()

	select {
	case err := <-runErr:
		cancelRiver()

		return err
	case <-ctx.Done():
		cancelRiver()

		return nil
	}
}

// runQueueDepthPoller periodically updates the waiting-jobs gauge.
func (a *App) runQueueDepthPoller(ctx context.Context) {
	ticker := time.NewTicker(queueDepthInterval)
	defer ticker.Stop()

	update := func() {
		var count int64

		err := a.db.QueryRow(ctx,
			`SELECT COUNT(*) FROM river_job WHERE queue = $1 AND state IN ($2, $3, $4)`,
			river.QueueDefault,
			rivertype.JobStateAvailable, rivertype.JobStateRetryable, rivertype.JobStateScheduled,
		).Scan(&count)
		if err != nil {
			slog.WarnContext(ctx, "queue depth poll failed", "error", err)

			return
		}

		a.ingest.SetQueueDepth(ctx, count)
	}

	update()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

// Shutdown stops the server and River in order. Call after Run returns.
func (a *App) Shutdown(ctx context.Context) (err error) {
	defer func() {
		metricsErr := a.metrics.Shutdown(ctx)
		if err == nil {
			err = metricsErr
		} else if metricsErr != nil {
			slog.Error("shutdown metrics server", "error", metricsErr)
		}
	}()

	if err = a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if stopErr := a.river.Stop(ctx); stopErr != nil {
			slog.Error("river stop during server shutdown", "error", stopErr)
		}

		return fmt.Errorf("server shutdown: %w", err)
	}

	if err = a.river.Stop(ctx); err != nil {
		return fmt.Errorf("river stop: %w", err)
	}

	return nil
}
