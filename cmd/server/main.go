package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zombar/textdetector/internal/api"
	"github.com/zombar/textdetector/internal/artifact"
	"github.com/zombar/textdetector/internal/config"
	"github.com/zombar/textdetector/internal/database"
	"github.com/zombar/textdetector/internal/inference"
	"github.com/zombar/textdetector/internal/metrics"
	"github.com/zombar/textdetector/internal/ollama"
	"github.com/zombar/textdetector/internal/queue"
	"github.com/zombar/textdetector/internal/remarks"
	"github.com/zombar/textdetector/internal/search"
	"github.com/zombar/textdetector/internal/tracing"
	"github.com/zombar/textdetector/pkg/logging"
)

const serviceName = "textdetector"

func main() {
	// Setup structured logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("textdetector service initializing", "version", "1.0.0")

	tp, err := tracing.InitTracer(serviceName)
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
		logger.Info("tracing initialized successfully")
	}

	var (
		port        = flag.String("port", config.GetEnv("PORT", "8080"), "Server port (env: PORT)")
		artifactDir = flag.String("artifacts", config.GetEnv("ARTIFACT_DIR", "artifacts"), "Directory holding vectorizer.json and classifier.json (env: ARTIFACT_DIR)")
		watch       = flag.Bool("watch-artifacts", config.GetEnvBool("WATCH_ARTIFACTS", true), "Reload the model when a new artifact pair is published (env: WATCH_ARTIFACTS)")
		dbPath      = flag.String("db", config.GetEnv("DB_PATH", "textdetector.db"), "SQLite path or Postgres DSN for prediction history, empty to disable (env: DB_PATH)")
		esURL       = flag.String("es-url", config.GetEnv("ELASTICSEARCH_URL", ""), "Elasticsearch URL for prediction search, empty to disable (env: ELASTICSEARCH_URL)")
		esIndex     = flag.String("es-index", config.GetEnv("ELASTICSEARCH_INDEX", search.DefaultIndex), "Elasticsearch index for predictions (env: ELASTICSEARCH_INDEX)")
		useQueue    = flag.Bool("use-queue", config.GetEnvBool("USE_QUEUE", false), "Enable asynchronous batch classification (env: USE_QUEUE)")
		redisAddr   = flag.String("redis-addr", config.GetEnv("REDIS_ADDR", "localhost:6379"), "Redis address for the batch queue (env: REDIS_ADDR)")
		workers     = flag.Int("worker-concurrency", config.GetEnvInt("WORKER_CONCURRENCY", 4), "Batch tasks processed at once (env: WORKER_CONCURRENCY)")
		useOllama   = flag.Bool("use-ollama", config.GetEnvBool("USE_OLLAMA", false), "Ask Ollama for a second opinion on each prediction (env: USE_OLLAMA)")
		ollamaURL   = flag.String("ollama-url", config.GetEnv("OLLAMA_URL", ollama.DefaultURL), "Ollama API URL (env: OLLAMA_URL)")
		ollamaModel = flag.String("ollama-model", config.GetEnv("OLLAMA_MODEL", ollama.DefaultModel), "Ollama model to use (env: OLLAMA_MODEL)")
	)
	flag.Parse()

	// The service cannot answer anything without a model
	a, err := artifact.Load(*artifactDir)
	if err != nil {
		logger.Error("failed to load model artifact", "error", err, "artifact_dir", *artifactDir)
		os.Exit(1)
	}
	logger.Info("model artifact loaded",
		"artifact_dir", *artifactDir,
		"vocabulary", a.Vectorizer.Size(),
		"features", a.Dimension(),
	)

	m := metrics.New(serviceName, prometheus.DefaultRegisterer)
	m.SetArtifact(a.Vectorizer.Size(), a.Dimension())

	runner := inference.NewRunner(a, inference.WithMetrics(m), inference.WithLogger(logger))
	catalog := remarks.New(nil)

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if *watch {
		watcher, err := artifact.NewWatcher(*artifactDir, runner.Swap, logger)
		if err != nil {
			logger.Warn("failed to watch artifact directory, model reload disabled", "error", err)
		} else {
			go watcher.Run(watchCtx)
			logger.Info("watching artifact directory for new models", "artifact_dir", *artifactDir)
		}
	}

	cfg := api.Config{
		Runner:   runner,
		Remarks:  catalog,
		Gatherer: prometheus.DefaultGatherer,
		Logger:   logger,
	}

	var (
		db    *database.DB
		store queue.Store
	)
	if *dbPath != "" {
		db, err = database.New(*dbPath)
		if err != nil {
			logger.Error("failed to initialize database", "error", err, "driver", database.DriverFor(*dbPath))
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		if err := metrics.RegisterDBStats(serviceName, prometheus.DefaultRegisterer, db.Conn()); err != nil {
			logger.Warn("failed to register database metrics", "error", err)
		}
		cfg.Store = db
		store = db
		logger.Info("prediction history enabled", "driver", db.Driver())
	} else {
		logger.Info("prediction history disabled")
	}

	if *esURL != "" {
		if db == nil {
			logger.Error("prediction search requires a database")
			os.Exit(1)
		}
		idx, err := search.New(search.Config{Addresses: []string{*esURL}, Index: *esIndex})
		if err != nil {
			logger.Error("failed to initialize search index", "error", err)
			os.Exit(1)
		}
		ensureCtx, cancelEnsure := context.WithTimeout(context.Background(), 10*time.Second)
		if err := idx.EnsureIndex(ensureCtx); err != nil {
			logger.Warn("failed to ensure search index, continuing with dynamic mapping", "error", err, "index", idx.Name())
		}
		cancelEnsure()

		indexed := search.NewIndexedStore(db, idx, logger)
		cfg.Store = indexed
		cfg.Search = idx
		store = indexed
		logger.Info("prediction search enabled", "elasticsearch_url", *esURL, "index", idx.Name())
	}

	var worker *queue.Worker
	if *useQueue {
		if db == nil {
			logger.Error("batch queue requires a database")
			os.Exit(1)
		}
		queueClient := queue.NewClient(queue.ClientConfig{RedisAddr: *redisAddr})
		defer queueClient.Close()
		cfg.Queue = queueClient

		worker = queue.NewWorker(queue.WorkerConfig{
			RedisAddr:   *redisAddr,
			Concurrency: *workers,
		}, runner, store, catalog, m)
		go func() {
			if err := worker.Start(); err != nil {
				logger.Error("worker stopped", "error", err)
			}
		}()
		logger.Info("batch queue enabled", "redis_addr", *redisAddr, "concurrency", *workers)
	}

	if *useOllama {
		ollamaClient, err := ollama.New(*ollamaURL, *ollamaModel)
		if err != nil {
			logger.Warn("failed to initialize Ollama client, continuing without second opinions",
				"error", err,
				"ollama_url", *ollamaURL,
			)
		} else {
			cfg.Ollama = ollamaClient
			logger.Info("Ollama client initialized", "model", *ollamaModel, "url", *ollamaURL)
		}
	}

	// Wrap handler with middleware chain: tracing -> HTTP logging -> handlers
	handler := tracing.HTTPMiddleware(serviceName)(
		logging.HTTPLoggingMiddleware(logger, "/health", "/metrics")(api.NewHandler(cfg)),
	)

	srv := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("textdetector service starting",
			"port", *port,
			"queue_enabled", *useQueue,
			"ollama_enabled", cfg.Ollama != nil,
			"search_enabled", cfg.Search != nil,
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if worker != nil {
		worker.Shutdown()
	}

	logger.Info("server stopped")
}
