// cmd/pipeline-server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"nuance-pipeline/internal/coaching"
	"nuance-pipeline/internal/common/config"
	"nuance-pipeline/internal/common/database"
	"nuance-pipeline/internal/common/logger"
	"nuance-pipeline/internal/common/observability"
	"nuance-pipeline/internal/gateway"
	"nuance-pipeline/internal/orchestrator"
	"nuance-pipeline/internal/resilience"
	"nuance-pipeline/internal/router"
	"nuance-pipeline/internal/server"
	"nuance-pipeline/internal/stages/avoidance"
	"nuance-pipeline/internal/stages/complexity"
	"nuance-pipeline/internal/stages/confidence"
	"nuance-pipeline/internal/stages/extraction"
	"nuance-pipeline/internal/stages/scaffold"
	"nuance-pipeline/internal/store"
	"nuance-pipeline/internal/writeback"
	"nuance-pipeline/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting pipeline server...",
		zap.String("version", cfg.App.Version),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Prompt registry ---
	promptRegistry := registry.New()
	if cfg.Registry.OverlayPath != "" {
		if err := promptRegistry.LoadOverlay(cfg.Registry.OverlayPath); err != nil {
			zapLog.Fatal("prompt overlay load failed",
				zap.String("path", cfg.Registry.OverlayPath),
				zap.Error(err),
			)
		}
		zapLog.Info("Prompt overlay loaded", zap.String("path", cfg.Registry.OverlayPath))
	}

	// --- Stores ---
	captureStore := store.New(pg.DB, &storeLoggerAdapter{log})

	// --- Model provider behind the circuit breaker ---
	breakers := resilience.NewBreakerRegistry(cfg.Resilience.Breaker, &resilienceLoggerAdapter{log})
	httpProvider := gateway.NewHTTPProvider(
		gateway.LoadConfig(cfg.Provider),
		&gatewayLoggerAdapter{log},
		captureStore,
	)
	provider := resilience.NewGuardedProvider(httpProvider, breakers.Get("model-provider"))

	limiter := resilience.NewLimiter(redisClient.Client, cfg.Resilience.Limiter, &resilienceLoggerAdapter{log})

	// --- Pipeline stages ---
	extractionStage := extraction.New(provider, promptRegistry, &extractionLoggerAdapter{log})
	avoidanceStage := avoidance.New(provider, promptRegistry, &avoidanceLoggerAdapter{log})
	complexityStage := complexity.New(provider, promptRegistry, cfg.Pipeline.AtomicFastPathMinutes, &complexityLoggerAdapter{log})
	confidenceStage := confidence.New(provider, promptRegistry, cfg.Pipeline.HeuristicConfidenceGate, &confidenceLoggerAdapter{log})
	scaffoldStage := scaffold.New(provider, promptRegistry, &scaffoldLoggerAdapter{log})

	orch := orchestrator.New(
		extractionStage,
		avoidanceStage,
		complexityStage,
		confidenceStage,
		scaffoldStage,
		cfg.Pipeline,
		&orchestratorLoggerAdapter{log},
	)

	// --- Turn routing ---
	coachingSvc := coaching.New(provider, promptRegistry, &coachingLoggerAdapter{log})
	turnRouter := router.New(
		router.NewClassifier(provider, promptRegistry, &routerLoggerAdapter{log}),
		orch,
		coachingSvc,
		router.NewCommandHandler(coachingSvc, &routerLoggerAdapter{log}),
		&routerLoggerAdapter{log},
	)

	// --- Knowledge writeback ---
	wbStore := writeback.NewElasticsearchStore(
		esClient.Client,
		cfg.Database.Elasticsearch.KnowledgeIndex,
		&writebackLoggerAdapter{log},
	)
	wbService := writeback.NewService(wbStore, cfg.Writeback, &writebackLoggerAdapter{log})
	defer wbService.Close()

	// --- HTTP server ---
	srv := server.New(turnRouter, limiter, captureStore, wbService, &serverLoggerAdapter{log}).
		WithObserver(obs)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Mux(),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("API server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("API server failed", zap.Error(err))
		}
	}()

	// --- Metrics & pprof Server ---
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		zapLog.Info("Metrics server listening", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			zapLog.Error("Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("API server shutdown failed", zap.Error(err))
	}

	zapLog.Info("Pipeline server stopped gracefully")
}

// Logger adapters for packages that declare their own Logger interfaces

type gatewayLoggerAdapter struct {
	logger.Logger
}

func (a *gatewayLoggerAdapter) With(fields map[string]interface{}) gateway.Logger {
	return &gatewayLoggerAdapter{a.Logger.With(fields)}
}

type resilienceLoggerAdapter struct {
	logger.Logger
}

func (a *resilienceLoggerAdapter) With(fields map[string]interface{}) resilience.Logger {
	return &resilienceLoggerAdapter{a.Logger.With(fields)}
}

type extractionLoggerAdapter struct {
	logger.Logger
}

func (a *extractionLoggerAdapter) With(fields map[string]interface{}) extraction.Logger {
	return &extractionLoggerAdapter{a.Logger.With(fields)}
}

type avoidanceLoggerAdapter struct {
	logger.Logger
}

func (a *avoidanceLoggerAdapter) With(fields map[string]interface{}) avoidance.Logger {
	return &avoidanceLoggerAdapter{a.Logger.With(fields)}
}

type complexityLoggerAdapter struct {
	logger.Logger
}

func (a *complexityLoggerAdapter) With(fields map[string]interface{}) complexity.Logger {
	return &complexityLoggerAdapter{a.Logger.With(fields)}
}

type confidenceLoggerAdapter struct {
	logger.Logger
}

func (a *confidenceLoggerAdapter) With(fields map[string]interface{}) confidence.Logger {
	return &confidenceLoggerAdapter{a.Logger.With(fields)}
}

type scaffoldLoggerAdapter struct {
	logger.Logger
}

func (a *scaffoldLoggerAdapter) With(fields map[string]interface{}) scaffold.Logger {
	return &scaffoldLoggerAdapter{a.Logger.With(fields)}
}

type orchestratorLoggerAdapter struct {
	logger.Logger
}

func (a *orchestratorLoggerAdapter) With(fields map[string]interface{}) orchestrator.Logger {
	return &orchestratorLoggerAdapter{a.Logger.With(fields)}
}

type coachingLoggerAdapter struct {
	logger.Logger
}

func (a *coachingLoggerAdapter) With(fields map[string]interface{}) coaching.Logger {
	return &coachingLoggerAdapter{a.Logger.With(fields)}
}

type routerLoggerAdapter struct {
	logger.Logger
}

func (a *routerLoggerAdapter) With(fields map[string]interface{}) router.Logger {
	return &routerLoggerAdapter{a.Logger.With(fields)}
}

type writebackLoggerAdapter struct {
	logger.Logger
}

func (a *writebackLoggerAdapter) With(fields map[string]interface{}) writeback.Logger {
	return &writebackLoggerAdapter{a.Logger.With(fields)}
}

type storeLoggerAdapter struct {
	logger.Logger
}

func (a *storeLoggerAdapter) With(fields map[string]interface{}) store.Logger {
	return &storeLoggerAdapter{a.Logger.With(fields)}
}

type serverLoggerAdapter struct {
	logger.Logger
}

func (a *serverLoggerAdapter) With(fields map[string]interface{}) server.Logger {
	return &serverLoggerAdapter{a.Logger.With(fields)}
}
