package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/leaseos/leaseline/internal/audit"
	"github.com/leaseos/leaseline/internal/booking"
	"github.com/leaseos/leaseline/internal/circuitbreaker"
	"github.com/leaseos/leaseline/internal/config"
	"github.com/leaseos/leaseline/internal/connector"
	"github.com/leaseos/leaseline/internal/domain"
	"github.com/leaseos/leaseline/internal/httpserver"
	"github.com/leaseos/leaseline/internal/notify"
	"github.com/leaseos/leaseline/internal/platform"
	"github.com/leaseos/leaseline/internal/queue"
	"github.com/leaseos/leaseline/internal/snapshot"
	"github.com/leaseos/leaseline/internal/telemetry"
	"github.com/leaseos/leaseline/internal/worker"
)

const serviceVersion = "dev"

// circuitFailureThreshold and circuitCooldown govern every per-platform
// circuit breaker the RPA adapters share.
const (
	circuitFailureThreshold = 5
	circuitCooldown         = 2 * time.Minute
	rpaMaxRetries           = 3
)

// resolveCredentialRef resolves an "env:VAR" reference against the process
// environment. "secret:" references are rejected: no secrets-manager client
// is wired into this build.
func resolveCredentialRef(ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, "env:"):
		name := strings.TrimPrefix(ref, "env:")
		value := os.Getenv(name)
		if value == "" {
			return "", fmt.Errorf("environment variable %s is not set", name)
		}
		return value, nil
	case strings.HasPrefix(ref, "secret:"):
		return "", fmt.Errorf("secret: references are not supported by this build")
	default:
		return "", fmt.Errorf("unrecognized credential reference %q", ref)
	}
}

// buildConnectorRegistry wires one RPAAdapter per supported platform, all
// sharing a pacer and a keyed circuit breaker registry.
func buildConnectorRegistry(logger *slog.Logger) *connector.Registry {
	registry := connector.NewRegistry()
	pacer := connector.NewPacer()
	breakers := circuitbreaker.NewRegistry(circuitFailureThreshold, circuitCooldown, func(key string, from, to gobreaker.State) {
		logger.Warn("circuit breaker state change", "key", key, "from", from, "to", to)
	})
	runner := connector.NewMockRunner(logger)
	sessions := connector.NoopSessionManager{}

	for _, p := range domain.AllPlatforms {
		adapter := connector.NewRPAAdapter(p, runner, pacer, breakers, sessions, resolveCredentialRef, rpaMaxRetries)
		registry.Register(adapter)
	}
	return registry
}

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the appropriate mode (api or worker).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.RequireRealRuntimeInProduction(); err != nil {
		return err
	}

	logger.Info("starting leaseline",
		"mode", cfg.Mode,
		"listen", cfg.ListenAddr(),
	)

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, "leaseline", serviceVersion)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	pool, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	metricsReg := telemetry.NewRegistry(telemetry.All()...)

	auditWriter := audit.NewWriter(pool, logger)
	snapshotAgg := snapshot.NewAggregator(0)
	auditWriter.Attach(snapshotAgg)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, pool, metricsReg, auditWriter, snapshotAgg)
	case "worker":
		return runWorker(ctx, cfg, logger, pool, rdb, auditWriter)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, pool *pgxpool.Pool, metricsReg *prometheus.Registry, auditWriter *audit.Writer, snapshotAgg *snapshot.Aggregator) error {
	bookingService := booking.NewService(pool, auditWriter)
	router := httpserver.NewRouter(bookingService, snapshotAgg, metricsReg, cfg.CORSAllowedOrigins, cfg.MetricsPath)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, pool *pgxpool.Pool, rdb *redis.Client, auditWriter *audit.Writer) error {
	logger.Info("worker started", "instanceId", cfg.WorkerInstanceID)

	dedup := queue.NewDeduplicator(rdb, logger)
	ingestor := queue.NewIngestor(pool, dedup, auditWriter)

	registry := buildConnectorRegistry(logger)
	notifier := notify.New(cfg.SlackBotToken, cfg.SlackOpsChannel, logger)
	if !notifier.IsEnabled() {
		logger.Info("slack escalation notifications disabled (SLACK_BOT_TOKEN not set)")
	}

	loop := worker.New(pool, registry, ingestor, auditWriter, notifier, logger, worker.Config{
		PollInterval:      time.Duration(cfg.WorkerPollIntervalMs) * time.Millisecond,
		BatchSize:         cfg.WorkerQueueBatchSize,
		Concurrency:       cfg.WorkerConcurrency,
		ClaimTTL:          time.Duration(cfg.WorkerClaimTTLMs) * time.Millisecond,
		WorkerID:          cfg.WorkerInstanceID,
		RunOnce:           cfg.WorkerRunOnce,
		AllowLeadNames:    cfg.AutoreplyAllowLeadNames,
		MaxMessageAge:     time.Duration(cfg.AutoreplyMaxMessageAgeMinutes) * time.Minute,
		SlotOptionLimit:   cfg.AutoreplySlotOptionLimit,
		AI:                nil,
		AIEnabled:         cfg.AIEnabled(),
	})

	return loop.Run(ctx)
}
