// Command connector runs the Census population projections sync as a
// long-lived service: one sync per interval, with health, readiness and
// Prometheus metrics endpoints.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/censtats/popproj-connector/pkg/census"
	"github.com/censtats/popproj-connector/pkg/connector"
	"github.com/censtats/popproj-connector/pkg/logging"
	"github.com/censtats/popproj-connector/pkg/sink"
	"github.com/censtats/popproj-connector/pkg/state"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// config is populated from the environment.
type config struct {
	RedisURL     string        `env:"REDIS_URL" envDefault:"localhost:6379"`
	CensusAPIKey string        `env:"CENSUS_API_KEY"`
	SQLitePath   string        `env:"SQLITE_PATH" envDefault:"popproj.db"`
	Port         string        `env:"PORT" envDefault:"8080"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty    bool          `env:"LOG_PRETTY" envDefault:"false"`
	UserAgent    string        `env:"USER_AGENT" envDefault:"popproj-connector/0.1.0"`
	DailyQuota   int           `env:"DAILY_QUOTA" envDefault:"500"`
	ApplyFilters bool          `env:"APPLY_FILTERS" envDefault:"false"`

	// SyncInterval of 0 runs a single sync and exits.
	SyncInterval time.Duration `env:"SYNC_INTERVAL" envDefault:"0"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "connector: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})

	if cfg.CensusAPIKey == "" {
		return fmt.Errorf("CENSUS_API_KEY is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis for response cache, quota counters and the sync cursor.
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to redis at %s: %w", cfg.RedisURL, err)
	}
	logger.Info().Str("addr", cfg.RedisURL).Msg("Connected to Redis")

	clientCfg := census.DefaultConfig(redisClient, cfg.CensusAPIKey)
	clientCfg.UserAgent = cfg.UserAgent
	clientCfg.DailyQuota = cfg.DailyQuota
	client, err := census.New(clientCfg)
	if err != nil {
		return fmt.Errorf("create census client: %w", err)
	}
	defer client.Close()

	dest, err := sink.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open sqlite sink at %s: %w", cfg.SQLitePath, err)
	}
	defer dest.Close()
	logger.Info().Str("path", cfg.SQLitePath).Msg("Opened SQLite destination")

	conn, err := connector.New(connector.Config{
		Client:       client,
		Sink:         dest,
		States:       state.NewRedisStore(redisClient, logging.NewLogger("state")),
		ApplyFilters: cfg.ApplyFilters,
	})
	if err != nil {
		return fmt.Errorf("create connector: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(redisClient))

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("Starting metrics server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if cfg.SyncInterval <= 0 {
		return runOnce(ctx, conn, logger)
	}
	return runLoop(ctx, conn, cfg.SyncInterval, logger)
}

// runOnce executes a single sync and exits.
func runOnce(ctx context.Context, conn *connector.Connector, logger zerolog.Logger) error {
	summary, err := conn.Run(ctx)
	if err != nil {
		return fmt.Errorf("sync run: %w", err)
	}
	logSummary(logger, summary)
	return nil
}

// runLoop syncs immediately, then on every interval tick until the context
// is cancelled.
func runLoop(ctx context.Context, conn *connector.Connector, interval time.Duration, logger zerolog.Logger) error {
	logger.Info().Dur("interval", interval).Msg("Starting sync loop")

	if err := runOnce(ctx, conn, logger); err != nil {
		logger.Error().Err(err).Msg("Sync run failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Shutting down sync loop")
			return nil
		case <-ticker.C:
			if err := runOnce(ctx, conn, logger); err != nil {
				logger.Error().Err(err).Msg("Sync run failed")
			}
		}
	}
}

func logSummary(logger zerolog.Logger, summary *connector.RunSummary) {
	logger.Info().
		Int("records", summary.RecordsEmitted).
		Int("failed_param_sets", summary.FailedParamSets).
		Dur("duration", summary.Duration).
		Msg("Sync run complete")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports ready once Redis answers a ping.
func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			http.Error(w, fmt.Sprintf("redis unavailable: %v", err), http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}
