// Command worker runs the inbound message pipeline: it claims jobs from the
// Redis queue, drives them through the admission guards and the reply flow,
// and serves the ops HTTP surface (health, readiness, metrics).
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/convoflow/go-message-pipeline/internal/config"
	"github.com/convoflow/go-message-pipeline/internal/events"
	"github.com/convoflow/go-message-pipeline/internal/faststore"
	"github.com/convoflow/go-message-pipeline/internal/guard"
	httpapi "github.com/convoflow/go-message-pipeline/internal/http"
	"github.com/convoflow/go-message-pipeline/internal/observability"
	"github.com/convoflow/go-message-pipeline/internal/pipeline"
	"github.com/convoflow/go-message-pipeline/internal/provider"
	"github.com/convoflow/go-message-pipeline/internal/queue"
	"github.com/convoflow/go-message-pipeline/internal/repo"
	"github.com/convoflow/go-message-pipeline/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.Setup(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(shCtx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	redisClient := faststore.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer redisClient.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable")
	}
	cancel()
	store := faststore.NewRedis(redisClient)

	emitter := events.NewLog(log.Logger)

	orch := &pipeline.Orchestrator{
		DB:          db,
		Idempotency: guard.NewIdempotencyGuard(store, cfg.Limits.IdempotencyTTL),
		RateLimit: &guard.RateLimiter{
			Store:              store,
			ConversationLimit:  cfg.Limits.ConversationLimit,
			ConversationWindow: cfg.Limits.ConversationWindow,
			SenderLimit:        cfg.Limits.SenderLimit,
			SenderWindow:       cfg.Limits.SenderWindow,
		},
		Quota:     guard.NewQuotaGate(db),
		Generator: provider.NewHTTPGenerator(cfg.Provider.GeneratorURL, cfg.Provider.RequestTimeout),
		Deliverer: provider.NewHTTPDeliverer(cfg.Provider.DeliveryURL, cfg.Provider.RequestTimeout,
			cfg.Provider.SendRatePerSec, cfg.Provider.SendBurst),
		Emitter:         emitter,
		HistoryMessages: cfg.Provider.HistoryMessages,
	}

	runtime := queue.NewRedisRuntime(redisClient, orch.Handle, emitter, queue.Options{
		Workers:       cfg.Queue.Workers,
		MaxAttempts:   cfg.Queue.MaxAttempts,
		RetryBackoff:  cfg.Queue.RetryBackoff,
		JobTTL:        cfg.Queue.JobTTL,
		SweepInterval: cfg.Queue.SweepInterval,
		SweepMaxAge:   cfg.Queue.SweepMaxAge,
	})
	runtime.Start()
	defer runtime.Stop()

	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, store, cfg)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("ops server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("ops server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Warn().Err(err).Msg("ops server shutdown failed")
	}
}
