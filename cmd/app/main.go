// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"avatar-therapy-chat/internal/config"
	"avatar-therapy-chat/internal/domain/ports/adapter"
	aiAdapters "avatar-therapy-chat/internal/infra/adapters/ai"
	"avatar-therapy-chat/internal/infra/api"
	pg "avatar-therapy-chat/internal/infra/db/postgres"
	"avatar-therapy-chat/internal/infra/logging"
	"avatar-therapy-chat/internal/infra/metrics"
	red "avatar-therapy-chat/internal/infra/redis"
	"avatar-therapy-chat/internal/infra/sched"
	"avatar-therapy-chat/internal/infra/security"
	"avatar-therapy-chat/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (bypass billing, verbose logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled: sessions are not billed")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	sessionCache := red.NewSessionCache(redisClient, cfg.Redis.TTL)
	rateLimiter := red.NewRateLimiter(redisClient)
	locker := red.NewLocker(redisClient)

	// ---- Message envelope ----
	codec := security.NewEnvelope(cfg.Security.EncryptionKey)

	// ---- Repositories ----
	txManager := pg.NewTxManager(pool)
	sessionRepo := pg.NewSessionRepo(pool, sessionCache)
	ledgerRepo := pg.NewLedgerRepo(pool)
	messageRepo := pg.NewMessageRepo(pool, codec)
	avatarRepo := pg.NewAvatarRepoCacheDecorator(pg.NewAvatarRepo(pool), redisClient)

	// ---- AI adapters (OpenAI and/or Gemini, noop in dev without keys) ----
	byProvider := map[string]adapter.AIServiceAdapter{}
	defaultProvider := ""
	if cfg.AI.OpenAIKey != "" {
		oa, err := aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.DefaultModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai adapter")
		}
		byProvider["openai"] = oa
		defaultProvider = "openai"
		logger.Info().Str("model", cfg.AI.DefaultModel).Msg("AI adapter: OpenAI")
	}
	if cfg.AI.GeminiKey != "" {
		ga, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.DefaultModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini adapter")
		}
		byProvider["gemini"] = ga
		if defaultProvider == "" {
			defaultProvider = "gemini"
		}
		logger.Info().Msg("AI adapter: Gemini")
	}
	var ai adapter.AIServiceAdapter
	switch {
	case len(byProvider) > 0:
		ai = aiAdapters.NewMultiAIAdapter(defaultProvider, byProvider)
	case cfg.Runtime.Dev:
		ai = aiAdapters.NewNoopAIAdapter()
		logger.Warn().Msg("AI adapter: noop (dev mode, no provider keys)")
	default:
		logger.Fatal().Msg("no AI provider configured: set ai.openai_key or ai.gemini_key")
	}
	ai = aiAdapters.NewLimitedAI(ai, cfg.AI.ConcurrentLimit)

	// ---- Use cases ----
	sessionUC := usecase.NewSessionUseCase(sessionRepo, ledgerRepo, txManager, cfg.Session.CostPerSession, cfg.Runtime.Dev, logger)
	ledgerUC := usecase.NewLedgerUseCase(ledgerRepo, logger)
	pricingUC := usecase.NewPricingUseCase()
	chatUC := usecase.NewChatUseCase(sessionUC, pricingUC, messageRepo, avatarRepo, ai,
		rateLimiter, locker,
		usecase.ChatConfig{
			HistoryWindow: cfg.AI.HistoryWindow,
			RateLimit:     cfg.Session.RateLimit,
			RateWindow:    time.Duration(cfg.Session.RateWindowSec) * time.Second,
		},
		cfg.Runtime.Dev, logger)

	// ---- HTTP API ----
	auth := api.NewAuthManager(cfg.API.JWTSecret, 24*time.Hour)
	server := api.NewServer(cfg, chatUC, sessionUC, ledgerUC, pricingUC, auth, logger)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Background workers ----
	sweeper := sched.NewSessionSweeper(time.Minute, sessionRepo, logger)
	go func() { _ = sweeper.Run(ctx) }()
	retention := sched.NewRetentionWorker(12*time.Hour, cfg.Session.RetentionDays, messageRepo, logger)
	go func() { _ = retention.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}
	cancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := server.Shutdown(shutCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
