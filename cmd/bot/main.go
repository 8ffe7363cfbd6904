// Package main is the entry point for the affiliate bot runtime.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"telegram-affiliate-bot/internal/config"
	"telegram-affiliate-bot/internal/pkg/db"
	"telegram-affiliate-bot/internal/repository"
	"telegram-affiliate-bot/internal/router"
	"telegram-affiliate-bot/internal/scheduler"
	"telegram-affiliate-bot/internal/server"
	"telegram-affiliate-bot/internal/service"
	"telegram-affiliate-bot/internal/telegram"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log.Info().Msg("Configuration loaded successfully")

	loc, err := time.LoadLocation(cfg.Telegram.Timezone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", cfg.Telegram.Timezone).Msg("Falling back to UTC")
		loc = time.UTC
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := db.Migrate(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	tenantRepo := repository.NewTenantRepository(dbPool.Pool)
	userRepo := repository.NewUserRepository(dbPool.Pool)
	actionRepo := repository.NewActionRepository(dbPool.Pool)
	sessionRepo := repository.NewSessionRepository(dbPool.Pool)
	withdrawalRepo := repository.NewWithdrawalRepository(dbPool.Pool)
	quotaRepo := repository.NewQuotaRepository(dbPool.Pool, loc)
	featureRepo := repository.NewFeatureRepository(dbPool.Pool)
	adminRepo := repository.NewAdminRepository(dbPool.Pool)

	// Initialize platform client and services
	client := telegram.NewClient(cfg.Telegram.MaxTextLen, cfg.Telegram.MaxCaptionLen)

	ledgerService := service.NewLedgerService(
		userRepo,
		withdrawalRepo,
		client,
		decimal.NewFromFloat(cfg.Affiliate.DefaultCreditAmount),
		decimal.NewFromFloat(cfg.Affiliate.DefaultMinWithdraw),
		loc,
	)
	guardService := service.NewGuardService(quotaRepo, time.Duration(cfg.Quota.CooldownSeconds)*time.Second)
	featureService := service.NewFeatureService(featureRepo, loc, nil)
	broadcastService := service.NewBroadcastService(userRepo, client, cfg.Broadcast.BatchSize)

	// Initialize router
	rt := router.New(router.Deps{
		Tenants:   tenantRepo,
		Actions:   actionRepo,
		Sessions:  sessionRepo,
		Admins:    adminRepo,
		Users:     userRepo,
		Ledger:    ledgerService,
		Guard:     guardService,
		Features:  featureService,
		Broadcast: broadcastService,
		Client:    client,
		Location:  loc,
	})

	// Initialize the deferred-action scheduler. Kafka gives durable
	// delivery; the timer mode trades durability for zero dependencies.
	var kafkaSched *scheduler.KafkaScheduler
	switch cfg.Scheduler.Mode {
	case "kafka":
		kafkaSched = scheduler.NewKafkaScheduler(&cfg.Scheduler, rt)
		kafkaSched.Start()
		rt.SetScheduler(kafkaSched)
	default:
		rt.SetScheduler(scheduler.NewTimerScheduler(rt))
		log.Info().Msg("Using in-process timer scheduler")
	}

	// Initialize HTTP server
	srv := server.New(&cfg.Server, dbPool, tenantRepo, rt, broadcastService)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Run(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	if kafkaSched != nil {
		if err := kafkaSched.Stop(); err != nil {
			log.Error().Err(err).Msg("Scheduler shutdown failed")
		}
	}

	log.Info().Msg("Stopped gracefully")
}
