// Package main is the entry point for the panel wallet service.
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
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"panel-wallet/internal/api"
	"panel-wallet/internal/bot"
	"panel-wallet/internal/catalog"
	"panel-wallet/internal/config"
	"panel-wallet/internal/handler"
	"panel-wallet/internal/notify"
	"panel-wallet/internal/pkg/db"
	"panel-wallet/internal/pkg/lock"
	"panel-wallet/internal/repository"
	"panel-wallet/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := db.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Plan catalog, cached in Redis when configured
	planRepo := repository.NewPlanRepository(dbPool.Pool)
	var prices service.PriceCatalog = planRepo
	catalogAdmin := catalog.NewAdmin(planRepo, nil)
	if cfg.Redis.Addr != "" {
		rdb, err := catalog.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()

		cache := catalog.NewCache(rdb, planRepo, cfg.Redis.PriceTTL)
		prices = cache
		catalogAdmin = catalog.NewAdmin(planRepo, cache)
	}

	// Initialize services
	txLogger := service.NewTransactionLogger(cfg.Ledger.Currency)
	pricingService := service.NewPricingService(dbPool.Pool, prices)
	chargeService := service.NewChargeService(dbPool.Pool, pricingService, txLogger)
	commissionService := service.NewCommissionService(txLogger)
	receiptService := service.NewReceiptService(dbPool.Pool, txLogger, commissionService, cfg.Ledger.MinDeposit)
	adjustService := service.NewAdjustService(dbPool.Pool, txLogger, receiptService)
	historyService := service.NewHistoryService(dbPool.Pool)

	// Notification fan-out
	var dispatchers notify.Multi

	var telegramBot *bot.Bot
	if cfg.Bot.Enabled {
		teleBot, err := bot.NewTelebot(&cfg.Bot)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create bot")
		}
		dispatchers = append(dispatchers, notify.NewTelegram(teleBot, repository.NewAccountRepository(dbPool.Pool), cfg.Admin.IDs))

		walletHandler := handler.NewWalletHandler(receiptService, adjustService, historyService, &dispatchers, lock.NewKeyLock())
		telegramBot = bot.New(teleBot, cfg, walletHandler)
	}

	if cfg.Kafka.Enabled {
		producer, err := notify.NewSyncProducer(cfg.Kafka.Brokers)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Kafka producer")
		}
		kafka := notify.NewKafka(producer, cfg.Kafka.Topic)
		defer kafka.Close()
		dispatchers = append(dispatchers, kafka)
	}

	// HTTP API
	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.NewHandler(api.Deps{
		Charges:    chargeService,
		Quotes:     pricingService,
		Receipts:   receiptService,
		Adjust:     adjustService,
		Ledger:     historyService,
		Plans:      catalogAdmin,
		Dispatcher: &dispatchers,
	}), func(c *gin.Context) error {
		return dbPool.HealthCheck(c.Request.Context())
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP API is listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	if telegramBot != nil {
		go func() {
			log.Info().Msg("Bot is starting...")
			telegramBot.Start()
		}()
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	if telegramBot != nil {
		telegramBot.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Service stopped gracefully")
}
