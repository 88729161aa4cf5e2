package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sokolovdp/finmars-core-sub005/internal/api"
	custommiddleware "github.com/sokolovdp/finmars-core-sub005/internal/api/middleware"
	"github.com/sokolovdp/finmars-core-sub005/internal/cache"
	"github.com/sokolovdp/finmars-core-sub005/internal/config"
	"github.com/sokolovdp/finmars-core-sub005/internal/database"
	"github.com/sokolovdp/finmars-core-sub005/internal/ledger"
	"github.com/sokolovdp/finmars-core-sub005/internal/performance"
	"github.com/sokolovdp/finmars-core-sub005/internal/register"
	"github.com/sokolovdp/finmars-core-sub005/internal/report"
	"github.com/sokolovdp/finmars-core-sub005/internal/repository"
	"github.com/sokolovdp/finmars-core-sub005/internal/scheduler"
	"github.com/sokolovdp/finmars-core-sub005/internal/task"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Open database connection and apply migrations
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	log.Info().Str("path", cfg.Database.Path).Msg("connected to database")

	// Create repositories
	transactionRepo := repository.NewTransactionRepository(db)
	referenceRepo := repository.NewReferenceRepository(db)
	priceRepo := repository.NewPriceHistoryRepository(db)
	rateRepo := repository.NewCurrencyHistoryRepository(db)
	registerRepo := repository.NewRegisterRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	reportCache := cache.New(db, cfg.Cache.TTL)
	rateRepo.SetInvalidator(reportCache)

	// Create services
	reportService := report.NewService(log, transactionRepo, referenceRepo, priceRepo, rateRepo, reportCache)
	ledgerService := ledger.NewService(log, transactionRepo, priceRepo, rateRepo)
	pipeline := register.NewPipeline(log, registerRepo, transactionRepo, referenceRepo, priceRepo, rateRepo, reportService, taskRepo)
	taskService := task.NewService(log, taskRepo, pipeline)
	performanceService := performance.NewService(log, registerRepo, transactionRepo, referenceRepo, rateRepo, reportService)

	var apiKeys custommiddleware.KeyResolver
	if cfg.Auth.FernetKey != "" {
		apiKeyRepo, err := repository.NewAPIKeyRepository(db, cfg.Auth.FernetKey)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize api keys")
		}
		apiKeys = apiKeyRepo
	} else {
		log.Warn().Msg("api key auth disabled; tenant taken from X-Master-User header")
	}

	// Create router
	router := api.NewRouter(log, api.Services{
		DB:          db,
		Reports:     reportService,
		Performance: performanceService,
		Ledger:      ledgerService,
		Tasks:       taskService,
		Registers:   registerRepo,
		Reference:   referenceRepo,
		APIKeys:     apiKeys,
	}, cfg)

	// Nightly register pipeline
	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(log, cfg.Scheduler.Spec, pipeline, registerRepo)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize scheduler")
		}
		sched.Start()
		defer sched.Stop()
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}
