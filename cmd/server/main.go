package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cruisesync-service/internal/infrastructure/archive"
	"cruisesync-service/internal/infrastructure/config"
	"cruisesync-service/internal/infrastructure/persistence"
	storeRepo "cruisesync-service/internal/interface/repository"
	"cruisesync-service/internal/usecase"
	"cruisesync-service/pkg/logger"
	"cruisesync-service/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration first so the logger honors LOG_LEVEL
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger(cfg.LogLevel)
	log.Info("Starting Cruisesync Service", "version", cfg.AppVersion)

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up PostgreSQL connection
	log.Info("Connecting to PostgreSQL")
	gormDB, err := persistence.NewPostgresDB(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", "error", err)
	}

	// Set up MongoDB connection for the raw document audit store
	log.Info("Connecting to MongoDB")
	mongoClient, auditDB, err := persistence.NewMongoClient(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB", "error", err)
	}

	// Set up Redis connection for the sync progress ledger
	log.Info("Connecting to Redis")
	redisClient, err := persistence.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal("Failed to connect to Redis", "error", err)
	}

	// Set up the archive session pool. No connection is dialed until the
	// first sync tick needs one.
	pool := archive.NewPool(
		archive.Config{
			Host:            cfg.ArchiveHost,
			Port:            cfg.ArchivePort,
			User:            cfg.ArchiveUser,
			Pass:            cfg.ArchivePass,
			DialTimeout:     cfg.DialTimeout,
			ListTimeout:     cfg.ListTimeout,
			DownloadTimeout: cfg.DownloadTimeout,
		},
		archive.PoolConfig{
			MaxSessions:      cfg.ArchiveSessions,
			AcquireTimeout:   cfg.AcquireTimeout,
			BreakerThreshold: cfg.BreakerThreshold,
			BreakerCooldown:  cfg.BreakerCooldown,
		},
		log,
	)

	// Set up repositories
	cruiseRepository := storeRepo.NewGormCruiseRepository(gormDB)
	flagRepository := storeRepo.NewGormFlagRepository(gormDB)
	ledgerRepository := storeRepo.NewRedisLedgerRepository(redisClient)
	auditRepository := storeRepo.NewMongoAuditRepository(auditDB)

	syncMetrics := metrics.NewMetrics("cruisesync")
	normalizer := usecase.NewPricingNormalizer(log)
	mapper := usecase.NewSailingMapper(log)

	orchestrator := usecase.NewSyncOrchestrator(
		pool, normalizer, mapper,
		cruiseRepository, flagRepository, ledgerRepository, auditRepository,
		log, syncMetrics,
		usecase.SyncConfig{
			Workers:         cfg.Workers,
			BatchSize:       cfg.BatchSize,
			MaxShips:        cfg.MaxShips,
			MaxFilesPerShip: cfg.MaxFilesPerShip,
			Retry: archive.Policy{
				MaxAttempts: cfg.RetryAttempts,
				BaseDelay:   cfg.RetryBaseDelay,
				MaxDelay:    cfg.RetryMaxDelay,
			},
		},
	)

	// Start the flag-driven sync loop in a goroutine
	go func() {
		syncTicker := time.NewTicker(cfg.SyncInterval)
		defer syncTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info("Sync loop stopped")
				return
			case <-syncTicker.C:
				log.Info("Processing flagged sailings")
				progress, err := orchestrator.SyncFlagged(ctx)
				if err != nil {
					log.Error("Flag sync failed", "error", err)
					continue
				}
				if progress == nil {
					log.Debug("No sailings flagged")
				}
			}
		}
	}()

	// Set up HTTP server for metrics
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Healthy"))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start HTTP server in a goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("Received signal", "signal", sig)

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
	}

	cancel() // Cancel the context to stop the sync loop

	pool.Close()

	if err := mongoClient.Disconnect(shutdownCtx); err != nil {
		log.Error("MongoDB disconnect error", "error", err)
	}
	if err := redisClient.Close(); err != nil {
		log.Error("Redis close error", "error", err)
	}

	log.Info("Cruisesync Service stopped")
}
