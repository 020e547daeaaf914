package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cruisesync-service/internal/domain/entity"
	"cruisesync-service/internal/infrastructure/archive"
	"cruisesync-service/internal/infrastructure/config"
	"cruisesync-service/internal/infrastructure/persistence"
	storeRepo "cruisesync-service/internal/interface/repository"
	"cruisesync-service/internal/usecase"
	"cruisesync-service/pkg/logger"
)

// fullcrawl walks one year/month of the remote archive and synchronizes
// every sailing document, resuming from the retained ledger of the same
// scope. Exit code 1 means failed paths remain; rerun with -retry-failed
// once the transient condition clears.
func main() {
	now := time.Now()
	year := flag.Int("year", now.Year(), "archive year to crawl")
	month := flag.Int("month", int(now.Month()), "archive month to crawl")
	lineID := flag.Int("line", 0, "restrict the crawl to one cruise line id")
	retryFailed := flag.Bool("retry-failed", false, "re-run only the failed paths of the retained ledger")
	flag.Parse()

	if *month < 1 || *month > 12 {
		fmt.Fprintln(os.Stderr, "month must be 1..12")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}
	log := logger.NewLogger(cfg.LogLevel)

	// A second invocation against the same scope must not run concurrently
	// with the first; scheduling is the operator's concern.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("Received signal, finishing in-flight documents", "signal", sig)
		cancel()
	}()

	gormDB, err := persistence.NewPostgresDB(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", "error", err)
	}

	mongoClient, auditDB, err := persistence.NewMongoClient(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB", "error", err)
	}
	defer mongoClient.Disconnect(context.Background())

	redisClient, err := persistence.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal("Failed to connect to Redis", "error", err)
	}
	defer redisClient.Close()

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
	defer pool.Close()

	orchestrator := usecase.NewSyncOrchestrator(
		pool,
		usecase.NewPricingNormalizer(log),
		usecase.NewSailingMapper(log),
		storeRepo.NewGormCruiseRepository(gormDB),
		storeRepo.NewGormFlagRepository(gormDB),
		storeRepo.NewRedisLedgerRepository(redisClient),
		storeRepo.NewMongoAuditRepository(auditDB),
		log, nil,
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

	runID := fmt.Sprintf("crawl:%04d/%02d", *year, *month)
	if *lineID > 0 {
		runID = fmt.Sprintf("%s/%d", runID, *lineID)
	}

	var progress *entity.SyncProgress
	if *retryFailed {
		log.Info("Retrying failed paths", "runId", runID)
		progress, err = orchestrator.RetryFailed(ctx, runID)
	} else {
		log.Info("Starting full crawl", "runId", runID)
		progress, err = orchestrator.FullCrawl(ctx, *year, *month, *lineID)
	}
	if err != nil {
		log.Error("Crawl interrupted", "runId", runID, "error", err)
	}
	if progress != nil && !progress.Clean() {
		os.Exit(1)
	}
}
