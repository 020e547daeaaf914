package usecase

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"cruisesync-service/internal/domain/entity"
	"cruisesync-service/internal/domain/repository"
	"cruisesync-service/internal/infrastructure/archive"
	"cruisesync-service/pkg/logger"
	"cruisesync-service/pkg/metrics"
	"cruisesync-service/pkg/utils"

	"golang.org/x/sync/errgroup"
)

// SyncConfig bounds one orchestrator. Concurrency stays small because the
// remote archive and the relational store both have finite capacity.
type SyncConfig struct {
	Workers         int
	BatchSize       int
	MaxShips        int
	MaxFilesPerShip int
	Retry           archive.Policy
	UpsertTimeout   time.Duration
}

func (c SyncConfig) withDefaults() SyncConfig {
	if c.Workers <= 0 {
		c.Workers = 5
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxShips <= 0 {
		c.MaxShips = 10
	}
	if c.MaxFilesPerShip <= 0 {
		c.MaxFilesPerShip = 50
	}
	if c.UpsertTimeout <= 0 {
		c.UpsertTimeout = 30 * time.Second
	}
	return c
}

// SyncOrchestrator drives the archive walk: download, normalize, upsert,
// ledger update per document. Per-document failures never abort a run.
type SyncOrchestrator struct {
	pool       repository.ArchivePool
	normalizer *PricingNormalizer
	mapper     *SailingMapper
	cruiseRepo repository.CruiseRepository
	flagRepo   repository.FlagRepository
	ledgerRepo repository.LedgerRepository
	auditRepo  repository.AuditRepository
	logger     logger.Logger
	metrics    *metrics.Metrics
	cfg        SyncConfig
}

// NewSyncOrchestrator creates a new sync orchestrator. metrics may be nil
// (tests run without a registry).
func NewSyncOrchestrator(
	pool repository.ArchivePool,
	normalizer *PricingNormalizer,
	mapper *SailingMapper,
	cruiseRepo repository.CruiseRepository,
	flagRepo repository.FlagRepository,
	ledgerRepo repository.LedgerRepository,
	auditRepo repository.AuditRepository,
	log logger.Logger,
	m *metrics.Metrics,
	cfg SyncConfig,
) *SyncOrchestrator {
	return &SyncOrchestrator{
		pool:       pool,
		normalizer: normalizer,
		mapper:     mapper,
		cruiseRepo: cruiseRepo,
		flagRepo:   flagRepo,
		ledgerRepo: ledgerRepo,
		auditRepo:  auditRepo,
		logger:     log,
		metrics:    m,
		cfg:        cfg.withDefaults(),
	}
}

// SyncFlagged consumes one bounded batch of "needs price update" flags,
// capped by ship count and files per ship so a single invocation cannot
// overload the archive. Sailings beyond the cap stay flagged for the next
// scheduled invocation. Flags clear only for documents that completed.
func (o *SyncOrchestrator) SyncFlagged(ctx context.Context) (*entity.SyncProgress, error) {
	refs, err := o.flagRepo.SelectFlagged(ctx, o.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("select flagged sailings: %w", err)
	}
	if len(refs) == 0 {
		return nil, nil
	}

	refs = o.capByShip(refs)

	byPath := make(map[string]entity.SailingRef, len(refs))
	paths := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref.FilePath == "" {
			o.logger.Warn("Flagged sailing has no archive path", "sailingCode", ref.SailingCode)
			continue
		}
		byPath[ref.FilePath] = ref
		paths = append(paths, ref.FilePath)
	}

	progress, err := o.runBatch(ctx, "flags", paths, true)
	if err != nil && progress == nil {
		return nil, err
	}

	for docPath, ref := range byPath {
		if !progress.IsCompleted(docPath) {
			continue
		}
		if err := o.flagRepo.ClearFlag(context.WithoutCancel(ctx), ref.SailingCode); err != nil {
			o.logger.Error("Failed to clear flag", "sailingCode", ref.SailingCode, "error", err)
		}
	}

	o.finishRun("flags", progress)
	return progress, err
}

// FullCrawl walks /{year}/{month} (optionally one line) and synchronizes
// every document, resuming from the ledger of the same scope.
func (o *SyncOrchestrator) FullCrawl(ctx context.Context, year, month, lineID int) (*entity.SyncProgress, error) {
	runID := fmt.Sprintf("crawl:%04d/%02d", year, month)
	if lineID > 0 {
		runID = fmt.Sprintf("%s/%d", runID, lineID)
	}

	paths, err := o.enumerate(ctx, year, month, lineID)
	if err != nil {
		return nil, fmt.Errorf("enumerate archive: %w", err)
	}
	o.logger.Info("Archive enumerated", "runId", runID, "documents", len(paths))

	progress, err := o.runBatch(ctx, runID, paths, false)
	if progress != nil {
		o.finishRun("crawl", progress)
	}
	return progress, err
}

// RetryFailed re-runs only the failed-path set of a retained ledger
func (o *SyncOrchestrator) RetryFailed(ctx context.Context, runID string) (*entity.SyncProgress, error) {
	progress, err := o.ledgerRepo.Load(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load ledger %s: %w", runID, err)
	}
	if progress == nil || progress.Clean() {
		return progress, nil
	}

	paths := progress.FailedPaths()
	sort.Strings(paths)
	result, err := o.runBatch(ctx, runID, paths, false)
	if result != nil {
		o.finishRun("retry", result)
	}
	return result, err
}

// capByShip groups flagged sailings by ship and applies the per-invocation
// ship and files-per-ship caps
func (o *SyncOrchestrator) capByShip(refs []entity.SailingRef) []entity.SailingRef {
	byShip := map[int][]entity.SailingRef{}
	var shipOrder []int
	for _, ref := range refs {
		if len(byShip[ref.ShipID]) == 0 {
			shipOrder = append(shipOrder, ref.ShipID)
		}
		byShip[ref.ShipID] = append(byShip[ref.ShipID], ref)
	}

	if len(shipOrder) > o.cfg.MaxShips {
		shipOrder = shipOrder[:o.cfg.MaxShips]
	}

	var capped []entity.SailingRef
	for _, shipID := range shipOrder {
		ship := byShip[shipID]
		if len(ship) > o.cfg.MaxFilesPerShip {
			ship = ship[:o.cfg.MaxFilesPerShip]
		}
		capped = append(capped, ship...)
	}
	if len(capped) < len(refs) {
		o.logger.Info("Flag batch capped", "selected", len(capped), "flagged", len(refs))
	}
	return capped
}

// runBatch processes paths with bounded concurrency. The ledger is loaded
// once, consulted to skip completed paths, and persisted after every
// document under a single writer. It is cleared only on a clean finish.
// With refresh set, the given paths are reprocessed even when a retained
// ledger lists them as completed.
func (o *SyncOrchestrator) runBatch(ctx context.Context, runID string, paths []string, refresh bool) (*entity.SyncProgress, error) {
	progress, err := o.ledgerRepo.Load(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load ledger %s: %w", runID, err)
	}
	if progress == nil {
		progress = entity.NewSyncProgress(runID)
	} else {
		// A follow-up run gives every previously failed path a fresh chance.
		for p := range progress.Failed {
			delete(progress.Failed, p)
		}
		if refresh {
			// A set flag supersedes past completion: the webhook re-flags a
			// sailing precisely because its stored price went stale.
			for _, p := range paths {
				delete(progress.Completed, p)
			}
		}
	}

	var mu sync.Mutex
	record := func(fn func()) {
		mu.Lock()
		defer mu.Unlock()
		fn()
		if err := o.ledgerRepo.Save(context.WithoutCancel(ctx), progress); err != nil {
			o.logger.Error("Failed to persist sync ledger", "runId", runID, "error", err)
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.Workers)
	for _, docPath := range paths {
		if progress.IsCompleted(docPath) {
			continue
		}
		docPath := docPath
		g.Go(func() error {
			// Stop starting new documents once the run is canceled;
			// in-flight documents finish so no partial write is visible.
			if ctx.Err() != nil {
				return nil
			}
			started := time.Now()
			outcome := o.processDocument(ctx, docPath)
			record(func() {
				if outcome.failed() {
					progress.MarkFailed(docPath, outcome.reason, outcome.detail)
				} else {
					if outcome.noPricing {
						progress.MarkNoPricing()
					}
					progress.MarkCompleted(docPath)
				}
			})
			o.observeDocument(outcome, time.Since(started))
			return nil
		})
	}
	// Workers record their failures in the ledger and never return an error.
	_ = g.Wait()

	if progress.Clean() && ctx.Err() == nil {
		if err := o.ledgerRepo.Clear(context.WithoutCancel(ctx), runID); err != nil {
			o.logger.Error("Failed to clear sync ledger", "runId", runID, "error", err)
		}
	}
	return progress, ctx.Err()
}

// docOutcome is the terminal result of one document
type docOutcome struct {
	reason    entity.FailureReason
	detail    string
	noPricing bool
	bytes     int
}

func (d docOutcome) failed() bool { return d.reason != "" }

// processDocument runs the per-document pipeline:
// download -> audit -> normalize -> map -> upsert
func (o *SyncOrchestrator) processDocument(ctx context.Context, docPath string) docOutcome {
	raw, err := o.download(ctx, docPath)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			o.logger.Warn("Document absent from archive", "path", docPath)
			return docOutcome{reason: entity.FailureNotFound, detail: err.Error()}
		}
		o.logger.Warn("Document download failed", "path", docPath, "error", err)
		return docOutcome{reason: entity.FailureTransientIO, detail: err.Error()}
	}

	if o.auditRepo != nil {
		if err := o.auditRepo.SaveRaw(ctx, docPath, raw); err != nil {
			o.logger.Error("Failed to store audit blob", "path", docPath, "error", err)
		}
	}

	parts, _ := utils.ParseDocumentPath(docPath)
	pricing, tree, err := o.normalizer.Normalize(raw, parts.LineID)
	if err != nil {
		o.logger.Error("Document unrecoverable", "path", docPath, "bytes", len(raw), "head", head(raw), "error", err)
		return docOutcome{reason: entity.FailureUnrecoverable, detail: err.Error()}
	}

	sailing, itinerary, err := o.mapper.Map(tree, docPath)
	if err != nil {
		o.logger.Error("Document unmappable", "path", docPath, "bytes", len(raw), "error", err)
		return docOutcome{reason: entity.FailureUnrecoverable, detail: err.Error()}
	}
	pricing.SailingCode = sailing.SailingCode
	if pricing.Currency == "" {
		pricing.Currency = sailing.Currency
	}

	// The upsert runs on a detached context so cancellation between
	// documents never interrupts a transaction mid-write.
	upsertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.UpsertTimeout)
	defer cancel()
	if err := o.cruiseRepo.UpsertSailing(upsertCtx, sailing, pricing, itinerary); err != nil {
		o.logger.Error("Upsert failed", "path", docPath, "sailingCode", sailing.SailingCode, "error", err)
		return docOutcome{reason: entity.FailureUpsert, detail: err.Error()}
	}

	if !pricing.HasPricing() {
		// Valid outcome, not an error: the sailing is stored with null
		// pricing.
		o.logger.Info("No pricing available", "path", docPath, "sailingCode", sailing.SailingCode)
		return docOutcome{noPricing: true, bytes: len(raw)}
	}
	return docOutcome{bytes: len(raw)}
}

// download fetches one document through the pool under the retry policy.
// An errored session is discarded; the retry acquires a fresh one.
func (o *SyncOrchestrator) download(ctx context.Context, docPath string) ([]byte, error) {
	var raw []byte
	err := o.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		session, err := o.pool.Acquire(ctx)
		if err != nil {
			return err
		}
		b, err := session.Download(ctx, docPath)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				o.pool.Release(session)
			} else {
				o.pool.Discard(session)
			}
			return err
		}
		o.pool.Release(session)
		raw = b
		return nil
	})
	return raw, err
}

// enumerate lists /{year}/{month}/{line}/{ship}/*.json through the pool
func (o *SyncOrchestrator) enumerate(ctx context.Context, year, month, lineID int) ([]string, error) {
	monthDir := fmt.Sprintf("%04d/%02d", year, month)

	lineDirs, err := o.list(ctx, monthDir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, lineEntry := range lineDirs {
		if !lineEntry.Dir {
			continue
		}
		if lineID > 0 && lineEntry.Name != fmt.Sprintf("%d", lineID) {
			continue
		}
		lineDir := path.Join(monthDir, lineEntry.Name)

		shipDirs, err := o.list(ctx, lineDir)
		if err != nil {
			return nil, err
		}
		for _, shipEntry := range shipDirs {
			if !shipEntry.Dir {
				continue
			}
			shipDir := path.Join(lineDir, shipEntry.Name)

			files, err := o.list(ctx, shipDir)
			if err != nil {
				return nil, err
			}
			for _, file := range files {
				if file.Dir || !strings.HasSuffix(file.Name, ".json") {
					continue
				}
				paths = append(paths, path.Join(shipDir, file.Name))
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// list runs one directory listing under the retry policy. A missing
// directory is an empty listing, not a run failure: lines publish months
// at different times.
func (o *SyncOrchestrator) list(ctx context.Context, dir string) ([]entity.ArchiveEntry, error) {
	var entries []entity.ArchiveEntry
	err := o.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		session, err := o.pool.Acquire(ctx)
		if err != nil {
			return err
		}
		got, err := session.List(ctx, dir)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				o.pool.Release(session)
			} else {
				o.pool.Discard(session)
			}
			return err
		}
		o.pool.Release(session)
		entries = got
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		o.logger.Warn("Archive directory absent", "dir", dir)
		return nil, nil
	}
	return entries, err
}

func (o *SyncOrchestrator) observeDocument(outcome docOutcome, elapsed time.Duration) {
	if o.metrics == nil {
		return
	}
	o.metrics.ProcessingTime.Observe(elapsed.Seconds())
	o.metrics.BytesDownloaded.Add(float64(outcome.bytes))
	if outcome.failed() {
		o.metrics.DocumentsFailed.WithLabelValues(string(outcome.reason)).Inc()
		return
	}
	o.metrics.DocumentsProcessed.Inc()
	if outcome.noPricing {
		o.metrics.DocumentsNoPricing.Inc()
	}
}

func (o *SyncOrchestrator) finishRun(mode string, progress *entity.SyncProgress) {
	outcome := "clean"
	if !progress.Clean() {
		outcome = "failed-paths"
		o.logger.Warn("Sync run retained failed paths",
			"runId", progress.RunID, "failed", len(progress.Failed), "completed", len(progress.Completed))
	} else {
		o.logger.Info("Sync run clean", "runId", progress.RunID, "completed", len(progress.Completed))
	}
	if o.metrics != nil {
		o.metrics.RunsFinished.WithLabelValues(mode, outcome).Inc()
	}
}
