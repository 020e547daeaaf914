package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"cruisesync-service/internal/domain/entity"
	"cruisesync-service/internal/domain/repository"
	"cruisesync-service/internal/infrastructure/archive"
	"cruisesync-service/pkg/logger"
	"cruisesync-service/pkg/utils"
)

// fakeArchive backs fake sessions with shared in-memory files and
// per-path injected transient failures
type fakeArchive struct {
	mu        sync.Mutex
	files     map[string][]byte
	failures  map[string]int // remaining transient failures per path
	downloads map[string]int
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{
		files:     map[string][]byte{},
		failures:  map[string]int{},
		downloads: map[string]int{},
	}
}

func (f *fakeArchive) Acquire(ctx context.Context) (repository.ArchiveSession, error) {
	return fakeSession{a: f}, nil
}
func (f *fakeArchive) Release(repository.ArchiveSession) {}
func (f *fakeArchive) Discard(repository.ArchiveSession) {}

type fakeSession struct {
	a *fakeArchive
}

func (s fakeSession) Download(ctx context.Context, docPath string) ([]byte, error) {
	s.a.mu.Lock()
	defer s.a.mu.Unlock()
	s.a.downloads[docPath]++
	if s.a.failures[docPath] > 0 {
		s.a.failures[docPath]--
		return nil, errors.New("connection reset by peer")
	}
	raw, ok := s.a.files[docPath]
	if !ok {
		return nil, fmt.Errorf("download %s: %w", docPath, repository.ErrNotFound)
	}
	return raw, nil
}

func (s fakeSession) List(ctx context.Context, dir string) ([]entity.ArchiveEntry, error) {
	s.a.mu.Lock()
	defer s.a.mu.Unlock()
	prefix := strings.TrimSuffix(dir, "/") + "/"
	seen := map[string]entity.ArchiveEntry{}
	for p := range s.a.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		name, _, isDir := strings.Cut(rest, "/")
		seen[name] = entity.ArchiveEntry{Name: name, Dir: isDir}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("list %s: %w", dir, repository.ErrNotFound)
	}
	entries := make([]entity.ArchiveEntry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	return entries, nil
}

type memCruiseRepo struct {
	mu       sync.Mutex
	sailings map[string]*entity.Sailing
	pricing  map[string]*entity.CanonicalPricing
	itin     map[string][]entity.ItineraryDay
	upserts  map[string]int
	failFor  map[string]bool
}

func newMemCruiseRepo() *memCruiseRepo {
	return &memCruiseRepo{
		sailings: map[string]*entity.Sailing{},
		pricing:  map[string]*entity.CanonicalPricing{},
		itin:     map[string][]entity.ItineraryDay{},
		upserts:  map[string]int{},
		failFor:  map[string]bool{},
	}
}

func (r *memCruiseRepo) UpsertSailing(ctx context.Context, sailing *entity.Sailing, pricing *entity.CanonicalPricing, itinerary []entity.ItineraryDay) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor[sailing.SailingCode] {
		return errors.New("constraint violation")
	}
	r.sailings[sailing.SailingCode] = sailing
	r.pricing[sailing.SailingCode] = pricing
	r.itin[sailing.SailingCode] = itinerary
	r.upserts[sailing.SailingCode]++
	return nil
}

type memFlagRepo struct {
	mu      sync.Mutex
	flagged map[string]entity.SailingRef
	cleared []string
}

func newMemFlagRepo(refs ...entity.SailingRef) *memFlagRepo {
	r := &memFlagRepo{flagged: map[string]entity.SailingRef{}}
	for _, ref := range refs {
		r.flagged[ref.SailingCode] = ref
	}
	return r
}

func (r *memFlagRepo) SelectFlagged(ctx context.Context, limit int) ([]entity.SailingRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var refs []entity.SailingRef
	for _, ref := range r.flagged {
		if len(refs) == limit {
			break
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (r *memFlagRepo) ClearFlag(ctx context.Context, sailingCode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flagged, sailingCode)
	r.cleared = append(r.cleared, sailingCode)
	return nil
}

// memLedgerRepo round-trips through JSON like the real Redis ledger
type memLedgerRepo struct {
	mu    sync.Mutex
	store map[string][]byte
	saves int
}

func newMemLedgerRepo() *memLedgerRepo {
	return &memLedgerRepo{store: map[string][]byte{}}
}

func (r *memLedgerRepo) Load(ctx context.Context, runID string) (*entity.SyncProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.store[runID]
	if !ok {
		return nil, nil
	}
	var progress entity.SyncProgress
	if err := json.Unmarshal(raw, &progress); err != nil {
		return nil, err
	}
	return &progress, nil
}

func (r *memLedgerRepo) Save(ctx context.Context, progress *entity.SyncProgress) error {
	raw, err := json.Marshal(progress)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store[progress.RunID] = raw
	r.saves++
	return nil
}

func (r *memLedgerRepo) Clear(ctx context.Context, runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.store, runID)
	return nil
}

func testDoc(code string, price string) []byte {
	return []byte(fmt.Sprintf(
		`{"codetocruiseid":%q,"name":"Test Sailing %s","saildate":"2026-08-01","nights":7,"cheapestinside":%q}`,
		code, code, price))
}

func newTestOrchestrator(arc *fakeArchive, cruises *memCruiseRepo, flags *memFlagRepo, ledger *memLedgerRepo, cfg SyncConfig) *SyncOrchestrator {
	log := logger.NewNopLogger()
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = archive.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	}
	return NewSyncOrchestrator(
		arc,
		NewPricingNormalizer(log),
		NewSailingMapper(log),
		cruises, flags, ledger, nil,
		log, nil, cfg,
	)
}

func seedFlagged(arc *fakeArchive, lineID, shipID, n int) []entity.SailingRef {
	refs := make([]entity.SailingRef, 0, n)
	for i := 1; i <= n; i++ {
		code := fmt.Sprintf("%d%03d", shipID, i)
		docPath := utils.DocumentPath(2026, 8, lineID, shipID, code)
		arc.files[docPath] = testDoc(code, "100.00")
		refs = append(refs, entity.SailingRef{
			SailingCode: code, LineID: lineID, ShipID: shipID, FilePath: docPath,
		})
	}
	return refs
}

func TestSyncFlaggedTransientFailureAndFollowUp(t *testing.T) {
	arc := newFakeArchive()
	refs := seedFlagged(arc, 7, 410, 10)
	// Path #6 exhausts every retry on the first invocation.
	stuck := refs[5]
	arc.failures[stuck.FilePath] = 100

	cruises := newMemCruiseRepo()
	flags := newMemFlagRepo(refs...)
	ledger := newMemLedgerRepo()
	o := newTestOrchestrator(arc, cruises, flags, ledger, SyncConfig{Workers: 3})

	progress, err := o.SyncFlagged(context.Background())
	if err != nil {
		t.Fatalf("SyncFlagged: %v", err)
	}
	if len(progress.Completed) != 9 {
		t.Errorf("completed = %d, want 9", len(progress.Completed))
	}
	failure, ok := progress.Failed[stuck.FilePath]
	if !ok {
		t.Fatalf("path %s missing from failed set", stuck.FilePath)
	}
	if failure.Reason != entity.FailureTransientIO {
		t.Errorf("failure reason = %q, want transient-io", failure.Reason)
	}
	if got := arc.downloads[stuck.FilePath]; got != 3 {
		t.Errorf("stuck path downloads = %d, want 3 (retry attempts)", got)
	}

	// Ledger retained because the run was not clean; stuck flag retained.
	if saved, _ := ledger.Load(context.Background(), "flags"); saved == nil {
		t.Errorf("non-clean run must retain its ledger")
	}
	if len(flags.cleared) != 9 {
		t.Errorf("cleared flags = %d, want 9", len(flags.cleared))
	}
	if _, still := flags.flagged[stuck.SailingCode]; !still {
		t.Errorf("failed sailing's flag must stay set")
	}

	// The transient condition clears; the follow-up invocation succeeds
	// and processes only the leftover flag.
	arc.failures[stuck.FilePath] = 0
	for p := range arc.downloads {
		arc.downloads[p] = 0
	}

	progress, err = o.SyncFlagged(context.Background())
	if err != nil {
		t.Fatalf("second SyncFlagged: %v", err)
	}
	if !progress.Clean() {
		t.Errorf("follow-up run should be clean, failed=%v", progress.Failed)
	}
	for p, n := range arc.downloads {
		if p != stuck.FilePath && n != 0 {
			t.Errorf("completed path %s redownloaded %d times", p, n)
		}
	}
	if saved, _ := ledger.Load(context.Background(), "flags"); saved != nil {
		t.Errorf("clean run must clear its ledger")
	}
	if _, still := flags.flagged[stuck.SailingCode]; still {
		t.Errorf("flag should clear after successful follow-up")
	}
}

func TestSyncFlaggedReflaggedSailingSupersedesLedger(t *testing.T) {
	arc := newFakeArchive()
	refs := seedFlagged(arc, 7, 410, 2)
	refreshed, stuck := refs[0], refs[1]
	// The second path keeps the first run non-clean so its ledger is
	// retained, with the first path in the completed set.
	arc.failures[stuck.FilePath] = 100

	cruises := newMemCruiseRepo()
	flags := newMemFlagRepo(refs...)
	ledger := newMemLedgerRepo()
	o := newTestOrchestrator(arc, cruises, flags, ledger, SyncConfig{})

	if _, err := o.SyncFlagged(context.Background()); err != nil {
		t.Fatalf("first SyncFlagged: %v", err)
	}
	stored := cruises.pricing[refreshed.SailingCode]
	if stored == nil || stored.Interior == nil || *stored.Interior != 100 {
		t.Fatalf("stored interior after first run = %+v, want 100", stored)
	}

	// The price changes and the webhook re-flags the sailing while the
	// retained ledger still lists its path as completed.
	arc.mu.Lock()
	arc.files[refreshed.FilePath] = testDoc(refreshed.SailingCode, "175.00")
	arc.failures[stuck.FilePath] = 0
	arc.mu.Unlock()
	flags.flagged[refreshed.SailingCode] = refreshed

	progress, err := o.SyncFlagged(context.Background())
	if err != nil {
		t.Fatalf("second SyncFlagged: %v", err)
	}
	if !progress.Clean() {
		t.Fatalf("follow-up run not clean: %v", progress.Failed)
	}
	if got := arc.downloads[refreshed.FilePath]; got != 2 {
		t.Errorf("re-flagged path downloads = %d, want 2 (flag supersedes past completion)", got)
	}
	stored = cruises.pricing[refreshed.SailingCode]
	if stored == nil || stored.Interior == nil || *stored.Interior != 175 {
		t.Errorf("stored interior after re-flag = %+v, want 175", stored)
	}
	if _, still := flags.flagged[refreshed.SailingCode]; still {
		t.Errorf("flag should clear after the refresh lands")
	}
}

func TestFullCrawlResumesFromLedger(t *testing.T) {
	arc := newFakeArchive()
	var paths []string
	for _, ship := range []int{410, 411} {
		for i := 1; i <= 2; i++ {
			code := fmt.Sprintf("%d%03d", ship, i)
			p := utils.DocumentPath(2026, 8, 7, ship, code)
			arc.files[p] = testDoc(code, "250.00")
			paths = append(paths, p)
		}
	}

	// A previous run crashed after completing the first two paths.
	ledger := newMemLedgerRepo()
	prev := entity.NewSyncProgress("crawl:2026/08")
	prev.MarkCompleted(paths[0])
	prev.MarkCompleted(paths[1])
	if err := ledger.Save(context.Background(), prev); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	cruises := newMemCruiseRepo()
	o := newTestOrchestrator(arc, cruises, newMemFlagRepo(), ledger, SyncConfig{Workers: 2})

	progress, err := o.FullCrawl(context.Background(), 2026, 8, 0)
	if err != nil {
		t.Fatalf("FullCrawl: %v", err)
	}
	if !progress.Clean() {
		t.Fatalf("crawl not clean: %v", progress.Failed)
	}
	if len(progress.Completed) != 4 {
		t.Errorf("completed = %d, want 4", len(progress.Completed))
	}
	for _, p := range paths[:2] {
		if arc.downloads[p] != 0 {
			t.Errorf("ledger-completed path %s was reprocessed", p)
		}
	}
	for _, p := range paths[2:] {
		if arc.downloads[p] != 1 {
			t.Errorf("path %s downloads = %d, want 1", p, arc.downloads[p])
		}
	}
	if len(cruises.sailings) != 2 {
		t.Errorf("upserted sailings = %d, want 2", len(cruises.sailings))
	}
}

func TestFullCrawlLineFilter(t *testing.T) {
	arc := newFakeArchive()
	wanted := utils.DocumentPath(2026, 8, 7, 410, "410001")
	other := utils.DocumentPath(2026, 8, 329, 17, "17001")
	arc.files[wanted] = testDoc("410001", "99.00")
	arc.files[other] = testDoc("17001", "88.00")

	o := newTestOrchestrator(arc, newMemCruiseRepo(), newMemFlagRepo(), newMemLedgerRepo(), SyncConfig{})

	progress, err := o.FullCrawl(context.Background(), 2026, 8, 7)
	if err != nil {
		t.Fatalf("FullCrawl: %v", err)
	}
	if !progress.IsCompleted(wanted) {
		t.Errorf("line 7 document not processed")
	}
	if progress.IsCompleted(other) || arc.downloads[other] != 0 {
		t.Errorf("line 329 document should be outside the crawl scope")
	}
}

func TestSyncFlaggedCapsShipsAndFiles(t *testing.T) {
	arc := newFakeArchive()
	var refs []entity.SailingRef
	for _, ship := range []int{410, 411, 412} {
		refs = append(refs, seedFlagged(arc, 7, ship, 5)...)
	}

	flags := newMemFlagRepo(refs...)
	o := newTestOrchestrator(arc, newMemCruiseRepo(), flags, newMemLedgerRepo(), SyncConfig{
		BatchSize: 100, MaxShips: 2, MaxFilesPerShip: 3,
	})

	progress, err := o.SyncFlagged(context.Background())
	if err != nil {
		t.Fatalf("SyncFlagged: %v", err)
	}
	if got := len(progress.Completed); got != 6 {
		t.Errorf("completed = %d, want 6 (2 ships x 3 files)", got)
	}
	// Everything beyond the cap stays flagged for the next invocation.
	if got := len(flags.flagged); got != 9 {
		t.Errorf("remaining flags = %d, want 9", got)
	}
}

func TestProcessDocumentOutcomes(t *testing.T) {
	arc := newFakeArchive()
	noPricing := utils.DocumentPath(2026, 8, 7, 410, "410001")
	garbage := utils.DocumentPath(2026, 8, 7, 410, "410002")
	missing := utils.DocumentPath(2026, 8, 7, 410, "410003")
	badUpsert := utils.DocumentPath(2026, 8, 7, 410, "410004")
	arc.files[noPricing] = []byte(`{"codetocruiseid":"410001","name":"No Price","cheapestinside":"0"}`)
	arc.files[garbage] = []byte(`%%% not json`)
	arc.files[badUpsert] = testDoc("410004", "150.00")

	cruises := newMemCruiseRepo()
	cruises.failFor["410004"] = true
	refs := []entity.SailingRef{
		{SailingCode: "410001", ShipID: 410, FilePath: noPricing},
		{SailingCode: "410002", ShipID: 410, FilePath: garbage},
		{SailingCode: "410003", ShipID: 410, FilePath: missing},
		{SailingCode: "410004", ShipID: 410, FilePath: badUpsert},
	}
	flags := newMemFlagRepo(refs...)
	o := newTestOrchestrator(arc, cruises, flags, newMemLedgerRepo(), SyncConfig{Workers: 1})

	progress, err := o.SyncFlagged(context.Background())
	if err != nil {
		t.Fatalf("SyncFlagged: %v", err)
	}

	// No pricing is a valid outcome: sailing upserted with null pricing.
	if !progress.IsCompleted(noPricing) {
		t.Errorf("no-pricing document must complete")
	}
	if progress.NoPricing != 1 {
		t.Errorf("NoPricing = %d, want 1", progress.NoPricing)
	}
	if stored := cruises.pricing["410001"]; stored == nil || stored.Cheapest != nil {
		t.Errorf("no-pricing sailing should be stored with null cheapest, got %+v", stored)
	}

	wantReasons := map[string]entity.FailureReason{
		garbage:   entity.FailureUnrecoverable,
		missing:   entity.FailureNotFound,
		badUpsert: entity.FailureUpsert,
	}
	for p, want := range wantReasons {
		failure, ok := progress.Failed[p]
		if !ok {
			t.Errorf("path %s missing from failed set", p)
			continue
		}
		if failure.Reason != want {
			t.Errorf("path %s reason = %q, want %q", p, failure.Reason, want)
		}
	}

	// Not-found is terminal: no retry attempts burned.
	if arc.downloads[missing] != 1 {
		t.Errorf("missing path downloads = %d, want 1", arc.downloads[missing])
	}
}

func TestUpsertIdempotence(t *testing.T) {
	arc := newFakeArchive()
	refs := seedFlagged(arc, 7, 410, 1)

	cruises := newMemCruiseRepo()
	ledger := newMemLedgerRepo()
	o := newTestOrchestrator(arc, cruises, newMemFlagRepo(refs...), ledger, SyncConfig{})

	if _, err := o.SyncFlagged(context.Background()); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	first := *cruises.sailings[refs[0].SailingCode]

	// Re-flag and sync the same document again.
	flags := newMemFlagRepo(refs...)
	o = newTestOrchestrator(arc, cruises, flags, ledger, SyncConfig{})
	if _, err := o.SyncFlagged(context.Background()); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	if got := cruises.upserts[refs[0].SailingCode]; got != 2 {
		t.Errorf("upserts = %d, want 2", got)
	}
	second := *cruises.sailings[refs[0].SailingCode]
	if first.SailingCode != second.SailingCode || first.Name != second.Name || !first.SailDate.Equal(second.SailDate) {
		t.Errorf("repeated sync diverged: %+v vs %+v", first, second)
	}
}

func TestEnumerateSkipsNonJSONEntries(t *testing.T) {
	arc := newFakeArchive()
	doc := utils.DocumentPath(2026, 8, 7, 410, "410001")
	arc.files[doc] = testDoc("410001", "77.00")
	arc.files[path.Join("2026/08/7/410", "manifest.txt")] = []byte("ignore me")

	o := newTestOrchestrator(arc, newMemCruiseRepo(), newMemFlagRepo(), newMemLedgerRepo(), SyncConfig{})

	progress, err := o.FullCrawl(context.Background(), 2026, 8, 0)
	if err != nil {
		t.Fatalf("FullCrawl: %v", err)
	}
	if len(progress.Completed) != 1 || !progress.IsCompleted(doc) {
		t.Errorf("completed = %v, want only %s", progress.Completed, doc)
	}
}
