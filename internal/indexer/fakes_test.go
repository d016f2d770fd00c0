package indexer

import (
	"context"
	"errors"
	"sync"
	"time"

	"guild-ranker/internal/domain"
	"guild-ranker/internal/repository"
	"guild-ranker/internal/scraper"
)

type fakeLists struct {
	pages     map[int][]string
	fail      map[int]error
	fallbacks map[int]bool
}

func (f *fakeLists) ListPostIDs(_ context.Context, page int, allowFallback bool) (scraper.ListPage, error) {
	if f.fallbacks == nil {
		f.fallbacks = map[int]bool{}
	}
	f.fallbacks[page] = allowFallback
	if err := f.fail[page]; err != nil {
		return scraper.ListPage{Page: page}, err
	}
	return scraper.ListPage{Page: page, IDs: f.pages[page]}, nil
}

type fakePosts struct {
	outcomes map[string]domain.ScrapeOutcome
	errs     map[string]error
	calls    []string
}

func (f *fakePosts) ScrapePost(_ context.Context, id string) (domain.ScrapeOutcome, error) {
	f.calls = append(f.calls, id)
	if err := f.errs[id]; err != nil {
		return domain.ScrapeOutcome{}, err
	}
	if o, ok := f.outcomes[id]; ok {
		return o, nil
	}
	return domain.NotFound(id), nil
}

type fakeProfiles struct {
	outcomes map[string]domain.ScrapeOutcome
	errs     map[string]error
}

func (f *fakeProfiles) ScrapeProfile(_ context.Context, id string) (domain.ScrapeOutcome, error) {
	if err := f.errs[id]; err != nil {
		return domain.ScrapeOutcome{}, err
	}
	if o, ok := f.outcomes[id]; ok {
		return o, nil
	}
	return domain.NotFound(id), nil
}

type fakeAuthors struct {
	mu          sync.Mutex
	fromPost    map[string]domain.Author
	fromProfile map[string]domain.Author
	refreshable []domain.Author
	stats       map[string]int64
	upsertErr   error
}

func newFakeAuthors() *fakeAuthors {
	return &fakeAuthors{
		fromPost:    map[string]domain.Author{},
		fromProfile: map[string]domain.Author{},
		stats:       map[string]int64{},
	}
}

func (f *fakeAuthors) UpsertFromPost(_ context.Context, a domain.Author, postID string) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if a.Key == "" {
		return repository.ErrNoAuthorKey
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a.LastPostID = postID
	f.fromPost[a.Key] = a
	return nil
}

func (f *fakeAuthors) UpsertFromProfile(_ context.Context, a domain.Author, userID string) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a.UserID = userID
	f.fromProfile[a.Key] = a
	return nil
}

func (f *fakeAuthors) ListGuildRanking(context.Context, string, int) ([]domain.Author, error) {
	return nil, nil
}

func (f *fakeAuthors) ListRefreshable(context.Context, string) ([]domain.Author, error) {
	return f.refreshable, nil
}

func (f *fakeAuthors) UpdateStats(_ context.Context, key string, _ int, cp int64, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats[key] = cp
	return nil
}

func (f *fakeAuthors) CountAuthors(context.Context) (int, error) {
	return len(f.fromPost) + len(f.fromProfile), nil
}

type ledgerKey struct {
	kind repository.LedgerKind
	id   string
}

type ledgerEntry struct {
	status    string
	checkedAt time.Time
}

type fakeLedger struct {
	mu      sync.Mutex
	entries map[ledgerKey]ledgerEntry
	now     func() time.Time
	readErr error
}

func newFakeLedger(now func() time.Time) *fakeLedger {
	return &fakeLedger{entries: map[ledgerKey]ledgerEntry{}, now: now}
}

func (f *fakeLedger) RecentlyChecked(_ context.Context, kind repository.LedgerKind, id string, cooldown time.Duration) (bool, error) {
	if f.readErr != nil {
		return false, f.readErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[ledgerKey{kind, id}]
	if !ok {
		return false, nil
	}
	return f.now().Sub(e.checkedAt) <= cooldown, nil
}

func (f *fakeLedger) MarkChecked(_ context.Context, kind repository.LedgerKind, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[ledgerKey{kind, id}] = ledgerEntry{status: status, checkedAt: f.now()}
	return nil
}

func (f *fakeLedger) Count(_ context.Context, kind repository.LedgerKind) (int, error) {
	n := 0
	for k := range f.entries {
		if k.kind == kind {
			n++
		}
	}
	return n, nil
}

func (f *fakeLedger) status(kind repository.LedgerKind, id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[ledgerKey{kind, id}].status
}

type fakeStats struct {
	snapshots int
	recalcs   int
	err       error
}

func (f *fakeStats) SnapshotDaily(context.Context, time.Time) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.snapshots++
	return 3, nil
}

func (f *fakeStats) RecalculateDeltas(context.Context) (int, error) {
	f.recalcs++
	return 2, nil
}

var errTransport = errors.New("connection reset")
