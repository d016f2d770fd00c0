package indexer

import (
	"context"
	"errors"
	"testing"
	"time"

	"guild-ranker/internal/domain"
	"guild-ranker/internal/infrastructure/cache"
	"guild-ranker/internal/logger"
	"guild-ranker/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	t := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func guildPost(nick, guild string, cp int64) domain.ScrapeOutcome {
	return domain.Found("u", domain.PostProfile{Nickname: nick, Server: "카인", Guild: guild, CombatPower: cp}, false)
}

func TestPollLatestPages_DedupsAndGatesFallback(t *testing.T) {
	lists := &fakeLists{pages: map[int][]string{
		3: {"111", "222"},
		4: {"222", "333"},
		5: {"444"},
	}}
	ix := New(lists, &fakePosts{}, newFakeAuthors(), newFakeLedger(fixedClock()), Options{Logger: logger.Discard()})

	res, err := ix.PollLatestPages(context.Background(), PollOptions{Pages: 3, FallbackPages: 2, StartPage: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"111", "222", "333", "444"}, res.IDs)
	assert.Len(t, res.Pages, 3)
	// FallbackPages counts crawled pages from StartPage, not page numbers.
	assert.Equal(t, map[int]bool{3: true, 4: true, 5: false}, lists.fallbacks)

	lists.fallbacks = nil
	_, err = ix.PollLatestPages(context.Background(), PollOptions{Pages: 2, FallbackPages: 1, StartPage: 4})
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{4: true, 5: false}, lists.fallbacks)
}

func TestPollLatestPages_PageFailureFailsBatch(t *testing.T) {
	lists := &fakeLists{
		pages: map[int][]string{1: {"1"}},
		fail:  map[int]error{2: errTransport},
	}
	ix := New(lists, &fakePosts{}, newFakeAuthors(), newFakeLedger(fixedClock()), Options{Logger: logger.Discard()})

	res, err := ix.PollLatestPages(context.Background(), PollOptions{Pages: 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errTransport))
	assert.Equal(t, []string{"1"}, res.IDs)
}

func TestProcessNewPosts_MatchesSkipsAndSurvivesFailures(t *testing.T) {
	posts := &fakePosts{
		outcomes: map[string]domain.ScrapeOutcome{
			"1": guildPost("Kim", "항마압축파 (분파)", 100),
			"2": guildPost("Lee", "다른길드", 90),
			"4": domain.InsufficientOutcome("u", domain.PostProfile{}, true),
		},
		errs: map[string]error{"3": errTransport},
	}
	authors := newFakeAuthors()
	ledger := newFakeLedger(fixedClock())
	require.NoError(t, ledger.MarkChecked(context.Background(), repository.LedgerPosts, "5", domain.StatusMatched))

	mem := cache.NewMemory(time.Minute)
	require.NoError(t, mem.SetJSON(context.Background(), cache.SnapshotKey("항마압축파"), domain.GuildRanking{}, 0))

	ix := New(&fakeLists{}, posts, authors, ledger, Options{GuildFilter: "항마압축파", Cache: mem, Logger: logger.Discard()})
	sum, err := ix.ProcessNewPosts(context.Background(), []string{"1", "2", "3", "4", "5"}, "")
	require.NoError(t, err)

	assert.Equal(t, 4, sum.Processed)
	assert.Equal(t, 1, sum.Matched)
	assert.Equal(t, 3, sum.NotMatched)
	assert.Equal(t, 1, sum.Skipped)
	require.Len(t, sum.Failures, 1)
	assert.Equal(t, "3", sum.Failures[0].ID)

	assert.Contains(t, authors.fromPost, "카인:kim")
	assert.Equal(t, "1", authors.fromPost["카인:kim"].LastPostID)
	assert.Equal(t, domain.StatusMatched, ledger.status(repository.LedgerPosts, "1"))
	assert.Equal(t, domain.StatusNotMatched, ledger.status(repository.LedgerPosts, "2"))
	assert.Equal(t, domain.StatusNotMatched, ledger.status(repository.LedgerPosts, "3"))
	assert.NotContains(t, posts.calls, "5")

	var cached domain.GuildRanking
	hit, _ := mem.GetJSON(context.Background(), cache.SnapshotKey("항마압축파"), &cached)
	assert.False(t, hit, "a match invalidates cached snapshots")
}

func TestProcessNewPosts_GuildPostWithoutAuthorKeyIsNotMatched(t *testing.T) {
	posts := &fakePosts{outcomes: map[string]domain.ScrapeOutcome{
		"1": domain.Found("u", domain.PostProfile{Guild: "항마압축파", CombatPower: 100}, false),
		"2": domain.Found("u", domain.PostProfile{Nickname: "Kim", Guild: "항마압축파"}, false),
	}}
	authors := newFakeAuthors()
	ledger := newFakeLedger(fixedClock())

	ix := New(&fakeLists{}, posts, authors, ledger, Options{GuildFilter: "항마압축파", Logger: logger.Discard()})
	sum, err := ix.ProcessNewPosts(context.Background(), []string{"1", "2"}, "")
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 0, sum.Matched)
	assert.Equal(t, 2, sum.NotMatched)
	assert.Equal(t, 2, sum.NoAuthorKey)
	assert.Empty(t, sum.Failures)
	assert.Empty(t, authors.fromPost)
	assert.Equal(t, domain.StatusNotMatched, ledger.status(repository.LedgerPosts, "1"))
	assert.Equal(t, domain.StatusNotMatched, ledger.status(repository.LedgerPosts, "2"))
}

func TestProcessNewPosts_UpsertErrorIsPerItem(t *testing.T) {
	posts := &fakePosts{outcomes: map[string]domain.ScrapeOutcome{
		"1": guildPost("Kim", "항마압축파", 100),
		"2": guildPost("Park", "항마압축파", 100),
	}}
	authors := newFakeAuthors()
	authors.upsertErr = errors.New("db down")

	ix := New(&fakeLists{}, posts, authors, newFakeLedger(fixedClock()), Options{GuildFilter: "항마압축파", Logger: logger.Discard()})
	sum, err := ix.ProcessNewPosts(context.Background(), []string{"1", "2"}, "")
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 0, sum.Matched)
	assert.Len(t, sum.Failures, 2)
}

func TestScanProfileRange(t *testing.T) {
	profiles := &fakeProfiles{
		outcomes: map[string]domain.ScrapeOutcome{
			"100": domain.Found("u", domain.PostProfile{Nickname: "Kim", Guild: "항마압축파", CombatPower: 10}, true),
			"101": domain.Found("u", domain.PostProfile{Nickname: "Lee", Server: "카인", Guild: "다른길드", CombatPower: 20}, false),
			"102": domain.InsufficientOutcome("u", domain.PostProfile{}, true),
		},
		errs: map[string]error{"103": errTransport},
	}
	authors := newFakeAuthors()
	ledger := newFakeLedger(fixedClock())
	s := NewProfileScanner(profiles, authors, ledger, ScannerOptions{GuildFilter: "항마압축파", Logger: logger.Discard()})

	sum, err := s.ScanProfileRange(context.Background(), 100, 4, "")
	require.NoError(t, err)
	assert.Equal(t, 100, sum.StartID)
	assert.Equal(t, 4, sum.Scanned)
	assert.Equal(t, 2, sum.Matched)
	require.Len(t, sum.Failures, 1)
	assert.Equal(t, "103", sum.Failures[0].ID)

	assert.Contains(t, authors.fromProfile, "user:100")
	assert.Contains(t, authors.fromProfile, "카인:lee")
	assert.Equal(t, domain.StatusNotFound, ledger.status(repository.LedgerProfiles, "102"))
	assert.Equal(t, "", ledger.status(repository.LedgerProfiles, "103"), "transport errors stay eligible")

	again, err := s.ScanProfileRange(context.Background(), 100, 4, "")
	require.NoError(t, err)
	assert.Equal(t, 3, again.Skipped)
	assert.Equal(t, 4, again.Scanned, "ledger skips still count as scanned")
	assert.Equal(t, 0, again.Matched)
}

func TestScanProfileRangeDebug(t *testing.T) {
	profiles := &fakeProfiles{
		outcomes: map[string]domain.ScrapeOutcome{
			"7": domain.Found("u", domain.PostProfile{Nickname: "Kim", Guild: "항마압축파"}, true),
		},
		errs: map[string]error{"8": errTransport},
	}
	s := NewProfileScanner(profiles, newFakeAuthors(), newFakeLedger(fixedClock()), ScannerOptions{GuildFilter: "항마압축파", Logger: logger.Discard()})

	dbg, err := s.ScanProfileRangeDebug(context.Background(), 7, 2, "")
	require.NoError(t, err)
	require.Len(t, dbg.Details, 2)

	first := dbg.Details[0]
	assert.True(t, first.Exists)
	assert.True(t, first.GuildMatched)
	assert.True(t, first.UsedFallback)
	assert.Equal(t, "Kim", first.Nickname)

	second := dbg.Details[1]
	assert.Equal(t, 8, second.ID)
	assert.False(t, second.Exists)
	assert.Empty(t, second.Guild)
}

func TestScanProfileRange_RejectsNegativeRange(t *testing.T) {
	s := NewProfileScanner(&fakeProfiles{}, newFakeAuthors(), newFakeLedger(fixedClock()), ScannerOptions{Logger: logger.Discard()})
	_, err := s.ScanProfileRange(context.Background(), -1, 3, "")
	assert.Error(t, err)
}

func TestRefreshMembers(t *testing.T) {
	authors := newFakeAuthors()
	authors.refreshable = []domain.Author{
		{Key: "카인:kim", UserID: "1", Level: 60, CombatPower: 100},
		{Key: "카인:lee", UserID: "2", Level: 60, CombatPower: 80},
	}
	profiles := &fakeProfiles{outcomes: map[string]domain.ScrapeOutcome{
		"1": domain.Found("u", domain.PostProfile{Nickname: "Kim", Level: 61, CombatPower: 120}, false),
	}}
	stats := &fakeStats{}

	r := NewMemberRefresher(profiles, authors, stats, RefresherOptions{GuildFilter: "항마압축파", Logger: logger.Discard(), Now: fixedClock()})
	sum, err := r.RefreshMembers(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 1, sum.Success)
	assert.Equal(t, 1, sum.Fail)
	assert.Equal(t, int64(120), authors.stats["카인:kim"])
	assert.Equal(t, 1, stats.snapshots)
	assert.Equal(t, 1, stats.recalcs)
	assert.Equal(t, 2, sum.DeltasUpdated)
}

func TestRefreshMembers_StatsFailureSurfaces(t *testing.T) {
	stats := &fakeStats{err: errors.New("tx failed")}
	r := NewMemberRefresher(&fakeProfiles{}, newFakeAuthors(), stats, RefresherOptions{Logger: logger.Discard()})
	_, err := r.RefreshMembers(context.Background(), "")
	assert.Error(t, err)
}
