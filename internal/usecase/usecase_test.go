package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"guild-ranker/internal/domain"
	"guild-ranker/internal/indexer"
	"guild-ranker/internal/logger"
	"guild-ranker/internal/ranking"
	"guild-ranker/internal/repository"

	"github.com/google/uuid"
)

type mockReader struct {
	results []domain.GuildRanking
	calls   int
	err     error
}

func (m *mockReader) GetGuildRankingFromDb(_ context.Context, guild string, top int) (domain.GuildRanking, error) {
	if m.err != nil {
		return domain.GuildRanking{}, m.err
	}
	i := min(m.calls, len(m.results)-1)
	m.calls++
	r := m.results[i]
	r.Guild, r.Top, r.Source = guild, top, domain.RankingSourceDB
	return r, nil
}

type mockBuilder struct {
	got   *ranking.SnapshotOptions
	err   error
	calls int
}

func (m *mockBuilder) BuildGuildSnapshot(_ context.Context, opts ranking.SnapshotOptions) (domain.GuildRanking, error) {
	m.calls++
	m.got = &opts
	if m.err != nil {
		return domain.GuildRanking{}, m.err
	}
	return domain.GuildRanking{Guild: opts.Guild, Source: domain.RankingSourceSnapshot, Members: []domain.GuildMember{{Rank: 1, Nickname: "snap"}}}, nil
}

type mockIndexer struct {
	ids        []string
	pollErr    error
	summary    indexer.ProcessSummary
	processErr error
	polled     *indexer.PollOptions
	processed  []string
}

func (m *mockIndexer) PollLatestPages(_ context.Context, opts indexer.PollOptions) (indexer.PollResult, error) {
	m.polled = &opts
	if m.pollErr != nil {
		return indexer.PollResult{}, m.pollErr
	}
	return indexer.PollResult{IDs: m.ids, Elapsed: 1500 * time.Millisecond}, nil
}

func (m *mockIndexer) ProcessNewPosts(_ context.Context, ids []string, _ string) (indexer.ProcessSummary, error) {
	m.processed = ids
	return m.summary, m.processErr
}

func members(n int) []domain.GuildMember {
	out := make([]domain.GuildMember, n)
	for i := range out {
		out[i] = domain.GuildMember{Rank: i + 1, Nickname: "m"}
	}
	return out
}

func TestRanking_GetRanking_ServesStoreFirst(t *testing.T) {
	reader := &mockReader{results: []domain.GuildRanking{{Members: members(2)}}}
	builder := &mockBuilder{}
	uc := NewRankingUsecase(reader, builder, &mockIndexer{}, RankingDefaults{Guild: "항마압축파"}, logger.Discard())

	out, err := uc.GetRanking(context.Background(), RankingQuery{FallbackPages: -1})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Source != domain.RankingSourceDB {
		t.Fatalf("expected db source, got %q", out.Source)
	}
	if out.Guild != "항마압축파" || out.Top != 100 {
		t.Fatalf("defaults not applied: guild=%q top=%d", out.Guild, out.Top)
	}
	if builder.calls != 0 {
		t.Fatalf("snapshot should not run when the store has members")
	}
}

func TestRanking_GetRanking_DebugSeedsThenRereads(t *testing.T) {
	reader := &mockReader{results: []domain.GuildRanking{{}, {Members: members(1)}}}
	ix := &mockIndexer{ids: []string{"10", "11"}, summary: indexer.ProcessSummary{Processed: 2, Matched: 1}}
	builder := &mockBuilder{}
	uc := NewRankingUsecase(reader, builder, ix, RankingDefaults{Guild: "g", Pages: 3}, logger.Discard())

	out, err := uc.GetRanking(context.Background(), RankingQuery{Debug: true, FallbackPages: -1})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ix.polled == nil || ix.polled.Pages != 3 || ix.polled.FallbackPages != 3 {
		t.Fatalf("unexpected poll options: %+v", ix.polled)
	}
	if len(ix.processed) != 2 {
		t.Fatalf("expected polled ids to be processed, got %v", ix.processed)
	}
	if out.Source != domain.RankingSourceDB || len(out.Members) != 1 {
		t.Fatalf("expected seeded store result, got %+v", out)
	}
	if builder.calls != 0 {
		t.Fatalf("snapshot should not run after a successful seed")
	}
}

func TestRanking_GetRanking_FallsBackToSnapshot(t *testing.T) {
	reader := &mockReader{results: []domain.GuildRanking{{}}}
	builder := &mockBuilder{}
	uc := NewRankingUsecase(reader, builder, &mockIndexer{}, RankingDefaults{Guild: "g"}, logger.Discard())

	out, err := uc.GetRanking(context.Background(), RankingQuery{Top: 10, Budget: 3 * time.Second, FallbackPages: 1})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Source != domain.RankingSourceSnapshot {
		t.Fatalf("expected snapshot source, got %q", out.Source)
	}
	if builder.got.Top != 10 || builder.got.Budget != 3*time.Second || builder.got.FallbackPages != 1 {
		t.Fatalf("query not forwarded: %+v", builder.got)
	}
}

func TestRanking_GetRanking_InvalidInput(t *testing.T) {
	uc := NewRankingUsecase(&mockReader{results: []domain.GuildRanking{{}}}, &mockBuilder{}, nil, RankingDefaults{Guild: "g"}, logger.Discard())

	for _, q := range []RankingQuery{{Top: -1}, {Top: maxTop + 1}, {Pages: maxPages + 1}, {Budget: -time.Second}} {
		if _, err := uc.GetRanking(context.Background(), q); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %+v, got %v", q, err)
		}
	}

	noGuild := NewRankingUsecase(&mockReader{results: []domain.GuildRanking{{}}}, nil, nil, RankingDefaults{}, logger.Discard())
	if _, err := noGuild.GetRanking(context.Background(), RankingQuery{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without a guild, got %v", err)
	}
}

func TestRanking_GetRanking_StoreError(t *testing.T) {
	uc := NewRankingUsecase(&mockReader{err: errors.New("db down")}, &mockBuilder{}, nil, RankingDefaults{Guild: "g"}, logger.Discard())
	if _, err := uc.GetRanking(context.Background(), RankingQuery{}); err == nil {
		t.Fatalf("expected error")
	}
}

type runLog struct {
	level, msg string
}

type mockRuns struct {
	mu       sync.Mutex
	id       uuid.UUID
	startErr error
	kind     string
	status   string
	counters repository.RunCounters
	logs     []runLog
}

func (m *mockRuns) Start(_ context.Context, kind string) (uuid.UUID, error) {
	m.kind = kind
	if m.startErr != nil {
		return uuid.Nil, m.startErr
	}
	m.id = uuid.New()
	return m.id, nil
}

func (m *mockRuns) Finish(_ context.Context, _ uuid.UUID, status string, c repository.RunCounters) error {
	m.status, m.counters = status, c
	return nil
}

func (m *mockRuns) Log(_ context.Context, _ uuid.UUID, level, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, runLog{level, msg})
	return nil
}

type event struct {
	name, a, b string
}

type mockNotifier struct {
	events []event
}

func (m *mockNotifier) RankingUpdated(guild, source string) {
	m.events = append(m.events, event{"ranking_updated", guild, source})
}

func (m *mockNotifier) PipelineFinished(kind, _ string, status string) {
	m.events = append(m.events, event{"pipeline_finished", kind, status})
}

func TestPipeline_Poll_RecordsPartialRun(t *testing.T) {
	ix := &mockIndexer{
		ids: []string{"1", "2", "3"},
		summary: indexer.ProcessSummary{
			Processed: 3, Matched: 1, NotMatched: 2,
			Failures: []domain.Failure{{ID: "2", Reason: "timeout"}},
		},
	}
	runs := &mockRuns{}
	notes := &mockNotifier{}
	uc := NewPipelineUsecase(PipelineDeps{Indexer: ix, Runs: runs, Notifier: notes}, "항마압축파", logger.Discard())

	out, err := uc.Poll(context.Background(), PollInput{Pages: 2, FallbackPages: 1})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.RunID != runs.id || out.IDsFound != 3 || out.ElapsedMs != 1500 {
		t.Fatalf("unexpected output: %+v", out)
	}
	if runs.kind != domain.RunKindPoll || runs.status != repository.RunStatusPartial {
		t.Fatalf("unexpected run: kind=%q status=%q", runs.kind, runs.status)
	}
	if runs.counters != (repository.RunCounters{Processed: 3, Matched: 1, Failed: 1}) {
		t.Fatalf("unexpected counters: %+v", runs.counters)
	}
	if len(runs.logs) != 1 || runs.logs[0].level != repository.LogLevelError || runs.logs[0].msg != "2: timeout" {
		t.Fatalf("unexpected run logs: %+v", runs.logs)
	}
	if len(notes.events) != 2 || notes.events[1] != (event{"ranking_updated", "항마압축파", domain.RunKindPoll}) {
		t.Fatalf("unexpected events: %+v", notes.events)
	}
}

func TestPipeline_Poll_ListFailureFailsRun(t *testing.T) {
	runs := &mockRuns{}
	notes := &mockNotifier{}
	uc := NewPipelineUsecase(PipelineDeps{Indexer: &mockIndexer{pollErr: errors.New("list 502")}, Runs: runs, Notifier: notes}, "g", logger.Discard())

	if _, err := uc.Poll(context.Background(), PollInput{Pages: 1}); err == nil {
		t.Fatalf("expected error")
	}
	if runs.status != repository.RunStatusFailed {
		t.Fatalf("expected failed run, got %q", runs.status)
	}
	if len(runs.logs) != 1 || runs.logs[0].msg != "list 502" {
		t.Fatalf("expected the batch error to be logged, got %+v", runs.logs)
	}
	if len(notes.events) != 1 || notes.events[0].name != "pipeline_finished" {
		t.Fatalf("unexpected events: %+v", notes.events)
	}
}

func TestPipeline_RunBookkeepingFailureDoesNotFailBatch(t *testing.T) {
	runs := &mockRuns{startErr: errors.New("no table")}
	uc := NewPipelineUsecase(PipelineDeps{Indexer: &mockIndexer{}, Runs: runs}, "g", logger.Discard())

	out, err := uc.Poll(context.Background(), PollInput{Pages: 1})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.RunID != uuid.Nil {
		t.Fatalf("expected nil run id")
	}
	if runs.status != "" {
		t.Fatalf("finish must not run without a started run")
	}
}

type mockScanner struct {
	summary indexer.ScanSummary
	debug   indexer.ScanDebug
}

func (m mockScanner) ScanProfileRange(context.Context, int, int, string) (indexer.ScanSummary, error) {
	return m.summary, nil
}

func (m mockScanner) ScanProfileRangeDebug(context.Context, int, int, string) (indexer.ScanDebug, error) {
	return m.debug, nil
}

func TestPipeline_Scan(t *testing.T) {
	runs := &mockRuns{}
	sc := mockScanner{
		summary: indexer.ScanSummary{StartID: 100, Scanned: 5, Matched: 2, Failures: []domain.Failure{}},
		debug: indexer.ScanDebug{Details: []indexer.ScanDetail{
			{ID: 1, Exists: true, Matched: true},
			{ID: 2, Skipped: true},
			{ID: 3},
		}},
	}
	uc := NewPipelineUsecase(PipelineDeps{Scanner: sc, Runs: runs}, "g", logger.Discard())

	out, err := uc.Scan(context.Background(), ScanInput{StartID: 100, Count: 5})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Summary == nil || out.Debug != nil || runs.status != repository.RunStatusSuccess {
		t.Fatalf("unexpected scan output: %+v status=%q", out, runs.status)
	}

	out, err = uc.Scan(context.Background(), ScanInput{StartID: 1, Count: 3, Debug: true})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Debug == nil || runs.counters != (repository.RunCounters{Processed: 2, Matched: 1}) {
		t.Fatalf("unexpected debug counters: %+v", runs.counters)
	}

	if _, err := uc.Scan(context.Background(), ScanInput{StartID: 1, Count: 0}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

type mockRefresher struct {
	summary indexer.RefreshSummary
	err     error
}

func (m mockRefresher) RefreshMembers(context.Context, string) (indexer.RefreshSummary, error) {
	return m.summary, m.err
}

func TestPipeline_Refresh(t *testing.T) {
	runs := &mockRuns{}
	notes := &mockNotifier{}
	rf := mockRefresher{summary: indexer.RefreshSummary{Total: 3, Success: 3, Failures: []domain.Failure{}}}
	uc := NewPipelineUsecase(PipelineDeps{Refresher: rf, Runs: runs, Notifier: notes}, "g", logger.Discard())

	out, err := uc.Refresh(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Summary.Success != 3 || runs.kind != domain.RunKindRefresh || runs.status != repository.RunStatusSuccess {
		t.Fatalf("unexpected refresh: %+v kind=%q status=%q", out, runs.kind, runs.status)
	}
	if len(notes.events) != 2 {
		t.Fatalf("expected finished and ranking events, got %+v", notes.events)
	}
}

func TestPipeline_Snapshot(t *testing.T) {
	runs := &mockRuns{}
	builder := &mockBuilder{}
	uc := NewPipelineUsecase(PipelineDeps{Builder: builder, Runs: runs}, "g", logger.Discard())

	out, err := uc.Snapshot(context.Background(), RankingQuery{Top: 5, FallbackPages: -1})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if builder.got.Guild != "g" || len(out.Ranking.Members) != 1 {
		t.Fatalf("unexpected snapshot: %+v", out)
	}
	if runs.kind != domain.RunKindSnapshot || runs.counters.Processed != 1 {
		t.Fatalf("unexpected run: %+v", runs)
	}
}

type mockStatusRepo struct {
	runs map[string]*repository.RunSummary
	err  error
}

func (m mockStatusRepo) GetLatestRun(_ context.Context, kind string) (*repository.RunSummary, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.runs[kind], nil
}

type mockCounts struct {
	authors int
	ledger  map[repository.LedgerKind]int
	err     error
}

func (m mockCounts) CountAuthors(context.Context) (int, error) { return m.authors, m.err }

func (m mockCounts) Count(_ context.Context, kind repository.LedgerKind) (int, error) {
	return m.ledger[kind], m.err
}

type mockPing struct{ err error }

func (m mockPing) Ping(context.Context) error { return m.err }

type mockAvail bool

func (m mockAvail) Available() bool { return bool(m) }

func TestPipelineStatus_GetStatus(t *testing.T) {
	finished := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	id := uuid.New()
	counts := mockCounts{authors: 42, ledger: map[repository.LedgerKind]int{repository.LedgerPosts: 7, repository.LedgerProfiles: 9}}
	uc := NewPipelineStatusUsecase(PipelineStatusDeps{
		Runs: mockStatusRepo{runs: map[string]*repository.RunSummary{
			domain.RunKindPoll: {ID: id, Kind: domain.RunKindPoll, Status: repository.RunStatusPartial, StartedAt: finished.Add(-time.Minute), FinishedAt: &finished, Processed: 10, Errors: 2},
		}},
		Authors: counts,
		Ledger:  counts,
		DB:      mockPing{},
		Cache:   mockAvail(true),
	}, logger.Discard())

	data, err := uc.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	poll := data.Runs[domain.RunKindPoll]
	if poll == nil || poll.RunID != id.String() || poll.Errors != 2 || poll.Status != repository.RunStatusPartial {
		t.Fatalf("unexpected poll run: %+v", poll)
	}
	if v, ok := data.Runs[domain.RunKindScan]; !ok || v != nil {
		t.Fatalf("expected scan entry without a run, got %+v (present=%v)", v, ok)
	}
	if data.Authors != 42 || data.Ledger.PostsChecked != 7 || data.Ledger.ProfilesChecked != 9 {
		t.Fatalf("unexpected counts: %+v", data)
	}
	if !data.CacheAvailable || !data.DatabaseHealthy {
		t.Fatalf("expected healthy dependencies")
	}
}

func TestPipelineStatus_StepFailuresLeaveZeroValues(t *testing.T) {
	uc := NewPipelineStatusUsecase(PipelineStatusDeps{
		Runs:    mockStatusRepo{err: errors.New("boom")},
		Authors: mockCounts{err: errors.New("boom")},
		DB:      mockPing{err: errors.New("down")},
		Cache:   mockAvail(false),
	}, logger.Discard())

	data, err := uc.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("status must not fail on step errors: %v", err)
	}
	if len(data.Runs) != 0 || data.Authors != 0 || data.DatabaseHealthy || data.CacheAvailable {
		t.Fatalf("unexpected data: %+v", data)
	}
	if data.LastUpdated.IsZero() {
		t.Fatalf("expected last_updated")
	}
}
