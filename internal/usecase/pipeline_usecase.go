package usecase

import (
	"context"
	"fmt"
	"strings"

	"guild-ranker/internal/domain"
	"guild-ranker/internal/indexer"
	"guild-ranker/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type profileScanner interface {
	ScanProfileRange(ctx context.Context, start, count int, guildFilter string) (indexer.ScanSummary, error)
	ScanProfileRangeDebug(ctx context.Context, start, count int, guildFilter string) (indexer.ScanDebug, error)
}

type memberRefresher interface {
	RefreshMembers(ctx context.Context, guildFilter string) (indexer.RefreshSummary, error)
}

// EventNotifier pushes pipeline events to connected clients.
type EventNotifier interface {
	RankingUpdated(guild, source string)
	PipelineFinished(kind, runID, status string)
}

type PollInput struct {
	Pages         int
	FallbackPages int
	StartPage     int
	Guild         string
}

type PollOutput struct {
	RunID     uuid.UUID              `json:"runId"`
	IDsFound  int                    `json:"idsFound"`
	ListStats []domain.ListStats     `json:"listStats"`
	Summary   indexer.ProcessSummary `json:"summary"`
	ElapsedMs int64                  `json:"elapsedMs"`
}

type ScanInput struct {
	StartID int
	Count   int
	Guild   string
	Debug   bool
}

type ScanOutput struct {
	RunID   uuid.UUID            `json:"runId"`
	Summary *indexer.ScanSummary `json:"summary,omitempty"`
	Debug   *indexer.ScanDebug   `json:"debug,omitempty"`
}

type RefreshOutput struct {
	RunID   uuid.UUID              `json:"runId"`
	Summary indexer.RefreshSummary `json:"summary"`
}

type SnapshotOutput struct {
	RunID   uuid.UUID           `json:"runId"`
	Ranking domain.GuildRanking `json:"ranking"`
}

type PipelineUsecase interface {
	Poll(ctx context.Context, in PollInput) (PollOutput, error)
	Scan(ctx context.Context, in ScanInput) (ScanOutput, error)
	Refresh(ctx context.Context, guild string) (RefreshOutput, error)
	Snapshot(ctx context.Context, q RankingQuery) (SnapshotOutput, error)
}

const maxScanCount = 10000

// Pipeline runs the write-side batches and records each one as a scrape run.
type Pipeline struct {
	indexer   postIndexer
	scanner   profileScanner
	refresher memberRefresher
	builder   snapshotBuilder
	runs      repository.ScrapeRunRepository
	notifier  EventNotifier

	guild string
	log   logrus.FieldLogger
}

type PipelineDeps struct {
	Indexer   postIndexer
	Scanner   profileScanner
	Refresher memberRefresher
	Builder   snapshotBuilder
	Runs      repository.ScrapeRunRepository
	Notifier  EventNotifier
}

func NewPipelineUsecase(deps PipelineDeps, defaultGuild string, logger logrus.FieldLogger) *Pipeline {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Pipeline{
		indexer:   deps.Indexer,
		scanner:   deps.Scanner,
		refresher: deps.Refresher,
		builder:   deps.Builder,
		runs:      deps.Runs,
		notifier:  deps.Notifier,
		guild:     strings.TrimSpace(defaultGuild),
		log:       logger,
	}
}

func (u *Pipeline) guildOr(g string) string {
	if g = strings.TrimSpace(g); g != "" {
		return g
	}
	return u.guild
}

type runResult struct {
	counters repository.RunCounters
	failures []domain.Failure
}

// record wraps one batch in a scrape run. Bookkeeping failures are logged and
// never fail the batch itself.
func (u *Pipeline) record(ctx context.Context, kind string, fn func(ctx context.Context) (runResult, error)) (uuid.UUID, error) {
	log := u.log.WithField("kind", kind)
	bg := context.WithoutCancel(ctx)

	var runID uuid.UUID
	if u.runs != nil {
		id, err := u.runs.Start(bg, kind)
		if err != nil {
			log.WithError(err).Warn("[Pipeline] run start not recorded")
		} else {
			runID = id
			log = log.WithField("run_id", runID)
		}
	}

	res, err := fn(ctx)

	status := repository.RunStatusSuccess
	switch {
	case err != nil:
		status = repository.RunStatusFailed
	case len(res.failures) > 0:
		status = repository.RunStatusPartial
	}

	if u.runs != nil && runID != uuid.Nil {
		for _, f := range res.failures {
			if lerr := u.runs.Log(bg, runID, repository.LogLevelError, f.ID+": "+f.Reason); lerr != nil {
				log.WithError(lerr).Warn("[Pipeline] run log not recorded")
				break
			}
		}
		if err != nil {
			if lerr := u.runs.Log(bg, runID, repository.LogLevelError, err.Error()); lerr != nil {
				log.WithError(lerr).Warn("[Pipeline] run log not recorded")
			}
		}
		if ferr := u.runs.Finish(bg, runID, status, res.counters); ferr != nil {
			log.WithError(ferr).Warn("[Pipeline] run finish not recorded")
		}
	}

	entry := log.WithFields(logrus.Fields{
		"status": status, "processed": res.counters.Processed,
		"matched": res.counters.Matched, "failed": res.counters.Failed,
	})
	if err != nil {
		entry.WithError(err).Error("[Pipeline] run failed")
	} else {
		entry.Info("[Pipeline] run finished")
	}

	if u.notifier != nil {
		idStr := ""
		if runID != uuid.Nil {
			idStr = runID.String()
		}
		u.notifier.PipelineFinished(kind, idStr, status)
	}
	return runID, err
}

func (u *Pipeline) notifyRanking(guild, source string, matched int) {
	if u.notifier != nil && matched > 0 {
		u.notifier.RankingUpdated(guild, source)
	}
}

func (u *Pipeline) Poll(ctx context.Context, in PollInput) (PollOutput, error) {
	if u.indexer == nil {
		return PollOutput{}, fmt.Errorf("%w: indexer not configured", ErrInternal)
	}
	if in.Pages < 0 || in.Pages > maxPages || in.StartPage < 0 || in.FallbackPages < 0 {
		return PollOutput{}, fmt.Errorf("%w: pages must be between 1 and %d", ErrInvalidInput, maxPages)
	}
	guild := u.guildOr(in.Guild)
	out := PollOutput{ListStats: []domain.ListStats{}}

	runID, err := u.record(ctx, domain.RunKindPoll, func(ctx context.Context) (runResult, error) {
		res, err := u.indexer.PollLatestPages(ctx, indexer.PollOptions{Pages: in.Pages, FallbackPages: in.FallbackPages, StartPage: in.StartPage})
		for _, p := range res.Pages {
			out.ListStats = append(out.ListStats, p.Stats)
		}
		out.IDsFound = len(res.IDs)
		out.ElapsedMs = res.Elapsed.Milliseconds()
		if err != nil {
			return runResult{}, err
		}

		sum, err := u.indexer.ProcessNewPosts(ctx, res.IDs, guild)
		out.Summary = sum
		return runResult{
			counters: repository.RunCounters{Processed: sum.Processed, Matched: sum.Matched, Failed: len(sum.Failures)},
			failures: sum.Failures,
		}, err
	})
	out.RunID = runID
	if err != nil {
		return out, err
	}
	u.notifyRanking(guild, domain.RunKindPoll, out.Summary.Matched)
	return out, nil
}

func (u *Pipeline) Scan(ctx context.Context, in ScanInput) (ScanOutput, error) {
	if u.scanner == nil {
		return ScanOutput{}, fmt.Errorf("%w: scanner not configured", ErrInternal)
	}
	if in.StartID < 0 || in.Count <= 0 || in.Count > maxScanCount {
		return ScanOutput{}, fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidInput, maxScanCount)
	}
	guild := u.guildOr(in.Guild)
	var out ScanOutput
	matched := 0

	runID, err := u.record(ctx, domain.RunKindScan, func(ctx context.Context) (runResult, error) {
		if in.Debug {
			dbg, err := u.scanner.ScanProfileRangeDebug(ctx, in.StartID, in.Count, guild)
			out.Debug = &dbg
			var c repository.RunCounters
			for _, d := range dbg.Details {
				if d.Skipped {
					continue
				}
				c.Processed++
				if d.Matched {
					c.Matched++
				}
			}
			matched = c.Matched
			return runResult{counters: c}, err
		}

		sum, err := u.scanner.ScanProfileRange(ctx, in.StartID, in.Count, guild)
		out.Summary = &sum
		matched = sum.Matched
		return runResult{
			counters: repository.RunCounters{Processed: sum.Scanned - sum.Skipped, Matched: sum.Matched, Failed: len(sum.Failures)},
			failures: sum.Failures,
		}, err
	})
	out.RunID = runID
	if err != nil {
		return out, err
	}
	u.notifyRanking(guild, domain.RunKindScan, matched)
	return out, nil
}

func (u *Pipeline) Refresh(ctx context.Context, guild string) (RefreshOutput, error) {
	if u.refresher == nil {
		return RefreshOutput{}, fmt.Errorf("%w: refresher not configured", ErrInternal)
	}
	guild = u.guildOr(guild)
	var out RefreshOutput

	runID, err := u.record(ctx, domain.RunKindRefresh, func(ctx context.Context) (runResult, error) {
		sum, err := u.refresher.RefreshMembers(ctx, guild)
		out.Summary = sum
		return runResult{
			counters: repository.RunCounters{Processed: sum.Total, Matched: sum.Success, Failed: sum.Fail},
			failures: sum.Failures,
		}, err
	})
	out.RunID = runID
	if err != nil {
		return out, err
	}
	u.notifyRanking(guild, domain.RunKindRefresh, out.Summary.Success)
	return out, nil
}

// Snapshot builds a live ranking and records it as a run. Debug requests
// bypass the cache like any other snapshot.
func (u *Pipeline) Snapshot(ctx context.Context, q RankingQuery) (SnapshotOutput, error) {
	if u.builder == nil {
		return SnapshotOutput{}, fmt.Errorf("%w: snapshot builder not configured", ErrInternal)
	}
	if q.Top < 0 || q.Top > maxTop || q.Pages < 0 || q.Pages > maxPages {
		return SnapshotOutput{}, fmt.Errorf("%w: top or pages out of range", ErrInvalidInput)
	}
	q.Guild = u.guildOr(q.Guild)
	var out SnapshotOutput

	runID, err := u.record(ctx, domain.RunKindSnapshot, func(ctx context.Context) (runResult, error) {
		r, err := u.builder.BuildGuildSnapshot(ctx, q.snapshotOptions())
		out.Ranking = r
		return runResult{counters: repository.RunCounters{Processed: len(r.Members), Matched: len(r.Members)}}, err
	})
	out.RunID = runID
	if err != nil {
		return out, err
	}
	u.notifyRanking(q.Guild, domain.RunKindSnapshot, len(out.Ranking.Members))
	return out, nil
}
