package usecase

import (
	"context"
	"sync"
	"time"

	"guild-ranker/internal/delivery/http/dto"
	"guild-ranker/internal/domain"
	"guild-ranker/internal/repository"

	"github.com/sirupsen/logrus"
)

type PipelineStatusUsecase interface {
	GetStatus(ctx context.Context) (dto.PipelineStatusResponseData, error)
}

type authorCounter interface {
	CountAuthors(ctx context.Context) (int, error)
}

type ledgerCounter interface {
	Count(ctx context.Context, kind repository.LedgerKind) (int, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type availability interface {
	Available() bool
}

var runKinds = []string{domain.RunKindPoll, domain.RunKindScan, domain.RunKindSnapshot, domain.RunKindRefresh}

type PipelineStatusDeps struct {
	Runs    repository.PipelineStatusRepository
	Authors authorCounter
	Ledger  ledgerCounter
	DB      pinger
	Cache   availability
}

type PipelineStatus struct {
	deps PipelineStatusDeps
	log  logrus.FieldLogger
	now  func() time.Time
}

func NewPipelineStatusUsecase(deps PipelineStatusDeps, logger logrus.FieldLogger) *PipelineStatus {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PipelineStatus{deps: deps, log: logger, now: time.Now}
}

// GetStatus gathers every metric in parallel. A failing step is logged and
// leaves its field at the zero value.
func (u *PipelineStatus) GetStatus(ctx context.Context) (dto.PipelineStatusResponseData, error) {
	data := dto.PipelineStatusResponseData{Runs: map[string]*dto.PipelineRunStatus{}}
	if u == nil {
		data.LastUpdated = time.Now().UTC()
		return data, nil
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	if u.deps.Runs != nil {
		for _, kind := range runKinds {
			wg.Add(1)
			go func() {
				defer wg.Done()
				run, err := u.deps.Runs.GetLatestRun(ctx, kind)
				if err != nil {
					u.log.WithError(err).WithField("kind", kind).Warn("[PipelineStatus] latest run failed")
					return
				}
				mu.Lock()
				data.Runs[kind] = toRunStatus(run)
				mu.Unlock()
			}()
		}
	}

	if u.deps.Authors != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := u.deps.Authors.CountAuthors(ctx)
			if err != nil {
				u.log.WithError(err).Warn("[PipelineStatus] author count failed")
				return
			}
			mu.Lock()
			data.Authors = n
			mu.Unlock()
		}()
	}

	if u.deps.Ledger != nil {
		for _, kind := range []repository.LedgerKind{repository.LedgerPosts, repository.LedgerProfiles} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				n, err := u.deps.Ledger.Count(ctx, kind)
				if err != nil {
					u.log.WithError(err).WithField("ledger", kind).Warn("[PipelineStatus] ledger count failed")
					return
				}
				mu.Lock()
				if kind == repository.LedgerPosts {
					data.Ledger.PostsChecked = n
				} else {
					data.Ledger.ProfilesChecked = n
				}
				mu.Unlock()
			}()
		}
	}

	if u.deps.DB != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			err := u.deps.DB.Ping(pingCtx)
			mu.Lock()
			data.DatabaseHealthy = err == nil
			mu.Unlock()
		}()
	}

	wg.Wait()

	if u.deps.Cache != nil {
		data.CacheAvailable = u.deps.Cache.Available()
	}
	data.LastUpdated = u.now().UTC()
	return data, nil
}

func toRunStatus(r *repository.RunSummary) *dto.PipelineRunStatus {
	if r == nil {
		return nil
	}
	return &dto.PipelineRunStatus{
		RunID:      r.ID.String(),
		Status:     r.Status,
		StartedAt:  r.StartedAt.UTC(),
		FinishedAt: r.FinishedAt,
		Processed:  r.Processed,
		Matched:    r.Matched,
		Failed:     r.Failed,
		Errors:     r.Errors,
	}
}
