package repository

import (
	"context"
	"database/sql"
	"time"

	"guild-ranker/internal/database"

	"github.com/google/uuid"
)

// RunSummary is the latest scrape run of one kind.
type RunSummary struct {
	ID         uuid.UUID
	Kind       string
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
	Processed  int
	Matched    int
	Failed     int
	Errors     int
}

type PipelineStatusRepository interface {
	GetLatestRun(ctx context.Context, kind string) (*RunSummary, error)
}

type PostgresPipelineStatusRepository struct {
	db database.DB
}

func NewPostgresPipelineStatusRepository(db database.DB) *PostgresPipelineStatusRepository {
	return &PostgresPipelineStatusRepository{db: db}
}

// GetLatestRun returns nil when no run of kind has been recorded.
func (r *PostgresPipelineStatusRepository) GetLatestRun(ctx context.Context, kind string) (*RunSummary, error) {
	var out RunSummary
	var finished sql.NullTime

	row := r.db.QueryRow(ctx,
		`SELECT sr.id, sr.kind, sr.status, sr.started_at, sr.finished_at, sr.processed, sr.matched, sr.failed,
			(SELECT COALESCE(COUNT(1), 0) FROM scrape_logs sl WHERE sl.scrape_run_id = sr.id AND sl.level = 'error')
		 FROM scrape_runs sr
		 WHERE sr.kind = $1
		 ORDER BY sr.started_at DESC NULLS LAST
		 LIMIT 1`,
		kind,
	)
	if err := row.Scan(&out.ID, &out.Kind, &out.Status, &out.StartedAt, &finished, &out.Processed, &out.Matched, &out.Failed, &out.Errors); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	out.StartedAt = out.StartedAt.UTC()
	out.FinishedAt = timePtr(finished)
	return &out, nil
}
