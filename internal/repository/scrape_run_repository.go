package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"guild-ranker/internal/database"

	"github.com/google/uuid"
)

const (
	RunStatusRunning  = "running"
	RunStatusSuccess  = "success"
	RunStatusPartial  = "partial"
	RunStatusFailed   = "failed"
	LogLevelInfo      = "info"
	LogLevelError     = "error"
	maxLogMessageSize = 2000
)

// RunCounters are the totals written when a run finishes.
type RunCounters struct {
	Processed int
	Matched   int
	Failed    int
}

type ScrapeRunRepository interface {
	Start(ctx context.Context, kind string) (uuid.UUID, error)
	Finish(ctx context.Context, runID uuid.UUID, status string, counters RunCounters) error
	Log(ctx context.Context, runID uuid.UUID, level, message string) error
}

type PostgresScrapeRunRepository struct {
	db database.DB
}

func NewPostgresScrapeRunRepository(db database.DB) *PostgresScrapeRunRepository {
	return &PostgresScrapeRunRepository{db: db}
}

func (r *PostgresScrapeRunRepository) Start(ctx context.Context, kind string) (uuid.UUID, error) {
	if r.db == nil {
		return uuid.Nil, fmt.Errorf("nil db")
	}
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return uuid.Nil, fmt.Errorf("empty run kind")
	}
	id := uuid.New()
	_, err := r.db.Exec(ctx,
		`INSERT INTO scrape_runs (id, kind, started_at, status) VALUES ($1, $2, $3, $4)`,
		id, kind, time.Now().UTC(), RunStatusRunning,
	)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *PostgresScrapeRunRepository) Finish(ctx context.Context, runID uuid.UUID, status string, counters RunCounters) error {
	if r.db == nil {
		return fmt.Errorf("nil db")
	}
	if runID == uuid.Nil {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`UPDATE scrape_runs SET finished_at = $2, status = $3, processed = $4, matched = $5, failed = $6 WHERE id = $1`,
		runID, time.Now().UTC(), strings.TrimSpace(status), counters.Processed, counters.Matched, counters.Failed,
	)
	return err
}

func (r *PostgresScrapeRunRepository) Log(ctx context.Context, runID uuid.UUID, level, message string) error {
	if r.db == nil {
		return fmt.Errorf("nil db")
	}
	if runID == uuid.Nil {
		return nil
	}
	level = strings.TrimSpace(level)
	if level == "" {
		level = LogLevelInfo
	}
	if len(message) > maxLogMessageSize {
		message = message[:maxLogMessageSize]
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO scrape_logs (id, scrape_run_id, level, message) VALUES ($1, $2, $3, $4)`,
		uuid.New(), runID, level, strings.ToValidUTF8(message, ""),
	)
	return err
}
