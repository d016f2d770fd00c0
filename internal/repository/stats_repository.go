package repository

import (
	"context"
	"time"

	"guild-ranker/internal/database"
)

type StatsRepository interface {
	SnapshotDaily(ctx context.Context, date time.Time) (int64, error)
	RecalculateDeltas(ctx context.Context) (int, error)
}

type PostgresStatsRepository struct {
	db database.DB
}

func NewPostgresStatsRepository(db database.DB) *PostgresStatsRepository {
	return &PostgresStatsRepository{db: db}
}

// SnapshotDaily writes one author_stats_daily row per author for date.
// Running it twice on the same date overwrites that day's rows.
func (r *PostgresStatsRepository) SnapshotDaily(ctx context.Context, date time.Time) (int64, error) {
	day := date.UTC().Format(time.DateOnly)
	var affected int64
	err := database.InTx(ctx, r.db, func(tx database.Tx) error {
		n, err := tx.Exec(ctx,
			`INSERT INTO author_stats_daily (author_key, date, combat_power, delta, snapshot_at)
			 SELECT a.author_key, $1::date, a.combat_power,
				a.combat_power - (
					SELECT s.combat_power FROM author_stats_daily s
					WHERE s.author_key = a.author_key AND s.date < $1::date
					ORDER BY s.date DESC LIMIT 1
				),
				now()
			 FROM authors a
			 ON CONFLICT (author_key, date) DO UPDATE SET
				combat_power = EXCLUDED.combat_power,
				delta = EXCLUDED.delta,
				snapshot_at = EXCLUDED.snapshot_at`,
			day,
		)
		if err != nil {
			return err
		}
		affected = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

func (r *PostgresStatsRepository) RecalculateDeltas(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT calculate_combat_power_delta()`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
