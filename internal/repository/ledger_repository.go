package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"guild-ranker/internal/database"
)

// LedgerKind selects one of the recheck ledgers.
type LedgerKind string

const (
	LedgerPosts    LedgerKind = "posts"
	LedgerProfiles LedgerKind = "profiles"
)

func (k LedgerKind) table() (table, column string, err error) {
	switch k {
	case LedgerPosts:
		return "posts_checked", "post_id", nil
	case LedgerProfiles:
		return "profiles_checked", "user_id", nil
	default:
		return "", "", fmt.Errorf("unknown ledger kind %q", string(k))
	}
}

type LedgerRepository interface {
	RecentlyChecked(ctx context.Context, kind LedgerKind, id string, cooldown time.Duration) (bool, error)
	MarkChecked(ctx context.Context, kind LedgerKind, id string, status string) error
	Count(ctx context.Context, kind LedgerKind) (int, error)
}

type PostgresLedgerRepository struct {
	db  database.DB
	now func() time.Time
}

func NewPostgresLedgerRepository(db database.DB) *PostgresLedgerRepository {
	return &PostgresLedgerRepository{db: db, now: time.Now}
}

// WithClock replaces the clock used for cooldown comparisons.
func (r *PostgresLedgerRepository) WithClock(now func() time.Time) *PostgresLedgerRepository {
	if now != nil {
		r.now = now
	}
	return r
}

// RecentlyChecked reports whether id was checked less than cooldown ago.
// An entry exactly cooldown old is still recent.
func (r *PostgresLedgerRepository) RecentlyChecked(ctx context.Context, kind LedgerKind, id string, cooldown time.Duration) (bool, error) {
	table, column, err := kind.table()
	if err != nil {
		return false, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, nil
	}

	var checkedAt time.Time
	row := r.db.QueryRow(ctx, `SELECT checked_at FROM `+table+` WHERE `+column+` = $1`, id)
	if err := row.Scan(&checkedAt); err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return r.now().Sub(checkedAt) <= cooldown, nil
}

func (r *PostgresLedgerRepository) MarkChecked(ctx context.Context, kind LedgerKind, id string, status string) error {
	table, column, err := kind.table()
	if err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("empty %s", column)
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO `+table+` (`+column+`, status, checked_at) VALUES ($1, $2, $3)
		 ON CONFLICT (`+column+`) DO UPDATE SET status = EXCLUDED.status, checked_at = EXCLUDED.checked_at`,
		id, status, r.now().UTC(),
	)
	return err
}

func (r *PostgresLedgerRepository) Count(ctx context.Context, kind LedgerKind) (int, error) {
	table, _, err := kind.table()
	if err != nil {
		return 0, err
	}
	var c int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(1) FROM `+table).Scan(&c); err != nil {
		return 0, err
	}
	return c, nil
}
