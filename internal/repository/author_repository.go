package repository

import (
	"context"
	"database/sql"
	"strings"

	"guild-ranker/internal/database"
	"guild-ranker/internal/domain"
)

type AuthorRepository interface {
	UpsertFromPost(ctx context.Context, a domain.Author, postID string) error
	UpsertFromProfile(ctx context.Context, a domain.Author, userID string) error
	ListGuildRanking(ctx context.Context, guildFilter string, top int) ([]domain.Author, error)
	ListRefreshable(ctx context.Context, guildFilter string) ([]domain.Author, error)
	UpdateStats(ctx context.Context, authorKey string, level int, combatPower int64, adventureLevel int) error
	CountAuthors(ctx context.Context) (int, error)
}

type PostgresAuthorRepository struct {
	db database.DB
}

func NewPostgresAuthorRepository(db database.DB) *PostgresAuthorRepository {
	return &PostgresAuthorRepository{db: db}
}

const authorColumns = `author_key, COALESCE(server, ''), nickname, COALESCE(job, ''), level, combat_power,
	COALESCE(guild, ''), COALESCE(adventure_name, ''), COALESCE(adventure_level, 0), COALESCE(avatar_url, ''),
	COALESCE(user_id, ''), COALESCE(last_post_id, ''), previous_combat_power, combat_power_delta, last_checked_at, updated_at`

// UpsertFromPost keeps stored values for any field the new scrape left empty.
func (r *PostgresAuthorRepository) UpsertFromPost(ctx context.Context, a domain.Author, postID string) error {
	key := strings.TrimSpace(a.Key)
	if key == "" {
		return ErrNoAuthorKey
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO authors (author_key, server, nickname, job, level, combat_power, guild, adventure_name, adventure_level, avatar_url, last_post_id, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		 ON CONFLICT (author_key) DO UPDATE SET
			server = COALESCE(EXCLUDED.server, authors.server),
			nickname = COALESCE(NULLIF(EXCLUDED.nickname, ''), authors.nickname),
			job = COALESCE(EXCLUDED.job, authors.job),
			level = CASE WHEN EXCLUDED.level > 0 THEN EXCLUDED.level ELSE authors.level END,
			combat_power = CASE WHEN EXCLUDED.combat_power > 0 THEN EXCLUDED.combat_power ELSE authors.combat_power END,
			guild = COALESCE(EXCLUDED.guild, authors.guild),
			adventure_name = COALESCE(EXCLUDED.adventure_name, authors.adventure_name),
			adventure_level = COALESCE(EXCLUDED.adventure_level, authors.adventure_level),
			avatar_url = COALESCE(EXCLUDED.avatar_url, authors.avatar_url),
			last_post_id = COALESCE(EXCLUDED.last_post_id, authors.last_post_id),
			updated_at = now()`,
		key, nullString(a.Server), strings.TrimSpace(a.Nickname), nullString(a.Job), a.Level, a.CombatPower,
		nullString(a.Guild), nullString(a.AdventureName), nullInt(a.AdventureLevel), nullString(a.AvatarURL), nullString(postID),
	)
	return err
}

// UpsertFromProfile treats the profile page as authoritative and overwrites
// every column, including with nulls.
func (r *PostgresAuthorRepository) UpsertFromProfile(ctx context.Context, a domain.Author, userID string) error {
	key := strings.TrimSpace(a.Key)
	if key == "" {
		return ErrNoAuthorKey
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO authors (author_key, server, nickname, job, level, combat_power, guild, adventure_name, adventure_level, avatar_url, user_id, last_checked_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		 ON CONFLICT (author_key) DO UPDATE SET
			server = EXCLUDED.server,
			nickname = EXCLUDED.nickname,
			job = EXCLUDED.job,
			level = EXCLUDED.level,
			combat_power = EXCLUDED.combat_power,
			guild = EXCLUDED.guild,
			adventure_name = EXCLUDED.adventure_name,
			adventure_level = EXCLUDED.adventure_level,
			avatar_url = EXCLUDED.avatar_url,
			user_id = EXCLUDED.user_id,
			last_checked_at = now(),
			updated_at = now()`,
		key, nullString(a.Server), strings.TrimSpace(a.Nickname), nullString(a.Job), a.Level, a.CombatPower,
		nullString(a.Guild), nullString(a.AdventureName), nullInt(a.AdventureLevel), nullString(a.AvatarURL), nullString(userID),
	)
	return err
}

func (r *PostgresAuthorRepository) ListGuildRanking(ctx context.Context, guildFilter string, top int) ([]domain.Author, error) {
	if top <= 0 {
		top = 100
	}
	if top > 1000 {
		top = 1000
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+authorColumns+`
		 FROM authors
		 WHERE guild ILIKE $1 ESCAPE '\'
		 ORDER BY combat_power DESC, level DESC, nickname ASC
		 LIMIT $2`,
		containsPattern(guildFilter), top,
	)
	if err != nil {
		return nil, err
	}
	return collectAuthors(rows)
}

func (r *PostgresAuthorRepository) ListRefreshable(ctx context.Context, guildFilter string) ([]domain.Author, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+authorColumns+`
		 FROM authors
		 WHERE guild ILIKE $1 ESCAPE '\'
		   AND user_id IS NOT NULL AND user_id <> ''
		 ORDER BY combat_power DESC`,
		containsPattern(guildFilter),
	)
	if err != nil {
		return nil, err
	}
	return collectAuthors(rows)
}

func (r *PostgresAuthorRepository) UpdateStats(ctx context.Context, authorKey string, level int, combatPower int64, adventureLevel int) error {
	_, err := r.db.Exec(ctx,
		`UPDATE authors
		 SET level = $2, combat_power = $3, adventure_level = COALESCE($4, adventure_level), last_checked_at = now(), updated_at = now()
		 WHERE author_key = $1`,
		authorKey, level, combatPower, nullInt(adventureLevel),
	)
	return err
}

func (r *PostgresAuthorRepository) CountAuthors(ctx context.Context) (int, error) {
	var c int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(1) FROM authors`).Scan(&c); err != nil {
		return 0, err
	}
	return c, nil
}

func collectAuthors(rows database.Rows) ([]domain.Author, error) {
	defer rows.Close()

	out := make([]domain.Author, 0)
	for rows.Next() {
		var a domain.Author
		var prev, delta sql.NullInt64
		var checked sql.NullTime
		if err := rows.Scan(
			&a.Key, &a.Server, &a.Nickname, &a.Job, &a.Level, &a.CombatPower,
			&a.Guild, &a.AdventureName, &a.AdventureLevel, &a.AvatarURL,
			&a.UserID, &a.LastPostID, &prev, &delta, &checked, &a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		a.PreviousCombatPower = int64Ptr(prev)
		a.CombatPowerDelta = int64Ptr(delta)
		a.LastCheckedAt = timePtr(checked)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
