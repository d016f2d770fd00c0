package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"guild-ranker/internal/domain"
	"guild-ranker/internal/indexer"
	"guild-ranker/internal/ranking"

	"github.com/sirupsen/logrus"
)

const (
	maxTop   = 1000
	maxPages = 50
)

// RankingQuery carries the ranking request. Zero numeric fields take the
// configured defaults; FallbackPages below zero does as well.
type RankingQuery struct {
	Guild         string
	Top           int
	Pages         int
	Debug         bool
	Budget        time.Duration
	FallbackPages int
}

type RankingUsecase interface {
	GetRanking(ctx context.Context, q RankingQuery) (domain.GuildRanking, error)
	GetSnapshot(ctx context.Context, q RankingQuery) (domain.GuildRanking, error)
}

type rankingReader interface {
	GetGuildRankingFromDb(ctx context.Context, guildFilter string, top int) (domain.GuildRanking, error)
}

type snapshotBuilder interface {
	BuildGuildSnapshot(ctx context.Context, opts ranking.SnapshotOptions) (domain.GuildRanking, error)
}

type postIndexer interface {
	PollLatestPages(ctx context.Context, opts indexer.PollOptions) (indexer.PollResult, error)
	ProcessNewPosts(ctx context.Context, ids []string, guildFilter string) (indexer.ProcessSummary, error)
}

type RankingDefaults struct {
	Guild string
	Top   int
	Pages int
}

type Ranking struct {
	reader   rankingReader
	builder  snapshotBuilder
	indexer  postIndexer
	defaults RankingDefaults
	log      logrus.FieldLogger
}

func NewRankingUsecase(reader rankingReader, builder snapshotBuilder, ix postIndexer, defaults RankingDefaults, logger logrus.FieldLogger) *Ranking {
	if defaults.Top <= 0 {
		defaults.Top = 100
	}
	if defaults.Pages <= 0 {
		defaults.Pages = 5
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Ranking{reader: reader, builder: builder, indexer: ix, defaults: defaults, log: logger}
}

func (u *Ranking) normalize(q RankingQuery) (RankingQuery, error) {
	q.Guild = strings.TrimSpace(q.Guild)
	if q.Guild == "" {
		q.Guild = u.defaults.Guild
	}
	if q.Guild == "" {
		return q, fmt.Errorf("%w: guild is required", ErrInvalidInput)
	}
	if q.Top < 0 || q.Top > maxTop {
		return q, fmt.Errorf("%w: top must be between 1 and %d", ErrInvalidInput, maxTop)
	}
	if q.Pages < 0 || q.Pages > maxPages {
		return q, fmt.Errorf("%w: pages must be between 1 and %d", ErrInvalidInput, maxPages)
	}
	if q.Budget < 0 {
		return q, fmt.Errorf("%w: budget must not be negative", ErrInvalidInput)
	}
	if q.Top == 0 {
		q.Top = u.defaults.Top
	}
	if q.Pages == 0 {
		q.Pages = u.defaults.Pages
	}
	return q, nil
}

func (q RankingQuery) snapshotOptions() ranking.SnapshotOptions {
	return ranking.SnapshotOptions{
		Guild:         q.Guild,
		Pages:         q.Pages,
		Top:           q.Top,
		Debug:         q.Debug,
		Budget:        q.Budget,
		FallbackPages: q.FallbackPages,
	}
}

// GetRanking serves stored authors first. An empty store in debug mode is
// seeded by one poll and process pass before reading again; a store that is
// still empty falls back to a live snapshot.
func (u *Ranking) GetRanking(ctx context.Context, q RankingQuery) (domain.GuildRanking, error) {
	q, err := u.normalize(q)
	if err != nil {
		return domain.GuildRanking{}, err
	}

	out, err := u.reader.GetGuildRankingFromDb(ctx, q.Guild, q.Top)
	if err != nil {
		return domain.GuildRanking{}, fmt.Errorf("read ranking: %w", err)
	}
	if len(out.Members) > 0 {
		return out, nil
	}

	if q.Debug && u.indexer != nil {
		u.seed(ctx, q)
		out, err = u.reader.GetGuildRankingFromDb(ctx, q.Guild, q.Top)
		if err != nil {
			return domain.GuildRanking{}, fmt.Errorf("read ranking after seed: %w", err)
		}
		if len(out.Members) > 0 {
			return out, nil
		}
	}

	if u.builder == nil {
		return out, nil
	}
	return u.builder.BuildGuildSnapshot(ctx, q.snapshotOptions())
}

func (u *Ranking) seed(ctx context.Context, q RankingQuery) {
	fallback := q.FallbackPages
	if fallback < 0 {
		fallback = q.Pages
	}
	res, err := u.indexer.PollLatestPages(ctx, indexer.PollOptions{Pages: q.Pages, FallbackPages: fallback, StartPage: 1})
	if err != nil {
		u.log.WithError(err).WithField("guild", q.Guild).Warn("[Ranking] seed poll failed")
		return
	}
	sum, err := u.indexer.ProcessNewPosts(ctx, res.IDs, q.Guild)
	if err != nil {
		u.log.WithError(err).WithField("guild", q.Guild).Warn("[Ranking] seed process interrupted")
	}
	u.log.WithFields(logrus.Fields{
		"guild": q.Guild, "ids": len(res.IDs), "processed": sum.Processed, "matched": sum.Matched,
	}).Info("[Ranking] store seeded")
}

func (u *Ranking) GetSnapshot(ctx context.Context, q RankingQuery) (domain.GuildRanking, error) {
	q, err := u.normalize(q)
	if err != nil {
		return domain.GuildRanking{}, err
	}
	if u.builder == nil {
		return domain.GuildRanking{}, fmt.Errorf("%w: snapshot builder not configured", ErrInternal)
	}
	return u.builder.BuildGuildSnapshot(ctx, q.snapshotOptions())
}
