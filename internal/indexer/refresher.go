package indexer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"guild-ranker/internal/domain"
	"guild-ranker/internal/infrastructure/cache"
	"guild-ranker/internal/repository"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type RefresherOptions struct {
	GuildFilter  string
	RefreshDelay time.Duration
	Cache        cache.JSONCache
	Logger       logrus.FieldLogger
	Now          func() time.Time
}

// MemberRefresher re-reads the profile of every stored member that has a
// user id, then snapshots the day's combat power and recomputes deltas.
type MemberRefresher struct {
	profiles ProfileSource
	authors  repository.AuthorRepository
	stats    repository.StatsRepository
	cache    cache.JSONCache

	guildFilter string
	limiter     *rate.Limiter
	now         func() time.Time
	log         logrus.FieldLogger
}

func NewMemberRefresher(profiles ProfileSource, authors repository.AuthorRepository, stats repository.StatsRepository, opts RefresherOptions) *MemberRefresher {
	if opts.RefreshDelay < 0 {
		opts.RefreshDelay = 0
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &MemberRefresher{
		profiles:    profiles,
		authors:     authors,
		stats:       stats,
		cache:       opts.Cache,
		guildFilter: strings.TrimSpace(opts.GuildFilter),
		limiter:     newThrottle(opts.RefreshDelay),
		now:         now,
		log:         log,
	}
}

type RefreshSummary struct {
	Total         int              `json:"total"`
	Success       int              `json:"success"`
	Fail          int              `json:"fail"`
	Snapshotted   int64            `json:"snapshotted"`
	DeltasUpdated int              `json:"deltasUpdated"`
	Failures      []domain.Failure `json:"failures"`
}

func (m *MemberRefresher) RefreshMembers(ctx context.Context, guildFilter string) (RefreshSummary, error) {
	filter := strings.TrimSpace(guildFilter)
	if filter == "" {
		filter = m.guildFilter
	}
	sum := RefreshSummary{Failures: []domain.Failure{}}

	members, err := m.authors.ListRefreshable(ctx, filter)
	if err != nil {
		return sum, fmt.Errorf("list members: %w", err)
	}
	sum.Total = len(members)

	for _, a := range members {
		if err := m.limiter.Wait(ctx); err != nil {
			return sum, err
		}
		if err := m.refreshOne(ctx, a); err != nil {
			sum.Fail++
			sum.Failures = append(sum.Failures, domain.Failure{ID: a.UserID, Reason: err.Error()})
			m.log.WithFields(logrus.Fields{"user_id": a.UserID, "author": a.Key}).WithError(err).Warn("[Refresher] member failed")
			continue
		}
		sum.Success++
	}

	n, err := m.stats.SnapshotDaily(ctx, m.now())
	if err != nil {
		return sum, fmt.Errorf("snapshot daily stats: %w", err)
	}
	sum.Snapshotted = n

	d, err := m.stats.RecalculateDeltas(ctx)
	if err != nil {
		return sum, fmt.Errorf("recalculate deltas: %w", err)
	}
	sum.DeltasUpdated = d

	if err := cache.InvalidateSnapshots(ctx, m.cache); err != nil {
		m.log.WithError(err).Warn("[Refresher] snapshot cache invalidation failed")
	}
	m.log.WithFields(logrus.Fields{"total": sum.Total, "success": sum.Success, "fail": sum.Fail, "deltas": sum.DeltasUpdated}).Info("[Refresher] members refreshed")
	return sum, nil
}

func (m *MemberRefresher) refreshOne(ctx context.Context, a domain.Author) error {
	out, err := m.profiles.ScrapeProfile(ctx, a.UserID)
	if err != nil {
		return err
	}
	if !out.Exists() {
		return fmt.Errorf("profile %s", out.Kind)
	}
	p := out.Profile
	if p.CombatPower <= 0 && p.Level <= 0 {
		return fmt.Errorf("profile has no stats")
	}
	level, cp := p.Level, p.CombatPower
	if level <= 0 {
		level = a.Level
	}
	if cp <= 0 {
		cp = a.CombatPower
	}
	return m.authors.UpdateStats(ctx, a.Key, level, cp, p.AdventureLevel)
}
