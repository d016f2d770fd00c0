package ranking

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"guild-ranker/internal/domain"
	"guild-ranker/internal/infrastructure/cache"
	"guild-ranker/internal/scraper"

	"github.com/sirupsen/logrus"
)

type ListSource interface {
	ListPostIDs(ctx context.Context, page int, allowFallback bool) (scraper.ListPage, error)
}

type PostSource interface {
	ScrapePost(ctx context.Context, postID string) (domain.ScrapeOutcome, error)
}

const maxDebugIDs = 20

type SnapshotOptions struct {
	Guild         string
	Pages         int
	Top           int
	Debug         bool
	Budget        time.Duration
	FallbackPages int
}

type BuilderOptions struct {
	Defaults    SnapshotOptions
	Concurrency int
	CacheTTL    time.Duration
	SourceURL   string
	Cache       cache.JSONCache
	Logger      logrus.FieldLogger
	Now         func() time.Time
}

// Builder assembles a guild ranking straight from the newest posts within a
// wall-clock budget.
type Builder struct {
	lists ListSource
	posts PostSource
	cache cache.JSONCache

	defaults    SnapshotOptions
	concurrency int
	cacheTTL    time.Duration
	sourceURL   string
	now         func() time.Time
	log         logrus.FieldLogger
}

func NewBuilder(lists ListSource, posts PostSource, opts BuilderOptions) *Builder {
	d := opts.Defaults
	if d.Pages <= 0 {
		d.Pages = 5
	}
	if d.Top <= 0 {
		d.Top = 100
	}
	if d.Budget <= 0 {
		d.Budget = 8 * time.Second
	}
	if d.FallbackPages < 0 {
		d.FallbackPages = 0
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 6
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Builder{
		lists:       lists,
		posts:       posts,
		cache:       opts.Cache,
		defaults:    d,
		concurrency: opts.Concurrency,
		cacheTTL:    opts.CacheTTL,
		sourceURL:   opts.SourceURL,
		now:         opts.Now,
		log:         log,
	}
}

func (b *Builder) withDefaults(o SnapshotOptions) SnapshotOptions {
	o.Guild = strings.TrimSpace(o.Guild)
	if o.Guild == "" {
		o.Guild = b.defaults.Guild
	}
	if o.Pages <= 0 {
		o.Pages = b.defaults.Pages
	}
	if o.Top <= 0 {
		o.Top = b.defaults.Top
	}
	if o.Budget <= 0 {
		o.Budget = b.defaults.Budget
	}
	if o.FallbackPages < 0 {
		o.FallbackPages = b.defaults.FallbackPages
	}
	return o
}

// BuildGuildSnapshot crawls list pages, scrapes their posts in bounded
// chunks, keeps the strongest sighting per player and ranks the result.
// The budget is checked between pages and between chunks only.
func (b *Builder) BuildGuildSnapshot(ctx context.Context, opts SnapshotOptions) (domain.GuildRanking, error) {
	opts = b.withDefaults(opts)
	key := cache.SnapshotKey(opts.Guild)

	if !opts.Debug && b.cache != nil && b.cache.Available() {
		var cached domain.GuildRanking
		hit, err := b.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			b.log.WithError(err).WithField("key", key).Warn("[Snapshot] cache read failed")
		}
		if hit {
			cached.Source = domain.RankingSourceCache
			return cached, nil
		}
	}

	started := b.now()
	deadline := started.Add(opts.Budget)
	expired := func() bool { return !b.now().Before(deadline) }

	dbg := domain.SnapshotDebug{FirstIDs: []string{}, ListStats: []domain.ListStats{}}
	ids := make([]string, 0)
	seen := map[string]struct{}{}
	sampled := 0

	for page := 1; page <= opts.Pages; page++ {
		if expired() {
			dbg.TimedOut = true
			break
		}
		lp, err := b.lists.ListPostIDs(ctx, page, page <= opts.FallbackPages)
		if err != nil {
			return domain.GuildRanking{}, fmt.Errorf("snapshot list page %d: %w", page, err)
		}
		sampled++
		dbg.ListStats = append(dbg.ListStats, lp.Stats)
		for _, id := range lp.IDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	dbg.PostIDsFound = len(ids)
	dbg.FirstIDs = append(dbg.FirstIDs, ids[:min(len(ids), maxDebugIDs)]...)

	var mu sync.Mutex
	candidates := make([]domain.GuildMember, 0)
	runChunks(ctx, ids, b.concurrency, func() bool {
		if expired() {
			mu.Lock()
			dbg.TimedOut = true
			mu.Unlock()
			return false
		}
		return true
	}, func(ctx context.Context, id string) {
		if expired() {
			mu.Lock()
			dbg.TimedOut = true
			mu.Unlock()
			return
		}
		out, err := b.posts.ScrapePost(ctx, id)
		if err != nil {
			b.log.WithField("post_id", id).WithError(err).Debug("[Snapshot] post failed")
			return
		}
		if !out.Exists() {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		dbg.DetailedParsed++
		if !domain.GuildMatches(out.Profile.Guild, opts.Guild) || strings.TrimSpace(out.Profile.Nickname) == "" {
			return
		}
		dbg.GuildMatched++
		candidates = append(candidates, domain.MemberFromProfile(out.Profile, id))
	})

	members := MergeMax(candidates)
	SortMembers(members)

	ranking := domain.GuildRanking{
		Guild:        opts.Guild,
		Top:          opts.Top,
		SampledPages: sampled,
		Members:      TopRanked(members, opts.Top),
		SourceURL:    b.sourceURL,
		GeneratedAt:  b.now().UTC(),
		Source:       domain.RankingSourceSnapshot,
	}

	b.log.WithFields(logrus.Fields{
		"guild": opts.Guild, "ids": dbg.PostIDsFound, "parsed": dbg.DetailedParsed,
		"matched": dbg.GuildMatched, "members": len(ranking.Members), "timed_out": dbg.TimedOut,
		"elapsed": b.now().Sub(started),
	}).Info("[Snapshot] built")

	if opts.Debug {
		ranking.Debug = &dbg
		return ranking, nil
	}
	if b.cache != nil && b.cache.Available() {
		if err := b.cache.SetJSON(ctx, key, ranking, b.cacheTTL); err != nil {
			b.log.WithError(err).WithField("key", key).Warn("[Snapshot] cache write failed")
		}
	}
	return ranking, nil
}
