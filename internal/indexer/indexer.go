package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"guild-ranker/internal/domain"
	"guild-ranker/internal/infrastructure/cache"
	"guild-ranker/internal/repository"
	"guild-ranker/internal/scraper"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type ListSource interface {
	ListPostIDs(ctx context.Context, page int, allowFallback bool) (scraper.ListPage, error)
}

type PostSource interface {
	ScrapePost(ctx context.Context, postID string) (domain.ScrapeOutcome, error)
}

type ProfileSource interface {
	ScrapeProfile(ctx context.Context, userID string) (domain.ScrapeOutcome, error)
}

type Options struct {
	GuildFilter string
	PostRecheck time.Duration
	ItemDelay   time.Duration
	Cache       cache.JSONCache
	Logger      logrus.FieldLogger
}

// Indexer polls the newest list pages and records the authors of posts whose
// guild matches the filter.
type Indexer struct {
	lists   ListSource
	posts   PostSource
	authors repository.AuthorRepository
	ledger  repository.LedgerRepository
	cache   cache.JSONCache

	guildFilter string
	recheck     time.Duration
	limiter     *rate.Limiter
	log         logrus.FieldLogger
}

func New(lists ListSource, posts PostSource, authors repository.AuthorRepository, ledger repository.LedgerRepository, opts Options) *Indexer {
	if opts.PostRecheck <= 0 {
		opts.PostRecheck = 1440 * time.Minute
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Indexer{
		lists:       lists,
		posts:       posts,
		authors:     authors,
		ledger:      ledger,
		cache:       opts.Cache,
		guildFilter: strings.TrimSpace(opts.GuildFilter),
		recheck:     opts.PostRecheck,
		limiter:     newThrottle(opts.ItemDelay),
		log:         log,
	}
}

// newThrottle spaces sequential items by delay; zero disables it.
func newThrottle(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

type PollOptions struct {
	Pages         int
	FallbackPages int
	StartPage     int
}

type PollResult struct {
	IDs     []string
	Pages   []scraper.ListPage
	Elapsed time.Duration
}

// PollLatestPages crawls Pages list pages from StartPage and returns the
// de-duplicated post ids in first-seen order. FallbackPages counts crawled
// pages, not page numbers: with StartPage 3 and FallbackPages 1 only page 3
// may use the render fallback. A page that cannot be read fails the poll.
func (ix *Indexer) PollLatestPages(ctx context.Context, opts PollOptions) (PollResult, error) {
	if opts.Pages <= 0 {
		opts.Pages = 1
	}
	if opts.StartPage <= 0 {
		opts.StartPage = 1
	}
	started := time.Now()
	res := PollResult{}
	seen := map[string]struct{}{}

	for i := 0; i < opts.Pages; i++ {
		if err := ctx.Err(); err != nil {
			res.Elapsed = time.Since(started)
			return res, err
		}
		page := opts.StartPage + i
		lp, err := ix.lists.ListPostIDs(ctx, page, i < opts.FallbackPages)
		if err != nil {
			res.Elapsed = time.Since(started)
			return res, fmt.Errorf("poll page %d: %w", page, err)
		}
		res.Pages = append(res.Pages, lp)
		for _, id := range lp.IDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			res.IDs = append(res.IDs, id)
		}
	}

	res.Elapsed = time.Since(started)
	ix.log.WithFields(logrus.Fields{"pages": opts.Pages, "ids": len(res.IDs), "elapsed": res.Elapsed}).Info("[Indexer] poll finished")
	return res, nil
}

// ProcessSummary counts one batch. NoAuthorKey counts guild posts whose
// profile lacks a server or nickname; they are also counted in NotMatched.
type ProcessSummary struct {
	Processed   int              `json:"processed"`
	Matched     int              `json:"matched"`
	NotMatched  int              `json:"notMatched"`
	Skipped     int              `json:"skipped"`
	NoAuthorKey int              `json:"noAuthorKey"`
	Failures    []domain.Failure `json:"failures"`
}

// ProcessNewPosts scrapes each id outside its cooldown, one at a time. A
// failing id is recorded, marked not matched and never aborts the batch.
func (ix *Indexer) ProcessNewPosts(ctx context.Context, ids []string, guildFilter string) (ProcessSummary, error) {
	filter := strings.TrimSpace(guildFilter)
	if filter == "" {
		filter = ix.guildFilter
	}
	sum := ProcessSummary{Failures: []domain.Failure{}}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		recent, err := ix.ledger.RecentlyChecked(ctx, repository.LedgerPosts, id, ix.recheck)
		if err != nil {
			sum.Failures = append(sum.Failures, domain.Failure{ID: id, Reason: err.Error()})
			continue
		}
		if recent {
			sum.Skipped++
			continue
		}
		if err := ix.limiter.Wait(ctx); err != nil {
			return sum, err
		}

		sum.Processed++
		matched, err := ix.processPost(ctx, id, filter)
		switch {
		case errors.Is(err, errNoAuthorKey):
			sum.NotMatched++
			sum.NoAuthorKey++
			ix.mark(ctx, id, domain.StatusNotMatched)
			ix.log.WithField("post_id", id).Debug("[Indexer] post without author key")
		case err != nil:
			sum.NotMatched++
			sum.Failures = append(sum.Failures, domain.Failure{ID: id, Reason: err.Error()})
			ix.mark(ctx, id, domain.StatusNotMatched)
			ix.log.WithField("post_id", id).WithError(err).Warn("[Indexer] post failed")
		case matched:
			sum.Matched++
			ix.mark(ctx, id, domain.StatusMatched)
		default:
			sum.NotMatched++
			ix.mark(ctx, id, domain.StatusNotMatched)
		}
	}

	if sum.Matched > 0 {
		if err := cache.InvalidateSnapshots(ctx, ix.cache); err != nil {
			ix.log.WithError(err).Warn("[Indexer] snapshot cache invalidation failed")
		}
	}
	ix.log.WithFields(logrus.Fields{
		"processed": sum.Processed, "matched": sum.Matched, "not_matched": sum.NotMatched,
		"skipped": sum.Skipped, "failed": len(sum.Failures),
	}).Info("[Indexer] posts processed")
	return sum, nil
}

var errNoAuthorKey = errors.New("post profile has no author key")

func (ix *Indexer) processPost(ctx context.Context, id, filter string) (bool, error) {
	out, err := ix.posts.ScrapePost(ctx, id)
	if err != nil {
		return false, err
	}
	if !out.Exists() || !domain.GuildMatches(out.Profile.Guild, filter) {
		return false, nil
	}
	a := domain.AuthorFromProfile(out.Profile, "")
	if a.Key == "" {
		return false, errNoAuthorKey
	}
	if err := ix.authors.UpsertFromPost(ctx, a, id); err != nil {
		return false, fmt.Errorf("upsert author: %w", err)
	}
	ix.log.WithFields(logrus.Fields{"post_id": id, "author": a.Key, "combat_power": a.CombatPower}).Debug("[Indexer] post matched")
	return true, nil
}

func (ix *Indexer) mark(ctx context.Context, id, status string) {
	if err := ix.ledger.MarkChecked(ctx, repository.LedgerPosts, id, status); err != nil {
		ix.log.WithField("post_id", id).WithError(err).Warn("[Indexer] ledger write failed")
	}
}
