package indexer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"guild-ranker/internal/domain"
	"guild-ranker/internal/infrastructure/cache"
	"guild-ranker/internal/repository"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type ScannerOptions struct {
	GuildFilter    string
	ProfileRecheck time.Duration
	ItemDelay      time.Duration
	Cache          cache.JSONCache
	Logger         logrus.FieldLogger
}

// ProfileScanner walks consecutive numeric profile ids.
type ProfileScanner struct {
	profiles ProfileSource
	authors  repository.AuthorRepository
	ledger   repository.LedgerRepository
	cache    cache.JSONCache

	guildFilter string
	recheck     time.Duration
	limiter     *rate.Limiter
	log         logrus.FieldLogger
}

func NewProfileScanner(profiles ProfileSource, authors repository.AuthorRepository, ledger repository.LedgerRepository, opts ScannerOptions) *ProfileScanner {
	if opts.ProfileRecheck <= 0 {
		opts.ProfileRecheck = 1440 * time.Minute
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ProfileScanner{
		profiles:    profiles,
		authors:     authors,
		ledger:      ledger,
		cache:       opts.Cache,
		guildFilter: strings.TrimSpace(opts.GuildFilter),
		recheck:     opts.ProfileRecheck,
		limiter:     newThrottle(opts.ItemDelay),
		log:         log,
	}
}

type ScanSummary struct {
	StartID  int              `json:"startId"`
	Scanned  int              `json:"scanned"`
	Matched  int              `json:"matched"`
	Skipped  int              `json:"skipped"`
	Failures []domain.Failure `json:"failures"`
}

type ScanDetail struct {
	ID           int    `json:"id"`
	Exists       bool   `json:"exists"`
	Matched      bool   `json:"matched"`
	GuildMatched bool   `json:"guildMatched"`
	Guild        string `json:"guild"`
	Nickname     string `json:"nickname"`
	UsedFallback bool   `json:"usedFallback"`
	Skipped      bool   `json:"skipped,omitempty"`
	ElapsedMs    int64  `json:"elapsedMs"`
}

type ScanDebug struct {
	StartID  int          `json:"startId"`
	Count    int          `json:"count"`
	Details  []ScanDetail `json:"details"`
	TotalSec float64      `json:"totalSec"`
}

// ScanProfileRange scans count ids from start. Existing profiles are stored
// regardless of guild; the filter only feeds GuildMatched diagnostics.
// Scanned counts every id visited, including the ones the ledger skipped, so
// a range that runs to completion reports Scanned == count.
func (s *ProfileScanner) ScanProfileRange(ctx context.Context, start, count int, guildFilter string) (ScanSummary, error) {
	sum := ScanSummary{StartID: start, Failures: []domain.Failure{}}
	err := s.scan(ctx, start, count, guildFilter, func(d ScanDetail, err error) {
		switch {
		case d.Skipped:
			sum.Skipped++
		case err != nil:
			sum.Failures = append(sum.Failures, domain.Failure{ID: strconv.Itoa(d.ID), Reason: err.Error()})
		}
		sum.Scanned++
		if d.Matched {
			sum.Matched++
		}
	})
	s.log.WithFields(logrus.Fields{"start": start, "scanned": sum.Scanned, "matched": sum.Matched, "skipped": sum.Skipped}).Info("[Scanner] range finished")
	return sum, err
}

// ScanProfileRangeDebug returns one detail row per id, zero-valued for ids that failed.
func (s *ProfileScanner) ScanProfileRangeDebug(ctx context.Context, start, count int, guildFilter string) (ScanDebug, error) {
	started := time.Now()
	out := ScanDebug{StartID: start, Count: count, Details: []ScanDetail{}}
	err := s.scan(ctx, start, count, guildFilter, func(d ScanDetail, err error) {
		if err != nil {
			d = ScanDetail{ID: d.ID, ElapsedMs: d.ElapsedMs}
		}
		out.Details = append(out.Details, d)
	})
	out.TotalSec = time.Since(started).Seconds()
	return out, err
}

func (s *ProfileScanner) scan(ctx context.Context, start, count int, guildFilter string, emit func(ScanDetail, error)) error {
	if start < 0 || count < 0 {
		return fmt.Errorf("invalid range start=%d count=%d", start, count)
	}
	filter := strings.TrimSpace(guildFilter)
	if filter == "" {
		filter = s.guildFilter
	}

	matchedAny := false
	defer func() {
		if matchedAny {
			if err := cache.InvalidateSnapshots(context.WithoutCancel(ctx), s.cache); err != nil {
				s.log.WithError(err).Warn("[Scanner] snapshot cache invalidation failed")
			}
		}
	}()

	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := start + i
		uid := strconv.Itoa(id)

		recent, err := s.ledger.RecentlyChecked(ctx, repository.LedgerProfiles, uid, s.recheck)
		if err != nil {
			emit(ScanDetail{ID: id}, err)
			continue
		}
		if recent {
			emit(ScanDetail{ID: id, Skipped: true}, nil)
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		d, err := s.scanOne(ctx, id, uid, filter)
		if err != nil {
			s.log.WithField("user_id", uid).WithError(err).Debug("[Scanner] profile failed")
		}
		if d.Matched {
			matchedAny = true
		}
		emit(d, err)
	}
	return nil
}

func (s *ProfileScanner) scanOne(ctx context.Context, id int, uid, filter string) (d ScanDetail, err error) {
	started := time.Now()
	d.ID = id
	defer func() { d.ElapsedMs = time.Since(started).Milliseconds() }()

	out, err := s.profiles.ScrapeProfile(ctx, uid)
	if err != nil {
		return d, err
	}
	d.UsedFallback = out.UsedFallback
	d.Guild = out.Profile.Guild
	d.Nickname = out.Profile.Nickname

	if !out.Exists() {
		if err := s.ledger.MarkChecked(ctx, repository.LedgerProfiles, uid, domain.StatusNotFound); err != nil {
			return d, fmt.Errorf("ledger: %w", err)
		}
		return d, nil
	}

	d.Exists = true
	d.GuildMatched = domain.GuildMatches(out.Profile.Guild, filter)
	a := domain.AuthorFromProfile(out.Profile, uid)
	if err := s.authors.UpsertFromProfile(ctx, a, uid); err != nil {
		return d, fmt.Errorf("upsert author: %w", err)
	}
	if err := s.ledger.MarkChecked(ctx, repository.LedgerProfiles, uid, domain.StatusMatched); err != nil {
		return d, fmt.Errorf("ledger: %w", err)
	}
	d.Matched = true
	return d, nil
}
