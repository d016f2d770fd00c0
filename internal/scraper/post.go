package scraper

import (
	"context"
	"errors"
	"fmt"

	"guild-ranker/internal/domain"

	"github.com/sirupsen/logrus"
)

// PostScraper reads the author card attached to a free-board post.
type PostScraper struct {
	site     Site
	fetcher  HTMLFetcher
	renderer Renderer
	log      logrus.FieldLogger
}

func NewPostScraper(baseURL string, fetcher HTMLFetcher, renderer Renderer, log logrus.FieldLogger) *PostScraper {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PostScraper{site: NewSite(baseURL), fetcher: fetcher, renderer: renderer, log: log}
}

func (s *PostScraper) ScrapePost(ctx context.Context, postID string) (domain.ScrapeOutcome, error) {
	url := s.site.PostURL(postID)
	return scrapeCard(ctx, s.site, url, s.fetcher, s.renderer, s.log.WithField("post_id", postID), func(ctx context.Context) (domain.PostProfile, error) {
		html, err := s.renderer.RenderHTML(ctx, url)
		if err != nil {
			return domain.PostProfile{}, err
		}
		return ParseProfileHTML(html), nil
	})
}

// ProfileScraper reads a user's profile page; its render path scores the
// main document and each iframe and keeps the best candidate.
type ProfileScraper struct {
	site     Site
	fetcher  HTMLFetcher
	renderer Renderer
	log      logrus.FieldLogger
}

func NewProfileScraper(baseURL string, fetcher HTMLFetcher, renderer Renderer, log logrus.FieldLogger) *ProfileScraper {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ProfileScraper{site: NewSite(baseURL), fetcher: fetcher, renderer: renderer, log: log}
}

func (s *ProfileScraper) ScrapeProfile(ctx context.Context, userID string) (domain.ScrapeOutcome, error) {
	url := s.site.ProfileURL(userID)
	return scrapeCard(ctx, s.site, url, s.fetcher, s.renderer, s.log.WithField("user_id", userID), func(ctx context.Context) (domain.PostProfile, error) {
		return s.renderer.RenderProfile(ctx, url)
	})
}

type renderFunc func(ctx context.Context) (domain.PostProfile, error)

func scrapeCard(ctx context.Context, site Site, url string, fetcher HTMLFetcher, renderer Renderer, log logrus.FieldLogger, render renderFunc) (domain.ScrapeOutcome, error) {
	html, err := fetcher.FetchHTML(ctx, url)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.NotFound(url), nil
		}
		return domain.ScrapeOutcome{SourceURL: url}, fmt.Errorf("scrape %s: %w", url, err)
	}

	p := ParseProfileHTML(html)
	usedFallback := false
	if p.Insufficient() && renderer != nil && renderer.Available() {
		rendered, rerr := render(ctx)
		switch {
		case rerr == nil:
			usedFallback = true
			p = mergeProfile(p, rendered)
		case ctx.Err() != nil:
			return domain.ScrapeOutcome{SourceURL: url}, fmt.Errorf("scrape %s: %w", url, ctx.Err())
		default:
			log.WithError(rerr).Warn("[Scraper] render fallback failed")
		}
	}

	p.AvatarURL = site.Resolve(p.AvatarURL)
	return domain.Classify(url, p, usedFallback), nil
}

// mergeProfile prefers rendered values and keeps static ones the render missed.
func mergeProfile(static, rendered domain.PostProfile) domain.PostProfile {
	out := rendered
	out.Nickname = pickNonEmpty(rendered.Nickname, static.Nickname)
	out.Server = pickNonEmpty(rendered.Server, static.Server)
	out.Job = pickNonEmpty(rendered.Job, static.Job)
	out.Guild = pickNonEmpty(rendered.Guild, static.Guild)
	out.AdventureName = pickNonEmpty(rendered.AdventureName, static.AdventureName)
	out.AvatarURL = pickNonEmpty(rendered.AvatarURL, static.AvatarURL)
	if out.Level == 0 {
		out.Level = static.Level
	}
	if out.CombatPower == 0 {
		out.CombatPower = static.CombatPower
	}
	if out.AdventureLevel == 0 {
		out.AdventureLevel = static.AdventureLevel
	}
	return out
}
