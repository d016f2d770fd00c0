package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"guild-ranker/internal/domain"

	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

// ListPage is one crawled page of the free board.
type ListPage struct {
	Page  int
	IDs   []string
	Stats domain.ListStats
}

type ListCrawlerOptions struct {
	BaseURL  string
	Timeout  time.Duration
	Renderer Renderer
	Logger   logrus.FieldLogger
}

// ListCrawler fetches board list pages with colly and falls back to the
// render engine when the static page yields nothing usable.
type ListCrawler struct {
	site     Site
	timeout  time.Duration
	renderer Renderer
	log      logrus.FieldLogger
}

func NewListCrawler(opts ListCrawlerOptions) *ListCrawler {
	c := &ListCrawler{
		site:     NewSite(opts.BaseURL),
		timeout:  opts.Timeout,
		renderer: opts.Renderer,
		log:      opts.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = 20 * time.Second
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	return c
}

func (c *ListCrawler) Site() Site { return c.site }

func (c *ListCrawler) newCollector(ctx context.Context) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.UserAgent(desktopUserAgent),
	}
	if host := c.site.Host(); host != "" {
		opts = append(opts, colly.AllowedDomains(host))
	}
	col := colly.NewCollector(opts...)
	col.SetRequestTimeout(c.timeout)
	col.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		r.Headers.Set("Accept", acceptHTML)
		r.Headers.Set("Accept-Language", acceptLanguage)
		r.Headers.Set("Referer", c.site.BaseURL+"/")
		r.Headers.Set("Cache-Control", "no-cache")
	})
	return col
}

// ListPostIDs crawls one list page. With allowFallback the page is rendered
// headless when the static crawl finds no ids or hits a login wall.
func (c *ListCrawler) ListPostIDs(ctx context.Context, page int, allowFallback bool) (ListPage, error) {
	if page < 1 {
		page = 1
	}
	started := time.Now()
	url := c.site.ListURL(page)
	out := ListPage{Page: page, Stats: domain.ListStats{Page: page}}

	set := newIDSet()
	var crawlErr error
	col := c.newCollector(ctx)
	col.OnHTML("a[href], a[onclick]", func(e *colly.HTMLElement) {
		out.Stats.HrefMatches += set.addMatches(postHrefRe, e.Attr("href"))
		out.Stats.OnclickMatches += set.addMatches(postOnclickRe, e.Attr("onclick"))
	})
	col.OnResponse(func(r *colly.Response) {
		body := FixMojibake(string(r.Body))
		out.Stats.HTMLLen = len(body)
		out.Stats.HasLoginWord = hasLoginWall(body)
		set.addMatches(postHrefRe, body)
		set.addMatches(postOnclickRe, body)
	})
	col.OnError(func(r *colly.Response, err error) {
		crawlErr = err
		if r != nil && r.StatusCode > 0 {
			crawlErr = &FetchError{URL: url, StatusCode: r.StatusCode, Attempts: 1, Err: err}
		}
	})

	if err := col.Visit(url); err != nil && crawlErr == nil {
		crawlErr = err
	}
	col.Wait()
	if err := ctx.Err(); err != nil {
		return out, fmt.Errorf("list page %d: %w", page, err)
	}

	out.IDs = set.ids
	needFallback := len(out.IDs) == 0 || out.Stats.HasLoginWord
	if needFallback && allowFallback && c.renderer != nil && c.renderer.Available() {
		if ids, ok := c.renderFallback(ctx, url, &out.Stats); ok {
			out.IDs = ids
			crawlErr = nil
		}
	}

	out.Stats.IDsFound = len(out.IDs)
	out.Stats.ElapsedMs = time.Since(started).Milliseconds()

	fields := logrus.Fields{
		"page":     page,
		"ids":      out.Stats.IDsFound,
		"href":     out.Stats.HrefMatches,
		"onclick":  out.Stats.OnclickMatches,
		"login":    out.Stats.HasLoginWord,
		"fallback": out.Stats.UsedFallback,
		"ms":       out.Stats.ElapsedMs,
	}
	if crawlErr != nil && len(out.IDs) == 0 {
		c.log.WithFields(fields).WithError(crawlErr).Warn("[ListCrawler] list page failed")
		return out, fmt.Errorf("list page %d: %w", page, crawlErr)
	}
	c.log.WithFields(fields).Debug("[ListCrawler] list page crawled")
	return out, nil
}

func (c *ListCrawler) renderFallback(ctx context.Context, url string, stats *domain.ListStats) ([]string, bool) {
	html, err := c.renderer.RenderHTML(ctx, url)
	if err != nil {
		if !errors.Is(err, ErrEngineUnavailable) {
			c.log.WithError(err).WithField("url", url).Warn("[ListCrawler] render fallback failed")
		}
		return nil, false
	}
	ids, href, onclick := ExtractPostIDs(html)
	stats.UsedFallback = true
	stats.HTMLLen = len(html)
	stats.HasLoginWord = hasLoginWall(html)
	stats.HrefMatches = href
	stats.OnclickMatches = onclick
	return ids, true
}
