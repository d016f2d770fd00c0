package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
)

const (
	maxBodyBytes = 5 << 20

	desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	acceptHTML       = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	acceptLanguage   = "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7"
)

var ErrNotFound = errors.New("page not found")

// FetchError is returned once both fetch attempts have failed.
type FetchError struct {
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s)", e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("fetch %s: %v after %d attempt(s)", e.URL, e.Err, e.Attempts)
}

func (e *FetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// HTMLFetcher is the static fetch path used by list crawls and page scrapers.
type HTMLFetcher interface {
	FetchHTML(ctx context.Context, url string) (string, error)
}

type FetcherOptions struct {
	BaseURL      string
	Timeout      time.Duration
	RetryTimeout time.Duration
	Client       *http.Client
	Logger       logrus.FieldLogger
}

type Fetcher struct {
	site         Site
	client       *http.Client
	timeout      time.Duration
	retryTimeout time.Duration
	log          logrus.FieldLogger
}

func NewFetcher(opts FetcherOptions) *Fetcher {
	f := &Fetcher{
		site:         NewSite(opts.BaseURL),
		client:       opts.Client,
		timeout:      opts.Timeout,
		retryTimeout: opts.RetryTimeout,
		log:          opts.Logger,
	}
	if f.client == nil {
		f.client = &http.Client{}
	}
	if f.timeout <= 0 {
		f.timeout = 20 * time.Second
	}
	if f.retryTimeout <= 0 {
		f.retryTimeout = 15 * time.Second
	}
	if f.log == nil {
		f.log = logrus.StandardLogger()
	}
	return f
}

func (f *Fetcher) fullHeaders() map[string]string {
	return map[string]string{
		"User-Agent":                desktopUserAgent,
		"Accept":                    acceptHTML,
		"Accept-Language":           acceptLanguage,
		"Cache-Control":             "no-cache",
		"Pragma":                    "no-cache",
		"Referer":                   f.site.BaseURL + "/",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Ch-Ua":                 `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
		"Sec-Ch-Ua-Mobile":          "?0",
		"Sec-Ch-Ua-Platform":        `"Windows"`,
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "same-origin",
		"Sec-Fetch-User":            "?1",
	}
}

func reducedHeaders() map[string]string {
	return map[string]string{
		"User-Agent":      desktopUserAgent,
		"Accept":          acceptHTML,
		"Accept-Language": acceptLanguage,
	}
}

// FetchHTML GETs url with browser headers and retries exactly once with a
// reduced header set. The body is charset-decoded and mojibake-corrected.
func (f *Fetcher) FetchHTML(ctx context.Context, url string) (string, error) {
	html, status, err := f.attempt(ctx, url, f.fullHeaders(), f.timeout)
	if err == nil {
		return html, nil
	}
	if ctx.Err() != nil {
		return "", &FetchError{URL: url, StatusCode: status, Attempts: 1, Err: ctx.Err()}
	}

	f.log.WithFields(logrus.Fields{"url": url, "status": status, "error": err}).Debug("[Fetcher] retrying with reduced headers")

	html, status, err = f.attempt(ctx, url, reducedHeaders(), f.retryTimeout)
	if err == nil {
		return html, nil
	}
	return "", &FetchError{URL: url, StatusCode: status, Attempts: 2, Err: err}
}

func (f *Fetcher) attempt(ctx context.Context, url string, headers map[string]string, timeout time.Duration) (string, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		if resp.StatusCode == http.StatusNotFound {
			return "", resp.StatusCode, ErrNotFound
		}
		return "", resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := decodeBody(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", resp.StatusCode, err
	}
	return FixMojibake(body), resp.StatusCode, nil
}

func decodeBody(r io.Reader, contentType string) (string, error) {
	reader, err := charset.NewReader(r, contentType)
	if err != nil {
		reader = r
	}
	b, err := readAllLimit(reader, maxBodyBytes)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(b), "�"), nil
}
