package scraper

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Site builds URLs for the community site.
type Site struct {
	BaseURL string
}

func NewSite(baseURL string) Site {
	return Site{BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/")}
}

// ListURL returns the free-board list page; page 1 has no query string.
func (s Site) ListURL(page int) string {
	if page <= 1 {
		return s.BaseURL + "/Community/Free"
	}
	return fmt.Sprintf("%s/Community/Free?p=%d", s.BaseURL, page)
}

func (s Site) PostURL(postID string) string {
	return s.BaseURL + "/Community/Free/View/" + url.PathEscape(strings.TrimSpace(postID))
}

func (s Site) ProfileURL(userID string) string {
	return s.BaseURL + "/Profile/User/" + url.PathEscape(strings.TrimSpace(userID))
}

// Resolve makes ref absolute against the site root.
func (s Site) Resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	base, err := url.Parse(s.BaseURL + "/")
	if err != nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

func (s Site) Host() string {
	return hostFromBaseURL(s.BaseURL)
}

func hostFromBaseURL(base string) string {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil || u.Host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(u.Host); err == nil {
		return h
	}
	return u.Host
}

func pickNonEmpty(a, b string) string {
	a = strings.TrimSpace(a)
	if a != "" {
		return a
	}
	return strings.TrimSpace(b)
}

// parseIntSafe strips commas and reads the leading digits; anything else is 0.
func parseIntSafe(s string) int64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func readAllLimit(r io.Reader, max int64) ([]byte, error) {
	lr := &io.LimitedReader{R: r, N: max}
	b, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if lr.N <= 0 {
		return nil, fmt.Errorf("response too large")
	}
	return b, nil
}
