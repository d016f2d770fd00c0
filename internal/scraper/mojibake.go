package scraper

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var (
	hangulRe   = regexp.MustCompile(`[가-힣]`)
	mojibakeRe = regexp.MustCompile(`[ÃÂÍÎÏìíë]`)
)

// FixMojibake undoes UTF-8 text that was decoded as Latin-1. It only acts when
// s has no Hangul syllables but does carry typical Latin-1 artifacts, and it
// keeps s unchanged unless the round trip produces valid UTF-8.
func FixMojibake(s string) string {
	if s == "" || hangulRe.MatchString(s) || !mojibakeRe.MatchString(s) {
		return s
	}
	raw, err := charmap.ISO8859_1.NewEncoder().String(s)
	if err != nil {
		return s
	}
	if !utf8.ValidString(raw) {
		return s
	}
	return strings.TrimSpace(raw)
}
