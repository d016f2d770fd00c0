package scraper

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	postHrefRe    = regexp.MustCompile(`/Community/Free/(?:View|Detail)/(\d+)`)
	postOnclickRe = regexp.MustCompile(`\bView\s*\(\s*(\d+)\s*\)`)
)

const loginWord = "로그인"

// idSet keeps post ids in first-seen order.
type idSet struct {
	seen map[string]struct{}
	ids  []string
}

func newIDSet() *idSet {
	return &idSet{seen: map[string]struct{}{}}
}

func (s *idSet) add(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	s.ids = append(s.ids, id)
	return true
}

func (s *idSet) addMatches(re *regexp.Regexp, text string) int {
	n := 0
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		n++
		s.add(m[1])
	}
	return n
}

// ExtractPostIDs collects distinct post ids from a list page. Anchors are
// read first, then the raw markup is scanned for hrefs and View(id) handlers
// that live outside anchor attributes. The match counts are raw hits.
func ExtractPostIDs(src string) (ids []string, hrefMatches, onclickMatches int) {
	set := newIDSet()
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(src)); err == nil {
		doc.Find("a[href], a[onclick]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			onclick, _ := a.Attr("onclick")
			hrefMatches += set.addMatches(postHrefRe, href)
			onclickMatches += set.addMatches(postOnclickRe, onclick)
		})
	}
	set.addMatches(postHrefRe, src)
	set.addMatches(postOnclickRe, src)
	return set.ids, hrefMatches, onclickMatches
}

func hasLoginWall(src string) bool {
	return strings.Contains(src, loginWord)
}
