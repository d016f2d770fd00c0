package scraper

import (
	"regexp"
	"strconv"
	"strings"

	"guild-ranker/internal/domain"

	"github.com/PuerkitoBio/goquery"
)

var (
	frameNameRe     = regexp.MustCompile(`Lv\.?\s*(\d+)\s+(.+)`)
	frameBodyNameRe = regexp.MustCompile(`Lv\.?\s*\d+\s+([^\s<>]+)`)
	frameLvRe       = regexp.MustCompile(`Lv\.?\s*(\d+)`)
	frameGuildRe    = regexp.MustCompile(`길드\s*:?\s*`)
)

// ExtractFrameProfile reads the rendered profile card markup
// (li.-name / li.-spec / li.-account) from one frame's document.
func ExtractFrameProfile(frameHTML string) domain.PostProfile {
	var p domain.PostProfile
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(frameHTML))
	if err != nil {
		return p
	}

	nameText := collapseSpace(doc.Find("li.-name span").First().Text())
	if m := frameNameRe.FindStringSubmatch(nameText); len(m) == 3 {
		p.Level, _ = strconv.Atoi(m[1])
		p.Nickname = strings.TrimSpace(m[2])
	}
	if p.Nickname == "" {
		body := collapseSpace(visibleText(doc.Find("body").Nodes, " "))
		p.Nickname = submatch(frameBodyNameRe, body)
	}

	doc.Find("li.-spec span").Each(func(_ int, s *goquery.Selection) {
		t := collapseSpace(s.Text())
		switch {
		case strings.Contains(t, "서버:"):
			p.Server = strings.TrimSpace(strings.Replace(t, "서버:", "", 1))
		case strings.Contains(t, "직업:"):
			if cls := s.Find(".UserClassName").First(); cls.Length() > 0 {
				p.Job = collapseSpace(cls.Text())
			} else {
				p.Job = strings.TrimSpace(strings.Replace(t, "직업:", "", 1))
			}
		case strings.Contains(t, "항마력:"):
			p.CombatPower = parseIntSafe(strings.Replace(t, "항마력:", "", 1))
		case strings.Contains(t, "길드"):
			p.Guild = strings.TrimSpace(frameGuildRe.ReplaceAllString(t, ""))
		}
	})

	doc.Find("li.-account span").Each(func(_ int, s *goquery.Selection) {
		t := collapseSpace(s.Text())
		switch {
		case strings.Contains(t, "모험단명:"):
			p.AdventureName = strings.TrimSpace(strings.Replace(t, "모험단명:", "", 1))
		case strings.Contains(t, "모험단 레벨:"):
			if m := frameLvRe.FindStringSubmatch(t); len(m) == 2 {
				p.AdventureLevel, _ = strconv.Atoi(m[1])
			}
		}
	})

	p.Nickname = FixMojibake(p.Nickname)
	p.Server = FixMojibake(p.Server)
	p.Job = FixMojibake(p.Job)
	p.Guild = FixMojibake(p.Guild)
	p.AdventureName = FixMojibake(p.AdventureName)
	return p
}

// FrameScore counts the non-empty headline fields of a frame result.
func FrameScore(p domain.PostProfile) int {
	n := 0
	for _, ok := range []bool{p.Nickname != "", p.Server != "", p.Job != "", p.CombatPower > 0, p.Guild != ""} {
		if ok {
			n++
		}
	}
	return n
}

// SelectBestFrame returns the highest-scoring candidate and its index; the
// earliest candidate wins ties. It returns -1 for an empty slice.
func SelectBestFrame(candidates []domain.PostProfile) (domain.PostProfile, int) {
	best := -1
	bestScore := -1
	for i, c := range candidates {
		if s := FrameScore(c); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return domain.PostProfile{}, -1
	}
	return candidates[best], best
}
