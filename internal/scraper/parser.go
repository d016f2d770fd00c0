package scraper

import (
	"regexp"
	"strconv"
	"strings"

	"guild-ranker/internal/domain"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	labelServer         = "서버"
	labelJob            = "직업"
	labelCombatPower    = "항마력"
	labelGuild          = "길드"
	labelAdventureName  = "모험단명"
	labelAdventureLevel = "모험단 레벨"
)

var fieldLabels = []string{
	labelServer,
	labelJob,
	labelCombatPower,
	labelGuild,
	labelAdventureName,
	labelAdventureLevel,
}

var containerAnchors = []string{"대표 캐릭터", "representative character"}

const containerAncestors = "section, .wrap, .view, .view_wrap, .character_info, .profile, .writer_info, .tit_character"

var containerCandidates = []string{
	".tit_character",
	".represent_character, .rep_character",
	".character_info",
	".writer_info",
	".user-info",
}

const candidateAncestors = "section, .wrap, .box, .view, body"

const nicknameSelectors = ".tit_character .name, .tit_character strong, .nickname, .name"

var (
	levelRe             = regexp.MustCompile(`Lv\.?\s*(\d{1,3})`)
	nicknameAfterLvRe   = regexp.MustCompile(`Lv\.?\s*\d+\s+([^\s|]+)`)
	nicknameHonorificRe = regexp.MustCompile(`([^\s]+)\s*님(?:의)?`)
	digitsRe            = regexp.MustCompile(`\d+`)
	horizontalSpaceRe   = regexp.MustCompile(`[^\S\n]+`)
	anySpaceRe          = regexp.MustCompile(`\s+`)

	pageServerRe         = regexp.MustCompile(`서버\s*[:：]?\s*([^|\s]+)`)
	pageJobRe            = regexp.MustCompile(`직업\s*[:：]?\s*([^|\n]+)`)
	pageCombatPowerRe    = regexp.MustCompile(`항마력\s*[:：]?\s*([\d,]+)`)
	pageGuildRe          = regexp.MustCompile(`길드\s*[:：]?\s*([^|\s]+)`)
	pageAdventureNameRe  = regexp.MustCompile(`모험단명\s*[:：]?\s*([^|\s]+)`)
	pageAdventureLevelRe = regexp.MustCompile(`모험단\s*레벨\s*[:：]?\s*Lv\.?\s*(\d+)`)

	labelValueRes = buildLabelValueRes()
)

func buildLabelValueRes() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(fieldLabels))
	for _, l := range fieldLabels {
		words := strings.Fields(l)
		for i := range words {
			words[i] = regexp.QuoteMeta(words[i])
		}
		out[l] = regexp.MustCompile(strings.Join(words, `\s*`) + `\s*[:：]?\s*([^|\n]+)`)
	}
	return out
}

// page is the parse state shared by the extraction strategies.
type page struct {
	doc           *goquery.Document
	container     *goquery.Selection
	text          string
	containerText string
}

func newPage(doc *goquery.Document) *page {
	c := findContainer(doc)
	return &page{
		doc:           doc,
		container:     c,
		text:          collapseSpace(visibleText(doc.Selection.Nodes, " ")),
		containerText: normalizeLines(visibleText(c.Nodes, "\n")),
	}
}

type strategy struct {
	name string
	run  func(pg *page) string
}

// firstMatch runs the chain in order and stops at the first non-empty value.
func firstMatch(pg *page, chain []strategy) (string, string) {
	for _, s := range chain {
		if v := strings.TrimSpace(s.run(pg)); v != "" {
			return v, s.name
		}
	}
	return "", ""
}

var nicknameChain = []strategy{
	{name: "selector", run: func(pg *page) string {
		return collapseSpace(pg.container.Find(nicknameSelectors).First().Text())
	}},
	{name: "lv-prefix", run: func(pg *page) string { return submatch(nicknameAfterLvRe, pg.text) }},
	{name: "honorific", run: func(pg *page) string { return submatch(nicknameHonorificRe, pg.text) }},
}

var levelChain = []strategy{
	{name: "lv-text", run: func(pg *page) string { return submatch(levelRe, pg.text) }},
}

var (
	serverChain      = labelChain(labelServer, pageServerRe)
	jobChain         = labelChain(labelJob, pageJobRe)
	combatPowerChain = labelChain(labelCombatPower, pageCombatPowerRe)
	guildChain       = labelChain(labelGuild, pageGuildRe)
	adventureChain   = labelChain(labelAdventureName, pageAdventureNameRe)

	adventureLevelChain = []strategy{
		{name: "dl", run: func(pg *page) string { return digitsRe.FindString(pg.definition(labelAdventureLevel)) }},
		{name: "label", run: func(pg *page) string { return digitsRe.FindString(pg.labelText(labelAdventureLevel)) }},
		{name: "page", run: func(pg *page) string { return submatch(pageAdventureLevelRe, pg.text) }},
	}
)

func labelChain(label string, pageRe *regexp.Regexp) []strategy {
	return []strategy{
		{name: "dl", run: func(pg *page) string { return pg.definition(label) }},
		{name: "label", run: func(pg *page) string { return pg.labelText(label) }},
		{name: "page", run: func(pg *page) string { return cutAtLabels(submatch(pageRe, pg.text), label) }},
	}
}

// definition reads <dt>label</dt><dd>value</dd> inside the container.
func (pg *page) definition(label string) string {
	var out string
	pg.container.Find("dt").EachWithBreak(func(_ int, dt *goquery.Selection) bool {
		if !strings.Contains(dt.Text(), label) {
			return true
		}
		dd := dt.Next().Filter("dd")
		if dd.Length() == 0 {
			return true
		}
		out = collapseSpace(dd.First().Text())
		return out == ""
	})
	return out
}

// labelText reads "label: value" from a single line of container text.
func (pg *page) labelText(label string) string {
	re, ok := labelValueRes[label]
	if !ok {
		return ""
	}
	return cutAtLabels(submatch(re, pg.containerText), label)
}

// ParseResult carries the parsed profile and which strategy produced each field.
type ParseResult struct {
	Profile    domain.PostProfile
	Strategies map[string]string
}

func ParseProfile(doc *goquery.Document) domain.PostProfile {
	return ParseProfileDetailed(doc).Profile
}

func ParseProfileHTML(src string) domain.PostProfile {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return domain.PostProfile{}
	}
	return ParseProfile(doc)
}

func ParseProfileDetailed(doc *goquery.Document) ParseResult {
	res := ParseResult{Strategies: map[string]string{}}
	if doc == nil {
		return res
	}
	pg := newPage(doc)

	field := func(name string, chain []strategy) string {
		v, via := firstMatch(pg, chain)
		if via != "" {
			res.Strategies[name] = via
		}
		return FixMojibake(v)
	}

	p := domain.PostProfile{
		Nickname:      field("nickname", nicknameChain),
		Server:        field("server", serverChain),
		Job:           field("job", jobChain),
		Guild:         field("guild", guildChain),
		AdventureName: field("adventureName", adventureChain),
	}
	if lv, err := strconv.Atoi(field("level", levelChain)); err == nil {
		p.Level = lv
	}
	p.CombatPower = parseIntSafe(field("combatPower", combatPowerChain))
	p.AdventureLevel = int(parseIntSafe(field("adventureLevel", adventureLevelChain)))

	if src, ok := pg.container.Find("img[src]").First().Attr("src"); ok {
		p.AvatarURL = strings.TrimSpace(src)
	}

	res.Profile = p
	return res
}

func findContainer(doc *goquery.Document) *goquery.Selection {
	var anchor *goquery.Selection
	doc.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Is("script, style, noscript, title") || s.Children().Length() > 0 {
			return true
		}
		t := strings.ToLower(s.Text())
		for _, a := range containerAnchors {
			if strings.Contains(t, a) {
				anchor = s
				return false
			}
		}
		return true
	})
	if anchor != nil {
		if c := anchor.Closest(containerAncestors); c.Length() > 0 {
			return c.First()
		}
		if p := anchor.Parent(); p.Length() > 0 {
			return p
		}
	}

	for _, sel := range containerCandidates {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		if c := s.Closest(candidateAncestors); c.Length() > 0 {
			return c.First()
		}
		return s
	}

	if body := doc.Find("body"); body.Length() > 0 {
		return body.First()
	}
	return doc.Selection
}

// cutAtLabels trims a captured value at the first occurrence of another field label.
func cutAtLabels(v, self string) string {
	for _, l := range fieldLabels {
		if l == self || strings.Contains(self, l) {
			continue
		}
		if i := strings.Index(v, l); i >= 0 {
			v = v[:i]
		}
	}
	return strings.Trim(strings.TrimSpace(v), ":：|")
}

func submatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func collapseSpace(s string) string {
	return strings.TrimSpace(anySpaceRe.ReplaceAllString(s, " "))
}

func normalizeLines(s string) string {
	lines := strings.Split(horizontalSpaceRe.ReplaceAllString(s, " "), "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

var inlineTags = map[string]bool{
	"a": true, "abbr": true, "b": true, "em": true, "font": true, "i": true,
	"mark": true, "small": true, "strong": true, "sub": true, "sup": true, "u": true,
}

// visibleText concatenates text nodes, skipping scripts and styles, and puts
// sep between block-level elements so adjacent cells do not run together.
func visibleText(nodes []*html.Node, sep string) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}
		block := n.Type == html.ElementNode && !inlineTags[n.Data]
		if block {
			b.WriteString(sep)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteString(sep)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return b.String()
}
