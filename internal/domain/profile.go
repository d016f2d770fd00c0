package domain

import "unicode/utf8"

// PostProfile is the character card scraped from a post or profile page.
// Zero values mean "not found on the page".
type PostProfile struct {
	Nickname       string `json:"nickname"`
	Level          int    `json:"level"`
	Server         string `json:"server"`
	Job            string `json:"job"`
	CombatPower    int64  `json:"combatPower"`
	Guild          string `json:"guild,omitempty"`
	AdventureName  string `json:"adventureName,omitempty"`
	AdventureLevel int    `json:"adventureLevel,omitempty"`
	AvatarURL      string `json:"avatarUrl,omitempty"`
}

// Insufficient reports whether p carries too little signal to be trusted.
// Any of nickname, server, job, a positive combat power or a guild of at least
// two characters makes it usable.
func (p PostProfile) Insufficient() bool {
	if p.Nickname != "" || p.Server != "" || p.Job != "" {
		return false
	}
	if p.CombatPower > 0 {
		return false
	}
	return utf8.RuneCountInString(p.Guild) < 2
}

// HasIdentity reports whether p can be keyed by server and nickname.
func (p PostProfile) HasIdentity() bool {
	return p.Server != "" && p.Nickname != ""
}

type OutcomeKind int

const (
	OutcomeNotFound OutcomeKind = iota
	OutcomeInsufficient
	OutcomeProfile
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNotFound:
		return "not_found"
	case OutcomeInsufficient:
		return "insufficient"
	case OutcomeProfile:
		return "profile"
	default:
		return "unknown"
	}
}

// ScrapeOutcome is the result of scraping one post or profile page.
// Profile is only meaningful when Kind is OutcomeProfile; for
// OutcomeInsufficient it holds whatever partial data was parsed.
type ScrapeOutcome struct {
	Kind         OutcomeKind
	Profile      PostProfile
	UsedFallback bool
	SourceURL    string
}

func NotFound(sourceURL string) ScrapeOutcome {
	return ScrapeOutcome{Kind: OutcomeNotFound, SourceURL: sourceURL}
}

func InsufficientOutcome(sourceURL string, partial PostProfile, usedFallback bool) ScrapeOutcome {
	return ScrapeOutcome{Kind: OutcomeInsufficient, Profile: partial, UsedFallback: usedFallback, SourceURL: sourceURL}
}

func Found(sourceURL string, p PostProfile, usedFallback bool) ScrapeOutcome {
	return ScrapeOutcome{Kind: OutcomeProfile, Profile: p, UsedFallback: usedFallback, SourceURL: sourceURL}
}

// Classify maps a parsed profile onto Found or InsufficientOutcome.
func Classify(sourceURL string, p PostProfile, usedFallback bool) ScrapeOutcome {
	if p.Insufficient() {
		return InsufficientOutcome(sourceURL, p, usedFallback)
	}
	return Found(sourceURL, p, usedFallback)
}

func (o ScrapeOutcome) Exists() bool {
	return o.Kind == OutcomeProfile
}
