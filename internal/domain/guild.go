package domain

import "time"

type GuildMember struct {
	Rank           int    `json:"rank"`
	Nickname       string `json:"nickname"`
	Server         string `json:"server"`
	Job            string `json:"job"`
	Level          int    `json:"level"`
	CombatPower    int64  `json:"combatPower"`
	Guild          string `json:"guild,omitempty"`
	AdventureName  string `json:"adventureName,omitempty"`
	AdventureLevel int    `json:"adventureLevel,omitempty"`
	AvatarURL      string `json:"avatarUrl,omitempty"`
	PostID         string `json:"postId,omitempty"`
	UserID         string `json:"userId,omitempty"`

	PreviousCombatPower *int64     `json:"previousCombatPower,omitempty"`
	CombatPowerDelta    *int64     `json:"combatPowerDelta,omitempty"`
	LastCheckedAt       *time.Time `json:"lastCheckedAt,omitempty"`
}

func MemberFromProfile(p PostProfile, postID string) GuildMember {
	return GuildMember{
		Nickname:       p.Nickname,
		Server:         p.Server,
		Job:            p.Job,
		Level:          p.Level,
		CombatPower:    p.CombatPower,
		Guild:          p.Guild,
		AdventureName:  p.AdventureName,
		AdventureLevel: p.AdventureLevel,
		AvatarURL:      p.AvatarURL,
		PostID:         postID,
	}
}

const (
	RankingSourceDB       = "db"
	RankingSourceSnapshot = "snapshot"
	RankingSourceCache    = "cache"
)

type GuildRanking struct {
	Guild        string         `json:"guild"`
	Top          int            `json:"top"`
	SampledPages int            `json:"sampledPages"`
	Members      []GuildMember  `json:"members"`
	SourceURL    string         `json:"sourceUrl"`
	GeneratedAt  time.Time      `json:"generatedAt"`
	Source       string         `json:"source"`
	Debug        *SnapshotDebug `json:"debug,omitempty"`
}

type SnapshotDebug struct {
	PostIDsFound   int         `json:"postIdsFound"`
	DetailedParsed int         `json:"detailedParsed"`
	GuildMatched   int         `json:"guildMatched"`
	FirstIDs       []string    `json:"firstIds"`
	ListStats      []ListStats `json:"listStats"`
	TimedOut       bool        `json:"timedOut"`
}

// ListStats is per-page telemetry from a list crawl.
type ListStats struct {
	Page           int   `json:"page"`
	HTMLLen        int   `json:"htmlLen"`
	IDsFound       int   `json:"idsFound"`
	HrefMatches    int   `json:"hrefMatches"`
	OnclickMatches int   `json:"onclickMatches"`
	HasLoginWord   bool  `json:"hasLoginWord"`
	UsedFallback   bool  `json:"usedFallback"`
	ElapsedMs      int64 `json:"elapsedMs"`
}
