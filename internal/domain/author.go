package domain

import (
	"strings"
	"time"
)

type Author struct {
	Key            string
	Server         string
	Nickname       string
	Job            string
	Level          int
	CombatPower    int64
	Guild          string
	AdventureName  string
	AdventureLevel int
	AvatarURL      string
	UserID         string
	LastPostID     string

	PreviousCombatPower *int64
	CombatPowerDelta    *int64
	LastCheckedAt       *time.Time
	UpdatedAt           time.Time
}

// Fingerprint is the dedup key lower(server):lower(nickname).
func Fingerprint(server, nickname string) string {
	return strings.ToLower(strings.TrimSpace(server)) + ":" + strings.ToLower(strings.TrimSpace(nickname))
}

// AuthorKey returns the natural key for a player, falling back to user:<id>
// when server or nickname is missing. Empty means no usable key.
func AuthorKey(server, nickname, userID string) string {
	server = strings.TrimSpace(server)
	nickname = strings.TrimSpace(nickname)
	if server != "" && nickname != "" {
		return Fingerprint(server, nickname)
	}
	userID = strings.TrimSpace(userID)
	if userID != "" {
		return "user:" + userID
	}
	return ""
}

func AuthorFromProfile(p PostProfile, userID string) Author {
	return Author{
		Key:            AuthorKey(p.Server, p.Nickname, userID),
		Server:         p.Server,
		Nickname:       p.Nickname,
		Job:            p.Job,
		Level:          p.Level,
		CombatPower:    p.CombatPower,
		Guild:          p.Guild,
		AdventureName:  p.AdventureName,
		AdventureLevel: p.AdventureLevel,
		AvatarURL:      p.AvatarURL,
		UserID:         strings.TrimSpace(userID),
	}
}

// GuildMatches is a case-insensitive substring test. An empty filter matches.
func GuildMatches(guild, filter string) bool {
	return strings.Contains(strings.ToLower(guild), strings.ToLower(strings.TrimSpace(filter)))
}
