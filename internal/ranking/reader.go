package ranking

import (
	"context"
	"strings"
	"time"

	"guild-ranker/internal/domain"
	"guild-ranker/internal/repository"
)

// Reader serves rankings from stored authors.
type Reader struct {
	authors   repository.AuthorRepository
	sourceURL string
	now       func() time.Time
}

func NewReader(authors repository.AuthorRepository, sourceURL string) *Reader {
	return &Reader{authors: authors, sourceURL: sourceURL, now: time.Now}
}

func (r *Reader) GetGuildRankingFromDb(ctx context.Context, guildFilter string, top int) (domain.GuildRanking, error) {
	guildFilter = strings.TrimSpace(guildFilter)
	authors, err := r.authors.ListGuildRanking(ctx, guildFilter, top)
	if err != nil {
		return domain.GuildRanking{}, err
	}

	members := make([]domain.GuildMember, 0, len(authors))
	for i, a := range authors {
		members = append(members, domain.GuildMember{
			Rank:                i + 1,
			Nickname:            a.Nickname,
			Server:              a.Server,
			Job:                 a.Job,
			Level:               a.Level,
			CombatPower:         a.CombatPower,
			Guild:               a.Guild,
			AdventureName:       a.AdventureName,
			AdventureLevel:      a.AdventureLevel,
			AvatarURL:           a.AvatarURL,
			PostID:              a.LastPostID,
			UserID:              a.UserID,
			PreviousCombatPower: a.PreviousCombatPower,
			CombatPowerDelta:    a.CombatPowerDelta,
			LastCheckedAt:       a.LastCheckedAt,
		})
	}

	return domain.GuildRanking{
		Guild:       guildFilter,
		Top:         top,
		Members:     members,
		SourceURL:   r.sourceURL,
		GeneratedAt: r.now().UTC(),
		Source:      domain.RankingSourceDB,
	}, nil
}
