package ranking

import (
	"sort"

	"guild-ranker/internal/domain"
)

// MergeMax collapses sightings of the same player, keyed by fingerprint,
// keeping the one with the highest combat power. Equal combat power keeps
// the earlier sighting. Output order follows first appearance.
func MergeMax(candidates []domain.GuildMember) []domain.GuildMember {
	idx := make(map[string]int, len(candidates))
	out := make([]domain.GuildMember, 0, len(candidates))
	for _, c := range candidates {
		fp := domain.Fingerprint(c.Server, c.Nickname)
		i, ok := idx[fp]
		if !ok {
			idx[fp] = len(out)
			out = append(out, c)
			continue
		}
		if c.CombatPower > out[i].CombatPower {
			out[i] = c
		}
	}
	return out
}

// SortMembers orders by combat power desc, then level desc, then nickname asc.
func SortMembers(members []domain.GuildMember) {
	sort.SliceStable(members, func(i, j int) bool {
		a, b := members[i], members[j]
		if a.CombatPower != b.CombatPower {
			return a.CombatPower > b.CombatPower
		}
		if a.Level != b.Level {
			return a.Level > b.Level
		}
		return a.Nickname < b.Nickname
	})
}

// TopRanked truncates to top and assigns 1-based ranks.
func TopRanked(members []domain.GuildMember, top int) []domain.GuildMember {
	if top > 0 && len(members) > top {
		members = members[:top]
	}
	out := make([]domain.GuildMember, len(members))
	for i, m := range members {
		m.Rank = i + 1
		out[i] = m
	}
	return out
}
