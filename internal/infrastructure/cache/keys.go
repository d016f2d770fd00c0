package cache

import (
	"context"
	"strings"
)

const snapshotPrefix = "guildsnap:"

// SnapshotKey is the cache key for a guild snapshot.
func SnapshotKey(guildFilter string) string {
	return snapshotPrefix + strings.ToLower(strings.TrimSpace(guildFilter))
}

// InvalidateSnapshots drops every cached guild snapshot.
func InvalidateSnapshots(ctx context.Context, c JSONCache) error {
	if c == nil || !c.Available() {
		return nil
	}
	return c.DeleteByPattern(ctx, snapshotPrefix+"*")
}
