package ranking

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// runChunks processes ids in chunks of width, waiting for each chunk before
// starting the next. proceed is checked before every chunk; when it returns
// false the remaining ids are left untouched. In-flight work is never cancelled.
func runChunks(ctx context.Context, ids []string, width int, proceed func() bool, fn func(ctx context.Context, id string)) (started int) {
	if width <= 0 {
		width = 1
	}
	for lo := 0; lo < len(ids); lo += width {
		if ctx.Err() != nil || !proceed() {
			return started
		}
		hi := min(lo+width, len(ids))

		var g errgroup.Group
		g.SetLimit(width)
		for _, id := range ids[lo:hi] {
			g.Go(func() error {
				fn(ctx, id)
				return nil
			})
		}
		_ = g.Wait()
		started += hi - lo
	}
	return started
}
