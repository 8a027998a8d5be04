// Package fanout is the bounded-concurrency executor for card-processor
// calls. Tasks in one batch must be independent of each other: there is no
// ordering guarantee among them.
package fanout

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// DefaultWidth is the processor-call concurrency used when the configured
// width is zero or negative.
const DefaultWidth = 5

// ForEach runs fn for every item with at most width goroutines in flight.
// All items are attempted; the errors of failed tasks are joined and the
// originals stay reachable through errors.Is/errors.As. A panicking task is
// re-panicked in the caller with its original stack attached, so unexpected
// failures inside a worker are never swallowed at the pool boundary.
func ForEach[T any](ctx context.Context, width int, items []T, fn func(ctx context.Context, item T) error) error {
	if len(items) == 0 {
		return nil
	}
	if width <= 0 {
		width = DefaultWidth
	}
	p := pool.New().WithMaxGoroutines(width).WithErrors().WithContext(ctx)
	for _, item := range items {
		item := item
		p.Go(func(ctx context.Context) error {
			return fn(ctx, item)
		})
	}
	return p.Wait()
}
