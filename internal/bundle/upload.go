package bundle

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel uploads.
const DefaultConcurrency = 4

// Outcome describes what an upload did to one item.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeFailed    Outcome = "failed"
)

// Result is the outcome for one item.
type Result struct {
	Location string  `json:"location"`
	Outcome  Outcome `json:"outcome"`
	Error    string  `json:"error,omitempty"`
}

// UploadFunc pushes one item to the server.
type UploadFunc func(ctx context.Context, item Item) (Outcome, error)

// Upload runs fn for every item with at most concurrency calls in flight.
// A failing item does not stop the others; only context cancellation does.
// Results are sorted by location.
func Upload(ctx context.Context, items []Item, concurrency int, fn UploadFunc) ([]Result, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var mu sync.Mutex
	results := make([]Result, 0, len(items))

	for _, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcome, err := fn(gctx, item)
			res := Result{Location: item.Location, Outcome: outcome}
			if err != nil {
				res.Outcome = OutcomeFailed
				res.Error = err.Error()
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Location < results[j].Location })
	return results, err
}
