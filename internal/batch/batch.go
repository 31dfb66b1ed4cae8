// Package batch runs one function per id on a bounded pool and partitions the
// ids by outcome.
package batch

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/nikhilbhutani/promptkeeper/internal/models"
)

const (
	DefaultLimit = 8
	MaxLimit     = 32
)

// Func processes a single id. A returned error marks only that id as failed.
type Func func(ctx context.Context, id string) error

// ClampLimit bounds a configured concurrency into [1, MaxLimit].
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	}
	return n
}

// Run processes every id with at most limit calls in flight. Cancellation of
// ctx does not stop a started run: each position still gets exactly one call,
// and results keep input order. Repeats of an id run one after another in
// input order, never concurrently, so a later copy sees the earlier one's
// effect.
func Run(ctx context.Context, ids []string, limit int, fn Func) models.BulkResult {
	ctx = context.WithoutCancel(ctx)
	errs := make([]error, len(ids))

	var order []string
	positions := make(map[string][]int, len(ids))
	for i, id := range ids {
		if _, ok := positions[id]; !ok {
			order = append(order, id)
		}
		positions[id] = append(positions[id], i)
	}

	var g errgroup.Group
	g.SetLimit(ClampLimit(limit))
	for _, id := range order {
		g.Go(func() error {
			for _, i := range positions[id] {
				errs[i] = fn(ctx, id)
			}
			return nil
		})
	}
	_ = g.Wait()

	result := models.BulkResult{
		Successful: make([]string, 0, len(ids)),
		Failed:     []models.BulkFailure{},
	}
	for i, id := range ids {
		if errs[i] != nil {
			result.Failed = append(result.Failed, models.BulkFailure{PromptID: id, Error: errs[i].Error()})
			continue
		}
		result.Successful = append(result.Successful, id)
	}
	return result
}
