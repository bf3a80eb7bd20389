package warehouse

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/rpattn/retaildwh/internal/domain"
	"github.com/rpattn/retaildwh/internal/repository"
)

// AggregateRefresher rebuilds the analytics views after a load. Views
// refresh independently: one failure is recorded and the cycle continues, so
// a broken view never holds the others stale.
type AggregateRefresher struct {
	views []repository.RefreshableView
	busy  atomic.Bool
}

func NewAggregateRefresher(views []repository.RefreshableView) *AggregateRefresher {
	return &AggregateRefresher{views: views}
}

// RefreshAll rebuilds every view once. Overlapping cycles are rejected with
// ErrRefreshInProgress rather than queued.
func (r *AggregateRefresher) RefreshAll(ctx context.Context) ([]domain.RefreshResult, error) {
	if !r.busy.CompareAndSwap(false, true) {
		return nil, domain.ErrRefreshInProgress
	}
	defer r.busy.Store(false)

	results := make([]domain.RefreshResult, 0, len(r.views))
	for _, view := range r.views {
		started := time.Now()
		err := view.Refresh(ctx)
		result := domain.RefreshResult{
			ViewName:   view.Name(),
			Status:     domain.RefreshStatusOK,
			Duration:   time.Since(started),
			FinishedAt: time.Now().UTC(),
		}
		if err != nil {
			result.Status = domain.RefreshStatusFailed
			result.Err = err
			result.ErrorText = err.Error()
			log.Printf("refresh of %s failed: %v", view.Name(), err)
		} else {
			log.Printf("refreshed %s in %s", view.Name(), result.Duration.Round(time.Millisecond))
		}
		results = append(results, result)
	}
	return results, nil
}

// Failed returns the subset of results that did not complete.
func Failed(results []domain.RefreshResult) []domain.RefreshResult {
	var out []domain.RefreshResult
	for _, r := range results {
		if r.Status == domain.RefreshStatusFailed {
			out = append(out, r)
		}
	}
	return out
}
