// Package subscription delivers prompt snapshots to subscribers. The record
// store has no push primitive, so a Poller re-runs the query on an interval
// and hands the callback every snapshot that differs from the last one.
package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nikhilbhutani/promptkeeper/internal/models"
)

const DefaultInterval = 2 * time.Second

// Query produces the current snapshot.
type Query func(ctx context.Context) ([]models.Prompt, error)

type Poller struct {
	interval time.Duration
}

func NewPoller(interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{interval: interval}
}

// Subscribe runs q immediately and then on every tick, calling fn with each
// changed snapshot. fn is never called concurrently with itself. The returned
// function stops the subscription and waits for an in-flight callback; it is
// safe to call more than once.
func (p *Poller) Subscribe(ctx context.Context, q Query, fn func([]models.Prompt)) (unsubscribe func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		var last []byte
		for {
			snap, err := q(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("subscription poll failed", "error", err)
			} else if fp, err := json.Marshal(snap); err == nil && (last == nil || !bytes.Equal(fp, last)) {
				last = fp
				fn(snap)
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
