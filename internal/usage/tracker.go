// Package usage records prompt usage events and aggregates them into analytics.
package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
	"github.com/nikhilbhutani/promptkeeper/internal/metrics"
	"github.com/nikhilbhutani/promptkeeper/internal/models"
	"github.com/nikhilbhutani/promptkeeper/internal/store"
)

type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// Tracker queues usage events and writes them in batches, either when the
// queue reaches BatchSize or FlushInterval after the first queued event.
// Each Tracker owns its queue and timer.
type Tracker struct {
	store store.Store
	cfg   Config
	now   func() time.Time

	mu     sync.Mutex
	queue  []models.UsageLog
	timer  *time.Timer
	closed bool

	// flushMu serializes writers so prompt counters are not double-counted.
	flushMu sync.Mutex
}

func NewTracker(s store.Store, cfg Config) *Tracker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	return &Tracker{store: s, cfg: cfg, now: time.Now}
}

// Track queues one event for user on promptID.
func (t *Tracker) Track(ctx context.Context, user *models.User, promptID string, action models.UsageAction) error {
	if user == nil {
		return apperr.Unauthorized("usage requires a signed-in user")
	}
	if promptID == "" {
		return apperr.Invalid("promptId", "required")
	}
	if !action.Valid() {
		return apperr.Invalid("action", fmt.Sprintf("unknown action %q", action))
	}

	entry := models.UsageLog{
		ID:        uuid.NewString(),
		PromptID:  promptID,
		UserID:    user.ID,
		TeamID:    user.TeamID,
		Timestamp: t.now().UTC(),
		Action:    action,
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.New("usage tracker closed")
	}
	t.queue = append(t.queue, entry)
	full := len(t.queue) >= t.cfg.BatchSize
	if !full && t.timer == nil {
		t.timer = time.AfterFunc(t.cfg.FlushInterval, func() {
			if err := t.Flush(context.Background()); err != nil {
				slog.Error("scheduled usage flush failed", "error", err)
			}
		})
	}
	t.mu.Unlock()

	if full {
		return t.Flush(ctx)
	}
	return nil
}

// Pending reports the number of queued events.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Flush writes every queued event and bumps usageCount/lastUsed on the
// affected prompts. Events for prompts that no longer exist are still logged.
func (t *Tracker) Flush(ctx context.Context) error {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()

	t.mu.Lock()
	batch := t.queue
	t.queue = nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	updates := make(map[string]any, len(batch))
	counts := map[string]int{}
	last := map[string]time.Time{}
	for _, e := range batch {
		updates[store.UsageLogPath(e.ID)] = e
		counts[e.PromptID]++
		if e.Timestamp.After(last[e.PromptID]) {
			last[e.PromptID] = e.Timestamp
		}
	}
	if err := t.store.Update(ctx, updates); err != nil {
		metrics.RecordUsageFlush("failed", len(batch))
		return fmt.Errorf("write usage logs: %w", err)
	}

	var errs []error
	for promptID, n := range counts {
		if err := t.bumpPrompt(ctx, promptID, n, last[promptID]); err != nil {
			errs = append(errs, err)
		}
	}
	metrics.RecordUsageFlush("ok", len(batch))
	slog.Debug("flushed usage events", "count", len(batch), "prompts", len(counts))
	return errors.Join(errs...)
}

// bumpPrompt adds n uses to the live prompt. A prompt deleted in the meantime
// stays deleted.
func (t *Tracker) bumpPrompt(ctx context.Context, promptID string, n int, lastUsed time.Time) error {
	_, err := store.MutateJSON(ctx, t.store, store.PromptPath(promptID), func(p *models.Prompt) (map[string]any, error) {
		p.UsageCount += n
		if p.LastUsed == nil || lastUsed.After(*p.LastUsed) {
			p.LastUsed = &lastUsed
		}
		return nil, nil
	})
	if apperr.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("update usage count for %s: %w", promptID, err)
	}
	return nil
}

// Close flushes what is queued and rejects further events.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return t.Flush(ctx)
}
