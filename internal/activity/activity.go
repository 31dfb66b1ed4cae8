// Package activity carries domain events from the services to their
// observers (audit trail, webhooks).
package activity

import (
	"context"
	"log/slog"
)

const (
	PromptDeleted   = "prompt.deleted"
	PromptRestored  = "prompt.restored"
	BulkCompleted   = "bulk.completed"
	ImportCompleted = "import.completed"
)

type Event struct {
	Action       string
	ActorID      string
	ResourceType string
	ResourceID   string
	Details      map[string]any
}

type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Multi fans an event out to every recorder. Failures are logged; an
// observer never fails the operation that produced the event.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, ev Event) error {
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, ev); err != nil {
			slog.Warn("activity recorder failed", "action", ev.Action, "resource_id", ev.ResourceID, "error", err)
		}
	}
	return nil
}

type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }
