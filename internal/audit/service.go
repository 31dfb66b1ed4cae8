// Package audit keeps an append-only trail of destructive and bulk actions in
// the record store.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/netip"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/promptkeeper/internal/activity"
	"github.com/nikhilbhutani/promptkeeper/internal/identity"
	"github.com/nikhilbhutani/promptkeeper/internal/models"
	"github.com/nikhilbhutani/promptkeeper/internal/store"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

type Service struct {
	store store.Store
	now   func() time.Time
}

func NewService(s store.Store) *Service {
	return &Service{store: s, now: time.Now}
}

type LogEntry struct {
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Details      map[string]any
	IPAddress    string
}

func (s *Service) Log(ctx context.Context, entry LogEntry) error {
	if entry.UserID == "" {
		entry.UserID = identity.UserIDFromContext(ctx)
	}
	if entry.IPAddress == "" {
		entry.IPAddress = ClientIPFromContext(ctx)
	}

	var details json.RawMessage
	if len(entry.Details) > 0 {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
		details = b
	}

	var ip string
	if addr, err := netip.ParseAddr(entry.IPAddress); err == nil {
		ip = addr.String()
	}

	l := models.AuditLog{
		ID:           uuid.NewString(),
		UserID:       entry.UserID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Details:      details,
		IPAddress:    ip,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.Set(ctx, store.AuditLogPath(l.ID), l); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// Record stores a domain event as an audit entry.
func (s *Service) Record(ctx context.Context, ev activity.Event) error {
	return s.Log(ctx, LogEntry{
		UserID:       ev.ActorID,
		Action:       ev.Action,
		ResourceType: ev.ResourceType,
		ResourceID:   ev.ResourceID,
		Details:      ev.Details,
	})
}

type Query struct {
	StartDate *time.Time
	EndDate   *time.Time
	Action    string
	UserID    string
	Limit     int
	Offset    int
}

// GetAuditLogs returns matching entries, newest first.
func (s *Service) GetAuditLogs(ctx context.Context, q Query) ([]models.AuditLog, error) {
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	recs, err := s.store.List(ctx, store.AuditLogs)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	all, err := store.Decode[models.AuditLog](recs)
	if err != nil {
		return nil, err
	}

	logs := []models.AuditLog{}
	for _, l := range all {
		if q.Action != "" && l.Action != q.Action {
			continue
		}
		if q.UserID != "" && l.UserID != q.UserID {
			continue
		}
		if q.StartDate != nil && l.CreatedAt.Before(*q.StartDate) {
			continue
		}
		if q.EndDate != nil && l.CreatedAt.After(*q.EndDate) {
			continue
		}
		logs = append(logs, l)
	}
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].CreatedAt.After(logs[j].CreatedAt) })

	if q.Offset >= len(logs) {
		return []models.AuditLog{}, nil
	}
	logs = logs[q.Offset:]
	if len(logs) > q.Limit {
		logs = logs[:q.Limit]
	}
	return logs, nil
}
