// Package webhook lets super users register HTTP endpoints that are notified
// of prompt deletions, restores, bulk runs and imports.
package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/promptkeeper/internal/activity"
	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
	"github.com/nikhilbhutani/promptkeeper/internal/models"
	"github.com/nikhilbhutani/promptkeeper/internal/store"
)

var knownEvents = map[string]bool{
	activity.PromptDeleted:   true,
	activity.PromptRestored:  true,
	activity.BulkCompleted:   true,
	activity.ImportCompleted: true,
	"*":                      true,
}

type Service struct {
	store      store.Store
	dispatcher *Dispatcher
	now        func() time.Time
}

func NewService(s store.Store, dispatcher *Dispatcher) *Service {
	return &Service{store: s, dispatcher: dispatcher, now: time.Now}
}

type CreateRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

// Create registers a webhook. The signing secret is only returned here.
func (s *Service) Create(ctx context.Context, actor *models.User, req CreateRequest) (*models.Webhook, error) {
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperr.Invalid("url", "must be an absolute http or https URL")
	}
	if len(req.Events) == 0 {
		return nil, apperr.Invalid("events", "at least one event is required")
	}
	for _, e := range req.Events {
		if !knownEvents[e] {
			return nil, apperr.Invalid("events", fmt.Sprintf("unknown event %q", e))
		}
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	wh := models.Webhook{
		ID:        uuid.NewString(),
		URL:       u.String(),
		Events:    req.Events,
		Secret:    secret,
		IsActive:  true,
		CreatedAt: s.now().UTC(),
	}
	if actor != nil {
		wh.CreatedBy = actor.ID
	}
	if err := s.store.Set(ctx, store.WebhookPath(wh.ID), wh); err != nil {
		return nil, fmt.Errorf("insert webhook: %w", err)
	}
	return &wh, nil
}

// List returns every webhook without its secret, newest first.
func (s *Service) List(ctx context.Context) ([]models.Webhook, error) {
	all, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		all[i].Secret = ""
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return all, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.store.Get(ctx, store.WebhookPath(id)); err != nil {
		return fmt.Errorf("get webhook %s: %w", id, err)
	}
	return s.store.Remove(ctx, store.WebhookPath(id))
}

type payload struct {
	Event        string         `json:"event"`
	ActorID      string         `json:"actorId,omitempty"`
	ResourceType string         `json:"resourceType,omitempty"`
	ResourceID   string         `json:"resourceId,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	OccurredAt   time.Time      `json:"occurredAt"`
}

// Record dispatches a domain event to every active webhook subscribed to it.
func (s *Service) Record(ctx context.Context, ev activity.Event) error {
	if s.dispatcher == nil {
		return nil
	}
	hooks, err := s.all(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload{
		Event:        ev.Action,
		ActorID:      ev.ActorID,
		ResourceType: ev.ResourceType,
		ResourceID:   ev.ResourceID,
		Details:      ev.Details,
		OccurredAt:   s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	for _, wh := range hooks {
		if !wh.IsActive || !wh.Subscribed(ev.Action) {
			continue
		}
		s.dispatcher.Enqueue(DeliveryRequest{
			WebhookID: wh.ID,
			URL:       wh.URL,
			Secret:    wh.Secret,
			Event:     ev.Action,
			Payload:   body,
		})
	}
	return nil
}

func (s *Service) all(ctx context.Context) ([]models.Webhook, error) {
	recs, err := s.store.List(ctx, store.Webhooks)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	return store.Decode[models.Webhook](recs)
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(b), nil
}
