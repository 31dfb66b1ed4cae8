package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
	"github.com/nikhilbhutani/promptkeeper/internal/models"
	"github.com/nikhilbhutani/promptkeeper/internal/store"
)

type Service struct {
	store store.Store
	now   func() time.Time
}

func NewService(s store.Store) *Service {
	return &Service{store: s, now: time.Now}
}

func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := store.GetJSON[models.User](ctx, s.store, store.UserPath(id))
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

// Resolve returns the stored user for an authenticated subject, creating a
// baseline record on first sign-in. Roles and teams come only from the
// stored record, never from the token.
func (s *Service) Resolve(ctx context.Context, subject, email string) (*models.User, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" || strings.Contains(subject, "/") {
		return nil, apperr.Unauthorized("invalid subject")
	}
	u, err := s.GetUser(ctx, subject)
	if err == nil {
		return u, nil
	}
	if !apperr.IsNotFound(err) {
		return nil, err
	}

	u = &models.User{
		ID:        subject,
		Email:     email,
		Role:      models.RoleUser,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Set(ctx, store.UserPath(u.ID), u); err != nil {
		return nil, fmt.Errorf("provision user %s: %w", subject, err)
	}
	return u, nil
}

// SetRole changes a user's global role.
func (s *Service) SetRole(ctx context.Context, id string, role models.UserRole) (*models.User, error) {
	if role != models.RoleUser && role != models.RoleSuperUser {
		return nil, apperr.Invalid("role", fmt.Sprintf("unknown role %q", role))
	}
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Role = role
	if err := s.store.Set(ctx, store.UserPath(id), u); err != nil {
		return nil, fmt.Errorf("update user %s: %w", id, err)
	}
	return u, nil
}
