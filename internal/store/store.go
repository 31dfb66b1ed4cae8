// Package store is the record store the services read and write through. Records
// are JSON documents addressed by slash-separated paths such as prompts/{id}.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
)

// Store is the minimal surface the core consumes. Update and Mutate are the
// only multi-path writes; Mutate is the only read-modify-write.
type Store interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
	Set(ctx context.Context, path string, value any) error
	// Remove deletes the record and everything beneath it. Removing an absent
	// path succeeds.
	Remove(ctx context.Context, path string) error
	// Update applies a multi-path write; a nil value removes that path.
	Update(ctx context.Context, updates map[string]any) error
	// Mutate reads path and applies the writes fn returns atomically with
	// that read. An absent path fails with apperr.ErrNotFound before fn runs,
	// so a record removed concurrently is never written back. fn must not
	// call the store.
	Mutate(ctx context.Context, path string, fn MutateFunc) error
	QueryEqual(ctx context.Context, collection, field string, value any) ([]Record, error)
	List(ctx context.Context, collection string) ([]Record, error)
}

// MutateFunc receives the current record and returns the paths to write; a
// nil value removes that path. Returning an error aborts without writing.
type MutateFunc func(current json.RawMessage) (map[string]any, error)

type Record struct {
	Path string
	Data json.RawMessage
}

// Key returns the last path segment.
func (r Record) Key() string { return path.Base(r.Path) }

const (
	Users             = "users"
	Teams             = "teams"
	Prompts           = "prompts"
	PromptAssignments = "prompt_assignments"
	UsageLogs         = "usage_logs"
	DeletionBackups   = "deletion_backups"
	AuditLogs         = "audit_logs"
	Webhooks          = "webhooks"
)

func UserPath(id string) string   { return Users + "/" + id }
func TeamPath(id string) string   { return Teams + "/" + id }
func PromptPath(id string) string { return Prompts + "/" + id }
func BackupPath(promptID string) string {
	return DeletionBackups + "/" + promptID
}
func AssignmentPath(teamID, promptID string) string {
	return PromptAssignments + "/" + teamID + "/" + promptID
}
func UsageLogPath(id string) string { return UsageLogs + "/" + id }
func AuditLogPath(id string) string { return AuditLogs + "/" + id }
func WebhookPath(id string) string  { return Webhooks + "/" + id }

// Parent returns the collection a path belongs to.
func Parent(p string) string {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return ""
	}
	return p[:i]
}

func validatePath(p string) error {
	if p == "" || strings.HasPrefix(p, "/") || strings.HasSuffix(p, "/") || strings.Contains(p, "//") {
		return apperr.Invalid("path", fmt.Sprintf("malformed path %q", p))
	}
	return nil
}

// GetJSON reads path into a freshly allocated T.
func GetJSON[T any](ctx context.Context, s Store, p string) (*T, error) {
	raw, err := s.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", p, err)
	}
	return &v, nil
}

// MutateJSON decodes path into T, lets fn change it and writes it back with
// any extra paths fn returns. fn may remove path itself by mapping it to nil.
// The value fn left behind is returned.
func MutateJSON[T any](ctx context.Context, s Store, p string, fn func(v *T) (map[string]any, error)) (*T, error) {
	var out *T
	err := s.Mutate(ctx, p, func(current json.RawMessage) (map[string]any, error) {
		var v T
		if err := json.Unmarshal(current, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", p, err)
		}
		extra, err := fn(&v)
		if err != nil {
			return nil, err
		}
		writes := make(map[string]any, len(extra)+1)
		for k, val := range extra {
			writes[k] = val
		}
		if _, ok := writes[p]; !ok {
			writes[p] = &v
		}
		out = &v
		return writes, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Decode unmarshals every record into T, preserving order.
func Decode[T any](records []Record) ([]T, error) {
	out := make([]T, 0, len(records))
	for _, r := range records {
		var v T
		if err := json.Unmarshal(r.Data, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", r.Path, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func marshal(value any) (json.RawMessage, error) {
	if raw, ok := value.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return data, nil
}
