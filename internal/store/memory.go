package store

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
)

// Memory keeps records in process. It backs tests and deployments started
// without a database.
type Memory struct {
	mu      sync.RWMutex
	records map[string]json.RawMessage
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]json.RawMessage)}
}

func (m *Memory) Get(_ context.Context, p string) (json.RawMessage, error) {
	if err := validatePath(p); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.records[p]
	if !ok {
		return nil, apperr.NotFound("record %s", p)
	}
	return append(json.RawMessage(nil), data...), nil
}

func (m *Memory) Set(_ context.Context, p string, value any) error {
	if err := validatePath(p); err != nil {
		return err
	}
	data, err := marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[p] = append(json.RawMessage(nil), data...)
	return nil
}

func (m *Memory) Remove(_ context.Context, p string) error {
	if err := validatePath(p); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(p)
	return nil
}

func (m *Memory) removeLocked(p string) {
	delete(m.records, p)
	prefix := p + "/"
	for k := range m.records {
		if strings.HasPrefix(k, prefix) {
			delete(m.records, k)
		}
	}
}

func (m *Memory) Update(_ context.Context, updates map[string]any) error {
	encoded, err := encodeUpdates(updates)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyLocked(encoded)
	return nil
}

func (m *Memory) Mutate(_ context.Context, p string, fn MutateFunc) error {
	if err := validatePath(p); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.records[p]
	if !ok {
		return apperr.NotFound("record %s", p)
	}
	updates, err := fn(append(json.RawMessage(nil), data...))
	if err != nil {
		return err
	}
	encoded, err := encodeUpdates(updates)
	if err != nil {
		return err
	}
	m.applyLocked(encoded)
	return nil
}

// encodeUpdates validates and marshals a multi-path write. Removals map to nil.
func encodeUpdates(updates map[string]any) (map[string]json.RawMessage, error) {
	encoded := make(map[string]json.RawMessage, len(updates))
	for p, v := range updates {
		if err := validatePath(p); err != nil {
			return nil, err
		}
		if v == nil {
			encoded[p] = nil
			continue
		}
		data, err := marshal(v)
		if err != nil {
			return nil, err
		}
		encoded[p] = data
	}
	return encoded, nil
}

func (m *Memory) applyLocked(encoded map[string]json.RawMessage) {
	for p, data := range encoded {
		if data == nil {
			m.removeLocked(p)
			continue
		}
		m.records[p] = append(json.RawMessage(nil), data...)
	}
}

func (m *Memory) QueryEqual(ctx context.Context, collection, field string, value any) ([]Record, error) {
	want, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	all, err := m.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, r := range all {
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(r.Data, &doc); err != nil {
			continue
		}
		if got, ok := doc[field]; ok && jsonEqual(got, want) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) List(_ context.Context, collection string) ([]Record, error) {
	if err := validatePath(collection); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for k, v := range m.records {
		if Parent(k) == collection {
			out = append(out, Record{Path: k, Data: append(json.RawMessage(nil), v...)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func jsonEqual(a, b json.RawMessage) bool {
	var x, y any
	if json.Unmarshal(a, &x) != nil || json.Unmarshal(b, &y) != nil {
		return bytes.Equal(a, b)
	}
	xa, _ := json.Marshal(x)
	ya, _ := json.Marshal(y)
	return bytes.Equal(xa, ya)
}
