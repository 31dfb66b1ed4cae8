package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/promptkeeper/internal/config"
)

type fakeProvider struct {
	name     string
	failures int

	mu    sync.Mutex
	calls int
	last  Request
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(_ context.Context, req Request) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	if f.calls <= f.failures {
		return nil, errors.New("upstream unavailable")
	}
	return &Response{Provider: f.name, Model: req.Model, Content: "ok from " + f.name}, nil
}

func testGateway(cfg config.LLMConfig, providers ...Provider) *Gateway {
	g := NewGatewayWith(cfg, providers...)
	g.retryDelay = 0
	return g
}

func TestGatewayRetriesThenSucceeds(t *testing.T) {
	primary := &fakeProvider{name: "openai", failures: 2}
	g := testGateway(config.LLMConfig{DefaultProvider: "openai", DefaultModel: "gpt-4o-mini", MaxRetries: 3}, primary)

	resp, err := g.Complete(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "ok from openai", resp.Content)
	assert.Equal(t, 3, primary.calls)
	assert.Equal(t, "gpt-4o-mini", primary.last.Model)
}

func TestGatewayFallsBack(t *testing.T) {
	primary := &fakeProvider{name: "openai", failures: 100}
	fallback := &fakeProvider{name: "anthropic"}
	g := testGateway(config.LLMConfig{
		DefaultProvider:  "openai",
		DefaultModel:     "gpt-4o-mini",
		FallbackProvider: "anthropic",
		MaxRetries:       1,
	}, primary, fallback)

	resp, err := g.Complete(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, 1, fallback.calls)
	assert.Empty(t, fallback.last.Model)
}

func TestGatewayUnknownProvider(t *testing.T) {
	g := testGateway(config.LLMConfig{DefaultProvider: "openai"})
	assert.False(t, g.Available())

	_, err := g.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestOpenAIProviderComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "tighter prompt"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 1000, "completion_tokens": 1000, "total_tokens": 2000}
		}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", srv.URL+"/v1")
	resp, err := p.Complete(context.Background(), Request{
		Messages: []Message{{Role: "system", Content: "be brief"}, {Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.Len(t, got["messages"], 2)
	assert.Equal(t, "tighter prompt", resp.Content)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, 1000, resp.InputTokens)
	assert.InDelta(t, 0.00075, resp.CostUSD, 1e-9)
}

func TestSplitSystem(t *testing.T) {
	system, rest := splitSystem([]Message{
		{Role: "system", Content: "a"},
		{Role: "user", Content: "q"},
		{Role: "system", Content: "b"},
	})
	assert.Equal(t, "a\n\nb", system)
	assert.Equal(t, []Message{{Role: "user", Content: "q"}}, rest)
}

func TestCalculateCostUnknownModel(t *testing.T) {
	assert.Zero(t, CalculateCost("mystery", 10, 10))
}
