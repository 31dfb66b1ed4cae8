package optimizer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
	"github.com/nikhilbhutani/promptkeeper/internal/llm"
	"github.com/nikhilbhutani/promptkeeper/internal/models"
	"github.com/nikhilbhutani/promptkeeper/internal/prompt"
	"github.com/nikhilbhutani/promptkeeper/internal/store"
	"github.com/nikhilbhutani/promptkeeper/internal/store/storetest"
)

var (
	alice = &models.User{ID: "alice", TeamID: "t1", Role: models.RoleUser}
	carol = &models.User{ID: "carol", TeamID: "t2", Role: models.RoleUser}
)

type stubLLM struct {
	content string
	err     error
	last    llm.Request
}

func (s *stubLLM) Available() bool { return true }

func (s *stubLLM) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Provider: "openai", Model: "gpt-4o-mini", Content: s.content, CostUSD: 0.001}, nil
}

type recordingTracker struct {
	mu     sync.Mutex
	events []models.UsageAction
}

func (r *recordingTracker) Track(_ context.Context, _ *models.User, _ string, action models.UsageAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, action)
	return nil
}

func setup(t *testing.T, c Completer) (*Service, *recordingTracker, store.Store) {
	t.Helper()
	s := store.NewMemory()
	storetest.Team(t, s, "t1", "Platform", "alice")
	storetest.Prompt(t, s, models.Prompt{ID: "p1", CreatedBy: "alice", Content: "summarize {{text}}"})
	storetest.Prompt(t, s, models.Prompt{ID: "g1", CreatedBy: "alice", Sharing: models.SharingGlobal, Content: "hello"})
	tracker := &recordingTracker{}
	return NewService(prompt.NewService(s), c, tracker), tracker, s
}

func TestOptimizeSuggests(t *testing.T) {
	stub := &stubLLM{content: "```\nSummarize {{text}} in three bullet points.\n```"}
	svc, tracker, s := setup(t, stub)

	res, err := svc.Optimize(context.Background(), alice, "p1", Request{Goal: "shorter output"})
	require.NoError(t, err)

	assert.Equal(t, "Summarize {{text}} in three bullet points.", res.Optimized)
	assert.Equal(t, "summarize {{text}}", res.Original)
	assert.False(t, res.Applied)
	assert.Contains(t, stub.last.Messages[1].Content, "Goal: shorter output")
	assert.Equal(t, []models.UsageAction{models.ActionOptimized}, tracker.events)

	stored, err := store.GetJSON[models.Prompt](context.Background(), s, store.PromptPath("p1"))
	require.NoError(t, err)
	assert.Equal(t, "summarize {{text}}", stored.Content)
}

func TestOptimizeApply(t *testing.T) {
	svc, _, s := setup(t, &stubLLM{content: "Summarize {{text}} briefly."})

	res, err := svc.Optimize(context.Background(), alice, "p1", Request{Apply: true})
	require.NoError(t, err)
	assert.True(t, res.Applied)

	stored, err := store.GetJSON[models.Prompt](context.Background(), s, store.PromptPath("p1"))
	require.NoError(t, err)
	assert.Equal(t, "Summarize {{text}} briefly.", stored.Content)
	assert.Equal(t, "alice", stored.ModifiedBy)
}

func TestOptimizeRejects(t *testing.T) {
	ctx := context.Background()

	t.Run("not visible", func(t *testing.T) {
		svc, _, _ := setup(t, &stubLLM{content: "x"})
		_, err := svc.Optimize(ctx, carol, "p1", Request{})
		assert.True(t, apperr.IsUnauthorized(err))
	})

	t.Run("apply without edit rights", func(t *testing.T) {
		stub := &stubLLM{content: "x"}
		svc, _, _ := setup(t, stub)
		_, err := svc.Optimize(ctx, carol, "g1", Request{Apply: true})
		assert.True(t, apperr.IsUnauthorized(err))
		assert.Empty(t, stub.last.Messages)
	})

	t.Run("dropped variable", func(t *testing.T) {
		svc, tracker, _ := setup(t, &stubLLM{content: "Summarize the input."})
		_, err := svc.Optimize(ctx, alice, "p1", Request{})
		assert.True(t, apperr.IsValidation(err))
		assert.Empty(t, tracker.events)
	})

	t.Run("provider failure", func(t *testing.T) {
		svc, _, _ := setup(t, &stubLLM{err: errors.New("boom")})
		_, err := svc.Optimize(ctx, alice, "p1", Request{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("no provider", func(t *testing.T) {
		svc, _, _ := setup(t, nil)
		_, err := svc.Optimize(ctx, alice, "p1", Request{})
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestOptimizeSizesCompletion(t *testing.T) {
	stub := &stubLLM{content: "Summarize {{text}}."}
	svc, _, _ := setup(t, stub)

	res, err := svc.Optimize(context.Background(), alice, "p1", Request{})
	require.NoError(t, err)
	assert.Equal(t, 256, stub.last.MaxTokens)
	assert.Equal(t, 4, res.OriginalTokens)
}
