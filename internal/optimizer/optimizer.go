// Package optimizer rewrites prompts through an LLM provider.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
	"github.com/nikhilbhutani/promptkeeper/internal/llm"
	"github.com/nikhilbhutani/promptkeeper/internal/models"
	"github.com/nikhilbhutani/promptkeeper/internal/permission"
	"github.com/nikhilbhutani/promptkeeper/internal/prompt"
	"github.com/nikhilbhutani/promptkeeper/pkg/tokenizer"
)

// ErrUnavailable is returned when no LLM provider is configured.
var ErrUnavailable = errors.New("optimizer unavailable: no LLM provider configured")

const systemPrompt = `You improve prompt templates for large language models.
Rewrite the prompt the user sends so it is clearer and more specific.
Keep every {{variable}} placeholder exactly as written.
Reply with the rewritten prompt only, without commentary or code fences.`

type Completer interface {
	Available() bool
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

type UsageTracker interface {
	Track(ctx context.Context, user *models.User, promptID string, action models.UsageAction) error
}

type Service struct {
	prompts *prompt.Service
	llm     Completer
	usage   UsageTracker
}

func NewService(prompts *prompt.Service, c Completer, usage UsageTracker) *Service {
	return &Service{prompts: prompts, llm: c, usage: usage}
}

type Request struct {
	Goal     string `json:"goal,omitempty"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	// Apply writes the suggestion back to the prompt; requires edit rights.
	Apply bool `json:"apply,omitempty"`
}

type Result struct {
	PromptID  string `json:"promptId"`
	Original  string `json:"original"`
	Optimized string `json:"optimized"`
	Applied   bool   `json:"applied"`
	// Token counts are estimates.
	OriginalTokens  int     `json:"originalTokens"`
	OptimizedTokens int     `json:"optimizedTokens"`
	Provider        string  `json:"provider"`
	Model           string  `json:"model"`
	CostUSD         float64 `json:"costUsd"`
}

func (s *Service) Optimize(ctx context.Context, actor *models.User, promptID string, req Request) (*Result, error) {
	p, err := s.prompts.Get(ctx, actor, promptID)
	if err != nil {
		return nil, err
	}
	if req.Apply && !permission.CanEditPrompt(actor, p) {
		return nil, apperr.Unauthorized("cannot edit prompt %s", promptID)
	}
	if s.llm == nil || !s.llm.Available() {
		return nil, ErrUnavailable
	}

	user := p.Content
	if goal := strings.TrimSpace(req.Goal); goal != "" {
		user = fmt.Sprintf("Goal: %s\n\nPrompt:\n%s", goal, p.Content)
	}
	resp, err := s.llm.Complete(ctx, llm.Request{
		Provider: req.Provider,
		Model:    req.Model,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: user},
		},
		Temperature: 0.3,
		MaxTokens:   tokenizer.Budget(p.Content, 256, 4096),
	})
	if err != nil {
		return nil, fmt.Errorf("optimize prompt %s: %w", promptID, err)
	}

	optimized := cleanOutput(resp.Content)
	if optimized == "" {
		return nil, fmt.Errorf("optimize prompt %s: provider returned an empty rewrite", promptID)
	}
	if missing := missingVariables(p.Content, optimized); len(missing) > 0 {
		return nil, apperr.Invalid("optimized", "rewrite dropped variables: "+strings.Join(missing, ", "))
	}

	res := &Result{
		PromptID:        p.ID,
		Original:        p.Content,
		Optimized:       optimized,
		OriginalTokens:  tokenizer.Estimate(p.Content),
		OptimizedTokens: tokenizer.Estimate(optimized),
		Provider:        resp.Provider,
		Model:           resp.Model,
		CostUSD:         resp.CostUSD,
	}
	if req.Apply {
		if _, err := s.prompts.Update(ctx, actor, p.ID, prompt.UpdateRequest{Content: &optimized}); err != nil {
			return nil, err
		}
		res.Applied = true
	}

	if s.usage != nil {
		if err := s.usage.Track(ctx, actor, p.ID, models.ActionOptimized); err != nil {
			slog.Warn("track optimize usage", "prompt_id", p.ID, "error", err)
		}
	}
	slog.Info("prompt optimized", "prompt_id", p.ID, "provider", resp.Provider, "applied", res.Applied)
	return res, nil
}

// cleanOutput strips a surrounding code fence if the model added one.
func cleanOutput(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") && strings.HasSuffix(s, "```") && len(s) >= 6 {
		s = strings.TrimSuffix(s, "```")
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	return strings.TrimSpace(s)
}

func missingVariables(original, rewritten string) []string {
	have := map[string]bool{}
	for _, v := range prompt.Variables(rewritten) {
		have[v] = true
	}
	var missing []string
	for _, v := range prompt.Variables(original) {
		if !have[v] {
			missing = append(missing, v)
		}
	}
	return missing
}
