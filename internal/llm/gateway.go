package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/nikhilbhutani/promptkeeper/internal/config"
)

// Gateway routes requests to a configured provider, retrying and falling back
// to a second provider when the first one keeps failing.
type Gateway struct {
	providers        map[string]Provider
	defaultProvider  string
	defaultModel     string
	fallbackProvider string
	maxRetries       uint
	retryDelay       time.Duration
}

func NewGateway(cfg config.LLMConfig) *Gateway {
	var providers []Provider
	if cfg.OpenAIKey != "" {
		providers = append(providers, NewOpenAIProvider(cfg.OpenAIKey, ""))
	}
	if cfg.AnthropicKey != "" {
		providers = append(providers, NewAnthropicProvider(cfg.AnthropicKey))
	}
	return NewGatewayWith(cfg, providers...)
}

func NewGatewayWith(cfg config.LLMConfig, providers ...Provider) *Gateway {
	g := &Gateway{
		providers:        make(map[string]Provider),
		defaultProvider:  cfg.DefaultProvider,
		defaultModel:     cfg.DefaultModel,
		fallbackProvider: cfg.FallbackProvider,
		retryDelay:       500 * time.Millisecond,
	}
	if cfg.MaxRetries > 0 {
		g.maxRetries = uint(cfg.MaxRetries)
	}
	for _, p := range providers {
		g.providers[p.Name()] = p
	}
	return g
}

// Available reports whether any provider is configured.
func (g *Gateway) Available() bool {
	return len(g.providers) > 0
}

func (g *Gateway) Provider(name string) (Provider, error) {
	p, ok := g.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}
	return p, nil
}

func (g *Gateway) Complete(ctx context.Context, req Request) (*Response, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = g.defaultProvider
	}

	resp, err := g.completeWithRetry(ctx, providerName, req)
	if err != nil && g.fallbackProvider != "" && g.fallbackProvider != providerName {
		slog.Warn("primary provider failed, trying fallback",
			"primary", providerName,
			"fallback", g.fallbackProvider,
			"error", err,
		)
		// The requested model belongs to the primary provider.
		fallback := req
		fallback.Model = ""
		return g.completeWithRetry(ctx, g.fallbackProvider, fallback)
	}
	return resp, err
}

func (g *Gateway) completeWithRetry(ctx context.Context, providerName string, req Request) (*Response, error) {
	p, err := g.Provider(providerName)
	if err != nil {
		return nil, err
	}
	if req.Model == "" && providerName == g.defaultProvider {
		req.Model = g.defaultModel
	}

	var resp *Response
	err = retry.Do(
		func() error {
			r, err := p.Complete(ctx, req)
			if err != nil {
				return err
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(g.maxRetries+1),
		retry.Delay(g.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Debug("retrying LLM call", "provider", providerName, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("all retries exhausted for %s: %w", providerName, err)
	}
	return resp, nil
}
