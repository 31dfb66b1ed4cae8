// Package services builds the domain services shared by the API server and
// the worker from one configuration and one record store.
package services

import (
	"context"
	"time"

	"github.com/nikhilbhutani/promptkeeper/internal/activity"
	"github.com/nikhilbhutani/promptkeeper/internal/audit"
	"github.com/nikhilbhutani/promptkeeper/internal/backup"
	"github.com/nikhilbhutani/promptkeeper/internal/bulk"
	"github.com/nikhilbhutani/promptkeeper/internal/config"
	"github.com/nikhilbhutani/promptkeeper/internal/identity"
	"github.com/nikhilbhutani/promptkeeper/internal/impact"
	"github.com/nikhilbhutani/promptkeeper/internal/optimizer"
	"github.com/nikhilbhutani/promptkeeper/internal/prompt"
	"github.com/nikhilbhutani/promptkeeper/internal/store"
	"github.com/nikhilbhutani/promptkeeper/internal/subscription"
	"github.com/nikhilbhutani/promptkeeper/internal/team"
	"github.com/nikhilbhutani/promptkeeper/internal/transfer"
	"github.com/nikhilbhutani/promptkeeper/internal/usage"
	"github.com/nikhilbhutani/promptkeeper/internal/webhook"
)

// Services holds every domain service. Audit entries and webhook deliveries
// observe the destructive services through one activity recorder.
type Services struct {
	Store     store.Store
	Identity  *identity.Service
	Prompts   *prompt.Service
	Teams     *team.Service
	Analyzer  *impact.Analyzer
	Backups   *backup.Service
	Bulk      *bulk.Executor
	Transfer  *transfer.Service
	Tracker   *usage.Tracker
	Optimizer *optimizer.Service
	Audit     *audit.Service
	Webhooks  *webhook.Service
	Poller    *subscription.Poller
}

// Options carries the optional collaborators. A nil Dispatcher disables
// webhook delivery; a nil LLM disables the optimizer.
type Options struct {
	Dispatcher *webhook.Dispatcher
	LLM        optimizer.Completer
}

func New(cfg *config.Config, s store.Store, opts Options) *Services {
	auditSvc := audit.NewService(s)
	webhookSvc := webhook.NewService(s, opts.Dispatcher)
	recorder := activity.Multi{auditSvc, webhookSvc}

	prompts := prompt.NewService(s)
	backups := backup.NewService(s, recorder, backup.Options{
		Concurrency: cfg.Bulk.Concurrency,
		ListCap:     cfg.Backup.ListCap,
	})
	tracker := usage.NewTracker(s, usage.Config{
		BatchSize:     cfg.Usage.BatchSize,
		FlushInterval: time.Duration(cfg.Usage.FlushIntervalMS) * time.Millisecond,
	})

	return &Services{
		Store:     s,
		Identity:  identity.NewService(s),
		Prompts:   prompts,
		Teams:     team.NewService(s),
		Analyzer:  impact.NewAnalyzer(s, Weights(cfg.Impact)),
		Backups:   backups,
		Bulk:      bulk.NewExecutor(s, backups, recorder, cfg.Bulk.Concurrency),
		Transfer:  transfer.NewService(s, prompts, recorder),
		Tracker:   tracker,
		Optimizer: optimizer.NewService(prompts, opts.LLM, tracker),
		Audit:     auditSvc,
		Webhooks:  webhookSvc,
		Poller:    subscription.NewPoller(time.Duration(cfg.Stream.PollIntervalMS) * time.Millisecond),
	}
}

// Weights converts the impact settings; zero values fall back to defaults.
func Weights(c config.ImpactConfig) impact.Weights {
	w := impact.DefaultWeights()
	if c.WeightTeam > 0 {
		w.Team = c.WeightTeam
	}
	if c.WeightUser > 0 {
		w.User = c.WeightUser
	}
	if c.WeightUsage > 0 {
		w.Usage = c.WeightUsage
	}
	if c.HighThreshold > 0 {
		w.HighImpact = c.HighThreshold
	}
	if c.HighUsage > 0 {
		w.HighUsage = c.HighUsage
	}
	if c.RecentWindowDays > 0 {
		w.RecentWindow = time.Duration(c.RecentWindowDays) * 24 * time.Hour
	}
	return w
}

// Close flushes queued usage events.
func (s *Services) Close(ctx context.Context) error {
	return s.Tracker.Close(ctx)
}
