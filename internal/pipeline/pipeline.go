// Package pipeline drains unprocessed job postings through the decision-tree
// agent with a supervised, bounded worker pool. Identical descriptions are
// evaluated once and their verdicts re-associated per record afterwards; each
// record still ends up with its own independent verdict map.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jobscout-dev/jobscout/internal/agent"
	"github.com/jobscout-dev/jobscout/internal/store"
)

// Jobs is the slice of the store contract the pipeline consumes.
type Jobs interface {
	FetchUnprocessed(ctx context.Context) ([]store.PendingJob, error)
	UpdateAgentResponses(ctx context.Context, updates []store.AgentResponseUpdate) error
}

// Evaluator walks one description through the decision tree.
type Evaluator interface {
	Evaluate(ctx context.Context, description string) map[string]agent.Result
}

// Config bounds the pipeline's concurrency and its load on the inference
// backend.
type Config struct {
	// Workers caps concurrent walks. Defaults to 2.
	Workers int
	// RequestsPerSecond throttles entry into walks, protecting the inference
	// backend. Zero disables throttling.
	RequestsPerSecond float64
}

type Pipeline struct {
	jobs    Jobs
	agent   Evaluator
	logger  *zap.Logger
	workers int
	limiter *rate.Limiter
}

func New(jobs Jobs, evaluator Evaluator, cfg Config, logger *zap.Logger) *Pipeline {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		jobs:    jobs,
		agent:   evaluator,
		logger:  logger,
		workers: workers,
		limiter: limiter,
	}
}

// RunOnce evaluates every unprocessed record and stores the verdicts as one
// batch. It returns the number of records updated.
func (p *Pipeline) RunOnce(ctx context.Context) (int, error) {
	pending, err := p.jobs.FetchUnprocessed(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching unprocessed jobs: %w", err)
	}

	if len(pending) == 0 {
		p.logger.Debug("no unprocessed jobs found")
		return 0, nil
	}

	// Evaluate each unique description once; scraped boards repeat postings.
	byDescription := make(map[string][]int64)
	for _, job := range pending {
		byDescription[job.Description] = append(byDescription[job.Description], job.ID)
	}

	p.logger.Info("evaluating unprocessed jobs",
		zap.Int("records", len(pending)),
		zap.Int("unique_descriptions", len(byDescription)),
	)

	var (
		mu       sync.Mutex
		verdicts = make(map[string]string, len(byDescription))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for description := range byDescription {
		g.Go(func() error {
			if err := p.limiter.Wait(gctx); err != nil {
				return err
			}

			results := p.agent.Evaluate(gctx, description)

			encoded, err := json.Marshal(results)
			if err != nil {
				return fmt.Errorf("encoding verdicts: %w", err)
			}

			mu.Lock()
			verdicts[description] = string(encoded)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}

	updates := make([]store.AgentResponseUpdate, 0, len(pending))
	for description, ids := range byDescription {
		encoded, ok := verdicts[description]
		if !ok {
			continue
		}
		for _, id := range ids {
			updates = append(updates, store.AgentResponseUpdate{ID: id, AgentResponse: encoded})
		}
	}

	if err := p.jobs.UpdateAgentResponses(ctx, updates); err != nil {
		return 0, fmt.Errorf("storing agent responses: %w", err)
	}

	p.logger.Info("stored agent responses", zap.Int("records", len(updates)))
	return len(updates), nil
}

// Run calls RunOnce immediately and then on every tick until the context is
// canceled. Batch-level failures are logged, not fatal; the next tick retries
// whatever is still unprocessed.
func (p *Pipeline) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("pipeline run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
