package classify

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/minhngt/harvester/internal/core/domain"
	"github.com/minhngt/harvester/internal/harvest/metrics"
	"github.com/minhngt/harvester/internal/infra/llm"
	"github.com/minhngt/harvester/internal/infra/storage"
)

// RelevanceFilter gives a cheap boolean verdict before the remote grader is
// consulted. Implementations fail open.
type RelevanceFilter interface {
	Relevant(ctx context.Context, content string) bool
}

// Grader assigns one tier from the configured vocabulary.
type Grader interface {
	Grade(ctx context.Context, content string) (domain.Tier, error)
}

// Enricher produces translation, summary and keywords for an item.
type Enricher interface {
	Enrich(ctx context.Context, content string) (*llm.Enrichment, error)
}

// Embedder vectorizes a summary.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config holds pipeline wiring and tuning.
type Config struct {
	Items    storage.ItemRepository
	Results  storage.ResultRepository
	Filter   RelevanceFilter // nil when the local filter is disabled
	Grader   Grader
	Enricher Enricher
	Embedder Embedder
	Log      *slog.Logger

	BatchSize         int
	ItemDelay         time.Duration
	IdleDelay         time.Duration
	ExpirationEnabled bool
	ExpirationAge     time.Duration
	Tiers             domain.Tiers
	EnrichTiers       domain.TierSet
}

// Pipeline is the single classification consumer. It drains pending items in
// bounded batches and runs each through the expiration/filter/grade/enrich/
// embed cascade. Running more than one consumer is not guarded against
// re-dequeue races.
type Pipeline struct {
	cfg     Config
	running atomic.Bool
	stop    chan struct{}
	now     func() time.Time
}

// NewPipeline creates a classification pipeline.
func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{
		cfg:  cfg,
		stop: make(chan struct{}),
		now:  time.Now,
	}
}

// Start runs the consumer loop until the context is cancelled or Stop is
// called.
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeline already running")
	}
	defer p.running.Store(false)

	p.cfg.Log.Info("classification pipeline started",
		"batch_size", p.cfg.BatchSize,
		"enrich_tiers", len(p.cfg.EnrichTiers))

	for {
		processed, err := p.runBatch(ctx)
		if err != nil {
			p.cfg.Log.Error("batch failed", "error", err)
		}

		delay := p.cfg.ItemDelay
		if processed == 0 {
			delay = p.cfg.IdleDelay
		}
		if !p.sleep(ctx, delay) {
			return nil
		}
	}
}

// Stop signals the loop to exit after the current batch.
func (p *Pipeline) Stop() error {
	if p.running.Load() {
		close(p.stop)
	}
	return nil
}

// runBatch dequeues one batch of pending items and processes them
// sequentially. Per-item failures never abort the batch.
func (p *Pipeline) runBatch(ctx context.Context) (int, error) {
	batch, err := p.cfg.Items.DequeuePending(ctx, p.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("dequeue pending: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	for i, item := range batch {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		p.processItem(ctx, item)
		if i < len(batch)-1 && !p.sleep(ctx, p.cfg.ItemDelay) {
			return i + 1, nil
		}
	}
	return len(batch), nil
}

// processItem runs the cascade for one item and always leaves it in a
// terminal state.
func (p *Pipeline) processItem(ctx context.Context, item *domain.Item) {
	if err := p.cfg.Items.SetState(ctx, item.ID, domain.ItemStateProcessing); err != nil {
		p.cfg.Log.Error("state transition failed", "item", item.ID, "error", err)
		return
	}

	start := p.now()
	result, err := p.classify(ctx, item)
	if err != nil {
		p.cfg.Log.Error("classification failed", "item", item.ID, "error", err)
		metrics.ClassifyFailures.Inc()
		p.finish(ctx, item.ID, domain.ItemStateFailed)
		return
	}
	result.LatencyMs = p.now().Sub(start).Milliseconds()

	metrics.ItemsClassified.WithLabelValues(string(result.Tier), string(result.FilterSource)).Inc()

	// Results are persisted only for tiers worth enriching; lower tiers
	// just reach a terminal state.
	if p.cfg.EnrichTiers.Has(result.Tier) {
		if err := p.cfg.Results.Upsert(ctx, result); err != nil {
			p.cfg.Log.Error("result upsert failed", "item", item.ID, "error", err)
			p.finish(ctx, item.ID, domain.ItemStateFailed)
			return
		}
	}

	p.cfg.Log.Info("item classified",
		"item", item.ID,
		"tier", result.Tier,
		"source", result.FilterSource,
		"latency_ms", result.LatencyMs)
	p.finish(ctx, item.ID, domain.ItemStateCompleted)
}

// classify runs the cascade stages in order. Only a grading transport error
// is returned; every later stage degrades instead of failing the item.
func (p *Pipeline) classify(ctx context.Context, item *domain.Item) (*domain.ClassificationResult, error) {
	// Stage 1: age expiration, zero downstream calls.
	if p.cfg.ExpirationEnabled && p.now().Sub(item.PublishedAt) > p.cfg.ExpirationAge {
		stageStart := p.now()
		defer p.observeStage("expiration", stageStart)
		return &domain.ClassificationResult{
			ItemID:       item.ID,
			Tier:         p.cfg.Tiers.Lowest(),
			FilterSource: domain.FilterSourceExpired,
		}, nil
	}

	// Stage 2: cheap local relevance filter, fail-open.
	if p.cfg.Filter != nil {
		stageStart := p.now()
		relevant := p.cfg.Filter.Relevant(ctx, item.Content)
		p.observeStage("filter", stageStart)
		if !relevant {
			return &domain.ClassificationResult{
				ItemID:       item.ID,
				Tier:         p.cfg.Tiers.Lowest(),
				FilterSource: domain.FilterSourceFiltered,
			}, nil
		}
	}

	// Stage 3: remote tiered grading. This is the only stage whose failure
	// fails the item.
	stageStart := p.now()
	tier, err := p.cfg.Grader.Grade(ctx, item.Content)
	p.observeStage("grade", stageStart)
	if err != nil {
		return nil, fmt.Errorf("grade: %w", err)
	}

	result := &domain.ClassificationResult{
		ItemID:       item.ID,
		Tier:         tier,
		FilterSource: domain.FilterSourceLLM,
	}

	if !p.cfg.EnrichTiers.Has(tier) {
		return result, nil
	}

	// Stage 4: enrichment. An unparseable response leaves the fields nil
	// but keeps the grading outcome.
	stageStart = p.now()
	enrichment, err := p.cfg.Enricher.Enrich(ctx, item.Content)
	p.observeStage("enrich", stageStart)
	if err != nil {
		p.cfg.Log.Warn("enrichment failed, keeping grade only", "item", item.ID, "error", err)
		return result, nil
	}
	result.Summary = enrichment.Summary
	result.Keywords = enrichment.Keywords
	result.Translation = enrichment.Translation

	// Stage 5: embedding of the summary, non-fatal.
	if result.Summary != "" && p.cfg.Embedder != nil {
		stageStart = p.now()
		vec, err := p.cfg.Embedder.Embed(ctx, result.Summary)
		p.observeStage("embed", stageStart)
		if err != nil {
			p.cfg.Log.Warn("embedding failed, leaving vector empty", "item", item.ID, "error", err)
		} else {
			result.Embedding = vec
		}
	}

	return result, nil
}

func (p *Pipeline) finish(ctx context.Context, itemID string, state domain.ItemState) {
	if err := p.cfg.Items.SetState(ctx, itemID, state); err != nil {
		p.cfg.Log.Error("terminal state transition failed",
			"item", itemID, "state", state, "error", err)
	}
}

func (p *Pipeline) observeStage(stage string, start time.Time) {
	metrics.StageLatency.WithLabelValues(stage).Observe(p.now().Sub(start).Seconds())
}

// sleep waits for d in one-second chunks so shutdown stays responsive.
// Returns false when the pipeline should exit.
func (p *Pipeline) sleep(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		chunk := time.Second
		if remaining < chunk {
			chunk = remaining
		}
		select {
		case <-ctx.Done():
			return false
		case <-p.stop:
			return false
		case <-time.After(chunk):
		}
	}
}
