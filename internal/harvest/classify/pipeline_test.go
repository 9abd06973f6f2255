package classify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/minhngt/harvester/internal/core/domain"
	"github.com/minhngt/harvester/internal/infra/llm"
	"github.com/minhngt/harvester/internal/infra/storage/memory"
)

type mockFilter struct {
	verdict bool
	calls   int
}

func (m *mockFilter) Relevant(ctx context.Context, content string) bool {
	m.calls++
	return m.verdict
}

type mockGrader struct {
	tier  domain.Tier
	err   error
	calls int
}

func (m *mockGrader) Grade(ctx context.Context, content string) (domain.Tier, error) {
	m.calls++
	return m.tier, m.err
}

type mockEnricher struct {
	enrichment *llm.Enrichment
	err        error
	calls      int
}

func (m *mockEnricher) Enrich(ctx context.Context, content string) (*llm.Enrichment, error) {
	m.calls++
	return m.enrichment, m.err
}

type mockEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	return m.vec, m.err
}

var testTiers = domain.Tiers{"P0", "P1", "P2", "P3", "P4", "P5", "P6"}

type fixture struct {
	store    *memory.MemoryStorage
	items    *memory.ItemRepo
	results  *memory.ResultRepo
	filter   *mockFilter
	grader   *mockGrader
	enricher *mockEnricher
	embedder *mockEmbedder
	pipeline *Pipeline
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	store := memory.NewMemoryStorage()
	f := &fixture{
		store:    store,
		items:    memory.NewItemRepo(store),
		results:  memory.NewResultRepo(store),
		filter:   &mockFilter{verdict: true},
		grader:   &mockGrader{tier: "P4"},
		enricher: &mockEnricher{enrichment: &llm.Enrichment{Summary: "short summary", Keywords: []string{"kw"}}},
		embedder: &mockEmbedder{vec: []float32{0.1, 0.2}},
	}
	cfg := Config{
		Items:             f.items,
		Results:           f.results,
		Filter:            f.filter,
		Grader:            f.grader,
		Enricher:          f.enricher,
		Embedder:          f.embedder,
		Log:               slog.New(slog.NewTextHandler(io.Discard, nil)),
		BatchSize:         10,
		ExpirationEnabled: true,
		ExpirationAge:     24 * time.Hour,
		Tiers:             testTiers,
		EnrichTiers:       domain.NewTierSet([]domain.Tier{"P0", "P1", "P2"}),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.pipeline = NewPipeline(cfg)
	return f
}

func (f *fixture) seedItem(t *testing.T, id string, publishedAt time.Time) {
	t.Helper()
	if _, err := f.items.Insert(context.Background(), &domain.Item{
		ID:          id,
		Author:      "alice",
		Content:     "content " + id,
		PublishedAt: publishedAt,
		State:       domain.ItemStatePending,
	}); err != nil {
		t.Fatalf("seed item: %v", err)
	}
}

func (f *fixture) itemState(t *testing.T, id string) domain.ItemState {
	t.Helper()
	// DequeuePending won't return terminal items, read the store directly.
	item := f.store.Item(id)
	if item == nil {
		t.Fatalf("item %s not found", id)
	}
	return item.State
}

func TestPipeline_ExpiredItemShortCircuits(t *testing.T) {
	f := newFixture(t, nil)
	f.seedItem(t, "old", time.Now().Add(-48*time.Hour))

	if _, err := f.pipeline.runBatch(context.Background()); err != nil {
		t.Fatalf("runBatch: %v", err)
	}

	if f.filter.calls+f.grader.calls+f.enricher.calls+f.embedder.calls != 0 {
		t.Error("expired items must make zero downstream calls")
	}
	if got := f.itemState(t, "old"); got != domain.ItemStateCompleted {
		t.Errorf("expected completed, got %s", got)
	}
	// Lowest tier is not in the enrichment set, so no result row.
	if res, _ := f.results.Get(context.Background(), "old"); res != nil {
		t.Error("expired item should not persist a result")
	}
}

func TestPipeline_IrrelevantItemSkipsGrading(t *testing.T) {
	f := newFixture(t, nil)
	f.filter.verdict = false
	f.seedItem(t, "spam", time.Now())

	if _, err := f.pipeline.runBatch(context.Background()); err != nil {
		t.Fatalf("runBatch: %v", err)
	}

	if f.grader.calls != 0 {
		t.Error("filtered items must not reach the grader")
	}
	if got := f.itemState(t, "spam"); got != domain.ItemStateCompleted {
		t.Errorf("expected completed, got %s", got)
	}
}

func TestPipeline_LowTierSkipsEnrichment(t *testing.T) {
	f := newFixture(t, nil)
	f.grader.tier = "P5"
	f.seedItem(t, "minor", time.Now())

	if _, err := f.pipeline.runBatch(context.Background()); err != nil {
		t.Fatalf("runBatch: %v", err)
	}

	if f.enricher.calls != 0 || f.embedder.calls != 0 {
		t.Error("low-tier items must not be enriched or embedded")
	}
	if res, _ := f.results.Get(context.Background(), "minor"); res != nil {
		t.Error("low-tier item should not persist a result")
	}
	if got := f.itemState(t, "minor"); got != domain.ItemStateCompleted {
		t.Errorf("expected completed, got %s", got)
	}
}

func TestPipeline_HighTierFullCascade(t *testing.T) {
	f := newFixture(t, nil)
	f.grader.tier = "P1"
	f.seedItem(t, "big", time.Now())

	if _, err := f.pipeline.runBatch(context.Background()); err != nil {
		t.Fatalf("runBatch: %v", err)
	}

	res, err := f.results.Get(context.Background(), "big")
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if res == nil {
		t.Fatal("expected a persisted result")
	}
	if res.Tier != "P1" || res.FilterSource != domain.FilterSourceLLM {
		t.Errorf("unexpected result: tier=%s source=%s", res.Tier, res.FilterSource)
	}
	if res.Summary != "short summary" || len(res.Embedding) != 2 {
		t.Errorf("expected enrichment and embedding, got %+v", res)
	}
}

func TestPipeline_EnrichmentFailureKeepsGrade(t *testing.T) {
	f := newFixture(t, nil)
	f.grader.tier = "P0"
	f.enricher.enrichment = nil
	f.enricher.err = &llm.ParseError{Reason: "no JSON object found"}
	f.seedItem(t, "x", time.Now())

	if _, err := f.pipeline.runBatch(context.Background()); err != nil {
		t.Fatalf("runBatch: %v", err)
	}

	res, _ := f.results.Get(context.Background(), "x")
	if res == nil {
		t.Fatal("grading outcome must persist despite enrichment failure")
	}
	if res.Tier != "P0" || res.Summary != "" || res.Embedding != nil {
		t.Errorf("expected bare P0 result, got %+v", res)
	}
	if f.embedder.calls != 0 {
		t.Error("no summary means no embedding call")
	}
	if got := f.itemState(t, "x"); got != domain.ItemStateCompleted {
		t.Errorf("expected completed, got %s", got)
	}
}

func TestPipeline_EmbeddingFailureIsNonFatal(t *testing.T) {
	f := newFixture(t, nil)
	f.grader.tier = "P2"
	f.embedder.vec = nil
	f.embedder.err = errors.New("embedder down")
	f.seedItem(t, "y", time.Now())

	if _, err := f.pipeline.runBatch(context.Background()); err != nil {
		t.Fatalf("runBatch: %v", err)
	}

	res, _ := f.results.Get(context.Background(), "y")
	if res == nil || res.Summary == "" {
		t.Fatal("enrichment must survive an embedding failure")
	}
	if res.Embedding != nil {
		t.Error("expected nil embedding")
	}
}

func TestPipeline_GraderErrorFailsItem(t *testing.T) {
	f := newFixture(t, nil)
	f.grader.err = errors.New("api unreachable")
	f.seedItem(t, "z", time.Now())

	if _, err := f.pipeline.runBatch(context.Background()); err != nil {
		t.Fatalf("runBatch: %v", err)
	}

	if got := f.itemState(t, "z"); got != domain.ItemStateFailed {
		t.Errorf("expected failed, got %s", got)
	}
}

func TestPipeline_NilFilterGoesStraightToGrader(t *testing.T) {
	f := newFixture(t, func(cfg *Config) { cfg.Filter = nil })
	f.seedItem(t, "a", time.Now())

	if _, err := f.pipeline.runBatch(context.Background()); err != nil {
		t.Fatalf("runBatch: %v", err)
	}
	if f.grader.calls != 1 {
		t.Errorf("expected one grader call, got %d", f.grader.calls)
	}
}

func TestPipeline_EmptyQueue(t *testing.T) {
	f := newFixture(t, nil)

	n, err := f.pipeline.runBatch(context.Background())
	if err != nil {
		t.Fatalf("runBatch: %v", err)
	}
	if n != 0 {
		t.Errorf("expected zero processed, got %d", n)
	}
}
