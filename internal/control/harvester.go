// Package control wires infrastructure and the two long-running processes
// (crawl coordinator and classification pipeline) into one application.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/minhngt/harvester/internal/core/config"
	"github.com/minhngt/harvester/internal/core/domain"
	"github.com/minhngt/harvester/internal/harvest/classify"
	"github.com/minhngt/harvester/internal/harvest/crawler"
	"github.com/minhngt/harvester/internal/infra/llm"
	"github.com/minhngt/harvester/internal/infra/llm/ollama"
	"github.com/minhngt/harvester/internal/infra/parse"
	redisclient "github.com/minhngt/harvester/internal/infra/redis"
	"github.com/minhngt/harvester/internal/infra/source"
	"github.com/minhngt/harvester/internal/infra/storage"
	"github.com/minhngt/harvester/internal/infra/storage/memory"
	"github.com/minhngt/harvester/internal/infra/storage/postgres"
)

// Harvester owns the application lifecycle: storage, redis, the endpoint
// registry, the crawl coordinator and the classification pipeline.
type Harvester struct {
	cfg config.AppConfig
	log *slog.Logger

	db          *postgres.DB
	redisClient *redisclient.Client
	registry    *source.Registry
	coordinator *crawler.Coordinator
	pipeline    *classify.Pipeline
	httpServer  *http.Server
}

// NewHarvester builds the full dependency graph from configuration.
// Inability to reach the item store or the lease service is fatal here;
// everything downstream degrades per-author or per-item instead.
func NewHarvester(ctx context.Context, cfg config.AppConfig, log *slog.Logger) (*Harvester, error) {
	h := &Harvester{cfg: cfg, log: log}

	// Storage: postgres when a database URL is configured, in-memory
	// otherwise (development mode).
	var (
		items   storage.ItemRepository
		authors storage.AuthorRepository
		results storage.ResultRepository
	)
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
		h.db = db
		items = postgres.NewItemRepo(db)
		authors = postgres.NewAuthorRepo(db)
		results = postgres.NewResultRepo(db)
		log.Info("using postgres storage")
	} else {
		store := memory.NewMemoryStorage()
		items = memory.NewItemRepo(store)
		authors = memory.NewAuthorRepo(store)
		results = memory.NewResultRepo(store)
		log.Info("using memory storage")
	}

	// Lease, dedup and endpoint cache share one redis connection. Without
	// redis the coordinator falls back to a process-local lease, which only
	// protects single-instance deployments.
	var (
		lease   crawler.LeaseService
		dedup   crawler.ExistenceCache
		epCache source.Cache
	)
	if cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		h.redisClient = rc
		lease = redisclient.NewLease(rc)
		dedup = redisclient.NewDedupCache(rc, cfg.Crawler.DedupTTL)
		epCache = redisclient.NewEndpointCache(rc)
		log.Info("using redis lease and caches")
	} else {
		store := memory.NewMemoryStorage()
		lease = memory.NewLease()
		dedup = memory.NewDedupCache(store, cfg.Crawler.DedupTTL)
		epCache = memory.NewEndpointCache()
		log.Warn("redis not configured, using process-local lease")
	}

	// Endpoint registry with external seed sources.
	var seedSources []source.SeedSource
	for _, page := range cfg.Registry.SourcePages {
		seedSources = append(seedSources, source.NewStatusPageSource(
			page, cfg.Registry.URLKeywords, cfg.Crawler.RetryCount, cfg.Crawler.RetryDelay))
	}
	h.registry = source.NewRegistry(source.RegistryConfig{
		Seeds:             cfg.Registry.Seeds,
		ProbeTimeout:      cfg.Registry.ProbeTimeout,
		ProbeConcurrency:  cfg.Registry.ProbeConcurrency,
		CacheTTL:          cfg.Registry.CacheTTL,
		MinAvailable:      cfg.Registry.MinAvailable,
		SignatureKeywords: cfg.Registry.SignatureKeywords,
		URLKeywords:       cfg.Registry.URLKeywords,
	}, epCache, seedSources, log)

	h.coordinator = crawler.NewCoordinator(crawler.Config{
		Items:           items,
		Authors:         authors,
		Lease:           lease,
		Registry:        h.registry,
		Fetcher:         source.NewTimelineClient(cfg.Crawler.FetchTimeout, cfg.Crawler.RetryCount, cfg.Crawler.RetryDelay),
		Parse:           parse.Timeline,
		Dedup:           dedup,
		Log:             log,
		CycleInterval:   cfg.Crawler.CycleInterval,
		RefreshInterval: cfg.Crawler.RefreshInterval,
		PerAuthorBudget: cfg.Crawler.PerAuthorBudget,
		AuthorDelay:     cfg.Crawler.AuthorDelay,
		MaxItems:        cfg.Crawler.MaxItems,
	})

	// Classification stack.
	chatClient := llm.NewClient(cfg.LLM.APIURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Timeout)
	var filter classify.RelevanceFilter
	if cfg.Filter.Enabled {
		filter = ollama.NewFilter(cfg.Filter.BaseURL, cfg.Filter.Model, cfg.Filter.Timeout, log)
	}
	var embedder classify.Embedder
	if cfg.Embedder.APIURL != "" {
		embedder = llm.NewEmbedder(cfg.Embedder.APIURL, cfg.Embedder.APIKey, cfg.Embedder.Model, cfg.Embedder.Timeout)
	}

	h.pipeline = classify.NewPipeline(classify.Config{
		Items:             items,
		Results:           results,
		Filter:            filter,
		Grader:            llm.NewGrader(chatClient.Chat, cfg.Classify.Tiers, log),
		Enricher:          llm.NewEnricher(chatClient.Chat, cfg.Classify.SummaryBudget, log),
		Embedder:          embedder,
		Log:               log,
		BatchSize:         cfg.Classify.BatchSize,
		ItemDelay:         cfg.Classify.ItemDelay,
		IdleDelay:         cfg.Classify.IdleDelay,
		ExpirationEnabled: cfg.Classify.ExpirationEnabled,
		ExpirationAge:     cfg.Classify.ExpirationAge,
		Tiers:             cfg.Classify.Tiers,
		EnrichTiers:       domain.NewTierSet(cfg.Classify.EnrichTiers),
	})

	h.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: h.routes(),
	}

	return h, nil
}

// Start launches the HTTP server, the coordinator and the pipeline. It
// verifies store and lease reachability first; a failure here aborts startup.
func (h *Harvester) Start(ctx context.Context) error {
	if err := h.checkDependencies(ctx); err != nil {
		return err
	}

	go func() {
		h.log.Info("http server listening", "addr", h.httpServer.Addr)
		if err := h.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.log.Error("http server failed", "error", err)
		}
	}()

	if h.db != nil {
		h.db.StartMetricsCollector(ctx)
	}

	go func() {
		if err := h.coordinator.Start(ctx); err != nil {
			h.log.Error("coordinator stopped with error", "error", err)
		}
	}()
	go func() {
		if err := h.pipeline.Start(ctx); err != nil {
			h.log.Error("pipeline stopped with error", "error", err)
		}
	}()

	return nil
}

// Stop shuts everything down in reverse order.
func (h *Harvester) Stop(ctx context.Context) error {
	h.log.Info("stopping harvester")

	if err := h.coordinator.Stop(); err != nil {
		h.log.Warn("coordinator stop failed", "error", err)
	}
	if err := h.pipeline.Stop(); err != nil {
		h.log.Warn("pipeline stop failed", "error", err)
	}

	if h.redisClient != nil {
		if err := h.redisClient.Close(); err != nil {
			h.log.Warn("redis close failed", "error", err)
		}
	}
	if h.db != nil {
		h.db.Close()
	}

	return h.httpServer.Shutdown(ctx)
}

// Registry exposes the endpoint registry for the probe CLI command.
func (h *Harvester) Registry() *source.Registry {
	return h.registry
}

// checkDependencies verifies the item store and the lease service are
// reachable. Per the failure policy these are the only fatal dependencies.
func (h *Harvester) checkDependencies(ctx context.Context) error {
	if h.db != nil {
		if err := h.db.Health(ctx); err != nil {
			return fmt.Errorf("item store unreachable: %w", err)
		}
	}
	if h.redisClient != nil {
		if err := h.redisClient.Ping(ctx); err != nil {
			return fmt.Errorf("lease service unreachable: %w", err)
		}
	}
	return nil
}

func (h *Harvester) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := h.checkDependencies(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
