// Package source manages the pool of unreliable mirror endpoints: probing,
// ranking, caching and timeline fetching.
package source

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/minhngt/harvester/internal/core/domain"
	"github.com/minhngt/harvester/internal/harvest/metrics"
)

const probeUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

// Cache stores the ranked endpoint list between probe cycles.
type Cache interface {
	Get(ctx context.Context) ([]domain.Endpoint, bool, error)
	Set(ctx context.Context, endpoints []domain.Endpoint, ttl time.Duration) error
}

// SeedSource supplies candidate endpoint URLs from an external listing.
type SeedSource interface {
	Name() string
	Fetch(ctx context.Context) ([]string, error)
}

// RegistryConfig holds probe behavior settings.
type RegistryConfig struct {
	Seeds             []string
	ProbeTimeout      time.Duration
	ProbeConcurrency  int
	CacheTTL          time.Duration
	MinAvailable      int
	SignatureKeywords []string
	URLKeywords       []string
}

// Registry probes candidate mirrors, ranks the available ones by latency
// and caches the result.
type Registry struct {
	cfg     RegistryConfig
	cache   Cache
	sources []SeedSource
	client  *http.Client
	log     *slog.Logger
}

// NewRegistry creates an endpoint registry.
func NewRegistry(cfg RegistryConfig, cache Cache, sources []SeedSource, log *slog.Logger) *Registry {
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.ProbeConcurrency == 0 {
		cfg.ProbeConcurrency = 20
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 3 * time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		cfg:     cfg,
		cache:   cache,
		sources: sources,
		client:  &http.Client{Timeout: cfg.ProbeTimeout},
		log:     log,
	}
}

// Refresh returns the ranked endpoint list. Unless force is set or the
// cached ranking has expired, the cached list is returned without any
// network calls.
func (r *Registry) Refresh(ctx context.Context, force bool) ([]domain.Endpoint, error) {
	if !force {
		cached, found, err := r.cache.Get(ctx)
		if err != nil {
			// An unreadable cache costs a fresh probe, nothing more.
			r.log.Warn("endpoint cache read failed", "error", err)
		} else if found {
			return cached, nil
		}
	}

	candidates := r.collectCandidates(ctx)
	ranked := r.probeAll(ctx, candidates)

	metrics.AvailableEndpoints.Set(float64(len(ranked)))
	if len(ranked) < r.cfg.MinAvailable {
		r.log.Warn("available endpoints below minimum",
			"available", len(ranked), "minimum", r.cfg.MinAvailable)
	}

	if err := r.cache.Set(ctx, ranked, r.cfg.CacheTTL); err != nil {
		// A cache write failure costs a re-probe next cycle, nothing more.
		r.log.Warn("failed to cache endpoint ranking", "error", err)
	}
	return ranked, nil
}

// collectCandidates merges the static seed list with external sources.
// Source failures are logged and skipped.
func (r *Registry) collectCandidates(ctx context.Context) []string {
	seen := make(map[string]struct{}, len(r.cfg.Seeds))
	var candidates []string
	add := func(url string) {
		url = strings.TrimRight(strings.TrimSpace(url), "/")
		if url == "" {
			return
		}
		if _, ok := seen[url]; ok {
			return
		}
		seen[url] = struct{}{}
		candidates = append(candidates, url)
	}

	for _, seed := range r.cfg.Seeds {
		add(seed)
	}

	for _, src := range r.sources {
		urls, err := src.Fetch(ctx)
		if err != nil {
			r.log.Warn("seed source failed", "source", src.Name(), "error", err)
			continue
		}
		r.log.Debug("seed source fetched", "source", src.Name(), "count", len(urls))
		for _, u := range urls {
			add(u)
		}
	}
	return candidates
}

// probeAll concurrently probes every candidate with a bounded worker pool
// and returns the available ones sorted ascending by latency.
func (r *Registry) probeAll(ctx context.Context, candidates []string) []domain.Endpoint {
	var (
		mu        sync.Mutex
		available []domain.Endpoint
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.ProbeConcurrency)

	for _, url := range candidates {
		url := url
		g.Go(func() error {
			ep := r.probe(gctx, url)
			if ep.Available {
				metrics.EndpointProbes.WithLabelValues("available").Inc()
				mu.Lock()
				available = append(available, ep)
				mu.Unlock()
			} else {
				metrics.EndpointProbes.WithLabelValues("unavailable").Inc()
			}
			// Probe failures never abort the batch.
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(available, func(i, j int) bool {
		return available[i].Latency < available[j].Latency
	})
	return available
}

// probe checks a single candidate. Errors and timeouts count as
// unavailable.
func (r *Registry) probe(ctx context.Context, url string) domain.Endpoint {
	ep := domain.Endpoint{URL: url, LastProbedAt: time.Now().UTC()}

	reqCtx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return ep
	}
	req.Header.Set("User-Agent", probeUserAgent)

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return ep
	}
	defer resp.Body.Close()
	ep.Latency = time.Since(start)

	if resp.StatusCode != http.StatusOK {
		return ep
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256<<10))
	if err != nil {
		return ep
	}

	ep.Available = r.matchesSignature(url, string(body))
	return ep
}

// matchesSignature rejects sites that answered but are not mirrors.
func (r *Registry) matchesSignature(url, body string) bool {
	urlLower := strings.ToLower(url)
	if strings.Contains(urlLower, "github") {
		return false
	}

	bodyLower := strings.ToLower(body)
	for _, kw := range r.cfg.SignatureKeywords {
		if strings.Contains(bodyLower, kw) {
			return true
		}
	}
	for _, kw := range r.cfg.URLKeywords {
		if strings.Contains(urlLower, kw) {
			return true
		}
	}
	return false
}
