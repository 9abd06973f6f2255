package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/minhngt/harvester/internal/core/domain"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	r := &cfg.Registry
	if r.ProbeTimeout == 0 {
		r.ProbeTimeout = 10 * time.Second
	}
	if r.ProbeConcurrency == 0 {
		r.ProbeConcurrency = 20
	}
	if r.CacheTTL == 0 {
		r.CacheTTL = 3 * time.Hour
	}
	if r.MinAvailable == 0 {
		r.MinAvailable = 5
	}
	if len(r.SignatureKeywords) == 0 {
		r.SignatureKeywords = []string{"nitter", "instance", "bird", "unofficial"}
	}
	if len(r.URLKeywords) == 0 {
		r.URLKeywords = []string{"nitter", "bird", "twitter", "xcancel"}
	}

	c := &cfg.Crawler
	if c.CycleInterval == 0 {
		c.CycleInterval = time.Minute
	}
	if c.RefreshInterval == 0 {
		c.RefreshInterval = 3 * time.Minute
	}
	if c.PerAuthorBudget == 0 {
		c.PerAuthorBudget = 5 * time.Second
	}
	if c.AuthorDelay == 0 {
		c.AuthorDelay = time.Second
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.RetryCount == 0 {
		c.RetryCount = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.MaxItems == 0 {
		c.MaxItems = 50
	}
	if c.DedupTTL == 0 {
		c.DedupTTL = 24 * time.Hour
	}

	p := &cfg.Classify
	if p.BatchSize == 0 {
		p.BatchSize = 10
	}
	if p.ItemDelay == 0 {
		p.ItemDelay = time.Second
	}
	if p.IdleDelay == 0 {
		p.IdleDelay = 5 * time.Second
	}
	if p.ExpirationAge == 0 {
		p.ExpirationAge = 24 * time.Hour
	}
	if len(p.Tiers) == 0 {
		p.Tiers = []domain.Tier{"P0", "P1", "P2", "P3", "P4", "P5", "P6"}
	}
	if len(p.EnrichTiers) == 0 {
		p.EnrichTiers = []domain.Tier{"P0", "P1", "P2"}
	}
	if p.SummaryBudget == 0 {
		p.SummaryBudget = 30
	}
}

func validate(cfg *AppConfig) error {
	vocab := domain.Tiers(cfg.Classify.Tiers)
	for _, t := range cfg.Classify.EnrichTiers {
		if !vocab.Contains(t) {
			return fmt.Errorf("enrich tier %q is not in the tier vocabulary", t)
		}
	}
	return nil
}
