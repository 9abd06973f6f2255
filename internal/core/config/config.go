package config

import (
	"time"

	"github.com/minhngt/harvester/internal/core/domain"
	redisclient "github.com/minhngt/harvester/internal/infra/redis"
	"github.com/minhngt/harvester/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
	Redis    redisclient.Config `yaml:"redis"`
	Registry RegistryConfig     `yaml:"registry"`
	Crawler  CrawlerConfig      `yaml:"crawler"`
	Classify ClassifyConfig     `yaml:"classify"`
	LLM      LLMConfig          `yaml:"llm"`
	Filter   FilterConfig       `yaml:"filter"`
	Embedder EmbedderConfig     `yaml:"embedder"`
}

// ServerConfig holds the health/metrics HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// RegistryConfig holds endpoint registry settings.
type RegistryConfig struct {
	Seeds             []string      `yaml:"seeds"`
	SourcePages       []string      `yaml:"source_pages"`
	ProbeTimeout      time.Duration `yaml:"probe_timeout"`
	ProbeConcurrency  int           `yaml:"probe_concurrency"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
	MinAvailable      int           `yaml:"min_available"`
	SignatureKeywords []string      `yaml:"signature_keywords"`
	URLKeywords       []string      `yaml:"url_keywords"`
}

// CrawlerConfig holds crawl coordinator settings.
type CrawlerConfig struct {
	CycleInterval   time.Duration `yaml:"cycle_interval"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	PerAuthorBudget time.Duration `yaml:"per_author_budget"`
	AuthorDelay     time.Duration `yaml:"author_delay"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	RetryCount      int           `yaml:"retry_count"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	MaxItems        int           `yaml:"max_items"`
	DedupTTL        time.Duration `yaml:"dedup_ttl"`
}

// ClassifyConfig holds classification pipeline settings.
type ClassifyConfig struct {
	BatchSize         int           `yaml:"batch_size"`
	ItemDelay         time.Duration `yaml:"item_delay"`
	IdleDelay         time.Duration `yaml:"idle_delay"`
	ExpirationEnabled bool          `yaml:"expiration_enabled"`
	ExpirationAge     time.Duration `yaml:"expiration_age"`
	Tiers             []domain.Tier `yaml:"tiers"`
	EnrichTiers       []domain.Tier `yaml:"enrich_tiers"`
	SummaryBudget     int           `yaml:"summary_budget"`
}

// LLMConfig holds the remote grading/enrichment API settings.
type LLMConfig struct {
	APIURL  string        `yaml:"api_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// FilterConfig holds the local relevance filter settings.
type FilterConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// EmbedderConfig holds the embedding endpoint settings.
type EmbedderConfig struct {
	APIURL  string        `yaml:"api_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}
