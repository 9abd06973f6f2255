package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CrawlCycles tracks crawl cycles by outcome (active, skipped, empty)
	CrawlCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_crawl_cycles_total",
			Help: "Total number of crawl cycles by outcome",
		},
		[]string{"outcome"},
	)

	// ItemsIngested tracks new items persisted per author
	ItemsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_items_ingested_total",
			Help: "Total number of new items persisted",
		},
		[]string{"author"},
	)

	// FetchAttempts tracks per-endpoint fetch attempts by result
	FetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_fetch_attempts_total",
			Help: "Total number of timeline fetch attempts",
		},
		[]string{"result"},
	)

	// FetchLatency tracks timeline fetch latency per endpoint
	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvester_fetch_latency_seconds",
			Help:    "Timeline fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// EndpointProbes tracks probe results
	EndpointProbes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_endpoint_probes_total",
			Help: "Total number of endpoint probes",
		},
		[]string{"result"},
	)

	// AvailableEndpoints tracks the size of the last ranked endpoint list
	AvailableEndpoints = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "harvester_available_endpoints",
			Help: "Number of available endpoints after the last probe cycle",
		},
	)

	// LeaseAcquisitions tracks lease attempts by outcome (acquired, contended)
	LeaseAcquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_lease_acquisitions_total",
			Help: "Total number of lease acquisition attempts",
		},
		[]string{"outcome"},
	)

	// ItemsClassified tracks classified items by tier and deciding stage
	ItemsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_items_classified_total",
			Help: "Total number of classified items",
		},
		[]string{"tier", "source"},
	)

	// ClassifyFailures tracks items that ended in state failed
	ClassifyFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_classify_failures_total",
			Help: "Total number of items whose classification failed",
		},
	)

	// StageLatency tracks cascade stage latency
	StageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvester_stage_latency_seconds",
			Help:    "Classification stage latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// DBConnectionPoolUsage tracks database pool saturation
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "harvester_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
