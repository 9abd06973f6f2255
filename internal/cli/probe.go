package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/minhngt/harvester/internal/core/config"
	"github.com/minhngt/harvester/internal/infra/source"
	"github.com/minhngt/harvester/internal/infra/storage/memory"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe all candidate endpoints and print the ranking",
	Run:   runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		initLogger("")
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log := initLogger(cfg.Logging.Level)

	var sources []source.SeedSource
	for _, page := range cfg.Registry.SourcePages {
		sources = append(sources, source.NewStatusPageSource(
			page, cfg.Registry.URLKeywords, cfg.Crawler.RetryCount, cfg.Crawler.RetryDelay))
	}

	// One-shot probe, no need for the shared redis cache.
	registry := source.NewRegistry(source.RegistryConfig{
		Seeds:             cfg.Registry.Seeds,
		ProbeTimeout:      cfg.Registry.ProbeTimeout,
		ProbeConcurrency:  cfg.Registry.ProbeConcurrency,
		CacheTTL:          cfg.Registry.CacheTTL,
		MinAvailable:      cfg.Registry.MinAvailable,
		SignatureKeywords: cfg.Registry.SignatureKeywords,
		URLKeywords:       cfg.Registry.URLKeywords,
	}, memory.NewEndpointCache(), sources, log)

	ranked, err := registry.Refresh(context.Background(), true)
	if err != nil {
		log.Error("Probe failed", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "RANK\tENDPOINT\tLATENCY")
	for i, ep := range ranked {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, ep.URL, ep.Latency.Round(time.Millisecond))
	}
	_ = w.Flush()

	fmt.Printf("\n%d endpoints available\n", len(ranked))
}
