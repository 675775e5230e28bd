// Package main implements the batch ingestion CLI. It reads source
// records from JSON files and embeds them into the vector collections,
// qa entries with keyed upserts and moments append-only.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/cyberlexi/engine/engine/domain"
	"github.com/cyberlexi/engine/engine/embed"
	"github.com/cyberlexi/engine/engine/ingest"
	"github.com/cyberlexi/engine/engine/semantic"
	"github.com/cyberlexi/engine/pkg/config"
	"github.com/cyberlexi/engine/pkg/metrics"
	"github.com/cyberlexi/engine/pkg/resilience"
)

func main() {
	qaFile := flag.String("qa", "", "path to a JSON array of {question, answer, category} records")
	momentsFile := flag.String("moments", "", "path to a JSON array of {content, created_at, reposts, comments, likes} records")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if *qaFile == "" && *momentsFile == "" {
		fmt.Fprintln(os.Stderr, "usage: ingest -qa qa.json and/or -moments moments.json")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, *qaFile, *momentsFile, logger); err != nil {
		color.Red("✗ ingestion failed: %v", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, qaFile, momentsFile string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()
	reg.ServeAsync(cfg.MetricsPort)
	succeeded := reg.Counter("ingest_records_succeeded_total", "Records stored")
	failed := reg.Counter("ingest_records_failed_total", "Records that failed")

	embedClient, err := embed.New(embed.Config{
		APIKey:  cfg.ProviderAPIKey,
		BaseURL: cfg.ProviderBaseURL,
		Model:   cfg.EmbedModel,
		Timeout: cfg.ProviderTimeout,
	})
	if err != nil {
		return fmt.Errorf("embedding client: %w", err)
	}

	pacer := resilience.NewFixedPacer(cfg.EmbedInterval, cfg.EmbedCooldown)
	pipeline := ingest.New(embedClient, pacer, ingest.Options{
		Dim:         cfg.VectorDim,
		BatchSize:   cfg.BatchSize,
		MaxAttempts: cfg.EmbedRetries,
	}, logger)

	if qaFile != "" {
		var records []domain.QARecord
		if err := readJSON(qaFile, &records); err != nil {
			return err
		}

		store, err := openStore(ctx, cfg, cfg.QACollection)
		if err != nil {
			return err
		}
		defer store.Close()

		bar := newBar(len(records), "embedding qa records")
		sum, err := pipeline.UpsertQA(ctx, store, records, barProgress(bar))
		report(cfg.QACollection, sum, succeeded, failed)
		if err != nil {
			return err
		}
	}

	if momentsFile != "" {
		var records []domain.MomentRecord
		if err := readJSON(momentsFile, &records); err != nil {
			return err
		}

		store, err := openStore(ctx, cfg, cfg.MomentCollection)
		if err != nil {
			return err
		}
		defer store.Close()

		bar := newBar(len(records), "embedding moments")
		sum, err := pipeline.AppendMoments(ctx, store, records, barProgress(bar))
		report(cfg.MomentCollection, sum, succeeded, failed)
		if err != nil {
			return err
		}
	}

	return nil
}

func openStore(ctx context.Context, cfg config.Config, collection string) (*semantic.VectorStore, error) {
	store, err := semantic.New(cfg.QdrantAddr, collection)
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	if err := store.EnsureCollection(ctx, cfg.VectorDim); err != nil {
		store.Close()
		return nil, fmt.Errorf("ensure collection %s: %w", collection, err)
	}
	return store, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func newBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("records"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)
}

func barProgress(bar *progressbar.ProgressBar) ingest.Progress {
	return func(done, _ int) {
		_ = bar.Set(done)
	}
}

func report(collection string, sum ingest.Summary, succeeded, failed *metrics.Counter) {
	succeeded.Add(int64(sum.Succeeded))
	failed.Add(int64(sum.Failed))

	fmt.Println()
	color.Green("✓ %s: %d stored (%d updated)", collection, sum.Succeeded, sum.Updated)
	if sum.Failed > 0 {
		color.Red("✗ %s: %d failed", collection, sum.Failed)
	}
}
