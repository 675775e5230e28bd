// Package main re-embeds every entry in the qa collection in place.
// Run it after switching embedding model or dimensionality: keyed
// writes mean each entry is overwritten rather than duplicated.
package main

import (
	"context"
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
	"github.com/cyberlexi/engine/pkg/resilience"
)

const scrollPageSize = 64

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		color.Red("✗ re-embed failed: %v", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := semantic.New(cfg.QdrantAddr, cfg.QACollection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer store.Close()

	if err := store.EnsureCollection(ctx, cfg.VectorDim); err != nil {
		return fmt.Errorf("ensure collection %s: %w", cfg.QACollection, err)
	}

	embedClient, err := embed.New(embed.Config{
		APIKey:  cfg.ProviderAPIKey,
		BaseURL: cfg.ProviderBaseURL,
		Model:   cfg.EmbedModel,
		Timeout: cfg.ProviderTimeout,
	})
	if err != nil {
		return fmt.Errorf("embedding client: %w", err)
	}

	// Collect first, write second: scrolling and upserting the same
	// collection concurrently can revisit rewritten points.
	var records []domain.QARecord
	err = store.Scroll(ctx, scrollPageSize, func(m semantic.Match) error {
		if m.Question == "" {
			logger.Warn("skipping entry without question payload", "id", m.ID)
			return nil
		}
		records = append(records, domain.QARecord{
			Question: m.Question,
			Answer:   m.Answer,
			Category: m.Category,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("scroll %s: %w", cfg.QACollection, err)
	}
	if len(records) == 0 {
		color.Yellow("collection %s is empty, nothing to re-embed", cfg.QACollection)
		return nil
	}

	pacer := resilience.NewFixedPacer(cfg.EmbedInterval, cfg.EmbedCooldown)
	pipeline := ingest.New(embedClient, pacer, ingest.Options{
		Dim:         cfg.VectorDim,
		BatchSize:   cfg.BatchSize,
		MaxAttempts: cfg.EmbedRetries,
	}, logger)

	bar := progressbar.NewOptions(len(records),
		progressbar.OptionSetDescription(color.BlueString("re-embedding qa records")),
		progressbar.OptionSetItsString("records"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)

	sum, err := pipeline.UpsertQA(ctx, store, records, func(done, _ int) { _ = bar.Set(done) })

	fmt.Println()
	color.Green("✓ %s: %d re-embedded (%d overwrote existing)", cfg.QACollection, sum.Succeeded, sum.Updated)
	if sum.Failed > 0 {
		color.Red("✗ %d failed", sum.Failed)
	}
	return err
}
