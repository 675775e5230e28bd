// Package main implements an interactive terminal chat with the persona,
// useful for trying prompt and retrieval changes without the HTTP surface.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/cyberlexi/engine/engine/embed"
	"github.com/cyberlexi/engine/engine/rag"
	"github.com/cyberlexi/engine/engine/retrieve"
	"github.com/cyberlexi/engine/engine/semantic"
	"github.com/cyberlexi/engine/pkg/config"
	"github.com/cyberlexi/engine/pkg/resilience"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		color.Red("✗ %v", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	qaStore, err := semantic.New(cfg.QdrantAddr, cfg.QACollection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer qaStore.Close()

	momentStore, err := semantic.New(cfg.QdrantAddr, cfg.MomentCollection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer momentStore.Close()

	embedClient, err := embed.New(embed.Config{
		APIKey:  cfg.ProviderAPIKey,
		BaseURL: cfg.ProviderBaseURL,
		Model:   cfg.EmbedModel,
		Timeout: cfg.ProviderTimeout,
	})
	if err != nil {
		return fmt.Errorf("embedding client: %w", err)
	}

	persona, err := cfg.PersonaPrompt()
	if err != nil {
		return err
	}

	retriever := retrieve.New(qaStore, momentStore,
		retrieve.SearchConfig{}, retrieve.SearchConfig{}, logger)

	opts := rag.DefaultOptions()
	opts.Model = cfg.ChatModel
	opts.Dim = cfg.VectorDim
	opts.PersonaPrompt = persona

	completer := rag.NewOpenAICompleter(embedClient.OpenAI(), opts)
	breaker := resilience.NewBreaker(resilience.DefaultBreakerOpts)
	svc := rag.New(embedClient, retriever, completer, breaker, opts, logger)

	color.Cyan("Chatting as the persona (type 'exit' to quit)")

	var history []rag.Turn
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(color.BlueString("you> "))
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}
		if message == "exit" || message == "quit" {
			return nil
		}

		reply, err := svc.Reply(ctx, message, history)
		if err != nil {
			color.Red("✗ %v", err)
			continue
		}

		color.Green("persona> %s", reply.Text)
		if reply.Sources.QA > 0 || reply.Sources.Moments > 0 {
			color.HiBlack("  (sources: %d qa, %d moments)", reply.Sources.QA, reply.Sources.Moments)
		}

		history = append(history,
			rag.Turn{Role: rag.RoleUser, Content: message},
			rag.Turn{Role: rag.RoleAssistant, Content: reply.Text},
		)
		if max := opts.HistoryWindow; len(history) > max {
			history = history[len(history)-max:]
		}
	}
}
