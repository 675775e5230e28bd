// Package main implements the persona chat API server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/cyberlexi/engine/engine/embed"
	"github.com/cyberlexi/engine/engine/ingest"
	"github.com/cyberlexi/engine/engine/rag"
	"github.com/cyberlexi/engine/engine/retrieve"
	"github.com/cyberlexi/engine/engine/semantic"
	"github.com/cyberlexi/engine/pkg/config"
	"github.com/cyberlexi/engine/pkg/metrics"
	"github.com/cyberlexi/engine/pkg/mid"
	"github.com/cyberlexi/engine/pkg/resilience"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()
	reg.ServeAsync(cfg.MetricsPort)

	// --- Vector collections ---
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

	for _, store := range []*semantic.VectorStore{qaStore, momentStore} {
		if err := store.EnsureCollection(ctx, cfg.VectorDim); err != nil {
			return fmt.Errorf("ensure collection %s: %w", store.Collection(), err)
		}
	}

	// --- Provider clients ---
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
	ragSvc := rag.New(embedClient, retriever, completer, breaker, opts, logger)

	// --- Optional live moment ingestion ---
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("persona-api"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()

		pacer := resilience.NewFixedPacer(cfg.EmbedInterval, cfg.EmbedCooldown)
		pipelineOpts := ingest.Options{Dim: cfg.VectorDim, BatchSize: cfg.BatchSize, MaxAttempts: cfg.EmbedRetries}
		pipeline := ingest.New(embedClient, pacer, pipelineOpts, logger)

		sub, err := ingest.StartMomentConsumer(nc, pipeline, momentStore, logger)
		if err != nil {
			return fmt.Errorf("moment consumer: %w", err)
		}
		defer sub.Unsubscribe()
		logger.Info("moment consumer started", "subject", ingest.MomentSubject)
	}

	// --- HTTP server ---
	chatTotal := reg.Counter("chat_requests_total", "Chat requests served")
	chatErrors := reg.Counter("chat_request_errors_total", "Chat requests that failed")
	chatLatency := reg.Histogram("chat_request_seconds", "Chat request latency", nil)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/chat", handleChat(ragSvc, logger, chatTotal, chatErrors, chatLatency))

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("persona-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ChatRequest is the JSON body for POST /api/chat.
type ChatRequest struct {
	Message string     `json:"message"`
	History []rag.Turn `json:"history,omitempty"`
}

func handleChat(ragSvc *rag.Service, logger *slog.Logger, total, errs *metrics.Counter, latency *metrics.Histogram) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		total.Inc()

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.Message == "" {
			http.Error(w, `{"error":"message is required"}`, http.StatusBadRequest)
			return
		}

		reply, err := ragSvc.Reply(r.Context(), req.Message, req.History)
		if err != nil {
			errs.Inc()
			logger.Error("chat reply failed", "err", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}
		latency.Since(start)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(reply)
	}
}
