// Package config loads the engine configuration from the environment.
// A single Config is constructed in main and passed into each component;
// nothing reads ambient state after startup.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all environment-based configuration.
type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort int    `envconfig:"METRICS_PORT" default:"9091"`
	CORSOrigin  string `envconfig:"CORS_ORIGIN" default:"*"`

	// Embedding / completion provider (OpenAI-compatible endpoint).
	ProviderAPIKey  string        `envconfig:"DASHSCOPE_API_KEY"`
	ProviderBaseURL string        `envconfig:"PROVIDER_BASE_URL" default:"https://dashscope.aliyuncs.com/compatible-mode/v1"`
	EmbedModel      string        `envconfig:"EMBED_MODEL" default:"text-embedding-v3"`
	ChatModel       string        `envconfig:"CHAT_MODEL" default:"qwen-turbo"`
	ProviderTimeout time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"60s"`
	VectorDim       int           `envconfig:"VECTOR_DIM" default:"1024"`

	// Vector store.
	QdrantAddr       string `envconfig:"QDRANT_ADDR" default:"localhost:6334"`
	QACollection     string `envconfig:"QA_COLLECTION" default:"persona_qa"`
	MomentCollection string `envconfig:"MOMENT_COLLECTION" default:"persona_moments"`

	// Ingestion pacing. The embedding provider caps calls per minute,
	// so ingestion spaces calls and backs off hard on rate limits.
	EmbedInterval time.Duration `envconfig:"EMBED_INTERVAL" default:"150ms"`
	EmbedCooldown time.Duration `envconfig:"EMBED_COOLDOWN" default:"30s"`
	EmbedRetries  int           `envconfig:"EMBED_RETRIES" default:"3"`
	BatchSize     int           `envconfig:"BATCH_SIZE" default:"10"`

	// Optional live-moment ingestion over NATS; empty disables it.
	NATSURL string `envconfig:"NATS_URL"`

	// Persona directive injected verbatim into every completion.
	// PersonaFile wins over the baked-in default.
	PersonaFile string `envconfig:"PERSONA_FILE"`
}

// Load reads .env (if present) then the process environment.
func Load() (Config, error) {
	// Missing .env is fine; explicit env vars are the source of truth.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if cfg.ProviderAPIKey == "" {
		return Config{}, fmt.Errorf("config: DASHSCOPE_API_KEY is required")
	}
	if cfg.VectorDim <= 0 {
		return Config{}, fmt.Errorf("config: VECTOR_DIM must be positive, got %d", cfg.VectorDim)
	}
	return cfg, nil
}

// PersonaPrompt returns the persona directive: the contents of
// PersonaFile when set, otherwise a neutral default.
func (c Config) PersonaPrompt() (string, error) {
	if c.PersonaFile == "" {
		return defaultPersona, nil
	}
	data, err := os.ReadFile(c.PersonaFile)
	if err != nil {
		return "", fmt.Errorf("config: read persona file: %w", err)
	}
	return string(data), nil
}

const defaultPersona = `You are the digital stand-in for this site's owner.
Answer as they would, using only the provided notes about their views and
daily posts. Be direct and plain. If the notes don't cover something, say
you haven't thought much about it. Never invent views.`
