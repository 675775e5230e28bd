// Package embed wraps the external embedding provider behind a narrow,
// order-preserving contract with typed transient/permanent failures.
package embed

import (
	"context"
	"errors"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Config configures the embedding client.
type Config struct {
	APIKey  string
	BaseURL string // OpenAI-compatible endpoint
	Model   string
	Timeout time.Duration
}

// Client calls an OpenAI-compatible embeddings endpoint. Each call
// consumes provider quota; callers pace themselves with a
// resilience.Pacer rather than assuming unlimited rate.
type Client struct {
	api   *openai.Client
	model string
}

// New creates an embedding client. A missing API key is a permanent
// configuration error.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, &ProviderError{Kind: Permanent, Op: "new", Err: errors.New("missing API key")}
	}

	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		c.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		api:   openai.NewClientWithConfig(c),
		model: cfg.Model,
	}, nil
}

// OpenAI exposes the underlying client for sibling endpoints on the
// same provider, such as chat completion.
func (c *Client) OpenAI() *openai.Client { return c.api }

// Embed returns one vector of length dim per input text, in input
// order. A single text is just a size-1 batch. On failure every vector
// is discarded; there is no partial result.
func (c *Client) Embed(ctx context.Context, texts []string, dim int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(c.model),
		Dimensions: dim,
	})
	if err != nil {
		return nil, classify("embed", err)
	}

	if len(resp.Data) != len(texts) {
		// Routing providers occasionally return short responses behind
		// a 200; treat like a rate-limit blip and let the caller retry.
		return nil, &ProviderError{
			Kind: Transient,
			Op:   "embed",
			Err:  errors.New("response vector count mismatch"),
		}
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, &ProviderError{Kind: Permanent, Op: "embed", Err: errors.New("response index out of range")}
		}
		if len(d.Embedding) != dim {
			// Wrong dimensionality poisons the collection; never store it.
			return nil, &ProviderError{Kind: Permanent, Op: "embed", Err: errors.New("vector dimension mismatch")}
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
