package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

type embeddingsPayload struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	c, err := New(Config{APIKey: "sk-test", BaseURL: ts.URL, Model: "test-embed"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestEmbed_OrderPreserved(t *testing.T) {
	// The server answers with data entries shuffled; the client must
	// reassemble them by index so result[i] matches texts[i].
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body := `{
			"object": "list",
			"model": "test-embed",
			"data": [
				{"object": "embedding", "index": 2, "embedding": [3, 3, 3]},
				{"object": "embedding", "index": 0, "embedding": [1, 1, 1]},
				{"object": "embedding", "index": 1, "embedding": [2, 2, 2]}
			]
		}`
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	})

	vecs, err := c.Embed(context.Background(), []string{"a", "b", "c"}, 3)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors", len(vecs))
	}
	for i, want := range []float32{1, 2, 3} {
		if vecs[i][0] != want {
			t.Errorf("vecs[%d][0] = %v, want %v", i, vecs[i][0], want)
		}
	}
}

func TestEmbed_SingleTextIsSizeOneBatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float32{0.5, 0.5}},
			},
		})
	})
	vecs, err := c.Embed(context.Background(), []string{"hello"}, 2)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs) != 1 || len(vecs[0]) != 2 {
		t.Fatalf("unexpected shape: %v", vecs)
	}
}

func TestEmbed_RateLimitIsTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "requests per minute exceeded", "type": "rate_limit"}}`))
	})
	_, err := c.Embed(context.Background(), []string{"x"}, 2)
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if IsPermanent(err) {
		t.Fatal("rate limit classified as permanent")
	}
}

func TestEmbed_AuthFailureIsPermanent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "invalid api key", "type": "auth"}}`))
	})
	_, err := c.Embed(context.Background(), []string{"x"}, 2)
	if !IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestEmbed_ServerErrorIsTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error": {"message": "upstream unavailable"}}`))
	})
	_, err := c.Embed(context.Background(), []string{"x"}, 2)
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestEmbed_DimensionMismatchIsPermanent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float32{1, 2, 3}},
			},
		})
	})
	_, err := c.Embed(context.Background(), []string{"x"}, 1024)
	if !IsPermanent(err) {
		t.Fatalf("dimension mismatch must be permanent, got %v", err)
	}
}

func TestEmbed_CountMismatchIsTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": []any{}})
	})
	_, err := c.Embed(context.Background(), []string{"x", "y"}, 2)
	if !IsTransient(err) {
		t.Fatalf("short response must be transient, got %v", err)
	}
}

func TestNew_MissingKeyIsPermanent(t *testing.T) {
	_, err := New(Config{Model: "m"})
	if !IsPermanent(err) {
		t.Fatalf("missing key must be permanent, got %v", err)
	}
}

func TestEmbed_EmptyInput(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("no request expected for empty input")
	})
	vecs, err := c.Embed(context.Background(), nil, 4)
	if err != nil || vecs != nil {
		t.Fatalf("empty input: %v %v", vecs, err)
	}
}

func TestProviderError_Text(t *testing.T) {
	e := &ProviderError{Kind: Transient, Op: "embed", Status: 429, Err: fmt.Errorf("slow down")}
	if e.Error() == "" || e.Unwrap() == nil {
		t.Fatal("error text/unwrap broken")
	}
}
