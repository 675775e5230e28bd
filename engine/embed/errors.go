package embed

import (
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// Kind classifies a provider failure for retry decisions.
type Kind int

const (
	// Transient failures (rate limit, network hiccup, 5xx) may be
	// retried after a cool-down.
	Transient Kind = iota
	// Permanent failures (bad credentials, malformed request,
	// unsupported dimension) abort the calling operation.
	Permanent
)

func (k Kind) String() string {
	if k == Permanent {
		return "permanent"
	}
	return "transient"
}

// ProviderError is the typed failure returned by Client. Callers branch
// on Kind instead of inspecting error text.
type ProviderError struct {
	Kind   Kind
	Op     string
	Status int // HTTP status when known, 0 otherwise
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("embed: %s: %s provider error (status %d): %v", e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("embed: %s: %s provider error: %v", e.Op, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable provider failure.
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == Transient
}

// IsPermanent reports whether err is a non-retryable provider failure.
func IsPermanent(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == Permanent
}

// classify wraps a go-openai error with a retry classification derived
// from its HTTP status. Errors without a status (dial failures,
// timeouts) are treated as transient network hiccups.
func classify(op string, err error) *ProviderError {
	status := 0

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	kind := Transient
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout:
		kind = Transient
	case status >= 500:
		kind = Transient
	case status >= 400:
		// Auth failure, malformed request, unsupported model/dimension.
		kind = Permanent
	}

	return &ProviderError{Kind: kind, Op: op, Status: status, Err: err}
}
