// Package rag turns a chat message into a persona-grounded reply:
// embed the message, retrieve matching context, assemble a prompt, and
// complete it. Provider trouble degrades to canned replies; the chat
// surface never propagates an error to the visitor.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cyberlexi/engine/engine/retrieve"
	"github.com/cyberlexi/engine/engine/semantic"
	"github.com/cyberlexi/engine/pkg/fn"
	"github.com/cyberlexi/engine/pkg/resilience"
)

// Chat roles carried in a conversation turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Turn is one message in a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SourceCounts reports how much retrieved context informed a reply.
type SourceCounts struct {
	QA      int `json:"qa"`
	Moments int `json:"moments"`
}

// Reply is the outcome of one chat exchange.
type Reply struct {
	Text    string       `json:"reply"`
	Sources SourceCounts `json:"sources"`
}

// Embedder vectorizes the visitor's message for retrieval.
type Embedder interface {
	Embed(ctx context.Context, texts []string, dim int) ([][]float32, error)
}

// Retriever looks up context for a query vector.
type Retriever interface {
	Search(ctx context.Context, vector []float32) retrieve.Matches
}

// Completer produces the model's reply for an assembled conversation.
type Completer interface {
	Complete(ctx context.Context, turns []Turn) (string, error)
}

// Options tunes the chat orchestration.
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int
	// Dim is the embedding dimensionality of the collections.
	Dim int
	// HistoryWindow caps how many prior turns accompany the message.
	HistoryWindow int
	// PersonaPrompt is the standing identity instruction.
	PersonaPrompt string
	// FallbackReply is returned when retrieval finds no usable context.
	FallbackReply string
	// ApologyReply is returned when a provider call fails.
	ApologyReply string
	// QACountThreshold is the exclusive similarity floor for a qa
	// match to count toward Sources. It is stricter than the assembly
	// threshold: weak matches may shape the prompt without being
	// reported as a source.
	QACountThreshold     float32
	MomentCountThreshold float32

	Assemble AssembleConfig
}

// DefaultOptions returns the chat defaults.
func DefaultOptions() Options {
	return Options{
		Model:                "qwen-turbo",
		Temperature:          0.7,
		MaxTokens:            600,
		Dim:                  1024,
		HistoryWindow:        4,
		FallbackReply:        "Hmm, I don't have anything on that yet. Ask me something else about me?",
		ApologyReply:         "Sorry, something went wrong on my end. Give me a moment and try again.",
		QACountThreshold:     0.1,
		MomentCountThreshold: 0,
		Assemble:             DefaultAssembleConfig(),
	}
}

// Service orchestrates one chat exchange end to end.
type Service struct {
	embedder  Embedder
	retriever Retriever
	completer Completer
	breaker   *resilience.Breaker
	opts      Options
	logger    *slog.Logger
}

// New creates a Service. A nil breaker disables circuit breaking.
func New(embedder Embedder, retriever Retriever, completer Completer, breaker *resilience.Breaker, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = DefaultOptions().HistoryWindow
	}
	return &Service{
		embedder:  embedder,
		retriever: retriever,
		completer: completer,
		breaker:   breaker,
		opts:      opts,
		logger:    logger,
	}
}

// Reply answers message in light of history. Provider trouble is
// logged and turned into a readable apology; an error comes back only
// when the request context itself is dead and no visitor is left to
// read a reply.
func (s *Service) Reply(ctx context.Context, message string, history []Turn) (Reply, error) {
	vecs, err := s.embedder.Embed(ctx, []string{message}, s.opts.Dim)
	if err != nil {
		if ctx.Err() != nil {
			return Reply{}, ctx.Err()
		}
		s.logger.Error("rag: query embedding failed", "err", err)
		return Reply{Text: s.opts.ApologyReply}, nil
	}

	matches := s.retriever.Search(ctx, vecs[0])

	contextBlock, ok := Build(matches, s.opts.Assemble)
	if !ok {
		// Nothing to ground a reply on. The model is not consulted.
		return Reply{Text: s.opts.FallbackReply}, nil
	}

	turns := s.conversation(contextBlock, message, history)

	text, err := s.complete(ctx, turns)
	if err != nil {
		if ctx.Err() != nil {
			return Reply{}, ctx.Err()
		}
		s.logger.Error("rag: completion failed", "err", err)
		return Reply{Text: s.opts.ApologyReply}, nil
	}

	return Reply{Text: text, Sources: s.countSources(matches)}, nil
}

func (s *Service) complete(ctx context.Context, turns []Turn) (string, error) {
	if s.breaker == nil {
		return s.completer.Complete(ctx, turns)
	}
	var text string
	err := s.breaker.Call(ctx, func(ctx context.Context) error {
		var cErr error
		text, cErr = s.completer.Complete(ctx, turns)
		return cErr
	})
	return text, err
}

// conversation builds the turn sequence: system prompt with context,
// then the most recent history turns oldest-first, then the message.
func (s *Service) conversation(contextBlock, message string, history []Turn) []Turn {
	if len(history) > s.opts.HistoryWindow {
		history = history[len(history)-s.opts.HistoryWindow:]
	}

	turns := make([]Turn, 0, len(history)+2)
	turns = append(turns, Turn{Role: RoleSystem, Content: s.systemPrompt(contextBlock)})
	turns = append(turns, history...)
	turns = append(turns, Turn{Role: RoleUser, Content: message})
	return turns
}

func (s *Service) systemPrompt(contextBlock string) string {
	var b strings.Builder
	if s.opts.PersonaPrompt != "" {
		b.WriteString(strings.TrimSpace(s.opts.PersonaPrompt))
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Use the following first-person context when it is relevant. Answer in my voice and do not mention that context was provided.\n\n%s", contextBlock)
	return b.String()
}

// countSources is a separate pass from prompt assembly. The reported
// counts use their own thresholds, so a reply can be shaped by a weak
// match that is not claimed as a source.
func (s *Service) countSources(m retrieve.Matches) SourceCounts {
	return SourceCounts{
		QA: fn.Count(m.QA, func(qa semantic.Match) bool {
			return qa.Similarity > s.opts.QACountThreshold
		}),
		Moments: fn.Count(m.Moments, func(mm semantic.Match) bool {
			return mm.Similarity > s.opts.MomentCountThreshold
		}),
	}
}
