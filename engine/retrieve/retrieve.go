// Package retrieve runs similarity search across the persona's
// collections. Sources are queried in parallel and fail independently:
// one collection being down degrades the answer, it never blocks it.
package retrieve

import (
	"context"
	"log/slog"
	"sort"

	"github.com/cyberlexi/engine/engine/semantic"
	"github.com/cyberlexi/engine/pkg/fn"
)

// Searcher is the read surface of a vector collection.
type Searcher interface {
	Query(ctx context.Context, vector []float32, topK int, minSimilarity float32) ([]semantic.Match, error)
}

// SearchConfig tunes one source's query.
type SearchConfig struct {
	// TopK caps results per source.
	TopK int
	// MinSimilarity drops matches below this cosine score.
	MinSimilarity float32
}

// DefaultSearchConfig returns the per-source defaults.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{TopK: 3, MinSimilarity: 0.01}
}

func (c SearchConfig) withDefaults() SearchConfig {
	d := DefaultSearchConfig()
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	if c.MinSimilarity <= 0 {
		c.MinSimilarity = d.MinSimilarity
	}
	return c
}

// Matches holds the retrieval outcome per source. A source that failed
// or matched nothing contributes an empty slice.
type Matches struct {
	QA      []semantic.Match
	Moments []semantic.Match
}

// Empty reports whether no source returned anything.
func (m Matches) Empty() bool {
	return len(m.QA) == 0 && len(m.Moments) == 0
}

// Service queries the qa and moment collections for a query vector.
type Service struct {
	qa        Searcher
	moments   Searcher
	qaCfg     SearchConfig
	momentCfg SearchConfig
	logger    *slog.Logger
}

// New creates a Service. Zero-valued configs take the defaults.
func New(qa, moments Searcher, qaCfg, momentCfg SearchConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		qa:        qa,
		moments:   moments,
		qaCfg:     qaCfg.withDefaults(),
		momentCfg: momentCfg.withDefaults(),
		logger:    logger,
	}
}

// Search queries both collections in parallel. A failed source is
// logged and contributes nothing; Search itself never fails.
func (s *Service) Search(ctx context.Context, vector []float32) Matches {
	results := fn.FanOut(
		func() []semantic.Match { return s.query(ctx, "qa", s.qa, vector, s.qaCfg) },
		func() []semantic.Match { return s.query(ctx, "moments", s.moments, vector, s.momentCfg) },
	)
	return Matches{QA: results[0], Moments: results[1]}
}

func (s *Service) query(ctx context.Context, source string, sr Searcher, vector []float32, cfg SearchConfig) []semantic.Match {
	if sr == nil {
		return nil
	}
	matches, err := sr.Query(ctx, vector, cfg.TopK, cfg.MinSimilarity)
	if err != nil {
		s.logger.Warn("retrieve: source unavailable", "source", source, "err", err)
		return nil
	}
	return rank(matches, cfg)
}

// rank re-applies the floor and ordering locally. The store is expected
// to do both, but the reply's quality depends on them, so they are not
// left to a remote contract.
func rank(matches []semantic.Match, cfg SearchConfig) []semantic.Match {
	kept := fn.Filter(matches, func(m semantic.Match) bool {
		return m.Similarity >= cfg.MinSimilarity
	})
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Similarity > kept[j].Similarity })
	if len(kept) > cfg.TopK {
		kept = kept[:cfg.TopK]
	}
	return kept
}
