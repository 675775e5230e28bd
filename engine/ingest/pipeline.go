// Package ingest drives source records through embedding and into the
// vector store. Runs are sequential: the embedding provider caps calls
// per minute, so orderly rate-respecting progress matters more than
// throughput here. At most one ingestion run at a time is assumed;
// serializing runs is an operational concern.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/cyberlexi/engine/engine/domain"
	"github.com/cyberlexi/engine/engine/embed"
	"github.com/cyberlexi/engine/engine/semantic"
	"github.com/cyberlexi/engine/pkg/fn"
	"github.com/cyberlexi/engine/pkg/resilience"
)

// Embedder is the narrow contract ingest needs from the provider client.
type Embedder interface {
	Embed(ctx context.Context, texts []string, dim int) ([][]float32, error)
}

// KeyedStore is the write surface of a keyed-upsert collection.
type KeyedStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Upsert(ctx context.Context, e semantic.Entry) error
}

// AppendStore is the write surface of an append-only collection.
type AppendStore interface {
	Insert(ctx context.Context, entries []semantic.Entry) error
}

// Options tunes a Pipeline.
type Options struct {
	// Dim is the collection's fixed vector dimensionality.
	Dim int
	// BatchSize caps records per embedding call in append-only runs.
	BatchSize int
	// MaxAttempts bounds retries of a transient provider failure
	// before the record or batch is counted as failed.
	MaxAttempts int
}

// DefaultOptions returns the pipeline defaults.
func DefaultOptions(dim int) Options {
	return Options{Dim: dim, BatchSize: 10, MaxAttempts: 3}
}

// Summary is the aggregate outcome of one ingestion run. Updated counts
// keyed overwrites, as opposed to fresh inserts, and stays zero in
// append-only runs.
type Summary struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Updated   int `json:"updated"`
}

// Progress is an optional per-record callback for CLI progress display.
type Progress func(done, total int)

// Pipeline embeds and stores source records.
type Pipeline struct {
	embedder Embedder
	pacer    resilience.Pacer
	opts     Options
	logger   *slog.Logger
}

// New creates a Pipeline.
func New(embedder Embedder, pacer resilience.Pacer, opts Options, logger *slog.Logger) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{embedder: embedder, pacer: pacer, opts: opts, logger: logger}
}

// embedPaced calls the provider under pacing, retrying transient
// failures up to MaxAttempts with a cool-down between attempts.
// Permanent failures return immediately.
func (p *Pipeline) embedPaced(ctx context.Context, texts []string) ([][]float32, error) {
	for attempt := 1; ; attempt++ {
		if err := p.pacer.Wait(ctx); err != nil {
			return nil, err
		}
		vecs, err := p.embedder.Embed(ctx, texts, p.opts.Dim)
		if err == nil {
			return vecs, nil
		}
		if embed.IsPermanent(err) || attempt >= p.opts.MaxAttempts {
			return nil, err
		}
		p.logger.Warn("ingest: transient embed failure, cooling down",
			"attempt", attempt, "texts", len(texts), "err", err)
		p.pacer.Cooldown()
	}
}

// upsertOutcome reports whether a keyed write overwrote an entry.
type upsertOutcome struct {
	updated bool
}

// qaStage builds the per-record task for keyed-upsert ingestion:
// validate → embed the question → check existence → upsert.
func (p *Pipeline) qaStage(store KeyedStore) fn.Stage[domain.QARecord, upsertOutcome] {
	validate := fn.Stage[domain.QARecord, domain.QARecord](
		func(_ context.Context, r domain.QARecord) fn.Result[domain.QARecord] {
			if err := domain.ValidateQA(r); err != nil {
				return fn.Err[domain.QARecord](err)
			}
			return fn.Ok(r)
		})

	write := fn.Stage[domain.QARecord, upsertOutcome](
		func(ctx context.Context, r domain.QARecord) fn.Result[upsertOutcome] {
			// Only the question is embedded; the answer rides along as payload.
			vecs, err := p.embedPaced(ctx, []string{r.Question})
			if err != nil {
				return fn.Err[upsertOutcome](err)
			}

			exists, err := store.Exists(ctx, r.Question)
			if err != nil {
				return fn.Err[upsertOutcome](err)
			}

			entry := semantic.Entry{
				Key:    r.Question,
				Vector: vecs[0],
				Payload: map[string]any{
					"question": r.Question,
					"answer":   r.Answer,
					"category": r.Category,
				},
			}
			if err := store.Upsert(ctx, entry); err != nil {
				return fn.Err[upsertOutcome](err)
			}
			return fn.Ok(upsertOutcome{updated: exists})
		})

	return fn.Then(
		fn.TracedStage("ingest.validate", validate),
		fn.TracedStage("ingest.write", write),
	)
}

// UpsertQA runs keyed-upsert ingestion over records, one embedding call
// per record. Failures are isolated: a failed record is counted and the
// run continues. Only a permanent provider error aborts the run.
func (p *Pipeline) UpsertQA(ctx context.Context, store KeyedStore, records []domain.QARecord, progress Progress) (Summary, error) {
	stage := p.qaStage(store)
	var sum Summary

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		res := stage(ctx, rec)
		if res.IsErr() {
			_, err := res.Unwrap()
			if abortErr := p.runFatal(err); abortErr != nil {
				return sum, abortErr
			}
			sum.Failed++
			p.logger.Error("ingest: qa record failed", "question", preview(rec.Question), "err", err)
		} else {
			out, _ := res.Unwrap()
			sum.Succeeded++
			if out.updated {
				sum.Updated++
			}
		}

		if progress != nil {
			progress(i+1, len(records))
		}
	}
	return sum, nil
}

// momentStage builds the per-batch task for append-only ingestion: one
// embedding call covers the whole batch and one insert stores it. Any
// provider or storage failure fails the entire batch; there is no
// partial credit inside a batch.
func (p *Pipeline) momentStage(store AppendStore) fn.Stage[[]domain.MomentRecord, int] {
	stage := fn.Stage[[]domain.MomentRecord, int](
		func(ctx context.Context, batch []domain.MomentRecord) fn.Result[int] {
			for _, r := range batch {
				if err := domain.ValidateMoment(r); err != nil {
					return fn.Err[int](err)
				}
			}

			texts := fn.Map(batch, func(r domain.MomentRecord) string { return r.Content })
			vecs, err := p.embedPaced(ctx, texts)
			if err != nil {
				return fn.Err[int](err)
			}

			entries := make([]semantic.Entry, len(batch))
			for i, r := range batch {
				entries[i] = semantic.Entry{
					Vector: vecs[i],
					Payload: map[string]any{
						"content":    r.Content,
						"created_at": r.CreatedAt,
						"reposts":    r.Reposts,
						"comments":   r.Comments,
						"likes":      r.Likes,
					},
				}
			}
			if err := store.Insert(ctx, entries); err != nil {
				return fn.Err[int](err)
			}
			return fn.Ok(len(entries))
		})

	return fn.TracedStage("ingest.batch", stage)
}

// AppendMoments runs append-only ingestion over records in batches of
// Options.BatchSize. No existence check is performed: re-running over
// the same source duplicates entries, and that asymmetry with the keyed
// path is deliberate.
func (p *Pipeline) AppendMoments(ctx context.Context, store AppendStore, records []domain.MomentRecord, progress Progress) (Summary, error) {
	stage := p.momentStage(store)
	var sum Summary

	for start := 0; start < len(records); start += p.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		end := start + p.opts.BatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		res := stage(ctx, batch)
		if res.IsErr() {
			_, err := res.Unwrap()
			if abortErr := p.runFatal(err); abortErr != nil {
				return sum, abortErr
			}
			sum.Failed += len(batch)
			p.logger.Error("ingest: moment batch failed", "from", start, "size", len(batch), "err", err)
		} else {
			n, _ := res.Unwrap()
			sum.Succeeded += n
		}

		if progress != nil {
			progress(end, len(records))
		}
	}
	return sum, nil
}

// runFatal returns a non-nil error when err must abort the whole run:
// permanent provider/configuration failures and context cancellation.
// Everything else is an isolated record/batch failure.
func (p *Pipeline) runFatal(err error) error {
	if embed.IsPermanent(err) {
		return fmt.Errorf("ingest: aborting run: %w", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// preview truncates s for log output on a rune boundary.
func preview(s string) string {
	const max = 40
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
