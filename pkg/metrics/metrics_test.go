package metrics

import (
	"strings"
	"testing"
)

func TestCounterAndGauge(t *testing.T) {
	r := New()
	c := r.Counter("persona_ingest_records_total", "Records ingested")
	c.Inc()
	c.Add(2)
	if c.Value() != 3 {
		t.Fatalf("counter = %d", c.Value())
	}

	g := r.Gauge("persona_ingest_active", "Active records")
	g.Inc()
	g.Inc()
	g.Dec()
	if g.Value() != 1 {
		t.Fatalf("gauge = %d", g.Value())
	}
}

func TestCounterIdentity(t *testing.T) {
	r := New()
	a := r.Counter("x_total", "")
	b := r.Counter("x_total", "")
	if a != b {
		t.Fatal("same name should return same counter")
	}
}

func TestWithLabels(t *testing.T) {
	got := WithLabels("persona_errors_total", "stage", "embed")
	if got != `persona_errors_total{stage="embed"}` {
		t.Fatalf("WithLabels = %s", got)
	}
	if WithLabels("plain") != "plain" {
		t.Fatal("no labels should return name unchanged")
	}
}

func TestRender(t *testing.T) {
	r := New()
	r.Counter(WithLabels("persona_docs_total", "source", "qa"), "Docs").Add(5)
	r.Counter(WithLabels("persona_docs_total", "source", "moments"), "Docs").Add(2)
	h := r.Histogram("persona_embed_seconds", "Embed latency", []float64{0.1, 1})
	h.Observe(0.05)
	h.Observe(0.5)

	out := r.Render()
	for _, want := range []string{
		"# TYPE persona_docs_total counter",
		`persona_docs_total{source="qa"} 5`,
		`persona_docs_total{source="moments"} 2`,
		`persona_embed_seconds_bucket{le="0.1"} 1`,
		`persona_embed_seconds_bucket{le="1"} 2`,
		"persona_embed_seconds_count 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q\n%s", want, out)
		}
	}
}
