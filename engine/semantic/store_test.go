package semantic

import (
	"testing"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
)

func TestPointID_Deterministic(t *testing.T) {
	a := PointID("What is your favorite film?")
	b := PointID("What is your favorite film?")
	if a != b {
		t.Fatalf("same key produced different IDs: %s vs %s", a, b)
	}
	// No normalization: near-duplicate phrasing is a distinct key.
	c := PointID("What's your favorite film?")
	if a == c {
		t.Fatal("distinct keys collided")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	created := time.Date(2020, 11, 2, 8, 30, 0, 0, time.UTC)
	payload := toPayload(map[string]any{
		"question":   "Do you like jazz?",
		"answer":     "More than most things.",
		"category":   "taste",
		"content":    "listening to Mingus again",
		"created_at": created,
		"likes":      7,
	})

	m := matchFromPayload(payload)
	if m.Question != "Do you like jazz?" || m.Answer != "More than most things." {
		t.Errorf("qa fields lost: %+v", m)
	}
	if m.Category != "taste" || m.Content != "listening to Mingus again" {
		t.Errorf("text fields lost: %+v", m)
	}
	if !m.CreatedAt.Equal(created) {
		t.Errorf("created_at = %v, want %v", m.CreatedAt, created)
	}
	if m.Meta["likes"] != "7" {
		t.Errorf("meta = %v", m.Meta)
	}
}

func TestPointStruct_UsesKeyDerivedID(t *testing.T) {
	e := Entry{
		Key:    "q1",
		Vector: []float32{0.1, 0.2},
		Payload: map[string]any{
			"question": "q1",
		},
	}
	p := pointStruct(PointID(e.Key), e)
	if p.GetId().GetUuid() != PointID("q1") {
		t.Fatal("point ID not derived from natural key")
	}
	if got := p.GetVectors().GetVector().GetData(); len(got) != 2 {
		t.Fatalf("vector not carried: %v", got)
	}
}

func TestStringValue_Kinds(t *testing.T) {
	cases := map[string]*pb.Value{
		"s":    {Kind: &pb.Value_StringValue{StringValue: "s"}},
		"42":   {Kind: &pb.Value_IntegerValue{IntegerValue: 42}},
		"1.5":  {Kind: &pb.Value_DoubleValue{DoubleValue: 1.5}},
		"true": {Kind: &pb.Value_BoolValue{BoolValue: true}},
	}
	for want, v := range cases {
		if got := stringValue(v); got != want {
			t.Errorf("stringValue = %q, want %q", got, want)
		}
	}
}
