package ingest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/nats-io/nats.go"
)

type fakePublisher struct {
	msgs        []*nats.Msg
	failSubject string
}

func (f *fakePublisher) PublishMsg(m *nats.Msg) error {
	if f.failSubject != "" && m.Subject == f.failSubject {
		return errors.New("publish refused")
	}
	f.msgs = append(f.msgs, m)
	return nil
}

func (f *fakePublisher) bySubject(subject string) []*nats.Msg {
	var out []*nats.Msg
	for _, m := range f.msgs {
		if m.Subject == subject {
			out = append(out, m)
		}
	}
	return out
}

func newTestConsumer(e Embedder, pub *fakePublisher) (*momentConsumer, *memAppend) {
	opts := DefaultOptions(4)
	opts.MaxAttempts = 1
	store := &memAppend{}
	return &momentConsumer{
		pub:    pub,
		pipe:   newTestPipeline(e, opts),
		store:  store,
		logger: slog.New(slog.DiscardHandler),
	}, store
}

func momentMsg(t *testing.T, retries string) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(momentRecords(1)[0])
	if err != nil {
		t.Fatal(err)
	}
	msg := nats.NewMsg(MomentSubject)
	msg.Data = data
	if retries != "" {
		msg.Header.Set(retryHeader, retries)
	}
	return msg
}

func TestConsumerStoresMoment(t *testing.T) {
	pub := &fakePublisher{}
	c, store := newTestConsumer(&fakeEmbedder{}, pub)

	c.handle(momentMsg(t, ""))

	if len(store.entries) != 1 {
		t.Fatalf("stored %d entries, want 1", len(store.entries))
	}
	if len(pub.msgs) != 0 {
		t.Fatalf("published %d messages on success", len(pub.msgs))
	}
}

func TestConsumerRequeuesWithBumpedHeader(t *testing.T) {
	pub := &fakePublisher{}
	c, store := newTestConsumer(&fakeEmbedder{fail: map[int]error{1: transientErr()}}, pub)

	msg := momentMsg(t, "")
	c.handle(msg)

	if len(store.entries) != 0 {
		t.Fatal("failed moment reached the store")
	}
	requeued := pub.bySubject(MomentSubject)
	if len(requeued) != 1 {
		t.Fatalf("requeued %d messages, want 1", len(requeued))
	}
	if got := requeued[0].Header.Get(retryHeader); got != "1" {
		t.Fatalf("retry header = %q, want 1", got)
	}
	if string(requeued[0].Data) != string(msg.Data) {
		t.Fatal("requeued payload differs from original")
	}
	if dead := pub.bySubject(MomentDLQSubject); len(dead) != 0 {
		t.Fatalf("dead-lettered %d messages before exhaustion", len(dead))
	}
}

func TestConsumerBumpsExistingRetryHeader(t *testing.T) {
	pub := &fakePublisher{}
	c, _ := newTestConsumer(&fakeEmbedder{fail: map[int]error{1: transientErr()}}, pub)

	c.handle(momentMsg(t, "1"))

	requeued := pub.bySubject(MomentSubject)
	if len(requeued) != 1 {
		t.Fatalf("requeued %d messages, want 1", len(requeued))
	}
	if got := requeued[0].Header.Get(retryHeader); got != "2" {
		t.Fatalf("retry header = %q, want 2", got)
	}
}

func TestConsumerDeadLettersAfterExhaustion(t *testing.T) {
	pub := &fakePublisher{}
	c, _ := newTestConsumer(&fakeEmbedder{fail: map[int]error{1: transientErr()}}, pub)

	// Third delivery: header already at 2, this failure exhausts it.
	c.handle(momentMsg(t, "2"))

	if requeued := pub.bySubject(MomentSubject); len(requeued) != 0 {
		t.Fatalf("requeued %d messages after exhaustion", len(requeued))
	}
	dead := pub.bySubject(MomentDLQSubject)
	if len(dead) != 1 {
		t.Fatalf("dead-lettered %d messages, want 1", len(dead))
	}

	var envelope DeadMoment
	if err := json.Unmarshal(dead[0].Data, &envelope); err != nil {
		t.Fatalf("DLQ payload undecodable: %v", err)
	}
	if envelope.Retries != maxRedeliveries {
		t.Fatalf("envelope retries = %d, want %d", envelope.Retries, maxRedeliveries)
	}
	if envelope.Moment.Content == "" || envelope.Error == "" {
		t.Fatalf("envelope incomplete: %+v", envelope)
	}
}

func TestConsumerRequeueFailureFallsBackToDLQ(t *testing.T) {
	pub := &fakePublisher{failSubject: MomentSubject}
	c, _ := newTestConsumer(&fakeEmbedder{fail: map[int]error{1: transientErr()}}, pub)

	c.handle(momentMsg(t, ""))

	dead := pub.bySubject(MomentDLQSubject)
	if len(dead) != 1 {
		t.Fatalf("dead-lettered %d messages, want 1", len(dead))
	}
}

func TestConsumerDeadLettersUndecodableMessage(t *testing.T) {
	pub := &fakePublisher{}
	c, store := newTestConsumer(&fakeEmbedder{}, pub)

	msg := nats.NewMsg(MomentSubject)
	msg.Data = []byte(`{not json`)
	c.handle(msg)

	if len(store.entries) != 0 {
		t.Fatal("garbage reached the store")
	}
	if requeued := pub.bySubject(MomentSubject); len(requeued) != 0 {
		t.Fatal("undecodable message was requeued")
	}
	if dead := pub.bySubject(MomentDLQSubject); len(dead) != 1 {
		t.Fatalf("dead-lettered %d messages, want 1", len(dead))
	}
}

func TestRetryCount(t *testing.T) {
	cases := []struct {
		header string
		want   int
	}{
		{"", 0},
		{"2", 2},
		{"not-a-number", 0},
		{"-1", 0},
	}
	for _, tc := range cases {
		msg := nats.NewMsg(MomentSubject)
		if tc.header != "" {
			msg.Header.Set(retryHeader, tc.header)
		}
		if got := retryCount(msg); got != tc.want {
			t.Errorf("retryCount(%q) = %d, want %d", tc.header, got, tc.want)
		}
	}
}
