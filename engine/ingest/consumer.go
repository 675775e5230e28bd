package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/cyberlexi/engine/engine/domain"
	"github.com/cyberlexi/engine/pkg/natsutil"
)

const (
	// MomentSubject carries freshly scraped moments for ingestion.
	MomentSubject = "persona.moments"
	// MomentDLQSubject receives moments that exhausted redelivery.
	MomentDLQSubject = "persona.moments.dlq"

	retryHeader     = "X-Retry-Count"
	maxRedeliveries = 3
	handleTimeout   = 2 * time.Minute
)

// DeadMoment is the DLQ envelope for a moment that could not be ingested.
type DeadMoment struct {
	Moment  domain.MomentRecord `json:"moment"`
	Error   string              `json:"error"`
	Retries int                 `json:"retries"`
}

// momentConsumer handles one moment message at a time: ingest, requeue
// with a bumped retry header on failure, dead-letter after exhaustion.
type momentConsumer struct {
	pub    natsutil.Publisher
	pipe   *Pipeline
	store  AppendStore
	logger *slog.Logger
}

// StartMomentConsumer subscribes to MomentSubject and feeds each moment
// through the pipeline. Failed messages are republished with a bumped
// retry header; after maxRedeliveries they land on the DLQ subject with
// the last error attached.
func StartMomentConsumer(nc *nats.Conn, p *Pipeline, store AppendStore, logger *slog.Logger) (*nats.Subscription, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &momentConsumer{pub: nc, pipe: p, store: store, logger: logger}
	return nc.Subscribe(MomentSubject, c.handle)
}

func (c *momentConsumer) handle(msg *nats.Msg) {
	var rec domain.MomentRecord
	if err := json.Unmarshal(msg.Data, &rec); err != nil {
		// Requeueing bytes that will never decode only loops them.
		c.logger.Error("ingest: undecodable moment message", "err", err)
		c.deadLetter(DeadMoment{Error: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(natsutil.Extract(context.Background(), msg), handleTimeout)
	defer cancel()

	sum, err := c.pipe.AppendMoments(ctx, c.store, []domain.MomentRecord{rec}, nil)
	if err == nil && sum.Failed == 0 {
		c.logger.Info("ingest: moment stored", "content", preview(rec.Content))
		return
	}
	if err == nil {
		err = errMomentRejected
	}

	retries := retryCount(msg) + 1
	if retries >= maxRedeliveries {
		c.logger.Error("ingest: moment exhausted retries", "retries", retries, "err", err)
		c.deadLetter(DeadMoment{Moment: rec, Error: err.Error(), Retries: retries})
		return
	}

	c.logger.Warn("ingest: moment requeued", "retry", retries, "err", err)
	retry := nats.NewMsg(MomentSubject)
	retry.Data = msg.Data
	retry.Header.Set(retryHeader, strconv.Itoa(retries))
	if pubErr := c.pub.PublishMsg(retry); pubErr != nil {
		c.logger.Error("ingest: requeue failed", "err", pubErr)
		c.deadLetter(DeadMoment{Moment: rec, Error: err.Error(), Retries: retries})
	}
}

func (c *momentConsumer) deadLetter(dead DeadMoment) {
	if err := natsutil.Publish(context.Background(), c.pub, MomentDLQSubject, dead); err != nil {
		c.logger.Error("ingest: dead-letter publish failed", "err", err)
	}
}

func retryCount(msg *nats.Msg) int {
	n, err := strconv.Atoi(msg.Header.Get(retryHeader))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

var errMomentRejected = &rejectedError{}

type rejectedError struct{}

func (*rejectedError) Error() string { return "moment rejected by pipeline" }
