// Package queue is the NATS JetStream-backed durable MissionQueue: at-least-
// once delivery so a crashed InterviewRunner worker replays undelivered
// jobs, with a durable consumer so redelivery survives a restart.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"

	"github.com/shiva/orbit/internal/core"
)

// Config names the JetStream stream, subject and durable consumer name the
// mission queue is built on.
type Config struct {
	Subject string
	Stream  string
	Durable string
}

// MissionQueue implements core.MissionProducer and core.MissionConsumer
// over a single JetStream stream.
type MissionQueue struct {
	js  nats.JetStreamContext
	cfg Config
}

// New ensures the backing stream exists and returns a MissionQueue bound to
// it.
func New(nc *nats.Conn, cfg Config) (*MissionQueue, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("queue: jetstream context: %w", err)
	}

	if _, err := js.StreamInfo(cfg.Stream); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     cfg.Stream,
			Subjects: []string{cfg.Subject},
			Storage:  nats.FileStorage,
		})
		if err != nil {
			return nil, fmt.Errorf("queue: add stream %s: %w", cfg.Stream, err)
		}
	}

	return &MissionQueue{js: js, cfg: cfg}, nil
}

// Enqueue implements core.MissionProducer.
func (q *MissionQueue) Enqueue(ctx context.Context, job core.MissionJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal mission %d: %w", job.MissionID, err)
	}
	if _, err := q.js.Publish(q.cfg.Subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("queue: publish mission %d: %w", job.MissionID, err)
	}
	return nil
}

// Consume implements core.MissionConsumer: it pulls from a durable
// JetStream consumer and hands each job to handle, acking a job only once
// handle succeeds so a failed or crashed handler causes redelivery;
// undecodable messages are acked and dropped. Runs until ctx is cancelled.
func (q *MissionQueue) Consume(ctx context.Context, handle func(context.Context, core.MissionJob) error) error {
	sub, err := q.js.PullSubscribe(q.cfg.Subject, q.cfg.Durable)
	if err != nil {
		return fmt.Errorf("queue: pull subscribe %s: %w", q.cfg.Subject, err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := sub.Fetch(1, nats.MaxWait(2e9))
		if err != nil {
			if err == nats.ErrTimeout {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[queue] fetch failed: %v", err)
			continue
		}

		for _, msg := range msgs {
			var job core.MissionJob
			if err := json.Unmarshal(msg.Data, &job); err != nil {
				log.Printf("[queue] discard undecodable message: %v", err)
				msg.Ack()
				continue
			}

			if err := handle(ctx, job); err != nil {
				log.Printf("[queue] handler failed for mission %d, leaving for redelivery: %v", job.MissionID, err)
				msg.Nak()
				continue
			}
			msg.Ack()
		}
	}
}
