// Package events is the NATS-backed fire-and-forget EventSink, publishing
// to "<subject-prefix>.<event-type>" the way SpaceManager.publishSpaceEvent
// topic-routes by event type in essg's trend-detection stack.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"

	"github.com/shiva/orbit/internal/core"
)

// Sink publishes core.Event values to NATS. It never returns an error to
// its caller — Emit's contract forbids blocking or failing the caller, so
// every failure is logged and swallowed.
type Sink struct {
	nc         *nats.Conn
	subjectFmt string
}

// NewSink creates an EventSink publishing onto subjects produced by
// fmt.Sprintf(subjectFmt, event.Type).
func NewSink(nc *nats.Conn, subjectFmt string) *Sink {
	if subjectFmt == "" {
		subjectFmt = "orbit.events.%s"
	}
	return &Sink{nc: nc, subjectFmt: subjectFmt}
}

// Emit implements core.EventSink.
func (s *Sink) Emit(ctx context.Context, event core.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[events] marshal %s failed: %v", event.Type, err)
		return
	}

	subject := fmt.Sprintf(s.subjectFmt, event.Type)
	if err := s.nc.Publish(subject, data); err != nil {
		log.Printf("[events] publish %s failed: %v", subject, err)
	}
}
