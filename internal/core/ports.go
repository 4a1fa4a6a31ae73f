package core

import "context"

// TextGenerator is the external, black-box LLM turn generator.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature, topP float64) (text string, stopSuggested bool, err error)
}

// Judge is the external, black-box transcript evaluator.
type Judge interface {
	Evaluate(ctx context.Context, ownerObjective string, transcript []Turn) (shouldNotify bool, err error)
}

// EventSink publishes lifecycle events for external observers. It must
// never block or fail the caller — implementations swallow their own
// errors after logging them.
type EventSink interface {
	Emit(ctx context.Context, event Event)
}

// MissionProducer enqueues mission jobs onto the durable, at-least-once
// mission queue.
type MissionProducer interface {
	Enqueue(ctx context.Context, job MissionJob) error
}

// MissionConsumer hands mission jobs to a handler until the context is
// cancelled. Delivery is at-least-once: handler must be idempotent.
type MissionConsumer interface {
	Consume(ctx context.Context, handle func(context.Context, MissionJob) error) error
}

// UserRepo is the external CRUD collaborator for user records.
type UserRepo interface {
	Find(ctx context.Context, userID int64) (*UserRecord, error)
}

// UserRecord is the subset of user state the core needs from the external
// CRUD layer.
type UserRecord struct {
	ID     int64
	Center *struct{ Lat, Lon float64 }
}

// CircleRepo is the external CRUD collaborator for circle records.
type CircleRepo interface {
	FindEffectiveByOwner(ctx context.Context, userID int64) ([]CircleRecord, error)
}

// CircleRecord is the subset of circle state the core needs from the
// external CRUD layer.
type CircleRecord struct {
	ID          int64
	OwnerUserID int64
	Objective   string
	CreatedAt   int64 // unix seconds, for "most recently created" tie-break
}

// ChatRepo is the external CRUD collaborator for chat materialisation.
type ChatRepo interface {
	UpsertForPair(ctx context.Context, user1ID, user2ID int64) error
}
