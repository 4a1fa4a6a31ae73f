// Package mission owns the durable Mission record and the orchestration
// that turns a stable collision pair into an interview job and, later, its
// resolution into matches and chats.
package mission

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/orbit/internal/model"
)

// Store is the durable Mission repository.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a mission repository backed by the given PG pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create inserts a new pending mission for a collision event.
func (s *Store) Create(ctx context.Context, m *model.Mission) (*model.Mission, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO missions (
			owner_user_id, visitor_user_id, owner_circle_id, visitor_circle_id,
			collision_event_id, status, attempt_number, created_at
		) VALUES ($1, $2, $3, $4, $5, 'pending', $6, now())
		RETURNING id, created_at
	`,
		m.OwnerUserID, m.VisitorUserID, m.OwnerCircleID, m.VisitorCircleID,
		m.CollisionEventID, m.AttemptNumber,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("mission: create: %w", err)
	}
	m.Status = model.MissionPending
	return m, nil
}

// Get fetches a mission by id.
func (s *Store) Get(ctx context.Context, id int64) (*model.Mission, error) {
	var m model.Mission
	var transcript []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_user_id, visitor_user_id, owner_circle_id, visitor_circle_id,
		       collision_event_id, status, attempt_number, transcript, judge_decision,
		       failure_reason, created_at, started_at, completed_at
		FROM missions WHERE id = $1
	`, id).Scan(
		&m.ID, &m.OwnerUserID, &m.VisitorUserID, &m.OwnerCircleID, &m.VisitorCircleID,
		&m.CollisionEventID, &m.Status, &m.AttemptNumber, &transcript, &m.JudgeDecision,
		&m.FailureReason, &m.CreatedAt, &m.StartedAt, &m.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("mission: get %d: %w", id, err)
	}
	if len(transcript) > 0 {
		if err := json.Unmarshal(transcript, &m.Transcript); err != nil {
			return nil, fmt.Errorf("mission: get %d: decode transcript: %w", id, err)
		}
	}
	return &m, nil
}

// MarkStarted transitions a mission to in_progress.
func (s *Store) MarkStarted(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE missions SET status = 'in_progress', started_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mission: mark started %d: %w", id, err)
	}
	return nil
}

// Complete records a finished mission's transcript, judge decision and
// terminal status (completed or failed).
func (s *Store) Complete(ctx context.Context, id int64, status model.MissionStatus, transcript []model.Turn, judgeDecision *bool, failureReason string) error {
	raw, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("mission: complete %d: encode transcript: %w", id, err)
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE missions
		SET status = $2, transcript = $3, judge_decision = $4, failure_reason = $5, completed_at = now()
		WHERE id = $1
	`, id, status, raw, judgeDecision, nullIfEmpty(failureReason))
	if err != nil {
		return fmt.Errorf("mission: complete %d: %w", id, err)
	}
	return nil
}

// IncrementAttempt bumps a mission's attempt number in place, used when a
// failed mission is retried rather than re-created.
func (s *Store) IncrementAttempt(ctx context.Context, id int64) (int, error) {
	var attempt int
	err := s.pool.QueryRow(ctx, `
		UPDATE missions SET attempt_number = attempt_number + 1, status = 'pending', started_at = NULL
		WHERE id = $1
		RETURNING attempt_number
	`, id).Scan(&attempt)
	if err != nil {
		return 0, fmt.Errorf("mission: increment attempt %d: %w", id, err)
	}
	return attempt, nil
}

// ActiveForPair reports whether a non-terminal mission already exists for
// the ordered (owner, visitor) pair tied to a collision event — the
// duplicate-suppression check the orchestrator runs under the in-flight
// lock before inserting a new row.
func (s *Store) ActiveForPair(ctx context.Context, ownerUserID, visitorUserID, collisionEventID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM missions
			WHERE owner_user_id = $1 AND visitor_user_id = $2 AND collision_event_id = $3
			  AND status IN ('pending', 'in_progress')
		)
	`, ownerUserID, visitorUserID, collisionEventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("mission: active-for-pair check: %w", err)
	}
	return exists, nil
}

// WithTx runs fn inside a ReadCommitted transaction, mirroring the
// teacher's BookingRepository.BookRide transaction shape, committing only
// if fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("mission: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("mission: commit tx: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
