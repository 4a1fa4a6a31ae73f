package collision

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/orbit/internal/model"
)

// EventStore is the durable twin of the ephemeral CollisionPair: one row
// per canonical unordered user pair, kept for audit and cross-restart
// recovery. Best-effort from the detector's perspective — a failed write
// here never aborts detection (SPEC_FULL.md §4.3).
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a durable collision-event store.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Upsert records (or refreshes) the audit row for a user pair. On first
// observation after the prior row (if any) reached a terminal state, a new
// row is created — see SPEC_FULL.md §9 Open Questions on re-collision
// after expiry: this module's resolution is to always allow a fresh row
// once the previous one is terminal, rather than reuse or reject it.
func (s *EventStore) Upsert(ctx context.Context, user1ID, user2ID, ownerCircleID int64, distanceM float64, now time.Time) (*model.CollisionEvent, error) {
	lo, hi := model.CanonicalPair(user1ID, user2ID)

	var ev model.CollisionEvent
	err := s.pool.QueryRow(ctx, `
		INSERT INTO collision_events (user1_id, user2_id, owner_circle_id, distance_meters, status, first_seen_at, last_seen_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'detecting', $5, $5, $5, $5)
		ON CONFLICT (user1_id, user2_id) WHERE status NOT IN ('expired', 'matched')
		DO UPDATE SET last_seen_at = $5, distance_meters = $4, owner_circle_id = $3, updated_at = $5
		RETURNING id, user1_id, user2_id, owner_circle_id, distance_meters, status, mission_id, match_id, first_seen_at, last_seen_at, created_at, updated_at
	`, lo, hi, ownerCircleID, distanceM, now).Scan(
		&ev.ID, &ev.User1ID, &ev.User2ID, &ev.OwnerCircleID, &ev.DistanceM, &ev.Status,
		&ev.MissionID, &ev.MatchID, &ev.FirstSeenAt, &ev.LastSeenAt, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("collision: upsert event for (%d,%d): %w", lo, hi, err)
	}
	return &ev, nil
}

// SetStatus transitions a collision event's status.
func (s *EventStore) SetStatus(ctx context.Context, id int64, status model.CollisionStatus) error {
	_, err := s.pool.Exec(ctx, `UPDATE collision_events SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("collision: set status for event %d: %w", id, err)
	}
	return nil
}

// AttachMission records the mission id created for this collision event and
// moves its status to mission_created.
func (s *EventStore) AttachMission(ctx context.Context, id, missionID int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE collision_events SET status = 'mission_created', mission_id = $2, updated_at = now()
		WHERE id = $1
	`, id, missionID)
	if err != nil {
		return fmt.Errorf("collision: attach mission to event %d: %w", id, err)
	}
	return nil
}

// AttachMatch records the match id and final status for a resolved collision event.
func (s *EventStore) AttachMatch(ctx context.Context, id, matchID int64, status model.CollisionStatus) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE collision_events SET status = $3, match_id = $2, updated_at = now()
		WHERE id = $1
	`, id, matchID, status)
	if err != nil {
		return fmt.Errorf("collision: attach match to event %d: %w", id, err)
	}
	return nil
}

// ExpireStale transitions collision_events rows first seen before cutoff and
// still detecting or stable to expired — the durable half of StabilityWorker
// aging (SPEC_FULL.md §4.4 step 4) and reused verbatim by Janitor for its
// 48h sweep.
func (s *EventStore) ExpireStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE collision_events
		SET status = 'expired', updated_at = now()
		WHERE first_seen_at < $1 AND status IN ('detecting', 'stable')
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("collision: expire stale events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ByUserPair fetches the current non-terminal row for a user pair, if any —
// used to recover mission/match linkage after a restart.
func (s *EventStore) ByUserPair(ctx context.Context, user1ID, user2ID int64) (*model.CollisionEvent, bool, error) {
	lo, hi := model.CanonicalPair(user1ID, user2ID)
	var ev model.CollisionEvent
	err := s.pool.QueryRow(ctx, `
		SELECT id, user1_id, user2_id, owner_circle_id, distance_meters, status, mission_id, match_id, first_seen_at, last_seen_at, created_at, updated_at
		FROM collision_events
		WHERE user1_id = $1 AND user2_id = $2 AND status NOT IN ('expired', 'matched')
		ORDER BY created_at DESC
		LIMIT 1
	`, lo, hi).Scan(
		&ev.ID, &ev.User1ID, &ev.User2ID, &ev.OwnerCircleID, &ev.DistanceM, &ev.Status,
		&ev.MissionID, &ev.MatchID, &ev.FirstSeenAt, &ev.LastSeenAt, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		return nil, false, nil
	}
	return &ev, true, nil
}
