// Package matchstore owns the durable Match and Chat records, and the
// transactional mutual-activation logic that turns two directional matches
// into a live chat without racing itself.
package matchstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/orbit/internal/model"
)

// Store is the durable Match/Chat repository. The row-level methods take a
// pgx.Tx so CreateOrUpdateDirectional, which runs its own transaction, can
// compose them with the inverse lookup that decides whether to activate a
// mutual match.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a match/chat repository backed by the given PG pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// BeginTx starts a ReadCommitted transaction, mirroring
// BookingRepository.BookRide in the teacher.
func (s *Store) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("matchstore: begin tx: %w", err)
	}
	return tx, nil
}

// FindDirectional locks and returns the directional match row from primary
// to secondary, if one exists, within tx.
func (s *Store) FindDirectional(ctx context.Context, tx pgx.Tx, primaryUserID, secondaryUserID int64) (*model.Match, bool, error) {
	var m model.Match
	err := tx.QueryRow(ctx, `
		SELECT id, primary_user_id, secondary_user_id, primary_circle_id, secondary_circle_id,
		       type, worth_it_score, status, collision_event_id, created_at, updated_at
		FROM matches
		WHERE primary_user_id = $1 AND secondary_user_id = $2
		FOR UPDATE
	`, primaryUserID, secondaryUserID).Scan(
		&m.ID, &m.PrimaryUserID, &m.SecondaryUserID, &m.PrimaryCircleID, &m.SecondaryCircleID,
		&m.Type, &m.WorthItScore, &m.Status, &m.CollisionEventID, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("matchstore: find directional %d->%d: %w", primaryUserID, secondaryUserID, err)
	}
	return &m, true, nil
}

// Insert creates a new directional match row within tx.
func (s *Store) Insert(ctx context.Context, tx pgx.Tx, m *model.Match) (*model.Match, error) {
	err := tx.QueryRow(ctx, `
		INSERT INTO matches (
			primary_user_id, secondary_user_id, primary_circle_id, secondary_circle_id,
			type, worth_it_score, status, collision_event_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING id, created_at, updated_at
	`,
		m.PrimaryUserID, m.SecondaryUserID, m.PrimaryCircleID, m.SecondaryCircleID,
		m.Type, m.WorthItScore, m.Status, m.CollisionEventID,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("matchstore: insert: %w", err)
	}
	return m, nil
}

// SetStatus transitions a match's status within tx.
func (s *Store) SetStatus(ctx context.Context, tx pgx.Tx, id int64, status model.MatchStatus) error {
	_, err := tx.Exec(ctx, `UPDATE matches SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("matchstore: set status %d: %w", id, err)
	}
	return nil
}

// UpsertChat materialises the chat for an unordered user pair, idempotently,
// within tx — ON CONFLICT DO NOTHING keyed on the canonical pair.
func (s *Store) UpsertChat(ctx context.Context, tx pgx.Tx, user1ID, user2ID int64) error {
	lo, hi := model.CanonicalPair(user1ID, user2ID)
	_, err := tx.Exec(ctx, `
		INSERT INTO chats (user1_id, user2_id, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user1_id, user2_id) DO NOTHING
	`, lo, hi)
	if err != nil {
		return fmt.Errorf("matchstore: upsert chat %d:%d: %w", lo, hi, err)
	}
	return nil
}

// CreateOrUpdateDirectional first checks, under a lock on the canonical
// pair, whether the inverse direction already exists (pending_accept or
// active), then records the caller's one-directional match decision. If the
// inverse exists, both directions are activated and the chat is
// materialised: mutual-match activation is a single
// transaction that reads the inverse match under the same write lock as
// the insert/update, so two concurrent missions resolving opposite
// directions of the same pair can never both observe "not yet mutual" and
// skip chat creation (the race in end-to-end scenario 6).
//
// Mirrors BookingRepository.BookRide's SELECT ... FOR UPDATE then
// INSERT/UPDATE then COMMIT shape, applied to matches instead of cab seats.
func (s *Store) CreateOrUpdateDirectional(ctx context.Context, primaryUserID, secondaryUserID, primaryCircleID, secondaryCircleID int64, mtype model.MatchType, worthItScore float64, collisionEventID int64) (mutual bool, err error) {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	// Serialise on the canonical pair itself: FOR UPDATE below locks nothing
	// when neither direction's row exists yet.
	lo, hi := model.CanonicalPair(primaryUserID, secondaryUserID)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text || ':' || $2::text, 0))`, lo, hi); err != nil {
		return false, fmt.Errorf("matchstore: lock pair %d:%d: %w", lo, hi, err)
	}

	// Lock both directions' rows (if present) in a fixed order — by
	// canonical pair — to avoid deadlocking against the opposite mission.
	if _, _, err := s.FindDirectional(ctx, tx, lo, hi); err != nil {
		return false, err
	}
	if _, _, err := s.FindDirectional(ctx, tx, hi, lo); err != nil {
		return false, err
	}

	// Per SPEC_FULL.md §4.5 step 5: if an inverse match already exists, this
	// side (and the inverse) become active and a chat is materialised;
	// otherwise this side is created/kept as pending_accept awaiting the
	// other direction. Read the inverse first so both branches below decide
	// off the same locked snapshot.
	inverse, inverseFound, err := s.FindDirectional(ctx, tx, secondaryUserID, primaryUserID)
	if err != nil {
		return false, err
	}
	mutual = inverseFound && (inverse.Status == model.MatchPendingAccept || inverse.Status == model.MatchActive)

	ownStatus := model.MatchPendingAccept
	if mutual {
		ownStatus = model.MatchActive
	}

	existing, found, err := s.FindDirectional(ctx, tx, primaryUserID, secondaryUserID)
	if err != nil {
		return false, err
	}
	if found {
		if existing.Status != ownStatus {
			if err := s.SetStatus(ctx, tx, existing.ID, ownStatus); err != nil {
				return false, err
			}
		}
	} else {
		_, err := s.Insert(ctx, tx, &model.Match{
			PrimaryUserID:     primaryUserID,
			SecondaryUserID:   secondaryUserID,
			PrimaryCircleID:   primaryCircleID,
			SecondaryCircleID: secondaryCircleID,
			Type:              mtype,
			WorthItScore:      worthItScore,
			Status:            ownStatus,
			CollisionEventID:  &collisionEventID,
		})
		if err != nil {
			return false, err
		}
	}

	if mutual {
		if inverse.Status != model.MatchActive {
			if err := s.SetStatus(ctx, tx, inverse.ID, model.MatchActive); err != nil {
				return false, err
			}
		}
		if err := s.UpsertChat(ctx, tx, primaryUserID, secondaryUserID); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("matchstore: commit directional match: %w", err)
	}
	return mutual, nil
}
