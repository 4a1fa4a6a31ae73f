// Package crud implements the CRUD boundary consumed by the matchmaking
// core (SPEC_FULL.md §6): UserRepo, CircleRepo and ChatRepo, each a thin
// pgx-backed read/write adapter over the same durable schema the rest of
// the core writes to.
package crud

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/orbit/internal/core"
	"github.com/shiva/orbit/internal/model"
)

// Users implements core.UserRepo.
type Users struct {
	pool *pgxpool.Pool
}

// NewUsers creates a user repository backed by the given PG pool.
func NewUsers(pool *pgxpool.Pool) *Users {
	return &Users{pool: pool}
}

// Find implements core.UserRepo.
func (u *Users) Find(ctx context.Context, userID int64) (*core.UserRecord, error) {
	var rec core.UserRecord
	var lat, lon *float64
	err := u.pool.QueryRow(ctx, `
		SELECT id, ST_Y(center), ST_X(center) FROM users WHERE id = $1
	`, userID).Scan(&rec.ID, &lat, &lon)
	if err != nil {
		return nil, fmt.Errorf("crud: find user %d: %w", userID, err)
	}
	if lat != nil && lon != nil {
		rec.Center = &struct{ Lat, Lon float64 }{Lat: *lat, Lon: *lon}
	}
	return &rec, nil
}

// Circles implements core.CircleRepo.
type Circles struct {
	pool *pgxpool.Pool
}

// NewCircles creates a circle repository backed by the given PG pool.
func NewCircles(pool *pgxpool.Pool) *Circles {
	return &Circles{pool: pool}
}

// FindEffectiveByOwner implements core.CircleRepo: circles that are active
// and currently inside their [start_at, expires_at) window.
func (c *Circles) FindEffectiveByOwner(ctx context.Context, userID int64) ([]core.CircleRecord, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, owner_user_id, objective, extract(epoch from created_at)::bigint
		FROM circles
		WHERE owner_user_id = $1
		  AND status = 'active'
		  AND start_at <= now()
		  AND (expires_at IS NULL OR expires_at > now())
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("crud: find effective circles for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []core.CircleRecord
	for rows.Next() {
		var rec core.CircleRecord
		if err := rows.Scan(&rec.ID, &rec.OwnerUserID, &rec.Objective, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("crud: scan circle: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("crud: iterate circles for user %d: %w", userID, err)
	}
	return out, nil
}

// Chats implements core.ChatRepo.
type Chats struct {
	pool *pgxpool.Pool
}

// NewChats creates a chat repository backed by the given PG pool.
func NewChats(pool *pgxpool.Pool) *Chats {
	return &Chats{pool: pool}
}

// UpsertForPair implements core.ChatRepo, idempotently materialising the
// chat for an unordered user pair outside of MatchStore's own transaction
// (used by external callers that need chat existence without going through
// a mission resolution).
func (c *Chats) UpsertForPair(ctx context.Context, user1ID, user2ID int64) error {
	lo, hi := model.CanonicalPair(user1ID, user2ID)
	_, err := c.pool.Exec(ctx, `
		INSERT INTO chats (user1_id, user2_id, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user1_id, user2_id) DO NOTHING
	`, lo, hi)
	if err != nil {
		return fmt.Errorf("crud: upsert chat %d:%d: %w", lo, hi, err)
	}
	return nil
}
