// Package position implements PositionStore: the durable per-user center
// position plus the hot in-memory cache CollisionDetector uses for
// debounce decisions.
package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// lastPosition is the cached last-seen position for one user.
type lastPosition struct {
	lat, lon float64
	at       time.Time
}

// Store is the durable PositionStore. Writes are linearizable per user
// (single-row UPDATE); the in-memory cache may be briefly stale — that is
// acceptable for a debounce decision per SPEC_FULL.md §4.2.
type Store struct {
	pool  *pgxpool.Pool
	mu    sync.RWMutex
	cache map[int64]lastPosition
}

// New creates a position store backed by the given PG pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:  pool,
		cache: make(map[int64]lastPosition),
	}
}

// UpdatePosition persists the user's center and refreshes the hot cache.
func (s *Store) UpdatePosition(ctx context.Context, userID int64, lat, lon float64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users
		SET center = ST_SetSRID(ST_MakePoint($2, $3), 4326), updated_at = now()
		WHERE id = $1
	`, userID, lon, lat)

	s.mu.Lock()
	s.cache[userID] = lastPosition{lat: lat, lon: lon, at: time.Now()}
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("position: update user %d: %w", userID, err)
	}
	return nil
}

// LastPosition returns the in-memory last (lat, lon, instant) for a user,
// if any has been observed by this process since start.
func (s *Store) LastPosition(userID int64) (lat, lon float64, at time.Time, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lp, found := s.cache[userID]
	if !found {
		return 0, 0, time.Time{}, false
	}
	return lp.lat, lp.lon, lp.at, true
}
