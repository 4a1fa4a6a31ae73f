// Package geoindex answers "which other users' active circles currently
// contain point P?" against the PostGIS-backed circles/users tables.
//
// All spatial queries use PostGIS functions and rely on a GIST index over
// users(center). The index is read-only from the core's
// perspective: writes come from the external CRUD layer and from
// internal/position.
package geoindex

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NearbyCircle is one result of a queryNearby call.
type NearbyCircle struct {
	CircleID    int64
	OwnerUserID int64
	RadiusM     float64
	Objective   string
	DistanceM   float64
}

// Index provides spatial lookups over effective circles.
type Index struct {
	pool  *pgxpool.Pool
	limit int
}

// New creates a geo index backed by the given PG pool. limit bounds the
// result set (SPATIAL_SEARCH_LIMIT, default 200).
func New(pool *pgxpool.Pool, limit int) *Index {
	if limit <= 0 {
		limit = 200
	}
	return &Index{pool: pool, limit: limit}
}

// QueryNearby returns every currently-effective circle owned by a user
// other than userID whose disk contains (lat, lon), sorted by ascending
// distance and capped at the configured limit. A circle whose owner has
// never published a position is never returned (users.center IS NULL is
// excluded by the join).
//
// Complexity: O(log N) GIST scan + O(K) results, K <= limit.
func (idx *Index) QueryNearby(ctx context.Context, userID int64, lat, lon float64) ([]NearbyCircle, error) {
	query := `
		SELECT
			c.id, c.owner_user_id, c.radius_meters, c.objective,
			ST_Distance(
				u.center::geography,
				ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography
			) AS distance_m
		FROM circles c
		JOIN users u ON u.id = c.owner_user_id
		WHERE c.owner_user_id != $3
		  AND c.status = 'active'
		  AND c.start_at <= now()
		  AND (c.expires_at IS NULL OR c.expires_at > now())
		  AND u.center IS NOT NULL
		  AND ST_DWithin(
		        u.center::geography,
		        ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography,
		        c.radius_meters
		      )
		ORDER BY distance_m ASC
		LIMIT $4
	`

	rows, err := idx.pool.Query(ctx, query, lon, lat, userID, idx.limit)
	if err != nil {
		return nil, fmt.Errorf("geoindex: query nearby: %w", err)
	}
	defer rows.Close()

	var out []NearbyCircle
	for rows.Next() {
		var nc NearbyCircle
		if err := rows.Scan(&nc.CircleID, &nc.OwnerUserID, &nc.RadiusM, &nc.Objective, &nc.DistanceM); err != nil {
			return nil, fmt.Errorf("geoindex: scan nearby circle: %w", err)
		}
		out = append(out, nc)
	}
	return out, rows.Err()
}
