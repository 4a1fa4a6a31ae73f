// Package collision implements CollisionDetector: given a position update,
// compute new collisions against nearby effective circles and upsert the
// ephemeral pair records that drive the stability pipeline.
package collision

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shiva/orbit/internal/collisionstate"
	"github.com/shiva/orbit/internal/core"
	"github.com/shiva/orbit/internal/geoindex"
	"github.com/shiva/orbit/internal/model"
	"github.com/shiva/orbit/internal/position"
	"github.com/shiva/orbit/pkg/geo"
)

// ErrClockDrift is returned when a position update's device timestamp is
// too far from server time to trust.
var ErrClockDrift = errors.New("collision: device instant too far from server time")

// Config tunes the debounce and search behaviour of the detector.
type Config struct {
	MinMovementMeters float64
	MinUpdateInterval time.Duration
	ClockDriftMax     time.Duration
}

// Detector is CollisionDetector.
type Detector struct {
	positions *position.Store
	index     *geoindex.Index
	state     *collisionstate.Store
	durable   *EventStore
	events    core.EventSink
	cfg       Config
}

// New creates a CollisionDetector wired to its collaborators.
func New(positions *position.Store, index *geoindex.Index, state *collisionstate.Store, durable *EventStore, events core.EventSink, cfg Config) *Detector {
	return &Detector{positions: positions, index: index, state: state, durable: durable, events: events, cfg: cfg}
}

// IngestResult is what Ingest reports back to the caller.
type IngestResult struct {
	Skipped    bool
	Collisions int
}

// Ingest runs the debounce → persist → query → upsert → emit algorithm of
// SPEC_FULL.md §4.3.
func (d *Detector) Ingest(ctx context.Context, userID int64, lat, lon, accuracy float64, deviceInstant time.Time) (IngestResult, error) {
	now := time.Now()

	// ── 1. Debounce ──────────────────────────────────────
	if abs(now.Sub(deviceInstant)) > driftMaxOr(d.cfg.ClockDriftMax) {
		log.Printf("[collision] ingest user=%d rejected: clock drift %s", userID, now.Sub(deviceInstant))
		return IngestResult{Skipped: true}, nil
	}

	if lastLat, lastLon, lastAt, ok := d.positions.LastPosition(userID); ok {
		moved := geo.HaversineM(model.Location{Lat: lastLat, Lon: lastLon}, model.Location{Lat: lat, Lon: lon})
		if shouldSkip(now, lastAt, moved, minIntervalOr(d.cfg.MinUpdateInterval), minMovementOr(d.cfg.MinMovementMeters)) {
			log.Printf("[collision] ingest user=%d skipped: moved %.1fm in %s", userID, moved, now.Sub(lastAt))
			return IngestResult{Skipped: true}, nil
		}
	}

	// ── 2. Persist position (best-effort) ───────────────
	if err := d.positions.UpdatePosition(ctx, userID, lat, lon); err != nil {
		log.Printf("[collision] ingest user=%d: position write failed (non-fatal): %v", userID, err)
	}

	// ── 3. Query GeoIndex ────────────────────────────────
	nearby, err := d.index.QueryNearby(ctx, userID, lat, lon)
	if err != nil {
		return IngestResult{}, err
	}

	// ── 4/5. Upsert pairs, emit events ───────────────────
	count := 0
	for _, nc := range nearby {
		if _, _, err := d.state.UpsertPair(ctx, nc.CircleID, nc.OwnerUserID, userID, nc.DistanceM, now); err != nil {
			// Best-effort: a single pair failing must not abort the others.
			log.Printf("[collision] ingest user=%d: upsert pair with circle=%d failed: %v", userID, nc.CircleID, err)
			continue
		}
		count++

		if _, err := d.durable.Upsert(ctx, userID, nc.OwnerUserID, nc.CircleID, nc.DistanceM, now); err != nil {
			// Best-effort: the audit row lags the authoritative Redis state.
			log.Printf("[collision] ingest user=%d: durable event upsert with circle=%d failed: %v", userID, nc.CircleID, err)
		}

		circleID := nc.CircleID
		d.events.Emit(ctx, core.Event{
			Type:          core.EventCollisionDetected,
			UserID:        userID,
			RelatedUserID: &nc.OwnerUserID,
			CircleID:      &circleID,
			Metadata: map[string]any{
				"distance_m": nc.DistanceM,
			},
			Timestamp: now,
		})
	}

	return IngestResult{Skipped: false, Collisions: count}, nil
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func driftMaxOr(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}

func minIntervalOr(d time.Duration) time.Duration {
	if d <= 0 {
		return 3 * time.Second
	}
	return d
}

func minMovementOr(m float64) float64 {
	if m <= 0 {
		return 20
	}
	return m
}

// shouldSkip is the pure debounce decision of SPEC_FULL.md §4.3 step 1: a
// position update is rejected only when it is both too soon and too close
// to the last accepted update for this user.
func shouldSkip(now, lastAt time.Time, movedMeters float64, minInterval time.Duration, minMovement float64) bool {
	return now.Sub(lastAt) < minInterval && movedMeters < minMovement
}
