// Package collisionstate is the Redis-backed ephemeral Tier 2 store:
// per-pair collision state, the stability queue, in-flight mission-creation
// locks and cooldowns. Losing a key here must at worst cause a pair to be
// re-detected or a mission to be re-attempted — never a data-integrity
// violation (SPEC_FULL.md §5).
//
// The cache-aside shape (fast Redis path, TTL refreshed on every touch)
// mirrors PricingRepository's demand/supply cache in the teacher.
package collisionstate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shiva/orbit/internal/model"
)

const (
	pairKeyPrefix     = "orbit:pair:"
	stabilityZSetKey  = "orbit:stability"
	lockKeyPrefix     = "orbit:lock:"
	cooldownKeyPrefix = "orbit:cooldown:"

	// pairTTL bounds how long a collision pair survives without
	// re-observation before Redis itself reclaims the key. StabilityWorker's
	// STALE_WINDOW aging sweep expires only the durable collision_events
	// rows and does not delete this key; pairTTL is what reclaims it.
	pairTTL = 10 * time.Minute
)

// ErrNotFound is returned when a pair or cooldown key does not exist.
var ErrNotFound = errors.New("collisionstate: not found")

// PairState is the ephemeral CollisionPair record.
//
// The pair's stable identity is the unordered user pair, not a circle pair:
// at detection time only the circle on the "stationary" side of the
// overlap (OwnerCircleID, owned by OwnerUserID) is known — the visitor's
// own circle is resolved lazily at mission-creation time (the visitor may
// own several; SPEC_FULL.md §9 Open Questions). Keying on the user pair
// keeps the Redis key stable across re-observations even as the observed
// OwnerCircleID drifts between the owner's overlapping circles, and even
// as OwnerUserID/VisitorUserID swap roles because either side can be the
// one whose movement triggers the next detection.
type PairState struct {
	OwnerCircleID int64
	OwnerUserID   int64
	VisitorUserID int64
	DistanceM     float64
	Status        model.CollisionStatus
	FirstSeenAt   time.Time
	LastSeenAt    time.Time
}

// Store wraps a Redis client with the collision-state key scheme.
type Store struct {
	rdb *redis.Client
}

// New creates a collision state store backed by the given Redis client.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func pairKey(user1ID, user2ID int64) string {
	lo, hi := model.CanonicalPair(user1ID, user2ID)
	return fmt.Sprintf("%s%d:%d", pairKeyPrefix, lo, hi)
}

func lockKey(u1, u2 int64) string {
	lo, hi := model.CanonicalPair(u1, u2)
	return fmt.Sprintf("%s%d:%d", lockKeyPrefix, lo, hi)
}

func cooldownKey(u1, u2 int64) string {
	lo, hi := model.CanonicalPair(u1, u2)
	return fmt.Sprintf("%s%d:%d", cooldownKeyPrefix, lo, hi)
}

// UpsertPair creates the pair record on first observation (status=detecting,
// first_seen_at=last_seen_at=now) or refreshes last_seen_at (and distance)
// on re-observation, preserving first_seen_at. The pair is also added to
// the stability queue, scored by first_seen_at — ZADD NX so a
// re-observation never moves its position in the queue.
//
// Returns the resulting state and whether this was the first observation.
func (s *Store) UpsertPair(ctx context.Context, ownerCircleID, ownerUserID, visitorUserID int64, distanceM float64, now time.Time) (*PairState, bool, error) {
	key := pairKey(ownerUserID, visitorUserID)

	created, err := s.rdb.HSetNX(ctx, key, "first_seen_at", now.Unix()).Result()
	if err != nil {
		return nil, false, fmt.Errorf("collisionstate: hsetnx first_seen: %w", err)
	}

	fields := map[string]any{
		"owner_circle_id": ownerCircleID,
		"owner_user_id":   ownerUserID,
		"visitor_user_id": visitorUserID,
		"distance_m":      distanceM,
		"last_seen_at":    now.Unix(),
	}
	if created {
		fields["status"] = string(model.CollisionDetecting)
	}
	if err := s.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return nil, false, fmt.Errorf("collisionstate: hset pair: %w", err)
	}
	if err := s.rdb.Expire(ctx, key, pairTTL).Err(); err != nil {
		return nil, false, fmt.Errorf("collisionstate: expire pair: %w", err)
	}

	firstSeen := now
	if !created {
		if raw, err := s.rdb.HGet(ctx, key, "first_seen_at").Result(); err == nil {
			if unix, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
				firstSeen = time.Unix(unix, 0)
			}
		}
	}

	if err := s.rdb.ZAddNX(ctx, stabilityZSetKey, redis.Z{
		Score:  float64(firstSeen.Unix()),
		Member: key,
	}).Err(); err != nil {
		return nil, false, fmt.Errorf("collisionstate: zadd stability: %w", err)
	}

	state, _, getErr := s.GetPairByKey(ctx, key)
	if getErr != nil {
		return nil, false, getErr
	}
	return state, created, nil
}

// GetPair fetches the current state of a pair, if it exists.
func (s *Store) GetPair(ctx context.Context, user1ID, user2ID int64) (*PairState, bool, error) {
	return s.GetPairByKey(ctx, pairKey(user1ID, user2ID))
}

// GetPairByKey fetches pair state by its raw Redis key (used when draining
// the stability queue, whose members are keys, not id pairs).
func (s *Store) GetPairByKey(ctx context.Context, key string) (*PairState, bool, error) {
	vals, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, false, fmt.Errorf("collisionstate: hgetall %s: %w", key, err)
	}
	if len(vals) == 0 {
		return nil, false, nil
	}

	ps := &PairState{}
	ps.OwnerCircleID, _ = strconv.ParseInt(vals["owner_circle_id"], 10, 64)
	ps.OwnerUserID, _ = strconv.ParseInt(vals["owner_user_id"], 10, 64)
	ps.VisitorUserID, _ = strconv.ParseInt(vals["visitor_user_id"], 10, 64)
	ps.DistanceM, _ = strconv.ParseFloat(vals["distance_m"], 64)
	ps.Status = model.CollisionStatus(vals["status"])
	if unix, perr := strconv.ParseInt(vals["first_seen_at"], 10, 64); perr == nil {
		ps.FirstSeenAt = time.Unix(unix, 0)
	}
	if unix, perr := strconv.ParseInt(vals["last_seen_at"], 10, 64); perr == nil {
		ps.LastSeenAt = time.Unix(unix, 0)
	}
	return ps, true, nil
}

// SetStatus transitions a pair's status in place.
func (s *Store) SetStatus(ctx context.Context, user1ID, user2ID int64, status model.CollisionStatus) error {
	key := pairKey(user1ID, user2ID)
	if err := s.rdb.HSet(ctx, key, "status", string(status)).Err(); err != nil {
		return fmt.Errorf("collisionstate: set status: %w", err)
	}
	return nil
}

// DeletePair removes a pair from both the hash and the stability queue.
func (s *Store) DeletePair(ctx context.Context, user1ID, user2ID int64) error {
	key := pairKey(user1ID, user2ID)
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.ZRem(ctx, stabilityZSetKey, key)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("collisionstate: delete pair: %w", err)
	}
	return nil
}

// StabilityEntry is one member of the stability queue.
type StabilityEntry struct {
	Key         string
	FirstSeenAt time.Time
}

// StabilityQueueEntries returns all queued pairs in ascending score
// (first_seen_at) order, as StabilityWorker reads them each tick.
func (s *Store) StabilityQueueEntries(ctx context.Context) ([]StabilityEntry, error) {
	zs, err := s.rdb.ZRangeWithScores(ctx, stabilityZSetKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("collisionstate: zrange stability: %w", err)
	}
	out := make([]StabilityEntry, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, StabilityEntry{Key: member, FirstSeenAt: time.Unix(int64(z.Score), 0)})
	}
	return out, nil
}

// StabilityQueueRemove drops an entry from the stability queue (the pair
// itself is left alone — callers decide whether to also delete it).
func (s *Store) StabilityQueueRemove(ctx context.Context, key string) error {
	if err := s.rdb.ZRem(ctx, stabilityZSetKey, key).Err(); err != nil {
		return fmt.Errorf("collisionstate: zrem stability: %w", err)
	}
	return nil
}

// AcquireInFlightLock implements the per-canonical-pair SET NX EX lock that
// guards mission creation against duplicate work. Returns false if another
// process already holds the lock.
func (s *Store) AcquireInFlightLock(ctx context.Context, user1ID, user2ID int64, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, lockKey(user1ID, user2ID), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("collisionstate: acquire lock: %w", err)
	}
	return ok, nil
}

// ReleaseInFlightLock releases the in-flight lock before its TTL runs out;
// a crash before release is tolerated because the TTL releases it anyway.
func (s *Store) ReleaseInFlightLock(ctx context.Context, user1ID, user2ID int64) error {
	if err := s.rdb.Del(ctx, lockKey(user1ID, user2ID)).Err(); err != nil {
		return fmt.Errorf("collisionstate: release lock: %w", err)
	}
	return nil
}

// Cooldown reports the active cooldown kind for a user pair, if any.
func (s *Store) Cooldown(ctx context.Context, user1ID, user2ID int64) (kind model.CooldownKind, active bool, err error) {
	val, err := s.rdb.Get(ctx, cooldownKey(user1ID, user2ID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("collisionstate: get cooldown: %w", err)
	}
	return model.CooldownKind(val), true, nil
}

// SetCooldown overlays a tiered cooldown on the unordered user pair for the
// given duration. Any later SetCooldown call replaces the previous kind and
// TTL, whether its TTL is longer or shorter — kind+duration is a flat table,
// not a ratchet, per
// SPEC_FULL.md §9 ("Tiered cooldown is a single enum plus a duration
// table, not polymorphism").
func (s *Store) SetCooldown(ctx context.Context, user1ID, user2ID int64, kind model.CooldownKind, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, cooldownKey(user1ID, user2ID), string(kind), ttl).Err(); err != nil {
		return fmt.Errorf("collisionstate: set cooldown: %w", err)
	}
	return nil
}
