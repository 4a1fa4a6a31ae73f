// Package model contains the durable domain types of the matchmaking core.
// These structs map to the PostgreSQL schema shared with
// the external CRUD layer that owns users, circles and chats.
package model

import "time"

// ─── Enums ──────────────────────────────────────────────────

type CircleStatus string

const (
	CircleActive  CircleStatus = "active"
	CirclePaused  CircleStatus = "paused"
	CircleExpired CircleStatus = "expired"
)

type CollisionStatus string

const (
	CollisionDetecting      CollisionStatus = "detecting"
	CollisionStable         CollisionStatus = "stable"
	CollisionMissionCreated CollisionStatus = "mission_created"
	CollisionMatched        CollisionStatus = "matched"
	CollisionCooldown       CollisionStatus = "cooldown"
	CollisionExpired        CollisionStatus = "expired"
)

type MissionStatus string

const (
	MissionPending    MissionStatus = "pending"
	MissionInProgress MissionStatus = "in_progress"
	MissionCompleted  MissionStatus = "completed"
	MissionFailed     MissionStatus = "failed"
)

type MatchType string

const (
	MatchKindMatch     MatchType = "match"
	MatchKindSoftMatch MatchType = "soft_match"
)

type MatchStatus string

const (
	MatchPendingAccept MatchStatus = "pending_accept"
	MatchActive        MatchStatus = "active"
	MatchDeclined      MatchStatus = "declined"
	MatchExpired       MatchStatus = "expired"
)

// CooldownKind tiers the embargo a closed-out pair is placed under. Ordered
// loosest to strictest: notified < rejected < matched.
type CooldownKind string

const (
	CooldownNotified CooldownKind = "notified"
	CooldownRejected CooldownKind = "rejected"
	CooldownMatched  CooldownKind = "matched"
)

// ─── Location ───────────────────────────────────────────────

// Location represents a WGS-84 geographic point (EPSG:4326).
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ─── Domain Models ──────────────────────────────────────────

// User maps to the `users` table. Position is owned by PositionStore; if
// any of the user's circles are active, Center must be non-nil.
type User struct {
	ID        int64     `json:"id"`
	Center    *Location `json:"center,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Circle maps to the `circles` table. Center is never stored here — it is
// always dereferenced from the owner's current position at query time, so
// that moving a user moves every circle she owns together.
type Circle struct {
	ID          int64        `json:"id"`
	OwnerUserID int64        `json:"owner_user_id"`
	Objective   string       `json:"objective"`
	RadiusM     float64      `json:"radius_meters"`
	StartAt     time.Time    `json:"start_at"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
	Status      CircleStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Effective reports whether the circle is currently effective: active and
// inside its [start_at, expires_at) window.
func (c *Circle) Effective(now time.Time) bool {
	if c.Status != CircleActive {
		return false
	}
	if now.Before(c.StartAt) {
		return false
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return false
	}
	return true
}

// CollisionEvent is the durable, audit-grade twin of the ephemeral Redis
// CollisionPair. One row per canonical unordered user pair — see
// PairState in package collisionstate for why the stable identity is the
// user pair rather than a circle pair. OwnerCircleID is the one circle
// known at detection time (the stationary side of the overlap); the
// visitor's own circle is resolved lazily at mission-creation time.
type CollisionEvent struct {
	ID            int64           `json:"id"`
	OwnerCircleID int64           `json:"owner_circle_id"`
	User1ID       int64           `json:"user1_id"`
	User2ID       int64           `json:"user2_id"`
	DistanceM     float64         `json:"distance_meters"`
	Status        CollisionStatus `json:"status"`
	MissionID     *int64          `json:"mission_id,omitempty"`
	MatchID       *int64          `json:"match_id,omitempty"`
	FirstSeenAt   time.Time       `json:"first_seen_at"`
	LastSeenAt    time.Time       `json:"last_seen_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Mission is one agent-to-agent interview run on behalf of a canonical
// collision pair. Exactly one non-terminal mission may exist at a time for
// the same (ownerUserId, visitorUserId, collisionEventId).
type Mission struct {
	ID               int64         `json:"id"`
	OwnerUserID      int64         `json:"owner_user_id"`
	VisitorUserID    int64         `json:"visitor_user_id"`
	OwnerCircleID    int64         `json:"owner_circle_id"`
	VisitorCircleID  int64         `json:"visitor_circle_id"`
	CollisionEventID int64         `json:"collision_event_id"`
	Status           MissionStatus `json:"status"`
	AttemptNumber    int           `json:"attempt_number"`
	Transcript       []Turn        `json:"transcript,omitempty"`
	JudgeDecision    *bool         `json:"judge_decision,omitempty"`
	FailureReason    string        `json:"failure_reason,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
}

// Turn is one exchange in a mission transcript.
type Turn struct {
	Speaker string    `json:"speaker"` // "owner" | "visitor"
	Goal    string    `json:"goal"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Match is a directional record of the system's decision that two users
// should connect. Two directional rows for the same unordered pair, both
// active, compose a mutual match.
type Match struct {
	ID               int64       `json:"id"`
	PrimaryUserID    int64       `json:"primary_user_id"`
	SecondaryUserID  int64       `json:"secondary_user_id"`
	PrimaryCircleID  int64       `json:"primary_circle_id"`
	SecondaryCircleID int64      `json:"secondary_circle_id"`
	Type             MatchType   `json:"type"`
	WorthItScore     float64     `json:"worth_it_score"`
	Status           MatchStatus `json:"status"`
	CollisionEventID *int64      `json:"collision_event_id,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// Chat is a lightweight entity materialised once per active mutual match,
// uniquely keyed by the unordered user pair.
type Chat struct {
	ID        int64     `json:"id"`
	User1ID   int64     `json:"user1_id"`
	User2ID   int64     `json:"user2_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CanonicalPair returns (lo, hi) for an unordered pair of ids, lo <= hi —
// the ordering used throughout the core for pair keys and lock names.
func CanonicalPair(a, b int64) (int64, int64) {
	if a <= b {
		return a, b
	}
	return b, a
}
