package mission

import (
	"context"
	"log"
	"time"

	"github.com/shiva/orbit/internal/collision"
	"github.com/shiva/orbit/internal/collisionstate"
	"github.com/shiva/orbit/internal/core"
	"github.com/shiva/orbit/internal/matchstore"
	"github.com/shiva/orbit/internal/model"
)

// softMatchWorthIt is the fixed worth-it score every mission-born match is
// stamped with. SPEC_FULL.md §9 Open Questions flags the scoring function
// as unspecified by the distilled design; this module's resolution is the
// conservative one the design notes themselves suggest — a single constant
// rather than inventing an unscoped heuristic — until a real scorer is
// commissioned.
const softMatchWorthIt = 0.95

// Config tunes mission creation and retry behaviour.
type Config struct {
	InFlightTTL      time.Duration
	MaxAttempts      int
	CooldownMatched  time.Duration
	CooldownRejected time.Duration
	CooldownNotified time.Duration
}

// Orchestrator is MissionOrchestrator: it turns a stable collision pair
// into a queued interview job, and later turns that interview's result
// into matches, chats and cooldowns.
type Orchestrator struct {
	state    *collisionstate.Store
	durable  *collision.EventStore
	missions *Store
	matches  *matchstore.Store
	circles  core.CircleRepo
	queue    core.MissionProducer
	events   core.EventSink
	cfg      Config
}

// New creates a MissionOrchestrator wired to its collaborators.
func New(state *collisionstate.Store, durable *collision.EventStore, missions *Store, matches *matchstore.Store, circles core.CircleRepo, queue core.MissionProducer, events core.EventSink, cfg Config) *Orchestrator {
	return &Orchestrator{state: state, durable: durable, missions: missions, matches: matches, circles: circles, queue: queue, events: events, cfg: cfg}
}

// CreateMissionForCollision implements SPEC_FULL.md §4.5's seven steps:
// acquire the in-flight lock, re-check cooldown and in-progress missions
// under that lock, resolve the visitor's circle, persist the mission,
// update the durable collision event, enqueue the job, and emit a
// lifecycle event.
func (o *Orchestrator) CreateMissionForCollision(ctx context.Context, pair *collisionstate.PairState) error {
	// ── 1. Acquire in-flight lock ────────────────────────
	acquired, err := o.state.AcquireInFlightLock(ctx, pair.OwnerUserID, pair.VisitorUserID, inFlightTTLOr(o.cfg.InFlightTTL))
	if err != nil {
		return classifyError(err)
	}
	if !acquired {
		return ErrInFlight
	}
	defer func() {
		if err := o.state.ReleaseInFlightLock(ctx, pair.OwnerUserID, pair.VisitorUserID); err != nil {
			log.Printf("[mission] release lock %d:%d failed: %v", pair.OwnerUserID, pair.VisitorUserID, err)
		}
	}()

	// ── 2. Re-check cooldown under the lock ─────────────
	if _, active, err := o.state.Cooldown(ctx, pair.OwnerUserID, pair.VisitorUserID); err != nil {
		return classifyError(err)
	} else if active {
		return ErrUnderCooldown
	}

	// ── 3. Look up the durable collision event ──────────
	ev, found, err := o.durable.ByUserPair(ctx, pair.OwnerUserID, pair.VisitorUserID)
	if err != nil || !found {
		return classifyError(err)
	}
	if already, err := o.missions.ActiveForPair(ctx, pair.OwnerUserID, pair.VisitorUserID, ev.ID); err != nil {
		return classifyError(err)
	} else if already {
		return ErrInFlight
	}

	// ── 4. Resolve the visitor's circle ─────────────────
	// The visitor's circle was never an input to detection (only the
	// owner's was known at that point) — per SPEC_FULL.md §9 Open
	// Questions, the visitor's most recently created effective circle is
	// used as a deterministic, if arbitrary, tie-break.
	visitorCircles, err := o.circles.FindEffectiveByOwner(ctx, pair.VisitorUserID)
	if err != nil {
		return classifyError(err)
	}
	visitorCircle, ok := mostRecentlyCreated(visitorCircles)
	if !ok {
		return ErrNoVisitorCircle
	}

	// ── 5. Persist the mission row ───────────────────────
	m, err := o.missions.Create(ctx, &model.Mission{
		OwnerUserID:      pair.OwnerUserID,
		VisitorUserID:    pair.VisitorUserID,
		OwnerCircleID:    pair.OwnerCircleID,
		VisitorCircleID:  visitorCircle.ID,
		CollisionEventID: ev.ID,
		AttemptNumber:    1,
	})
	if err != nil {
		return classifyError(err)
	}

	// ── 6. Update the durable collision event ───────────
	if err := o.durable.AttachMission(ctx, ev.ID, m.ID); err != nil {
		log.Printf("[mission] attach mission %d to event %d failed (non-fatal): %v", m.ID, ev.ID, err)
	}
	if err := o.state.SetStatus(ctx, pair.OwnerUserID, pair.VisitorUserID, model.CollisionMissionCreated); err != nil {
		log.Printf("[mission] mark pair mission_created failed (non-fatal): %v", err)
	}

	// ── 7. Enqueue the job and emit the lifecycle event ─
	job := core.MissionJob{
		MissionID:   m.ID,
		OwnerUserID: pair.OwnerUserID,
		VisitorUserID: pair.VisitorUserID,
		OwnerProfileSnapshot: core.ProfileSnapshot{
			UserID:   pair.OwnerUserID,
			CircleID: pair.OwnerCircleID,
		},
		VisitorProfileSnapshot: core.ProfileSnapshot{
			UserID:    pair.VisitorUserID,
			CircleID:  visitorCircle.ID,
			Objective: visitorCircle.Objective,
		},
		Context: core.MissionContext{
			ApproximateTimeISO:   time.Now().UTC().Format(time.RFC3339),
			ApproximateDistanceM: pair.DistanceM,
		},
	}
	if err := o.queue.Enqueue(ctx, job); err != nil {
		return classifyError(err)
	}

	o.events.Emit(ctx, core.Event{
		Type:          core.EventMissionStarted,
		UserID:        pair.OwnerUserID,
		RelatedUserID: &pair.VisitorUserID,
		Timestamp:     time.Now(),
	})

	log.Printf("[mission] created mission=%d owner=%d visitor=%d event=%d", m.ID, pair.OwnerUserID, pair.VisitorUserID, ev.ID)
	return nil
}

// MissionStatus reports a mission's current status, used by the runner to
// detect a redelivered job whose mission has already reached a terminal
// state (SPEC_FULL.md §4.6 step 1: "if already terminal, ack and drop").
func (o *Orchestrator) MissionStatus(ctx context.Context, missionID int64) (model.MissionStatus, error) {
	m, err := o.missions.Get(ctx, missionID)
	if err != nil {
		return "", classifyError(err)
	}
	return m.Status, nil
}

// MarkMissionStarted transitions a mission to in_progress before its turn
// loop runs, so a concurrently-redelivered copy of the same job can be told
// apart from a genuinely fresh attempt.
func (o *Orchestrator) MarkMissionStarted(ctx context.Context, missionID int64) error {
	return classifyError(o.missions.MarkStarted(ctx, missionID))
}

// HandleMissionResult implements SPEC_FULL.md §4.5's five result-handling
// steps: load the mission, record its outcome, decide retry vs terminal
// failure, set cooldowns, and — on a judge decision to notify — create or
// activate the pair's directional matches and chat.
func (o *Orchestrator) HandleMissionResult(ctx context.Context, missionID int64, result core.MissionResult) error {
	m, err := o.missions.Get(ctx, missionID)
	if err != nil {
		return classifyError(err)
	}

	if !result.Success {
		return o.handleFailure(ctx, m, result)
	}

	status := model.MissionCompleted
	if err := o.missions.Complete(ctx, m.ID, status, result.Transcript, result.JudgeDecision, ""); err != nil {
		return classifyError(err)
	}

	if !result.MatchMade {
		if err := o.state.SetCooldown(ctx, m.OwnerUserID, m.VisitorUserID, model.CooldownNotified, cooldownOr(o.cfg.CooldownNotified, model.CooldownNotified)); err != nil {
			log.Printf("[mission] set notified cooldown for %d:%d failed (non-fatal): %v", m.OwnerUserID, m.VisitorUserID, err)
		}
		if err := o.durable.SetStatus(ctx, m.CollisionEventID, model.CollisionCooldown); err != nil {
			log.Printf("[mission] set event %d cooldown status failed (non-fatal): %v", m.CollisionEventID, err)
		}
		o.events.Emit(ctx, core.Event{Type: core.EventMissionCompleted, UserID: m.OwnerUserID, RelatedUserID: &m.VisitorUserID, Timestamp: time.Now()})
		return nil
	}

	mutual, err := o.matches.CreateOrUpdateDirectional(ctx, m.OwnerUserID, m.VisitorUserID, m.OwnerCircleID, m.VisitorCircleID, model.MatchKindMatch, softMatchWorthIt, m.CollisionEventID)
	if err != nil {
		return classifyError(err)
	}

	if err := o.state.SetCooldown(ctx, m.OwnerUserID, m.VisitorUserID, model.CooldownMatched, cooldownOr(o.cfg.CooldownMatched, model.CooldownMatched)); err != nil {
		log.Printf("[mission] set matched cooldown for %d:%d failed (non-fatal): %v", m.OwnerUserID, m.VisitorUserID, err)
	}

	finalStatus := model.CollisionMatched
	if err := o.durable.SetStatus(ctx, m.CollisionEventID, finalStatus); err != nil {
		log.Printf("[mission] set event %d matched status failed (non-fatal): %v", m.CollisionEventID, err)
	}

	o.events.Emit(ctx, core.Event{Type: core.EventMatchCreated, UserID: m.OwnerUserID, RelatedUserID: &m.VisitorUserID, Timestamp: time.Now()})
	if mutual {
		o.events.Emit(ctx, core.Event{Type: core.EventMatchActivated, UserID: m.OwnerUserID, RelatedUserID: &m.VisitorUserID, Timestamp: time.Now()})
	}
	o.events.Emit(ctx, core.Event{Type: core.EventMissionCompleted, UserID: m.OwnerUserID, RelatedUserID: &m.VisitorUserID, Timestamp: time.Now()})
	return nil
}

func (o *Orchestrator) handleFailure(ctx context.Context, m *model.Mission, result core.MissionResult) error {
	maxAttempts := o.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	if m.AttemptNumber < maxAttempts {
		attempt, err := o.missions.IncrementAttempt(ctx, m.ID)
		if err != nil {
			return classifyError(err)
		}
		log.Printf("[mission] mission=%d failed (%s), rescheduling as attempt %d", m.ID, result.Err, attempt)
		// Returning a non-nil error here (rather than nil) is what makes the
		// queue consumer Nak the message instead of Ack-ing it, so the same
		// mission job is redelivered and actually re-run as the next
		// attempt. The status was just reset to pending (and attempt_number
		// incremented) above, so the idempotency guard in handleJob lets the
		// redelivered job through.
		return ErrRetryScheduled
	}

	// Attempts exhausted: this is now a terminal outcome. Record it as failed
	// and return nil so the message is Ack-ed — redelivering it again would
	// just replay the same exhausted mission forever.
	if err := o.missions.Complete(ctx, m.ID, model.MissionFailed, result.Transcript, nil, result.Err); err != nil {
		return classifyError(err)
	}
	if err := o.state.SetCooldown(ctx, m.OwnerUserID, m.VisitorUserID, model.CooldownNotified, cooldownOr(o.cfg.CooldownNotified, model.CooldownNotified)); err != nil {
		log.Printf("[mission] set cooldown after exhausted attempts failed (non-fatal): %v", err)
	}
	if err := o.durable.SetStatus(ctx, m.CollisionEventID, model.CollisionExpired); err != nil {
		log.Printf("[mission] set event %d expired status failed (non-fatal): %v", m.CollisionEventID, err)
	}
	o.events.Emit(ctx, core.Event{Type: core.EventMissionFailed, UserID: m.OwnerUserID, RelatedUserID: &m.VisitorUserID, Timestamp: time.Now()})
	log.Printf("[mission] mission=%d failed terminally after %d attempts", m.ID, m.AttemptNumber)
	return nil
}

// mostRecentlyCreated picks the visitor's newest effective circle — see
// the Open Question discussion in CreateMissionForCollision.
func mostRecentlyCreated(circles []core.CircleRecord) (core.CircleRecord, bool) {
	if len(circles) == 0 {
		return core.CircleRecord{}, false
	}
	best := circles[0]
	for _, c := range circles[1:] {
		if c.CreatedAt > best.CreatedAt {
			best = c
		}
	}
	return best, true
}

func inFlightTTLOr(d time.Duration) time.Duration {
	if d <= 0 {
		return 60 * time.Second
	}
	return d
}

func cooldownOr(d time.Duration, kind model.CooldownKind) time.Duration {
	if d > 0 {
		return d
	}
	switch kind {
	case model.CooldownMatched:
		return 14 * 24 * time.Hour
	case model.CooldownRejected:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}
