// Package stability implements StabilityWorker: the ticker that promotes
// collision pairs which have held steady for STABILITY_WINDOW into mission
// creation, and ages out pairs that have gone stale.
package stability

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shiva/orbit/internal/collision"
	"github.com/shiva/orbit/internal/collisionstate"
	"github.com/shiva/orbit/internal/model"
)

// Orchestrator is the subset of MissionOrchestrator the worker depends on —
// kept narrow so tests can substitute a fake.
type Orchestrator interface {
	CreateMissionForCollision(ctx context.Context, pair *collisionstate.PairState) error
}

// Config tunes the worker's tick cadence and promotion/aging thresholds.
type Config struct {
	Tick            time.Duration
	StabilityWindow time.Duration
	StaleWindow     time.Duration
}

// Worker is StabilityWorker.
type Worker struct {
	state   *collisionstate.Store
	durable *collision.EventStore
	orch    Orchestrator
	cfg     Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a StabilityWorker wired to its collaborators.
func New(state *collisionstate.Store, durable *collision.EventStore, orch Orchestrator, cfg Config) *Worker {
	return &Worker{state: state, durable: durable, orch: orch, cfg: cfg}
}

// Start launches the worker's background tick loop. Call Stop to shut it
// down cleanly.
func (w *Worker) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run()
}

// Stop signals the tick loop to exit and waits for it to finish, or for ctx
// to expire first.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()

	c := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(c)
	}()

	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) run() {
	defer w.wg.Done()

	tick := tickOr(w.cfg.Tick)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.sweepStabilityQueue()
			w.sweepStaleEvents()
		}
	}
}

// sweepStabilityQueue drains the Redis stability queue in first-seen order
// (SPEC_FULL.md §4.4): entries that vanished are dropped, entries that have
// reached STABILITY_WINDOW and are not already resolved are handed to the
// orchestrator, everything else is left for the next tick.
func (w *Worker) sweepStabilityQueue() {
	entries, err := w.state.StabilityQueueEntries(w.ctx)
	if err != nil {
		log.Printf("[stability] queue read failed: %v", err)
		return
	}

	now := time.Now()
	window := windowOr(w.cfg.StabilityWindow)

	for _, entry := range entries {
		if now.Sub(entry.FirstSeenAt) < window {
			// Queue is ordered by first_seen_at ascending — nothing after
			// this entry is ready either.
			break
		}

		pair, found, err := w.state.GetPairByKey(w.ctx, entry.Key)
		if err != nil {
			log.Printf("[stability] fetch pair %s failed: %v", entry.Key, err)
			continue
		}
		if !found {
			// Evicted by TTL before it could be promoted.
			if err := w.state.StabilityQueueRemove(w.ctx, entry.Key); err != nil {
				log.Printf("[stability] drop vanished entry %s failed: %v", entry.Key, err)
			}
			continue
		}

		switch pair.Status {
		case model.CollisionMissionCreated, model.CollisionMatched, model.CollisionCooldown, model.CollisionExpired:
			// Already past the point where stability promotion applies.
			if err := w.state.StabilityQueueRemove(w.ctx, entry.Key); err != nil {
				log.Printf("[stability] drop resolved entry %s failed: %v", entry.Key, err)
			}
			continue
		}

		if err := w.state.SetStatus(w.ctx, pair.OwnerUserID, pair.VisitorUserID, model.CollisionStable); err != nil {
			log.Printf("[stability] mark pair %d:%d stable failed: %v", pair.OwnerUserID, pair.VisitorUserID, err)
		}

		if err := w.orch.CreateMissionForCollision(w.ctx, pair); err != nil {
			log.Printf("[stability] mission creation for pair %d:%d failed: %v", pair.OwnerUserID, pair.VisitorUserID, err)
			// Leave the entry queued; the next tick retries. A persistent
			// failure is bounded by STALE_WINDOW aging below.
			continue
		}

		if err := w.state.StabilityQueueRemove(w.ctx, entry.Key); err != nil {
			log.Printf("[stability] dequeue promoted pair %d:%d failed: %v", pair.OwnerUserID, pair.VisitorUserID, err)
		}
	}
}

// sweepStaleEvents expires durable collision_events rows first seen more than
// STALE_WINDOW ago and still detecting or stable — independent of the Redis queue,
// so a lost or corrupted ephemeral pair still resolves durably.
func (w *Worker) sweepStaleEvents() {
	cutoff := time.Now().Add(-staleWindowOr(w.cfg.StaleWindow))
	n, err := w.durable.ExpireStale(w.ctx, cutoff)
	if err != nil {
		log.Printf("[stability] stale event sweep failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[stability] expired %d stale collision events", n)
	}
}

func tickOr(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Second
	}
	return d
}

func windowOr(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}

func staleWindowOr(d time.Duration) time.Duration {
	if d <= 0 {
		return 45 * time.Second
	}
	return d
}
