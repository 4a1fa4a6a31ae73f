// Package janitor runs the periodic sweep that expires durable records no
// background worker otherwise resolves in time: stale collision events and
// matches stuck waiting for acceptance.
package janitor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/orbit/internal/collision"
)

// Config tunes the janitor's tick cadence and TTLs.
type Config struct {
	Tick              time.Duration
	CollisionEventTTL time.Duration
	PendingMatchTTL   time.Duration
}

// Janitor is the background sweeper of SPEC_FULL.md §4.8.
type Janitor struct {
	pool    *pgxpool.Pool
	durable *collision.EventStore
	cfg     Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Janitor wired to its collaborators.
func New(pool *pgxpool.Pool, durable *collision.EventStore, cfg Config) *Janitor {
	return &Janitor{pool: pool, durable: durable, cfg: cfg}
}

// Start launches the janitor's background tick loop.
func (j *Janitor) Start(ctx context.Context) {
	j.ctx, j.cancel = context.WithCancel(ctx)
	j.wg.Add(1)
	go j.run()
}

// Stop signals the tick loop to exit and waits for it to finish, or for ctx
// to expire first.
func (j *Janitor) Stop(ctx context.Context) error {
	j.cancel()

	c := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(c)
	}()

	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Janitor) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(tickOr(j.cfg.Tick))
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *Janitor) sweep() {
	collisionCutoff := time.Now().Add(-ttlOr(j.cfg.CollisionEventTTL, 48*time.Hour))
	n, err := j.durable.ExpireStale(j.ctx, collisionCutoff)
	if err != nil {
		log.Printf("[janitor] collision event sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("[janitor] expired %d stale collision events", n)
	}

	matchCutoff := time.Now().Add(-ttlOr(j.cfg.PendingMatchTTL, 24*time.Hour))
	tag, err := j.pool.Exec(j.ctx, `
		UPDATE matches
		SET status = 'expired', updated_at = now()
		WHERE status = 'pending_accept' AND created_at < $1
	`, matchCutoff)
	if err != nil {
		log.Printf("[janitor] pending match sweep failed: %v", err)
		return
	}
	if tag.RowsAffected() > 0 {
		log.Printf("[janitor] expired %d stale pending matches", tag.RowsAffected())
	}
}

func tickOr(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Minute
	}
	return d
}

func ttlOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
