package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/shiva/orbit/config"
	"github.com/shiva/orbit/internal/collision"
	"github.com/shiva/orbit/internal/collisionstate"
	"github.com/shiva/orbit/internal/crud"
	"github.com/shiva/orbit/internal/geoindex"
	"github.com/shiva/orbit/internal/handler"
	"github.com/shiva/orbit/internal/interview"
	"github.com/shiva/orbit/internal/janitor"
	"github.com/shiva/orbit/internal/llmclient"
	"github.com/shiva/orbit/internal/matchstore"
	"github.com/shiva/orbit/internal/middleware"
	"github.com/shiva/orbit/internal/mission"
	"github.com/shiva/orbit/internal/position"
	"github.com/shiva/orbit/internal/stability"
	"github.com/shiva/orbit/pkg/cache"
	"github.com/shiva/orbit/pkg/db"
	"github.com/shiva/orbit/pkg/events"
	"github.com/shiva/orbit/pkg/queue"
)

func main() {
	// ── Load configuration ──────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// ── Connect to PostgreSQL ───────────────────────────
	pgPool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	defer pgPool.Close()
	log.Println("✓ PostgreSQL connected")

	// ── Connect to Redis ────────────────────────────────
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("✓ Redis connected")

	// ── Connect to NATS ─────────────────────────────────
	nc, err := initNATS(cfg.NATS)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}
	defer nc.Close()
	log.Println("✓ NATS connected")

	missionQueue, err := queue.New(nc, queue.Config{
		Subject: cfg.NATS.MissionSubject,
		Stream:  cfg.NATS.MissionStream,
		Durable: cfg.NATS.MissionDurable,
	})
	if err != nil {
		log.Fatalf("failed to initialize mission queue: %v", err)
	}
	eventSink := events.NewSink(nc, cfg.NATS.EventsSubjectFmt)

	// ── Initialize storage layers ────────────────────────
	positions := position.New(pgPool)
	index := geoindex.New(pgPool, cfg.Collision.SpatialSearchLimit)
	state := collisionstate.New(redisClient)
	durableEvents := collision.NewEventStore(pgPool)
	missionStore := mission.NewStore(pgPool)
	matchStore := matchstore.NewStore(pgPool)
	circles := crud.NewCircles(pgPool)

	// ── Wire the pipeline ─────────────────────────────────
	detector := collision.New(positions, index, state, durableEvents, eventSink, collision.Config{
		MinMovementMeters: cfg.Collision.MinMovementMeters,
		MinUpdateInterval: cfg.Collision.MinUpdateInterval,
		ClockDriftMax:     cfg.Collision.ClockDriftMax,
	})
	positionHandler := handler.NewPositionHandler(detector)

	orchestrator := mission.New(state, durableEvents, missionStore, matchStore, circles, missionQueue, eventSink, mission.Config{
		InFlightTTL:      cfg.Mission.InFlightTTL,
		MaxAttempts:      cfg.Mission.MaxAttempts,
		CooldownMatched:  cfg.Mission.CooldownMatched,
		CooldownRejected: cfg.Mission.CooldownRejected,
		CooldownNotified: cfg.Mission.CooldownNotified,
	})

	stabilityWorker := stability.New(state, durableEvents, orchestrator, stability.Config{
		Tick:            cfg.Collision.StabilityTick,
		StabilityWindow: cfg.Collision.StabilityWindow,
		StaleWindow:     cfg.Collision.StaleWindow,
	})
	stabilityWorker.Start(ctx)

	janitorWorker := janitor.New(pgPool, durableEvents, janitor.Config{
		Tick:              cfg.Janitor.Tick,
		CollisionEventTTL: cfg.Janitor.CollisionEventTTL,
		PendingMatchTTL:   cfg.Janitor.PendingMatchTTL,
	})
	janitorWorker.Start(ctx)

	llm := llmclient.New(llmclient.Config{BaseURL: cfg.LLM.BaseURL, APIKey: cfg.LLM.APIKey, Timeout: cfg.LLM.Timeout})
	runner := interview.New(missionQueue, llm, llm, eventSink, orchestrator, interview.Config{
		Concurrency:    cfg.Interview.Concurrency,
		MaxOwnerTurns:  cfg.Interview.MaxOwnerTurns,
		MissionTimeout: cfg.Interview.MissionTimeout,
	})
	runner.Start(ctx)

	// ── Setup router (health check + position ingest) ────
	router := mux.NewRouter()
	router.HandleFunc("/healthz", healthHandler(pgPool, redisClient)).Methods(http.MethodGet)
	router.HandleFunc("/v1/users/{user_id}/position", positionHandler.Ingest).Methods(http.MethodPost)
	wrapped := middleware.Recoverer(middleware.RequestLogger(router))

	srv := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      wrapped,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("🚀 core listening on %s", cfg.Server.ServerAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("⏳ shutting down...")

	rootCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}
	if err := stabilityWorker.Stop(shutdownCtx); err != nil {
		log.Printf("stability worker shutdown: %v", err)
	}
	if err := janitorWorker.Stop(shutdownCtx); err != nil {
		log.Printf("janitor shutdown: %v", err)
	}
	runner.Wait()

	log.Println("✅ core gracefully stopped")
}

// initNATS connects to NATS with reconnect handling, mirroring the
// connection-lifecycle logging the trend-detection stack uses.
func initNATS(cfg config.NATSConfig) (*nats.Conn, error) {
	options := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Printf("NATS connection closed")
		}),
	}
	return nats.Connect(cfg.URL, options...)
}

// HealthResponse is the /healthz payload.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// healthHandler checks PG and Redis connectivity the way the ride-pooling
// teacher's /health endpoint does.
func healthHandler(pgPool *pgxpool.Pool, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Services: make(map[string]string),
		}

		if err := db.HealthCheck(r.Context(), pgPool); err != nil {
			resp.Status = "degraded"
			resp.Services["postgres"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["postgres"] = "healthy"
		}

		if err := cache.HealthCheck(r.Context(), redisClient); err != nil {
			resp.Status = "degraded"
			resp.Services["redis"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["redis"] = "healthy"
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	}
}
