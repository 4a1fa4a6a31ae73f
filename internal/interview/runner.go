package interview

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/shiva/orbit/internal/core"
	"github.com/shiva/orbit/internal/model"
)

// ResultHandler is the subset of MissionOrchestrator the runner reports
// back to — kept narrow so tests can substitute a fake.
type ResultHandler interface {
	// MissionStatus reports a mission's current durable status, used to
	// detect a redelivered job whose mission already reached a terminal
	// state.
	MissionStatus(ctx context.Context, missionID int64) (model.MissionStatus, error)
	// MarkMissionStarted transitions a mission to in_progress before its
	// turn loop runs.
	MarkMissionStarted(ctx context.Context, missionID int64) error
	HandleMissionResult(ctx context.Context, missionID int64, result core.MissionResult) error
}

// Config tunes the runner's concurrency and per-job bounds.
type Config struct {
	Concurrency    int
	MaxOwnerTurns  int
	MissionTimeout time.Duration
}

// Runner is InterviewRunner: a pool of workers consuming the mission queue,
// each executing one job's turn loop end to end.
type Runner struct {
	consumer core.MissionConsumer
	gen      core.TextGenerator
	judge    core.Judge
	events   core.EventSink
	handler  ResultHandler
	cfg      Config

	wg sync.WaitGroup
}

// New creates an InterviewRunner wired to its collaborators.
func New(consumer core.MissionConsumer, gen core.TextGenerator, judge core.Judge, events core.EventSink, handler ResultHandler, cfg Config) *Runner {
	return &Runner{consumer: consumer, gen: gen, judge: judge, events: events, handler: handler, cfg: cfg}
}

// Start launches the worker pool consuming the mission queue. Each of
// Concurrency workers runs its own Consume loop — one per platform
// goroutine in essg's trend detector, one per worker slot here.
func (r *Runner) Start(ctx context.Context) {
	n := concurrencyOr(r.cfg.Concurrency)
	for i := 0; i < n; i++ {
		r.wg.Add(1)
		go func(worker int) {
			defer r.wg.Done()
			if err := r.consumer.Consume(ctx, r.handleJob); err != nil && ctx.Err() == nil {
				log.Printf("[interview] worker %d consume loop exited: %v", worker, err)
			}
		}(i)
	}
}

// Wait blocks until every worker's Consume loop has returned — callers
// typically pair this with a context cancellation during shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// handleJob executes one mission's turn loop and reports the result.
//
// SPEC_FULL.md §4.6 step 1: mark the mission in_progress before running it,
// and if it's already terminal — a redelivery of a job whose mission
// already completed or failed — ack and drop instead of re-running the
// interview.
func (r *Runner) handleJob(ctx context.Context, job core.MissionJob) error {
	status, err := r.handler.MissionStatus(ctx, job.MissionID)
	if err != nil {
		return err
	}
	if status == model.MissionCompleted || status == model.MissionFailed {
		log.Printf("[interview] mission %d already %s, dropping redelivered job", job.MissionID, status)
		return nil
	}
	if err := r.handler.MarkMissionStarted(ctx, job.MissionID); err != nil {
		return err
	}

	timeout := missionTimeoutOr(r.cfg.MissionTimeout)
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.events.Emit(jobCtx, core.Event{Type: core.EventConversationStarted, UserID: job.OwnerUserID, RelatedUserID: &job.VisitorUserID, Timestamp: time.Now()})

	transcript, err := r.runTurnLoop(jobCtx, job)

	result := core.MissionResult{Transcript: transcript}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result.Success = false
		result.Err = "timeout"
	case err != nil:
		result.Success = false
		result.Err = err.Error()
	default:
		shouldNotify, jerr := r.judge.Evaluate(jobCtx, job.OwnerProfileSnapshot.Objective, transcript)
		if jerr != nil {
			// Output parse failures are treated as should_notify=false,
			// never as a mission failure.
			shouldNotify = false
		}
		r.events.Emit(jobCtx, core.Event{Type: core.EventConversationJudgeDecision, UserID: job.OwnerUserID, RelatedUserID: &job.VisitorUserID, Timestamp: time.Now()})
		result.Success = true
		result.MatchMade = shouldNotify
		result.JudgeDecision = &shouldNotify
	}

	r.events.Emit(ctx, core.Event{Type: core.EventConversationCompleted, UserID: job.OwnerUserID, RelatedUserID: &job.VisitorUserID, Timestamp: time.Now()})

	return r.handler.HandleMissionResult(ctx, job.MissionID, result)
}

// runTurnLoop alternates owner/visitor turns through the fixed goal
// sequence, bounded by MaxOwnerTurns, then appends the closing notify_user
// turn. If the generator suggests stopping, the remaining goals are skipped
// and the notify_user turn still follows. If the context is cancelled, the
// loop stops without a notify_user turn and the partial transcript is returned
// alongside the context error so the caller marks the mission failed
// rather than completed (SPEC_FULL.md §4.6).
func (r *Runner) runTurnLoop(ctx context.Context, job core.MissionJob) ([]core.Turn, error) {
	goals := []core.TurnGoal{
		core.GoalOpenAndAskOneFocusedQuestion,
		core.GoalClarifyObjective,
		core.GoalClarifyAvailability,
		core.GoalDecideAndClose,
	}
	maxOwnerTurns := maxOwnerTurnsOr(r.cfg.MaxOwnerTurns)

	var transcript []core.Turn
	ownerTurns := 0

	for i, goal := range goals {
		if err := ctx.Err(); err != nil {
			return transcript, err
		}

		speaker := "visitor"
		if i%2 == 0 {
			speaker = "owner"
		}
		if speaker == "owner" {
			ownerTurns++
			if ownerTurns > maxOwnerTurns {
				break
			}
		}

		turn, stopSuggested, err := r.runTurn(ctx, job, transcript, speaker, goal)
		if err != nil {
			return transcript, err
		}
		transcript = append(transcript, turn)

		r.events.Emit(ctx, core.Event{Type: core.EventConversationTurnCompleted, UserID: job.OwnerUserID, RelatedUserID: &job.VisitorUserID, Timestamp: time.Now()})

		if stopSuggested {
			break
		}
	}

	closing, _, err := r.runTurn(ctx, job, transcript, "owner", core.GoalNotifyUser)
	if err != nil {
		return transcript, err
	}
	transcript = append(transcript, closing)
	return transcript, nil
}

// runTurn drives a single TextGenerator call, retrying transient failures
// up to twice within the turn (SPEC_FULL.md §6).
func (r *Runner) runTurn(ctx context.Context, job core.MissionJob, transcript []core.Turn, speaker string, goal core.TurnGoal) (core.Turn, bool, error) {
	prompt := BuildPrompt(job.OwnerProfileSnapshot, job.VisitorProfileSnapshot, job.Context, transcript, speaker, goal)

	r.events.Emit(ctx, core.Event{Type: core.EventConversationThinkingStarted, UserID: job.OwnerUserID, RelatedUserID: &job.VisitorUserID, Timestamp: time.Now()})

	var text string
	var stopSuggested bool
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		text, stopSuggested, err = r.gen.Generate(ctx, prompt, 256, 0.7, 0.9)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		return core.Turn{}, false, err
	}

	r.events.Emit(ctx, core.Event{Type: core.EventConversationThinkingComplete, UserID: job.OwnerUserID, RelatedUserID: &job.VisitorUserID, Timestamp: time.Now()})

	return core.Turn{Speaker: speaker, Goal: goal, Text: text, At: time.Now()}, stopSuggested, nil
}

func concurrencyOr(n int) int {
	if n <= 0 {
		return 4
	}
	return n
}

func maxOwnerTurnsOr(n int) int {
	if n <= 0 {
		return 3
	}
	return n
}

func missionTimeoutOr(d time.Duration) time.Duration {
	if d <= 0 {
		return 90 * time.Second
	}
	return d
}
