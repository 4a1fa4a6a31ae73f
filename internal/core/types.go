// Package core holds the shared contracts the matchmaking pipeline's
// components are wired together through: the collaborator interfaces named
// in the design as "injected" (TextGenerator, Judge, EventSink, the mission
// queue, and the external CRUD boundary), plus the small DTOs that cross
// package boundaries. Concrete implementations live in their own packages
// (pkg/queue, pkg/events, internal/mission, ...); this package exists so
// those implementations and their consumers don't need to import each other.
package core

import "time"

// TurnGoal names one step of an interview turn loop. Prompt assembly is a
// pure function of (profiles, circle, context, transcript, goal), so the
// goal sequence is the only "state machine" the interview has.
type TurnGoal string

const (
	GoalOpenAndAskOneFocusedQuestion TurnGoal = "open_and_ask_one_focused_question"
	GoalClarifyObjective             TurnGoal = "clarify_objective"
	GoalClarifyAvailability          TurnGoal = "clarify_availability"
	GoalDecideAndClose               TurnGoal = "decide_and_close"
	GoalNotifyUser                   TurnGoal = "notify_user"
)

// ProfileSnapshot is the frozen view of a user handed to the interview at
// mission-creation time, so the turn loop never has to re-fetch state that
// could change mid-interview.
type ProfileSnapshot struct {
	UserID    int64
	CircleID  int64
	Objective string
}

// MissionContext carries the approximate, privacy-preserving facts about
// the collision that triggered the mission — never the exact coordinates.
type MissionContext struct {
	ApproximateTimeISO   string
	ApproximateDistanceM float64
}

// MissionJob is the payload carried on the durable mission queue.
type MissionJob struct {
	MissionID              int64
	OwnerUserID            int64
	VisitorUserID          int64
	OwnerProfileSnapshot   ProfileSnapshot
	VisitorProfileSnapshot ProfileSnapshot
	Context                MissionContext
}

// MissionResult is what InterviewRunner reports back to MissionOrchestrator.
type MissionResult struct {
	Success       bool
	MatchMade     bool
	Transcript    []Turn
	JudgeDecision *bool
	Err           string
}

// Turn is one exchange in an interview transcript.
type Turn struct {
	Speaker string
	Goal    TurnGoal
	Text    string
	At      time.Time
}

// Event is a fire-and-forget lifecycle notification for external observers.
type Event struct {
	Type          string
	UserID        int64
	RelatedUserID *int64
	CircleID      *int64
	Metadata      map[string]any
	Timestamp     time.Time
}

// Event type names used by the core (full semantics in SPEC_FULL.md §4).
const (
	EventConversationStarted          = "conversation.started"
	EventConversationThinkingStarted  = "conversation.thinking_started"
	EventConversationTurnCompleted    = "conversation.turn_completed"
	EventConversationThinkingComplete = "conversation.thinking_completed"
	EventConversationJudgeDecision    = "conversation.judge_decision"
	EventConversationCompleted        = "conversation.completed"
	EventCollisionDetected            = "collision.detected"
	EventMissionStarted               = "mission.started"
	EventMissionCompleted              = "mission.completed"
	EventMissionFailed                = "mission.failed"
	EventMatchCreated                 = "match.created"
	EventMatchActivated               = "match.activated"
)
