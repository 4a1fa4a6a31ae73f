package interview

import (
	"strings"
	"testing"

	"github.com/shiva/orbit/internal/core"
)

func TestBuildPrompt_FirstTurnHasNoTranscript(t *testing.T) {
	owner := core.ProfileSnapshot{UserID: 1, CircleID: 10, Objective: "find a tennis partner"}
	visitor := core.ProfileSnapshot{UserID: 2, CircleID: 20, Objective: "looking to play doubles"}
	missionCtx := core.MissionContext{ApproximateTimeISO: "2026-07-30T10:00:00Z", ApproximateDistanceM: 42}

	prompt := BuildPrompt(owner, visitor, missionCtx, nil, "owner", core.GoalOpenAndAskOneFocusedQuestion)

	if !strings.Contains(prompt, "no prior transcript") {
		t.Errorf("expected first-turn prompt to mention no prior transcript, got: %s", prompt)
	}
	if !strings.Contains(prompt, "find a tennis partner") {
		t.Errorf("expected prompt to include owner objective")
	}
}

func TestBuildPrompt_IncludesPriorTurns(t *testing.T) {
	owner := core.ProfileSnapshot{Objective: "find a tennis partner"}
	visitor := core.ProfileSnapshot{Objective: "looking to play doubles"}
	transcript := []core.Turn{
		{Speaker: "owner", Goal: core.GoalOpenAndAskOneFocusedQuestion, Text: "Hi, are you around this afternoon?"},
	}

	prompt := BuildPrompt(owner, visitor, core.MissionContext{}, transcript, "visitor", core.GoalClarifyObjective)

	if !strings.Contains(prompt, "Hi, are you around this afternoon?") {
		t.Errorf("expected prompt to quote the prior turn, got: %s", prompt)
	}
}

func TestGoalInstruction_NotifyUser(t *testing.T) {
	got := goalInstruction(core.GoalNotifyUser)
	if !strings.Contains(got, "push-notification") {
		t.Errorf("expected notify_user instruction to mention push notifications, got: %q", got)
	}
}
