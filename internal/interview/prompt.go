// Package interview executes the turn loop that asks an external
// TextGenerator to carry a conversation on behalf of a collision pair, and
// hands the finished transcript to a Judge for a notify/don't-notify call.
package interview

import (
	"fmt"
	"strings"

	"github.com/shiva/orbit/internal/core"
)

// BuildPrompt assembles the prompt for one turn. It is a pure function of
// (profiles, circle objective, context, transcript-so-far, goal) per
// SPEC_FULL.md §9 Design Notes — no state beyond its arguments, so it needs
// no collaborator and is trivially testable.
func BuildPrompt(owner, visitor core.ProfileSnapshot, missionCtx core.MissionContext, transcript []core.Turn, speaker string, goal core.TurnGoal) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are speaking as the %s in a short scouting conversation.\n", speaker)
	fmt.Fprintf(&b, "Owner objective: %s\n", owner.Objective)
	if visitor.Objective != "" {
		fmt.Fprintf(&b, "Visitor objective: %s\n", visitor.Objective)
	}
	fmt.Fprintf(&b, "Approximate proximity: %.0fm, around %s\n", missionCtx.ApproximateDistanceM, missionCtx.ApproximateTimeISO)
	fmt.Fprintf(&b, "Turn goal: %s\n", goalInstruction(goal))

	if len(transcript) == 0 {
		b.WriteString("This is the first turn; there is no prior transcript.\n")
	} else {
		b.WriteString("Transcript so far:\n")
		for _, t := range transcript {
			fmt.Fprintf(&b, "  %s: %s\n", t.Speaker, t.Text)
		}
	}

	b.WriteString("Respond with a single short message appropriate to the turn goal.\n")
	return b.String()
}

// goalInstruction renders a TurnGoal as the human-readable instruction the
// generator is steered with.
func goalInstruction(goal core.TurnGoal) string {
	switch goal {
	case core.GoalOpenAndAskOneFocusedQuestion:
		return "Open the conversation and ask exactly one focused question."
	case core.GoalClarifyObjective:
		return "Clarify what the other party is actually looking for."
	case core.GoalClarifyAvailability:
		return "Clarify timing and availability."
	case core.GoalDecideAndClose:
		return "Decide whether this is worth connecting the two users over, and close the conversation."
	case core.GoalNotifyUser:
		return "Write the push-notification text that will be shown to the user, summarizing the outcome."
	default:
		return string(goal)
	}
}
