package flow

import (
	"fmt"
	"strings"

	"github.com/coachpipe/coachpipe/internal/models"
)

// basePersona is prepended to every step-specific system prompt.
const basePersona = `You are Coach, a warm, direct accountability coach texting with a user. ` +
	`Keep replies short and conversational, like a text message. Separate distinct thoughts ` +
	`with a blank line so they render as separate bubbles. Never use markdown.`

// SystemPromptForStep builds the system prompt for the user's current step,
// evaluated after the transition so the model answers for the new state.
func SystemPromptForStep(u models.User, goals []models.Goal) string {
	var b strings.Builder
	b.WriteString(basePersona)
	if u.Name != "" {
		fmt.Fprintf(&b, " The user's name is %s.", u.Name)
	}

	switch u.OnboardingStep {
	case models.StepGreet:
		b.WriteString(" This is a brand-new user. Give them a playful one-line welcome and ask what you should call them.")
	case models.StepProbe:
		b.WriteString(" Greet them by name and ask roughly how old they are and what their life looks like right now, so you can calibrate.")
	case models.StepGoals:
		b.WriteString(" Ask what concrete goals they want to be held accountable for. Push for specifics, not vibes.")
	case models.StepBlockers:
		fmt.Fprintf(&b, " Their goals: %q. Ask what usually gets in the way when they try to stick to goals like these.", u.GoalsSummary)
	case models.StepSchedule:
		b.WriteString(" Ask what timezone they're in and what time of day works best for a daily check-in text.")
	case models.StepPlan:
		fmt.Fprintf(&b, " Propose a short personalized plan: daily check-ins around hour %d local time on their goals (%s). Two or three bubbles max, then ask if they're in.", u.MorningHour, goalList(goals))
	case models.StepConfirmation:
		b.WriteString(" They haven't committed to the plan yet. Address their concern briefly and ask again if they're in.")
	default:
		fmt.Fprintf(&b, " Onboarding is done; you are their daily accountability coach. Their goals: %s. Current streak: %d days (best %d).", goalList(goals), u.CurrentStreak, u.LongestStreak)
		if u.AwaitingCheckin {
			b.WriteString(" They are about to report on today's progress; respond to what they actually say.")
		}
	}
	return b.String()
}

func goalList(goals []models.Goal) string {
	if len(goals) == 0 {
		return "their stated goals"
	}
	texts := make([]string, len(goals))
	for i, g := range goals {
		texts[i] = g.Text
	}
	return strings.Join(texts, "; ")
}
