package flow

import (
	"fmt"
	"strings"

	"github.com/coachpipe/coachpipe/internal/models"
)

// FallbackReply produces a deterministic reply keyed off the onboarding step and
// simple keyword matches, used whenever the language model fails or returns
// empty content. The engine must never return empty output.
func FallbackReply(u models.User, inbound string) string {
	switch u.OnboardingStep {
	case models.StepGreet:
		return "Hey! I'm Coach — I keep people honest about their goals.\n\nWhat should I call you?"
	case models.StepProbe:
		name := u.Name
		if name == "" {
			name = "there"
		}
		return fmt.Sprintf("Nice to meet you, %s.\n\nQuick one: roughly how old are you, and what does your day-to-day look like?", name)
	case models.StepGoals:
		return "Got it.\n\nNow the real question: what goals do you want me to hold you to? Be specific — \"gym 3x a week\" beats \"get fit\"."
	case models.StepBlockers:
		return "Solid goals.\n\nWhat usually gets in the way when you try to stick to stuff like this?"
	case models.StepSchedule:
		return "Makes sense.\n\nWhat timezone are you in, and when's the best time of day for me to check in — morning, midday, or evening?"
	case models.StepPlan:
		return "Here's the deal: I'll text you every day to check on your goals, and you tell me straight how it went.\n\nSound good?"
	case models.StepConfirmation:
		return "No pressure — but the whole point is showing up daily.\n\nYou in?"
	}

	// Accountability mode: key off the reply itself.
	normalized := strings.ToLower(inbound)
	switch {
	case u.AwaitingCheckin:
		return "Alright — how did it go today? Straight answer."
	case IsPositiveCompletion(normalized):
		if u.CurrentStreak > 1 {
			return fmt.Sprintf("That's what I like to hear. %d days straight — keep it rolling.", u.CurrentStreak)
		}
		return "That's what I like to hear. Keep it rolling."
	case strings.Contains(normalized, "tired") || strings.Contains(normalized, "hard") || strings.Contains(normalized, "struggl"):
		return "Rough days happen.\n\nSmallest possible version of the goal today — what would that look like?"
	default:
		return "I hear you.\n\nWhat's the one thing you're doing today to move the needle?"
	}
}
