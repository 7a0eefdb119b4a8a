package flow

import (
	"time"

	"github.com/coachpipe/coachpipe/internal/models"
	"github.com/coachpipe/coachpipe/internal/util"
)

// Transition is the result of feeding one inbound message through the state
// machine. User is a full updated copy; the caller persists it as-is. Goals is
// the replacement goal set when ReplaceGoals is true, or the streak-updated
// active set when CheckinRecorded is true.
type Transition struct {
	User            models.User
	Goals           []models.Goal
	ReplaceGoals    bool
	CheckinRecorded bool
	Completed       bool // onboarding finished on this turn
	Advanced        bool // step moved forward on this turn
}

// AdvanceOnboarding applies one inbound message to the onboarding state machine.
// It never rejects input: every message maps to an advance or a stay-put outcome.
// hasHistory distinguishes a brand-new user's very first message (which only
// earns the welcome) from the reply to the welcome (which carries the name).
// activeGoals is the user's current goal set, needed for check-in streaks.
func AdvanceOnboarding(u models.User, inbound string, hasHistory bool, activeGoals []models.Goal, now time.Time) Transition {
	t := Transition{User: u}

	// Any engagement acknowledges an outstanding proactive nudge.
	if t.User.AwaitingProactive {
		t.User.AwaitingProactive = false
	}
	t.User.LastUserMessageAt = now

	switch {
	case u.OnboardingStep == models.StepGreet:
		if !hasHistory {
			// First contact ever: welcome only, no advance.
			return t
		}
		t.User.Name = util.SanitizeText(inbound, models.MaxNameLength)
		t.User.OnboardingStep = models.StepProbe
		t.Advanced = true

	case u.OnboardingStep == models.StepProbe:
		t.User.OnboardingStep = models.StepGoals
		t.Advanced = true

	case u.OnboardingStep == models.StepGoals:
		if !LooksLikeGoals(inbound) {
			return t // stay put, re-ask
		}
		summary := util.SanitizeText(inbound, models.MaxGoalsSummaryLength)
		t.User.GoalsSummary = summary
		t.Goals = GoalsFromTexts(u.ID, ParseGoals(summary))
		t.ReplaceGoals = true
		t.User.OnboardingStep = models.StepBlockers
		t.Advanced = true

	case u.OnboardingStep == models.StepBlockers:
		t.User.OnboardingStep = models.StepSchedule
		t.Advanced = true

	case u.OnboardingStep == models.StepSchedule:
		if !LooksLikeSchedule(inbound) {
			return t // stay put, re-ask
		}
		t.User.Timezone = InferTimezone(inbound)
		t.User.MorningHour = InferCheckinHour(inbound)
		t.User.OnboardingStep = models.StepPlan
		t.Advanced = true

	case u.OnboardingStep == models.StepPlan:
		t.User.OnboardingStep = models.StepConfirmation
		t.Advanced = true

	case u.OnboardingStep == models.StepConfirmation:
		if !IsConfirmation(inbound) {
			return t // stay put, address concerns
		}
		t.User.OnboardingStep = models.StepComplete
		t.Advanced = true
		t.Completed = true

	default: // StepComplete and beyond: accountability mode, step never moves.
		if u.AwaitingCheckin {
			t.User.AwaitingCheckin = false
			if IsPositiveCompletion(inbound) {
				today := now.In(UserLocation(u))
				t.User, t.Goals = ApplyCheckin(t.User, activeGoals, today)
				t.CheckinRecorded = true
			}
		} else if IsCheckinTrigger(inbound) {
			t.User.AwaitingCheckin = true
		}
	}

	return t
}

// ResetOnboarding returns the user to the start of the intake conversation,
// clearing everything a fresh pass recaptures. This is the only permitted step
// decrease.
func ResetOnboarding(u models.User) models.User {
	u.Name = ""
	u.GoalsSummary = ""
	u.OnboardingStep = models.StepGreet
	u.AwaitingCheckin = false
	u.AwaitingProactive = false
	u.CurrentStreak = 0
	u.LastCheckinDate = ""
	u.Timezone = ""
	u.CheckinFrequency = models.FrequencyOnce
	u.MorningHour = models.DefaultMorningHour
	u.MiddayHour = models.DefaultMiddayHour
	u.EveningHour = models.DefaultEveningHour
	return u
}
