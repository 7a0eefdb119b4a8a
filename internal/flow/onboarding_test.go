package flow

import (
	"testing"
	"time"

	"github.com/coachpipe/coachpipe/internal/models"
)

func testUser(step int) models.User {
	return models.User{
		ID:             "u_test",
		Identity:       "+15550001111",
		OnboardingStep: step,
		MorningHour:    models.DefaultMorningHour,
		MiddayHour:     models.DefaultMiddayHour,
		EveningHour:    models.DefaultEveningHour,
	}
}

func TestAdvanceOnboardingFirstContactOnlyWelcomes(t *testing.T) {
	u := testUser(models.StepGreet)
	tr := AdvanceOnboarding(u, "hey", false, nil, time.Now())

	if tr.Advanced {
		t.Error("expected no advance on first contact")
	}
	if tr.User.OnboardingStep != models.StepGreet {
		t.Errorf("expected step %d, got %d", models.StepGreet, tr.User.OnboardingStep)
	}
	if tr.User.Name != "" {
		t.Errorf("expected no name captured, got %q", tr.User.Name)
	}
}

func TestAdvanceOnboardingFullIntake(t *testing.T) {
	now := time.Now()
	u := testUser(models.StepGreet)

	// Reply to the welcome carries the name.
	tr := AdvanceOnboarding(u, "Marcus", true, nil, now)
	if tr.User.Name != "Marcus" {
		t.Errorf("expected name Marcus, got %q", tr.User.Name)
	}
	if tr.User.OnboardingStep != models.StepProbe {
		t.Fatalf("expected step %d, got %d", models.StepProbe, tr.User.OnboardingStep)
	}

	// Probe answer always advances.
	tr = AdvanceOnboarding(tr.User, "22", true, nil, now)
	if tr.User.OnboardingStep != models.StepGoals {
		t.Fatalf("expected step %d, got %d", models.StepGoals, tr.User.OnboardingStep)
	}

	// Goals answer is gated, then parsed.
	tr = AdvanceOnboarding(tr.User, "gym 4x a week, read 2 books", true, nil, now)
	if tr.User.OnboardingStep != models.StepBlockers {
		t.Fatalf("expected step %d, got %d", models.StepBlockers, tr.User.OnboardingStep)
	}
	if !tr.ReplaceGoals {
		t.Error("expected ReplaceGoals to be set")
	}
	if len(tr.Goals) != 2 {
		t.Fatalf("expected 2 parsed goals, got %d", len(tr.Goals))
	}
	if tr.Goals[0].Text != "gym 4x a week" || tr.Goals[1].Text != "read 2 books" {
		t.Errorf("unexpected goal texts: %q, %q", tr.Goals[0].Text, tr.Goals[1].Text)
	}

	tr = AdvanceOnboarding(tr.User, "honestly just being tired after work", true, nil, now)
	if tr.User.OnboardingStep != models.StepSchedule {
		t.Fatalf("expected step %d, got %d", models.StepSchedule, tr.User.OnboardingStep)
	}

	tr = AdvanceOnboarding(tr.User, "I'm on pacific time, evenings work best", true, nil, now)
	if tr.User.OnboardingStep != models.StepPlan {
		t.Fatalf("expected step %d, got %d", models.StepPlan, tr.User.OnboardingStep)
	}
	if tr.User.Timezone != "America/Los_Angeles" {
		t.Errorf("expected timezone America/Los_Angeles, got %q", tr.User.Timezone)
	}
	if tr.User.MorningHour != 19 {
		t.Errorf("expected check-in hour 19, got %d", tr.User.MorningHour)
	}

	tr = AdvanceOnboarding(tr.User, "what does that look like?", true, nil, now)
	if tr.User.OnboardingStep != models.StepConfirmation {
		t.Fatalf("expected step %d, got %d", models.StepConfirmation, tr.User.OnboardingStep)
	}

	tr = AdvanceOnboarding(tr.User, "let's do it", true, nil, now)
	if tr.User.OnboardingStep != models.StepComplete {
		t.Fatalf("expected step %d, got %d", models.StepComplete, tr.User.OnboardingStep)
	}
	if !tr.Completed {
		t.Error("expected Completed on the confirming turn")
	}
}

func TestAdvanceOnboardingGatedStepsStayPut(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		step    int
		inbound string
	}{
		{"goals rejects throwaway", models.StepGoals, "ok"},
		{"goals rejects short", models.StepGoals, "gym"},
		{"schedule rejects vague", models.StepSchedule, "whenever works"},
		{"confirmation rejects hesitation", models.StepConfirmation, "not sure about this"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := AdvanceOnboarding(testUser(tt.step), tt.inbound, true, nil, now)
			if tr.Advanced {
				t.Error("expected no advance")
			}
			if tr.User.OnboardingStep != tt.step {
				t.Errorf("expected step %d, got %d", tt.step, tr.User.OnboardingStep)
			}
		})
	}
}

func TestAdvanceOnboardingStepNeverDecreases(t *testing.T) {
	now := time.Now()
	inputs := []string{"hey", "ok", "no", "reset", "gym 4x a week, read 2 books", "evenings, eastern", "yes"}
	for step := models.StepGreet; step <= models.StepComplete; step++ {
		for _, inbound := range inputs {
			tr := AdvanceOnboarding(testUser(step), inbound, true, nil, now)
			if tr.User.OnboardingStep < step {
				t.Errorf("step decreased from %d to %d on %q", step, tr.User.OnboardingStep, inbound)
			}
		}
	}
}

func TestAdvanceOnboardingClearsProactiveFlag(t *testing.T) {
	u := testUser(models.StepComplete)
	u.AwaitingProactive = true
	now := time.Now()

	tr := AdvanceOnboarding(u, "busy day but I'm here", true, nil, now)
	if tr.User.AwaitingProactive {
		t.Error("expected AwaitingProactive cleared by any engagement")
	}
	if !tr.User.LastUserMessageAt.Equal(now) {
		t.Error("expected LastUserMessageAt stamped")
	}
}

func TestAdvanceOnboardingCheckinExchange(t *testing.T) {
	now := time.Date(2026, 8, 30, 20, 0, 0, 0, time.UTC)
	u := testUser(models.StepComplete)
	u.Timezone = "UTC"
	goals := []models.Goal{{UserID: u.ID, Position: 1, Text: "gym 4x a week", Active: true}}

	// Trigger phrase arms the check-in without recording anything.
	tr := AdvanceOnboarding(u, "checking in", true, goals, now)
	if !tr.User.AwaitingCheckin {
		t.Fatal("expected AwaitingCheckin set by trigger")
	}
	if tr.CheckinRecorded {
		t.Error("trigger alone must not record a check-in")
	}

	// Positive reply records the day and disarms.
	tr = AdvanceOnboarding(tr.User, "done! hit the gym", true, goals, now)
	if tr.User.AwaitingCheckin {
		t.Error("expected AwaitingCheckin cleared")
	}
	if !tr.CheckinRecorded {
		t.Fatal("expected check-in recorded")
	}
	if tr.User.CurrentStreak != 1 {
		t.Errorf("expected streak 1, got %d", tr.User.CurrentStreak)
	}
	if tr.User.LastCheckinDate != "2026-08-30" {
		t.Errorf("expected LastCheckinDate 2026-08-30, got %q", tr.User.LastCheckinDate)
	}
	if len(tr.Goals) != 1 || tr.Goals[0].CurrentStreak != 1 {
		t.Errorf("expected goal streak 1, got %+v", tr.Goals)
	}
}

func TestAdvanceOnboardingNegativeCheckinDisarmsWithoutRecording(t *testing.T) {
	u := testUser(models.StepComplete)
	u.AwaitingCheckin = true

	tr := AdvanceOnboarding(u, "didn't make it today", true, nil, time.Now())
	if tr.User.AwaitingCheckin {
		t.Error("expected AwaitingCheckin cleared")
	}
	if tr.CheckinRecorded {
		t.Error("negative reply must not record a check-in")
	}
	if tr.User.CurrentStreak != 0 {
		t.Errorf("expected streak untouched, got %d", tr.User.CurrentStreak)
	}
}

func TestResetOnboarding(t *testing.T) {
	u := testUser(models.StepComplete)
	u.Name = "Marcus"
	u.GoalsSummary = "gym and reading"
	u.AwaitingCheckin = true
	u.AwaitingProactive = true
	u.CurrentStreak = 9
	u.LongestStreak = 12
	u.LastCheckinDate = "2026-08-29"
	u.Timezone = "America/Los_Angeles"
	u.CheckinFrequency = models.FrequencyThrice
	u.MorningHour = 6

	reset := ResetOnboarding(u)
	if reset.OnboardingStep != models.StepGreet {
		t.Errorf("expected step %d, got %d", models.StepGreet, reset.OnboardingStep)
	}
	if reset.Name != "" || reset.GoalsSummary != "" || reset.Timezone != "" {
		t.Error("expected intake fields cleared")
	}
	if reset.AwaitingCheckin || reset.AwaitingProactive {
		t.Error("expected pending flags cleared")
	}
	if reset.CurrentStreak != 0 || reset.LastCheckinDate != "" {
		t.Error("expected current streak cleared")
	}
	if reset.LongestStreak != 12 {
		t.Errorf("expected longest streak preserved, got %d", reset.LongestStreak)
	}
	if reset.MorningHour != models.DefaultMorningHour {
		t.Errorf("expected default morning hour, got %d", reset.MorningHour)
	}
}
