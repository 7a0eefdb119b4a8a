package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/coachpipe/coachpipe/internal/messaging"
	"github.com/coachpipe/coachpipe/internal/models"
	"github.com/coachpipe/coachpipe/internal/store"
)

var sweepNow = time.Date(2026, 8, 30, 8, 30, 0, 0, time.UTC)

// newSweepFixture builds a store with one onboarded, subscribed, reachable
// user and a sweeper over a mock SMS sender.
func newSweepFixture(t *testing.T) (*Sweeper, store.Store, *messaging.MockSender, models.User) {
	t.Helper()
	st := store.NewInMemoryStore()
	u, err := st.CreateUser(models.User{
		Identity:           "+15551234567",
		Phone:              "+15551234567",
		OnboardingStep:     models.StepComplete,
		SubscriptionStatus: models.SubscriptionActive,
		SubscriptionEndsAt: sweepNow.Add(30 * 24 * time.Hour),
		Timezone:           "UTC",
		CheckinFrequency:   models.FrequencyOnce,
		MorningHour:        8,
		MiddayHour:         13,
		EveningHour:        19,
		LastUserMessageAt:  sweepNow.Add(-2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if err := st.ReplaceGoals(u.ID, []models.Goal{{UserID: u.ID, Position: 1, Text: "gym 4x a week", Active: true}}); err != nil {
		t.Fatalf("ReplaceGoals failed: %v", err)
	}

	sms := messaging.NewMockSender()
	sweeper := NewSweeper(st, messaging.NewRouter(sms, nil, nil), 3).
		WithClock(func() time.Time { return sweepNow })
	return sweeper, st, sms, u
}

func TestSweepScheduledCheckin(t *testing.T) {
	sweeper, st, sms, u := newSweepFixture(t)

	counts, err := sweeper.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if counts.Checkins != 1 {
		t.Fatalf("expected 1 check-in, got %+v", counts)
	}
	if len(sms.SentMessages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sms.SentMessages))
	}
	if !strings.Contains(sms.SentMessages[0].Body, "gym 4x a week") {
		t.Errorf("expected check-in to reference first goal, got %q", sms.SentMessages[0].Body)
	}

	saved, _ := st.GetUserByID(u.ID)
	if !saved.AwaitingProactive {
		t.Error("expected AwaitingProactive set after check-in")
	}
	if !saved.LastNotifiedAt.Equal(sweepNow) {
		t.Errorf("expected LastNotifiedAt stamped, got %v", saved.LastNotifiedAt)
	}

	msgs, _ := st.GetMessages(u.ID)
	if len(msgs) != 1 || msgs[0].Role != models.RoleAssistant {
		t.Errorf("expected check-in recorded in history, got %+v", msgs)
	}
}

func TestSweepCheckinSuppressedWithinHour(t *testing.T) {
	sweeper, st, sms, u := newSweepFixture(t)
	u.LastNotifiedAt = sweepNow.Add(-30 * time.Minute)
	if err := st.SaveUser(u); err != nil {
		t.Fatal(err)
	}

	counts, err := sweeper.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if counts.Checkins != 0 || counts.Skipped != 1 {
		t.Errorf("expected suppression, got %+v", counts)
	}
	if len(sms.SentMessages) != 0 {
		t.Errorf("expected no messages, got %d", len(sms.SentMessages))
	}
}

func TestSweepCheckinHourMismatch(t *testing.T) {
	sweeper, st, _, u := newSweepFixture(t)
	u.MorningHour = 6
	if err := st.SaveUser(u); err != nil {
		t.Fatal(err)
	}

	counts, _ := sweeper.Run(context.Background())
	if counts.Checkins != 0 {
		t.Errorf("expected no check-in outside configured hour, got %+v", counts)
	}
}

func TestSweepFrequencyGatesExtraHours(t *testing.T) {
	tests := []struct {
		freq models.CheckinFrequency
		hour int
		want bool
	}{
		{models.FrequencyOnce, 8, true},
		{models.FrequencyOnce, 13, false},
		{models.FrequencyOnce, 19, false},
		{models.FrequencyTwice, 13, true},
		{models.FrequencyTwice, 19, false},
		{models.FrequencyThrice, 13, true},
		{models.FrequencyThrice, 19, true},
	}
	for _, tt := range tests {
		u := models.User{CheckinFrequency: tt.freq, MorningHour: 8, MiddayHour: 13, EveningHour: 19}
		if got := scheduledHour(u, tt.hour); got != tt.want {
			t.Errorf("scheduledHour(%s, %d) = %v, want %v", tt.freq, tt.hour, got, tt.want)
		}
	}
}

func TestSweepReengagementTiers(t *testing.T) {
	tests := []struct {
		silent time.Duration
		want   string
	}{
		{12 * time.Hour, ""},
		{25 * time.Hour, "1-day"},
		{4 * 24 * time.Hour, "3-day"},
		{8 * 24 * time.Hour, "7-day"},
		{20 * 24 * time.Hour, ""},
	}
	for _, tt := range tests {
		u := models.User{LastUserMessageAt: sweepNow.Add(-tt.silent)}
		if got := reengagementTier(u, sweepNow); got != tt.want {
			t.Errorf("reengagementTier(silent %v) = %q, want %q", tt.silent, got, tt.want)
		}
	}
}

func TestSweepReengagementBeatsCheckin(t *testing.T) {
	sweeper, st, sms, u := newSweepFixture(t)
	u.LastUserMessageAt = sweepNow.Add(-2 * 24 * time.Hour)
	if err := st.SaveUser(u); err != nil {
		t.Fatal(err)
	}

	counts, err := sweeper.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if counts.Reengagements != 1 || counts.Checkins != 0 {
		t.Fatalf("expected re-engagement to win precedence, got %+v", counts)
	}
	if len(sms.SentMessages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sms.SentMessages))
	}
	if sms.SentMessages[0].Body != reengagementMessages["1-day"] {
		t.Errorf("expected 1-day message, got %q", sms.SentMessages[0].Body)
	}
}

func TestSweepReengagementSuppressedWithin24h(t *testing.T) {
	sweeper, st, sms, u := newSweepFixture(t)
	u.LastUserMessageAt = sweepNow.Add(-2 * 24 * time.Hour)
	u.LastNotifiedAt = sweepNow.Add(-5 * time.Hour)
	if err := st.SaveUser(u); err != nil {
		t.Fatal(err)
	}

	counts, _ := sweeper.Run(context.Background())
	if counts.Reengagements != 0 {
		t.Errorf("expected 24h suppression, got %+v", counts)
	}
	// Suppression only silences the nudge; the scheduled check-in still runs.
	if counts.Checkins != 1 {
		t.Errorf("expected fall-through check-in, got %+v", counts)
	}
	if len(sms.SentMessages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sms.SentMessages))
	}
	if sms.SentMessages[0].Body == reengagementMessages["1-day"] {
		t.Errorf("expected a check-in body, got the re-engagement nudge")
	}
}

func TestSweepSuppressedReengagementFallsThroughToFollowup(t *testing.T) {
	sweeper, st, sms, u := newSweepFixture(t)
	u.LastUserMessageAt = sweepNow.Add(-26 * time.Hour)
	u.AwaitingProactive = true
	u.LastNotifiedAt = sweepNow.Add(-3 * time.Hour)
	u.MorningHour = 6 // keep the scheduled check-in out of the picture
	if err := st.SaveUser(u); err != nil {
		t.Fatal(err)
	}

	counts, err := sweeper.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if counts.Reengagements != 0 || counts.Followups != 1 {
		t.Fatalf("expected suppressed nudge to yield a follow-up, got %+v", counts)
	}
	if sms.SentMessages[0].Body != followupMessage {
		t.Errorf("unexpected follow-up body: %q", sms.SentMessages[0].Body)
	}
}

func TestSweepFollowup(t *testing.T) {
	sweeper, st, sms, u := newSweepFixture(t)
	u.AwaitingProactive = true
	u.LastNotifiedAt = sweepNow.Add(-3 * time.Hour)
	u.MorningHour = 6 // keep the scheduled check-in out of the picture
	if err := st.SaveUser(u); err != nil {
		t.Fatal(err)
	}

	counts, err := sweeper.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if counts.Followups != 1 {
		t.Fatalf("expected 1 follow-up, got %+v", counts)
	}
	if sms.SentMessages[0].Body != followupMessage {
		t.Errorf("unexpected follow-up body: %q", sms.SentMessages[0].Body)
	}

	saved, _ := st.GetUserByID(u.ID)
	if !saved.AwaitingProactive {
		t.Error("expected AwaitingProactive still set after follow-up")
	}
}

func TestSweepFollowupOutsideWindow(t *testing.T) {
	for _, since := range []time.Duration{time.Hour, 5 * time.Hour} {
		sweeper, st, _, u := newSweepFixture(t)
		u.AwaitingProactive = true
		u.LastNotifiedAt = sweepNow.Add(-since)
		u.MorningHour = 6
		if err := st.SaveUser(u); err != nil {
			t.Fatal(err)
		}

		counts, _ := sweeper.Run(context.Background())
		if counts.Followups != 0 {
			t.Errorf("expected no follow-up at %v since notify, got %+v", since, counts)
		}
	}
}

func TestSweepSkipsIneligibleUsers(t *testing.T) {
	sweeper, st, sms, u := newSweepFixture(t)
	u.SubscriptionStatus = models.SubscriptionCanceled
	u.CreatedAt = sweepNow.Add(-30 * 24 * time.Hour) // trial long over
	if err := st.SaveUser(u); err != nil {
		t.Fatal(err)
	}

	counts, _ := sweeper.Run(context.Background())
	if counts.Skipped != 1 || counts.Checkins != 0 {
		t.Errorf("expected ineligible user skipped, got %+v", counts)
	}
	if len(sms.SentMessages) != 0 {
		t.Errorf("expected no messages, got %d", len(sms.SentMessages))
	}
}

func TestSweepTrialWindowAllowsUnsubscribed(t *testing.T) {
	sweeper, st, _, u := newSweepFixture(t)
	u.SubscriptionStatus = models.SubscriptionNone
	u.CreatedAt = sweepNow.Add(-24 * time.Hour)
	if err := st.SaveUser(u); err != nil {
		t.Fatal(err)
	}

	counts, _ := sweeper.Run(context.Background())
	if counts.Checkins != 1 {
		t.Errorf("expected trial user to get a check-in, got %+v", counts)
	}
}

func TestSweepSendErrorCounted(t *testing.T) {
	sweeper, st, sms, u := newSweepFixture(t)
	sms.Err = errors.New("carrier rejected")

	counts, err := sweeper.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if counts.Errors != 1 {
		t.Errorf("expected send failure counted, got %+v", counts)
	}

	// State must not be mutated when the send failed.
	saved, _ := st.GetUserByID(u.ID)
	if saved.AwaitingProactive || !saved.LastNotifiedAt.IsZero() {
		t.Errorf("expected no state change on failed send, got %+v", saved)
	}
}
