package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/coachpipe/coachpipe/internal/flow"
	"github.com/coachpipe/coachpipe/internal/messaging"
	"github.com/coachpipe/coachpipe/internal/models"
	"github.com/coachpipe/coachpipe/internal/store"
)

// Re-engagement tiers keyed by full days of user silence.
var reengagementMessages = map[string]string{
	"1-day": "Hey — yesterday came and went without a word. What's the plan for today?",
	"3-day": "It's been a few days. Streaks die quietly like this. One message, that's all it takes to get back on track.",
	"7-day": "A week of silence. I'm still here when you're ready — your goals didn't go anywhere.",
}

// followupMessage nudges a user who never answered a pending check-in.
const followupMessage = "Still waiting to hear how it went today. Don't leave me hanging."

// checkinTemplates are the scheduled check-in openers; %s is the user's first
// active goal.
var checkinTemplates = []string{
	"Check-in time: how's \"%s\" going today?",
	"Quick one — did you make progress on \"%s\" today?",
	"Time to report in. Where are you at with \"%s\"?",
	"Daily accountability check: \"%s\". How did it go?",
}

// checkinTemplateNoGoal is used when a user somehow has no active goals.
const checkinTemplateNoGoal = "Check-in time: how did today go against your goals?"

// SweepCounts tallies the outcome of one sweep by action category.
type SweepCounts struct {
	Reengagements int `json:"reengagements"`
	Followups     int `json:"followups"`
	Checkins      int `json:"checkins"`
	Skipped       int `json:"skipped"`
	Errors        int `json:"errors"`
}

// Sweeper walks all onboarded users and sends at most one proactive message
// each, by strict precedence: re-engagement, follow-up, scheduled check-in,
// nothing. The clock and random source are injectable for tests.
type Sweeper struct {
	st        store.Store
	router    *messaging.Router
	trialDays int
	now       func() time.Time
	rng       *rand.Rand
}

// NewSweeper creates a sweeper over the store and delivery router.
func NewSweeper(st store.Store, router *messaging.Router, trialDays int) *Sweeper {
	return &Sweeper{
		st:        st,
		router:    router,
		trialDays: trialDays,
		now:       time.Now,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithClock overrides the sweeper's clock.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// WithRand overrides the sweeper's random source.
func (s *Sweeper) WithRand(rng *rand.Rand) *Sweeper {
	s.rng = rng
	return s
}

// Run executes one sweep. Per-user failures are logged, counted, and skipped;
// one bad user never blocks the rest.
func (s *Sweeper) Run(ctx context.Context) (SweepCounts, error) {
	now := s.now()
	slog.Debug("Sweeper.Run starting", "now", now)

	users, err := s.st.ListOnboardedUsers()
	if err != nil {
		return SweepCounts{}, fmt.Errorf("failed to list users for sweep: %w", err)
	}

	var counts SweepCounts
	for _, u := range users {
		action, err := s.sweepUser(ctx, u, now)
		if err != nil {
			slog.Error("Sweep failed for user", "userID", u.ID, "error", err)
			counts.Errors++
			continue
		}
		switch action {
		case actionReengage:
			counts.Reengagements++
		case actionFollowup:
			counts.Followups++
		case actionCheckin:
			counts.Checkins++
		default:
			counts.Skipped++
		}
	}

	slog.Debug("Sweeper.Run finished", "counts", counts)
	return counts, nil
}

type sweepAction int

const (
	actionNone sweepAction = iota
	actionReengage
	actionFollowup
	actionCheckin
)

// sweepUser reads one user snapshot, decides a single action, sends it, and
// writes the snapshot back once.
func (s *Sweeper) sweepUser(ctx context.Context, u models.User, now time.Time) (sweepAction, error) {
	if !u.EligibleForProactiveContact(now, s.trialDays) {
		return actionNone, nil
	}

	action, body, err := s.decide(u, now)
	if err != nil {
		return actionNone, err
	}
	if action == actionNone {
		return actionNone, nil
	}

	if err := s.router.Deliver(ctx, u, body); err != nil {
		return actionNone, err
	}

	u.LastNotifiedAt = now
	if action == actionCheckin {
		u.AwaitingProactive = true
	}
	if err := s.st.SaveUser(u); err != nil {
		return actionNone, fmt.Errorf("failed to save user after sweep send: %w", err)
	}
	if err := s.st.AddMessage(models.Message{
		UserID:    u.ID,
		Role:      models.RoleAssistant,
		Content:   body,
		CreatedAt: now,
	}); err != nil {
		return actionNone, fmt.Errorf("failed to record sweep message: %w", err)
	}

	return action, nil
}

// decide picks the single action for a user by precedence.
func (s *Sweeper) decide(u models.User, now time.Time) (sweepAction, string, error) {
	// 1. Re-engagement for silent users, at most once per 24h. A tier
	// suppressed by the 24h rule falls through to the later rules.
	if tier := reengagementTier(u, now); tier != "" {
		if u.LastNotifiedAt.IsZero() || now.Sub(u.LastNotifiedAt) >= 24*time.Hour {
			return actionReengage, reengagementMessages[tier], nil
		}
	}

	// 2. Follow-up on an unanswered check-in, 2-4h after it went out.
	if u.AwaitingProactive && !u.LastNotifiedAt.IsZero() {
		since := now.Sub(u.LastNotifiedAt)
		if since >= 2*time.Hour && since <= 4*time.Hour {
			return actionFollowup, followupMessage, nil
		}
	}

	// 3. Scheduled check-in when the local hour matches and nothing was sent
	// within the last hour.
	localHour := now.In(flow.UserLocation(u)).Hour()
	if scheduledHour(u, localHour) {
		if u.LastNotifiedAt.IsZero() || now.Sub(u.LastNotifiedAt) >= time.Hour {
			body, err := s.checkinBody(u)
			if err != nil {
				return actionNone, "", err
			}
			return actionCheckin, body, nil
		}
	}

	return actionNone, "", nil
}

// reengagementTier maps full days of user silence to a message tier, or ""
// when the user is current (or so long gone that nudges stop).
func reengagementTier(u models.User, now time.Time) string {
	if u.LastUserMessageAt.IsZero() {
		return ""
	}
	days := now.Sub(u.LastUserMessageAt).Hours() / 24
	switch {
	case days >= 14:
		// Gone cold; stop nudging.
		return ""
	case days >= 7:
		return "7-day"
	case days >= 3:
		return "3-day"
	case days >= 1:
		return "1-day"
	}
	return ""
}

// scheduledHour reports whether localHour is one of the user's configured
// check-in hours given their frequency.
func scheduledHour(u models.User, localHour int) bool {
	if localHour == u.MorningHour {
		return true
	}
	if localHour == u.MiddayHour &&
		(u.CheckinFrequency == models.FrequencyTwice || u.CheckinFrequency == models.FrequencyThrice) {
		return true
	}
	return localHour == u.EveningHour && u.CheckinFrequency == models.FrequencyThrice
}

// checkinBody renders a random check-in template over the user's first active goal.
func (s *Sweeper) checkinBody(u models.User) (string, error) {
	goals, err := s.st.GetActiveGoals(u.ID)
	if err != nil {
		return "", fmt.Errorf("failed to load goals for check-in: %w", err)
	}
	if len(goals) == 0 {
		return checkinTemplateNoGoal, nil
	}
	template := checkinTemplates[s.rng.Intn(len(checkinTemplates))]
	return fmt.Sprintf(template, goals[0].Text), nil
}
