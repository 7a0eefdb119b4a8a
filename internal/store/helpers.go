package store

import (
	"database/sql"
	"time"

	"github.com/coachpipe/coachpipe/internal/models"
)

// userColumns is the canonical column list for user rows, shared by both SQL
// backends. Scan order must match scanUser.
const userColumns = `id, identity, name, goals_summary, onboarding_step, awaiting_checkin, awaiting_proactive,
	last_notified_at, last_user_message_at, current_streak, longest_streak, last_checkin_date,
	subscription_status, subscription_ends_at, stripe_customer_id, timezone, push_token, phone,
	checkin_frequency, morning_hour, midday_hour, evening_hour, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser reads one user row in userColumns order.
func scanUser(row rowScanner) (models.User, error) {
	var u models.User
	var lastNotified, lastUserMsg, subEnds sql.NullTime
	err := row.Scan(
		&u.ID, &u.Identity, &u.Name, &u.GoalsSummary, &u.OnboardingStep, &u.AwaitingCheckin, &u.AwaitingProactive,
		&lastNotified, &lastUserMsg, &u.CurrentStreak, &u.LongestStreak, &u.LastCheckinDate,
		&u.SubscriptionStatus, &subEnds, &u.StripeCustomerID, &u.Timezone, &u.PushToken, &u.Phone,
		&u.CheckinFrequency, &u.MorningHour, &u.MiddayHour, &u.EveningHour, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return models.User{}, err
	}
	u.LastNotifiedAt = timeOrZero(lastNotified)
	u.LastUserMessageAt = timeOrZero(lastUserMsg)
	u.SubscriptionEndsAt = timeOrZero(subEnds)
	return u, nil
}

// userArgs returns the write arguments for a user row in userColumns order.
func userArgs(u models.User) []any {
	return []any{
		u.ID, u.Identity, u.Name, u.GoalsSummary, u.OnboardingStep, u.AwaitingCheckin, u.AwaitingProactive,
		nullTime(u.LastNotifiedAt), nullTime(u.LastUserMessageAt), u.CurrentStreak, u.LongestStreak, u.LastCheckinDate,
		u.SubscriptionStatus, nullTime(u.SubscriptionEndsAt), u.StripeCustomerID, u.Timezone, u.PushToken, u.Phone,
		u.CheckinFrequency, u.MorningHour, u.MiddayHour, u.EveningHour, u.CreatedAt, u.UpdatedAt,
	}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func timeOrZero(nt sql.NullTime) time.Time {
	if nt.Valid {
		return nt.Time
	}
	return time.Time{}
}
