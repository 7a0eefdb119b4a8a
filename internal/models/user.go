// Package models defines the user, message, and goal records for CoachPipe.
package models

import (
	"regexp"
	"time"
)

// Onboarding step constants. Steps advance forward only; StepComplete marks the
// switch to steady-state accountability mode.
const (
	StepGreet        = 0 // capture name
	StepProbe        = 1 // age/context question
	StepGoals        = 2 // capture goals statement
	StepBlockers     = 3 // discuss obstacles
	StepSchedule     = 4 // capture timezone and check-in time
	StepPlan         = 5 // propose the plan
	StepConfirmation = 6 // confirm the plan
	StepComplete     = 7 // onboarding done, accountability mode
)

// Default check-in hours, local to the user's timezone. MorningHour is replaced
// by the hour inferred during onboarding.
const (
	DefaultMorningHour = 8
	DefaultMiddayHour  = 13
	DefaultEveningHour = 19
)

// e164Regex matches a usable E.164 phone number for SMS delivery.
var e164Regex = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// User is the root entity, one per contact identity (phone number or email).
type User struct {
	ID                 string             `json:"id"`
	Identity           string             `json:"identity"` // phone number or email used as the channel key
	Name               string             `json:"name,omitempty"`
	GoalsSummary       string             `json:"goals_summary,omitempty"`
	OnboardingStep     int                `json:"onboarding_step"`
	AwaitingCheckin    bool               `json:"awaiting_checkin"`   // user typed a check-in trigger; next reply is the check-in result
	AwaitingProactive  bool               `json:"awaiting_proactive"` // a proactive nudge went out and has not been answered yet
	LastNotifiedAt     time.Time          `json:"last_notified_at,omitempty"`
	LastUserMessageAt  time.Time          `json:"last_user_message_at,omitempty"`
	CurrentStreak      int                `json:"current_streak"`
	LongestStreak      int                `json:"longest_streak"`
	LastCheckinDate    string             `json:"last_checkin_date,omitempty"` // local calendar date, YYYY-MM-DD
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	SubscriptionEndsAt time.Time          `json:"subscription_ends_at,omitempty"`
	StripeCustomerID   string             `json:"stripe_customer_id,omitempty"`
	Timezone           string             `json:"timezone,omitempty"` // IANA identifier, e.g. "America/New_York"
	PushToken          string             `json:"push_token,omitempty"`
	Phone              string             `json:"phone,omitempty"` // E.164 when usable for SMS
	CheckinFrequency   CheckinFrequency   `json:"checkin_frequency"`
	MorningHour        int                `json:"morning_hour"`
	MiddayHour         int                `json:"midday_hour"`
	EveningHour        int                `json:"evening_hour"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// OnboardingComplete reports whether the user has finished the scripted intake.
func (u *User) OnboardingComplete() bool {
	return u.OnboardingStep >= StepComplete
}

// Subscribed reports whether the user has an active subscription that has not lapsed.
func (u *User) Subscribed(now time.Time) bool {
	return u.SubscriptionStatus == SubscriptionActive && u.SubscriptionEndsAt.After(now)
}

// InTrialWindow reports whether the user is still inside the post-signup trial window.
func (u *User) InTrialWindow(now time.Time, trialDays int) bool {
	return now.Before(u.CreatedAt.Add(time.Duration(trialDays) * 24 * time.Hour))
}

// HasDeliveryChannel reports whether the user can receive proactive contact at all:
// a push token, or an E.164-formatted phone number for SMS.
func (u *User) HasDeliveryChannel() bool {
	return u.PushToken != "" || e164Regex.MatchString(u.Phone)
}

// EligibleForProactiveContact combines the three eligibility conditions: completed
// onboarding, subscribed or within trial, and a usable delivery channel.
func (u *User) EligibleForProactiveContact(now time.Time, trialDays int) bool {
	if !u.OnboardingComplete() {
		return false
	}
	if !u.Subscribed(now) && !u.InTrialWindow(now, trialDays) {
		return false
	}
	return u.HasDeliveryChannel()
}

// Message is an immutable append-only conversation record owned by a user.
// The ordered sequence of a user's messages is the entire memory passed to the
// language model on every turn.
type Message struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// Goal is one entry of the numbered decomposition of a user's goals summary.
// Goal sets are replaced wholesale, never edited in place.
type Goal struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Position      int       `json:"position"`
	Text          string    `json:"text"`
	Active        bool      `json:"active"`
	CurrentStreak int       `json:"current_streak"`
	LongestStreak int       `json:"longest_streak"`
	CreatedAt     time.Time `json:"created_at"`
}
