// Package models defines the core data structures for CoachPipe.
//
// It includes the user, message, and goal records shared across modules, plus
// the enums and validation errors used at the API boundary.
package models

import (
	"errors"
	"strings"
)

// Validation constants for input handling.
const (
	// MaxNameLength defines the maximum stored length for a user's display name.
	MaxNameLength = 100
	// MaxGoalsSummaryLength defines the maximum stored length for the free-text goals summary.
	MaxGoalsSummaryLength = 1000
	// MaxMessageLength defines the maximum accepted length for a single inbound message.
	MaxMessageLength = 4096
	// MaxGoalsPerUser defines the maximum number of goals parsed from a goals statement.
	MaxGoalsPerUser = 5
)

// Error variables for better error handling and testability.
var (
	ErrEmptyIdentity    = errors.New("sender identity cannot be empty")
	ErrEmptyBody        = errors.New("message body cannot be empty")
	ErrBodyTooLong      = errors.New("message body exceeds maximum length")
	ErrUserNotFound     = errors.New("user not found")
	ErrInvalidRole      = errors.New("invalid message role")
	ErrInvalidFrequency = errors.New("invalid check-in frequency")
)

// ValidateInbound checks inbound message fields at the API boundary, before
// the conversation engine sees them.
func ValidateInbound(identity, body string) error {
	if strings.TrimSpace(identity) == "" {
		return ErrEmptyIdentity
	}
	return ValidateMessageBody(body)
}

// ValidateMessageBody checks an inbound message body at the API boundary.
func ValidateMessageBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrEmptyBody
	}
	if len(body) > MaxMessageLength {
		return ErrBodyTooLong
	}
	return nil
}

// MessageRole identifies the author of a stored conversation message.
type MessageRole string

const (
	// RoleUser marks a message authored by the user.
	RoleUser MessageRole = "user"
	// RoleAssistant marks a message authored by the coach.
	RoleAssistant MessageRole = "assistant"
)

// IsValidMessageRole checks if the given role is supported.
func IsValidMessageRole(r MessageRole) bool {
	return r == RoleUser || r == RoleAssistant
}

// SubscriptionStatus represents the payment state of a user.
type SubscriptionStatus string

const (
	// SubscriptionNone indicates no subscription (trial eligibility only).
	SubscriptionNone SubscriptionStatus = "none"
	// SubscriptionActive indicates a paid, current subscription.
	SubscriptionActive SubscriptionStatus = "active"
	// SubscriptionPastDue indicates a subscription with a failed renewal payment.
	SubscriptionPastDue SubscriptionStatus = "past_due"
	// SubscriptionCanceled indicates a canceled subscription.
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// CheckinFrequency represents how many scheduled check-ins a user receives per day.
type CheckinFrequency string

const (
	// FrequencyOnce sends the morning check-in only.
	FrequencyOnce CheckinFrequency = "once"
	// FrequencyTwice adds the midday check-in.
	FrequencyTwice CheckinFrequency = "twice"
	// FrequencyThrice adds the evening check-in.
	FrequencyThrice CheckinFrequency = "thrice"
)

// IsValidCheckinFrequency checks if the given frequency is supported.
func IsValidCheckinFrequency(f CheckinFrequency) bool {
	switch f {
	case FrequencyOnce, FrequencyTwice, FrequencyThrice:
		return true
	default:
		return false
	}
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
