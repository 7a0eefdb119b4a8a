// Package messaging implements outbound message delivery: SMS via Twilio and
// mobile push via Expo and APNs, behind a shared Sender abstraction with a
// router that picks the best channel per user.
package messaging

import (
	"context"
	"errors"
	"regexp"
)

// ErrNoDeliveryChannel is returned when a user has neither a push token nor a
// usable phone number.
var ErrNoDeliveryChannel = errors.New("user has no delivery channel")

// e164Regex matches canonical E.164 phone numbers.
var e164Regex = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// nonDigits strips everything that is not a digit.
var nonDigits = regexp.MustCompile(`\D`)

// Sender delivers a message body to a single recipient over one channel.
type Sender interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
	// identifier for this channel, returning the canonical form.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message body to a canonical recipient.
	SendMessage(ctx context.Context, to string, body string) error
}

// CanonicalizePhone strips formatting characters (spaces, dashes, parentheses)
// from a phone number and validates the result as E.164. The country code
// prefix is required; digits without a leading plus are rejected.
func CanonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", errors.New("recipient cannot be empty")
	}
	if recipient[0] != '+' {
		return "", errors.New("recipient must start with a country code prefix")
	}
	canonical := "+" + nonDigits.ReplaceAllString(recipient, "")
	if !e164Regex.MatchString(canonical) {
		return "", errors.New("recipient is not a valid E.164 phone number")
	}
	return canonical, nil
}
