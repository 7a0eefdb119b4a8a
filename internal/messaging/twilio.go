package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioOpts holds configuration options for the Twilio SMS client.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// TwilioOption defines a configuration option for the Twilio SMS client.
type TwilioOption func(*TwilioOpts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithFromNumber sets the sending phone number in E.164 format.
func WithFromNumber(from string) TwilioOption {
	return func(o *TwilioOpts) { o.FromNumber = from }
}

// TwilioSMSSender sends SMS messages through the Twilio REST API.
type TwilioSMSSender struct {
	client     *twilio.RestClient
	fromNumber string
}

// NewTwilioSMSSender creates a Twilio SMS sender, falling back to the standard
// TWILIO_* environment variables for unset options.
func NewTwilioSMSSender(opts ...TwilioOption) (*TwilioSMSSender, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio client config loaded",
		"accountSIDSet", cfg.AccountSID != "",
		"authTokenSet", cfg.AuthToken != "",
		"fromNumberSet", cfg.FromNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	from, err := CanonicalizePhone(cfg.FromNumber)
	if err != nil {
		return nil, fmt.Errorf("invalid from number: %w", err)
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &TwilioSMSSender{client: client, fromNumber: from}, nil
}

// ValidateAndCanonicalizeRecipient validates an SMS recipient as E.164.
func (s *TwilioSMSSender) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

// SendMessage sends one SMS via the Twilio API.
func (s *TwilioSMSSender) SendMessage(ctx context.Context, to string, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.fromNumber)
	params.SetBody(body)

	_, err := s.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendMessage failed", "to", to, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}

	slog.Debug("Twilio message sent", "to", to)
	return nil
}

// MockSender records sent messages for tests.
type MockSender struct {
	SentMessages []SentMessage
	Err          error
}

// SentMessage is one recorded delivery.
type SentMessage struct {
	To   string
	Body string
}

// NewMockSender creates an empty mock sender.
func NewMockSender() *MockSender {
	return &MockSender{SentMessages: []SentMessage{}}
}

// ValidateAndCanonicalizeRecipient applies the real E.164 rules.
func (m *MockSender) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

// SendMessage records the message, returning the configured error if set.
func (m *MockSender) SendMessage(ctx context.Context, to string, body string) error {
	if m.Err != nil {
		return m.Err
	}
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return nil
}
