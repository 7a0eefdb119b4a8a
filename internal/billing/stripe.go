package billing

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v81"
	checkoutsession "github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/coachpipe/coachpipe/internal/models"
	"github.com/coachpipe/coachpipe/internal/store"
)

// StripeOpts holds configuration for the Stripe provider.
type StripeOpts struct {
	SecretKey     string
	WebhookSecret string
	PriceID       string
	AppURL        string
}

// StripeProvider creates checkout sessions and applies subscription lifecycle
// webhooks onto user records.
type StripeProvider struct {
	st   store.Store
	opts StripeOpts
}

// NewStripeProvider creates a Stripe provider and sets the global API key.
func NewStripeProvider(st store.Store, opts StripeOpts) *StripeProvider {
	stripe.Key = opts.SecretKey
	slog.Debug("Stripe provider initialized", "priceIDSet", opts.PriceID != "", "webhookSecretSet", opts.WebhookSecret != "")
	return &StripeProvider{st: st, opts: opts}
}

// CreateCheckoutURL creates a subscription checkout session for the user and
// returns its hosted URL. The user ID is carried in both session and
// subscription metadata so every later webhook can be tied back to the user.
func (s *StripeProvider) CreateCheckoutURL(u models.User) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(s.opts.AppURL + "/subscribed?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(s.opts.AppURL + "/checkout/canceled"),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.opts.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{"user_id": u.ID},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": u.ID},
		},
	}
	if u.StripeCustomerID != "" {
		params.Customer = stripe.String(u.StripeCustomerID)
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	slog.Debug("Stripe checkout session created", "userID", u.ID, "sessionID", sess.ID)
	return sess.URL, nil
}

// HandleWebhook verifies a Stripe webhook signature and applies the event.
func (s *StripeProvider) HandleWebhook(payload []byte, signature string) error {
	// API version mismatches are tolerated; Stripe keeps the fields we read
	// backwards compatible.
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.opts.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return fmt.Errorf("failed to verify webhook signature: %w", err)
	}

	slog.Debug("Stripe webhook received", "eventType", event.Type)

	switch event.Type {
	case "checkout.session.completed":
		return s.handleCheckoutCompleted(event.Data.Raw)
	case "customer.subscription.created", "customer.subscription.updated":
		return s.handleSubscriptionChanged(event.Data.Raw)
	case "customer.subscription.deleted":
		return s.handleSubscriptionDeleted(event.Data.Raw)
	default:
		slog.Debug("Stripe webhook event ignored", "eventType", event.Type)
		return nil
	}
}

func (s *StripeProvider) handleCheckoutCompleted(data json.RawMessage) error {
	var sess struct {
		ID       string            `json:"id"`
		Customer string            `json:"customer"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(data, &sess); err != nil {
		return fmt.Errorf("failed to parse checkout session: %w", err)
	}

	u, err := s.userFromMetadata(sess.Metadata)
	if err != nil || u == nil {
		return err
	}

	u.StripeCustomerID = sess.Customer
	if err := s.st.SaveUser(*u); err != nil {
		return fmt.Errorf("failed to save user %s: %w", u.ID, err)
	}

	slog.Info("Stripe checkout completed", "userID", u.ID, "customerID", sess.Customer)
	return nil
}

func (s *StripeProvider) handleSubscriptionChanged(data json.RawMessage) error {
	var sub struct {
		ID               string            `json:"id"`
		Customer         string            `json:"customer"`
		Status           string            `json:"status"`
		CurrentPeriodEnd int64             `json:"current_period_end"`
		Metadata         map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(data, &sub); err != nil {
		return fmt.Errorf("failed to parse subscription: %w", err)
	}

	u, err := s.userFromMetadata(sub.Metadata)
	if err != nil || u == nil {
		return err
	}

	u.SubscriptionStatus = mapStripeStatus(sub.Status)
	u.SubscriptionEndsAt = time.Unix(sub.CurrentPeriodEnd, 0)
	if sub.Customer != "" {
		u.StripeCustomerID = sub.Customer
	}
	if err := s.st.SaveUser(*u); err != nil {
		return fmt.Errorf("failed to save user %s: %w", u.ID, err)
	}

	slog.Info("Stripe subscription applied", "userID", u.ID, "status", u.SubscriptionStatus, "endsAt", u.SubscriptionEndsAt)
	return nil
}

func (s *StripeProvider) handleSubscriptionDeleted(data json.RawMessage) error {
	var sub struct {
		ID       string            `json:"id"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(data, &sub); err != nil {
		return fmt.Errorf("failed to parse subscription: %w", err)
	}

	u, err := s.userFromMetadata(sub.Metadata)
	if err != nil || u == nil {
		return err
	}

	u.SubscriptionStatus = models.SubscriptionCanceled
	if err := s.st.SaveUser(*u); err != nil {
		return fmt.Errorf("failed to save user %s: %w", u.ID, err)
	}

	slog.Info("Stripe subscription canceled", "userID", u.ID)
	return nil
}

// userFromMetadata resolves the user carried in event metadata. A missing or
// unknown user is logged and skipped, not an error: webhooks for users deleted
// on our side must not be retried forever.
func (s *StripeProvider) userFromMetadata(metadata map[string]string) (*models.User, error) {
	userID := metadata["user_id"]
	if userID == "" {
		slog.Warn("Stripe event has no user_id metadata, skipping")
		return nil, nil
	}
	u, err := s.st.GetUserByID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", userID, err)
	}
	if u == nil {
		slog.Warn("Stripe event references unknown user, skipping", "userID", userID)
		return nil, nil
	}
	return u, nil
}

func mapStripeStatus(status string) models.SubscriptionStatus {
	switch status {
	case "active", "trialing":
		return models.SubscriptionActive
	case "past_due":
		return models.SubscriptionPastDue
	case "canceled", "unpaid", "incomplete_expired":
		return models.SubscriptionCanceled
	default:
		return models.SubscriptionNone
	}
}
