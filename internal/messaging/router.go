package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coachpipe/coachpipe/internal/models"
)

// Router picks the best delivery channel for a user: push when a token is on
// file (Expo tokens to Expo, raw device tokens to APNs), otherwise SMS to the
// user's phone number. Any sender may be nil when that channel is not
// configured.
type Router struct {
	sms  Sender
	expo Sender
	apns Sender
}

// NewRouter creates a delivery router over the configured channel senders.
func NewRouter(sms, expo, apns Sender) *Router {
	slog.Debug("Messaging router created", "hasSMS", sms != nil, "hasExpo", expo != nil, "hasAPNs", apns != nil)
	return &Router{sms: sms, expo: expo, apns: apns}
}

// senderFor resolves the channel and canonical recipient for a user.
func (r *Router) senderFor(u models.User) (Sender, string, error) {
	if u.PushToken != "" {
		if IsExpoPushToken(u.PushToken) {
			if r.expo != nil {
				return r.expo, u.PushToken, nil
			}
		} else if r.apns != nil {
			if to, err := r.apns.ValidateAndCanonicalizeRecipient(u.PushToken); err == nil {
				return r.apns, to, nil
			}
		}
	}
	if u.Phone != "" && r.sms != nil {
		to, err := r.sms.ValidateAndCanonicalizeRecipient(u.Phone)
		if err != nil {
			return nil, "", fmt.Errorf("invalid phone for user %s: %w", u.ID, err)
		}
		return r.sms, to, nil
	}
	return nil, "", ErrNoDeliveryChannel
}

// Deliver sends one message body to the user over their best channel.
func (r *Router) Deliver(ctx context.Context, u models.User, body string) error {
	sender, to, err := r.senderFor(u)
	if err != nil {
		return err
	}
	if err := sender.SendMessage(ctx, to, body); err != nil {
		return fmt.Errorf("failed to deliver to user %s: %w", u.ID, err)
	}
	return nil
}

// DeliverBubbles sends a sequence of message bubbles in order, stopping at the
// first failure.
func (r *Router) DeliverBubbles(ctx context.Context, u models.User, bubbles []string) error {
	sender, to, err := r.senderFor(u)
	if err != nil {
		return err
	}
	for _, bubble := range bubbles {
		if err := sender.SendMessage(ctx, to, bubble); err != nil {
			return fmt.Errorf("failed to deliver to user %s: %w", u.ID, err)
		}
	}
	return nil
}
