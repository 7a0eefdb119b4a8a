package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultExpoPushURL is the Expo push delivery endpoint.
const DefaultExpoPushURL = "https://exp.host/--/api/v2/push/send"

// DefaultPushTitle is the notification title for coach messages.
const DefaultPushTitle = "Coach"

// IsExpoPushToken reports whether a push token is an Expo token rather than a
// raw APNs device token.
func IsExpoPushToken(token string) bool {
	return strings.HasPrefix(token, "ExponentPushToken[") && strings.HasSuffix(token, "]")
}

// ExpoPushSender delivers push notifications through the Expo push service.
type ExpoPushSender struct {
	url    string
	client *http.Client
}

// NewExpoPushSender creates an Expo push sender. An empty url selects the
// default Expo endpoint.
func NewExpoPushSender(url string) *ExpoPushSender {
	if url == "" {
		url = DefaultExpoPushURL
	}
	return &ExpoPushSender{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// ValidateAndCanonicalizeRecipient validates an Expo push token.
func (s *ExpoPushSender) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	recipient = strings.TrimSpace(recipient)
	if !IsExpoPushToken(recipient) {
		return "", errors.New("recipient is not an Expo push token")
	}
	return recipient, nil
}

type expoPushRequest struct {
	To    string `json:"to"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound string `json:"sound"`
}

type expoPushResponse struct {
	Data struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"data"`
}

// SendMessage posts one notification to the Expo push endpoint.
func (s *ExpoPushSender) SendMessage(ctx context.Context, to string, body string) error {
	payload, err := json.Marshal(expoPushRequest{
		To:    to,
		Title: DefaultPushTitle,
		Body:  body,
		Sound: "default",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Error("Expo push request failed", "error", err)
		return fmt.Errorf("failed to send push notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Error("Expo push rejected", "status", resp.StatusCode, "body", string(raw))
		return fmt.Errorf("expo push returned status %d", resp.StatusCode)
	}

	var parsed expoPushResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err == nil && parsed.Data.Status == "error" {
		slog.Error("Expo push ticket error", "message", parsed.Data.Message)
		return fmt.Errorf("expo push ticket error: %s", parsed.Data.Message)
	}

	slog.Debug("Expo push sent")
	return nil
}
