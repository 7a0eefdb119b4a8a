package messaging

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	apnsProductionHost = "https://api.push.apple.com"
	apnsSandboxHost    = "https://api.sandbox.push.apple.com"

	// Apple requires provider tokens be refreshed at least hourly and reused
	// for at least 20 minutes.
	apnsTokenLifetime = 50 * time.Minute
)

// apnsDeviceTokenRegex matches hex APNs device tokens.
var apnsDeviceTokenRegex = regexp.MustCompile(`^[0-9a-fA-F]{64,}$`)

// APNSOpts holds configuration for the APNs provider-token sender.
type APNSOpts struct {
	KeyFile string // path to the .p8 signing key
	KeyID   string
	TeamID  string
	Topic   string // app bundle identifier
	Sandbox bool   // send to the sandbox gateway first
}

// APNSSender delivers push notifications directly to Apple's APNs gateway,
// authenticating with an ES256 provider token.
type APNSSender struct {
	opts   APNSOpts
	key    *ecdsa.PrivateKey
	client *http.Client

	mu          sync.Mutex
	cachedToken string
	tokenIssued time.Time
}

// NewAPNSSender loads the .p8 signing key and creates an APNs sender.
func NewAPNSSender(opts APNSOpts) (*APNSSender, error) {
	if opts.KeyFile == "" || opts.KeyID == "" || opts.TeamID == "" || opts.Topic == "" {
		return nil, errors.New("APNs key file, key ID, team ID, and topic must all be provided")
	}

	raw, err := os.ReadFile(opts.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read APNs key file: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("APNs key file is not valid PEM")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs signing key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("APNs signing key is not an ECDSA key")
	}

	slog.Debug("APNs sender created", "keyID", opts.KeyID, "topic", opts.Topic, "sandbox", opts.Sandbox)
	return &APNSSender{
		opts:   opts,
		key:    key,
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// ValidateAndCanonicalizeRecipient validates a raw APNs device token.
func (s *APNSSender) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	recipient = strings.ToLower(strings.TrimSpace(recipient))
	if !apnsDeviceTokenRegex.MatchString(recipient) {
		return "", errors.New("recipient is not an APNs device token")
	}
	return recipient, nil
}

// providerToken returns a cached ES256 provider token, minting a fresh one when
// the cached token is past its lifetime.
func (s *APNSSender) providerToken(now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cachedToken != "" && now.Sub(s.tokenIssued) < apnsTokenLifetime {
		return s.cachedToken, nil
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": s.opts.TeamID,
		"iat": now.Unix(),
	})
	token.Header["kid"] = s.opts.KeyID

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign APNs provider token: %w", err)
	}
	s.cachedToken = signed
	s.tokenIssued = now
	return signed, nil
}

type apnsPayload struct {
	Aps struct {
		Alert struct {
			Title string `json:"title"`
			Body  string `json:"body"`
		} `json:"alert"`
		Sound string `json:"sound"`
	} `json:"aps"`
}

type apnsError struct {
	Reason string `json:"reason"`
}

// SendMessage pushes one alert notification. A BadDeviceToken rejection is
// retried once against the other gateway, since device tokens are minted per
// environment and mismatches are common during rollout.
func (s *APNSSender) SendMessage(ctx context.Context, to string, body string) error {
	var p apnsPayload
	p.Aps.Alert.Title = DefaultPushTitle
	p.Aps.Alert.Body = body
	p.Aps.Sound = "default"
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal APNs payload: %w", err)
	}

	primary, secondary := apnsProductionHost, apnsSandboxHost
	if s.opts.Sandbox {
		primary, secondary = apnsSandboxHost, apnsProductionHost
	}

	reason, err := s.post(ctx, primary, to, payload)
	if err != nil {
		return err
	}
	if reason == "BadDeviceToken" {
		slog.Debug("APNs device token rejected, retrying other gateway", "primary", primary)
		reason, err = s.post(ctx, secondary, to, payload)
		if err != nil {
			return err
		}
	}
	if reason != "" {
		slog.Error("APNs push rejected", "reason", reason)
		return fmt.Errorf("apns push rejected: %s", reason)
	}

	slog.Debug("APNs push sent")
	return nil
}

// post delivers the payload to one gateway, returning Apple's rejection reason
// (empty on success) or a transport error.
func (s *APNSSender) post(ctx context.Context, host, deviceToken string, payload []byte) (string, error) {
	bearer, err := s.providerToken(time.Now())
	if err != nil {
		return "", err
	}

	url := host + "/3/device/" + deviceToken
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build APNs request: %w", err)
	}
	req.Header.Set("authorization", "bearer "+bearer)
	req.Header.Set("apns-topic", s.opts.Topic)
	req.Header.Set("apns-push-type", "alert")
	req.Header.Set("apns-priority", "10")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach APNs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return "", nil
	}

	var parsed apnsError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.Reason == "" {
		return "", fmt.Errorf("apns returned status %d", resp.StatusCode)
	}
	return parsed.Reason, nil
}
