// Package billing implements subscription gating: HMAC-signed checkout link
// tokens and the Stripe checkout/webhook integration.
package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrTokenInvalid is returned for malformed or tampered tokens.
	ErrTokenInvalid = errors.New("checkout token is invalid")
	// ErrTokenExpired is returned for well-formed tokens past their expiry.
	ErrTokenExpired = errors.New("checkout token has expired")
)

// TokenClaims are the verified contents of a checkout link token.
type TokenClaims struct {
	UserID    string
	Phone     string
	ExpiresAt time.Time
}

// TokenIssuer signs and verifies checkout link tokens. The wire format is
// base64url(payload + ":" + hexHmacSha256(payload)) with
// payload = "<userID>:<phone>:<expiresAtEpochMs>"; the concatenation order and
// hex signature encoding are a compatibility contract with issued links.
type TokenIssuer struct {
	secret []byte
	appURL string
	ttl    time.Duration
}

// NewTokenIssuer creates a token issuer. appURL is the public base URL used to
// build checkout links; ttl is the lifetime of freshly issued tokens.
func NewTokenIssuer(secret, appURL string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		appURL: strings.TrimRight(appURL, "/"),
		ttl:    ttl,
	}
}

// Sign issues a token for the user that expires at the given time.
func (t *TokenIssuer) Sign(userID, phone string, expiresAt time.Time) string {
	payload := fmt.Sprintf("%s:%s:%d", userID, phone, expiresAt.UnixMilli())
	return base64.RawURLEncoding.EncodeToString([]byte(payload + ":" + t.signature(payload)))
}

// Verify checks a token's signature and expiry, returning its claims.
func (t *TokenIssuer) Verify(token string, now time.Time) (TokenClaims, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return TokenClaims{}, ErrTokenInvalid
	}

	// The signature is everything after the last colon; the payload keeps its
	// own colons.
	idx := strings.LastIndexByte(string(decoded), ':')
	if idx < 0 {
		return TokenClaims{}, ErrTokenInvalid
	}
	payload, signature := string(decoded[:idx]), string(decoded[idx+1:])

	if !hmac.Equal([]byte(signature), []byte(t.signature(payload))) {
		return TokenClaims{}, ErrTokenInvalid
	}

	parts := strings.Split(payload, ":")
	if len(parts) != 3 {
		return TokenClaims{}, ErrTokenInvalid
	}
	expiresMs, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return TokenClaims{}, ErrTokenInvalid
	}
	expiresAt := time.UnixMilli(expiresMs)
	if now.After(expiresAt) {
		return TokenClaims{}, ErrTokenExpired
	}

	return TokenClaims{UserID: parts[0], Phone: parts[1], ExpiresAt: expiresAt}, nil
}

// CheckoutURL builds a checkout link containing a freshly signed token.
func (t *TokenIssuer) CheckoutURL(userID, phone string) string {
	token := t.Sign(userID, phone, time.Now().Add(t.ttl))
	return t.appURL + "/checkout?token=" + url.QueryEscape(token)
}

func (t *TokenIssuer) signature(payload string) string {
	mac := hmac.New(sha256.New, t.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
