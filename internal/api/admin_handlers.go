package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coachpipe/coachpipe/internal/billing"
	"github.com/coachpipe/coachpipe/internal/models"
)

// maxWebhookBody caps the Stripe webhook payload size.
const maxWebhookBody = 1 << 20

// sweepHandler triggers one check-in sweep. It accepts either a bearer key or
// the X-Cron-Secret header, so both admins and the cron service can call it.
func (s *Server) sweepHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if s.deps.Sweeper == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Sweep not configured"))
		return
	}
	if !s.sweepAuthorized(r) {
		slog.Warn("Server.sweepHandler: unauthorized sweep attempt")
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("Unauthorized"))
		return
	}

	counts, err := s.deps.Sweeper.Run(r.Context())
	if err != nil {
		slog.Error("Server.sweepHandler: sweep failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Sweep failed"))
		return
	}

	slog.Info("Server.sweepHandler: sweep completed", "counts", counts)
	writeJSONResponse(w, http.StatusOK, models.Success(counts))
}

// sweepAuthorized checks the two accepted credentials in constant time.
func (s *Server) sweepAuthorized(r *http.Request) bool {
	if s.opts.SweepAPIKey != "" {
		if token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); found {
			if subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.SweepAPIKey)) == 1 {
				return true
			}
		}
	}
	if s.opts.CronSecret != "" {
		if secret := r.Header.Get("X-Cron-Secret"); secret != "" {
			if subtle.ConstantTimeCompare([]byte(secret), []byte(s.opts.CronSecret)) == 1 {
				return true
			}
		}
	}
	return false
}

type checkoutRequest struct {
	Token string `json:"token"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

// checkoutHandler exchanges a signed checkout link token for a Stripe checkout
// session URL.
func (s *Server) checkoutHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if s.deps.Tokens == nil || s.deps.Stripe == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Billing not configured"))
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Token == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: token"))
		return
	}

	claims, err := s.deps.Tokens.Verify(req.Token, time.Now())
	if err != nil {
		slog.Warn("Server.checkoutHandler: token rejected", "error", err)
		status := http.StatusBadRequest
		if errors.Is(err, billing.ErrTokenExpired) {
			status = http.StatusGone
		}
		writeJSONResponse(w, status, models.Error("Invalid or expired checkout link"))
		return
	}

	u, err := s.deps.Store.GetUserByID(claims.UserID)
	if err != nil {
		slog.Error("Server.checkoutHandler: user lookup failed", "error", err, "userID", claims.UserID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
		return
	}
	if u == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("User not found"))
		return
	}

	url, err := s.deps.Stripe.CreateCheckoutURL(*u)
	if err != nil {
		slog.Error("Server.checkoutHandler: checkout session failed", "error", err, "userID", u.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to start checkout"))
		return
	}

	slog.Info("Server.checkoutHandler: checkout session issued", "userID", u.ID)
	writeJSONResponse(w, http.StatusOK, models.Success(checkoutResponse{URL: url}))
}

// stripeWebhookHandler applies Stripe subscription lifecycle events. Signature
// failures return 400 so Stripe retries transient problems but surfaces
// misconfiguration.
func (s *Server) stripeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if s.deps.Stripe == nil {
		http.Error(w, "Billing not configured", http.StatusServiceUnavailable)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		slog.Warn("Server.stripeWebhookHandler: failed to read payload", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if err := s.deps.Stripe.HandleWebhook(payload, r.Header.Get("Stripe-Signature")); err != nil {
		slog.Error("Server.stripeWebhookHandler: webhook rejected", "error", err)
		http.Error(w, "Webhook error", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// healthHandler reports liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}
