package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coachpipe/coachpipe/internal/flow"
	"github.com/coachpipe/coachpipe/internal/messaging"
	"github.com/coachpipe/coachpipe/internal/models"
	"github.com/coachpipe/coachpipe/internal/util"
)

// emptyTwiML acknowledges a Twilio webhook without an inline reply; outbound
// bubbles go through the messaging router instead.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// runTurn feeds one inbound message through the engine and persists the
// outcome: user row, goal changes, and both sides of the exchange.
func (s *Server) runTurn(ctx context.Context, u models.User, inbound string) (flow.Result, error) {
	history, err := s.deps.Store.GetMessages(u.ID)
	if err != nil {
		return flow.Result{}, fmt.Errorf("failed to load history: %w", err)
	}
	goals, err := s.deps.Store.GetActiveGoals(u.ID)
	if err != nil {
		return flow.Result{}, fmt.Errorf("failed to load goals: %w", err)
	}

	now := time.Now()
	res := s.deps.Engine.HandleInbound(ctx, u, inbound, history, goals, now)

	if err := s.deps.Store.SaveUser(res.User); err != nil {
		return flow.Result{}, fmt.Errorf("failed to save user: %w", err)
	}
	if res.ReplaceGoals {
		if err := s.deps.Store.ReplaceGoals(res.User.ID, res.Goals); err != nil {
			return flow.Result{}, fmt.Errorf("failed to replace goals: %w", err)
		}
	} else if res.CheckinRecorded {
		if err := s.deps.Store.UpdateGoalStreaks(res.Goals); err != nil {
			return flow.Result{}, fmt.Errorf("failed to update goal streaks: %w", err)
		}
	}
	// History is best effort: a failed message write never blocks the reply.
	if err := s.deps.Store.AddMessage(models.Message{
		UserID: res.User.ID, Role: models.RoleUser, Content: util.SanitizeText(inbound, models.MaxMessageLength), CreatedAt: now,
	}); err != nil {
		slog.Error("Server.runTurn: failed to record inbound message", "error", err, "userID", res.User.ID)
	}
	if err := s.deps.Store.AddMessage(models.Message{
		UserID: res.User.ID, Role: models.RoleAssistant, Content: res.Reply, CreatedAt: now.Add(time.Millisecond),
	}); err != nil {
		slog.Error("Server.runTurn: failed to record reply", "error", err, "userID", res.User.ID)
	}

	return res, nil
}

// findOrCreateUser resolves an identity to a user row, creating a fresh one on
// first contact.
func (s *Server) findOrCreateUser(identity, phone, pushToken string) (models.User, bool, error) {
	existing, err := s.deps.Store.GetUserByIdentity(identity)
	if err != nil {
		return models.User{}, false, fmt.Errorf("failed to look up user: %w", err)
	}
	if existing != nil {
		return *existing, false, nil
	}
	created, err := s.deps.Store.CreateUser(models.User{
		Identity:  identity,
		Phone:     phone,
		PushToken: pushToken,
	})
	if err != nil {
		return models.User{}, false, fmt.Errorf("failed to create user: %w", err)
	}
	slog.Info("New user created", "userID", created.ID)
	return created, true, nil
}

// smsWebhookHandler handles inbound Twilio SMS. The reply is delivered as
// separate outbound messages, one per bubble, and the webhook itself is
// acknowledged with empty TwiML.
func (s *Server) smsWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.smsWebhookHandler: processing inbound SMS")

	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.smsWebhookHandler: failed to parse form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if !s.validTwilioSignature(r) {
		slog.Warn("Server.smsWebhookHandler: signature validation failed")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")
	if err := models.ValidateInbound(from, body); err != nil {
		slog.Warn("Server.smsWebhookHandler: rejected inbound", "error", err, "fromSet", from != "")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	phone, err := messaging.CanonicalizePhone(from)
	if err != nil {
		slog.Warn("Server.smsWebhookHandler: invalid sender", "error", err)
		http.Error(w, "Invalid sender", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	u, _, err := s.findOrCreateUser(phone, phone, "")
	if err != nil {
		slog.Error("Server.smsWebhookHandler: user resolution failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	res, err := s.runTurn(ctx, u, body)
	if err != nil {
		slog.Error("Server.smsWebhookHandler: turn failed", "error", err, "userID", u.ID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if s.deps.Router != nil {
		if err := s.deps.Router.DeliverBubbles(ctx, res.User, flow.SplitBubbles(res.Reply)); err != nil {
			slog.Error("Server.smsWebhookHandler: reply delivery failed", "error", err, "userID", u.ID)
		}
	}

	w.Header().Set("Content-Type", "text/xml")
	fmt.Fprint(w, emptyTwiML)
}

// validTwilioSignature checks the X-Twilio-Signature header against the posted
// form. Validation is skipped when no validator is configured (local runs).
func (s *Server) validTwilioSignature(r *http.Request) bool {
	if s.deps.TwilioValidator == nil {
		return true
	}
	params := make(map[string]string, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	url := strings.TrimRight(s.opts.PublicURL, "/") + r.URL.RequestURI()
	return s.deps.TwilioValidator.Validate(url, params, r.Header.Get("X-Twilio-Signature"))
}

type sessionRequest struct {
	Identity  string `json:"identity"`
	Phone     string `json:"phone"`
	PushToken string `json:"push_token"`
}

type sessionResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// sessionHandler bootstraps an app session: find-or-create the user for an
// identity, refresh their contact details, and issue a session token.
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if s.deps.Sessions == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Sessions not configured"))
		return
	}

	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if strings.TrimSpace(req.Identity) == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyIdentity.Error()))
		return
	}

	u, created, err := s.findOrCreateUser(req.Identity, req.Phone, req.PushToken)
	if err != nil {
		slog.Error("Server.sessionHandler: user resolution failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
		return
	}

	// Returning users may have a new device or number.
	if !created && (req.PushToken != "" && req.PushToken != u.PushToken ||
		req.Phone != "" && req.Phone != u.Phone) {
		if req.PushToken != "" {
			u.PushToken = req.PushToken
		}
		if req.Phone != "" {
			u.Phone = req.Phone
		}
		if err := s.deps.Store.SaveUser(u); err != nil {
			slog.Error("Server.sessionHandler: failed to refresh contact details", "error", err, "userID", u.ID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
			return
		}
	}

	token, err := s.deps.Sessions.Issue(u.ID, time.Now())
	if err != nil {
		slog.Error("Server.sessionHandler: failed to issue session", "error", err, "userID", u.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
		return
	}

	slog.Debug("Server.sessionHandler: session issued", "userID", u.ID, "created", created)
	writeJSONResponse(w, http.StatusOK, models.Success(sessionResponse{Token: token, User: u}))
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Bubbles []string    `json:"bubbles"`
	User    models.User `json:"user"`
}

// chatHandler runs one authenticated app-chat turn.
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if s.deps.Sessions == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Sessions not configured"))
		return
	}

	userID, ok := s.authenticatedUserID(r)
	if !ok {
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("Unauthorized"))
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := models.ValidateMessageBody(req.Message); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	u, err := s.deps.Store.GetUserByID(userID)
	if err != nil {
		slog.Error("Server.chatHandler: user lookup failed", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
		return
	}
	if u == nil {
		// Valid token for a deleted user.
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("Unauthorized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := s.runTurn(ctx, *u, req.Message)
	if err != nil {
		slog.Error("Server.chatHandler: turn failed", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(chatResponse{
		Bubbles: flow.SplitBubbles(res.Reply),
		User:    res.User,
	}))
}

// authenticatedUserID extracts and verifies the bearer session token.
func (s *Server) authenticatedUserID(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	userID, err := s.deps.Sessions.Verify(token)
	if err != nil {
		return "", false
	}
	return userID, true
}

type testChatRequest struct {
	Message string           `json:"message"`
	User    *models.User     `json:"user"`
	History []models.Message `json:"history"`
	Goals   []models.Goal    `json:"goals"`
}

type testChatResponse struct {
	Bubbles []string      `json:"bubbles"`
	User    models.User   `json:"user"`
	Goals   []models.Goal `json:"goals"`
}

// testChatHandler runs one sandbox turn against caller-supplied state. Nothing
// is persisted; the caller carries the returned state into the next request.
func (s *Server) testChatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	engine := s.deps.TestEngine
	if engine == nil {
		engine = s.deps.Engine
	}

	var req testChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := models.ValidateMessageBody(req.Message); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	u := models.User{
		ID:          "u_sandbox",
		Identity:    "sandbox",
		MorningHour: models.DefaultMorningHour,
		MiddayHour:  models.DefaultMiddayHour,
		EveningHour: models.DefaultEveningHour,
	}
	if req.User != nil {
		u = *req.User
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res := engine.HandleInbound(ctx, u, req.Message, req.History, req.Goals, time.Now())

	goals := req.Goals
	if res.ReplaceGoals || res.CheckinRecorded {
		goals = res.Goals
	}
	writeJSONResponse(w, http.StatusOK, models.Success(testChatResponse{
		Bubbles: flow.SplitBubbles(res.Reply),
		User:    res.User,
		Goals:   goals,
	}))
}
