package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/coachpipe/coachpipe/internal/genai"
	"github.com/coachpipe/coachpipe/internal/models"
	"github.com/coachpipe/coachpipe/internal/util"
	"github.com/openai/openai-go"
)

// BubbleSeparator splits one engine reply into display bubbles.
const BubbleSeparator = "\n\n"

// CheckoutLinker produces a freshly signed checkout URL for the paywall message.
type CheckoutLinker interface {
	CheckoutURL(userID, phone string) string
}

// Result is the outcome of one conversation turn: the state transition plus the
// outbound reply text (bubble-separated, never empty).
type Result struct {
	Transition
	Reply string
}

// Engine maps (user state, inbound message, history) to (state update, reply).
// One engine instance is shared by the SMS, app-chat, and test-chat channels;
// the channels differ only in I/O.
type Engine struct {
	genaiClient genai.ClientInterface
	checkout    CheckoutLinker
	historyCap  int // max history messages sent to the model; <= 0 means no cap
}

// NewEngine creates a conversation engine. genaiClient may be nil, in which case
// every reply comes from the deterministic fallback. checkout may be nil to
// disable the paywall override.
func NewEngine(genaiClient genai.ClientInterface, checkout CheckoutLinker) *Engine {
	slog.Debug("Engine created", "hasGenAI", genaiClient != nil, "hasCheckout", checkout != nil)
	return &Engine{genaiClient: genaiClient, checkout: checkout}
}

// NewEngineWithHistoryCap creates an engine that sends at most historyCap prior
// messages to the model, used by the test-chat channel to bound wire size.
func NewEngineWithHistoryCap(genaiClient genai.ClientInterface, checkout CheckoutLinker, historyCap int) *Engine {
	e := NewEngine(genaiClient, checkout)
	e.historyCap = historyCap
	return e
}

// HandleInbound runs one conversation turn. It never fails: language-model
// errors and empty completions are replaced by the deterministic fallback.
func (e *Engine) HandleInbound(ctx context.Context, u models.User, inbound string, history []models.Message, activeGoals []models.Goal, now time.Time) Result {
	inbound = util.SanitizeText(inbound, models.MaxMessageLength)
	slog.Debug("Engine.HandleInbound", "userID", u.ID, "step", u.OnboardingStep, "historyLen", len(history))

	t := AdvanceOnboarding(u, inbound, len(history) > 0, activeGoals, now)

	goals := activeGoals
	if t.ReplaceGoals || t.CheckinRecorded {
		goals = t.Goals
	}

	reply := e.generateReply(ctx, t.User, inbound, history, goals)

	// Completing onboarding without a subscription swaps the reply for the
	// payment wall with a freshly signed checkout link.
	if t.Completed && !t.User.Subscribed(now) && e.checkout != nil {
		reply = paywallMessage(t.User, e.checkout.CheckoutURL(t.User.ID, t.User.Phone))
	}

	slog.Debug("Engine.HandleInbound done", "userID", u.ID, "stepBefore", u.OnboardingStep, "stepAfter", t.User.OnboardingStep, "completed", t.Completed)
	return Result{Transition: t, Reply: reply}
}

// generateReply asks the language model for the next message, falling back to
// the deterministic reply on any failure or empty content.
func (e *Engine) generateReply(ctx context.Context, u models.User, inbound string, history []models.Message, goals []models.Goal) string {
	if e.genaiClient == nil {
		return FallbackReply(u, inbound)
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(SystemPromptForStep(u, goals)),
	}
	for _, m := range cappedHistory(history, e.historyCap) {
		switch m.Role {
		case models.RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		}
	}
	messages = append(messages, openai.UserMessage(inbound))

	reply, err := e.genaiClient.GenerateWithMessages(ctx, messages)
	if err != nil {
		slog.Warn("Engine reply generation failed, using fallback", "error", err, "userID", u.ID, "step", u.OnboardingStep)
		return FallbackReply(u, inbound)
	}
	if strings.TrimSpace(reply) == "" {
		slog.Warn("Engine reply generation returned empty content, using fallback", "userID", u.ID, "step", u.OnboardingStep)
		return FallbackReply(u, inbound)
	}
	return reply
}

func cappedHistory(history []models.Message, limit int) []models.Message {
	if limit > 0 && len(history) > limit {
		return history[len(history)-limit:]
	}
	return history
}

func paywallMessage(u models.User, checkoutURL string) string {
	name := u.Name
	if name == "" {
		name = "friend"
	}
	return fmt.Sprintf("Love it, %s — you're all set up.\n\n"+
		"One last thing: CoachPipe is a paid service after the trial. Grab your subscription here and I'll start holding you to it:\n\n%s",
		name, checkoutURL)
}

// SplitBubbles splits an engine reply on the bubble separator, trimming each
// bubble and dropping empties. Consumers pace delivery of the returned slice.
func SplitBubbles(text string) []string {
	var bubbles []string
	for _, part := range strings.Split(text, BubbleSeparator) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			bubbles = append(bubbles, trimmed)
		}
	}
	return bubbles
}
