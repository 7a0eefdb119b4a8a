package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/coachpipe/coachpipe/internal/models"
	"github.com/openai/openai-go"
)

type mockGenAI struct {
	reply    string
	err      error
	messages []openai.ChatCompletionMessageParamUnion
}

func (m *mockGenAI) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return m.reply, m.err
}

func (m *mockGenAI) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	m.messages = messages
	return m.reply, m.err
}

type mockLinker struct{ url string }

func (m *mockLinker) CheckoutURL(userID, phone string) string { return m.url }

func TestHandleInboundUsesModelReply(t *testing.T) {
	gen := &mockGenAI{reply: "Nice to meet you, Marcus.\n\nHow old are you?"}
	engine := NewEngine(gen, nil)

	u := testUser(models.StepGreet)
	history := []models.Message{{UserID: u.ID, Role: models.RoleAssistant, Content: "welcome"}}
	res := engine.HandleInbound(context.Background(), u, "Marcus", history, nil, time.Now())

	if res.Reply != gen.reply {
		t.Errorf("expected model reply, got %q", res.Reply)
	}
	if res.User.OnboardingStep != models.StepProbe {
		t.Errorf("expected step %d, got %d", models.StepProbe, res.User.OnboardingStep)
	}
	// System prompt + one history message + the inbound.
	if len(gen.messages) != 3 {
		t.Errorf("expected 3 model messages, got %d", len(gen.messages))
	}
}

func TestHandleInboundFallsBackOnModelError(t *testing.T) {
	engine := NewEngine(&mockGenAI{err: errors.New("rate limited")}, nil)

	res := engine.HandleInbound(context.Background(), testUser(models.StepGreet), "hey", nil, nil, time.Now())
	if res.Reply == "" {
		t.Fatal("expected non-empty fallback reply")
	}
	if !strings.Contains(res.Reply, "Coach") {
		t.Errorf("expected step-zero fallback, got %q", res.Reply)
	}
}

func TestHandleInboundFallsBackOnEmptyReply(t *testing.T) {
	engine := NewEngine(&mockGenAI{reply: "   "}, nil)

	res := engine.HandleInbound(context.Background(), testUser(models.StepGreet), "hey", nil, nil, time.Now())
	if strings.TrimSpace(res.Reply) == "" {
		t.Error("expected non-empty fallback reply")
	}
}

func TestHandleInboundNilClientUsesFallback(t *testing.T) {
	engine := NewEngine(nil, nil)

	res := engine.HandleInbound(context.Background(), testUser(models.StepGreet), "hey", nil, nil, time.Now())
	if res.Reply == "" {
		t.Error("expected non-empty fallback reply")
	}
}

func TestHandleInboundPaywallOverridesReply(t *testing.T) {
	gen := &mockGenAI{reply: "Welcome aboard!"}
	engine := NewEngine(gen, &mockLinker{url: "https://coachpipe.app/checkout?token=abc"})

	u := testUser(models.StepConfirmation)
	u.Name = "Marcus"
	res := engine.HandleInbound(context.Background(), u, "let's do it", nil, nil, time.Now())

	if !res.Completed {
		t.Fatal("expected completion")
	}
	if !strings.Contains(res.Reply, "https://coachpipe.app/checkout?token=abc") {
		t.Errorf("expected checkout link in reply, got %q", res.Reply)
	}
	if !strings.Contains(res.Reply, "Marcus") {
		t.Errorf("expected name in paywall message, got %q", res.Reply)
	}
}

func TestHandleInboundNoPaywallWhenSubscribed(t *testing.T) {
	now := time.Now()
	gen := &mockGenAI{reply: "Welcome aboard!"}
	engine := NewEngine(gen, &mockLinker{url: "https://coachpipe.app/checkout?token=abc"})

	u := testUser(models.StepConfirmation)
	u.SubscriptionStatus = models.SubscriptionActive
	u.SubscriptionEndsAt = now.Add(30 * 24 * time.Hour)
	res := engine.HandleInbound(context.Background(), u, "yes", nil, nil, now)

	if !res.Completed {
		t.Fatal("expected completion")
	}
	if res.Reply != "Welcome aboard!" {
		t.Errorf("expected model reply for subscribed user, got %q", res.Reply)
	}
}

func TestHandleInboundHistoryCap(t *testing.T) {
	gen := &mockGenAI{reply: "ok"}
	engine := NewEngineWithHistoryCap(gen, nil, 2)

	history := []models.Message{
		{Role: models.RoleUser, Content: "one"},
		{Role: models.RoleAssistant, Content: "two"},
		{Role: models.RoleUser, Content: "three"},
		{Role: models.RoleAssistant, Content: "four"},
	}
	engine.HandleInbound(context.Background(), testUser(models.StepComplete), "hey", history, nil, time.Now())

	// System prompt + 2 capped history messages + the inbound.
	if len(gen.messages) != 4 {
		t.Errorf("expected 4 model messages with cap 2, got %d", len(gen.messages))
	}
}

func TestSplitBubbles(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"one bubble", []string{"one bubble"}},
		{"first\n\nsecond", []string{"first", "second"}},
		{"first\n\n\n\nsecond\n\n", []string{"first", "second"}},
		{"  \n\n  ", nil},
	}
	for _, tt := range tests {
		got := SplitBubbles(tt.text)
		if len(got) != len(tt.want) {
			t.Errorf("SplitBubbles(%q) = %v, want %v", tt.text, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("bubble %d = %q, want %q", i, got[i], tt.want[i])
			}
		}
	}
}

func TestFallbackReplyNeverEmpty(t *testing.T) {
	for step := models.StepGreet; step <= models.StepComplete; step++ {
		u := testUser(step)
		if reply := FallbackReply(u, "anything"); strings.TrimSpace(reply) == "" {
			t.Errorf("empty fallback at step %d", step)
		}
	}
}
