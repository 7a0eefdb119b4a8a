// Package api provides the HTTP surface of CoachPipe: the Twilio SMS webhook,
// the app and sandbox chat endpoints, the check-in sweep trigger, and the
// Stripe checkout and webhook glue.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	twilioclient "github.com/twilio/twilio-go/client"

	"github.com/coachpipe/coachpipe/internal/auth"
	"github.com/coachpipe/coachpipe/internal/billing"
	"github.com/coachpipe/coachpipe/internal/flow"
	"github.com/coachpipe/coachpipe/internal/messaging"
	"github.com/coachpipe/coachpipe/internal/scheduler"
	"github.com/coachpipe/coachpipe/internal/store"
)

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = ":8080"

// requestTimeout bounds one inbound turn, including the language-model call.
const requestTimeout = 60 * time.Second

// Opts holds configuration options for the API server.
type Opts struct {
	Addr        string
	PublicURL   string
	SweepAPIKey string
	CronSecret  string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithPublicURL sets the externally visible base URL, used to reconstruct the
// request URL during Twilio signature validation.
func WithPublicURL(url string) Option {
	return func(o *Opts) { o.PublicURL = url }
}

// WithSweepAPIKey sets the bearer key accepted on the sweep endpoint.
func WithSweepAPIKey(key string) Option {
	return func(o *Opts) { o.SweepAPIKey = key }
}

// WithCronSecret sets the shared secret accepted in the X-Cron-Secret header
// on the sweep endpoint.
func WithCronSecret(secret string) Option {
	return func(o *Opts) { o.CronSecret = secret }
}

// Deps are the wired modules the server dispatches into. Sweeper, Stripe,
// Tokens, Sessions, and TwilioValidator may be nil; their endpoints then
// report the feature as unavailable.
type Deps struct {
	Store           store.Store
	Engine          *flow.Engine
	TestEngine      *flow.Engine
	Router          *messaging.Router
	Sweeper         *scheduler.Sweeper
	Stripe          *billing.StripeProvider
	Tokens          *billing.TokenIssuer
	Sessions        *auth.SessionManager
	TwilioValidator *twilioclient.RequestValidator
}

// Server routes HTTP requests into the conversation engine, sweeper, and
// billing modules.
type Server struct {
	opts Opts
	deps Deps
}

// NewServer creates an API server over the wired modules.
func NewServer(deps Deps, opts ...Option) (*Server, error) {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	if deps.Store == nil {
		return nil, errors.New("api server requires a store")
	}
	if deps.Engine == nil {
		return nil, errors.New("api server requires a conversation engine")
	}
	slog.Debug("API server created", "addr", cfg.Addr,
		"hasSweeper", deps.Sweeper != nil, "hasStripe", deps.Stripe != nil,
		"hasTwilioValidator", deps.TwilioValidator != nil)
	return &Server{opts: cfg, deps: deps}, nil
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook/sms", s.smsWebhookHandler)
	mux.HandleFunc("POST /webhook/stripe", s.stripeWebhookHandler)
	mux.HandleFunc("POST /api/session", s.sessionHandler)
	mux.HandleFunc("POST /api/chat", s.chatHandler)
	mux.HandleFunc("POST /api/test-chat", s.testChatHandler)
	mux.HandleFunc("POST /api/checkin-sweep", s.sweepHandler)
	mux.HandleFunc("POST /api/checkout", s.checkoutHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	return mux
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
