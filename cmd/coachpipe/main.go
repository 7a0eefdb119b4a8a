package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	twilioclient "github.com/twilio/twilio-go/client"

	"github.com/coachpipe/coachpipe/internal/api"
	"github.com/coachpipe/coachpipe/internal/auth"
	"github.com/coachpipe/coachpipe/internal/billing"
	"github.com/coachpipe/coachpipe/internal/config"
	"github.com/coachpipe/coachpipe/internal/flow"
	"github.com/coachpipe/coachpipe/internal/genai"
	"github.com/coachpipe/coachpipe/internal/lockfile"
	"github.com/coachpipe/coachpipe/internal/messaging"
	"github.com/coachpipe/coachpipe/internal/scheduler"
	"github.com/coachpipe/coachpipe/internal/store"
)

// testChatHistoryCap bounds the history the sandbox channel forwards to the model.
const testChatHistoryCap = 50

func main() {
	cfg := config.Load()
	applyCommandLineFlags(cfg)
	initializeLogger(cfg.Debug)

	slog.Info("Bootstrapping CoachPipe with configured modules")
	if err := run(cfg); err != nil {
		slog.Error("CoachPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("CoachPipe exited successfully")
}

// initializeLogger sets up structured logging.
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// applyCommandLineFlags overlays command line flags onto the environment config.
func applyCommandLineFlags(cfg *config.Config) {
	apiAddr := flag.String("addr", cfg.APIAddr, "API listen address")
	dbDSN := flag.String("db-dsn", cfg.DatabaseDSN, "database DSN (PostgreSQL URL or SQLite path; empty for in-memory)")
	openaiKey := flag.String("openai-key", cfg.OpenAIKey, "OpenAI API key")
	sweepCron := flag.String("sweep-cron", cfg.SweepCron, "cron expression for the check-in sweep")
	debug := flag.Bool("debug", cfg.Debug, "enable debug logging")
	flag.Parse()

	cfg.APIAddr = *apiAddr
	cfg.DatabaseDSN = *dbDSN
	cfg.OpenAIKey = *openaiKey
	cfg.SweepCron = *sweepCron
	cfg.Debug = *debug
}

func run(cfg *config.Config) error {
	// SQLite handles one process at a time; fail fast on a double start
	// instead of corrupting the database.
	if cfg.DatabaseDSN != "" && store.DetectDSNType(cfg.DatabaseDSN) == "sqlite" {
		lock, err := lockfile.Acquire(cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	st, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	gaClient := buildGenAIClient(cfg)
	router := buildRouter(cfg)
	tokens := billing.NewTokenIssuer(cfg.CheckoutSecret, cfg.AppURL, cfg.CheckoutLinkTTL)
	engine := flow.NewEngine(gaClient, tokens)

	deps := api.Deps{
		Store:      st,
		Engine:     engine,
		TestEngine: flow.NewEngineWithHistoryCap(gaClient, tokens, testChatHistoryCap),
		Router:     router,
		Sweeper:    scheduler.NewSweeper(st, router, cfg.TrialDays),
		Tokens:     tokens,
	}
	if cfg.StripeSecretKey != "" {
		deps.Stripe = billing.NewStripeProvider(st, billing.StripeOpts{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			PriceID:       cfg.StripePriceID,
			AppURL:        cfg.AppURL,
		})
	}
	if cfg.SessionSecret != "" {
		deps.Sessions = auth.NewSessionManager(cfg.SessionSecret, cfg.SessionTTL)
	}
	if cfg.TwilioAuthToken != "" {
		validator := twilioclient.NewRequestValidator(cfg.TwilioAuthToken)
		deps.TwilioValidator = &validator
	}

	server, err := api.NewServer(deps,
		api.WithAddr(cfg.APIAddr),
		api.WithPublicURL(cfg.AppURL),
		api.WithSweepAPIKey(cfg.SweepAPIKey),
		api.WithCronSecret(cfg.CronSecret),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob(cfg.SweepCron, func() {
		if _, err := deps.Sweeper.Run(ctx); err != nil {
			slog.Error("Scheduled sweep failed", "error", err)
		}
	}); err != nil {
		return err
	}
	slog.Debug("Sweep scheduled", "cron", cfg.SweepCron)

	return server.Run(ctx)
}

func buildStore(cfg *config.Config) (store.Store, error) {
	if cfg.DatabaseDSN == "" {
		slog.Warn("No database DSN configured, using in-memory store")
		return store.NewStore()
	}
	if store.DetectDSNType(cfg.DatabaseDSN) == "postgres" {
		return store.NewStore(store.WithPostgresDSN(cfg.DatabaseDSN))
	}
	return store.NewStore(store.WithSQLiteDSN(cfg.DatabaseDSN))
}

func buildGenAIClient(cfg *config.Config) genai.ClientInterface {
	if cfg.OpenAIKey == "" {
		slog.Warn("No OpenAI key configured, replies fall back to canned responses")
		return nil
	}
	opts := []genai.Option{genai.WithAPIKey(cfg.OpenAIKey)}
	if cfg.OpenAIModel != "" {
		opts = append(opts, genai.WithModel(cfg.OpenAIModel))
	}
	client, err := genai.NewClient(opts...)
	if err != nil {
		slog.Error("Failed to create GenAI client, replies fall back to canned responses", "error", err)
		return nil
	}
	return client
}

func buildRouter(cfg *config.Config) *messaging.Router {
	var sms, expo, apns messaging.Sender

	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioFromNumber != "" {
		sender, err := messaging.NewTwilioSMSSender(
			messaging.WithAccountSID(cfg.TwilioAccountSID),
			messaging.WithAuthToken(cfg.TwilioAuthToken),
			messaging.WithFromNumber(cfg.TwilioFromNumber),
		)
		if err != nil {
			slog.Error("Failed to create Twilio sender, SMS delivery disabled", "error", err)
		} else {
			sms = sender
		}
	} else {
		slog.Warn("Twilio not configured, SMS delivery disabled")
	}

	expo = messaging.NewExpoPushSender(cfg.ExpoPushURL)

	if cfg.APNSKeyFile != "" {
		sender, err := messaging.NewAPNSSender(messaging.APNSOpts{
			KeyFile: cfg.APNSKeyFile,
			KeyID:   cfg.APNSKeyID,
			TeamID:  cfg.APNSTeamID,
			Topic:   cfg.APNSTopic,
			Sandbox: cfg.APNSSandbox,
		})
		if err != nil {
			slog.Error("Failed to create APNs sender, direct push disabled", "error", err)
		} else {
			apns = sender
		}
	}

	return messaging.NewRouter(sms, expo, apns)
}
