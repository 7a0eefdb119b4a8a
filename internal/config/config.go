// Package config collects all environment-derived settings into one explicit
// struct, constructed once per process and passed into the engine, scheduler,
// and API server.
package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/coachpipe/coachpipe/internal/util"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting for CoachPipe.
type Config struct {
	// Application
	APIAddr string
	AppURL  string // base URL for checkout links
	Debug   bool

	// Database. Postgres DSNs are detected by scheme/keywords; anything else is
	// treated as an SQLite file path. Empty selects the in-memory store.
	DatabaseDSN string

	// LLM
	OpenAIKey   string
	OpenAIModel string

	// Twilio SMS
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	// Push delivery
	ExpoPushURL  string
	APNSKeyFile  string // PEM file with the ES256 provider token key
	APNSKeyID    string
	APNSTeamID   string
	APNSTopic    string // app bundle identifier
	APNSSandbox  bool   // force sandbox-only delivery (development builds)

	// Billing
	StripeSecretKey     string
	StripeWebhookSecret string
	StripePriceID       string
	CheckoutSecret      string // HMAC secret for signed checkout links
	CheckoutLinkTTL     time.Duration

	// Auth
	SessionSecret string // HS256 secret for app-session tokens
	SessionTTL    time.Duration
	SweepAPIKey   string // bearer key accepted on the sweep endpoint
	CronSecret    string // alternative shared-secret header for cron callers

	// Scheduling
	SweepCron string
	TrialDays int
}

// Load reads configuration from the environment (and a .env file if present).
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("config: no .env file loaded", "error", err)
	}

	cfg := &Config{
		APIAddr: envString("API_ADDR", ":8080"),
		AppURL:  envString("APP_URL", "http://localhost:8080"),
		Debug:   util.ParseBoolEnv("DEBUG", false),

		DatabaseDSN: envString("DATABASE_URL", ""),

		OpenAIKey:   envString("OPENAI_API_KEY", ""),
		OpenAIModel: envString("OPENAI_MODEL", ""),

		TwilioAccountSID: envString("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  envString("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber: envString("TWILIO_FROM_NUMBER", ""),

		ExpoPushURL: envString("EXPO_PUSH_URL", "https://exp.host/--/api/v2/push/send"),
		APNSKeyFile: envString("APNS_KEY_FILE", ""),
		APNSKeyID:   envString("APNS_KEY_ID", ""),
		APNSTeamID:  envString("APNS_TEAM_ID", ""),
		APNSTopic:   envString("APNS_TOPIC", ""),
		APNSSandbox: util.ParseBoolEnv("APNS_SANDBOX", false),

		StripeSecretKey:     envString("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: envString("STRIPE_WEBHOOK_SECRET", ""),
		StripePriceID:       envString("STRIPE_PRICE_ID", ""),
		CheckoutSecret:      envString("CHECKOUT_SECRET", ""),
		CheckoutLinkTTL:     envDuration("CHECKOUT_LINK_TTL", 24*time.Hour),

		SessionSecret: envString("SESSION_SECRET", ""),
		SessionTTL:    envDuration("SESSION_TTL", 168*time.Hour),
		SweepAPIKey:   envString("SWEEP_API_KEY", ""),
		CronSecret:    envString("CRON_SECRET", ""),

		SweepCron: envString("SWEEP_CRON", "0 * * * *"),
		TrialDays: util.ParseIntEnv("TRIAL_DAYS", 3),
	}

	slog.Debug("config loaded",
		"api_addr", cfg.APIAddr,
		"database_dsn_set", cfg.DatabaseDSN != "",
		"openai_key_set", cfg.OpenAIKey != "",
		"twilio_configured", cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "",
		"apns_configured", cfg.APNSKeyFile != "",
		"stripe_configured", cfg.StripeSecretKey != "",
		"sweep_cron", cfg.SweepCron,
		"trial_days", cfg.TrialDays)

	return cfg
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config: invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}
