// Package store provides storage backends for CoachPipe.
//
// It defines the Store interface over users, messages, and goals, with SQLite,
// PostgreSQL, and in-memory implementations. Messages are append-only; goal sets
// are replaced wholesale (previous set soft-deactivated).
package store

import (
	"strings"

	"github.com/coachpipe/coachpipe/internal/models"
)

// Store is the persistence surface consumed by the engine, scheduler, and API.
type Store interface {
	// CreateUser inserts a new user row. A missing ID is generated.
	CreateUser(u models.User) (models.User, error)
	// GetUserByIdentity looks a user up by contact identity. Returns nil when absent.
	GetUserByIdentity(identity string) (*models.User, error)
	// GetUserByID looks a user up by row ID. Returns nil when absent.
	GetUserByID(id string) (*models.User, error)
	// SaveUser writes the full user row (last-write-wins).
	SaveUser(u models.User) error
	// DeleteUser removes a user and cascades to messages and goals.
	DeleteUser(id string) error
	// ListOnboardedUsers returns all users at or past the onboarding completion step.
	ListOnboardedUsers() ([]models.User, error)

	// AddMessage appends an immutable message record.
	AddMessage(m models.Message) error
	// GetMessages returns a user's messages ordered by creation time.
	GetMessages(userID string) ([]models.Message, error)

	// ReplaceGoals deactivates the user's current goal set and inserts the new one.
	ReplaceGoals(userID string, goals []models.Goal) error
	// GetActiveGoals returns the user's active goals ordered by position.
	GetActiveGoals(userID string) ([]models.Goal, error)
	// UpdateGoalStreaks writes the streak counters of existing goal rows.
	UpdateGoalStreaks(goals []models.Goal) error

	// Close releases the backing resources.
	Close() error
}

// validateUserWrite rejects user rows carrying a malformed frequency enum.
// An empty frequency is allowed: users start unset until the schedule step.
func validateUserWrite(u models.User) error {
	if u.CheckinFrequency != "" && !models.IsValidCheckinFrequency(u.CheckinFrequency) {
		return models.ErrInvalidFrequency
	}
	return nil
}

// validateMessageWrite rejects messages with an unknown role.
func validateMessageWrite(m models.Message) error {
	if !models.IsValidMessageRole(m.Role) {
		return models.ErrInvalidRole
	}
	return nil
}

// Opts holds configuration for store construction.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store construction.
type Option func(*Opts)

// WithPostgresDSN configures a PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN configures an SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". PostgreSQL DSNs use
// URL schemes or key=value keywords; anything else is treated as a file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

// NewStore builds a Store from options: PostgreSQL or SQLite when a DSN is set,
// otherwise the in-memory store.
func NewStore(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		return NewPostgresStore(opts...)
	}
	return NewSQLiteStore(opts...)
}
