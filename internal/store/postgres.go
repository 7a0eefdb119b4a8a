// Package store provides storage backends for CoachPipe.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/coachpipe/coachpipe/internal/models"
	"github.com/coachpipe/coachpipe/internal/util"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists users, messages, and goals in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN and applies
// migrations.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "dsn_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run PostgreSQL migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

const postgresUserPlaceholders = `$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24`

func (s *PostgresStore) CreateUser(u models.User) (models.User, error) {
	if err := validateUserWrite(u); err != nil {
		return models.User{}, err
	}
	if u.ID == "" {
		u.ID = util.GenerateUserID()
	}
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	query := `INSERT INTO users (` + userColumns + `) VALUES (` + postgresUserPlaceholders + `)`
	if _, err := s.db.Exec(query, userArgs(u)...); err != nil {
		slog.Error("PostgresStore CreateUser failed", "error", err, "identity", u.Identity)
		return models.User{}, fmt.Errorf("failed to insert user %s: %w", u.Identity, err)
	}
	slog.Debug("PostgresStore CreateUser succeeded", "userID", u.ID, "identity", u.Identity)
	return u, nil
}

func (s *PostgresStore) GetUserByIdentity(identity string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE identity = $1`
	u, err := scanUser(s.db.QueryRow(query, identity))
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetUserByIdentity not found", "identity", identity)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetUserByIdentity failed", "error", err, "identity", identity)
		return nil, fmt.Errorf("failed to query user by identity: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) GetUserByID(id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetUserByID not found", "userID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetUserByID failed", "error", err, "userID", id)
		return nil, fmt.Errorf("failed to query user by id: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) SaveUser(u models.User) error {
	if err := validateUserWrite(u); err != nil {
		return err
	}
	u.UpdatedAt = time.Now()
	query := `UPDATE users SET
		identity = $1, name = $2, goals_summary = $3, onboarding_step = $4, awaiting_checkin = $5, awaiting_proactive = $6,
		last_notified_at = $7, last_user_message_at = $8, current_streak = $9, longest_streak = $10, last_checkin_date = $11,
		subscription_status = $12, subscription_ends_at = $13, stripe_customer_id = $14, timezone = $15, push_token = $16, phone = $17,
		checkin_frequency = $18, morning_hour = $19, midday_hour = $20, evening_hour = $21, updated_at = $22
		WHERE id = $23`
	res, err := s.db.Exec(query,
		u.Identity, u.Name, u.GoalsSummary, u.OnboardingStep, u.AwaitingCheckin, u.AwaitingProactive,
		nullTime(u.LastNotifiedAt), nullTime(u.LastUserMessageAt), u.CurrentStreak, u.LongestStreak, u.LastCheckinDate,
		u.SubscriptionStatus, nullTime(u.SubscriptionEndsAt), u.StripeCustomerID, u.Timezone, u.PushToken, u.Phone,
		u.CheckinFrequency, u.MorningHour, u.MiddayHour, u.EveningHour, u.UpdatedAt, u.ID)
	if err != nil {
		slog.Error("PostgresStore SaveUser failed", "error", err, "userID", u.ID)
		return fmt.Errorf("failed to update user %s: %w", u.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to update user %s: %w", u.ID, models.ErrUserNotFound)
	}
	slog.Debug("PostgresStore SaveUser succeeded", "userID", u.ID, "step", u.OnboardingStep)
	return nil
}

func (s *PostgresStore) DeleteUser(id string) error {
	if _, err := s.db.Exec(`DELETE FROM users WHERE id = $1`, id); err != nil {
		slog.Error("PostgresStore DeleteUser failed", "error", err, "userID", id)
		return fmt.Errorf("failed to delete user %s: %w", id, err)
	}
	slog.Debug("PostgresStore DeleteUser succeeded", "userID", id)
	return nil
}

func (s *PostgresStore) ListOnboardedUsers() ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE onboarding_step >= $1 ORDER BY id`
	rows, err := s.db.Query(query, models.StepComplete)
	if err != nil {
		slog.Error("PostgresStore ListOnboardedUsers query failed", "error", err)
		return nil, fmt.Errorf("failed to query onboarded users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			slog.Error("PostgresStore ListOnboardedUsers scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListOnboardedUsers rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	slog.Debug("PostgresStore ListOnboardedUsers succeeded", "count", len(users))
	return users, nil
}

func (s *PostgresStore) AddMessage(m models.Message) error {
	if err := validateMessageWrite(m); err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO messages (id, user_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.UserID, m.Role, m.Content, m.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddMessage failed", "error", err, "userID", m.UserID)
		return fmt.Errorf("failed to insert message for %s: %w", m.UserID, err)
	}
	return nil
}

func (s *PostgresStore) GetMessages(userID string) ([]models.Message, error) {
	rows, err := s.db.Query(`SELECT id, user_id, role, content, created_at FROM messages WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		slog.Error("PostgresStore GetMessages query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			slog.Error("PostgresStore GetMessages scan failed", "error", err, "userID", userID)
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore GetMessages rows iteration failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	return messages, nil
}

func (s *PostgresStore) ReplaceGoals(userID string, goals []models.Goal) error {
	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("PostgresStore ReplaceGoals begin failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to begin goal replacement: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE goals SET active = FALSE WHERE user_id = $1`, userID); err != nil {
		slog.Error("PostgresStore ReplaceGoals deactivate failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to deactivate goals for %s: %w", userID, err)
	}

	now := time.Now()
	for _, g := range goals {
		if g.ID == "" {
			g.ID = uuid.NewString()
		}
		if g.CreatedAt.IsZero() {
			g.CreatedAt = now
		}
		_, err := tx.Exec(`INSERT INTO goals (id, user_id, position, text, active, current_streak, longest_streak, created_at)
			VALUES ($1, $2, $3, $4, TRUE, $5, $6, $7)`,
			g.ID, userID, g.Position, g.Text, g.CurrentStreak, g.LongestStreak, g.CreatedAt)
		if err != nil {
			slog.Error("PostgresStore ReplaceGoals insert failed", "error", err, "userID", userID, "position", g.Position)
			return fmt.Errorf("failed to insert goal %d for %s: %w", g.Position, userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("PostgresStore ReplaceGoals commit failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to commit goal replacement: %w", err)
	}
	slog.Debug("PostgresStore ReplaceGoals succeeded", "userID", userID, "count", len(goals))
	return nil
}

func (s *PostgresStore) GetActiveGoals(userID string) ([]models.Goal, error) {
	rows, err := s.db.Query(`SELECT id, user_id, position, text, active, current_streak, longest_streak, created_at
		FROM goals WHERE user_id = $1 AND active = TRUE ORDER BY position`, userID)
	if err != nil {
		slog.Error("PostgresStore GetActiveGoals query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query goals: %w", err)
	}
	defer rows.Close()

	var goals []models.Goal
	for rows.Next() {
		var g models.Goal
		if err := rows.Scan(&g.ID, &g.UserID, &g.Position, &g.Text, &g.Active, &g.CurrentStreak, &g.LongestStreak, &g.CreatedAt); err != nil {
			slog.Error("PostgresStore GetActiveGoals scan failed", "error", err, "userID", userID)
			return nil, fmt.Errorf("failed to scan goal row: %w", err)
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore GetActiveGoals rows iteration failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to iterate goal rows: %w", err)
	}
	return goals, nil
}

func (s *PostgresStore) UpdateGoalStreaks(goals []models.Goal) error {
	for _, g := range goals {
		_, err := s.db.Exec(`UPDATE goals SET current_streak = $1, longest_streak = $2 WHERE id = $3`,
			g.CurrentStreak, g.LongestStreak, g.ID)
		if err != nil {
			slog.Error("PostgresStore UpdateGoalStreaks failed", "error", err, "goalID", g.ID)
			return fmt.Errorf("failed to update goal %s: %w", g.ID, err)
		}
	}
	return nil
}

// Close closes the PostgreSQL connection pool.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL connection pool")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL connection", "error", err)
	}
	return err
}
