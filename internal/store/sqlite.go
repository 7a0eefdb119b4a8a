// Package store provides storage backends for CoachPipe.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/coachpipe/coachpipe/internal/models"
	"github.com/coachpipe/coachpipe/internal/util"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists users, messages, and goals in an SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN (a file path).
// The parent directory is created if missing and migrations are applied.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "dsn_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		slog.Error("Failed to enable SQLite foreign keys", "error", err)
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

const sqliteUserPlaceholders = `?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?`

func (s *SQLiteStore) CreateUser(u models.User) (models.User, error) {
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

	query := `INSERT INTO users (` + userColumns + `) VALUES (` + sqliteUserPlaceholders + `)`
	if _, err := s.db.Exec(query, userArgs(u)...); err != nil {
		slog.Error("SQLiteStore CreateUser failed", "error", err, "identity", u.Identity)
		return models.User{}, fmt.Errorf("failed to insert user %s: %w", u.Identity, err)
	}
	slog.Debug("SQLiteStore CreateUser succeeded", "userID", u.ID, "identity", u.Identity)
	return u, nil
}

func (s *SQLiteStore) GetUserByIdentity(identity string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE identity = ?`
	u, err := scanUser(s.db.QueryRow(query, identity))
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetUserByIdentity not found", "identity", identity)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetUserByIdentity failed", "error", err, "identity", identity)
		return nil, fmt.Errorf("failed to query user by identity: %w", err)
	}
	return &u, nil
}

func (s *SQLiteStore) GetUserByID(id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	u, err := scanUser(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetUserByID not found", "userID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetUserByID failed", "error", err, "userID", id)
		return nil, fmt.Errorf("failed to query user by id: %w", err)
	}
	return &u, nil
}

func (s *SQLiteStore) SaveUser(u models.User) error {
	if err := validateUserWrite(u); err != nil {
		return err
	}
	u.UpdatedAt = time.Now()
	query := `UPDATE users SET
		identity = ?, name = ?, goals_summary = ?, onboarding_step = ?, awaiting_checkin = ?, awaiting_proactive = ?,
		last_notified_at = ?, last_user_message_at = ?, current_streak = ?, longest_streak = ?, last_checkin_date = ?,
		subscription_status = ?, subscription_ends_at = ?, stripe_customer_id = ?, timezone = ?, push_token = ?, phone = ?,
		checkin_frequency = ?, morning_hour = ?, midday_hour = ?, evening_hour = ?, updated_at = ?
		WHERE id = ?`
	res, err := s.db.Exec(query,
		u.Identity, u.Name, u.GoalsSummary, u.OnboardingStep, u.AwaitingCheckin, u.AwaitingProactive,
		nullTime(u.LastNotifiedAt), nullTime(u.LastUserMessageAt), u.CurrentStreak, u.LongestStreak, u.LastCheckinDate,
		u.SubscriptionStatus, nullTime(u.SubscriptionEndsAt), u.StripeCustomerID, u.Timezone, u.PushToken, u.Phone,
		u.CheckinFrequency, u.MorningHour, u.MiddayHour, u.EveningHour, u.UpdatedAt, u.ID)
	if err != nil {
		slog.Error("SQLiteStore SaveUser failed", "error", err, "userID", u.ID)
		return fmt.Errorf("failed to update user %s: %w", u.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to update user %s: %w", u.ID, models.ErrUserNotFound)
	}
	slog.Debug("SQLiteStore SaveUser succeeded", "userID", u.ID, "step", u.OnboardingStep)
	return nil
}

func (s *SQLiteStore) DeleteUser(id string) error {
	if _, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id); err != nil {
		slog.Error("SQLiteStore DeleteUser failed", "error", err, "userID", id)
		return fmt.Errorf("failed to delete user %s: %w", id, err)
	}
	slog.Debug("SQLiteStore DeleteUser succeeded", "userID", id)
	return nil
}

func (s *SQLiteStore) ListOnboardedUsers() ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE onboarding_step >= ? ORDER BY id`
	rows, err := s.db.Query(query, models.StepComplete)
	if err != nil {
		slog.Error("SQLiteStore ListOnboardedUsers query failed", "error", err)
		return nil, fmt.Errorf("failed to query onboarded users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			slog.Error("SQLiteStore ListOnboardedUsers scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListOnboardedUsers rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	slog.Debug("SQLiteStore ListOnboardedUsers succeeded", "count", len(users))
	return users, nil
}

func (s *SQLiteStore) AddMessage(m models.Message) error {
	if err := validateMessageWrite(m); err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO messages (id, user_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.Role, m.Content, m.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddMessage failed", "error", err, "userID", m.UserID)
		return fmt.Errorf("failed to insert message for %s: %w", m.UserID, err)
	}
	return nil
}

func (s *SQLiteStore) GetMessages(userID string) ([]models.Message, error) {
	rows, err := s.db.Query(`SELECT id, user_id, role, content, created_at FROM messages WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		slog.Error("SQLiteStore GetMessages query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			slog.Error("SQLiteStore GetMessages scan failed", "error", err, "userID", userID)
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore GetMessages rows iteration failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	return messages, nil
}

func (s *SQLiteStore) ReplaceGoals(userID string, goals []models.Goal) error {
	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("SQLiteStore ReplaceGoals begin failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to begin goal replacement: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE goals SET active = 0 WHERE user_id = ?`, userID); err != nil {
		slog.Error("SQLiteStore ReplaceGoals deactivate failed", "error", err, "userID", userID)
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
			VALUES (?, ?, ?, ?, 1, ?, ?, ?)`,
			g.ID, userID, g.Position, g.Text, g.CurrentStreak, g.LongestStreak, g.CreatedAt)
		if err != nil {
			slog.Error("SQLiteStore ReplaceGoals insert failed", "error", err, "userID", userID, "position", g.Position)
			return fmt.Errorf("failed to insert goal %d for %s: %w", g.Position, userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("SQLiteStore ReplaceGoals commit failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to commit goal replacement: %w", err)
	}
	slog.Debug("SQLiteStore ReplaceGoals succeeded", "userID", userID, "count", len(goals))
	return nil
}

func (s *SQLiteStore) GetActiveGoals(userID string) ([]models.Goal, error) {
	rows, err := s.db.Query(`SELECT id, user_id, position, text, active, current_streak, longest_streak, created_at
		FROM goals WHERE user_id = ? AND active = 1 ORDER BY position`, userID)
	if err != nil {
		slog.Error("SQLiteStore GetActiveGoals query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query goals: %w", err)
	}
	defer rows.Close()

	var goals []models.Goal
	for rows.Next() {
		var g models.Goal
		if err := rows.Scan(&g.ID, &g.UserID, &g.Position, &g.Text, &g.Active, &g.CurrentStreak, &g.LongestStreak, &g.CreatedAt); err != nil {
			slog.Error("SQLiteStore GetActiveGoals scan failed", "error", err, "userID", userID)
			return nil, fmt.Errorf("failed to scan goal row: %w", err)
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore GetActiveGoals rows iteration failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to iterate goal rows: %w", err)
	}
	return goals, nil
}

func (s *SQLiteStore) UpdateGoalStreaks(goals []models.Goal) error {
	for _, g := range goals {
		_, err := s.db.Exec(`UPDATE goals SET current_streak = ?, longest_streak = ? WHERE id = ?`,
			g.CurrentStreak, g.LongestStreak, g.ID)
		if err != nil {
			slog.Error("SQLiteStore UpdateGoalStreaks failed", "error", err, "goalID", g.ID)
			return fmt.Errorf("failed to update goal %s: %w", g.ID, err)
		}
	}
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
