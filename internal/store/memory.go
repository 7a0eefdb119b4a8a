package store

import (
	"sort"
	"sync"
	"time"

	"github.com/coachpipe/coachpipe/internal/models"
	"github.com/coachpipe/coachpipe/internal/util"
	"github.com/google/uuid"
)

// InMemoryStore is a mutex-guarded map-backed Store used in tests and when no
// database DSN is configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	users    map[string]models.User // keyed by ID
	messages map[string][]models.Message
	goals    map[string][]models.Goal
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:    make(map[string]models.User),
		messages: make(map[string][]models.Message),
		goals:    make(map[string][]models.Goal),
	}
}

func (s *InMemoryStore) CreateUser(u models.User) (models.User, error) {
	if err := validateUserWrite(u); err != nil {
		return models.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = util.GenerateUserID()
	}
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	s.users[u.ID] = u
	return u, nil
}

func (s *InMemoryStore) GetUserByIdentity(identity string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Identity == identity {
			copied := u
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) GetUserByID(id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	copied := u
	return &copied, nil
}

func (s *InMemoryStore) SaveUser(u models.User) error {
	if err := validateUserWrite(u); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; !ok {
		return models.ErrUserNotFound
	}
	u.UpdatedAt = time.Now()
	s.users[u.ID] = u
	return nil
}

func (s *InMemoryStore) DeleteUser(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.users, id)
	delete(s.messages, id)
	delete(s.goals, id)
	return nil
}

func (s *InMemoryStore) ListOnboardedUsers() ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var users []models.User
	for _, u := range s.users {
		if u.OnboardingStep >= models.StepComplete {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *InMemoryStore) AddMessage(m models.Message) error {
	if err := validateMessageWrite(m); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	s.messages[m.UserID] = append(s.messages[m.UserID], m)
	return nil
}

func (s *InMemoryStore) GetMessages(userID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := make([]models.Message, len(s.messages[userID]))
	copy(msgs, s.messages[userID])
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	return msgs, nil
}

func (s *InMemoryStore) ReplaceGoals(userID string, goals []models.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.goals[userID]
	for i := range existing {
		existing[i].Active = false
	}
	now := time.Now()
	for _, g := range goals {
		if g.ID == "" {
			g.ID = uuid.NewString()
		}
		g.UserID = userID
		g.Active = true
		if g.CreatedAt.IsZero() {
			g.CreatedAt = now
		}
		existing = append(existing, g)
	}
	s.goals[userID] = existing
	return nil
}

func (s *InMemoryStore) GetActiveGoals(userID string) ([]models.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var goals []models.Goal
	for _, g := range s.goals[userID] {
		if g.Active {
			goals = append(goals, g)
		}
	}
	sort.Slice(goals, func(i, j int) bool { return goals[i].Position < goals[j].Position })
	return goals, nil
}

func (s *InMemoryStore) UpdateGoalStreaks(goals []models.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range goals {
		stored := s.goals[g.UserID]
		for i := range stored {
			if stored[i].ID == g.ID {
				stored[i].CurrentStreak = g.CurrentStreak
				stored[i].LongestStreak = g.LongestStreak
			}
		}
	}
	return nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
