// Package session persists the token/user pair issued by the remote auth API.
// The pair is atomic: a stored session always carries both the token and the
// user record it was issued for, and clearing removes both at once.
package session

import (
	"fmt"
	"log/slog"

	"github.com/detective-ai/gateway/internal/database"
	"github.com/detective-ai/gateway/internal/models"
)

// ErrNotFound is returned when no session exists for a token.
var ErrNotFound = database.ErrSessionNotFound

// Store manages session rows.
type Store struct {
	db     *database.DB
	logger *slog.Logger
}

// NewStore creates a session store backed by the given database.
func NewStore(db *database.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Establish writes a new authenticated session for a token/user pair. It
// rejects partial pairs instead of persisting them.
func (s *Store) Establish(token string, user models.User) (*models.Session, error) {
	if token == "" {
		return nil, fmt.Errorf("cannot establish session without token")
	}
	if user.ID == "" {
		return nil, fmt.Errorf("cannot establish session without user")
	}

	session := &models.Session{
		Token: token,
		User:  user,
		State: models.StateAuthenticated,
	}
	if err := s.db.SaveSession(session); err != nil {
		return nil, err
	}

	s.logger.Info("session established", "user_id", user.ID)
	return session, nil
}

// Load returns the session for a token, or ErrNotFound.
func (s *Store) Load(token string) (*models.Session, error) {
	return s.db.GetSession(token)
}

// Update persists changed session fields. The token stays fixed; only state
// and flow context move.
func (s *Store) Update(session *models.Session) error {
	return s.db.SaveSession(session)
}

// Clear removes the session, dropping token and user together. Clearing a
// token that has no session is not an error; logout is idempotent.
func (s *Store) Clear(token string) error {
	err := s.db.DeleteSession(token)
	if err == database.ErrSessionNotFound {
		return nil
	}
	return err
}
