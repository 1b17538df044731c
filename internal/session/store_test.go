package session

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/detective-ai/gateway/internal/database"
	"github.com/detective-ai/gateway/internal/models"
)

func setupStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "session_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewStore(db, logger)
}

func TestEstablishAndLoad(t *testing.T) {
	store := setupStore(t)

	user := models.User{ID: "user-1", Email: "ada@example.com", Name: "Ada"}
	session, err := store.Establish("tok-1", user)
	require.NoError(t, err)
	assert.Equal(t, models.StateAuthenticated, session.State)

	got, err := store.Load("tok-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got.Token)
	assert.Equal(t, "user-1", got.User.ID)
	assert.Equal(t, models.StateAuthenticated, got.State)
}

func TestEstablishRejectsPartialPair(t *testing.T) {
	store := setupStore(t)

	_, err := store.Establish("", models.User{ID: "user-1"})
	assert.Error(t, err)

	_, err = store.Establish("tok-1", models.User{})
	assert.Error(t, err)

	// Nothing was persisted by the failed attempts.
	_, err = store.Load("tok-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateState(t *testing.T) {
	store := setupStore(t)

	session, err := store.Establish("tok-1", models.User{ID: "user-1", Email: "ada@example.com"})
	require.NoError(t, err)

	session.State = models.StateResetRequested
	session.PendingEmail = "ada@example.com"
	require.NoError(t, store.Update(session))

	got, err := store.Load("tok-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateResetRequested, got.State)
	assert.Equal(t, "ada@example.com", got.PendingEmail)
}

func TestClearIsIdempotent(t *testing.T) {
	store := setupStore(t)

	_, err := store.Establish("tok-1", models.User{ID: "user-1"})
	require.NoError(t, err)

	require.NoError(t, store.Clear("tok-1"))

	_, err = store.Load("tok-1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Second clear of the same token is a no-op, not an error.
	require.NoError(t, store.Clear("tok-1"))
}
