package database

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/detective-ai/gateway/internal/models"
)

func testHistoryItem(userID string) *models.HistoryItem {
	return &models.HistoryItem{
		ID:         uuid.New().String(),
		UserID:     userID,
		Type:       models.SubmissionText,
		Title:      "Quarterly report draft",
		Date:       time.Now().UTC().Truncate(time.Second),
		Content:    "We need to leverage synergy...",
		SourceText: "We need to leverage synergy across verticals.",
		Result: &models.AnalysisResult{
			IsAI:       true,
			Confidence: 87,
			DetectionReasons: []models.DetectionReason{
				{Type: "vocabulary", Title: "Corporate jargon", Description: "Dense buzzword usage", Impact: "high"},
			},
			Statistics: models.Statistics{TotalWords: 7, Sentences: 1},
			AnalysisDetails: &models.AnalysisDetails{
				FoundJargon: []string{"leverage", "synergy"},
			},
		},
	}
}

func TestSaveAndGetHistoryItem(t *testing.T) {
	db := setupTestDB(t)

	item := testHistoryItem("user-1")
	require.NoError(t, db.SaveHistoryItem(item))

	got, err := db.GetHistoryItem(item.ID)
	require.NoError(t, err)

	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, item.UserID, got.UserID)
	assert.Equal(t, item.Type, got.Type)
	assert.Equal(t, item.SourceText, got.SourceText)
	require.NotNil(t, got.Result)
	assert.True(t, got.Result.IsAI)
	assert.Equal(t, 87, got.Result.Confidence)
	require.NotNil(t, got.Result.AnalysisDetails)
	assert.Equal(t, []string{"leverage", "synergy"}, got.Result.AnalysisDetails.FoundJargon)
}

func TestSaveHistoryItemUpsert(t *testing.T) {
	db := setupTestDB(t)

	item := testHistoryItem("user-1")
	require.NoError(t, db.SaveHistoryItem(item))

	item.Title = "Revised title"
	item.Result.Confidence = 42
	require.NoError(t, db.SaveHistoryItem(item))

	got, err := db.GetHistoryItem(item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Revised title", got.Title)
	assert.Equal(t, 42, got.Result.Confidence)
}

func TestGetHistoryItemNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetHistoryItem("no-such-id")
	assert.ErrorIs(t, err, ErrHistoryNotFound)
}

func TestListHistory(t *testing.T) {
	db := setupTestDB(t)

	base := time.Now().UTC().Truncate(time.Second)
	var ids []string
	for i := 0; i < 5; i++ {
		item := testHistoryItem("user-1")
		item.Date = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, db.SaveHistoryItem(item))
		ids = append(ids, item.ID)
	}

	// Another user's rows must not leak in.
	other := testHistoryItem("user-2")
	require.NoError(t, db.SaveHistoryItem(other))

	items, err := db.ListHistory("user-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, items, 5)

	// Newest first.
	assert.Equal(t, ids[4], items[0].ID)
	assert.Equal(t, ids[0], items[4].ID)

	page, err := db.ListHistory("user-1", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)
}

func TestDeleteHistoryItem(t *testing.T) {
	db := setupTestDB(t)

	item := testHistoryItem("user-1")
	require.NoError(t, db.SaveHistoryItem(item))

	require.NoError(t, db.DeleteHistoryItem(item.ID))

	_, err := db.GetHistoryItem(item.ID)
	assert.ErrorIs(t, err, ErrHistoryNotFound)

	assert.ErrorIs(t, db.DeleteHistoryItem(item.ID), ErrHistoryNotFound)
}

func TestSessionRoundTrip(t *testing.T) {
	db := setupTestDB(t)

	session := &models.Session{
		Token: "tok-abc",
		User: models.User{
			ID:    "user-1",
			Name:  "Ada",
			Email: "ada@example.com",
		},
		State: models.StateAuthenticated,
	}
	require.NoError(t, db.SaveSession(session))

	got, err := db.GetSession("tok-abc")
	require.NoError(t, err)
	assert.Equal(t, models.StateAuthenticated, got.State)
	assert.Equal(t, "ada@example.com", got.User.Email)

	// Upsert replaces state in place.
	session.State = models.StateResetRequested
	session.PendingEmail = "ada@example.com"
	require.NoError(t, db.SaveSession(session))

	got, err = db.GetSession("tok-abc")
	require.NoError(t, err)
	assert.Equal(t, models.StateResetRequested, got.State)
	assert.Equal(t, "ada@example.com", got.PendingEmail)
}

func TestSessionRequiresToken(t *testing.T) {
	db := setupTestDB(t)

	err := db.SaveSession(&models.Session{User: models.User{ID: "user-1"}})
	assert.Error(t, err)
}

func TestDeleteSession(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, db.SaveSession(&models.Session{
		Token: "tok-del",
		User:  models.User{ID: "user-1"},
		State: models.StateAuthenticated,
	}))

	require.NoError(t, db.DeleteSession("tok-del"))

	_, err := db.GetSession("tok-del")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.ErrorIs(t, db.DeleteSession("tok-del"), ErrSessionNotFound)
}
