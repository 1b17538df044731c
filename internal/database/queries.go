package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/detective-ai/gateway/internal/models"
)

// Sentinel error strings checked by callers.
var (
	ErrHistoryNotFound = fmt.Errorf("history item not found")
	ErrSessionNotFound = fmt.Errorf("session not found")
)

// SaveHistoryItem inserts or replaces a history item. The analysis result is
// stored as a JSON column alongside the full source text so highlighting can
// be regenerated later.
func (db *DB) SaveHistoryItem(item *models.HistoryItem) error {
	resultJSON, err := json.Marshal(item.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = db.conn.Exec(`
		INSERT INTO history (id, user_id, type, title, date, content, source_text, result, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			source_text = excluded.source_text,
			result = excluded.result,
			updated_at = CURRENT_TIMESTAMP
	`, item.ID, item.UserID, item.Type, item.Title, item.Date, item.Content, item.SourceText, resultJSON)
	if err != nil {
		return fmt.Errorf("failed to insert history item: %w", err)
	}

	return nil
}

// GetHistoryItem retrieves one history item by ID.
func (db *DB) GetHistoryItem(id string) (*models.HistoryItem, error) {
	row := db.conn.QueryRow(`
		SELECT id, user_id, type, title, date, content, source_text, result
		FROM history
		WHERE id = ?
	`, id)

	item, err := scanHistoryItem(row)
	if err == sql.ErrNoRows {
		return nil, ErrHistoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history item: %w", err)
	}

	return item, nil
}

// ListHistory retrieves a user's history, newest first, with pagination.
func (db *DB) ListHistory(userID string, limit, offset int) ([]*models.HistoryItem, error) {
	rows, err := db.conn.Query(`
		SELECT id, user_id, type, title, date, content, source_text, result
		FROM history
		WHERE user_id = ?
		ORDER BY date DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var items []*models.HistoryItem
	for rows.Next() {
		item, err := scanHistoryItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return items, nil
}

// DeleteHistoryItem deletes a history item by ID.
func (db *DB) DeleteHistoryItem(id string) error {
	result, err := db.conn.Exec("DELETE FROM history WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete history item: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrHistoryNotFound
	}

	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanHistoryItem(s scanner) (*models.HistoryItem, error) {
	var (
		item       models.HistoryItem
		date       time.Time
		resultJSON string
	)

	if err := s.Scan(&item.ID, &item.UserID, &item.Type, &item.Title, &date, &item.Content, &item.SourceText, &resultJSON); err != nil {
		return nil, err
	}

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}

	item.Date = date
	item.Result = &result
	return &item, nil
}

// SaveSession upserts a session row. Token and user record travel in the same
// statement so one is never persisted without the other.
func (db *DB) SaveSession(session *models.Session) error {
	if session.Token == "" {
		return fmt.Errorf("session token is required")
	}

	userJSON, err := json.Marshal(session.User)
	if err != nil {
		return fmt.Errorf("failed to marshal session user: %w", err)
	}

	_, err = db.conn.Exec(`
		INSERT INTO sessions (token, user_json, state, pending_email, reset_token, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(token) DO UPDATE SET
			user_json = excluded.user_json,
			state = excluded.state,
			pending_email = excluded.pending_email,
			reset_token = excluded.reset_token,
			updated_at = CURRENT_TIMESTAMP
	`, session.Token, userJSON, session.State, session.PendingEmail, session.ResetToken)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

// GetSession loads the session belonging to a token.
func (db *DB) GetSession(token string) (*models.Session, error) {
	var (
		session  models.Session
		userJSON string
	)

	err := db.conn.QueryRow(`
		SELECT token, user_json, state, pending_email, reset_token, created_at, updated_at
		FROM sessions
		WHERE token = ?
	`, token).Scan(&session.Token, &userJSON, &session.State, &session.PendingEmail,
		&session.ResetToken, &session.CreatedAt, &session.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if err := json.Unmarshal([]byte(userJSON), &session.User); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session user: %w", err)
	}

	return &session, nil
}

// DeleteSession removes a session row, clearing token and user together.
func (db *DB) DeleteSession(token string) error {
	result, err := db.conn.Exec("DELETE FROM sessions WHERE token = ?", token)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSessionNotFound
	}

	return nil
}
