// Package authapi is the HTTP client for the remote Detective AI user
// service: registration, login, email verification, password reset, profile
// management, feedback, and the admin surface. Tokens are issued and
// validated remotely; this package never decides auth outcomes on its own.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/detective-ai/gateway/internal/models"
)

const DefaultTimeout = 30 * time.Second

// ErrVerificationRequired is returned by Login when the remote service
// rejects the credentials because the account's email is not yet verified.
// The auth flow coordinator routes this back to the verification step.
var ErrVerificationRequired = errors.New("email verification required")

// Client wraps the remote auth API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// New creates a new auth API client.
func New(baseURL string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("auth API URL is required")
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		timeout:    DefaultTimeout,
	}, nil
}

// wireUser is the user record shape the auth service returns.
type wireUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsAdmin   bool      `json:"is_admin"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}

func (u wireUser) toModel() models.User {
	return models.User{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		IsAdmin:   u.IsAdmin,
		Verified:  u.Verified,
		CreatedAt: u.CreatedAt,
	}
}

// LoginResult is a successful authentication response: the bearer token and
// the user it belongs to, always together.
type LoginResult struct {
	Token string
	User  models.User
}

// Register creates a new account. A successful response means the service
// sent a verification code to the given email.
func (c *Client) Register(ctx context.Context, email, name, password string) error {
	payload := map[string]string{"email": email, "name": name, "password": password}
	return c.post(ctx, "/api/users/register/", "", payload, nil)
}

// Login exchanges credentials for a token and user record.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	payload := map[string]string{"email": email, "password": password}

	var resp struct {
		Token string   `json:"token"`
		User  wireUser `json:"user"`
	}
	if err := c.post(ctx, "/api/users/login/", "", payload, &resp); err != nil {
		return nil, err
	}

	return &LoginResult{Token: resp.Token, User: resp.User.toModel()}, nil
}

// VerifyEmail confirms a registration with the emailed code. On success the
// service issues a token immediately, so the caller lands authenticated.
func (c *Client) VerifyEmail(ctx context.Context, email, code string) (*LoginResult, error) {
	payload := map[string]string{"email": email, "code": code}

	var resp struct {
		Token string   `json:"token"`
		User  wireUser `json:"user"`
	}
	if err := c.post(ctx, "/api/users/verify-email/", "", payload, &resp); err != nil {
		return nil, err
	}

	return &LoginResult{Token: resp.Token, User: resp.User.toModel()}, nil
}

// ResendVerification asks the service to send a fresh verification code.
func (c *Client) ResendVerification(ctx context.Context, email string) error {
	return c.post(ctx, "/api/users/resend-verification/", "", map[string]string{"email": email}, nil)
}

// ForgotPassword starts a password reset for the given email.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.post(ctx, "/api/users/forgot-password/", "", map[string]string{"email": email}, nil)
}

// ResetPassword completes a reset with the emailed code and new password.
func (c *Client) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	payload := map[string]string{"email": email, "code": code, "new_password": newPassword}
	return c.post(ctx, "/api/users/reset-password/", "", payload, nil)
}

// ChangePassword updates the password of an authenticated user.
func (c *Client) ChangePassword(ctx context.Context, token, userID, current, next string) error {
	payload := map[string]string{"current_password": current, "new_password": next}
	return c.request(ctx, http.MethodPut, "/api/users/"+userID+"/change-password/", token, payload, nil)
}

// Me fetches the profile belonging to a token.
func (c *Client) Me(ctx context.Context, token string) (*models.User, error) {
	var resp wireUser
	if err := c.request(ctx, http.MethodGet, "/api/users/me/", token, nil, &resp); err != nil {
		return nil, err
	}
	user := resp.toModel()
	return &user, nil
}

// UpdateUser updates profile fields and returns the fresh record.
func (c *Client) UpdateUser(ctx context.Context, token, userID string, fields map[string]string) (*models.User, error) {
	var resp wireUser
	if err := c.request(ctx, http.MethodPut, "/api/users/"+userID+"/update/", token, fields, &resp); err != nil {
		return nil, err
	}
	user := resp.toModel()
	return &user, nil
}

// DeleteUser removes an account.
func (c *Client) DeleteUser(ctx context.Context, token, userID string) error {
	return c.request(ctx, http.MethodDelete, "/api/users/"+userID+"/delete/", token, nil, nil)
}

// FetchSubmissions retrieves the server-side submission history.
func (c *Client) FetchSubmissions(ctx context.Context, token string) ([]json.RawMessage, error) {
	var resp []json.RawMessage
	if err := c.request(ctx, http.MethodGet, "/api/user/submissions", token, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// DeleteSubmission removes one server-side history entry.
func (c *Client) DeleteSubmission(ctx context.Context, token, id string) error {
	return c.request(ctx, http.MethodDelete, "/api/submissions/"+id, token, nil, nil)
}

// SubmitFeedback files free-text feedback tied to a submission.
func (c *Client) SubmitFeedback(ctx context.Context, token, submissionID, message string) error {
	payload := map[string]string{"submission_id": submissionID, "message": message}
	return c.post(ctx, "/api/feedback/submit", token, payload, nil)
}

// Admin surface. Responses pass through untouched; the gateway only relays
// them with the caller's token.

func (c *Client) AdminStats(ctx context.Context, token string) (json.RawMessage, error) {
	return c.relay(ctx, http.MethodGet, "/api/admin/stats", token)
}

func (c *Client) AdminUsers(ctx context.Context, token string) (json.RawMessage, error) {
	return c.relay(ctx, http.MethodGet, "/api/admin/users", token)
}

func (c *Client) AdminFeedbackList(ctx context.Context, token string) (json.RawMessage, error) {
	return c.relay(ctx, http.MethodGet, "/api/admin/feedback", token)
}

func (c *Client) AdminFeedbackDetail(ctx context.Context, token, id string) (json.RawMessage, error) {
	return c.relay(ctx, http.MethodGet, "/api/admin/feedback/"+id, token)
}

func (c *Client) AdminMarkFeedbackReviewed(ctx context.Context, token, id string) error {
	return c.request(ctx, http.MethodPut, "/api/admin/feedback/"+id+"/reviewed", token, nil, nil)
}

func (c *Client) AdminMarkFeedbackResolved(ctx context.Context, token, id string) error {
	return c.request(ctx, http.MethodPut, "/api/admin/feedback/"+id+"/resolved", token, nil, nil)
}

func (c *Client) AdminDeleteFeedback(ctx context.Context, token, id string) error {
	return c.request(ctx, http.MethodDelete, "/api/admin/feedback/"+id, token, nil, nil)
}

// post issues a JSON POST.
func (c *Client) post(ctx context.Context, path, token string, payload, out interface{}) error {
	return c.request(ctx, http.MethodPost, path, token, payload, out)
}

// relay performs a request and returns the raw response body.
func (c *Client) relay(ctx context.Context, method, path, token string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.request(ctx, method, path, token, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// request issues one HTTP call against the auth service. A "verification
// required" rejection is mapped to ErrVerificationRequired; other non-2xx
// responses surface the service's error message.
func (c *Client) request(ctx context.Context, method, path, token string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &apiErr) == nil {
			if apiErr.Code == "verification_required" || strings.Contains(strings.ToLower(apiErr.Error), "verification required") {
				return ErrVerificationRequired
			}
			if apiErr.Error != "" {
				return fmt.Errorf("auth API returned status %d: %s", resp.StatusCode, apiErr.Error)
			}
		}
		return fmt.Errorf("auth API returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode auth response: %w", err)
		}
	}

	return nil
}
