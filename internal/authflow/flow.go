// Package authflow sequences the multi-step authentication flows against the
// remote auth API. Every state transition is driven by a remote response;
// nothing here decides on its own that a user became verified or reset a
// password. The only purely local operation is logout, which drops the stored
// session without calling out.
package authflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/detective-ai/gateway/internal/authapi"
	"github.com/detective-ai/gateway/internal/models"
	"github.com/detective-ai/gateway/internal/session"
)

// Result reports where a flow step landed. Session is non-nil only once the
// remote API has issued a token, i.e. in the authenticated state.
type Result struct {
	State   string          `json:"state"`
	Session *models.Session `json:"-"`
	User    *models.User    `json:"user,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Flow drives auth state against the remote API and the session store.
type Flow struct {
	client   *authapi.Client
	sessions *session.Store
	logger   *slog.Logger
}

// New creates a Flow.
func New(client *authapi.Client, sessions *session.Store, logger *slog.Logger) *Flow {
	return &Flow{client: client, sessions: sessions, logger: logger}
}

// Register submits a new account. On success the account exists remotely but
// is unverified, so the flow lands in pending_verification with no session.
func (f *Flow) Register(ctx context.Context, email, name, password string) (*Result, error) {
	if err := f.client.Register(ctx, email, name, password); err != nil {
		return nil, err
	}

	f.logger.Info("registration accepted", "email", email)
	return &Result{
		State:   models.StatePendingVerification,
		Message: "verification code sent",
	}, nil
}

// Login exchanges credentials for a token. An unverified account is not a
// failure: the remote rejection moves the flow to pending_verification so the
// caller can prompt for the code.
func (f *Flow) Login(ctx context.Context, email, password string) (*Result, error) {
	res, err := f.client.Login(ctx, email, password)
	if errors.Is(err, authapi.ErrVerificationRequired) {
		f.logger.Info("login requires verification", "email", email)
		return &Result{
			State:   models.StatePendingVerification,
			Message: "email verification required",
		}, nil
	}
	if err != nil {
		return nil, err
	}

	sess, err := f.sessions.Establish(res.Token, res.User)
	if err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	f.logger.Info("login succeeded", "user_id", res.User.ID)
	return &Result{State: models.StateAuthenticated, Session: sess, User: &res.User}, nil
}

// VerifyEmail confirms the code from the verification mail. The remote API
// responds with a token and user, so success goes straight to authenticated.
func (f *Flow) VerifyEmail(ctx context.Context, email, code string) (*Result, error) {
	res, err := f.client.VerifyEmail(ctx, email, code)
	if err != nil {
		return nil, err
	}

	sess, err := f.sessions.Establish(res.Token, res.User)
	if err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	f.logger.Info("email verified", "user_id", res.User.ID)
	return &Result{State: models.StateAuthenticated, Session: sess, User: &res.User}, nil
}

// ResendVerification asks the remote API for a fresh code. The flow stays in
// pending_verification regardless.
func (f *Flow) ResendVerification(ctx context.Context, email string) (*Result, error) {
	if err := f.client.ResendVerification(ctx, email); err != nil {
		return nil, err
	}
	return &Result{
		State:   models.StatePendingVerification,
		Message: "verification code resent",
	}, nil
}

// ForgotPassword starts the reset flow. If a token is given, the session it
// names moves to reset_requested; anonymous callers just get the state back.
func (f *Flow) ForgotPassword(ctx context.Context, token, email string) (*Result, error) {
	if err := f.client.ForgotPassword(ctx, email); err != nil {
		return nil, err
	}

	if token != "" {
		sess, err := f.sessions.Load(token)
		if err == nil {
			sess.State = models.StateResetRequested
			sess.PendingEmail = email
			if err := f.sessions.Update(sess); err != nil {
				return nil, fmt.Errorf("failed to update session: %w", err)
			}
		}
	}

	f.logger.Info("password reset requested", "email", email)
	return &Result{
		State:   models.StatePendingReset,
		Message: "reset code sent",
	}, nil
}

// ResetPassword completes the reset with the emailed code. The remote API does
// not issue a token here, so the flow returns to anonymous and the caller logs
// in with the new password.
func (f *Flow) ResetPassword(ctx context.Context, token, email, code, newPassword string) (*Result, error) {
	if err := f.client.ResetPassword(ctx, email, code, newPassword); err != nil {
		return nil, err
	}

	// A completed reset invalidates whatever session asked for it.
	if token != "" {
		if err := f.sessions.Clear(token); err != nil {
			return nil, fmt.Errorf("failed to clear session: %w", err)
		}
	}

	f.logger.Info("password reset completed", "email", email)
	return &Result{
		State:   models.StateAnonymous,
		Message: "password reset, please log in",
	}, nil
}

// ChangePassword updates the password of an authenticated user in place. The
// session survives; the remote API keeps the token valid.
func (f *Flow) ChangePassword(ctx context.Context, token, current, next string) (*Result, error) {
	sess, err := f.sessions.Load(token)
	if err != nil {
		return nil, err
	}

	if err := f.client.ChangePassword(ctx, token, sess.User.ID, current, next); err != nil {
		return nil, err
	}

	f.logger.Info("password changed", "user_id", sess.User.ID)
	return &Result{State: models.StateAuthenticated, Session: sess, User: &sess.User}, nil
}

// Logout clears the local session. No remote call is made; the token simply
// stops being presented.
func (f *Flow) Logout(token string) (*Result, error) {
	if err := f.sessions.Clear(token); err != nil {
		return nil, err
	}
	return &Result{State: models.StateAnonymous}, nil
}
