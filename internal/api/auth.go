package api

import (
	"encoding/json"
	"net/http"
)

// decodeBody decodes a JSON request body into dst, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	result, err := h.flow.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		h.metrics.AuthEventsTotal.WithLabelValues("register", "error").Inc()
		respondError(w, err.Error(), http.StatusBadGateway)
		return
	}

	h.metrics.AuthEventsTotal.WithLabelValues("register", "success").Inc()
	respondJSON(w, result, http.StatusCreated)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.flow.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.metrics.AuthEventsTotal.WithLabelValues("login", "error").Inc()
		respondError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	h.metrics.AuthEventsTotal.WithLabelValues("login", "success").Inc()

	resp := map[string]interface{}{"state": result.State}
	if result.Session != nil {
		resp["token"] = result.Session.Token
		resp["user"] = result.Session.User
	}
	if result.Message != "" {
		resp["message"] = result.Message
	}
	respondJSON(w, resp, http.StatusOK)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	token := bearerToken(r)
	if token == "" {
		respondError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	result, err := h.flow.Logout(token)
	if err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.metrics.AuthEventsTotal.WithLabelValues("logout", "success").Inc()
	respondJSON(w, result, http.StatusOK)
}

func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Code == "" {
		respondError(w, "Email and code are required", http.StatusBadRequest)
		return
	}

	result, err := h.flow.VerifyEmail(r.Context(), req.Email, req.Code)
	if err != nil {
		h.metrics.AuthEventsTotal.WithLabelValues("verify_email", "error").Inc()
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.metrics.AuthEventsTotal.WithLabelValues("verify_email", "success").Inc()
	respondJSON(w, map[string]interface{}{
		"state": result.State,
		"token": result.Session.Token,
		"user":  result.Session.User,
	}, http.StatusOK)
}

func (h *Handler) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.flow.ResendVerification(r.Context(), req.Email)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadGateway)
		return
	}
	respondJSON(w, result, http.StatusOK)
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.flow.ForgotPassword(r.Context(), bearerToken(r), req.Email)
	if err != nil {
		h.metrics.AuthEventsTotal.WithLabelValues("forgot_password", "error").Inc()
		respondError(w, err.Error(), http.StatusBadGateway)
		return
	}

	h.metrics.AuthEventsTotal.WithLabelValues("forgot_password", "success").Inc()
	respondJSON(w, result, http.StatusOK)
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		Email       string `json:"email"`
		Code        string `json:"code"`
		NewPassword string `json:"newPassword"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Code == "" || req.NewPassword == "" {
		respondError(w, "Email, code and new password are required", http.StatusBadRequest)
		return
	}

	result, err := h.flow.ResetPassword(r.Context(), bearerToken(r), req.Email, req.Code, req.NewPassword)
	if err != nil {
		h.metrics.AuthEventsTotal.WithLabelValues("reset_password", "error").Inc()
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.metrics.AuthEventsTotal.WithLabelValues("reset_password", "success").Inc()
	respondJSON(w, result, http.StatusOK)
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	sess := h.requireSession(w, r)
	if sess == nil {
		return
	}

	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.flow.ChangePassword(r.Context(), sess.Token, req.CurrentPassword, req.NewPassword)
	if err != nil {
		h.metrics.AuthEventsTotal.WithLabelValues("change_password", "error").Inc()
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.metrics.AuthEventsTotal.WithLabelValues("change_password", "success").Inc()
	respondJSON(w, result, http.StatusOK)
}

// handleMe returns the stored session user, refreshed from the remote API so
// a revoked token is noticed here rather than on the next real operation.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess := h.requireSession(w, r)
	if sess == nil {
		return
	}

	user, err := h.auth.Me(r.Context(), sess.Token)
	if err != nil {
		// Token no longer honored remotely: drop the local pair too.
		if clearErr := h.sessions.Clear(sess.Token); clearErr != nil {
			h.logger.Error("failed to clear stale session", "error", clearErr)
		}
		respondError(w, "Session expired", http.StatusUnauthorized)
		return
	}

	sess.User = *user
	if err := h.sessions.Update(sess); err != nil {
		h.logger.Error("failed to refresh session user", "error", err)
	}

	respondJSON(w, map[string]interface{}{
		"state": sess.State,
		"user":  user,
	}, http.StatusOK)
}

func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess := h.requireSession(w, r)
	if sess == nil {
		return
	}

	var fields map[string]string
	if !decodeBody(w, r, &fields) {
		return
	}

	user, err := h.auth.UpdateUser(r.Context(), sess.Token, sess.User.ID, fields)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess.User = *user
	if err := h.sessions.Update(sess); err != nil {
		h.logger.Error("failed to update session user", "error", err)
	}

	respondJSON(w, user, http.StatusOK)
}

// handleDeleteUser removes the account remotely, then clears the session.
func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess := h.requireSession(w, r)
	if sess == nil {
		return
	}

	if err := h.auth.DeleteUser(r.Context(), sess.Token, sess.User.ID); err != nil {
		respondError(w, err.Error(), http.StatusBadGateway)
		return
	}

	if err := h.sessions.Clear(sess.Token); err != nil {
		h.logger.Error("failed to clear session after account deletion", "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}
