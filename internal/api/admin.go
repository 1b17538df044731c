package api

import (
	"net/http"
	"strings"

	"github.com/detective-ai/gateway/internal/database"
)

// handleSubmissions relays the caller's server-side submission history.
func (h *Handler) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess := h.requireSession(w, r)
	if sess == nil {
		return
	}

	submissions, err := h.auth.FetchSubmissions(r.Context(), sess.Token)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadGateway)
		return
	}

	respondJSON(w, submissions, http.StatusOK)
}

// handleSubmissionDelete removes one server-side submission.
func (h *Handler) handleSubmissionDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/submissions/")
	if id == "" {
		respondError(w, "Submission ID is required", http.StatusBadRequest)
		return
	}

	sess := h.requireSession(w, r)
	if sess == nil {
		return
	}

	if err := h.auth.DeleteSubmission(r.Context(), sess.Token, id); err != nil {
		respondError(w, err.Error(), http.StatusBadGateway)
		return
	}

	// Remote delete succeeded; drop the local copy too. A row that was never
	// cached locally is fine.
	if err := h.db.DeleteHistoryItem(id); err != nil && err != database.ErrHistoryNotFound {
		h.logger.Error("failed to delete local history row", "id", id, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleFeedbackSubmit files feedback on a submission with the remote service.
func (h *Handler) handleFeedbackSubmit(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	sess := h.requireSession(w, r)
	if sess == nil {
		return
	}

	var req struct {
		SubmissionID string `json:"submissionId"`
		Message      string `json:"message"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SubmissionID == "" || req.Message == "" {
		respondError(w, "Submission ID and message are required", http.StatusBadRequest)
		return
	}

	if err := h.auth.SubmitFeedback(r.Context(), sess.Token, req.SubmissionID, req.Message); err != nil {
		respondError(w, err.Error(), http.StatusBadGateway)
		return
	}

	respondJSON(w, map[string]string{"status": "submitted"}, http.StatusCreated)
}

// requireAdmin resolves an admin session or writes the appropriate error.
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) *string {
	sess := h.requireSession(w, r)
	if sess == nil {
		return nil
	}
	if !sess.User.IsAdmin {
		respondError(w, "Admin access required", http.StatusForbidden)
		return nil
	}
	return &sess.Token
}

func (h *Handler) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token := h.requireAdmin(w, r)
	if token == nil {
		return
	}

	raw, err := h.auth.AdminStats(r.Context(), *token)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadGateway)
		return
	}
	respondJSON(w, raw, http.StatusOK)
}

func (h *Handler) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token := h.requireAdmin(w, r)
	if token == nil {
		return
	}

	raw, err := h.auth.AdminUsers(r.Context(), *token)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadGateway)
		return
	}
	respondJSON(w, raw, http.StatusOK)
}

func (h *Handler) handleAdminFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token := h.requireAdmin(w, r)
	if token == nil {
		return
	}

	raw, err := h.auth.AdminFeedbackList(r.Context(), *token)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadGateway)
		return
	}
	respondJSON(w, raw, http.StatusOK)
}

// handleAdminFeedbackItem dispatches /api/admin/feedback/{id} and its
// reviewed/resolved sub-resources.
func (h *Handler) handleAdminFeedbackItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/admin/feedback/")
	if rest == "" {
		respondError(w, "Feedback ID is required", http.StatusBadRequest)
		return
	}

	token := h.requireAdmin(w, r)
	if token == nil {
		return
	}

	id := rest
	action := ""
	if idx := strings.Index(rest, "/"); idx != -1 {
		id = rest[:idx]
		action = rest[idx+1:]
	}

	switch {
	case r.Method == http.MethodGet && action == "":
		raw, err := h.auth.AdminFeedbackDetail(r.Context(), *token, id)
		if err != nil {
			respondError(w, err.Error(), http.StatusBadGateway)
			return
		}
		respondJSON(w, raw, http.StatusOK)

	case r.Method == http.MethodPut && action == "reviewed":
		if err := h.auth.AdminMarkFeedbackReviewed(r.Context(), *token, id); err != nil {
			respondError(w, err.Error(), http.StatusBadGateway)
			return
		}
		respondJSON(w, map[string]string{"status": "reviewed"}, http.StatusOK)

	case r.Method == http.MethodPut && action == "resolved":
		if err := h.auth.AdminMarkFeedbackResolved(r.Context(), *token, id); err != nil {
			respondError(w, err.Error(), http.StatusBadGateway)
			return
		}
		respondJSON(w, map[string]string{"status": "resolved"}, http.StatusOK)

	case r.Method == http.MethodDelete && action == "":
		if err := h.auth.AdminDeleteFeedback(r.Context(), *token, id); err != nil {
			respondError(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
