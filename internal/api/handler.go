// Package api is the gateway's HTTP surface: analysis submission, job
// polling, local history, the auth flows, and passthrough to the remote user
// service's submission, feedback, and admin endpoints.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/detective-ai/gateway/internal/authapi"
	"github.com/detective-ai/gateway/internal/authflow"
	"github.com/detective-ai/gateway/internal/database"
	"github.com/detective-ai/gateway/internal/detectapi"
	"github.com/detective-ai/gateway/internal/models"
	"github.com/detective-ai/gateway/internal/session"
	"github.com/detective-ai/gateway/pkg/metrics"
)

// dbTimeout bounds local database calls from handlers.
const dbTimeout = 30 * time.Second

// imageEnqueuer is the slice of the queue client handlers need.
type imageEnqueuer interface {
	EnqueueAnalyzeImage(ctx context.Context, submissionID, userID, filename string, image []byte) (string, error)
}

// Handler handles HTTP requests.
type Handler struct {
	db       *database.DB
	detector *detectapi.Client
	auth     *authapi.Client
	flow     *authflow.Flow
	sessions *session.Store
	queue    imageEnqueuer
	metrics  *metrics.BusinessMetrics
	logger   *slog.Logger
	mux      *http.ServeMux
}

// Config bundles the handler's collaborators.
type Config struct {
	DB       *database.DB
	Detector *detectapi.Client
	Auth     *authapi.Client
	Flow     *authflow.Flow
	Sessions *session.Store
	Queue    imageEnqueuer
	Metrics  *metrics.BusinessMetrics
	Logger   *slog.Logger
}

// NewHandler creates the API handler wrapped with CORS.
func NewHandler(cfg Config) http.Handler {
	h := &Handler{
		db:       cfg.DB,
		detector: cfg.Detector,
		auth:     cfg.Auth,
		flow:     cfg.Flow,
		sessions: cfg.Sessions,
		queue:    cfg.Queue,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		mux:      http.NewServeMux(),
	}

	h.setupRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return c.Handler(h.mux)
}

// setupRoutes configures all API routes.
func (h *Handler) setupRoutes() {
	h.mux.Handle("/metrics", promhttp.Handler())
	h.mux.HandleFunc("/health", h.handleHealth)

	h.mux.HandleFunc("/api/analysis/text", h.handleAnalyzeText)
	h.mux.HandleFunc("/api/analysis/image", h.handleAnalyzeImage)
	h.mux.HandleFunc("/api/jobs/", h.handleJobStatus)

	h.mux.HandleFunc("/api/history", h.handleHistory)
	h.mux.HandleFunc("/api/history/", h.handleHistoryItem)

	h.mux.HandleFunc("/api/auth/register", h.handleRegister)
	h.mux.HandleFunc("/api/auth/login", h.handleLogin)
	h.mux.HandleFunc("/api/auth/logout", h.handleLogout)
	h.mux.HandleFunc("/api/auth/verify-email", h.handleVerifyEmail)
	h.mux.HandleFunc("/api/auth/resend-verification", h.handleResendVerification)
	h.mux.HandleFunc("/api/auth/forgot-password", h.handleForgotPassword)
	h.mux.HandleFunc("/api/auth/reset-password", h.handleResetPassword)
	h.mux.HandleFunc("/api/auth/change-password", h.handleChangePassword)
	h.mux.HandleFunc("/api/auth/me", h.handleMe)

	h.mux.HandleFunc("/api/users/logout", h.handleLogout)
	h.mux.HandleFunc("/api/users/update", h.handleUpdateUser)
	h.mux.HandleFunc("/api/users/delete", h.handleDeleteUser)

	h.mux.HandleFunc("/api/user/submissions", h.handleSubmissions)
	h.mux.HandleFunc("/api/submissions/", h.handleSubmissionDelete)
	h.mux.HandleFunc("/api/feedback/submit", h.handleFeedbackSubmit)

	h.mux.HandleFunc("/api/admin/stats", h.handleAdminStats)
	h.mux.HandleFunc("/api/admin/users", h.handleAdminUsers)
	h.mux.HandleFunc("/api/admin/feedback", h.handleAdminFeedback)
	h.mux.HandleFunc("/api/admin/feedback/", h.handleAdminFeedbackItem)
}

// handleHealth handles health check requests.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// bearerToken pulls the token from the Authorization header, or "".
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// currentSession resolves the request's session, or nil for anonymous
// callers and stale tokens.
func (h *Handler) currentSession(r *http.Request) *models.Session {
	token := bearerToken(r)
	if token == "" {
		return nil
	}
	sess, err := h.sessions.Load(token)
	if err != nil {
		return nil
	}
	return sess
}

// requireSession resolves the session or writes a 401.
func (h *Handler) requireSession(w http.ResponseWriter, r *http.Request) *models.Session {
	sess := h.currentSession(r)
	if sess == nil {
		respondError(w, "Authentication required", http.StatusUnauthorized)
		return nil
	}
	return sess
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
