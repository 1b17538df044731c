package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/detective-ai/gateway/internal/annotate"
	"github.com/detective-ai/gateway/internal/database"
	"github.com/detective-ai/gateway/internal/models"
	"github.com/detective-ai/gateway/pkg/logging"
	"github.com/detective-ai/gateway/pkg/tracing"
)

const (
	maxImageBytes = 10 << 20
	titleLength   = 60
	contentLength = 150
)

// handleAnalyzeText runs a text submission synchronously: remote detection,
// local annotation, history save, full result back in one response.
func (h *Handler) handleAnalyzeText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, "Text field is required", http.StatusBadRequest)
		return
	}

	tracing.SetSpanAttributes(r.Context(),
		attribute.Int("text.length", len(req.Text)))

	start := time.Now()
	prediction, err := h.detector.AnalyzeText(r.Context(), req.Text)
	if err != nil {
		h.metrics.AnalysesTotal.WithLabelValues(models.SubmissionText, "error").Inc()
		logging.HTTPErrorLogger(h.logger, http.StatusBadGateway, err, r)
		respondError(w, "Analysis service unavailable", http.StatusBadGateway)
		return
	}
	h.metrics.AnalysisDuration.WithLabelValues(models.SubmissionText).Observe(time.Since(start).Seconds())
	h.metrics.AnalysesTotal.WithLabelValues(models.SubmissionText, "success").Inc()

	result := prediction.Result
	result.HighlightedText = annotate.Annotate(req.Text, result.AnalysisDetails)
	h.metrics.HighlightsGenerated.Inc()

	var userID string
	if sess := h.currentSession(r); sess != nil {
		userID = sess.User.ID
	}

	item := &models.HistoryItem{
		ID:         uuid.New().String(),
		UserID:     userID,
		Type:       models.SubmissionText,
		Title:      truncateRunes(req.Text, titleLength),
		Date:       time.Now().UTC(),
		Content:    truncateRunes(req.Text, contentLength),
		SourceText: req.Text,
		Result:     &result,
	}

	if err := h.db.SaveHistoryItem(item); err != nil {
		logging.HTTPErrorLogger(h.logger, http.StatusInternalServerError, err, r)
		respondError(w, "Failed to save result", http.StatusInternalServerError)
		return
	}

	respondJSON(w, item, http.StatusOK)
}

// handleAnalyzeImage accepts a multipart upload and queues it. The response
// carries the job ID the UI polls; the worker fills in the history row.
func (h *Handler) handleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		respondError(w, "Invalid multipart request", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, "Image field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		respondError(w, "Failed to read image", http.StatusBadRequest)
		return
	}
	if len(image) == 0 {
		respondError(w, "Image is empty", http.StatusBadRequest)
		return
	}
	if len(image) > maxImageBytes {
		respondError(w, "Image too large", http.StatusRequestEntityTooLarge)
		return
	}

	var userID string
	if sess := h.currentSession(r); sess != nil {
		userID = sess.User.ID
	}

	submissionID := uuid.New().String()

	tracing.SetSpanAttributes(r.Context(),
		attribute.String("submission.id", submissionID),
		attribute.Int("image.bytes", len(image)))

	taskID, err := h.queue.EnqueueAnalyzeImage(r.Context(), submissionID, userID, header.Filename, image)
	if err != nil {
		logging.HTTPErrorLogger(h.logger, http.StatusInternalServerError, err, r)
		respondError(w, "Failed to queue analysis", http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]interface{}{
		"job_id":  submissionID,
		"task_id": taskID,
		"status":  "queued",
	}, http.StatusAccepted)
}

// handleJobStatus reports an image job's progress. The worker's history save
// is the completion signal, so a missing row means the job is still running.
func (h *Handler) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if idx := strings.Index(jobID, "/"); idx != -1 {
		jobID = jobID[:idx]
	}
	if jobID == "" {
		respondError(w, "Job ID is required", http.StatusBadRequest)
		return
	}

	item, err := h.db.GetHistoryItem(jobID)
	if err != nil {
		if err == database.ErrHistoryNotFound {
			respondJSON(w, map[string]interface{}{
				"job_id": jobID,
				"status": "processing",
			}, http.StatusOK)
			return
		}
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]interface{}{
		"job_id": jobID,
		"status": "completed",
		"result": item,
	}, http.StatusOK)
}

// handleHistory lists the caller's stored submissions, newest first.
// Highlighted markup is regenerated on the way out for rows saved before
// annotation existed or whose markup was stripped.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var userID string
	if sess := h.currentSession(r); sess != nil {
		userID = sess.User.ID
	}

	limit := 50
	offset := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	resultChan := make(chan []*models.HistoryItem, 1)
	errorChan := make(chan error, 1)

	go func() {
		items, err := h.db.ListHistory(userID, limit, offset)
		if err != nil {
			errorChan <- err
			return
		}
		resultChan <- items
	}()

	select {
	case items := <-resultChan:
		for _, item := range items {
			h.ensureHighlighted(item)
		}
		if items == nil {
			items = []*models.HistoryItem{}
		}
		respondJSON(w, items, http.StatusOK)
	case err := <-errorChan:
		respondError(w, err.Error(), http.StatusInternalServerError)
	case <-time.After(dbTimeout):
		respondError(w, "Request timeout", http.StatusRequestTimeout)
	}
}

// handleHistoryItem handles GET and DELETE for one stored submission.
func (h *Handler) handleHistoryItem(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/history/")
	if id == "" {
		respondError(w, "History ID is required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getHistoryItem(w, r, id)
	case http.MethodDelete:
		h.deleteHistoryItem(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) getHistoryItem(w http.ResponseWriter, r *http.Request, id string) {
	resultChan := make(chan *models.HistoryItem, 1)
	errorChan := make(chan error, 1)

	go func() {
		item, err := h.db.GetHistoryItem(id)
		if err != nil {
			errorChan <- err
			return
		}
		resultChan <- item
	}()

	select {
	case item := <-resultChan:
		h.ensureHighlighted(item)
		respondJSON(w, item, http.StatusOK)
	case err := <-errorChan:
		if err == database.ErrHistoryNotFound {
			respondError(w, err.Error(), http.StatusNotFound)
		} else {
			respondError(w, err.Error(), http.StatusInternalServerError)
		}
	case <-time.After(dbTimeout):
		respondError(w, "Request timeout", http.StatusRequestTimeout)
	}
}

func (h *Handler) deleteHistoryItem(w http.ResponseWriter, r *http.Request, id string) {
	errorChan := make(chan error, 1)
	doneChan := make(chan bool, 1)

	go func() {
		if err := h.db.DeleteHistoryItem(id); err != nil {
			errorChan <- err
			return
		}
		doneChan <- true
	}()

	select {
	case <-doneChan:
		w.WriteHeader(http.StatusNoContent)
	case err := <-errorChan:
		if err == database.ErrHistoryNotFound {
			respondError(w, err.Error(), http.StatusNotFound)
		} else {
			respondError(w, err.Error(), http.StatusInternalServerError)
		}
	case <-time.After(dbTimeout):
		respondError(w, "Request timeout", http.StatusRequestTimeout)
	}
}

// ensureHighlighted regenerates annotated markup for rows that lack it and
// writes the result back, so regeneration runs at most once per row. Full
// source text is preferred; the truncated preview with its trailing ellipsis
// stripped is the fallback for rows saved before source text was stored.
func (h *Handler) ensureHighlighted(item *models.HistoryItem) {
	if item == nil || item.Result == nil {
		return
	}
	if annotate.Highlighted(item.Result.HighlightedText) {
		return
	}
	if item.Result.AnalysisDetails.Empty() {
		return
	}

	source := item.SourceText
	if source == "" {
		source = annotate.StripEllipsis(item.Content)
	}
	if source == "" {
		return
	}

	item.Result.HighlightedText = annotate.Annotate(source, item.Result.AnalysisDetails)
	h.metrics.HighlightsGenerated.Inc()

	// The fresh markup still goes out even if the write-back fails.
	if err := h.db.SaveHistoryItem(item); err != nil {
		h.logger.Error("failed to persist regenerated highlights", "id", item.ID, "error", err)
	}
}

// truncateRunes cuts text at a rune boundary and appends an ellipsis.
func truncateRunes(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max]) + "..."
}
