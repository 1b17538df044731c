package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/detective-ai/gateway/internal/annotate"
	"github.com/detective-ai/gateway/internal/models"
	"github.com/detective-ai/gateway/pkg/tracing"
)

const previewLength = 150

// handleAnalyzeImage runs one queued image submission: send the image to the
// remote detection API, annotate the extracted text, and store the finished
// history item. Job status polling keys off the stored row, so the save is
// the moment the job counts as done.
func (w *Worker) handleAnalyzeImage(ctx context.Context, t *asynq.Task) error {
	var payload AnalyzeImagePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.logger.Error("failed to unmarshal task payload", "error", err)
		return fmt.Errorf("invalid task payload: %w", err)
	}

	retryCount, _ := asynq.GetRetryCount(ctx)

	var queueWait time.Duration
	if payload.EnqueuedAt > 0 {
		queueWait = time.Since(time.Unix(0, payload.EnqueuedAt))
	}

	w.logger.Info("processing image analysis",
		"submission_id", payload.SubmissionID,
		"filename", payload.Filename,
		"retry_count", retryCount,
		"queue_wait_seconds", queueWait.Seconds(),
	)

	// Link the worker span to the enqueuing request.
	ctx = tracing.ContextWithRemoteTrace(ctx, payload.TraceID, payload.SpanID)
	ctx, span := otel.Tracer("gateway").Start(ctx, "asynq.task.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("task.type", TypeAnalyzeImage),
			attribute.String("submission.id", payload.SubmissionID),
			attribute.Int("retry_count", retryCount),
			attribute.Float64("queue.wait_time_seconds", queueWait.Seconds()),
		),
	)
	defer span.End()

	image, err := decompressImage(payload.ImageData)
	if err != nil {
		// Corrupt payload, retrying cannot help.
		w.businessMetrics.QueueJobsTotal.WithLabelValues(TypeAnalyzeImage, "invalid").Inc()
		return fmt.Errorf("failed to decode image payload: %w", err)
	}

	start := time.Now()
	prediction, err := w.detector.AnalyzeImage(ctx, payload.Filename, bytes.NewReader(image))
	if err != nil {
		if isRetriableRemoteError(err) {
			w.logger.Warn("retriable detection API error, will retry",
				"submission_id", payload.SubmissionID,
				"error", err,
				"retry_count", retryCount,
			)
			w.businessMetrics.QueueJobsTotal.WithLabelValues(TypeAnalyzeImage, "retry").Inc()
			return err
		}

		w.logger.Error("permanent detection API error",
			"submission_id", payload.SubmissionID,
			"error", err,
		)
		w.businessMetrics.QueueJobsTotal.WithLabelValues(TypeAnalyzeImage, "error").Inc()
		w.businessMetrics.AnalysesTotal.WithLabelValues(models.SubmissionImage, "error").Inc()
		return fmt.Errorf("image analysis failed: %w", err)
	}

	w.businessMetrics.AnalysisDuration.WithLabelValues(models.SubmissionImage).Observe(time.Since(start).Seconds())

	result := prediction.Result
	if prediction.Text != "" {
		result.HighlightedText = annotate.Annotate(prediction.Text, result.AnalysisDetails)
		w.businessMetrics.HighlightsGenerated.Inc()
	}

	item := &models.HistoryItem{
		ID:         payload.SubmissionID,
		UserID:     payload.UserID,
		Type:       models.SubmissionImage,
		Title:      payload.Filename,
		Date:       time.Now().UTC(),
		Content:    preview(prediction.Text),
		SourceText: prediction.Text,
		Result:     &result,
	}

	if err := w.db.SaveHistoryItem(item); err != nil {
		// Local SQLite failure is worth a retry.
		w.logger.Warn("failed to save history item, will retry",
			"submission_id", payload.SubmissionID,
			"error", err,
		)
		return err
	}

	w.businessMetrics.QueueJobsTotal.WithLabelValues(TypeAnalyzeImage, "success").Inc()
	w.businessMetrics.AnalysesTotal.WithLabelValues(models.SubmissionImage, "success").Inc()

	w.logger.Info("image analysis completed",
		"submission_id", payload.SubmissionID,
		"is_ai", result.IsAI,
		"confidence", result.Confidence,
		"retry_count", retryCount,
	)

	return nil
}

// preview truncates extracted text for list views.
func preview(text string) string {
	if len(text) <= previewLength {
		return text
	}
	cut := text[:previewLength]
	// Avoid splitting a UTF-8 sequence.
	for len(cut) > 0 && cut[len(cut)-1]&0xC0 == 0x80 {
		cut = cut[:len(cut)-1]
	}
	return cut + "..."
}

// isRetriableRemoteError separates transient remote failures from permanent
// ones so asynq only retries what can succeed later.
func isRetriableRemoteError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	retriablePatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"service unavailable",
		"bad gateway",
		"gateway timeout",
		"too many requests",
		"context deadline exceeded",
		"i/o timeout",
		"no such host",
		"network is unreachable",
		"status 429",
		"status 502",
		"status 503",
		"status 504",
	}

	for _, pattern := range retriablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
