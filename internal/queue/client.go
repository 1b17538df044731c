// Package queue runs image analysis in the background. Image submissions go
// through Redis via asynq because the remote detection API takes much longer
// on images than on text; the HTTP handler enqueues and returns a job ID the
// UI can poll.
package queue

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const TypeAnalyzeImage = "detective:analyze_image"

// QueueImageAnalysis is the queue name for image jobs.
const QueueImageAnalysis = "image-analysis"

// AnalyzeImagePayload carries everything the worker needs to run one image
// submission end to end. ImageData is gzip-compressed and base64-encoded;
// trace IDs link the worker span back to the enqueuing request.
type AnalyzeImagePayload struct {
	SubmissionID string `json:"submission_id"`
	UserID       string `json:"user_id,omitempty"`
	Filename     string `json:"filename"`
	ImageData    string `json:"image_data"`
	TraceID      string `json:"trace_id,omitempty"`
	SpanID       string `json:"span_id,omitempty"`
	EnqueuedAt   int64  `json:"enqueued_at"` // Unix nanoseconds
}

// Client enqueues image analysis tasks.
type Client struct {
	client *asynq.Client
}

// ClientConfig contains configuration for the queue client.
type ClientConfig struct {
	RedisAddr string
}

// NewClient creates a new queue client.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr}),
	}
}

// EnqueueAnalyzeImage schedules an image for background analysis. The task ID
// equals the submission ID, so job status can be answered by checking whether
// the history row exists yet.
func (c *Client) EnqueueAnalyzeImage(ctx context.Context, submissionID, userID, filename string, image []byte) (string, error) {
	encoded, err := compressImage(image)
	if err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}

	payload := AnalyzeImagePayload{
		SubmissionID: submissionID,
		UserID:       userID,
		Filename:     filename,
		ImageData:    encoded,
		EnqueuedAt:   time.Now().UnixNano(),
	}

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		payload.TraceID = sc.TraceID().String()
		payload.SpanID = sc.SpanID().String()

		span.AddEvent("task_enqueued", trace.WithAttributes(
			attribute.String("task.type", TypeAnalyzeImage),
			attribute.String("submission.id", submissionID),
			attribute.Int("image.bytes", len(image)),
		))
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task payload: %w", err)
	}

	task := asynq.NewTask(TypeAnalyzeImage, payloadBytes, asynq.TaskID(submissionID))

	opts := []asynq.Option{
		asynq.MaxRetry(8),
		asynq.Timeout(10 * time.Minute),
		asynq.Queue(QueueImageAnalysis),
		asynq.Retention(24 * time.Hour),
	}

	info, err := c.client.Enqueue(task, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue image analysis task: %w", err)
	}

	return info.ID, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// compressImage gzips and base64-encodes raw image bytes for the payload.
func compressImage(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("image is empty")
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return "", fmt.Errorf("failed to compress image: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("failed to close gzip writer: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// decompressImage reverses compressImage.
func decompressImage(encoded string) ([]byte, error) {
	compressed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("failed to read decompressed image: %w", err)
	}

	return data, nil
}
