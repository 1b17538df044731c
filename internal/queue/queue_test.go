package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/detective-ai/gateway/internal/database"
	"github.com/detective-ai/gateway/internal/detectapi"
	"github.com/detective-ai/gateway/internal/models"
	"github.com/detective-ai/gateway/pkg/metrics"
)

var (
	testMetricsOnce sync.Once
	testMetrics     *metrics.BusinessMetrics
)

// businessMetrics registers on the default Prometheus registry, so the test
// binary creates the set exactly once.
func testBusinessMetrics() *metrics.BusinessMetrics {
	testMetricsOnce.Do(func() {
		testMetrics = metrics.NewBusinessMetrics("gateway_queue_test")
	})
	return testMetrics
}

func TestImageCompressionRoundTrip(t *testing.T) {
	data := []byte("\x89PNG\r\n\x1a\nfake image bytes for the round trip")

	encoded, err := compressImage(data)
	require.NoError(t, err)
	assert.NotEmpty(t, encoded)

	decoded, err := decompressImage(encoded)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestCompressImageRejectsEmpty(t *testing.T) {
	_, err := compressImage(nil)
	assert.Error(t, err)
}

func TestDecompressImageRejectsGarbage(t *testing.T) {
	_, err := decompressImage("not base64!!!")
	assert.Error(t, err)

	// Valid base64, not gzip.
	_, err = decompressImage("aGVsbG8=")
	assert.Error(t, err)
}

func TestRetryDelayProgression(t *testing.T) {
	task := asynq.NewTask(TypeAnalyzeImage, nil)

	assert.Equal(t, 30*time.Second, retryDelay(0, nil, task))
	assert.Equal(t, 1*time.Minute, retryDelay(1, nil, task))
	assert.Equal(t, 1*time.Hour, retryDelay(7, nil, task))
	// Past the table, the last delay holds.
	assert.Equal(t, 1*time.Hour, retryDelay(20, nil, task))
}

func TestIsRetriableRemoteError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retriable bool
	}{
		{"nil", nil, false},
		{"generic error", assert.AnError, false},
		{"timeout", context.DeadlineExceeded, true},
		{"service unavailable", errString("analysis API returned status 503: busy"), true},
		{"rate limited", errString("analysis API returned status 429"), true},
		{"bad request", errString("analysis API returned status 400: image too small"), false},
		{"dns failure", errString("dial tcp: lookup detect.internal: no such host"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retriable, isRetriableRemoteError(tt.err))
		})
	}
}

type errString string

func (e errString) Error() string { return string(e) }

func TestPreviewTruncation(t *testing.T) {
	short := "short extracted text"
	assert.Equal(t, short, preview(short))

	long := ""
	for len(long) < 400 {
		long += "lorem ipsum dolor sit amet "
	}
	got := preview(long)
	assert.Len(t, got, previewLength+3)
	assert.Equal(t, "...", got[len(got)-3:])
}

func setupWorker(t *testing.T, detectorURL string) (*Worker, *database.DB) {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "queue_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	detector, err := detectapi.New(detectorURL)
	require.NoError(t, err)

	w := NewWorker(WorkerConfig{RedisAddr: "localhost:6379", Concurrency: 1}, db, detector, testBusinessMetrics())
	w.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return w, db
}

func analyzeImageTask(t *testing.T, payload AnalyzeImagePayload) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(TypeAnalyzeImage, data)
}

func TestHandleAnalyzeImageSavesHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analyze/image/", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"is_ai":      true,
			"confidence": 0.91,
			"text":       "We leverage synergy to deliver results.",
			"analysis_details": map[string]interface{}{
				"found_jargon": []string{"leverage", "synergy"},
			},
		})
	}))
	defer server.Close()

	w, db := setupWorker(t, server.URL)

	encoded, err := compressImage([]byte("fake png"))
	require.NoError(t, err)

	task := analyzeImageTask(t, AnalyzeImagePayload{
		SubmissionID: "sub-1",
		UserID:       "user-1",
		Filename:     "screenshot.png",
		ImageData:    encoded,
		EnqueuedAt:   time.Now().UnixNano(),
	})

	require.NoError(t, w.handleAnalyzeImage(context.Background(), task))

	item, err := db.GetHistoryItem("sub-1")
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionImage, item.Type)
	assert.Equal(t, "screenshot.png", item.Title)
	assert.Equal(t, "user-1", item.UserID)
	assert.Equal(t, 91, item.Result.Confidence)
	assert.True(t, item.Result.IsAI)
	// Extracted text was annotated before storage.
	assert.Contains(t, item.Result.HighlightedText, `class="hl hl-jargon"`)
	assert.Contains(t, item.SourceText, "synergy")
}

func TestHandleAnalyzeImageRetriableFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	w, db := setupWorker(t, server.URL)

	encoded, err := compressImage([]byte("fake png"))
	require.NoError(t, err)

	task := analyzeImageTask(t, AnalyzeImagePayload{
		SubmissionID: "sub-2",
		Filename:     "a.png",
		ImageData:    encoded,
	})

	err = w.handleAnalyzeImage(context.Background(), task)
	require.Error(t, err)
	assert.True(t, isRetriableRemoteError(err))

	// Nothing saved, so job status still reads as pending.
	_, err = db.GetHistoryItem("sub-2")
	assert.ErrorIs(t, err, database.ErrHistoryNotFound)
}

func TestHandleAnalyzeImageCorruptPayload(t *testing.T) {
	w, _ := setupWorker(t, "http://localhost:0")

	task := analyzeImageTask(t, AnalyzeImagePayload{
		SubmissionID: "sub-3",
		Filename:     "a.png",
		ImageData:    "definitely not gzip",
	})

	err := w.handleAnalyzeImage(context.Background(), task)
	require.Error(t, err)
	// Corrupt payloads are permanent failures.
	assert.False(t, isRetriableRemoteError(err))
}
