package detectapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/analysis/text/" || r.Method != http.MethodPost {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "We delve into synergy.", req["text"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"is_ai": true,
			"confidence": 0.87,
			"detection_reasons": [
				{"type": "critical", "title": "AI keywords", "description": "Frequent AI vocabulary", "impact": "High"}
			],
			"statistics": {"total_words": 4, "sentences": 1, "avg_sentence_length": 4.0, "ai_keywords_count": 1, "corporate_jargon_count": 1},
			"analysis_details": {"found_keywords": ["delve"], "found_jargon": ["synergy"]}
		}`))
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)

	pred, err := client.AnalyzeText(context.Background(), "We delve into synergy.")
	require.NoError(t, err)

	assert.True(t, pred.Result.IsAI)
	assert.Equal(t, 87, pred.Result.Confidence)
	assert.Equal(t, []string{"delve"}, pred.Result.AnalysisDetails.FoundKeywords)
	assert.Equal(t, []string{"synergy"}, pred.Result.AnalysisDetails.FoundJargon)
	require.Len(t, pred.Result.DetectionReasons, 1)
	assert.Equal(t, "critical", pred.Result.DetectionReasons[0].Type)
	assert.Equal(t, "High", pred.Result.DetectionReasons[0].Impact)
	assert.Equal(t, 4, pred.Result.Statistics.TotalWords)
}

func TestAnalyzeTextServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)

	_, err = client.AnalyzeText(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestAnalyzeTextMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"is_ai": tru`))
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)

	_, err = client.AnalyzeText(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestAnalyzeImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/analyze/image/", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "scan.png", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"is_ai": false, "confidence": 0.12, "text": "extracted words", "statistics": {"total_words": 2, "sentences": 1}}`))
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)

	pred, err := client.AnalyzeImage(context.Background(), "scan.png", strings.NewReader("fake-png-bytes"))
	require.NoError(t, err)

	assert.False(t, pred.Result.IsAI)
	assert.Equal(t, 12, pred.Result.Confidence)
	assert.Equal(t, "extracted words", pred.Text)
}

func TestConfidenceRounding(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want int
	}{
		{"rounds half up", 0.875, 88},
		{"plain value", 0.87, 87},
		{"zero", 0, 0},
		{"one", 1, 100},
		{"below range", -0.2, 0},
		{"above range", 1.5, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clampPercent(tt.in); got != tt.want {
				t.Errorf("clampPercent(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestNegativeCountersClamped(t *testing.T) {
	wire := wirePrediction{Statistics: wireStats{TotalWords: -3, Sentences: 2, AvgSentenceLength: -1}}
	result := mapPrediction(wire)

	assert.Equal(t, 0, result.Statistics.TotalWords)
	assert.Equal(t, 2, result.Statistics.Sentences)
	assert.Equal(t, 0.0, result.Statistics.AvgSentenceLength)
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
}
