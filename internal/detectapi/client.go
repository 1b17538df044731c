// Package detectapi is the HTTP client for the remote Detective AI analysis
// service. The service owns all detection logic; this package only submits
// text or image bytes and maps the snake_case wire responses into the
// camelCase domain model the rest of the gateway works with.
package detectapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/detective-ai/gateway/internal/models"
)

const (
	DefaultTimeout = 120 * time.Second

	textAnalysisPath  = "/api/analysis/text/"
	imageAnalysisPath = "/api/analyze/image/"
)

// Client wraps the remote analysis API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// New creates a new analysis API client.
func New(baseURL string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("analysis API URL is required")
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		timeout:    DefaultTimeout,
	}, nil
}

// wirePrediction is the response shape the analysis service returns.
type wirePrediction struct {
	IsAI       bool         `json:"is_ai"`
	Confidence float64      `json:"confidence"` // probability in [0,1]
	Reasons    []wireReason `json:"detection_reasons"`
	Statistics wireStats    `json:"statistics"`
	Details    wireDetails  `json:"analysis_details"`
	Text       string       `json:"text,omitempty"` // extracted text for image submissions
}

type wireReason struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Impact      string `json:"impact"`
}

type wireStats struct {
	TotalWords              int     `json:"total_words"`
	Sentences               int     `json:"sentences"`
	AvgSentenceLength       float64 `json:"avg_sentence_length"`
	AIKeywordsCount         int     `json:"ai_keywords_count"`
	TransitionWordsCount    int     `json:"transition_words_count"`
	CorporateJargonCount    int     `json:"corporate_jargon_count"`
	BuzzwordsCount          int     `json:"buzzwords_count"`
	SuspiciousPatternsCount int     `json:"suspicious_patterns_count"`
	HumanIndicatorsCount    int     `json:"human_indicators_count"`
}

type wireDetails struct {
	FoundKeywords        []string `json:"found_keywords"`
	FoundPatterns        []string `json:"found_patterns"`
	FoundTransitions     []string `json:"found_transitions"`
	FoundJargon          []string `json:"found_jargon"`
	FoundBuzzwords       []string `json:"found_buzzwords"`
	FoundHumanIndicators []string `json:"found_human_indicators"`
}

// Prediction is the mapped result of one analysis call. Text carries the
// server-extracted source text for image submissions, empty otherwise.
type Prediction struct {
	Result models.AnalysisResult
	Text   string
}

// AnalyzeText submits raw text for detection.
func (c *Client) AnalyzeText(ctx context.Context, text string) (*Prediction, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analysis request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+textAnalysisPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build analysis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

// AnalyzeImage uploads image bytes as multipart form data for detection.
func (c *Client) AnalyzeImage(ctx context.Context, filename string, image io.Reader) (*Prediction, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, fmt.Errorf("failed to copy image data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+imageAnalysisPath, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to build image analysis request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.do(req)
}

// do executes a prepared request and maps the wire response.
func (c *Client) do(req *http.Request) (*Prediction, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analysis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("analysis API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var wire wirePrediction
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode analysis response: %w", err)
	}

	return &Prediction{Result: mapPrediction(wire), Text: wire.Text}, nil
}

// mapPrediction converts a wire prediction into the domain result. The wire
// confidence is a 0-1 probability and becomes a rounded integer percentage
// (0.875 rounds to 88, not 87). Counters never go below zero.
func mapPrediction(wire wirePrediction) models.AnalysisResult {
	reasons := make([]models.DetectionReason, 0, len(wire.Reasons))
	for _, r := range wire.Reasons {
		reasons = append(reasons, models.DetectionReason{
			Type:        r.Type,
			Title:       r.Title,
			Description: r.Description,
			Impact:      r.Impact,
		})
	}

	details := &models.AnalysisDetails{
		FoundKeywords:        wire.Details.FoundKeywords,
		FoundPatterns:        wire.Details.FoundPatterns,
		FoundTransitions:     wire.Details.FoundTransitions,
		FoundJargon:          wire.Details.FoundJargon,
		FoundBuzzwords:       wire.Details.FoundBuzzwords,
		FoundHumanIndicators: wire.Details.FoundHumanIndicators,
	}

	return models.AnalysisResult{
		IsAI:             wire.IsAI,
		Confidence:       clampPercent(wire.Confidence),
		DetectionReasons: reasons,
		Statistics: models.Statistics{
			TotalWords:              clampCount(wire.Statistics.TotalWords),
			Sentences:               clampCount(wire.Statistics.Sentences),
			AvgSentenceLength:       math.Max(0, wire.Statistics.AvgSentenceLength),
			AIKeywordsCount:         clampCount(wire.Statistics.AIKeywordsCount),
			TransitionWordsCount:    clampCount(wire.Statistics.TransitionWordsCount),
			CorporateJargonCount:    clampCount(wire.Statistics.CorporateJargonCount),
			BuzzwordsCount:          clampCount(wire.Statistics.BuzzwordsCount),
			SuspiciousPatternsCount: clampCount(wire.Statistics.SuspiciousPatternsCount),
			HumanIndicatorsCount:    clampCount(wire.Statistics.HumanIndicatorsCount),
		},
		AnalysisDetails: details,
	}
}

// clampPercent rounds a 0-1 probability to an integer percentage in [0,100].
func clampPercent(p float64) int {
	pct := int(math.Round(p * 100))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func clampCount(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
