package models

import "time"

// AnalysisResult is the outcome of one detection request as presented to the
// UI. The remote analysis API speaks snake_case and probabilities in [0,1];
// the detectapi client maps those into this camelCase form with an integer
// confidence percentage.
type AnalysisResult struct {
	IsAI             bool              `json:"isAI"`
	Confidence       int               `json:"confidence"` // 0-100
	HighlightedText  string            `json:"highlightedText"`
	DetectionReasons []DetectionReason `json:"detectionReasons"`
	Statistics       Statistics        `json:"statistics"`
	AnalysisDetails  *AnalysisDetails  `json:"analysisDetails,omitempty"`
}

// DetectionReason explains one piece of evidence for or against the verdict.
type DetectionReason struct {
	Type        string `json:"type"`   // critical, warning, info, success
	Title       string `json:"title"`
	Description string `json:"description"`
	Impact      string `json:"impact"` // High, Medium, Low, Positive
}

// Statistics holds the summary counters returned with a text analysis.
// All values are non-negative; the client layer clamps anything below zero.
type Statistics struct {
	TotalWords              int     `json:"totalWords"`
	Sentences               int     `json:"sentences"`
	AvgSentenceLength       float64 `json:"avgSentenceLength"`
	AIKeywordsCount         int     `json:"aiKeywordsCount"`
	TransitionWordsCount    int     `json:"transitionWordsCount"`
	CorporateJargonCount    int     `json:"corporateJargonCount"`
	BuzzwordsCount          int     `json:"buzzwordsCount"`
	SuspiciousPatternsCount int     `json:"suspiciousPatternsCount"`
	HumanIndicatorsCount    int     `json:"humanIndicatorsCount"`
}

// AnalysisDetails lists the flagged substrings per category, in the order the
// remote API returned them. Duplicates are possible and preserved.
type AnalysisDetails struct {
	FoundKeywords        []string `json:"foundKeywords,omitempty"`
	FoundPatterns        []string `json:"foundPatterns,omitempty"`
	FoundTransitions     []string `json:"foundTransitions,omitempty"`
	FoundJargon          []string `json:"foundJargon,omitempty"`
	FoundBuzzwords       []string `json:"foundBuzzwords,omitempty"`
	FoundHumanIndicators []string `json:"foundHumanIndicators,omitempty"`
}

// Empty reports whether no category holds any flagged substring.
func (d *AnalysisDetails) Empty() bool {
	if d == nil {
		return true
	}
	return len(d.FoundKeywords) == 0 && len(d.FoundPatterns) == 0 &&
		len(d.FoundTransitions) == 0 && len(d.FoundJargon) == 0 &&
		len(d.FoundBuzzwords) == 0 && len(d.FoundHumanIndicators) == 0
}

// Submission kinds.
const (
	SubmissionText  = "text"
	SubmissionImage = "image"
)

// HistoryItem is one stored submission. Content is a truncated preview for
// list views; SourceText keeps the full analyzed text so highlighting can be
// regenerated without the preview's trailing ellipsis getting in the way.
type HistoryItem struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId,omitempty"`
	Type       string          `json:"type"` // text or image
	Title      string          `json:"title"`
	Date       time.Time       `json:"date"`
	Content    string          `json:"content"`
	SourceText string          `json:"-"`
	Result     *AnalysisResult `json:"result"`
}

// User is the profile record issued by the remote auth API.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsAdmin   bool      `json:"isAdmin"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"createdAt"`
}

// Auth flow states. Transitions are driven exclusively by remote auth API
// responses; nothing in this process decides a state change on its own.
const (
	StateAnonymous           = "anonymous"
	StateRegistering         = "registering"
	StatePendingVerification = "pending_verification"
	StateAuthenticated       = "authenticated"
	StateResetRequested      = "reset_requested"
	StatePendingReset        = "pending_reset"
)

// Session pairs an auth token with the user it belongs to. The two are always
// written and cleared together; a session row never holds one without the
// other. PendingEmail and ResetToken carry the short-lived context of the
// multi-step verification and reset flows.
type Session struct {
	Token        string    `json:"token"`
	User         User      `json:"user"`
	State        string    `json:"state"`
	PendingEmail string    `json:"pendingEmail,omitempty"`
	ResetToken   string    `json:"resetToken,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Feedback is a free-text report tied to a submission.
type Feedback struct {
	ID           string    `json:"id"`
	SubmissionID string    `json:"submissionId"`
	Message      string    `json:"message"`
	Status       string    `json:"status"` // open, reviewed, resolved
	CreatedAt    time.Time `json:"createdAt"`
}
