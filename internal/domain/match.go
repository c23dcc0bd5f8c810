package domain

// MatchResult is the outcome of matching one message against a snapshot.
type MatchResult struct {
	IntentID          string  `json:"intentId,omitempty"`
	IntentName        string  `json:"intentName,omitempty"`
	Message           string  `json:"message"`
	SupportingMessage string  `json:"supportingMessage,omitempty"`
	CTAMessage        string  `json:"ctaMessage,omitempty"`
	Tone              Tone    `json:"tone"`
	Score             float64 `json:"score"`
	IsFallback        bool    `json:"isFallback"`
}

type MatchType string

const (
	MatchTypeExact   MatchType = "exact"
	MatchTypeSynonym MatchType = "synonym"
	MatchTypeTypo    MatchType = "typo"
)

// KeywordHit is one scored keyword of a candidate.
type KeywordHit struct {
	Keyword     string    `json:"keyword"`
	MatchedTerm string    `json:"matchedTerm"`
	MatchType   MatchType `json:"matchType"`
	Weight      float64   `json:"weight"`
	ScoreAdded  float64   `json:"scoreAdded"`
}

type Candidate struct {
	IntentID   string       `json:"intentId"`
	IntentName string       `json:"intentName"`
	Priority   int          `json:"priority"`
	Score      float64      `json:"score"`
	Hits       []KeywordHit `json:"matchedKeywords"`
}

type IntentScore struct {
	IntentID string  `json:"intentId"`
	Score    float64 `json:"score"`
}

// MatchDiagnostics explains a match for the admin test console.
type MatchDiagnostics struct {
	Input           string        `json:"input"`
	NormalizedInput string        `json:"normalizedInput"`
	AllScores       []IntentScore `json:"allScores"`
	TopCandidates   []Candidate   `json:"topCandidates"`
	SelectedIntent  string        `json:"selectedIntent,omitempty"`
	Result          MatchResult   `json:"result"`
}

// DeterminismReport is the result of matching the same input repeatedly.
type DeterminismReport struct {
	Input       string        `json:"input"`
	Iterations  int           `json:"iterations"`
	Stable      bool          `json:"stable"`
	First       MatchResult   `json:"first"`
	Divergences []MatchResult `json:"divergences,omitempty"`
}
