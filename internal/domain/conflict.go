package domain

type ConflictType string

const (
	ConflictKeyDuplication ConflictType = "KEY_DUPLICATION"
	ConflictAmbiguousInput ConflictType = "AMBIGUOUS_INPUT"
	ConflictSynonymOverlap ConflictType = "SYNONYM_OVERLAP"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityLow      Severity = "low"
)

// Conflict is a key that is duplicated across intents or that shadows a longer key.
// For AMBIGUOUS_INPUT, Key is the shorter key and ShadowedKey the key that can never win.
type Conflict struct {
	Type        ConflictType `json:"type"`
	Severity    Severity     `json:"severity"`
	Key         string       `json:"key"`
	ShadowedKey string       `json:"shadowedKey,omitempty"`
	IntentIDs   []string     `json:"intentIds"`
	IntentNames []string     `json:"intentNames"`
	Message     string       `json:"message"`
}

type AnalysisStats struct {
	TotalIntents    int `json:"totalIntents"`
	TotalKeywords   int `json:"totalKeywords"`
	Critical        int `json:"critical"`
	Warnings        int `json:"warnings"`
	Low             int `json:"low"`
	AffectedIntents int `json:"affectedIntents"`
}

type AnalysisReport struct {
	Conflicts []Conflict    `json:"conflicts"`
	Stats     AnalysisStats `json:"stats"`
}

type QualityBreakdown struct {
	KeywordCount        int `json:"keywordCount"`
	SynonymCoverage     int `json:"synonymCoverage"`
	AverageWeight       int `json:"averageWeight"`
	MisspellingCoverage int `json:"misspellingCoverage"`
}

// IntentQuality scores how well an intent is configured, 0 to 100.
type IntentQuality struct {
	IntentID    string           `json:"intentId"`
	Score       int              `json:"score"`
	Breakdown   QualityBreakdown `json:"breakdown"`
	Suggestions []string         `json:"suggestions,omitempty"`
}

// NormalizationDrift is a keyword whose stored normalized form disagrees with the normalizer.
type NormalizationDrift struct {
	IntentID string `json:"intentId"`
	Text     string `json:"text"`
	Stored   string `json:"stored"`
	Expected string `json:"expected"`
}
