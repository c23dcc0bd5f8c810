package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

type Source string

const (
	SourcePresetMenu          Source = "preset_menu"
	SourceDeterministicEngine Source = "deterministic_engine"
	SourceVerifiedLLM         Source = "verified_llm"
	SourceFallback            Source = "fallback"
)

// FlexBool accepts JSON booleans and the strings "true"/"false".
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = false
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := strconv.ParseBool(s)
		if err != nil {
			*b = false
			return nil
		}
		*b = FlexBool(parsed)
		return nil
	}
	var v bool
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*b = FlexBool(v)
	return nil
}

type ChatRequest struct {
	Message        string   `json:"message"`
	IsFirstMessage FlexBool `json:"isFirstMessage"`
}

type ChatResponse struct {
	Response          string   `json:"response"`
	Source            Source   `json:"source"`
	Intent            string   `json:"intent,omitempty"`
	Options           []string `json:"options,omitempty"`
	SupportingMessage string   `json:"supportingMessage,omitempty"`
	CTAMessage        string   `json:"ctaMessage,omitempty"`
	Tone              Tone     `json:"tone,omitempty"`
}

// Interaction is one answered message, recorded for analytics.
type Interaction struct {
	ID              string        `json:"id"`
	Message         string        `json:"message"`
	NormalizedInput string        `json:"normalizedInput"`
	IntentID        string        `json:"intentId,omitempty"`
	Source          Source        `json:"source"`
	Score           float64       `json:"score"`
	GuardReason     string        `json:"guardReason,omitempty"`
	SnapshotID      string        `json:"snapshotId"`
	Latency         time.Duration `json:"latency"`
	CreatedAt       time.Time     `json:"createdAt"`
}

type QueryCount struct {
	Query      string `json:"query"`
	Normalized string `json:"normalized"`
	Count      int    `json:"count"`
}

// DailyFallbacks is one day of the fallback trend, keyed by local (Istanbul) date.
type DailyFallbacks struct {
	Date          string  `json:"date"`
	TotalMessages int     `json:"totalMessages"`
	Fallbacks     int     `json:"fallbacks"`
	FallbackRate  float64 `json:"fallbackRate"`
}

// FallbackReport counts messages that no intent answered. Rates are percentages.
type FallbackReport struct {
	Days              int              `json:"days"`
	TotalMessages     int              `json:"totalMessages"`
	FallbackMessages  int              `json:"fallbackMessages"`
	FallbackRate      float64          `json:"fallbackRate"`
	TopFallbackInputs []QueryCount     `json:"topFallbackInputs"`
	UnmatchedIntents  []string         `json:"unmatchedIntents"`
	Trend             []DailyFallbacks `json:"trend"`
}

type IntentPerformance struct {
	IntentID     string  `json:"intentId"`
	Hits         int     `json:"hits"`
	AverageScore float64 `json:"averageScore"`
	LLMAnswers   int     `json:"llmAnswers"`
}
