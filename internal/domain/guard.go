package domain

// Package is one priced offering that an LLM answer may quote.
type Package struct {
	Name     string   `json:"name"`
	Price    string   `json:"price"`
	Features []string `json:"features,omitempty"`
}

// ContextData is the subset of intent data the response guard checks against.
type ContextData struct {
	Packages []Package `json:"packages,omitempty"`
}

type GuardRule string

const (
	GuardRuleEmpty            GuardRule = "empty_response"
	GuardRuleUnverifiedNumber GuardRule = "unverified_number"
	GuardRuleForbiddenPhrase  GuardRule = "forbidden_phrase"
)

// GuardVerdict is the outcome of validating an LLM completion. Rule is set on rejection.
type GuardVerdict struct {
	Valid  bool      `json:"isValid"`
	Reason string    `json:"reason,omitempty"`
	Rule   GuardRule `json:"rule,omitempty"`
}

// Prompt is a ready-to-send system/user message pair.
type Prompt struct {
	System string `json:"system"`
	User   string `json:"user"`
}
