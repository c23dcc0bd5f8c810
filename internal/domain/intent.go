package domain

import (
	"fmt"
	"strconv"

	"github.com/kapu/cirak-widget-go/internal/util"
)

// Tone is the register of a response. Only presentation uses it.
type Tone string

const (
	ToneFriendly     Tone = "friendly"
	ToneProfessional Tone = "professional"
	ToneNeutral      Tone = "neutral"
)

// Keyword is one scored trigger of an intent. Normalized must equal util.Normalize(Text).
type Keyword struct {
	ID           int64    `json:"id,omitempty"`
	Text         string   `json:"text"`
	Normalized   string   `json:"normalized"`
	Weight       float64  `json:"weight"`
	Synonyms     []string `json:"synonyms,omitempty"`
	Misspellings []string `json:"misspellings,omitempty"`

	// Precomputed by the snapshot builder.
	NormalizedSynonyms     []string `json:"-"`
	NormalizedMisspellings []string `json:"-"`
}

// Key returns the normalized form, deriving it when the keyword was never prepared.
func (k Keyword) Key() string {
	if k.Normalized != "" {
		return k.Normalized
	}
	return util.Normalize(k.Text)
}

// SynonymForms returns the normalized synonyms in declaration order.
func (k Keyword) SynonymForms() []string {
	if k.NormalizedSynonyms != nil || len(k.Synonyms) == 0 {
		return k.NormalizedSynonyms
	}
	return normalizeAll(k.Synonyms)
}

// MisspellingForms returns the normalized misspellings in declaration order.
func (k Keyword) MisspellingForms() []string {
	if k.NormalizedMisspellings != nil || len(k.Misspellings) == 0 {
		return k.NormalizedMisspellings
	}
	return normalizeAll(k.Misspellings)
}

func normalizeAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if n := util.Normalize(v); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// ResponseTemplate holds the canned answer of an intent. Fields may contain
// {service.KEY}, {price.KEY.min}, {price.KEY.max} and {contact.KEY} placeholders.
type ResponseTemplate struct {
	Main       string `json:"main"`
	Supporting string `json:"supporting,omitempty"`
	CTA        string `json:"cta,omitempty"`
	Tone       Tone   `json:"tone"`
}

type Intent struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Priority int              `json:"priority"`
	Active   bool             `json:"active"`
	Keywords []Keyword        `json:"keywords"`
	Response ResponseTemplate `json:"response"`

	// Data is the factual context handed to the LLM in guarded mode.
	Data map[string]any `json:"data,omitempty"`
}

// HasData reports whether the intent carries LLM context.
func (i Intent) HasData() bool {
	return len(i.Data) > 0
}

// ContextData extracts the guard-relevant view of Data. Prices may be stored as
// strings ("5.000 TL") or numbers.
func (i Intent) ContextData() ContextData {
	var ctx ContextData
	items, ok := i.Data["packages"].([]any)
	if !ok {
		return ctx
	}
	for _, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		pkg := Package{
			Name:  stringField(fields["name"]),
			Price: stringField(fields["price"]),
		}
		if features, ok := fields["features"].([]any); ok {
			for _, f := range features {
				pkg.Features = append(pkg.Features, stringField(f))
			}
		}
		ctx.Packages = append(ctx.Packages, pkg)
	}
	return ctx
}

func stringField(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

type Fallback struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Tone    Tone   `json:"tone"`
	Active  bool   `json:"active"`
}
