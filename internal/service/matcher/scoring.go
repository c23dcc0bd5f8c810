package matcher

import (
	"math"
	"strings"

	"github.com/kapu/cirak-widget-go/internal/constants"
	"github.com/kapu/cirak-widget-go/internal/domain"
)

// scoreKeyword returns the contribution of one keyword to an intent's score.
// Exact containment wins over synonyms, synonyms over misspellings; only the first
// matching term of a kind counts.
func scoreKeyword(normalizedInput string, kw domain.Keyword) (domain.KeywordHit, bool) {
	weight := kw.Weight
	if weight <= 0 {
		weight = constants.MatchScoring.DefaultWeight
	}

	key := kw.Key()
	if key != "" && strings.Contains(normalizedInput, key) {
		return domain.KeywordHit{
			Keyword:     kw.Text,
			MatchedTerm: key,
			MatchType:   domain.MatchTypeExact,
			Weight:      weight,
			ScoreAdded:  weight,
		}, true
	}

	for _, syn := range kw.SynonymForms() {
		if syn != "" && strings.Contains(normalizedInput, syn) {
			return domain.KeywordHit{
				Keyword:     kw.Text,
				MatchedTerm: syn,
				MatchType:   domain.MatchTypeSynonym,
				Weight:      weight,
				ScoreAdded:  weight * constants.MatchScoring.SynonymMultiplier,
			}, true
		}
	}

	for _, typo := range kw.MisspellingForms() {
		if typo != "" && strings.Contains(normalizedInput, typo) {
			return domain.KeywordHit{
				Keyword:     kw.Text,
				MatchedTerm: typo,
				MatchType:   domain.MatchTypeTypo,
				Weight:      weight,
				ScoreAdded:  weight * constants.MatchScoring.MisspellingMultiplier,
			}, true
		}
	}

	return domain.KeywordHit{}, false
}

// ScoreIntent sums keyword contributions for an already normalized input.
func ScoreIntent(normalizedInput string, intent domain.Intent) float64 {
	score, _ := scoreIntentDetailed(normalizedInput, intent)
	return score
}

func scoreIntentDetailed(normalizedInput string, intent domain.Intent) (float64, []domain.KeywordHit) {
	if normalizedInput == "" {
		return 0, nil
	}
	var (
		total float64
		hits  []domain.KeywordHit
	)
	for _, kw := range intent.Keywords {
		hit, ok := scoreKeyword(normalizedInput, kw)
		if !ok {
			continue
		}
		total += hit.ScoreAdded
		hits = append(hits, hit)
	}
	return total, hits
}

// outranks reports whether candidate a beats b: priority first, then score.
// Equal candidates keep snapshot order, so the caller must only replace on a strict win.
func outranks(aPriority int, aScore float64, bPriority int, bScore float64) bool {
	if aPriority != bPriority {
		return aPriority > bPriority
	}
	return aScore > bScore
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
