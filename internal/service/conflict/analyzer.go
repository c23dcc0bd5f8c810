package conflict

import (
	"fmt"
	"math"

	"github.com/kapu/cirak-widget-go/internal/domain"
	"github.com/kapu/cirak-widget-go/internal/util"
)

// Analyze extends DetectConflicts with synonym overlaps and summary statistics
// for the admin intent analysis view.
func (d *Detector) Analyze(snap *domain.Snapshot) domain.AnalysisReport {
	conflicts := d.DetectConflicts(snap)
	conflicts = append(conflicts, synonymOverlaps(snap)...)

	stats := domain.AnalysisStats{}
	if snap != nil {
		for _, intent := range snap.Intents {
			if !intent.Active {
				continue
			}
			stats.TotalIntents++
			stats.TotalKeywords += len(intent.Keywords)
		}
	}

	affected := make(map[string]struct{})
	for _, c := range conflicts {
		switch c.Severity {
		case domain.SeverityCritical:
			stats.Critical++
		case domain.SeverityWarning:
			stats.Warnings++
		case domain.SeverityLow:
			stats.Low++
		}
		for _, id := range c.IntentIDs {
			affected[id] = struct{}{}
		}
	}
	stats.AffectedIntents = len(affected)

	return domain.AnalysisReport{Conflicts: conflicts, Stats: stats}
}

// synonymOverlaps reports keywords of one intent that appear as a synonym of another.
func synonymOverlaps(snap *domain.Snapshot) []domain.Conflict {
	if snap == nil {
		return nil
	}

	type owner struct {
		id   string
		name string
	}
	synonymOwners := make(map[string][]owner)
	for _, intent := range snap.Intents {
		if !intent.Active {
			continue
		}
		for _, kw := range intent.Keywords {
			for _, syn := range kw.SynonymForms() {
				synonymOwners[syn] = append(synonymOwners[syn], owner{id: intent.ID, name: intent.Name})
			}
		}
	}

	var conflicts []domain.Conflict
	for _, intent := range snap.Intents {
		if !intent.Active {
			continue
		}
		for _, kw := range intent.Keywords {
			owners := synonymOwners[kw.Key()]
			ids := []string{intent.ID}
			names := []string{intent.Name}
			for _, o := range owners {
				if o.id == intent.ID || util.Contains(ids, o.id) {
					continue
				}
				ids = append(ids, o.id)
				names = append(names, o.name)
			}
			if len(ids) < 2 {
				continue
			}
			conflicts = append(conflicts, domain.Conflict{
				Type:        domain.ConflictSynonymOverlap,
				Severity:    domain.SeverityLow,
				Key:         kw.Key(),
				IntentIDs:   ids,
				IntentNames: names,
				Message:     fmt.Sprintf("%q is a synonym in %q and may cause confusion", kw.Text, names[1]),
			})
		}
	}
	return conflicts
}

// QualityScore rates an intent's keyword setup from 0 to 100: keyword count (30),
// synonym coverage (30), average weight (20) and misspelling coverage (20).
func QualityScore(intent domain.Intent) domain.IntentQuality {
	q := domain.IntentQuality{IntentID: intent.ID}
	total := len(intent.Keywords)
	if total == 0 {
		q.Suggestions = []string{"add keywords"}
		return q
	}

	var withSynonyms, withMisspellings int
	var weightSum float64
	for _, kw := range intent.Keywords {
		if len(kw.Synonyms) > 0 {
			withSynonyms++
		}
		if len(kw.Misspellings) > 0 {
			withMisspellings++
		}
		weightSum += kw.Weight
	}

	keywordPart := math.Min(float64(total*5), 30)
	synonymPart := math.Min(float64(withSynonyms)/float64(total)*30, 30)
	weightPart := math.Min(weightSum/float64(total)*2, 20)
	misspellingPart := math.Min(float64(withMisspellings)/float64(total)*20, 20)

	q.Breakdown = domain.QualityBreakdown{
		KeywordCount:        int(math.Round(keywordPart)),
		SynonymCoverage:     int(math.Round(synonymPart)),
		AverageWeight:       int(math.Round(weightPart)),
		MisspellingCoverage: int(math.Round(misspellingPart)),
	}
	q.Score = int(math.Round(keywordPart + synonymPart + weightPart + misspellingPart))

	if total < 6 {
		q.Suggestions = append(q.Suggestions, "add more keywords")
	}
	if withSynonyms < total {
		q.Suggestions = append(q.Suggestions, "add synonyms to every keyword")
	}
	if withMisspellings < total {
		q.Suggestions = append(q.Suggestions, "add common misspellings")
	}
	return q
}

// VerifyNormalization lists keywords whose stored normalized form no longer equals
// the normalizer's output for their text.
func VerifyNormalization(snap *domain.Snapshot) []domain.NormalizationDrift {
	drifts := make([]domain.NormalizationDrift, 0)
	if snap == nil {
		return drifts
	}
	for _, intent := range snap.Intents {
		for _, kw := range intent.Keywords {
			expected := util.Normalize(kw.Text)
			if kw.Normalized != expected {
				drifts = append(drifts, domain.NormalizationDrift{
					IntentID: intent.ID,
					Text:     kw.Text,
					Stored:   kw.Normalized,
					Expected: expected,
				})
			}
		}
	}
	return drifts
}
