package matcher

import (
	"sort"

	"go.uber.org/zap"

	"github.com/kapu/cirak-widget-go/internal/constants"
	"github.com/kapu/cirak-widget-go/internal/domain"
	"github.com/kapu/cirak-widget-go/internal/util"
)

// Matcher selects the intent for a message by keyword scoring. It is safe for
// concurrent use; the only state it owns is the fallback rotation.
type Matcher struct {
	rotator *FallbackRotator
	logger  *zap.Logger
}

func NewMatcher(logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{
		rotator: &FallbackRotator{},
		logger:  logger,
	}
}

// Rotator exposes the fallback rotation shared by this matcher's callers.
func (m *Matcher) Rotator() *FallbackRotator {
	return m.rotator
}

// Match normalizes the input and returns the winning intent's interpolated response,
// or the next fallback when no intent scores.
func (m *Matcher) Match(rawInput string, snap *domain.Snapshot) domain.MatchResult {
	normalized := util.Normalize(rawInput)
	best, score, ok := m.selectBest(normalized, snap)
	if !ok {
		m.logger.Debug("No intent matched",
			zap.String("normalized", normalized),
		)
		return m.Fallback(snap)
	}

	m.logger.Debug("Intent matched",
		zap.String("intent", best.ID),
		zap.Int("priority", best.Priority),
		zap.Float64("score", score),
	)
	return buildResult(best, score, siteDataOf(snap))
}

// Fallback returns the next rotated fallback response for the snapshot.
func (m *Matcher) Fallback(snap *domain.Snapshot) domain.MatchResult {
	var fallbacks []domain.Fallback
	if snap != nil {
		fallbacks = snap.Fallbacks
	}
	fb := m.rotator.Next(fallbacks)
	tone := fb.Tone
	if tone == "" {
		tone = domain.ToneFriendly
	}
	return domain.MatchResult{
		Message:    Interpolate(fb.Message, siteDataOf(snap)),
		Tone:       tone,
		Score:      0,
		IsFallback: true,
	}
}

// Detect returns the winning active intent without building a response. Nothing is
// advanced when no intent scores.
func (m *Matcher) Detect(rawInput string, snap *domain.Snapshot) (*domain.Intent, float64, bool) {
	return m.selectBest(util.Normalize(rawInput), snap)
}

// Respond builds the interpolated canned response of an already selected intent.
func (m *Matcher) Respond(intent *domain.Intent, score float64, snap *domain.Snapshot) domain.MatchResult {
	return buildResult(intent, score, siteDataOf(snap))
}

func (m *Matcher) selectBest(normalized string, snap *domain.Snapshot) (*domain.Intent, float64, bool) {
	if snap == nil || normalized == "" {
		return nil, 0, false
	}

	var (
		best      *domain.Intent
		bestScore float64
	)
	for i := range snap.Intents {
		intent := &snap.Intents[i]
		if !intent.Active {
			continue
		}
		score := ScoreIntent(normalized, *intent)
		if score <= 0 {
			continue
		}
		if best == nil || outranks(intent.Priority, score, best.Priority, bestScore) {
			best = intent
			bestScore = score
		}
	}
	return best, bestScore, best != nil
}

// TestMatch explains how an input is scored: every intent's score, the top candidates
// ordered by priority then score, and the response that Match would give.
// It does not advance the fallback rotation.
func (m *Matcher) TestMatch(rawInput string, snap *domain.Snapshot) domain.MatchDiagnostics {
	normalized := util.Normalize(rawInput)
	diag := domain.MatchDiagnostics{
		Input:           rawInput,
		NormalizedInput: normalized,
		AllScores:       []domain.IntentScore{},
		TopCandidates:   []domain.Candidate{},
	}
	if snap == nil {
		diag.Result = previewFallback(nil)
		return diag
	}

	type scored struct {
		candidate domain.Candidate
		raw       float64
	}
	var candidates []scored
	for _, intent := range snap.Intents {
		if !intent.Active {
			continue
		}
		raw, hits := scoreIntentDetailed(normalized, intent)
		diag.AllScores = append(diag.AllScores, domain.IntentScore{
			IntentID: intent.ID,
			Score:    roundTenth(raw),
		})
		if raw <= 0 {
			continue
		}
		for i := range hits {
			hits[i].ScoreAdded = roundTenth(hits[i].ScoreAdded)
		}
		candidates = append(candidates, scored{
			candidate: domain.Candidate{
				IntentID:   intent.ID,
				IntentName: intent.Name,
				Priority:   intent.Priority,
				Score:      roundTenth(raw),
				Hits:       hits,
			},
			raw: raw,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		return outranks(a.candidate.Priority, a.raw, b.candidate.Priority, b.raw)
	})

	limit := constants.MatchScoring.TopCandidates
	for i, c := range candidates {
		if i >= limit {
			break
		}
		diag.TopCandidates = append(diag.TopCandidates, c.candidate)
	}

	if best, score, ok := m.selectBest(normalized, snap); ok {
		diag.SelectedIntent = best.ID
		diag.Result = buildResult(best, score, snap.SiteData)
	} else {
		diag.Result = previewFallback(snap)
	}
	return diag
}

// CheckDeterminism matches the same input n times and reports any run whose intent,
// score or fallback flag differs from the first.
func (m *Matcher) CheckDeterminism(rawInput string, snap *domain.Snapshot, n int) domain.DeterminismReport {
	if n <= 0 {
		n = 1
	}
	report := domain.DeterminismReport{Input: rawInput, Iterations: n, Stable: true}
	normalized := util.Normalize(rawInput)

	classify := func() domain.MatchResult {
		best, score, ok := m.selectBest(normalized, snap)
		if !ok {
			return domain.MatchResult{IsFallback: true}
		}
		return domain.MatchResult{IntentID: best.ID, IntentName: best.Name, Score: score}
	}

	report.First = classify()
	for i := 1; i < n; i++ {
		got := classify()
		if got.IntentID != report.First.IntentID || got.Score != report.First.Score || got.IsFallback != report.First.IsFallback {
			report.Stable = false
			report.Divergences = append(report.Divergences, got)
		}
	}
	return report
}

func buildResult(intent *domain.Intent, score float64, site domain.SiteData) domain.MatchResult {
	tone := intent.Response.Tone
	if tone == "" {
		tone = domain.ToneFriendly
	}
	return domain.MatchResult{
		IntentID:          intent.ID,
		IntentName:        intent.Name,
		Message:           Interpolate(intent.Response.Main, site),
		SupportingMessage: Interpolate(intent.Response.Supporting, site),
		CTAMessage:        Interpolate(intent.Response.CTA, site),
		Tone:              tone,
		Score:             score,
	}
}

// previewFallback shows the first active fallback without touching the rotation.
func previewFallback(snap *domain.Snapshot) domain.MatchResult {
	fb := DefaultFallback()
	if snap != nil {
		for _, candidate := range snap.Fallbacks {
			if candidate.Active {
				fb = candidate
				break
			}
		}
	}
	return domain.MatchResult{
		Message:    Interpolate(fb.Message, siteDataOf(snap)),
		Tone:       fb.Tone,
		IsFallback: true,
	}
}

func siteDataOf(snap *domain.Snapshot) domain.SiteData {
	if snap == nil {
		return domain.SiteData{}
	}
	return snap.SiteData
}
