package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/cirak-widget-go/internal/constants"
	"github.com/kapu/cirak-widget-go/internal/domain"
	"github.com/kapu/cirak-widget-go/internal/service/database"
	"github.com/kapu/cirak-widget-go/internal/util"
	apperrors "github.com/kapu/cirak-widget-go/pkg/errors"
)

// unansweredFilter selects outcomes where no intent answered the user.
const unansweredFilter = "source IN ('fallback', 'preset_menu')"

type Repository struct {
	db     *database.Service
	logger *zap.Logger
	now    func() time.Time
}

func NewRepository(db *database.Service, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{db: db, logger: logger, now: time.Now}
}

func (r *Repository) Insert(ctx context.Context, in domain.Interaction) error {
	_, err := r.db.DB().ExecContext(ctx, r.db.Rebind(`
		INSERT INTO interactions (id, message, normalized_input, intent_id, source, score,
		                          guard_reason, snapshot_id, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), in.ID, in.Message, in.NormalizedInput, in.IntentID, string(in.Source), in.Score,
		in.GuardReason, in.SnapshotID, in.Latency.Milliseconds(), in.CreatedAt.UnixMilli())
	if err != nil {
		return apperrors.NewStoreError("failed to insert interaction", "insert_interaction", err)
	}
	return nil
}

func (r *Repository) since(days int) int64 {
	if days <= 0 {
		days = constants.AnalyticsConfig.DefaultReportDays
	}
	return r.now().AddDate(0, 0, -days).UnixMilli()
}

// FallbackReport summarizes unanswered messages of the last days. activeIntents lists the
// intents that should be reported when nothing matched them in the period.
func (r *Repository) FallbackReport(ctx context.Context, days int, activeIntents []string) (domain.FallbackReport, error) {
	if days <= 0 {
		days = constants.AnalyticsConfig.DefaultReportDays
	}
	since := r.since(days)
	report := domain.FallbackReport{
		Days:              days,
		TopFallbackInputs: []domain.QueryCount{},
		UnmatchedIntents:  []string{},
		Trend:             []domain.DailyFallbacks{},
	}

	if err := r.fillTrend(ctx, since, &report); err != nil {
		return report, apperrors.NewStoreError("failed to read fallback trend", "fallback_trend", err)
	}

	rows, err := r.db.DB().QueryContext(ctx, r.db.Rebind(`
		SELECT normalized_input, MIN(message), COUNT(*) AS n
		FROM interactions
		WHERE `+unansweredFilter+` AND created_at >= ?
		GROUP BY normalized_input
		ORDER BY n DESC, normalized_input
		LIMIT ?
	`), since, constants.AnalyticsConfig.TopQueries)
	if err != nil {
		return report, apperrors.NewStoreError("failed to read top fallback inputs", "top_fallbacks", err)
	}
	defer rows.Close()
	for rows.Next() {
		var qc domain.QueryCount
		if err := rows.Scan(&qc.Normalized, &qc.Query, &qc.Count); err != nil {
			return report, err
		}
		report.TopFallbackInputs = append(report.TopFallbackInputs, qc)
	}
	if err := rows.Err(); err != nil {
		return report, err
	}

	matched, err := r.matchedIntents(ctx, since)
	if err != nil {
		return report, apperrors.NewStoreError("failed to read matched intents", "matched_intents", err)
	}
	for _, id := range activeIntents {
		if _, ok := matched[id]; !ok {
			report.UnmatchedIntents = append(report.UnmatchedIntents, id)
		}
	}
	return report, nil
}

// fillTrend buckets by local calendar day in Go so both dialects share one query.
func (r *Repository) fillTrend(ctx context.Context, since int64, report *domain.FallbackReport) error {
	rows, err := r.db.DB().QueryContext(ctx, r.db.Rebind(`
		SELECT created_at, source FROM interactions WHERE created_at >= ?
	`), since)
	if err != nil {
		return err
	}
	defer rows.Close()

	byDay := make(map[string]*domain.DailyFallbacks)
	for rows.Next() {
		var (
			createdAt int64
			source    string
		)
		if err := rows.Scan(&createdAt, &source); err != nil {
			return err
		}
		day := util.DayKey(time.UnixMilli(createdAt))
		bucket, ok := byDay[day]
		if !ok {
			bucket = &domain.DailyFallbacks{Date: day}
			byDay[day] = bucket
		}
		bucket.TotalMessages++
		report.TotalMessages++
		if isUnanswered(domain.Source(source)) {
			bucket.Fallbacks++
			report.FallbackMessages++
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, bucket := range byDay {
		bucket.FallbackRate = percentage(bucket.Fallbacks, bucket.TotalMessages)
		report.Trend = append(report.Trend, *bucket)
	}
	// newest day first
	sort.Slice(report.Trend, func(i, j int) bool { return report.Trend[i].Date > report.Trend[j].Date })
	report.FallbackRate = percentage(report.FallbackMessages, report.TotalMessages)
	return nil
}

func (r *Repository) matchedIntents(ctx context.Context, since int64) (map[string]struct{}, error) {
	rows, err := r.db.DB().QueryContext(ctx, r.db.Rebind(`
		SELECT DISTINCT intent_id FROM interactions WHERE intent_id <> '' AND created_at >= ?
	`), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matched := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		matched[id] = struct{}{}
	}
	return matched, rows.Err()
}

// IntentPerformance lists matched intents by hit count.
func (r *Repository) IntentPerformance(ctx context.Context, days int) ([]domain.IntentPerformance, error) {
	rows, err := r.db.DB().QueryContext(ctx, r.db.Rebind(`
		SELECT intent_id,
		       COUNT(*) AS hits,
		       AVG(score),
		       SUM(CASE WHEN source = 'verified_llm' THEN 1 ELSE 0 END)
		FROM interactions
		WHERE intent_id <> '' AND created_at >= ?
		GROUP BY intent_id
		ORDER BY hits DESC, intent_id
	`), r.since(days))
	if err != nil {
		return nil, apperrors.NewStoreError("failed to read intent performance", "intent_performance", err)
	}
	defer rows.Close()

	out := []domain.IntentPerformance{}
	for rows.Next() {
		var p domain.IntentPerformance
		if err := rows.Scan(&p.IntentID, &p.Hits, &p.AverageScore, &p.LLMAnswers); err != nil {
			return nil, err
		}
		p.AverageScore = math.Round(p.AverageScore*10) / 10
		out = append(out, p)
	}
	return out, rows.Err()
}

func isUnanswered(source domain.Source) bool {
	return source == domain.SourceFallback || source == domain.SourcePresetMenu
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}
