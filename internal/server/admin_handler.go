package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"

	"github.com/kapu/cirak-widget-go/internal/constants"
	"github.com/kapu/cirak-widget-go/internal/domain"
	"github.com/kapu/cirak-widget-go/internal/service/conflict"
	"github.com/kapu/cirak-widget-go/internal/service/snapshot"
	"github.com/kapu/cirak-widget-go/internal/util"
	apperrors "github.com/kapu/cirak-widget-go/pkg/errors"
)

func (s *Server) handleLogin(c *gin.Context) {
	var body struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		s.respondError(c, apperrors.NewValidationError("password is required", "password", nil))
		return
	}
	if !s.auth.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "admin access is not configured", "code": "ADMIN_DISABLED"})
		return
	}
	if err := s.auth.CheckPassword(body.Password); err != nil {
		s.logger.Warn("Admin login rejected", zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "UNAUTHORIZED"})
		return
	}
	token, expires, err := s.auth.IssueToken()
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.logger.Info("Admin logged in", zap.String("client_ip", c.ClientIP()))
	c.JSON(http.StatusOK, gin.H{"token": token, "expiresAt": expires})
}

// currentSnapshot writes 503 and returns nil when no snapshot is installed.
func (s *Server) currentSnapshot(c *gin.Context) *domain.Snapshot {
	snap := s.deps.Snapshots.Current()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no snapshot available", "code": apperrors.CodeSnapshot})
	}
	return snap
}

func (s *Server) handleConflicts(c *gin.Context) {
	snap := s.currentSnapshot(c)
	if snap == nil {
		return
	}
	conflicts := s.deps.Detector.DetectConflicts(snap)
	critical := 0
	for _, cf := range conflicts {
		if cf.Severity == domain.SeverityCritical {
			critical++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"conflicts": conflicts,
		"total":     len(conflicts),
		"critical":  critical,
		"snapshot":  snap.Metadata(),
	})
}

func (s *Server) handleIntentAnalysis(c *gin.Context) {
	snap := s.currentSnapshot(c)
	if snap == nil {
		return
	}
	c.JSON(http.StatusOK, s.deps.Detector.Analyze(snap))
}

func (s *Server) handleIntentQuality(c *gin.Context) {
	snap := s.currentSnapshot(c)
	if snap == nil {
		return
	}
	intent, ok := snap.Intent(c.Param("id"))
	if !ok {
		s.respondError(c, apperrors.NewNotFoundError("intent", c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, conflict.QualityScore(*intent))
}

func (s *Server) handleNormalization(c *gin.Context) {
	snap := s.currentSnapshot(c)
	if snap == nil {
		return
	}
	drift := conflict.VerifyNormalization(snap)
	c.JSON(http.StatusOK, gin.H{"drift": drift, "consistent": len(drift) == 0})
}

type testRequest struct {
	Message    string   `json:"message"`
	Messages   []string `json:"messages"`
	Iterations int      `json:"iterations"`
}

func (s *Server) handleTestIntent(c *gin.Context) {
	var req testRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		s.respondError(c, apperrors.NewValidationError("message is required", "message", nil))
		return
	}
	snap := s.currentSnapshot(c)
	if snap == nil {
		return
	}
	c.JSON(http.StatusOK, s.deps.Matcher.TestMatch(req.Message, snap))
}

// handleTestBatch runs diagnostics for several messages concurrently against one snapshot.
func (s *Server) handleTestBatch(c *gin.Context) {
	var req testRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Messages) == 0 {
		s.respondError(c, apperrors.NewValidationError("messages must be a non-empty list", "messages", nil))
		return
	}
	if len(req.Messages) > constants.AdminLimits.MaxBatchMessages {
		s.respondError(c, apperrors.NewValidationError("too many messages", "messages", len(req.Messages)))
		return
	}
	snap := s.currentSnapshot(c)
	if snap == nil {
		return
	}

	results := iter.Map(req.Messages, func(message *string) domain.MatchDiagnostics {
		return s.deps.Matcher.TestMatch(*message, snap)
	})

	matched := 0
	for _, r := range results {
		if !r.Result.IsFallback {
			matched++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"results":  results,
		"total":    len(results),
		"matched":  matched,
		"fallback": len(results) - matched,
		"snapshot": snap.Metadata(),
	})
}

func (s *Server) handleDeterminism(c *gin.Context) {
	var req testRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		s.respondError(c, apperrors.NewValidationError("message is required", "message", nil))
		return
	}
	if req.Iterations <= 0 {
		req.Iterations = constants.AdminLimits.DefaultIterations
	}
	if req.Iterations > constants.AdminLimits.MaxIterations {
		s.respondError(c, apperrors.NewValidationError("too many iterations", "iterations", req.Iterations))
		return
	}
	snap := s.currentSnapshot(c)
	if snap == nil {
		return
	}
	c.JSON(http.StatusOK, s.deps.Matcher.CheckDeterminism(req.Message, snap, req.Iterations))
}

type keyRequest struct {
	IntentID     string   `json:"intentId"`
	Key          string   `json:"key"`
	Text         string   `json:"text"`
	Weight       float64  `json:"weight"`
	Synonyms     []string `json:"synonyms"`
	Misspellings []string `json:"misspellings"`
}

func (s *Server) handleValidateKey(c *gin.Context) {
	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IntentID == "" || strings.TrimSpace(req.Key) == "" {
		s.respondError(c, apperrors.NewValidationError("intentId and key are required", "key", req.Key))
		return
	}
	snap := s.currentSnapshot(c)
	if snap == nil {
		return
	}
	found := s.deps.Detector.ValidateNewKey(req.Key, req.IntentID, snap)
	c.JSON(http.StatusOK, gin.H{
		"valid":      found == nil,
		"normalized": util.Normalize(req.Key),
		"conflict":   found,
	})
}

// handleAddKeyword rejects keys another intent already uses, then writes the keyword
// and rebuilds the snapshot.
func (s *Server) handleAddKeyword(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	intentID := c.Param("id")
	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperrors.NewValidationError("invalid keyword body", "text", nil))
		return
	}
	if req.Text == "" {
		req.Text = req.Key
	}

	snap := s.currentSnapshot(c)
	if snap == nil {
		return
	}
	if found := s.deps.Detector.ValidateNewKey(req.Text, intentID, snap); found != nil {
		existing := ""
		if len(found.IntentIDs) > 0 {
			existing = found.IntentIDs[0]
		}
		s.respondError(c, apperrors.NewConflictError(found.Message, found.Key, existing))
		return
	}

	kw, err := s.deps.Store.AddKeyword(c.Request.Context(), intentID, domain.Keyword{
		Text:         req.Text,
		Weight:       req.Weight,
		Synonyms:     req.Synonyms,
		Misspellings: req.Misspellings,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.logger.Info("Keyword added",
		zap.String("intent", intentID),
		zap.String("key", kw.Normalized),
		zap.Int64("keyword_id", kw.ID),
	)
	meta := s.afterMutation(c.Request.Context(), "keyword added")
	c.JSON(http.StatusCreated, gin.H{"keyword": kw, "snapshot": meta})
}

func (s *Server) handleDeleteKeyword(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		s.respondError(c, apperrors.NewValidationError("keyword id must be a positive integer", "id", c.Param("id")))
		return
	}
	if err := s.deps.Store.DeleteKeyword(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	s.logger.Info("Keyword deleted", zap.Int64("keyword_id", id))
	meta := s.afterMutation(c.Request.Context(), "keyword deleted")
	c.JSON(http.StatusOK, gin.H{"deleted": id, "snapshot": meta})
}

func (s *Server) handleUpdateIntent(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	var body struct {
		Active   *bool `json:"active"`
		Priority *int  `json:"priority"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || (body.Active == nil && body.Priority == nil) {
		s.respondError(c, apperrors.NewValidationError("active or priority is required", "body", nil))
		return
	}
	id := c.Param("id")
	if err := s.deps.Store.SetIntentState(c.Request.Context(), id, body.Active, body.Priority); err != nil {
		s.respondError(c, err)
		return
	}
	s.logger.Info("Intent updated", zap.String("intent", id))
	meta := s.afterMutation(c.Request.Context(), "intent updated")
	c.JSON(http.StatusOK, gin.H{"intentId": id, "snapshot": meta})
}

// afterMutation rebuilds the local snapshot and notifies other instances. The write
// already succeeded, so failures here are logged and not returned.
func (s *Server) afterMutation(ctx context.Context, reason string) domain.SnapshotMetadata {
	if _, err := s.deps.Snapshots.Reload(ctx); err != nil {
		s.logger.Error("Snapshot reload after write failed", zap.String("reason", reason), zap.Error(err))
	}
	if s.deps.Invalidator != nil {
		if err := s.deps.Invalidator.PublishInvalidation(ctx, reason); err != nil {
			s.logger.Warn("Failed to publish snapshot invalidation", zap.Error(err))
		}
	}
	return s.deps.Snapshots.Current().Metadata()
}

func (s *Server) requireStore(c *gin.Context) bool {
	if s.deps.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "intent store is read-only", "code": apperrors.CodeStore})
		return false
	}
	return true
}

func (s *Server) handleSnapshot(c *gin.Context) {
	body := gin.H{
		"current":  s.deps.Snapshots.Current().Metadata(),
		"previous": nil,
	}
	if prev := s.deps.Snapshots.Previous(); prev != nil {
		body["previous"] = prev.Metadata()
	}
	if err := s.deps.Snapshots.LastError(); err != nil {
		body["lastBuildError"] = err.Error()
		var snapErr *apperrors.SnapshotError
		if errors.As(err, &snapErr) {
			body["problems"] = snapErr.Problems
		}
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleSnapshotHistory(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	limit := constants.SnapshotConfig.HistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.respondError(c, apperrors.NewValidationError("limit must be a positive integer", "limit", raw))
			return
		}
		limit = n
	}
	history, err := s.deps.Store.SnapshotHistory(c.Request.Context(), limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

func (s *Server) handleSnapshotDiff(c *gin.Context) {
	current, previous := s.deps.Snapshots.Current(), s.deps.Snapshots.Previous()
	if current == nil || previous == nil {
		s.respondError(c, apperrors.NewNotFoundError("snapshot", "previous"))
		return
	}
	c.JSON(http.StatusOK, snapshot.Diff(current, previous))
}

func (s *Server) handleRebuild(c *gin.Context) {
	swapped, err := s.deps.Snapshots.Reload(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	if swapped && s.deps.Invalidator != nil {
		if err := s.deps.Invalidator.PublishInvalidation(c.Request.Context(), "manual rebuild"); err != nil {
			s.logger.Warn("Failed to publish snapshot invalidation", zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"swapped": swapped, "snapshot": s.deps.Snapshots.Current().Metadata()})
}

func (s *Server) handleRollback(c *gin.Context) {
	restored, err := s.deps.Snapshots.Rollback()
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.logger.Warn("Snapshot rolled back", zap.String("snapshot_id", restored.ID))
	c.JSON(http.StatusOK, gin.H{"snapshot": restored.Metadata()})
}

func (s *Server) handleFallbackReport(c *gin.Context) {
	if s.deps.Analytics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analytics is disabled", "code": "ANALYTICS_DISABLED"})
		return
	}
	days, ok := s.reportDays(c)
	if !ok {
		return
	}
	var active []string
	if snap := s.deps.Snapshots.Current(); snap != nil {
		active = make([]string, 0, len(snap.Intents))
		for _, intent := range snap.Intents {
			active = append(active, intent.ID)
		}
	}
	report, err := s.deps.Analytics.FallbackReport(c.Request.Context(), days, active)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleIntentPerformance(c *gin.Context) {
	if s.deps.Analytics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analytics is disabled", "code": "ANALYTICS_DISABLED"})
		return
	}
	days, ok := s.reportDays(c)
	if !ok {
		return
	}
	perf, err := s.deps.Analytics.IntentPerformance(c.Request.Context(), days)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "intents": perf})
}

func (s *Server) handleLiveCounters(c *gin.Context) {
	if s.deps.Live == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live counters need redis", "code": apperrors.CodeCache})
		return
	}
	day := c.DefaultQuery("day", util.DayKey(time.Now()))
	hits, err := s.deps.Live.IntentHits(c.Request.Context(), day)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"day": day, "hits": hits})
}

func (s *Server) reportDays(c *gin.Context) (int, bool) {
	days := constants.AnalyticsConfig.DefaultReportDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > constants.AdminLimits.MaxReportDays {
			s.respondError(c, apperrors.NewValidationError("days must be between 1 and 90", "days", raw))
			return 0, false
		}
		days = n
	}
	return days, true
}

func (s *Server) handleCircuitStatus(c *gin.Context) {
	if s.deps.LLM == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "llm is disabled", "code": apperrors.CodeLLM})
		return
	}
	c.JSON(http.StatusOK, s.deps.LLM.CircuitStatus())
}

func (s *Server) handleCircuitReset(c *gin.Context) {
	if s.deps.LLM == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "llm is disabled", "code": apperrors.CodeLLM})
		return
	}
	s.deps.LLM.ResetCircuit()
	s.logger.Info("LLM circuit breaker reset by admin")
	c.JSON(http.StatusOK, s.deps.LLM.CircuitStatus())
}

// respondError maps typed errors to their status; anything else is a 500.
func (s *Server) respondError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	var coded apperrors.StatusCoder
	if errors.As(err, &coded) {
		status, code = coded.HTTPStatus(), coded.ErrorCode()
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("Admin request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "code": code})
}
