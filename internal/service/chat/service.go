package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/cirak-widget-go/internal/config"
	"github.com/kapu/cirak-widget-go/internal/constants"
	"github.com/kapu/cirak-widget-go/internal/domain"
	"github.com/kapu/cirak-widget-go/internal/metrics"
	"github.com/kapu/cirak-widget-go/internal/prompt"
	"github.com/kapu/cirak-widget-go/internal/service/ai"
	"github.com/kapu/cirak-widget-go/internal/service/guard"
	"github.com/kapu/cirak-widget-go/internal/service/matcher"
	"github.com/kapu/cirak-widget-go/internal/util"
)

type SnapshotSource interface {
	Current() *domain.Snapshot
}

// Completer is the LLM client. Every error means "no completion".
type Completer interface {
	Complete(ctx context.Context, system, user string) (ai.Completion, error)
}

// ResponseCache stores guard-approved completions per snapshot and prompt.
type ResponseCache interface {
	GetVerifiedResponse(ctx context.Context, snapshotID, intentID, system, user string) (string, bool, error)
	SetVerifiedResponse(ctx context.Context, snapshotID, intentID, system, user, text string) error
}

type Recorder interface {
	Record(interaction domain.Interaction)
}

type Config struct {
	Mode             string
	LLMTimeout       time.Duration
	MaxMessageLength int
}

type Dependencies struct {
	Snapshots SnapshotSource
	Matcher   *matcher.Matcher
	Prompts   *prompt.PromptBuilder
	Guard     *guard.Guard
	Completer Completer
	Cache     ResponseCache
	Recorder  Recorder
	Metrics   *metrics.Metrics
}

// Service answers widget messages. In deterministic mode the matcher's canned responses
// are returned as-is; in guarded mode the matched intent's data is phrased by the LLM
// and the result is checked by the guard before it reaches the user.
type Service struct {
	cfg       Config
	snapshots SnapshotSource
	matcher   *matcher.Matcher
	prompts   *prompt.PromptBuilder
	guard     *guard.Guard
	completer Completer
	cache     ResponseCache
	recorder  Recorder
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewService(cfg Config, deps Dependencies, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Mode == "" {
		cfg.Mode = config.ChatModeDeterministic
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = constants.LLMDefaults.Timeout
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = constants.ChatInputLimits.MaxMessageLength
	}
	if deps.Matcher == nil {
		deps.Matcher = matcher.NewMatcher(logger)
	}
	if deps.Prompts == nil {
		deps.Prompts = prompt.DefaultPromptBuilder()
	}
	if deps.Guard == nil {
		deps.Guard = guard.New(guard.DefaultConfig(), logger)
	}
	return &Service{
		cfg:       cfg,
		snapshots: deps.Snapshots,
		matcher:   deps.Matcher,
		prompts:   deps.Prompts,
		guard:     deps.Guard,
		completer: deps.Completer,
		cache:     deps.Cache,
		recorder:  deps.Recorder,
		metrics:   deps.Metrics,
		logger:    logger,
	}
}

func (s *Service) Mode() string {
	return s.cfg.Mode
}

// outcome carries what Handle decided plus the details worth recording.
type outcome struct {
	response    domain.ChatResponse
	score       float64
	guardReason string
}

// Handle never fails: every error path ends in the menu or a fallback response.
func (s *Service) Handle(ctx context.Context, req domain.ChatRequest) domain.ChatResponse {
	start := time.Now()
	snap := s.snapshots.Current()
	message := util.TruncateString(strings.TrimSpace(req.Message), s.cfg.MaxMessageLength)

	var out outcome
	switch {
	case bool(req.IsFirstMessage) || message == "":
		out = outcome{response: MenuResponse(snap)}
	case s.cfg.Mode == config.ChatModeGuarded:
		out = s.handleGuarded(ctx, message, snap)
	default:
		out = s.handleDeterministic(message, snap)
	}

	latency := time.Since(start)
	s.metrics.ObserveChat(out.response.Source, out.response.Intent, latency)
	// the welcome menu is not a user question, so it is not recorded
	if s.recorder != nil && message != "" && !bool(req.IsFirstMessage) {
		s.recorder.Record(domain.Interaction{
			ID:              uuid.NewString(),
			Message:         message,
			NormalizedInput: util.Normalize(message),
			IntentID:        out.response.Intent,
			Source:          out.response.Source,
			Score:           out.score,
			GuardReason:     out.guardReason,
			SnapshotID:      snapshotID(snap),
			Latency:         latency,
			CreatedAt:       start,
		})
	}
	return out.response
}

func (s *Service) handleDeterministic(message string, snap *domain.Snapshot) outcome {
	result := s.matcher.Match(message, snap)
	if result.IsFallback {
		return outcome{response: fallbackResponse(result)}
	}
	return outcome{response: deterministicResponse(result), score: result.Score}
}

func (s *Service) handleGuarded(ctx context.Context, message string, snap *domain.Snapshot) outcome {
	intent, score, ok := s.matcher.Detect(message, snap)
	if !ok {
		s.logger.Debug("No intent matched, returning menu", zap.String("message", message))
		return outcome{response: MenuResponse(snap)}
	}

	// intents without data answer from their template without the LLM
	if !intent.HasData() || s.completer == nil {
		return outcome{response: deterministicResponse(s.matcher.Respond(intent, score, snap)), score: score}
	}

	p, err := s.prompts.BuildGuarded(intent.ID, intent.Data, message)
	if err != nil {
		s.logger.Error("Failed to build guarded prompt", zap.String("intent", intent.ID), zap.Error(err))
		return s.fallback(snap, score, "prompt: "+err.Error())
	}

	text, cached := s.lookupCache(ctx, snap, intent.ID, p)
	if !cached {
		text, err = s.complete(ctx, p)
		if err != nil {
			s.logger.Warn("LLM completion failed, using fallback",
				zap.String("intent", intent.ID),
				zap.Error(err),
			)
			return s.fallback(snap, score, "llm: "+err.Error())
		}

		verdict := s.guard.Validate(text, intent.ContextData())
		if !verdict.Valid {
			s.metrics.ObserveGuardRejection(verdict.Rule)
			s.logger.Warn("Guard rejected completion",
				zap.String("intent", intent.ID),
				zap.String("rule", string(verdict.Rule)),
				zap.String("reason", verdict.Reason),
			)
			return s.fallback(snap, score, verdict.Reason)
		}
		s.storeCache(ctx, snap, intent.ID, p, text)
	}

	return outcome{
		response: domain.ChatResponse{
			Response: text,
			Source:   domain.SourceVerifiedLLM,
			Intent:   intent.ID,
			Tone:     toneOf(intent.Response.Tone),
		},
		score: score,
	}
}

func (s *Service) complete(ctx context.Context, p domain.Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()

	completion, err := s.completer.Complete(ctx, p.System, p.User)
	if err != nil {
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		s.metrics.ObserveLLM("all", outcome)
		return "", err
	}
	s.metrics.ObserveLLM(completion.Provider, "ok")
	return completion.Text, nil
}

func (s *Service) lookupCache(ctx context.Context, snap *domain.Snapshot, intentID string, p domain.Prompt) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	text, found, err := s.cache.GetVerifiedResponse(ctx, snapshotID(snap), intentID, p.System, p.User)
	if err != nil {
		s.logger.Warn("Verified response cache read failed", zap.Error(err))
		return "", false
	}
	s.metrics.ObserveCache(found)
	return text, found
}

func (s *Service) storeCache(ctx context.Context, snap *domain.Snapshot, intentID string, p domain.Prompt, text string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetVerifiedResponse(ctx, snapshotID(snap), intentID, p.System, p.User, text); err != nil {
		s.logger.Warn("Verified response cache write failed", zap.Error(err))
	}
}

func (s *Service) fallback(snap *domain.Snapshot, score float64, reason string) outcome {
	return outcome{
		response:    fallbackResponse(s.matcher.Fallback(snap)),
		score:       score,
		guardReason: reason,
	}
}

// MenuResponse is the preset greeting. It never touches the matcher or the LLM.
func MenuResponse(snap *domain.Snapshot) domain.ChatResponse {
	message := constants.DefaultMenu.Message
	options := constants.DefaultMenu.Options
	if snap != nil {
		if snap.Settings.Menu.Message != "" {
			message = snap.Settings.Menu.Message
		}
		if len(snap.Settings.Menu.Options) > 0 {
			options = snap.Settings.Menu.Options
		}
	}
	return domain.ChatResponse{
		Response: message,
		Source:   domain.SourcePresetMenu,
		Options:  append([]string(nil), options...),
	}
}

func deterministicResponse(result domain.MatchResult) domain.ChatResponse {
	return domain.ChatResponse{
		Response:          result.Message,
		Source:            domain.SourceDeterministicEngine,
		Intent:            result.IntentID,
		SupportingMessage: result.SupportingMessage,
		CTAMessage:        result.CTAMessage,
		Tone:              result.Tone,
	}
}

func fallbackResponse(result domain.MatchResult) domain.ChatResponse {
	return domain.ChatResponse{
		Response: result.Message,
		Source:   domain.SourceFallback,
		Tone:     result.Tone,
	}
}

func toneOf(t domain.Tone) domain.Tone {
	if t == "" {
		return domain.ToneFriendly
	}
	return t
}

func snapshotID(snap *domain.Snapshot) string {
	if snap == nil {
		return ""
	}
	return snap.ID
}
