package ai

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kapu/cirak-widget-go/internal/constants"
	"github.com/kapu/cirak-widget-go/internal/util"
	apperrors "github.com/kapu/cirak-widget-go/pkg/errors"
)

var (
	statusCodePattern  = regexp.MustCompile(`\b(5\d{2})\b`)
	jsonCodePattern    = regexp.MustCompile(`"code":\s*(\d{3})`)
	leadingCodePattern = regexp.MustCompile(`^(\d{3})\s`)
)

// ModelManager sends completions to the primary provider and, when enabled, retries
// once on the fallback. A shared circuit breaker stops calls while upstreams are failing.
type ModelManager struct {
	primary        Provider
	fallback       Provider
	options        CompletionOptions
	circuitBreaker *util.CircuitBreaker
	logger         *zap.Logger
}

type ModelManagerConfig struct {
	Primary  Provider
	Fallback Provider
	Options  CompletionOptions
}

func NewModelManager(cfg ModelManagerConfig, logger *zap.Logger) (*ModelManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Primary == nil && cfg.Fallback == nil {
		return nil, fmt.Errorf("at least one completion provider is required")
	}
	if cfg.Primary == nil {
		cfg.Primary, cfg.Fallback = cfg.Fallback, nil
	}

	breaker := util.NewCircuitBreaker(
		"llm",
		constants.CircuitBreakerConfig.FailureThreshold,
		constants.CircuitBreakerConfig.ResetTimeout,
		logger,
	)

	mm := &ModelManager{
		primary:        cfg.Primary,
		fallback:       cfg.Fallback,
		options:        cfg.Options,
		circuitBreaker: breaker,
		logger:         logger,
	}

	fallbackName := "disabled"
	if mm.fallback != nil {
		fallbackName = mm.fallback.Name()
	}
	logger.Info("Model manager initialized",
		zap.String("primary", mm.primary.Name()),
		zap.String("fallback", fallbackName),
		zap.String("model", cfg.Options.Model),
	)
	return mm, nil
}

// Complete returns a non-empty completion or an error. Callers treat every error as
// "no completion".
func (mm *ModelManager) Complete(ctx context.Context, system, user string) (Completion, error) {
	if !mm.circuitBreaker.CanExecute() {
		status := mm.circuitBreaker.Status()
		mm.logger.Warn("LLM unavailable (circuit open)",
			zap.Int("failure_count", status.FailureCount),
		)
		return Completion{}, apperrors.NewLLMError("circuit open", mm.primary.Name(), 503, nil)
	}

	result, primaryErr := mm.primary.Complete(ctx, system, user, mm.options)
	if primaryErr == nil {
		mm.circuitBreaker.RecordSuccess()
		return Completion{Text: result.Text, Provider: mm.primary.Name(), Model: result.Model}, nil
	}

	if mm.fallback != nil && ctx.Err() == nil {
		fbResult, fallbackErr := mm.fallback.Complete(ctx, system, user, mm.options)
		if fallbackErr == nil {
			mm.circuitBreaker.RecordSuccess()
			return Completion{
				Text:         fbResult.Text,
				Provider:     mm.fallback.Name(),
				Model:        fbResult.Model,
				UsedFallback: true,
			}, nil
		}
		mm.recordFailure(primaryErr)
		mm.recordFailure(fallbackErr)
		return Completion{}, apperrors.NewLLMError("all providers failed", mm.fallback.Name(), 502, fallbackErr)
	}

	mm.recordFailure(primaryErr)
	return Completion{}, apperrors.NewLLMError("completion failed", mm.primary.Name(), 502, primaryErr)
}

// Ping reports whether any provider answers.
func (mm *ModelManager) Ping(ctx context.Context) bool {
	if mm.primary.Ping(ctx) {
		return true
	}
	return mm.fallback != nil && mm.fallback.Ping(ctx)
}

func (mm *ModelManager) recordFailure(err error) {
	if !isServiceFailure(err) {
		return
	}

	timeout := constants.CircuitBreakerConfig.ResetTimeout
	if isRateLimitError(err) {
		timeout = constants.CircuitBreakerConfig.RateLimitTimeout
	}
	mm.circuitBreaker.RecordFailure(timeout)
}

func (mm *ModelManager) CircuitStatus() util.CircuitBreakerStatus {
	return mm.circuitBreaker.Status()
}

func (mm *ModelManager) ResetCircuit() {
	mm.circuitBreaker.Reset()
}

// isServiceFailure separates upstream outages (timeouts, 5xx, rate limits) from request
// errors; only outages count toward opening the circuit.
func isServiceFailure(err error) bool {
	if err == nil {
		return false
	}
	if isRateLimitError(err) {
		return true
	}

	msg := err.Error()
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "ETIMEDOUT") {
		return true
	}
	if code, ok := embeddedStatusCode(msg); ok {
		return code >= 500 && code < 600
	}
	return statusCodePattern.MatchString(msg)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "Rate limit") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota") {
		return true
	}
	if code, ok := embeddedStatusCode(msg); ok {
		return code == 429
	}
	return false
}

func embeddedStatusCode(msg string) (int, bool) {
	for _, pattern := range []*regexp.Regexp{jsonCodePattern, leadingCodePattern} {
		if matches := pattern.FindStringSubmatch(msg); len(matches) > 1 {
			if code, err := strconv.Atoi(matches[1]); err == nil {
				return code, true
			}
		}
	}
	return 0, false
}
