package guard

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/kapu/cirak-widget-go/internal/constants"
	"github.com/kapu/cirak-widget-go/internal/domain"
	"github.com/kapu/cirak-widget-go/internal/util"
)

var (
	numberPattern   = regexp.MustCompile(`\d[\d.,]*`)
	nonDigitPattern = regexp.MustCompile(`\D`)
)

// DefaultRefusalPhrases are answers that admit missing information; they always pass.
var DefaultRefusalPhrases = []string{
	constants.GuardConfig.RefusalPhrase,
	"müşteri temsilcimizle iletişime geçiniz",
	"bilgiye sahip değilim",
}

// DefaultForbiddenPhrases reveal the underlying model and are never shown to users.
var DefaultForbiddenPhrases = []string{
	"gpt",
	"openai",
	"yapay zeka modeli",
	"language model",
	"as a range",
	"as an ai",
}

// Config bounds the numbers the guard verifies. Numbers at or below the threshold
// (page counts, percentages) and at or above the upper bound (phone numbers) are ignored.
type Config struct {
	MaterialityThreshold int64
	UpperBound           int64
	RefusalPhrases       []string
	ForbiddenPhrases     []string
}

func DefaultConfig() Config {
	return Config{
		MaterialityThreshold: constants.GuardConfig.MaterialityThreshold,
		UpperBound:           constants.GuardConfig.UpperBound,
		RefusalPhrases:       DefaultRefusalPhrases,
		ForbiddenPhrases:     DefaultForbiddenPhrases,
	}
}

// Guard rejects LLM completions that quote prices absent from the context or that
// identify the model. Package names are not verified.
type Guard struct {
	cfg       Config
	refusals  []string
	forbidden []string
	logger    *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultConfig()
	if cfg.UpperBound <= 0 {
		cfg.UpperBound = defaults.UpperBound
	}
	if cfg.MaterialityThreshold < 0 {
		cfg.MaterialityThreshold = defaults.MaterialityThreshold
	}
	if cfg.RefusalPhrases == nil {
		cfg.RefusalPhrases = defaults.RefusalPhrases
	}
	if cfg.ForbiddenPhrases == nil {
		cfg.ForbiddenPhrases = defaults.ForbiddenPhrases
	}

	return &Guard{
		cfg:       cfg,
		refusals:  normalizePhrases(cfg.RefusalPhrases),
		forbidden: normalizePhrases(cfg.ForbiddenPhrases),
		logger:    logger,
	}
}

func normalizePhrases(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if n := util.Normalize(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Validate checks a completion against the context it was generated from.
func (g *Guard) Validate(response string, ctx domain.ContextData) domain.GuardVerdict {
	views := g.plainText(response)
	text := strings.TrimSpace(views[0])
	if text == "" {
		return reject(domain.GuardRuleEmpty, "empty response")
	}

	normalized := util.Normalize(text)
	for _, refusal := range g.refusals {
		if strings.Contains(normalized, refusal) {
			return domain.GuardVerdict{Valid: true}
		}
	}

	allowed := allowedPrices(ctx)
	for _, n := range extractNumbers(strings.Join(views, " ")) {
		if n <= g.cfg.MaterialityThreshold || n >= g.cfg.UpperBound {
			continue
		}
		if _, ok := allowed[n]; !ok {
			g.logger.Warn("Guard rejected unverified number",
				zap.Int64("number", n),
				zap.Int("known_prices", len(allowed)),
			)
			return reject(domain.GuardRuleUnverifiedNumber, fmt.Sprintf("number %d is not a known price", n))
		}
	}

	for _, phrase := range g.forbidden {
		if strings.Contains(normalized, phrase) {
			g.logger.Warn("Guard rejected forbidden phrase", zap.String("phrase", phrase))
			return reject(domain.GuardRuleForbiddenPhrase, fmt.Sprintf("forbidden phrase %q", phrase))
		}
	}

	return domain.GuardVerdict{Valid: true}
}

func reject(rule domain.GuardRule, reason string) domain.GuardVerdict {
	return domain.GuardVerdict{Valid: false, Rule: rule, Reason: reason}
}

// plainText strips markup so prices hidden in tags or attributes are still read as text.
// The first view separates text nodes with spaces so numbers in neighbouring elements
// stay apart; the second joins them as a browser would render inline runs ("<b>75</b>00").
func (g *Guard) plainText(response string) []string {
	if !strings.Contains(response, "<") {
		return []string{response}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(response))
	if err != nil {
		g.logger.Debug("Guard could not parse markup", zap.Error(err))
		return []string{response}
	}

	var parts []string
	doc.Find("*").Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) != "#text" {
			return
		}
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return []string{strings.Join(parts, " "), doc.Text()}
}

// extractNumbers reads every digit run, treating '.' and ',' as thousands separators:
// "12.000" and "12,000" are both 12000.
func extractNumbers(text string) []int64 {
	matches := numberPattern.FindAllString(text, -1)
	numbers := make([]int64, 0, len(matches))
	for _, m := range matches {
		digits := strings.NewReplacer(".", "", ",", "").Replace(m)
		n, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			// too long for int64, so above any upper bound
			continue
		}
		numbers = append(numbers, n)
	}
	return numbers
}

// allowedPrices collects the numeric value of every package price ("5.000 TL" → 5000).
func allowedPrices(ctx domain.ContextData) map[int64]struct{} {
	prices := make(map[int64]struct{}, len(ctx.Packages))
	for _, pkg := range ctx.Packages {
		digits := nonDigitPattern.ReplaceAllString(pkg.Price, "")
		if digits == "" {
			continue
		}
		if n, err := strconv.ParseInt(digits, 10, 64); err == nil {
			prices[n] = struct{}{}
		}
	}
	return prices
}
