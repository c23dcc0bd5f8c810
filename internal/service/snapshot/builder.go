package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/cirak-widget-go/internal/constants"
	"github.com/kapu/cirak-widget-go/internal/domain"
	"github.com/kapu/cirak-widget-go/internal/util"
	apperrors "github.com/kapu/cirak-widget-go/pkg/errors"
)

// Source provides raw intent content. store.Repository and store.FileSource implement it.
type Source interface {
	Load(ctx context.Context) (*domain.Content, error)
}

// Builder turns source content into validated, immutable snapshots.
type Builder struct {
	source   Source
	logger   *zap.Logger
	timeout  time.Duration
	sequence atomic.Int64
	now      func() time.Time
}

func NewBuilder(source Source, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		source:  source,
		logger:  logger,
		timeout: constants.SnapshotConfig.BuildTimeout,
		now:     time.Now,
	}
}

// Build loads the source and returns a new snapshot. Content problems are reported
// together in a SnapshotError.
func (b *Builder) Build(ctx context.Context) (*domain.Snapshot, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	content, err := b.source.Load(ctx)
	if err != nil {
		return nil, apperrors.NewSnapshotError("failed to load intent source", nil, err)
	}
	return b.FromContent(content)
}

// FromContent validates content and wraps it into a snapshot.
func (b *Builder) FromContent(content *domain.Content) (*domain.Snapshot, error) {
	if content == nil {
		return nil, apperrors.NewSnapshotError("intent source returned no content", nil, nil)
	}

	prepared, problems := b.prepare(*content)
	if len(problems) > 0 {
		return nil, apperrors.NewSnapshotError(
			fmt.Sprintf("invalid intent content (%d problems)", len(problems)), problems, nil)
	}

	fingerprint, err := Fingerprint(prepared)
	if err != nil {
		return nil, apperrors.NewSnapshotError("failed to fingerprint content", nil, err)
	}

	return &domain.Snapshot{
		ID:          uuid.NewString(),
		Sequence:    b.sequence.Add(1),
		Fingerprint: fingerprint,
		GeneratedAt: b.now().UTC(),
		Intents:     prepared.Intents,
		Fallbacks:   prepared.Fallbacks,
		SiteData:    prepared.SiteData,
		Settings:    prepared.Settings,
	}, nil
}

func (b *Builder) prepare(content domain.Content) (domain.Content, []string) {
	var problems []string
	seen := make(map[string]struct{}, len(content.Intents))

	intents := make([]domain.Intent, 0, len(content.Intents))
	for i, intent := range content.Intents {
		intent.ID = strings.TrimSpace(intent.ID)
		if intent.ID == "" {
			problems = append(problems, fmt.Sprintf("intent #%d: missing id", i))
			continue
		}
		if _, dup := seen[intent.ID]; dup {
			problems = append(problems, fmt.Sprintf("intent %s: duplicate id", intent.ID))
			continue
		}
		seen[intent.ID] = struct{}{}

		if strings.TrimSpace(intent.Response.Main) == "" {
			problems = append(problems, fmt.Sprintf("intent %s: empty main response", intent.ID))
		}
		if intent.Name == "" {
			intent.Name = intent.ID
		}
		intent.Response.Tone = normalizeTone(intent.Response.Tone)
		intent.Keywords = b.prepareKeywords(intent.ID, intent.Keywords)
		intents = append(intents, intent)
	}

	fallbacks := make([]domain.Fallback, 0, len(content.Fallbacks))
	for i, fb := range content.Fallbacks {
		if strings.TrimSpace(fb.Message) == "" {
			problems = append(problems, fmt.Sprintf("fallback #%d: empty message", i))
			continue
		}
		if fb.ID == "" {
			fb.ID = fmt.Sprintf("fallback-%d", i+1)
		}
		fb.Tone = normalizeTone(fb.Tone)
		fallbacks = append(fallbacks, fb)
	}

	settings := content.Settings
	if settings.Menu.Message == "" {
		settings.Menu.Message = constants.DefaultMenu.Message
	}
	if len(settings.Menu.Options) == 0 {
		settings.Menu.Options = append([]string(nil), constants.DefaultMenu.Options...)
	}

	return domain.Content{
		Intents:   intents,
		Fallbacks: fallbacks,
		SiteData:  ensureSiteData(content.SiteData),
		Settings:  settings,
	}, problems
}

func (b *Builder) prepareKeywords(intentID string, keywords []domain.Keyword) []domain.Keyword {
	out := make([]domain.Keyword, 0, len(keywords))
	for _, kw := range keywords {
		expected := util.Normalize(kw.Text)
		if expected == "" {
			b.logger.Warn("Keyword without matchable characters skipped",
				zap.String("intent", intentID),
				zap.String("text", kw.Text),
			)
			continue
		}
		if kw.Normalized != "" && kw.Normalized != expected {
			// recompute when the stored normalized text no longer matches the current rules
			b.logger.Warn("Stored normalized keyword drifted, re-deriving",
				zap.String("intent", intentID),
				zap.String("stored", kw.Normalized),
				zap.String("expected", expected),
			)
		}
		kw.Normalized = expected
		if kw.Weight <= 0 {
			kw.Weight = constants.MatchScoring.DefaultWeight
		}
		kw.NormalizedSynonyms = normalizeForms(kw.Synonyms)
		kw.NormalizedMisspellings = normalizeForms(kw.Misspellings)
		out = append(out, kw)
	}
	return out
}

// normalizeForms always returns a non-nil slice so matching never re-normalizes.
func normalizeForms(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if n := util.Normalize(v); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func normalizeTone(t domain.Tone) domain.Tone {
	switch t {
	case domain.ToneFriendly, domain.ToneProfessional, domain.ToneNeutral:
		return t
	default:
		return domain.ToneFriendly
	}
}

func ensureSiteData(sd domain.SiteData) domain.SiteData {
	if sd.Services == nil {
		sd.Services = map[string]string{}
	}
	if sd.Prices == nil {
		sd.Prices = map[string]domain.PriceRange{}
	}
	if sd.Contact == nil {
		sd.Contact = map[string]string{}
	}
	return sd
}

// Fingerprint hashes the matchable content. Equal fingerprints mean identical behavior.
func Fingerprint(content domain.Content) (string, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
