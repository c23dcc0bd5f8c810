package conflict

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kapu/cirak-widget-go/internal/domain"
	"github.com/kapu/cirak-widget-go/internal/util"
)

// Detector finds keys that make intent selection surprising: the same key on two
// intents, or a short key on a higher-priority intent swallowing a longer one.
type Detector struct {
	logger *zap.Logger
}

func NewDetector(logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{logger: logger}
}

type keyEntry struct {
	key        string
	text       string
	intentID   string
	intentName string
	priority   int
}

func flattenKeys(snap *domain.Snapshot) []keyEntry {
	if snap == nil {
		return nil
	}
	var entries []keyEntry
	for _, intent := range snap.Intents {
		if !intent.Active {
			continue
		}
		for _, kw := range intent.Keywords {
			key := kw.Key()
			if key == "" {
				continue
			}
			entries = append(entries, keyEntry{
				key:        key,
				text:       kw.Text,
				intentID:   intent.ID,
				intentName: intent.Name,
				priority:   intent.Priority,
			})
		}
	}
	return entries
}

// DetectConflicts reports every KEY_DUPLICATION followed by every AMBIGUOUS_INPUT, in
// snapshot order.
func (d *Detector) DetectConflicts(snap *domain.Snapshot) []domain.Conflict {
	entries := flattenKeys(snap)
	conflicts := make([]domain.Conflict, 0)
	conflicts = append(conflicts, duplications(entries)...)
	conflicts = append(conflicts, shadowings(entries)...)

	if len(conflicts) > 0 {
		d.logger.Info("Intent conflicts detected",
			zap.Int("count", len(conflicts)),
			zap.Int("keys", len(entries)),
		)
	}
	return conflicts
}

func duplications(entries []keyEntry) []domain.Conflict {
	type group struct {
		ids   []string
		names []string
	}
	var order []string
	groups := make(map[string]*group)

	for _, e := range entries {
		g, ok := groups[e.key]
		if !ok {
			g = &group{}
			groups[e.key] = g
			order = append(order, e.key)
		}
		if !util.Contains(g.ids, e.intentID) {
			g.ids = append(g.ids, e.intentID)
			g.names = append(g.names, e.intentName)
		}
	}

	var conflicts []domain.Conflict
	for _, key := range order {
		g := groups[key]
		if len(g.ids) < 2 {
			continue
		}
		conflicts = append(conflicts, domain.Conflict{
			Type:        domain.ConflictKeyDuplication,
			Severity:    domain.SeverityCritical,
			Key:         key,
			IntentIDs:   g.ids,
			IntentNames: g.names,
			Message:     fmt.Sprintf("Key %q is used by multiple intents: %s", key, strings.Join(g.names, ", ")),
		})
	}
	return conflicts
}

// shadowings finds a key that is contained in a different, longer key of another
// intent with strictly lower priority. Any input containing the longer key also
// contains the shorter one, so the lower-priority intent can never be selected by it.
func shadowings(entries []keyEntry) []domain.Conflict {
	seen := make(map[string]struct{})
	var conflicts []domain.Conflict

	for _, short := range entries {
		for _, long := range entries {
			if short.intentID == long.intentID || short.key == long.key {
				continue
			}
			if short.priority <= long.priority || !strings.Contains(long.key, short.key) {
				continue
			}

			id := short.key + "\x00" + long.key + "\x00" + short.intentID + "\x00" + long.intentID
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			conflicts = append(conflicts, domain.Conflict{
				Type:        domain.ConflictAmbiguousInput,
				Severity:    domain.SeverityWarning,
				Key:         short.key,
				ShadowedKey: long.key,
				IntentIDs:   []string{short.intentID, long.intentID},
				IntentNames: []string{short.intentName, long.intentName},
				Message: fmt.Sprintf("Input %q will match higher priority intent %q (via key %q) instead of %q.",
					long.text, short.intentName, short.text, long.intentName),
			})
		}
	}
	return conflicts
}

// ValidateNewKey checks whether adding candidate to targetIntentID would duplicate a
// key of another active intent. Only exact duplication is checked; the target intent's
// own keys are ignored.
func (d *Detector) ValidateNewKey(candidate, targetIntentID string, snap *domain.Snapshot) *domain.Conflict {
	key := util.Normalize(candidate)
	if key == "" || snap == nil {
		return nil
	}

	for _, intent := range snap.Intents {
		if !intent.Active || intent.ID == targetIntentID {
			continue
		}
		for _, kw := range intent.Keywords {
			if kw.Key() != key {
				continue
			}
			targetName := targetIntentID
			if target, ok := snap.Intent(targetIntentID); ok {
				targetName = target.Name
			}
			d.logger.Warn("Keyword rejected: duplicate key",
				zap.String("key", key),
				zap.String("existing_intent", intent.ID),
				zap.String("target_intent", targetIntentID),
			)
			return &domain.Conflict{
				Type:        domain.ConflictKeyDuplication,
				Severity:    domain.SeverityCritical,
				Key:         key,
				IntentIDs:   []string{intent.ID, targetIntentID},
				IntentNames: []string{intent.Name, targetName},
				Message:     fmt.Sprintf("Key %q is already used by intent %q", key, intent.Name),
			}
		}
	}
	return nil
}
