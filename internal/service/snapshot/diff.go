package snapshot

import (
	"github.com/kapu/cirak-widget-go/internal/domain"
)

// Diff compares two snapshots by intent id. A nil previous reports every intent as added.
func Diff(current, previous *domain.Snapshot) domain.SnapshotDiff {
	diff := domain.SnapshotDiff{
		From:     previous.Metadata(),
		To:       current.Metadata(),
		Added:    []string{},
		Removed:  []string{},
		Modified: []domain.IntentChange{},
	}

	old := make(map[string]*domain.Intent)
	if previous != nil {
		for i := range previous.Intents {
			old[previous.Intents[i].ID] = &previous.Intents[i]
		}
	}

	seen := make(map[string]struct{})
	if current != nil {
		for _, intent := range current.Intents {
			seen[intent.ID] = struct{}{}
			before, ok := old[intent.ID]
			if !ok {
				diff.Added = append(diff.Added, intent.ID)
				continue
			}
			if change, changed := compareIntent(*before, intent); changed {
				diff.Modified = append(diff.Modified, change)
			}
		}
	}

	if previous != nil {
		for _, intent := range previous.Intents {
			if _, ok := seen[intent.ID]; !ok {
				diff.Removed = append(diff.Removed, intent.ID)
			}
		}
	}
	return diff
}

func compareIntent(before, after domain.Intent) (domain.IntentChange, bool) {
	change := domain.IntentChange{
		IntentID:        after.ID,
		Name:            after.Name,
		ResponseChanged: before.Response != after.Response,
		PriorityChanged: before.Priority != after.Priority,
		OldPriority:     before.Priority,
		NewPriority:     after.Priority,
	}
	change.KeywordsAdded = keyDifference(after.Keywords, before.Keywords)
	change.KeywordsRemoved = keyDifference(before.Keywords, after.Keywords)

	changed := change.ResponseChanged || change.PriorityChanged ||
		len(change.KeywordsAdded) > 0 || len(change.KeywordsRemoved) > 0
	return change, changed
}

// keyDifference returns normalized keys present in a but not in b, in a's order.
func keyDifference(a, b []domain.Keyword) []string {
	inB := make(map[string]struct{}, len(b))
	for _, kw := range b {
		inB[kw.Key()] = struct{}{}
	}
	var out []string
	for _, kw := range a {
		if _, ok := inB[kw.Key()]; !ok {
			out = append(out, kw.Key())
		}
	}
	return out
}
