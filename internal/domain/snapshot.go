package domain

import "time"

type PriceRange struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

// SiteData feeds template interpolation.
type SiteData struct {
	Services map[string]string     `json:"services"`
	Prices   map[string]PriceRange `json:"prices"`
	Contact  map[string]string     `json:"contact"`
}

type PresetMenu struct {
	Message string   `json:"message"`
	Options []string `json:"options"`
}

type Settings struct {
	AssistantName string     `json:"assistantName"`
	ThemeColor    string     `json:"themeColor"`
	WidgetEnabled bool       `json:"widgetEnabled"`
	Menu          PresetMenu `json:"menu"`
}

// Content is what an intent source returns before validation. Inactive entries are included.
type Content struct {
	Intents   []Intent   `json:"intents"`
	Fallbacks []Fallback `json:"fallbacks"`
	SiteData  SiteData   `json:"siteData"`
	Settings  Settings   `json:"settings"`
}

// Snapshot is an immutable, validated view of all intents used for matching.
// Holders must not modify it; a new snapshot is built for every change.
type Snapshot struct {
	ID          string     `json:"id"`
	Sequence    int64      `json:"sequence"`
	Fingerprint string     `json:"fingerprint"`
	GeneratedAt time.Time  `json:"generatedAt"`
	Intents     []Intent   `json:"intents"`
	Fallbacks   []Fallback `json:"fallbacks"`
	SiteData    SiteData   `json:"siteData"`
	Settings    Settings   `json:"settings"`
}

// Intent looks an intent up by id.
func (s *Snapshot) Intent(id string) (*Intent, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Intents {
		if s.Intents[i].ID == id {
			return &s.Intents[i], true
		}
	}
	return nil, false
}

func (s *Snapshot) Metadata() SnapshotMetadata {
	if s == nil {
		return SnapshotMetadata{}
	}
	keywords := 0
	for _, intent := range s.Intents {
		keywords += len(intent.Keywords)
	}
	return SnapshotMetadata{
		ID:            s.ID,
		Sequence:      s.Sequence,
		Fingerprint:   s.Fingerprint,
		GeneratedAt:   s.GeneratedAt,
		IntentCount:   len(s.Intents),
		KeywordCount:  keywords,
		FallbackCount: len(s.Fallbacks),
	}
}

type SnapshotMetadata struct {
	ID            string    `json:"id"`
	Sequence      int64     `json:"sequence"`
	Fingerprint   string    `json:"fingerprint"`
	GeneratedAt   time.Time `json:"generatedAt"`
	IntentCount   int       `json:"intentCount"`
	KeywordCount  int       `json:"keywordCount"`
	FallbackCount int       `json:"fallbackCount"`
}

type IntentChange struct {
	IntentID        string   `json:"intentId"`
	Name            string   `json:"name"`
	ResponseChanged bool     `json:"responseChanged"`
	KeywordsAdded   []string `json:"keywordsAdded,omitempty"`
	KeywordsRemoved []string `json:"keywordsRemoved,omitempty"`
	PriorityChanged bool     `json:"priorityChanged"`
	OldPriority     int      `json:"oldPriority"`
	NewPriority     int      `json:"newPriority"`
}

// SnapshotDiff describes how the current snapshot differs from the previous one.
type SnapshotDiff struct {
	From     SnapshotMetadata `json:"from"`
	To       SnapshotMetadata `json:"to"`
	Added    []string         `json:"added"`
	Removed  []string         `json:"removed"`
	Modified []IntentChange   `json:"modified"`
}

// Empty reports whether nothing changed between the snapshots.
func (d SnapshotDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}
