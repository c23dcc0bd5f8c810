package database

import (
	"context"
	"fmt"
	"strings"
)

// Timestamps are stored as unix milliseconds so both dialects share one schema.
const schemaTemplate = `
CREATE TABLE IF NOT EXISTS intents (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 5,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	response_main TEXT NOT NULL,
	response_supporting TEXT NOT NULL DEFAULT '',
	response_cta TEXT NOT NULL DEFAULT '',
	tone TEXT NOT NULL DEFAULT 'friendly',
	data TEXT NOT NULL DEFAULT '',
	position INTEGER NOT NULL DEFAULT 0,
	updated_at BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS keywords (
	id {{SERIAL}},
	intent_id TEXT NOT NULL REFERENCES intents(id) ON DELETE CASCADE,
	text TEXT NOT NULL,
	normalized TEXT NOT NULL,
	weight {{REAL}} NOT NULL DEFAULT 10,
	synonyms TEXT NOT NULL DEFAULT '[]',
	misspellings TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_keywords_intent ON keywords(intent_id);
CREATE INDEX IF NOT EXISTS idx_keywords_normalized ON keywords(normalized);

CREATE TABLE IF NOT EXISTS fallbacks (
	id TEXT PRIMARY KEY,
	message TEXT NOT NULL,
	tone TEXT NOT NULL DEFAULT 'friendly',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	position INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS site_data (
	category TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (category, key)
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	id TEXT PRIMARY KEY,
	sequence BIGINT NOT NULL,
	fingerprint TEXT NOT NULL,
	intent_count INTEGER NOT NULL,
	keyword_count INTEGER NOT NULL,
	fallback_count INTEGER NOT NULL,
	generated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS interactions (
	id TEXT PRIMARY KEY,
	message TEXT NOT NULL,
	normalized_input TEXT NOT NULL,
	intent_id TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL,
	score {{REAL}} NOT NULL DEFAULT 0,
	guard_reason TEXT NOT NULL DEFAULT '',
	snapshot_id TEXT NOT NULL DEFAULT '',
	latency_ms BIGINT NOT NULL DEFAULT 0,
	created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_interactions_created ON interactions(created_at);
`

func (s *Service) schema() string {
	serial, floatType := "BIGSERIAL PRIMARY KEY", "DOUBLE PRECISION"
	if s.dialect == DialectSQLite {
		serial, floatType = "INTEGER PRIMARY KEY AUTOINCREMENT", "REAL"
	}
	return strings.NewReplacer("{{SERIAL}}", serial, "{{REAL}}", floatType).Replace(schemaTemplate)
}

// EnsureSchema creates all tables and indexes that do not exist yet.
func (s *Service) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(s.schema(), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
