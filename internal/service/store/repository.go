package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/cirak-widget-go/internal/domain"
	"github.com/kapu/cirak-widget-go/internal/service/database"
	"github.com/kapu/cirak-widget-go/internal/util"
	apperrors "github.com/kapu/cirak-widget-go/pkg/errors"
)

// Site data categories
const (
	CategoryService = "service"
	CategoryPrice   = "price"
	CategoryContact = "contact"
)

// Setting keys
const (
	SettingAssistantName  = "assistantName"
	SettingThemeColor     = "themeColor"
	SettingWidgetEnabled  = "widgetEnabled"
	SettingWelcomeMessage = "welcomeMessage"
	SettingMenuOptions    = "menuOptions"
)

// Repository is the SQL intent store. It works on postgres and sqlite.
type Repository struct {
	db     *database.Service
	logger *zap.Logger
}

func NewRepository(db *database.Service, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{db: db, logger: logger}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Load reads all intents, keywords, fallbacks, site data and settings in store order.
func (r *Repository) Load(ctx context.Context) (*domain.Content, error) {
	content := &domain.Content{}
	var err error

	if content.Intents, err = r.loadIntents(ctx, r.db.DB()); err != nil {
		return nil, apperrors.NewStoreError("failed to load intents", "load_intents", err)
	}
	if content.Fallbacks, err = r.loadFallbacks(ctx); err != nil {
		return nil, apperrors.NewStoreError("failed to load fallbacks", "load_fallbacks", err)
	}
	if content.SiteData, err = r.loadSiteData(ctx); err != nil {
		return nil, apperrors.NewStoreError("failed to load site data", "load_site_data", err)
	}
	if content.Settings, err = r.loadSettings(ctx); err != nil {
		return nil, apperrors.NewStoreError("failed to load settings", "load_settings", err)
	}
	return content, nil
}

func (r *Repository) loadIntents(ctx context.Context, q queryer) ([]domain.Intent, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, priority, active, response_main, response_supporting,
		       response_cta, tone, data
		FROM intents
		ORDER BY position, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intents []domain.Intent
	index := make(map[string]int)
	for rows.Next() {
		var (
			intent   domain.Intent
			tone     string
			dataJSON string
		)
		if err := rows.Scan(&intent.ID, &intent.Name, &intent.Priority, &intent.Active,
			&intent.Response.Main, &intent.Response.Supporting, &intent.Response.CTA,
			&tone, &dataJSON); err != nil {
			return nil, err
		}
		intent.Response.Tone = domain.Tone(tone)
		if strings.TrimSpace(dataJSON) != "" {
			if err := json.Unmarshal([]byte(dataJSON), &intent.Data); err != nil {
				return nil, fmt.Errorf("intent %s: invalid data: %w", intent.ID, err)
			}
		}
		index[intent.ID] = len(intents)
		intents = append(intents, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	kwRows, err := q.QueryContext(ctx, `
		SELECT id, intent_id, text, normalized, weight, synonyms, misspellings
		FROM keywords
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer kwRows.Close()

	for kwRows.Next() {
		var (
			kw           domain.Keyword
			intentID     string
			synonyms     string
			misspellings string
		)
		if err := kwRows.Scan(&kw.ID, &intentID, &kw.Text, &kw.Normalized, &kw.Weight, &synonyms, &misspellings); err != nil {
			return nil, err
		}
		if kw.Synonyms, err = decodeStringList(synonyms); err != nil {
			return nil, fmt.Errorf("keyword %d: invalid synonyms: %w", kw.ID, err)
		}
		if kw.Misspellings, err = decodeStringList(misspellings); err != nil {
			return nil, fmt.Errorf("keyword %d: invalid misspellings: %w", kw.ID, err)
		}
		i, ok := index[intentID]
		if !ok {
			r.logger.Warn("Orphan keyword skipped", zap.Int64("keyword_id", kw.ID), zap.String("intent_id", intentID))
			continue
		}
		intents[i].Keywords = append(intents[i].Keywords, kw)
	}
	return intents, kwRows.Err()
}

func (r *Repository) loadFallbacks(ctx context.Context) ([]domain.Fallback, error) {
	rows, err := r.db.DB().QueryContext(ctx, `SELECT id, message, tone, active FROM fallbacks ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fallbacks []domain.Fallback
	for rows.Next() {
		var (
			fb   domain.Fallback
			tone string
		)
		if err := rows.Scan(&fb.ID, &fb.Message, &tone, &fb.Active); err != nil {
			return nil, err
		}
		fb.Tone = domain.Tone(tone)
		fallbacks = append(fallbacks, fb)
	}
	return fallbacks, rows.Err()
}

// loadSiteData reads (category, key, value) rows. Prices use "<key>.min" and "<key>.max".
func (r *Repository) loadSiteData(ctx context.Context) (domain.SiteData, error) {
	site := domain.SiteData{
		Services: map[string]string{},
		Prices:   map[string]domain.PriceRange{},
		Contact:  map[string]string{},
	}

	rows, err := r.db.DB().QueryContext(ctx, `SELECT category, key, value FROM site_data ORDER BY category, key`)
	if err != nil {
		return site, err
	}
	defer rows.Close()

	for rows.Next() {
		var category, key, value string
		if err := rows.Scan(&category, &key, &value); err != nil {
			return site, err
		}
		switch category {
		case CategoryService:
			site.Services[key] = value
		case CategoryContact:
			site.Contact[key] = value
		case CategoryPrice:
			name, field, ok := strings.Cut(key, ".")
			if !ok {
				r.logger.Warn("Price key without min/max suffix", zap.String("key", key))
				continue
			}
			price := site.Prices[name]
			switch field {
			case "min":
				price.Min = value
			case "max":
				price.Max = value
			default:
				continue
			}
			site.Prices[name] = price
		default:
			r.logger.Debug("Unknown site data category", zap.String("category", category))
		}
	}
	return site, rows.Err()
}

func (r *Repository) loadSettings(ctx context.Context) (domain.Settings, error) {
	settings := domain.Settings{WidgetEnabled: true}

	rows, err := r.db.DB().QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return settings, err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return settings, err
		}
		switch key {
		case SettingAssistantName:
			settings.AssistantName = value
		case SettingThemeColor:
			settings.ThemeColor = value
		case SettingWidgetEnabled:
			if b, err := strconv.ParseBool(value); err == nil {
				settings.WidgetEnabled = b
			}
		case SettingWelcomeMessage:
			settings.Menu.Message = value
		case SettingMenuOptions:
			if opts, err := decodeStringList(value); err == nil {
				settings.Menu.Options = opts
			}
		}
	}
	return settings, rows.Err()
}

// UpsertIntent writes an intent and replaces its keywords.
func (r *Repository) UpsertIntent(ctx context.Context, intent domain.Intent, position int) error {
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		return r.upsertIntentTx(ctx, tx, intent, position)
	})
	if err != nil {
		return apperrors.NewStoreError("failed to save intent", "upsert_intent", err)
	}
	return nil
}

func (r *Repository) upsertIntentTx(ctx context.Context, tx *sql.Tx, intent domain.Intent, position int) error {
	if strings.TrimSpace(intent.ID) == "" {
		return apperrors.NewValidationError("intent id is required", "id", intent.ID)
	}
	dataJSON := ""
	if len(intent.Data) > 0 {
		encoded, err := json.Marshal(intent.Data)
		if err != nil {
			return fmt.Errorf("encode data for %s: %w", intent.ID, err)
		}
		dataJSON = string(encoded)
	}

	_, err := tx.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO intents (id, name, priority, active, response_main, response_supporting,
		                     response_cta, tone, data, position, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			priority = excluded.priority,
			active = excluded.active,
			response_main = excluded.response_main,
			response_supporting = excluded.response_supporting,
			response_cta = excluded.response_cta,
			tone = excluded.tone,
			data = excluded.data,
			position = excluded.position,
			updated_at = excluded.updated_at
	`), intent.ID, intent.Name, intent.Priority, intent.Active, intent.Response.Main,
		intent.Response.Supporting, intent.Response.CTA, string(intent.Response.Tone),
		dataJSON, position, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert intent %s: %w", intent.ID, err)
	}

	if _, err := tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM keywords WHERE intent_id = ?`), intent.ID); err != nil {
		return fmt.Errorf("clear keywords of %s: %w", intent.ID, err)
	}
	for _, kw := range intent.Keywords {
		if _, err := r.insertKeyword(ctx, tx, intent.ID, kw); err != nil {
			return err
		}
	}
	return nil
}

// AddKeyword stores a keyword with its normalized form computed here, at write time.
func (r *Repository) AddKeyword(ctx context.Context, intentID string, kw domain.Keyword) (domain.Keyword, error) {
	var saved domain.Keyword
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, r.db.Rebind(`SELECT COUNT(*) FROM intents WHERE id = ?`), intentID).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			return apperrors.NewNotFoundError("intent", intentID)
		}
		saved, err = r.insertKeyword(ctx, tx, intentID, kw)
		return err
	})
	if err != nil {
		return domain.Keyword{}, wrapStoreError(err, "failed to add keyword", "add_keyword")
	}

	r.logger.Info("Keyword added",
		zap.String("intent", intentID),
		zap.String("normalized", saved.Normalized),
	)
	return saved, nil
}

func (r *Repository) insertKeyword(ctx context.Context, tx *sql.Tx, intentID string, kw domain.Keyword) (domain.Keyword, error) {
	kw.Text = strings.TrimSpace(kw.Text)
	kw.Normalized = util.Normalize(kw.Text)
	if kw.Normalized == "" {
		return domain.Keyword{}, apperrors.NewValidationError("keyword has no matchable characters", "text", kw.Text)
	}
	if kw.Weight <= 0 {
		kw.Weight = 10
	}

	synonyms, err := encodeStringList(kw.Synonyms)
	if err != nil {
		return domain.Keyword{}, err
	}
	misspellings, err := encodeStringList(kw.Misspellings)
	if err != nil {
		return domain.Keyword{}, err
	}

	err = tx.QueryRowContext(ctx, r.db.Rebind(`
		INSERT INTO keywords (intent_id, text, normalized, weight, synonyms, misspellings)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`), intentID, kw.Text, kw.Normalized, kw.Weight, synonyms, misspellings).Scan(&kw.ID)
	if err != nil {
		return domain.Keyword{}, fmt.Errorf("insert keyword %q: %w", kw.Text, err)
	}
	return kw, nil
}

func (r *Repository) DeleteKeyword(ctx context.Context, id int64) error {
	res, err := r.db.DB().ExecContext(ctx, r.db.Rebind(`DELETE FROM keywords WHERE id = ?`), id)
	if err != nil {
		return apperrors.NewStoreError("failed to delete keyword", "delete_keyword", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewNotFoundError("keyword", strconv.FormatInt(id, 10))
	}
	return nil
}

// SetIntentState changes activation and/or priority. Nil fields are left untouched.
func (r *Repository) SetIntentState(ctx context.Context, id string, active *bool, priority *int) error {
	if active == nil && priority == nil {
		return nil
	}

	sets := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if active != nil {
		sets = append(sets, "active = ?")
		args = append(args, *active)
	}
	if priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, *priority)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UnixMilli(), id)

	query := r.db.Rebind("UPDATE intents SET " + strings.Join(sets, ", ") + " WHERE id = ?")
	res, err := r.db.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewStoreError("failed to update intent", "update_intent", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewNotFoundError("intent", id)
	}
	return nil
}

func (r *Repository) UpsertFallback(ctx context.Context, fb domain.Fallback, position int) error {
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		return r.upsertFallbackTx(ctx, tx, fb, position)
	})
	if err != nil {
		return apperrors.NewStoreError("failed to save fallback", "upsert_fallback", err)
	}
	return nil
}

func (r *Repository) upsertFallbackTx(ctx context.Context, tx *sql.Tx, fb domain.Fallback, position int) error {
	_, err := tx.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO fallbacks (id, message, tone, active, position)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			message = excluded.message,
			tone = excluded.tone,
			active = excluded.active,
			position = excluded.position
	`), fb.ID, fb.Message, string(fb.Tone), fb.Active, position)
	return err
}

func (r *Repository) PutSiteData(ctx context.Context, category, key, value string) error {
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		return r.putSiteDataTx(ctx, tx, category, key, value)
	})
	if err != nil {
		return apperrors.NewStoreError("failed to save site data", "put_site_data", err)
	}
	return nil
}

func (r *Repository) putSiteDataTx(ctx context.Context, tx *sql.Tx, category, key, value string) error {
	_, err := tx.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO site_data (category, key, value) VALUES (?, ?, ?)
		ON CONFLICT (category, key) DO UPDATE SET value = excluded.value
	`), category, key, value)
	return err
}

func (r *Repository) PutSetting(ctx context.Context, key, value string) error {
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		return r.putSettingTx(ctx, tx, key, value)
	})
	if err != nil {
		return apperrors.NewStoreError("failed to save setting", "put_setting", err)
	}
	return nil
}

func (r *Repository) putSettingTx(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`), key, value)
	return err
}

// ImportContent writes a whole content set in one transaction. Existing rows with the
// same ids are overwritten; rows not present in content are kept.
func (r *Repository) ImportContent(ctx context.Context, content *domain.Content) error {
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		for i, intent := range content.Intents {
			if err := r.upsertIntentTx(ctx, tx, intent, i); err != nil {
				return err
			}
		}
		for i, fb := range content.Fallbacks {
			if err := r.upsertFallbackTx(ctx, tx, fb, i); err != nil {
				return fmt.Errorf("upsert fallback %s: %w", fb.ID, err)
			}
		}
		for key, value := range content.SiteData.Services {
			if err := r.putSiteDataTx(ctx, tx, CategoryService, key, value); err != nil {
				return err
			}
		}
		for key, value := range content.SiteData.Contact {
			if err := r.putSiteDataTx(ctx, tx, CategoryContact, key, value); err != nil {
				return err
			}
		}
		for key, price := range content.SiteData.Prices {
			if err := r.putSiteDataTx(ctx, tx, CategoryPrice, key+".min", price.Min); err != nil {
				return err
			}
			if err := r.putSiteDataTx(ctx, tx, CategoryPrice, key+".max", price.Max); err != nil {
				return err
			}
		}
		return r.putSettingsTx(ctx, tx, content.Settings)
	})
	if err != nil {
		return wrapStoreError(err, "failed to import content", "import")
	}

	r.logger.Info("Content imported",
		zap.Int("intents", len(content.Intents)),
		zap.Int("fallbacks", len(content.Fallbacks)),
	)
	return nil
}

func (r *Repository) putSettingsTx(ctx context.Context, tx *sql.Tx, s domain.Settings) error {
	values := map[string]string{
		SettingWidgetEnabled: strconv.FormatBool(s.WidgetEnabled),
	}
	if s.AssistantName != "" {
		values[SettingAssistantName] = s.AssistantName
	}
	if s.ThemeColor != "" {
		values[SettingThemeColor] = s.ThemeColor
	}
	if s.Menu.Message != "" {
		values[SettingWelcomeMessage] = s.Menu.Message
	}
	if len(s.Menu.Options) > 0 {
		encoded, err := encodeStringList(s.Menu.Options)
		if err != nil {
			return err
		}
		values[SettingMenuOptions] = encoded
	}
	for key, value := range values {
		if err := r.putSettingTx(ctx, tx, key, value); err != nil {
			return err
		}
	}
	return nil
}

// RecordSnapshot appends installed snapshot metadata to the history table.
func (r *Repository) RecordSnapshot(ctx context.Context, meta domain.SnapshotMetadata) error {
	_, err := r.db.DB().ExecContext(ctx, r.db.Rebind(`
		INSERT INTO snapshots (id, sequence, fingerprint, intent_count, keyword_count, fallback_count, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`), meta.ID, meta.Sequence, meta.Fingerprint, meta.IntentCount, meta.KeywordCount, meta.FallbackCount, meta.GeneratedAt.UnixMilli())
	if err != nil {
		return apperrors.NewStoreError("failed to record snapshot", "record_snapshot", err)
	}
	return nil
}

// SnapshotHistory returns the most recent snapshots first.
func (r *Repository) SnapshotHistory(ctx context.Context, limit int) ([]domain.SnapshotMetadata, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.DB().QueryContext(ctx, r.db.Rebind(`
		SELECT id, sequence, fingerprint, intent_count, keyword_count, fallback_count, generated_at
		FROM snapshots
		ORDER BY generated_at DESC, sequence DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, apperrors.NewStoreError("failed to read snapshot history", "snapshot_history", err)
	}
	defer rows.Close()

	history := make([]domain.SnapshotMetadata, 0, limit)
	for rows.Next() {
		var (
			meta        domain.SnapshotMetadata
			generatedAt int64
		)
		if err := rows.Scan(&meta.ID, &meta.Sequence, &meta.Fingerprint, &meta.IntentCount,
			&meta.KeywordCount, &meta.FallbackCount, &generatedAt); err != nil {
			return nil, err
		}
		meta.GeneratedAt = time.UnixMilli(generatedAt).UTC()
		history = append(history, meta)
	}
	return history, rows.Err()
}

func encodeStringList(values []string) (string, error) {
	if len(values) == 0 {
		return "[]", nil
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func decodeStringList(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "[]" || raw == "null" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, err
	}
	return values, nil
}

// wrapStoreError keeps typed validation and not-found errors visible to callers.
func wrapStoreError(err error, message, operation string) error {
	var validation *apperrors.ValidationError
	var notFound *apperrors.NotFoundError
	if errors.As(err, &validation) || errors.As(err, &notFound) {
		return err
	}
	return apperrors.NewStoreError(message, operation, err)
}
