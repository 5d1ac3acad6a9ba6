package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cardledger/cardintake/internal/teach"
)

// TemplateStore keeps teach templates in SQLite. It implements teach.Store.
type TemplateStore struct {
	db *DB
}

// Templates returns the teach template store.
func (d *DB) Templates() *TemplateStore {
	return &TemplateStore{db: d}
}

// Load returns the regions saved for key, or an empty set.
func (s *TemplateStore) Load(ctx context.Context, cardID string, key teach.Key) (teach.RegionsBySide, error) {
	tpl, ok, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return make(teach.RegionsBySide), nil
	}
	return tpl.Regions, nil
}

// Get returns the template for key.
func (s *TemplateStore) Get(ctx context.Context, key teach.Key) (teach.Template, bool, error) {
	key = key.Normalize()
	var regionsJSON, updatedAt string
	err := s.db.db.QueryRowContext(ctx,
		`SELECT regions_json, updated_at FROM teach_templates WHERE set_id = ? AND layout_class = ?`,
		key.SetID, key.LayoutClass,
	).Scan(&regionsJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return teach.Template{}, false, nil
	}
	if err != nil {
		return teach.Template{}, false, fmt.Errorf("failed to load teach template: %w", err)
	}
	tpl := teach.Template{Key: key, UpdatedAt: parseTime(updatedAt)}
	if err := json.Unmarshal([]byte(regionsJSON), &tpl.Regions); err != nil {
		return teach.Template{}, false, fmt.Errorf("failed to decode teach template regions: %w", err)
	}
	return tpl, true, nil
}

// Save validates and upserts the regions for key and returns what was stored.
func (s *TemplateStore) Save(ctx context.Context, cardID string, key teach.Key, regions teach.RegionsBySide) (teach.RegionsBySide, error) {
	key = key.Normalize()
	clean, err := teach.Validate(key, regions)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to encode teach template regions: %w", err)
	}
	_, err = s.db.db.ExecContext(ctx, `
        INSERT INTO teach_templates (set_id, layout_class, regions_json, last_card_id, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(set_id, layout_class) DO UPDATE SET
            regions_json = excluded.regions_json,
            last_card_id = excluded.last_card_id,
            updated_at = excluded.updated_at`,
		key.SetID, key.LayoutClass, string(payload), cardID, formatTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save teach template: %w", err)
	}
	return s.Load(ctx, cardID, key)
}

// Clear deletes the template for key.
func (s *TemplateStore) Clear(ctx context.Context, key teach.Key) error {
	key = key.Normalize()
	if _, err := s.db.db.ExecContext(ctx,
		`DELETE FROM teach_templates WHERE set_id = ? AND layout_class = ?`,
		key.SetID, key.LayoutClass,
	); err != nil {
		return fmt.Errorf("failed to clear teach template: %w", err)
	}
	return nil
}

// List returns every template, optionally limited to one set, ordered by
// set and layout class.
func (s *TemplateStore) List(ctx context.Context, setID string) ([]teach.Template, error) {
	query := `SELECT set_id, layout_class, regions_json, updated_at FROM teach_templates`
	var args []any
	if setID != "" {
		query += ` WHERE set_id = ?`
		args = append(args, setID)
	}
	query += ` ORDER BY set_id, layout_class`

	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list teach templates: %w", err)
	}
	defer rows.Close()

	var out []teach.Template
	for rows.Next() {
		var tpl teach.Template
		var regionsJSON, updatedAt string
		if err := rows.Scan(&tpl.SetID, &tpl.LayoutClass, &regionsJSON, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan teach template: %w", err)
		}
		if err := json.Unmarshal([]byte(regionsJSON), &tpl.Regions); err != nil {
			return nil, fmt.Errorf("failed to decode teach template %s/%s: %w", tpl.SetID, tpl.LayoutClass, err)
		}
		tpl.UpdatedAt = parseTime(updatedAt)
		out = append(out, tpl)
	}
	return out, rows.Err()
}
