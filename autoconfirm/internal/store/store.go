// CLAUDE:SUMMARY SQLite key-value store for templates and settings with default materialisation and template CRUD.
// Package store persists templates and settings as JSON records in a SQLite
// key-value table. Reads materialise defaults when a key is absent or its
// record is malformed.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/autoconfirm/rules"
)

// ErrTemplateNotFound is returned when a template ID does not exist.
type ErrTemplateNotFound struct {
	ID string
}

func (e *ErrTemplateNotFound) Error() string {
	return fmt.Sprintf("store: template not found: %s", e.ID)
}

// Store wraps the database. Template and settings writes are serialised.
type Store struct {
	DB     *sql.DB
	Logger *slog.Logger
	// Now stamps records. Default: time.Now.
	Now func() time.Time

	mu sync.Mutex
}

// New creates a Store over an opened database.
func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{DB: db, Logger: logger, Now: time.Now}
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Get returns the raw value of key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM autoconfirm_kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: get %s: %w", key, err)
	}
	return v, true, nil
}

// Set writes the raw value of key and bumps the store revision.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO autoconfirm_kv (key, value, rev, updated_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(rev), 0) + 1 FROM autoconfirm_kv), ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			rev = excluded.rev,
			updated_at = excluded.updated_at`,
		key, value, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: set %s: %w", key, err)
	}
	return nil
}

// Revision returns the store-wide write revision.
func (s *Store) Revision(ctx context.Context) (int64, error) {
	var rev int64
	err := s.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(rev), 0) FROM autoconfirm_kv`).Scan(&rev)
	return rev, err
}

// getJSON decodes key into dst. It reports false when the key is absent or
// the record does not decode.
func (s *Store) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		s.Logger.Warn("store: malformed record, using defaults", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

func (s *Store) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", key, err)
	}
	return s.Set(ctx, key, string(data))
}

// Templates returns the template list, materialising the defaults on first
// read.
func (s *Store) Templates(ctx context.Context) ([]rules.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.templatesLocked(ctx)
}

func (s *Store) templatesLocked(ctx context.Context) ([]rules.Template, error) {
	var tpls []rules.Template
	ok, err := s.getJSON(ctx, rules.TemplatesKey, &tpls)
	if err != nil {
		return nil, err
	}
	if ok && tpls != nil {
		return tpls, nil
	}
	tpls = rules.DefaultTemplates(s.now())
	if err := s.setJSON(ctx, rules.TemplatesKey, tpls); err != nil {
		return nil, err
	}
	return tpls, nil
}

// SaveTemplates replaces the template list.
func (s *Store) SaveTemplates(ctx context.Context, tpls []rules.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tpls == nil {
		tpls = []rules.Template{}
	}
	return s.setJSON(ctx, rules.TemplatesKey, tpls)
}

// Settings returns the settings, materialising the defaults on first read.
func (s *Store) Settings(ctx context.Context) (rules.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st rules.Settings
	ok, err := s.getJSON(ctx, rules.SettingsKey, &st)
	if err != nil {
		return rules.Settings{}, err
	}
	if ok {
		return st, nil
	}
	st = rules.DefaultSettings()
	if err := s.setJSON(ctx, rules.SettingsKey, st); err != nil {
		return rules.Settings{}, err
	}
	return st, nil
}

// SaveSettings replaces the settings.
func (s *Store) SaveSettings(ctx context.Context, st rules.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setJSON(ctx, rules.SettingsKey, st)
}
