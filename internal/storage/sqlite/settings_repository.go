package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/italolelis/seedr_tray/internal/storage"
)

// SettingsRepository is a key-value store backed by the settings table.
type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(dbConn *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: dbConn}
}

// Get returns storage.ErrNotFound when key was never written.
func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string

	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}

	if err != nil {
		return "", err
	}

	return value, nil
}

// Set upserts key.
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, time.Now().Format(time.RFC3339))

	return err
}

var _ storage.SettingsRepository = (*SettingsRepository)(nil)
