package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/italolelis/seedr_tray/internal/storage"
	"github.com/italolelis/seedr_tray/internal/telemetry"
)

// InstrumentedSettingsRepository wraps SettingsRepository with telemetry.
type InstrumentedSettingsRepository struct {
	repo      *SettingsRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedSettingsRepository creates a new instrumented settings repository.
func NewInstrumentedSettingsRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedSettingsRepository {
	return &InstrumentedSettingsRepository{
		repo:      NewSettingsRepository(dbConn),
		telemetry: tel,
	}
}

// Get reads a setting with telemetry. A missing key is not counted as an error.
func (r *InstrumentedSettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var (
		result   string
		notFound bool
	)

	err := r.telemetry.InstrumentDBOperation(ctx, "get_setting", func(ctx context.Context) error {
		var err error

		result, err = r.repo.Get(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			notFound = true

			return nil
		}

		return err
	})
	if err != nil {
		return "", err
	}

	if notFound {
		return "", storage.ErrNotFound
	}

	return result, nil
}

// Set writes a setting with telemetry.
func (r *InstrumentedSettingsRepository) Set(ctx context.Context, key, value string) error {
	return r.telemetry.InstrumentDBOperation(ctx, "set_setting", func(ctx context.Context) error {
		return r.repo.Set(ctx, key, value)
	})
}

var _ storage.SettingsRepository = (*InstrumentedSettingsRepository)(nil)
