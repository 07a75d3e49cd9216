package storage

import (
	"context"
	"errors"
)

// DeviceTokenKey is the settings key holding the Seedr device code.
const DeviceTokenKey = "deviceToken"

// ErrNotFound is returned when a key has never been written.
var ErrNotFound = errors.New("storage: key not found")

// SettingsReader reads a single persisted value.
type SettingsReader interface {
	Get(ctx context.Context, key string) (string, error)
}

// SettingsWriter creates or overwrites a single persisted value.
type SettingsWriter interface {
	Set(ctx context.Context, key, value string) error
}

type SettingsRepository interface {
	SettingsReader
	SettingsWriter
}
