package seedr

import (
	"context"

	"github.com/italolelis/seedr_tray/internal/telemetry"
)

const clientType = "seedr"

// InstrumentedClient wraps an API with telemetry.
type InstrumentedClient struct {
	client    API
	telemetry *telemetry.Telemetry
}

// NewInstrumentedClient creates a new instrumented Seedr client.
func NewInstrumentedClient(client API, tel *telemetry.Telemetry) *InstrumentedClient {
	return &InstrumentedClient{
		client:    client,
		telemetry: tel,
	}
}

// RequestDeviceCode starts device authorization with telemetry.
func (c *InstrumentedClient) RequestDeviceCode(ctx context.Context) (*DeviceCode, error) {
	var result *DeviceCode

	err := c.telemetry.InstrumentClientOperation(ctx, clientType, "request_device_code", func(ctx context.Context) error {
		var err error

		result, err = c.client.RequestDeviceCode(ctx)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ListFolders lists folders with telemetry.
func (c *InstrumentedClient) ListFolders(ctx context.Context) ([]Folder, error) {
	var result []Folder

	err := c.telemetry.InstrumentClientOperation(ctx, clientType, "list_folders", func(ctx context.Context) error {
		var err error

		result, err = c.client.ListFolders(ctx)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// CreateArchive creates an archive with telemetry.
func (c *InstrumentedClient) CreateArchive(ctx context.Context, folderID int64) (*Archive, error) {
	var result *Archive

	err := c.telemetry.InstrumentClientOperation(ctx, clientType, "create_archive", func(ctx context.Context) error {
		var err error

		result, err = c.client.CreateArchive(ctx, folderID)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// FetchFile fetches a file link with telemetry.
func (c *InstrumentedClient) FetchFile(ctx context.Context, fileID int64) (*FetchedFile, error) {
	var result *FetchedFile

	err := c.telemetry.InstrumentClientOperation(ctx, clientType, "fetch_file", func(ctx context.Context) error {
		var err error

		result, err = c.client.FetchFile(ctx, fileID)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// DeleteFolder deletes a folder with telemetry.
func (c *InstrumentedClient) DeleteFolder(ctx context.Context, folderID int64) (bool, error) {
	var deleted bool

	err := c.telemetry.InstrumentClientOperation(ctx, clientType, "delete_folder", func(ctx context.Context) error {
		var err error

		deleted, err = c.client.DeleteFolder(ctx, folderID)

		return err
	})

	return deleted, err
}

// AddMagnet adds a magnet link with telemetry.
func (c *InstrumentedClient) AddMagnet(ctx context.Context, magnet string) error {
	return c.telemetry.InstrumentClientOperation(ctx, clientType, "add_magnet", func(ctx context.Context) error {
		return c.client.AddMagnet(ctx, magnet)
	})
}

var _ API = (*InstrumentedClient)(nil)
