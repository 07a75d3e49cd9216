// Package tray owns the menu template and turns clicks into remote calls.
package tray

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/italolelis/seedr_tray/internal/desktop"
	"github.com/italolelis/seedr_tray/internal/logctx"
	"github.com/italolelis/seedr_tray/internal/menu"
	"github.com/italolelis/seedr_tray/internal/notifier"
	"github.com/italolelis/seedr_tray/internal/seedr"
	"github.com/italolelis/seedr_tray/internal/storage"
	"github.com/italolelis/seedr_tray/internal/telemetry"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultDevicesURL = "https://www.seedr.cc/devices"

	configureMessage = "Please add the token below, it's already copied to your clipboard"

	updateQueueSize = 16
)

// ErrStopped is returned when the controller loop is no longer running.
var ErrStopped = errors.New("tray: controller stopped")

// Renderer rebuilds the native menu from a template snapshot.
type Renderer interface {
	Render(entries []menu.Entry)
}

// TokenCache drops a cached access token.
type TokenCache interface {
	Reset()
}

// FolderSource produces the folder block of the menu.
type FolderSource interface {
	FolderEntries(ctx context.Context) ([]menu.Entry, error)
}

type Options struct {
	Title      string
	DialogName string
	DevicesURL string

	Client   seedr.API
	Folders  FolderSource
	Settings storage.SettingsWriter
	// Tokens, when set, is reset after a new device code is stored.
	Tokens    TokenCache
	Notifier  notifier.Notifier
	Desktop   desktop.Desktop
	Renderer  Renderer
	Telemetry *telemetry.Telemetry
	// Quit is called by the exit action.
	Quit func()
}

// Controller is the single writer of the menu template. Handlers run on their
// own goroutines and hand template edits to the Run loop.
type Controller struct {
	opts Options

	template menu.Template
	updates  chan func(*menu.Template)
	done     chan struct{}

	refreshes singleflight.Group
	handlers  sync.WaitGroup
}

func NewController(opts Options) *Controller {
	if opts.DevicesURL == "" {
		opts.DevicesURL = DefaultDevicesURL
	}

	if opts.DialogName == "" {
		opts.DialogName = opts.Title
	}

	if opts.Telemetry == nil {
		opts.Telemetry = &telemetry.Telemetry{}
	}

	if opts.Quit == nil {
		opts.Quit = func() {}
	}

	return &Controller{
		opts:     opts,
		template: menu.NewTemplate(opts.Title),
		updates:  make(chan func(*menu.Template), updateQueueSize),
		done:     make(chan struct{}),
	}
}

// Run applies queued template edits and renders after each one. It blocks
// until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)

	c.render()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-c.updates:
			update(&c.template)
			c.render()
		}
	}
}

// Wait blocks until every dispatched handler has returned.
func (c *Controller) Wait() {
	c.handlers.Wait()
}

// WaitContext is Wait bounded by ctx. Handlers still running when ctx ends,
// such as one blocked on an open dialog, are left behind.
func (c *Controller) WaitContext(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		c.handlers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) render() {
	if c.opts.Renderer != nil {
		c.opts.Renderer.Render(c.template.Entries())
	}
}

func (c *Controller) submit(ctx context.Context, update func(*menu.Template)) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}

	select {
	case c.updates <- update:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current top-level entries as seen by the Run loop.
func (c *Controller) Snapshot(ctx context.Context) ([]menu.Entry, error) {
	result := make(chan []menu.Entry, 1)

	if err := c.submit(ctx, func(t *menu.Template) { result <- t.Entries() }); err != nil {
		return nil, err
	}

	select {
	case entries := <-result:
		return entries, nil
	case <-c.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dispatch runs the handler for action on its own goroutine.
func (c *Controller) Dispatch(ctx context.Context, action menu.Action) {
	c.handlers.Add(1)

	go func() {
		defer c.handlers.Done()

		_ = c.Handle(ctx, action)
	}()
}

// Handle runs the handler for action and waits for it.
func (c *Controller) Handle(ctx context.Context, action menu.Action) error {
	ctx, logger := logctx.With(ctx, "action", action.Kind.String())
	if action.FolderID != 0 {
		ctx, logger = logctx.With(ctx, "folder_id", action.FolderID)
	}

	err := c.opts.Telemetry.InstrumentAction(ctx, action.Kind.String(), func(ctx context.Context) error {
		switch action.Kind {
		case menu.ActionConfigure:
			return c.configureDeviceToken(ctx)
		case menu.ActionAddMagnet:
			return c.addMagnetFromClipboard(ctx)
		case menu.ActionRefresh:
			return c.Refresh(ctx)
		case menu.ActionDownload:
			return c.download(ctx, action.FolderID)
		case menu.ActionCopyURL:
			return c.copyURL(ctx, action.FolderID)
		case menu.ActionDelete:
			return c.deleteFolder(ctx, action.FolderID)
		case menu.ActionExit:
			c.opts.Quit()

			return nil
		default:
			return fmt.Errorf("unsupported action %q", action.Kind)
		}
	})
	if err != nil {
		logger.ErrorContext(ctx, "menu action failed", "err", err)
	}

	return err
}

// Refresh replaces the folder block with the current remote listing.
// Concurrent calls share one listing.
func (c *Controller) Refresh(ctx context.Context) error {
	_, err, shared := c.refreshes.Do("refresh", func() (any, error) {
		entries, err := c.opts.Folders.FolderEntries(ctx)
		if err != nil {
			c.opts.Telemetry.RecordMenuRefresh(ctx, "error", 0)

			return nil, err
		}

		if err := c.submit(ctx, func(t *menu.Template) { t.ReplaceFolderBlock(entries) }); err != nil {
			return nil, err
		}

		c.opts.Telemetry.RecordMenuRefresh(ctx, "success", len(entries))

		return nil, nil
	})

	logctx.LoggerFromContext(ctx).DebugContext(ctx, "menu refreshed", "shared", shared, "err", err)

	return err
}

func (c *Controller) configureDeviceToken(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	code, err := c.opts.Client.RequestDeviceCode(ctx)
	if err != nil {
		return fmt.Errorf("failed to request device code: %w", err)
	}

	if err := c.opts.Desktop.WriteClipboard(code.UserCode); err != nil {
		logger.WarnContext(ctx, "failed to copy user code", "err", err)
	}

	if err := c.opts.Desktop.OpenURL(c.opts.DevicesURL); err != nil {
		logger.WarnContext(ctx, "failed to open devices page", "err", err)
	}

	if err := c.opts.Settings.Set(ctx, storage.DeviceTokenKey, code.DeviceCode); err != nil {
		return fmt.Errorf("failed to store device token: %w", err)
	}

	if c.opts.Tokens != nil {
		c.opts.Tokens.Reset()
	}

	logger.InfoContext(ctx, "device token stored")

	return c.opts.Desktop.ShowInfo(c.opts.DialogName, configureMessage, code.UserCode)
}

// addMagnetFromClipboard always shows the notification, even when the
// clipboard or the remote call fails.
func (c *Controller) addMagnetFromClipboard(ctx context.Context) error {
	magnet, err := c.opts.Desktop.ReadClipboard()
	if err == nil {
		err = c.opts.Client.AddMagnet(ctx, magnet)
	}

	c.notify(ctx, "magnet_added", "Added magnet", "")

	return err
}

func (c *Controller) archiveURL(ctx context.Context, folderID int64) (string, error) {
	archive, err := c.opts.Client.CreateArchive(ctx, folderID)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}

	if archive.URL == "" {
		return "", fmt.Errorf("archive %d has no url", archive.ID)
	}

	return archive.URL, nil
}

func (c *Controller) download(ctx context.Context, folderID int64) error {
	url, err := c.archiveURL(ctx, folderID)
	if err != nil {
		return err
	}

	return c.opts.Desktop.OpenURL(url)
}

func (c *Controller) copyURL(ctx context.Context, folderID int64) error {
	url, err := c.archiveURL(ctx, folderID)
	if err != nil {
		return err
	}

	return c.opts.Desktop.WriteClipboard(url)
}

func (c *Controller) deleteFolder(ctx context.Context, folderID int64) error {
	deleted, err := c.opts.Client.DeleteFolder(ctx, folderID)
	if err != nil {
		return fmt.Errorf("failed to delete folder: %w", err)
	}

	if deleted {
		c.notify(ctx, "folder_deleted", "Folder Deleted", strconv.FormatInt(folderID, 10)+" has been deleted")
	}

	id := menu.FolderEntryID(folderID)

	return c.submit(ctx, func(t *menu.Template) { t.RemoveEntry(id) })
}

func (c *Controller) notify(ctx context.Context, kind, title, message string) {
	if c.opts.Notifier == nil {
		return
	}

	status := "success"

	if err := c.opts.Notifier.Notify(ctx, title, message); err != nil {
		status = "error"

		logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to send notification", "kind", kind, "err", err)
	}

	c.opts.Telemetry.RecordNotification(ctx, kind, status)
}
