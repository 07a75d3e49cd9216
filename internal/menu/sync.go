package menu

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/seedr_tray/internal/logctx"
	"github.com/italolelis/seedr_tray/internal/seedr"
)

// FolderLister is the part of the remote client the synchronizer needs.
type FolderLister interface {
	ListFolders(ctx context.Context) ([]seedr.Folder, error)
}

// Synchronizer turns the remote folder listing into menu entries.
type Synchronizer struct {
	lister FolderLister
	now    func() time.Time
}

func NewSynchronizer(lister FolderLister) *Synchronizer {
	return &Synchronizer{lister: lister, now: time.Now}
}

// FolderEntries lists the remote folders and builds their menu entries.
func (s *Synchronizer) FolderEntries(ctx context.Context) ([]Entry, error) {
	folders, err := s.lister.ListFolders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	entries := buildFolderEntries(folders, s.now())

	logctx.LoggerFromContext(ctx).DebugContext(ctx, "folder entries built", "folder_count", len(entries))

	return entries, nil
}

// BuildFolderEntries maps each folder to one entry, keeping remote order.
func BuildFolderEntries(folders []seedr.Folder) []Entry {
	return buildFolderEntries(folders, time.Now())
}

func buildFolderEntries(folders []seedr.Folder, now time.Time) []Entry {
	entries := make([]Entry, 0, len(folders))

	for _, f := range folders {
		entries = append(entries, Entry{
			ID:      FolderEntryID(f.ID),
			Label:   f.Name,
			Tooltip: folderTooltip(f, now),
			Submenu: []Entry{
				{Label: "download", Action: Action{Kind: ActionDownload, FolderID: f.ID}},
				{Label: "copy url", Action: Action{Kind: ActionCopyURL, FolderID: f.ID}},
				{Label: "delete", Action: Action{Kind: ActionDelete, FolderID: f.ID}},
			},
		})
	}

	return entries
}

func folderTooltip(f seedr.Folder, now time.Time) string {
	size := humanize.IBytes(uint64(max(f.Size, 0)))

	updated, ok := f.UpdatedAt()
	if !ok {
		return size
	}

	return size + ", updated " + humanize.RelTime(updated, now, "ago", "from now")
}
