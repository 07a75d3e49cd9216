package seedr

import (
	"context"
	"time"
)

// LastUpdateLayout is the timestamp format of Folder.LastUpdate.
const LastUpdateLayout = "2006-01-02 15:04:05"

// Folder is a top-level folder in the user's Seedr storage.
type Folder struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	FullName   string `json:"fullname"`
	Size       int64  `json:"size"`
	PlayAudio  bool   `json:"play_audio"`
	PlayVideo  bool   `json:"play_video"`
	IsShared   bool   `json:"is_shared"`
	LastUpdate string `json:"last_update"`
}

// UpdatedAt parses LastUpdate. ok is false when the field is empty or malformed.
func (f Folder) UpdatedAt() (t time.Time, ok bool) {
	t, err := time.Parse(LastUpdateLayout, f.LastUpdate)
	if err != nil {
		return time.Time{}, false
	}

	return t, true
}

// Archive is the result of converting a folder into a downloadable zip.
type Archive struct {
	Success bool   `json:"result"`
	ID      int64  `json:"archive_id"`
	URL     string `json:"archive_url"`
}

// FetchedFile is a direct download link for a single file.
type FetchedFile struct {
	Success bool   `json:"result"`
	URL     string `json:"url"`
	Name    string `json:"name"`
}

// DeviceCode pairs the code kept by this installation with the code the user
// types on the Seedr devices page.
type DeviceCode struct {
	DeviceCode string `json:"device_code"`
	UserCode   string `json:"user_code"`
}

// API is the set of remote operations the tray uses.
type API interface {
	RequestDeviceCode(ctx context.Context) (*DeviceCode, error)
	ListFolders(ctx context.Context) ([]Folder, error)
	CreateArchive(ctx context.Context, folderID int64) (*Archive, error)
	FetchFile(ctx context.Context, fileID int64) (*FetchedFile, error)
	DeleteFolder(ctx context.Context, folderID int64) (bool, error)
	AddMagnet(ctx context.Context, magnet string) error
}
