// Package menu describes the tray menu as plain data. The native menu is
// always rebuilt from a Template, never edited in place.
package menu

import (
	"slices"
	"strconv"
	"strings"
)

const folderIDPrefix = "file-"

// ActionKind identifies what a menu entry does when clicked.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionConfigure
	ActionAddMagnet
	ActionRefresh
	ActionExit
	ActionDownload
	ActionCopyURL
	ActionDelete
)

var actionNames = map[ActionKind]string{
	ActionNone:      "none",
	ActionConfigure: "configure",
	ActionAddMagnet: "add_magnet",
	ActionRefresh:   "refresh",
	ActionExit:      "exit",
	ActionDownload:  "download",
	ActionCopyURL:   "copy_url",
	ActionDelete:    "delete",
}

func (k ActionKind) String() string {
	if name, ok := actionNames[k]; ok {
		return name
	}

	return "unknown"
}

// Action is a comparable click target. FolderID is set only for folder actions.
type Action struct {
	Kind     ActionKind
	FolderID int64
}

// Entry is one menu item.
type Entry struct {
	ID        string
	Label     string
	Tooltip   string
	Disabled  bool
	Separator bool
	Action    Action
	Submenu   []Entry
}

// FolderEntryID derives the entry id of a remote folder.
func FolderEntryID(folderID int64) string {
	return folderIDPrefix + strconv.FormatInt(folderID, 10)
}

// IsFolderEntryID reports whether id was produced by FolderEntryID.
func IsFolderEntryID(id string) bool {
	rest, ok := strings.CutPrefix(id, folderIDPrefix)
	if !ok {
		return false
	}

	_, err := strconv.ParseInt(rest, 10, 64)

	return err == nil
}

// Template is the ordered menu. The last entry is always the exit action and
// folder entries form one contiguous block right before it.
type Template struct {
	entries []Entry
}

// NewTemplate returns the startup menu: header and footer, no folders.
func NewTemplate(title string) Template {
	return Template{entries: []Entry{
		{Label: title, Disabled: true},
		{Separator: true},
		{Label: "configure device token", Action: Action{Kind: ActionConfigure}},
		{Label: "add magnet from clipboard", Action: Action{Kind: ActionAddMagnet}},
		{Label: "refresh", Action: Action{Kind: ActionRefresh}},
		{Label: "exit", Action: Action{Kind: ActionExit}},
	}}
}

// Entries returns a copy of the top-level entries.
func (t Template) Entries() []Entry {
	return slices.Clone(t.entries)
}

// FolderIDs lists the ids of the folder entries in menu order.
func (t Template) FolderIDs() []string {
	var ids []string

	for _, e := range t.entries {
		if IsFolderEntryID(e.ID) {
			ids = append(ids, e.ID)
		}
	}

	return ids
}

// ReplaceFolderBlock drops every folder entry and inserts entries between the
// header and the exit footer.
func (t *Template) ReplaceFolderBlock(entries []Entry) {
	if len(t.entries) == 0 {
		return
	}

	footer := t.entries[len(t.entries)-1]

	next := make([]Entry, 0, len(t.entries)+len(entries))
	for _, e := range t.entries[:len(t.entries)-1] {
		if !IsFolderEntryID(e.ID) {
			next = append(next, e)
		}
	}

	next = append(next, entries...)
	next = append(next, footer)

	t.entries = next
}

// RemoveEntry deletes the top-level entry with the given id and reports
// whether one was found. The exit footer is never removed.
func (t *Template) RemoveEntry(id string) bool {
	if id == "" {
		return false
	}

	last := len(t.entries) - 1

	i := slices.IndexFunc(t.entries, func(e Entry) bool { return e.ID == id })
	if i < 0 || i == last {
		return false
	}

	t.entries = slices.Delete(slices.Clone(t.entries), i, i+1)

	return true
}
