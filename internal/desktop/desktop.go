// Package desktop wraps the host primitives the tray needs: clipboard access,
// opening URLs in the default handler and a blocking information dialog.
package desktop

import (
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/ncruces/zenity"
	"github.com/skratchdot/open-golang/open"
)

type Desktop interface {
	ReadClipboard() (string, error)
	WriteClipboard(text string) error
	OpenURL(url string) error
	// ShowInfo blocks until the user dismisses the dialog.
	ShowInfo(title, message, detail string) error
}

// System uses the host's clipboard, URL opener and dialog tools.
type System struct{}

func (System) ReadClipboard() (string, error) {
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", fmt.Errorf("failed to read clipboard: %w", err)
	}

	return text, nil
}

func (System) WriteClipboard(text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}

	return nil
}

func (System) OpenURL(url string) error {
	if err := open.Start(url); err != nil {
		return fmt.Errorf("failed to open %s: %w", url, err)
	}

	return nil
}

func (System) ShowInfo(title, message, detail string) error {
	text := message
	if detail != "" {
		text += "\n\n" + detail
	}

	err := zenity.Info(text, zenity.Title(title), zenity.InfoIcon)
	if err != nil && !errors.Is(err, zenity.ErrCanceled) {
		return fmt.Errorf("failed to show dialog: %w", err)
	}

	return nil
}

var _ Desktop = System{}
