// Package notifier delivers short user-facing messages.
package notifier

import (
	"context"
	"errors"

	"github.com/gen2brain/beeep"
)

type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// DesktopNotifier shows a native desktop notification.
type DesktopNotifier struct {
	// Icon is an optional path to the notification icon.
	Icon string

	notify func(title, message, icon string) error
}

func NewDesktopNotifier(icon string) *DesktopNotifier {
	return &DesktopNotifier{Icon: icon}
}

func (d *DesktopNotifier) Notify(_ context.Context, title, message string) error {
	if d.notify != nil {
		return d.notify(title, message, d.Icon)
	}

	return beeep.Notify(title, message, d.Icon)
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, title, message string) error {
	var errs []error

	for _, n := range m {
		if n == nil {
			continue
		}

		if err := n.Notify(ctx, title, message); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
