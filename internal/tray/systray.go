package tray

import (
	_ "embed"
	"sync"
	"sync/atomic"

	"fyne.io/systray"
	"github.com/italolelis/seedr_tray/internal/menu"
)

//go:embed assets/icon.png
var iconData []byte

// Run shows the tray icon and blocks until Quit is called. It must run on the
// main goroutine. onReady is called once the icon is visible.
func Run(tooltip string, onReady, onExit func()) {
	systray.Run(func() {
		systray.SetTemplateIcon(iconData, iconData)
		systray.SetTooltip(tooltip)

		if onReady != nil {
			onReady()
		}
	}, onExit)
}

// Quit removes the tray icon and makes Run return.
func Quit() {
	systray.Quit()
}

// menuBackend is the part of the native menu the renderer drives.
type menuBackend interface {
	Reset()
	AddItem(title, tooltip string) menuItem
	AddSeparator()
}

type menuItem interface {
	AddSubItem(title, tooltip string) menuItem
	Disable()
	Clicked() <-chan struct{}
}

type systrayBackend struct{}

func (systrayBackend) Reset() { systray.ResetMenu() }

func (systrayBackend) AddItem(title, tooltip string) menuItem {
	return systrayItem{systray.AddMenuItem(title, tooltip)}
}

func (systrayBackend) AddSeparator() { systray.AddSeparator() }

type systrayItem struct {
	item *systray.MenuItem
}

func (i systrayItem) AddSubItem(title, tooltip string) menuItem {
	return systrayItem{i.item.AddSubMenuItem(title, tooltip)}
}

func (i systrayItem) Disable() { i.item.Disable() }

func (i systrayItem) Clicked() <-chan struct{} { return i.item.ClickedCh }

// SystrayRenderer draws a template into the native tray menu. Every render
// drops the previous menu and builds a fresh one.
type SystrayRenderer struct {
	backend  menuBackend
	dispatch func(menu.Action)

	mu   sync.Mutex
	stop chan struct{}

	// forwarders counts running click forwarding goroutines.
	forwarders atomic.Int32
}

// NewSystrayRenderer forwards every click to dispatch.
func NewSystrayRenderer(dispatch func(menu.Action)) *SystrayRenderer {
	return newRenderer(systrayBackend{}, dispatch)
}

func newRenderer(backend menuBackend, dispatch func(menu.Action)) *SystrayRenderer {
	return &SystrayRenderer{backend: backend, dispatch: dispatch}
}

func (r *SystrayRenderer) Render(entries []menu.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stop != nil {
		close(r.stop)
	}

	stop := make(chan struct{})
	r.stop = stop

	r.backend.Reset()

	for _, e := range entries {
		r.add(nil, e, stop)
	}
}

func (r *SystrayRenderer) add(parent menuItem, e menu.Entry, stop <-chan struct{}) {
	if e.Separator {
		if parent == nil {
			r.backend.AddSeparator()
		}

		return
	}

	var item menuItem
	if parent == nil {
		item = r.backend.AddItem(e.Label, e.Tooltip)
	} else {
		item = parent.AddSubItem(e.Label, e.Tooltip)
	}

	if e.Disabled {
		item.Disable()
	}

	for _, sub := range e.Submenu {
		r.add(item, sub, stop)
	}

	if e.Action.Kind != menu.ActionNone {
		r.forwarders.Add(1)

		go r.forward(item.Clicked(), e.Action, stop)
	}
}

func (r *SystrayRenderer) forward(clicks <-chan struct{}, action menu.Action, stop <-chan struct{}) {
	defer r.forwarders.Add(-1)

	for {
		select {
		case <-stop:
			return
		case <-clicks:
			// A click racing a re-render belongs to a menu that is gone.
			select {
			case <-stop:
				return
			default:
			}

			r.dispatch(action)
		}
	}
}
