// Package tray provides the system tray controls for the kathak daemon.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// Tray represents the daemon's system tray menu.
type Tray struct {
	onPause  func(paused bool)
	onRescan func()
	onQuit   func()
	paused   bool
	status   string
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuPause  *systray.MenuItem
	menuStatus *systray.MenuItem
}

// New creates a new Tray instance with indexing running by default.
func New() *Tray {
	return &Tray{}
}

// OnPause sets the callback function to be called when background indexing
// is paused or resumed.
func (t *Tray) OnPause(fn func(paused bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPause = fn
}

// OnRescan sets the callback function to be called when the rescan menu
// item is clicked.
func (t *Tray) OnRescan(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRescan = fn
}

// OnQuit sets the callback function to be called when the quit menu item is
// clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("kathak")
	systray.SetTooltip("kathak launcher daemon")

	t.mu.Lock()
	status := t.status
	if status == "" {
		status = "No plugins discovered"
	}

	// Create menu items
	t.menuPause = systray.AddMenuItem("● Indexing active", "Pause background indexing")
	systray.AddSeparator()

	t.menuStatus = systray.AddMenuItem(status, "Discovered plugins and indexed items")
	t.menuStatus.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuRescan := systray.AddMenuItem("Rescan Plugins", "Re-discover the plugin directories")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit kathak")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuPause.ClickedCh:
				t.handlePause()
			case <-menuRescan.ClickedCh:
				t.handleRescan()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {
}

// handlePause handles the pause menu item click.
func (t *Tray) handlePause() {
	t.mu.Lock()
	t.paused = !t.paused
	paused := t.paused

	// Update menu item text based on new state
	if paused {
		t.menuPause.SetTitle("○ Indexing paused")
	} else {
		t.menuPause.SetTitle("● Indexing active")
	}

	callback := t.onPause
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(paused)
	}
}

// handleRescan handles the rescan menu item click.
func (t *Tray) handleRescan() {
	t.mu.RLock()
	callback := t.onRescan
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetStatus updates the status line in the menu. Text set before Run is
// applied when the menu is built.
func (t *Tray) SetStatus(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status = text
	if t.menuStatus != nil {
		if text == "" {
			t.menuStatus.SetTitle("No plugins discovered")
		} else {
			t.menuStatus.SetTitle(text)
		}
	}
}

// IsPaused reports whether background indexing is paused.
func (t *Tray) IsPaused() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.paused
}

// Quit tears down the tray and unblocks Run. Safe to call from any
// goroutine, including signal handlers.
func (t *Tray) Quit() {
	systray.Quit()
}
