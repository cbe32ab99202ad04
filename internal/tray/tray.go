// Package tray provides a system tray menu for the sign recognition server.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle  func(enabled bool)
	onHistory func()
	onQuit    func()
	enabled   bool
	lastSign  string
	count     int
	mu        sync.RWMutex

	// Menu items stored for later updates
	menuToggle   *systray.MenuItem
	menuLastSign *systray.MenuItem
	menuCount    *systray.MenuItem
}

// New creates a new Tray with the given initial recognition state.
func New(enabled bool) *Tray {
	return &Tray{
		enabled: enabled,
	}
}

// OnToggle sets the callback function to be called when recognition is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnHistory sets the callback function to be called when the history menu item is clicked.
func (t *Tray) OnHistory(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onHistory = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit closes the tray menu, unblocking Run.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Handsign")
	systray.SetTooltip("Hand sign recognition")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle sign recognition")
	systray.AddSeparator()

	t.menuLastSign = systray.AddMenuItem(lastSignTitle(t.lastSign), "Last recognized sign")
	t.menuLastSign.Disable()
	t.menuCount = systray.AddMenuItem(countTitle(t.count), "Signs recognized this session")
	t.menuCount.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuHistory := systray.AddMenuItem("Open History...", "Open recognition history in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Stop the server and quit")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.Toggle()
			case <-menuHistory.ClickedCh:
				t.handleHistory()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// Toggle flips the recognition state and reports it to the toggle callback.
func (t *Tray) Toggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

// SetEnabled updates the displayed state without calling the toggle callback.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
}

func (t *Tray) handleHistory() {
	t.mu.RLock()
	callback := t.onHistory
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetLastSign records a recognized sign and updates the menu.
func (t *Tray) SetLastSign(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastSign = name
	if name != "" {
		t.count++
	}
	if t.menuLastSign != nil {
		t.menuLastSign.SetTitle(lastSignTitle(name))
		t.menuCount.SetTitle(countTitle(t.count))
	}
}

// LastSign returns the most recently recorded sign.
func (t *Tray) LastSign() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastSign
}

// Count returns how many signs were recorded this session.
func (t *Tray) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Recognition on"
	}
	return "○ Recognition paused"
}

func lastSignTitle(name string) string {
	if name == "" {
		return "Last: none"
	}
	return "Last: " + name
}

func countTitle(n int) string {
	return fmt.Sprintf("Recognized: %d", n)
}
