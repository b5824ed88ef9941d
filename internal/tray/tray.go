// Package tray provides a system tray interface for the eightball table detector.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/eightball/internal/overlay"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle   func(enabled bool)
	onProfile  func(name string)
	onSettings func()
	onQuit     func()
	enabled    bool
	profiles   []string
	active     string
	mu         sync.RWMutex

	// Menu items stored for later updates
	menuToggle   *systray.MenuItem
	menuLast     *systray.MenuItem
	menuProfile  *systray.MenuItem
	menuProfiles map[string]*systray.MenuItem
}

// New creates a new Tray instance with enabled state set to true by default.
func New() *Tray {
	return &Tray{
		enabled:      true,
		menuProfiles: make(map[string]*systray.MenuItem),
	}
}

// OnToggle sets the callback function to be called when the enabled state is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnProfile sets the callback function to be called when a profile is picked.
func (t *Tray) OnProfile(fn func(name string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onProfile = fn
}

// OnSettings sets the callback function to be called when the settings menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// SetEnabled sets the enabled state shown by the toggle item.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
}

// SetProfiles sets the profile names offered in the menu and the active one.
// Once the menu is up, new names are appended and missing ones are hidden.
func (t *Tray) SetProfiles(names []string, active string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.profiles = append([]string(nil), names...)
	t.active = active
	if t.menuProfile != nil {
		t.syncProfileItems()
	}
}

// Profiles returns the profile names offered in the menu.
func (t *Tray) Profiles() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.profiles...)
}

// syncProfileItems makes the submenu match t.profiles. Caller holds t.mu.
func (t *Tray) syncProfileItems() {
	present := make(map[string]bool, len(t.profiles))
	for _, name := range t.profiles {
		present[name] = true
		item, ok := t.menuProfiles[name]
		if !ok {
			item = t.menuProfile.AddSubMenuItem(name, "Use the "+name+" profile")
			t.menuProfiles[name] = item
			go t.watchProfile(name, item)
		}
		item.Show()
		if name == t.active {
			item.Check()
		} else {
			item.Uncheck()
		}
	}

	for name, item := range t.menuProfiles {
		if !present[name] {
			item.Hide()
		}
	}
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Eightball")
	systray.SetTooltip("Eightball table detector")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle table detection")
	systray.AddSeparator()

	t.menuLast = systray.AddMenuItem("Last: none", "Last detection result")
	t.menuLast.Disable()
	systray.AddSeparator()

	t.menuProfile = systray.AddMenuItem("Profile", "Felt color profile")
	t.syncProfileItems()
	t.mu.Unlock()

	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Eightball")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) watchProfile(name string, item *systray.MenuItem) {
	for range item.ClickedCh {
		t.handleProfile(name)
	}
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
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

// handleProfile switches the checked profile and notifies the callback.
func (t *Tray) handleProfile(name string) {
	t.mu.Lock()
	t.active = name
	if t.menuProfile != nil {
		t.syncProfileItems()
	}
	callback := t.onProfile
	t.mu.Unlock()

	if callback != nil {
		callback(name)
	}
}

// handleSettings handles the settings menu item click.
func (t *Tray) handleSettings() {
	t.mu.RLock()
	callback := t.onSettings
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

// SetLastResult updates the last detection display in the menu.
func (t *Tray) SetLastResult(s *overlay.Summary) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuLast != nil {
		t.menuLast.SetTitle(ResultTitle(s))
	}
}

// ResultTitle formats a detection summary for the menu. A nil summary means
// nothing has been processed yet.
func ResultTitle(s *overlay.Summary) string {
	switch {
	case s == nil:
		return "Last: none"
	case !s.Found:
		return "Last: no table"
	default:
		return fmt.Sprintf("Last: table, %d corners", len(s.Corners))
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// ActiveProfile returns the checked profile name.
func (t *Tray) ActiveProfile() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Enabled"
	}
	return "○ Disabled"
}
