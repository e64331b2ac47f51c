package tray

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/getlantern/systray"
)

// State represents the recording state shown in the menu bar
type State int

const (
	StateIdle State = iota
	StateRecording
	StatePaused
)

// Manager manages the menu bar icon and menu
type Manager struct {
	stateMutex      sync.RWMutex
	state           State
	onReadyCallback func()
	onStart         func()
	onPause         func()
	onResume        func()
	onStop          func()
	onExport        func()
	onOpenPlayer    func()
	onDeviceChange  func(deviceID int)
	onQuit          func()

	menuStart         *systray.MenuItem
	menuPause         *systray.MenuItem
	menuResume        *systray.MenuItem
	menuStop          *systray.MenuItem
	menuExport        *systray.MenuItem
	menuOpenPlayer    *systray.MenuItem
	menuDevices       *systray.MenuItem
	menuQuit          *systray.MenuItem
	deviceMenuItems   []*systray.MenuItem
	deviceCancelFuncs []context.CancelFunc

	// Icon cache
	iconIdle      []byte
	iconRecording []byte
	iconPaused    []byte
}

// Config holds tray manager configuration
type Config struct {
	OnReady        func() // Called when systray is ready for initialization
	OnStart        func()
	OnPause        func()
	OnResume       func()
	OnStop         func()
	OnExport       func()
	OnOpenPlayer   func()
	OnDeviceChange func(deviceID int) // Called when user selects a device
	OnQuit         func()
}

// NewManager creates a new tray manager
func NewManager(config Config) *Manager {
	m := &Manager{
		state:           StateIdle,
		onReadyCallback: config.OnReady,
		onStart:         config.OnStart,
		onPause:         config.OnPause,
		onResume:        config.OnResume,
		onStop:          config.OnStop,
		onExport:        config.OnExport,
		onOpenPlayer:    config.OnOpenPlayer,
		onDeviceChange:  config.OnDeviceChange,
		onQuit:          config.OnQuit,
	}

	// Load icons once at initialization
	m.iconIdle = loadIconData("mic_idle.png", getIdleFallback())
	m.iconRecording = loadIconData("mic_recording.png", getRecordingFallback())
	m.iconPaused = loadIconData("mic_paused.png", getPausedFallback())

	return m
}

// Run starts the system tray (blocking call)
func (m *Manager) Run() {
	systray.Run(m.onReady, m.onExit)
}

// onReady is called when systray is ready
func (m *Manager) onReady() {
	m.updateIcon()
	systray.SetTooltip("mictap")

	m.menuStart = systray.AddMenuItem("Start Recording", "Start a new recording session")
	m.menuPause = systray.AddMenuItem("Pause", "Pause the recording")
	m.menuResume = systray.AddMenuItem("Resume", "Resume the recording")
	m.menuStop = systray.AddMenuItem("Stop", "Stop and assemble the recording")

	systray.AddSeparator()

	m.menuExport = systray.AddMenuItem("Export Last Recording…", "Save the last recording to a file")
	m.menuOpenPlayer = systray.AddMenuItem("Open Player", "Open the player page in a browser")
	m.menuDevices = systray.AddMenuItem("Input Device", "Select input device")

	systray.AddSeparator()

	m.menuQuit = systray.AddMenuItem("Quit", "Quit the application")

	m.applyMenuState()

	go m.handleMenuEvents()

	if m.onReadyCallback != nil {
		m.onReadyCallback()
	}
}

// onExit is called when systray is exiting
func (m *Manager) onExit() {
	for _, cancel := range m.deviceCancelFuncs {
		if cancel != nil {
			cancel()
		}
	}
}

// handleMenuEvents handles menu item clicks
func (m *Manager) handleMenuEvents() {
	for {
		select {
		case <-m.menuStart.ClickedCh:
			if m.onStart != nil {
				m.onStart()
			}
		case <-m.menuPause.ClickedCh:
			if m.onPause != nil {
				m.onPause()
			}
		case <-m.menuResume.ClickedCh:
			if m.onResume != nil {
				m.onResume()
			}
		case <-m.menuStop.ClickedCh:
			if m.onStop != nil {
				m.onStop()
			}
		case <-m.menuExport.ClickedCh:
			if m.onExport != nil {
				m.onExport()
			}
		case <-m.menuOpenPlayer.ClickedCh:
			if m.onOpenPlayer != nil {
				m.onOpenPlayer()
			}
		case <-m.menuQuit.ClickedCh:
			if m.onQuit != nil {
				m.onQuit()
			}
			systray.Quit()
			return
		}
	}
}

// SetState updates the icon and menu to reflect the session state
func (m *Manager) SetState(state State) {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	m.state = state
	m.updateIcon()
	m.applyMenuState()
}

// SetExportEnabled toggles the export menu item. Export is available only
// once a finished recording exists.
func (m *Manager) SetExportEnabled(enabled bool) {
	if m.menuExport == nil {
		return
	}
	if enabled {
		m.menuExport.Enable()
	} else {
		m.menuExport.Disable()
	}
}

// applyMenuState enables exactly the operations valid in the current state
func (m *Manager) applyMenuState() {
	if m.menuStart == nil {
		return
	}

	switch m.state {
	case StateIdle:
		m.menuStart.Enable()
		m.menuPause.Disable()
		m.menuResume.Disable()
		m.menuStop.Disable()
	case StateRecording:
		m.menuStart.Disable()
		m.menuPause.Enable()
		m.menuResume.Disable()
		m.menuStop.Enable()
	case StatePaused:
		m.menuStart.Disable()
		m.menuPause.Disable()
		m.menuResume.Enable()
		m.menuStop.Enable()
	}
}

// updateIcon updates the tray icon based on the current state
func (m *Manager) updateIcon() {
	switch m.state {
	case StateIdle:
		systray.SetIcon(m.iconIdle)
		systray.SetTooltip("mictap - idle")
	case StateRecording:
		systray.SetIcon(m.iconRecording)
		systray.SetTooltip("mictap - recording")
	case StatePaused:
		systray.SetIcon(m.iconPaused)
		systray.SetTooltip("mictap - paused")
	}
}

// Device represents an audio device for the menu
type Device struct {
	ID        int
	Name      string
	IsDefault bool
	IsCurrent bool
}

// UpdateDeviceMenu updates the device submenu with available devices
func (m *Manager) UpdateDeviceMenu(devices []Device) {
	// Cancel existing device menu goroutines
	for _, cancel := range m.deviceCancelFuncs {
		if cancel != nil {
			cancel()
		}
	}
	m.deviceCancelFuncs = nil

	for _, item := range m.deviceMenuItems {
		item.Hide()
	}
	m.deviceMenuItems = nil

	for _, device := range devices {
		deviceID := device.ID
		deviceName := device.Name

		prefix := ""
		if device.IsCurrent {
			prefix = "✓ "
		}

		tooltip := ""
		if device.IsDefault {
			tooltip = "System default device"
		}

		menuItem := m.menuDevices.AddSubMenuItem(prefix+deviceName, tooltip)
		m.deviceMenuItems = append(m.deviceMenuItems, menuItem)

		ctx, cancel := context.WithCancel(context.Background())
		m.deviceCancelFuncs = append(m.deviceCancelFuncs, cancel)

		go func(id int, item *systray.MenuItem, ctx context.Context) {
			for {
				select {
				case <-ctx.Done():
					return
				case <-item.ClickedCh:
					if m.onDeviceChange != nil {
						m.onDeviceChange(id)
					}
				}
			}
		}(deviceID, menuItem, ctx)
	}
}

// Quit quits the system tray
func (m *Manager) Quit() {
	systray.Quit()
}

// loadIconData loads an icon from the assets directory.
// If the file cannot be loaded, it returns a fallback placeholder icon.
func loadIconData(filename string, fallback []byte) []byte {
	exe, err := os.Executable()
	if err != nil {
		log.Printf("Warning: could not resolve executable path: %v", err)
		return fallback
	}
	exeDir := filepath.Dir(exe)

	iconPath := filepath.Join(exeDir, "assets", "icon", filename)
	data, err := os.ReadFile(iconPath)
	if err != nil {
		return fallback
	}

	return data
}

// getIdleFallback returns the fallback icon data for idle state
func getIdleFallback() []byte {
	return []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
		0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff,
		0x61, 0x00, 0x00, 0x00, 0x19, 0x74, 0x45, 0x58,
		0x74, 0x53, 0x6f, 0x66, 0x74, 0x77, 0x61, 0x72,
		0x65, 0x00, 0x41, 0x64, 0x6f, 0x62, 0x65, 0x20,
		0x49, 0x6d, 0x61, 0x67, 0x65, 0x52, 0x65, 0x61,
		0x64, 0x79, 0x71, 0xc9, 0x65, 0x3c, 0x00, 0x00,
		0x00, 0x18, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda,
		0x62, 0xfc, 0xff, 0xff, 0x3f, 0x03, 0x00, 0x00,
		0x00, 0xff, 0xff, 0x03, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x49, 0x45, 0x4e, 0x44, 0xae, 0x42, 0x60,
		0x82,
	}
}

// getRecordingFallback returns the fallback icon data for recording state
func getRecordingFallback() []byte {
	return []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
		0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff,
		0x61, 0x00, 0x00, 0x00, 0x19, 0x74, 0x45, 0x58,
		0x74, 0x53, 0x6f, 0x66, 0x74, 0x77, 0x61, 0x72,
		0x65, 0x00, 0x41, 0x64, 0x6f, 0x62, 0x65, 0x20,
		0x49, 0x6d, 0x61, 0x67, 0x65, 0x52, 0x65, 0x61,
		0x64, 0x79, 0x71, 0xc9, 0x65, 0x3c, 0x00, 0x00,
		0x00, 0x20, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda,
		0x62, 0xfc, 0xcf, 0xc0, 0xc0, 0xc0, 0xf0, 0x9f,
		0x81, 0x81, 0x81, 0x81, 0xff, 0x19, 0x18, 0x18,
		0x18, 0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0x03,
		0x00, 0x0c, 0x10, 0x02, 0x01, 0x8b, 0xd5, 0xf8,
		0x23, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e,
		0x44, 0xae, 0x42, 0x60, 0x82,
	}
}

// getPausedFallback returns the fallback icon data for paused state
func getPausedFallback() []byte {
	return []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
		0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff,
		0x61, 0x00, 0x00, 0x00, 0x19, 0x74, 0x45, 0x58,
		0x74, 0x53, 0x6f, 0x66, 0x74, 0x77, 0x61, 0x72,
		0x65, 0x00, 0x41, 0x64, 0x6f, 0x62, 0x65, 0x20,
		0x49, 0x6d, 0x61, 0x67, 0x65, 0x52, 0x65, 0x61,
		0x64, 0x79, 0x71, 0xc9, 0x65, 0x3c, 0x00, 0x00,
		0x00, 0x20, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda,
		0x62, 0xfc, 0xcf, 0xf0, 0x9f, 0xc1, 0xc8, 0xc0,
		0xc0, 0xc0, 0xff, 0x0c, 0x0c, 0x0c, 0xfc, 0xcf,
		0xc0, 0xc0, 0xc0, 0x00, 0x00, 0x00, 0x00, 0xff,
		0xff, 0x03, 0x00, 0x0c, 0x50, 0x02, 0x01, 0x3e,
		0x0a, 0xe4, 0x5b, 0x00, 0x00, 0x00, 0x00, 0x49,
		0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
	}
}
