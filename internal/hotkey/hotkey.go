package hotkey

import (
	"fmt"
	"strings"
	"sync"

	"golang.design/x/hotkey"
)

// Mode defines how the hotkey drives the recording session
type Mode int

const (
	// Toggle mode: first press starts, second press stops
	Toggle Mode = iota
	// PressToHold mode: record while the key is held down
	PressToHold
)

// EventType represents the type of hotkey event
type EventType int

const (
	// Pressed indicates the hotkey went down. In PressToHold mode the
	// recording starts; in Toggle mode the consumer flips between start and
	// stop based on the current session state.
	Pressed EventType = iota
	// Released indicates the hotkey came up; emitted in PressToHold mode only
	Released
)

// Event represents a hotkey event
type Event struct {
	Type EventType
}

// Config holds hotkey configuration
type Config struct {
	Modifiers []hotkey.Modifier
	Key       hotkey.Key
	Mode      Mode
}

// DefaultConfig returns the default hotkey configuration (Ctrl+Option+R)
func DefaultConfig() Config {
	return Config{
		Modifiers: []hotkey.Modifier{hotkey.ModCtrl, hotkey.ModOption},
		Key:       hotkey.KeyR,
		Mode:      Toggle,
	}
}

// Manager manages global hotkey registration and events
type Manager struct {
	hk        *hotkey.Hotkey
	config    Config
	eventChan chan Event
	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
}

// New creates a new hotkey manager with default configuration
func New() *Manager {
	return &Manager{
		config:    DefaultConfig(),
		eventChan: make(chan Event, 10),
		stopChan:  make(chan struct{}),
	}
}

// Register registers the hotkey with the system
func (m *Manager) Register(config Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("hotkey is already running, call Close() first")
	}

	m.config = config

	// Recreate channels (they may have been closed by a previous Close())
	m.stopChan = make(chan struct{})
	m.eventChan = make(chan Event, 10)

	hk := hotkey.New(m.config.Modifiers, m.config.Key)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("failed to register hotkey: %w", err)
	}

	m.hk = hk
	m.running = true

	m.wg.Add(1)
	go m.listen()

	return nil
}

// listen converts raw keydown/keyup into events according to the configured
// mode. Toggle emits Pressed on every keydown; the consumer decides between
// start and stop from the session state, so out-of-band stops (auto-stop,
// tray, HTTP) cannot desync the hotkey.
func (m *Manager) listen() {
	defer m.wg.Done()

	for {
		select {
		case <-m.hk.Keydown():
			m.eventChan <- Event{Type: Pressed}

		case <-m.hk.Keyup():
			if m.config.Mode == PressToHold {
				m.eventChan <- Event{Type: Released}
			}

		case <-m.stopChan:
			return
		}
	}
}

// Events returns the event channel for receiving hotkey events
func (m *Manager) Events() <-chan Event {
	return m.eventChan
}

// Close unregisters the hotkey and stops listening
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	var unregisterErr error

	close(m.stopChan)
	m.wg.Wait()

	// Continue cleanup even if Unregister fails so a later Register works
	if m.hk != nil {
		if err := m.hk.Unregister(); err != nil {
			unregisterErr = fmt.Errorf("failed to unregister hotkey: %w", err)
		}
	}

	if m.eventChan != nil {
		close(m.eventChan)
		m.eventChan = nil
	}

	m.running = false

	return unregisterErr
}

// IsRunning returns whether the hotkey is currently registered
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// GetConfig returns a copy of the current hotkey configuration
func (m *Manager) GetConfig() Config {
	m.mu.Lock()
	defer m.mu.Unlock()

	configCopy := m.config
	if m.config.Modifiers != nil {
		configCopy.Modifiers = make([]hotkey.Modifier, len(m.config.Modifiers))
		copy(configCopy.Modifiers, m.config.Modifiers)
	}

	return configCopy
}

// ParseKey converts a key name from the config file into a hotkey.Key.
// Returns false for names it does not recognize.
func ParseKey(name string) (hotkey.Key, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "SPACE":
		return hotkey.KeySpace, true
	case "RETURN", "ENTER":
		return hotkey.KeyReturn, true
	case "TAB":
		return hotkey.KeyTab, true
	case "ESC", "ESCAPE":
		return hotkey.KeyEscape, true
	}

	upper := strings.ToUpper(strings.TrimSpace(name))
	if len(upper) == 1 {
		c := upper[0]
		if c >= 'A' && c <= 'Z' {
			return hotkey.Key(uint32(hotkey.KeyA) + uint32(c-'A')), true
		}
		if c >= '0' && c <= '9' {
			return hotkey.Key(uint32(hotkey.Key0) + uint32(c-'0')), true
		}
	}

	return 0, false
}
