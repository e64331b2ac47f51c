package notify

import (
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Type represents the type of notification
type Type string

const (
	// TypeInfo is an informational notification
	TypeInfo Type = "info"
	// TypeError is an error notification
	TypeError Type = "error"
	// TypeSuccess is a success notification
	TypeSuccess Type = "success"
)

// Notification represents a desktop notification
type Notification struct {
	Title   string
	Message string
	Type    Type
}

// Manager posts desktop notifications via the macOS notification center
type Manager struct {
	appName string

	mu      sync.RWMutex
	enabled bool

	// post is injectable for testing; defaults to osascript
	post func(title, message string) error
}

// NewManager creates a new notification manager
func NewManager(appName string, enabled bool) *Manager {
	return &Manager{
		appName: appName,
		enabled: enabled,
		post:    postOsascript,
	}
}

func postOsascript(title, message string) error {
	script := fmt.Sprintf(
		`display notification "%s" with title "%s"`,
		escape(message),
		escape(title),
	)

	cmd := exec.Command("osascript", "-e", script)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}

	return nil
}

// escape makes a string safe inside an AppleScript double-quoted literal
func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// Send sends a notification to the user
func (m *Manager) Send(n *Notification) error {
	if n == nil {
		return fmt.Errorf("notification cannot be nil")
	}

	m.mu.RLock()
	enabled := m.enabled
	m.mu.RUnlock()
	if !enabled {
		return nil
	}

	return m.post(n.Title, n.Message)
}

// SetEnabled toggles notification delivery; applied on settings changes
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

// SendInfo sends an informational notification
func (m *Manager) SendInfo(message string) error {
	return m.Send(&Notification{Title: m.appName, Message: message, Type: TypeInfo})
}

// SendError sends an error notification
func (m *Manager) SendError(message string) error {
	return m.Send(&Notification{Title: m.appName, Message: message, Type: TypeError})
}

// SendSuccess sends a success notification
func (m *Manager) SendSuccess(message string) error {
	return m.Send(&Notification{Title: m.appName, Message: message, Type: TypeSuccess})
}

// RecordingStarted notifies that a recording session has started
func (m *Manager) RecordingStarted() error {
	return m.SendInfo("Recording started")
}

// RecordingPaused notifies that the session is paused
func (m *Manager) RecordingPaused() error {
	return m.SendInfo("Recording paused")
}

// RecordingResumed notifies that the session resumed
func (m *Manager) RecordingResumed() error {
	return m.SendInfo("Recording resumed")
}

// ArtifactReady notifies that a recording finished and its artifact is
// available for playback and export
func (m *Manager) ArtifactReady(size int, duration time.Duration) error {
	return m.SendSuccess(fmt.Sprintf(
		"Recording ready (%s, %s)", formatSize(size), duration.Round(time.Second)))
}

// EmptyCapture notifies that a recording stopped without any audio
func (m *Manager) EmptyCapture() error {
	return m.SendError("Recording stopped with no audio captured")
}

// ExportComplete notifies that the artifact was saved
func (m *Manager) ExportComplete(path string) error {
	return m.SendSuccess(fmt.Sprintf("Saved to %s", path))
}

// MicrophonePermissionDenied notifies that microphone access is denied
func (m *Manager) MicrophonePermissionDenied() error {
	return m.SendError("Microphone access denied. Allow it in System Settings.")
}

// DeviceUnavailable notifies that no usable input device was found
func (m *Manager) DeviceUnavailable() error {
	return m.SendError("Audio input device unavailable. Check the device and try again.")
}

// RecordingFailed notifies that a session operation failed
func (m *Manager) RecordingFailed(reason string) error {
	message := "Recording failed"
	if reason != "" {
		message += ": " + reason
	}
	return m.SendError(message)
}

// RecordingTimeExceeded notifies that the session was auto-stopped
func (m *Manager) RecordingTimeExceeded(limit time.Duration) error {
	return m.SendInfo(fmt.Sprintf("Recording reached the %s limit and was stopped", limit))
}

func formatSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
