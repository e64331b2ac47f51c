package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config holds application configuration
type Config struct {
	Hotkey        HotkeyConfig `json:"hotkey"`
	RecordingMode string       `json:"recording_mode"` // "press-to-hold" or "toggle"
	AudioDeviceID int          `json:"audio_device_id"`
	SampleRate    int          `json:"sample_rate"`
	Channels      int          `json:"channels"`
	MaxRecordTime int          `json:"max_record_time"` // seconds, 0 = unlimited
	ExportDir     string       `json:"export_dir"`
	ExportDialog  bool         `json:"export_dialog"` // show a save-as dialog on export
	ServerPort    int          `json:"server_port"`
	Notifications bool         `json:"notifications"` // desktop notifications
	mu            sync.RWMutex
}

// HotkeyConfig holds hotkey configuration
type HotkeyConfig struct {
	Ctrl  bool   `json:"ctrl"`
	Shift bool   `json:"shift"`
	Alt   bool   `json:"alt"`
	Cmd   bool   `json:"cmd"`
	Key   string `json:"key"` // e.g., "R"
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return &Config{
		Hotkey: HotkeyConfig{
			Ctrl: true,
			Alt:  true,
			Key:  "R",
		},
		RecordingMode: "toggle",
		AudioDeviceID: -1, // -1 means use system default device
		SampleRate:    44100,
		Channels:      1,
		MaxRecordTime: 600, // 10 minutes
		ExportDir:     filepath.Join(homeDir, "Music", "mictap"),
		ExportDialog:  true,
		ServerPort:    17870,
		Notifications: true,
	}
}

// Load loads configuration from the specified path
func Load(path string) (*Config, error) {
	// If file doesn't exist, return default config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Fill in fields an older config file may be missing
	if config.Hotkey.Key == "" {
		config.Hotkey.Key = "R"
	}
	if config.SampleRate == 0 {
		config.SampleRate = 44100
	}
	if config.Channels == 0 {
		config.Channels = 1
	}
	if config.ServerPort == 0 {
		config.ServerPort = 17870
	}

	return &config, nil
}

// Save saves configuration to the specified path
func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, "Library", "Application Support", "mictap", "config.json")
}

// Update updates configuration fields from a settings payload
func (c *Config) Update(updates map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, value := range updates {
		switch key {
		case "recording_mode":
			if v, ok := value.(string); ok {
				if v != "press-to-hold" && v != "toggle" {
					return fmt.Errorf("invalid recording_mode: %s", v)
				}
				c.RecordingMode = v
			}
		case "audio_device_id":
			if v, ok := value.(float64); ok {
				c.AudioDeviceID = int(v)
			}
		case "sample_rate":
			if v, ok := value.(float64); ok {
				c.SampleRate = int(v)
			}
		case "channels":
			if v, ok := value.(float64); ok {
				c.Channels = int(v)
			}
		case "max_record_time":
			if v, ok := value.(float64); ok {
				c.MaxRecordTime = int(v)
			}
		case "export_dir":
			if v, ok := value.(string); ok {
				c.ExportDir = v
			}
		case "export_dialog":
			if v, ok := value.(bool); ok {
				c.ExportDialog = v
			}
		case "notifications":
			if v, ok := value.(bool); ok {
				c.Notifications = v
			}
		case "hotkey":
			if v, ok := value.(map[string]interface{}); ok {
				if ctrl, ok := v["ctrl"].(bool); ok {
					c.Hotkey.Ctrl = ctrl
				}
				if shift, ok := v["shift"].(bool); ok {
					c.Hotkey.Shift = shift
				}
				if alt, ok := v["alt"].(bool); ok {
					c.Hotkey.Alt = alt
				}
				if cmd, ok := v["cmd"].(bool); ok {
					c.Hotkey.Cmd = cmd
				}
				if key, ok := v["key"].(string); ok {
					c.Hotkey.Key = key
				}
			}
		}
	}

	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &Config{
		Hotkey:        c.Hotkey,
		RecordingMode: c.RecordingMode,
		AudioDeviceID: c.AudioDeviceID,
		SampleRate:    c.SampleRate,
		Channels:      c.Channels,
		MaxRecordTime: c.MaxRecordTime,
		ExportDir:     c.ExportDir,
		ExportDialog:  c.ExportDialog,
		ServerPort:    c.ServerPort,
		Notifications: c.Notifications,
	}
}

// ExpandPath expands ~ to home directory in file paths
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, path[2:]), nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	return absPath, nil
}

// GetExportDir returns the expanded export directory
func (c *Config) GetExportDir() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return ExpandPath(c.ExportDir)
}

// Validate validates all configuration fields
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.RecordingMode != "press-to-hold" && c.RecordingMode != "toggle" {
		return fmt.Errorf("invalid recording_mode: %s (must be 'press-to-hold' or 'toggle')", c.RecordingMode)
	}

	switch c.SampleRate {
	case 8000, 16000, 22050, 44100, 48000:
	default:
		return fmt.Errorf("invalid sample_rate: %d (must be 8000, 16000, 22050, 44100 or 48000)", c.SampleRate)
	}

	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("invalid channels: %d (must be 1 or 2)", c.Channels)
	}

	if c.MaxRecordTime < 0 || c.MaxRecordTime > 3600 {
		return fmt.Errorf("invalid max_record_time: %d (must be between 0 and 3600 seconds)", c.MaxRecordTime)
	}

	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid server_port: %d", c.ServerPort)
	}

	if c.ExportDir == "" {
		return fmt.Errorf("export_dir cannot be empty")
	}

	return nil
}
