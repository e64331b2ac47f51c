package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ncruces/zenity"

	"github.com/harukit/mictap/internal/artifact"
)

// Config holds exporter configuration
type Config struct {
	// Dir is where artifacts are written when no dialog is shown
	Dir string
	// Interactive shows a native save-as dialog instead of writing
	// directly under Dir
	Interactive bool
}

// DefaultConfig returns the default exporter configuration
func DefaultConfig() Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return Config{
		Dir:         filepath.Join(homeDir, "Music", "mictap"),
		Interactive: true,
	}
}

// Exporter writes assembled artifacts to disk via a save-as interaction
type Exporter struct {
	config Config

	// saveDialog is injectable for testing; defaults to a zenity file dialog
	saveDialog func(defaultPath string) (string, error)
}

// New creates a new exporter
func New(config Config) *Exporter {
	return &Exporter{
		config: config,
		saveDialog: func(defaultPath string) (string, error) {
			return zenity.SelectFileSave(
				zenity.Title("Save Recording"),
				zenity.Filename(defaultPath),
				zenity.ConfirmOverwrite(),
				zenity.FileFilter{
					Name:     "WAV audio",
					Patterns: []string{"*.wav"},
				},
			)
		},
	}
}

// ErrCancelled is returned when the user dismisses the save dialog
var ErrCancelled = errors.New("export: save dialog cancelled")

// Save writes the artifact to disk under the suggested name and returns the
// written path. With Interactive set, the user picks the destination through
// a native save dialog; otherwise the file lands in the configured directory,
// with a numeric suffix on collision.
func (e *Exporter) Save(a *artifact.Artifact, suggestedName string) (string, error) {
	if a == nil {
		return "", fmt.Errorf("artifact cannot be nil")
	}

	name := SanitizeName(suggestedName)
	if name == "" {
		name = DefaultName(a.CreatedAt)
	}

	var path string
	if e.config.Interactive {
		chosen, err := e.saveDialog(filepath.Join(e.config.Dir, name))
		if err != nil {
			if errors.Is(err, zenity.ErrCanceled) {
				return "", ErrCancelled
			}
			return "", fmt.Errorf("save dialog failed: %w", err)
		}
		if chosen == "" {
			return "", ErrCancelled
		}
		path = chosen
	} else {
		if err := os.MkdirAll(e.config.Dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create export directory: %w", err)
		}
		path = uniquePath(filepath.Join(e.config.Dir, name))
	}

	if err := os.WriteFile(path, a.Data, 0644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}

	return path, nil
}

// SanitizeName strips path separators and control characters from a
// suggested file name and normalizes the extension to .wav
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	// Keep only the base name; a suggested name must not escape the
	// destination directory.
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == '/' || r == '\\' || r == ':' {
			return '_'
		}
		return r
	}, name)

	if name == "." || name == ".." {
		return ""
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".wav" {
		name += ".wav"
	}
	return name
}

// DefaultName returns the fallback file name for an artifact
func DefaultName(t time.Time) string {
	return "recording-" + t.Format("20060102-150405") + ".wav"
}

// uniquePath appends a numeric suffix until the path does not exist
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
