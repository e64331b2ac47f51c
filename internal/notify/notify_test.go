package notify

import (
	"strings"
	"testing"
	"time"
)

func newTestManager(enabled bool) (*Manager, *[]string) {
	var posted []string
	m := NewManager("mictap", enabled)
	m.post = func(title, message string) error {
		posted = append(posted, title+": "+message)
		return nil
	}
	return m, &posted
}

func TestSendNil(t *testing.T) {
	m, _ := newTestManager(true)
	if err := m.Send(nil); err == nil {
		t.Error("Send should reject a nil notification")
	}
}

func TestDisabledManagerIsSilent(t *testing.T) {
	m, posted := newTestManager(false)

	if err := m.RecordingStarted(); err != nil {
		t.Errorf("RecordingStarted failed: %v", err)
	}
	if len(*posted) != 0 {
		t.Errorf("Disabled manager should post nothing, got %v", *posted)
	}
}

func TestArtifactReadyMessage(t *testing.T) {
	m, posted := newTestManager(true)

	if err := m.ArtifactReady(2*1024*1024, 65*time.Second); err != nil {
		t.Fatalf("ArtifactReady failed: %v", err)
	}

	if len(*posted) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(*posted))
	}
	msg := (*posted)[0]
	if !strings.Contains(msg, "2.0 MB") {
		t.Errorf("Expected size in message, got %q", msg)
	}
	if !strings.Contains(msg, "1m5s") {
		t.Errorf("Expected duration in message, got %q", msg)
	}
}

func TestExportComplete(t *testing.T) {
	m, posted := newTestManager(true)

	if err := m.ExportComplete("/tmp/take.wav"); err != nil {
		t.Fatalf("ExportComplete failed: %v", err)
	}
	if !strings.Contains((*posted)[0], "/tmp/take.wav") {
		t.Errorf("Expected path in message, got %q", (*posted)[0])
	}
}

func TestEscape(t *testing.T) {
	if got := escape(`say "hi" \now`); got != `say \"hi\" \\now` {
		t.Errorf("escape produced %q", got)
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		n        int
		expected string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{3 * 1024 * 1024, "3.0 MB"},
	}

	for _, tt := range tests {
		if got := formatSize(tt.n); got != tt.expected {
			t.Errorf("formatSize(%d) = %q, want %q", tt.n, got, tt.expected)
		}
	}
}

func TestSetEnabled(t *testing.T) {
	var posted int
	m := NewManager("mictap", false)
	m.post = func(title, message string) error {
		posted++
		return nil
	}

	if err := m.SendInfo("hidden"); err != nil {
		t.Fatalf("SendInfo failed: %v", err)
	}
	if posted != 0 {
		t.Error("Disabled manager should not post")
	}

	m.SetEnabled(true)
	if err := m.SendInfo("shown"); err != nil {
		t.Fatalf("SendInfo failed: %v", err)
	}
	if posted != 1 {
		t.Errorf("Expected 1 posted notification, got %d", posted)
	}
}
