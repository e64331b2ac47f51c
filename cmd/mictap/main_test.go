package main

import (
	"testing"

	"github.com/harukit/mictap/internal/session"
)

func TestShouldStartRecording(t *testing.T) {
	tests := []struct {
		state session.State
		start bool
	}{
		{session.Idle, true},
		{session.Recording, false},
		{session.Paused, false},
		// After an out-of-band stop (time limit, tray, HTTP) the next
		// toggle press starts a new recording.
		{session.Stopped, true},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			if got := shouldStartRecording(tt.state); got != tt.start {
				t.Errorf("shouldStartRecording(%s) = %v, want %v", tt.state, got, tt.start)
			}
		})
	}
}
