package capture

import "errors"

// Device represents an audio input device
type Device struct {
	ID        int
	Name      string
	IsDefault bool
}

// LatencyMode defines the latency priority
type LatencyMode int

const (
	// LowLatency prioritizes low latency (real-time)
	LowLatency LatencyMode = iota
	// HighStability prioritizes stability (larger buffer)
	HighStability
)

// Config holds capture configuration
type Config struct {
	DeviceID   int
	SampleRate int
	Channels   int
	Latency    LatencyMode
}

// DefaultConfig returns the default capture configuration
// Sample rate: 44.1kHz, Channels: 1 (mono), Latency: HighStability
func DefaultConfig() Config {
	return Config{
		DeviceID:   -1, // -1 means use default device
		SampleRate: 44100,
		Channels:   1,
		Latency:    HighStability,
	}
}

var (
	// ErrPermissionDenied indicates the platform refused access to the
	// input device.
	ErrPermissionDenied = errors.New("capture: input device permission denied")
	// ErrDeviceUnavailable indicates no usable input device exists or the
	// requested device could not be opened.
	ErrDeviceUnavailable = errors.New("capture: input device unavailable")
)

// ChunkFunc receives one binary fragment of captured audio. Chunks are
// delivered in capture order from the platform's own callback thread; the
// slice is owned by the receiver.
type ChunkFunc func(chunk []byte)

// Pipeline is the interface for an audio capture pipeline. It turns a live
// input stream into a sequence of delivered chunks.
// This abstraction allows for replacement of PortAudio with other backends
// and for fakes in tests.
type Pipeline interface {
	// ListDevices returns a list of available audio input devices
	ListDevices() ([]Device, error)

	// Open acquires the input stream described by config and registers the
	// chunk handler. No chunks are delivered until Start is called.
	Open(config Config, onChunk ChunkFunc) error

	// Start begins chunk delivery
	Start() error

	// Pause suspends chunk delivery without releasing the input stream
	Pause() error

	// Resume resumes chunk delivery after Pause
	Resume() error

	// Stop halts capture. Any buffered-but-undelivered audio is flushed to
	// the chunk handler before Stop returns, so the caller observes a
	// complete chunk sequence.
	Stop() error

	// Close releases the input stream and every underlying resource
	Close() error
}
