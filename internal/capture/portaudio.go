package capture

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// PortAudioPipeline implements Pipeline using PortAudio
type PortAudioPipeline struct {
	config  Config
	stream  *portaudio.Stream
	onChunk ChunkFunc
	mu      sync.Mutex
	opened  bool
	running bool
	paused  bool
}

// NewPortAudioPipeline creates a new PortAudio pipeline
func NewPortAudioPipeline() (*PortAudioPipeline, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	return &PortAudioPipeline{}, nil
}

// ListDevices returns a list of available audio input devices
func (p *PortAudioPipeline) ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	defaultInput, err := portaudio.DefaultInputDevice()
	if err != nil {
		// If we can't get the default device, continue without marking any as default
		defaultInput = nil
	}

	var result []Device
	for i, dev := range devices {
		// Only include devices with input channels
		if dev.MaxInputChannels > 0 {
			isDefault := false
			if defaultInput != nil && dev.Name == defaultInput.Name {
				isDefault = true
			}

			result = append(result, Device{
				ID:        i,
				Name:      dev.Name,
				IsDefault: isDefault,
			})
		}
	}

	return result, nil
}

// Open acquires the input stream and registers the chunk handler
func (p *PortAudioPipeline) Open(config Config, onChunk ChunkFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("cannot open while capturing")
	}

	if onChunk == nil {
		return fmt.Errorf("chunk handler must not be nil")
	}

	// Close existing stream if any
	if p.stream != nil {
		if err := p.stream.Close(); err != nil {
			return fmt.Errorf("failed to close existing stream: %w", err)
		}
		p.stream = nil
	}

	// Get the device
	var device *portaudio.DeviceInfo
	var err error

	if config.DeviceID == -1 {
		// Use default input device
		device, err = portaudio.DefaultInputDevice()
		if err != nil {
			return fmt.Errorf("%w: no default input device: %v", ErrDeviceUnavailable, err)
		}
	} else {
		// Use specified device
		devices, err := portaudio.Devices()
		if err != nil {
			return fmt.Errorf("failed to list devices: %w", err)
		}

		if config.DeviceID < 0 || config.DeviceID >= len(devices) {
			return fmt.Errorf("%w: invalid device ID: %d", ErrDeviceUnavailable, config.DeviceID)
		}

		device = devices[config.DeviceID]
	}

	// Validate device has input channels
	if device.MaxInputChannels <= 0 {
		return fmt.Errorf("%w: device '%s' (ID: %d) has no input channels (output-only device)",
			ErrDeviceUnavailable, device.Name, config.DeviceID)
	}

	// Set latency
	var latency time.Duration
	switch config.Latency {
	case LowLatency:
		latency = device.DefaultLowInputLatency
	case HighStability:
		latency = device.DefaultHighInputLatency
	default:
		latency = device.DefaultHighInputLatency
	}

	// Create stream parameters
	streamParams := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: config.Channels,
			Latency:  latency,
		},
		SampleRate:      float64(config.SampleRate),
		FramesPerBuffer: 1024,
	}

	// Open stream
	stream, err := portaudio.OpenStream(streamParams, p.callback)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", classifyOpenError(err))
	}

	p.stream = stream
	p.config = config
	p.onChunk = onChunk
	p.opened = true
	p.paused = false

	return nil
}

// classifyOpenError maps platform open failures onto the pipeline's
// sentinel errors. macOS reports a denied microphone permission as a
// device-level failure, so the message is inspected.
func classifyOpenError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "not authorized") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	if strings.Contains(msg, "device") {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return err
}

// callback is called by PortAudio when audio data is available. Each
// callback buffer is delivered as one chunk, converted to little-endian
// 16-bit PCM bytes.
func (p *PortAudioPipeline) callback(in []int16) {
	p.mu.Lock()
	running := p.running && !p.paused
	onChunk := p.onChunk
	p.mu.Unlock()

	if !running || len(in) == 0 {
		return
	}

	chunk := make([]byte, len(in)*2)
	for i, sample := range in {
		chunk[i*2] = byte(sample)
		chunk[i*2+1] = byte(sample >> 8)
	}

	onChunk(chunk)
}

// Start begins chunk delivery
func (p *PortAudioPipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.opened {
		return fmt.Errorf("pipeline not opened")
	}

	if p.running {
		return fmt.Errorf("already capturing")
	}

	if err := p.stream.Start(); err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}

	p.running = true
	p.paused = false
	return nil
}

// Pause suspends chunk delivery without releasing the input stream
func (p *PortAudioPipeline) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return fmt.Errorf("not capturing")
	}

	if p.paused {
		return fmt.Errorf("already paused")
	}

	// Stop the stream but keep it open; the device stays acquired.
	if err := p.stream.Stop(); err != nil {
		return fmt.Errorf("failed to pause stream: %w", err)
	}

	p.paused = true
	return nil
}

// Resume resumes chunk delivery after Pause
func (p *PortAudioPipeline) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return fmt.Errorf("not capturing")
	}

	if !p.paused {
		return fmt.Errorf("not paused")
	}

	if err := p.stream.Start(); err != nil {
		return fmt.Errorf("failed to resume stream: %w", err)
	}

	p.paused = false
	return nil
}

// Stop halts capture. PortAudio's blocking Stop drains the callback before
// returning, so every delivered chunk has reached the handler by the time
// Stop returns.
func (p *PortAudioPipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return fmt.Errorf("not capturing")
	}

	if !p.paused {
		if err := p.stream.Stop(); err != nil {
			return fmt.Errorf("failed to stop stream: %w", err)
		}
	}

	p.running = false
	p.paused = false
	return nil
}

// Close releases the input stream. PortAudio itself stays initialized so
// the pipeline can be opened again for the next recording; Terminate tears
// it down at shutdown.
func (p *PortAudioPipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		if err := p.stream.Stop(); err != nil {
			return fmt.Errorf("failed to stop stream: %w", err)
		}
		p.running = false
	}

	if p.stream != nil {
		if err := p.stream.Close(); err != nil {
			return fmt.Errorf("failed to close stream: %w", err)
		}
		p.stream = nil
	}

	p.opened = false
	return nil
}

// Terminate releases any open stream and shuts down PortAudio. The pipeline
// is unusable afterwards; called once when the application quits.
func (p *PortAudioPipeline) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		if p.running {
			p.stream.Stop()
			p.running = false
		}
		if err := p.stream.Close(); err != nil {
			return fmt.Errorf("failed to close stream: %w", err)
		}
		p.stream = nil
	}
	p.opened = false

	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}

	return nil
}
