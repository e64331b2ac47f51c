package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harukit/mictap/internal/artifact"
	"github.com/harukit/mictap/internal/capture"
)

// State represents the current session state
type State int

const (
	// Idle means no capture has started
	Idle State = iota
	// Recording means chunks are being collected
	Recording
	// Paused means the input stream is held but chunk delivery is suspended
	Paused
	// Stopped means the capture is finalized and the artifact (if any) is set
	Stopped
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Recording:
		return "Recording"
	case Paused:
		return "Paused"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

var (
	// ErrInvalidTransition is returned for any operation invoked outside its
	// precondition state. Invalid calls are rejected rather than silently
	// ignored.
	ErrInvalidTransition = errors.New("session: invalid state transition")
	// ErrEmptyCapture is returned by Stop when no chunks were collected.
	// The session still reaches Stopped; no artifact is produced.
	ErrEmptyCapture = errors.New("session: no audio captured")
	// ErrNoArtifact is returned by Export before a capture has produced an
	// artifact.
	ErrNoArtifact = errors.New("session: no artifact available")
)

// Exporter saves an assembled artifact under a suggested name
type Exporter interface {
	Save(a *artifact.Artifact, suggestedName string) (string, error)
}

// Config holds session configuration
type Config struct {
	Capture capture.Config
	// MaxDuration auto-stops a recording that runs past this limit.
	// Zero disables the limit.
	MaxDuration time.Duration
	// OnArtifactReady is the registered notification sink, invoked at most
	// once per completed session with the assembled artifact.
	OnArtifactReady func(a *artifact.Artifact)
	// OnAutoStop is invoked after a recording was stopped by MaxDuration
	OnAutoStop func()
}

// DefaultConfig returns the default session configuration
func DefaultConfig() Config {
	return Config{
		Capture:     capture.DefaultConfig(),
		MaxDuration: 10 * time.Minute,
	}
}

// Session owns the lifecycle of one recording attempt: acquire the input
// stream, collect chunks, stop, assemble the artifact, and expose its
// locator. State is instance-scoped; a second Session can run against its
// own pipeline.
type Session struct {
	pipeline capture.Pipeline
	store    *artifact.Store
	exporter Exporter
	config   Config

	mu        sync.Mutex
	state     State
	finishing bool
	chunks    [][]byte
	artifact  *artifact.Artifact
	stopTimer *time.Timer
}

// New creates a new session around the given capture pipeline
func New(pipeline capture.Pipeline, store *artifact.Store, exporter Exporter, config Config) *Session {
	return &Session{
		pipeline: pipeline,
		store:    store,
		exporter: exporter,
		config:   config,
		state:    Idle,
	}
}

// Start acquires the input stream and begins collecting chunks.
// Valid from Idle or Stopped; any prior chunk buffer and artifact handle
// are discarded. On failure the session keeps its previous state and holds
// no stream.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finishing || (s.state != Idle && s.state != Stopped) {
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidTransition, s.state)
	}

	if err := s.pipeline.Open(s.config.Capture, s.appendChunk); err != nil {
		return fmt.Errorf("failed to acquire input stream: %w", err)
	}

	if err := s.pipeline.Start(); err != nil {
		// Release the stream acquired by Open; the session stays put.
		if cerr := s.pipeline.Close(); cerr != nil {
			return fmt.Errorf("failed to start capture: %w (release also failed: %v)", err, cerr)
		}
		return fmt.Errorf("failed to start capture: %w", err)
	}

	s.chunks = nil
	s.artifact = nil
	s.state = Recording

	if s.config.MaxDuration > 0 {
		s.stopTimer = time.AfterFunc(s.config.MaxDuration, func() {
			// The user may have stopped already; only report a real auto-stop.
			if err := s.Stop(); err == nil || errors.Is(err, ErrEmptyCapture) {
				if cb := s.config.OnAutoStop; cb != nil {
					cb()
				}
			}
		})
	}

	return nil
}

// appendChunk records one delivered fragment in arrival order. Chunks that
// arrive while the session is finalizing are the pipeline's final flush and
// still belong to the capture.
func (s *Session) appendChunk(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Recording && !s.finishing {
		return
	}

	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	s.chunks = append(s.chunks, buf)
}

// Pause suspends chunk delivery without releasing the input stream.
// Valid only from Recording.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finishing || s.state != Recording {
		return fmt.Errorf("%w: cannot pause from %s", ErrInvalidTransition, s.state)
	}

	if err := s.pipeline.Pause(); err != nil {
		return fmt.Errorf("failed to pause capture: %w", err)
	}

	s.state = Paused
	return nil
}

// Resume resumes chunk delivery. Valid only from Paused.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finishing || s.state != Paused {
		return fmt.Errorf("%w: cannot resume from %s", ErrInvalidTransition, s.state)
	}

	if err := s.pipeline.Resume(); err != nil {
		return fmt.Errorf("failed to resume capture: %w", err)
	}

	s.state = Recording
	return nil
}

// Stop finalizes the capture: flushes any undelivered audio, releases the
// input stream, assembles the chunk buffer into a WAV artifact, stores it,
// and transitions to Stopped. Callers may read the artifact handle once
// Stop returns. Valid from Recording or Paused; a second Stop without an
// intervening Start is rejected.
func (s *Session) Stop() error {
	s.mu.Lock()

	if s.finishing || (s.state != Recording && s.state != Paused) {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot stop from %s", ErrInvalidTransition, state)
	}

	if s.stopTimer != nil {
		s.stopTimer.Stop()
		s.stopTimer = nil
	}

	s.finishing = true

	// Release the lock while the pipeline drains: its callback may be
	// delivering the final flush chunks through appendChunk.
	s.mu.Unlock()
	stopErr := s.pipeline.Stop()
	closeErr := s.pipeline.Close()
	s.mu.Lock()

	s.finishing = false
	s.state = Stopped

	// A failed stream release still yields the captured audio; the error is
	// reported after the artifact exists.
	var pipelineErr error
	if stopErr != nil {
		pipelineErr = fmt.Errorf("failed to finalize capture: %w", stopErr)
	} else if closeErr != nil {
		pipelineErr = fmt.Errorf("failed to release input stream: %w", closeErr)
	}

	if len(s.chunks) == 0 {
		s.mu.Unlock()
		if pipelineErr != nil {
			return pipelineErr
		}
		return ErrEmptyCapture
	}

	a, err := artifact.Assemble(s.chunks, s.config.Capture.SampleRate, s.config.Capture.Channels)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to assemble artifact: %w", err)
	}

	if s.store != nil {
		if _, err := s.store.Put(a); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("failed to store artifact: %w", err)
		}
	}

	s.artifact = a
	sink := s.config.OnArtifactReady
	s.mu.Unlock()

	// Notify outside the lock; the sink may call back into the session.
	if sink != nil {
		sink(a)
	}

	return pipelineErr
}

// Export saves the session's artifact under the suggested name.
// Valid only once a capture has produced an artifact; the session state
// machine is not affected.
func (s *Session) Export(suggestedName string) (string, error) {
	s.mu.Lock()
	a := s.artifact
	exporter := s.exporter
	s.mu.Unlock()

	if a == nil {
		return "", ErrNoArtifact
	}
	if exporter == nil {
		return "", fmt.Errorf("no exporter configured")
	}

	path, err := exporter.Save(a, suggestedName)
	if err != nil {
		return "", fmt.Errorf("failed to export artifact: %w", err)
	}
	return path, nil
}

// SetCaptureConfig replaces the capture configuration used by the next
// Start. Rejected while a capture is in flight.
func (s *Session) SetCaptureConfig(cfg capture.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finishing || s.state == Recording || s.state == Paused {
		return fmt.Errorf("%w: cannot reconfigure from %s", ErrInvalidTransition, s.state)
	}

	s.config.Capture = cfg
	return nil
}

// SetExporter replaces the exporter used by Export
func (s *Session) SetExporter(e Exporter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exporter = e
}

// State returns the current session state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Artifact returns the assembled artifact, or nil outside Stopped
func (s *Session) Artifact() *artifact.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifact
}

// ChunkCount returns the number of chunks collected so far
func (s *Session) ChunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}
