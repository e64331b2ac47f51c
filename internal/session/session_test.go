package session

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/harukit/mictap/internal/artifact"
	"github.com/harukit/mictap/internal/capture"
)

// fakePipeline implements capture.Pipeline for tests. Chunks are delivered
// by calling Deliver; Stop flushes any staged final chunk first.
type fakePipeline struct {
	onChunk    capture.ChunkFunc
	opened     bool
	running    bool
	paused     bool
	closed     bool
	finalFlush [][]byte
	openErr    error
	stopErr    error
	closeErr   error
}

func (f *fakePipeline) ListDevices() ([]capture.Device, error) {
	return []capture.Device{{ID: 0, Name: "fake", IsDefault: true}}, nil
}

func (f *fakePipeline) Open(config capture.Config, onChunk capture.ChunkFunc) error {
	if f.openErr != nil {
		return f.openErr
	}
	f.onChunk = onChunk
	f.opened = true
	f.closed = false
	return nil
}

func (f *fakePipeline) Start() error {
	f.running = true
	f.paused = false
	return nil
}

func (f *fakePipeline) Pause() error {
	f.paused = true
	return nil
}

func (f *fakePipeline) Resume() error {
	f.paused = false
	return nil
}

func (f *fakePipeline) Stop() error {
	for _, c := range f.finalFlush {
		f.onChunk(c)
	}
	f.finalFlush = nil
	f.running = false
	return f.stopErr
}

func (f *fakePipeline) Close() error {
	f.closed = true
	f.opened = false
	return f.closeErr
}

// Deliver simulates an asynchronous chunk notification
func (f *fakePipeline) Deliver(chunk []byte) {
	f.onChunk(chunk)
}

func testConfig() Config {
	return Config{
		Capture: capture.Config{DeviceID: -1, SampleRate: 44100, Channels: 1},
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.MaxDuration != 10*time.Minute {
		t.Errorf("Expected MaxDuration 10m, got %v", config.MaxDuration)
	}
	if config.Capture.SampleRate != 44100 {
		t.Errorf("Expected sample rate 44100, got %d", config.Capture.SampleRate)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{Idle, "Idle"},
		{Recording, "Recording"},
		{Paused, "Paused"},
		{Stopped, "Stopped"},
		{State(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestAssembledArtifactMatchesDeliveryOrder(t *testing.T) {
	pipeline := &fakePipeline{}
	store := artifact.NewStore()
	s := New(pipeline, store, nil, testConfig())

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	pipeline.Deliver([]byte("AA"))
	pipeline.Deliver([]byte("BB"))

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	a := s.Artifact()
	if a == nil {
		t.Fatal("Expected an artifact after Stop")
	}
	if !bytes.Equal(a.PCM(), []byte("AABB")) {
		t.Errorf("Expected artifact bytes \"AABB\", got %q", a.PCM())
	}
	if store.Len() != 1 {
		t.Errorf("Expected artifact in store, got %d entries", store.Len())
	}
	if !pipeline.closed {
		t.Error("Stop should release the input stream")
	}
}

func TestStopFlushesFinalChunk(t *testing.T) {
	pipeline := &fakePipeline{}
	s := New(pipeline, artifact.NewStore(), nil, testConfig())

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	pipeline.Deliver([]byte("12"))
	// The platform still holds one undelivered chunk when Stop is called.
	pipeline.finalFlush = [][]byte{[]byte("34")}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if got := s.Artifact().PCM(); !bytes.Equal(got, []byte("1234")) {
		t.Errorf("Expected flushed bytes \"1234\", got %q", got)
	}
}

func TestArtifactUndefinedOutsideStopped(t *testing.T) {
	pipeline := &fakePipeline{}
	s := New(pipeline, artifact.NewStore(), nil, testConfig())

	if s.Artifact() != nil {
		t.Error("Artifact should be nil while Idle")
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	pipeline.Deliver([]byte("AB"))

	if s.Artifact() != nil {
		t.Error("Artifact should be nil while Recording")
	}

	if err := s.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if s.Artifact() != nil {
		t.Error("Artifact should be nil while Paused")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if s.Artifact() == nil {
		t.Error("Artifact should be set once Stopped")
	}
}

func TestDoubleStopRejected(t *testing.T) {
	pipeline := &fakePipeline{}
	s := New(pipeline, artifact.NewStore(), nil, testConfig())

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	pipeline.Deliver([]byte("AB"))
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if err := s.Stop(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Second Stop should be rejected, got %v", err)
	}
}

func TestInvalidTransitions(t *testing.T) {
	pipeline := &fakePipeline{}
	s := New(pipeline, artifact.NewStore(), nil, testConfig())

	// From Idle
	if err := s.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Pause from Idle should be rejected, got %v", err)
	}
	if err := s.Resume(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Resume from Idle should be rejected, got %v", err)
	}
	if err := s.Stop(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Stop from Idle should be rejected, got %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// From Recording
	if err := s.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Start from Recording should be rejected, got %v", err)
	}
	if err := s.Resume(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Resume from Recording should be rejected, got %v", err)
	}

	if err := s.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	// From Paused
	if err := s.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Pause from Paused should be rejected, got %v", err)
	}
	if err := s.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Start from Paused should be rejected, got %v", err)
	}
}

func TestPauseResumeLeavesBufferUnchanged(t *testing.T) {
	pipeline := &fakePipeline{}
	s := New(pipeline, artifact.NewStore(), nil, testConfig())

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	pipeline.Deliver([]byte("AB"))

	before := s.ChunkCount()
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if err := s.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if got := s.ChunkCount(); got != before {
		t.Errorf("Pause/Resume changed chunk count: %d -> %d", before, got)
	}
	if s.State() != Recording {
		t.Errorf("Expected Recording after Resume, got %s", s.State())
	}
}

func TestChunksIgnoredWhilePaused(t *testing.T) {
	pipeline := &fakePipeline{}
	s := New(pipeline, artifact.NewStore(), nil, testConfig())

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	// A misbehaving backend delivering during pause must not mutate the buffer
	pipeline.Deliver([]byte("XX"))
	if got := s.ChunkCount(); got != 0 {
		t.Errorf("Expected 0 chunks while paused, got %d", got)
	}
}

func TestEmptyCapture(t *testing.T) {
	pipeline := &fakePipeline{}
	s := New(pipeline, artifact.NewStore(), nil, testConfig())

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	err := s.Stop()
	if !errors.Is(err, ErrEmptyCapture) {
		t.Errorf("Expected ErrEmptyCapture, got %v", err)
	}
	if s.State() != Stopped {
		t.Errorf("Expected Stopped after empty capture, got %s", s.State())
	}
	if s.Artifact() != nil {
		t.Error("Empty capture should not produce an artifact")
	}

	// The session is restartable
	if err := s.Start(); err != nil {
		t.Errorf("Start after empty capture failed: %v", err)
	}
}

func TestExportBeforeStopRejected(t *testing.T) {
	pipeline := &fakePipeline{}
	exporter := &fakeExporter{}
	s := New(pipeline, artifact.NewStore(), exporter, testConfig())

	if _, err := s.Export("x.wav"); !errors.Is(err, ErrNoArtifact) {
		t.Errorf("Export while Idle should be rejected, got %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	pipeline.Deliver([]byte("AB"))

	if _, err := s.Export("x.wav"); !errors.Is(err, ErrNoArtifact) {
		t.Errorf("Export while Recording should be rejected, got %v", err)
	}
	if exporter.calls != 0 {
		t.Errorf("Exporter should not have been called, got %d calls", exporter.calls)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if _, err := s.Export("x.wav"); err != nil {
		t.Errorf("Export after Stop failed: %v", err)
	}
	if exporter.calls != 1 {
		t.Errorf("Expected 1 exporter call, got %d", exporter.calls)
	}
	if exporter.lastName != "x.wav" {
		t.Errorf("Expected suggested name to pass through, got %q", exporter.lastName)
	}
}

type fakeExporter struct {
	calls    int
	lastName string
}

func (f *fakeExporter) Save(a *artifact.Artifact, suggestedName string) (string, error) {
	f.calls++
	f.lastName = suggestedName
	return "/tmp/" + suggestedName, nil
}

func TestStartFailureLeavesSessionIdle(t *testing.T) {
	pipeline := &fakePipeline{openErr: capture.ErrPermissionDenied}
	s := New(pipeline, artifact.NewStore(), nil, testConfig())

	err := s.Start()
	if !errors.Is(err, capture.ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied, got %v", err)
	}
	if s.State() != Idle {
		t.Errorf("Expected Idle after failed Start, got %s", s.State())
	}
	if pipeline.opened {
		t.Error("No input stream should be held after failed Start")
	}
	if s.ChunkCount() != 0 {
		t.Error("No chunk buffer should exist after failed Start")
	}
}

func TestRestartResetsBufferAndArtifact(t *testing.T) {
	pipeline := &fakePipeline{}
	s := New(pipeline, artifact.NewStore(), nil, testConfig())

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	pipeline.Deliver([]byte("OLD"))
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	first := s.Artifact()

	if err := s.Start(); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if s.Artifact() != nil {
		t.Error("Artifact handle should be cleared on restart")
	}
	if s.ChunkCount() != 0 {
		t.Error("Chunk buffer should be cleared on restart")
	}

	pipeline.Deliver([]byte("NEW"))
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	second := s.Artifact()
	if second == first {
		t.Error("Restart should produce a fresh artifact")
	}
	if !bytes.Equal(second.PCM(), []byte("NEW")) {
		t.Errorf("Expected second artifact bytes \"NEW\", got %q", second.PCM())
	}
}

func TestArtifactReadyNotifiedOncePerSession(t *testing.T) {
	pipeline := &fakePipeline{}
	var notified []*artifact.Artifact

	config := testConfig()
	config.OnArtifactReady = func(a *artifact.Artifact) {
		notified = append(notified, a)
	}
	s := New(pipeline, artifact.NewStore(), nil, config)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	pipeline.Deliver([]byte("AB"))
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if len(notified) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(notified))
	}
	if notified[0] != s.Artifact() {
		t.Error("Notification should carry the session artifact")
	}

	// A rejected second Stop must not notify again
	s.Stop()
	if len(notified) != 1 {
		t.Errorf("Expected still 1 notification, got %d", len(notified))
	}
}

func TestEmptyCaptureDoesNotNotify(t *testing.T) {
	pipeline := &fakePipeline{}
	notifications := 0

	config := testConfig()
	config.OnArtifactReady = func(a *artifact.Artifact) { notifications++ }
	s := New(pipeline, artifact.NewStore(), nil, config)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.Stop()

	if notifications != 0 {
		t.Errorf("Empty capture should not notify, got %d notifications", notifications)
	}
}

func TestMaxDurationAutoStop(t *testing.T) {
	pipeline := &fakePipeline{}
	done := make(chan struct{})

	config := testConfig()
	config.MaxDuration = 10 * time.Millisecond
	config.OnArtifactReady = func(a *artifact.Artifact) { close(done) }
	s := New(pipeline, artifact.NewStore(), nil, config)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	pipeline.Deliver([]byte("AB"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Auto-stop did not fire")
	}

	if s.State() != Stopped {
		t.Errorf("Expected Stopped after auto-stop, got %s", s.State())
	}
}

func TestSetCaptureConfigWhileRecordingRejected(t *testing.T) {
	pipeline := &fakePipeline{}
	s := New(pipeline, artifact.NewStore(), nil, testConfig())

	cfg := capture.DefaultConfig()
	cfg.DeviceID = 2
	if err := s.SetCaptureConfig(cfg); err != nil {
		t.Fatalf("SetCaptureConfig while Idle failed: %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.SetCaptureConfig(cfg); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("SetCaptureConfig while Recording should be rejected, got %v", err)
	}
}

func TestSetExporterReplacesExporter(t *testing.T) {
	pipeline := &fakePipeline{}
	s := New(pipeline, artifact.NewStore(), &fakeExporter{}, testConfig())

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	pipeline.Deliver([]byte("AB"))
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	replacement := &fakeExporter{}
	s.SetExporter(replacement)

	if _, err := s.Export("x.wav"); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if replacement.calls != 1 {
		t.Errorf("Replacement exporter should have been used, calls=%d", replacement.calls)
	}
}

func TestMaxDurationAutoStopCallback(t *testing.T) {
	pipeline := &fakePipeline{}
	autoStopped := make(chan struct{}, 1)

	cfg := testConfig()
	cfg.MaxDuration = 20 * time.Millisecond
	cfg.OnAutoStop = func() {
		autoStopped <- struct{}{}
	}

	s := New(pipeline, artifact.NewStore(), nil, cfg)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	pipeline.Deliver([]byte("AB"))

	select {
	case <-autoStopped:
	case <-time.After(time.Second):
		t.Fatal("OnAutoStop was not invoked")
	}

	if s.State() != Stopped {
		t.Errorf("Expected Stopped after auto-stop, got %v", s.State())
	}
}

func TestStopFromPausedFlushesFinalChunk(t *testing.T) {
	pipeline := &fakePipeline{}
	s := New(pipeline, artifact.NewStore(), nil, testConfig())

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	pipeline.Deliver([]byte("AA"))

	if err := s.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	// The stream may still hold buffered audio when a paused session is
	// stopped; the drain delivers it and it belongs to the capture.
	pipeline.finalFlush = [][]byte{[]byte("BB")}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	a := s.Artifact()
	if a == nil {
		t.Fatal("Expected an artifact")
	}
	if !bytes.Equal(a.PCM(), []byte("AABB")) {
		t.Errorf("Expected PCM AABB, got %q", a.PCM())
	}
}

func TestStopReleaseFailureKeepsArtifact(t *testing.T) {
	pipeline := &fakePipeline{closeErr: errors.New("device wedged")}
	s := New(pipeline, artifact.NewStore(), nil, testConfig())

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	pipeline.Deliver([]byte("AB"))

	err := s.Stop()
	if err == nil {
		t.Fatal("Stop should report the release failure")
	}

	// Captured audio is not discarded over a release failure
	if s.State() != Stopped {
		t.Errorf("Expected Stopped, got %v", s.State())
	}
	a := s.Artifact()
	if a == nil {
		t.Fatal("Expected an artifact despite the release failure")
	}
	if !bytes.Equal(a.PCM(), []byte("AB")) {
		t.Errorf("Expected PCM AB, got %q", a.PCM())
	}
}

func TestStopFailureNotifiesSink(t *testing.T) {
	pipeline := &fakePipeline{stopErr: errors.New("drain failed")}
	var notified int

	cfg := testConfig()
	cfg.OnArtifactReady = func(a *artifact.Artifact) { notified++ }

	s := New(pipeline, artifact.NewStore(), nil, cfg)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	pipeline.Deliver([]byte("AB"))

	if err := s.Stop(); err == nil {
		t.Fatal("Stop should report the drain failure")
	}
	if notified != 1 {
		t.Errorf("Expected the sink to fire once, got %d", notified)
	}
}
