package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	hk "golang.design/x/hotkey"

	"github.com/harukit/mictap/internal/api"
	"github.com/harukit/mictap/internal/artifact"
	"github.com/harukit/mictap/internal/capture"
	"github.com/harukit/mictap/internal/config"
	"github.com/harukit/mictap/internal/export"
	"github.com/harukit/mictap/internal/hotkey"
	"github.com/harukit/mictap/internal/logger"
	"github.com/harukit/mictap/internal/notify"
	"github.com/harukit/mictap/internal/permissions"
	"github.com/harukit/mictap/internal/server"
	"github.com/harukit/mictap/internal/session"
	"github.com/harukit/mictap/internal/tray"
)

const version = "0.1.0"

// App holds all application state
type App struct {
	logger     *logger.Logger
	config     *config.Config
	notifier   *notify.Manager
	store      *artifact.Store
	pipeline   *capture.PortAudioPipeline
	session    *session.Session
	trayMgr    *tray.Manager
	httpServer *server.Server
	apiHandler *api.Handler
	hotkeyMgr  *hotkey.Manager

	micGranted bool
}

func init() {
	// CGO calls into macOS frameworks require the main thread
	runtime.LockOSThread()
}

func main() {
	app := &App{}

	loggerConfig := logger.DefaultConfig()
	var err error
	app.logger, err = logger.New(loggerConfig)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer app.logger.Close()

	app.logger.Info("mictap v%s starting", version)

	configPath := config.GetConfigPath()
	app.config, err = config.Load(configPath)
	if err != nil {
		app.logger.Error("Failed to load config: %v", err)
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := app.config.Validate(); err != nil {
		app.logger.Error("Invalid config, falling back to defaults: %v", err)
		app.config = config.DefaultConfig()
	}
	app.logger.Info("Config loaded from %s", configPath)

	app.notifier = notify.NewManager("mictap", app.config.Notifications)
	app.store = artifact.NewStore()

	app.pipeline, err = capture.NewPortAudioPipeline()
	if err != nil {
		app.logger.Error("Failed to initialize audio backend: %v", err)
		log.Fatalf("Failed to initialize audio backend: %v", err)
	}

	app.session = session.New(app.pipeline, app.store, app.newExporter(), session.Config{
		Capture:         app.captureConfig(),
		MaxDuration:     time.Duration(app.config.MaxRecordTime) * time.Second,
		OnArtifactReady: app.onArtifactReady,
		OnAutoStop: func() {
			limit := time.Duration(app.config.MaxRecordTime) * time.Second
			app.logger.Info("Recording auto-stopped after %s", limit)
			app.notifier.RecordingTimeExceeded(limit)
		},
	})

	serverConfig := server.DefaultConfig()
	serverConfig.Port = app.config.ServerPort
	app.httpServer = server.New(serverConfig)
	app.apiHandler = api.New(app.config, app.session, app.store,
		app.pipeline.ListDevices, app.applySettings)
	app.apiHandler.RegisterRoutes(app.httpServer.GetMux())
	app.logger.Info("API routes registered")

	app.trayMgr = tray.NewManager(tray.Config{
		OnReady:        app.onReady,
		OnStart:        app.startRecording,
		OnPause:        app.pauseRecording,
		OnResume:       app.resumeRecording,
		OnStop:         app.stopRecording,
		OnExport:       app.exportRecording,
		OnOpenPlayer:   app.openPlayer,
		OnDeviceChange: app.changeDevice,
		OnQuit:         app.handleQuit,
	})

	app.logger.Info("Starting systray")

	// Blocks until Quit
	app.trayMgr.Run()
}

// onReady is called once systray has finished initializing
func (a *App) onReady() {
	a.logger.Info("systray ready, finishing initialization")

	permChecker := permissions.NewPermissionChecker()
	micStatus := permChecker.CheckMicrophonePermission()
	a.micGranted = micStatus == permissions.PermissionAuthorized

	if a.micGranted {
		a.logger.Info("Microphone permission: authorized")
	} else {
		a.logger.Warn("Microphone permission: %s", micStatus)
		a.notifier.MicrophonePermissionDenied()
	}

	a.refreshDeviceMenu()
	a.trayMgr.SetExportEnabled(false)

	hotkeyConfig := a.hotkeyConfig()
	for _, conflict := range hotkey.CheckConflicts(hotkeyConfig.Modifiers, hotkeyConfig.Key) {
		a.logger.Warn("Hotkey conflicts with %s (%s)", conflict.Name, conflict.Description)
	}
	a.hotkeyMgr = hotkey.New()
	if err := a.hotkeyMgr.Register(hotkeyConfig); err != nil {
		a.logger.Error("Failed to register hotkey: %v", err)
		a.notifier.SendError("Global hotkey could not be registered")
	} else {
		a.logger.Info("Hotkey registered: %s",
			hotkey.FormatHotkey(hotkeyConfig.Modifiers, hotkeyConfig.Key))
		go a.hotkeyEventLoop()
	}

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("Failed to start HTTP server: %v", err)
		a.notifier.SendError("Player page could not be started")
	} else {
		a.logger.Info("Player page at %s", a.httpServer.URL())
	}

	go a.trayStateLoop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		a.logger.Info("Received shutdown signal")
		a.handleQuit()
		a.trayMgr.Quit()
	}()

	fmt.Printf("mictap v%s is running\n", version)
	fmt.Printf("Player page: %s\n", a.httpServer.URL())
	if a.hotkeyMgr != nil && a.hotkeyMgr.IsRunning() {
		cfg := a.hotkeyMgr.GetConfig()
		fmt.Printf("Hotkey: %s\n", hotkey.FormatHotkey(cfg.Modifiers, cfg.Key))
	}

	a.logger.Info("Initialization complete")
}

// trayStateLoop keeps the menu bar in sync with the session, whichever
// front end (tray, hotkey, HTTP API) drove the last transition.
func (a *App) trayStateLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		switch a.session.State() {
		case session.Recording:
			a.trayMgr.SetState(tray.StateRecording)
		case session.Paused:
			a.trayMgr.SetState(tray.StatePaused)
		default:
			a.trayMgr.SetState(tray.StateIdle)
		}
		a.trayMgr.SetExportEnabled(a.session.Artifact() != nil)
	}
}

// hotkeyEventLoop maps hotkey events onto session transitions
func (a *App) hotkeyEventLoop() {
	a.logger.Info("Hotkey event loop started")

	for event := range a.hotkeyMgr.Events() {
		switch event.Type {
		case hotkey.Pressed:
			if a.hotkeyMgr.GetConfig().Mode == hotkey.Toggle {
				// Decide from the live session state so a stop from the
				// tray, the HTTP API, or the time limit does not desync
				// the toggle.
				if shouldStartRecording(a.session.State()) {
					a.startRecording()
				} else {
					a.stopRecording()
				}
			} else {
				a.startRecording()
			}
		case hotkey.Released:
			a.stopRecording()
		}
	}

	a.logger.Info("Hotkey event loop stopped")
}

// shouldStartRecording decides what a toggle press means in the given state
func shouldStartRecording(st session.State) bool {
	return st != session.Recording && st != session.Paused
}

// onArtifactReady runs once per completed recording
func (a *App) onArtifactReady(art *artifact.Artifact) {
	a.logger.Info("Recording ready: %s (%d bytes, %s)",
		art.ID, art.Size(), art.Duration().Round(time.Second))
	a.notifier.ArtifactReady(art.Size(), art.Duration())
}

func (a *App) startRecording() {
	if !a.micGranted {
		a.logger.Warn("Start requested without microphone permission")
		a.notifier.MicrophonePermissionDenied()
		return
	}

	if err := a.session.Start(); err != nil {
		a.reportSessionError("start", err)
		return
	}

	a.logger.Info("Recording started")
	a.notifier.RecordingStarted()
}

func (a *App) pauseRecording() {
	if err := a.session.Pause(); err != nil {
		a.reportSessionError("pause", err)
		return
	}

	a.logger.Info("Recording paused")
	a.notifier.RecordingPaused()
}

func (a *App) resumeRecording() {
	if err := a.session.Resume(); err != nil {
		a.reportSessionError("resume", err)
		return
	}

	a.logger.Info("Recording resumed")
	a.notifier.RecordingResumed()
}

func (a *App) stopRecording() {
	err := a.session.Stop()
	if errors.Is(err, session.ErrEmptyCapture) {
		a.logger.Warn("Recording stopped with no audio")
		a.notifier.EmptyCapture()
		return
	}
	if err != nil {
		a.reportSessionError("stop", err)
		return
	}

	a.logger.Info("Recording stopped")
}

// exportRecording runs the save-as flow. The dialog blocks, so it runs off
// the menu event loop.
func (a *App) exportRecording() {
	go func() {
		path, err := a.session.Export("")
		if errors.Is(err, export.ErrCancelled) {
			a.logger.Info("Export cancelled")
			return
		}
		if errors.Is(err, session.ErrNoArtifact) {
			a.logger.Warn("Export requested with no recording")
			a.notifier.SendError("No recording to export")
			return
		}
		if err != nil {
			a.logger.Error("Export failed: %v", err)
			a.notifier.SendError(fmt.Sprintf("Export failed: %v", err))
			return
		}

		a.logger.Info("Exported to %s", path)
		a.notifier.ExportComplete(path)
	}()
}

// openPlayer opens the player page in the default browser
func (a *App) openPlayer() {
	if !a.httpServer.IsRunning() {
		a.logger.Error("HTTP server is not running")
		a.notifier.SendError("Player page is not available. Restart the application.")
		return
	}

	url := a.httpServer.URL()
	a.logger.Info("Opening browser: %s", url)

	go func() {
		if err := exec.Command("open", url).Run(); err != nil {
			a.logger.Error("Failed to open browser: %v", err)
			fmt.Printf("Open this URL in a browser: %s\n", url)
		}
	}()
}

// changeDevice switches the input device for the next recording
func (a *App) changeDevice(deviceID int) {
	a.logger.Info("Input device change requested: %d", deviceID)

	if err := a.config.Update(map[string]interface{}{
		"audio_device_id": float64(deviceID),
	}); err != nil {
		a.logger.Error("Failed to update device setting: %v", err)
		return
	}
	if err := a.config.Save(config.GetConfigPath()); err != nil {
		a.logger.Error("Failed to save config: %v", err)
	}

	if err := a.session.SetCaptureConfig(a.captureConfig()); err != nil {
		a.logger.Warn("Device change takes effect after the current recording: %v", err)
	}

	a.refreshDeviceMenu()
}

// refreshDeviceMenu rebuilds the device submenu from the live device list
func (a *App) refreshDeviceMenu() {
	devices, err := a.pipeline.ListDevices()
	if err != nil {
		a.logger.Warn("Failed to list input devices: %v", err)
		return
	}

	items := make([]tray.Device, 0, len(devices))
	for _, d := range devices {
		current := d.ID == a.config.AudioDeviceID ||
			(a.config.AudioDeviceID == -1 && d.IsDefault)
		items = append(items, tray.Device{
			ID:        d.ID,
			Name:      d.Name,
			IsDefault: d.IsDefault,
			IsCurrent: current,
		})
	}
	a.trayMgr.UpdateDeviceMenu(items)
}

// applySettings re-applies settings saved through the HTTP API
func (a *App) applySettings() error {
	a.logger.Info("Applying updated settings")

	freshConfig, err := config.Load(config.GetConfigPath())
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	if err := freshConfig.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	a.config = freshConfig

	a.notifier.SetEnabled(a.config.Notifications)
	a.session.SetExporter(a.newExporter())
	if err := a.session.SetCaptureConfig(a.captureConfig()); err != nil {
		a.logger.Warn("Capture settings take effect after the current recording: %v", err)
	}

	if a.hotkeyMgr != nil {
		if err := a.reloadHotkey(); err != nil {
			return err
		}
	}

	a.refreshDeviceMenu()
	a.logger.Info("Settings applied")
	return nil
}

// reloadHotkey re-registers the global hotkey from the current config,
// rolling back to the previous binding if the new one fails.
func (a *App) reloadHotkey() error {
	newConfig := a.hotkeyConfig()
	for _, conflict := range hotkey.CheckConflicts(newConfig.Modifiers, newConfig.Key) {
		a.logger.Warn("Hotkey conflicts with %s (%s)", conflict.Name, conflict.Description)
	}

	var oldConfig hotkey.Config
	needsRollback := false

	if a.hotkeyMgr.IsRunning() {
		oldConfig = a.hotkeyMgr.GetConfig()
		needsRollback = true

		if err := a.hotkeyMgr.Close(); err != nil {
			a.logger.Error("Failed to unregister hotkey: %v", err)
			return fmt.Errorf("failed to unregister old hotkey: %w", err)
		}
		// Let the event loop drain before re-registering
		time.Sleep(200 * time.Millisecond)
	}

	if err := a.hotkeyMgr.Register(newConfig); err != nil {
		a.logger.Error("Failed to register new hotkey: %v", err)

		if needsRollback {
			a.logger.Warn("Rolling back to previous hotkey")
			if rollbackErr := a.hotkeyMgr.Register(oldConfig); rollbackErr != nil {
				a.notifier.SendError("Hotkey registration failed. Restart the application.")
				return fmt.Errorf("failed to register new hotkey and rollback failed: %w, rollback error: %v", err, rollbackErr)
			}
			go a.hotkeyEventLoop()
		}

		return fmt.Errorf("failed to register new hotkey: %w", err)
	}

	go a.hotkeyEventLoop()

	formatted := hotkey.FormatHotkey(newConfig.Modifiers, newConfig.Key)
	a.logger.Info("Hotkey re-registered: %s", formatted)
	a.notifier.SendInfo(fmt.Sprintf("New hotkey: %s", formatted))
	return nil
}

// handleQuit shuts everything down
func (a *App) handleQuit() {
	a.logger.Info("Shutting down")

	// Finish an in-flight recording so captured audio is not lost
	if err := a.session.Stop(); err == nil {
		a.logger.Info("In-flight recording finalized on quit")
	}

	if a.httpServer != nil && a.httpServer.IsRunning() {
		if err := a.httpServer.Stop(); err != nil {
			a.logger.Error("Failed to stop HTTP server: %v", err)
		}
	}

	if a.hotkeyMgr != nil {
		a.hotkeyMgr.Close()
	}

	if a.pipeline != nil {
		a.pipeline.Terminate()
	}

	a.logger.Info("Shutdown complete")
}

// reportSessionError logs and notifies a failed session transition
func (a *App) reportSessionError(op string, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidTransition):
		a.logger.Warn("Ignored %s request: %v", op, err)
	case errors.Is(err, capture.ErrPermissionDenied):
		a.logger.Error("Failed to %s: %v", op, err)
		a.notifier.MicrophonePermissionDenied()
	case errors.Is(err, capture.ErrDeviceUnavailable):
		a.logger.Error("Failed to %s: %v", op, err)
		a.notifier.DeviceUnavailable()
	default:
		a.logger.Error("Failed to %s: %v", op, err)
		a.notifier.RecordingFailed(err.Error())
	}
}

// captureConfig derives the capture configuration from settings
func (a *App) captureConfig() capture.Config {
	cfg := capture.DefaultConfig()
	cfg.DeviceID = a.config.AudioDeviceID
	cfg.SampleRate = a.config.SampleRate
	cfg.Channels = a.config.Channels
	return cfg
}

// newExporter builds an exporter from the current settings
func (a *App) newExporter() *export.Exporter {
	dir, err := a.config.GetExportDir()
	if err != nil {
		a.logger.Warn("Failed to expand export directory: %v", err)
		dir = export.DefaultConfig().Dir
	}
	return export.New(export.Config{
		Dir:         dir,
		Interactive: a.config.ExportDialog,
	})
}

// hotkeyConfig derives the hotkey configuration from settings
func (a *App) hotkeyConfig() hotkey.Config {
	var mods []hk.Modifier
	if a.config.Hotkey.Ctrl {
		mods = append(mods, hk.ModCtrl)
	}
	if a.config.Hotkey.Shift {
		mods = append(mods, hk.ModShift)
	}
	if a.config.Hotkey.Alt {
		mods = append(mods, hk.ModOption)
	}
	if a.config.Hotkey.Cmd {
		mods = append(mods, hk.ModCmd)
	}

	key, ok := hotkey.ParseKey(a.config.Hotkey.Key)
	if !ok {
		a.logger.Warn("Unknown hotkey key %q, using R", a.config.Hotkey.Key)
		key = hk.KeyR
	}

	mode := hotkey.Toggle
	if a.config.RecordingMode == "press-to-hold" {
		mode = hotkey.PressToHold
	}

	return hotkey.Config{Modifiers: mods, Key: key, Mode: mode}
}
