// Package app runs the live table detection pipeline.
package app

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/eightball/internal/capture"
	"github.com/ayusman/eightball/internal/detector"
	"github.com/ayusman/eightball/internal/logging"
	"github.com/ayusman/eightball/internal/profile"
	"github.com/ayusman/eightball/internal/store"
)

// Pipeline timing constants.
const (
	// IdleFPS is the frame rate when the scene is still.
	IdleFPS = 5
	// ActiveFPS is the frame rate while the scene is moving.
	ActiveFPS = 15
	// IdleTimeout is how long the scene must stay still before dropping back to IdleFPS.
	IdleTimeout = 2 * time.Second
	// DefaultMotionThreshold is the changed-pixel percentage counted as motion.
	DefaultMotionThreshold = 1.0
)

// ErrAlreadyRunning is returned by Start when the pipeline is running.
var ErrAlreadyRunning = errors.New("pipeline already running")

// Config holds configuration options for the application.
type Config struct {
	Store *store.Store

	// Camera overrides the frame source. When nil, VideoPath selects a file
	// source and otherwise CameraID selects a device.
	Camera    capture.Camera
	CameraID  int
	VideoPath string

	// Profile is the felt profile to start with. Empty means the one recorded
	// in settings, or the default.
	Profile      string
	MotionThresh float64
	Logger       *logrus.Logger
}

// App wires a frame source to the table detector and keeps the latest result.
type App struct {
	config   Config
	log      *logrus.Logger
	camera   capture.Camera
	motion   *capture.MotionMeter
	governor *capture.RateGovernor

	mu          sync.RWMutex
	detector    detector.Detector
	profileName string
	enabled     bool
	stopCh      chan struct{}
	doneCh      chan struct{}

	latestMu    sync.RWMutex
	latest      Snapshot
	hasLatest   bool
	sequence    uint64
	subscribers map[int]func(Snapshot)
	nextSubID   int
}

// New creates an App. The detector is built from the configured profile;
// if that fails the default green profile is used and a warning is logged.
func New(config Config) *App {
	motionThreshold := config.MotionThresh
	if motionThreshold <= 0 {
		motionThreshold = DefaultMotionThreshold
	}

	cam := config.Camera
	if cam == nil {
		if config.VideoPath != "" {
			cam = capture.NewFileSource(config.VideoPath)
		} else {
			cam = capture.NewCamera(config.CameraID)
		}
	}

	a := &App{
		config:      config,
		log:         logging.OrDiscard(config.Logger),
		camera:      cam,
		motion:      capture.NewMotionMeter(motionThreshold),
		governor:    capture.NewRateGovernor(IdleFPS, ActiveFPS, IdleTimeout),
		subscribers: make(map[int]func(Snapshot)),
	}

	name := config.Profile
	if name == "" {
		active, err := profile.Active(config.Store)
		if err != nil {
			a.log.WithError(err).Warn("Failed to read active profile")
			active = profile.DefaultName
		}
		name = active
	}

	if err := a.UseProfile(name); err != nil {
		a.log.WithError(err).WithField("profile", name).Warn("Falling back to default profile")
		d, err := detector.NewTableDetector(detector.DefaultConfig())
		if err != nil {
			a.log.WithError(err).Error("Failed to build default detector")
		} else {
			a.detector = d
		}
		a.profileName = profile.DefaultName
	}

	return a
}

// SetEnabled enables or disables detection in the live pipeline.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// IsEnabled returns whether detection is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// SetDetector replaces the detector. The previous detector is closed.
func (a *App) SetDetector(d detector.Detector) {
	a.mu.Lock()
	prev := a.detector
	a.detector = d
	a.mu.Unlock()

	if prev != nil && prev != d {
		if err := prev.Close(); err != nil {
			a.log.WithError(err).Warn("Error closing detector")
		}
	}
}

// Detector returns the current detector.
func (a *App) Detector() detector.Detector {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.detector
}

// UseProfile builds a detector from the named profile and makes it current.
// The choice is recorded in settings when a store is configured.
func (a *App) UseProfile(name string) error {
	p, err := profile.Resolve(a.config.Store, name)
	if err != nil {
		return err
	}

	d, err := detector.NewTableDetector(p.Config)
	if err != nil {
		return fmt.Errorf("profile %s: %w", p.Name, err)
	}

	if a.config.Store != nil {
		if err := a.config.Store.Settings().Set(store.SettingActiveProfile, p.Name); err != nil {
			d.Close()
			return fmt.Errorf("failed to save active profile: %w", err)
		}
	}

	a.SetDetector(d)

	a.mu.Lock()
	a.profileName = p.Name
	a.mu.Unlock()

	a.log.WithFields(logrus.Fields{
		"profile":  p.Name,
		"hue":      fmt.Sprintf("%d-%d", p.Config.Range.Lower.H, p.Config.Range.Upper.H),
		"min_area": p.Config.MinArea,
	}).Info("Using felt profile")

	return nil
}

// ProfileName returns the name of the active profile.
func (a *App) ProfileName() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.profileName
}

// Start opens the frame source and begins the capture loop.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return ErrAlreadyRunning
	}

	if err := a.camera.Open(); err != nil {
		return err
	}

	a.camera.SetFPS(a.governor.FPS())

	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go a.runPipeline(a.stopCh, a.doneCh)

	a.log.WithField("fps", a.governor.FPS()).Info("Detection pipeline started")
	return nil
}

// Stop halts the capture loop and closes the frame source. It is safe to
// call when the pipeline is not running.
func (a *App) Stop() {
	a.mu.Lock()
	stopCh, doneCh := a.stopCh, a.doneCh
	a.stopCh, a.doneCh = nil, nil
	a.mu.Unlock()

	if stopCh == nil {
		return
	}

	close(stopCh)
	<-doneCh

	a.releaseSource()
	a.log.Info("Detection pipeline stopped")
}

// finish tears down a capture loop that ended on its own. It does nothing
// when Stop has already claimed the loop. The done channel stays in place so
// late callers of Done still see it closed.
func (a *App) finish(stopCh <-chan struct{}) {
	a.mu.Lock()
	owned := a.stopCh != nil && a.stopCh == stopCh
	if owned {
		a.stopCh = nil
	}
	a.mu.Unlock()

	if !owned {
		return
	}

	a.releaseSource()
	a.log.Info("Detection pipeline finished")
}

func (a *App) releaseSource() {
	if err := a.camera.Close(); err != nil {
		a.log.WithError(err).Warn("Error closing camera")
	}
	a.motion.Reset()
}

// Running reports whether the capture loop is active.
func (a *App) Running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stopCh != nil
}

// Done returns a channel closed when the current capture loop exits, either
// through Stop or because the source ran out of frames. It returns nil before
// the first Start and after Stop.
func (a *App) Done() <-chan struct{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.doneCh
}

// Close stops the pipeline and releases the detector and motion meter.
func (a *App) Close() error {
	a.Stop()
	a.motion.Close()

	a.mu.Lock()
	d := a.detector
	a.detector = nil
	a.mu.Unlock()

	if d != nil {
		return d.Close()
	}
	return nil
}

// Camera returns the frame source.
func (a *App) Camera() capture.Camera {
	return a.camera
}
