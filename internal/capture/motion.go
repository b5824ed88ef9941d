package capture

import (
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Motion measurement constants
const (
	// BlurSize is the Gaussian kernel applied before differencing (21x21).
	BlurSize = 21
	// PixelDiffThreshold is the per-pixel intensity change counted as motion.
	PixelDiffThreshold = 25
)

// MotionMeter measures how much of the scene changed between consecutive frames.
// It only steers the capture rate; it never carries detection results between frames.
type MotionMeter struct {
	threshold   float64
	prevGray    gocv.Mat
	initialized bool
	mu          sync.Mutex
}

// NewMotionMeter creates a MotionMeter. threshold is the percentage of pixels
// that must change for a frame to count as moving (1.0 means 1%).
func NewMotionMeter(threshold float64) *MotionMeter {
	return &MotionMeter{
		threshold: threshold,
		prevGray:  gocv.NewMat(),
	}
}

// Measure compares frame with the previous one and reports whether the
// changed-pixel percentage exceeds the threshold. The first frame only sets
// the baseline.
func (m *MotionMeter) Measure(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()

	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(BlurSize, BlurSize), 0, 0, gocv.BorderDefault)

	if !m.initialized || blurred.Rows() != m.prevGray.Rows() || blurred.Cols() != m.prevGray.Cols() {
		blurred.CopyTo(&m.prevGray)
		m.initialized = true
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, PixelDiffThreshold, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(thresh)) / float64(thresh.Rows()*thresh.Cols()) * 100.0

	blurred.CopyTo(&m.prevGray)

	return changed > m.threshold, changed
}

// Reset drops the baseline frame.
func (m *MotionMeter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

// Close releases resources used by the meter.
func (m *MotionMeter) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func (m *MotionMeter) resetLocked() {
	if !m.prevGray.Empty() {
		m.prevGray.Close()
		m.prevGray = gocv.NewMat()
	}
	m.initialized = false
}

// RateGovernor picks the capture rate: active while the scene moves, idle
// once it has been still for IdleTimeout.
type RateGovernor struct {
	IdleFPS     int
	ActiveFPS   int
	IdleTimeout time.Duration

	active     bool
	lastMotion time.Time
}

// NewRateGovernor creates a RateGovernor that starts in idle mode.
func NewRateGovernor(idleFPS, activeFPS int, idleTimeout time.Duration) *RateGovernor {
	return &RateGovernor{
		IdleFPS:     idleFPS,
		ActiveFPS:   activeFPS,
		IdleTimeout: idleTimeout,
	}
}

// Observe records whether the latest frame moved and returns the rate to use
// and whether it changed.
func (g *RateGovernor) Observe(moved bool, now time.Time) (int, bool) {
	if moved {
		g.lastMotion = now
		if !g.active {
			g.active = true
			return g.ActiveFPS, true
		}
		return g.ActiveFPS, false
	}

	if g.active && now.Sub(g.lastMotion) > g.IdleTimeout {
		g.active = false
		return g.IdleFPS, true
	}

	return g.FPS(), false
}

// Active reports whether the governor is in active mode.
func (g *RateGovernor) Active() bool {
	return g.active
}

// FPS returns the rate for the current mode.
func (g *RateGovernor) FPS() int {
	if g.active {
		return g.ActiveFPS
	}
	return g.IdleFPS
}
