package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/eightball/internal/capture"
	"github.com/ayusman/eightball/internal/imageio"
	"github.com/ayusman/eightball/internal/overlay"
)

// ErrNoDetector is returned by ProcessFrame after the app has been closed.
var ErrNoDetector = errors.New("no detector configured")

// Snapshot is the outcome of processing a single frame. It describes only
// that frame; nothing is carried over from earlier frames.
type Snapshot struct {
	Sequence  uint64          `json:"sequence"`
	Profile   string          `json:"profile"`
	Timestamp time.Time       `json:"timestamp"`
	Detection overlay.Summary `json:"detection"`

	// JPEG is the frame with the detection drawn on it.
	JPEG []byte `json:"-"`
}

// runPipeline is the capture loop. Every enabled tick reads one frame and
// runs detection on it. Motion only steers the capture rate:
// 1. Start at IdleFPS
// 2. On motion, switch to ActiveFPS
// 3. After IdleTimeout without motion, switch back to IdleFPS
func (a *App) runPipeline(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(time.Second / time.Duration(a.governor.FPS()))
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if !a.IsEnabled() {
				continue
			}

			frame, err := a.camera.ReadFrame()
			if errors.Is(err, capture.ErrEndOfStream) {
				a.log.Info("Frame source exhausted")
				a.finish(stopCh)
				return
			}
			if err != nil {
				a.log.WithError(err).Warn("Error reading frame")
				continue
			}

			moved, changed := a.motion.Measure(frame)
			if fps, switched := a.governor.Observe(moved, time.Now()); switched {
				a.camera.SetFPS(fps)
				ticker.Reset(time.Second / time.Duration(fps))
				a.log.WithFields(logrus.Fields{
					"fps":     fps,
					"active":  a.governor.Active(),
					"changed": fmt.Sprintf("%.2f%%", changed),
				}).Debug("Capture rate changed")
			}

			if _, err := a.ProcessFrame(frame); err != nil {
				a.log.WithError(err).Warn("Error detecting table")
			}
			frame.Close()
		}
	}
}

// ProcessFrame runs detection on one BGR frame, renders the overlay, stores
// the snapshot as the latest and notifies subscribers. The frame is not modified.
func (a *App) ProcessFrame(frame *gocv.Mat) (Snapshot, error) {
	return a.process(frame, nil)
}

// InspectFrame is ProcessFrame that also copies the cleaned binary mask
// into mask, for debug views that show it next to the frame.
func (a *App) InspectFrame(frame *gocv.Mat, mask *gocv.Mat) (Snapshot, error) {
	return a.process(frame, mask)
}

func (a *App) process(frame *gocv.Mat, mask *gocv.Mat) (Snapshot, error) {
	a.mu.RLock()
	d := a.detector
	profileName := a.profileName
	a.mu.RUnlock()

	if d == nil {
		return Snapshot{}, ErrNoDetector
	}

	res, err := d.Detect(frame)
	if err != nil {
		return Snapshot{}, err
	}
	defer res.Close()

	if mask != nil {
		res.Mask.CopyTo(mask)
	}

	summary := overlay.Summarize(res)

	annotated := frame.Clone()
	defer annotated.Close()
	overlay.Draw(&annotated, summary)

	jpeg, err := imageio.EncodeJPEG(annotated)
	if err != nil {
		return Snapshot{}, err
	}

	a.latestMu.Lock()
	a.sequence++
	snap := Snapshot{
		Sequence:  a.sequence,
		Profile:   profileName,
		Timestamp: time.Now(),
		Detection: summary,
		JPEG:      jpeg,
	}
	a.latest = snap
	a.hasLatest = true
	subs := make([]func(Snapshot), 0, len(a.subscribers))
	for _, fn := range a.subscribers {
		subs = append(subs, fn)
	}
	a.latestMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}

	return snap, nil
}

// Latest returns the most recent snapshot, if any frame has been processed.
func (a *App) Latest() (Snapshot, bool) {
	a.latestMu.RLock()
	defer a.latestMu.RUnlock()
	return a.latest, a.hasLatest
}

// Subscribe registers fn to be called after every processed frame. fn runs
// on the processing goroutine and must not block. The returned function
// removes the subscription.
func (a *App) Subscribe(fn func(Snapshot)) func() {
	a.latestMu.Lock()
	id := a.nextSubID
	a.nextSubID++
	a.subscribers[id] = fn
	a.latestMu.Unlock()

	return func() {
		a.latestMu.Lock()
		delete(a.subscribers, id)
		a.latestMu.Unlock()
	}
}
