package detector

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// ErrDetectorClosed is returned when Detect is called after Close.
var ErrDetectorClosed = errors.New("detector is closed")

// TableDetector finds the largest felt-colored region in a frame.
// Its configuration is fixed at construction and it is safe for concurrent use.
type TableDetector struct {
	config Config
	kernel gocv.Mat
	mu     sync.RWMutex
	closed bool
}

// NewTableDetector creates a TableDetector with the given configuration.
func NewTableDetector(config Config) (*TableDetector, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detector config: %w", err)
	}

	return &TableDetector{
		config: config,
		kernel: gocv.GetStructuringElement(gocv.MorphRect, image.Pt(config.KernelSize, config.KernelSize)),
	}, nil
}

// Config returns the detector configuration.
func (d *TableDetector) Config() Config {
	return d.config
}

// Detect runs the felt segmentation pipeline on a BGR frame.
//
// Algorithm:
// 1. Convert the frame to HSV
// 2. Threshold against the configured range (255 inside, 0 outside)
// 3. Morphological close, then open, with the square kernel
// 4. Find external contours
// 5. Keep the contour with the largest area (first one wins on ties)
// 6. Reject it if its area is below MinArea
func (d *TableDetector) Detect(frame *gocv.Mat) (*Result, error) {
	if err := validateFrame(frame); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, ErrDetectorClosed
	}

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(*frame, &hsv, gocv.ColorBGRToHSV)

	inRange := gocv.NewMat()
	defer inRange.Close()
	gocv.InRangeWithScalar(hsv, d.config.Range.lowerScalar(), d.config.Range.upperScalar(), &inRange)

	closed := gocv.NewMat()
	defer closed.Close()
	gocv.MorphologyEx(inRange, &closed, gocv.MorphClose, d.kernel)

	mask := gocv.NewMat()
	gocv.MorphologyEx(closed, &mask, gocv.MorphOpen, d.kernel)

	result := &Result{Mask: mask}

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	best := -1
	bestArea := 0.0
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if best < 0 || area > bestArea {
			best = i
			bestArea = area
		}
	}

	if best < 0 || bestArea < d.config.MinArea {
		return result, nil
	}

	result.Contour = contours.At(best).ToPoints()
	result.Area = bestArea

	return result, nil
}

// Close releases the structuring element. Subsequent Detect calls fail.
func (d *TableDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	return d.kernel.Close()
}

// validateFrame rejects frames the HSV conversion cannot handle.
func validateFrame(frame *gocv.Mat) error {
	if frame == nil || frame.Empty() {
		return fmt.Errorf("%w: frame is empty", ErrInvalidInput)
	}
	if frame.Rows() <= 0 || frame.Cols() <= 0 {
		return fmt.Errorf("%w: frame is %dx%d", ErrInvalidInput, frame.Cols(), frame.Rows())
	}
	if frame.Channels() != 3 {
		return fmt.Errorf("%w: expected 3 channels, got %d", ErrInvalidInput, frame.Channels())
	}
	if frame.Type() != gocv.MatTypeCV8UC3 {
		return fmt.Errorf("%w: expected 8-bit channels", ErrInvalidInput)
	}
	return nil
}
