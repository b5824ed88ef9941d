// Package detector locates the felt playing surface of a pool table in a video frame.
package detector

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// ErrInvalidInput is returned when a frame is empty, has a non-positive
// dimension, or is not a 3-channel 8-bit image.
var ErrInvalidInput = errors.New("invalid input frame")

// Detector defines the interface for table detection implementations.
type Detector interface {
	// Detect classifies the frame and returns the best table candidate.
	// A result without a contour means no table was found; that is not an error.
	// The caller owns the returned Result and must Close it.
	Detect(frame *gocv.Mat) (*Result, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Channel limits in the OpenCV 8-bit HSV convention.
const (
	MaxHue        = 180
	MaxSaturation = 255
	MaxValue      = 255
)

// HSV is a single color in OpenCV's 8-bit HSV convention (hue 0-180).
type HSV struct {
	H int `json:"h"`
	S int `json:"s"`
	V int `json:"v"`
}

// HSVRange is an inclusive per-channel threshold range.
type HSVRange struct {
	Lower HSV `json:"lower"`
	Upper HSV `json:"upper"`
}

// Contains reports whether c lies inside the range on every channel.
func (r HSVRange) Contains(c HSV) bool {
	return c.H >= r.Lower.H && c.H <= r.Upper.H &&
		c.S >= r.Lower.S && c.S <= r.Upper.S &&
		c.V >= r.Lower.V && c.V <= r.Upper.V
}

// Midpoint returns the center of the range, rounded down.
func (r HSVRange) Midpoint() HSV {
	return HSV{
		H: (r.Lower.H + r.Upper.H) / 2,
		S: (r.Lower.S + r.Upper.S) / 2,
		V: (r.Lower.V + r.Upper.V) / 2,
	}
}

func (r HSVRange) lowerScalar() gocv.Scalar {
	return gocv.NewScalar(float64(r.Lower.H), float64(r.Lower.S), float64(r.Lower.V), 0)
}

func (r HSVRange) upperScalar() gocv.Scalar {
	return gocv.NewScalar(float64(r.Upper.H), float64(r.Upper.S), float64(r.Upper.V), 0)
}

// Config holds the thresholds used by the table detector.
type Config struct {
	// Range is the felt color range in HSV.
	Range HSVRange `json:"range"`

	// MinArea is the smallest enclosed contour area accepted as a table.
	MinArea float64 `json:"min_area"`

	// KernelSize is the side of the square structuring element used for
	// morphological cleanup.
	KernelSize int `json:"kernel_size"`
}

// Default detector settings for green felt.
const (
	DefaultMinArea    = 1000
	DefaultKernelSize = 5
)

// GreenFelt is the HSV range of a typical green pool table cloth.
var GreenFelt = HSVRange{
	Lower: HSV{H: 35, S: 50, V: 50},
	Upper: HSV{H: 85, S: 255, V: 255},
}

// DefaultConfig returns a Config tuned for green felt.
func DefaultConfig() Config {
	return Config{
		Range:      GreenFelt,
		MinArea:    DefaultMinArea,
		KernelSize: DefaultKernelSize,
	}
}

// Validate checks that every threshold lies inside its channel range and
// that each lower bound does not exceed its upper bound.
func (c Config) Validate() error {
	checks := []struct {
		name       string
		lo, hi, mx int
	}{
		{"hue", c.Range.Lower.H, c.Range.Upper.H, MaxHue},
		{"saturation", c.Range.Lower.S, c.Range.Upper.S, MaxSaturation},
		{"value", c.Range.Lower.V, c.Range.Upper.V, MaxValue},
	}
	for _, ch := range checks {
		if ch.lo < 0 || ch.hi > ch.mx {
			return fmt.Errorf("%s bounds must be within 0-%d, got %d-%d", ch.name, ch.mx, ch.lo, ch.hi)
		}
		if ch.lo > ch.hi {
			return fmt.Errorf("%s lower bound %d exceeds upper bound %d", ch.name, ch.lo, ch.hi)
		}
	}

	if c.MinArea < 0 {
		return fmt.Errorf("min area must not be negative, got %v", c.MinArea)
	}
	if c.KernelSize < 1 {
		return fmt.Errorf("kernel size must be at least 1, got %d", c.KernelSize)
	}

	return nil
}
