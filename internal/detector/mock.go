package detector

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu      sync.Mutex
	contour []image.Point
	area    float64
	err     error
	calls   int
}

// NewMockDetector creates a new MockDetector that finds nothing.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetContour sets the contour and area returned by Detect.
func (m *MockDetector) SetContour(contour []image.Point, area float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contour = contour
	m.area = area
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect has been called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured contour with an empty mask sized to the frame.
func (m *MockDetector) Detect(frame *gocv.Mat) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}

	rows, cols := 1, 1
	if frame != nil && !frame.Empty() {
		rows, cols = frame.Rows(), frame.Cols()
	}

	return &Result{
		Contour: append([]image.Point(nil), m.contour...),
		Area:    m.area,
		Mask:    gocv.Zeros(rows, cols, gocv.MatTypeCV8UC1),
	}, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// RectangleContour returns the four corners of r in the order OpenCV traces
// an external rectangle contour.
func RectangleContour(r image.Rectangle) []image.Point {
	return []image.Point{
		{X: r.Min.X, Y: r.Min.Y},
		{X: r.Min.X, Y: r.Max.Y},
		{X: r.Max.X, Y: r.Max.Y},
		{X: r.Max.X, Y: r.Min.Y},
	}
}
