package detector

import (
	"image"

	"gocv.io/x/gocv"
)

// CornerEpsilon is the polygon simplification tolerance as a fraction of the
// contour perimeter.
const CornerEpsilon = 0.02

// Result is the outcome of a single Detect call.
type Result struct {
	// Contour is the table boundary, or nil when no table was found.
	Contour []image.Point

	// Area is the enclosed area of Contour, zero when not found.
	Area float64

	// Mask is the cleaned binary mask (0 or 255), the same size as the frame.
	Mask gocv.Mat
}

// Found reports whether a table contour was selected.
func (r *Result) Found() bool {
	return r != nil && len(r.Contour) > 0
}

// Corners simplifies the contour to its dominant vertices.
// A clean rectangular table yields four points.
func (r *Result) Corners() []image.Point {
	if !r.Found() {
		return nil
	}

	contour := gocv.NewPointVectorFromPoints(r.Contour)
	defer contour.Close()

	epsilon := CornerEpsilon * gocv.ArcLength(contour, true)
	approx := gocv.ApproxPolyDP(contour, epsilon, true)
	defer approx.Close()

	return approx.ToPoints()
}

// BoundingBox returns the upright bounding rectangle of the contour.
func (r *Result) BoundingBox() image.Rectangle {
	if !r.Found() {
		return image.Rectangle{}
	}

	contour := gocv.NewPointVectorFromPoints(r.Contour)
	defer contour.Close()

	return gocv.BoundingRect(contour)
}

// Close releases the mask.
func (r *Result) Close() error {
	if r == nil {
		return nil
	}
	return r.Mask.Close()
}
