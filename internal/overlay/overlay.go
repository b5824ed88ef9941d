// Package overlay draws detection results onto frames for visual debugging.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/eightball/internal/detector"
)

// Drawing style
var (
	ContourColor = color.RGBA{G: 255, A: 255}
	CornerColor  = color.RGBA{R: 255, A: 255}
	BannerColor  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

const (
	ContourThickness = 2
	CornerRadius     = 5
)

// Summary is a compact description of a detection result.
type Summary struct {
	Found   bool             `json:"found"`
	Area    float64          `json:"area"`
	Contour []image.Point    `json:"contour,omitempty"`
	Corners []image.Point    `json:"corners,omitempty"`
	Box     *image.Rectangle `json:"bbox,omitempty"`
}

// Summarize extracts the serializable parts of res.
func Summarize(res *detector.Result) Summary {
	if !res.Found() {
		return Summary{}
	}

	box := res.BoundingBox()
	return Summary{
		Found:   true,
		Area:    res.Area,
		Contour: res.Contour,
		Corners: res.Corners(),
		Box:     &box,
	}
}

// Label returns the status line shown on the frame.
func (s Summary) Label() string {
	if !s.Found {
		return "No table detected"
	}
	return fmt.Sprintf("Table: %d corners", len(s.Corners))
}

// Draw renders the contour, its corners and a status banner onto frame.
func Draw(frame *gocv.Mat, s Summary) {
	if s.Found {
		contours := gocv.NewPointsVectorFromPoints([][]image.Point{s.Contour})
		gocv.DrawContours(frame, contours, -1, ContourColor, ContourThickness)
		contours.Close()

		for _, p := range s.Corners {
			gocv.Circle(frame, p, CornerRadius, CornerColor, -1)
		}
	}

	gocv.PutText(frame, s.Label(), image.Pt(10, 24), gocv.FontHersheySimplex, 0.6, BannerColor, 2)
}

// maskPreview converts a single-channel mask into a 3-channel image so it
// can be shown or concatenated next to a frame. The caller must Close it.
func maskPreview(mask gocv.Mat) gocv.Mat {
	preview := gocv.NewMat()
	if mask.Channels() == 1 {
		gocv.CvtColor(mask, &preview, gocv.ColorGrayToBGR)
	} else {
		mask.CopyTo(&preview)
	}
	return preview
}

// SideBySide places the annotated frame and the mask preview next to each
// other. Both inputs must have the same height. The caller must Close the result.
func SideBySide(frame, mask gocv.Mat) gocv.Mat {
	preview := maskPreview(mask)
	defer preview.Close()

	out := gocv.NewMat()
	gocv.Hconcat(frame, preview, &out)
	return out
}
