// Package synth renders synthetic pool table images for tests and demos.
package synth

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/blend"
	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/noise"
)

// Default scene colors.
var (
	ForestGreen = color.RGBA{R: 34, G: 139, B: 34, A: 255}
	RailBrown   = color.RGBA{R: 139, G: 69, B: 19, A: 255}
	Background  = color.RGBA{A: 255}
)

// Options describes the scene to render.
type Options struct {
	Width  int
	Height int

	// Felt is the playing surface. Max is exclusive.
	Felt      image.Rectangle
	FeltColor color.RGBA

	// Rail draws a cushion band of RailThickness pixels centered on Felt
	// grown by RailGap on each side.
	Rail          bool
	RailGap       int
	RailThickness int
	RailColor     color.RGBA

	// Noise is the opacity (0-1) of a gaussian noise layer.
	Noise float64
	// BlurRadius applies a gaussian blur when positive.
	BlurRadius float64
}

// DefaultOptions returns the 640x480 scene with felt spanning (100,100)-(540,380)
// inclusive, surrounded by a 10 pixel brown rail.
func DefaultOptions() Options {
	return Options{
		Width:         640,
		Height:        480,
		Felt:          image.Rect(100, 100, 541, 381),
		FeltColor:     ForestGreen,
		Rail:          true,
		RailGap:       10,
		RailThickness: 10,
		RailColor:     RailBrown,
	}
}

// Table renders the scene.
func Table(opts Options) (*image.RGBA, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", opts.Width, opts.Height)
	}

	img := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(Background), image.Point{}, draw.Src)

	if opts.Rail && opts.RailThickness > 0 {
		center := opts.Felt.Inset(-opts.RailGap)
		half := opts.RailThickness / 2
		draw.Draw(img, center.Inset(-half), image.NewUniform(opts.RailColor), image.Point{}, draw.Src)
		draw.Draw(img, center.Inset(half), image.NewUniform(Background), image.Point{}, draw.Src)
	}

	draw.Draw(img, opts.Felt, image.NewUniform(opts.FeltColor), image.Point{}, draw.Src)

	if opts.Noise > 0 {
		layer := noise.Generate(opts.Width, opts.Height, &noise.Options{Monochrome: true, NoiseFn: noise.Gaussian})
		img = blend.Opacity(img, layer, opts.Noise)
	}

	if opts.BlurRadius > 0 {
		img = blur.Gaussian(img, opts.BlurRadius)
	}

	return img, nil
}

// Save writes img to path, as PNG for ".png" and JPEG otherwise.
func Save(path string, img image.Image) error {
	encoder := imgio.JPEGEncoder(95)
	if strings.EqualFold(filepath.Ext(path), ".png") {
		encoder = imgio.PNGEncoder()
	}

	if err := imgio.Save(path, img, encoder); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
