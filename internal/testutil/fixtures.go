// Package testutil builds synthetic frames shared by package tests.
package testutil

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/eightball/internal/imageio"
	"github.com/ayusman/eightball/internal/synth"
)

// TableFrame renders the default synthetic table scene as a BGR frame.
func TableFrame() (*gocv.Mat, error) {
	return SceneFrame(synth.DefaultOptions())
}

// SceneFrame renders a synthetic scene as a BGR frame.
func SceneFrame(opts synth.Options) (*gocv.Mat, error) {
	img, err := synth.Table(opts)
	if err != nil {
		return nil, err
	}

	mat, err := imageio.FromImage(img, imageio.Options{})
	if err != nil {
		return nil, err
	}

	return &mat, nil
}

// BlankFrame returns a black BGR frame.
func BlankFrame(width, height int) *gocv.Mat {
	mat := gocv.Zeros(height, width, gocv.MatTypeCV8UC3)
	return &mat
}

// TableSequence renders n frames of the default scene with the table
// sliding right by step pixels per frame.
func TableSequence(n, step int) ([]*gocv.Mat, error) {
	var frames []*gocv.Mat
	for i := 0; i < n; i++ {
		opts := synth.DefaultOptions()
		opts.Felt = opts.Felt.Add(image.Pt(i*step, 0))

		frame, err := SceneFrame(opts)
		if err != nil {
			CloseAll(frames)
			return nil, err
		}
		frames = append(frames, frame)
	}

	return frames, nil
}

// CloseAll releases every frame.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}
