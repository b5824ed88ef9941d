// Package imageio converts still images between files, byte streams and GoCV frames.
package imageio

import (
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// ErrUnsupportedImage is returned when input cannot be decoded as an image.
var ErrUnsupportedImage = errors.New("unsupported image")

// Options controls decoding.
type Options struct {
	// MaxDimension downscales images whose width or height exceeds it,
	// preserving aspect ratio. Zero disables scaling.
	MaxDimension int
}

// Load reads an image file into a BGR frame, applying EXIF orientation.
// The caller must Close the returned Mat.
func Load(path string, opts Options) (gocv.Mat, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: %s: %v", ErrUnsupportedImage, path, err)
	}
	return FromImage(img, opts)
}

// Decode reads an encoded image from r into a BGR frame.
// The caller must Close the returned Mat.
func Decode(r io.Reader, opts Options) (gocv.Mat, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: %w", ErrUnsupportedImage, err)
	}
	return FromImage(img, opts)
}

// FromImage converts img to a BGR frame, downscaling it first if needed.
func FromImage(img image.Image, opts Options) (gocv.Mat, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return gocv.NewMat(), fmt.Errorf("%w: image has no pixels", ErrUnsupportedImage)
	}

	if limit := opts.MaxDimension; limit > 0 && (b.Dx() > limit || b.Dy() > limit) {
		img = imaging.Fit(img, limit, limit, imaging.Lanczos)
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("convert image: %w", err)
	}
	return mat, nil
}

// EncodeJPEG encodes a frame or mask as JPEG.
func EncodeJPEG(mat gocv.Mat) ([]byte, error) {
	if mat.Empty() {
		return nil, errors.New("cannot encode empty frame")
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}

// Save writes a frame to path; the format follows the file extension.
func Save(path string, mat gocv.Mat) error {
	if ok := gocv.IMWrite(path, mat); !ok {
		return fmt.Errorf("failed to write %s", path)
	}
	return nil
}
