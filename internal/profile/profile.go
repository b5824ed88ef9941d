// Package profile provides named felt color profiles for the table detector.
package profile

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"sort"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/ayusman/eightball/internal/detector"
)

// ErrUnknownProfile is returned when a built-in profile name is not recognized.
var ErrUnknownProfile = errors.New("unknown profile")

// DefaultName is the profile used when none is selected.
const DefaultName = "green"

// Profile is a named detector configuration.
type Profile struct {
	Name   string
	Config detector.Config
}

var builtins = map[string]Profile{
	"green": {
		Name:   "green",
		Config: detector.DefaultConfig(),
	},
	"blue": {
		Name: "blue",
		Config: detector.Config{
			Range: detector.HSVRange{
				Lower: detector.HSV{H: 90, S: 50, V: 50},
				Upper: detector.HSV{H: 130, S: 255, V: 255},
			},
			MinArea:    detector.DefaultMinArea,
			KernelSize: detector.DefaultKernelSize,
		},
	},
}

// Builtins returns the built-in profiles sorted by name.
func Builtins() []Profile {
	profiles := make([]Profile, 0, len(builtins))
	for _, p := range builtins {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].Name < profiles[j].Name
	})
	return profiles
}

// Lookup returns the built-in profile with the given name.
func Lookup(name string) (Profile, error) {
	p, ok := builtins[strings.ToLower(name)]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p, nil
}

// Tolerance controls how a sampled felt color is widened into a range.
type Tolerance struct {
	// Hue is the half-width of the hue window in OpenCV units (0-180).
	Hue int
	// MinSaturation and MinValue are the lower saturation and value bounds.
	MinSaturation int
	MinValue      int
}

// DefaultTolerance matches the width of the green felt range.
var DefaultTolerance = Tolerance{Hue: 25, MinSaturation: 50, MinValue: 50}

// FromColor builds a profile around a sampled felt color given as "#RRGGBB".
// Hue windows that would wrap around red are clamped at 0 and 180.
func FromColor(name, hex string, tol Tolerance) (Profile, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return Profile{}, fmt.Errorf("invalid color %q: %w", hex, err)
	}

	center := fromColorful(c)
	cfg := detector.Config{
		Range: detector.HSVRange{
			Lower: detector.HSV{H: clamp(center.H-tol.Hue, detector.MaxHue), S: tol.MinSaturation, V: tol.MinValue},
			Upper: detector.HSV{H: clamp(center.H+tol.Hue, detector.MaxHue), S: detector.MaxSaturation, V: detector.MaxValue},
		},
		MinArea:    detector.DefaultMinArea,
		KernelSize: detector.DefaultKernelSize,
	}
	if err := cfg.Validate(); err != nil {
		return Profile{}, err
	}

	return Profile{Name: name, Config: cfg}, nil
}

// RGBToHSV converts a color to OpenCV's 8-bit HSV convention.
func RGBToHSV(c color.Color) detector.HSV {
	cf, _ := colorful.MakeColor(c)
	return fromColorful(cf)
}

// HSVToRGBA converts an OpenCV 8-bit HSV color to an opaque RGBA color.
func HSVToRGBA(c detector.HSV) color.RGBA {
	r, g, b := colorful.Hsv(float64(c.H)*2, float64(c.S)/255, float64(c.V)/255).Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func fromColorful(c colorful.Color) detector.HSV {
	h, s, v := c.Hsv()
	return detector.HSV{
		H: clamp(int(math.Round(h/2)), detector.MaxHue),
		S: clamp(int(math.Round(s*255)), detector.MaxSaturation),
		V: clamp(int(math.Round(v*255)), detector.MaxValue),
	}
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
