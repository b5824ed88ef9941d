// Command mktable writes a synthetic pool table image for trying out the detector.
package main

import (
	"flag"
	"fmt"
	"image"
	"log"

	"github.com/ayusman/eightball/internal/synth"
)

func main() {
	out := flag.String("out", "test_table.jpg", "output image path (.jpg or .png)")
	noise := flag.Float64("noise", 0, "gaussian noise opacity, 0-1")
	blur := flag.Float64("blur", 0, "gaussian blur radius")
	noRail := flag.Bool("no-rail", false, "omit the brown rail")
	offset := flag.Int("offset", 0, "shift the table right by this many pixels")
	flag.Parse()

	opts := synth.DefaultOptions()
	opts.Noise = *noise
	opts.BlurRadius = *blur
	opts.Rail = !*noRail
	opts.Felt = opts.Felt.Add(image.Pt(*offset, 0))

	img, err := synth.Table(opts)
	if err != nil {
		log.Fatalf("Failed to render table: %v", err)
	}
	if err := synth.Save(*out, img); err != nil {
		log.Fatalf("Failed to save %s: %v", *out, err)
	}

	fmt.Printf("Created %s\n", *out)
}
