// Command depthmap runs the block matcher on a rectified pair and outputs results.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"fisheye-stereo/internal/disparity"
	"fisheye-stereo/internal/fsutil"
	pairimage "fisheye-stereo/internal/image"
	"fisheye-stereo/internal/preview"
	"fisheye-stereo/internal/tuning"
)

func main() {
	leftPath := flag.String("left", "", "Rectified left image")
	rightPath := flag.String("right", "", "Rectified right image")
	settings := flag.String("settings", tuning.SettingsFile, "Block matcher settings file (defaults are used if missing)")
	prefilter := flag.String("prefilter", "xsobel", "Pre-filter: xsobel or normalized")
	out := flag.String("out", "", "Optional output: reference image next to the colorized depth map")
	width := flag.Int("width", 0, "Resize the output to this width (default: native size)")
	flag.Parse()

	if *leftPath == "" || *rightPath == "" {
		fmt.Println("Usage: depthmap -left <image> -right <image> [-settings 3dmap_set.txt] [-prefilter xsobel|normalized] [-out depth.png [-width N]]")
		os.Exit(1)
	}

	left, err := pairimage.Load(*leftPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load left image: %v\n", err)
		os.Exit(1)
	}
	right, err := pairimage.Load(*rightPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load right image: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded pair: %s\n", left.Size())

	fsys := fsutil.OSFileSystem{}
	params, err := tuning.ReadSettings(fsys, *settings, tuning.DefaultParams())
	switch {
	case errors.Is(err, tuning.ErrNoSettings):
		fmt.Printf("No settings at %s, using defaults\n", *settings)
	case err != nil:
		fmt.Fprintf(os.Stderr, "Failed to read settings: %v\n", err)
		os.Exit(1)
	default:
		fmt.Printf("Settings: %s\n", *settings)
	}

	switch strings.ToLower(*prefilter) {
	case "xsobel":
		params.PreFilterType = disparity.PreFilterXSobel
	case "normalized":
		params.PreFilterType = disparity.PreFilterNormalizedResponse
	default:
		fmt.Fprintf(os.Stderr, "Unknown pre-filter %q\n", *prefilter)
		os.Exit(1)
	}

	fmt.Printf("\nMatcher parameters:\n")
	for _, c := range tuning.Controls {
		v, _ := tuning.Get(params, c.Name)
		fmt.Printf("  %-20s %5d  [%d, %d] %s\n", c.Name, v, c.Min, c.Max, c.Rule)
	}

	engine, err := disparity.NewEngine(params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid parameters: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nMatching...\n")
	m, err := engine.Compute(left.Image, right.Image)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Matching failed: %v\n", err)
		os.Exit(1)
	}

	total := m.Width * m.Height
	valid := m.ValidCount()
	fmt.Printf("\nValid pixels: %d of %d (%.1f%%)\n", valid, total, 100*float64(valid)/float64(total))
	if lo, hi, ok := m.Range(); ok {
		fmt.Printf("Disparity range: %.2f .. %.2f px\n", lo, hi)
	}

	if *out != "" {
		img := preview.Scale(preview.Disparity(left.Image, disparity.Normalize(m)), *width)
		if err := preview.Write(fsys, *out, img); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", *out, err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", *out)
	}
}
