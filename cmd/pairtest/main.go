// Command pairtest runs chessboard detection on every calibration pair and prints results.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"fisheye-stereo/internal/config"
	"fisheye-stereo/internal/fsutil"
	pairimage "fisheye-stereo/internal/image"
	"fisheye-stereo/internal/pattern"
	"fisheye-stereo/internal/pipeline"
	"fisheye-stereo/internal/preview"
	"fisheye-stereo/pkg/geometry"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to calibration.json")
	pairsDir := flag.String("pairs", "", "Directory holding left_NN.png/right_NN.png (overrides config)")
	cornersDir := flag.String("corners", "", "Write left|right corner overlays for every pair here")
	verbose := flag.Bool("v", false, "Log detector progress")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *pairsDir != "" {
		cfg.Paths.PairsDir = *pairsDir
	}

	logger := log.New(io.Discard, "", 0)
	if *verbose {
		logger = log.Default()
	}

	fsys := fsutil.OSFileSystem{}
	p := pipeline.New(cfg, fsys)
	p.Logger = logger

	pairs, skipped := pipeline.ScanPairs(fsys, cfg.Paths.PairsDir, cfg.Calibration.MaxPairs, logger)
	fmt.Printf("=== Scanning %s ===\n", cfg.Paths.PairsDir)
	fmt.Printf("Complete pairs: %d\n", len(pairs))
	if len(skipped) > 0 {
		fmt.Printf("Single-sided:   %v\n", skipped)
	}
	if len(pairs) == 0 {
		os.Exit(1)
	}
	if *cornersDir != "" {
		if err := fsys.MkdirAll(*cornersDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create %s: %v\n", *cornersDir, err)
			os.Exit(1)
		}
	}

	det := pattern.NewDetector(cfg.Pattern)
	det.SubPix = cfg.SubPix
	det.Logger = logger

	fmt.Printf("\n=== Detecting %dx%d corners ===\n", cfg.Pattern.Columns, cfg.Pattern.Rows)
	fmt.Printf("%-6s %-10s %-8s %-8s %10s %10s\n", "Pair", "Size", "Left", "Right", "Span L", "Span R")

	usable := 0
	for _, pair := range pairs {
		left, right, err := p.LoadPair(pair)
		if err != nil {
			fmt.Printf("%02d     %v\n", pair.Index, err)
			continue
		}
		size := geometry.NewSize(left.Bounds().Dx(), left.Bounds().Dy())

		lpts, lerr := det.Detect(left)
		rpts, rerr := det.Detect(right)
		fmt.Printf("%02d     %-10s %-8s %-8s %10s %10s\n", pair.Index, size,
			status(lerr), status(rerr), span(lpts), span(rpts))
		if lerr == nil && rerr == nil {
			usable++
		}

		if *cornersDir != "" && lerr == nil && rerr == nil {
			limg, err := det.DrawCorners(left, lpts)
			if err != nil {
				continue
			}
			rimg, err := det.DrawCorners(right, rpts)
			if err != nil {
				continue
			}
			path := filepath.Join(*cornersDir, fmt.Sprintf("corners_%02d.png", pair.Index))
			if err := preview.Write(fsys, path, pairimage.SideBySide(limg, rimg).Render()); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", path, err)
			}
		}
	}

	fmt.Printf("\nUsable pairs: %d of %d\n", usable, len(pairs))
	if usable < cfg.Calibration.MinFrames {
		fmt.Printf("Too few for calibration (need %d)\n", cfg.Calibration.MinFrames)
		os.Exit(1)
	}
}

func status(err error) string {
	switch {
	case err == nil:
		return "found"
	case errors.Is(err, pattern.ErrNotFound):
		return "missing"
	default:
		return "error"
	}
}

// span is the distance between the first and last detected corner.
func span(pts []geometry.Point2D) string {
	if len(pts) < 2 {
		return "-"
	}
	return fmt.Sprintf("%.1f", pts[0].Distance(pts[len(pts)-1]))
}
