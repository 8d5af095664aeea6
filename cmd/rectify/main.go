// Command rectify applies a cached stereo calibration to a raw image pair.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"fisheye-stereo/internal/calibcache"
	"fisheye-stereo/internal/config"
	"fisheye-stereo/internal/fsutil"
	pairimage "fisheye-stereo/internal/image"
	"fisheye-stereo/internal/preview"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	configPath := flag.String("config", config.DefaultPath, "Path to calibration.json")
	cacheDir := flag.String("cache", "", "Calibration cache directory (overrides config)")
	leftPath := flag.String("left", "", "Raw left image")
	rightPath := flag.String("right", "", "Raw right image")
	leftOut := flag.String("out-left", "", "Rectified left output (.png or .jpg)")
	rightOut := flag.String("out-right", "", "Rectified right output (.png or .jpg)")
	checkOut := flag.String("check", "", "Optional side-by-side output with epipolar guide lines")
	height := flag.Int("height", 0, "Calibration height to use (default: height of the left image)")
	flag.Parse()

	if *leftPath == "" || *rightPath == "" || *leftOut == "" || *rightOut == "" {
		fmt.Println("Usage: rectify -left <image> -right <image> -out-left <image> -out-right <image> [-check <image>]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *cacheDir != "" {
		cfg.Paths.CacheDir = *cacheDir
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
	if left.Size() != right.Size() {
		fmt.Fprintf(os.Stderr, "Image sizes differ: %s vs %s\n", left.Size(), right.Size())
		os.Exit(1)
	}

	h := *height
	if h == 0 {
		h = left.Size().Height
	}

	fsys := fsutil.OSFileSystem{}
	cache := calibcache.New(fsys, cfg.Paths.CacheDir)
	rec, err := cache.LoadStereo(h)
	if err != nil {
		log.Fatalf("No stereo calibration for %dp: %v", h, err)
	}
	if rec.ImageSize != left.Size() {
		log.Printf("rectify: images are %s, calibration is %s", left.Size(), rec.ImageSize)
	}

	rl, rr, err := rec.Maps().Apply(left.Image, right.Image)
	if err != nil {
		log.Fatalf("Rectification failed: %v", err)
	}
	if err := preview.Write(fsys, *leftOut, rl); err != nil {
		log.Fatalf("Failed to write %s: %v", *leftOut, err)
	}
	if err := preview.Write(fsys, *rightOut, rr); err != nil {
		log.Fatalf("Failed to write %s: %v", *rightOut, err)
	}
	fmt.Printf("Rectified %s -> %s\n", *leftPath, *leftOut)
	fmt.Printf("Rectified %s -> %s\n", *rightPath, *rightOut)

	if *checkOut != "" {
		img, err := preview.Rectification(left.Image, right.Image, rec.Maps(), preview.DefaultLineSpacing)
		if err != nil {
			log.Fatalf("Check image failed: %v", err)
		}
		if err := preview.Write(fsys, *checkOut, img); err != nil {
			log.Fatalf("Failed to write %s: %v", *checkOut, err)
		}
		fmt.Printf("Check image: %s\n", *checkOut)
	}
}
