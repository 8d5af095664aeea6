// Command calibrate runs the fisheye stereo calibration over a directory of
// chessboard pairs and writes the calibration cache.
package main

import (
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"

	"fisheye-stereo/internal/config"
	"fisheye-stereo/internal/fsutil"
	pairimage "fisheye-stereo/internal/image"
	"fisheye-stereo/internal/pattern"
	"fisheye-stereo/internal/pipeline"
	"fisheye-stereo/internal/preview"
	"fisheye-stereo/internal/report"
	"fisheye-stereo/internal/stereo"
	"fisheye-stereo/internal/version"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	configPath := flag.String("config", config.DefaultPath, "Path to calibration.json")
	pairsDir := flag.String("pairs", "", "Directory holding left_NN.png/right_NN.png (overrides config)")
	cacheDir := flag.String("cache", "", "Calibration cache directory (overrides config)")
	outDir := flag.String("out", "", "Directory for previews and the report chart (overrides config)")
	model := flag.String("model", "", "Stereo projection model: fisheye or pinhole (overrides config)")
	previews := flag.Bool("preview", false, "Write undistortion, rectification and difference previews of the first usable pair")
	chart := flag.Bool("chart", false, "Write the per-frame reprojection error chart")
	corners := flag.Bool("corners", false, "Write the detected corners of the first usable pair")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *pairsDir != "" {
		cfg.Paths.PairsDir = *pairsDir
	}
	if *cacheDir != "" {
		cfg.Paths.CacheDir = *cacheDir
	}
	if *outDir != "" {
		cfg.Paths.OutputDir = *outDir
	}
	if *model != "" {
		m, err := stereo.ParseModel(*model)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid -model: %v\n", err)
			os.Exit(1)
		}
		cfg.Stereo.Model = m
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	fsys := fsutil.OSFileSystem{}
	p := pipeline.New(cfg, fsys)

	fmt.Printf("=== Calibration ===\n")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Printf("Pattern: %dx%d corners, square %.2f\n", cfg.Pattern.Columns, cfg.Pattern.Rows, cfg.Pattern.SquareSize)
	fmt.Printf("Pairs:   %s\n", cfg.Paths.PairsDir)
	fmt.Printf("Cache:   %s\n", cfg.Paths.CacheDir)
	fmt.Println()

	rep, err := p.Run()
	if err != nil {
		log.Fatalf("Calibration failed: %v", err)
	}

	fmt.Printf("\n=== Report ===\n")
	fmt.Println(rep.String())

	if !*previews && !*chart && !*corners {
		return
	}
	if err := fsys.MkdirAll(cfg.Paths.OutputDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	if *chart {
		path := filepath.Join(cfg.Paths.OutputDir, "reprojection_error.png")
		if err := report.WriteErrorChart(fsys, path, rep); err != nil {
			log.Fatalf("Failed to write chart: %v", err)
		}
		fmt.Printf("Chart:   %s\n", path)
	}

	if len(rep.Indices) == 0 {
		return
	}
	left, right := pipeline.PairPaths(cfg.Paths.PairsDir, rep.Indices[0])
	pair := pipeline.Pair{Index: rep.Indices[0], Left: left, Right: right}

	if *corners {
		if err := writeCorners(p, pair); err != nil {
			log.Fatalf("Failed to write corners: %v", err)
		}
	}
	if *previews {
		if err := writePreviews(p, pair, rep.ImageSize.Height); err != nil {
			log.Fatalf("Failed to write previews: %v", err)
		}
	}
}

// writeCorners draws the detected grid of both sides of pair.
func writeCorners(p *pipeline.Pipeline, pair pipeline.Pair) error {
	left, right, err := p.LoadPair(pair)
	if err != nil {
		return err
	}
	det := pattern.NewDetector(p.Config.Pattern)
	det.SubPix = p.Config.SubPix

	for _, side := range []pairimage.Side{pairimage.SideLeft, pairimage.SideRight} {
		gray := left
		if side == pairimage.SideRight {
			gray = right
		}
		pts, err := det.Detect(gray)
		if err != nil {
			return fmt.Errorf("%s image: %w", side, err)
		}
		img, err := det.DrawCorners(gray, pts)
		if err != nil {
			return err
		}
		path := filepath.Join(p.Config.Paths.OutputDir, fmt.Sprintf("corners_%s_%02d.png", side, pair.Index))
		if err := preview.Write(p.FS, path, img); err != nil {
			return err
		}
		fmt.Printf("Corners: %s\n", path)
	}
	return nil
}

// writePreviews renders the single-camera undistortion, the rectified pair with epipolar
// guide lines and the rectified difference image.
func writePreviews(p *pipeline.Pipeline, pair pipeline.Pair, height int) error {
	left, right, err := p.LoadPair(pair)
	if err != nil {
		return err
	}

	leftRec, err := p.Cache.LoadCamera(height, pairimage.SideLeft)
	if err != nil {
		return err
	}
	rightRec, err := p.Cache.LoadCamera(height, pairimage.SideRight)
	if err != nil {
		return err
	}
	stereoRec, err := p.Cache.LoadStereo(height)
	if err != nil {
		return err
	}

	undistorted, err := preview.Undistortion(left, right, leftRec.Map, rightRec.Map)
	if err != nil {
		return fmt.Errorf("undistortion preview: %w", err)
	}
	rectified, err := preview.Rectification(left, right, stereoRec.Maps(), preview.DefaultLineSpacing)
	if err != nil {
		return fmt.Errorf("rectification preview: %w", err)
	}
	rl, rr, err := stereoRec.Maps().Apply(left, right)
	if err != nil {
		return err
	}

	images := []struct {
		name string
		img  image.Image
	}{
		{"undistorted", undistorted},
		{"rectified", rectified},
		{"difference", preview.Difference(rl, rr)},
	}
	for _, out := range images {
		path := filepath.Join(p.Config.Paths.OutputDir, fmt.Sprintf("%s_%02d.png", out.name, pair.Index))
		if err := preview.Write(p.FS, path, out.img); err != nil {
			return err
		}
		fmt.Printf("Preview: %s\n", path)
	}
	return nil
}
