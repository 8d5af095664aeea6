// Package pipeline runs the calibration stages end to end: pattern detection on every
// pair, per-camera fits, the cache hand-off, the stereo fit and rectification.
package pipeline

import (
	"errors"
	"fmt"
	"image"
	"log"
	"strings"
	"time"

	"fisheye-stereo/internal/calibcache"
	"fisheye-stereo/internal/config"
	"fisheye-stereo/internal/fisheye"
	"fisheye-stereo/internal/fsutil"
	pairimage "fisheye-stereo/internal/image"
	"fisheye-stereo/internal/pattern"
	"fisheye-stereo/internal/stereo"
	"fisheye-stereo/pkg/geometry"

	"github.com/golang/geo/r3"
)

var (
	// ErrMissingInput is returned when a stage lacks the files it depends on.
	ErrMissingInput = errors.New("pipeline: missing input")
	// ErrResolutionMismatch is returned for photographs that differ from the configured size.
	ErrResolutionMismatch = errors.New("pipeline: image resolution mismatch")
)

// Corpus is the set of correspondences detected on both sides of every usable pair.
type Corpus struct {
	Size    geometry.Size
	Indices []int
	Object  [][]r3.Vector
	Left    [][]geometry.Point2D
	Right   [][]geometry.Point2D
	Skipped []int
}

// Frames returns the number of retained pairs.
func (c *Corpus) Frames() int { return len(c.Indices) }

const (
	coverageCells = 16
	lowCoverage   = 0.5
)

// Coverage returns the fraction of each image covered by the detected grids.
func (c *Corpus) Coverage() (left, right float64) {
	return geometry.Coverage(c.Size, c.Left, coverageCells), geometry.Coverage(c.Size, c.Right, coverageCells)
}

// Report summarizes a completed run.
type Report struct {
	PairsFound     int
	FramesUsed     int
	Indices        []int
	Skipped        []int
	ImageSize      geometry.Size
	LeftRMS        float64
	RightRMS       float64
	LeftPerFrame   []float64
	RightPerFrame  []float64
	StereoRMS      float64
	StereoPerFrame []float64
	LeftCoverage   float64
	RightCoverage  float64
	Model          stereo.Model
	Duration       time.Duration
}

func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pairs found:   %d\n", r.PairsFound)
	fmt.Fprintf(&b, "frames used:   %d\n", r.FramesUsed)
	if len(r.Skipped) > 0 {
		fmt.Fprintf(&b, "skipped pairs: %v\n", r.Skipped)
	}
	fmt.Fprintf(&b, "image size:    %s\n", r.ImageSize)
	fmt.Fprintf(&b, "coverage:      left %.0f%%, right %.0f%%\n", 100*r.LeftCoverage, 100*r.RightCoverage)
	fmt.Fprintf(&b, "left rms:      %.4f\n", r.LeftRMS)
	fmt.Fprintf(&b, "right rms:     %.4f\n", r.RightRMS)
	fmt.Fprintf(&b, "stereo rms:    %.4f (%s)\n", r.StereoRMS, r.Model)
	fmt.Fprintf(&b, "duration:      %v", r.Duration.Round(time.Millisecond))
	return b.String()
}

// Pipeline wires the calibration stages to a configuration and a cache.
type Pipeline struct {
	Config *config.Config
	FS     fsutil.FileSystem
	Cache  *calibcache.Cache
	Logger *log.Logger
}

// New returns a pipeline that reads pairs and writes the cache through fsys.
func New(cfg *config.Config, fsys fsutil.FileSystem) *Pipeline {
	return &Pipeline{
		Config: cfg,
		FS:     fsys,
		Cache:  calibcache.New(fsys, cfg.Paths.CacheDir),
	}
}

func (p *Pipeline) logger() *log.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return log.Default()
}

func (p *Pipeline) loadGray(path string) (*image.Gray, error) {
	data, err := p.FS.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingInput, err)
	}
	f, err := pairimage.Decode(path, data)
	if err != nil {
		return nil, err
	}
	return f.Image, nil
}

// LoadPair reads both images of a pair as grayscale.
func (p *Pipeline) LoadPair(pair Pair) (*image.Gray, *image.Gray, error) {
	left, err := p.loadGray(pair.Left)
	if err != nil {
		return nil, nil, err
	}
	right, err := p.loadGray(pair.Right)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

// Run executes every stage and returns the report. Detection misses skip the pair; any
// other failure aborts the run.
func (p *Pipeline) Run() (*Report, error) {
	start := time.Now()
	logger := p.logger()

	corpus, found, err := p.Collect()
	if err != nil {
		return nil, err
	}
	report := &Report{
		PairsFound: found,
		FramesUsed: corpus.Frames(),
		Indices:    corpus.Indices,
		Skipped:    corpus.Skipped,
		ImageSize:  corpus.Size,
	}
	report.LeftCoverage, report.RightCoverage = corpus.Coverage()
	if report.LeftCoverage < lowCoverage || report.RightCoverage < lowCoverage {
		logger.Printf("calibrate: chessboard covers %.0f%%/%.0f%% of the image, corners may be poorly constrained",
			100*report.LeftCoverage, 100*report.RightCoverage)
	}

	logger.Printf("calibrate: left camera from %d frames", corpus.Frames())
	left, err := p.CalibrateCamera(corpus, pairimage.SideLeft)
	if err != nil {
		return nil, err
	}
	report.LeftRMS, report.LeftPerFrame = left.RMS, left.PerFrameRMS

	logger.Printf("calibrate: right camera from %d frames", corpus.Frames())
	right, err := p.CalibrateCamera(corpus, pairimage.SideRight)
	if err != nil {
		return nil, err
	}
	report.RightRMS, report.RightPerFrame = right.RMS, right.PerFrameRMS

	st, err := p.CalibrateStereo(corpus.Size.Height)
	if err != nil {
		return nil, err
	}
	report.StereoRMS = st.RMS
	report.StereoPerFrame = st.PerFrameRMS
	report.Model = st.Model
	report.Duration = time.Since(start)

	logger.Printf("calibrate: complete in %v", report.Duration.Round(time.Millisecond))
	return report, nil
}

// Collect scans the pairs directory and detects the pattern on both sides of every pair.
// It returns the retained correspondences and the number of complete pairs found.
func (p *Pipeline) Collect() (*Corpus, int, error) {
	cfg := p.Config
	logger := p.logger()

	pairs, skipped := ScanPairs(p.FS, cfg.Paths.PairsDir, cfg.Calibration.MaxPairs, logger)
	if len(pairs) == 0 {
		return nil, 0, fmt.Errorf("%w: no stereo pairs in %s", ErrMissingInput, cfg.Paths.PairsDir)
	}

	det := pattern.NewDetector(cfg.Pattern)
	det.SubPix = cfg.SubPix
	det.Logger = logger

	size := cfg.Image.Size()
	corpus := &Corpus{Size: size, Skipped: skipped}
	for _, pair := range pairs {
		logger.Printf("calibrate: import pair %02d", pair.Index)
		l, r, err := p.detectPair(det, pair, size)
		if errors.Is(err, pattern.ErrNotFound) {
			logger.Printf("calibrate: pair %02d ignored, no chessboard found", pair.Index)
			corpus.Skipped = append(corpus.Skipped, pair.Index)
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		corpus.Indices = append(corpus.Indices, pair.Index)
		corpus.Object = append(corpus.Object, cfg.Pattern.ObjectPoints())
		corpus.Left = append(corpus.Left, l)
		corpus.Right = append(corpus.Right, r)
	}
	logger.Printf("calibrate: %d of %d pairs usable", corpus.Frames(), len(pairs))
	return corpus, len(pairs), nil
}

func (p *Pipeline) detectPair(det *pattern.Detector, pair Pair, size geometry.Size) ([]geometry.Point2D, []geometry.Point2D, error) {
	var pts [2][]geometry.Point2D
	for i, path := range []string{pair.Left, pair.Right} {
		gray, err := p.loadGray(path)
		if err != nil {
			return nil, nil, err
		}
		if got := geometry.NewSize(gray.Bounds().Dx(), gray.Bounds().Dy()); got != size {
			return nil, nil, fmt.Errorf("%w: %s is %s, expected %s", ErrResolutionMismatch, path, got, size)
		}
		pts[i], err = det.Detect(gray)
		if err != nil {
			return nil, nil, err
		}
	}
	return pts[0], pts[1], nil
}

// CalibrateCamera fits one side and stores the result in the cache.
func (p *Pipeline) CalibrateCamera(corpus *Corpus, side pairimage.Side) (*fisheye.Calibration, error) {
	pts := corpus.Left
	if side == pairimage.SideRight {
		pts = corpus.Right
	}
	opts := p.Config.FisheyeOptions()
	opts.Logger = p.logger()

	cal, err := fisheye.Calibrate(corpus.Object, pts, corpus.Size, opts)
	if err != nil {
		return nil, fmt.Errorf("%s camera: %w", side, err)
	}
	p.logger().Printf("calibrate: %s camera rms=%.4f frames=%d iterations=%d", side, cal.RMS, corpus.Frames(), cal.Iterations)

	err = p.Cache.SaveCamera(&calibcache.CameraRecord{
		Side:         side,
		ImageSize:    corpus.Size,
		Camera:       cal.Camera,
		RMS:          cal.RMS,
		Map:          cal.Map,
		Frames:       corpus.Indices,
		ObjectPoints: corpus.Object,
		ImagePoints:  pts,
	})
	if err != nil {
		return nil, fmt.Errorf("%s camera: %w", side, err)
	}
	return cal, nil
}

// CalibrateStereo reads both camera records for height from the cache, fits the relative
// pose, rectifies and stores the stereo artifact.
func (p *Pipeline) CalibrateStereo(height int) (*stereo.Calibration, error) {
	logger := p.logger()

	left, err := p.Cache.LoadCamera(height, pairimage.SideLeft)
	if err != nil {
		return nil, fmt.Errorf("stereo stage: %w", err)
	}
	right, err := p.Cache.LoadCamera(height, pairimage.SideRight)
	if err != nil {
		return nil, fmt.Errorf("stereo stage: %w", err)
	}
	if left.ImageSize != right.ImageSize {
		return nil, fmt.Errorf("%w: left calibrated at %s, right at %s", ErrResolutionMismatch, left.ImageSize, right.ImageSize)
	}
	if err := calibcache.CheckPair(left, right); err != nil {
		return nil, fmt.Errorf("stereo stage: %w", err)
	}

	opts := p.Config.StereoOptions()
	opts.Logger = logger
	logger.Printf("calibrate: calibrating cameras together (%s model)", opts.Model)
	cal, err := stereo.Calibrate(left.ObjectPoints, left.ImagePoints, right.ImagePoints, left.Camera, right.Camera, opts)
	if err != nil {
		return nil, fmt.Errorf("stereo stage: %w", err)
	}
	logger.Printf("calibrate: stereo rms=%.4f", cal.RMS)

	rect, err := stereo.Rectify(left.Camera, right.Camera, left.ImageSize, cal.R, cal.T, p.Config.RectifyOptions())
	if err != nil {
		return nil, fmt.Errorf("stereo stage: %w", err)
	}
	maps := stereo.BuildMaps(left.Camera, right.Camera, rect)

	err = p.Cache.SaveStereo(&calibcache.StereoRecord{
		ImageSize:     rect.Size,
		Left:          maps.Left,
		Right:         maps.Right,
		Rectification: *rect,
		Rotation:      cal.R,
		Translation:   cal.T,
		RMS:           cal.RMS,
		Model:         cal.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("stereo stage: %w", err)
	}
	return cal, nil
}
