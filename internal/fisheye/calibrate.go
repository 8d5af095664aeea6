package fisheye

import (
	"errors"
	"fmt"
	"log"
	"math"

	"fisheye-stereo/internal/lsq"
	"fisheye-stereo/internal/remap"
	"fisheye-stereo/pkg/geometry"

	"github.com/golang/geo/r3"
)

// CalibFlag selects which parameters the calibration estimates.
type CalibFlag int

const (
	// CalibRecomputeExtrinsic re-estimates every view's pose jointly with the intrinsics on
	// each iteration instead of freezing the initial homography poses.
	CalibRecomputeExtrinsic CalibFlag = 1 << iota
	// CalibFixSkew keeps the skew coefficient at zero.
	CalibFixSkew
	CalibFixK1
	CalibFixK2
	CalibFixK3
	CalibFixK4
	// CalibFixPrincipalPoint keeps the principal point at the image centre.
	CalibFixPrincipalPoint
)

// DefaultFlags matches the usual wide-angle setup: joint poses, no skew.
const DefaultFlags = CalibRecomputeExtrinsic | CalibFixSkew

const (
	// MinFrames is the fewest views a fit accepts.
	MinFrames = 3
	// RecommendedFrames is the fewest views that give a stable wide-angle fit in practice.
	RecommendedFrames = 10
)

var (
	// ErrTooFewFrames is returned when fewer than Options.MinFrames views are supplied.
	ErrTooFewFrames = errors.New("fisheye: too few frames")
	// ErrInconsistentPoints is returned when object and image point sets are not aligned.
	ErrInconsistentPoints = errors.New("fisheye: object/image points are not aligned")
)

// Options controls a calibration run.
type Options struct {
	Flags     CalibFlag
	MaxIter   int
	Epsilon   float64
	MinFrames int
	Logger    *log.Logger
}

// DefaultOptions returns the termination criterion (30 iterations, 1e-6) and DefaultFlags.
func DefaultOptions() Options {
	return Options{
		Flags:     DefaultFlags,
		MaxIter:   30,
		Epsilon:   1e-6,
		MinFrames: MinFrames,
	}
}

// Calibration is the immutable result of a single-camera fit.
type Calibration struct {
	Camera      Camera
	ImageSize   geometry.Size
	RMS         float64
	PerFrameRMS []float64
	Poses       []Pose
	Iterations  int
	Converged   bool
	// Map is the undistortion lookup table at ImageSize (identity rectification, K as new matrix).
	Map *remap.Map
}

// Calibrate fits intrinsics and distortion to views of a planar pattern by minimizing the
// reprojection error with Levenberg-Marquardt.
func Calibrate(object [][]r3.Vector, image [][]geometry.Point2D, size geometry.Size, opts Options) (*Calibration, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if opts.MinFrames <= 0 {
		opts.MinFrames = MinFrames
	}
	if size.Empty() {
		return nil, fmt.Errorf("fisheye: invalid image size %s", size)
	}
	if len(object) != len(image) {
		return nil, fmt.Errorf("%w: %d object sets vs %d image sets", ErrInconsistentPoints, len(object), len(image))
	}
	if len(object) < opts.MinFrames {
		return nil, fmt.Errorf("%w: got %d, need %d", ErrTooFewFrames, len(object), opts.MinFrames)
	}
	total := 0
	for i := range object {
		if len(object[i]) != len(image[i]) || len(object[i]) < 4 {
			return nil, fmt.Errorf("%w: frame %d has %d object and %d image points", ErrInconsistentPoints, i, len(object[i]), len(image[i]))
		}
		total += len(object[i])
	}
	if len(object) < RecommendedFrames {
		logger.Printf("fisheye: only %d frames, fits below %d frames are often unstable", len(object), RecommendedFrames)
	}

	w, h := float64(size.Width), float64(size.Height)
	f0 := math.Max(w, h) / math.Pi
	cam := Camera{K: Intrinsics{Fx: f0, Fy: f0, Cx: (w - 1) / 2, Cy: (h - 1) / 2}}

	poses := make([]Pose, len(object))
	for i := range object {
		pose, err := InitExtrinsics(cam, object[i], image[i])
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		poses[i] = pose
	}

	layout := paramLayout{flags: opts.Flags, frames: len(object)}
	problem := lsq.Problem{
		M: 2 * total,
		Residuals: func(dst, x []float64) {
			c, ps := layout.unpack(x, cam, poses)
			k := 0
			for i := range object {
				proj := c.Project(object[i], ps[i])
				for j, p := range proj {
					dst[k] = p.X - image[i][j].X
					dst[k+1] = p.Y - image[i][j].Y
					k += 2
				}
			}
		},
	}

	res, err := lsq.Minimize(problem, layout.pack(cam, poses), lsq.Settings{MaxIterations: opts.MaxIter, Epsilon: opts.Epsilon})
	if err != nil {
		return nil, fmt.Errorf("fisheye calibration failed: %w", err)
	}
	cam, poses = layout.unpack(res.X, cam, poses)

	rms, perFrame := ReprojectionError(cam, object, image, poses)
	if math.IsNaN(rms) || math.IsInf(rms, 0) {
		return nil, fmt.Errorf("fisheye calibration diverged: rms=%v", rms)
	}

	return &Calibration{
		Camera:      cam,
		ImageSize:   size,
		RMS:         rms,
		PerFrameRMS: perFrame,
		Poses:       poses,
		Iterations:  res.Iterations,
		Converged:   res.Converged,
		Map:         cam.UndistortMap(size),
	}, nil
}

// ReprojectionError returns the overall and per-view RMS distance between observed and
// projected points.
func ReprojectionError(c Camera, object [][]r3.Vector, image [][]geometry.Point2D, poses []Pose) (float64, []float64) {
	perFrame := make([]float64, len(object))
	var sum float64
	var n int
	for i := range object {
		proj := c.Project(object[i], poses[i])
		var frameSum float64
		for j, p := range proj {
			d := p.Distance(image[i][j])
			frameSum += d * d
		}
		if len(proj) > 0 {
			perFrame[i] = math.Sqrt(frameSum / float64(len(proj)))
		}
		sum += frameSum
		n += len(proj)
	}
	if n == 0 {
		return 0, perFrame
	}
	return math.Sqrt(sum / float64(n)), perFrame
}

// paramLayout maps between the optimizer's flat vector and the camera/pose structures.
// Intrinsics come first in the order fx fy [cx cy] [skew] [k1..k4], followed by six
// values per view when extrinsics are recomputed.
type paramLayout struct {
	flags  CalibFlag
	frames int
}

func (l paramLayout) has(f CalibFlag) bool {
	return l.flags&f != 0
}

func (l paramLayout) pack(c Camera, poses []Pose) []float64 {
	x := []float64{c.K.Fx, c.K.Fy}
	if !l.has(CalibFixPrincipalPoint) {
		x = append(x, c.K.Cx, c.K.Cy)
	}
	if !l.has(CalibFixSkew) {
		x = append(x, c.K.Skew)
	}
	for i, fix := range []CalibFlag{CalibFixK1, CalibFixK2, CalibFixK3, CalibFixK4} {
		if !l.has(fix) {
			x = append(x, c.D[i])
		}
	}
	if l.has(CalibRecomputeExtrinsic) {
		for _, p := range poses {
			x = poseToSlice(p, x)
		}
	}
	return x
}

// unpack overlays x onto the fixed values in base and basePoses.
func (l paramLayout) unpack(x []float64, base Camera, basePoses []Pose) (Camera, []Pose) {
	c := base
	i := 0
	next := func() float64 {
		v := x[i]
		i++
		return v
	}
	c.K.Fx = next()
	c.K.Fy = next()
	if !l.has(CalibFixPrincipalPoint) {
		c.K.Cx = next()
		c.K.Cy = next()
	}
	if !l.has(CalibFixSkew) {
		c.K.Skew = next()
	}
	for k, fix := range []CalibFlag{CalibFixK1, CalibFixK2, CalibFixK3, CalibFixK4} {
		if !l.has(fix) {
			c.D[k] = next()
		}
	}
	if !l.has(CalibRecomputeExtrinsic) {
		return c, basePoses
	}
	poses := make([]Pose, l.frames)
	for f := range poses {
		poses[f] = poseFromSlice(x[i : i+6])
		i += 6
	}
	return c, poses
}
