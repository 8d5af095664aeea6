package stereo

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"

	"fisheye-stereo/internal/fisheye"
	"fisheye-stereo/internal/lsq"
	"fisheye-stereo/pkg/geometry"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat"
)

// ErrMismatchedViews is returned when the left and right point sets do not describe the
// same views of the same pattern.
var ErrMismatchedViews = errors.New("stereo: left/right views do not match")

// Options controls the relative-pose fit.
type Options struct {
	Model   Model
	MaxIter int
	Epsilon float64
	Logger  *log.Logger
}

// DefaultOptions returns the fisheye model with (30, 0.01) termination.
func DefaultOptions() Options {
	return Options{Model: ModelFisheye, MaxIter: 30, Epsilon: 0.01}
}

// Calibration is the relative pose of the right camera: x_right = R * x_left + T.
type Calibration struct {
	R           geometry.Mat3
	T           r3.Vector
	RMS         float64
	PerFrameRMS []float64
	Model       Model
	Iterations  int
	Converged   bool
}

// Calibrate estimates R and T from views of the pattern seen by both cameras, keeping the
// intrinsics of both cameras fixed.
func Calibrate(object [][]r3.Vector, left, right [][]geometry.Point2D, leftCam, rightCam fisheye.Camera, opts Options) (*Calibration, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if len(object) == 0 || len(object) != len(left) || len(object) != len(right) {
		return nil, fmt.Errorf("%w: %d object, %d left, %d right views", ErrMismatchedViews, len(object), len(left), len(right))
	}
	total := 0
	for i := range object {
		if len(left[i]) != len(object[i]) || len(right[i]) != len(object[i]) {
			return nil, fmt.Errorf("%w: view %d has %d/%d/%d points", ErrMismatchedViews, i, len(object[i]), len(left[i]), len(right[i]))
		}
		total += len(object[i])
	}

	leftPoses := make([]fisheye.Pose, len(object))
	var oms, ts [3][]float64
	for i := range object {
		lp, err := fisheye.InitExtrinsics(leftCam, object[i], left[i])
		if err != nil {
			return nil, fmt.Errorf("left view %d: %w", i, err)
		}
		rp, err := fisheye.InitExtrinsics(rightCam, object[i], right[i])
		if err != nil {
			return nil, fmt.Errorf("right view %d: %w", i, err)
		}
		leftPoses[i] = lp

		rl := geometry.Rodrigues(lp.Rotation)
		rr := geometry.Rodrigues(rp.Rotation)
		rel := rr.Mul(rl.T())
		om := rel.RotationVector()
		t := rp.Translation.Sub(rel.Apply(lp.Translation))
		for k, v := range [3]float64{om.X, om.Y, om.Z} {
			oms[k] = append(oms[k], v)
		}
		for k, v := range [3]float64{t.X, t.Y, t.Z} {
			ts[k] = append(ts[k], v)
		}
	}

	x0 := []float64{median(oms[0]), median(oms[1]), median(oms[2]), median(ts[0]), median(ts[1]), median(ts[2])}
	for _, p := range leftPoses {
		x0 = append(x0, p.Rotation.X, p.Rotation.Y, p.Rotation.Z, p.Translation.X, p.Translation.Y, p.Translation.Z)
	}

	projL := opts.Model.projector(leftCam)
	projR := opts.Model.projector(rightCam)
	problem := lsq.Problem{
		M: 4 * total,
		Residuals: func(dst, x []float64) {
			rel := geometry.Rodrigues(r3.Vector{X: x[0], Y: x[1], Z: x[2]})
			t := r3.Vector{X: x[3], Y: x[4], Z: x[5]}
			k := 0
			for i := range object {
				o := 6 + 6*i
				rl := geometry.Rodrigues(r3.Vector{X: x[o], Y: x[o+1], Z: x[o+2]})
				tl := r3.Vector{X: x[o+3], Y: x[o+4], Z: x[o+5]}
				for j, p := range object[i] {
					xl := rl.Apply(p).Add(tl)
					ql := projL(xl)
					qr := projR(rel.Apply(xl).Add(t))
					dst[k] = ql.X - left[i][j].X
					dst[k+1] = ql.Y - left[i][j].Y
					dst[k+2] = qr.X - right[i][j].X
					dst[k+3] = qr.Y - right[i][j].Y
					k += 4
				}
			}
		},
	}

	res, err := lsq.Minimize(problem, x0, lsq.Settings{MaxIterations: opts.MaxIter, Epsilon: opts.Epsilon})
	if err != nil {
		return nil, fmt.Errorf("stereo calibration failed: %w", err)
	}

	residuals := make([]float64, problem.M)
	problem.Residuals(residuals, res.X)
	perFrame := make([]float64, len(object))
	var sum float64
	k := 0
	for i := range object {
		var frame float64
		for range object[i] {
			for c := 0; c < 4; c++ {
				frame += residuals[k+c] * residuals[k+c]
			}
			k += 4
		}
		perFrame[i] = math.Sqrt(frame / float64(2*len(object[i])))
		sum += frame
	}
	rms := math.Sqrt(sum / float64(2*total))
	if math.IsNaN(rms) || math.IsInf(rms, 0) {
		return nil, fmt.Errorf("stereo calibration diverged: rms=%v", rms)
	}

	calib := &Calibration{
		R:           geometry.Rodrigues(r3.Vector{X: res.X[0], Y: res.X[1], Z: res.X[2]}),
		T:           r3.Vector{X: res.X[3], Y: res.X[4], Z: res.X[5]},
		RMS:         rms,
		PerFrameRMS: perFrame,
		Model:       opts.Model,
		Iterations:  res.Iterations,
		Converged:   res.Converged,
	}
	logger.Printf("stereo: %s model rms=%.4f views=%d iterations=%d", opts.Model, rms, len(object), res.Iterations)
	return calib, nil
}

func median(xs []float64) float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	return stat.Quantile(0.5, stat.Empirical, s, nil)
}
