package stereo

import (
	"fmt"
	"image"
	"math"

	"fisheye-stereo/internal/fisheye"
	"fisheye-stereo/internal/remap"
	"fisheye-stereo/pkg/geometry"

	"github.com/golang/geo/r3"
)

// RectifyOptions controls the ideal cameras chosen for the rectified pair.
type RectifyOptions struct {
	// Balance in [0,1] trades valid-pixels-only (0) against the full field of view (1).
	Balance  float64
	FovScale float64
	// ZeroDisparity gives both rectified cameras the same principal point.
	ZeroDisparity bool
	// NewSize is the rectified image size; zero keeps the input size.
	NewSize geometry.Size
}

// DefaultRectifyOptions returns balance 0, keeping only valid pixels, with zero
// disparity at infinity.
func DefaultRectifyOptions() RectifyOptions {
	return RectifyOptions{Balance: 0, FovScale: 1, ZeroDisparity: true}
}

// Rectification holds the rectifying rotations, the projection matrices of the rectified
// cameras and the disparity-to-depth matrix.
type Rectification struct {
	Size geometry.Size
	R1   geometry.Mat3
	R2   geometry.Mat3
	P1   [3][4]float64
	P2   [3][4]float64
	Q    [4][4]float64
}

// NewK returns the 3x3 camera matrix part of a projection matrix.
func NewK(p [3][4]float64) geometry.Mat3 {
	var k geometry.Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			k[i][j] = p[i][j]
		}
	}
	return k
}

// Rectify computes rotations that make both cameras' epipolar lines horizontal and
// aligned: each camera is turned half-way towards the other, then both are rotated so
// the baseline lies on the x axis. The rectified cameras share fy = fx.
func Rectify(left, right fisheye.Camera, size geometry.Size, r geometry.Mat3, t r3.Vector, opts RectifyOptions) (*Rectification, error) {
	if size.Empty() {
		return nil, fmt.Errorf("stereo: invalid image size %s", size)
	}
	if t.Norm() < 1e-12 {
		return nil, fmt.Errorf("stereo: zero baseline")
	}

	om := r.RotationVector()
	rr := geometry.Rodrigues(om.Mul(-0.5))
	tt := rr.Apply(t)

	uu := r3.Vector{X: 1}
	if tt.X <= 0 {
		uu.X = -1
	}
	ww := tt.Cross(uu)
	if nw := ww.Norm(); nw > 0 {
		ww = ww.Mul(math.Acos(math.Abs(tt.X)/tt.Norm()) / nw)
	}
	wr := geometry.Rodrigues(ww)

	r1 := wr.Mul(rr.T())
	r2 := wr.Mul(rr)
	tnew := r2.Apply(t)

	newSize := opts.NewSize
	if newSize.Empty() {
		newSize = size
	}
	k1 := left.EstimateNewCameraMatrix(size, r1, opts.Balance, newSize, opts.FovScale)
	k2 := right.EstimateNewCameraMatrix(size, r2, opts.Balance, newSize, opts.FovScale)

	fc := math.Min(k1[1][1], k2[1][1])
	c1 := geometry.Point2D{X: k1[0][2], Y: k1[1][2]}
	c2 := geometry.Point2D{X: k2[0][2], Y: k2[1][2]}
	if opts.ZeroDisparity {
		avg := c1.Add(c2).Scale(0.5)
		c1, c2 = avg, avg
	} else {
		y := (c1.Y + c2.Y) / 2
		c1.Y, c2.Y = y, y
	}

	rect := &Rectification{
		Size: newSize,
		R1:   r1,
		R2:   r2,
		P1: [3][4]float64{
			{fc, 0, c1.X, 0},
			{0, fc, c1.Y, 0},
			{0, 0, 1, 0},
		},
		P2: [3][4]float64{
			{fc, 0, c2.X, tnew.X * fc},
			{0, fc, c2.Y, 0},
			{0, 0, 1, 0},
		},
		Q: [4][4]float64{
			{1, 0, 0, -c1.X},
			{0, 1, 0, -c1.Y},
			{0, 0, 0, fc},
			{0, 0, -1 / tnew.X, (c1.X - c2.X) / tnew.X},
		},
	}
	return rect, nil
}

// Reproject maps a pixel of the rectified left image with disparity d (in pixels) to a
// 3-D point in the rectified left camera frame using Q. ok is false for points at
// infinity.
func (r *Rectification) Reproject(x, y, d float64) (r3.Vector, bool) {
	v := [4]float64{x, y, d, 1}
	var out [4]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[i] += r.Q[i][j] * v[j]
		}
	}
	if math.Abs(out[3]) < 1e-12 {
		return r3.Vector{}, false
	}
	return r3.Vector{X: out[0] / out[3], Y: out[1] / out[3], Z: out[2] / out[3]}, true
}

// Maps is the pair of rectification lookup tables.
type Maps struct {
	Left  *remap.Map
	Right *remap.Map
}

// BuildMaps builds the per-camera tables that resample raw images into the rectified pair.
func BuildMaps(left, right fisheye.Camera, rect *Rectification) Maps {
	return Maps{
		Left:  left.InitUndistortRectifyMap(rect.R1, NewK(rect.P1), rect.Size),
		Right: right.InitUndistortRectifyMap(rect.R2, NewK(rect.P2), rect.Size),
	}
}

// Apply rectifies a raw pair.
func (m Maps) Apply(left, right *image.Gray) (*image.Gray, *image.Gray, error) {
	l, err := m.Left.ApplyGray(left)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to rectify left image: %w", err)
	}
	r, err := m.Right.ApplyGray(right)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to rectify right image: %w", err)
	}
	return l, r, nil
}
