package stereo

import (
	"io"
	"log"
	"math"
	"testing"

	"fisheye-stereo/internal/fisheye"
	"fisheye-stereo/pkg/geometry"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	leftCam = fisheye.Camera{
		K: fisheye.Intrinsics{Fx: 230, Fy: 230, Cx: 320, Cy: 240},
		D: fisheye.Distortion{0.01, -0.005, 0.002, 0},
	}
	rightCam = fisheye.Camera{
		K: fisheye.Intrinsics{Fx: 226, Fy: 227, Cx: 317, Cy: 243},
		D: fisheye.Distortion{0.015, -0.004, 0.001, 0},
	}
	rigOm = r3.Vector{X: 0.01, Y: -0.03, Z: 0.005}
	rigT  = r3.Vector{X: -6, Y: 0.1, Z: 0.2}
)

func board() []r3.Vector {
	var pts []r3.Vector
	for r := 0; r < 6; r++ {
		for c := 0; c < 9; c++ {
			pts = append(pts, r3.Vector{X: float64(c) * 2.5, Y: float64(r) * 2.5})
		}
	}
	return pts
}

func rigViews(model Model) ([][]r3.Vector, [][]geometry.Point2D, [][]geometry.Point2D) {
	poses := []fisheye.Pose{
		{Rotation: r3.Vector{X: 0.1, Y: -0.2, Z: 0.05}, Translation: r3.Vector{X: -10, Y: -6, Z: 30}},
		{Rotation: r3.Vector{X: -0.3, Y: 0.1}, Translation: r3.Vector{X: -14, Y: -3, Z: 26}},
		{Rotation: r3.Vector{X: 0.2, Y: 0.3, Z: -0.1}, Translation: r3.Vector{X: -4, Y: -10, Z: 32}},
		{Rotation: r3.Vector{Y: -0.4, Z: 0.2}, Translation: r3.Vector{X: -12, Y: 0, Z: 24}},
		{Rotation: r3.Vector{X: 0.35, Y: 0.05, Z: 0.1}, Translation: r3.Vector{X: -8, Y: -12, Z: 34}},
		{Rotation: r3.Vector{X: -0.15, Y: 0.25, Z: -0.2}, Translation: r3.Vector{X: -16, Y: -9, Z: 28}},
	}
	rel := geometry.Rodrigues(rigOm)
	pl, pr := model.projector(leftCam), model.projector(rightCam)

	var obj [][]r3.Vector
	var left, right [][]geometry.Point2D
	for _, pose := range poses {
		o := board()
		var l, r []geometry.Point2D
		for _, p := range o {
			xl := pose.Transform(p)
			l = append(l, pl(xl))
			r = append(r, pr(rel.Apply(xl).Add(rigT)))
		}
		obj = append(obj, o)
		left = append(left, l)
		right = append(right, r)
	}
	return obj, left, right
}

func testOptions(model Model) Options {
	return Options{Model: model, MaxIter: 100, Epsilon: 1e-12, Logger: log.New(io.Discard, "", 0)}
}

func TestParseModel(t *testing.T) {
	m, err := ParseModel("")
	require.NoError(t, err)
	assert.Equal(t, ModelFisheye, m)

	m, err = ParseModel("Pinhole")
	require.NoError(t, err)
	assert.Equal(t, ModelPinhole, m)

	_, err = ParseModel("omni")
	assert.Error(t, err)

	var back Model
	text, err := ModelPinhole.MarshalText()
	require.NoError(t, err)
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, ModelPinhole, back)
}

func TestCalibrateRecoversRelativePose(t *testing.T) {
	for _, model := range []Model{ModelFisheye, ModelPinhole} {
		t.Run(model.String(), func(t *testing.T) {
			obj, left, right := rigViews(model)
			calib, err := Calibrate(obj, left, right, leftCam, rightCam, testOptions(model))
			require.NoError(t, err)

			assert.Equal(t, model, calib.Model)
			assert.Less(t, calib.RMS, 1e-2)
			assert.InDelta(t, 0, calib.R.RotationVector().Sub(rigOm).Norm(), 1e-3)
			assert.InDelta(t, 0, calib.T.Sub(rigT).Norm(), 1e-2)
			assert.Len(t, calib.PerFrameRMS, len(obj))
		})
	}
}

func TestCalibrateMismatchedViews(t *testing.T) {
	obj, left, right := rigViews(ModelFisheye)
	_, err := Calibrate(obj, left, right[:2], leftCam, rightCam, testOptions(ModelFisheye))
	assert.ErrorIs(t, err, ErrMismatchedViews)

	right[0] = right[0][:5]
	_, err = Calibrate(obj, left, right, leftCam, rightCam, testOptions(ModelFisheye))
	assert.ErrorIs(t, err, ErrMismatchedViews)
}

func rectifyRig(t *testing.T) *Rectification {
	t.Helper()
	rect, err := Rectify(leftCam, rightCam, geometry.NewSize(640, 480), geometry.Rodrigues(rigOm), rigT, DefaultRectifyOptions())
	require.NoError(t, err)
	return rect
}

func TestRectifyRotationsAreProper(t *testing.T) {
	rect := rectifyRig(t)
	for _, r := range []geometry.Mat3{rect.R1, rect.R2} {
		assert.InDelta(t, 1, r.Det(), 1e-9)
		id := r.Mul(r.T())
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				want := 0.0
				if i == j {
					want = 1
				}
				assert.InDelta(t, want, id[i][j], 1e-9)
			}
		}
	}
	// Zero disparity shares the principal point and fy is used for both axes.
	assert.Equal(t, rect.P1[0][2], rect.P2[0][2])
	assert.Equal(t, rect.P1[1][2], rect.P2[1][2])
	assert.Equal(t, rect.P1[0][0], rect.P1[1][1])
	assert.Less(t, rect.P2[0][3], 0.0)
}

func TestRectifyAlignsEpipolarLines(t *testing.T) {
	rect := rectifyRig(t)
	rel := geometry.Rodrigues(rigOm)
	fc := rect.P1[0][0]

	for _, x := range []r3.Vector{
		{X: 1, Y: 2, Z: 20},
		{X: -5, Y: -3, Z: 35},
		{X: 8, Y: -6, Z: 15},
	} {
		l := rect.R1.Apply(x)
		r := rect.R2.Apply(rel.Apply(x).Add(rigT))
		yl := fc*l.Y/l.Z + rect.P1[1][2]
		yr := fc*r.Y/r.Z + rect.P2[1][2]
		assert.InDelta(t, yl, yr, 1e-6)

		xl := fc*l.X/l.Z + rect.P1[0][2]
		xr := fc*r.X/r.Z + rect.P2[0][2]
		p, ok := rect.Reproject(xl, yl, xl-xr)
		require.True(t, ok)
		assert.InDelta(t, l.Z, p.Z, 1e-6)
		assert.InDelta(t, l.X, p.X, 1e-6)
	}
}

func TestDefaultRectifyOptions(t *testing.T) {
	assert.Equal(t, RectifyOptions{Balance: 0, FovScale: 1, ZeroDisparity: true}, DefaultRectifyOptions())
}

func TestRectifyWithoutZeroDisparity(t *testing.T) {
	opts := DefaultRectifyOptions()
	opts.ZeroDisparity = false
	rect, err := Rectify(leftCam, rightCam, geometry.NewSize(640, 480), geometry.Rodrigues(rigOm), rigT, opts)
	require.NoError(t, err)
	assert.Equal(t, rect.P1[1][2], rect.P2[1][2])
}

func TestRectifyRejectsZeroBaseline(t *testing.T) {
	_, err := Rectify(leftCam, rightCam, geometry.NewSize(640, 480), geometry.Identity3(), r3.Vector{}, DefaultRectifyOptions())
	assert.Error(t, err)
}

func TestBuildMaps(t *testing.T) {
	rect := rectifyRig(t)
	maps := BuildMaps(leftCam, rightCam, rect)
	require.NoError(t, maps.Left.Validate())
	require.NoError(t, maps.Right.Validate())
	assert.Equal(t, rect.Size, maps.Left.Size())

	// The rectified principal point samples close to the raw image centre.
	cx, cy := int(rect.P1[0][2]), int(rect.P1[1][2])
	x, y := maps.Left.At(cx, cy)
	assert.False(t, math.IsNaN(float64(x)))
	assert.InDelta(t, leftCam.K.Cx, float64(x), 80)
	assert.InDelta(t, leftCam.K.Cy, float64(y), 80)
}
