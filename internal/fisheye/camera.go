// Package fisheye implements the Kannala-Brandt (equidistant family) wide-angle lens model:
// projection, undistortion, remap generation and single-camera calibration.
package fisheye

import (
	"math"

	"fisheye-stereo/pkg/geometry"

	"github.com/golang/geo/r3"
	"gocv.io/x/gocv"
)

// Intrinsics holds the pinhole part of the camera model. Skew is the alpha coefficient
// multiplying Fx in the x projection, zero for any camera calibrated with CalibFixSkew.
type Intrinsics struct {
	Fx   float64 `json:"fx"`
	Fy   float64 `json:"fy"`
	Cx   float64 `json:"cx"`
	Cy   float64 `json:"cy"`
	Skew float64 `json:"skew"`
}

// Matrix returns the 3x3 camera matrix K.
func (k Intrinsics) Matrix() geometry.Mat3 {
	return geometry.Mat3{
		{k.Fx, k.Skew * k.Fx, k.Cx},
		{0, k.Fy, k.Cy},
		{0, 0, 1},
	}
}

// IntrinsicsFromMatrix extracts intrinsics from a camera matrix.
func IntrinsicsFromMatrix(m geometry.Mat3) Intrinsics {
	k := Intrinsics{Fx: m[0][0], Fy: m[1][1], Cx: m[0][2], Cy: m[1][2]}
	if k.Fx != 0 {
		k.Skew = m[0][1] / k.Fx
	}
	return k
}

// Distortion holds the four radial coefficients k1..k4 of theta_d = theta(1 + k1θ² + k2θ⁴ + k3θ⁶ + k4θ⁸).
type Distortion [4]float64

// Camera is a calibrated fisheye camera.
type Camera struct {
	K Intrinsics `json:"k"`
	D Distortion `json:"d"`
}

// Pose is a rigid transform from pattern (world) coordinates to camera coordinates.
type Pose struct {
	Rotation    r3.Vector // Rodrigues rotation vector
	Translation r3.Vector
}

// Transform maps a world point into the camera frame.
func (p Pose) Transform(x r3.Vector) r3.Vector {
	return geometry.Rodrigues(p.Rotation).Apply(x).Add(p.Translation)
}

// distortTheta applies the radial polynomial to an incidence angle.
func (d Distortion) distortTheta(theta float64) float64 {
	t2 := theta * theta
	t4 := t2 * t2
	t6 := t4 * t2
	t8 := t4 * t4
	return theta * (1 + d[0]*t2 + d[1]*t4 + d[2]*t6 + d[3]*t8)
}

// ProjectPoint projects a camera-frame point to pixel coordinates.
// The incidence angle is measured with atan2 so rays at or beyond 90° stay defined.
func (c Camera) ProjectPoint(p r3.Vector) geometry.Point2D {
	rho := math.Hypot(p.X, p.Y)
	theta := math.Atan2(rho, p.Z)
	thetaD := c.D.distortTheta(theta)

	var xd, yd float64
	if rho > 1e-12 {
		xd = thetaD * p.X / rho
		yd = thetaD * p.Y / rho
	}
	return geometry.Point2D{
		X: c.K.Fx*(xd+c.K.Skew*yd) + c.K.Cx,
		Y: c.K.Fy*yd + c.K.Cy,
	}
}

// Project projects world points seen under pose into the image.
func (c Camera) Project(points []r3.Vector, pose Pose) []geometry.Point2D {
	rot := geometry.Rodrigues(pose.Rotation)
	out := make([]geometry.Point2D, len(points))
	for i, p := range points {
		out[i] = c.ProjectPoint(rot.Apply(p).Add(pose.Translation))
	}
	return out
}

// UndistortPoint maps a pixel to undistorted normalized pinhole coordinates (x/z, y/z).
func (c Camera) UndistortPoint(p geometry.Point2D) geometry.Point2D {
	return c.UndistortPoints([]geometry.Point2D{p}, geometry.Identity3())[0]
}

// UndistortPoints maps pixels to normalized coordinates after applying the rectification
// rotation r, i.e. the coordinates the point would have in a rotated ideal pinhole camera.
// Points that cannot be undistorted come back as NaN.
func (c Camera) UndistortPoints(points []geometry.Point2D, r geometry.Mat3) []geometry.Point2D {
	if len(points) == 0 {
		return nil
	}
	in := points
	if c.K.Skew != 0 {
		in = make([]geometry.Point2D, len(points))
		for i, p := range points {
			yd := (p.Y - c.K.Cy) / c.K.Fy
			in[i] = geometry.Point2D{X: p.X - c.K.Fx*c.K.Skew*yd, Y: p.Y}
		}
	}

	k, d := c.mats()
	defer k.Close()
	defer d.Close()
	rm := matFromMat3(r)
	defer rm.Close()
	src := pointsMat(in)
	defer src.Close()
	noP := gocv.NewMat()
	defer noP.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.FisheyeUndistortPoints(src, &dst, k, d, rm, noP)

	out, err := pointsFromMat(dst, len(points))
	if err != nil {
		out = make([]geometry.Point2D, len(points))
		for i := range out {
			out[i] = geometry.Point2D{X: math.NaN(), Y: math.NaN()}
		}
	}
	return out
}
