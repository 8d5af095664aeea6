package fisheye

import (
	"errors"
	"fmt"

	"fisheye-stereo/internal/lsq"
	"fisheye-stereo/pkg/geometry"

	"github.com/golang/geo/r3"
	"gocv.io/x/gocv"
)

// ErrDegenerateView is returned when a pose cannot be recovered from a view.
var ErrDegenerateView = errors.New("fisheye: degenerate view")

// InitExtrinsics estimates the pose of a planar pattern (z = 0) from its image under the
// current camera model: homography on undistorted points, decomposition, then a
// reprojection refinement.
func InitExtrinsics(c Camera, object []r3.Vector, image []geometry.Point2D) (Pose, error) {
	if len(object) != len(image) || len(object) < 4 {
		return Pose{}, fmt.Errorf("%w: %d object vs %d image points", ErrDegenerateView, len(object), len(image))
	}

	src := make([]geometry.Point2D, len(object))
	for i, p := range object {
		src[i] = geometry.Point2D{X: p.X, Y: p.Y}
	}
	dst := c.UndistortPoints(image, geometry.Identity3())

	h, err := Homography(src, dst)
	if err != nil {
		return Pose{}, err
	}
	pose, err := poseFromHomography(h)
	if err != nil {
		return Pose{}, err
	}
	return RefinePose(c, object, image, pose)
}

// RefinePose minimizes the reprojection error of a single view over its six pose parameters.
func RefinePose(c Camera, object []r3.Vector, image []geometry.Point2D, initial Pose) (Pose, error) {
	problem := lsq.Problem{
		M: 2 * len(object),
		Residuals: func(dst, x []float64) {
			pose := poseFromSlice(x)
			rot := geometry.Rodrigues(pose.Rotation)
			for i, p := range object {
				q := c.ProjectPoint(rot.Apply(p).Add(pose.Translation))
				dst[2*i] = q.X - image[i].X
				dst[2*i+1] = q.Y - image[i].Y
			}
		},
	}
	res, err := lsq.Minimize(problem, poseToSlice(initial, nil), lsq.Settings{MaxIterations: 20, Epsilon: 1e-10})
	if err != nil {
		return initial, fmt.Errorf("pose refinement failed: %w", err)
	}
	return poseFromSlice(res.X), nil
}

// Homography computes the 3x3 projective map src -> dst by least squares over all points,
// scaled so that h[2][2] = 1.
func Homography(src, dst []geometry.Point2D) (geometry.Mat3, error) {
	n := len(src)
	if n < 4 || n != len(dst) {
		return geometry.Mat3{}, fmt.Errorf("%w: need at least 4 correspondences, got %d", ErrDegenerateView, n)
	}

	srcMat := pointsMat(src)
	defer srcMat.Close()
	dstMat := pointsMat(dst)
	defer dstMat.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	h := gocv.FindHomography(srcMat, &dstMat, gocv.HomograpyMethodAllPoints, 3, &mask, 2000, 0.995)
	defer h.Close()
	if h.Empty() {
		return geometry.Mat3{}, fmt.Errorf("%w: no homography fits the points", ErrDegenerateView)
	}
	return mat3FromMat(h), nil
}

// poseFromHomography decomposes H = [r1 r2 t] (up to scale) for a plane at z = 0.
func poseFromHomography(h geometry.Mat3) (Pose, error) {
	h1 := r3.Vector{X: h[0][0], Y: h[1][0], Z: h[2][0]}
	h2 := r3.Vector{X: h[0][1], Y: h[1][1], Z: h[2][1]}
	h3 := r3.Vector{X: h[0][2], Y: h[1][2], Z: h[2][2]}

	norm := (h1.Norm() + h2.Norm()) / 2
	if norm < 1e-15 {
		return Pose{}, fmt.Errorf("%w: null homography", ErrDegenerateView)
	}
	lambda := 1 / norm
	if h3.Z < 0 {
		lambda = -lambda
	}

	r1 := h1.Mul(lambda)
	r2 := h2.Mul(lambda)
	r3v := r1.Cross(r2)
	t := h3.Mul(lambda)

	rot := geometry.Mat3{
		{r1.X, r2.X, r3v.X},
		{r1.Y, r2.Y, r3v.Y},
		{r1.Z, r2.Z, r3v.Z},
	}.Orthonormalize()

	return Pose{Rotation: rot.RotationVector(), Translation: t}, nil
}

func poseToSlice(p Pose, dst []float64) []float64 {
	return append(dst, p.Rotation.X, p.Rotation.Y, p.Rotation.Z, p.Translation.X, p.Translation.Y, p.Translation.Z)
}

func poseFromSlice(x []float64) Pose {
	return Pose{
		Rotation:    r3.Vector{X: x[0], Y: x[1], Z: x[2]},
		Translation: r3.Vector{X: x[3], Y: x[4], Z: x[5]},
	}
}
