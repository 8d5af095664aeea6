package fisheye

import (
	"fisheye-stereo/internal/remap"
	"fisheye-stereo/pkg/geometry"

	"github.com/golang/geo/r3"
	"gocv.io/x/gocv"
)

// InitUndistortRectifyMap builds the lookup table that, for every pixel of an ideal camera
// with matrix newK rotated by r, gives the pixel of this camera to sample. Pixels whose ray
// points behind the camera map outside the source so they render as border.
func (c Camera) InitUndistortRectifyMap(r, newK geometry.Mat3, size geometry.Size) *remap.Map {
	m := remap.New(size)
	iR, ok := newK.Mul(r).Inverse()
	if !ok {
		iR = geometry.Identity3()
	}

	for y := 0; y < size.Height; y++ {
		for x := 0; x < size.Width; x++ {
			ray := iR.Apply(r3.Vector{X: float64(x), Y: float64(y), Z: 1})
			if ray.Z <= 0 {
				m.Set(x, y, -1, -1)
				continue
			}
			p := c.ProjectPoint(ray)
			m.Set(x, y, p.X, p.Y)
		}
	}
	return m
}

// UndistortMap is the identity-rectification map used to visualise single-camera results.
func (c Camera) UndistortMap(size geometry.Size) *remap.Map {
	return c.InitUndistortRectifyMap(geometry.Identity3(), c.K.Matrix(), size)
}

// EstimateNewCameraMatrix picks an ideal camera matrix for undistorting/rectifying with
// rotation r. balance in [0,1] trades between keeping only valid pixels (0) and keeping the
// whole field of view (1); fovScale > 0 divides the resulting focal length. newSize rescales
// the result when it differs from size (zero value keeps size).
func (c Camera) EstimateNewCameraMatrix(size geometry.Size, r geometry.Mat3, balance float64, newSize geometry.Size, fovScale float64) geometry.Mat3 {
	k, d := c.mats()
	defer k.Close()
	defer d.Close()
	rm := matFromMat3(r)
	defer rm.Close()

	p := gocv.NewMat()
	defer p.Close()
	gocv.EstimateNewCameraMatrixForUndistortRectify(k, d, size.Point(), rm, &p, balance, newSize.Point(), fovScale)
	return mat3FromMat(p)
}
