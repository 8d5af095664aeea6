package fisheye

import (
	"fmt"

	"fisheye-stereo/pkg/geometry"

	"gocv.io/x/gocv"
)

// Conversions between the camera model and the CV_64F matrices the calib3d functions take.
// Every returned Mat must be closed by the caller.

func matFromMat3(m geometry.Mat3) gocv.Mat {
	out := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64FC1)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.SetDoubleAt(i, j, m[i][j])
		}
	}
	return out
}

func mat3FromMat(m gocv.Mat) geometry.Mat3 {
	var out geometry.Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m.GetDoubleAt(i, j)
		}
	}
	return out
}

// mats returns K and D. K carries no skew: the fisheye functions read only fx, fy, cx, cy.
func (c Camera) mats() (gocv.Mat, gocv.Mat) {
	k := matFromMat3(geometry.Mat3{
		{c.K.Fx, 0, c.K.Cx},
		{0, c.K.Fy, c.K.Cy},
		{0, 0, 1},
	})
	d := gocv.NewMatWithSize(4, 1, gocv.MatTypeCV64FC1)
	for i, v := range c.D {
		d.SetDoubleAt(i, 0, v)
	}
	return k, d
}

// pointsMat packs points into an Nx1 two-channel CV_64F Mat.
func pointsMat(pts []geometry.Point2D) gocv.Mat {
	flat := gocv.NewMatWithSize(len(pts), 2, gocv.MatTypeCV64FC1)
	defer flat.Close()
	for i, p := range pts {
		flat.SetDoubleAt(i, 0, p.X)
		flat.SetDoubleAt(i, 1, p.Y)
	}
	view := flat.Reshape(2, len(pts))
	defer view.Close()
	return view.Clone()
}

func pointsFromMat(m gocv.Mat, n int) ([]geometry.Point2D, error) {
	data, err := m.DataPtrFloat64()
	if err != nil {
		return nil, err
	}
	if len(data) < 2*n {
		return nil, fmt.Errorf("fisheye: expected %d points, got %d values", n, len(data))
	}
	out := make([]geometry.Point2D, n)
	for i := range out {
		out[i] = geometry.Point2D{X: data[2*i], Y: data[2*i+1]}
	}
	return out, nil
}
