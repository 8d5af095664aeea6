// Package stereo estimates the relative pose of a two-camera rig, computes the rectifying
// transforms and builds the rectification lookup tables.
package stereo

import (
	"fmt"
	"math"
	"strings"

	"fisheye-stereo/internal/fisheye"
	"fisheye-stereo/pkg/geometry"

	"github.com/golang/geo/r3"
)

// Model selects the projection used when fitting the rig's relative pose.
type Model int

const (
	// ModelFisheye projects with the Kannala-Brandt model the cameras were calibrated with.
	ModelFisheye Model = iota
	// ModelPinhole reads the distortion coefficients as Brown-Conrady (k1, k2, p1, p2).
	ModelPinhole
)

func (m Model) String() string {
	switch m {
	case ModelFisheye:
		return "fisheye"
	case ModelPinhole:
		return "pinhole"
	default:
		return fmt.Sprintf("Model(%d)", int(m))
	}
}

// ParseModel accepts "fisheye" or "pinhole" (case-insensitive); empty selects fisheye.
func ParseModel(s string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fisheye":
		return ModelFisheye, nil
	case "pinhole":
		return ModelPinhole, nil
	default:
		return 0, fmt.Errorf("unknown projection model %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Model) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Model) UnmarshalText(b []byte) error {
	v, err := ParseModel(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// projector maps camera-frame points to pixels.
type projector func(p r3.Vector) geometry.Point2D

func (m Model) projector(c fisheye.Camera) projector {
	if m == ModelPinhole {
		return func(p r3.Vector) geometry.Point2D { return projectPinhole(c, p) }
	}
	return c.ProjectPoint
}

func projectPinhole(c fisheye.Camera, p r3.Vector) geometry.Point2D {
	z := p.Z
	if math.Abs(z) < 1e-12 {
		z = math.Copysign(1e-12, z)
	}
	x, y := p.X/z, p.Y/z
	k1, k2, p1, p2 := c.D[0], c.D[1], c.D[2], c.D[3]

	r2 := x*x + y*y
	radial := 1 + k1*r2 + k2*r2*r2
	xd := x*radial + 2*p1*x*y + p2*(r2+2*x*x)
	yd := y*radial + p1*(r2+2*y*y) + 2*p2*x*y

	return geometry.Point2D{
		X: c.K.Fx*(xd+c.K.Skew*yd) + c.K.Cx,
		Y: c.K.Fy*yd + c.K.Cy,
	}
}
