// Package remap holds per-pixel lookup tables (destination pixel -> source coordinate)
// and applies them to images.
package remap

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	pairimage "fisheye-stereo/internal/image"
	"fisheye-stereo/pkg/geometry"

	"gocv.io/x/gocv"
)

// ErrSizeMismatch is returned when a map and an image or its own tables disagree in size.
var ErrSizeMismatch = errors.New("remap: size mismatch")

// Map is a pair of lookup grids. For destination pixel (x, y), X[y*Width+x] and
// Y[y*Width+x] are the source coordinates to sample.
type Map struct {
	Width  int
	Height int
	X      []float32
	Y      []float32
}

// New allocates a map for the given output size.
func New(size geometry.Size) *Map {
	n := size.Area()
	return &Map{
		Width:  size.Width,
		Height: size.Height,
		X:      make([]float32, n),
		Y:      make([]float32, n),
	}
}

// Identity returns a map that samples every pixel from itself.
func Identity(size geometry.Size) *Map {
	m := New(size)
	for y := 0; y < size.Height; y++ {
		for x := 0; x < size.Width; x++ {
			m.Set(x, y, float64(x), float64(y))
		}
	}
	return m
}

// Size returns the output size of the map.
func (m *Map) Size() geometry.Size {
	return geometry.NewSize(m.Width, m.Height)
}

// Set stores the source coordinate for destination pixel (x, y).
func (m *Map) Set(x, y int, sx, sy float64) {
	i := y*m.Width + x
	m.X[i] = float32(sx)
	m.Y[i] = float32(sy)
}

// At returns the source coordinate for destination pixel (x, y).
func (m *Map) At(x, y int) (float32, float32) {
	i := y*m.Width + x
	return m.X[i], m.Y[i]
}

// Validate checks that both grids match the declared size.
func (m *Map) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil map", ErrSizeMismatch)
	}
	n := m.Width * m.Height
	if m.Width <= 0 || m.Height <= 0 || len(m.X) != n || len(m.Y) != n {
		return fmt.Errorf("%w: %dx%d map with %d/%d entries", ErrSizeMismatch, m.Width, m.Height, len(m.X), len(m.Y))
	}
	return nil
}

// Mats converts the grids to two CV_32FC1 matrices. The caller must close both.
func (m *Map) Mats() (gocv.Mat, gocv.Mat) {
	mx := gocv.NewMatWithSize(m.Height, m.Width, gocv.MatTypeCV32FC1)
	my := gocv.NewMatWithSize(m.Height, m.Width, gocv.MatTypeCV32FC1)
	for y := 0; y < m.Height; y++ {
		row := y * m.Width
		for x := 0; x < m.Width; x++ {
			mx.SetFloatAt(y, x, m.X[row+x])
			my.SetFloatAt(y, x, m.Y[row+x])
		}
	}
	return mx, my
}

// Apply resamples src through the map with bilinear interpolation. Samples that fall
// outside the source are black. The result has the map's size and src's type; the caller
// must close it.
func (m *Map) Apply(src gocv.Mat) (gocv.Mat, error) {
	if err := m.Validate(); err != nil {
		return gocv.NewMat(), err
	}
	if src.Empty() {
		return gocv.NewMat(), fmt.Errorf("%w: empty source image", ErrSizeMismatch)
	}

	mx, my := m.Mats()
	defer mx.Close()
	defer my.Close()

	dst := gocv.NewMat()
	gocv.Remap(src, &dst, &mx, &my, gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{R: 0, G: 0, B: 0, A: 0})
	return dst, nil
}

// ApplyGray is Apply for Go grayscale images.
func (m *Map) ApplyGray(src *image.Gray) (*image.Gray, error) {
	srcMat, err := pairimage.GrayToMat(src)
	if err != nil {
		return nil, err
	}
	defer srcMat.Close()

	dst, err := m.Apply(srcMat)
	if err != nil {
		return nil, err
	}
	defer dst.Close()

	gray, err := pairimage.MatToGray(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to convert remapped image: %w", err)
	}
	return gray, nil
}
