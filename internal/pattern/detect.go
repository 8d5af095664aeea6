package pattern

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"log"

	pairimage "fisheye-stereo/internal/image"
	"fisheye-stereo/pkg/geometry"

	"gocv.io/x/gocv"
)

// ErrNotFound is returned when the full corner grid is not visible in an image.
var ErrNotFound = errors.New("pattern: chessboard not found")

// SubPixOptions controls corner refinement.
type SubPixOptions struct {
	Window  int     `json:"window"` // half-size of the search window
	MaxIter int     `json:"max_iter"`
	Epsilon float64 `json:"epsilon"`
}

// DefaultSubPixOptions matches the 3x3 window with (30, 0.1) termination.
func DefaultSubPixOptions() SubPixOptions {
	return SubPixOptions{Window: 3, MaxIter: 30, Epsilon: 0.1}
}

// Detector finds a Pattern in grayscale images.
type Detector struct {
	Pattern Pattern
	SubPix  SubPixOptions
	Logger  *log.Logger
}

// NewDetector creates a detector with default refinement.
func NewDetector(p Pattern) *Detector {
	return &Detector{Pattern: p, SubPix: DefaultSubPixOptions()}
}

func (d *Detector) logf(format string, args ...interface{}) {
	if d.Logger != nil {
		d.Logger.Printf(format, args...)
	}
}

// Detect returns the sub-pixel corners of the pattern in row-major order, first corner
// nearest the top-left of the image. A partial grid is never returned.
func (d *Detector) Detect(gray *image.Gray) ([]geometry.Point2D, error) {
	mat, err := pairimage.GrayToMat(gray)
	if err != nil {
		return nil, err
	}
	defer mat.Close()
	return d.DetectMat(mat)
}

// DetectMat is Detect for a single-channel gocv.Mat.
func (d *Detector) DetectMat(gray gocv.Mat) ([]geometry.Point2D, error) {
	if gray.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrNotFound)
	}

	corners := gocv.NewMat()
	defer corners.Close()

	size := d.Pattern.GridSize()
	flags := gocv.CalibCBAdaptiveThresh | gocv.CalibCBFastCheck | gocv.CalibCBNormalizeImage
	if !gocv.FindChessboardCorners(gray, size, &corners, flags) {
		return nil, ErrNotFound
	}
	if corners.Rows()*corners.Cols() != d.Pattern.Count() {
		d.logf("pattern: expected %d corners, got %d", d.Pattern.Count(), corners.Rows()*corners.Cols())
		return nil, ErrNotFound
	}

	sp := d.SubPix
	if sp.Window <= 0 {
		sp = DefaultSubPixOptions()
	}
	criteria := gocv.NewTermCriteria(gocv.Count+gocv.EPS, sp.MaxIter, sp.Epsilon)
	gocv.CornerSubPix(gray, &corners, image.Pt(sp.Window, sp.Window), image.Pt(-1, -1), criteria)

	pts := make([]geometry.Point2D, 0, d.Pattern.Count())
	for i := 0; i < corners.Rows(); i++ {
		v := corners.GetVecfAt(i, 0)
		pts = append(pts, geometry.Point2D{X: float64(v[0]), Y: float64(v[1])})
	}
	return NormalizeOrientation(pts), nil
}

// NormalizeOrientation reverses the corner order when the grid was found starting from
// its bottom-right end, so both images of a pair list corners in the same order.
func NormalizeOrientation(pts []geometry.Point2D) []geometry.Point2D {
	if len(pts) < 2 {
		return pts
	}
	first, last := pts[0], pts[len(pts)-1]
	if first.Y+first.X <= last.Y+last.X {
		return pts
	}
	out := make([]geometry.Point2D, len(pts))
	for i, p := range pts {
		out[len(pts)-1-i] = p
	}
	return out
}

// DrawCorners renders the detected grid onto a color copy of gray.
func (d *Detector) DrawCorners(gray *image.Gray, pts []geometry.Point2D) (image.Image, error) {
	mat, err := pairimage.GrayToMat(gray)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(mat, &bgr, gocv.ColorGrayToBGR)

	corners := gocv.NewMatWithSize(len(pts), 2, gocv.MatTypeCV32FC1)
	defer corners.Close()
	for i, p := range pts {
		corners.SetFloatAt(i, 0, float32(p.X))
		corners.SetFloatAt(i, 1, float32(p.Y))
	}
	found := len(pts) == d.Pattern.Count()
	if found {
		gocv.DrawChessboardCorners(&bgr, d.Pattern.GridSize(), corners, true)
	} else {
		for _, p := range pts {
			gocv.Circle(&bgr, image.Pt(int(p.X+0.5), int(p.Y+0.5)), 3, color.RGBA{R: 255, A: 255}, 1)
		}
	}

	img, err := bgr.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert annotated image: %w", err)
	}
	return img, nil
}
