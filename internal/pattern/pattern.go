// Package pattern describes the planar chessboard target and finds it in images.
package pattern

import (
	"fmt"
	"image"

	"github.com/golang/geo/r3"
)

// Pattern is a chessboard described by its interior corner grid.
type Pattern struct {
	Rows       int     `json:"rows"`
	Columns    int     `json:"columns"`
	SquareSize float64 `json:"square_size"`
}

// Default is the 6x9 interior-corner board used by the rig, with 2.5 unit squares.
func Default() Pattern {
	return Pattern{Rows: 6, Columns: 9, SquareSize: 2.5}
}

// Count returns the number of interior corners.
func (p Pattern) Count() int {
	return p.Rows * p.Columns
}

// GridSize returns the pattern size in the (columns, rows) form gocv expects.
func (p Pattern) GridSize() image.Point {
	return image.Pt(p.Columns, p.Rows)
}

// Validate rejects grids the detector cannot find.
func (p Pattern) Validate() error {
	if p.Rows < 2 || p.Columns < 2 {
		return fmt.Errorf("pattern must have at least 2x2 interior corners, got %dx%d", p.Rows, p.Columns)
	}
	if p.SquareSize <= 0 {
		return fmt.Errorf("square size must be positive, got %g", p.SquareSize)
	}
	return nil
}

// ObjectPoints returns the corner positions on the z = 0 plane in row-major order,
// matching the order Detect reports image corners in.
func (p Pattern) ObjectPoints() []r3.Vector {
	pts := make([]r3.Vector, 0, p.Count())
	for r := 0; r < p.Rows; r++ {
		for c := 0; c < p.Columns; c++ {
			pts = append(pts, r3.Vector{
				X: float64(c) * p.SquareSize,
				Y: float64(r) * p.SquareSize,
			})
		}
	}
	return pts
}
