// Package colorutil provides shared colors and colormaps for previews and disparity views.
package colorutil

import (
	"image/color"
	"math"
)

// Overlay colors used by the preview images.
var (
	Black   = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Green   = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	Red     = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	Magenta = color.RGBA{R: 255, G: 0, B: 255, A: 255}
)

// Jet maps 0..255 onto the blue-cyan-yellow-red "jet" colormap.
func Jet(v uint8) color.RGBA {
	t := float64(v) / 255
	channel := func(offset float64) uint8 {
		c := 1.5 - math.Abs(4*t-offset)
		c = math.Max(0, math.Min(1, c))
		return uint8(c*255 + 0.5)
	}
	return color.RGBA{R: channel(3), G: channel(2), B: channel(1), A: 255}
}
