package disparity

import (
	"image"

	"fisheye-stereo/pkg/colorutil"
)

// Normalize maps the map's observed range [min, max] linearly onto the unit interval,
// stored as 8-bit gray: 0 stands for 0.0 and 255 for 1.0. Every pixel, including invalid
// ones, takes part in the range. A map with a single value normalizes to all zeros.
func Normalize(m *Map) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	if len(m.Data) == 0 {
		return out
	}

	lo, hi := m.Data[0], m.Data[0]
	for _, v := range m.Data {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if hi == lo {
		return out
	}

	span := float64(int(hi) - int(lo))
	for i, v := range m.Data {
		out.Pix[i] = uint8(float64(int(v)-int(lo))*255/span + 0.5)
	}
	return out
}

// Colorize renders a normalized map with the jet colormap.
func Colorize(gray *image.Gray) *image.RGBA {
	b := gray.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.SetRGBA(x, y, colorutil.Jet(gray.GrayAt(x, y).Y))
		}
	}
	return out
}
