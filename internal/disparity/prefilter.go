package disparity

import "image"

// prefilterXSobel returns clip + clamp(Sobel_x, -clip, clip) per pixel. Rows are clamped at
// the image edge; the first and last columns have no gradient.
func prefilterXSobel(img *image.Gray, clip int) []int32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]int32, w*h)
	at := func(x, y int) int {
		return int(img.Pix[img.PixOffset(b.Min.X+x, b.Min.Y+y)])
	}
	for y := 0; y < h; y++ {
		y0, y1 := max(y-1, 0), min(y+1, h-1)
		out[y*w] = int32(clip)
		if w > 1 {
			out[y*w+w-1] = int32(clip)
		}
		for x := 1; x < w-1; x++ {
			d := (at(x+1, y0) - at(x-1, y0)) +
				2*(at(x+1, y)-at(x-1, y)) +
				(at(x+1, y1) - at(x-1, y1))
			out[y*w+x] = int32(clampInt(d, -clip, clip) + clip)
		}
	}
	return out
}

// prefilterNormalized returns clip + clamp(smoothed centre - window mean, -clip, clip), where
// the centre is a 5-tap cross average and the mean is taken over a size x size window
// clamped to the image.
func prefilterNormalized(img *image.Gray, size, clip int) []int32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	at := func(x, y int) int {
		x = clampInt(x, 0, w-1)
		y = clampInt(y, 0, h-1)
		return int(img.Pix[img.PixOffset(b.Min.X+x, b.Min.Y+y)])
	}

	integral := newIntegral(w, h, func(x, y int) int64 { return int64(at(x, y)) })
	r := size / 2
	out := make([]int32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0, y0 := max(x-r, 0), max(y-r, 0)
			x1, y1 := min(x+r, w-1), min(y+r, h-1)
			n := int64((x1 - x0 + 1) * (y1 - y0 + 1))
			sum := integral.sum(x0, y0, x1, y1)

			centre := int64(4*at(x, y) + at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1))
			// centre/8 - sum/n, kept in integers.
			val := (centre*n - 8*sum) / (8 * n)
			out[y*w+x] = int32(clampInt(int(val), -clip, clip) + clip)
		}
	}
	return out
}

// integral is a summed-area table with a zero first row and column.
type integral struct {
	w, h int
	data []int64
}

func newIntegral(w, h int, value func(x, y int) int64) *integral {
	s := &integral{w: w, h: h, data: make([]int64, (w+1)*(h+1))}
	stride := w + 1
	for y := 0; y < h; y++ {
		var row int64
		for x := 0; x < w; x++ {
			row += value(x, y)
			s.data[(y+1)*stride+x+1] = s.data[y*stride+x+1] + row
		}
	}
	return s
}

// sum returns the total over the inclusive rectangle [x0,x1]x[y0,y1].
func (s *integral) sum(x0, y0, x1, y1 int) int64 {
	stride := s.w + 1
	return s.data[(y1+1)*stride+x1+1] - s.data[y0*stride+x1+1] - s.data[(y1+1)*stride+x0] + s.data[y0*stride+x0]
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
