package disparity

import (
	"fmt"
	"image"
	"log"
	"time"
)

// Map is a fixed-point disparity map: Data[y*Width+x] is disparity*Scale, or Invalid.
type Map struct {
	Width   int
	Height  int
	Data    []int16
	Invalid int16
}

// At returns the fixed-point disparity at (x, y).
func (m *Map) At(x, y int) int16 {
	return m.Data[y*m.Width+x]
}

// Disparity returns the disparity in pixels at (x, y) and whether it is valid.
func (m *Map) Disparity(x, y int) (float64, bool) {
	v := m.At(x, y)
	if v == m.Invalid {
		return 0, false
	}
	return float64(v) / Scale, true
}

// ValidCount returns the number of pixels with a disparity.
func (m *Map) ValidCount() int {
	n := 0
	for _, v := range m.Data {
		if v != m.Invalid {
			n++
		}
	}
	return n
}

// Range returns the smallest and largest valid disparity in pixels. ok is false when no
// pixel is valid.
func (m *Map) Range() (lo, hi float64, ok bool) {
	first := true
	var mn, mx int16
	for _, v := range m.Data {
		if v == m.Invalid {
			continue
		}
		if first || v < mn {
			mn = v
		}
		if first || v > mx {
			mx = v
		}
		first = false
	}
	if first {
		return 0, 0, false
	}
	return float64(mn) / Scale, float64(mx) / Scale, true
}

// Engine runs block matching with a fixed parameter set.
type Engine struct {
	Params Params
	Logger *log.Logger
}

// NewEngine validates p and returns an engine for it.
func NewEngine(p Params) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Engine{Params: p}, nil
}

// Compute matches every left-image block against horizontally shifted right-image blocks
// over [MinDisparity, MinDisparity+NumberOfDisparities) and returns the disparity map of
// the left view. The result depends only on the inputs and Params.
func (e *Engine) Compute(left, right *image.Gray) (*Map, error) {
	p := e.Params
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if left.Bounds().Size() != right.Bounds().Size() {
		return nil, fmt.Errorf("%w: left is %v, right is %v", ErrInvalidParams, left.Bounds().Size(), right.Bounds().Size())
	}
	w, h := left.Bounds().Dx(), left.Bounds().Dy()
	if p.SADWindowSize >= min(w, h) {
		return nil, fmt.Errorf("%w: SADWindowSize %d does not fit a %dx%d image", ErrInvalidParams, p.SADWindowSize, w, h)
	}
	start := time.Now()

	var lf, rf []int32
	if p.PreFilterType == PreFilterXSobel {
		lf = prefilterXSobel(left, p.PreFilterCap)
		rf = prefilterXSobel(right, p.PreFilterCap)
	} else {
		lf = prefilterNormalized(left, p.PreFilterSize, p.PreFilterCap)
		rf = prefilterNormalized(right, p.PreFilterSize, p.PreFilterCap)
	}

	m := &Map{Width: w, Height: h, Data: make([]int16, w*h), Invalid: p.Invalid()}
	for i := range m.Data {
		m.Data[i] = m.Invalid
	}

	r := p.SADWindowSize / 2
	nd := p.NumberOfDisparities
	minD := p.MinDisparity
	maxD := minD + nd - 1

	// Columns whose window stays inside both images for every disparity.
	xLo := max(r, maxD+r)
	xHi := min(w-1-r, w-1-r+minD)
	if xLo <= xHi {
		e.match(m, lf, rf, xLo, xHi)
	}

	if p.SpeckleWindowSize > 0 {
		filterSpeckles(m, p.SpeckleWindowSize, p.SpeckleRange)
	}

	if e.Logger != nil {
		e.Logger.Printf("disparity: %dx%d %s valid=%d in %v", w, h, p, m.ValidCount(), time.Since(start).Round(time.Millisecond))
	}
	return m, nil
}

// match fills rows [r, h-1-r] and columns [xLo, xHi] of m.
func (e *Engine) match(m *Map, lf, rf []int32, xLo, xHi int) {
	p := e.Params
	w, h := m.Width, m.Height
	r := p.SADWindowSize / 2
	nd := p.NumberOfDisparities
	minD := p.MinDisparity
	clip := int64(p.PreFilterCap)

	texture := newIntegral(w, h, func(x, y int) int64 {
		v := int64(lf[y*w+x]) - clip
		if v < 0 {
			v = -v
		}
		return v
	})

	// colSum[x*nd+i] is the sum over the current row window of |L(x) - R(x - d)|, d = minD+i.
	colSum := make([]int32, w*nd)
	absDiffRow := func(y, sign int) {
		row := y * w
		for x := 0; x < w; x++ {
			for i := 0; i < nd; i++ {
				xr := x - (minD + i)
				if xr < 0 || xr >= w {
					continue
				}
				d := lf[row+x] - rf[row+xr]
				if d < 0 {
					d = -d
				}
				colSum[x*nd+i] += int32(sign) * d
			}
		}
	}
	for y := 0; y < 2*r; y++ {
		absDiffRow(y, 1)
	}

	sad := make([]int32, nd+2) // sad[1:nd+1] holds costs, with mirrored guards at both ends
	threshold := int64(p.TextureThreshold)
	for y := r; y < h-r; y++ {
		absDiffRow(y+r, 1)
		if y > r {
			absDiffRow(y-r-1, -1)
		}

		for x := xLo; x <= xHi; x++ {
			if texture.sum(x-r, y-r, x+r, y+r) < threshold {
				continue
			}

			cost := sad[1 : nd+1]
			for i := range cost {
				cost[i] = 0
			}
			for xx := x - r; xx <= x+r; xx++ {
				cs := colSum[xx*nd : xx*nd+nd]
				for i, v := range cs {
					cost[i] += v
				}
			}

			best, bestCost := 0, cost[0]
			for i := 1; i < nd; i++ {
				if cost[i] < bestCost {
					best, bestCost = i, cost[i]
				}
			}

			if p.UniquenessRatio > 0 {
				limit := bestCost + bestCost*int32(p.UniquenessRatio)/100
				ambiguous := false
				for i, c := range cost {
					if (i < best-1 || i > best+1) && c <= limit {
						ambiguous = true
						break
					}
				}
				if ambiguous {
					continue
				}
			}

			if nd > 1 {
				sad[0] = sad[2]
				sad[nd+1] = sad[nd-1]
			} else {
				sad[0], sad[2] = sad[1], sad[1]
			}
			prev, next := int64(sad[best]), int64(sad[best+2])
			denom := prev + next - 2*int64(bestCost) + abs64(prev-next)
			var frac int64
			if denom != 0 {
				frac = (prev - next) * 256 / denom
			}
			disp := int64(minD + best)
			m.Data[y*w+x] = int16((disp*256 + frac + 15) >> 4)
		}
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
