package geometry

import "sort"

// ConvexHull returns the convex hull of points in counter-clockwise order, starting from
// the lowest point. Fewer than three points are returned unchanged.
func ConvexHull(points []Point2D) []Point2D {
	if len(points) < 3 {
		return points
	}

	pts := make([]Point2D, len(points))
	copy(pts, points)

	lowest := 0
	for i := 1; i < len(pts); i++ {
		if pts[i].Y < pts[lowest].Y ||
			(pts[i].Y == pts[lowest].Y && pts[i].X < pts[lowest].X) {
			lowest = i
		}
	}
	pts[0], pts[lowest] = pts[lowest], pts[0]
	pivot := pts[0]

	rest := pts[1:]
	sort.Slice(rest, func(i, j int) bool {
		cross := crossProduct(pivot, rest[i], rest[j])
		if cross == 0 {
			return distSq(pivot, rest[i]) < distSq(pivot, rest[j])
		}
		return cross > 0
	})

	hull := []Point2D{pivot}
	for _, p := range rest {
		for len(hull) > 1 && crossProduct(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull
}

// PointInPolygon tests if a point is inside a polygon using ray casting.
func PointInPolygon(p Point2D, polygon []Point2D) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	n := len(polygon)
	for i := 0; i < n; i++ {
		pi, pj := polygon[i], polygon[(i+1)%n]
		if ((pi.Y > p.Y) != (pj.Y > p.Y)) &&
			(p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X) {
			inside = !inside
		}
	}
	return inside
}

// Coverage returns the fraction of an image of the given size covered by the union of the
// convex hulls of the detected grids. The image is sampled on a grid of cells x cells
// centers; a cell counts once whichever hull contains it.
func Coverage(size Size, frames [][]Point2D, cells int) float64 {
	if size.Empty() || cells <= 0 || len(frames) == 0 {
		return 0
	}
	hulls := make([][]Point2D, 0, len(frames))
	for _, pts := range frames {
		if h := ConvexHull(pts); len(h) >= 3 {
			hulls = append(hulls, h)
		}
	}

	cw := float64(size.Width) / float64(cells)
	ch := float64(size.Height) / float64(cells)
	covered := 0
	for row := 0; row < cells; row++ {
		for col := 0; col < cells; col++ {
			c := Point2D{X: (float64(col) + 0.5) * cw, Y: (float64(row) + 0.5) * ch}
			for _, h := range hulls {
				if PointInPolygon(c, h) {
					covered++
					break
				}
			}
		}
	}
	return float64(covered) / float64(cells*cells)
}

func crossProduct(o, a, b Point2D) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

func distSq(a, b Point2D) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	return dx*dx + dy*dy
}
