package disparity

// filterSpeckles invalidates small isolated blobs. A blob is a 4-connected set of valid
// pixels whose neighbouring values differ by at most maxDiff (fixed-point units); blobs of
// at most maxSize pixels are set to Invalid.
func filterSpeckles(m *Map, maxSize, maxDiff int) {
	w, h := m.Width, m.Height
	labels := make([]int32, w*h)
	stack := make([]int, 0, 256)
	region := make([]int, 0, 256)
	var label int32

	for start := range m.Data {
		if m.Data[start] == m.Invalid || labels[start] != 0 {
			continue
		}
		label++
		labels[start] = label
		stack = append(stack[:0], start)
		region = region[:0]

		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			region = append(region, i)

			v := int(m.Data[i])
			x, y := i%w, i/w
			visit := func(j int) {
				if labels[j] != 0 || m.Data[j] == m.Invalid {
					return
				}
				d := int(m.Data[j]) - v
				if d < 0 {
					d = -d
				}
				if d <= maxDiff {
					labels[j] = label
					stack = append(stack, j)
				}
			}
			if x > 0 {
				visit(i - 1)
			}
			if x < w-1 {
				visit(i + 1)
			}
			if y > 0 {
				visit(i - w)
			}
			if y < h-1 {
				visit(i + w)
			}
		}

		if len(region) <= maxSize {
			for _, i := range region {
				m.Data[i] = m.Invalid
			}
		}
	}
}
