package market

import "sort"

// isoPoint is one (x, y, weight) observation for isotonic regression.
type isoPoint struct {
	x, y, w float64
}

// isotonicFit runs the pool-adjacent-violators algorithm over points,
// producing a monotone non-decreasing step function y(x). Points sharing an x
// are merged first so the output xs are strictly increasing.
func isotonicFit(points []isoPoint) (xs, ys []float64) {
	if len(points) == 0 {
		return nil, nil
	}

	sort.Slice(points, func(i, j int) bool { return points[i].x < points[j].x })

	// Merge duplicate x values into weighted means.
	merged := make([]isoPoint, 0, len(points))
	for _, p := range points {
		if n := len(merged); n > 0 && merged[n-1].x == p.x {
			prev := &merged[n-1]
			total := prev.w + p.w
			prev.y = (prev.y*prev.w + p.y*p.w) / total
			prev.w = total
			continue
		}
		merged = append(merged, p)
	}

	// Pool-adjacent-violators: maintain a stack of blocks with non-decreasing
	// means, merging backwards whenever a new block violates monotonicity.
	type block struct {
		xSum, ySum, w float64
		count         int
	}
	blocks := make([]block, 0, len(merged))
	for _, p := range merged {
		blocks = append(blocks, block{xSum: p.x * p.w, ySum: p.y * p.w, w: p.w, count: 1})
		for len(blocks) > 1 {
			n := len(blocks)
			cur, prev := blocks[n-1], blocks[n-2]
			if prev.ySum/prev.w <= cur.ySum/cur.w {
				break
			}
			blocks[n-2] = block{
				xSum:  prev.xSum + cur.xSum,
				ySum:  prev.ySum + cur.ySum,
				w:     prev.w + cur.w,
				count: prev.count + cur.count,
			}
			blocks = blocks[:n-1]
		}
	}

	xs = make([]float64, len(blocks))
	ys = make([]float64, len(blocks))
	for i, b := range blocks {
		xs[i] = b.xSum / b.w
		ys[i] = b.ySum / b.w
	}
	return xs, ys
}

// interpolate evaluates the fitted curve at x with linear interpolation
// between control points and flat extension beyond the ends.
func interpolate(xs, ys []float64, x float64) float64 {
	if len(xs) == 0 {
		return 0.5
	}
	if x <= xs[0] {
		return ys[0]
	}
	if x >= xs[len(xs)-1] {
		return ys[len(ys)-1]
	}
	for i := 1; i < len(xs); i++ {
		if x <= xs[i] {
			x0, x1 := xs[i-1], xs[i]
			y0, y1 := ys[i-1], ys[i]
			if x1 == x0 {
				return y1
			}
			frac := (x - x0) / (x1 - x0)
			return y0 + frac*(y1-y0)
		}
	}
	return ys[len(ys)-1]
}
