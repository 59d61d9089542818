package rope

import (
	"strings"

	"ropesim/internal/sim/geom"
)

// RenderTrail draws visited cells as '#', everything else in the bounding box
// as '.', and start as 's'. Rows run top to bottom in increasing Y.
func RenderTrail(visited []geom.Coord, start geom.Coord) string {
	minX, maxX, minY, maxY := start.X, start.X, start.Y, start.Y
	set := make(map[geom.Coord]struct{}, len(visited))
	for _, p := range visited {
		set[p] = struct{}{}
		minX = min(minX, p.X)
		maxX = max(maxX, p.X)
		minY = min(minY, p.Y)
		maxY = max(maxY, p.Y)
	}

	var b strings.Builder
	b.Grow((maxX - minX + 2) * (maxY - minY + 1))
	for y := minY; y <= maxY; y++ {
		if y > minY {
			b.WriteByte('\n')
		}
		for x := minX; x <= maxX; x++ {
			p := geom.C(x, y)
			switch _, ok := set[p]; {
			case p == start:
				b.WriteByte('s')
			case ok:
				b.WriteByte('#')
			default:
				b.WriteByte('.')
			}
		}
	}
	return b.String()
}
