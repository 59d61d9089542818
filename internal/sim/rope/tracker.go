package rope

import (
	"sort"

	"ropesim/internal/sim/geom"
)

// Tracker accumulates the distinct positions a knot has occupied.
type Tracker struct {
	seen map[geom.Coord]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{seen: make(map[geom.Coord]struct{}, 256)}
}

func (t *Tracker) Visit(p geom.Coord) { t.seen[p] = struct{}{} }

func (t *Tracker) Visited(p geom.Coord) bool {
	_, ok := t.seen[p]
	return ok
}

func (t *Tracker) Len() int { return len(t.seen) }

// Positions returns the visited set ordered by Y, then X.
func (t *Tracker) Positions() []geom.Coord {
	out := make([]geom.Coord, 0, len(t.seen))
	for p := range t.seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

// CountDistinctTailPositions returns how many different cells the tail
// occupied over h.
func CountDistinctTailPositions(h History) int {
	return CountDistinct(h.Tails())
}

// CountDistinct returns the number of distinct coordinates in ps.
func CountDistinct(ps []geom.Coord) int {
	t := NewTracker()
	for _, p := range ps {
		t.Visit(p)
	}
	return t.Len()
}
