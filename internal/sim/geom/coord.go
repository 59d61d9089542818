package geom

import "fmt"

// Coord is a point on the unbounded integer plane. X grows to the right and
// Y grows downward, so Up is (0,-1).
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

var Origin = Coord{}

func C(x, y int) Coord { return Coord{X: x, Y: y} }

func (c Coord) Add(o Coord) Coord { return Coord{X: c.X + o.X, Y: c.Y + o.Y} }
func (c Coord) Sub(o Coord) Coord { return Coord{X: c.X - o.X, Y: c.Y - o.Y} }

// Scale multiplies both components by k.
func (c Coord) Scale(k int) Coord { return Coord{X: c.X * k, Y: c.Y * k} }

// Sign returns the component-wise sign (-1, 0 or +1).
func (c Coord) Sign() Coord { return Coord{X: sign(c.X), Y: sign(c.Y)} }

// Chebyshev returns max(|dx|, |dy|). Two knots touch when it is <= 1.
func (c Coord) Chebyshev(o Coord) int {
	d := c.Sub(o)
	return max(abs(d.X), abs(d.Y))
}

// Manhattan returns |dx| + |dy|.
func (c Coord) Manhattan(o Coord) int {
	d := c.Sub(o)
	return abs(d.X) + abs(d.Y)
}

// Touches reports whether o is the same cell or one of its 8 neighbours.
func (c Coord) Touches(o Coord) bool { return c.Chebyshev(o) <= 1 }

func (c Coord) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Y) }

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func sign(x int) int {
	switch {
	case x < 0:
		return -1
	case x > 0:
		return 1
	}
	return 0
}
