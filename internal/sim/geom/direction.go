package geom

import "fmt"

type Direction uint8

const (
	Up Direction = iota + 1
	Down
	Left
	Right
)

// Directions lists the four head moves in a fixed order.
var Directions = [4]Direction{Up, Down, Left, Right}

// Delta returns the unit displacement of one step. Unknown values map to the
// zero vector.
func (d Direction) Delta() Coord {
	switch d {
	case Up:
		return Coord{X: 0, Y: -1}
	case Down:
		return Coord{X: 0, Y: 1}
	case Left:
		return Coord{X: -1, Y: 0}
	case Right:
		return Coord{X: 1, Y: 0}
	}
	return Coord{}
}

func (d Direction) Valid() bool { return d >= Up && d <= Right }

// Letter is the single-letter form used by command lists.
func (d Direction) Letter() string {
	switch d {
	case Up:
		return "U"
	case Down:
		return "D"
	case Left:
		return "L"
	case Right:
		return "R"
	}
	return "?"
}

func (d Direction) String() string {
	switch d {
	case Up:
		return "Up"
	case Down:
		return "Down"
	case Left:
		return "Left"
	case Right:
		return "Right"
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

// ParseDirection maps U, D, L or R to a Direction.
func ParseDirection(letter string) (Direction, bool) {
	switch letter {
	case "U":
		return Up, true
	case "D":
		return Down, true
	case "L":
		return Left, true
	case "R":
		return Right, true
	}
	return 0, false
}

// IsUnitStep reports whether d is exactly one of the four direction deltas.
func IsUnitStep(d Coord) bool {
	return abs(d.X)+abs(d.Y) == 1
}
