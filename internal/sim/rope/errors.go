package rope

import (
	"errors"
	"fmt"

	"ropesim/internal/sim/geom"
)

var (
	ErrInvalidCommand = errors.New("invalid command")
	ErrInvalidChain   = errors.New("invalid chain length")
	ErrStepLimit      = errors.New("step limit exceeded")

	// Invariant violations. These indicate a logic defect, never bad input
	// that made it past validation.
	ErrFollowRange = errors.New("follower too far behind leader")
	ErrHeadStep    = errors.New("head moved by a non-unit step")
	ErrDetached    = errors.New("adjacent knots not touching")
)

// InvariantError reports where in a run an invariant broke. Knot is the index
// of the knot whose update failed (0 is the head).
type InvariantError struct {
	Step     uint64
	Knot     int
	Leader   geom.Coord
	Follower geom.Coord
	Err      error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("step %d knot %d: %v (leader=%s follower=%s)", e.Step, e.Knot, e.Err, e.Leader, e.Follower)
}

func (e *InvariantError) Unwrap() error { return e.Err }

// IsInvariant reports whether err came from a broken simulation invariant.
func IsInvariant(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}
