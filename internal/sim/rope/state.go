package rope

import (
	"fmt"

	"ropesim/internal/sim/geom"
)

// Command moves the head Steps unit steps in Dir.
type Command struct {
	Dir   geom.Direction `json:"dir"`
	Steps int            `json:"steps"`
}

func (c Command) Validate() error {
	if !c.Dir.Valid() {
		return fmt.Errorf("%w: unknown direction %d", ErrInvalidCommand, uint8(c.Dir))
	}
	if c.Steps <= 0 {
		return fmt.Errorf("%w: non-positive magnitude %d", ErrInvalidCommand, c.Steps)
	}
	return nil
}

func (c Command) String() string { return fmt.Sprintf("%s %d", c.Dir.Letter(), c.Steps) }

// TotalSteps sums the magnitudes of cmds.
func TotalSteps(cmds []Command) uint64 {
	var n uint64
	for _, c := range cmds {
		if c.Steps > 0 {
			n += uint64(c.Steps)
		}
	}
	return n
}

// ChainState is the configuration of the chain at one instant. Followers[0]
// trails the head; the last follower is the tail.
type ChainState struct {
	Head      geom.Coord   `json:"head"`
	Followers []geom.Coord `json:"followers,omitempty"`
}

// MaxFollowers bounds the chain length of one run.
const MaxFollowers = 1024

// NewChain places the head and every follower on the origin.
func NewChain(followers int) (ChainState, error) {
	if followers < 0 || followers > MaxFollowers {
		return ChainState{}, fmt.Errorf("%w: %d followers", ErrInvalidChain, followers)
	}
	return ChainState{Head: geom.Origin, Followers: make([]geom.Coord, followers)}, nil
}

// Tail returns the last knot. A head-only chain is its own tail.
func (s ChainState) Tail() geom.Coord {
	if len(s.Followers) == 0 {
		return s.Head
	}
	return s.Followers[len(s.Followers)-1]
}

// Len is the number of knots including the head.
func (s ChainState) Len() int { return 1 + len(s.Followers) }

// Knots returns head then followers in chain order.
func (s ChainState) Knots() []geom.Coord {
	out := make([]geom.Coord, 0, s.Len())
	out = append(out, s.Head)
	return append(out, s.Followers...)
}

func (s ChainState) Clone() ChainState {
	out := ChainState{Head: s.Head}
	if s.Followers != nil {
		out.Followers = append([]geom.Coord(nil), s.Followers...)
	}
	return out
}

func (s ChainState) Equal(o ChainState) bool {
	if s.Head != o.Head || len(s.Followers) != len(o.Followers) {
		return false
	}
	for i := range s.Followers {
		if s.Followers[i] != o.Followers[i] {
			return false
		}
	}
	return true
}

// History is every chain state of one run, starting with the initial one.
type History []ChainState

// Tails returns the tail position of every recorded state.
func (h History) Tails() []geom.Coord {
	out := make([]geom.Coord, len(h))
	for i, s := range h {
		out[i] = s.Tail()
	}
	return out
}

// HeadTrajectory returns the head position of every recorded state.
func (h History) HeadTrajectory() []geom.Coord {
	out := make([]geom.Coord, len(h))
	for i, s := range h {
		out[i] = s.Head
	}
	return out
}
