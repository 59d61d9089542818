package rope

import "ropesim/internal/sim/geom"

// followRule is one row of the follow table, keyed by the Manhattan distance
// between the leader's new position and the follower's old one.
type followRule struct {
	// scale multiplies sign(dx), sign(dy). Zero means stay put.
	scale int
	// holdDiagonal keeps the follower still when the gap is exactly (±1,±1).
	holdDiagonal bool
}

// followTable covers every gap reachable by a chain whose head moves one unit
// per step. Rows 5 and 6 can only be hit by a leader that jumped more than one
// cell diagonally, which the stepper rejects before it gets here.
var followTable = [...]followRule{
	0: {},
	1: {},
	2: {scale: 1, holdDiagonal: true},
	3: {scale: 1},
	4: {scale: 1},
	5: {scale: 2},
	6: {scale: 2},
}

// MaxFollowDistance is the largest Manhattan gap Follow resolves.
const MaxFollowDistance = len(followTable) - 1

// Follow returns the follower's new position given the knot ahead of it has
// just moved to leader. It is pure; touching knots never move.
func Follow(leader, follower geom.Coord) (geom.Coord, error) {
	d := leader.Sub(follower)
	m := leader.Manhattan(follower)
	if m > MaxFollowDistance {
		return follower, &InvariantError{Leader: leader, Follower: follower, Err: ErrFollowRange}
	}
	r := followTable[m]
	if r.scale == 0 {
		return follower, nil
	}
	if r.holdDiagonal && d.Sign() == d {
		// |dx| == |dy| == 1 here, since m == 2 and no axis is zero.
		return follower, nil
	}
	return follower.Add(d.Sign().Scale(r.scale)), nil
}

// MustFollow is Follow for callers that already guarantee the gap is in range.
func MustFollow(leader, follower geom.Coord) geom.Coord {
	next, err := Follow(leader, follower)
	if err != nil {
		panic(err)
	}
	return next
}
