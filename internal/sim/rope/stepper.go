package rope

import (
	"errors"
	"fmt"

	"ropesim/internal/sim/geom"
)

// Step is one recorded unit step. Index 0 is the initial state; Command is
// the index of the command that produced it (-1 for the initial state).
type Step struct {
	Index   uint64
	Command int
	State   ChainState
}

// Observer is called once per unit step, in order. States handed to an
// observer are never mutated afterwards, so they may be retained.
type Observer func(Step) error

// Stepper advances a chain one unit step at a time and keeps only the latest
// state. Each step builds a fresh ChainState from the previous one.
type Stepper struct {
	state    ChainState
	step     uint64
	limit    uint64
	observer Observer
}

type StepperOption func(*Stepper)

// WithObserver registers fn to see every step after the initial state.
func WithObserver(fn Observer) StepperOption {
	return func(s *Stepper) { s.observer = fn }
}

// WithStepLimit makes Apply fail with ErrStepLimit once more than n unit
// steps have been taken. Zero disables the guard.
func WithStepLimit(n uint64) StepperOption {
	return func(s *Stepper) { s.limit = n }
}

func NewStepper(followers int, opts ...StepperOption) (*Stepper, error) {
	init, err := NewChain(followers)
	if err != nil {
		return nil, err
	}
	s := &Stepper{state: init}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// State returns the latest chain state. The returned value is not shared
// with the stepper.
func (s *Stepper) State() ChainState { return s.state.Clone() }

// Steps is the number of unit steps taken so far.
func (s *Stepper) Steps() uint64 { return s.step }

// Apply replays cmd as cmd.Steps unit steps. idx is reported to the observer.
func (s *Stepper) Apply(idx int, cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("command %d: %w", idx, err)
	}
	delta := cmd.Dir.Delta()
	for i := 0; i < cmd.Steps; i++ {
		if s.limit != 0 && s.step >= s.limit {
			return fmt.Errorf("command %d: %w (limit=%d)", idx, ErrStepLimit, s.limit)
		}
		next, err := advance(s.state, delta)
		if err != nil {
			var ie *InvariantError
			if errors.As(err, &ie) {
				ie.Step = s.step + 1
			}
			return err
		}
		if err := checkTransition(s.step+1, s.state, next); err != nil {
			return err
		}
		s.state = next
		s.step++
		if s.observer != nil {
			if err := s.observer(Step{Index: s.step, Command: idx, State: next}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Run applies every command in order.
func (s *Stepper) Run(cmds []Command) error {
	for i, c := range cmds {
		if err := s.Apply(i, c); err != nil {
			return err
		}
	}
	return nil
}

// advance moves the head by delta and drags every follower in chain order,
// each one chasing the already-updated knot in front of it.
func advance(prev ChainState, delta geom.Coord) (ChainState, error) {
	next := ChainState{Head: prev.Head.Add(delta)}
	if len(prev.Followers) > 0 {
		next.Followers = make([]geom.Coord, len(prev.Followers))
	}
	leader := next.Head
	for i, f := range prev.Followers {
		nf, err := Follow(leader, f)
		if err != nil {
			var ie *InvariantError
			if errors.As(err, &ie) {
				ie.Knot = i + 1
			}
			return prev, err
		}
		next.Followers[i] = nf
		leader = nf
	}
	return next, nil
}

// checkTransition asserts the per-step invariants: the head moved by exactly
// one unit delta and every pair of neighbours touches.
func checkTransition(step uint64, prev, next ChainState) error {
	if !geom.IsUnitStep(next.Head.Sub(prev.Head)) {
		return &InvariantError{Step: step, Knot: 0, Leader: next.Head, Follower: prev.Head, Err: ErrHeadStep}
	}
	leader := next.Head
	for i, f := range next.Followers {
		if !leader.Touches(f) {
			return &InvariantError{Step: step, Knot: i + 1, Leader: leader, Follower: f, Err: ErrDetached}
		}
		leader = f
	}
	return nil
}
