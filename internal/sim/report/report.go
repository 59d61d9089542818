// Package report runs the chain simulation once per configured part and
// reduces each run to its distinct tail-position count.
package report

import (
	"fmt"

	"ropesim/internal/sim/geom"
	"ropesim/internal/sim/rope"
	"ropesim/internal/sim/tuning"
)

type Options struct {
	// MaxSteps aborts a part after this many unit steps (0 = unlimited).
	MaxSteps uint64
	// KeepHistory materializes the full history of every part.
	KeepHistory bool
	// OnStep sees every state of every part, starting with step 0.
	OnStep func(part tuning.Part, s rope.Step) error
}

type PartReport struct {
	Part     tuning.Part
	Steps    uint64
	Distinct int
	Final    rope.ChainState
	Digest   string
	Visited  []geom.Coord
	History  rope.History
}

type Report struct {
	Parts []PartReport
}

// Solve runs every part against the same command list.
func Solve(cmds []rope.Command, parts []tuning.Part, opts Options) (Report, error) {
	for i, c := range cmds {
		if err := c.Validate(); err != nil {
			return Report{}, fmt.Errorf("command %d: %w", i, err)
		}
	}
	rep := Report{Parts: make([]PartReport, 0, len(parts))}
	for _, p := range parts {
		pr, err := SolvePart(cmds, p, opts)
		if err != nil {
			return rep, fmt.Errorf("%s: %w", p.Name, err)
		}
		rep.Parts = append(rep.Parts, pr)
	}
	return rep, nil
}

func SolvePart(cmds []rope.Command, part tuning.Part, opts Options) (PartReport, error) {
	if opts.KeepHistory {
		return solveWithHistory(cmds, part, opts)
	}

	tr := rope.NewTracker()
	st, err := rope.NewStepper(part.Followers,
		rope.WithStepLimit(opts.MaxSteps),
		rope.WithObserver(func(s rope.Step) error {
			tr.Visit(s.State.Tail())
			if opts.OnStep != nil {
				return opts.OnStep(part, s)
			}
			return nil
		}),
	)
	if err != nil {
		return PartReport{}, err
	}
	init := st.State()
	tr.Visit(init.Tail())
	if opts.OnStep != nil {
		if err := opts.OnStep(part, rope.Step{Index: 0, Command: -1, State: init}); err != nil {
			return PartReport{}, err
		}
	}
	if err := st.Run(cmds); err != nil {
		return PartReport{}, err
	}

	final := st.State()
	return PartReport{
		Part:     part,
		Steps:    st.Steps(),
		Distinct: tr.Len(),
		Final:    final,
		Digest:   rope.StateDigest(st.Steps(), final),
		Visited:  tr.Positions(),
	}, nil
}

func solveWithHistory(cmds []rope.Command, part tuning.Part, opts Options) (PartReport, error) {
	if opts.MaxSteps != 0 && rope.TotalSteps(cmds) > opts.MaxSteps {
		return PartReport{}, fmt.Errorf("%w (limit=%d)", rope.ErrStepLimit, opts.MaxSteps)
	}
	h, err := rope.Simulate(cmds, part.Followers)
	if err != nil {
		return PartReport{}, err
	}
	if opts.OnStep != nil {
		idx := commandIndexer(cmds)
		for i, s := range h {
			if err := opts.OnStep(part, rope.Step{Index: uint64(i), Command: idx(uint64(i)), State: s}); err != nil {
				return PartReport{}, err
			}
		}
	}
	tr := rope.NewTracker()
	for _, p := range h.Tails() {
		tr.Visit(p)
	}
	steps := uint64(len(h) - 1)
	final := h[len(h)-1].Clone()
	return PartReport{
		Part:     part,
		Steps:    steps,
		Distinct: rope.CountDistinctTailPositions(h),
		Final:    final,
		Digest:   rope.StateDigest(steps, final),
		Visited:  tr.Positions(),
		History:  h,
	}, nil
}

// commandIndexer maps a step index back to the command that produced it.
// Calls must use non-decreasing step indices.
func commandIndexer(cmds []rope.Command) func(step uint64) int {
	ci := 0
	var end uint64
	if len(cmds) > 0 {
		end = uint64(cmds[0].Steps)
	}
	return func(step uint64) int {
		if step == 0 {
			return -1
		}
		for ci < len(cmds)-1 && step > end {
			ci++
			end += uint64(cmds[ci].Steps)
		}
		return ci
	}
}

// Part returns the report for the named part.
func (r Report) Part(name string) (PartReport, bool) {
	for _, p := range r.Parts {
		if p.Part.Name == name {
			return p, true
		}
	}
	return PartReport{}, false
}

// Lines formats the result as "Part <n>: <count>", one line per part.
func (r Report) Lines() []string {
	out := make([]string, 0, len(r.Parts))
	for i, p := range r.Parts {
		out = append(out, fmt.Sprintf("Part %d: %d", i+1, p.Distinct))
	}
	return out
}
