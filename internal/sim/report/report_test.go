package report

import (
	"errors"
	"strings"
	"testing"

	"ropesim/internal/protocol"
	"ropesim/internal/sim/rope"
	"ropesim/internal/sim/tuning"
)

func mustParse(t *testing.T, s string) []rope.Command {
	t.Helper()
	cmds, err := protocol.ParseCommands(strings.NewReader(s))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return cmds
}

const (
	small = "R 4\nU 4\nL 3\nD 1\nR 4\nD 1\nL 5\nR 2\n"
	large = "R 5\nU 8\nL 8\nD 3\nR 17\nD 10\nL 25\nU 20\n"
)

func TestSolve_DefaultParts(t *testing.T) {
	rep, err := Solve(mustParse(t, small), tuning.Defaults().Parts, Options{})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	lines := rep.Lines()
	if len(lines) != 2 || lines[0] != "Part 1: 13" || lines[1] != "Part 2: 1" {
		t.Fatalf("lines: %q", lines)
	}
	p1, ok := rep.Part("part1")
	if !ok || p1.Steps != 24 || len(p1.Visited) != 13 {
		t.Fatalf("part1: %+v", p1)
	}
	if p1.History != nil {
		t.Fatalf("history kept without KeepHistory")
	}
	if _, ok := rep.Part("nope"); ok {
		t.Fatalf("unknown part found")
	}
}

func TestSolve_HistoryModeMatchesStepperMode(t *testing.T) {
	cmds := mustParse(t, large)
	parts := []tuning.Part{{Name: "head", Followers: 0}, {Name: "p2", Followers: 9}}

	lean, err := Solve(cmds, parts, Options{})
	if err != nil {
		t.Fatalf("solve lean: %v", err)
	}
	full, err := Solve(cmds, parts, Options{KeepHistory: true})
	if err != nil {
		t.Fatalf("solve full: %v", err)
	}
	for i := range parts {
		a, b := lean.Parts[i], full.Parts[i]
		if a.Distinct != b.Distinct || a.Steps != b.Steps || a.Digest != b.Digest || !a.Final.Equal(b.Final) {
			t.Fatalf("%s: lean %+v vs full %+v", parts[i].Name, a, b)
		}
		if len(b.History) != int(b.Steps)+1 {
			t.Fatalf("%s: history length %d steps %d", parts[i].Name, len(b.History), b.Steps)
		}
	}
	if p2, _ := full.Part("p2"); p2.Distinct != 36 {
		t.Fatalf("p2 distinct: got %d want 36", p2.Distinct)
	}
}

func TestSolve_OnStepSeesEveryStepInBothModes(t *testing.T) {
	cmds := mustParse(t, small)
	for _, keep := range []bool{false, true} {
		var steps []rope.Step
		_, err := Solve(cmds, []tuning.Part{{Name: "p", Followers: 1}}, Options{
			KeepHistory: keep,
			OnStep: func(_ tuning.Part, s rope.Step) error {
				steps = append(steps, s)
				return nil
			},
		})
		if err != nil {
			t.Fatalf("keep=%v: %v", keep, err)
		}
		if len(steps) != 25 {
			t.Fatalf("keep=%v: got %d steps want 25", keep, len(steps))
		}
		if steps[0].Index != 0 || steps[0].Command != -1 {
			t.Fatalf("keep=%v: initial step %+v", keep, steps[0])
		}
		// R4 covers steps 1..4, U4 covers 5..8.
		if steps[4].Command != 0 || steps[5].Command != 1 || steps[24].Command != 7 {
			t.Fatalf("keep=%v: command indices %d %d %d", keep, steps[4].Command, steps[5].Command, steps[24].Command)
		}
		for i, s := range steps {
			if s.Index != uint64(i) {
				t.Fatalf("keep=%v: step %d has index %d", keep, i, s.Index)
			}
		}
	}
}

func TestSolve_Errors(t *testing.T) {
	cmds := mustParse(t, large)
	for _, keep := range []bool{false, true} {
		_, err := Solve(cmds, tuning.Defaults().Parts, Options{MaxSteps: 10, KeepHistory: keep})
		if !errors.Is(err, rope.ErrStepLimit) {
			t.Fatalf("keep=%v: expected step limit, got %v", keep, err)
		}
	}
	if _, err := Solve(cmds, []tuning.Part{{Name: "bad", Followers: -2}}, Options{}); !errors.Is(err, rope.ErrInvalidChain) {
		t.Fatalf("negative followers: got %v", err)
	}
	if _, err := Solve([]rope.Command{{Dir: 1, Steps: 0}}, tuning.Defaults().Parts, Options{}); !errors.Is(err, rope.ErrInvalidCommand) {
		t.Fatalf("bad command: got %v", err)
	}
}

func TestSolve_NoCommands(t *testing.T) {
	rep, err := Solve(nil, tuning.Defaults().Parts, Options{})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	for _, p := range rep.Parts {
		if p.Distinct != 1 || p.Steps != 0 {
			t.Fatalf("%s: %+v", p.Part.Name, p)
		}
	}
}
