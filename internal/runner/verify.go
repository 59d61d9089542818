package runner

import (
	"fmt"
	"path/filepath"
	"strings"

	persistlog "ropesim/internal/persistence/log"
	"ropesim/internal/persistence/snapshot"
	"ropesim/internal/sim/report"
	"ropesim/internal/sim/rope"
	"ropesim/internal/sim/tuning"
)

type VerifyResult struct {
	Parts        int
	CheckedSteps uint64
}

// Verify re-runs a snapshot's commands and checks every recorded part result.
// When stepsDir is non-empty, each logged step digest is checked as well.
func Verify(snap snapshot.RunSnapshotV1, stepsDir string) (VerifyResult, error) {
	var out VerifyResult
	cmds, err := snap.RopeCommands()
	if err != nil {
		return out, err
	}
	if got := rope.TotalSteps(cmds); got != snap.Header.Steps {
		return out, fmt.Errorf("header steps=%d but commands sum to %d", snap.Header.Steps, got)
	}

	byName := map[string]snapshot.PartV1{}
	for _, p := range snap.Parts {
		part := tuning.Part{Name: p.Name, Followers: p.Followers}
		got, err := report.SolvePart(cmds, part, report.Options{})
		if err != nil {
			return out, fmt.Errorf("%s: %w", p.Name, err)
		}
		want, err := p.FinalState()
		if err != nil {
			return out, err
		}
		switch {
		case got.Distinct != p.Distinct:
			return out, fmt.Errorf("%s: distinct mismatch: got=%d want=%d", p.Name, got.Distinct, p.Distinct)
		case got.Steps != p.Steps:
			return out, fmt.Errorf("%s: steps mismatch: got=%d want=%d", p.Name, got.Steps, p.Steps)
		case got.Digest != p.Digest:
			return out, fmt.Errorf("%s: digest mismatch: got=%s want=%s", p.Name, got.Digest, p.Digest)
		case !got.Final.Equal(want):
			return out, fmt.Errorf("%s: final state mismatch: got=%v want=%v", p.Name, got.Final.Knots(), want.Knots())
		}
		byName[p.Name] = p
		out.Parts++
	}

	if stepsDir == "" {
		return out, nil
	}
	files, err := persistlog.ListStepLogs(stepsDir)
	if err != nil {
		return out, err
	}
	if len(files) == 0 {
		return out, fmt.Errorf("no step logs found in %s", stepsDir)
	}
	for _, path := range files {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), "steps-"), ".jsonl.zst")
		p, ok := byName[name]
		if !ok {
			return out, fmt.Errorf("%s: no part %q in snapshot", filepath.Base(path), name)
		}
		n, err := verifyStepLog(path, cmds, p)
		out.CheckedSteps += n
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func verifyStepLog(path string, cmds []rope.Command, p snapshot.PartV1) (uint64, error) {
	digests := make([]string, 0, 1+rope.TotalSteps(cmds))
	_, err := report.SolvePart(cmds, tuning.Part{Name: p.Name, Followers: p.Followers}, report.Options{
		OnStep: func(_ tuning.Part, s rope.Step) error {
			digests = append(digests, rope.StateDigest(s.Index, s.State))
			return nil
		},
	})
	if err != nil {
		return 0, err
	}

	var checked uint64
	next := uint64(0)
	err = persistlog.ReadStepLog(path, func(e persistlog.StepLogEntry) error {
		if e.Step != next {
			return fmt.Errorf("step mismatch: want=%d got=%d (file=%s)", next, e.Step, filepath.Base(path))
		}
		if e.Step >= uint64(len(digests)) {
			return fmt.Errorf("step %d beyond end of run (file=%s)", e.Step, filepath.Base(path))
		}
		if e.Digest != digests[e.Step] {
			return fmt.Errorf("digest mismatch at %s step %d: got=%s want=%s", p.Name, e.Step, digests[e.Step], e.Digest)
		}
		next++
		checked++
		return nil
	})
	if err != nil {
		return checked, err
	}
	if next != uint64(len(digests)) {
		return checked, fmt.Errorf("%s: step log ends at %d, run has %d states", p.Name, next, len(digests))
	}
	return checked, nil
}
