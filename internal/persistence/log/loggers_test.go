package log

import (
	"errors"
	"path/filepath"
	"testing"

	"ropesim/internal/sim/geom"
)

func TestStepLogger_WritesOneFilePerPart(t *testing.T) {
	runDir := filepath.Join(t.TempDir(), "runs", "r1")
	l := NewStepLogger(runDir)

	for i := uint64(0); i < 3; i++ {
		if err := l.WriteStep(StepLogEntry{Run: "r1", Part: "part1", Followers: 1, Step: i, Head: geom.C(int(i), 0), Digest: "d"}); err != nil {
			t.Fatalf("write part1: %v", err)
		}
	}
	for i := uint64(0); i < 2; i++ {
		if err := l.WriteStep(StepLogEntry{Run: "r1", Part: "part2", Followers: 9, Step: i, Tail: geom.C(0, -int(i))}); err != nil {
			t.Fatalf("write part2: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := ListStepLogs(StepsDir(runDir))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "steps-part1.jsonl.zst" || filepath.Base(files[1]) != "steps-part2.jsonl.zst" {
		t.Fatalf("files: %v", files)
	}

	var got []StepLogEntry
	if err := ReadStepLog(files[0], func(e StepLogEntry) error {
		got = append(got, e)
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 3 || got[2].Head != geom.C(2, 0) || got[2].Step != 2 || got[0].Followers != 1 {
		t.Fatalf("part1 entries: %+v", got)
	}

	n := 0
	if err := ReadStepLog(files[1], func(e StepLogEntry) error {
		n++
		if e.Tail != geom.C(0, -int(e.Step)) {
			t.Fatalf("part2 entry: %+v", e)
		}
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 2 {
		t.Fatalf("part2 entries: got %d", n)
	}
}

func TestReadStepLog_StopsOnCallbackError(t *testing.T) {
	dir := t.TempDir()
	l := NewStepLogger(dir)
	for i := uint64(0); i < 5; i++ {
		_ = l.WriteStep(StepLogEntry{Part: "p", Step: i})
	}
	_ = l.Close()

	stop := errors.New("stop")
	seen := 0
	err := ReadStepLog(filepath.Join(StepsDir(dir), "steps-p.jsonl.zst"), func(e StepLogEntry) error {
		seen++
		if e.Step == 1 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || seen != 2 {
		t.Fatalf("got err=%v seen=%d", err, seen)
	}
}

func TestListStepLogs_MissingDir(t *testing.T) {
	if _, err := ListStepLogs(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}
