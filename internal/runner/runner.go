// Package runner executes one simulation request end to end: solve every
// part, then write the step log, snapshot and index entry the tuning asks
// for.
package runner

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"ropesim/internal/persistence/indexdb"
	persistlog "ropesim/internal/persistence/log"
	"ropesim/internal/persistence/snapshot"
	"ropesim/internal/sim/report"
	"ropesim/internal/sim/rope"
	"ropesim/internal/sim/tuning"
)

// ctxCheckEvery is how many unit steps pass between cancellation checks.
const ctxCheckEvery = 4096

type Config struct {
	// DataDir holds runs/<id>/{run.snap.zst,steps/}. Empty disables files.
	DataDir string
	Tuning  tuning.Tuning
	Index   *indexdb.SQLiteIndex
	Logger  *log.Logger
}

type Runner struct {
	cfg Config
}

func New(cfg Config) *Runner {
	return &Runner{cfg: cfg}
}

func (r *Runner) Tuning() tuning.Tuning { return r.cfg.Tuning }

type Request struct {
	RunID    string
	Source   string
	Commands []rope.Command
	// Parts overrides the tuning parts when non-empty.
	Parts []tuning.Part
	// OnStep sees every state of every part, after persistence hooks.
	OnStep func(part tuning.Part, s rope.Step) error
}

type Result struct {
	RunID        string
	Report       report.Report
	SnapshotPath string
	StepLogDir   string
	Elapsed      time.Duration
}

func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	res := Result{RunID: req.RunID}
	if res.RunID == "" {
		res.RunID = uuid.NewString()
	}
	parts := req.Parts
	if len(parts) == 0 {
		parts = r.cfg.Tuning.Parts
	}
	persist := r.cfg.Tuning.Persistence
	runDir := ""
	if r.cfg.DataDir != "" {
		runDir = filepath.Join(r.cfg.DataDir, "runs", res.RunID)
	}

	var steps *persistlog.StepLogger
	if persist.StepLog && runDir != "" {
		steps = persistlog.NewStepLogger(runDir)
		res.StepLogDir = persistlog.StepsDir(runDir)
	}

	var n uint64
	onStep := func(p tuning.Part, s rope.Step) error {
		n++
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if steps != nil {
			if err := steps.WriteStep(persistlog.StepLogEntry{
				Run:       res.RunID,
				Part:      p.Name,
				Followers: p.Followers,
				Step:      s.Index,
				Command:   s.Command,
				Head:      s.State.Head,
				Tail:      s.State.Tail(),
				Digest:    rope.StateDigest(s.Index, s.State),
			}); err != nil {
				return fmt.Errorf("step log: %w", err)
			}
		}
		if req.OnStep != nil {
			return req.OnStep(p, s)
		}
		return nil
	}

	rep, err := report.Solve(req.Commands, parts, report.Options{
		MaxSteps:    r.cfg.Tuning.MaxSteps,
		KeepHistory: r.cfg.Tuning.KeepHistory,
		OnStep:      onStep,
	})
	if steps != nil {
		if cerr := steps.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("step log: %w", cerr)
		}
	}
	if err != nil {
		return res, err
	}
	res.Report = rep

	if persist.Snapshot && r.cfg.DataDir != "" {
		path := snapshot.PathFor(r.cfg.DataDir, res.RunID)
		if err := snapshot.WriteSnapshot(path, snapshot.FromReport(res.RunID, req.Commands, rep)); err != nil {
			return res, fmt.Errorf("snapshot: %w", err)
		}
		res.SnapshotPath = path
	}

	if persist.Index && r.cfg.Index != nil {
		row := indexdb.RunRow{RunID: res.RunID, Source: req.Source, SnapshotPath: res.SnapshotPath}
		if err := r.cfg.Index.RecordRun(ctx, row, req.Commands, rep); err != nil {
			// The index is a read model; the run itself succeeded.
			r.logf("index: record run %s: %v", res.RunID, err)
		}
	}

	res.Elapsed = time.Since(start)
	return res, nil
}

func (r *Runner) logf(format string, args ...any) {
	if r.cfg.Logger != nil {
		r.cfg.Logger.Printf(format, args...)
	}
}
