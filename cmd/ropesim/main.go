package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"ropesim/internal/persistence/indexdb"
	"ropesim/internal/protocol"
	"ropesim/internal/runner"
	"ropesim/internal/sim/geom"
	"ropesim/internal/sim/rope"
	"ropesim/internal/sim/tuning"
)

func main() {
	var (
		inputPath  = flag.String("input", "-", "command list file (- for stdin)")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		dataDir    = flag.String("data", "", "data directory for snapshots and step logs (empty disables files)")
		runID      = flag.String("run", "", "run id (default: random uuid)")
		logSteps   = flag.Bool("log_steps", false, "write a per-step log (overrides tuning)")
		writeSnap  = flag.Bool("snapshot", true, "write a run snapshot when -data is set (overrides tuning)")
		dbPath     = flag.String("db", "", "sqlite run index path (empty disables)")
		draw       = flag.Bool("draw", false, "print each part's visited tail cells as a grid")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[ropesim] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "log_steps":
			tune.Persistence.StepLog = *logSteps
		case "snapshot":
			tune.Persistence.Snapshot = *writeSnap
		}
	})

	cmds, err := readCommands(*inputPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "parse:", err)
		os.Exit(1)
	}

	var idx *indexdb.SQLiteIndex
	if p := strings.TrimSpace(*dbPath); p != "" {
		idx, err = indexdb.OpenSQLite(p)
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
	}

	r := runner.New(runner.Config{
		DataDir: *dataDir,
		Tuning:  tune,
		Index:   idx,
		Logger:  logger,
	})
	res, err := r.Run(context.Background(), runner.Request{
		RunID:    *runID,
		Source:   "cli",
		Commands: cmds,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v (%s)\n", err, protocol.CodeOf(err))
		os.Exit(1)
	}

	for _, line := range res.Report.Lines() {
		fmt.Println(line)
	}
	if *draw {
		for _, p := range res.Report.Parts {
			fmt.Printf("\n%s (%d followers):\n%s\n", p.Part.Name, p.Part.Followers, rope.RenderTrail(p.Visited, geom.Origin))
		}
	}
	if res.SnapshotPath != "" {
		logger.Printf("run=%s snapshot=%s", res.RunID, res.SnapshotPath)
	}
	if res.StepLogDir != "" {
		logger.Printf("run=%s steps=%s", res.RunID, res.StepLogDir)
	}
}

func readCommands(path string) ([]rope.Command, error) {
	var in io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		in = f
	}
	return protocol.ParseCommands(in)
}
