package main

import (
	"flag"
	"fmt"
	"os"

	"ropesim/internal/persistence/snapshot"
	"ropesim/internal/runner"
)

func main() {
	var (
		snapPath = flag.String("snapshot", "", "path to run.snap.zst")
		stepsDir = flag.String("steps", "", "dir containing steps-*.jsonl.zst (optional)")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	fmt.Printf("snapshot v%d run=%s created=%s commands=%d steps=%d parts=%d\n",
		snap.Header.Version, snap.Header.RunID, snap.Header.CreatedAt, len(snap.Commands), snap.Header.Steps, len(snap.Parts))
	for _, p := range snap.Parts {
		fmt.Printf("  %s followers=%d distinct=%d digest=%s\n", p.Name, p.Followers, p.Distinct, p.Digest)
	}

	res, err := runner.Verify(snap, *stepsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: parts=%d checked=%d steps\n", res.Parts, res.CheckedSteps)
}
