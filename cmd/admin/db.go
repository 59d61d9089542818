package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ropesim/internal/persistence/indexdb"
	"ropesim/internal/protocol"
	"ropesim/internal/sim/geom"
	"ropesim/internal/sim/rope"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/index/runs.sqlite)")
	runID := fs.String("run", "", "run id (parts, trail)")
	part := fs.String("part", "part1", "part name (trail)")
	input := fs.String("input", "", "command list file (find)")
	limit := fs.Int("limit", 20, "result limit (runs)")
	_ = fs.Parse(args)

	q := "runs"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "runs.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()
	ctx := context.Background()

	switch q {
	case "runs":
		runs, err := idx.Runs(ctx, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range runs {
			printJSON(r)
		}

	case "parts":
		requireRun(*runID)
		parts, err := idx.Parts(ctx, *runID)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, p := range parts {
			printJSON(p)
		}

	case "trail":
		requireRun(*runID)
		visited, err := idx.Visited(ctx, *runID, *part)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		if len(visited) == 0 {
			fmt.Fprintf(os.Stderr, "no part %q in run %q\n", *part, *runID)
			os.Exit(2)
		}
		fmt.Println(rope.RenderTrail(visited, geom.Origin))

	case "find":
		if *input == "" {
			fmt.Fprintln(os.Stderr, "missing -input")
			os.Exit(2)
		}
		cmds, err := readCommandFile(*input)
		if err != nil {
			fmt.Fprintln(os.Stderr, "parse:", err)
			os.Exit(1)
		}
		run, ok, err := idx.FindByCommands(ctx, cmds)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Println("no run with these commands")
			os.Exit(1)
		}
		printJSON(run)

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data|-db PATH] [-run ID] [-part NAME] [-input FILE] runs|parts|trail|find")
		os.Exit(2)
	}
}

func requireRun(id string) {
	if strings.TrimSpace(id) == "" {
		fmt.Fprintln(os.Stderr, "missing -run")
		os.Exit(2)
	}
}

func readCommandFile(path string) ([]rope.Command, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return protocol.ParseCommands(f)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
