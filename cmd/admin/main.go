package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"ropesim/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "runs":
			runsCmd(os.Args[2:])
			return
		case "health":
			healthCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints the run directories under <data>/runs with their snapshot
// headers, oldest first.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "runs")
	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	type row struct {
		id string
		h  snapshot.Header
	}
	var rows []row
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		h, err := snapshot.ReadHeader(snapshot.PathFor(*dataDir, e.Name()))
		if err != nil {
			fmt.Printf("%s\t(no snapshot: %v)\n", e.Name(), err)
			continue
		}
		rows = append(rows, row{id: e.Name(), h: h})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].h.CreatedAt != rows[j].h.CreatedAt {
			return rows[i].h.CreatedAt < rows[j].h.CreatedAt
		}
		return rows[i].id < rows[j].id
	})
	for _, r := range rows {
		fmt.Printf("%s\tcreated=%s steps=%d\n", r.id, r.h.CreatedAt, r.h.Steps)
	}
}
