package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"ropesim/internal/protocol"
	"ropesim/internal/sim/geom"
	"ropesim/internal/sim/report"
	"ropesim/internal/sim/tuning"
)

func TestSQLiteIndex_RecordRun_WritesTables(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "index", "runs.sqlite")

	idx, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()

	cmds, err := protocol.ParseCommands(strings.NewReader("R 4\nU 4\nL 3\nD 1\nR 4\nD 1\nL 5\nR 2\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	rep, err := report.Solve(cmds, tuning.Defaults().Parts, report.Options{})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if err := idx.RecordRun(ctx, RunRow{RunID: "r1", Source: "test"}, cmds, rep); err != nil {
		t.Fatalf("record: %v", err)
	}
	// Re-recording replaces rather than duplicating.
	if err := idx.RecordRun(ctx, RunRow{RunID: "r1", Source: "test"}, cmds, rep); err != nil {
		t.Fatalf("record again: %v", err)
	}

	runs, err := idx.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "r1" || runs[0].Commands != 8 || runs[0].Steps != 24 {
		t.Fatalf("runs: %+v", runs)
	}
	if runs[0].CommandsDigest != CommandsDigest(cmds) {
		t.Fatalf("digest mismatch: %s", runs[0].CommandsDigest)
	}

	parts, err := idx.Parts(ctx, "r1")
	if err != nil {
		t.Fatalf("parts: %v", err)
	}
	if len(parts) != 2 || parts[0].Name != "part1" || parts[0].Distinct != 13 || parts[1].Distinct != 1 {
		t.Fatalf("parts: %+v", parts)
	}
	if parts[1].Tail != geom.Origin {
		t.Fatalf("part2 tail: %v", parts[1].Tail)
	}

	visited, err := idx.Visited(ctx, "r1", "part1")
	if err != nil {
		t.Fatalf("visited: %v", err)
	}
	if len(visited) != 13 {
		t.Fatalf("visited: got %d want 13", len(visited))
	}
	for i, p := range rep.Parts[0].Visited {
		if visited[i] != p {
			t.Fatalf("visited[%d]: got %v want %v", i, visited[i], p)
		}
	}

	found, ok, err := idx.FindByCommands(ctx, cmds)
	if err != nil || !ok || found.RunID != "r1" {
		t.Fatalf("find: %+v ok=%v err=%v", found, ok, err)
	}
	_, ok, err = idx.FindByCommands(ctx, cmds[:1])
	if err != nil || ok {
		t.Fatalf("find unknown: ok=%v err=%v", ok, err)
	}

	// Raw check: schema version recorded.
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	defer db.Close()
	var v string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key='schema_version'`).Scan(&v); err != nil || v != schemaVersion {
		t.Fatalf("schema_version: %q err=%v", v, err)
	}
}

func TestSQLiteIndex_Errors(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "x.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()
	if err := idx.RecordRun(context.Background(), RunRow{}, nil, report.Report{}); err == nil {
		t.Fatalf("expected error for empty run id")
	}

	var nilIdx *SQLiteIndex
	if err := nilIdx.RecordRun(context.Background(), RunRow{RunID: "x"}, nil, report.Report{}); err != nil {
		t.Fatalf("nil index should be a no-op: %v", err)
	}
	if err := nilIdx.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}
