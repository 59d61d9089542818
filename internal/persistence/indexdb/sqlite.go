package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"ropesim/internal/protocol"
	"ropesim/internal/sim/geom"
	"ropesim/internal/sim/report"
	"ropesim/internal/sim/rope"
)

const schemaVersion = "1"

// SQLiteIndex is a read model of finished runs. The snapshot files remain
// the source of truth; the index only makes them queryable.
type SQLiteIndex struct {
	db   *sql.DB
	once sync.Once
}

type RunRow struct {
	RunID          string `json:"run_id"`
	CreatedAt      string `json:"created_at"`
	Source         string `json:"source,omitempty"`
	Commands       int    `json:"commands"`
	Steps          uint64 `json:"steps"`
	CommandsDigest string `json:"commands_digest"`
	SnapshotPath   string `json:"snapshot_path,omitempty"`
}

type PartRow struct {
	RunID     string     `json:"run_id"`
	Seq       int        `json:"seq"`
	Name      string     `json:"name"`
	Followers int        `json:"followers"`
	Steps     uint64     `json:"steps"`
	Distinct  int        `json:"distinct"`
	Tail      geom.Coord `json:"tail"`
	Digest    string     `json:"digest"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteIndex{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			source TEXT NOT NULL,
			commands INTEGER NOT NULL,
			steps INTEGER NOT NULL,
			commands_digest TEXT NOT NULL,
			snapshot_path TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_commands_digest ON runs(commands_digest);`,
		`CREATE TABLE IF NOT EXISTS parts (
			run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			name TEXT NOT NULL,
			followers INTEGER NOT NULL,
			steps INTEGER NOT NULL,
			distinct_tails INTEGER NOT NULL,
			tail_x INTEGER NOT NULL,
			tail_y INTEGER NOT NULL,
			digest TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS visited (
			run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
			part TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			PRIMARY KEY (run_id, part, x, y)
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','` + schemaVersion + `');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.once.Do(func() {
		err = s.db.Close()
	})
	return err
}

// CommandsDigest identifies a command list independent of how it was sent.
func CommandsDigest(cmds []rope.Command) string {
	sum := sha256.Sum256([]byte(protocol.FormatCommands(cmds)))
	return hex.EncodeToString(sum[:])
}

// RecordRun stores a finished run, its parts and every visited tail cell in
// one transaction. Recording the same run id again replaces it.
func (s *SQLiteIndex) RecordRun(ctx context.Context, run RunRow, cmds []rope.Command, rep report.Report) error {
	if s == nil {
		return nil
	}
	if run.RunID == "" {
		return fmt.Errorf("empty run id")
	}
	if run.CreatedAt == "" {
		run.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	run.Commands = len(cmds)
	run.Steps = rope.TotalSteps(cmds)
	run.CommandsDigest = CommandsDigest(cmds)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM visited WHERE run_id = ?`,
		`DELETE FROM parts WHERE run_id = ?`,
		`DELETE FROM runs WHERE run_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, run.RunID); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs(run_id,created_at,source,commands,steps,commands_digest,snapshot_path) VALUES(?,?,?,?,?,?,?)`,
		run.RunID, run.CreatedAt, run.Source, run.Commands, int64(run.Steps), run.CommandsDigest, run.SnapshotPath,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	insertPart, err := tx.PrepareContext(ctx, `INSERT INTO parts(run_id,seq,name,followers,steps,distinct_tails,tail_x,tail_y,digest) VALUES(?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer insertPart.Close()
	insertVisited, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO visited(run_id,part,x,y) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer insertVisited.Close()

	for i, p := range rep.Parts {
		tail := p.Final.Tail()
		if _, err := insertPart.ExecContext(ctx, run.RunID, i, p.Part.Name, p.Part.Followers, int64(p.Steps), p.Distinct, tail.X, tail.Y, p.Digest); err != nil {
			return fmt.Errorf("insert part %s: %w", p.Part.Name, err)
		}
		for _, v := range p.Visited {
			if _, err := insertVisited.ExecContext(ctx, run.RunID, p.Part.Name, v.X, v.Y); err != nil {
				return fmt.Errorf("insert visited %s: %w", p.Part.Name, err)
			}
		}
	}
	return tx.Commit()
}

// Runs lists the most recent runs first.
func (s *SQLiteIndex) Runs(ctx context.Context, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id,created_at,source,commands,steps,commands_digest,snapshot_path FROM runs ORDER BY created_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		var steps int64
		if err := rows.Scan(&r.RunID, &r.CreatedAt, &r.Source, &r.Commands, &steps, &r.CommandsDigest, &r.SnapshotPath); err != nil {
			return nil, err
		}
		r.Steps = uint64(steps)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Parts returns the per-part results of a run in report order.
func (s *SQLiteIndex) Parts(ctx context.Context, runID string) ([]PartRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq,name,followers,steps,distinct_tails,tail_x,tail_y,digest FROM parts WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PartRow
	for rows.Next() {
		r := PartRow{RunID: runID}
		var steps int64
		if err := rows.Scan(&r.Seq, &r.Name, &r.Followers, &steps, &r.Distinct, &r.Tail.X, &r.Tail.Y, &r.Digest); err != nil {
			return nil, err
		}
		r.Steps = uint64(steps)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Visited returns the tail cells of one part ordered by Y, then X.
func (s *SQLiteIndex) Visited(ctx context.Context, runID, part string) ([]geom.Coord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT x,y FROM visited WHERE run_id = ? AND part = ? ORDER BY y, x`, runID, part)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []geom.Coord
	for rows.Next() {
		var c geom.Coord
		if err := rows.Scan(&c.X, &c.Y); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FindByCommands returns the newest run with the same command list.
func (s *SQLiteIndex) FindByCommands(ctx context.Context, cmds []rope.Command) (RunRow, bool, error) {
	var r RunRow
	var steps int64
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id,created_at,source,commands,steps,commands_digest,snapshot_path FROM runs WHERE commands_digest = ? ORDER BY created_at DESC LIMIT 1`,
		CommandsDigest(cmds),
	).Scan(&r.RunID, &r.CreatedAt, &r.Source, &r.Commands, &steps, &r.CommandsDigest, &r.SnapshotPath)
	if err == sql.ErrNoRows {
		return r, false, nil
	}
	if err != nil {
		return r, false, err
	}
	r.Steps = uint64(steps)
	return r, true, nil
}
