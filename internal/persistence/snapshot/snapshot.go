package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"ropesim/internal/sim/geom"
	"ropesim/internal/sim/report"
	"ropesim/internal/sim/rope"
)

const Version = 1

type Header struct {
	Version   int    `json:"version"`
	RunID     string `json:"run_id"`
	CreatedAt string `json:"created_at"`
	Steps     uint64 `json:"steps"`
}

// RunSnapshotV1 captures everything needed to re-run and verify a run.
type RunSnapshotV1 struct {
	Header Header `json:"header"`

	Commands []CommandV1 `json:"commands"`
	Parts    []PartV1    `json:"parts"`
}

type CommandV1 struct {
	Dir   string `json:"dir"`
	Steps int    `json:"steps"`
}

type PartV1 struct {
	Name      string   `json:"name"`
	Followers int      `json:"followers"`
	Steps     uint64   `json:"steps"`
	Distinct  int      `json:"distinct"`
	Knots     [][2]int `json:"knots"`
	Digest    string   `json:"digest"`
	Visited   [][2]int `json:"visited,omitempty"`
}

// FromReport builds a snapshot of a finished run.
func FromReport(runID string, cmds []rope.Command, rep report.Report) RunSnapshotV1 {
	snap := RunSnapshotV1{
		Header: Header{
			Version:   Version,
			RunID:     runID,
			CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
			Steps:     rope.TotalSteps(cmds),
		},
		Commands: make([]CommandV1, 0, len(cmds)),
		Parts:    make([]PartV1, 0, len(rep.Parts)),
	}
	for _, c := range cmds {
		snap.Commands = append(snap.Commands, CommandV1{Dir: c.Dir.Letter(), Steps: c.Steps})
	}
	for _, p := range rep.Parts {
		snap.Parts = append(snap.Parts, PartV1{
			Name:      p.Part.Name,
			Followers: p.Part.Followers,
			Steps:     p.Steps,
			Distinct:  p.Distinct,
			Knots:     pairs(p.Final.Knots()),
			Digest:    p.Digest,
			Visited:   pairs(p.Visited),
		})
	}
	return snap
}

// RopeCommands decodes the recorded command list.
func (s RunSnapshotV1) RopeCommands() ([]rope.Command, error) {
	out := make([]rope.Command, 0, len(s.Commands))
	for i, c := range s.Commands {
		dir, ok := geom.ParseDirection(c.Dir)
		if !ok {
			return nil, fmt.Errorf("commands[%d]: unknown direction %q", i, c.Dir)
		}
		out = append(out, rope.Command{Dir: dir, Steps: c.Steps})
	}
	return out, nil
}

// FinalState rebuilds the recorded final chain state of a part.
func (p PartV1) FinalState() (rope.ChainState, error) {
	if len(p.Knots) == 0 {
		return rope.ChainState{}, fmt.Errorf("part %s: no knots recorded", p.Name)
	}
	s := rope.ChainState{Head: geom.C(p.Knots[0][0], p.Knots[0][1])}
	for _, k := range p.Knots[1:] {
		s.Followers = append(s.Followers, geom.C(k[0], k[1]))
	}
	return s, nil
}

func pairs(cs []geom.Coord) [][2]int {
	out := make([][2]int, 0, len(cs))
	for _, c := range cs {
		out = append(out, [2]int{c.X, c.Y})
	}
	return out
}

func WriteSnapshot(path string, snap RunSnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (RunSnapshotV1, error) {
	var snap RunSnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line is for humans and ReadHeader; gob carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}

// PathFor is where a run's snapshot lives under dataDir.
func PathFor(dataDir, runID string) string {
	return filepath.Join(dataDir, "runs", runID, "run.snap.zst")
}
