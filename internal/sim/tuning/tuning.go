package tuning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"ropesim/internal/protocol"
)

type Tuning struct {
	// Parts are the chain lengths to solve, in report order.
	Parts []Part `yaml:"parts"`

	// MaxSteps aborts a run after this many unit steps per part (0 = no limit).
	MaxSteps uint64 `yaml:"max_steps"`
	// KeepHistory materializes every chain state instead of only the latest.
	KeepHistory bool `yaml:"keep_history"`

	Persistence Persistence `yaml:"persistence"`
	Server      Server      `yaml:"server"`
}

type Part struct {
	Name      string `yaml:"name"`
	Followers int    `yaml:"followers"`
}

type Persistence struct {
	StepLog  bool `yaml:"step_log"`
	Snapshot bool `yaml:"snapshot"`
	Index    bool `yaml:"index"`
}

type Server struct {
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
	// FrameEvery sends one FRAME per this many steps on the stream (1 = all).
	FrameEvery int `yaml:"frame_every"`
	MaxQueue   int `yaml:"max_queue"`
}

func Defaults() Tuning {
	return Tuning{
		Parts: []Part{
			{Name: "part1", Followers: 1},
			{Name: "part2", Followers: 9},
		},
		MaxSteps: 10_000_000,
		Persistence: Persistence{
			StepLog:  false,
			Snapshot: true,
			Index:    true,
		},
		Server: Server{
			MaxBodyBytes: 4 << 20,
			FrameEvery:   1,
			MaxQueue:     64,
		},
	}
}

// Load reads path over Defaults. Keys missing from the file keep their
// default values.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	for i := range t.Parts {
		t.Parts[i].Name = strings.TrimSpace(t.Parts[i].Name)
		if t.Parts[i].Name == "" {
			t.Parts[i].Name = fmt.Sprintf("part%d", i+1)
		}
	}
	if t.Server.FrameEvery <= 0 {
		t.Server.FrameEvery = 1
	}
	if t.Server.MaxQueue <= 0 {
		t.Server.MaxQueue = 8
	}
	if t.Server.MaxBodyBytes <= 0 {
		t.Server.MaxBodyBytes = Defaults().Server.MaxBodyBytes
	}
}

func (t Tuning) Validate() error {
	if len(t.Parts) == 0 {
		return fmt.Errorf("parts: at least one part required")
	}
	if len(t.Parts) > protocol.MaxParts {
		return fmt.Errorf("parts: at most %d parts, got %d", protocol.MaxParts, len(t.Parts))
	}
	seen := map[string]bool{}
	for i, p := range t.Parts {
		if p.Followers < 0 || p.Followers > protocol.MaxFollowers {
			return fmt.Errorf("parts[%d] %s: followers must be in 0..%d, got %d", i, p.Name, protocol.MaxFollowers, p.Followers)
		}
		if seen[p.Name] {
			return fmt.Errorf("parts[%d]: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// PartsFor builds parts from a bare follower list, named part1..partN.
func PartsFor(followers []int) []Part {
	out := make([]Part, 0, len(followers))
	for i, f := range followers {
		out = append(out, Part{Name: fmt.Sprintf("part%d", i+1), Followers: f})
	}
	return out
}
