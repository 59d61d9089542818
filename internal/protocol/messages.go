package protocol

import (
	"fmt"

	"ropesim/internal/sim/geom"
	"ropesim/internal/sim/rope"
)

// Request limits. commands.schema.json carries the same numbers.
const (
	MaxFollowers = rope.MaxFollowers
	MaxParts     = 16
)

// CheckFollowers applies the request limits to a follower list.
func CheckFollowers(followers []int) error {
	if len(followers) > MaxParts {
		return &ParseError{Code: ErrBadRequest, Err: fmt.Errorf("followers: at most %d parts, got %d", MaxParts, len(followers))}
	}
	for i, f := range followers {
		if f < 0 || f > MaxFollowers {
			return &ParseError{Code: ErrBadRequest, Err: fmt.Errorf("followers[%d]: want 0..%d, got %d", i, MaxFollowers, f)}
		}
	}
	return nil
}

// CommandSpec is the JSON form of one command.
type CommandSpec struct {
	Dir   string `json:"dir"`
	Steps int    `json:"steps"`
}

// CommandDoc is a JSON command list. It doubles as the HELLO message of the
// stream protocol, in which case Type is "HELLO".
type CommandDoc struct {
	Type            string        `json:"type,omitempty"`
	ProtocolVersion string        `json:"protocol_version,omitempty"`
	Followers       []int         `json:"followers,omitempty"`
	FrameEvery      int           `json:"frame_every,omitempty"`
	Commands        []CommandSpec `json:"commands"`
}

// RopeCommands converts the document's commands. The schema already rejects
// bad letters and magnitudes; this re-checks for documents built in code.
func (d CommandDoc) RopeCommands() ([]rope.Command, error) {
	out := make([]rope.Command, 0, len(d.Commands))
	for i, c := range d.Commands {
		dir, ok := geom.ParseDirection(c.Dir)
		if !ok {
			return nil, &ParseError{Code: ErrParseDirection, Err: fmt.Errorf("commands[%d]: unknown direction %q", i, c.Dir)}
		}
		if c.Steps <= 0 {
			return nil, &ParseError{Code: ErrParseMagnitude, Err: fmt.Errorf("commands[%d]: magnitude must be positive, got %d", i, c.Steps)}
		}
		out = append(out, rope.Command{Dir: dir, Steps: c.Steps})
	}
	return out, nil
}

// DocFromCommands is the inverse of RopeCommands.
func DocFromCommands(cmds []rope.Command, followers []int) CommandDoc {
	doc := CommandDoc{
		ProtocolVersion: Version,
		Followers:       followers,
		Commands:        make([]CommandSpec, 0, len(cmds)),
	}
	for _, c := range cmds {
		doc.Commands = append(doc.Commands, CommandSpec{Dir: c.Dir.Letter(), Steps: c.Steps})
	}
	return doc
}

// FRAME (server -> client): one unit step of one part.
type FrameMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Part            string       `json:"part"`
	Step            uint64       `json:"step"`
	Command         int          `json:"command"`
	Knots           []geom.Coord `json:"knots"`
	Digest          string       `json:"digest"`
}

type PartResult struct {
	Name      string     `json:"name"`
	Followers int        `json:"followers"`
	Steps     uint64     `json:"steps"`
	Distinct  int        `json:"distinct"`
	Tail      geom.Coord `json:"tail"`
	Digest    string     `json:"digest"`
}

// RESULT (server -> client)
type ResultMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	RunID           string       `json:"run_id,omitempty"`
	Parts           []PartResult `json:"parts"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewErrorMsg(err error) ErrorMsg {
	return ErrorMsg{
		Type:            TypeError,
		ProtocolVersion: Version,
		Code:            CodeOf(err),
		Message:         err.Error(),
	}
}
