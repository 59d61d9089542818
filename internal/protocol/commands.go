package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"ropesim/internal/sim/geom"
	"ropesim/internal/sim/rope"
)

// ParseError is a malformed command line. Line is 1-based; zero means the
// error is not tied to a line (e.g. a JSON document).
type ParseError struct {
	Line int
	Code string
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d %q: %v", e.Line, e.Text, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseCommands reads one "<U|D|L|R> <n>" command per line. Blank lines are
// skipped; the first malformed line aborts the parse.
func ParseCommands(r io.Reader) ([]rope.Command, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var out []rope.Command
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		cmd, err := ParseLine(text)
		if err != nil {
			pe := err.(*ParseError)
			pe.Line = line
			return nil, pe
		}
		out = append(out, cmd)
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, &ParseError{Line: line + 1, Code: ErrParseFormat, Err: err}
		}
		return nil, err
	}
	return out, nil
}

// ParseLine parses a single command. Errors are always *ParseError.
func ParseLine(text string) (rope.Command, error) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return rope.Command{}, &ParseError{Code: ErrParseFormat, Text: text, Err: fmt.Errorf("want \"<dir> <steps>\", got %d fields", len(fields))}
	}
	dir, ok := geom.ParseDirection(fields[0])
	if !ok {
		return rope.Command{}, &ParseError{Code: ErrParseDirection, Text: text, Err: fmt.Errorf("unknown direction %q", fields[0])}
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return rope.Command{}, &ParseError{Code: ErrParseMagnitude, Text: text, Err: fmt.Errorf("magnitude: %w", err)}
	}
	if n <= 0 {
		return rope.Command{}, &ParseError{Code: ErrParseMagnitude, Text: text, Err: fmt.Errorf("magnitude must be positive, got %d", n)}
	}
	return rope.Command{Dir: dir, Steps: n}, nil
}

// FormatCommands renders cmds in the line format ParseCommands reads.
func FormatCommands(cmds []rope.Command) string {
	var b strings.Builder
	for _, c := range cmds {
		b.WriteString(c.String())
		b.WriteByte('\n')
	}
	return b.String()
}
