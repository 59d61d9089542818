package protocol

import (
	"errors"

	"ropesim/internal/sim/rope"
)

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Command list parsing.
	ErrParseFormat    = "E_PARSE_FORMAT"
	ErrParseDirection = "E_PARSE_DIRECTION"
	ErrParseMagnitude = "E_PARSE_MAGNITUDE"

	// Simulation layer.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrLimit      = "E_LIMIT"
	ErrInvariant  = "E_INVARIANT"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrParseFormat:     {},
	ErrParseDirection:  {},
	ErrParseMagnitude:  {},
	ErrBadRequest:      {},
	ErrLimit:           {},
	ErrInvariant:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// CodeOf maps an error from parsing or simulating to its wire code.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Code
	}
	switch {
	case rope.IsInvariant(err):
		return ErrInvariant
	case errors.Is(err, rope.ErrStepLimit):
		return ErrLimit
	case errors.Is(err, rope.ErrInvalidCommand), errors.Is(err, rope.ErrInvalidChain):
		return ErrBadRequest
	}
	return ErrInternal
}

// IsClientError reports whether code blames the request rather than the server.
func IsClientError(code string) bool {
	switch code {
	case ErrInvariant, ErrInternal, "":
		return false
	}
	return true
}
