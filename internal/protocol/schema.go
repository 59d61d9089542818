package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const (
	commandsSchema = "commands.schema.json"
	// Fixed base so validation errors never carry a local file path.
	commandsSchemaURL = "https://ropesim.local/schemas/" + commandsSchema
)

var (
	schemaOnce sync.Once
	schemaDoc  *jsonschema.Schema
	schemaErr  error
)

func commandDocSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		raw, err := schemaFS.ReadFile("schemas/" + commandsSchema)
		if err != nil {
			schemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(commandsSchemaURL, bytes.NewReader(raw)); err != nil {
			schemaErr = err
			return
		}
		schemaDoc, schemaErr = c.Compile(commandsSchemaURL)
	})
	return schemaDoc, schemaErr
}

// DecodeCommandDoc validates b against the command document schema and
// decodes it. Validation failures are *ParseError with E_PROTO_BAD_REQUEST.
func DecodeCommandDoc(b []byte) (CommandDoc, error) {
	var doc CommandDoc
	s, err := commandDocSchema()
	if err != nil {
		return doc, fmt.Errorf("compile %s: %w", commandsSchema, err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return doc, &ParseError{Code: ErrProtoBadRequest, Err: fmt.Errorf("json: %w", err)}
	}
	if err := s.Validate(v); err != nil {
		return doc, &ParseError{Code: ErrProtoBadRequest, Err: err}
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return doc, &ParseError{Code: ErrProtoBadRequest, Err: fmt.Errorf("json: %w", err)}
	}
	return doc, nil
}
