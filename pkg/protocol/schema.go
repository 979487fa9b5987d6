package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// envelopeSchema describes the data frame accepted by clients.
const envelopeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["group", "payload"],
  "properties": {
    "key": {"type": ["string", "null"]},
    "group": {"type": "string"},
    "payload": true
  }
}`

var (
	schemaOnce    sync.Once
	compiled      *jsonschema.Schema
	compileSchErr error
)

func envelopeValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("envelope.json", strings.NewReader(envelopeSchema)); err != nil {
			compileSchErr = fmt.Errorf("failed to add envelope schema: %w", err)
			return
		}
		compiled, compileSchErr = compiler.Compile("envelope.json")
	})
	return compiled, compileSchErr
}

// ValidateEnvelope checks that data is a JSON document shaped like an
// Envelope. The returned error wraps ErrMalformedFrame.
func ValidateEnvelope(data []byte) error {
	schema, err := envelopeValidator()
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after envelope", ErrMalformedFrame)
	}

	if err := schema.Validate(doc); err != nil {
		var vErr *jsonschema.ValidationError
		if errors.As(err, &vErr) {
			return fmt.Errorf("%w: %s", ErrMalformedFrame, leafMessage(vErr))
		}
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}

// leafMessage returns the most specific cause of a validation failure.
func leafMessage(err *jsonschema.ValidationError) string {
	for len(err.Causes) > 0 {
		err = err.Causes[0]
	}
	if err.InstanceLocation == "" {
		return err.Message
	}
	return err.InstanceLocation + ": " + err.Message
}
