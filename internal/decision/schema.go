package decision

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/davidahmann/continuum/pkg/types"
)

const schemaURL = "https://continuum.local/schemas/decision.v0.schema.json"

//go:embed schema/decision.v0.schema.json
var decisionSchemaJSON []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func decisionSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, bytes.NewReader(decisionSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("decision schema load failed: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(schemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("decision schema compile failed: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

// Validate checks the wire form of d against the embedded decision schema.
func Validate(d types.Decision) error {
	schema, err := decisionSchema()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrValidation, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrValidation, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
