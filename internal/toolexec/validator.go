package toolexec

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/jmelis/sotto/internal/jsonval"
)

// validator checks tool arguments against their declared schema, caching
// compiled schemas by their canonical JSON text.
type validator struct {
	cache sync.Map // schema JSON -> *gojsonschema.Schema
}

func newValidator() *validator {
	return &validator{}
}

func (v *validator) validate(schema, args jsonval.Value) error {
	compiled, err := v.compiled(schema)
	if err != nil {
		return fmt.Errorf("invalid schema definition: %w", err)
	}

	argsJSON, err := json.Marshal(args)
	if err != nil {
		return err
	}

	result, err := compiled.Validate(gojsonschema.NewBytesLoader(argsJSON))
	if err != nil {
		return fmt.Errorf("validation execution failed: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var descs []string
	for _, desc := range result.Errors() {
		descs = append(descs, desc.String())
	}
	return fmt.Errorf("invalid arguments: %s", joinErrors(descs))
}

func (v *validator) compiled(schema jsonval.Value) (*gojsonschema.Schema, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	key := string(schemaJSON)
	if cached, ok := v.cache.Load(key); ok {
		return cached.(*gojsonschema.Schema), nil
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		return nil, err
	}
	v.cache.Store(key, compiled)
	return compiled, nil
}

// joinErrors keeps validation messages readable: at most three, then a
// count of the rest.
func joinErrors(descs []string) string {
	if len(descs) == 0 {
		return "no details"
	}
	truncated := ""
	if len(descs) > 3 {
		truncated = fmt.Sprintf(" (and %d more)", len(descs)-3)
		descs = descs[:3]
	}
	out := descs[0]
	for _, d := range descs[1:] {
		out += "; " + d
	}
	return out + truncated
}
