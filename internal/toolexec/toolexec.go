// Package toolexec defines the execution boundary for model-issued tool
// calls. The pipeline only depends on the Executor interface; what the tools
// actually do is the host application's business.
package toolexec

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmelis/sotto/internal/jsonval"
	"github.com/jmelis/sotto/internal/provider"
)

// Executor runs one named tool with parsed arguments and returns its output
// text.
type Executor interface {
	Execute(ctx context.Context, name string, args jsonval.Value) (string, error)
}

// ExecutionError wraps a tool failure. Callers feed it back to the model as
// a tool-result message instead of aborting the round.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string { return fmt.Sprintf("tool %s: %s", e.Tool, e.Err) }
func (e *ExecutionError) Unwrap() error { return e.Err }

// Func is the implementation of one registered tool.
type Func func(ctx context.Context, args jsonval.Value) (string, error)

// Tool couples a schema the model sees with the function that serves it.
type Tool struct {
	Name        string
	Description string
	Parameters  jsonval.Value // JSON schema for the arguments object; null skips validation
	Run         Func
}

// Registry is an Executor over host-registered tools. Arguments are checked
// against the tool's schema before the function runs, so implementations can
// trust their input shape.
type Registry struct {
	tools     map[string]Tool
	order     []string
	validator *validator
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool), validator: newValidator()}
}

// Register adds or replaces a tool. Registration order is preserved in
// Defs so the model always sees a stable list.
func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Defs returns the schema list advertised to the model.
func (r *Registry) Defs() []provider.ToolDef {
	defs := make([]provider.ToolDef, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, provider.ToolDef{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return defs
}

func (r *Registry) Execute(ctx context.Context, name string, args jsonval.Value) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", &ExecutionError{Tool: name, Err: errors.New("unknown tool")}
	}
	if !t.Parameters.IsNull() {
		if err := r.validator.validate(t.Parameters, args); err != nil {
			return "", &ExecutionError{Tool: name, Err: err}
		}
	}
	out, err := t.Run(ctx, args)
	if err != nil {
		return "", &ExecutionError{Tool: name, Err: err}
	}
	return out, nil
}
