package registry

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolDesc describes a single tool, including input schema.
type ToolDesc struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Tool is one invocable capability. Implementations are stateless with
// respect to the registry; all inputs arrive through the argument map.
type Tool interface {
	Describe() ToolDesc
	Invoke(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Registry maps tool names to implementations. It is populated once at
// startup from a fixed list and never mutated afterwards, so lookups need no
// locking.
type Registry struct {
	order []string
	tools map[string]Tool
}

func New(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		name := t.Describe().Name
		if _, dup := r.tools[name]; dup {
			continue
		}
		r.order = append(r.order, name)
		r.tools[name] = t
	}
	return r
}

// Describe returns tool descriptors in registration order.
func (r *Registry) Describe() []ToolDesc {
	out := make([]ToolDesc, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Describe())
	}
	return out
}

// Invoke dispatches to the named tool.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
	return t.Invoke(ctx, args)
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// ToMap converts any JSON-taggable value into the map form tools return.
func ToMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
