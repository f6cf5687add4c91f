package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// Kind is the closed set of parameter types a tool may declare.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindEnum    Kind = "enum"
)

// Param describes one named tool argument.
type Param struct {
	Kind     Kind
	Required bool
	Desc     string
	Enum     []string // only for KindEnum
}

// ExecuteFunc runs a tool. It returns a string or any JSON-serializable value.
type ExecuteFunc func(ctx context.Context, args map[string]any) (any, error)

// Tool is a named, schema-described callable exposed to the model.
type Tool struct {
	Name        string
	Description string
	Params      map[string]Param
	Execute     ExecuteFunc
}

// Info converts the descriptor into the provider-facing eino tool schema.
func (t Tool) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name:        t.Name,
		Desc:        t.Description,
		ParamsOneOf: schema.NewParamsOneOfByParams(t.parameterInfos()),
	}
}

func (t Tool) parameterInfos() map[string]*schema.ParameterInfo {
	params := make(map[string]*schema.ParameterInfo, len(t.Params))
	for name, p := range t.Params {
		info := &schema.ParameterInfo{
			Desc:     p.Desc,
			Required: p.Required,
		}
		switch p.Kind {
		case KindNumber:
			info.Type = schema.Number
		case KindBoolean:
			info.Type = schema.Boolean
		case KindEnum:
			info.Type = schema.String
			info.Enum = append([]string(nil), p.Enum...)
		default:
			info.Type = schema.String
		}
		params[name] = info
	}
	return params
}

// Normalize validates args against the declared params and returns a cleaned copy:
// strings are trimmed, numeric strings become float64, "true"/"false" become bools.
// Arguments that are not declared are dropped.
func (t Tool) Normalize(args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(t.Params))
	for _, name := range t.paramNames() {
		p := t.Params[name]
		raw, ok := args[name]
		if !ok || raw == nil {
			if p.Required {
				return nil, fmt.Errorf("missing required argument %q", name)
			}
			continue
		}
		v, err := coerce(p, raw)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", name, err)
		}
		if p.Required {
			if s, isStr := v.(string); isStr && s == "" {
				return nil, fmt.Errorf("missing required argument %q", name)
			}
		}
		out[name] = v
	}
	return out, nil
}

func (t Tool) paramNames() []string {
	names := make([]string, 0, len(t.Params))
	for name := range t.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func coerce(p Param, raw any) (any, error) {
	switch p.Kind {
	case KindNumber:
		switch v := raw.(type) {
		case float64:
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("not a finite number")
			}
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case json.Number:
			return v.Float64()
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("expected a number, got %q", v)
			}
			return f, nil
		default:
			return nil, fmt.Errorf("expected a number, got %T", raw)
		}
	case KindBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("expected a boolean, got %q", v)
			}
			return b, nil
		default:
			return nil, fmt.Errorf("expected a boolean, got %T", raw)
		}
	case KindEnum:
		s := strings.TrimSpace(fmt.Sprint(raw))
		for _, allowed := range p.Enum {
			if s == allowed {
				return s, nil
			}
		}
		return nil, fmt.Errorf("must be one of [%s], got %q", strings.Join(p.Enum, ", "), s)
	default:
		switch v := raw.(type) {
		case string:
			return strings.TrimSpace(v), nil
		case map[string]any, []any:
			return nil, fmt.Errorf("expected a string, got %T", raw)
		default:
			// coerce scalars the model sent unquoted
			return strings.TrimSpace(fmt.Sprint(v)), nil
		}
	}
}

// Registry is the process-wide tool list. It is read-only after construction
// and safe for concurrent use.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry validates and indexes tools; names must be unique.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if strings.TrimSpace(t.Name) == "" {
			return nil, fmt.Errorf("tool name is required")
		}
		if t.Execute == nil {
			return nil, fmt.Errorf("tool %s: execute function is required", t.Name)
		}
		if _, exists := r.tools[t.Name]; exists {
			return nil, fmt.Errorf("tool %s registered twice", t.Name)
		}
		for name, p := range t.Params {
			if p.Kind == KindEnum && len(p.Enum) == 0 {
				return nil, fmt.Errorf("tool %s: enum param %s has no values", t.Name, name)
			}
		}
		r.tools[t.Name] = t
		r.order = append(r.order, t.Name)
	}
	return r, nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns tools in registration order.
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// ToolInfos returns the provider-facing schemas in registration order.
func (r *Registry) ToolInfos() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(r.order))
	for _, t := range r.List() {
		infos = append(infos, t.Info())
	}
	return infos
}

// ParseArguments decodes the JSON argument string emitted by the model.
// An empty string means no arguments.
func ParseArguments(arguments string) (map[string]any, error) {
	arguments = strings.TrimSpace(arguments)
	if arguments == "" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// Stringify renders a tool return value as ToolResult content:
// strings pass through, everything else is JSON encoded.
func Stringify(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	case fmt.Stringer:
		return s.String(), nil
	case nil:
		return "null", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("result is not JSON serializable: %w", err)
	}
	return string(b), nil
}

// ===== small arg helpers for tool implementations =====

func stringArg(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

func numberArg(args map[string]any, key string, def float64) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return def
}
