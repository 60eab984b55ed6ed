package runtime

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/vk/botgraph/internal/graph"
)

// CoerceDefault turns a declared variable's literal default into a value of
// its declared type.
func CoerceDefault(t graph.VarType, literal any) any {
	switch t {
	case graph.VarNumber:
		switch v := literal.(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return float64(0)
			}
			return f
		}
		return float64(0)
	case graph.VarBoolean:
		if b, ok := literal.(bool); ok {
			return b
		}
		return fmt.Sprint(literal) == "true"
	case graph.VarArray:
		switch v := literal.(type) {
		case []any:
			return v
		case string:
			var arr []any
			if err := sonic.UnmarshalString(v, &arr); err != nil || arr == nil {
				return []any{}
			}
			return arr
		}
		return []any{}
	default:
		if literal == nil {
			return ""
		}
		if s, ok := literal.(string); ok {
			return s
		}
		return fmt.Sprint(literal)
	}
}

// DefaultVariables returns the coerced defaults of every declared variable.
func DefaultVariables(vars []graph.Variable) map[string]any {
	out := make(map[string]any, len(vars))
	for _, v := range vars {
		out[v.Name] = CoerceDefault(v.Type, v.Value)
	}
	return out
}

// SeedVariables fills in declared variables missing from rc.Variables.
// Values already present, typically persisted ones, are kept.
func SeedVariables(rc *Context, vars []graph.Variable) {
	if rc.Variables == nil {
		rc.Variables = make(map[string]any, len(vars))
	}
	for _, v := range vars {
		if _, ok := rc.Variables[v.Name]; ok {
			continue
		}
		rc.Variables[v.Name] = CoerceDefault(v.Type, v.Value)
	}
}
