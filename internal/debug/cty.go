package debug

import (
	"fmt"
	"math"

	"github.com/bytedance/sonic"
	"github.com/zclconf/go-cty/cty"
)

// toCty converts a plain Go value into a cty value for condition
// evaluation. Values outside the JSON data model are normalized through a
// JSON round trip first.
func toCty(v any) (cty.Value, error) {
	switch x := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case cty.Value:
		return x, nil
	case bool:
		return cty.BoolVal(x), nil
	case string:
		return cty.StringVal(x), nil
	case int:
		return cty.NumberIntVal(int64(x)), nil
	case int32:
		return cty.NumberIntVal(int64(x)), nil
	case int64:
		return cty.NumberIntVal(x), nil
	case float32:
		return toCty(float64(x))
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return cty.NilVal, fmt.Errorf("cannot represent %v", x)
		}
		return cty.NumberFloatVal(x), nil
	case []any:
		if len(x) == 0 {
			return cty.EmptyTupleVal, nil
		}
		vals := make([]cty.Value, len(x))
		for i, item := range x {
			cv, err := toCty(item)
			if err != nil {
				return cty.NilVal, fmt.Errorf("index %d: %w", i, err)
			}
			vals[i] = cv
		}
		return cty.TupleVal(vals), nil
	case map[string]any:
		if len(x) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(x))
		for k, item := range x {
			cv, err := toCty(item)
			if err != nil {
				return cty.NilVal, fmt.Errorf("attribute %q: %w", k, err)
			}
			attrs[k] = cv
		}
		return cty.ObjectVal(attrs), nil
	}

	raw, err := sonic.Marshal(v)
	if err != nil {
		return cty.NilVal, fmt.Errorf("unsupported value of type %T: %w", v, err)
	}
	var plain any
	if err := sonic.Unmarshal(raw, &plain); err != nil {
		return cty.NilVal, fmt.Errorf("unsupported value of type %T: %w", v, err)
	}
	return toCty(plain)
}
