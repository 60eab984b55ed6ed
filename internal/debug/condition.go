package debug

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/botgraph/internal/runtime"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Roots a condition may reference.
var conditionRoots = []string{"user", "args", "variables", "context"}

var conditionFuncs = map[string]function.Function{
	"length":   stdlib.LengthFunc,
	"lower":    stdlib.LowerFunc,
	"upper":    stdlib.UpperFunc,
	"contains": stdlib.ContainsFunc,
	"tostring": stdlib.MakeToFunc(cty.String),
	"tonumber": stdlib.MakeToFunc(cty.Number),
}

// compileCondition parses a breakpoint condition and checks that it only
// references the allowed roots and functions.
func compileCondition(src string) (hcl.Expression, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), "condition", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid condition: %s", diags.Error())
	}

	var errs []string
	for _, t := range expr.Variables() {
		if root := t.RootName(); !slices.Contains(conditionRoots, root) {
			errs = append(errs, fmt.Sprintf("unknown name '%s'", root))
		}
	}

	funcs := make(map[string]struct{})
	walkForFunctions(expr, funcs)
	names := make([]string, 0, len(funcs))
	for name := range funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := conditionFuncs[name]; !ok {
			errs = append(errs, fmt.Sprintf("function '%s' is not allowed", name))
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid condition: %s", strings.Join(errs, "; "))
	}
	return expr, nil
}

// walkForFunctions collects the names of every function called in expr.
func walkForFunctions(expr hclsyntax.Expression, functions map[string]struct{}) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case *hclsyntax.FunctionCallExpr:
		functions[e.Name] = struct{}{}
		for _, arg := range e.Args {
			walkForFunctions(arg, functions)
		}
	case *hclsyntax.BinaryOpExpr:
		walkForFunctions(e.LHS, functions)
		walkForFunctions(e.RHS, functions)
	case *hclsyntax.ConditionalExpr:
		walkForFunctions(e.Condition, functions)
		walkForFunctions(e.TrueResult, functions)
		walkForFunctions(e.FalseResult, functions)
	case *hclsyntax.UnaryOpExpr:
		walkForFunctions(e.Val, functions)
	case *hclsyntax.TemplateExpr:
		for _, part := range e.Parts {
			walkForFunctions(part, functions)
		}
	case *hclsyntax.TemplateWrapExpr:
		walkForFunctions(e.Wrapped, functions)
	case *hclsyntax.TupleConsExpr:
		for _, item := range e.Exprs {
			walkForFunctions(item, functions)
		}
	case *hclsyntax.ObjectConsExpr:
		for _, item := range e.Items {
			walkForFunctions(item.KeyExpr, functions)
			walkForFunctions(item.ValueExpr, functions)
		}
	case *hclsyntax.ForExpr:
		walkForFunctions(e.CollExpr, functions)
		walkForFunctions(e.KeyExpr, functions)
		walkForFunctions(e.ValExpr, functions)
		walkForFunctions(e.CondExpr, functions)
	case *hclsyntax.IndexExpr:
		walkForFunctions(e.Collection, functions)
		walkForFunctions(e.Key, functions)
	case *hclsyntax.SplatExpr:
		walkForFunctions(e.Source, functions)
		walkForFunctions(e.Each, functions)
	case *hclsyntax.ParenthesesExpr:
		walkForFunctions(e.Expression, functions)
	case *hclsyntax.RelativeTraversalExpr:
		walkForFunctions(e.Source, functions)
	}
}

// conditionScope builds the read-only view a condition is evaluated in.
func conditionScope(rc *runtime.Context) (*hcl.EvalContext, error) {
	var args any
	var variables map[string]any
	var snapshot map[string]any
	if rc != nil {
		args = rc.Event["args"]
		variables = rc.Variables
		snapshot = rc.Snapshot()
	}

	raw := map[string]any{
		"user":      rc.User(),
		"args":      args,
		"variables": variables,
		"context":   snapshot,
	}
	vars := make(map[string]cty.Value, len(raw))
	for k, v := range raw {
		cv, err := toCty(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		if k == "variables" && cv.IsNull() {
			cv = cty.EmptyObjectVal
		}
		vars[k] = cv
	}
	return &hcl.EvalContext{Variables: vars, Functions: conditionFuncs}, nil
}

// evalCondition evaluates a compiled condition to a boolean.
func evalCondition(expr hcl.Expression, rc *runtime.Context) (bool, error) {
	scope, err := conditionScope(rc)
	if err != nil {
		return false, err
	}
	val, diags := expr.Value(scope)
	if diags.HasErrors() {
		return false, errors.New(diags.Error())
	}
	val, err = convert.Convert(val, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("condition is not a boolean: %w", err)
	}
	if val.IsNull() || !val.IsKnown() {
		return false, errors.New("condition has no value")
	}
	return val.True(), nil
}
