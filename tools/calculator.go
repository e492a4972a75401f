package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
)

// CalculatorName is the tool name the math scorer treats as verification.
const CalculatorName = "calculate"

type calculatorArgs struct {
	Expression string `json:"expression"`
}

// NewCalculator evaluates a full arithmetic expression. The result is
// returned both as a number and as its shortest decimal form.
func NewCalculator() Tool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "Arithmetic expression to evaluate, e.g. (2+3)*4, 2^10 or sqrt(16).",
			},
		},
		"required": []string{"expression"},
	}

	return NewFuncTool(
		CalculatorName,
		"Evaluate an arithmetic expression. Supports + - * / %, ^ for powers, parentheses, "+
			"the constants pi and e, and sqrt, abs, pow, round, floor, ceil, log and exp.",
		schema,
		func(_ context.Context, args json.RawMessage) (any, error) {
			var in calculatorArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid calculator args: %w", err)
			}
			if strings.TrimSpace(in.Expression) == "" {
				return nil, fmt.Errorf("expression is required")
			}

			val, err := evalArithmetic(in.Expression)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"expression": in.Expression,
				"value":      val,
				"result":     strconv.FormatFloat(val, 'f', -1, 64),
			}, nil
		},
	)
}

var mathEnv = map[string]any{
	"pi": math.Pi,
	"e":  math.E,
}

var mathFuncs = []expr.Option{
	expr.Function("sqrt", unary("sqrt", math.Sqrt)),
	expr.Function("exp", unary("exp", math.Exp)),
	expr.Function("pow", func(params ...any) (any, error) {
		xs, err := floats("pow", 2, params)
		if err != nil {
			return nil, err
		}
		return math.Pow(xs[0], xs[1]), nil
	}),
	// log(x) is the natural log; log(x, base) uses the given base.
	expr.Function("log", func(params ...any) (any, error) {
		if len(params) == 1 {
			xs, err := floats("log", 1, params)
			if err != nil {
				return nil, err
			}
			return math.Log(xs[0]), nil
		}
		xs, err := floats("log", 2, params)
		if err != nil {
			return nil, err
		}
		switch xs[1] {
		case 2:
			return math.Log2(xs[0]), nil
		case 10:
			return math.Log10(xs[0]), nil
		}
		return math.Log(xs[0]) / math.Log(xs[1]), nil
	}),
}

// evalArithmetic compiles the expression against a numeric-only
// environment, so identifiers other than the math constants and functions
// are rejected at compile time. abs, round, floor and ceil are expr
// builtins.
func evalArithmetic(expression string) (float64, error) {
	opts := append([]expr.Option{expr.Env(mathEnv)}, mathFuncs...)
	program, err := expr.Compile(strings.TrimSpace(expression), opts...)
	if err != nil {
		return 0, fmt.Errorf("failed to parse expression: %w", err)
	}
	out, err := expr.Run(program, mathEnv)
	if err != nil {
		return 0, fmt.Errorf("failed to evaluate expression: %w", err)
	}
	val, ok := toFloat(out)
	if !ok {
		return 0, fmt.Errorf("expression did not produce a number: %T", out)
	}
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return 0, errors.New("result is not a finite number (division by zero?)")
	}
	return val, nil
}

func unary(name string, fn func(float64) float64) func(params ...any) (any, error) {
	return func(params ...any) (any, error) {
		xs, err := floats(name, 1, params)
		if err != nil {
			return nil, err
		}
		return fn(xs[0]), nil
	}
}

func floats(name string, want int, params []any) ([]float64, error) {
	if len(params) != want {
		return nil, fmt.Errorf("%s expects %d argument(s), got %d", name, want, len(params))
	}
	xs := make([]float64, len(params))
	for i, p := range params {
		v, ok := toFloat(p)
		if !ok {
			return nil, fmt.Errorf("%s: argument %d is not a number", name, i+1)
		}
		xs[i] = v
	}
	return xs, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
