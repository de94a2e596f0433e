package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/expr-lang/expr"
)

// Calculator evaluates arithmetic expressions in a sandbox that only knows
// numbers, operators and a fixed set of math functions.
type Calculator struct {
	opts []expr.Option
}

// NewCalculator creates a new Calculator tool.
func NewCalculator() *Calculator {
	opts := []expr.Option{
		expr.Env(map[string]any{"pi": math.Pi, "e": math.E}),
		expr.DisableAllBuiltins(),
	}
	for name, fn := range mathFuncs {
		opts = append(opts, expr.Function(name, fn))
	}
	return &Calculator{opts: opts}
}

func (c *Calculator) Name() string { return "calculator" }
func (c *Calculator) Description() string {
	return "Evaluate a math expression, for example salary, leave days or allowances. " +
		"Supports + - * / % ** and abs, round, min, max, sum, pow, sqrt, sin, cos, tan, log, exp, log10, ceil, floor, pi, e."
}
func (c *Calculator) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"expression": {"type": "string", "description": "The expression to evaluate, e.g. \"10 * 5\", \"sqrt(16)\", \"3000000 / 209\""}
		},
		"required": ["expression"]
	}`)
}

// Execute returns "Result: <value>". Evaluation failures are reported in
// the result text so the model can correct itself.
func (c *Calculator) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Expression string `json:"expression"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.Expression == "" {
		return "", errors.New("expression is required")
	}

	slog.Info("calculator", "expression", params.Expression)
	out, err := c.Eval(params.Expression)
	if err != nil {
		return "Calculation error: " + err.Error(), nil
	}
	return "Result: " + out, nil
}

// Eval evaluates expression and formats the value.
func (c *Calculator) Eval(expression string) (string, error) {
	program, err := expr.Compile(expression, c.opts...)
	if err != nil {
		return "", err
	}
	v, err := expr.Run(program, nil)
	if err != nil {
		return "", err
	}
	return format(v)
}

func format(v any) (string, error) {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	case float64:
		if math.IsInf(n, 0) || math.IsNaN(n) {
			return "", fmt.Errorf("result is %v", n)
		}
		return strconv.FormatFloat(n, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(n), nil
	}
	return "", fmt.Errorf("unsupported result type %T", v)
}

type mathFunc = func(params ...any) (any, error)

var mathFuncs = map[string]mathFunc{
	"abs":   unary(math.Abs),
	"sqrt":  unaryChecked(func(x float64) bool { return x >= 0 }, "math domain error", math.Sqrt),
	"sin":   unary(math.Sin),
	"cos":   unary(math.Cos),
	"tan":   unary(math.Tan),
	"exp":   unary(math.Exp),
	"log10": unaryChecked(func(x float64) bool { return x > 0 }, "math domain error", math.Log10),
	"ceil":  unary(math.Ceil),
	"floor": unary(math.Floor),
	"pow": func(params ...any) (any, error) {
		xs, err := floats("pow", params, 2, 2)
		if err != nil {
			return nil, err
		}
		return math.Pow(xs[0], xs[1]), nil
	},
	"log": func(params ...any) (any, error) {
		xs, err := floats("log", params, 1, 2)
		if err != nil {
			return nil, err
		}
		if xs[0] <= 0 {
			return nil, errors.New("math domain error")
		}
		if len(xs) == 2 {
			return math.Log(xs[0]) / math.Log(xs[1]), nil
		}
		return math.Log(xs[0]), nil
	},
	"round": func(params ...any) (any, error) {
		xs, err := floats("round", params, 1, 2)
		if err != nil {
			return nil, err
		}
		if len(xs) == 1 {
			return math.RoundToEven(xs[0]), nil
		}
		scale := math.Pow(10, math.Trunc(xs[1]))
		return math.RoundToEven(xs[0]*scale) / scale, nil
	},
	"min": func(params ...any) (any, error) {
		xs, err := spread("min", params)
		if err != nil {
			return nil, err
		}
		m := xs[0]
		for _, x := range xs[1:] {
			m = math.Min(m, x)
		}
		return m, nil
	},
	"max": func(params ...any) (any, error) {
		xs, err := spread("max", params)
		if err != nil {
			return nil, err
		}
		m := xs[0]
		for _, x := range xs[1:] {
			m = math.Max(m, x)
		}
		return m, nil
	},
	"sum": func(params ...any) (any, error) {
		xs, err := spread("sum", params)
		if err != nil {
			return nil, err
		}
		var total float64
		for _, x := range xs {
			total += x
		}
		return total, nil
	},
}

func unary(fn func(float64) float64) mathFunc {
	return unaryChecked(nil, "", fn)
}

func unaryChecked(valid func(float64) bool, msg string, fn func(float64) float64) mathFunc {
	return func(params ...any) (any, error) {
		xs, err := floats("function", params, 1, 1)
		if err != nil {
			return nil, err
		}
		if valid != nil && !valid(xs[0]) {
			return nil, errors.New(msg)
		}
		return fn(xs[0]), nil
	}
}

func floats(name string, params []any, minArgs, maxArgs int) ([]float64, error) {
	if len(params) < minArgs || len(params) > maxArgs {
		return nil, fmt.Errorf("%s: expected %d to %d arguments, got %d", name, minArgs, maxArgs, len(params))
	}
	out := make([]float64, len(params))
	for i, p := range params {
		f, err := toFloat(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[i] = f
	}
	return out, nil
}

// spread accepts either numeric arguments or a single array of numbers.
func spread(name string, params []any) ([]float64, error) {
	if len(params) == 1 {
		if list, ok := params[0].([]any); ok {
			params = list
		}
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("%s: expected at least one number", name)
	}
	return floats(name, params, 1, len(params))
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	}
	return 0, fmt.Errorf("not a number: %v", v)
}
