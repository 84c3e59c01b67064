package graphline

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/ohler55/ojg/jp"
)

// Op is a comparison operator used in edge conditions.
type Op string

const (
	OpExists   Op = "exists"   // path yields at least one value
	OpTruthy   Op = "truthy"   // first value at path is truthy
	OpEq       Op = "eq"       // first value == Value
	OpNe       Op = "ne"       // first value != Value
	OpGt       Op = "gt"       // numeric >
	OpGte      Op = "gte"      // numeric >=
	OpLt       Op = "lt"       // numeric <
	OpLte      Op = "lte"      // numeric <=
	OpContains Op = "contains" // string or slice containment
)

// Condition is a typed predicate over the producing node's result. Path is a
// JSONPath expression; the origin system built conditions from code strings
// evaluated at runtime, which this model deliberately replaces with data.
//
// Exactly one of the leaf form (Path/Op/Value) or a combinator (All, Any,
// Not) should be set. A nil *Condition always matches.
type Condition struct {
	Path  string `json:"path,omitempty" yaml:"path,omitempty"`
	Op    Op     `json:"op,omitempty" yaml:"op,omitempty"`
	Value any    `json:"value,omitempty" yaml:"value,omitempty"`

	All []*Condition `json:"all,omitempty" yaml:"all,omitempty"`
	Any []*Condition `json:"any,omitempty" yaml:"any,omitempty"`
	Not *Condition   `json:"not,omitempty" yaml:"not,omitempty"`
}

// When builds a leaf condition.
func When(path string, op Op, value any) *Condition {
	return &Condition{Path: path, Op: op, Value: value}
}

// AllOf matches when every child matches.
func AllOf(conds ...*Condition) *Condition { return &Condition{All: conds} }

// AnyOf matches when at least one child matches.
func AnyOf(conds ...*Condition) *Condition { return &Condition{Any: conds} }

// NotOf inverts a condition.
func NotOf(cond *Condition) *Condition { return &Condition{Not: cond} }

// Evaluator evaluates edge conditions against node results. Evaluation is
// read-only and never aborts a run: malformed paths, type mismatches and
// unknown operators all evaluate to false and are logged at debug level.
type Evaluator struct {
	logger Logger
}

// NewEvaluator creates an evaluator. logger may be nil.
func NewEvaluator(logger Logger) *Evaluator {
	if logger == nil {
		logger = NopLogger{}
	}
	return &Evaluator{logger: logger}
}

// Evaluate reports whether cond matches result. A nil condition matches.
// Evaluation never panics; a panic inside an operator counts as no match,
// like any other evaluation error.
func (e *Evaluator) Evaluate(ctx context.Context, cond *Condition, result any) (matched bool) {
	if cond == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug(ctx, "condition evaluation panic, treating as no match", "panic", r)
			matched = false
		}
	}()
	ok, err := e.eval(ctx, cond, result)
	if err != nil {
		e.logger.Debug(ctx, "condition evaluation error, treating as no match", "error", err)
		return false
	}
	return ok
}

func (e *Evaluator) eval(ctx context.Context, cond *Condition, result any) (bool, error) {
	switch {
	case len(cond.All) > 0:
		for _, c := range cond.All {
			ok, err := e.eval(ctx, c, result)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case len(cond.Any) > 0:
		for _, c := range cond.Any {
			ok, err := e.eval(ctx, c, result)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case cond.Not != nil:
		ok, err := e.eval(ctx, cond.Not, result)
		return !ok, err
	}

	if cond.Path == "" {
		return false, fmt.Errorf("condition has no path and no combinator")
	}

	expr, err := jp.ParseString(cond.Path)
	if err != nil {
		return false, fmt.Errorf("parse path %q: %w", cond.Path, err)
	}
	values := expr.Get(result)

	op := cond.Op
	if op == "" {
		op = OpTruthy
	}

	switch op {
	case OpExists:
		return len(values) > 0, nil
	case OpTruthy:
		if len(values) == 0 {
			return false, nil
		}
		return truthy(values[0]), nil
	}

	if len(values) == 0 {
		return false, nil
	}
	got := values[0]

	switch op {
	case OpEq:
		return looseEqual(got, cond.Value), nil
	case OpNe:
		return !looseEqual(got, cond.Value), nil
	case OpGt, OpGte, OpLt, OpLte:
		a, aok := toFloat(got)
		b, bok := toFloat(cond.Value)
		if !aok || !bok {
			return false, fmt.Errorf("operator %s requires numeric operands, got %T and %T", op, got, cond.Value)
		}
		switch op {
		case OpGt:
			return a > b, nil
		case OpGte:
			return a >= b, nil
		case OpLt:
			return a < b, nil
		default:
			return a <= b, nil
		}
	case OpContains:
		return contains(got, cond.Value)
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		if f, ok := toFloat(v); ok {
			return f != 0
		}
		return true
	}
}

// looseEqual compares with numeric coercion so that YAML/JSON round trips
// (int vs float64) do not break equality. Uncomparable operands (slices,
// maps) fall back to deep equality; `==` on those would panic.
func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta != nil && !ta.Comparable() {
		return reflect.DeepEqual(a, b)
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

func contains(haystack, needle any) (bool, error) {
	switch h := haystack.(type) {
	case string:
		s, ok := needle.(string)
		if !ok {
			return false, fmt.Errorf("contains on a string requires a string value, got %T", needle)
		}
		return strings.Contains(h, s), nil
	case []any:
		for _, item := range h {
			if looseEqual(item, needle) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("contains requires a string or array, got %T", haystack)
	}
}
