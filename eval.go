package colloquy

import (
	"fmt"
	"strconv"
	"strings"
)

// The condition language used by branch, while, and set expressions is
// deliberately small and total: a bare slot name, or a single comparison
// between a slot and a literal.
//
//	destination            -> slot value (truthy when set and non-empty)
//	origin == "Madrid"     -> equality against a string literal
//	attempts != 0          -> inequality against a number
//	price < 100            -> numeric comparison (<, <=, >, >=)
//	done == true           -> boolean literal
//
// Evaluation never panics; a malformed expression returns an error that the
// engine surfaces as a turn-level runtime failure.

var comparators = []string{"==", "!=", "<=", ">=", "<", ">"}

// evalExpr evaluates an expression against a slot map and returns the result
// value: the comparison result (bool) or the referenced slot's value.
func evalExpr(expr string, slots map[string]any) (any, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty expression")
	}

	for _, op := range comparators {
		idx := strings.Index(expr, op)
		if idx < 0 {
			continue
		}
		left := strings.TrimSpace(expr[:idx])
		right := strings.TrimSpace(expr[idx+len(op):])
		if left == "" || right == "" {
			return nil, fmt.Errorf("malformed comparison %q", expr)
		}
		lv := slots[left]
		rv := parseLiteral(right)
		return compare(op, lv, rv)
	}

	// Bare reference: literal or slot name.
	if isLiteral(expr) {
		return parseLiteral(expr), nil
	}
	return slots[expr], nil
}

// evalCondition evaluates an expression and coerces the result to a boolean:
// bools pass through, everything else is truthy when set and non-empty.
func evalCondition(expr string, slots map[string]any) (bool, error) {
	v, err := evalExpr(expr, slots)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// evalString evaluates an expression and renders the result for branch case
// matching: booleans become "true"/"false", nil becomes "".
func evalString(expr string, slots map[string]any) (string, error) {
	v, err := evalExpr(expr, slots)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", nil
	}
	switch t := v.(type) {
	case bool:
		return strconv.FormatBool(t), nil
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return true
	}
}

func isLiteral(s string) bool {
	if s == "true" || s == "false" {
		return true
	}
	if strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return true
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func parseLiteral(s string) any {
	if s == "true" {
		return true
	}
	if s == "false" {
		return false
	}
	if strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) && len(s) >= 2 {
		return s[1 : len(s)-1]
	}
	if strings.HasPrefix(s, `'`) && strings.HasSuffix(s, `'`) && len(s) >= 2 {
		return s[1 : len(s)-1]
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// compare applies a comparison operator. Equality works across types via
// rendered-string fallback; ordering requires both sides numeric.
func compare(op string, lv, rv any) (any, error) {
	switch op {
	case "==":
		return looseEqual(lv, rv), nil
	case "!=":
		return !looseEqual(lv, rv), nil
	}
	lf, lok := toFloat(lv)
	rf, rok := toFloat(rv)
	if !lok || !rok {
		return nil, fmt.Errorf("operator %s requires numeric operands, got %T and %T", op, lv, rv)
	}
	switch op {
	case "<":
		return lf < rf, nil
	case "<=":
		return lf <= rf, nil
	case ">":
		return lf > rf, nil
	case ">=":
		return lf >= rf, nil
	}
	return nil, fmt.Errorf("unknown operator %s", op)
}

func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
