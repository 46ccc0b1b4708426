package automation

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Operator compares a payload field with a value
type Operator string

const (
	OpEquals      Operator = "eq"
	OpNotEquals   Operator = "neq"
	OpGreaterThan Operator = "gt"
	OpGreaterEq   Operator = "gte"
	OpLessThan    Operator = "lt"
	OpLessEq      Operator = "lte"
	OpContains    Operator = "contains"
	OpExists      Operator = "exists"
)

// Condition is a predicate on the trigger payload. Field is a dot path such as
// "customer.address.city" or "items.0.amount".
type Condition struct {
	Field string   `json:"field"`
	Op    Operator `json:"op"`
	Value any      `json:"value,omitempty"`
}

// Validate checks the condition shape
func (c Condition) Validate() error {
	if strings.TrimSpace(c.Field) == "" {
		return fmt.Errorf("field is required")
	}
	switch c.Op {
	case OpEquals, OpNotEquals, OpContains:
		return nil
	case OpGreaterThan, OpGreaterEq, OpLessThan, OpLessEq:
		if c.Value == nil {
			return fmt.Errorf("op %s needs a value", c.Op)
		}
		return nil
	case OpExists:
		if c.Value != nil {
			if _, ok := c.Value.(bool); !ok {
				return fmt.Errorf("exists takes a boolean value")
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown operator %q", c.Op)
	}
}

// MatchAll reports whether every condition holds (AND)
func MatchAll(conditions []Condition, payload map[string]any) bool {
	for _, c := range conditions {
		if !c.Evaluate(payload) {
			return false
		}
	}
	return true
}

// Evaluate applies the condition to a payload
func (c Condition) Evaluate(payload map[string]any) bool {
	actual, found := Lookup(payload, c.Field)
	switch c.Op {
	case OpExists:
		want := true
		if b, ok := c.Value.(bool); ok {
			want = b
		}
		return (found && actual != nil) == want
	case OpEquals:
		return found && equal(actual, c.Value)
	case OpNotEquals:
		return !found || !equal(actual, c.Value)
	case OpContains:
		return found && contains(actual, c.Value)
	case OpGreaterThan, OpGreaterEq, OpLessThan, OpLessEq:
		if !found {
			return false
		}
		cmp, ok := compare(actual, c.Value)
		if !ok {
			return false
		}
		switch c.Op {
		case OpGreaterThan:
			return cmp > 0
		case OpGreaterEq:
			return cmp >= 0
		case OpLessThan:
			return cmp < 0
		default:
			return cmp <= 0
		}
	}
	return false
}

// Lookup resolves a dot path through nested maps and slices
func Lookup(data map[string]any, field string) (any, bool) {
	if data == nil {
		return nil, false
	}
	var cur any = data
	for _, part := range strings.Split(field, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := toBool(b); ok {
			return ba == bb
		}
	}
	return strings.EqualFold(toString(a), toString(b))
}

func contains(actual, want any) bool {
	switch v := actual.(type) {
	case []any:
		for _, item := range v {
			if equal(item, want) {
				return true
			}
		}
		return false
	case map[string]any:
		_, ok := v[toString(want)]
		return ok
	default:
		return strings.Contains(strings.ToLower(toString(actual)), strings.ToLower(toString(want)))
	}
}

// compare orders numbers numerically, RFC 3339 timestamps chronologically and
// everything else lexically
func compare(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, sb := toString(a), toString(b)
	if ta, err := time.Parse(time.RFC3339, sa); err == nil {
		if tb, err := time.Parse(time.RFC3339, sb); err == nil {
			return ta.Compare(tb), true
		}
	}
	return strings.Compare(sa, sb), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(b)
		return parsed, err == nil
	}
	return false, false
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Struct:
		raw, err := json.Marshal(v)
		if err == nil {
			return string(raw)
		}
	}
	return fmt.Sprint(v)
}
