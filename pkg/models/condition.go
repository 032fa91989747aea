package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ConditionOperator is a comparison applied by a trigger or condition
// predicate.
type ConditionOperator string

const (
	OpEqual          ConditionOperator = "eq"
	OpNotEqual       ConditionOperator = "neq"
	OpGreaterThan    ConditionOperator = "gt"
	OpGreaterOrEqual ConditionOperator = "gte"
	OpLessThan       ConditionOperator = "lt"
	OpLessOrEqual    ConditionOperator = "lte"
	OpIn             ConditionOperator = "in"
	OpNotIn          ConditionOperator = "nin"
	OpContains       ConditionOperator = "contains"
	OpExists         ConditionOperator = "exists"
)

// Condition is a pure predicate over a document of context fields.
// Field is a dotted path; a missing field satisfies only neq/nin and a
// false exists.
type Condition struct {
	Field    string            `json:"field"    validate:"required"`
	Operator ConditionOperator `json:"operator" validate:"required"`
	Value    any               `json:"value,omitempty"`
}

// Evaluate applies the predicate to doc.
func (c Condition) Evaluate(doc map[string]any) (bool, error) {
	value, found := lookupPath(doc, c.Field)

	switch c.Operator {
	case OpExists:
		want := true
		if b, ok := c.Value.(bool); ok {
			want = b
		}

		return found == want, nil
	case OpEqual:
		return found && looseEqual(value, c.Value), nil
	case OpNotEqual:
		return !found || !looseEqual(value, c.Value), nil
	case OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual:
		if !found {
			return false, nil
		}

		return compareNumeric(c.Operator, value, c.Value)
	case OpIn, OpNotIn:
		set, err := valueSet(c.Value)
		if err != nil {
			return false, fmt.Errorf("condition on %q: %w", c.Field, err)
		}

		member := false

		if found {
			for _, candidate := range set {
				if looseEqual(value, candidate) {
					member = true

					break
				}
			}
		}

		if c.Operator == OpIn {
			return member, nil
		}

		return !member, nil
	case OpContains:
		if !found {
			return false, nil
		}

		return contains(value, c.Value)
	default:
		return false, fmt.Errorf("unsupported condition operator %q", c.Operator)
	}
}

// EvaluateAll applies every condition with AND semantics. An empty list
// always holds.
func EvaluateAll(conditions []Condition, doc map[string]any) (bool, error) {
	for _, condition := range conditions {
		ok, err := condition.Evaluate(doc)
		if err != nil {
			return false, err
		}

		if !ok {
			return false, nil
		}
	}

	return true, nil
}

// ParseConditions converts a decoded JSON value (a list of predicate
// objects) into typed conditions.
func ParseConditions(raw any) ([]Condition, error) {
	payload, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid conditions payload: %w", err)
	}

	var conditions []Condition

	err = json.Unmarshal(payload, &conditions)
	if err != nil {
		return nil, fmt.Errorf("invalid conditions payload: %w", err)
	}

	for i, condition := range conditions {
		if condition.Field == "" || condition.Operator == "" {
			return nil, fmt.Errorf("condition %d missing field or operator", i)
		}
	}

	return conditions, nil
}

// lookupPath resolves a dotted path inside nested maps.
func lookupPath(doc map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")

	var current any = doc

	for _, part := range parts {
		asMap, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = asMap[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// looseEqual compares scalars across the numeric types JSON decoding
// produces.
func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}

		return false
	}

	return a == b
}

func compareNumeric(op ConditionOperator, left, right any) (bool, error) {
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)

	if !lok || !rok {
		return false, fmt.Errorf("operator %q requires numeric operands, got %T and %T", op, left, right)
	}

	switch op {
	case OpGreaterThan:
		return lf > rf, nil
	case OpGreaterOrEqual:
		return lf >= rf, nil
	case OpLessThan:
		return lf < rf, nil
	default:
		return lf <= rf, nil
	}
}

func valueSet(raw any) ([]any, error) {
	set, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("set operator requires a list value, got %T", raw)
	}

	return set, nil
}

func contains(haystack, needle any) (bool, error) {
	switch h := haystack.(type) {
	case string:
		n, ok := needle.(string)
		if !ok {
			return false, fmt.Errorf("contains on a string requires a string value, got %T", needle)
		}

		return strings.Contains(h, n), nil
	case []any:
		for _, item := range h {
			if looseEqual(item, needle) {
				return true, nil
			}
		}

		return false, nil
	default:
		return false, fmt.Errorf("contains requires a string or list field, got %T", haystack)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
