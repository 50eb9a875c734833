package condition

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Operator is the closed set of comparisons a condition step can apply.
type Operator int

const (
	// OperatorNone evaluates the truthiness of the left operand.
	OperatorNone Operator = iota
	OperatorEquals
	OperatorNotEquals
	OperatorGreaterThan
	OperatorLessThan
	OperatorGreaterThanOrEquals
	OperatorLessThanOrEquals
	OperatorContains
	OperatorNotContains
	OperatorIsEmpty
	OperatorIsNotEmpty
)

var operatorNames = map[Operator]string{
	OperatorNone:                "",
	OperatorEquals:              "equals",
	OperatorNotEquals:           "not_equals",
	OperatorGreaterThan:         "greater_than",
	OperatorLessThan:            "less_than",
	OperatorGreaterThanOrEquals: "greater_than_or_equals",
	OperatorLessThanOrEquals:    "less_than_or_equals",
	OperatorContains:            "contains",
	OperatorNotContains:         "not_contains",
	OperatorIsEmpty:             "is_empty",
	OperatorIsNotEmpty:          "is_not_empty",
}

// OperatorNames lists the accepted operator spellings.
func OperatorNames() []string {
	names := make([]string, 0, len(operatorNames)-1)
	for op := OperatorEquals; op <= OperatorIsNotEmpty; op++ {
		names = append(names, operatorNames[op])
	}

	return names
}

func (o Operator) String() string {
	return operatorNames[o]
}

// ParseOperator maps an operator name to its Operator. The empty string is
// OperatorNone.
func ParseOperator(name string) (Operator, error) {
	for op, n := range operatorNames {
		if n == name {
			return op, nil
		}
	}

	return OperatorNone, fmt.Errorf("unknown operator %q", name)
}

// Evaluate applies the operator to the resolved operands.
func (o Operator) Evaluate(left, right any) bool {
	switch o {
	case OperatorNone:
		return truthy(left)
	case OperatorEquals:
		return equal(left, right)
	case OperatorNotEquals:
		return !equal(left, right)
	case OperatorGreaterThan:
		return compare(left, right, func(l, r float64) bool { return l > r })
	case OperatorLessThan:
		return compare(left, right, func(l, r float64) bool { return l < r })
	case OperatorGreaterThanOrEquals:
		return compare(left, right, func(l, r float64) bool { return l >= r })
	case OperatorLessThanOrEquals:
		return compare(left, right, func(l, r float64) bool { return l <= r })
	case OperatorContains:
		return contains(left, right)
	case OperatorNotContains:
		return !contains(left, right)
	case OperatorIsEmpty:
		return empty(left)
	case OperatorIsNotEmpty:
		return !empty(left)
	default:
		panic(fmt.Sprintf("condition: unhandled operator %d", o))
	}
}

func equal(left, right any) bool {
	if reflect.DeepEqual(left, right) {
		return true
	}

	if left == nil || right == nil {
		return false
	}

	l, lok := toNumber(left)
	r, rok := toNumber(right)

	if lok && rok {
		return l == r
	}

	return toString(left) == toString(right)
}

// compare coerces both operands to numbers. NaN or non-numeric operands
// never compare true.
func compare(left, right any, cmp func(l, r float64) bool) bool {
	l, lok := toNumber(left)
	r, rok := toNumber(right)

	if !lok || !rok {
		return false
	}

	return cmp(l, r)
}

func contains(left, right any) bool {
	if left == nil {
		return false
	}

	if items, ok := left.([]any); ok {
		for _, item := range items {
			if equal(item, right) {
				return true
			}
		}

		return false
	}

	return strings.Contains(toString(left), toString(right))
}

func empty(v any) bool {
	if v == nil {
		return true
	}

	if s, ok := v.(string); ok {
		return s == ""
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	default:
		return false
	}
}

func truthy(v any) bool {
	switch value := v.(type) {
	case nil:
		return false
	case bool:
		return value
	case string:
		return value != ""
	case float64:
		return value != 0 && !math.IsNaN(value)
	}

	if n, ok := toNumber(v); ok {
		return n != 0
	}

	return !empty(v)
}

func toNumber(v any) (float64, bool) {
	var n float64

	switch value := v.(type) {
	case float64:
		n = value
	case float32:
		n = float64(value)
	case int:
		n = float64(value)
	case int32:
		n = float64(value)
	case int64:
		n = float64(value)
	case uint:
		n = float64(value)
	case uint64:
		n = float64(value)
	case json.Number:
		f, err := value.Float64()
		if err != nil {
			return 0, false
		}

		n = f
	case bool:
		if value {
			n = 1
		}
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0, false
		}

		n = f
	default:
		return 0, false
	}

	if math.IsNaN(n) {
		return 0, false
	}

	return n, true
}

func toString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return fmt.Sprint(value)
	}
}
