// Package cron parses 5-field cron expressions and computes the next instant
// they match in a given IANA timezone.
package cron

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ErrInvalidExpression is returned (wrapped with field detail) when an
// expression cannot be parsed.
var ErrInvalidExpression = errors.New("invalid cron expression")

// Expression holds the explicit, sorted and deduplicated value sets of each
// cron field.
type Expression struct {
	Minutes     []int `json:"minutes"`
	Hours       []int `json:"hours"`
	DaysOfMonth []int `json:"days_of_month"`
	Months      []int `json:"months"`
	DaysOfWeek  []int `json:"days_of_week"` // Sunday is 0
}

type fieldBounds struct {
	name     string
	min, max int
}

var fields = [5]fieldBounds{
	{name: "minute", min: 0, max: 59},
	{name: "hour", min: 0, max: 23},
	{name: "day-of-month", min: 1, max: 31},
	{name: "month", min: 1, max: 12},
	{name: "day-of-week", min: 0, max: 7},
}

// Parse parses "minute hour day-of-month month day-of-week". Each field
// accepts *, n, a-b and a /step suffix on * or a range, combined with commas.
// Any invalid field invalidates the whole expression.
func Parse(expression string) (*Expression, error) {
	parts := strings.Fields(expression)
	if len(parts) != len(fields) {
		return nil, fmt.Errorf("%w: expected 5 fields, got %d", ErrInvalidExpression, len(parts))
	}

	sets := make([][]int, len(fields))

	for i, part := range parts {
		values, err := parseField(part, fields[i])
		if err != nil {
			return nil, fmt.Errorf("%w: %s field %q: %w", ErrInvalidExpression, fields[i].name, part, err)
		}

		sets[i] = values
	}

	return &Expression{
		Minutes:     sets[0],
		Hours:       sets[1],
		DaysOfMonth: sets[2],
		Months:      sets[3],
		DaysOfWeek:  normalizeWeekdays(sets[4]),
	}, nil
}

// MustParse is like Parse but panics on error. Intended for constants.
func MustParse(expression string) *Expression {
	expr, err := Parse(expression)
	if err != nil {
		panic(err)
	}

	return expr
}

// Validate reports whether the expression parses.
func Validate(expression string) error {
	_, err := Parse(expression)

	return err
}

func parseField(field string, bounds fieldBounds) ([]int, error) {
	seen := make(map[int]struct{})

	for _, item := range strings.Split(field, ",") {
		values, err := parseItem(item, bounds)
		if err != nil {
			return nil, err
		}

		for _, v := range values {
			seen[v] = struct{}{}
		}
	}

	return sortedKeys(seen), nil
}

func parseItem(item string, bounds fieldBounds) ([]int, error) {
	if item == "" {
		return nil, errors.New("empty list item")
	}

	base, stepPart, hasStep := strings.Cut(item, "/")

	step := 1

	if hasStep {
		n, err := parseNumber(stepPart)
		if err != nil {
			return nil, fmt.Errorf("step: %w", err)
		}

		if n <= 0 {
			return nil, fmt.Errorf("step must be positive, got %d", n)
		}

		step = n
	}

	var start, end int

	switch {
	case base == "*":
		start, end = bounds.min, bounds.max
	case strings.Contains(base, "-"):
		lo, hi, _ := strings.Cut(base, "-")

		var err error

		if start, err = parseNumber(lo); err != nil {
			return nil, fmt.Errorf("range start: %w", err)
		}

		if end, err = parseNumber(hi); err != nil {
			return nil, fmt.Errorf("range end: %w", err)
		}

		if start > end {
			return nil, fmt.Errorf("inverted range %d-%d", start, end)
		}
	default:
		if hasStep {
			return nil, errors.New("step requires * or a range")
		}

		n, err := parseNumber(base)
		if err != nil {
			return nil, err
		}

		start, end = n, n
	}

	if start < bounds.min || end > bounds.max {
		return nil, fmt.Errorf("value out of range [%d-%d]", bounds.min, bounds.max)
	}

	values := make([]int, 0, (end-start)/step+1)
	for v := start; v <= end; v += step {
		values = append(values, v)
	}

	return values, nil
}

func parseNumber(s string) (int, error) {
	if s == "" {
		return 0, errors.New("missing number")
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("not a number: %q", s)
		}
	}

	return strconv.Atoi(s)
}

// normalizeWeekdays folds 7 onto 0 so Sunday has a single representation.
func normalizeWeekdays(days []int) []int {
	seen := make(map[int]struct{}, len(days))

	for _, d := range days {
		if d == 7 {
			d = 0
		}

		seen[d] = struct{}{}
	}

	return sortedKeys(seen)
}

func sortedKeys(set map[int]struct{}) []int {
	keys := make([]int, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}
