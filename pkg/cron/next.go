package cron

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	// ErrNoNextRun is returned when no instant within the search horizon
	// matches the expression.
	ErrNoNextRun = errors.New("no matching time within search horizon")
	// ErrUnknownTimezone is returned when the timezone is not a valid IANA name.
	ErrUnknownTimezone = errors.New("unknown timezone")
)

// SearchHorizon bounds the forward scan of NextRun.
const SearchHorizon = 366 * 24 * time.Hour

const (
	daysInMonthField = 31
	daysInWeekField  = 7
)

// LoadLocation resolves an IANA timezone name. An empty name is UTC.
func LoadLocation(timezone string) (*time.Location, error) {
	if timezone == "" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, timezone)
	}

	return loc, nil
}

// NextRun returns the first minute strictly after `after` whose wall clock in
// the given timezone matches the expression. The result is expressed in UTC.
func NextRun(expr *Expression, after time.Time, timezone string) (time.Time, error) {
	loc, err := LoadLocation(timezone)
	if err != nil {
		return time.Time{}, err
	}

	return expr.Next(after, loc)
}

// NextRunString parses expression and computes its next run.
func NextRunString(expression string, after time.Time, timezone string) (time.Time, error) {
	expr, err := Parse(expression)
	if err != nil {
		return time.Time{}, err
	}

	return NextRun(expr, after, timezone)
}

// Next scans minute by minute from the minute following `after`. The scan
// steps absolute instants, so each real minute is visited once across DST
// changes.
func (e *Expression) Next(after time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}

	candidate := after.UTC().Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(SearchHorizon)

	for !candidate.After(limit) {
		if e.Matches(candidate.In(loc)) {
			return candidate, nil
		}

		candidate = candidate.Add(time.Minute)
	}

	return time.Time{}, ErrNoNextRun
}

// Matches reports whether the wall-clock fields of t satisfy the expression.
func (e *Expression) Matches(t time.Time) bool {
	return slices.Contains(e.Minutes, t.Minute()) &&
		slices.Contains(e.Hours, t.Hour()) &&
		slices.Contains(e.Months, int(t.Month())) &&
		e.matchesDay(t)
}

// matchesDay applies cron's day semantics: when both day fields are
// restricted a day matches if either one does.
func (e *Expression) matchesDay(t time.Time) bool {
	year, month, day := t.Date()
	weekday := int(time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Weekday())

	domWildcard := len(e.DaysOfMonth) == daysInMonthField
	dowWildcard := len(e.DaysOfWeek) == daysInWeekField

	domMatch := slices.Contains(e.DaysOfMonth, day)
	dowMatch := slices.Contains(e.DaysOfWeek, weekday)

	switch {
	case domWildcard && dowWildcard:
		return true
	case domWildcard:
		return dowMatch
	case dowWildcard:
		return domMatch
	default:
		return domMatch || dowMatch
	}
}
