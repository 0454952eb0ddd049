// Package filter narrows in-memory record lists with independently optional criteria.
//
// Every constructor returns nil when its criterion is empty, and Apply skips nil
// predicates, so callers can pass all criteria unconditionally.
package filter

import (
	"strings"
	"time"
)

// Predicate reports whether a record matches one criterion.
type Predicate[T any] func(T) bool

// Apply returns the records satisfying every non-nil predicate, in input order. With no
// active predicate the input slice itself is returned.
func Apply[T any](records []T, preds ...Predicate[T]) []T {
	active := make([]Predicate[T], 0, len(preds))
	for _, p := range preds {
		if p != nil {
			active = append(active, p)
		}
	}
	if len(active) == 0 {
		return records
	}

	out := make([]T, 0, len(records))
next:
	for _, r := range records {
		for _, p := range active {
			if !p(r) {
				continue next
			}
		}
		out = append(out, r)
	}
	return out
}

// Contains matches records where any of fields contains needle, ignoring case.
func Contains[T any](needle string, fields ...func(T) string) Predicate[T] {
	needle = strings.ToLower(strings.TrimSpace(needle))
	if needle == "" || len(fields) == 0 {
		return nil
	}
	return func(r T) bool {
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f(r)), needle) {
				return true
			}
		}
		return false
	}
}

// Equals matches records whose field equals want. The zero value means no constraint.
func Equals[T any, V comparable](want V, field func(T) V) Predicate[T] {
	var zero V
	if want == zero {
		return nil
	}
	return func(r T) bool { return field(r) == want }
}

// DayRange matches records whose field falls on a calendar day between from and to,
// both inclusive. Either bound may be nil. Days are compared in the field's own location.
func DayRange[T any](from, to *time.Time, field func(T) time.Time) Predicate[T] {
	if from == nil && to == nil {
		return nil
	}
	var lo, hi time.Time
	if from != nil {
		lo = day(*from)
	}
	if to != nil {
		hi = day(*to)
	}
	return func(r T) bool {
		d := day(field(r))
		if from != nil && d.Before(lo) {
			return false
		}
		if to != nil && d.After(hi) {
			return false
		}
		return true
	}
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayLayout is the date format accepted by ParseDay.
const DayLayout = "2006-01-02"

// ParseDay parses a YYYY-MM-DD value; blank input yields nil.
func ParseDay(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(DayLayout, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
