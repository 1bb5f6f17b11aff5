// Package recurrence computes the next occurrence of a schedule from its
// recurrence rule. Pure calendar arithmetic, no I/O.
package recurrence

import (
	"fmt"
	"time"

	"github.com/jonesrussell/content-scheduler/internal/domain"
)

const daysPerWeek = 7

// Next computes the occurrence following current under the given rule.
// It returns ok=false when the schedule does not recur (rule type none) or
// when the computed date falls strictly after the rule's until bound
// (until itself is inclusive).
//
// Monthly recurrence preserves the day-of-month of the current occurrence,
// clamping to the target month's last day when it is shorter. The original
// day is not remembered across steps: once clamped, later steps start from
// the clamped day (2024-01-31 -> 2024-02-29 -> 2024-03-29).
func Next(current time.Time, rule domain.RecurrenceRule) (time.Time, bool, error) {
	if rule.Type == domain.RecurrenceNone {
		return time.Time{}, false, nil
	}
	if rule.Interval <= 0 {
		return time.Time{}, false, fmt.Errorf("%w: recurrence interval must be positive, got %d",
			domain.ErrInvalidArgument, rule.Interval)
	}

	var next time.Time
	switch rule.Type {
	case domain.RecurrenceDaily:
		next = current.AddDate(0, 0, rule.Interval)
	case domain.RecurrenceWeekly:
		next = current.AddDate(0, 0, rule.Interval*daysPerWeek)
	case domain.RecurrenceMonthly:
		next = addMonthsClamped(current, rule.Interval)
	default:
		return time.Time{}, false, fmt.Errorf("%w: unknown recurrence type %q",
			domain.ErrInvalidArgument, rule.Type)
	}

	if rule.Until != nil && next.After(*rule.Until) {
		return time.Time{}, false, nil
	}

	return next, true, nil
}

// addMonthsClamped advances by whole calendar months without the day
// normalization time.AddDate performs (Jan 31 + 1 month must be the last day
// of February, not March 2/3).
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	// Normalize target year/month.
	m := int(month) - 1 + months
	year += m / 12
	m %= 12
	targetMonth := time.Month(m + 1)

	if last := daysInMonth(year, targetMonth); day > last {
		day = last
	}

	return time.Date(year, targetMonth, day, hour, minute, sec, t.Nanosecond(), t.Location())
}

// daysInMonth returns the number of days in the given month.
func daysInMonth(year int, month time.Month) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
