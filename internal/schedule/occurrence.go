// Package schedule holds the pure calendar math of the engine: given a
// recurrence rule, its last-fire anchor and "now", decide the next due
// instant in the owner's timezone. Nothing here touches storage or I/O.
package schedule

import (
	"fmt"
	"time"

	"inkwell/internal/domain"
)

// NextReminderOccurrence computes the next due instant for a calendar-kind
// reminder (daily/weekly/monthly). Smart reminders are activity-driven and
// evaluated by SmartDue instead.
//
// The anchor is max(lastSentAt, createdAt, now − one period): anchoring on
// the previous occurrence instant prevents drift, the creation bound keeps a
// fresh reminder from firing for a slot earlier the same period, and the
// one-period clamp bounds catch-up after downtime to the single most recent
// missed occurrence.
func NextReminderOccurrence(r domain.Reminder, now time.Time, loc *time.Location) (time.Time, error) {
	h, m, err := domain.ParseTimeOfDay(r.TimeOfDay)
	if err != nil {
		return time.Time{}, err
	}

	var period time.Duration
	switch r.Kind {
	case domain.KindDaily:
		period = 24 * time.Hour
	case domain.KindWeekly:
		period = 7 * 24 * time.Hour
	case domain.KindMonthly:
		period = 31 * 24 * time.Hour
	default:
		return time.Time{}, fmt.Errorf("%w: %q", domain.ErrUnknownKind, r.Kind)
	}

	anchor := now.Add(-period)
	if r.CreatedAt.After(anchor) {
		anchor = r.CreatedAt
	}
	if r.LastSentAt != nil && r.LastSentAt.After(anchor) {
		anchor = *r.LastSentAt
	}

	local := anchor.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	switch r.Kind {
	case domain.KindDaily:
		cand := day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
		if !cand.After(local) {
			cand = cand.AddDate(0, 0, 1)
		}
		return cand, nil

	case domain.KindWeekly:
		target := time.Weekday(*r.DayOfWeek)
		cand := day.AddDate(0, 0, daysUntil(day.Weekday(), target))
		cand = time.Date(cand.Year(), cand.Month(), cand.Day(), h, m, 0, 0, loc)
		if !cand.After(local) {
			cand = cand.AddDate(0, 0, 7)
		}
		return cand, nil

	case domain.KindMonthly:
		dom := *r.DayOfMonth // 1..28, so valid in every month
		cand := time.Date(day.Year(), day.Month(), dom, h, m, 0, 0, loc)
		if !cand.After(local) {
			cand = time.Date(day.Year(), day.Month()+1, dom, h, m, 0, 0, loc)
		}
		return cand, nil
	}
	panic("unreachable")
}

// daysUntil is the forward distance from weekday `from` to `to`, 0..6.
func daysUntil(from, to time.Weekday) int {
	d := int(to) - int(from)
	if d < 0 {
		d += 7
	}
	return d
}

// ReminderDue reports whether a calendar-kind reminder has a computed
// occurrence at or before now that has not been fired yet. The returned
// instant is the occurrence itself: callers persist it as the new anchor so
// a delayed tick does not shift the cadence.
func ReminderDue(r domain.Reminder, now time.Time, loc *time.Location) (time.Time, bool, error) {
	next, err := NextReminderOccurrence(r, now, loc)
	if err != nil {
		return time.Time{}, false, err
	}
	if next.After(now) {
		return time.Time{}, false, nil
	}
	return next, true, nil
}

// SmartDue implements the activity-gap rule: due when threshold days have
// elapsed since both the user's last journal entry and the reminder's own
// last fire. After firing, the fire instant becomes the new anchor, so the
// nudge repeats at threshold cadence while the user stays inactive.
func SmartDue(r domain.Reminder, lastActivity *time.Time, now time.Time) bool {
	if r.SmartThresholdDays == nil {
		return false
	}
	gap := time.Duration(*r.SmartThresholdDays) * 24 * time.Hour

	anchor := r.CreatedAt
	if lastActivity != nil && lastActivity.After(anchor) {
		anchor = *lastActivity
	}
	if r.LastSentAt != nil && r.LastSentAt.After(anchor) {
		anchor = *r.LastSentAt
	}
	return now.Sub(anchor) >= gap
}

// AdvanceDate returns the next due date one period after d, keeping the
// local calendar anchored. InitialNextDate keeps the due day within 1..28,
// so month-based AddDate never normalizes into the following month and a
// monthly subscription due on the 28th stays on the 28th through February.
func AdvanceDate(d time.Time, freq domain.Frequency) time.Time {
	switch freq {
	case domain.FreqWeekly:
		return d.AddDate(0, 0, 7)
	case domain.FreqMonthly:
		return d.AddDate(0, 1, 0)
	case domain.FreqQuarterly:
		return d.AddDate(0, 3, 0)
	case domain.FreqYearly:
		return d.AddDate(1, 0, 0)
	}
	return d.AddDate(0, 0, 7)
}

// InitialNextDate is the first due date for a subscription created at
// createdAt in loc: one full period after the creation date. For the
// calendar-anchored frequencies the day clamps to 28, same as monthly
// reminders, so Jan 31 + one month lands on Feb 28 instead of normalizing
// into March and drifting the cadence day on every advance.
func InitialNextDate(createdAt time.Time, freq domain.Frequency, loc *time.Location) time.Time {
	local := createdAt.In(loc)
	day := local.Day()
	if freq != domain.FreqWeekly && day > 28 {
		day = 28
	}
	d := time.Date(local.Year(), local.Month(), day, 0, 0, 0, 0, time.UTC)
	return AdvanceDate(d, freq)
}

// DateDue reports whether the materialized next-due date has arrived:
// next <= today as calendar dates in the user's timezone. next is stored
// canonically as midnight UTC.
func DateDue(next *time.Time, now time.Time, loc *time.Location) bool {
	if next == nil {
		return false
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	return !next.After(today)
}

// PeriodStart returns the start of the period ending at end for freq, used
// to select the entry range a fulfillment covers.
func PeriodStart(end time.Time, freq domain.Frequency) time.Time {
	switch freq {
	case domain.FreqWeekly:
		return end.AddDate(0, 0, -7)
	case domain.FreqMonthly:
		return end.AddDate(0, -1, 0)
	case domain.FreqQuarterly:
		return end.AddDate(0, -3, 0)
	case domain.FreqYearly:
		return end.AddDate(-1, 0, 0)
	}
	return end.AddDate(0, 0, -7)
}
