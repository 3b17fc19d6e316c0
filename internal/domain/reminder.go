package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RecurrenceKind is a reminder's recurrence rule family.
type RecurrenceKind string

const (
	KindDaily   RecurrenceKind = "daily"
	KindWeekly  RecurrenceKind = "weekly"
	KindMonthly RecurrenceKind = "monthly"
	KindSmart   RecurrenceKind = "smart"
)

// MaxDayOfMonth caps monthly reminders at 28 so every month has the target
// day and end-of-month math never comes up.
const MaxDayOfMonth = 28

var (
	ErrUnknownKind     = errors.New("unknown recurrence kind")
	ErrMissingField    = errors.New("required field missing for kind")
	ErrUnexpectedField = errors.New("field not allowed for kind")
)

// Reminder is one user's recurring nudge. Exactly the fields its kind needs
// are populated; Validate enforces that at the write boundary so the
// dispatcher never sees a malformed record.
type Reminder struct {
	ID     int64
	UserID int64
	Kind   RecurrenceKind

	TimeOfDay          string // "HH:MM" local; required unless smart
	DayOfWeek          *int   // 0=Sunday..6; required iff weekly
	DayOfMonth         *int   // 1..28; required iff monthly
	SmartThresholdDays *int   // required iff smart

	Active     bool
	LastSentAt *time.Time

	// Failure bookkeeping (one-tick-granularity retry signal).
	ConsecutiveFailures int
	NeedsReview         bool

	CreatedAt time.Time
}

// Validate rejects schedule records whose field population doesn't match the
// kind. Called where reminders are created or updated; a record that fails
// here must never reach the scheduler.
func (r Reminder) Validate() error {
	switch r.Kind {
	case KindDaily:
		if err := requireTimeOfDay(r.TimeOfDay); err != nil {
			return err
		}
		return rejectFields(r.DayOfWeek != nil, "dayOfWeek", r.DayOfMonth != nil, "dayOfMonth", r.SmartThresholdDays != nil, "smartThreshold")
	case KindWeekly:
		if err := requireTimeOfDay(r.TimeOfDay); err != nil {
			return err
		}
		if r.DayOfWeek == nil {
			return fmt.Errorf("%w: weekly needs dayOfWeek", ErrMissingField)
		}
		if *r.DayOfWeek < 0 || *r.DayOfWeek > 6 {
			return fmt.Errorf("dayOfWeek %d out of range 0..6", *r.DayOfWeek)
		}
		return rejectFields(r.DayOfMonth != nil, "dayOfMonth", r.SmartThresholdDays != nil, "smartThreshold")
	case KindMonthly:
		if err := requireTimeOfDay(r.TimeOfDay); err != nil {
			return err
		}
		if r.DayOfMonth == nil {
			return fmt.Errorf("%w: monthly needs dayOfMonth", ErrMissingField)
		}
		if *r.DayOfMonth < 1 || *r.DayOfMonth > MaxDayOfMonth {
			return fmt.Errorf("dayOfMonth %d out of range 1..%d", *r.DayOfMonth, MaxDayOfMonth)
		}
		return rejectFields(r.DayOfWeek != nil, "dayOfWeek", r.SmartThresholdDays != nil, "smartThreshold")
	case KindSmart:
		if r.SmartThresholdDays == nil {
			return fmt.Errorf("%w: smart needs smartThreshold", ErrMissingField)
		}
		if *r.SmartThresholdDays < 1 {
			return fmt.Errorf("smartThreshold %d must be >= 1 day", *r.SmartThresholdDays)
		}
		return rejectFields(r.DayOfWeek != nil, "dayOfWeek", r.DayOfMonth != nil, "dayOfMonth")
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, r.Kind)
	}
}

func requireTimeOfDay(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: timeOfDay", ErrMissingField)
	}
	_, _, err := ParseTimeOfDay(s)
	return err
}

// rejectFields takes (present, name) pairs and errors on the first present one.
func rejectFields(pairs ...any) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i].(bool) {
			return fmt.Errorf("%w: %s", ErrUnexpectedField, pairs[i+1].(string))
		}
	}
	return nil
}

// ParseTimeOfDay parses "HH:MM" into hour and minute.
func ParseTimeOfDay(s string) (h, m int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("timeOfDay %q: expected HH:MM", s)
	}
	h, err = strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("timeOfDay %q: invalid hour", s)
	}
	m, err = strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("timeOfDay %q: invalid minute", s)
	}
	return h, m, nil
}
