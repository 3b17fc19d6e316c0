package schedule

import (
	"testing"
	"time"

	"inkwell/internal/domain"
)

func intp(v int) *int            { return &v }
func timep(t time.Time) *time.Time { return &t }

func utc(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestNextReminderOccurrenceDaily(t *testing.T) {
	t.Parallel()
	created := utc(2026, 1, 1, 0, 0)

	tests := []struct {
		name     string
		reminder domain.Reminder
		now      time.Time
		want     time.Time
	}{
		{
			name:     "fresh reminder before today's slot",
			reminder: domain.Reminder{Kind: domain.KindDaily, TimeOfDay: "09:00", CreatedAt: utc(2026, 3, 10, 8, 0)},
			now:      utc(2026, 3, 10, 8, 30),
			want:     utc(2026, 3, 10, 9, 0),
		},
		{
			name:     "fresh reminder after today's slot",
			reminder: domain.Reminder{Kind: domain.KindDaily, TimeOfDay: "09:00", CreatedAt: utc(2026, 3, 10, 9, 30)},
			now:      utc(2026, 3, 10, 10, 0),
			want:     utc(2026, 3, 11, 9, 0),
		},
		{
			name: "fired today already",
			reminder: domain.Reminder{Kind: domain.KindDaily, TimeOfDay: "09:00", CreatedAt: created,
				LastSentAt: timep(utc(2026, 3, 10, 9, 0))},
			now:  utc(2026, 3, 10, 10, 0),
			want: utc(2026, 3, 11, 9, 0),
		},
		{
			name:     "old reminder catches up at most one occurrence",
			reminder: domain.Reminder{Kind: domain.KindDaily, TimeOfDay: "09:00", CreatedAt: created},
			now:      utc(2026, 3, 10, 10, 0),
			want:     utc(2026, 3, 10, 9, 0),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextReminderOccurrence(tt.reminder, tt.now, time.UTC)
			if err != nil {
				t.Fatalf("NextReminderOccurrence error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("next = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextReminderOccurrenceWeeklyCadence(t *testing.T) {
	t.Parallel()
	// Monday = weekday 1. Fired on Monday 2026-03-09 18:00; next is exactly
	// one week later regardless of when the tick runs.
	r := domain.Reminder{
		Kind:       domain.KindWeekly,
		TimeOfDay:  "18:00",
		DayOfWeek:  intp(1),
		CreatedAt:  utc(2026, 1, 1, 0, 0),
		LastSentAt: timep(utc(2026, 3, 9, 18, 0)),
	}
	got, err := NextReminderOccurrence(r, utc(2026, 3, 12, 4, 17), time.UTC)
	if err != nil {
		t.Fatalf("NextReminderOccurrence error: %v", err)
	}
	want := utc(2026, 3, 16, 18, 0)
	if !got.Equal(want) {
		t.Fatalf("next = %v, want %v", got, want)
	}
}

func TestNextReminderOccurrenceMonthlyThroughFebruary(t *testing.T) {
	t.Parallel()
	r := domain.Reminder{
		Kind:       domain.KindMonthly,
		TimeOfDay:  "09:00",
		DayOfMonth: intp(28),
		CreatedAt:  utc(2026, 1, 1, 0, 0),
		LastSentAt: timep(utc(2026, 1, 28, 9, 0)),
	}
	got, err := NextReminderOccurrence(r, utc(2026, 2, 20, 12, 0), time.UTC)
	if err != nil {
		t.Fatalf("NextReminderOccurrence error: %v", err)
	}
	want := utc(2026, 2, 28, 9, 0)
	if !got.Equal(want) {
		t.Fatalf("next = %v, want %v", got, want)
	}
}

func TestNextReminderOccurrenceHonorsTimezone(t *testing.T) {
	t.Parallel()
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 09:00 in Tokyo is 00:00 UTC.
	r := domain.Reminder{Kind: domain.KindDaily, TimeOfDay: "09:00", CreatedAt: utc(2026, 3, 9, 22, 0)}
	got, err := NextReminderOccurrence(r, utc(2026, 3, 9, 23, 0), loc)
	if err != nil {
		t.Fatalf("NextReminderOccurrence error: %v", err)
	}
	if !got.Equal(utc(2026, 3, 10, 0, 0)) {
		t.Fatalf("next = %v (in %v), want 2026-03-10T00:00Z", got, loc)
	}
}

func TestReminderDue(t *testing.T) {
	t.Parallel()
	r := domain.Reminder{Kind: domain.KindDaily, TimeOfDay: "09:00", CreatedAt: utc(2026, 1, 1, 0, 0)}

	occ, due, err := ReminderDue(r, utc(2026, 3, 10, 9, 30), time.UTC)
	if err != nil {
		t.Fatalf("ReminderDue error: %v", err)
	}
	if !due {
		t.Fatal("expected due after slot passed")
	}
	// The occurrence, not the tick instant, is the new anchor.
	if !occ.Equal(utc(2026, 3, 10, 9, 0)) {
		t.Fatalf("occurrence = %v, want 09:00 slot", occ)
	}

	_, due, err = ReminderDue(r, utc(2026, 3, 10, 8, 59), time.UTC)
	if err != nil {
		t.Fatalf("ReminderDue error: %v", err)
	}
	if due {
		t.Fatal("not due before the slot")
	}
}

func TestSmartDue(t *testing.T) {
	t.Parallel()
	now := utc(2026, 3, 10, 12, 0)
	r := domain.Reminder{
		Kind:               domain.KindSmart,
		SmartThresholdDays: intp(3),
		CreatedAt:          utc(2026, 1, 1, 0, 0),
	}

	tests := []struct {
		name         string
		lastActivity *time.Time
		lastSent     *time.Time
		want         bool
	}{
		{name: "no activity at all", want: true},
		{name: "wrote yesterday", lastActivity: timep(now.Add(-24 * time.Hour)), want: false},
		{name: "silent past threshold", lastActivity: timep(now.Add(-4 * 24 * time.Hour)), want: true},
		{name: "exactly at threshold", lastActivity: timep(now.Add(-3 * 24 * time.Hour)), want: true},
		{
			name:         "nudged recently while still silent",
			lastActivity: timep(now.Add(-10 * 24 * time.Hour)),
			lastSent:     timep(now.Add(-24 * time.Hour)),
			want:         false,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			r := r
			r.LastSentAt = tt.lastSent
			if got := SmartDue(r, tt.lastActivity, now); got != tt.want {
				t.Fatalf("SmartDue = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAdvanceDate(t *testing.T) {
	t.Parallel()
	d := utc(2026, 1, 15, 0, 0)
	tests := []struct {
		freq domain.Frequency
		want time.Time
	}{
		{domain.FreqWeekly, utc(2026, 1, 22, 0, 0)},
		{domain.FreqMonthly, utc(2026, 2, 15, 0, 0)},
		{domain.FreqQuarterly, utc(2026, 4, 15, 0, 0)},
		{domain.FreqYearly, utc(2027, 1, 15, 0, 0)},
	}
	for _, tt := range tests {
		if got := AdvanceDate(d, tt.freq); !got.Equal(tt.want) {
			t.Fatalf("AdvanceDate(%s) = %v, want %v", tt.freq, got, tt.want)
		}
	}
}

func TestInitialNextDate(t *testing.T) {
	t.Parallel()
	// Created late evening of Mar 10 in New York, which is already Mar 11 UTC.
	// The first due date follows the user's calendar, not UTC's.
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	createdAt := utc(2026, 3, 11, 2, 0) // 2026-03-10 22:00 in New York
	got := InitialNextDate(createdAt, domain.FreqWeekly, loc)
	want := utc(2026, 3, 17, 0, 0)
	if !got.Equal(want) {
		t.Fatalf("InitialNextDate = %v, want %v", got, want)
	}
}

func TestInitialNextDateClampsMonthEnd(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		created time.Time
		freq    domain.Frequency
		want    time.Time
	}{
		// Jan 31 + 1mo would normalize to Mar 3 and shift the cadence day on
		// every advance; the clamp anchors the cycle on the 28th instead.
		{"monthly created Jan 31", utc(2026, 1, 31, 10, 0), domain.FreqMonthly, utc(2026, 2, 28, 0, 0)},
		{"quarterly created Mar 31", utc(2026, 3, 31, 10, 0), domain.FreqQuarterly, utc(2026, 6, 28, 0, 0)},
		{"monthly created Jan 28 unclamped", utc(2026, 1, 28, 10, 0), domain.FreqMonthly, utc(2026, 2, 28, 0, 0)},
		// Weekly cadence is day-based; the 31st advances a plain seven days.
		{"weekly created Jan 31", utc(2026, 1, 31, 10, 0), domain.FreqWeekly, utc(2026, 2, 7, 0, 0)},
	}
	for _, tt := range tests {
		got := InitialNextDate(tt.created, tt.freq, time.UTC)
		if !got.Equal(tt.want) {
			t.Fatalf("%s: InitialNextDate = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDateDue(t *testing.T) {
	t.Parallel()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	next := utc(2026, 3, 11, 0, 0)

	if DateDue(nil, utc(2026, 3, 12, 0, 0), loc) {
		t.Fatal("nil next date is never due")
	}
	// 2026-03-11 01:00 UTC is still 2026-03-10 in New York.
	if DateDue(&next, utc(2026, 3, 11, 1, 0), loc) {
		t.Fatal("not due while the user's calendar still shows the prior day")
	}
	// 2026-03-11 12:00 UTC is 2026-03-11 in New York.
	if !DateDue(&next, utc(2026, 3, 11, 12, 0), loc) {
		t.Fatal("due once the user's calendar reaches the date")
	}
	// Overdue dates stay due until advanced.
	if !DateDue(&next, utc(2026, 4, 2, 12, 0), loc) {
		t.Fatal("overdue date must remain due")
	}
}

func TestPeriodStartRoundTripsAdvance(t *testing.T) {
	t.Parallel()
	for _, freq := range []domain.Frequency{domain.FreqWeekly, domain.FreqMonthly, domain.FreqQuarterly, domain.FreqYearly} {
		d := utc(2026, 5, 15, 0, 0)
		if got := PeriodStart(AdvanceDate(d, freq), freq); !got.Equal(d) {
			t.Fatalf("PeriodStart(AdvanceDate(d)) = %v, want %v for %s", got, d, freq)
		}
	}
}
