package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"inkwell/internal/domain"
)

const reminderCols = `r.id, r.user_id, r.kind, r.time_of_day, r.day_of_week,
	r.day_of_month, r.smart_threshold, r.active, r.last_sent_at,
	r.consecutive_failures, r.needs_review, r.created_at`

func scanReminder(sc interface{ Scan(...any) error }) (domain.Reminder, error) {
	var r domain.Reminder
	var kind string
	var dow, dom, threshold, lastSent sql.NullInt64
	var active, review int
	var created int64
	err := sc.Scan(&r.ID, &r.UserID, &kind, &r.TimeOfDay, &dow, &dom, &threshold,
		&active, &lastSent, &r.ConsecutiveFailures, &review, &created)
	if err != nil {
		return r, err
	}
	r.Kind = domain.RecurrenceKind(kind)
	r.DayOfWeek = intPtr(dow)
	r.DayOfMonth = intPtr(dom)
	r.SmartThresholdDays = intPtr(threshold)
	r.Active = active != 0
	r.LastSentAt = timePtr(lastSent)
	r.NeedsReview = review != 0
	r.CreatedAt = timeOf(created)
	return r, nil
}

// CreateReminder validates and inserts. Malformed schedules are rejected
// here, at the write boundary, so dispatch never sees them.
func (s *Store) CreateReminder(ctx context.Context, r domain.Reminder) (int64, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(user_id, kind, time_of_day, day_of_week, day_of_month,
		   smart_threshold, active, last_sent_at, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		r.UserID, string(r.Kind), r.TimeOfDay,
		nullable(r.DayOfWeek), nullable(r.DayOfMonth), nullable(r.SmartThresholdDays),
		boolInt(r.Active), msPtr(r.LastSentAt), msOf(r.CreatedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetReminder(ctx context.Context, id int64) (domain.Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reminderCols+` FROM reminders r WHERE r.id = ?`, id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

func (s *Store) SetReminderActive(ctx context.Context, id int64, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET active = ? WHERE id = ?`, boolInt(active), id)
	return err
}

// ReminderCandidate pairs a reminder with its owner so the dispatcher has
// the timezone and delivery coordinates in one scan.
type ReminderCandidate struct {
	Reminder domain.Reminder
	User     domain.User
}

// ActiveReminders returns every active, unflagged reminder. The due decision
// itself is per-user timezone math and lives in the schedule package.
func (s *Store) ActiveReminders(ctx context.Context) ([]ReminderCandidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderCols+`, u.id, u.tz, u.channel, u.chat_id, u.email, u.created_at
		   FROM reminders r JOIN users u ON u.id = r.user_id
		  WHERE r.active = 1 AND r.needs_review = 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReminderCandidate
	for rows.Next() {
		var c ReminderCandidate
		var kind string
		var dow, dom, threshold, lastSent sql.NullInt64
		var active, review int
		var rCreated, uCreated int64
		err := rows.Scan(&c.Reminder.ID, &c.Reminder.UserID, &kind, &c.Reminder.TimeOfDay,
			&dow, &dom, &threshold, &active, &lastSent,
			&c.Reminder.ConsecutiveFailures, &review, &rCreated,
			&c.User.ID, &c.User.TZ, &c.User.Channel, &c.User.ChatID, &c.User.Email, &uCreated)
		if err != nil {
			return nil, err
		}
		c.Reminder.Kind = domain.RecurrenceKind(kind)
		c.Reminder.DayOfWeek = intPtr(dow)
		c.Reminder.DayOfMonth = intPtr(dom)
		c.Reminder.SmartThresholdDays = intPtr(threshold)
		c.Reminder.Active = active != 0
		c.Reminder.LastSentAt = timePtr(lastSent)
		c.Reminder.NeedsReview = review != 0
		c.Reminder.CreatedAt = timeOf(rCreated)
		c.User.CreatedAt = timeOf(uCreated)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ClaimReminder is the per-obligation lease: one conditional UPDATE that
// succeeds only when the row is unclaimed or the previous claim is stale
// (abandoned by a crashed worker), AND the anchor still matches the value
// the caller scanned (scannedLastSent). The anchor condition makes the
// claim a compare-and-swap: a worker holding a candidate from before
// another worker's advance cannot claim it and re-fire the same occurrence.
// Safe across horizontally scaled workers because the check-and-set happens
// in the database.
func (s *Store) ClaimReminder(ctx context.Context, id int64, scannedLastSent *time.Time, now time.Time, staleAfter time.Duration) (bool, error) {
	return s.claim(ctx, "reminders", "last_sent_at", msPtr(scannedLastSent), id, now, staleAfter)
}

// AdvanceReminder records a successful fire: the anchor becomes the computed
// occurrence instant (not dispatch wall-clock), the claim is released and
// the failure streak resets.
func (s *Store) AdvanceReminder(ctx context.Context, id int64, occurrence time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET last_sent_at = ?, claimed_at = NULL, consecutive_failures = 0
		  WHERE id = ?`, msOf(occurrence), id)
	return err
}

// ReminderFailure releases the claim without advancing the anchor, bumps the
// consecutive-failure count, and flags the reminder for manual review once
// the streak reaches maxConsecutive. Returns the new streak and whether the
// review flag was just set.
func (s *Store) ReminderFailure(ctx context.Context, id int64, maxConsecutive int) (int, bool, error) {
	return s.failure(ctx, "reminders", id, maxConsecutive)
}

// ---- shared lease/failure SQL (same columns on all three obligation tables) ----

// claim conditions on two things at once: the lease (unclaimed or stale)
// and the anchor column still holding the value the caller saw at scan
// time. SQLite's IS is null-safe equality, so a nil anchor matches only a
// NULL column.
func (s *Store) claim(ctx context.Context, table, anchorCol string, anchor any, id int64, now time.Time, staleAfter time.Duration) (bool, error) {
	cutoff := msOf(now.Add(-staleAfter))
	res, err := s.db.ExecContext(ctx,
		`UPDATE `+table+` SET claimed_at = ?
		  WHERE id = ? AND (claimed_at IS NULL OR claimed_at < ?)
		    AND `+anchorCol+` IS ?`,
		msOf(now), id, cutoff, anchor)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *Store) failure(ctx context.Context, table string, id int64, maxConsecutive int) (int, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	var before, review int
	if err := tx.QueryRowContext(ctx,
		`SELECT consecutive_failures, needs_review FROM `+table+` WHERE id = ?`, id).
		Scan(&before, &review); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, ErrNotFound
		}
		return 0, false, err
	}

	after := before + 1
	flag := review != 0
	justFlagged := false
	if !flag && maxConsecutive > 0 && after >= maxConsecutive {
		flag = true
		justFlagged = true
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE `+table+` SET claimed_at = NULL, consecutive_failures = ?, needs_review = ?
		  WHERE id = ?`, after, boolInt(flag), id); err != nil {
		return 0, false, err
	}
	return after, justFlagged, tx.Commit()
}
