package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"inkwell/internal/domain"
)

// EmailCandidate / PrintCandidate pair a due-scan row with its owner.
type EmailCandidate struct {
	Sub  domain.EmailSubscription
	User domain.User
}

type PrintCandidate struct {
	Sub  domain.PrintSubscription
	User domain.User
}

func (s *Store) CreateEmailSubscription(ctx context.Context, sub domain.EmailSubscription) (int64, error) {
	if err := sub.Validate(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO email_subscriptions(user_id, frequency, active, filter,
		   include_images, next_email_date, last_emailed_at, created_at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		sub.UserID, string(sub.Frequency), boolInt(sub.Active), string(sub.Filter),
		boolInt(sub.IncludeImages), dateStr(sub.NextEmailDate), msPtr(sub.LastEmailedAt),
		msOf(sub.CreatedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetEmailSubscription(ctx context.Context, id int64) (domain.EmailSubscription, error) {
	var sub domain.EmailSubscription
	var freq, filter string
	var active, images, review int
	var next sql.NullString
	var last sql.NullInt64
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, frequency, active, filter, include_images,
		        next_email_date, last_emailed_at, consecutive_failures, needs_review, created_at
		   FROM email_subscriptions WHERE id = ?`, id).
		Scan(&sub.ID, &sub.UserID, &freq, &active, &filter, &images,
			&next, &last, &sub.ConsecutiveFailures, &review, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return sub, ErrNotFound
	}
	if err != nil {
		return sub, err
	}
	sub.Frequency = domain.Frequency(freq)
	sub.Active = active != 0
	sub.Filter = domain.EntryFilter(filter)
	sub.IncludeImages = images != 0
	sub.NextEmailDate = datePtr(next)
	sub.LastEmailedAt = timePtr(last)
	sub.NeedsReview = review != 0
	sub.CreatedAt = timeOf(created)
	return sub, nil
}

// DueEmailSubscriptions over-scans by one calendar day (date comparison is
// per-user timezone, which SQL can't evaluate); the dispatcher re-checks
// with schedule.DateDue in the user's own zone.
func (s *Store) DueEmailSubscriptions(ctx context.Context, now time.Time) ([]EmailCandidate, error) {
	horizon := now.UTC().AddDate(0, 0, 1).Format(dateLayout)
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.user_id, e.frequency, e.active, e.filter, e.include_images,
		        e.next_email_date, e.last_emailed_at, e.consecutive_failures, e.needs_review, e.created_at,
		        u.id, u.tz, u.channel, u.chat_id, u.email, u.created_at
		   FROM email_subscriptions e JOIN users u ON u.id = e.user_id
		  WHERE e.active = 1 AND e.needs_review = 0
		    AND e.next_email_date IS NOT NULL AND e.next_email_date <= ?`, horizon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EmailCandidate
	for rows.Next() {
		var c EmailCandidate
		var freq, filter string
		var active, images, review int
		var next sql.NullString
		var last sql.NullInt64
		var sCreated, uCreated int64
		err := rows.Scan(&c.Sub.ID, &c.Sub.UserID, &freq, &active, &filter, &images,
			&next, &last, &c.Sub.ConsecutiveFailures, &review, &sCreated,
			&c.User.ID, &c.User.TZ, &c.User.Channel, &c.User.ChatID, &c.User.Email, &uCreated)
		if err != nil {
			return nil, err
		}
		c.Sub.Frequency = domain.Frequency(freq)
		c.Sub.Active = active != 0
		c.Sub.Filter = domain.EntryFilter(filter)
		c.Sub.IncludeImages = images != 0
		c.Sub.NextEmailDate = datePtr(next)
		c.Sub.LastEmailedAt = timePtr(last)
		c.Sub.NeedsReview = review != 0
		c.Sub.CreatedAt = timeOf(sCreated)
		c.User.CreatedAt = timeOf(uCreated)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ClaimEmailSubscription takes the lease only while next_email_date still
// equals the scanned due date; once another worker advances the date the
// stale candidate can no longer claim (see ClaimReminder).
func (s *Store) ClaimEmailSubscription(ctx context.Context, id int64, scannedNext *time.Time, now time.Time, staleAfter time.Duration) (bool, error) {
	return s.claim(ctx, "email_subscriptions", "next_email_date", dateStr(scannedNext), id, now, staleAfter)
}

// AdvanceEmailSubscription moves the materialized due date forward one
// period and stamps the send. firedAt is the due occurrence, nextDate the
// already-advanced date (schedule.AdvanceDate); keeping the advance in the
// caller keeps this a dumb write.
func (s *Store) AdvanceEmailSubscription(ctx context.Context, id int64, firedAt time.Time, nextDate time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE email_subscriptions
		    SET next_email_date = ?, last_emailed_at = ?, claimed_at = NULL, consecutive_failures = 0
		  WHERE id = ?`, nextDate.UTC().Format(dateLayout), msOf(firedAt), id)
	return err
}

func (s *Store) EmailSubscriptionFailure(ctx context.Context, id int64, maxConsecutive int) (int, bool, error) {
	return s.failure(ctx, "email_subscriptions", id, maxConsecutive)
}

// ---- print subscriptions ----

func (s *Store) CreatePrintSubscription(ctx context.Context, sub domain.PrintSubscription) (int64, error) {
	if err := sub.Validate(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO print_subscriptions(user_id, frequency, active,
		   ship_name, ship_line1, ship_line2, ship_city, ship_region, ship_postal_code, ship_country,
		   color, next_print_date, last_printed_at, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		sub.UserID, string(sub.Frequency), boolInt(sub.Active),
		sub.Shipping.Name, sub.Shipping.Line1, sub.Shipping.Line2, sub.Shipping.City,
		sub.Shipping.Region, sub.Shipping.PostalCode, sub.Shipping.Country,
		sub.Color, dateStr(sub.NextPrintDate), msPtr(sub.LastPrintedAt), msOf(sub.CreatedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetPrintSubscription(ctx context.Context, id int64) (domain.PrintSubscription, error) {
	var sub domain.PrintSubscription
	var freq string
	var active, review int
	var next sql.NullString
	var last sql.NullInt64
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, frequency, active,
		        ship_name, ship_line1, ship_line2, ship_city, ship_region, ship_postal_code, ship_country,
		        color, next_print_date, last_printed_at, consecutive_failures, needs_review, created_at
		   FROM print_subscriptions WHERE id = ?`, id).
		Scan(&sub.ID, &sub.UserID, &freq, &active,
			&sub.Shipping.Name, &sub.Shipping.Line1, &sub.Shipping.Line2, &sub.Shipping.City,
			&sub.Shipping.Region, &sub.Shipping.PostalCode, &sub.Shipping.Country,
			&sub.Color, &next, &last, &sub.ConsecutiveFailures, &review, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return sub, ErrNotFound
	}
	if err != nil {
		return sub, err
	}
	sub.Frequency = domain.Frequency(freq)
	sub.Active = active != 0
	sub.NextPrintDate = datePtr(next)
	sub.LastPrintedAt = timePtr(last)
	sub.NeedsReview = review != 0
	sub.CreatedAt = timeOf(created)
	return sub, nil
}

func (s *Store) DuePrintSubscriptions(ctx context.Context, now time.Time) ([]PrintCandidate, error) {
	horizon := now.UTC().AddDate(0, 0, 1).Format(dateLayout)
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.user_id, p.frequency, p.active,
		        p.ship_name, p.ship_line1, p.ship_line2, p.ship_city, p.ship_region, p.ship_postal_code, p.ship_country,
		        p.color, p.next_print_date, p.last_printed_at, p.consecutive_failures, p.needs_review, p.created_at,
		        u.id, u.tz, u.channel, u.chat_id, u.email, u.created_at
		   FROM print_subscriptions p JOIN users u ON u.id = p.user_id
		  WHERE p.active = 1 AND p.needs_review = 0
		    AND p.next_print_date IS NOT NULL AND p.next_print_date <= ?`, horizon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PrintCandidate
	for rows.Next() {
		var c PrintCandidate
		var freq string
		var active, review int
		var next sql.NullString
		var last sql.NullInt64
		var sCreated, uCreated int64
		err := rows.Scan(&c.Sub.ID, &c.Sub.UserID, &freq, &active,
			&c.Sub.Shipping.Name, &c.Sub.Shipping.Line1, &c.Sub.Shipping.Line2, &c.Sub.Shipping.City,
			&c.Sub.Shipping.Region, &c.Sub.Shipping.PostalCode, &c.Sub.Shipping.Country,
			&c.Sub.Color, &next, &last, &c.Sub.ConsecutiveFailures, &review, &sCreated,
			&c.User.ID, &c.User.TZ, &c.User.Channel, &c.User.ChatID, &c.User.Email, &uCreated)
		if err != nil {
			return nil, err
		}
		c.Sub.Frequency = domain.Frequency(freq)
		c.Sub.Active = active != 0
		c.Sub.NextPrintDate = datePtr(next)
		c.Sub.LastPrintedAt = timePtr(last)
		c.Sub.NeedsReview = review != 0
		c.Sub.CreatedAt = timeOf(sCreated)
		c.User.CreatedAt = timeOf(uCreated)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ClaimPrintSubscription(ctx context.Context, id int64, scannedNext *time.Time, now time.Time, staleAfter time.Duration) (bool, error) {
	return s.claim(ctx, "print_subscriptions", "next_print_date", dateStr(scannedNext), id, now, staleAfter)
}

func (s *Store) AdvancePrintSubscription(ctx context.Context, id int64, firedAt time.Time, nextDate time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE print_subscriptions
		    SET next_print_date = ?, last_printed_at = ?, claimed_at = NULL, consecutive_failures = 0
		  WHERE id = ?`, nextDate.UTC().Format(dateLayout), msOf(firedAt), id)
	return err
}

func (s *Store) PrintSubscriptionFailure(ctx context.Context, id int64, maxConsecutive int) (int, bool, error) {
	return s.failure(ctx, "print_subscriptions", id, maxConsecutive)
}

// FlagPrintSubscription force-sets needs_review, used for terminal business
// failures (payment declined) where retrying next cycle would just fail again.
func (s *Store) FlagPrintSubscription(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE print_subscriptions SET needs_review = 1, claimed_at = NULL WHERE id = ?`, id)
	return err
}
