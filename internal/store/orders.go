package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"inkwell/internal/domain"
)

const orderCols = `id, subscription_id, user_id, status, period_start, period_end,
	entry_count, page_count, cost_cents, retail_cents,
	vendor_job_id, tracking_url, error_message, created_at, updated_at`

func scanOrder(sc interface{ Scan(...any) error }) (domain.PrintOrder, error) {
	var o domain.PrintOrder
	var subID sql.NullInt64
	var status string
	var startMS, endMS, createdMS, updatedMS int64
	err := sc.Scan(&o.ID, &subID, &o.UserID, &status, &startMS, &endMS,
		&o.EntryCount, &o.PageCount, &o.CostCents, &o.RetailCents,
		&o.VendorJobID, &o.TrackingURL, &o.ErrorMessage, &createdMS, &updatedMS)
	if err != nil {
		return o, err
	}
	o.SubscriptionID = int64Ptr(subID)
	o.Status = domain.OrderStatus(status)
	o.PeriodStart = timeOf(startMS)
	o.PeriodEnd = timeOf(endMS)
	o.CreatedAt = timeOf(createdMS)
	o.UpdatedAt = timeOf(updatedMS)
	return o, nil
}

func (s *Store) CreateOrder(ctx context.Context, o domain.PrintOrder) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO print_orders(`+orderCols+`)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, nullable(o.SubscriptionID), o.UserID, string(o.Status),
		msOf(o.PeriodStart), msOf(o.PeriodEnd),
		o.EntryCount, o.PageCount, o.CostCents, o.RetailCents,
		o.VendorJobID, o.TrackingURL, o.ErrorMessage,
		msOf(o.CreatedAt), msOf(o.UpdatedAt))
	return err
}

func (s *Store) GetOrder(ctx context.Context, id string) (domain.PrintOrder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderCols+` FROM print_orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return o, ErrNotFound
	}
	return o, err
}

// OpenOrders lists orders awaiting vendor status: submitted (have a job id)
// and not yet terminal. The print poller drives these to completion.
func (s *Store) OpenOrders(ctx context.Context) ([]domain.PrintOrder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderCols+` FROM print_orders
		  WHERE vendor_job_id != '' AND status NOT IN (?,?,?)
		  ORDER BY created_at ASC`,
		string(domain.OrderDelivered), string(domain.OrderFailed), string(domain.OrderPaymentFailed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PrintOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// FailStaleOrders force-fails orders that never reached the vendor (empty
// vendor_job_id, non-terminal) and have not been touched for olderThan: a
// crash between submit and the job-id write leaves such a row invisible to
// OpenOrders, so without this sweep it would sit non-terminal forever.
// Returns how many orders were failed.
func (s *Store) FailStaleOrders(ctx context.Context, now time.Time, olderThan time.Duration) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE print_orders
		    SET status = ?, error_message = ?, updated_at = ?
		  WHERE vendor_job_id = '' AND status NOT IN (?,?,?) AND updated_at < ?`,
		string(domain.OrderFailed), "abandoned before vendor submission", msOf(now),
		string(domain.OrderDelivered), string(domain.OrderFailed), string(domain.OrderPaymentFailed),
		msOf(now.Add(-olderThan)))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// OrderUpdate carries optional fields written together with a transition.
type OrderUpdate struct {
	VendorJobID  *string
	TrackingURL  *string
	ErrorMessage *string
	EntryCount   *int
	PageCount    *int
	CostCents    *int64
	RetailCents  *int64
}

// TransitionOrder applies a status change under the state-machine guard,
// atomically: the current status is read and validated inside the
// transaction, so concurrent callbacks can't interleave an illegal path.
// Duplicate or backward reports commit nothing and return (false, nil).
func (s *Store) TransitionOrder(ctx context.Context, id string, to domain.OrderStatus, at time.Time, upd OrderUpdate) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var cur string
	if err := tx.QueryRowContext(ctx,
		`SELECT status FROM print_orders WHERE id = ?`, id).Scan(&cur); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}

	switch domain.ClassifyTransition(domain.OrderStatus(cur), to) {
	case domain.StepNoop:
		return false, nil
	case domain.StepIllegal:
		return false, fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, cur, to)
	}

	q := `UPDATE print_orders SET status = ?, updated_at = ?`
	args := []any{string(to), msOf(at)}
	appendSet := func(col string, v any) {
		q += `, ` + col + ` = ?`
		args = append(args, v)
	}
	if upd.VendorJobID != nil {
		appendSet("vendor_job_id", *upd.VendorJobID)
	}
	if upd.TrackingURL != nil {
		appendSet("tracking_url", *upd.TrackingURL)
	}
	if upd.ErrorMessage != nil {
		appendSet("error_message", *upd.ErrorMessage)
	}
	if upd.EntryCount != nil {
		appendSet("entry_count", *upd.EntryCount)
	}
	if upd.PageCount != nil {
		appendSet("page_count", *upd.PageCount)
	}
	if upd.CostCents != nil {
		appendSet("cost_cents", *upd.CostCents)
	}
	if upd.RetailCents != nil {
		appendSet("retail_cents", *upd.RetailCents)
	}
	q += ` WHERE id = ?`
	args = append(args, id)

	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// SetOrderTracking updates the tracking URL only. Allowed after terminal
// states: carriers sometimes surface the link days after delivery confirms.
func (s *Store) SetOrderTracking(ctx context.Context, id, url string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE print_orders SET tracking_url = ? WHERE id = ?`, url, id)
	return err
}
