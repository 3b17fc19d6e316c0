package dispatch

import (
	"context"
	"fmt"
	"time"
)

// Obligation kinds accepted by SendNow.
const (
	KindEmail = "email"
	KindPrint = "print"
)

// SendNow is the user-triggered path: fulfill one subscription immediately
// for a trailing period ending now. It bypasses the due check and never
// touches next dates or last-sent anchors; a manual send sits outside the
// recurring cadence.
func (w *Worker) SendNow(ctx context.Context, kind string, subID int64, trailing time.Duration) error {
	if trailing <= 0 {
		return fmt.Errorf("trailing period must be positive")
	}
	now := w.clk.Now().UTC()
	start := now.Add(-trailing)

	switch kind {
	case KindEmail:
		sub, err := w.st.GetEmailSubscription(ctx, subID)
		if err != nil {
			return err
		}
		user, err := w.st.GetUser(ctx, sub.UserID)
		if err != nil {
			return err
		}
		return w.email.Run(ctx, user, sub, start, now)

	case KindPrint:
		sub, err := w.st.GetPrintSubscription(ctx, subID)
		if err != nil {
			return err
		}
		user, err := w.st.GetUser(ctx, sub.UserID)
		if err != nil {
			return err
		}
		// The ad-hoc order still runs the full state machine; only the
		// subscription bookkeeping is skipped.
		sub.ID = 0
		_, err = w.print.Run(ctx, user, sub, start, now, now)
		return err

	default:
		return fmt.Errorf("%w: %q", ErrUnknownObligation, kind)
	}
}
