package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inkwell/internal/clock"
	"inkwell/internal/domain"
	"inkwell/internal/eventbus"
	"inkwell/internal/fulfillment/print"
	"inkwell/internal/notify"
	"inkwell/internal/schedule"
	"inkwell/internal/store"
	"inkwell/internal/vendorapi"
	logx "inkwell/pkg/logx"
)

// reminderUnits evaluates every active reminder against the user's local
// calendar and returns a work unit per due one. The due decision happens
// here; claiming happens inside the unit so lost races are cheap.
func (w *Worker) reminderUnits(ctx context.Context, now time.Time) []unit {
	cands, err := w.st.ActiveReminders(ctx)
	if err != nil {
		w.log.Error("reminder scan failed", logx.Err(err))
		return nil
	}

	var units []unit
	for _, c := range cands {
		c := c
		loc := clock.Location(c.User.TZ)

		var occurrence time.Time
		switch c.Reminder.Kind {
		case domain.KindSmart:
			lastActivity, err := w.st.LastEntryTimestamp(ctx, c.User.ID)
			if err != nil {
				w.log.Error("activity lookup failed", logx.Int64("user", c.User.ID), logx.Err(err))
				continue
			}
			if !schedule.SmartDue(c.Reminder, lastActivity, now) {
				continue
			}
			// Smart occurrences have no calendar slot; the evaluation
			// instant is the anchor.
			occurrence = now
		default:
			occ, due, err := schedule.ReminderDue(c.Reminder, now, loc)
			if err != nil {
				// Malformed record that slipped past validation: skip the
				// item, never the tick.
				w.log.Error("unschedulable reminder", logx.Int64("reminder", c.Reminder.ID), logx.Err(err))
				continue
			}
			if !due {
				continue
			}
			occurrence = occ
		}

		units = append(units, unit{
			name: fmt.Sprintf("reminder/%d", c.Reminder.ID),
			run: func(ctx context.Context) error {
				return w.fireReminder(ctx, c, occurrence, now)
			},
		})
	}
	return units
}

func (w *Worker) fireReminder(ctx context.Context, c store.ReminderCandidate, occurrence, now time.Time) error {
	// The claim conditions on the anchor scanned into the candidate: if
	// another worker advanced the reminder between our scan and here, the
	// claim loses and this occurrence is not fired twice.
	claimed, err := w.st.ClaimReminder(ctx, c.Reminder.ID, c.Reminder.LastSentAt, now, w.cfg.StaleClaimAfter)
	if err != nil {
		return err
	}
	if !claimed {
		return nil // another worker owns it, or already fired this occurrence
	}

	msg := nudgeMessage(c.Reminder)
	if err := w.nudge.Send(ctx, c.User, msg); err != nil {
		w.recordFailure("reminder", c.Reminder.ID, err, func() (int, bool, error) {
			return w.st.ReminderFailure(ctx, c.Reminder.ID, w.cfg.MaxConsecutiveFailures)
		})
		return err
	}
	if err := w.st.AdvanceReminder(ctx, c.Reminder.ID, occurrence); err != nil {
		return err
	}
	w.publish(eventbus.EventReminderFired, map[string]any{
		"reminder": c.Reminder.ID, "user": c.User.ID, "occurrence": occurrence,
	})
	return nil
}

func nudgeMessage(r domain.Reminder) notify.Message {
	body := "Time to write today's journal entry."
	if r.Kind == domain.KindSmart {
		body = "It's been a while since your last entry. A quick note keeps the streak alive."
	}
	return notify.Message{Subject: "Journal reminder", Body: body}
}

// emailUnits turns due email subscriptions into work units. The SQL scan
// over-fetches by a day; DateDue re-checks in the user's zone.
func (w *Worker) emailUnits(ctx context.Context, now time.Time) []unit {
	cands, err := w.st.DueEmailSubscriptions(ctx, now)
	if err != nil {
		w.log.Error("email subscription scan failed", logx.Err(err))
		return nil
	}

	var units []unit
	for _, c := range cands {
		c := c
		loc := clock.Location(c.User.TZ)
		if !schedule.DateDue(c.Sub.NextEmailDate, now, loc) {
			continue
		}
		units = append(units, unit{
			name: fmt.Sprintf("email/%d", c.Sub.ID),
			run: func(ctx context.Context) error {
				return w.fireEmail(ctx, c, now)
			},
		})
	}
	return units
}

func (w *Worker) fireEmail(ctx context.Context, c store.EmailCandidate, now time.Time) error {
	claimed, err := w.st.ClaimEmailSubscription(ctx, c.Sub.ID, c.Sub.NextEmailDate, now, w.cfg.StaleClaimAfter)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	due := *c.Sub.NextEmailDate
	start := schedule.PeriodStart(due, c.Sub.Frequency)

	if err := w.email.Run(ctx, c.User, c.Sub, start, due); err != nil {
		w.recordFailure("email_subscription", c.Sub.ID, err, func() (int, bool, error) {
			return w.st.EmailSubscriptionFailure(ctx, c.Sub.ID, w.cfg.MaxConsecutiveFailures)
		})
		return err
	}

	next := schedule.AdvanceDate(due, c.Sub.Frequency)
	if err := w.st.AdvanceEmailSubscription(ctx, c.Sub.ID, due, next); err != nil {
		return err
	}
	w.publish(eventbus.EventEmailSent, map[string]any{"sub": c.Sub.ID, "user": c.User.ID})
	return nil
}

func (w *Worker) printUnits(ctx context.Context, now time.Time) []unit {
	cands, err := w.st.DuePrintSubscriptions(ctx, now)
	if err != nil {
		w.log.Error("print subscription scan failed", logx.Err(err))
		return nil
	}

	var units []unit
	for _, c := range cands {
		c := c
		loc := clock.Location(c.User.TZ)
		if !schedule.DateDue(c.Sub.NextPrintDate, now, loc) {
			continue
		}
		units = append(units, unit{
			name: fmt.Sprintf("print/%d", c.Sub.ID),
			run: func(ctx context.Context) error {
				return w.firePrint(ctx, c, now)
			},
		})
	}
	return units
}

// firePrint runs one print cycle. Outcome handling implements the error
// taxonomy:
//   - success: anchor advances, fresh cycle next period.
//   - payment declined: subscription flagged for review, anchor stays — once
//     the user fixes payment and clears the flag, the still-due date fires
//     a new order immediately.
//   - vendor rejected content: terminal for this order; the anchor advances
//     so the next natural cycle creates a new order.
//   - transient failure: anchor stays, failure streak bumps, next tick
//     creates a fresh order.
func (w *Worker) firePrint(ctx context.Context, c store.PrintCandidate, now time.Time) error {
	claimed, err := w.st.ClaimPrintSubscription(ctx, c.Sub.ID, c.Sub.NextPrintDate, now, w.cfg.StaleClaimAfter)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	due := *c.Sub.NextPrintDate
	start := schedule.PeriodStart(due, c.Sub.Frequency)

	_, err = w.print.Run(ctx, c.User, c.Sub, start, due, now)
	switch {
	case err == nil:
		next := schedule.AdvanceDate(due, c.Sub.Frequency)
		if err := w.st.AdvancePrintSubscription(ctx, c.Sub.ID, due, next); err != nil {
			return err
		}
		return nil

	case errors.Is(err, print.ErrTerminal):
		if errors.Is(err, vendorapi.ErrPaymentDeclined) {
			// The next cycle would decline again; park the subscription
			// until the user updates payment details.
			if ferr := w.st.FlagPrintSubscription(ctx, c.Sub.ID); ferr != nil {
				return errors.Join(err, ferr)
			}
			w.publish(eventbus.EventObligationReview, map[string]any{
				"kind": "print_subscription", "id": c.Sub.ID, "reason": "payment_failed",
			})
			return err
		}
		// Rejected content: skip this period, new order next natural cycle.
		next := schedule.AdvanceDate(due, c.Sub.Frequency)
		if aerr := w.st.AdvancePrintSubscription(ctx, c.Sub.ID, due, next); aerr != nil {
			return errors.Join(err, aerr)
		}
		w.publish(eventbus.EventObligationFailed, map[string]any{
			"kind": "print_subscription", "id": c.Sub.ID, "terminal": true, "err": err.Error(),
		})
		return err

	default:
		w.recordFailure("print_subscription", c.Sub.ID, err, func() (int, bool, error) {
			return w.st.PrintSubscriptionFailure(ctx, c.Sub.ID, w.cfg.MaxConsecutiveFailures)
		})
		return err
	}
}
