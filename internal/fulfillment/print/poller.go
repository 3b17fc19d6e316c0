package print

import (
	"context"
	"errors"
	"time"

	"inkwell/internal/domain"
	"inkwell/internal/eventbus"
	"inkwell/internal/store"
	"inkwell/internal/vendorapi"
	logx "inkwell/pkg/logx"
)

// stateTargets maps a vendor job state to the furthest order state it
// implies. Vendor reports can arrive out of order or skip a step; the
// poller walks the order forward one legal transition at a time, so
// delivered is still only ever reached through shipped.
var stateTargets = map[vendorapi.JobState]domain.OrderStatus{
	vendorapi.JobAccepted:     domain.OrderInProduction,
	vendorapi.JobInProduction: domain.OrderInProduction,
	vendorapi.JobShipped:      domain.OrderShipped,
	vendorapi.JobDelivered:    domain.OrderDelivered,
}

// staleOrderWindow bounds how long an order may sit without a vendor job id
// before the sweep fails it. Any legitimate run persists the job id within
// seconds of submit; an hour means the row was orphaned by a crash.
const staleOrderWindow = time.Hour

// PollOpen advances every submitted, non-terminal order from vendor status
// and fails orders stranded before submission by a crashed worker. One
// order's failure never stops the sweep.
func (p *Pipeline) PollOpen(ctx context.Context, now time.Time) {
	if n, err := p.orders.FailStaleOrders(ctx, now, staleOrderWindow); err != nil {
		p.log.Error("stale order sweep failed", logx.Err(err))
	} else if n > 0 {
		p.log.Warn("failed stranded orders", logx.Int("count", n))
	}

	orders, err := p.orders.OpenOrders(ctx)
	if err != nil {
		p.log.Error("open order scan failed", logx.Err(err))
		return
	}
	for _, o := range orders {
		if err := p.pollOne(ctx, o, now); err != nil {
			p.log.Warn("order status poll failed", logx.String("order", o.ID), logx.Err(err))
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (p *Pipeline) pollOne(ctx context.Context, o domain.PrintOrder, now time.Time) error {
	st, err := p.gateway.Status(ctx, o.VendorJobID)
	if err != nil {
		// Transient: leave the order where it is, next sweep retries.
		return err
	}

	if st.State == vendorapi.JobError {
		msg := st.Message
		if msg == "" {
			msg = "vendor reported unrecoverable error"
		}
		changed, err := p.orders.TransitionOrder(ctx, o.ID, domain.OrderFailed, now, store.OrderUpdate{ErrorMessage: &msg})
		if changed {
			p.publishStatus(o.ID, domain.OrderFailed)
		}
		return err
	}

	target, ok := stateTargets[st.State]
	if !ok {
		p.log.Warn("unknown vendor job state", logx.String("order", o.ID), logx.String("state", string(st.State)))
		return nil
	}

	upd := store.OrderUpdate{}
	if st.TrackingURL != "" {
		upd.TrackingURL = &st.TrackingURL
	}
	if st.CostCents > 0 {
		upd.CostCents = &st.CostCents
	}

	// Walk forward step by step until the order reaches the implied state.
	// Duplicate/backward reports classify as no-ops inside TransitionOrder.
	cur := o.Status
	for cur != target {
		next, ok := forwardStep(cur, target)
		if !ok {
			break
		}
		changed, err := p.orders.TransitionOrder(ctx, o.ID, next, now, upd)
		if err != nil {
			if errors.Is(err, domain.ErrIllegalTransition) {
				// Concurrent writer got there first; re-read next sweep.
				return nil
			}
			return err
		}
		if changed {
			p.publishStatus(o.ID, next)
			upd = store.OrderUpdate{} // extra fields written once
		}
		cur = next
	}

	// Late tracking updates are allowed even after a terminal state.
	if cur.Terminal() && st.TrackingURL != "" && st.TrackingURL != o.TrackingURL {
		return p.orders.SetOrderTracking(ctx, o.ID, st.TrackingURL)
	}
	return nil
}

// forwardStep gives the next legal state on the path from cur towards
// target, or false when target is not ahead of cur.
func forwardStep(cur, target domain.OrderStatus) (domain.OrderStatus, bool) {
	switch cur {
	case domain.OrderUploaded:
		return domain.OrderInProduction, true
	case domain.OrderInProduction:
		if target == domain.OrderInProduction {
			return "", false
		}
		return domain.OrderShipped, true
	case domain.OrderShipped:
		if target == domain.OrderDelivered {
			return domain.OrderDelivered, true
		}
		return "", false
	}
	return "", false
}

func (p *Pipeline) publishStatus(orderID string, to domain.OrderStatus) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Event{Type: eventbus.EventOrderStatus, Data: map[string]any{
		"order": orderID, "status": string(to),
	}})
}
