// Package print carries a triggered print obligation through the order
// state machine: create → generate → submit to the vendor → track to a
// terminal state. Vendor status arrives asynchronously; the poller applies
// it idempotently against the persisted order.
package print

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"inkwell/internal/domain"
	"inkwell/internal/eventbus"
	"inkwell/internal/store"
	"inkwell/internal/vendorapi"
	logx "inkwell/pkg/logx"
)

// ErrTerminal marks outcomes that must NOT be retried next tick by
// re-running the same subscription cycle (payment declined, content
// rejected). The dispatcher inspects it to decide between "retry next tick"
// and "flag for review".
var ErrTerminal = errors.New("terminal fulfillment failure")

// OrderStore is the slice of the store this pipeline writes.
type OrderStore interface {
	CreateOrder(ctx context.Context, o domain.PrintOrder) error
	TransitionOrder(ctx context.Context, id string, to domain.OrderStatus, at time.Time, upd store.OrderUpdate) (bool, error)
	SetOrderTracking(ctx context.Context, id, url string) error
	OpenOrders(ctx context.Context) ([]domain.PrintOrder, error)
	FailStaleOrders(ctx context.Context, now time.Time, olderThan time.Duration) (int, error)
	EntriesInRange(ctx context.Context, userID int64, start, end time.Time, filter domain.EntryFilter) ([]domain.Entry, error)
}

// Renderer produces the print artifact from the selected entries. Document
// layout is a collaborator concern; the engine only needs bytes + a page
// count to hand to the vendor.
type Renderer interface {
	Render(ctx context.Context, user domain.User, entries []domain.Entry, color string) (artifact []byte, pages int, err error)
}

type Pipeline struct {
	orders  OrderStore
	render  Renderer
	gateway vendorapi.Gateway
	bus     *eventbus.Bus
	log     logx.Logger
}

func New(orders OrderStore, render Renderer, gateway vendorapi.Gateway, bus *eventbus.Bus, log logx.Logger) *Pipeline {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pipeline{orders: orders, render: render, gateway: gateway, bus: bus, log: log}
}

// Run executes one print fulfillment up to vendor acceptance. It creates a
// fresh pending order, renders, submits, and leaves the order in
// in_production for the poller. A transient vendor failure marks the order
// failed and returns a retryable error: the subscription anchor stays put,
// so the next tick creates a new order (retry at tick granularity).
func (p *Pipeline) Run(ctx context.Context, user domain.User, sub domain.PrintSubscription, start, end time.Time, now time.Time) (string, error) {
	order := domain.PrintOrder{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		Status:      domain.OrderPending,
		PeriodStart: start,
		PeriodEnd:   end,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if sub.ID != 0 {
		id := sub.ID
		order.SubscriptionID = &id
	}
	if err := p.orders.CreateOrder(ctx, order); err != nil {
		return "", fmt.Errorf("create order: %w", err)
	}
	log := p.log.With(logx.String("order", order.ID), logx.Int64("user", user.ID))

	// pending → generating: selection has begun.
	if _, err := p.orders.TransitionOrder(ctx, order.ID, domain.OrderGenerating, now, store.OrderUpdate{}); err != nil {
		return order.ID, err
	}

	entries, err := p.orders.EntriesInRange(ctx, user.ID, start, end, domain.FilterBoth)
	if err != nil {
		return order.ID, p.fail(ctx, order.ID, now, fmt.Errorf("select entries: %w", err))
	}
	if len(entries) == 0 {
		// Nothing to print. Terminal for this order; the cycle advances
		// normally (the dispatcher treats this as success).
		_ = p.fail(ctx, order.ID, now, errors.New("no entries in period"))
		log.Info("print skipped, no entries in period")
		return order.ID, nil
	}

	artifact, pages, err := p.render.Render(ctx, user, entries, sub.Color)
	if err != nil {
		// Render failed before any vendor charge.
		return order.ID, p.fail(ctx, order.ID, now, fmt.Errorf("render: %w", err))
	}

	entryCount, pageCount := len(entries), pages
	if _, err := p.orders.TransitionOrder(ctx, order.ID, domain.OrderUploaded, now, store.OrderUpdate{
		EntryCount: &entryCount,
		PageCount:  &pageCount,
	}); err != nil {
		return order.ID, err
	}

	res, err := p.gateway.Submit(ctx, vendorapi.SubmitRequest{
		IdempotencyKey: idempotencyKey(order, sub),
		Artifact:       artifact,
		PageCount:      pages,
		Shipping:       sub.Shipping,
		Color:          sub.Color,
	})
	switch {
	case errors.Is(err, vendorapi.ErrPaymentDeclined):
		msg := err.Error()
		_, _ = p.orders.TransitionOrder(ctx, order.ID, domain.OrderPaymentFailed, now, store.OrderUpdate{ErrorMessage: &msg})
		log.Warn("print payment declined")
		return order.ID, fmt.Errorf("%w: %w", ErrTerminal, err)
	case errors.Is(err, vendorapi.ErrRejected):
		_ = p.fail(ctx, order.ID, now, err)
		log.Warn("print rejected by vendor", logx.Err(err))
		return order.ID, fmt.Errorf("%w: %w", ErrTerminal, err)
	case err != nil:
		// Transient (5xx, network): terminal for this order, retryable for
		// the subscription.
		return order.ID, p.fail(ctx, order.ID, now, fmt.Errorf("submit: %w", err))
	}

	if _, err := p.orders.TransitionOrder(ctx, order.ID, domain.OrderInProduction, now, store.OrderUpdate{
		VendorJobID: &res.JobID,
		CostCents:   &res.CostCents,
		RetailCents: &res.RetailCents,
	}); err != nil {
		return order.ID, err
	}

	if p.bus != nil {
		p.bus.Publish(eventbus.Event{Type: eventbus.EventPrintOrdered, Data: map[string]any{
			"order": order.ID, "user": user.ID, "job": res.JobID, "pages": pages,
		}})
	}
	log.Info("print order submitted", logx.String("job", res.JobID), logx.Int("pages", pages))
	return order.ID, nil
}

// idempotencyKey dedupes vendor submissions per subscription cycle, not per
// order row: if a crash loses a submitted order before the job id persists,
// the replacement order for the same period re-submits under the same key
// and the vendor returns the existing job instead of charging twice. Ad-hoc
// orders have no cycle, so the order id stands in.
func idempotencyKey(order domain.PrintOrder, sub domain.PrintSubscription) string {
	if sub.ID == 0 {
		return order.ID
	}
	return fmt.Sprintf("print-%d-%s", sub.ID, order.PeriodEnd.UTC().Format("2006-01-02"))
}

// fail moves the order to its terminal failed state and returns cause so
// callers can propagate it. The transition is legal from every non-terminal
// state, so this is safe at any step.
func (p *Pipeline) fail(ctx context.Context, orderID string, now time.Time, cause error) error {
	msg := cause.Error()
	if _, err := p.orders.TransitionOrder(ctx, orderID, domain.OrderFailed, now, store.OrderUpdate{ErrorMessage: &msg}); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}
