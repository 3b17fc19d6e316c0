package domain

import (
	"errors"
	"fmt"
	"time"
)

// OrderStatus is a print order's position in its fulfillment lifecycle.
//
// Happy path: pending → generating → uploaded → in_production → shipped →
// delivered. failed is reachable from any non-terminal state;
// payment_failed only from uploaded (the charge happens at vendor accept).
type OrderStatus string

const (
	OrderPending       OrderStatus = "pending"
	OrderGenerating    OrderStatus = "generating"
	OrderUploaded      OrderStatus = "uploaded"
	OrderInProduction  OrderStatus = "in_production"
	OrderShipped       OrderStatus = "shipped"
	OrderDelivered     OrderStatus = "delivered"
	OrderFailed        OrderStatus = "failed"
	OrderPaymentFailed OrderStatus = "payment_failed"
)

var ErrIllegalTransition = errors.New("illegal order status transition")

// orderRank orders the forward states so duplicate or backward vendor
// callbacks can be detected as no-ops rather than errors.
var orderRank = map[OrderStatus]int{
	OrderPending:      0,
	OrderGenerating:   1,
	OrderUploaded:     2,
	OrderInProduction: 3,
	OrderShipped:      4,
	OrderDelivered:    5,
}

var orderNext = map[OrderStatus]OrderStatus{
	OrderPending:      OrderGenerating,
	OrderGenerating:   OrderUploaded,
	OrderUploaded:     OrderInProduction,
	OrderInProduction: OrderShipped,
	OrderShipped:      OrderDelivered,
}

// Terminal reports whether s admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderFailed || s == OrderPaymentFailed
}

// CanTransition reports whether from → to is a legal single step.
// Error states are reachable from any non-terminal state, except
// payment_failed which only occurs at the uploaded (payment capture) step.
func CanTransition(from, to OrderStatus) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case OrderFailed:
		return true
	case OrderPaymentFailed:
		return from == OrderUploaded
	}
	return orderNext[from] == to
}

// StepResult classifies an attempted transition.
type StepResult int

const (
	StepApplied StepResult = iota
	StepNoop               // duplicate or backward report; already at/past `to`
	StepIllegal
)

// ClassifyTransition applies the idempotency rule for asynchronous vendor
// callbacks: a report for a state already reached is a no-op, a legal next
// step applies, anything else (including delivered before shipped) is
// illegal and must be rejected by the caller.
func ClassifyTransition(from, to OrderStatus) StepResult {
	if from == to {
		return StepNoop
	}
	if rf, okf := orderRank[from]; okf {
		if rt, okt := orderRank[to]; okt && rt < rf {
			return StepNoop
		}
	}
	if CanTransition(from, to) {
		return StepApplied
	}
	return StepIllegal
}

// PrintOrder is one triggered print fulfillment attempt. Immutable once
// terminal, except late tracking-URL updates.
type PrintOrder struct {
	ID             string // uuid
	SubscriptionID *int64 // nil for ad-hoc "send now" orders
	UserID         int64

	Status OrderStatus

	// Entry date range covered, half-open [PeriodStart, PeriodEnd).
	PeriodStart time.Time
	PeriodEnd   time.Time

	EntryCount  int
	PageCount   int
	CostCents   int64
	RetailCents int64

	VendorJobID  string
	TrackingURL  string
	ErrorMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transition moves the order to the target status, enforcing the table.
// Returns (changed, error); duplicate/backward reports return (false, nil).
func (o *PrintOrder) Transition(to OrderStatus, at time.Time) (bool, error) {
	switch ClassifyTransition(o.Status, to) {
	case StepNoop:
		return false, nil
	case StepIllegal:
		return false, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = at
	return true, nil
}
