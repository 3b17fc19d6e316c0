// Package vendorapi defines the print vendor contract the fulfillment state
// machine depends on, plus the HTTP adapter that implements it. The vendor's
// rendering and shipping internals stay opaque; the engine only submits jobs
// and reads status.
package vendorapi

import (
	"context"
	"errors"

	"inkwell/internal/domain"
)

// Terminal business failures. Everything else coming back from the vendor is
// treated as transient and retried at tick granularity.
var (
	ErrPaymentDeclined = errors.New("vendor: payment declined")
	ErrRejected        = errors.New("vendor: job rejected")
)

// JobState is the vendor-side lifecycle, mapped by the poller onto the
// order state machine.
type JobState string

const (
	JobAccepted     JobState = "accepted"
	JobInProduction JobState = "in_production"
	JobShipped      JobState = "shipped"
	JobDelivered    JobState = "delivered"
	JobError        JobState = "error"
)

// SubmitRequest is one rendered document plus where to ship it.
// IdempotencyKey dedupes resubmits of the same order on the vendor side.
type SubmitRequest struct {
	IdempotencyKey string
	Artifact       []byte // rendered document (PDF)
	PageCount      int
	Shipping       domain.Address
	Color          string // domain.ColorFull / domain.ColorBW
}

type SubmitResult struct {
	JobID       string
	CostCents   int64
	RetailCents int64
}

type JobStatus struct {
	State       JobState
	TrackingURL string
	CostCents   int64
	Message     string // human-readable detail on JobError
}

// Gateway is the engine's view of the print vendor.
type Gateway interface {
	Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error)
	Status(ctx context.Context, jobID string) (JobStatus, error)
}
