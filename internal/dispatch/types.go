package dispatch

import (
	"context"
	"errors"
	"time"

	"inkwell/internal/domain"
	"inkwell/internal/store"
)

// Config tunes the dispatch loop. Cadence and pool size are deployment
// parameters, not correctness knobs: the lease keeps overlapping ticks safe
// at any interval.
type Config struct {
	Enabled bool

	// TickInterval between due scans. Default 5m.
	TickInterval time.Duration

	// Workers bounds concurrent obligation units (each unit may block on
	// vendor/AI/send I/O). Default 4.
	Workers int

	// StaleClaimAfter is the lease staleness window: a claim older than this
	// is treated as abandoned by a crashed worker and reclaimed. Should be
	// several multiples of TickInterval. Default 30m.
	StaleClaimAfter time.Duration

	// MaxConsecutiveFailures before an obligation is flagged for manual
	// review instead of being retried forever. Default 5.
	MaxConsecutiveFailures int
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 5 * time.Minute
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.StaleClaimAfter <= 0 {
		c.StaleClaimAfter = 6 * c.TickInterval
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = 5
	}
	return c
}

// ErrUnknownObligation is returned by the manual send-now path when asked
// for an obligation kind it does not recognize.
var ErrUnknownObligation = errors.New("unknown obligation kind")

// Store is the slice of the persistence layer the dispatcher drives.
// *store.Store satisfies it; tests use a fake.
type Store interface {
	ActiveReminders(ctx context.Context) ([]store.ReminderCandidate, error)
	ClaimReminder(ctx context.Context, id int64, scannedLastSent *time.Time, now time.Time, staleAfter time.Duration) (bool, error)
	AdvanceReminder(ctx context.Context, id int64, occurrence time.Time) error
	ReminderFailure(ctx context.Context, id int64, maxConsecutive int) (int, bool, error)

	DueEmailSubscriptions(ctx context.Context, now time.Time) ([]store.EmailCandidate, error)
	ClaimEmailSubscription(ctx context.Context, id int64, scannedNext *time.Time, now time.Time, staleAfter time.Duration) (bool, error)
	AdvanceEmailSubscription(ctx context.Context, id int64, firedAt, nextDate time.Time) error
	EmailSubscriptionFailure(ctx context.Context, id int64, maxConsecutive int) (int, bool, error)

	DuePrintSubscriptions(ctx context.Context, now time.Time) ([]store.PrintCandidate, error)
	ClaimPrintSubscription(ctx context.Context, id int64, scannedNext *time.Time, now time.Time, staleAfter time.Duration) (bool, error)
	AdvancePrintSubscription(ctx context.Context, id int64, firedAt, nextDate time.Time) error
	PrintSubscriptionFailure(ctx context.Context, id int64, maxConsecutive int) (int, bool, error)
	FlagPrintSubscription(ctx context.Context, id int64) error

	LastEntryTimestamp(ctx context.Context, userID int64) (*time.Time, error)

	GetUser(ctx context.Context, id int64) (domain.User, error)
	GetEmailSubscription(ctx context.Context, id int64) (domain.EmailSubscription, error)
	GetPrintSubscription(ctx context.Context, id int64) (domain.PrintSubscription, error)
}

// EmailPipeline fulfills one email-report occurrence.
type EmailPipeline interface {
	Run(ctx context.Context, user domain.User, sub domain.EmailSubscription, start, end time.Time) error
}

// PrintPipeline fulfills one print occurrence and drives open orders.
type PrintPipeline interface {
	Run(ctx context.Context, user domain.User, sub domain.PrintSubscription, start, end, now time.Time) (string, error)
	PollOpen(ctx context.Context, now time.Time)
}
