// Package email realizes one triggered email-report obligation: select the
// period's entries, format, send. No intermediate persisted state — a
// failure here is failed-for-this-tick and the dispatcher retries on the
// next tick without advancing the anchor.
package email

import (
	"context"
	"fmt"
	"time"

	"inkwell/internal/domain"
	"inkwell/internal/notify"
	logx "inkwell/pkg/logx"
)

// EntrySource is the slice of the store this pipeline reads.
type EntrySource interface {
	EntriesInRange(ctx context.Context, userID int64, start, end time.Time, filter domain.EntryFilter) ([]domain.Entry, error)
}

// Formatter turns the selected entry set into a sendable artifact. Content
// formatting is delegated; the engine only picks the entry set.
type Formatter interface {
	Format(user domain.User, sub domain.EmailSubscription, entries []domain.Entry, periodStart, periodEnd time.Time) notify.Message
}

type Pipeline struct {
	entries EntrySource
	format  Formatter
	sender  notify.Sender
	log     logx.Logger
}

func New(entries EntrySource, format Formatter, sender notify.Sender, log logx.Logger) *Pipeline {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pipeline{entries: entries, format: format, sender: sender, log: log}
}

// Run executes one email fulfillment for the period [start, end).
// An empty entry set is a success without a send: there is nothing to
// report, and skipping keeps the cadence advancing instead of retrying a
// report that will stay empty.
func (p *Pipeline) Run(ctx context.Context, user domain.User, sub domain.EmailSubscription, start, end time.Time) error {
	entries, err := p.entries.EntriesInRange(ctx, user.ID, start, end, sub.Filter)
	if err != nil {
		return fmt.Errorf("select entries: %w", err)
	}
	if len(entries) == 0 {
		p.log.Debug("email report skipped, no entries",
			logx.Int64("sub", sub.ID), logx.Time("start", start), logx.Time("end", end))
		return nil
	}

	msg := p.format.Format(user, sub, entries, start, end)
	if err := p.sender.Send(ctx, user, msg); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	p.log.Info("email report sent",
		logx.Int64("sub", sub.ID), logx.Int64("user", user.ID), logx.Int("entries", len(entries)))
	return nil
}
