// Package dispatch is the engine's scheduler loop: on every tick it scans
// for due obligations, claims each one with a per-row lease, and hands it to
// the matching fulfillment pipeline. One obligation's failure never aborts
// the tick for the others.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"inkwell/internal/clock"
	"inkwell/internal/eventbus"
	"inkwell/internal/notify"
	logx "inkwell/pkg/logx"
)

type Worker struct {
	cfg   Config
	st    Store
	clk   clock.Clock
	email EmailPipeline
	print PrintPipeline
	nudge notify.Sender
	bus   *eventbus.Bus
	log   logx.Logger
}

func NewWorker(cfg Config, st Store, clk clock.Clock, email EmailPipeline, print PrintPipeline, nudge notify.Sender, bus *eventbus.Bus, log logx.Logger) *Worker {
	if clk == nil {
		clk = clock.System{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Worker{
		cfg:   cfg.withDefaults(),
		st:    st,
		clk:   clk,
		email: email,
		print: print,
		nudge: nudge,
		bus:   bus,
		log:   log,
	}
}

// unit is one claimed-and-executable obligation.
type unit struct {
	name string
	run  func(ctx context.Context) error
}

// Tick runs one full dispatch cycle: reminders, email subscriptions, print
// subscriptions, then a vendor-status sweep for open print orders. Units
// are independent and fan out over a bounded pool.
func (w *Worker) Tick(ctx context.Context) {
	now := w.clk.Now().UTC()

	units := make([]unit, 0, 32)
	units = append(units, w.reminderUnits(ctx, now)...)
	units = append(units, w.emailUnits(ctx, now)...)
	units = append(units, w.printUnits(ctx, now)...)

	if len(units) > 0 {
		w.log.Debug("dispatch tick", logx.Int("due", len(units)), logx.Time("now", now))
		w.runUnits(ctx, units)
	}

	// Open print orders advance regardless of what came due this tick.
	w.print.PollOpen(ctx, now)
}

func (w *Worker) runUnits(ctx context.Context, units []unit) {
	queue := make(chan unit)
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range queue {
				w.execOne(ctx, u)
			}
		}()
	}
	for _, u := range units {
		select {
		case queue <- u:
		case <-ctx.Done():
			close(queue)
			wg.Wait()
			return
		}
	}
	close(queue)
	wg.Wait()
}

// execOne runs one unit with a panic guard so one bad obligation can't take
// down the tick or leak a worker goroutine.
func (w *Worker) execOne(ctx context.Context, u unit) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("obligation panicked",
				logx.String("unit", u.name),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()
	if err := u.run(ctx); err != nil {
		w.log.Warn("obligation failed", logx.String("unit", u.name), logx.Err(err))
	}
}

func (w *Worker) publish(typ string, data map[string]any) {
	if w.bus != nil {
		w.bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}

// recordFailure applies the shared failure bookkeeping: counter bump,
// review flag at the threshold, events for both.
func (w *Worker) recordFailure(typ string, id int64, cause error,
	fail func() (int, bool, error)) {
	count, flagged, err := fail()
	if err != nil {
		w.log.Error("failure bookkeeping failed", logx.String("kind", typ), logx.Int64("id", id), logx.Err(err))
		return
	}
	w.publish(eventbus.EventObligationFailed, map[string]any{
		"kind": typ, "id": id, "consecutive": count, "err": fmt.Sprint(cause),
	})
	if flagged {
		w.log.Warn("obligation flagged for review",
			logx.String("kind", typ), logx.Int64("id", id), logx.Int("consecutive", count))
		w.publish(eventbus.EventObligationReview, map[string]any{"kind": typ, "id": id})
	}
}
