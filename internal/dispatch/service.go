package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	logx "inkwell/pkg/logx"
)

// Service owns the periodic tick. The cron entry is just a trigger; all due
// logic lives in Worker.Tick, so the exact cadence is a deployment knob.
type Service struct {
	mu sync.Mutex

	worker *Worker
	log    logx.Logger

	c       *cron.Cron
	baseCtx context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
}

func NewService(worker *Worker, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{worker: worker, log: log}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	if !s.worker.cfg.Enabled {
		s.log.Info("dispatch disabled")
		return nil
	}

	s.baseCtx, s.cancel = context.WithCancel(ctx)

	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)))
	spec := fmt.Sprintf("@every %s", s.worker.cfg.TickInterval)
	if _, err := c.AddFunc(spec, s.tick); err != nil {
		s.cancel()
		return fmt.Errorf("register tick: %w", err)
	}
	s.c = c
	c.Start()
	s.log.Info("dispatch started",
		logx.Duration("interval", s.worker.cfg.TickInterval),
		logx.Int("workers", s.worker.cfg.Workers))

	// First scan immediately; anything already due shouldn't wait a full
	// interval after a restart.
	go s.tick()
	return nil
}

func (s *Service) tick() {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	s.running.Add(1)
	defer s.running.Done()
	s.worker.Tick(ctx)
}

// Stop halts the trigger and waits for in-flight ticks. In-flight pipeline
// invocations complete rather than aborting mid-stream, so a half-rendered
// print order is never left behind by a clean shutdown.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.cancel = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}

	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		<-done
	}
	if cancel != nil {
		cancel()
	}
	s.log.Info("dispatch stopped")
}
