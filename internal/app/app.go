// Package app assembles the engine from config: storage, pipelines, the
// dispatch loop, and delivery adapters. It owns startup order, config hot
// reload, and graceful shutdown.
package app

import (
	"context"
	"sync"
	"time"

	"inkwell/internal/clock"
	"inkwell/internal/config"
	"inkwell/internal/dispatch"
	"inkwell/internal/eventbus"
	"inkwell/internal/fulfillment/email"
	"inkwell/internal/fulfillment/print"
	"inkwell/internal/notify"
	"inkwell/internal/polish"
	"inkwell/internal/store"
	"inkwell/internal/vendorapi"
	logx "inkwell/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.Bus
	st   *store.Store

	worker *dispatch.Worker
	svc    *dispatch.Service

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(store.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}

	gw := vendorapi.NewClient(vendorapi.Config{
		BaseURL:    cfg.Vendor.BaseURL,
		Token:      cfg.Vendor.Token,
		RatePerSec: cfg.Vendor.RatePerSec,
	}, log.With(logx.String("comp", "vendor")))

	var polisher polish.Polisher = polish.Noop{}
	if cfg.Polish != nil && cfg.Polish.Enabled {
		polisher = polish.NewClient(polish.Config{
			BaseURL: cfg.Polish.BaseURL,
			Token:   cfg.Polish.Token,
		}, log.With(logx.String("comp", "polish")))
	}

	router := &notify.Router{Log: log.With(logx.String("comp", "notify"))}
	if cfg.Telegram != nil {
		tg, err := notify.NewTelegram(notify.TelegramConfig{
			Token:      cfg.Telegram.Token,
			RatePerSec: cfg.Telegram.RatePerSec,
		}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, err
		}
		router.Telegram = tg
	}
	if cfg.SMTP != nil {
		router.Email = notify.NewSMTP(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, log.With(logx.String("comp", "smtp")))
	}

	emailPipe := email.New(st, email.PlainFormatter{}, router, log.With(logx.String("comp", "email")))
	printPipe := print.New(st, print.TextRenderer{
		Polisher: polisher,
		Style:    polish.StyleOptions{FixGrammar: true},
		Log:      log.With(logx.String("comp", "render")),
	}, gw, bus, log.With(logx.String("comp", "print")))

	dcfg, err := mapDispatchConfig(cfg.Dispatch)
	if err != nil {
		return nil, err
	}
	worker := dispatch.NewWorker(dcfg, st, clock.System{}, emailPipe, printPipe, router, bus,
		log.With(logx.String("comp", "dispatch")))

	return &App{
		cfgm:   cfgm,
		log:    log,
		logs:   logSvc,
		bus:    bus,
		st:     st,
		worker: worker,
		svc:    dispatch.NewService(worker, log.With(logx.String("comp", "dispatch"))),
	}, nil
}

func mapDispatchConfig(c config.DispatchConfig) (dispatch.Config, error) {
	tick, err := config.ParseDurationField("dispatch.tick_interval", c.TickInterval)
	if err != nil {
		return dispatch.Config{}, err
	}
	stale, err := config.ParseDurationField("dispatch.stale_claim_after", c.StaleClaimAfter)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{
		Enabled:                c.Enabled,
		TickInterval:           tick,
		Workers:                c.Workers,
		StaleClaimAfter:        stale,
		MaxConsecutiveFailures: c.MaxConsecutiveFailures,
	}, nil
}

// Bus exposes engine events for embedding callers (operator tooling, tests).
func (a *App) Bus() *eventbus.Bus { return a.bus }

// SendNow triggers one subscription immediately, outside its cadence.
func (a *App) SendNow(ctx context.Context, kind string, subID int64, trailing time.Duration) error {
	return a.worker.SendNow(ctx, kind, subID, trailing)
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	// Hot reload: logging re-applies live; everything else logs what changed
	// and takes effect on restart.
	sub := a.cfgm.Subscribe(4)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				changed, attrs := config.SummarizeChange(last, cfg)
				if len(changed) == 0 {
					continue
				}
				a.log.Info("config changed", append(attrs, logx.Any("sections", changed))...)
				for _, section := range changed {
					if section == "logging" {
						a.logs.Apply(logx.Config{
							Level:   cfg.Logging.Level,
							Console: cfg.Logging.Console,
							File: logx.FileConfig{
								Enabled: cfg.Logging.File.Enabled,
								Path:    cfg.Logging.File.Path,
							},
						})
					} else {
						a.log.Warn("section change requires restart", logx.String("section", section))
					}
				}
				last = cfg
			}
		}
	}()

	// Debug visibility into engine outcomes.
	events, unsub := a.bus.Subscribe(128)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsub()
		for {
			select {
			case <-runCtx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	}()

	return a.svc.Start(runCtx)
}

func (a *App) Stop(ctx context.Context) {
	a.svc.Stop(ctx)
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	if err := a.st.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
	}
	a.log.Info("engine stopped")
	_ = a.logs.Close()
}
