// Package app wires the configuration, storage, transport, and services
// into one runnable unit.
package app

import (
	"context"
	"time"

	"predictbot/internal/bot"
	"predictbot/internal/config"
	"predictbot/internal/eventbus"
	rtsup "predictbot/internal/runtime/supervisor"
	"predictbot/internal/services/broadcast"
	"predictbot/internal/services/monitor"
	"predictbot/internal/services/notify"
	"predictbot/internal/services/scheduler"
	"predictbot/internal/services/stats"
	"predictbot/internal/store"
	telegram "predictbot/internal/transport/telegram"
	logx "predictbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	st      *store.Store
	adapter *telegram.Adapter
	sched   *scheduler.Service
	mon     *monitor.Service
	notify  *notify.Service
	bot     *bot.Service
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	loc := cfg.Location()
	bus := eventbus.New()

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(store.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
		Location:    loc,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	batchDelay, err := config.ParseDurationOrDefault("broadcast.batch_delay", cfg.Broadcast.BatchDelay, time.Second)
	if err != nil {
		return nil, err
	}
	retryBase, err := config.ParseDurationOrDefault("broadcast.retry_base", cfg.Broadcast.RetryBase, 5*time.Second)
	if err != nil {
		return nil, err
	}
	engine := broadcast.NewEngine(broadcast.Config{
		BatchSize:  cfg.Broadcast.BatchSize,
		BatchDelay: batchDelay,
		RetryMax:   cfg.Broadcast.RetryMax,
		RetryBase:  retryBase,
		RatePerSec: cfg.Broadcast.RatePerSec,
	}, adapter, bus, log.With(logx.String("comp", "broadcast")))

	sched := scheduler.New(scheduler.Config{
		Workers:  2,
		Timezone: loc,
	}, log.With(logx.String("comp", "scheduler")))

	checkInterval, err := config.ParseDurationOrDefault("monitor.check_interval", cfg.Monitor.CheckInterval, time.Minute)
	if err != nil {
		return nil, err
	}
	mon := monitor.New(monitor.Config{
		CheckInterval: checkInterval,
	}, st, sched, engine, bus, bot.PredictionMarkup, log.With(logx.String("comp", "monitor")))

	statsSvc := stats.New(st, loc, log.With(logx.String("comp", "stats")))

	notifySvc := notify.New(adapter, bus, cfg.Telegram.AdminIDs, log.With(logx.String("comp", "notify")))

	botSvc := bot.New(bot.Config{
		// Admin routing reads the current allow-list on every update, so a
		// config reload takes effect without a restart.
		IsAdmin:  func(id int64) bool { return cfgm.Get().IsAdmin(id) },
		Timezone: loc,
	}, adapter, st, engine, mon, statsSvc, bus, log.With(logx.String("comp", "bot")))

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logs,
		bus:     bus,
		st:      st,
		adapter: adapter,
		sched:   sched,
		mon:     mon,
		notify:  notifySvc,
		bot:     botSvc,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log))

	a.sched.Start(ctx)
	if err := a.mon.Start(ctx); err != nil {
		return err
	}
	if err := a.bot.Start(ctx); err != nil {
		return err
	}

	a.sup.Go0("notify.admins", func(c context.Context) {
		a.notify.Run(c)
	})

	// Hot-reload: only logging changes apply live; the rest needs a restart.
	sub := a.cfgm.Subscribe(4)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.logs.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: cfg.Logging.File.Enabled,
						Path:    cfg.Logging.File.Path,
					},
				})
				a.bus.Publish(eventbus.Event{Type: eventbus.EventConfigReloaded})
				a.log.Info("configuration reloaded")
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	err := a.bot.Stop(ctx)
	a.sched.Stop(ctx)
	if a.sup != nil {
		a.sup.Cancel()
		_ = a.sup.Wait(ctx)
	}
	if cerr := a.st.Close(); cerr != nil && err == nil {
		err = cerr
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
	return err
}
