// Package app assembles the bot from its parts and owns their
// lifecycle: config, logging, storage, portal client, Telegram
// adapter, notify queue, watcher, router and health server.
package app

import (
	"context"
	"sync"
	"time"

	"shiftwatch/internal/bot"
	"shiftwatch/internal/config"
	"shiftwatch/internal/health"
	"shiftwatch/internal/notify"
	"shiftwatch/internal/portal"
	"shiftwatch/internal/storage"
	"shiftwatch/internal/transport"
	"shiftwatch/internal/transport/telegram"
	"shiftwatch/internal/watcher"
	"shiftwatch/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	logs *logx.Service
	log  logx.Logger

	store   storage.Store
	adapter transport.Adapter
	notif   *notify.Service
	watch   *watcher.Watcher
	router  *bot.Bot
	hsrv    *health.Server

	updates chan transport.Update

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
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
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	store, err := storage.Open(storage.Config{
		Path:        cfg.StoragePath(),
		BusyTimeout: cfg.BusyTimeout(),
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	source, err := portal.NewClient(portal.Config{
		LoginURL:  cfg.Portal.LoginURL,
		ShiftsURL: cfg.Portal.ShiftsURL,
		Timeout:   cfg.PortalTimeout(),
	}, log.With(logx.String("comp", "portal")))
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.PollTimeout(),
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	notif := notify.New(notify.Config{
		Workers:    cfg.Notify.Workers,
		QueueSize:  cfg.Notify.QueueSize,
		RatePerSec: cfg.Notify.RatePerSec,
	}, adapter, log.With(logx.String("comp", "notify")))

	watch := watcher.New(watcher.Config{
		CheckInterval: cfg.CheckInterval(),
		SweepInterval: cfg.SweepInterval(),
	}, store, source, nil, log.With(logx.String("comp", "watcher")))

	router := bot.New(bot.Config{
		PortalURL: cfg.Portal.LoginURL,
		Holidays:  cfg.Holidays,
	}, store, source, watch, notif, adapter, log.With(logx.String("comp", "bot")))

	// The watcher reports new shifts through the bot (digest + push).
	watch.SetNotifier(router)

	var hsrv *health.Server
	if cfg.Health.Enabled {
		hsrv = health.New(cfg.HealthAddr(), log.With(logx.String("comp", "health")))
	}

	return &App{
		cfgm:    cfgm,
		logs:    logSvc,
		log:     log,
		store:   store,
		adapter: adapter,
		notif:   notif,
		watch:   watch,
		router:  router,
		hsrv:    hsrv,
		updates: make(chan transport.Update, 256),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		cancel()
		return err
	}

	a.notif.Start(runCtx)
	a.watch.Start(runCtx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.router.Run(runCtx, a.updates)
	}()

	// Best effort; an old menu is cosmetic.
	if mu, ok := a.adapter.(transport.CommandMenuUpdater); ok {
		mctx, mcancel := context.WithTimeout(runCtx, 10*time.Second)
		if err := mu.UpdateMenuCommands(mctx, bot.Commands()); err != nil {
			a.log.Warn("command menu update failed", logx.Err(err))
		}
		mcancel()
	}

	if a.hsrv != nil {
		a.hsrv.Start()
	}

	// Hot reload fan-out. Logging is the only live-appliable section;
	// intervals and credentials take effect on restart.
	sub := a.cfgm.Subscribe(8)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.logs.Apply(logx.Config{
					Level:   newCfg.Logging.Level,
					Console: newCfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: newCfg.Logging.File.Enabled,
						Path:    newCfg.Logging.File.Path,
					},
				})
				a.log.Info("config reloaded; logging re-applied")
			}
		}
	}()
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	a.watch.Stop()
	a.notif.Stop()
	_ = a.adapter.Stop(ctx)
	if a.hsrv != nil {
		_ = a.hsrv.Stop(ctx)
	}
	a.wg.Wait()

	err := a.store.Close()
	a.log.Info("app stopped")
	_ = a.logs.Close()
	return err
}
