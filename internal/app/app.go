// Package app assembles the relay daemon: config, logging, registry,
// delivery engine, bus consumer, interactions server and maintenance jobs.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"buildrelay/internal/actions"
	"buildrelay/internal/bus"
	"buildrelay/internal/config"
	"buildrelay/internal/interactions"
	"buildrelay/internal/registry"
	"buildrelay/internal/relay"
	"buildrelay/internal/render"
	"buildrelay/internal/transport/discord"
	logx "buildrelay/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	store    *registry.Store
	engine   *relay.Engine
	consumer *bus.Consumer
	inter    *interactions.Server
	cron     *cron.Cron

	auditRetention time.Duration

	cancelWatch context.CancelFunc
	wg          sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
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

	a := &App{cfgPath: cfgPath, cfgm: cfgm, logs: logSvc, log: log}

	regCfg, err := mapRegistryConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := registry.Open(regCfg, log.With(logx.String("comp", "registry")))
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	a.store = store

	discordCfg, err := mapDiscordConfig(cfg)
	if err != nil {
		return nil, err
	}
	webhooks := discord.New(discordCfg, log.With(logx.String("comp", "discord")))

	relayCfg, err := mapRelayConfig(cfg)
	if err != nil {
		return nil, err
	}
	renderer := render.New(actions.Factory{})
	a.engine = relay.New(relayCfg, store, webhooks, store, renderer,
		log.With(logx.String("comp", "relay")))

	busCfg, err := mapBusConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.consumer = bus.New(busCfg, func(m *bus.Message) error {
		return a.engine.Enqueue(m)
	}, log.With(logx.String("comp", "bus")))

	if cfg.Interactions.Enabled {
		interCfg, err := mapInteractionsConfig(cfg)
		if err != nil {
			return nil, err
		}
		ctrlCfg, err := mapControllerConfig(cfg)
		if err != nil {
			return nil, err
		}
		controller := actions.NewRESTController(ctrlCfg, log.With(logx.String("comp", "builds")))
		srv, err := interactions.New(interCfg, controller, webhooks,
			log.With(logx.String("comp", "interactions")))
		if err != nil {
			return nil, err
		}
		a.inter = srv
	}

	schedule, retention, err := mapMaintenance(cfg)
	if err != nil {
		return nil, err
	}
	a.auditRetention = retention
	a.cron = cron.New()
	if _, err := a.cron.AddFunc(schedule, a.pruneAudit); err != nil {
		return nil, fmt.Errorf("maintenance.audit_prune_schedule: %w", err)
	}

	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	a.engine.Start(ctx)

	if err := a.consumer.Start(ctx); err != nil {
		return err
	}
	if a.inter != nil {
		if err := a.inter.Start(ctx); err != nil {
			return err
		}
	}
	a.cron.Start()

	// Config hot reload: logging and dispatch tunables respond live;
	// everything else takes effect on restart.
	watchCtx, cancel := context.WithCancel(context.Background())
	a.cancelWatch = cancel
	updates := a.cfgm.Subscribe(1)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(watchCtx)
	}()
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(updates)
		for {
			select {
			case <-watchCtx.Done():
				return
			case cfg, ok := <-updates:
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
				a.log.Info("logging config applied", logx.String("level", cfg.Logging.Level))

				if timeout, err := config.ParseDurationField("relay.dispatch_timeout", cfg.Relay.DispatchTimeout); err == nil {
					a.engine.ApplyTunables(cfg.Relay.RatePerSec, timeout)
				} else {
					a.log.Warn("reload skipped bad relay tunable", logx.Err(err))
				}
			}
		}
	}()

	a.log.Info("buildrelay started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancelWatch != nil {
		a.cancelWatch()
	}

	// Stop intake first so the engine can drain its backlog.
	_ = a.consumer.Stop(ctx)
	a.engine.Stop(ctx)

	if a.inter != nil {
		_ = a.inter.Stop(ctx)
	}
	cronDone := a.cron.Stop()
	select {
	case <-cronDone.Done():
	case <-ctx.Done():
	}

	a.wg.Wait()
	err := a.store.Close()
	a.log.Info("buildrelay stopped")
	_ = a.logs.Close()
	return err
}

// pruneAudit trims the dispatch audit to the retention window and logs a
// small health snapshot alongside.
func (a *App) pruneAudit() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-a.auditRetention)
	n, err := a.store.PruneAudit(ctx, cutoff)
	if err != nil {
		a.log.Warn("audit prune failed", logx.Err(err))
		return
	}
	a.log.Info("audit pruned",
		logx.Int64("removed", n),
		logx.Time("cutoff", cutoff),
		logx.Int("cache_entries", a.engine.Cache().Len()))
}
