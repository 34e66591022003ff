package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"ruletimer/internal/automation/timer"
	"ruletimer/internal/config"
	"ruletimer/internal/engine"
	"ruletimer/internal/eventbus"
	"ruletimer/internal/items"
	"ruletimer/internal/schedule"
	"ruletimer/internal/storage"
	logx "ruletimer/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./ruletimer.yaml", "path to config yaml/json")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cm := config.NewManager(cfgPath)
	cfg, err := cm.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logConfig(cfg))
	defer logSvc.Close()
	cm.SetLogger(log)

	var store storage.Store
	if cfg.Storage != nil {
		busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if err != nil {
			return err
		}
		store, err = storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, log)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
	}
	if store != nil {
		defer store.Close()
	}

	bus := eventbus.New()
	reg := items.NewRegistry(bus, store, log)
	if err := reg.Load(ctx); err != nil {
		log.Warn("restoring item states failed", logx.Err(err))
	}
	seedItems(ctx, reg, cfg.Items)

	sched := schedule.New(schedule.Config{Timezone: cfg.Timezone}, log)
	factory := timer.NewFactory(sched, reg, log)
	eng := engine.New(factory, reg, bus, log)

	sched.Start()
	eng.Apply(cfg.Rules)

	go func() { _ = cm.Watch(ctx) }()
	go reloadLoop(ctx, cm, logSvc, eng, reg, log)

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	log.Info("ruletimerd running", logx.String("config", cfgPath), logx.Int("rules", len(cfg.Rules)))

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	eng.Shutdown()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	sched.Stop(stopCtx)
	stopCancel()
	return nil
}

func reloadLoop(ctx context.Context, cm *config.Manager, logSvc *logx.Service, eng *engine.Service, reg *items.Registry, log logx.Logger) {
	ch := cm.Subscribe(4)
	defer cm.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok || cfg == nil {
				return
			}
			logSvc.Apply(logConfig(cfg))
			seedItems(ctx, reg, cfg.Items)
			eng.Apply(cfg.Rules)
			// Timezone and storage changes need a restart; everything else is live.
			log.Info("config reloaded", logx.Int("rules", len(cfg.Rules)))
		}
	}
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// seedItems fills in configured initial states without clobbering states that
// already exist (restored from storage or written by rules).
func seedItems(ctx context.Context, reg *items.Registry, seeds map[string]string) {
	for name, value := range seeds {
		if _, ok := reg.State(name); ok {
			continue
		}
		_ = reg.SetState(ctx, name, value)
	}
}
