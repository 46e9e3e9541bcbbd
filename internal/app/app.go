package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gmsas95/medtracker/internal/api"
	"github.com/gmsas95/medtracker/internal/channels/discord"
	"github.com/gmsas95/medtracker/internal/channels/telegram"
	"github.com/gmsas95/medtracker/internal/config"
	"github.com/gmsas95/medtracker/internal/cron"
	"github.com/gmsas95/medtracker/internal/metrics"
	"github.com/gmsas95/medtracker/internal/reminders"
	"github.com/gmsas95/medtracker/internal/store"
	"github.com/gmsas95/medtracker/internal/tracker"
	"go.uber.org/zap"
)

// App wires the store, reminders and service for one user. The chat
// channels are only connected by RunServer, so short-lived CLI commands
// never open network connections.
type App struct {
	Config     *config.Config
	Store      *store.Store
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Service    *tracker.Service
	Notifier   *reminders.CronNotifier
	CronRunner *cron.Runner
	Version    string

	mu       sync.RWMutex
	channels reminders.Deliverer
}

func New(cfg *config.Config, st *store.Store, logger *zap.Logger, version string) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:   cfg,
		Store:    st,
		Logger:   logger,
		Metrics:  metrics.Default(),
		Version:  version,
		channels: reminders.LogDeliverer{Logger: logger},
	}

	triggerOut := reminders.NewGuardedDeliverer(reminders.DelivererFunc(app.deliver), app.guardConfig("trigger"), logger, app.Metrics)
	app.Notifier = reminders.NewCronNotifier(loc, reminders.NewBadgerRegistry(st.Badger()), triggerOut, logger)

	planner := reminders.NewPlanner(app.Notifier, logger, app.Metrics)
	app.Service = tracker.NewService(st, planner, tracker.Options{
		UserID:   cfg.Schedule.UserID,
		Window:   cfg.Schedule.DueSoonWindow,
		Location: loc,
	}, logger, app.Metrics)

	return app, nil
}

func (app *App) guardConfig(source string) reminders.GuardConfig {
	return reminders.GuardConfig{
		Name:            source,
		RatePerMinute:   app.Config.Reminders.RatePerMinute,
		Burst:           app.Config.Reminders.RatePerMinute,
		BreakerFailures: app.Config.Reminders.BreakerFailures,
		Source:          source,
	}
}

func (app *App) deliver(ctx context.Context, r reminders.Reminder) error {
	app.mu.RLock()
	d := app.channels
	app.mu.RUnlock()
	return d.Deliver(ctx, r)
}

// ConnectChannels replaces the log-only output with every enabled chat
// channel. Channels that fail to connect are logged and skipped.
func (app *App) ConnectChannels() int {
	out := reminders.MultiDeliverer{reminders.LogDeliverer{Logger: app.Logger}}

	if tg := app.Config.Channels.Telegram; tg.Enabled {
		sender, err := telegram.NewSender(telegram.Config{
			Token:   tg.BotToken,
			Enabled: true,
			ChatIDs: tg.ChatIDs,
		}, app.Logger)
		if err != nil {
			app.Logger.Error("Failed to create Telegram sender", zap.Error(err))
		} else {
			out = append(out, sender)
		}
	}

	if dc := app.Config.Channels.Discord; dc.Enabled && dc.Token != "" {
		sender, err := discord.NewSender(discord.Config{
			Token:    dc.Token,
			Enabled:  true,
			Channels: dc.Channels,
		}, app.Logger)
		if err != nil {
			app.Logger.Error("Failed to create Discord sender", zap.Error(err))
		} else {
			out = append(out, sender)
			app.Logger.Info("Discord reminders enabled", zap.Int("channels", len(dc.Channels)))
		}
	}

	app.mu.Lock()
	app.channels = out
	app.mu.Unlock()
	return len(out)
}

// StartReminders restores stored triggers, starts firing them and starts the
// upcoming-dose runner.
func (app *App) StartReminders(ctx context.Context) error {
	if _, err := app.Notifier.Restore(ctx); err != nil {
		return err
	}
	app.Notifier.Start()

	upcomingOut := reminders.NewGuardedDeliverer(reminders.DelivererFunc(app.deliver), app.guardConfig("upcoming"), app.Logger, app.Metrics)
	app.CronRunner = cron.NewRunner(cron.Config{
		CheckInterval: app.Config.Reminders.CheckInterval,
	}, app.Service, upcomingOut, app.Store, app.Logger, app.Metrics)
	if err := app.CronRunner.Start(); err != nil {
		return err
	}
	app.Logger.Info("Reminders started",
		zap.Int("triggers", app.Notifier.Len()),
		zap.Duration("check_interval", app.Config.Reminders.CheckInterval))
	return nil
}

// StopReminders stops the runner and the trigger scheduler.
func (app *App) StopReminders() {
	if app.CronRunner != nil {
		app.CronRunner.Stop()
	}
	app.Notifier.Stop()
}

func (app *App) RunServer() {
	if app.Config.Reminders.Enabled {
		app.ConnectChannels()
		if err := app.StartReminders(context.Background()); err != nil {
			app.Logger.Error("Failed to start reminders", zap.Error(err))
		}
	} else {
		app.Logger.Info("Reminders disabled")
	}

	server := api.New(app.Config, app.Service, app.Logger, app.Metrics, app.Version)

	go func() {
		if err := server.Start(); err != nil {
			app.Logger.Fatal("Server error", zap.Error(err))
		}
	}()

	app.Logger.Info("Server started",
		zap.String("address", app.Config.Server.Address),
		zap.Int("port", app.Config.Server.Port),
		zap.String("url", fmt.Sprintf("http://localhost:%d", app.Config.Server.Port)),
		zap.String("user_id", app.Service.UserID()),
		zap.String("timezone", app.Service.Now().Location().String()),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info("Shutting down...")

	app.StopReminders()

	if err := server.Shutdown(); err != nil {
		app.Logger.Error("Server shutdown error", zap.Error(err))
	}
}
