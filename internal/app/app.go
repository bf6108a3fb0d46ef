// Package app wires the agent together: config, logging, store, channels,
// classifier, dispatcher, cycle runner and monitor.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/gpropadm/dcruzimoveis/internal/alert"
	"github.com/gpropadm/dcruzimoveis/internal/channel"
	"github.com/gpropadm/dcruzimoveis/internal/classify"
	"github.com/gpropadm/dcruzimoveis/internal/config"
	"github.com/gpropadm/dcruzimoveis/internal/cycle"
	"github.com/gpropadm/dcruzimoveis/internal/dispatch"
	"github.com/gpropadm/dcruzimoveis/internal/monitor"
	"github.com/gpropadm/dcruzimoveis/internal/runtime/supervisor"
	"github.com/gpropadm/dcruzimoveis/internal/store"
	"github.com/gpropadm/dcruzimoveis/pkg/logx"
)

const serviceName = "lead-agent"

type App struct {
	manager *config.Manager
	logs    *logx.Service
	log     logx.Logger

	store   store.Store
	monitor *monitor.Monitor
	sup     *supervisor.Supervisor
	sub     chan *config.Config
}

// New loads the config and builds the logging service. Everything else is
// wired in Start, which owns the context.
func New(cfgPath string) (*App, error) {
	manager := config.NewManager(cfgPath, logx.NewConsole("info"))
	cfg, err := manager.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logs, log := logx.New(logxConfig(cfg.Logging))
	manager.SetLogger(log.With(logx.String("component", "config")))
	manager.SetValidator(func(c *config.Config) error {
		if c.Store.DSN == "" {
			return store.ErrNotConfigured
		}
		return nil
	})

	return &App{manager: manager, logs: logs, log: log}, nil
}

func logxConfig(lc config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console || lc.File == "",
		File:    logx.FileConfig{Enabled: lc.File != "", Path: lc.File},
	}
}

// Start opens the store, builds the pipeline and launches the monitor loop
// and config watcher under a supervisor. It returns once everything is
// running.
func (a *App) Start(ctx context.Context) error {
	cfg := a.manager.Get()

	st, err := store.Open(ctx, store.Config{
		Driver:     cfg.Store.Driver,
		DSN:        cfg.Store.DSN,
		FetchLimit: cfg.Store.FetchLimit,
	}, a.log.With(logx.String("component", "store")))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.store = st

	adapters := a.buildAdapters(cfg)
	if len(adapters) == 0 {
		a.log.Warn("no delivery channel configured; leads will be marked with error")
	}

	alerts := a.buildAlerts(cfg)

	dispatchOpts, err := dispatchOptions(cfg.Dispatch)
	if err != nil {
		return err
	}
	engine := dispatch.NewEngine(adapters, dispatchOpts,
		a.log.With(logx.String("component", "dispatch")))

	classifier, err := a.buildClassifier(cfg)
	if err != nil {
		return err
	}

	cycleOpts, err := cycleOptions(cfg.Cycle)
	if err != nil {
		return err
	}
	runner := cycle.NewRunner(st, classifier, engine, alerts, cycleOpts,
		a.log.With(logx.String("component", "cycle")))

	monitorOpts, err := monitorOptions(cfg.Monitor)
	if err != nil {
		return err
	}
	mon, err := monitor.New(runner, st, alerts, monitorOpts,
		a.log.With(logx.String("component", "monitor")))
	if err != nil {
		return err
	}
	a.monitor = mon

	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))
	a.sup.Go("monitor", mon.Run)
	a.sup.Go("config-watch", a.manager.Watch)

	a.sub = a.manager.Subscribe(4)
	a.sup.Go("config-apply", func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case next, ok := <-a.sub:
				if !ok || next == nil {
					return nil
				}
				a.applyReload(next)
			}
		}
	})

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("agent started", logx.String("service", serviceName))
	return nil
}

// applyReload picks up the live-tunable settings from a config reload.
// Anything else (store DSN, channels) needs a restart.
func (a *App) applyReload(cfg *config.Config) {
	a.logs.Apply(logxConfig(cfg.Logging))
	if d, err := config.ParseDurationField("monitor.interval", cfg.Monitor.Interval); err == nil && d > 0 {
		a.monitor.SetBaseInterval(d)
	}
	a.log.Info("config applied",
		logx.String("log_level", cfg.Logging.Level),
		logx.String("interval", cfg.Monitor.Interval))
}

// Wait blocks until the supervisor drains (signal or fatal failure).
func (a *App) Wait(ctx context.Context) error {
	return a.sup.Wait(ctx)
}

// Stop shuts the agent down, bounded by ctx.
func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}
	if a.sub != nil {
		a.manager.Unsubscribe(a.sub)
		a.sub = nil
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.logs.Close()
	return err
}

// buildAdapters assembles the channel list in priority order. A section
// that fails construction is logged and left out instead of failing boot:
// the agent should run with whatever gateways are actually configured.
func (a *App) buildAdapters(cfg *config.Config) []channel.Adapter {
	var adapters []channel.Adapter
	log := a.log.With(logx.String("component", "channel"))

	add := func(name string, ad channel.Adapter, err error) {
		if err != nil {
			log.Warn("channel disabled", logx.String("channel", name), logx.Err(err))
			return
		}
		adapters = append(adapters, ad)
		log.Info("channel enabled", logx.String("channel", name))
	}

	wc := cfg.Channels.WhatsApp
	if wc.BaseURL != "" {
		timeout, _ := config.ParseDurationField("channels.whatsapp.timeout", wc.Timeout)
		ad, err := channel.NewWhatsApp(channel.WhatsAppConfig{
			BaseURL: wc.BaseURL, AuthToken: wc.AuthToken, Timeout: timeout,
		})
		add("whatsapp", ad, err)
	}
	ec := cfg.Channels.Evolution
	if ec.BaseURL != "" || ec.APIKey != "" {
		timeout, _ := config.ParseDurationField("channels.evolution.timeout", ec.Timeout)
		ad, err := channel.NewEvolution(channel.EvolutionConfig{
			BaseURL: ec.BaseURL, APIKey: ec.APIKey, Instance: ec.Instance, Timeout: timeout,
		})
		add("evolution", ad, err)
	}
	uc := cfg.Channels.UltraMsg
	if uc.Instance != "" || uc.Token != "" {
		timeout, _ := config.ParseDurationField("channels.ultramsg.timeout", uc.Timeout)
		ad, err := channel.NewUltraMsg(channel.UltraMsgConfig{
			Instance: uc.Instance, Token: uc.Token, Timeout: timeout,
		})
		add("ultramsg", ad, err)
	}
	tc := cfg.Channels.Telegram
	if tc.Token != "" {
		ad, err := channel.NewTelegram(channel.TelegramConfig{
			Token: tc.Token, ChatID: tc.ChatID,
		})
		add("telegram", ad, err)
	}
	return adapters
}

func (a *App) buildAlerts(cfg *config.Config) *alert.Notifier {
	var sinks []alert.Sink
	if s := alert.NewSlack(cfg.Alerts.SlackWebhookURL, cfg.Alerts.SlackChannel); s != nil {
		sinks = append(sinks, s)
	}
	if w := alert.NewWebhook(cfg.Alerts.WebhookURL); w != nil {
		sinks = append(sinks, w)
	}
	return alert.NewNotifier(serviceName, sinks,
		a.log.With(logx.String("component", "alert")))
}

// buildClassifier returns the heuristic scorer, upgraded to Claude with
// heuristic fallback when an API key is configured.
func (a *App) buildClassifier(cfg *config.Config) (classify.Classifier, error) {
	log := a.log.With(logx.String("component", "classify"))
	if cfg.Classifier.APIKey == "" {
		return classify.Heuristic{}, nil
	}
	timeout, err := config.ParseDurationField("classifier.timeout", cfg.Classifier.Timeout)
	if err != nil {
		return nil, err
	}
	claude, err := classify.NewClaude(classify.ClaudeConfig{
		APIKey:  cfg.Classifier.APIKey,
		Model:   cfg.Classifier.Model,
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	log.Info("claude classifier enabled", logx.String("model", cfg.Classifier.Model))
	return classify.WithFallback(claude, log), nil
}

func dispatchOptions(dc config.DispatchConfig) (dispatch.Options, error) {
	baseDelay, err := config.ParseDurationField("dispatch.base_delay", dc.BaseDelay)
	if err != nil {
		return dispatch.Options{}, err
	}
	return dispatch.Options{
		MaxRounds:      dc.MaxRounds,
		BaseDelay:      baseDelay,
		SendsPerMinute: dc.SendsPerMinute,
	}, nil
}

func cycleOptions(cc config.CycleConfig) (cycle.Options, error) {
	delay, err := config.ParseDurationField("cycle.inter_lead_delay", cc.InterLeadDelay)
	if err != nil {
		return cycle.Options{}, err
	}
	return cycle.Options{FetchLimit: cc.FetchLimit, InterLeadDelay: delay}, nil
}

func monitorOptions(mc config.MonitorConfig) (monitor.Options, error) {
	interval, err := config.ParseDurationField("monitor.interval", mc.Interval)
	if err != nil {
		return monitor.Options{}, err
	}
	maxInterval, err := config.ParseDurationOrDefault("monitor.max_interval", mc.MaxInterval, 5*time.Minute)
	if err != nil {
		return monitor.Options{}, err
	}
	return monitor.Options{
		Interval:     interval,
		MaxInterval:  maxInterval,
		BackoffAfter: mc.BackoffAfter,
		StopAfter:    mc.StopAfter,
		SiteURL:      mc.SiteURL,
		ReportSpec:   mc.ReportSpec,
		Watchdog: func() {
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		},
	}, nil
}
