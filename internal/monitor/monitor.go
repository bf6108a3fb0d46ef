// Package monitor wraps the processing cycle in a production-safety loop:
// health checks, progressive backoff on repeated failures, a hard stop with
// a critical alert when errors pile up, a daily report, and a clean
// shutdown path.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gpropadm/dcruzimoveis/internal/alert"
	"github.com/gpropadm/dcruzimoveis/internal/cycle"
	"github.com/gpropadm/dcruzimoveis/internal/store"
	"github.com/gpropadm/dcruzimoveis/pkg/logx"
)

// State is the monitor's lifecycle phase.
type State int32

const (
	StateRunning State = iota
	StateBackoff
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateBackoff:
		return "backoff"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var errStoreUnreachable = errors.New("monitor: store unreachable")

// CycleRunner is the slice of cycle.Runner the monitor drives.
type CycleRunner interface {
	Run(ctx context.Context) (cycle.Report, error)
}

// Options tune the loop. Zero values get defaults.
type Options struct {
	// Interval between cycles. Default 30s.
	Interval time.Duration
	// MaxInterval caps backoff growth. Default 5m.
	MaxInterval time.Duration
	// BackoffAfter is the consecutive-failure count that doubles the
	// interval. Default 3.
	BackoffAfter int
	// StopAfter is the consecutive-failure count that stops the agent
	// with a critical alert. Default 5.
	StopAfter int
	// SiteURL enables the site health probe (GET {SiteURL}/api/health)
	// when non-empty.
	SiteURL string
	// ReportSpec is the cron expression for the daily report.
	// Default "0 9 * * *".
	ReportSpec string
	// Watchdog, when set, is called once per loop iteration
	// (sd_notify WATCHDOG=1).
	Watchdog func()
}

type Monitor struct {
	runner CycleRunner
	store  store.Store
	alerts *alert.Notifier
	log    logx.Logger

	maxInterval  time.Duration
	backoffAfter int
	stopAfter    int
	siteURL      string
	watchdog     func()

	reportSched cron.Schedule

	state atomic.Int32
	// base and interval are written from the config-reload goroutine while
	// Run reads them, so both stay atomic.
	base     atomic.Int64
	interval atomic.Int64

	// test seams
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
	probe func(ctx context.Context, url string) error
}

func New(runner CycleRunner, st store.Store, alerts *alert.Notifier, opts Options, log logx.Logger) (*Monitor, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	maxInterval := opts.MaxInterval
	if maxInterval <= 0 {
		maxInterval = 5 * time.Minute
	}
	backoffAfter := opts.BackoffAfter
	if backoffAfter <= 0 {
		backoffAfter = 3
	}
	stopAfter := opts.StopAfter
	if stopAfter <= 0 {
		stopAfter = 5
	}
	spec := opts.ReportSpec
	if spec == "" {
		spec = "0 9 * * *"
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("monitor: report schedule %q: %w", spec, err)
	}
	watchdog := opts.Watchdog
	if watchdog == nil {
		watchdog = func() {}
	}

	m := &Monitor{
		runner:       runner,
		store:        st,
		alerts:       alerts,
		log:          log,
		maxInterval:  maxInterval,
		backoffAfter: backoffAfter,
		stopAfter:    stopAfter,
		siteURL:      opts.SiteURL,
		watchdog:     watchdog,
		reportSched:  sched,
		now:          time.Now,
		sleep:        sleepCtx,
		probe:        probeSite,
	}
	m.base.Store(int64(interval))
	m.interval.Store(int64(interval))
	return m, nil
}

// State returns the current lifecycle phase.
func (m *Monitor) State() State { return State(m.state.Load()) }

// Interval returns the current (possibly backed-off) cycle interval.
func (m *Monitor) Interval() time.Duration { return time.Duration(m.interval.Load()) }

// BaseInterval returns the configured base pace.
func (m *Monitor) BaseInterval() time.Duration { return time.Duration(m.base.Load()) }

// SetBaseInterval applies a new base interval from a config reload. Safe to
// call while Run is looping; a backed-off monitor picks it up on recovery.
func (m *Monitor) SetBaseInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	m.base.Store(int64(d))
	if m.State() == StateRunning {
		m.interval.Store(int64(d))
	}
}

// Run drives cycles until ctx is canceled or the failure budget is spent.
// Shutdown is only observed between cycles; a cycle in flight finishes (or
// aborts via ctx at its own cancellation points) before the loop exits.
func (m *Monitor) Run(ctx context.Context) error {
	m.state.Store(int32(StateRunning))
	m.alerts.Info(ctx, "agente de leads iniciado")
	m.log.Info("monitor started",
		logx.Duration("interval", m.BaseInterval()),
		logx.Int("backoff_after", m.backoffAfter),
		logx.Int("stop_after", m.stopAfter))

	nextReport := m.reportSched.Next(m.now())
	consecutive := 0
	sinceSuccess := 0
	wasHealthy := true

	for {
		if ctx.Err() != nil {
			return m.drain(ctx.Err())
		}
		m.watchdog()

		health := m.checkHealth(ctx)
		m.logHealth(health)
		if !health.OK() && wasHealthy {
			m.alerts.Warning(ctx, fmt.Sprintf("saúde degradada (banco=%t site=%t destino=%t)",
				health.StoreOK, health.SiteOK, health.TargetOK))
		}
		wasHealthy = health.OK()

		// A degraded site or missing target doesn't block the cycle; an
		// unreachable store does, since every step needs it.
		var (
			rep cycle.Report
			err error
		)
		if !health.StoreOK {
			err = errStoreUnreachable
		} else {
			rep, err = m.runner.Run(ctx)
		}
		if ctx.Err() != nil {
			return m.drain(ctx.Err())
		}

		if err != nil {
			consecutive++
			sinceSuccess++
			m.log.Error("cycle failed",
				logx.Int("consecutive", consecutive),
				logx.Int("since_success", sinceSuccess),
				logx.Err(err))

			if sinceSuccess >= m.stopAfter {
				m.alerts.Critical(ctx, fmt.Sprintf("agente parado: %d ciclos com erro seguidos (último: %v)", sinceSuccess, err))
				m.state.Store(int32(StateStopped))
				return fmt.Errorf("monitor: %d consecutive cycle failures: %w", sinceSuccess, err)
			}
			if consecutive >= m.backoffAfter {
				m.backOff(ctx)
				consecutive = 0
			}
		} else {
			consecutive = 0
			sinceSuccess = 0
			if m.State() == StateBackoff {
				m.log.Info("recovered, back to base interval",
					logx.Duration("interval", m.BaseInterval()))
			}
			m.state.Store(int32(StateRunning))
			m.interval.Store(m.base.Load())
			if rep.Fetched > 0 {
				m.log.Info("cycle report",
					logx.Int("fetched", rep.Fetched),
					logx.Int("sent", rep.Sent),
					logx.Int("failed", rep.Failed),
					logx.Int("skipped", rep.Skipped))
			}
		}

		if now := m.now(); !now.Before(nextReport) {
			m.sendDailyReport(ctx, nextReport)
			nextReport = m.reportSched.Next(now)
		}

		if !m.sleep(ctx, m.Interval()) {
			return m.drain(ctx.Err())
		}
	}
}

func (m *Monitor) backOff(ctx context.Context) {
	cur := m.Interval()
	next := cur * 2
	if next > m.maxInterval {
		next = m.maxInterval
	}
	m.interval.Store(int64(next))
	m.state.Store(int32(StateBackoff))
	m.log.Warn("backing off",
		logx.Duration("from", cur),
		logx.Duration("to", next))
	m.alerts.Warning(ctx, fmt.Sprintf("falhas repetidas no ciclo, intervalo ampliado para %s", next))
}

func (m *Monitor) drain(cause error) error {
	m.state.Store(int32(StateDraining))
	m.log.Info("shutting down", logx.Err(cause))
	// Use a fresh context: the loop context is already canceled.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.alerts.Info(shutdownCtx, "agente de leads encerrado")
	m.state.Store(int32(StateStopped))
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
