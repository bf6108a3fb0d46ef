// Package alert delivers operational alerts (not lead notifications) to
// whatever sinks the operator configured. Delivery is best-effort: a broken
// alert hook must never take the agent down with it.
package alert

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/gpropadm/dcruzimoveis/pkg/logx"
)

// Level orders alert severity.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Event is one alert.
type Event struct {
	Level   Level
	Message string
	Time    time.Time
	Service string
}

// Sink pushes a single event somewhere external.
type Sink interface {
	Name() string
	Push(ctx context.Context, ev Event) error
}

// Notifier fans events out to all configured sinks. Sink errors are logged
// and swallowed; a global rate limiter keeps an alert storm from flooding
// the hooks.
type Notifier struct {
	sinks   []Sink
	service string
	limiter *rate.Limiter
	log     logx.Logger
	now     func() time.Time
}

func NewNotifier(service string, sinks []Sink, log logx.Logger) *Notifier {
	return &Notifier{
		sinks:   sinks,
		service: service,
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 5),
		log:     log,
		now:     time.Now,
	}
}

// Notify sends one event to every sink. It returns immediately when no sink
// is configured or the rate limit is exceeded. Critical events bypass the
// limiter: the alert that explains why the agent stopped must not be the one
// a warning storm squeezed out.
func (n *Notifier) Notify(ctx context.Context, level Level, message string) {
	if len(n.sinks) == 0 {
		return
	}
	if level != LevelCritical && !n.limiter.Allow() {
		n.log.Warn("alert dropped by rate limit",
			logx.String("level", string(level)),
			logx.String("message", message))
		return
	}
	ev := Event{Level: level, Message: message, Time: n.now(), Service: n.service}
	for _, s := range n.sinks {
		if err := s.Push(ctx, ev); err != nil {
			n.log.Warn("alert sink failed",
				logx.String("sink", s.Name()),
				logx.Err(err))
		}
	}
}

func (n *Notifier) Info(ctx context.Context, msg string)     { n.Notify(ctx, LevelInfo, msg) }
func (n *Notifier) Warning(ctx context.Context, msg string)  { n.Notify(ctx, LevelWarning, msg) }
func (n *Notifier) Critical(ctx context.Context, msg string) { n.Notify(ctx, LevelCritical, msg) }

func (l Level) emoji() string {
	switch l {
	case LevelCritical:
		return "🚨"
	case LevelWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}
