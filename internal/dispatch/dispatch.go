// Package dispatch drives delivery of a composed notification through an
// ordered list of channel adapters, with per-round retry and tier-gated
// fallback.
package dispatch

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/gpropadm/dcruzimoveis/internal/channel"
	"github.com/gpropadm/dcruzimoveis/internal/lead"
	"github.com/gpropadm/dcruzimoveis/pkg/logx"
)

// Outcome summarizes one Dispatch call.
type Outcome struct {
	Succeeded bool
	// Channel is the adapter name that delivered the message, empty when
	// every attempt failed.
	Channel  string
	Attempts int
	LastErr  error
	At       time.Time
}

// Options tune the retry loop. Zero values get safe defaults.
type Options struct {
	// MaxRounds is how many passes over the eligible adapters are made
	// before giving up. Default 3.
	MaxRounds int
	// BaseDelay is multiplied by the round number for the wait between
	// rounds. Default 2s.
	BaseDelay time.Duration
	// SendsPerMinute caps outbound API calls across all adapters.
	// Default 30.
	SendsPerMinute int
}

// Engine tries adapters in priority order. For QUENTE leads every adapter is
// eligible; for MORNO and FRIO only the first one is, so a flaky fallback
// gateway never spends quota on low-priority traffic.
type Engine struct {
	adapters  []channel.Adapter
	maxRounds int
	baseDelay time.Duration
	limiter   *rate.Limiter
	log       logx.Logger
	now       func() time.Time
}

var errNoAdapters = errors.New("dispatch: no channel adapters configured")

func NewEngine(adapters []channel.Adapter, opts Options, log logx.Logger) *Engine {
	maxRounds := opts.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	perMinute := opts.SendsPerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	return &Engine{
		adapters:  adapters,
		maxRounds: maxRounds,
		baseDelay: baseDelay,
		limiter:   rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
		log:       log,
		now:       time.Now,
	}
}

// Dispatch attempts delivery to a single destination. It never touches the
// lead store; recording the result is the caller's job.
func (e *Engine) Dispatch(ctx context.Context, to, text string, tier lead.Tier) Outcome {
	out := Outcome{At: e.now()}
	if len(e.adapters) == 0 {
		out.LastErr = errNoAdapters
		return out
	}

	eligible := e.adapters
	if tier != lead.TierHot {
		eligible = e.adapters[:1]
	}

	// Adapters that fail with a config error are dead for the whole call:
	// retrying cannot fix a missing token.
	skipped := make(map[string]bool, len(eligible))

	for round := 1; round <= e.maxRounds; round++ {
		for _, ad := range eligible {
			if skipped[ad.Name()] {
				continue
			}
			if err := e.limiter.Wait(ctx); err != nil {
				out.LastErr = err
				return out
			}
			out.Attempts++
			res, err := ad.Send(ctx, to, text)
			if err == nil && res.OK {
				out.Succeeded = true
				out.Channel = ad.Name()
				out.LastErr = nil
				e.log.Info("message delivered",
					logx.String("channel", ad.Name()),
					logx.Int("attempts", out.Attempts),
					logx.String("tier", tier.String()))
				return out
			}
			out.LastErr = err
			kind := channel.KindOf(err)
			if kind == channel.KindConfig {
				skipped[ad.Name()] = true
			}
			e.log.Warn("send attempt failed",
				logx.String("channel", ad.Name()),
				logx.Int("round", round),
				logx.String("kind", string(kind)),
				logx.Err(err))
			if ctx.Err() != nil {
				return out
			}
		}

		if len(skipped) == len(eligible) {
			break
		}
		if round < e.maxRounds {
			if !sleepCtx(ctx, e.baseDelay*time.Duration(round)) {
				return out
			}
		}
	}

	e.log.Error("all delivery attempts exhausted",
		logx.Int("attempts", out.Attempts),
		logx.String("tier", tier.String()),
		logx.Err(out.LastErr))
	return out
}

// sleepCtx waits for d or until ctx is done; it reports whether the full
// delay elapsed.
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
