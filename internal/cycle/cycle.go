// Package cycle runs one polling pass over the lead store: fetch new leads,
// score them, compose the notification and dispatch it, recording the final
// status per lead.
package cycle

import (
	"context"
	"fmt"
	"time"

	"github.com/gpropadm/dcruzimoveis/internal/alert"
	"github.com/gpropadm/dcruzimoveis/internal/classify"
	"github.com/gpropadm/dcruzimoveis/internal/dispatch"
	"github.com/gpropadm/dcruzimoveis/internal/lead"
	"github.com/gpropadm/dcruzimoveis/internal/message"
	"github.com/gpropadm/dcruzimoveis/internal/store"
	"github.com/gpropadm/dcruzimoveis/pkg/logx"
)

// Dispatcher is the slice of the dispatch engine the runner needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, to, text string, tier lead.Tier) dispatch.Outcome
}

// Result records what happened to one lead.
type Result struct {
	LeadID   string
	Name     string
	Tier     lead.Tier
	Status   lead.Status
	Channel  string
	Attempts int
	Err      error
}

// Report summarizes one cycle.
type Report struct {
	Fetched int
	Sent    int
	Failed  int
	Skipped int
	Details []Result
}

// Options tune the runner. Zero values get defaults.
type Options struct {
	// FetchLimit bounds how many leads one cycle pulls. Default 10.
	FetchLimit int
	// InterLeadDelay spaces consecutive dispatches. Default 1s.
	InterLeadDelay time.Duration
}

type Runner struct {
	store      store.Store
	classifier classify.Classifier
	engine     Dispatcher
	alerts     *alert.Notifier
	log        logx.Logger
	limit      int
	delay      time.Duration
	now        func() time.Time
}

func NewRunner(st store.Store, cl classify.Classifier, eng Dispatcher, alerts *alert.Notifier, opts Options, log logx.Logger) *Runner {
	limit := opts.FetchLimit
	if limit <= 0 {
		limit = 10
	}
	delay := opts.InterLeadDelay
	if delay <= 0 {
		delay = time.Second
	}
	return &Runner{
		store:      st,
		classifier: cl,
		engine:     eng,
		alerts:     alerts,
		log:        log,
		limit:      limit,
		delay:      delay,
		now:        time.Now,
	}
}

// Run executes one cycle. A fetch failure aborts with an error and zero
// writes; failures on individual leads are recorded in the report and do not
// stop the batch.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	var rep Report

	leads, err := r.store.FetchUnprocessed(ctx, r.limit)
	if err != nil {
		return rep, fmt.Errorf("fetch leads: %w", err)
	}
	rep.Fetched = len(leads)
	if len(leads) == 0 {
		return rep, nil
	}

	settings, err := r.store.SiteSettings(ctx)
	if err != nil {
		r.log.Warn("site settings unavailable, composing without them", logx.Err(err))
		settings = store.Settings{}
	}

	if settings.ContactWhatsApp == "" {
		// An operator problem, not a lead failure: leave the batch in
		// 'novo' so it is delivered once the setting is fixed.
		r.alerts.Warning(ctx, "contact_whatsapp não configurado: leads aguardando")
		r.log.Warn("notification target missing, batch left untouched",
			logx.Int("fetched", len(leads)))
		rep.Skipped = len(leads)
		return rep, nil
	}

	seen := make(map[string]bool, len(leads))

	for i, l := range leads {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		res := r.processLead(ctx, l, settings, seen)
		rep.Details = append(rep.Details, res)
		switch res.Status {
		case lead.StatusSkipped:
			rep.Skipped++
		case lead.StatusSent:
			rep.Sent++
		default:
			rep.Failed++
		}

		if i < len(leads)-1 {
			if !sleepCtx(ctx, r.delay) {
				return rep, ctx.Err()
			}
		}
	}

	r.log.Info("cycle finished",
		logx.Int("fetched", rep.Fetched),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed),
		logx.Int("skipped", rep.Skipped))
	return rep, nil
}

func (r *Runner) processLead(ctx context.Context, l lead.Lead, settings store.Settings, seen map[string]bool) Result {
	res := Result{LeadID: l.ID, Name: l.Name}

	// Idempotency guard: a lead that already reached a terminal status, or
	// that the store handed us twice in one batch, is never dispatched
	// again. Stale 'processando' rows reclaimed by the fetch go through.
	if l.Status.Processed() || seen[l.ID] {
		res.Status = lead.StatusSkipped
		r.log.Debug("lead skipped",
			logx.String("lead_id", l.ID),
			logx.String("status", string(l.Status)))
		return res
	}
	seen[l.ID] = true

	if err := r.store.UpdateStatus(ctx, l.ID, lead.StatusProcessing); err != nil {
		res.Status = l.Status
		res.Err = fmt.Errorf("mark processing: %w", err)
		r.log.Error("status write failed", logx.String("lead_id", l.ID), logx.Err(err))
		return res
	}

	tier, err := r.classifier.Classify(ctx, l)
	if err != nil {
		// The classifier is wrapped with a heuristic fallback, so this is
		// unreachable in practice; score locally rather than drop the lead.
		tier = lead.Classify(l)
	}
	res.Tier = tier

	text := message.Compose(l, settings, tier, r.now())
	out := r.engine.Dispatch(ctx, settings.ContactWhatsApp, text, tier)
	res.Channel = out.Channel
	res.Attempts = out.Attempts

	final := lead.StatusError
	if out.Succeeded {
		final = lead.StatusSent
	} else {
		res.Err = out.LastErr
	}
	res.Status = final
	// The final status must land even when shutdown cancels ctx mid-dispatch;
	// a lead stranded in 'processando' stays invisible until the stale-row
	// reclaim kicks in.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.store.UpdateStatus(writeCtx, l.ID, final); err != nil {
		r.log.Error("status write failed",
			logx.String("lead_id", l.ID),
			logx.String("status", string(final)),
			logx.Err(err))
		res.Err = err
	}

	r.log.Info("lead processed",
		logx.String("lead_id", l.ID),
		logx.String("tier", tier.String()),
		logx.String("status", string(final)),
		logx.String("channel", out.Channel),
		logx.Int("attempts", out.Attempts))
	return res
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
