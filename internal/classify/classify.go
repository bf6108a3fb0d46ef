// Package classify selects the priority tier for incoming leads.
//
// The heuristic scorer in internal/lead is the baseline; an AI-backed
// classifier can be layered on top, but every classifier chain must end in
// the heuristic so classification can never abort a lead.
package classify

import (
	"context"

	"github.com/gpropadm/dcruzimoveis/internal/lead"
	"github.com/gpropadm/dcruzimoveis/pkg/logx"
)

// Classifier maps a lead to its priority tier.
//
// Implementations may call external services; they must honor ctx and return
// an error rather than block indefinitely.
type Classifier interface {
	Classify(ctx context.Context, l lead.Lead) (lead.Tier, error)
}

// Heuristic is the deterministic baseline scorer. It never fails.
type Heuristic struct{}

func (Heuristic) Classify(_ context.Context, l lead.Lead) (lead.Tier, error) {
	return lead.Classify(l), nil
}

// fallback wraps a primary classifier and degrades to the heuristic on any
// error, so a flaky external scorer can't block the pipeline.
type fallback struct {
	primary Classifier
	log     logx.Logger
}

// WithFallback returns a classifier that tries primary first and falls back
// to the heuristic scorer when it errors. A nil primary yields the heuristic.
func WithFallback(primary Classifier, log logx.Logger) Classifier {
	if primary == nil {
		return Heuristic{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &fallback{primary: primary, log: log}
}

func (f *fallback) Classify(ctx context.Context, l lead.Lead) (lead.Tier, error) {
	tier, err := f.primary.Classify(ctx, l)
	if err == nil {
		return tier, nil
	}
	f.log.Warn("classifier failed; using heuristic score",
		logx.String("lead_id", l.ID), logx.Err(err))
	return lead.Classify(l), nil
}
