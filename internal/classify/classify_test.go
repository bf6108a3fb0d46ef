package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/gpropadm/dcruzimoveis/internal/lead"
	"github.com/gpropadm/dcruzimoveis/pkg/logx"
)

type stubClassifier struct {
	tier lead.Tier
	err  error
}

func (s stubClassifier) Classify(context.Context, lead.Lead) (lead.Tier, error) {
	return s.tier, s.err
}

func TestWithFallbackPrefersPrimary(t *testing.T) {
	t.Parallel()
	c := WithFallback(stubClassifier{tier: lead.TierHot}, logx.Nop())
	// Lead that the heuristic would score COLD.
	got, err := c.Classify(context.Background(), lead.Lead{})
	if err != nil {
		t.Fatalf("Classify error: %v", err)
	}
	if got != lead.TierHot {
		t.Fatalf("tier = %v, want QUENTE from primary", got)
	}
}

func TestWithFallbackDegradesToHeuristic(t *testing.T) {
	t.Parallel()
	c := WithFallback(stubClassifier{err: errors.New("api down")}, logx.Nop())
	l := lead.Lead{Phone: "+1555", Email: "a@b.com", Message: "need to buy today", PropertyPrice: "600000"}
	got, err := c.Classify(context.Background(), l)
	if err != nil {
		t.Fatalf("Classify must not surface primary error, got %v", err)
	}
	if got != lead.TierHot {
		t.Fatalf("tier = %v, want heuristic QUENTE", got)
	}
}

func TestWithFallbackNilPrimary(t *testing.T) {
	t.Parallel()
	c := WithFallback(nil, logx.Nop())
	if _, ok := c.(Heuristic); !ok {
		t.Fatalf("expected bare heuristic for nil primary, got %T", c)
	}
}

func TestParseVerdict(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{name: "bare json", text: `{"priority":"QUENTE"}`, want: "QUENTE"},
		{name: "prose around json", text: "Here you go:\n{\"priority\": \"MORNO\"}\nDone.", want: "MORNO"},
		{name: "no json", text: "cannot analyze", wantErr: true},
		{name: "broken json", text: `{"priority":`, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			v, err := parseVerdict(tt.text)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseVerdict error: %v", err)
			}
			if v.Priority != tt.want {
				t.Fatalf("priority = %q, want %q", v.Priority, tt.want)
			}
		})
	}
}

func TestNewClaudeRequiresKey(t *testing.T) {
	t.Parallel()
	if _, err := NewClaude(ClaudeConfig{}); err == nil {
		t.Fatal("expected error for empty api key")
	}
}
