package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gpropadm/dcruzimoveis/internal/channel"
	"github.com/gpropadm/dcruzimoveis/internal/lead"
	"github.com/gpropadm/dcruzimoveis/pkg/logx"
)

type fakeAdapter struct {
	name string
	// errs is consumed one per Send; nil entry means success. When the
	// slice runs out the adapter keeps returning the last entry.
	errs  []error
	calls int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Send(_ context.Context, _, _ string) (channel.Outcome, error) {
	i := f.calls
	f.calls++
	if i >= len(f.errs) {
		i = len(f.errs) - 1
	}
	if i >= 0 && f.errs[i] != nil {
		return channel.Outcome{}, f.errs[i]
	}
	return channel.Outcome{OK: true}, nil
}

func remoteErr(name string) error {
	return &channel.Error{Channel: name, Kind: channel.KindRemote, Err: errors.New("status 500")}
}

func newTestEngine(t *testing.T, adapters []channel.Adapter, opts Options) *Engine {
	t.Helper()
	if opts.BaseDelay == 0 {
		opts.BaseDelay = time.Millisecond
	}
	if opts.SendsPerMinute == 0 {
		opts.SendsPerMinute = 100000
	}
	return NewEngine(adapters, opts, logx.Nop())
}

func TestDispatchFirstTrySuccess(t *testing.T) {
	t.Parallel()
	primary := &fakeAdapter{name: "whatsapp"}
	fallback := &fakeAdapter{name: "evolution"}
	e := newTestEngine(t, []channel.Adapter{primary, fallback}, Options{})

	out := e.Dispatch(context.Background(), "+5548999", "oi", lead.TierHot)
	if !out.Succeeded || out.Channel != "whatsapp" || out.Attempts != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	if fallback.calls != 0 {
		t.Fatalf("fallback was called %d times", fallback.calls)
	}
	if out.At.IsZero() {
		t.Fatal("At not stamped")
	}
}

func TestDispatchHotFallsBack(t *testing.T) {
	t.Parallel()
	primary := &fakeAdapter{name: "whatsapp", errs: []error{remoteErr("whatsapp")}}
	fallback := &fakeAdapter{name: "evolution"}
	e := newTestEngine(t, []channel.Adapter{primary, fallback}, Options{})

	out := e.Dispatch(context.Background(), "+5548999", "oi", lead.TierHot)
	if !out.Succeeded {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Channel != "evolution" {
		t.Fatalf("channel = %s, want evolution", out.Channel)
	}
	if out.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", out.Attempts)
	}
	if out.LastErr != nil {
		t.Fatalf("LastErr = %v after success", out.LastErr)
	}
}

func TestDispatchColdNeverFallsBack(t *testing.T) {
	t.Parallel()
	primary := &fakeAdapter{name: "whatsapp", errs: []error{remoteErr("whatsapp")}}
	fallback := &fakeAdapter{name: "evolution"}
	e := newTestEngine(t, []channel.Adapter{primary, fallback}, Options{MaxRounds: 2})

	out := e.Dispatch(context.Background(), "+5548999", "oi", lead.TierCold)
	if out.Succeeded {
		t.Fatalf("outcome = %+v, want failure", out)
	}
	if fallback.calls != 0 {
		t.Fatalf("fallback was called %d times for a cold lead", fallback.calls)
	}
	if primary.calls != 2 {
		t.Fatalf("primary calls = %d, want one per round", primary.calls)
	}
	if out.LastErr == nil {
		t.Fatal("LastErr not recorded")
	}
}

func TestDispatchExhaustsRounds(t *testing.T) {
	t.Parallel()
	primary := &fakeAdapter{name: "whatsapp", errs: []error{remoteErr("whatsapp")}}
	fallback := &fakeAdapter{name: "evolution", errs: []error{remoteErr("evolution")}}
	e := newTestEngine(t, []channel.Adapter{primary, fallback}, Options{MaxRounds: 3})

	out := e.Dispatch(context.Background(), "+5548999", "oi", lead.TierHot)
	if out.Succeeded {
		t.Fatalf("outcome = %+v, want failure", out)
	}
	if out.Attempts != 6 {
		t.Fatalf("attempts = %d, want 2 adapters * 3 rounds", out.Attempts)
	}
}

func TestDispatchSkipsConfigErrors(t *testing.T) {
	t.Parallel()
	misconfigured := &fakeAdapter{name: "whatsapp", errs: []error{
		&channel.Error{Channel: "whatsapp", Kind: channel.KindConfig, Err: errors.New("no token")},
	}}
	fallback := &fakeAdapter{name: "evolution", errs: []error{remoteErr("evolution"), nil}}
	e := newTestEngine(t, []channel.Adapter{misconfigured, fallback}, Options{MaxRounds: 3})

	out := e.Dispatch(context.Background(), "+5548999", "oi", lead.TierHot)
	if !out.Succeeded || out.Channel != "evolution" {
		t.Fatalf("outcome = %+v", out)
	}
	if misconfigured.calls != 1 {
		t.Fatalf("misconfigured adapter retried %d times", misconfigured.calls)
	}
}

func TestDispatchAllConfigStopsEarly(t *testing.T) {
	t.Parallel()
	cfgErr := &channel.Error{Channel: "whatsapp", Kind: channel.KindConfig, Err: errors.New("no token")}
	primary := &fakeAdapter{name: "whatsapp", errs: []error{cfgErr}}
	e := newTestEngine(t, []channel.Adapter{primary}, Options{MaxRounds: 3})

	out := e.Dispatch(context.Background(), "+5548999", "oi", lead.TierCold)
	if out.Succeeded || out.Attempts != 1 {
		t.Fatalf("outcome = %+v, want single attempt", out)
	}
}

func TestDispatchHonorsCancellation(t *testing.T) {
	t.Parallel()
	primary := &fakeAdapter{name: "whatsapp", errs: []error{remoteErr("whatsapp")}}
	e := newTestEngine(t, []channel.Adapter{primary}, Options{
		MaxRounds: 3,
		BaseDelay: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Outcome, 1)
	go func() { done <- e.Dispatch(ctx, "+5548999", "oi", lead.TierCold) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case out := <-done:
		if out.Succeeded {
			t.Fatalf("outcome = %+v", out)
		}
		if out.Attempts != 1 {
			t.Fatalf("attempts = %d, want 1 before cancellation", out.Attempts)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch did not return after cancel")
	}
}

func TestDispatchNoAdapters(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil, Options{})
	out := e.Dispatch(context.Background(), "+1", "x", lead.TierHot)
	if out.Succeeded || out.LastErr == nil {
		t.Fatalf("outcome = %+v", out)
	}
}
