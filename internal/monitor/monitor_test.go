package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gpropadm/dcruzimoveis/internal/alert"
	"github.com/gpropadm/dcruzimoveis/internal/cycle"
	"github.com/gpropadm/dcruzimoveis/internal/lead"
	"github.com/gpropadm/dcruzimoveis/internal/store"
	"github.com/gpropadm/dcruzimoveis/pkg/logx"
)

type fakeStore struct {
	pingErr error
	target  string
	stats   store.Stats
}

func (f *fakeStore) FetchUnprocessed(context.Context, int) ([]lead.Lead, error) { return nil, nil }
func (f *fakeStore) UpdateStatus(context.Context, string, lead.Status) error    { return nil }
func (f *fakeStore) SiteSettings(context.Context) (store.Settings, error) {
	return store.Settings{ContactWhatsApp: f.target}, nil
}
func (f *fakeStore) CountUnprocessed(context.Context) (int, error) { return 2, nil }
func (f *fakeStore) DailyStats(context.Context, time.Time) (store.Stats, error) {
	return f.stats, nil
}
func (f *fakeStore) Ping(context.Context) error { return f.pingErr }
func (f *fakeStore) Close() error               { return nil }

// scriptedRunner returns one scripted error per cycle, nil forever after the
// script runs out.
type scriptedRunner struct {
	errs  []error
	calls int
}

func (s *scriptedRunner) Run(context.Context) (cycle.Report, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) {
		return cycle.Report{}, s.errs[i]
	}
	return cycle.Report{Fetched: 1, Sent: 1}, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []alert.Event
}

func (r *recordingSink) Name() string { return "rec" }

func (r *recordingSink) Push(_ context.Context, ev alert.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) find(level alert.Level, substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Level == level && strings.Contains(ev.Message, substr) {
			return true
		}
	}
	return false
}

type harness struct {
	m      *Monitor
	sink   *recordingSink
	runner *scriptedRunner
	// cancel is wired to the loop context; the injected sleep cancels it
	// after maxLoops iterations so tests terminate deterministically.
	ctx    context.Context
	cancel context.CancelFunc
}

func newHarness(t *testing.T, runner *scriptedRunner, st store.Store, opts Options, maxLoops int) *harness {
	t.Helper()
	sink := &recordingSink{}
	alerts := alert.NewNotifier("test", []alert.Sink{sink}, logx.Nop())
	m, err := New(runner, st, alerts, opts, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	loops := 0
	m.sleep = func(ctx context.Context, _ time.Duration) bool {
		loops++
		if loops >= maxLoops {
			cancel()
			return false
		}
		return ctx.Err() == nil
	}
	m.probe = func(context.Context, string) error { return nil }
	return &harness{m: m, sink: sink, runner: runner, ctx: ctx, cancel: cancel}
}

func healthyStore() *fakeStore { return &fakeStore{target: "+5548999990000"} }

func TestMonitorBacksOffAndRecovers(t *testing.T) {
	t.Parallel()
	boom := errors.New("fetch leads: timeout")
	runner := &scriptedRunner{errs: []error{boom, boom, boom}}
	h := newHarness(t, runner, healthyStore(), Options{Interval: time.Second}, 6)
	defer h.cancel()

	if err := h.m.Run(h.ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !h.sink.find(alert.LevelWarning, "intervalo ampliado") {
		t.Fatal("no backoff warning alert")
	}
	// A successful cycle after the script drains the backoff state.
	if got := h.m.Interval(); got != time.Second {
		t.Fatalf("interval = %s, want reset to base", got)
	}
	if h.m.State() != StateStopped {
		t.Fatalf("state = %s", h.m.State())
	}
}

func TestMonitorBackoffDoublesAndCaps(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	runner := &scriptedRunner{errs: []error{boom, boom, boom, boom}}
	h := newHarness(t, runner, healthyStore(), Options{
		Interval:     4 * time.Minute,
		MaxInterval:  5 * time.Minute,
		BackoffAfter: 3,
		StopAfter:    50,
	}, 4)
	defer h.cancel()

	_ = h.m.Run(h.ctx)
	if got := h.m.Interval(); got != 5*time.Minute {
		t.Fatalf("interval = %s, want capped at 5m", got)
	}
}

func TestMonitorStopsAfterErrorBudget(t *testing.T) {
	t.Parallel()
	boom := errors.New("db gone")
	runner := &scriptedRunner{errs: []error{boom, boom, boom, boom, boom, boom}}
	h := newHarness(t, runner, healthyStore(), Options{StopAfter: 5}, 100)
	defer h.cancel()

	err := h.m.Run(h.ctx)
	if err == nil {
		t.Fatal("expected error")
	}
	if runner.calls != 5 {
		t.Fatalf("cycles run = %d, want 5", runner.calls)
	}
	if h.m.State() != StateStopped {
		t.Fatalf("state = %s", h.m.State())
	}
	if !h.sink.find(alert.LevelCritical, "agente parado") {
		t.Fatal("no critical alert")
	}
}

func TestMonitorShutdownBetweenCycles(t *testing.T) {
	t.Parallel()
	runner := &scriptedRunner{}
	h := newHarness(t, runner, healthyStore(), Options{}, 3)
	defer h.cancel()

	if err := h.m.Run(h.ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.m.State() != StateStopped {
		t.Fatalf("state = %s", h.m.State())
	}
	if !h.sink.find(alert.LevelInfo, "iniciado") {
		t.Fatal("no startup alert")
	}
	if !h.sink.find(alert.LevelInfo, "encerrado") {
		t.Fatal("no shutdown alert")
	}
}

func TestMonitorDailyReport(t *testing.T) {
	t.Parallel()
	st := healthyStore()
	st.stats = store.Stats{TotalLeads: 10, SentLeads: 8, ErrorLeads: 2}
	runner := &scriptedRunner{}
	h := newHarness(t, runner, st, Options{}, 3)
	defer h.cancel()

	// Start just before the 09:00 slot and step the clock forward on every
	// read so the first loop crosses it.
	clock := time.Date(2026, 8, 30, 8, 30, 0, 0, time.Local)
	h.m.now = func() time.Time {
		clock = clock.Add(10 * time.Minute)
		return clock
	}

	_ = h.m.Run(h.ctx)
	if !h.sink.find(alert.LevelInfo, "80% de sucesso") {
		t.Fatalf("no daily report alert; events = %+v", h.sink.events)
	}
}

func TestMonitorSetBaseIntervalDuringRun(t *testing.T) {
	t.Parallel()
	runner := &scriptedRunner{}
	h := newHarness(t, runner, healthyStore(), Options{Interval: time.Second}, 20)
	defer h.cancel()

	// Hammer reloads from another goroutine while the loop runs, the way
	// the config watcher applies them.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			h.m.SetBaseInterval(2 * time.Second)
		}
	}()

	if err := h.m.Run(h.ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	wg.Wait()
	if got := h.m.BaseInterval(); got != 2*time.Second {
		t.Fatalf("base interval = %s, want reload applied", got)
	}
}

func TestMonitorWatchdogPing(t *testing.T) {
	t.Parallel()
	pings := 0
	runner := &scriptedRunner{}
	h := newHarness(t, runner, healthyStore(), Options{Watchdog: func() { pings++ }}, 3)
	defer h.cancel()

	_ = h.m.Run(h.ctx)
	if pings != 3 {
		t.Fatalf("watchdog pings = %d, want one per loop", pings)
	}
}

func TestMonitorUnreachableStoreBlocksCycle(t *testing.T) {
	t.Parallel()
	st := healthyStore()
	st.pingErr = errors.New("refused")
	runner := &scriptedRunner{}
	h := newHarness(t, runner, st, Options{StopAfter: 5}, 100)
	defer h.cancel()

	err := h.m.Run(h.ctx)
	if err == nil {
		t.Fatal("expected error after failure budget")
	}
	if runner.calls != 0 {
		t.Fatalf("cycle ran %d times with the store down", runner.calls)
	}
	if !h.sink.find(alert.LevelWarning, "saúde degradada") {
		t.Fatal("no degraded-health warning")
	}
	if !h.sink.find(alert.LevelCritical, "agente parado") {
		t.Fatal("no critical alert")
	}
}

func TestHealthSnapshot(t *testing.T) {
	t.Parallel()
	st := &fakeStore{target: "+55"}
	runner := &scriptedRunner{}
	h := newHarness(t, runner, st, Options{SiteURL: "https://example.test"}, 1)
	defer h.cancel()

	got := h.m.checkHealth(context.Background())
	if !got.OK() || got.Unprocessed != 2 {
		t.Fatalf("health = %+v", got)
	}

	st.pingErr = errors.New("refused")
	got = h.m.checkHealth(context.Background())
	if got.StoreOK || got.OK() {
		t.Fatalf("health = %+v", got)
	}

	h.m.probe = func(context.Context, string) error { return errors.New("502") }
	st.pingErr = nil
	got = h.m.checkHealth(context.Background())
	if got.SiteOK {
		t.Fatalf("health = %+v", got)
	}
}
