package router

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/chatcart/chatcart/internal/log"
	"github.com/chatcart/chatcart/internal/provider"
	"github.com/chatcart/chatcart/internal/provider/health"
)

func newTracker() *health.Tracker {
	return health.New(health.Config{})
}

func TestNew_RequiresProvidersAndTracker(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, newTracker(), log.NewNop(), Config{}); err == nil {
		t.Error("empty provider list should be rejected")
	}
	if _, err := New([]provider.Provider{provider.NewFake("p", 0)}, nil, log.NewNop(), Config{}); err == nil {
		t.Error("nil tracker should be rejected")
	}
}

func TestComplete_FirstProviderWins(t *testing.T) {
	t.Parallel()

	primary := provider.NewFake("primary", 0).Respond("from primary")
	secondary := provider.NewFake("secondary", 0).Respond("from secondary")

	r, err := New([]provider.Provider{primary, secondary}, newTracker(), log.NewNop(), Config{})
	if err != nil {
		t.Fatal(err)
	}

	res, err := r.Complete(context.Background(), &provider.Request{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.ProviderUsed != "primary" {
		t.Errorf("ProviderUsed = %q, want primary", res.ProviderUsed)
	}
	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", res.Attempts)
	}
	if secondary.Calls() != 0 {
		t.Error("secondary should not be dispatched when primary succeeds")
	}
}

func TestComplete_FailsOverAndReportsOutcomes(t *testing.T) {
	t.Parallel()

	// First K=2 providers fail, K+1 succeeds: result comes from the third,
	// with exactly 2 failures + 1 success reported and 3 total attempts.
	p1 := provider.NewFake("p1", 0).Fail(errors.New("503 unavailable"))
	p2 := provider.NewFake("p2", 0).Fail(errors.New("quota exceeded"))
	p3 := provider.NewFake("p3", 0).Respond("third time lucky")

	tracker := newTracker()
	r, err := New([]provider.Provider{p1, p2, p3}, tracker, log.NewNop(), Config{})
	if err != nil {
		t.Fatal(err)
	}

	res, err := r.Complete(context.Background(), &provider.Request{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.ProviderUsed != "p3" {
		t.Errorf("ProviderUsed = %q, want p3", res.ProviderUsed)
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
	if res.Response.Text != "third time lucky" {
		t.Errorf("Text = %q", res.Response.Text)
	}

	for name, wantFailures := range map[string]int{"p1": 1, "p2": 1, "p3": 0} {
		m := tracker.Snapshot(name)
		if m.Failures != wantFailures {
			t.Errorf("tracker %s failures = %d, want %d", name, m.Failures, wantFailures)
		}
		if m.Attempts != 1 {
			t.Errorf("tracker %s attempts = %d, want 1", name, m.Attempts)
		}
	}
}

func TestComplete_NeverRetriesSameProviderInOnePass(t *testing.T) {
	t.Parallel()

	p1 := provider.NewFake("p1", 0).Fail(errors.New("timeout"))
	p2 := provider.NewFake("p2", 0).Fail(errors.New("timeout"))

	r, err := New([]provider.Provider{p1, p2}, newTracker(), log.NewNop(), Config{})
	if err != nil {
		t.Fatal(err)
	}

	_, err = r.Complete(context.Background(), &provider.Request{})
	if !errors.Is(err, ErrAllProvidersExhausted) {
		t.Fatalf("want ErrAllProvidersExhausted, got %v", err)
	}
	if p1.Calls() != 1 || p2.Calls() != 1 {
		t.Errorf("each provider must be tried exactly once, got p1=%d p2=%d", p1.Calls(), p2.Calls())
	}
}

func TestComplete_SkipsUnhealthyProvider(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker := health.New(health.Config{
		WindowSize: 4, MinSamples: 2, FailureRate: 0.5,
		Cooldown: 5 * time.Minute,
		Now:      func() time.Time { return base },
	})
	tracker.Report("primary", health.Failure)
	tracker.Report("primary", health.Failure)

	primary := provider.NewFake("primary", 0).Respond("from primary")
	secondary := provider.NewFake("secondary", 0).Respond("from secondary")

	now := base
	r, err := New([]provider.Provider{primary, secondary}, tracker, log.NewNop(), Config{
		Now: func() time.Time { return now },
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := r.Complete(context.Background(), &provider.Request{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.ProviderUsed != "secondary" {
		t.Errorf("ProviderUsed = %q, want secondary", res.ProviderUsed)
	}
	if primary.Calls() != 0 {
		t.Error("unhealthy provider must not be dispatched")
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "primary" {
		t.Errorf("Skipped = %v, want [primary]", res.Skipped)
	}

	// After the cool-down the primary becomes eligible again automatically.
	now = base.Add(5*time.Minute + time.Second)
	res, err = r.Complete(context.Background(), &provider.Request{})
	if err != nil {
		t.Fatalf("Complete after cooldown: %v", err)
	}
	if res.ProviderUsed != "primary" {
		t.Errorf("ProviderUsed = %q, want primary after cooldown", res.ProviderUsed)
	}
}

func TestComplete_CapabilitySkipBeforeDispatch(t *testing.T) {
	t.Parallel()

	plain := provider.NewFake("plain", 0).Respond("no json here")
	capable := provider.NewFake("capable", provider.CapStructuredOutput).Respond(`{"text":"ok"}`)

	tracker := newTracker()
	r, err := New([]provider.Provider{plain, capable}, tracker, log.NewNop(), Config{})
	if err != nil {
		t.Fatal(err)
	}

	res, err := r.Complete(context.Background(), &provider.Request{RequireStructured: true})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.ProviderUsed != "capable" {
		t.Errorf("ProviderUsed = %q, want capable", res.ProviderUsed)
	}
	if plain.Calls() != 0 {
		t.Error("incapable provider must be skipped before dispatch")
	}
	// Skips are not failures.
	if m := tracker.Snapshot("plain"); m.Attempts != 0 {
		t.Errorf("skip must not be reported as an attempt, got %d", m.Attempts)
	}
}

func TestComplete_AttemptTimeoutFailsOver(t *testing.T) {
	t.Parallel()

	slow := provider.NewFake("slow", 0).Delay(time.Second).Respond("too late")
	fast := provider.NewFake("fast", 0).Respond("quick")

	tracker := newTracker()
	r, err := New([]provider.Provider{slow, fast}, tracker, log.NewNop(), Config{
		AttemptTimeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := r.Complete(context.Background(), &provider.Request{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.ProviderUsed != "fast" {
		t.Errorf("ProviderUsed = %q, want fast", res.ProviderUsed)
	}
	if m := tracker.Snapshot("slow"); m.Failures != 1 {
		t.Errorf("timed-out attempt should be reported as failure, got %d", m.Failures)
	}
}

func TestComplete_CanceledTurnNotReportedAsFailure(t *testing.T) {
	t.Parallel()

	slow := provider.NewFake("slow", 0).Delay(time.Second).Respond("never")
	tracker := newTracker()
	r, err := New([]provider.Provider{slow}, tracker, log.NewNop(), Config{})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = r.Complete(ctx, &provider.Request{})
	if err == nil {
		t.Fatal("canceled pass should return an error")
	}
	if errors.Is(err, ErrAllProvidersExhausted) {
		t.Error("cancellation must not be reported as exhaustion")
	}
	if m := tracker.Snapshot("slow"); m.Attempts != 0 {
		t.Errorf("canceled attempt must not touch health counters, got %d attempts", m.Attempts)
	}
}

func TestComplete_ValidateFailureContinuesFailover(t *testing.T) {
	t.Parallel()

	garbled := provider.NewFake("garbled", 0).Respond("%%%")
	clean := provider.NewFake("clean", 0).Respond("fine")

	tracker := newTracker()
	r, err := New([]provider.Provider{garbled, clean}, tracker, log.NewNop(), Config{
		Validate: func(resp *provider.Response) error {
			if resp.Text == "%%%" {
				return errors.New("unparseable")
			}
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := r.Complete(context.Background(), &provider.Request{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.ProviderUsed != "clean" {
		t.Errorf("ProviderUsed = %q, want clean", res.ProviderUsed)
	}
	if m := tracker.Snapshot("garbled"); m.Failures != 1 {
		t.Errorf("malformed output should count as provider failure, got %d", m.Failures)
	}
}

func TestComplete_AllExhaustedKeepsLastError(t *testing.T) {
	t.Parallel()

	p1 := provider.NewFake("p1", 0).Fail(errors.New("first error"))
	p2 := provider.NewFake("p2", 0).Fail(errors.New("final error"))

	r, err := New([]provider.Provider{p1, p2}, newTracker(), log.NewNop(), Config{})
	if err != nil {
		t.Fatal(err)
	}

	_, err = r.Complete(context.Background(), &provider.Request{})
	if !errors.Is(err, ErrAllProvidersExhausted) {
		t.Fatalf("want ErrAllProvidersExhausted, got %v", err)
	}
}

func TestNew_OrdersByPriority(t *testing.T) {
	t.Parallel()

	third := provider.NewFake("third", 0)
	first := provider.NewFake("first", 0)
	// Priority comes from descriptors, not slice order.
	a := providerWithPriority(third, 3)
	b := providerWithPriority(first, 1)

	r, err := New([]provider.Provider{a, b}, newTracker(), log.NewNop(), Config{})
	if err != nil {
		t.Fatal(err)
	}

	descs := r.Providers()
	if descs[0].Name != "first" || descs[1].Name != "third" {
		t.Errorf("routing order = [%s %s], want [first third]", descs[0].Name, descs[1].Name)
	}
}

func TestComplete_LogsTransientAndUnexpectedFailuresDistinctly(t *testing.T) {
	t.Parallel()

	throttled := provider.NewFake("throttled", 0).Fail(errors.New("429: rate limit exceeded"))
	broken := provider.NewFake("broken", 0).Fail(errors.New("invalid memory address"))
	clean := provider.NewFake("clean", 0).Respond("recovered")

	var buf bytes.Buffer
	logger := log.NewWithWriter(&buf, log.Config{Level: slog.LevelDebug})

	r, err := New([]provider.Provider{throttled, broken, clean}, newTracker(), logger, Config{})
	if err != nil {
		t.Fatal(err)
	}

	res, err := r.Complete(context.Background(), &provider.Request{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.ProviderUsed != "clean" {
		t.Fatalf("ProviderUsed = %q, want clean", res.ProviderUsed)
	}

	out := buf.String()
	if !strings.Contains(out, "provider unavailable, failing over") || !strings.Contains(out, "provider=throttled") {
		t.Errorf("transient failure should log the unavailable path, got:\n%s", out)
	}
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "provider failed with unexpected error") {
		t.Errorf("unexpected failure should log at error level, got:\n%s", out)
	}
}

// providerWithPriority wraps a fake to override its descriptor priority.
type priorityProvider struct {
	provider.Provider
	priority int
}

func providerWithPriority(p provider.Provider, priority int) provider.Provider {
	return &priorityProvider{Provider: p, priority: priority}
}

func (p *priorityProvider) Descriptor() provider.Descriptor {
	d := p.Provider.Descriptor()
	d.Priority = p.priority
	return d
}
