package app

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/chatcart/chatcart/internal/config"
	"github.com/chatcart/chatcart/internal/conversation"
	"github.com/chatcart/chatcart/internal/log"
	"github.com/chatcart/chatcart/internal/provider"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"WARN", slog.LevelWarn},
		{"", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestProvideRouter_OrdersAndFlagsProviders(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Providers: []config.ProviderConfig{
			{Name: "fallback", Model: "openai/gpt-4o-mini", Priority: 2},
			{Name: "primary", Model: "googleai/gemini-2.5-flash", Priority: 1, StructuredOutput: true},
		},
		AttemptTimeout:    30 * time.Second,
		HealthFailureRate: 0.5,
		HealthCooldown:    5 * time.Minute,
	}

	r, err := provideRouter(nil, cfg, log.NewNop())
	if err != nil {
		t.Fatalf("provideRouter: %v", err)
	}

	descs := r.Providers()
	if len(descs) != 2 {
		t.Fatalf("want 2 providers, got %d", len(descs))
	}
	if descs[0].Name != "primary" {
		t.Errorf("first provider = %q, want primary (lowest priority number first)", descs[0].Name)
	}
	if !descs[0].Capabilities.Has(provider.CapStructuredOutput) {
		t.Error("primary should advertise structured output")
	}
	if descs[1].Capabilities.Has(provider.CapStructuredOutput) {
		t.Error("fallback should not advertise structured output")
	}
}

func TestSweepIdleConversations_EvictsAndStopsOnCancel(t *testing.T) {
	t.Parallel()

	states := conversation.NewStore(0, log.NewNop())
	states.LoadOrCreate("t1", "stale", time.Now().Add(-time.Hour))
	states.LoadOrCreate("t1", "fresh", time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sweepIdleConversations(ctx, states, 5*time.Millisecond, 30*time.Minute, log.NewNop())
	}()

	deadline := time.After(2 * time.Second)
	for states.Len() != 1 {
		select {
		case <-deadline:
			t.Fatalf("stale conversation not evicted, resident = %d", states.Len())
		case <-time.After(5 * time.Millisecond):
		}
	}
	if _, ok := states.Get("fresh"); !ok {
		t.Error("fresh conversation must survive the sweep")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestClose_PartialApp(t *testing.T) {
	t.Parallel()

	a := &App{Logger: log.NewNop()}
	if err := a.Close(); err != nil {
		t.Errorf("Close on empty app: %v", err)
	}

	cleaned := false
	a = &App{Logger: log.NewNop(), dbCleanup: func() { cleaned = true }}
	if err := a.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if !cleaned {
		t.Error("db cleanup must run on Close")
	}
}
