package health

import (
	"sync"
	"testing"
	"time"
)

func TestNew_AppliesDefaults(t *testing.T) {
	t.Parallel()

	tr := New(Config{})

	if tr.cfg.WindowSize != 20 {
		t.Errorf("WindowSize = %d, want 20", tr.cfg.WindowSize)
	}
	if tr.cfg.MinSamples != 5 {
		t.Errorf("MinSamples = %d, want 5", tr.cfg.MinSamples)
	}
	if tr.cfg.FailureRate != 0.5 {
		t.Errorf("FailureRate = %v, want 0.5", tr.cfg.FailureRate)
	}
	if tr.cfg.Cooldown != 5*time.Minute {
		t.Errorf("Cooldown = %v, want 5m", tr.cfg.Cooldown)
	}
}

func TestHealthy_UnknownProvider(t *testing.T) {
	t.Parallel()

	tr := New(Config{})
	if !tr.Healthy("never-seen", time.Now()) {
		t.Error("provider with no history should be healthy")
	}
}

func TestReport_TripsAtFailureRate(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := New(Config{
		WindowSize:  10,
		MinSamples:  4,
		FailureRate: 0.5,
		Cooldown:    5 * time.Minute,
		Now:         func() time.Time { return base },
	})

	// Two successes, one failure: below min samples, still healthy.
	tr.Report("p", Success)
	tr.Report("p", Success)
	tr.Report("p", Failure)
	if !tr.Healthy("p", base) {
		t.Fatal("should stay healthy below min samples")
	}

	// Fourth attempt fails: 2/4 = 50% >= threshold, trips.
	tr.Report("p", Failure)
	if tr.Healthy("p", base) {
		t.Fatal("should be unhealthy after hitting failure rate")
	}
}

func TestHealthy_RecoversAfterCooldown(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cooldown := 5 * time.Minute
	tr := New(Config{
		WindowSize:  4,
		MinSamples:  2,
		FailureRate: 0.5,
		Cooldown:    cooldown,
		Now:         func() time.Time { return base },
	})

	tr.Report("p", Failure)
	tr.Report("p", Failure)

	if tr.Healthy("p", base) {
		t.Fatal("should be unhealthy immediately after tripping")
	}
	if tr.Healthy("p", base.Add(cooldown-time.Second)) {
		t.Error("should remain unhealthy just before the deadline")
	}
	if !tr.Healthy("p", base.Add(cooldown)) {
		t.Error("should recover exactly at the deadline, no manual reset")
	}
	if !tr.Healthy("p", base.Add(cooldown+time.Hour)) {
		t.Error("should remain healthy after recovery")
	}
}

func TestReport_WindowResetsOnTrip(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := New(Config{
		WindowSize:  4,
		MinSamples:  2,
		FailureRate: 0.5,
		Cooldown:    time.Minute,
		Now:         func() time.Time { return base },
	})

	tr.Report("p", Failure)
	tr.Report("p", Failure)

	m := tr.Snapshot("p")
	if m.Attempts != 0 || m.Failures != 0 {
		t.Errorf("window should reset on trip, got attempts=%d failures=%d", m.Attempts, m.Failures)
	}

	// A recovered provider starts clean: one failure after recovery must not
	// re-trip on stale history.
	after := base.Add(2 * time.Minute)
	tr.now = func() time.Time { return after }
	tr.Report("p", Success)
	tr.Report("p", Success)
	tr.Report("p", Failure)
	if !tr.Healthy("p", after) {
		t.Error("1/3 failures should not re-trip a recovered provider")
	}
}

func TestReport_SlidingWindowEvictsOldOutcomes(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := New(Config{
		WindowSize:  4,
		MinSamples:  4,
		FailureRate: 0.75,
		Cooldown:    time.Minute,
		Now:         func() time.Time { return base },
	})

	// Two early failures slide out as successes fill the window.
	tr.Report("p", Failure)
	tr.Report("p", Failure)
	for range 6 {
		tr.Report("p", Success)
	}

	if !tr.Healthy("p", base) {
		t.Error("old failures beyond the window should not count")
	}
	m := tr.Snapshot("p")
	if m.Failures != 0 {
		t.Errorf("Failures = %d, want 0 after window slid past them", m.Failures)
	}
}

func TestTracker_IsolatesProviders(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := New(Config{
		WindowSize: 4, MinSamples: 2, FailureRate: 0.5,
		Cooldown: time.Minute,
		Now:      func() time.Time { return base },
	})

	tr.Report("bad", Failure)
	tr.Report("bad", Failure)
	tr.Report("good", Success)

	if tr.Healthy("bad", base) {
		t.Error("bad provider should be unhealthy")
	}
	if !tr.Healthy("good", base) {
		t.Error("good provider should be unaffected")
	}
}

func TestTracker_ConcurrentReports(t *testing.T) {
	t.Parallel()

	tr := New(Config{})
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(fail bool) {
			defer wg.Done()
			for range 100 {
				if fail {
					tr.Report("p", Failure)
				} else {
					tr.Report("p", Success)
				}
				tr.Healthy("p", time.Now())
			}
		}(i%2 == 0)
	}
	wg.Wait()

	// No assertion beyond absence of races; run with -race.
	tr.Snapshot("p")
}
