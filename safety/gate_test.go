package safety

import (
	"testing"
	"time"
)

var base = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func durPtr(d time.Duration) *time.Duration { return &d }

func TestRateLimitSlidingWindow(t *testing.T) {
	gate := NewGate(Config{MaxRepliesPerHour: 3, DefaultCooldown: time.Second})

	// Use distinct contacts so cooldown never interferes.
	gate.RecordSend("a", base)
	gate.RecordSend("b", base.Add(10*time.Minute))
	gate.RecordSend("c", base.Add(20*time.Minute))

	if res := gate.Evaluate("d", base.Add(30*time.Minute), nil); res.Allowed {
		t.Fatal("fourth reply within the hour should be denied")
	} else if res.Reason != ReasonRateLimited {
		t.Fatalf("expected rate-limited, got %s", res.Reason)
	}

	// At minute 61 the first send has left the rolling window.
	if res := gate.Evaluate("d", base.Add(61*time.Minute), nil); !res.Allowed {
		t.Fatalf("expected allowed after window slide, got %s", res.Reason)
	}
}

func TestCooldownDefaultAndOverride(t *testing.T) {
	gate := NewGate(Config{MaxRepliesPerHour: 100, DefaultCooldown: 60 * time.Second})
	gate.RecordSend("chat", base)

	at := base.Add(45 * time.Second)

	if res := gate.Evaluate("chat", at, nil); res.Allowed {
		t.Fatal("45s after reply should be on 60s default cooldown")
	} else if res.Reason != ReasonCooldown {
		t.Fatalf("expected cooldown-active, got %s", res.Reason)
	}

	if res := gate.Evaluate("chat", at, durPtr(30*time.Second)); !res.Allowed {
		t.Fatalf("45s after reply should clear a 30s override, got %s", res.Reason)
	}
}

func TestCooldownIsPerContact(t *testing.T) {
	gate := NewGate(Config{MaxRepliesPerHour: 100, DefaultCooldown: 60 * time.Second})
	gate.RecordSend("a", base)

	if res := gate.Evaluate("b", base.Add(time.Second), nil); !res.Allowed {
		t.Fatalf("other contact should not inherit cooldown, got %s", res.Reason)
	}
}

func TestQuietHoursWrapAroundMidnight(t *testing.T) {
	gate := NewGate(Config{
		MaxRepliesPerHour: 100,
		DefaultCooldown:   time.Second,
		QuietHours:        QuietHours{Enabled: true, StartHour: 22, EndHour: 6},
	})

	quiet := []int{22, 23, 0, 1, 2, 3, 4, 5}
	loud := []int{6, 12, 21}

	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	for _, h := range quiet {
		now := day.Add(time.Duration(h) * time.Hour)
		res := gate.Evaluate("x", now, nil)
		if res.Allowed || res.Reason != ReasonQuietHours {
			t.Errorf("hour %d should be quiet, got %+v", h, res)
		}
	}
	for _, h := range loud {
		now := day.Add(time.Duration(h) * time.Hour)
		if res := gate.Evaluate("x", now, nil); !res.Allowed {
			t.Errorf("hour %d should not be quiet, got %s", h, res.Reason)
		}
	}
}

func TestQuietHoursSameDayRange(t *testing.T) {
	gate := NewGate(Config{
		MaxRepliesPerHour: 100,
		DefaultCooldown:   time.Second,
		QuietHours:        QuietHours{Enabled: true, StartHour: 9, EndHour: 17},
	})

	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	if res := gate.Evaluate("x", day.Add(12*time.Hour), nil); res.Allowed {
		t.Fatal("noon should be inside 9-17 quiet range")
	}
	if res := gate.Evaluate("x", day.Add(17*time.Hour), nil); !res.Allowed {
		t.Fatalf("end hour is exclusive, got %s", res.Reason)
	}
}

func TestQuietHoursDominateOtherChecks(t *testing.T) {
	gate := NewGate(Config{
		MaxRepliesPerHour: 1,
		DefaultCooldown:   60 * time.Second,
		QuietHours:        QuietHours{Enabled: true, StartHour: 0, EndHour: 23},
	})
	gate.RecordSend("x", base)

	// Rate limit and cooldown would both deny too; quiet hours is reported
	// because it is checked first.
	res := gate.Evaluate("x", base.Add(time.Second), nil)
	if res.Allowed || res.Reason != ReasonQuietHours {
		t.Fatalf("expected quiet-hours to dominate, got %+v", res)
	}
}

func TestEvaluateDoesNotMutateState(t *testing.T) {
	gate := NewGate(Config{MaxRepliesPerHour: 3, DefaultCooldown: 60 * time.Second})
	gate.RecordSend("x", base)

	at := base.Add(10 * time.Second)
	first := gate.Evaluate("x", at, nil)
	second := gate.Evaluate("x", at, nil)
	if first != second {
		t.Fatalf("consecutive evaluations diverged: %+v vs %+v", first, second)
	}
	if gate.Remaining(at) != 2 {
		t.Fatalf("evaluations must not consume the window, remaining=%d", gate.Remaining(at))
	}
}
