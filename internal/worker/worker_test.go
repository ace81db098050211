package worker

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestWorkerState_String(t *testing.T) {
	cases := map[WorkerState]string{
		WorkerStateIdle:    "idle",
		WorkerStateBusy:    "busy",
		WorkerStateStopped: "stopped",
		WorkerState(99):    "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("WorkerState(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestStats_SuccessRate(t *testing.T) {
	s := Stats{PagesProcessed: 0}
	if got := s.SuccessRate(); got != 0 {
		t.Errorf("SuccessRate with no pages = %v, want 0", got)
	}

	s = Stats{PagesProcessed: 4, PagesSucceeded: 3}
	if got := s.SuccessRate(); got != 75 {
		t.Errorf("SuccessRate = %v, want 75", got)
	}
}

func TestStats_IsHealthy(t *testing.T) {
	stuckAfter := 10 * time.Second

	if (Stats{State: WorkerStateStopped}).IsHealthy(stuckAfter) {
		t.Error("a stopped worker should never be healthy")
	}

	busyButFresh := Stats{State: WorkerStateBusy, PageStartedAt: time.Now()}
	if !busyButFresh.IsHealthy(stuckAfter) {
		t.Error("a busy worker just started should be healthy")
	}

	busyAndStuck := Stats{State: WorkerStateBusy, PageStartedAt: time.Now().Add(-time.Minute)}
	if busyAndStuck.IsHealthy(stuckAfter) {
		t.Error("a busy worker running far past stuckAfter should be unhealthy")
	}

	if !(Stats{State: WorkerStateIdle}).IsHealthy(stuckAfter) {
		t.Error("an idle worker should be healthy")
	}
}

func TestJitter_StaysWithinExpectedFactorRange(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		got := jitter(base)
		if got < 70*time.Millisecond || got > 130*time.Millisecond {
			t.Fatalf("jitter(%v) = %v, outside the [0.75, 1.25) factor range", base, got)
		}
	}
}

func TestResolveRedirectTarget(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		location string
		want     string
	}{
		{"absolute https location", "https://example.com/a", "https://other.com/b", "https://other.com/b"},
		{"absolute http location", "https://example.com/a", "http://other.com/b", "http://other.com/b"},
		{"root-relative location", "https://example.com/a", "/b/c", "https://example.com/b/c"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := resolveRedirectTarget(tc.base, tc.location); got != tc.want {
				t.Errorf("resolveRedirectTarget(%q, %q) = %q, want %q", tc.base, tc.location, got, tc.want)
			}
		})
	}
}

func TestHeadersToMap(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "text/html")
	h.Add("Set-Cookie", "a=1")
	h.Add("Set-Cookie", "b=2")

	m := headersToMap(h)
	if m["Content-Type"] != "text/html" {
		t.Errorf("Content-Type = %v, want text/html", m["Content-Type"])
	}
	if m["Set-Cookie"] != "a=1" {
		t.Errorf("Set-Cookie should keep only the first value, got %v", m["Set-Cookie"])
	}
}

func TestStats_ReportsLastError(t *testing.T) {
	w := &Worker{}
	cause := errors.New("boom")
	w.lastError.Store(cause)

	stats := w.Stats()
	if stats.LastError != cause {
		t.Errorf("LastError = %v, want %v", stats.LastError, cause)
	}
}
