package rotator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func specs(ids ...string) []Spec {
	out := make([]Spec, len(ids))
	for i, id := range ids {
		out[i] = Spec{ID: id, APIKey: "sk-" + id}
	}
	return out
}

func newTestRotator(t *testing.T, clock *fakeClock, ids ...string) *Rotator {
	t.Helper()
	r, err := New(specs(ids...), WithClock(clock.Now), WithDefaultCooldown(time.Minute))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("expected ErrNoCredentials, got %v", err)
	}
	if _, err := New(specs("a", "a")); err == nil {
		t.Error("expected duplicate id error")
	}
	if _, err := New([]Spec{{APIKey: "x"}}); err == nil {
		t.Error("expected missing id error")
	}
}

func TestAcquire_RoundRobinFairness(t *testing.T) {
	clock := newFakeClock()
	r := newTestRotator(t, clock, "a", "b", "c")

	const m = 10
	counts := map[string]int{}
	for range m {
		lease := r.Acquire()
		if lease.Degraded {
			t.Fatal("unexpected degraded lease")
		}
		counts[lease.ID()]++
		clock.Advance(time.Millisecond)
	}

	limit := (m + 2) / 3
	for id, n := range counts {
		if n > limit {
			t.Errorf("credential %s selected %d times, want <= %d", id, n, limit)
		}
	}
	if len(counts) != 3 {
		t.Errorf("expected all credentials to be used, got %v", counts)
	}
}

func TestAcquire_SkipsCoolingCredential(t *testing.T) {
	clock := newFakeClock()
	r := newTestRotator(t, clock, "a", "b")

	r.ReportRateLimited("a", 30*time.Second)
	for range 6 {
		if lease := r.Acquire(); lease.ID() != "b" {
			t.Fatalf("cooling credential selected: %s", lease.ID())
		}
		clock.Advance(time.Second)
	}

	clock.Advance(30 * time.Second)
	seen := map[string]bool{}
	for range 2 {
		seen[r.Acquire().ID()] = true
	}
	if !seen["a"] {
		t.Error("credential a not selected after cooldown expired")
	}
}

func TestReportRateLimited_DefaultCooldown(t *testing.T) {
	clock := newFakeClock()
	r := newTestRotator(t, clock, "a")

	r.ReportRateLimited("a", 0)
	got := r.Snapshot()[0].CooldownUntil
	if want := clock.Now().Add(time.Minute); !got.Equal(want) {
		t.Errorf("CooldownUntil = %s, want %s", got, want)
	}
	if r.Snapshot()[0].Disabled {
		t.Error("rate limiting must not disable a credential")
	}
}

func TestReportFailure_DisablesAtThreshold(t *testing.T) {
	clock := newFakeClock()
	r := newTestRotator(t, clock, "a", "b")

	for i := 0; i < DefaultFailureThreshold-1; i++ {
		r.ReportFailure("a")
	}
	if r.Snapshot()[0].Disabled {
		t.Fatal("disabled before threshold")
	}

	r.ReportFailure("a")
	snap := r.Snapshot()[0]
	if !snap.Disabled {
		t.Fatal("expected credential a to be disabled")
	}
	if snap.Failures != int64(DefaultFailureThreshold) {
		t.Errorf("Failures = %d", snap.Failures)
	}

	for range 4 {
		if id := r.Acquire().ID(); id != "b" {
			t.Fatalf("disabled credential selected: %s", id)
		}
	}

	r.ReportSuccess("a")
	snap = r.Snapshot()[0]
	if snap.Disabled || snap.ConsecutiveFailures != 0 {
		t.Errorf("expected re-enabled credential, got %+v", snap)
	}
}

func TestReportSuccess_ResetsConsecutiveFailures(t *testing.T) {
	clock := newFakeClock()
	r := newTestRotator(t, clock, "a")

	for range DefaultFailureThreshold - 1 {
		r.ReportFailure("a")
	}
	r.ReportSuccess("a")
	r.ReportFailure("a")

	if snap := r.Snapshot()[0]; snap.Disabled || snap.ConsecutiveFailures != 1 {
		t.Errorf("unexpected state %+v", snap)
	}
}

func TestAcquire_DegradedReturnsLeastRecentlyUsed(t *testing.T) {
	clock := newFakeClock()
	r := newTestRotator(t, clock, "a", "b")

	r.Acquire() // a
	clock.Advance(time.Second)
	r.Acquire() // b
	clock.Advance(time.Second)

	r.ReportRateLimited("a", time.Minute)
	r.ReportRateLimited("b", time.Minute)

	lease := r.Acquire()
	if !lease.Degraded {
		t.Fatal("expected degraded lease")
	}
	if lease.ID() != "a" {
		t.Errorf("degraded lease = %s, want least recently used a", lease.ID())
	}
}

func TestAcquire_DegradedPrefersEnabled(t *testing.T) {
	clock := newFakeClock()
	r := newTestRotator(t, clock, "a", "b")

	for range DefaultFailureThreshold {
		r.ReportFailure("a")
	}
	r.Acquire() // b
	r.ReportRateLimited("b", time.Minute)

	lease := r.Acquire()
	if !lease.Degraded || lease.ID() != "b" {
		t.Errorf("lease = %s degraded=%v, want cooling b over disabled a", lease.ID(), lease.Degraded)
	}
}

func TestLease_WaitHonoursCooldown(t *testing.T) {
	r, err := New(specs("solo"))
	if err != nil {
		t.Fatal(err)
	}

	r.ReportRateLimited("solo", 40*time.Millisecond)
	lease := r.Acquire()
	if !lease.Degraded {
		t.Fatal("expected degraded lease for a single cooling credential")
	}

	start := time.Now()
	if err := lease.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("Wait returned after %s, expected to wait out the cooldown", elapsed)
	}
}

func TestLease_WaitCancelled(t *testing.T) {
	r, err := New(specs("solo"))
	if err != nil {
		t.Fatal(err)
	}
	r.ReportRateLimited("solo", time.Hour)
	lease := r.Acquire()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := lease.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestLease_WaitThrottle(t *testing.T) {
	r, err := New([]Spec{{ID: "a", APIKey: "k", RPS: 1000}})
	if err != nil {
		t.Fatal(err)
	}
	for range 5 {
		if err := r.Acquire().Wait(context.Background()); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
}

func TestAcquire_Concurrent(t *testing.T) {
	r, err := New(specs("a", "b", "c", "d"))
	if err != nil {
		t.Fatal(err)
	}

	const workers, perWorker = 8, 50
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				lease := r.Acquire()
				r.ReportSuccess(lease.ID())
			}
		}()
	}
	wg.Wait()

	var total int64
	for _, c := range r.Snapshot() {
		total += c.Requests
	}
	if total != workers*perWorker {
		t.Errorf("total requests = %d, want %d", total, workers*perWorker)
	}
}
