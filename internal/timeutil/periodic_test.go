package timeutil

import (
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPeriodic_ArmAndDisarm(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	p := NewPeriodic(clock)

	var calls atomic.Int32
	p.Arm(time.Second, func() { calls.Add(1) })
	if !p.Armed() {
		t.Fatal("Armed() = false after Arm")
	}

	for i := 1; i <= 3; i++ {
		clock.Advance(time.Second)
		want := int32(i)
		waitFor(t, func() bool { return calls.Load() == want })
	}

	p.Disarm()
	if p.Armed() {
		t.Error("Armed() = true after Disarm")
	}
	clock.Advance(time.Second)
	time.Sleep(20 * time.Millisecond)
	if got := calls.Load(); got != 3 {
		t.Errorf("calls after disarm = %d, want 3", got)
	}
	if clock.ActiveTickers() != 0 {
		t.Errorf("ticker still active after disarm")
	}
}

func TestPeriodic_RearmReplacesSchedule(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	p := NewPeriodic(clock)

	var first, second atomic.Int32
	p.Arm(time.Second, func() { first.Add(1) })
	p.Arm(time.Second, func() { second.Add(1) })

	clock.Advance(time.Second)
	waitFor(t, func() bool { return second.Load() == 1 })
	if first.Load() != 0 {
		t.Errorf("replaced schedule fired %d times", first.Load())
	}
	if clock.ActiveTickers() != 1 {
		t.Errorf("ActiveTickers() = %d, want 1", clock.ActiveTickers())
	}
	p.Disarm()
}

func TestPeriodic_DisarmIdempotent(t *testing.T) {
	p := NewPeriodic(nil)
	p.Disarm()
	p.Disarm()
	if p.Armed() {
		t.Error("Armed() = true on fresh Periodic")
	}
}

func TestPeriodic_RealClock(t *testing.T) {
	p := NewPeriodic(RealClock{})
	var calls atomic.Int32
	p.Arm(5*time.Millisecond, func() { calls.Add(1) })
	defer p.Disarm()

	waitFor(t, func() bool { return calls.Load() >= 2 })
}
