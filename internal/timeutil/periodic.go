package timeutil

import (
	"sync"
	"time"
)

// Periodic runs a callback at a fixed interval until disarmed. Only one
// schedule is active at a time; arming again replaces the previous one.
type Periodic struct {
	clock Clock

	mu     sync.Mutex
	ticker Ticker
	done   chan struct{}
}

// NewPeriodic returns a disarmed Periodic driven by clock. A nil clock uses
// RealClock.
func NewPeriodic(clock Clock) *Periodic {
	if clock == nil {
		clock = RealClock{}
	}
	return &Periodic{clock: clock}
}

// Arm starts calling fn every interval. Any previous schedule is disarmed
// first. fn runs on the Periodic's own goroutine.
func (p *Periodic) Arm(interval time.Duration, fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.disarmLocked()

	ticker := p.clock.NewTicker(interval)
	done := make(chan struct{})
	p.ticker = ticker
	p.done = done

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C():
				select {
				case <-done:
					return
				default:
				}
				fn()
			}
		}
	}()
}

// Disarm stops future callbacks. A callback already running is not
// interrupted; callers that need a hard cut-off check their own state.
func (p *Periodic) Disarm() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disarmLocked()
}

// Armed reports whether a schedule is active.
func (p *Periodic) Armed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ticker != nil
}

func (p *Periodic) disarmLocked() {
	if p.ticker == nil {
		return
	}
	p.ticker.Stop()
	close(p.done)
	p.ticker = nil
	p.done = nil
}
