// Package dispatch forwards accepted motion commands to the transport without
// blocking the caller, and reports outcomes to registered observers.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/rover.control/internal/monitoring"
	"github.com/banshee-data/rover.control/internal/motion"
	"github.com/banshee-data/rover.control/internal/timeutil"
	"github.com/banshee-data/rover.control/internal/transport"
)

// DefaultTimeout bounds each transport send.
const DefaultTimeout = 2 * time.Second

// DefaultSource labels records when Config.Source is empty.
const DefaultSource = "core"

// Record identifies one dispatched command.
type Record struct {
	ID      uuid.UUID            `json:"id"`
	Source  string               `json:"source"`
	Command motion.MotionCommand `json:"command"`
	At      time.Time            `json:"at"`
}

// Config tunes a Dispatcher. Zero values use defaults.
type Config struct {
	Source  string
	Timeout time.Duration
	Clock   timeutil.Clock
}

// Stats counts send outcomes.
type Stats struct {
	Dispatched uint64 `json:"dispatched"`
	Succeeded  uint64 `json:"succeeded"`
	Failed     uint64 `json:"failed"`
	InFlight   int    `json:"in_flight"`
}

// Dispatcher sends commands fire-and-forget. A command handed to Dispatch is
// considered sent; a later transport failure only flips connectivity and
// raises DispatchFailed.
type Dispatcher struct {
	transport transport.Transport
	obs       *Observers
	cfg       Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	last      [3]*motion.MotionCommand
	stats     Stats
	connected bool

	// connMu orders connectivity transitions with their notifications.
	connMu sync.Mutex
}

// New returns a Dispatcher sending through t. obs may be nil.
func New(t transport.Transport, obs *Observers, cfg Config) *Dispatcher {
	if cfg.Source == "" {
		cfg.Source = DefaultSource
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		transport: t,
		obs:       obs,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Source returns the label stamped on records.
func (d *Dispatcher) Source() string { return d.cfg.Source }

// Dispatch records cmd as the channel's latest command, notifies observers
// and starts the send in the background.
func (d *Dispatcher) Dispatch(cmd motion.MotionCommand) Record {
	rec := Record{
		ID:      uuid.New(),
		Source:  d.cfg.Source,
		Command: cmd,
		At:      d.cfg.Clock.Now(),
	}

	d.mu.Lock()
	c := cmd
	d.last[cmd.Channel] = &c
	d.stats.Dispatched++
	d.stats.InFlight++
	d.mu.Unlock()

	monitoring.Diagf("dispatch %s [%s] %s", rec.ID, rec.Source, cmd)
	d.obs.CommandChanged(cmd)
	d.obs.CommandDispatched(rec)

	d.wg.Add(1)
	go d.send(rec)
	return rec
}

func (d *Dispatcher) send(rec Record) {
	defer d.wg.Done()

	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.Timeout)
	defer cancel()

	_, err := d.transport.Send(ctx, rec.Command)

	d.mu.Lock()
	d.stats.InFlight--
	if err != nil {
		d.stats.Failed++
	} else {
		d.stats.Succeeded++
	}
	d.mu.Unlock()

	d.setConnected(err == nil)
	if err != nil {
		monitoring.Opsf("dispatch %s failed: %v", rec.Command, err)
		d.obs.DispatchFailed(rec, err)
	}
}

func (d *Dispatcher) setConnected(connected bool) {
	d.connMu.Lock()
	defer d.connMu.Unlock()

	d.mu.Lock()
	changed := d.connected != connected
	d.connected = connected
	d.mu.Unlock()

	if changed {
		monitoring.Opsf("vehicle connectivity: %v", connected)
		d.obs.ConnectivityChanged(connected)
	}
}

// Connected reports the outcome of the most recent completed send.
func (d *Dispatcher) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// Last returns the most recent command dispatched on ch.
func (d *Dispatcher) Last(ch motion.Channel) (motion.MotionCommand, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p := d.last[ch]; p != nil {
		return *p, true
	}
	return motion.MotionCommand{}, false
}

// Stats returns a snapshot of send counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Wait blocks until every in-flight send has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close aborts in-flight sends and waits for them to return.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}
