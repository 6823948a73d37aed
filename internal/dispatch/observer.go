package dispatch

import (
	"slices"
	"sync"

	"github.com/banshee-data/rover.control/internal/motion"
)

// Observer receives one-way notifications from the control core. Methods
// may be called from dispatcher goroutines and must not call back into the
// component that notified them.
type Observer interface {
	ConnectivityChanged(connected bool)
	CommandChanged(cmd motion.MotionCommand)
	SpeedChanged(speed int)
	RawDataReceived(line string)
	CommandDispatched(rec Record)
	DispatchFailed(rec Record, err error)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnConnectivity func(connected bool)
	OnCommand      func(cmd motion.MotionCommand)
	OnSpeed        func(speed int)
	OnRawData      func(line string)
	OnDispatched   func(rec Record)
	OnFailed       func(rec Record, err error)
}

func (f ObserverFuncs) ConnectivityChanged(connected bool) {
	if f.OnConnectivity != nil {
		f.OnConnectivity(connected)
	}
}

func (f ObserverFuncs) CommandChanged(cmd motion.MotionCommand) {
	if f.OnCommand != nil {
		f.OnCommand(cmd)
	}
}

func (f ObserverFuncs) SpeedChanged(speed int) {
	if f.OnSpeed != nil {
		f.OnSpeed(speed)
	}
}

func (f ObserverFuncs) RawDataReceived(line string) {
	if f.OnRawData != nil {
		f.OnRawData(line)
	}
}

func (f ObserverFuncs) CommandDispatched(rec Record) {
	if f.OnDispatched != nil {
		f.OnDispatched(rec)
	}
}

func (f ObserverFuncs) DispatchFailed(rec Record, err error) {
	if f.OnFailed != nil {
		f.OnFailed(rec, err)
	}
}

// Observers is a registry that fans notifications out to every registered
// Observer. The zero value is ready to use and a nil *Observers is a no-op.
type Observers struct {
	mu     sync.RWMutex
	nextID int
	list   map[int]Observer
}

// NewObservers returns an empty registry.
func NewObservers() *Observers {
	return &Observers{list: make(map[int]Observer)}
}

// Register adds o and returns an id for Unregister.
func (r *Observers) Register(o Observer) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.list == nil {
		r.list = make(map[int]Observer)
	}
	r.nextID++
	r.list[r.nextID] = o
	return r.nextID
}

// Unregister removes the observer registered under id.
func (r *Observers) Unregister(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.list, id)
}

// Len returns the number of registered observers.
func (r *Observers) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.list)
}

func (r *Observers) each(fn func(Observer)) {
	if r == nil {
		return
	}
	r.mu.RLock()
	ids := make([]int, 0, len(r.list))
	for id := range r.list {
		ids = append(ids, id)
	}
	obs := make([]Observer, 0, len(ids))
	// Registration order.
	slices.Sort(ids)
	for _, id := range ids {
		obs = append(obs, r.list[id])
	}
	r.mu.RUnlock()

	for _, o := range obs {
		fn(o)
	}
}

func (r *Observers) ConnectivityChanged(connected bool) {
	r.each(func(o Observer) { o.ConnectivityChanged(connected) })
}

func (r *Observers) CommandChanged(cmd motion.MotionCommand) {
	r.each(func(o Observer) { o.CommandChanged(cmd) })
}

func (r *Observers) SpeedChanged(speed int) {
	r.each(func(o Observer) { o.SpeedChanged(speed) })
}

func (r *Observers) RawDataReceived(line string) {
	r.each(func(o Observer) { o.RawDataReceived(line) })
}

func (r *Observers) CommandDispatched(rec Record) {
	r.each(func(o Observer) { o.CommandDispatched(rec) })
}

func (r *Observers) DispatchFailed(rec Record, err error) {
	r.each(func(o Observer) { o.DispatchFailed(rec, err) })
}
